package credential

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mikey/phish-scanner/internal/adapters/storage"
	"github.com/mikey/phish-scanner/internal/config"
	"github.com/mikey/phish-scanner/internal/core"
	"github.com/mikey/phish-scanner/internal/tokenstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRefresher struct {
	calls []string
	resp  *core.TokenResponse
	err   error
}

func (f *fakeRefresher) RefreshToken(ctx context.Context, slot core.Slot, refreshToken string) (*core.TokenResponse, error) {
	f.calls = append(f.calls, string(slot)+":"+refreshToken)
	return f.resp, f.err
}

var session = config.SessionConfig{
	Key:             "session",
	LegacyKey:       "legacy",
	ExpiryBuffer:    5 * time.Minute,
	DefaultLifetime: 3600,
}

const now = int64(1_700_000_000)

func newLifecycle(t *testing.T, refresher *fakeRefresher, initial core.CredentialSet) (*Lifecycle, *tokenstore.Store) {
	t.Helper()
	store := tokenstore.New(storage.NewMemoryStore(zap.NewNop()), session, nil, zap.NewNop())
	if !initial.Empty() {
		require.NoError(t, store.Save(context.Background(), initial))
	}
	l := NewLifecycle(store, refresher, session, zap.NewNop())
	l.now = func() time.Time { return time.Unix(now, 0) }
	return l, store
}

func TestIsExpiredBoundary(t *testing.T) {
	c := &core.Credential{AccessToken: "a", IssuedAt: 1000, LifetimeSeconds: 3600}
	buffer := 300 * time.Second

	assert.False(t, IsExpired(c, time.Unix(4299, 0), buffer))
	assert.True(t, IsExpired(c, time.Unix(4300, 0), buffer))
	assert.True(t, IsExpired(c, time.Unix(4301, 0), buffer))
}

func TestIsExpiredWithoutMetadata(t *testing.T) {
	at := time.Unix(10, 0)
	assert.True(t, IsExpired(nil, at, 0))
	assert.True(t, IsExpired(&core.Credential{AccessToken: "a", LifetimeSeconds: 3600}, at, 0))
	assert.True(t, IsExpired(&core.Credential{AccessToken: "a", IssuedAt: 5}, at, 0))
}

func TestEnsureFreshReturnsValidCredential(t *testing.T) {
	refresher := &fakeRefresher{}
	l, _ := newLifecycle(t, refresher, core.CredentialSet{
		Mail: &core.Credential{AccessToken: "m", RefreshToken: "r", IssuedAt: now - 60, LifetimeSeconds: 3600},
	})

	c, err := l.EnsureFresh(context.Background(), core.SlotMail)
	require.NoError(t, err)
	assert.Equal(t, "m", c.AccessToken)
	assert.Empty(t, refresher.calls)
}

func TestEnsureFreshRefreshesExpiredCredential(t *testing.T) {
	refresher := &fakeRefresher{resp: &core.TokenResponse{AccessToken: "m2", ExpiresIn: 1800}}
	basic := &core.Credential{AccessToken: "b", RefreshToken: "rb", IssuedAt: now - 10, LifetimeSeconds: 3600, Scope: "openid"}
	l, store := newLifecycle(t, refresher, core.CredentialSet{
		Basic:             basic,
		Mail:              &core.Credential{AccessToken: "m", RefreshToken: "rm", IssuedAt: now - 3600, LifetimeSeconds: 3600, Scope: "gmail.readonly"},
		IdentityAssertion: "assertion",
	})

	c, err := l.EnsureFresh(context.Background(), core.SlotMail)
	require.NoError(t, err)

	assert.Equal(t, []string{"mail:rm"}, refresher.calls)
	assert.Equal(t, "m2", c.AccessToken)
	assert.Equal(t, "rm", c.RefreshToken, "refresh token is kept when the response omits it")
	assert.Equal(t, now, c.IssuedAt)
	assert.Equal(t, int64(1800), c.LifetimeSeconds)
	assert.Equal(t, "gmail.readonly", c.Scope)

	persisted := store.Load(context.Background())
	assert.Equal(t, basic, persisted.Basic, "other slot is untouched")
	assert.Equal(t, "assertion", persisted.IdentityAssertion)
	assert.Equal(t, "m2", persisted.Mail.AccessToken)
}

func TestRefreshReplacesAssertionWhenSupplied(t *testing.T) {
	refresher := &fakeRefresher{resp: &core.TokenResponse{AccessToken: "b2", JWTToken: "new-assertion"}}
	l, _ := newLifecycle(t, refresher, core.CredentialSet{
		Basic:             &core.Credential{AccessToken: "b", RefreshToken: "rb", IssuedAt: now - 10, LifetimeSeconds: 3600},
		IdentityAssertion: "assertion",
	})

	c, err := l.Refresh(context.Background(), core.SlotBasic)
	require.NoError(t, err)
	assert.Equal(t, int64(3600), c.LifetimeSeconds)
	assert.Equal(t, "new-assertion", l.Snapshot(context.Background()).IdentityAssertion)
}

func TestRefreshFailureClearsWholeSession(t *testing.T) {
	refresher := &fakeRefresher{err: errors.New("invalid_grant")}
	l, store := newLifecycle(t, refresher, core.CredentialSet{
		Basic:             &core.Credential{AccessToken: "b", RefreshToken: "rb", IssuedAt: now, LifetimeSeconds: 3600},
		Mail:              &core.Credential{AccessToken: "m", RefreshToken: "rm", IssuedAt: 1, LifetimeSeconds: 3600},
		IdentityAssertion: "assertion",
	})

	_, err := l.EnsureFresh(context.Background(), core.SlotMail)
	assert.ErrorIs(t, err, core.ErrRefreshFailed)
	assert.True(t, core.RequiresReauthorization(err))

	assert.True(t, l.Snapshot(context.Background()).Empty())
	assert.True(t, store.Load(context.Background()).Empty())
}

func TestRefreshWithoutAccessTokenIsAFailure(t *testing.T) {
	refresher := &fakeRefresher{resp: &core.TokenResponse{}}
	l, _ := newLifecycle(t, refresher, core.CredentialSet{
		Mail: &core.Credential{AccessToken: "m", RefreshToken: "rm", IssuedAt: 1, LifetimeSeconds: 3600},
	})

	_, err := l.EnsureFresh(context.Background(), core.SlotMail)
	assert.ErrorIs(t, err, core.ErrRefreshFailed)
	assert.True(t, l.Snapshot(context.Background()).Empty())
}

func TestEnsureFreshRequiresAuthorization(t *testing.T) {
	tests := map[string]core.CredentialSet{
		"no credential": {},
		"expired without refresh token": {
			Mail: &core.Credential{AccessToken: "m", IssuedAt: 1, LifetimeSeconds: 3600},
		},
	}
	for name, initial := range tests {
		t.Run(name, func(t *testing.T) {
			refresher := &fakeRefresher{}
			l, _ := newLifecycle(t, refresher, initial)

			_, err := l.EnsureFresh(context.Background(), core.SlotMail)
			assert.ErrorIs(t, err, core.ErrAuthorizationRequired)
			assert.Empty(t, refresher.calls)
			assert.Equal(t, initial.Mail, l.Current(context.Background(), core.SlotMail))
		})
	}
}

func TestMergeStampsIssuanceAndDefaultsLifetime(t *testing.T) {
	l, store := newLifecycle(t, &fakeRefresher{}, core.CredentialSet{
		Mail: &core.Credential{AccessToken: "m", IssuedAt: 5, LifetimeSeconds: 60},
	})

	c := l.Merge(context.Background(), core.SlotBasic, &core.TokenResponse{
		AccessToken:  "b",
		RefreshToken: "rb",
		Scope:        "openid",
		JWTToken:     "assertion",
	})

	assert.Equal(t, now, c.IssuedAt)
	assert.Equal(t, int64(3600), c.LifetimeSeconds)

	persisted := store.Load(context.Background())
	assert.Equal(t, "m", persisted.Mail.AccessToken)
	assert.Equal(t, "b", persisted.Basic.AccessToken)
	assert.Equal(t, "assertion", persisted.IdentityAssertion)
}

func TestCurrentReturnsCopy(t *testing.T) {
	l, _ := newLifecycle(t, &fakeRefresher{}, core.CredentialSet{
		Basic: &core.Credential{AccessToken: "b", IssuedAt: now, LifetimeSeconds: 3600},
	})

	c := l.Current(context.Background(), core.SlotBasic)
	c.AccessToken = "mutated"
	assert.Equal(t, "b", l.Current(context.Background(), core.SlotBasic).AccessToken)
}

func TestIdentity(t *testing.T) {
	exp := time.Unix(now+3600, 0)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "115",
		"exp":     exp.Unix(),
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	l, _ := newLifecycle(t, &fakeRefresher{}, core.CredentialSet{IdentityAssertion: signed})

	identity, err := l.Identity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "115", identity.UserID)
	assert.True(t, identity.ExpiresAt.Equal(exp))
	assert.False(t, identity.Expired(time.Unix(now, 0)))
	assert.True(t, identity.Expired(exp))
}

func TestIdentityMissing(t *testing.T) {
	l, _ := newLifecycle(t, &fakeRefresher{}, core.CredentialSet{})
	_, err := l.Identity(context.Background())
	assert.ErrorIs(t, err, ErrNoIdentity)

	_, err = ParseIdentity("not-a-jwt")
	assert.Error(t, err)
}
