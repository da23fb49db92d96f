// Package credential owns the dual-slot credential set: expiry decisions,
// silent refresh, and read-modify-write merges of new tokens.
package credential

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mikey/phish-scanner/internal/config"
	"github.com/mikey/phish-scanner/internal/core"
	"github.com/mikey/phish-scanner/internal/metrics"
	"go.uber.org/zap"
)

// SessionStore persists the credential set
type SessionStore interface {
	Load(ctx context.Context) core.CredentialSet
	Save(ctx context.Context, set core.CredentialSet) error
	Clear(ctx context.Context) error
}

// Lifecycle is the only writer of the credential set. Every other component
// reads credentials through it.
type Lifecycle struct {
	store           SessionStore
	refresher       core.TokenRefresher
	buffer          time.Duration
	defaultLifetime int64
	logger          *zap.Logger
	now             func() time.Time

	mu     sync.Mutex
	set    core.CredentialSet
	loaded bool
}

// NewLifecycle creates a lifecycle manager over store
func NewLifecycle(store SessionStore, refresher core.TokenRefresher, session config.SessionConfig, logger *zap.Logger) *Lifecycle {
	defaultLifetime := session.DefaultLifetime
	if defaultLifetime <= 0 {
		defaultLifetime = core.DefaultLifetimeSeconds
	}

	return &Lifecycle{
		store:           store,
		refresher:       refresher,
		buffer:          session.ExpiryBuffer,
		defaultLifetime: defaultLifetime,
		logger:          logger,
		now:             time.Now,
	}
}

// IsExpired reports whether c must not be used at now. A credential without
// issuance metadata is always expired.
func IsExpired(c *core.Credential, now time.Time, buffer time.Duration) bool {
	if c == nil || c.IssuedAt <= 0 || c.LifetimeSeconds <= 0 {
		return true
	}
	return now.Unix() >= c.IssuedAt+c.LifetimeSeconds-int64(buffer/time.Second)
}

// IsExpired applies the configured buffer to c
func (l *Lifecycle) IsExpired(c *core.Credential) bool {
	return IsExpired(c, l.now(), l.buffer)
}

// Snapshot returns a copy of the current set
func (l *Lifecycle) Snapshot(ctx context.Context) core.CredentialSet {
	l.mu.Lock()
	defer l.mu.Unlock()

	return cloneSet(l.loadLocked(ctx))
}

// Current returns a copy of the credential in slot, valid or not
func (l *Lifecycle) Current(ctx context.Context, slot core.Slot) *core.Credential {
	l.mu.Lock()
	defer l.mu.Unlock()

	return cloneCredential(l.loadLocked(ctx).Get(slot))
}

// EnsureFresh returns a usable credential for slot, refreshing it when it
// is expired and a refresh token is available.
func (l *Lifecycle) EnsureFresh(ctx context.Context, slot core.Slot) (*core.Credential, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.loadLocked(ctx).Get(slot)
	if current != nil && !l.IsExpired(current) {
		return cloneCredential(current), nil
	}
	if current == nil || current.RefreshToken == "" {
		return nil, fmt.Errorf("%s credential: %w", slot, core.ErrAuthorizationRequired)
	}

	l.logger.Debug("Credential expired, refreshing", zap.String("slot", string(slot)))
	return l.refreshLocked(ctx, slot, current.RefreshToken)
}

// Refresh forces a refresh of slot regardless of expiry. A failure clears
// the whole session.
func (l *Lifecycle) Refresh(ctx context.Context, slot core.Slot) (*core.Credential, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.loadLocked(ctx).Get(slot)
	if current == nil || current.RefreshToken == "" {
		return nil, fmt.Errorf("%s credential has no refresh token: %w", slot, core.ErrAuthorizationRequired)
	}
	return l.refreshLocked(ctx, slot, current.RefreshToken)
}

func (l *Lifecycle) refreshLocked(ctx context.Context, slot core.Slot, refreshToken string) (*core.Credential, error) {
	resp, err := l.refresher.RefreshToken(ctx, slot, refreshToken)
	if err == nil && resp.AccessToken == "" {
		err = fmt.Errorf("refresh response carried no access token")
	}
	if err != nil {
		metrics.IncrementTokenRefresh(string(slot), "failed")
		l.logger.Warn("Token refresh failed, clearing session",
			zap.String("slot", string(slot)),
			zap.Error(err))
		l.clearLocked(ctx)
		return nil, fmt.Errorf("%w: %v", core.ErrRefreshFailed, err)
	}

	metrics.IncrementTokenRefresh(string(slot), "success")
	return l.mergeLocked(ctx, slot, resp), nil
}

// Merge stores resp as the credential for slot. The other slot is kept as
// persisted and the identity assertion is only replaced when resp has one.
func (l *Lifecycle) Merge(ctx context.Context, slot core.Slot, resp *core.TokenResponse) *core.Credential {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.mergeLocked(ctx, slot, resp)
}

func (l *Lifecycle) mergeLocked(ctx context.Context, slot core.Slot, resp *core.TokenResponse) *core.Credential {
	// Start from the persisted document; the cached copy only stands in
	// when nothing could be persisted.
	set := l.store.Load(ctx)
	if set.Empty() {
		set = cloneSet(l.set)
	}
	previous := set.Get(slot)

	lifetime := resp.ExpiresIn
	if lifetime <= 0 {
		lifetime = l.defaultLifetime
	}

	updated := &core.Credential{
		AccessToken:     resp.AccessToken,
		RefreshToken:    resp.RefreshToken,
		IssuedAt:        l.now().Unix(),
		LifetimeSeconds: lifetime,
		Scope:           resp.Scope,
	}
	if previous != nil {
		if updated.RefreshToken == "" {
			updated.RefreshToken = previous.RefreshToken
		}
		if updated.Scope == "" {
			updated.Scope = previous.Scope
		}
	}

	set = set.With(slot, updated)
	if resp.JWTToken != "" {
		set.IdentityAssertion = resp.JWTToken
	}

	if err := l.store.Save(ctx, set); err != nil {
		l.logger.Warn("Failed to persist credential set", zap.Error(err))
	}
	l.set = set
	l.loaded = true

	l.logger.Debug("Credential stored",
		zap.String("slot", string(slot)),
		zap.Int64("lifetime_seconds", lifetime),
		zap.Bool("has_refresh_token", updated.RefreshToken != ""))

	return cloneCredential(updated)
}

// Clear drops both slots and the identity assertion
func (l *Lifecycle) Clear(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.clearLocked(ctx)
}

func (l *Lifecycle) clearLocked(ctx context.Context) {
	if err := l.store.Clear(ctx); err != nil {
		l.logger.Warn("Failed to clear persisted session", zap.Error(err))
	}
	l.set = core.CredentialSet{}
	l.loaded = true
}

func (l *Lifecycle) loadLocked(ctx context.Context) core.CredentialSet {
	if !l.loaded {
		l.set = l.store.Load(ctx)
		l.loaded = true
	}
	return l.set
}

func cloneCredential(c *core.Credential) *core.Credential {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

func cloneSet(s core.CredentialSet) core.CredentialSet {
	return core.CredentialSet{
		Basic:             cloneCredential(s.Basic),
		Mail:              cloneCredential(s.Mail),
		IdentityAssertion: s.IdentityAssertion,
	}
}
