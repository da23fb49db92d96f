package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mikey/phish-scanner/internal/api"
	"github.com/mikey/phish-scanner/internal/config"
	"github.com/mikey/phish-scanner/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

type fakeProvider struct {
	exchangeErr error
	refreshErr  error
	refreshed   *oauth2.Token
	userInfoErr error
	codes       []string
}

func (p *fakeProvider) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	p.codes = append(p.codes, code)
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	tok := &oauth2.Token{AccessToken: "access-" + code, RefreshToken: "refresh-" + code}
	return tok.WithExtra(map[string]interface{}{"scope": "openid email"}), nil
}

func (p *fakeProvider) Refresh(_ context.Context, refreshToken string) (*oauth2.Token, error) {
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}
	if p.refreshed != nil {
		return p.refreshed, nil
	}
	return &oauth2.Token{AccessToken: "renewed"}, nil
}

func (p *fakeProvider) UserInfo(_ context.Context, accessToken string) (*UserInfo, error) {
	if p.userInfoErr != nil {
		return nil, p.userInfoErr
	}
	return &UserInfo{Subject: "user-42", Email: "user@example.com"}, nil
}

type fakeMailbox struct {
	items []core.EmailItem
	err   error
	token string
}

func (m *fakeMailbox) ReadMailbox(_ context.Context, accessToken string) ([]core.EmailItem, error) {
	m.token = accessToken
	return m.items, m.err
}

func newTestServer(t *testing.T, provider TokenProvider, mailbox MailboxReader) *Server {
	issuer, err := NewIssuer("secret", time.Hour)
	require.NoError(t, err)
	return NewServer(config.ServerConfig{AllowedOrigins: "*"}, provider, mailbox, issuer, zap.NewNop())
}

func post(t *testing.T, s *Server, body interface{}, bearer string) (int, []byte) {
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, ProviderPath, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, &fakeProvider{}, &fakeMailbox{})

	status, body := post(t, s, api.Request{Action: api.ActionLogin, Code: "abc"}, "")
	require.Equal(t, http.StatusOK, status, string(body))

	var resp core.TokenResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, "access-abc", resp.AccessToken)
	assert.Equal(t, "refresh-abc", resp.RefreshToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, "openid email", resp.Scope)

	userID, err := s.issuer.Verify(resp.JWTToken)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)
}

func TestLoginFailures(t *testing.T) {
	s := newTestServer(t, &fakeProvider{}, &fakeMailbox{})
	status, _ := post(t, s, api.Request{Action: api.ActionLogin}, "")
	assert.Equal(t, http.StatusBadRequest, status)

	s = newTestServer(t, &fakeProvider{exchangeErr: errors.New("invalid_grant")}, &fakeMailbox{})
	status, _ = post(t, s, api.Request{Action: api.ActionLogin, Code: "abc"}, "")
	assert.Equal(t, http.StatusBadRequest, status)

	s = newTestServer(t, &fakeProvider{userInfoErr: errors.New("down")}, &fakeMailbox{})
	status, _ = post(t, s, api.Request{Action: api.ActionLogin, Code: "abc"}, "")
	assert.Equal(t, http.StatusBadGateway, status)
}

func TestExchangeMailToken(t *testing.T) {
	s := newTestServer(t, &fakeProvider{}, &fakeMailbox{})

	status, body := post(t, s, api.Request{Action: api.ActionExchangeMailToken, Code: "m"}, "")
	require.Equal(t, http.StatusOK, status)

	var resp core.TokenResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, "access-m", resp.AccessToken)
	assert.Empty(t, resp.JWTToken)
}

func TestRefreshPreservesRefreshToken(t *testing.T) {
	s := newTestServer(t, &fakeProvider{}, &fakeMailbox{})

	status, body := post(t, s, api.Request{Action: api.ActionRefreshToken, RefreshToken: "old", TokenType: "mail"}, "")
	require.Equal(t, http.StatusOK, status)

	var resp core.TokenResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, "renewed", resp.AccessToken)
	assert.Equal(t, "old", resp.RefreshToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, "mail", resp.TokenType)
}

func TestRefreshFailures(t *testing.T) {
	s := newTestServer(t, &fakeProvider{}, &fakeMailbox{})
	status, _ := post(t, s, api.Request{Action: api.ActionRefreshToken}, "")
	assert.Equal(t, http.StatusBadRequest, status)

	s = newTestServer(t, &fakeProvider{refreshErr: &oauth2.RetrieveError{ErrorCode: "invalid_grant"}}, &fakeMailbox{})
	status, body := post(t, s, api.Request{Action: api.ActionRefreshToken, RefreshToken: "old"}, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "invalid_grant")

	s = newTestServer(t, &fakeProvider{refreshErr: errors.New("network")}, &fakeMailbox{})
	status, _ = post(t, s, api.Request{Action: api.ActionRefreshToken, RefreshToken: "old"}, "")
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestRetrieveMail(t *testing.T) {
	mailbox := &fakeMailbox{items: []core.EmailItem{{BodyText: "hello", SubjectLines: []string{"hi"}}}}
	s := newTestServer(t, &fakeProvider{}, mailbox)

	status, body := post(t, s, api.Request{Action: api.ActionRetrieveMail}, "tok")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "tok", mailbox.token)

	var resp api.MailResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	require.Len(t, resp.Mails, 1)
	assert.Equal(t, "hi", resp.Mails[0].Subject())
}

func TestRetrieveMailErrors(t *testing.T) {
	s := newTestServer(t, &fakeProvider{}, &fakeMailbox{})
	status, _ := post(t, s, api.Request{Action: api.ActionRetrieveMail}, "")
	assert.Equal(t, http.StatusBadRequest, status)

	s = newTestServer(t, &fakeProvider{}, &fakeMailbox{err: &core.HTTPError{StatusCode: http.StatusUnauthorized}})
	status, _ = post(t, s, api.Request{Action: api.ActionRetrieveMail}, "expired")
	assert.Equal(t, http.StatusUnauthorized, status)

	s = newTestServer(t, &fakeProvider{}, &fakeMailbox{err: errors.New("boom")})
	status, _ = post(t, s, api.Request{Action: api.ActionRetrieveMail}, "tok")
	assert.Equal(t, http.StatusBadGateway, status)
}

func TestInvalidAction(t *testing.T) {
	s := newTestServer(t, &fakeProvider{}, &fakeMailbox{})
	status, body := post(t, s, map[string]string{"action": "delete_everything"}, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.JSONEq(t, `{"error":"Invalid action"}`, string(body))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeProvider{}, &fakeMailbox{})
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer  abc"))
	assert.Equal(t, "", bearerToken("Basic abc"))
	assert.Equal(t, "", bearerToken(""))
}
