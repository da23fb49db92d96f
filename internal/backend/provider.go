package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mikey/phish-scanner/internal/config"
	"github.com/mikey/phish-scanner/internal/core"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// UserInfo is the subset of the provider profile the backend needs
type UserInfo struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

// TokenProvider talks to the identity provider's token endpoint
type TokenProvider interface {
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	UserInfo(ctx context.Context, accessToken string) (*UserInfo, error)
}

// GoogleProvider is a TokenProvider for Google accounts
type GoogleProvider struct {
	oauth       *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

// NewGoogleProvider creates a provider from the server configuration
func NewGoogleProvider(cfg config.ServerConfig) *GoogleProvider {
	return NewGoogleProviderWithEndpoint(cfg, google.Endpoint, http.DefaultClient)
}

// NewGoogleProviderWithEndpoint creates a provider against an explicit
// token endpoint
func NewGoogleProviderWithEndpoint(cfg config.ServerConfig, endpoint oauth2.Endpoint, httpClient *http.Client) *GoogleProvider {
	return &GoogleProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Endpoint:     endpoint,
		},
		userInfoURL: cfg.UserInfoURL,
		httpClient:  httpClient,
	}
}

// Exchange trades an authorization code for tokens
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.oauth.Exchange(p.withClient(ctx), code)
}

// Refresh trades a refresh token for a new access token
func (p *GoogleProvider) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := p.oauth.TokenSource(p.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	return src.Token()
}

// UserInfo reads the profile of the token's owner
func (p *GoogleProvider) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user information: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read user information: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &core.HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var info UserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to decode user information: %w", err)
	}
	return &info, nil
}

func (p *GoogleProvider) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// tokenResponse converts a provider token into the wire response. A missing
// lifetime defaults to one hour.
func tokenResponse(tok *oauth2.Token, now time.Time) *core.TokenResponse {
	resp := &core.TokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    core.DefaultLifetimeSeconds,
	}
	if !tok.Expiry.IsZero() {
		if secs := int64(tok.Expiry.Sub(now).Round(time.Second) / time.Second); secs > 0 {
			resp.ExpiresIn = secs
		}
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		resp.Scope = scope
	}
	return resp
}
