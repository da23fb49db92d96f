// Package authflow decides when redirect-based authorization is needed,
// builds the provider redirect, and turns callbacks into stored credentials.
package authflow

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mikey/phish-scanner/internal/api"
	"github.com/mikey/phish-scanner/internal/config"
	"github.com/mikey/phish-scanner/internal/core"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// CallbackPlan is the outcome of classifying a callback
type CallbackPlan struct {
	Slot   core.Slot
	Action api.Action
}

// CredentialStore is the part of the credential lifecycle the flow needs
type CredentialStore interface {
	EnsureFresh(ctx context.Context, slot core.Slot) (*core.Credential, error)
	Merge(ctx context.Context, slot core.Slot, resp *core.TokenResponse) *core.Credential
}

// Flow drives the redirect-based authorization for both slots
type Flow struct {
	cfg         config.AuthConfig
	scopes      *ScopeMatcher
	credentials CredentialStore
	exchanger   core.CodeExchanger
	logger      *zap.Logger

	mu        sync.Mutex
	pending   bool
	usedCodes map[string]struct{}
}

// NewFlow creates a new authorization flow
func NewFlow(cfg config.AuthConfig, credentials CredentialStore, exchanger core.CodeExchanger, logger *zap.Logger) *Flow {
	return &Flow{
		cfg:         cfg,
		scopes:      NewScopeMatcher(cfg.MailScopeMarkers, cfg.BasicScopeMarkers),
		credentials: credentials,
		exchanger:   exchanger,
		logger:      logger,
		usedCodes:   make(map[string]struct{}),
	}
}

// Scopes returns the matcher used to classify granted scopes
func (f *Flow) Scopes() *ScopeMatcher {
	return f.scopes
}

// BuildAuthorizationURL returns the provider redirect for slot. The URL
// always asks for offline access with forced consent so the first grant
// carries a refresh token.
func (f *Flow) BuildAuthorizationURL(slot core.Slot) (string, error) {
	var scope string
	switch slot {
	case core.SlotBasic:
		scope = f.cfg.BasicScope
	case core.SlotMail:
		scope = f.cfg.MailScope
	default:
		return "", fmt.Errorf("unknown slot %q", slot)
	}
	if f.cfg.ClientID == "" {
		return "", fmt.Errorf("auth.client_id is not configured")
	}

	oauthConfig := &oauth2.Config{
		ClientID:    f.cfg.ClientID,
		RedirectURL: f.cfg.RedirectURL,
		Scopes:      strings.Fields(scope),
		Endpoint: oauth2.Endpoint{
			AuthURL: f.cfg.AuthorizeURL,
		},
	}

	return oauthConfig.AuthCodeURL("", oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Authorize returns a usable credential for slot, or the redirect URL the
// user has to visit when reauthorization is required.
func (f *Flow) Authorize(ctx context.Context, slot core.Slot) (*core.Credential, string, error) {
	cred, err := f.credentials.EnsureFresh(ctx, slot)
	if err == nil {
		return cred, "", nil
	}
	if !core.RequiresReauthorization(err) {
		return nil, "", err
	}

	f.logger.Info("Authorization required", zap.String("slot", string(slot)), zap.Error(err))
	authURL, urlErr := f.BuildAuthorizationURL(slot)
	if urlErr != nil {
		return nil, "", urlErr
	}
	return nil, authURL, nil
}

// Begin marks a redirect as pending and returns its URL. Only one redirect
// may be pending at a time; call the returned release func once the
// callback has been handled or abandoned.
func (f *Flow) Begin(slot core.Slot) (string, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pending {
		return "", nil, core.ErrAuthorizationInProgress
	}

	authURL, err := f.BuildAuthorizationURL(slot)
	if err != nil {
		return "", nil, err
	}
	f.pending = true

	var once sync.Once
	release := func() {
		once.Do(func() {
			f.mu.Lock()
			f.pending = false
			f.mu.Unlock()
		})
	}
	return authURL, release, nil
}

// ClassifyCallback picks the slot and exchange action for a callback
func (f *Flow) ClassifyCallback(code, grantedScope string) (*CallbackPlan, error) {
	if code == "" {
		return nil, fmt.Errorf("callback carried no authorization code")
	}

	slot, err := f.scopes.Slot(grantedScope)
	if err != nil {
		return nil, err
	}
	return &CallbackPlan{Slot: slot, Action: api.ExchangeActionFor(slot)}, nil
}

// HandleCallback exchanges code for the slot implied by grantedScope and
// merges the result. A code is exchanged at most once, whatever the
// outcome of the first attempt.
func (f *Flow) HandleCallback(ctx context.Context, code, grantedScope string) (core.Slot, *core.Credential, error) {
	plan, err := f.ClassifyCallback(code, grantedScope)
	if err != nil {
		f.logger.Warn("Rejected authorization callback", zap.Error(err))
		return "", nil, err
	}

	f.mu.Lock()
	if _, used := f.usedCodes[code]; used {
		f.mu.Unlock()
		return "", nil, core.ErrCodeAlreadyUsed
	}
	f.usedCodes[code] = struct{}{}
	f.mu.Unlock()

	resp, err := f.exchanger.ExchangeCode(ctx, plan.Slot, code)
	if err != nil {
		return plan.Slot, nil, fmt.Errorf("failed to exchange %s authorization code: %w", plan.Slot, err)
	}
	if resp.AccessToken == "" {
		return plan.Slot, nil, fmt.Errorf("exchange for %s returned no access token", plan.Slot)
	}

	cred := f.credentials.Merge(ctx, plan.Slot, resp)
	f.logger.Info("Authorization completed", zap.String("slot", string(plan.Slot)))
	return plan.Slot, cred, nil
}
