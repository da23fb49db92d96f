// Package tokenstore persists the credential set as one JSON document in a
// key/value store.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mikey/phish-scanner/internal/config"
	"github.com/mikey/phish-scanner/internal/core"
	"go.uber.org/zap"
)

// SlotResolver picks the slot a legacy credential belongs to from its scope
type SlotResolver func(scope string) (core.Slot, error)

// legacyCredential is the single-credential document written by older
// releases: the backend token response stored as-is.
type legacyCredential struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	JWTToken     string `json:"jwt_token"`
}

// Store reads and writes the persisted credential set
type Store struct {
	kv        core.KeyValueStore
	key       string
	legacyKey string
	resolve   SlotResolver
	logger    *zap.Logger
}

// New creates a token store over kv. resolve may be nil, in which case
// migrated credentials land in the basic slot.
func New(kv core.KeyValueStore, session config.SessionConfig, resolve SlotResolver, logger *zap.Logger) *Store {
	return &Store{
		kv:        kv,
		key:       session.Key,
		legacyKey: session.LegacyKey,
		resolve:   resolve,
		logger:    logger,
	}
}

// Load returns the persisted set. It never fails: missing or corrupt data
// yields an empty set, and corrupt data is removed.
func (s *Store) Load(ctx context.Context) core.CredentialSet {
	data, err := s.kv.Get(ctx, s.key)
	switch {
	case err == nil:
		var set core.CredentialSet
		if err := json.Unmarshal(data, &set); err != nil {
			s.logger.Warn("Discarding corrupt credential set", zap.Error(err))
			s.delete(ctx, s.key)
			return core.CredentialSet{}
		}
		s.dropLegacy(ctx)
		return set
	case errors.Is(err, core.ErrNotFound):
		return s.migrate(ctx)
	default:
		s.logger.Warn("Failed to read credential set", zap.Error(err))
		return core.CredentialSet{}
	}
}

// Save replaces the persisted set
func (s *Store) Save(ctx context.Context, set core.CredentialSet) error {
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("failed to encode credential set: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("failed to save credential set: %w", err)
	}
	return nil
}

// Clear removes the persisted set
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("failed to clear credential set: %w", err)
	}
	return nil
}

// migrate rewrites a legacy single-credential document into the two-slot
// shape. The migrated credential is stamped as expired so it gets
// refreshed before use. The legacy document is removed either way.
func (s *Store) migrate(ctx context.Context) core.CredentialSet {
	if s.legacyKey == "" {
		return core.CredentialSet{}
	}

	data, err := s.kv.Get(ctx, s.legacyKey)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			s.logger.Warn("Failed to read legacy credential", zap.Error(err))
		}
		return core.CredentialSet{}
	}
	defer s.delete(ctx, s.legacyKey)

	var legacy legacyCredential
	if err := json.Unmarshal(data, &legacy); err != nil || legacy.AccessToken == "" {
		s.logger.Warn("Discarding unreadable legacy credential", zap.Error(err))
		return core.CredentialSet{}
	}

	slot := core.SlotBasic
	if s.resolve != nil {
		resolved, err := s.resolve(legacy.Scope)
		if err != nil {
			s.logger.Warn("Discarding legacy credential with unknown scope", zap.Error(err))
			return core.CredentialSet{}
		}
		slot = resolved
	}

	lifetime := legacy.ExpiresIn
	if lifetime <= 0 {
		lifetime = core.DefaultLifetimeSeconds
	}

	set := core.CredentialSet{IdentityAssertion: legacy.JWTToken}.With(slot, &core.Credential{
		AccessToken:     legacy.AccessToken,
		RefreshToken:    legacy.RefreshToken,
		IssuedAt:        0,
		LifetimeSeconds: lifetime,
		Scope:           legacy.Scope,
	})

	if err := s.Save(ctx, set); err != nil {
		s.logger.Warn("Failed to persist migrated credential", zap.Error(err))
	}
	s.logger.Info("Migrated legacy credential", zap.String("slot", string(slot)))
	return set
}

func (s *Store) dropLegacy(ctx context.Context) {
	if s.legacyKey != "" {
		s.delete(ctx, s.legacyKey)
	}
}

func (s *Store) delete(ctx context.Context, key string) {
	if err := s.kv.Delete(ctx, key); err != nil {
		s.logger.Warn("Failed to delete stored document", zap.String("key", key), zap.Error(err))
	}
}
