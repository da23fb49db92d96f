package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/99designs/keyring"
	"github.com/mikey/phish-scanner/internal/core"
	"go.uber.org/zap"
)

// KeyringStore keeps values in the operating system keyring, falling back
// to an encrypted file backend where no native keyring exists.
type KeyringStore struct {
	ring   keyring.Keyring
	logger *zap.Logger
}

// NewKeyringStore opens the keyring for service
func NewKeyringStore(service, fileDir string, logger *zap.Logger) (*KeyringStore, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: service,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(service + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}

	return NewKeyringStoreFromRing(ring, logger), nil
}

// NewKeyringStoreFromRing wraps an already opened keyring
func NewKeyringStoreFromRing(ring keyring.Keyring, logger *zap.Logger) *KeyringStore {
	return &KeyringStore{
		ring:   ring,
		logger: logger,
	}
}

// Get retrieves the value stored under key
func (s *KeyringStore) Get(ctx context.Context, key string) ([]byte, error) {
	item, err := s.ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %q from keyring: %w", key, err)
	}
	return item.Data, nil
}

// Set stores value under key
func (s *KeyringStore) Set(ctx context.Context, key string, value []byte) error {
	err := s.ring.Set(keyring.Item{
		Key:   key,
		Data:  value,
		Label: key,
	})
	if err != nil {
		return fmt.Errorf("failed to set %q in keyring: %w", key, err)
	}
	return nil
}

// Delete removes key
func (s *KeyringStore) Delete(ctx context.Context, key string) error {
	if err := s.ring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete %q from keyring: %w", key, err)
	}
	return nil
}

// Close is a no-op; the keyring holds no open handles
func (s *KeyringStore) Close() error {
	return nil
}
