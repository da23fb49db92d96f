package factory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/phish-scanner/internal/adapters/storage"
	"github.com/mikey/phish-scanner/internal/config"
	"github.com/mikey/phish-scanner/internal/core"
	"go.uber.org/zap"
)

// StorageFactory creates key/value stores based on configuration
type StorageFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(cfg *config.Config, logger *zap.Logger) *StorageFactory {
	return &StorageFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateKeyValueStore creates a key/value store based on the configuration
func (f *StorageFactory) CreateKeyValueStore(ctx context.Context) (core.KeyValueStore, error) {
	storageConfig := f.cfg.GetStorage()

	f.logger.Debug("Creating key/value store", zap.String("type", storageConfig.Type))

	switch storageConfig.Type {
	case "memory":
		return storage.NewMemoryStore(f.logger), nil
	case "file":
		return storage.NewFileStore(storageConfig.FileDir, f.logger)
	case "sqlite":
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(storageConfig.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return storage.NewSQLiteStore(storageConfig.SQLitePath, f.logger)
	case "mysql":
		return storage.NewMySQLStore(storageConfig.MySQLDSN, f.logger)
	case "postgres":
		return storage.NewPostgresStore(ctx, storageConfig.PostgresDSN, f.logger)
	case "redis":
		return storage.NewRedisStore(ctx, storageConfig.RedisAddr, storageConfig.RedisPassword,
			storageConfig.RedisDB, storageConfig.RedisPrefix, f.logger)
	case "keyring":
		return storage.NewKeyringStore(storageConfig.KeyringService, storageConfig.KeyringFileDir, f.logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageConfig.Type)
	}
}
