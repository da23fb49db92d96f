package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/phish-scanner/internal/backend"
	"github.com/mikey/phish-scanner/internal/config"
	"github.com/mikey/phish-scanner/internal/logging"
	"github.com/mikey/phish-scanner/internal/utils"
)

// provideSections registers the typed configuration sections
func provideSections(container *dig.Container) error {
	sections := []interface{}{
		(*config.Config).GetAuth,
		(*config.Config).GetBackend,
		(*config.Config).GetSession,
		(*config.Config).GetScan,
		(*config.Config).GetRelay,
		(*config.Config).GetServer,
	}
	for _, section := range sections {
		if err := container.Provide(section); err != nil {
			return err
		}
	}
	return nil
}

// BuildBackendContainer creates and configures a dependency injection
// container for the backend server
func BuildBackendContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := provideSections(container); err != nil {
		return nil, err
	}

	// Register text processor
	if err := container.Provide(utils.NewTextProcessor); err != nil {
		return nil, err
	}

	// Register identity provider
	if err := container.Provide(func(cfg config.ServerConfig) backend.TokenProvider {
		return backend.NewGoogleProvider(cfg)
	}); err != nil {
		return nil, err
	}

	// Register mailbox reader
	if err := container.Provide(func(cfg config.ServerConfig, tp *utils.TextProcessor, logger *zap.Logger) backend.MailboxReader {
		return backend.NewGmailReader(cfg.GmailMaxResults, tp, logger)
	}); err != nil {
		return nil, err
	}

	// Register identity assertion issuer
	if err := container.Provide(func(cfg config.ServerConfig) (*backend.Issuer, error) {
		return backend.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	}); err != nil {
		return nil, err
	}

	// Register server
	if err := container.Provide(backend.NewServer); err != nil {
		return nil, err
	}

	return container, nil
}
