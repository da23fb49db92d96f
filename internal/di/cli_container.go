package di

import (
	"context"
	"flag"
	"io"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/phish-scanner/internal/adapters/authapi"
	"github.com/mikey/phish-scanner/internal/authflow"
	"github.com/mikey/phish-scanner/internal/cli"
	"github.com/mikey/phish-scanner/internal/config"
	"github.com/mikey/phish-scanner/internal/core"
	"github.com/mikey/phish-scanner/internal/credential"
	"github.com/mikey/phish-scanner/internal/factory"
	"github.com/mikey/phish-scanner/internal/logging"
	"github.com/mikey/phish-scanner/internal/scan"
	"github.com/mikey/phish-scanner/internal/source"
	"github.com/mikey/phish-scanner/internal/source/relay"
	"github.com/mikey/phish-scanner/internal/tokenstore"
	"github.com/mikey/phish-scanner/internal/utils"
)

// CLIFlags contains the global command line flags
type CLIFlags struct {
	ConfigFile string
	Verbose    bool
	JSONLog    bool

	// Overrides of configuration keys; empty means keep the configured value
	Storage       string
	BackendURL    string
	Provider      string
	ClassifierURL string
	MaxBodyChars  int
}

// ParseFlags parses the global flags in args and returns the remaining
// arguments (the command and its own flags).
func ParseFlags(args []string, output io.Writer) (*CLIFlags, []string, error) {
	flags := &CLIFlags{}
	fs := flag.NewFlagSet("phish-scanner", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&flags.ConfigFile, "config", "", "Path to config file")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")

	fs.StringVar(&flags.Storage, "storage", "", "Session storage (memory, file, sqlite, mysql, postgres, redis, keyring)")
	fs.StringVar(&flags.BackendURL, "backend", "", "Token/mail backend URL")
	fs.StringVar(&flags.Provider, "provider", "", "Classifier provider (http, openai, gemini, bedrock)")
	fs.StringVar(&flags.ClassifierURL, "classifier-url", "", "Inference endpoint URL for the http provider")
	fs.IntVar(&flags.MaxBodyChars, "max-body-chars", 0, "Maximum body characters sent to the classifier")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return flags, fs.Args(), nil
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		cfg, err := loadConfig(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		if used := cfg.GetViper().ConfigFileUsed(); used != "" {
			logger.Debug("Loaded configuration from file", zap.String("file", used))
		}
		applyFlagOverrides(cfg, flags)
		return cfg, nil
	}); err != nil {
		return nil, err
	}

	if err := provideSections(container); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewStorageFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewClassifierFactory); err != nil {
		return nil, err
	}

	// Register text processor
	if err := container.Provide(utils.NewTextProcessor); err != nil {
		return nil, err
	}

	// Register key/value store
	if err := container.Provide(func(f *factory.StorageFactory) (core.KeyValueStore, error) {
		return f.CreateKeyValueStore(context.Background())
	}); err != nil {
		return nil, err
	}

	// Register backend client, which exchanges codes, refreshes tokens and
	// reads the mailbox
	if err := container.Provide(authapi.NewClient); err != nil {
		return nil, err
	}

	// Register session persistence; legacy documents are migrated into the
	// slot their scope names
	if err := container.Provide(func(kv core.KeyValueStore, auth config.AuthConfig, session config.SessionConfig, logger *zap.Logger) *tokenstore.Store {
		scopes := authflow.NewScopeMatcher(auth.MailScopeMarkers, auth.BasicScopeMarkers)
		return tokenstore.New(kv, session, scopes.Slot, logger)
	}); err != nil {
		return nil, err
	}

	// Register credential lifecycle
	if err := container.Provide(func(store *tokenstore.Store, client *authapi.Client, session config.SessionConfig, logger *zap.Logger) *credential.Lifecycle {
		return credential.NewLifecycle(store, client, session, logger)
	}); err != nil {
		return nil, err
	}

	// Register authorization flow
	if err := container.Provide(func(auth config.AuthConfig, lifecycle *credential.Lifecycle, client *authapi.Client, logger *zap.Logger) *authflow.Flow {
		return authflow.NewFlow(auth, lifecycle, client, logger)
	}); err != nil {
		return nil, err
	}

	// Register email sources
	if err := container.Provide(func(lifecycle *credential.Lifecycle, client *authapi.Client, logger *zap.Logger) *source.RemoteMailSource {
		return source.NewRemoteMailSource(lifecycle, client, logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(source.NewLocalTableSource); err != nil {
		return nil, err
	}
	if err := container.Provide(relay.NewSource); err != nil {
		return nil, err
	}
	if err := container.Provide(func(logger *zap.Logger, remote *source.RemoteMailSource, table *source.LocalTableSource, relaySource *relay.Source) *source.Manager {
		return source.NewManager(logger, remote, table, relaySource)
	}); err != nil {
		return nil, err
	}

	// Register classifier
	if err := container.Provide(func(f *factory.ClassifierFactory) (core.Classifier, error) {
		return f.CreateClassifier()
	}); err != nil {
		return nil, err
	}

	// Register scan pipeline
	if err := container.Provide(scan.NewPipeline); err != nil {
		return nil, err
	}

	// Register the command runner
	if err := container.Provide(cli.NewApp); err != nil {
		return nil, err
	}

	return container, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.NewFromFile(path)
	}
	return config.New()
}

// applyFlagOverrides sets the configuration keys named by non-empty flags
func applyFlagOverrides(cfg *config.Config, flags *CLIFlags) {
	v := cfg.GetViper()
	if flags.Storage != "" {
		v.Set("storage.type", flags.Storage)
	}
	if flags.BackendURL != "" {
		v.Set("backend.url", flags.BackendURL)
	}
	if flags.Provider != "" {
		v.Set("classifier.provider", flags.Provider)
	}
	if flags.ClassifierURL != "" {
		v.Set("classifier.url", flags.ClassifierURL)
	}
	if flags.MaxBodyChars > 0 {
		v.Set("scan.max_body_chars", flags.MaxBodyChars)
	}
}
