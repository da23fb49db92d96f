package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/phish-scanner/")
	v.AddConfigPath("$HOME/.phish-scanner")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("PHISH_SCANNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromFile creates a configuration instance from an explicit file path
func NewFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("PHISH_SCANNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Identity provider
	v.SetDefault("auth.authorize_url", "https://accounts.google.com/o/oauth2/v2/auth")
	v.SetDefault("auth.client_id", "")
	v.SetDefault("auth.redirect_url", "http://localhost:3000/redirect")
	v.SetDefault("auth.basic_scope", "openid https://www.googleapis.com/auth/userinfo.email https://www.googleapis.com/auth/userinfo.profile")
	v.SetDefault("auth.mail_scope", "https://www.googleapis.com/auth/gmail.readonly")
	v.SetDefault("auth.mail_scope_markers", []string{"gmail.readonly", "gmail.modify", "mail.google.com"})
	v.SetDefault("auth.basic_scope_markers", []string{"userinfo.email", "userinfo.profile", "openid"})
	v.SetDefault("auth.callback_timeout", "5m")

	// Token/mail backend
	v.SetDefault("backend.url", "http://127.0.0.1:8000")
	v.SetDefault("backend.path", "/api/auth/provider/")
	v.SetDefault("backend.timeout", "30s")

	// Persisted session
	v.SetDefault("session.key", "phish_scanner_session")
	v.SetDefault("session.legacy_key", "phish_scanner_token")
	v.SetDefault("session.expiry_buffer", "5m")
	// Assumed lifetime when the provider omits expires_in.
	v.SetDefault("session.default_lifetime", 3600)

	// Storage defaults
	v.SetDefault("storage.type", "file")
	v.SetDefault("storage.file_dir", "$HOME/.phish-scanner/state")
	v.SetDefault("storage.sqlite_path", "$HOME/.phish-scanner/state.db")
	v.SetDefault("storage.mysql_dsn", "user:password@tcp(localhost:3306)/phish_scanner")
	v.SetDefault("storage.postgres_dsn", "postgres://localhost:5432/phish_scanner")
	v.SetDefault("storage.redis_addr", "localhost:6379")
	v.SetDefault("storage.redis_password", "")
	v.SetDefault("storage.redis_db", 0)
	v.SetDefault("storage.redis_prefix", "phish-scanner:")
	v.SetDefault("storage.keyring_service", "phish-scanner")
	v.SetDefault("storage.keyring_file_dir", "~/.phish-scanner/keyring")

	// Classifier defaults
	v.SetDefault("classifier.provider", "http")
	v.SetDefault("classifier.url", "")
	v.SetDefault("classifier.token", "")
	v.SetDefault("classifier.timeout", "60s")

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model_name", "gpt-4")
	v.SetDefault("openai.max_tokens", 300)
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.top_p", 0.9)

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-pro")
	v.SetDefault("gemini.max_tokens", 300)
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.top_p", 0.9)

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-v2")
	v.SetDefault("bedrock.max_tokens", 300)
	v.SetDefault("bedrock.temperature", 0.1)
	v.SetDefault("bedrock.top_p", 0.9)

	// Scan defaults
	v.SetDefault("scan.max_body_chars", 1000)

	// SMTP relay source
	v.SetDefault("relay.listen_address", "127.0.0.1:2525")
	v.SetDefault("relay.domain", "localhost")
	v.SetDefault("relay.max_message_bytes", 10*1024*1024)

	// Backend server defaults
	v.SetDefault("server.listen_address", "127.0.0.1:8000")
	v.SetDefault("server.allowed_origins", "http://localhost:3000")
	v.SetDefault("google.client_id", "")
	v.SetDefault("google.client_secret", "")
	v.SetDefault("google.redirect_url", "http://localhost:3000/redirect")
	v.SetDefault("google.userinfo_url", "https://www.googleapis.com/oauth2/v3/userinfo")
	v.SetDefault("gmail.max_results", 40)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.ttl", "1h")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
