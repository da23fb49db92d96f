package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// AuthConfig represents the identity provider settings used by the client
type AuthConfig struct {
	AuthorizeURL      string
	ClientID          string
	RedirectURL       string
	BasicScope        string
	MailScope         string
	MailScopeMarkers  []string
	BasicScopeMarkers []string
	CallbackTimeout   time.Duration
}

// BackendConfig represents the token/mail backend the client talks to
type BackendConfig struct {
	URL     string
	Path    string
	Timeout time.Duration
}

// SessionConfig represents how the credential set is persisted
type SessionConfig struct {
	Key             string
	LegacyKey       string
	ExpiryBuffer    time.Duration
	DefaultLifetime int64
}

// StorageConfig represents the key/value storage backend
type StorageConfig struct {
	Type           string
	FileDir        string
	SQLitePath     string
	MySQLDSN       string
	PostgresDSN    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisPrefix    string
	KeyringService string
	KeyringFileDir string
}

// ClassifierConfig represents the remote classifier selection
type ClassifierConfig struct {
	Provider string
	URL      string
	Token    string
	Timeout  time.Duration
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// ScanConfig represents the scan pipeline settings
type ScanConfig struct {
	MaxBodyChars int
}

// RelayConfig represents the SMTP relay source
type RelayConfig struct {
	ListenAddress   string
	Domain          string
	MaxMessageBytes int64
}

// ServerConfig represents the backend server settings
type ServerConfig struct {
	ListenAddress      string
	AllowedOrigins     string
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	UserInfoURL        string
	GmailMaxResults    int64
	JWTSecret          string
	JWTTTL             time.Duration
}

// GetAuth returns the identity provider configuration
func (c *Config) GetAuth() AuthConfig {
	return AuthConfig{
		AuthorizeURL:      c.GetString("auth.authorize_url"),
		ClientID:          c.GetString("auth.client_id"),
		RedirectURL:       c.GetString("auth.redirect_url"),
		BasicScope:        c.GetString("auth.basic_scope"),
		MailScope:         c.GetString("auth.mail_scope"),
		MailScopeMarkers:  c.GetStringSlice("auth.mail_scope_markers"),
		BasicScopeMarkers: c.GetStringSlice("auth.basic_scope_markers"),
		CallbackTimeout:   c.durationOr("auth.callback_timeout", 5*time.Minute),
	}
}

// GetBackend returns the backend client configuration
func (c *Config) GetBackend() BackendConfig {
	return BackendConfig{
		URL:     strings.TrimRight(c.GetString("backend.url"), "/"),
		Path:    c.GetString("backend.path"),
		Timeout: c.durationOr("backend.timeout", 30*time.Second),
	}
}

// GetSession returns the session persistence configuration
func (c *Config) GetSession() SessionConfig {
	return SessionConfig{
		Key:             c.GetString("session.key"),
		LegacyKey:       c.GetString("session.legacy_key"),
		ExpiryBuffer:    c.durationOr("session.expiry_buffer", 5*time.Minute),
		DefaultLifetime: int64(c.GetInt("session.default_lifetime")),
	}
}

// GetStorage returns the storage configuration
func (c *Config) GetStorage() StorageConfig {
	return StorageConfig{
		Type:           c.GetString("storage.type"),
		FileDir:        expandPath(c.GetString("storage.file_dir")),
		SQLitePath:     expandPath(c.GetString("storage.sqlite_path")),
		MySQLDSN:       c.GetString("storage.mysql_dsn"),
		PostgresDSN:    c.GetString("storage.postgres_dsn"),
		RedisAddr:      c.GetString("storage.redis_addr"),
		RedisPassword:  c.GetString("storage.redis_password"),
		RedisDB:        c.GetInt("storage.redis_db"),
		RedisPrefix:    c.GetString("storage.redis_prefix"),
		KeyringService: c.GetString("storage.keyring_service"),
		KeyringFileDir: c.GetString("storage.keyring_file_dir"),
	}
}

// GetClassifier returns the classifier configuration
func (c *Config) GetClassifier() ClassifierConfig {
	return ClassifierConfig{
		Provider: c.GetString("classifier.provider"),
		URL:      c.GetString("classifier.url"),
		Token:    c.GetString("classifier.token"),
		Timeout:  c.durationOr("classifier.timeout", 60*time.Second),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		BaseURL:     c.GetString("openai.base_url"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
	}
}

// GetScan returns the scan configuration
func (c *Config) GetScan() ScanConfig {
	return ScanConfig{
		MaxBodyChars: c.GetInt("scan.max_body_chars"),
	}
}

// GetRelay returns the SMTP relay configuration
func (c *Config) GetRelay() RelayConfig {
	return RelayConfig{
		ListenAddress:   c.GetString("relay.listen_address"),
		Domain:          c.GetString("relay.domain"),
		MaxMessageBytes: int64(c.GetInt("relay.max_message_bytes")),
	}
}

// GetServer returns the backend server configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		ListenAddress:      c.GetString("server.listen_address"),
		AllowedOrigins:     c.GetString("server.allowed_origins"),
		GoogleClientID:     c.GetString("google.client_id"),
		GoogleClientSecret: c.GetString("google.client_secret"),
		GoogleRedirectURL:  c.GetString("google.redirect_url"),
		UserInfoURL:        c.GetString("google.userinfo_url"),
		GmailMaxResults:    int64(c.GetInt("gmail.max_results")),
		JWTSecret:          c.GetString("jwt.secret"),
		JWTTTL:             c.durationOr("jwt.ttl", time.Hour),
	}
}

// durationOr parses a duration key, falling back when it is unset or invalid
func (c *Config) durationOr(key string, fallback time.Duration) time.Duration {
	d, err := c.GetDuration(key)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// expandPath expands environment variables and a leading ~ in a path
func expandPath(p string) string {
	p = os.ExpandEnv(p)
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, p[2:])
		}
	}
	return p
}
