// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/teemow/mailsense/internal/session"
)

// Config holds all application configuration.
type Config struct {
	Addr           string
	BaseURL        string
	MetricsAddr    string
	DataDir        string
	SessionBackend string
	AllowedOrigins []string
	LogFormat      string
	Debug          bool

	Valkey ValkeyConfig
	Google GoogleConfig
	OpenAI OpenAIConfig
	Auth   AuthConfig
}

// ValkeyConfig configures the Valkey session backend and event relay.
type ValkeyConfig struct {
	Addr      string
	Password  string
	TLS       bool
	KeyPrefix string
	DB        int
}

// GoogleConfig holds the OAuth client credentials.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
}

// OpenAIConfig configures the language model.
type OpenAIConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int64
}

// AuthConfig tunes the authorization flow.
type AuthConfig struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// LoadDotEnv loads variables from the given .env files, or ./.env when none
// are given. Missing files are ignored and existing variables win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Addr:           getEnv("MAILSENSE_ADDR", ":8080"),
		BaseURL:        getEnv("MAILSENSE_BASE_URL", "http://localhost:8080"),
		MetricsAddr:    getEnv("METRICS_ADDR", ":9090"),
		DataDir:        getEnv("MAILSENSE_DATA_DIR", defaultDataDir()),
		SessionBackend: getEnv("MAILSENSE_SESSION_BACKEND", session.BackendFile),
		AllowedOrigins: getEnvList("MAILSENSE_ALLOWED_ORIGINS"),
		LogFormat:      getEnv("MAILSENSE_LOG_FORMAT", "text"),
		Debug:          getEnvBool("MAILSENSE_DEBUG", false),
		Valkey: ValkeyConfig{
			Addr:      getEnv("VALKEY_URL", ""),
			Password:  getEnv("VALKEY_PASSWORD", ""),
			TLS:       getEnvBool("VALKEY_TLS_ENABLED", false),
			KeyPrefix: getEnv("VALKEY_KEY_PREFIX", session.DefaultKeyPrefix),
			DB:        getEnvInt("VALKEY_DB", 0),
		},
		Google: GoogleConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		},
		OpenAI: OpenAIConfig{
			APIKey:    getEnv("OPENAI_API_KEY", ""),
			Model:     getEnv("OPENAI_MODEL", "gpt-4o"),
			BaseURL:   getEnv("OPENAI_BASE_URL", ""),
			MaxTokens: int64(getEnvInt("OPENAI_MAX_TOKENS", 4096)),
		},
		Auth: AuthConfig{
			PollInterval: getEnvDuration("MAILSENSE_AUTH_POLL_INTERVAL", 2*time.Second),
			Timeout:      getEnvDuration("MAILSENSE_AUTH_TIMEOUT", 120*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("MAILSENSE_DATA_DIR cannot be empty")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("MAILSENSE_BASE_URL must be an absolute http(s) URL, got %q", c.BaseURL)
	}
	switch c.SessionBackend {
	case session.BackendMemory, session.BackendFile, session.BackendSQLite:
	case session.BackendValkey:
		if c.Valkey.Addr == "" {
			return fmt.Errorf("VALKEY_URL is required for the valkey session backend")
		}
	default:
		return fmt.Errorf("unsupported MAILSENSE_SESSION_BACKEND %q (supported: memory, file, sqlite, valkey)", c.SessionBackend)
	}
	if c.Auth.PollInterval <= 0 {
		return fmt.Errorf("MAILSENSE_AUTH_POLL_INTERVAL must be > 0")
	}
	if c.Auth.Timeout <= c.Auth.PollInterval {
		return fmt.Errorf("MAILSENSE_AUTH_TIMEOUT must be longer than the poll interval")
	}
	if c.OpenAI.MaxTokens <= 0 {
		return fmt.Errorf("OPENAI_MAX_TOKENS must be > 0")
	}
	return nil
}

// RequireGoogle checks the OAuth client credentials.
func (c *Config) RequireGoogle() error {
	if c.Google.ClientID == "" || c.Google.ClientSecret == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set")
	}
	return nil
}

// SessionOptions returns the session store options.
func (c *Config) SessionOptions() session.Options {
	return session.Options{
		Backend: c.SessionBackend,
		DataDir: c.DataDir,
		Valkey: session.ValkeyConfig{
			Addr:       c.Valkey.Addr,
			Password:   c.Valkey.Password,
			TLSEnabled: c.Valkey.TLS,
			KeyPrefix:  c.Valkey.KeyPrefix,
			DB:         c.Valkey.DB,
		},
	}
}

// TokensDir is where OAuth tokens are kept.
func (c *Config) TokensDir() string {
	return filepath.Join(c.DataDir, "tokens")
}

// IsDevelopment returns true when the server is only reachable locally.
func (c *Config) IsDevelopment() bool {
	return strings.Contains(c.BaseURL, "localhost") ||
		strings.Contains(c.BaseURL, "127.0.0.1")
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(dir, "mailsense")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string) []string {
	return SplitList(os.Getenv(key))
}

// SplitList splits a comma-separated list, dropping blank items. It returns
// nil when no item remains.
func SplitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
