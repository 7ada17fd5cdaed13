package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/mailsense/internal/session"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MAILSENSE_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, session.BackendFile, cfg.SessionBackend)
	assert.Equal(t, 2*time.Second, cfg.Auth.PollInterval)
	assert.Equal(t, 120*time.Second, cfg.Auth.Timeout)
	assert.Equal(t, session.DefaultKeyPrefix, cfg.Valkey.KeyPrefix)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MAILSENSE_DATA_DIR", "/srv/mailsense")
	t.Setenv("MAILSENSE_BASE_URL", "https://mail.example.com")
	t.Setenv("MAILSENSE_SESSION_BACKEND", "valkey")
	t.Setenv("VALKEY_URL", "valkey:6379")
	t.Setenv("VALKEY_DB", "2")
	t.Setenv("MAILSENSE_AUTH_TIMEOUT", "30s")
	t.Setenv("MAILSENSE_ALLOWED_ORIGINS", "app.example.com, ,*.example.org")
	t.Setenv("MAILSENSE_DEBUG", "yes")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Auth.Timeout)
	assert.Equal(t, []string{"app.example.com", "*.example.org"}, cfg.AllowedOrigins)
	assert.True(t, cfg.Debug)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, filepath.Join("/srv/mailsense", "tokens"), cfg.TokensDir())

	opts := cfg.SessionOptions()
	assert.Equal(t, "valkey:6379", opts.Valkey.Addr)
	assert.Equal(t, 2, opts.Valkey.DB)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			BaseURL:        "http://localhost:8080",
			DataDir:        "/tmp/x",
			SessionBackend: session.BackendMemory,
			OpenAI:         OpenAIConfig{MaxTokens: 1},
			Auth:           AuthConfig{PollInterval: time.Second, Timeout: time.Minute},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative base url", func(c *Config) { c.BaseURL = "/app" }},
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"unknown backend", func(c *Config) { c.SessionBackend = "etcd" }},
		{"valkey without address", func(c *Config) { c.SessionBackend = session.BackendValkey }},
		{"zero poll interval", func(c *Config) { c.Auth.PollInterval = 0 }},
		{"timeout shorter than poll", func(c *Config) { c.Auth.Timeout = time.Second }},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRequireGoogle(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.RequireGoogle())
	cfg.Google = GoogleConfig{ClientID: "id", ClientSecret: "secret"}
	assert.NoError(t, cfg.RequireGoogle())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("MAILSENSE_TEST_DOTENV=from-file\n"), 0o600))

	t.Setenv("MAILSENSE_TEST_DOTENV", "")
	os.Unsetenv("MAILSENSE_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("MAILSENSE_TEST_DOTENV"))
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList(""))
	assert.Nil(t, SplitList(" , ,"))
	assert.Equal(t, []string{"a.example.com", "b.example.com"}, SplitList(",a.example.com,, b.example.com ,"))
}
