package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teemow/mailsense/internal/config"
)

func TestApplyServeOverrides(t *testing.T) {
	base := func() *config.Config {
		return &config.Config{
			Addr:           ":8080",
			BaseURL:        "http://localhost:8080",
			MetricsAddr:    ":9090",
			AllowedOrigins: []string{"https://env.example.com"},
		}
	}

	tests := []struct {
		name string
		opts serveOptions
		want func(*config.Config)
	}{
		{
			name: "unset flags keep the loaded values",
			opts: serveOptions{},
			want: func(*config.Config) {},
		},
		{
			name: "allowed origins replace the environment list",
			opts: serveOptions{allowedOrigins: "https://app.example.com, http://localhost:3000"},
			want: func(c *config.Config) {
				c.AllowedOrigins = []string{"https://app.example.com", "http://localhost:3000"}
			},
		},
		{
			name: "blank origins flag keeps the environment list",
			opts: serveOptions{allowedOrigins: " , ,"},
			want: func(*config.Config) {},
		},
		{
			name: "base url loses its trailing slash",
			opts: serveOptions{baseURL: "https://mailsense.example.com/"},
			want: func(c *config.Config) { c.BaseURL = "https://mailsense.example.com" },
		},
		{
			name: "addresses",
			opts: serveOptions{addr: ":8181", metrics: MetricsConfig{Addr: ":9191"}},
			want: func(c *config.Config) {
				c.Addr = ":8181"
				c.MetricsAddr = ":9191"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := base()
			applyServeOverrides(got, tt.opts)

			want := base()
			tt.want(want)
			assert.Equal(t, want, got)
		})
	}
}
