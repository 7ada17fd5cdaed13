package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/mailsense/internal/instrumentation"
)

func prometheusProvider(t *testing.T) *instrumentation.Provider {
	t.Helper()
	provider, err := instrumentation.NewProvider(context.Background(), instrumentation.Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: "prometheus",
		TracingExporter: "none",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider
}

func disabledProvider(t *testing.T) *instrumentation.Provider {
	t.Helper()
	provider, err := instrumentation.NewProvider(context.Background(), instrumentation.Config{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Enabled:        false,
	})
	require.NoError(t, err)
	return provider
}

func TestNewMetricsServer(t *testing.T) {
	tests := []struct {
		name        string
		config      func(t *testing.T) MetricsServerConfig
		errContains string
	}{
		{
			name: "valid config",
			config: func(t *testing.T) MetricsServerConfig {
				return MetricsServerConfig{Addr: ":9091", InstrumentationProvider: prometheusProvider(t)}
			},
		},
		{
			name: "default addr",
			config: func(t *testing.T) MetricsServerConfig {
				return MetricsServerConfig{InstrumentationProvider: prometheusProvider(t)}
			},
		},
		{
			name: "nil provider",
			config: func(*testing.T) MetricsServerConfig {
				return MetricsServerConfig{Addr: ":9090"}
			},
			errContains: "instrumentation provider is required",
		},
		{
			name: "disabled provider",
			config: func(t *testing.T) MetricsServerConfig {
				return MetricsServerConfig{Addr: ":9090", InstrumentationProvider: disabledProvider(t)}
			},
			errContains: "instrumentation provider is not enabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, err := NewMetricsServer(tt.config(t))
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, srv.Addr())
		})
	}
}

func TestMetricsServer_Routes(t *testing.T) {
	provider := prometheusProvider(t)
	provider.Metrics().RecordFlowStarted(context.Background())
	srv, err := NewMetricsServer(MetricsServerConfig{InstrumentationProvider: provider})
	require.NoError(t, err)
	assert.Equal(t, DefaultMetricsAddr, srv.Addr())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "auth_flows_started")
}

func TestMetricsServer_ShutdownWithoutStart(t *testing.T) {
	srv, err := NewMetricsServer(MetricsServerConfig{InstrumentationProvider: prometheusProvider(t)})
	require.NoError(t, err)
	assert.NoError(t, srv.Shutdown(context.Background()))
}
