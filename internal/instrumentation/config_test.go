package instrumentation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "")
	t.Setenv("INSTRUMENTATION_ENABLED", "")
	t.Setenv("METRICS_EXPORTER", "")
	t.Setenv("TRACING_EXPORTER", "")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "")

	cfg := DefaultConfig()

	assert.Equal(t, "mailsense", cfg.ServiceName)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, ExporterPrometheus, cfg.MetricsExporter)
	assert.Equal(t, ExporterNone, cfg.TracingExporter)
	assert.InDelta(t, 0.1, cfg.TraceSamplingRate, 0.0001)
	require.NoError(t, cfg.Validate())
}

func TestDefaultConfig_FromEnv(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "mailsense-test")
	t.Setenv("INSTRUMENTATION_ENABLED", "false")
	t.Setenv("METRICS_EXPORTER", "stdout")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "not-a-float")

	cfg := DefaultConfig()

	assert.Equal(t, "mailsense-test", cfg.ServiceName)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, ExporterStdout, cfg.MetricsExporter)
	assert.InDelta(t, 0.1, cfg.TraceSamplingRate, 0.0001)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "valid",
			cfg:  Config{MetricsExporter: ExporterPrometheus, TracingExporter: ExporterNone, TraceSamplingRate: 0.5},
		},
		{
			name:    "sampling rate out of range",
			cfg:     Config{TraceSamplingRate: 1.5},
			wantErr: "sampling rate",
		},
		{
			name:    "unknown metrics exporter",
			cfg:     Config{MetricsExporter: "statsd"},
			wantErr: "invalid metrics exporter",
		},
		{
			name:    "unknown tracing exporter",
			cfg:     Config{TracingExporter: "zipkin"},
			wantErr: "invalid tracing exporter",
		},
		{
			name:    "otlp tracing without endpoint",
			cfg:     Config{TracingExporter: ExporterOTLP},
			wantErr: "OTLP endpoint is required",
		},
		{
			name:    "otlp metrics without endpoint",
			cfg:     Config{MetricsExporter: ExporterOTLP},
			wantErr: "OTLP endpoint is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
