package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/cashflow-ai-go/internal/config"
	"github.com/irfndi/cashflow-ai-go/internal/telemetry"
)

func TestTelemetryConfig(t *testing.T) {
	cfg := &config.Config{
		Environment: "staging",
		Telemetry: config.TelemetryConfig{
			Enabled:      true,
			Exporter:     "stdout",
			OTLPEndpoint: "https://collector.internal:4318",
			ServiceName:  "cashflow-staging",
			SampleRate:   0.5,
		},
	}

	tc := telemetryConfig(cfg)
	assert.True(t, tc.Enabled)
	assert.Equal(t, telemetry.ExporterStdout, tc.Exporter)
	assert.Equal(t, "https://collector.internal:4318", tc.OTLPEndpoint)
	assert.Equal(t, "cashflow-staging", tc.ServiceName)
	assert.Equal(t, "staging", tc.Environment)
	assert.Equal(t, 0.5, tc.SampleRate)
	assert.Equal(t, telemetry.ServiceVersion, tc.ServiceVersion)
}

func TestTelemetryConfig_Defaults(t *testing.T) {
	tc := telemetryConfig(&config.Config{})
	assert.False(t, tc.Enabled)
	assert.Equal(t, telemetry.ExporterOTLP, tc.Exporter)
	assert.Equal(t, telemetry.ServiceName, tc.ServiceName)
	assert.Equal(t, "http://localhost:4318", tc.OTLPEndpoint)
}

func TestOTLPLogConfig(t *testing.T) {
	cfg := &config.Config{
		Environment: "production",
		LogLevel:    "warn",
		Telemetry: config.TelemetryConfig{
			Enabled:      true,
			OTLPEndpoint: "http://otel-collector:4318",
		},
	}

	lc := otlpLogConfig(cfg)
	assert.False(t, lc.Enabled, "log export needs otlp_logs_enabled")
	assert.Equal(t, "otel-collector:4318", lc.Endpoint)
	assert.Equal(t, telemetry.ServiceName, lc.ServiceName)
	assert.Equal(t, "warn", lc.LogLevel)

	cfg.Telemetry.OTLPLogsEnabled = true
	assert.True(t, otlpLogConfig(cfg).Enabled)
}

func TestNewRegistry(t *testing.T) {
	families, err := newRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["go_goroutines"])
}
