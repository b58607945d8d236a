package telemetry_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/aqforecast/aqforecast/internal/telemetry"
)

func TestInit_Disabled(t *testing.T) {
	ctx := context.Background()

	provider, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "aqforecast-test",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		OTLPEndpoint:   "localhost:4317",
		Enabled:        false,
	})

	require.NoError(t, err)
	assert.False(t, provider.Enabled())
	assert.Nil(t, provider.TracerProvider)
	assert.Nil(t, provider.MeterProvider)
	assert.NoError(t, provider.Shutdown(ctx))
}

func TestProvider_Shutdown_NilProviders(t *testing.T) {
	provider := &telemetry.Provider{}
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestAttributes(t *testing.T) {
	attrs := attribute.NewSet(telemetry.Attributes(telemetry.Config{
		ServiceName:    "aqforecast",
		ServiceVersion: "1.2.0",
		Environment:    "production",
		Sources:        []string{"DoS Missions", "AERONET"},
	})...)

	name, ok := attrs.Value(semconv.ServiceNameKey)
	require.True(t, ok)
	assert.Equal(t, "aqforecast", name.AsString())

	sources, ok := attrs.Value(telemetry.SourcesAttribute)
	require.True(t, ok)
	assert.Equal(t, []string{"DoS Missions", "AERONET"}, sources.AsStringSlice())

	bare := attribute.NewSet(telemetry.Attributes(telemetry.Config{ServiceName: "aqforecast"})...)
	assert.False(t, bare.HasValue(telemetry.SourcesAttribute))
}

func TestSampler(t *testing.T) {
	assert.Contains(t, telemetry.Sampler(0).Description(), "AlwaysOnSampler")
	assert.Contains(t, telemetry.Sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, telemetry.Sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestNewLogger(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	var buf bytes.Buffer
	logger, err := telemetry.NewLogger(telemetry.LogConfig{
		ServiceName:    "aqforecast",
		ServiceVersion: "dev",
		Level:          "warn",
	}, &buf)
	require.NoError(t, err)

	logger.Info().Msg("dropped")
	logger.Warn().Str("source", "AERONET").Msg("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "aqforecast", entry["service"])
	assert.Equal(t, "AERONET", entry["source"])
}

func TestNewLogger_BadLevel(t *testing.T) {
	_, err := telemetry.NewLogger(telemetry.LogConfig{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestNewLogger_Pretty(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	var buf bytes.Buffer
	logger, err := telemetry.NewLogger(telemetry.LogConfig{Level: "info", Pretty: true}, &buf)
	require.NoError(t, err)

	logger.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.NotContains(t, buf.String(), `"message"`)
}
