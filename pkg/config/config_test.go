package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/Mindburn-Labs/assetrisk/pkg/config"
	"github.com/stretchr/testify/assert"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "LOG_LEVEL", "CATALOG_PATH", "PROFILE_DIR", "RATE_LIMIT_RPS",
		"RATE_LIMIT_BURST", "SESSION_TTL", "BATCH_PARALLELISM", "OTEL_ENABLED",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_INSECURE",
	} {
		t.Setenv(k, "")
	}
}

// TestLoad_Defaults verifies that Load() returns sensible defaults
// when no environment variables are set.
// Invariant: the calculator runs with the embedded catalog and no telemetry.
func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Empty(t, cfg.CatalogPath)
	assert.Equal(t, 20.0, cfg.RateLimitRPS)
	assert.Equal(t, 40, cfg.RateLimitBurst)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 4, cfg.BatchParallelism)
	assert.False(t, cfg.OTelEnabled)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values.
// Invariant: ops control every knob via 12-factor env vars.
func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CATALOG_PATH", "/etc/assetrisk/catalog.yaml")
	t.Setenv("PROFILE_DIR", "/etc/assetrisk/profiles")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("RATE_LIMIT_BURST", "5")
	t.Setenv("SESSION_TTL", "90s")
	t.Setenv("BATCH_PARALLELISM", "16")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_INSECURE", "true")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, "/etc/assetrisk/catalog.yaml", cfg.CatalogPath)
	assert.Equal(t, "/etc/assetrisk/profiles", cfg.ProfileDir)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
	assert.Equal(t, 5, cfg.RateLimitBurst)
	assert.Equal(t, 90*time.Second, cfg.SessionTTL)
	assert.Equal(t, 16, cfg.BatchParallelism)
	assert.True(t, cfg.OTelEnabled)
	assert.True(t, cfg.OTelInsecure)
	assert.Equal(t, "collector:4317", cfg.OTLPEndpoint)
}

// Invariant: a typo in one variable never prevents boot.
func TestLoad_MalformedValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("RATE_LIMIT_RPS", "fast")
	t.Setenv("RATE_LIMIT_BURST", "-3")
	t.Setenv("SESSION_TTL", "30")
	t.Setenv("BATCH_PARALLELISM", "0")
	t.Setenv("LOG_LEVEL", "chatty")

	cfg := config.Load()

	assert.Equal(t, 20.0, cfg.RateLimitRPS)
	assert.Equal(t, 40, cfg.RateLimitBurst)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 4, cfg.BatchParallelism)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}
