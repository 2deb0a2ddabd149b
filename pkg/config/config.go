package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds process configuration for the CLI and the server.
type Config struct {
	Port             string
	LogLevel         string
	CatalogPath      string
	ProfileDir       string
	RateLimitRPS     float64
	RateLimitBurst   int
	SessionTTL       time.Duration
	BatchParallelism int
	OTelEnabled      bool
	OTLPEndpoint     string
	OTelInsecure     bool
}

// Load loads configuration from environment variables. Malformed numeric
// values are logged and replaced by their defaults.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := strings.ToUpper(os.Getenv("LOG_LEVEL"))
	if logLevel == "" {
		logLevel = "INFO"
	}

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:4317"
	}

	return &Config{
		Port:             port,
		LogLevel:         logLevel,
		CatalogPath:      os.Getenv("CATALOG_PATH"), // empty: embedded catalog
		ProfileDir:       os.Getenv("PROFILE_DIR"),
		RateLimitRPS:     envFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:   envInt("RATE_LIMIT_BURST", 40),
		SessionTTL:       envDuration("SESSION_TTL", 30*time.Minute),
		BatchParallelism: envInt("BATCH_PARALLELISM", 4),
		OTelEnabled:      os.Getenv("OTEL_ENABLED") == "true",
		OTLPEndpoint:     endpoint,
		OTelInsecure:     os.Getenv("OTEL_INSECURE") == "true",
	}
}

// SlogLevel maps LogLevel onto slog. Unknown names mean INFO.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		slog.Warn("ignoring invalid config value", "key", key, "value", raw)
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || !(f > 0) {
		slog.Warn("ignoring invalid config value", "key", key, "value", raw)
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		slog.Warn("ignoring invalid config value", "key", key, "value", raw)
		return def
	}
	return d
}
