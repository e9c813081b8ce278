// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Model
	ModelPath string

	// Rate limiting, per client IP
	RateLimitRPM   int
	RateLimitBurst int

	// StrictErrorStatus maps server-side failures to 5xx. When false every
	// failed request is a 400.
	StrictErrorStatus bool

	// Observability
	OTLPEndpoint string // empty disables tracing

	// ShutdownDrain is how long the server reports not-ready before it
	// stops accepting connections.
	ShutdownDrain time.Duration
}

const (
	DefaultPort           = "8000"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultModelPath      = "models/fraud_detection_model.json"
	DefaultRateLimitRPM   = 600
	DefaultRateLimitBurst = 50
	DefaultShutdownDrain  = 5 * time.Second
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:         getEnv("LOG_FORMAT", DefaultLogFormat),
		ModelPath:         getEnv("MODEL_PATH", DefaultModelPath),
		RateLimitRPM:      int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitRPM)),
		RateLimitBurst:    int(getEnvInt64("RATE_LIMIT_BURST", DefaultRateLimitBurst)),
		StrictErrorStatus: getEnvBool("STRICT_ERROR_STATUS", false),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ShutdownDrain:     getEnvDuration("SHUTDOWN_DRAIN", DefaultShutdownDrain),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the configuration Load would produce with an empty
// environment.
func Default() *Config {
	return &Config{
		Port:           DefaultPort,
		Env:            DefaultEnv,
		LogLevel:       DefaultLogLevel,
		LogFormat:      DefaultLogFormat,
		ModelPath:      DefaultModelPath,
		RateLimitRPM:   DefaultRateLimitRPM,
		RateLimitBurst: DefaultRateLimitBurst,
		ShutdownDrain:  DefaultShutdownDrain,
	}
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if p, err := strconv.Atoi(c.Port); err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", c.Port)
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}

	if c.ModelPath == "" {
		return fmt.Errorf("MODEL_PATH is required")
	}

	if c.RateLimitRPM < 0 {
		return fmt.Errorf("RATE_LIMIT_RPM must not be negative")
	}
	if c.RateLimitRPM > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_BURST must be at least 1 when rate limiting is enabled")
	}

	if c.ShutdownDrain < 0 {
		return fmt.Errorf("SHUTDOWN_DRAIN must not be negative")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
