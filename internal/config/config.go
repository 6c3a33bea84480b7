// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all server configuration.
//
// The WebSocket bind address is intentionally absent: it is the single
// positional command-line argument, not an environment variable. The
// environment governs logging verbosity and the observability endpoint.
type Config struct {
	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Observability. An empty address disables the metrics listener.
	MetricsAddr     string        `env:"FLOW_METRICS_ADDR" envDefault:":9100"`
	MetricsInterval time.Duration `env:"FLOW_METRICS_INTERVAL" envDefault:"15s"`
}

// Load reads configuration from an optional .env file and the
// environment. Priority: environment variables > .env file > defaults.
func Load() (*Config, error) {
	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks enum fields for typos before the server starts.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}

	validFormats := map[string]bool{"json": true, "pretty": true}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, pretty (got: %s)", c.LogFormat)
	}

	if c.MetricsInterval <= 0 {
		return fmt.Errorf("FLOW_METRICS_INTERVAL must be > 0, got %s", c.MetricsInterval)
	}
	return nil
}
