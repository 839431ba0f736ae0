package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Store backends selectable through STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendBolt     = "bolt"
)

var backends = []string{BackendMemory, BackendFile, BackendSQLite, BackendPostgres, BackendBolt}

// Config holds the application configuration loaded from environment variables.
type Config struct {
	// EdgePort is the HTTP port where the edge router listens for incoming requests.
	EdgePort int `env:"EDGE_PORT" envDefault:"4566"`

	// DataDir is the base directory for file, sqlite and bolt stores.
	DataDir string `env:"DATA_DIR" envDefault:"./data"`

	// EnabledServices lists the service names mounted on the edge router.
	EnabledServices []string `env:"ENABLED_SERVICES" envSeparator:"," envDefault:"accounts"`

	// LogLevel controls the verbosity of logging (debug, info, warn, error).
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// StoreBackend picks the record store implementation.
	StoreBackend string `env:"STORE_BACKEND" envDefault:"sqlite"`

	// DatabaseDSN is the Postgres connection string; required for the postgres backend.
	DatabaseDSN string `env:"DATABASE_DSN"`

	// StoreRetries bounds retries of busy SQLite operations.
	StoreRetries int `env:"STORE_RETRIES" envDefault:"5"`
}

// Load creates a Config by reading environment variables.
// Missing values are replaced with defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	enabled := make([]string, 0, len(cfg.EnabledServices))
	for _, s := range cfg.EnabledServices {
		if s = strings.TrimSpace(s); s != "" {
			enabled = append(enabled, s)
		}
	}
	cfg.EnabledServices = enabled
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	return cfg, nil
}

// IsServiceEnabled checks if a given service name is in the EnabledServices list.
func (c *Config) IsServiceEnabled(serviceName string) bool {
	return slices.Contains(c.EnabledServices, serviceName)
}

// Validate performs basic validation on the configuration.
func (c *Config) Validate() error {
	if c.EdgePort <= 0 || c.EdgePort >= 65536 {
		return fmt.Errorf("invalid EDGE_PORT: %d (must be 1-65535)", c.EdgePort)
	}
	if !slices.Contains(backends, c.StoreBackend) {
		return fmt.Errorf("invalid STORE_BACKEND: %q (must be one of %s)", c.StoreBackend, strings.Join(backends, ", "))
	}
	switch c.StoreBackend {
	case BackendFile, BackendSQLite, BackendBolt:
		if c.DataDir == "" {
			return fmt.Errorf("DATA_DIR cannot be empty for the %s backend", c.StoreBackend)
		}
	case BackendPostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN is required for the postgres backend")
		}
	}
	if c.StoreRetries < 0 {
		return fmt.Errorf("invalid STORE_RETRIES: %d", c.StoreRetries)
	}
	return nil
}
