// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config is the process configuration, loaded once at startup.
type Config struct {
	// StoreBackend selects the event store: "memory" or "sqlite".
	StoreBackend string `env:"LOCUSCORE_STORE_BACKEND" envDefault:"sqlite"`
	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `env:"LOCUSCORE_SQLITE_PATH" envDefault:"locuscore.db"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOCUSCORE_LOG_LEVEL" envDefault:"info"`

	CacheDefaultTTL   time.Duration `env:"LOCUSCORE_CACHE_DEFAULT_TTL" envDefault:"1h"`
	DueReminderLimit  int           `env:"LOCUSCORE_DUE_REMINDER_LIMIT" envDefault:"50"`
	ToleranceWindow   time.Duration `env:"LOCUSCORE_VALIDATION_TOLERANCE" envDefault:"24h"`
	SchemaVersion     string        `env:"LOCUSCORE_SCHEMA_VERSION" envDefault:""`
	MetricsListenAddr string        `env:"LOCUSCORE_METRICS_ADDR" envDefault:""`
}

// FromEnv parses the configuration from process environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.StoreBackend != BackendMemory && cfg.StoreBackend != BackendSQLite {
		return Config{}, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	return cfg, nil
}
