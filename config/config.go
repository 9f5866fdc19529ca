/*
Package config loads server configuration.

PRECEDENCE (lowest to highest):
  1. Built-in defaults
  2. YAML config file (optional, -config flag)
  3. Environment variables (a .env file is honored if present)

Flags stay in cmd/server/main.go; this package only resolves file and
environment sources.
*/
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Addr is the HTTP listen address, e.g. ":8080".
	Addr string `yaml:"addr"`

	// DBPath is the SQLite database path. ":memory:" for an in-memory
	// database; empty selects the pure in-memory store (no SQLite).
	DBPath string `yaml:"db_path"`

	// LogLevel is a zap level: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// RewardValidityDays is the earning-to-expiry window.
	RewardValidityDays int `yaml:"reward_validity_days"`

	// MinimumRedemption is the cash-out floor as a decimal string.
	MinimumRedemption string `yaml:"minimum_redemption"`

	// SweepInterval is how often the expiration scheduler runs.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// AllowedOrigins configures CORS for the API.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

func defaults() Config {
	return Config{
		Addr:               ":8080",
		DBPath:             "cashback.db",
		LogLevel:           "info",
		RewardValidityDays: 90,
		MinimumRedemption:  "10.00",
		SweepInterval:      time.Hour,
		AllowedOrigins:     []string{"http://localhost:5173", "http://localhost:8080"},
	}
}

// Load resolves the configuration. path may be empty (no YAML file).
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	// A .env file is a convenience for development; absence is fine.
	_ = godotenv.Load()

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CASHBACK_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("CASHBACK_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("CASHBACK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CASHBACK_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SweepInterval = d
		}
	}
	if v := os.Getenv("CASHBACK_MINIMUM_REDEMPTION"); v != "" {
		cfg.MinimumRedemption = v
	}
}
