// Package config loads the server configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the server's runtime settings.
type Config struct {
	Debug bool   `env:"DEBUG" envDefault:"false"`
	Port  string `env:"PORT" envDefault:"8080"`

	// DatabasePath is the SQLite event-log file. Empty selects the
	// in-memory log, which only makes sense for a single-process setup.
	DatabasePath string `env:"DATABASE_PATH"`

	// APIKeys is the comma-separated list of accepted client keys.
	APIKeys []string `env:"API_KEYS" envSeparator:","`

	// FrontendOrigin restricts websocket upgrades to this Origin header.
	FrontendOrigin string `env:"FRONTEND_ORIGIN"`
}

// Load reads .env (if present) and parses the environment.
func Load() (*Config, error) {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	return &cfg, nil
}
