// Package config loads runtime configuration from the environment.
//
// A .env file is honored when present (development convenience); real
// environment variables win. When DATABASE_URL is set the server uses
// PostgreSQL, otherwise it falls back to SQLite at SQLITE_PATH.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultPort       = "8080"
	defaultLogLevel   = "info"
	defaultSQLitePath = "ledger.db"
	defaultShutdown   = 10 * time.Second
)

// Config captures application runtime configuration.
type Config struct {
	Port           string
	LogLevel       string
	DatabaseURL    string // PostgreSQL; empty means use SQLite
	SQLitePath     string
	ShutdownPeriod time.Duration
}

// Load reads configuration from .env (if present) and the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		// Not an error in production; environment variables are enough.
		slog.Debug("no .env file found, using environment variables only")
	}

	cfg := Config{
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		SQLitePath:     getEnv("SQLITE_PATH", defaultSQLitePath),
		ShutdownPeriod: defaultShutdown,
	}

	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.ShutdownPeriod = d
	}

	return cfg, nil
}

// Address returns the listen address for the HTTP server.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
