// Package config loads server configuration from the environment, with
// an optional .env file for local development.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every knob the server reads at startup.
type Config struct {
	// Port is the TCP port the HTTP server listens on.
	Port string

	// DBDriver selects the storage backend: "sqlite" or "postgres".
	DBDriver string

	// DBPath is the sqlite database file (sqlite driver only).
	DBPath string

	// DatabaseURL is the postgres connection string (postgres driver only).
	DatabaseURL string

	// RedisURL enables the Redis-backed change feed when set; empty keeps
	// the in-process feed.
	RedisURL string

	// JWTSecret signs session tokens. Required.
	JWTSecret string

	// TokenDuration is how long issued tokens stay valid.
	TokenDuration time.Duration

	// LogLevel is debug, info, warn or error.
	LogLevel string

	// CORSOrigins is the list of allowed browser origins.
	CORSOrigins []string
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in first if present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg := &Config{
		Port:        getenv("PORT", "8080"),
		DBDriver:    getenv("DB_DRIVER", "sqlite"),
		DBPath:      getenv("DB_PATH", "data/splitbook.db"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
	}

	switch cfg.DBDriver {
	case "sqlite":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	duration, err := time.ParseDuration(getenv("TOKEN_DURATION", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_DURATION: %w", err)
	}
	cfg.TokenDuration = duration

	for _, origin := range strings.Split(getenv("CORS_ORIGINS", "http://localhost:3000"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
