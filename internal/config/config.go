// Package config loads server configuration from the environment.
package config

import (
	"errors"
	"os"
	"strconv"
)

type Config struct {
	Addr         string
	DatabaseDSN  string
	RedisAddr    string
	JWTSecret    string
	HistoryLimit int
}

// Load reads the environment. DB_DSN and JWT_SECRET are required; the rest
// default to sane development values.
func Load() (*Config, error) {
	cfg := &Config{
		Addr:         getenv("LISTEN_ADDR", ":8080"),
		DatabaseDSN:  os.Getenv("DB_DSN"),
		RedisAddr:    getenv("REDIS_ADDR", "localhost:6379"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		HistoryLimit: 50,
	}
	if cfg.DatabaseDSN == "" {
		return nil, errors.New("DB_DSN is not set")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is not set")
	}
	if raw := os.Getenv("HISTORY_LIMIT"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, errors.New("HISTORY_LIMIT must be a positive integer")
		}
		cfg.HistoryLimit = n
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
