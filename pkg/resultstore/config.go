// Package resultstore mirrors tuning and evaluation history into Postgres
// for cross-repo querying. The JSONL/JSON artifacts under an experiment's
// output directory remain the source of truth; this store is an optional,
// queryable copy that is updated only when a caller records into it.
package resultstore

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds PostgreSQL connection settings for the result store.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoadConfigFromEnv loads Config from CONTEXTTUNE_DB_* environment
// variables, falling back to development-friendly defaults.
func LoadConfigFromEnv() (Config, error) {
	port, err := strconv.Atoi(getEnvOrDefault("CONTEXTTUNE_DB_PORT", "5432"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid CONTEXTTUNE_DB_PORT: %w", err)
	}

	maxOpen, _ := strconv.Atoi(getEnvOrDefault("CONTEXTTUNE_DB_MAX_OPEN_CONNS", "10"))
	maxIdle, _ := strconv.Atoi(getEnvOrDefault("CONTEXTTUNE_DB_MAX_IDLE_CONNS", "5"))

	maxLifetime, err := time.ParseDuration(getEnvOrDefault("CONTEXTTUNE_DB_CONN_MAX_LIFETIME", "1h"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid CONTEXTTUNE_DB_CONN_MAX_LIFETIME: %w", err)
	}
	maxIdleTime, err := time.ParseDuration(getEnvOrDefault("CONTEXTTUNE_DB_CONN_MAX_IDLE_TIME", "15m"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid CONTEXTTUNE_DB_CONN_MAX_IDLE_TIME: %w", err)
	}

	cfg := Config{
		Host:            getEnvOrDefault("CONTEXTTUNE_DB_HOST", "localhost"),
		Port:            port,
		User:            getEnvOrDefault("CONTEXTTUNE_DB_USER", "contexttune"),
		Password:        os.Getenv("CONTEXTTUNE_DB_PASSWORD"),
		Database:        getEnvOrDefault("CONTEXTTUNE_DB_NAME", "contexttune"),
		SSLMode:         getEnvOrDefault("CONTEXTTUNE_DB_SSLMODE", "disable"),
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: maxLifetime,
		ConnMaxIdleTime: maxIdleTime,
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that Config is usable.
func (c Config) Validate() error {
	if c.Password == "" {
		return fmt.Errorf("CONTEXTTUNE_DB_PASSWORD is required")
	}
	if c.MaxOpenConns < 1 {
		return fmt.Errorf("CONTEXTTUNE_DB_MAX_OPEN_CONNS must be at least 1")
	}
	if c.MaxIdleConns < 0 {
		return fmt.Errorf("CONTEXTTUNE_DB_MAX_IDLE_CONNS cannot be negative")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("CONTEXTTUNE_DB_MAX_IDLE_CONNS (%d) cannot exceed CONTEXTTUNE_DB_MAX_OPEN_CONNS (%d)",
			c.MaxIdleConns, c.MaxOpenConns)
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
