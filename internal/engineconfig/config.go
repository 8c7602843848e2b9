// Package engineconfig loads the engine's runtime knobs from the
// environment, grounded on tarsy's pkg/database/config.go
// (getEnvOrDefault + Validate shape), generalized beyond database settings
// to the claim lease TTL and conflict-retry budget (spec §9 "Builders vs
// configs").
package engineconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Database holds Postgres connection and pool settings.
type Database struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Engine holds TurnEngine/ClaimManager/TimerScheduler tunables.
type Engine struct {
	LeaseTTLSeconds   int
	MaxConflictRetries int
}

// Config is the full process configuration.
type Config struct {
	Database Database
	Engine   Engine
	HTTPAddr string
}

// LoadFromEnv loads Config from the environment with production defaults,
// mirroring tarsy's LoadConfigFromEnv.
func LoadFromEnv() (Config, error) {
	port, err := strconv.Atoi(getEnvOrDefault("DB_PORT", "5432"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	maxOpen, _ := strconv.Atoi(getEnvOrDefault("DB_MAX_OPEN_CONNS", "25"))
	maxIdle, _ := strconv.Atoi(getEnvOrDefault("DB_MAX_IDLE_CONNS", "10"))

	maxLifetime, err := time.ParseDuration(getEnvOrDefault("DB_CONN_MAX_LIFETIME", "1h"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_CONN_MAX_LIFETIME: %w", err)
	}
	maxIdleTime, err := time.ParseDuration(getEnvOrDefault("DB_CONN_MAX_IDLE_TIME", "15m"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_CONN_MAX_IDLE_TIME: %w", err)
	}

	leaseTTL, err := strconv.Atoi(getEnvOrDefault("ENGINE_LEASE_TTL_SECONDS", "90"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid ENGINE_LEASE_TTL_SECONDS: %w", err)
	}
	maxRetries, err := strconv.Atoi(getEnvOrDefault("ENGINE_MAX_CONFLICT_RETRIES", "1"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid ENGINE_MAX_CONFLICT_RETRIES: %w", err)
	}

	cfg := Config{
		Database: Database{
			Host:            getEnvOrDefault("DB_HOST", "localhost"),
			Port:            port,
			User:            getEnvOrDefault("DB_USER", "campaignforge"),
			Password:        os.Getenv("DB_PASSWORD"),
			Name:            getEnvOrDefault("DB_NAME", "campaignforge"),
			SSLMode:         getEnvOrDefault("DB_SSLMODE", "disable"),
			MaxOpenConns:    maxOpen,
			MaxIdleConns:    maxIdle,
			ConnMaxLifetime: maxLifetime,
			ConnMaxIdleTime: maxIdleTime,
		},
		Engine: Engine{
			LeaseTTLSeconds:    leaseTTL,
			MaxConflictRetries: maxRetries,
		},
		HTTPAddr: getEnvOrDefault("HTTP_ADDR", ":8080"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("DB_MAX_IDLE_CONNS (%d) cannot exceed DB_MAX_OPEN_CONNS (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be at least 1")
	}
	if c.Engine.LeaseTTLSeconds < 1 {
		return fmt.Errorf("ENGINE_LEASE_TTL_SECONDS must be at least 1")
	}
	if c.Engine.MaxConflictRetries < 0 {
		return fmt.Errorf("ENGINE_MAX_CONFLICT_RETRIES cannot be negative")
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
