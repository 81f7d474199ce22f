package store

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ConfigFromEnv loads store connection parameters from the environment,
// per §6 "Env vars" (CRATER_DB_*), with production-ready pool defaults.
func ConfigFromEnv() (Config, error) {
	port, err := strconv.Atoi(getEnvOrDefault("CRATER_DB_PORT", "5432"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid CRATER_DB_PORT: %w", err)
	}
	maxOpen, _ := strconv.Atoi(getEnvOrDefault("CRATER_DB_MAX_OPEN_CONNS", "25"))
	maxIdle, _ := strconv.Atoi(getEnvOrDefault("CRATER_DB_MAX_IDLE_CONNS", "10"))
	maxLifetime, err := time.ParseDuration(getEnvOrDefault("CRATER_DB_CONN_MAX_LIFETIME", "1h"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid CRATER_DB_CONN_MAX_LIFETIME: %w", err)
	}

	cfg := Config{
		Host:            getEnvOrDefault("CRATER_DB_HOST", "localhost"),
		Port:            port,
		User:            getEnvOrDefault("CRATER_DB_USER", "crater"),
		Password:        os.Getenv("CRATER_DB_PASSWORD"),
		Database:        getEnvOrDefault("CRATER_DB_NAME", "crater"),
		SSLMode:         getEnvOrDefault("CRATER_DB_SSLMODE", "disable"),
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: maxLifetime,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if c.Password == "" {
		return fmt.Errorf("CRATER_DB_PASSWORD is required")
	}
	if c.MaxOpenConns < 1 {
		return fmt.Errorf("CRATER_DB_MAX_OPEN_CONNS must be at least 1")
	}
	if c.MaxIdleConns < 0 || c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("CRATER_DB_MAX_IDLE_CONNS (%d) must be between 0 and CRATER_DB_MAX_OPEN_CONNS (%d)", c.MaxIdleConns, c.MaxOpenConns)
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
