// Package config provides configuration management for kristforge.
// It handles loading configuration from environment variables with sensible
// defaults; command line flags override these values.
package config

import (
	"fmt"
	"os"
	"time"
)

// DefaultNode is the websocket initiation endpoint of the public Krist node
const DefaultNode = "https://krist.ceriat.net/ws/start"

// Config holds the global configuration for kristforge
type Config struct {
	// Service identification
	ServiceName string
	Version     string

	// Krist node connection
	Node      string
	UserAgent string

	// Status display
	StatusInterval time.Duration

	// InfluxDB metrics (optional; disabled when the URL is empty)
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		// Service defaults
		ServiceName: getEnv("KRISTFORGE_SERVICE_NAME", "kristforge"),
		Version:     getEnv("KRISTFORGE_VERSION", "dev"),

		// Node defaults
		Node:      getEnv("KRISTFORGE_NODE", DefaultNode),
		UserAgent: getEnv("KRISTFORGE_USER_AGENT", "kristforge/dev"),

		// Status defaults
		StatusInterval: getEnvDuration("KRISTFORGE_STATUS_INTERVAL", 3*time.Second),

		// Metrics defaults
		InfluxURL:    getEnv("INFLUX_URL", ""),
		InfluxToken:  getEnv("INFLUX_TOKEN", ""),
		InfluxOrg:    getEnv("INFLUX_ORG", "kristforge"),
		InfluxBucket: getEnv("INFLUX_BUCKET", "mining"),

		// Logging defaults
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate performs basic validation of configuration values
func (c *Config) validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("KRISTFORGE_SERVICE_NAME cannot be empty")
	}

	if c.Node == "" {
		return fmt.Errorf("KRISTFORGE_NODE cannot be empty")
	}

	if c.StatusInterval <= 0 {
		return fmt.Errorf("KRISTFORGE_STATUS_INTERVAL must be positive")
	}

	return nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
