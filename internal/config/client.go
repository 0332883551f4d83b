package config

import (
	"strings"
	"time"
)

// ClientConfig holds configuration for a transport client talking to the relay.
type ClientConfig struct {
	URL                  string
	ReconnectInitialMS   int
	ReconnectMaxMS       int
	ReconnectMultiplier  float64
	MaxReconnectAttempts int
	AutoConnect          bool
	LogLevel             string
}

// LoadClient reads client configuration from environment variables and an
// optional .env file.
func LoadClient() (*ClientConfig, error) {
	loadDotEnv()

	cfg := &ClientConfig{
		URL:                  getEnvOrDefault("RELAY_CLIENT_URL", "ws://localhost:8081/ws"),
		ReconnectInitialMS:   getEnvIntOrDefault("RELAY_CLIENT_RECONNECT_INITIAL_MS", 1000),
		ReconnectMaxMS:       getEnvIntOrDefault("RELAY_CLIENT_RECONNECT_MAX_MS", 30000),
		ReconnectMultiplier:  getEnvFloatOrDefault("RELAY_CLIENT_RECONNECT_MULTIPLIER", 1.5),
		MaxReconnectAttempts: getEnvIntOrDefault("RELAY_CLIENT_RECONNECT_MAX_ATTEMPTS", 10),
		AutoConnect:          getEnvBoolOrDefault("RELAY_CLIENT_AUTO_CONNECT", true),
		LogLevel:             strings.ToLower(getEnvOrDefault("RELAY_CLIENT_LOG_LEVEL", "warn")),
	}
	if cfg.ReconnectInitialMS < 1 {
		cfg.ReconnectInitialMS = 1
	}
	if cfg.ReconnectMaxMS < cfg.ReconnectInitialMS {
		cfg.ReconnectMaxMS = cfg.ReconnectInitialMS
	}
	if cfg.ReconnectMultiplier < 1 {
		cfg.ReconnectMultiplier = 1
	}
	if cfg.MaxReconnectAttempts < 0 {
		cfg.MaxReconnectAttempts = 0
	}
	return cfg, nil
}

// ReconnectInitial returns the first backoff delay.
func (c *ClientConfig) ReconnectInitial() time.Duration {
	return time.Duration(c.ReconnectInitialMS) * time.Millisecond
}

// ReconnectMax returns the backoff ceiling.
func (c *ClientConfig) ReconnectMax() time.Duration {
	return time.Duration(c.ReconnectMaxMS) * time.Millisecond
}
