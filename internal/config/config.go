package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// RelayConfig holds all configuration for the relay server process.
type RelayConfig struct {
	// HTTP and transport
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool
	AllowedOrigins   []string

	// Upstream bus
	RedisURL string

	// Connection housekeeping
	SweepIntervalMS int
	WriteTimeoutMS  int

	// Optional YAML file narrowing channels and adding origins
	ConfigFile string

	// Diagnostics
	ArchiveDir    string
	ArchiveMaxMB  int
	ArchiveBuffer int
	NotifyURL     string
	LogLevel      string
	LogFile       string
}

// LoadRelay reads relay configuration from environment variables and an
// optional .env file.
func LoadRelay() (*RelayConfig, error) {
	loadDotEnv()

	cfg := &RelayConfig{
		BindAddr:         getEnvOrDefault("RELAY_BIND_ADDR", ":8081"),
		PortCandidates:   getEnvListOrDefault("RELAY_PORT_CANDIDATES", []string{":8082", ":8083", ":8084"}),
		PortAutoFallback: getEnvBoolOrDefault("RELAY_PORT_AUTO_FALLBACK", false),
		AllowedOrigins:   getEnvListOrDefault("RELAY_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		RedisURL:         getEnvOrDefault("RELAY_REDIS_URL", "redis://localhost:6379/0"),
		SweepIntervalMS:  getEnvIntOrDefault("RELAY_SWEEP_INTERVAL_MS", 30000),
		WriteTimeoutMS:   getEnvIntOrDefault("RELAY_WRITE_TIMEOUT_MS", 5000),
		ConfigFile:       getEnvOrDefault("RELAY_CONFIG_FILE", "./config/relay.yaml"),
		ArchiveDir:       os.Getenv("RELAY_ARCHIVE_DIR"),
		ArchiveMaxMB:     getEnvIntOrDefault("RELAY_ARCHIVE_MAX_MB", 100),
		ArchiveBuffer:    getEnvIntOrDefault("RELAY_ARCHIVE_BUFFER", 5000),
		NotifyURL:        os.Getenv("RELAY_NOTIFY_URL"),
		LogLevel:         strings.ToLower(getEnvOrDefault("RELAY_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("RELAY_LOG_FILE", "logs/relay.log"),
	}
	if cfg.SweepIntervalMS < 1000 {
		cfg.SweepIntervalMS = 1000
	}
	if cfg.WriteTimeoutMS < 100 {
		cfg.WriteTimeoutMS = 100
	}
	if cfg.ArchiveMaxMB < 1 {
		cfg.ArchiveMaxMB = 1
	}
	if cfg.ArchiveBuffer < 1 {
		cfg.ArchiveBuffer = 1
	}
	return cfg, nil
}

// SweepInterval returns the stale-connection sweep period.
func (c *RelayConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMS) * time.Millisecond
}

// WriteTimeout returns the per-connection write deadline.
func (c *RelayConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMS) * time.Millisecond
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloatOrDefault(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvListOrDefault splits a comma separated value, dropping blanks.
func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
