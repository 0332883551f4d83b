package config

import (
	"testing"
	"time"
)

func TestLoadRelayDefaults(t *testing.T) {
	cfg, err := LoadRelay()
	if err != nil {
		t.Fatalf("LoadRelay() error = %v", err)
	}
	if got, want := cfg.BindAddr, ":8081"; got != want {
		t.Fatalf("BindAddr = %q; want %q", got, want)
	}
	if got, want := cfg.SweepInterval(), 30*time.Second; got != want {
		t.Fatalf("SweepInterval() = %v; want %v", got, want)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://localhost:3000" {
		t.Fatalf("AllowedOrigins = %v; want [http://localhost:3000]", cfg.AllowedOrigins)
	}
	if cfg.ArchiveDir != "" {
		t.Fatalf("ArchiveDir = %q; want empty", cfg.ArchiveDir)
	}
	if cfg.PortAutoFallback {
		t.Fatal("PortAutoFallback = true; want false")
	}
	if got, want := len(cfg.PortCandidates), 3; got != want {
		t.Fatalf("PortCandidates = %v; want %d entries", cfg.PortCandidates, want)
	}
}

func TestLoadRelayFromEnv(t *testing.T) {
	t.Setenv("RELAY_BIND_ADDR", "127.0.0.1:9000")
	t.Setenv("RELAY_ALLOWED_ORIGINS", " https://admin.example.com, ,http://localhost:3000 ")
	t.Setenv("RELAY_SWEEP_INTERVAL_MS", "10")
	t.Setenv("RELAY_LOG_LEVEL", "DEBUG")
	t.Setenv("RELAY_PORT_AUTO_FALLBACK", "true")
	t.Setenv("RELAY_PORT_CANDIDATES", "127.0.0.1:9001")

	cfg, err := LoadRelay()
	if err != nil {
		t.Fatalf("LoadRelay() error = %v", err)
	}
	if got, want := cfg.BindAddr, "127.0.0.1:9000"; got != want {
		t.Fatalf("BindAddr = %q; want %q", got, want)
	}
	if got := cfg.AllowedOrigins; len(got) != 2 || got[0] != "https://admin.example.com" || got[1] != "http://localhost:3000" {
		t.Fatalf("AllowedOrigins = %q", got)
	}
	if got, want := cfg.SweepIntervalMS, 1000; got != want {
		t.Fatalf("SweepIntervalMS = %d; want clamped %d", got, want)
	}
	if got, want := cfg.LogLevel, "debug"; got != want {
		t.Fatalf("LogLevel = %q; want %q", got, want)
	}
	if !cfg.PortAutoFallback || len(cfg.PortCandidates) != 1 || cfg.PortCandidates[0] != "127.0.0.1:9001" {
		t.Fatalf("port fallback = %v %v", cfg.PortAutoFallback, cfg.PortCandidates)
	}
}

func TestLoadClientFromEnv(t *testing.T) {
	t.Setenv("RELAY_CLIENT_URL", "ws://relay.internal/ws")
	t.Setenv("RELAY_CLIENT_RECONNECT_INITIAL_MS", "250")
	t.Setenv("RELAY_CLIENT_RECONNECT_MAX_MS", "100")
	t.Setenv("RELAY_CLIENT_RECONNECT_MULTIPLIER", "2")
	t.Setenv("RELAY_CLIENT_RECONNECT_MAX_ATTEMPTS", "3")
	t.Setenv("RELAY_CLIENT_AUTO_CONNECT", "false")
	t.Setenv("RELAY_CLIENT_LOG_LEVEL", "DEBUG")

	cfg, err := LoadClient()
	if err != nil {
		t.Fatalf("LoadClient() error = %v", err)
	}
	if got, want := cfg.LogLevel, "debug"; got != want {
		t.Fatalf("LogLevel = %q; want %q", got, want)
	}
	if got, want := cfg.URL, "ws://relay.internal/ws"; got != want {
		t.Fatalf("URL = %q; want %q", got, want)
	}
	if got, want := cfg.ReconnectInitial(), 250*time.Millisecond; got != want {
		t.Fatalf("ReconnectInitial() = %v; want %v", got, want)
	}
	if got, want := cfg.ReconnectMax(), 250*time.Millisecond; got != want {
		t.Fatalf("ReconnectMax() = %v; want raised to %v", got, want)
	}
	if got, want := cfg.ReconnectMultiplier, 2.0; got != want {
		t.Fatalf("ReconnectMultiplier = %v; want %v", got, want)
	}
	if cfg.AutoConnect {
		t.Fatal("AutoConnect = true; want false")
	}
}

func TestLoadClientIgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("RELAY_CLIENT_RECONNECT_MULTIPLIER", "fast")
	t.Setenv("RELAY_CLIENT_RECONNECT_MAX_ATTEMPTS", "-4")

	cfg, err := LoadClient()
	if err != nil {
		t.Fatalf("LoadClient() error = %v", err)
	}
	if got, want := cfg.ReconnectMultiplier, 1.5; got != want {
		t.Fatalf("ReconnectMultiplier = %v; want %v", got, want)
	}
	if got, want := cfg.MaxReconnectAttempts, 0; got != want {
		t.Fatalf("MaxReconnectAttempts = %d; want %d", got, want)
	}
}
