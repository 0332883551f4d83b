package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bizmon/eventrelay/internal/api"
	"github.com/bizmon/eventrelay/internal/bus"
	"github.com/bizmon/eventrelay/internal/config"
	"github.com/bizmon/eventrelay/internal/logging"
	"github.com/bizmon/eventrelay/internal/netutil"
	"github.com/bizmon/eventrelay/internal/notify"
	"github.com/bizmon/eventrelay/internal/relay"
	"github.com/bizmon/eventrelay/internal/storage"
)

func main() {
	cfg, err := config.LoadRelay()
	if err != nil {
		slog.Error("failed to load relay config", "error", err)
		os.Exit(1)
	}

	if err := logging.Setup(cfg.LogLevel, cfg.LogFile, os.Stdout); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("relay exiting", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.RelayConfig) error {
	fileCfg, err := relay.LoadConfig(cfg.ConfigFile)
	if err != nil {
		return err
	}
	channels, err := fileCfg.ResolveChannels()
	if err != nil {
		return err
	}
	origins := append(append([]string(nil), cfg.AllowedOrigins...), fileCfg.AllowedOrigins...)

	slog.Info("relay config loaded",
		"bind_addr", cfg.BindAddr,
		"port_auto_fallback", cfg.PortAutoFallback,
		"port_candidates", cfg.PortCandidates,
		"allowed_origins", origins,
		"sweep_interval_ms", cfg.SweepIntervalMS,
		"write_timeout_ms", cfg.WriteTimeoutMS,
		"config_file", cfg.ConfigFile,
		"archive_dir", cfg.ArchiveDir,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := bus.Open(ctx, cfg.RedisURL)
	if err != nil {
		notifyBusFailure(cfg, err)
		return err
	}
	defer func() { _ = b.Close() }()

	var recorder relay.Recorder
	if cfg.ArchiveDir != "" {
		archive := storage.NewChannelArchive(cfg.ArchiveDir, cfg.ArchiveBuffer, cfg.ArchiveMaxMB)
		defer func() {
			if err := archive.Close(); err != nil {
				slog.Warn("archive close failed", "error", err)
			}
		}()
		recorder = archive
	}

	hub := relay.NewHub(relay.HubOptions{SweepInterval: cfg.SweepInterval(), Recorder: recorder})
	rl := relay.New(b, hub, channels)
	allowed := api.NewOrigins(origins)
	h := api.NewServer(api.Deps{
		Relay:          rl,
		Cache:          b,
		WebSocket:      relay.WSHandler(hub, allowed.Allowed, cfg.WriteTimeout()),
		AllowedOrigins: origins,
	})

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		return err
	}
	addr := ln.Addr().String()
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	srvErr := make(chan error, 1)
	go func() {
		slog.Info("relay listening", "addr", addr, "ws", "ws://"+addr+"/ws", "docs", "http://"+addr+"/docs")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	relayErr := make(chan error, 1)
	go func() { relayErr <- rl.Run(ctx) }()

	var runErr error
	relayDone := false
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-srvErr:
		runErr = err
	case err := <-relayErr:
		relayDone = true
		if err != nil {
			notifyBusFailure(cfg, err)
			runErr = err
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("relay shutdown failed", "error", err)
	}
	if !relayDone {
		select {
		case <-relayErr:
		case <-shutdownCtx.Done():
			slog.Warn("relay hub did not stop in time")
		}
	}
	return runErr
}

func notifyBusFailure(cfg *config.RelayConfig, cause error) {
	if cfg.NotifyURL == "" {
		return
	}
	if err := notify.BusFailure(context.Background(), nil, cfg.NotifyURL, bus.RedactURL(cfg.RedisURL), cause); err != nil {
		slog.Warn("operator notification failed", "error", err)
	}
}
