// Package cli implements the relayctl operator commands.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bizmon/eventrelay/internal/config"
	"github.com/bizmon/eventrelay/internal/logging"
	"github.com/spf13/cobra"
)

// version is set via build-time ldflags
var version = "dev"

// commit is set via build-time ldflags
var commit = "unknown"

type rootOptions struct {
	redisURL string
	relayURL string
	logLevel string
}

// NewRootCommand returns the relayctl command tree. Flag defaults come from
// the same environment variables the relay and its clients read.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{redisURL: "redis://localhost:6379/0", relayURL: "ws://localhost:8081/ws", logLevel: "warn"}
	if cfg, err := config.LoadRelay(); err == nil {
		opts.redisURL = cfg.RedisURL
	}
	if cfg, err := config.LoadClient(); err == nil {
		opts.relayURL = cfg.URL
		opts.logLevel = cfg.LogLevel
	}

	cmd := &cobra.Command{
		Use:   "relayctl",
		Short: "Inspect and exercise the dashboard event relay",
		Long: `relayctl talks to the event relay and the Redis bus behind it.

Examples:
  relayctl tail --channel scan_monitor
  relayctl publish exe_monitor '{"orderId":"o-1","qty":3}'
  relayctl status`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return logging.Setup(opts.logLevel, "", cmd.ErrOrStderr())
		},
	}
	if cmd.Annotations == nil {
		cmd.Annotations = make(map[string]string)
	}
	cmd.Annotations["commit"] = commit
	cmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
Commit: {{printf "%s" (index .Annotations "commit")}}
`)

	cmd.PersistentFlags().StringVar(&opts.redisURL, "redis", opts.redisURL, "Redis bus URL (RELAY_REDIS_URL)")
	cmd.PersistentFlags().StringVar(&opts.relayURL, "url", opts.relayURL, "Relay websocket URL (RELAY_CLIENT_URL)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", opts.logLevel, "Log level: debug, info, warn, error (RELAY_CLIENT_LOG_LEVEL)")

	cmd.AddCommand(newTailCommand(opts))
	cmd.AddCommand(newPublishCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	return cmd
}

// Execute runs relayctl and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
