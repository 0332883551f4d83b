package cli

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/bizmon/eventrelay/internal/bridge"
	"github.com/bizmon/eventrelay/internal/channel"
	"github.com/bizmon/eventrelay/internal/client"
	"github.com/bizmon/eventrelay/internal/config"
	"github.com/bizmon/eventrelay/internal/router"
	"github.com/bizmon/eventrelay/internal/storage"
	"github.com/bizmon/eventrelay/internal/wire"
	"github.com/spf13/cobra"
)

type tailOptions struct {
	channels []string
	record   string
	count    int
}

func newTailCommand(root *rootOptions) *cobra.Command {
	opts := &tailOptions{}
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print envelopes relayed to a dashboard client",
		Long: `Connect to the relay like a dashboard tab and print every envelope as one
JSON line. The connection reconnects with the configured backoff.

Examples:
  relayctl tail
  relayctl tail --channel scan_monitor --channel exe_monitor
  relayctl tail --record ./archive --count 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTail(cmd, root, opts)
		},
	}
	cmd.Flags().StringSliceVarP(&opts.channels, "channel", "c", nil, "Only print these channels (repeatable)")
	cmd.Flags().StringVar(&opts.record, "record", "", "Also append envelopes as JSON lines under this directory")
	cmd.Flags().IntVarP(&opts.count, "count", "n", 0, "Exit after this many envelopes (0 runs until interrupted)")
	return cmd
}

func runTail(cmd *cobra.Command, root *rootOptions, opts *tailOptions) error {
	selected, err := selectChannels(opts.channels)
	if err != nil {
		return err
	}

	clientCfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	bopts := bridge.OptionsFromConfig(clientCfg)
	bopts.Client.URL = root.relayURL
	bopts.AutoConnect = true
	b := bridge.New(bopts)
	defer b.Close()

	var rec *storage.JSONLWriter
	if opts.record != "" {
		rec = storage.NewJSONLWriter(opts.record, "tail", 1000, 100)
		defer func() { _ = rec.Close() }()
	}

	var mu sync.Mutex
	counts := make(map[channel.Channel]int)
	handlers := make(map[channel.Channel]router.Handler, len(selected))
	for ch := range selected {
		ch := ch
		handlers[ch] = func(map[string]any) error {
			mu.Lock()
			counts[ch]++
			mu.Unlock()
			return nil
		}
	}
	unregister := b.RegisterHandlers(handlers)
	defer unregister()

	b.OnStateChange(func(s client.State) {
		slog.Info("tail: connection state", "state", s.String(), "url", root.relayURL)
	})

	id, envs := b.Subscribe()
	defer b.Unsubscribe(id)

	ctx := cmd.Context()
	if err := b.Start(ctx); err != nil {
		slog.Warn("tail: first connect failed, retrying", "error", err)
	}

	printed := 0
	defer func() { printSummary(cmd, counts, &mu) }()
	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-envs:
			if !ok {
				return nil
			}
			if !selected[env.Type] {
				continue
			}
			frame, err := wire.Encode(env)
			if err != nil {
				slog.Warn("tail: encode envelope", "error", err)
				continue
			}
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), string(frame)); err != nil {
				return err
			}
			if rec != nil {
				_ = rec.Write(env)
			}
			printed++
			if opts.count > 0 && printed >= opts.count {
				return nil
			}
		}
	}
}

func selectChannels(names []string) (map[channel.Channel]bool, error) {
	out := make(map[channel.Channel]bool)
	if len(names) == 0 {
		for _, ch := range channel.All() {
			out[ch] = true
		}
		return out, nil
	}
	for _, name := range names {
		ch, ok := channel.Lookup(name)
		if !ok {
			return nil, &channel.UnknownError{Wire: name}
		}
		out[ch] = true
	}
	return out, nil
}

func printSummary(cmd *cobra.Command, counts map[channel.Channel]int, mu *sync.Mutex) {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(counts))
	byName := make(map[string]int, len(counts))
	for ch, n := range counts {
		names = append(names, ch.String())
		byName[ch.String()] = n
	}
	sort.Strings(names)
	for _, name := range names {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d\n", name, byName[name])
	}
}
