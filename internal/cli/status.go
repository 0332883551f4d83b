package cli

import (
	"encoding/json"

	"github.com/bizmon/eventrelay/internal/bus"
	"github.com/spf13/cobra"
)

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Probe the Redis bus and print the cache status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := bus.New(opts.redisURL)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()

			st, probeErr := b.Probe(cmd.Context())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(st); err != nil {
				return err
			}
			return probeErr
		},
	}
}
