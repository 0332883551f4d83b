package cli

import (
	"fmt"

	"github.com/bizmon/eventrelay/internal/bus"
	"github.com/bizmon/eventrelay/internal/channel"
	"github.com/spf13/cobra"
)

func newPublishCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "publish CHANNEL PAYLOAD",
		Short: "Publish a payload on a bus channel",
		Long: `Publish PAYLOAD on CHANNEL through Redis. CHANNEL is a wire name such as
scan_monitor or a symbolic name such as Scan. PAYLOAD is sent as-is; the
relay wraps anything that is not a JSON object as {"raw": PAYLOAD}.

Examples:
  relayctl publish scan_monitor '{"userId":"u1","scanType":"barcode"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, ok := channel.Lookup(args[0])
			if !ok {
				return &channel.UnknownError{Wire: args[0]}
			}
			b, err := bus.Open(cmd.Context(), opts.redisURL)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()

			if err := b.Publish(cmd.Context(), ch, args[1]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "published %d bytes on %s\n", len(args[1]), ch)
			return err
		},
	}
}
