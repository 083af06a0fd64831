package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/elliotttate/RenderDocMCP/internal/bridge"
)

func newPingCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Round-trip a ping through the bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			client := bridge.New(cfg, nil)
			start := time.Now()
			if err := client.Ping(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pong in %s\n", time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}
