package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/elliotttate/RenderDocMCP/internal/bridge"
)

func newDiagCommand(flags *rootFlags) *cobra.Command {
	var (
		rawJSON   bool
		maxRecent int
		noRecent  bool
	)
	cmd := &cobra.Command{
		Use:   "diag",
		Short: "Show bridge diagnostics, falling back to the last snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			client := bridge.New(cfg, nil)
			payload, err := client.Diagnostics(cmd.Context(), bridge.DiagnosticsOptions{
				IncludeRecentErrors: !noRecent,
				MaxRecentErrors:     maxRecent,
			})
			if err != nil {
				return err
			}
			if rawJSON {
				pretty, err := prettyJSON(payload)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), pretty)
				return nil
			}
			return renderDiagnostics(cmd.OutOrStdout(), payload)
		},
	}
	cmd.Flags().BoolVar(&rawJSON, "json", false, "print the raw diagnostics JSON")
	cmd.Flags().IntVar(&maxRecent, "max-recent-errors", 16, "cap on recent errors to fetch")
	cmd.Flags().BoolVar(&noRecent, "no-recent-errors", false, "skip the recent error ring")
	return cmd
}
