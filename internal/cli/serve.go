package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/elliotttate/RenderDocMCP/internal/daemon"
	"github.com/elliotttate/RenderDocMCP/internal/handler"
	"github.com/elliotttate/RenderDocMCP/internal/logging"
	"github.com/elliotttate/RenderDocMCP/internal/spool"
)

func newServeCommand(flags *rootFlags) *cobra.Command {
	var logToStderr bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Host a bridge server backed by the simulated capture facade",
		Long: "Host a bridge server that answers every capture method with simulated\n" +
			"no-capture data. Useful for exercising clients and the transport without\n" +
			"a running render debugger.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			dir := spool.New(cfg.SpoolDir)
			if err := dir.Ensure(); err != nil {
				return err
			}
			logFile, err := logging.OpenLogFile(dir.LogPath())
			if err != nil {
				return err
			}
			defer logFile.Close()
			var w io.Writer = logFile
			if logToStderr {
				w = io.MultiWriter(logFile, os.Stderr)
			}
			logger := logging.New(w, cfg.LogLevel)

			router := handler.NewRouter(handler.NewSimFacade())
			srv := daemon.New(cfg, router, logger)
			router.SetDiagnostics(func(includeRecentErrors bool, maxRecentErrors int) any {
				return srv.Diagnostics(includeRecentErrors, maxRecentErrors)
			})

			if err := srv.Start(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "serving bridge in %s\n", cfg.SpoolDir)
			<-cmd.Context().Done()
			srv.Stop()
			return nil
		},
	}
	cmd.Flags().BoolVar(&logToStderr, "stderr", false, "log to stderr in addition to the spool log file")
	return cmd
}
