// Package cli implements the bridgectl operator commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/elliotttate/RenderDocMCP/internal/config"
)

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath string
	spoolDir   string
	timeout    time.Duration
	logLevel   string
}

// Run executes the CLI and returns the process exit code.
func Run(args []string) int {
	ctx := withSignalCancel(context.Background())
	cmd := newRootCommand()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "bridgectl: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "bridgectl",
		Short:         "Operate and exercise the RenderDoc file bridge",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file path (default: XDG config)")
	pf.StringVar(&flags.spoolDir, "dir", "", "spool directory override")
	pf.DurationVar(&flags.timeout, "timeout", 0, "per-call timeout override")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")

	cmd.AddCommand(
		newServeCommand(flags),
		newPingCommand(flags),
		newCallCommand(flags),
		newDiagCommand(flags),
		newStressCommand(flags),
	)
	return cmd
}

func (f *rootFlags) load() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if f.configPath != "" {
		cfg, err = config.LoadFrom(f.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if f.spoolDir != "" {
		cfg.SpoolDir = f.spoolDir
	}
	if f.timeout > 0 {
		cfg.DefaultTimeout = f.timeout
		cfg.MethodTimeouts = map[string]time.Duration{}
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	return cfg, nil
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
