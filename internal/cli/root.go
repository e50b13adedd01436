/*
PURPOSE:
  Defines the root Cobra command for the bench-sweep CLI.
  Handles global flags and command initialization.

REQUIREMENTS:
  User-specified:
  - Provide a CLI interface.
  - Support global flags like --config.

  Implementation-discovered:
  - Needs to expose an Execute() function for main.go.
  - Ctrl-C must reach the running benchmark so it is not recorded.

ARCHITECTURE INTEGRATION:
  - Called by: cmd/bench-sweep/main.go
  - Calls: Child commands (sweep, status, launch, list-models)

ERROR HANDLING:
  - Returns error to main.go for exit code handling.

IMPLEMENTATION RULES:
  - Use `PersistentFlags()` for flags available to all subcommands.
  - Keep Run logic in subcommands.

USAGE:
  Called by main.go.

SELF-HEALING INSTRUCTIONS:
  - If adding new global flags, add them to init().

RELATED FILES:
  - cmd/bench-sweep/main.go

MAINTENANCE:
  - Update when adding global configuration options.
*/

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/daryltucker/bench-sweep/internal/config"
	"github.com/daryltucker/bench-sweep/internal/output"
	"github.com/spf13/cobra"
)

var (
	// cfgFile stores the path to the config file (if specified via flag)
	cfgFile   string
	logLevel  string
	logFormat string

	rootCmd = &cobra.Command{
		Use:   "bench-sweep",
		Short: "Resumable benchmark sweeps against an LLM inference server",
		Long: `Runs a benchmark client across a grid of request rates and prompt counts,
recording finished combinations so an interrupted sweep picks up where it stopped.
Use 'launch' to start the inference server and 'sweep --help' for sweep options.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return output.Setup(cmd.ErrOrStderr(), logLevel, logFormat)
		},
	}
)

// Execute executes the root command. SIGINT and SIGTERM cancel the command's
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./bench_sweep.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
}
