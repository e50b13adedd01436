/*
PURPOSE:
  Defines the 'launch' subcommand.
  Starts the inference server with a model's environment and flags.

REQUIREMENTS:
  User-specified:
  - Model, attention backend and profiling switch.
  - --print-only shows the command and variables without running it.

  Implementation-discovered:
  - --env-file adds variables from a dotenv file for one-off tuning.

ARCHITECTURE INTEGRATION:
  - Calls: internal/launch

ERROR HANDLING:
  - Returns error for unknown models or a server that cannot start.
  - A non-zero server exit is reported as an error so scripts notice.

IMPLEMENTATION RULES:
  - Setup flags in init().

USAGE:
  bench-sweep launch --model GROK2 --print-only

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/launch/launch.go

MAINTENANCE:
  - None.
*/

package cli

import (
	"fmt"
	"os"

	"github.com/daryltucker/bench-sweep/internal/engine"
	"github.com/daryltucker/bench-sweep/internal/launch"
	"github.com/spf13/cobra"
)

var (
	launchModel     string
	launchBackend   string
	launchProfiling string
	launchPrintOnly bool
	launchEnvFile   string
	launchLogDir    string
)

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Launch the inference server for a model",
	Example: `  # Inspect the command for GROK2
  bench-sweep launch --model GROK2 --print-only

  # Launch LLAMA3.1-8B with profiling enabled
  bench-sweep launch --model LLAMA3.1-8B --profiling profile`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if launchProfiling != "off" && launchProfiling != "profile" {
			return fmt.Errorf("invalid --profiling %q (want off or profile)", launchProfiling)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		profile, err := cfg.Server(launchModel)
		if err != nil {
			return err
		}

		plan, err := launch.Build(profile, launch.Options{
			Model:       launchModel,
			AttnBackend: launchBackend,
			Profiling:   launchProfiling == "profile",
			EnvFile:     launchEnvFile,
			LogDir:      launchLogDir,
		}, os.Environ())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		launch.Print(out, plan)
		if launchPrintOnly {
			fmt.Fprintln(out, "\n--print-only mode: command not executed.")
			return nil
		}

		code, err := launch.Run(cmd.Context(), plan, engine.ProcessExecutor{}, out)
		if err != nil {
			return err
		}
		if code != 0 {
			return fmt.Errorf("server exited with status %d", code)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(launchCmd)

	launchCmd.Flags().StringVarP(&launchModel, "model", "m", "GROK1", "model to serve (see list-models)")
	launchCmd.Flags().StringVar(&launchBackend, "attn-backend", "aiter", "attention backend")
	launchCmd.Flags().StringVar(&launchProfiling, "profiling", "off", "off or profile")
	launchCmd.Flags().BoolVar(&launchPrintOnly, "print-only", false, "print command and environment without executing")
	launchCmd.Flags().StringVar(&launchEnvFile, "env-file", "", "dotenv file with extra server environment variables")
	launchCmd.Flags().StringVar(&launchLogDir, "log-dir", "", "directory for the server log file")
}
