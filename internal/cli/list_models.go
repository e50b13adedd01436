/*
PURPOSE:
  Defines the 'list-models' subcommand.
  Shows which models can be swept and which can be launched.

REQUIREMENTS:
  User-specified:
  - List supported models.

  Implementation-discovered:
  - Client and server tables cover different model sets.

ARCHITECTURE INTEGRATION:
  - Uses: internal/config

ERROR HANDLING:
  - Returns error if the config cannot be loaded.

IMPLEMENTATION RULES:
  - Simple output to stdout.

USAGE:
  bench-sweep list-models

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/config/profiles.go

MAINTENANCE:
  - None.
*/

package cli

import (
	"io"
	"sort"

	"github.com/daryltucker/bench-sweep/internal/config"
	"github.com/daryltucker/bench-sweep/internal/output"
	"github.com/spf13/cobra"
)

var listModelsCmd = &cobra.Command{
	Use:   "list-models",
	Short: "List configured models and what they support",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return listModels(cmd.OutOrStdout(), cfg)
	},
}

func listModels(w io.Writer, cfg *config.Config) error {
	names := make([]string, 0, len(cfg.Models))
	for name := range cfg.Models {
		names = append(names, name)
	}
	sort.Strings(names)

	yesNo := func(b bool) string {
		if b {
			return "yes"
		}
		return "-"
	}

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		p := cfg.Models[name]
		path := ""
		if p.Server != nil {
			path = p.Server.ModelPath
		}
		rows = append(rows, []string{name, yesNo(p.Client != nil), yesNo(p.Server != nil), path})
	}
	return output.Table(w, []string{"MODEL", "SWEEP", "LAUNCH", "MODEL PATH"}, rows)
}

func init() {
	rootCmd.AddCommand(listModelsCmd)
}
