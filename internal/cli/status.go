/*
PURPOSE:
  Defines the 'status' subcommand.
  Shows which combinations are done without running anything.

ERROR HANDLING:
  - A missing journal is not an error.

IMPLEMENTATION RULES:
  - Read-only: never creates the completion log.

USAGE:
  bench-sweep status --model GROK2 --pending
*/

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/daryltucker/bench-sweep/internal/config"
	"github.com/daryltucker/bench-sweep/internal/output"
	"github.com/spf13/cobra"
)

var (
	statusModel     string
	statusPending   bool
	statusCompleted string
	statusJournal   string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which combinations of a sweep are done",
	Long: `Lists every combination of the sweep grid for a model with its identity and
whether the completion log lists it. The completion log is only read.
If the attempt journal exists, the last recorded outcome is shown too.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("completed-file") {
			cfg.CompletedFile = statusCompleted
		}
		if cmd.Flags().Changed("journal") {
			cfg.Journal = statusJournal
		}
		return printStatus(cmd.OutOrStdout(), cfg, statusModel, statusPending)
	},
}

func printStatus(w io.Writer, cfg *config.Config, model string, pendingOnly bool) error {
	r, err := buildRunner(cfg, model)
	if err != nil {
		return err
	}
	steps, err := r.Plan()
	if err != nil {
		return err
	}

	latest := map[string]string{}
	if cfg.Journal != "" {
		attempts, err := output.ReadJournal(cfg.Journal)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		for id, a := range output.LatestByIdentity(attempts) {
			latest[id] = string(a.Status)
		}
	}

	done := 0
	rows := make([][]string, 0, len(steps))
	for _, s := range steps {
		state := "pending"
		if s.Done {
			state = "done"
			done++
			if pendingOnly {
				continue
			}
		}
		rows = append(rows, []string{s.Identity, state, latest[s.Identity], s.Combination.String()})
	}

	if err := output.Table(w, []string{"IDENTITY", "STATE", "LAST", "COMBINATION"}, rows); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "\n%d/%d done, %d pending (%s)\n", done, len(steps), len(steps)-done, cfg.CompletedFile)
	return err
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusModel, "model", "m", "", "model whose sweep to inspect")
	statusCmd.Flags().BoolVar(&statusPending, "pending", false, "only list combinations not yet done")
	statusCmd.Flags().StringVar(&statusCompleted, "completed-file", "", "completion log path (overrides config)")
	statusCmd.Flags().StringVar(&statusJournal, "journal", "", "attempt journal to read outcomes from (overrides config)")
	_ = statusCmd.MarkFlagRequired("model")
	_ = statusCmd.RegisterFlagCompletionFunc("model", completeClientModels)
}
