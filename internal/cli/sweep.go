/*
PURPOSE:
  Defines the 'sweep' subcommand.
  Runs the benchmark client over the configured grid for one model.

REQUIREMENTS:
  User-specified:
  - Select the model from a fixed set of supported models.
  - Resume interrupted sweeps from the completion log.

  Implementation-discovered:
  - Need to load config first, then apply flag overrides.
  - Optional readiness wait so early runs do not hit a loading server.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine.Runner
  - Uses: internal/config, internal/output

ERROR HANDLING:
  - Returns error if config load fails or the sweep aborts.
  - A failed benchmark run is not an error.

IMPLEMENTATION RULES:
  - Setup flags in init().
  - Logic: Load Config -> Override -> Build Runner -> Run.

USAGE:
  bench-sweep sweep --model GROK2

SELF-HEALING INSTRUCTIONS:
  - Check flag names match Config struct fields generally.

RELATED FILES:
  - internal/engine/runner.go

MAINTENANCE:
  - Update when adding new CLI overrides.
*/

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/daryltucker/bench-sweep/internal/config"
	"github.com/daryltucker/bench-sweep/internal/engine"
	"github.com/daryltucker/bench-sweep/internal/output"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// sweepOptions are the per-invocation switches that are not config fields.
type sweepOptions struct {
	Model     string
	DryRun    bool
	WaitReady bool
	Progress  bool
	Tee       bool
}

var (
	sweepOpts sweepOptions

	completedOverride   string
	logDirOverride      string
	pauseOverride       time.Duration
	policyOverride      string
	journalOverride     string
	csvOverride         string
	metricsOverride     string
	ratesOverride       []int
	maxPromptsOverride  []int
	repetitionsOverride int
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the benchmark sweep for one model",
	Long: `Runs the benchmark client once per combination of request rate, prompt cap
and repetition. Each finished combination is appended to the completion log;
combinations already listed there are skipped, so rerunning the same command
after an interruption resumes the sweep.

By default a combination is recorded even if the benchmark exits non-zero
(--retry-policy record-all). Use --retry-policy success-only to leave failed
combinations for the next pass.`,
	Example: `  # Full sweep for GROK2 with defaults
  bench-sweep sweep --model GROK2

  # Show what would run without launching anything
  bench-sweep sweep --model GROK1-FP8 --dry-run

  # Narrow the grid and wait for the server first
  bench-sweep sweep --model GROK2 --rates 1,2 --repetitions 1 --wait-ready`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := applySweepOverrides(cmd, cfg); err != nil {
			return err
		}
		_, err = runSweep(cmd.Context(), cfg, sweepOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		return err
	},
}

func applySweepOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("completed-file") {
		cfg.CompletedFile = completedOverride
	}
	if flags.Changed("log-dir") {
		cfg.LogDir = logDirOverride
	}
	if flags.Changed("pause") {
		cfg.Pause = pauseOverride
	}
	if flags.Changed("retry-policy") {
		cfg.RetryPolicy = policyOverride
	}
	if flags.Changed("journal") {
		cfg.Journal = journalOverride
	}
	if flags.Changed("csv") {
		cfg.CSV = csvOverride
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = metricsOverride
	}
	if flags.Changed("repetitions") {
		cfg.Sweep.Repetitions = repetitionsOverride
	}
	if flags.Changed("rates") {
		if err := overrideAxis(cfg, "rate", ratesOverride); err != nil {
			return err
		}
	}
	if flags.Changed("max-prompts") {
		if err := overrideAxis(cfg, "max_prompts", maxPromptsOverride); err != nil {
			return err
		}
	}
	return cfg.Validate()
}

func overrideAxis(cfg *config.Config, name string, values []int) error {
	strs := make([]string, len(values))
	for i, v := range values {
		strs[i] = strconv.Itoa(v)
	}
	for i := range cfg.Sweep.Axes {
		if cfg.Sweep.Axes[i].Name == name {
			cfg.Sweep.Axes[i].Values = strs
			return nil
		}
	}
	return fmt.Errorf("config has no %q axis to override", name)
}

// buildRunner wires a Runner for model from cfg. The completion log handle is
// read-only until the caller opens it for a real pass.
func buildRunner(cfg *config.Config, model string) (*engine.Runner, error) {
	cp, err := cfg.Client(model)
	if err != nil {
		return nil, err
	}

	axes := make([]engine.Axis, 0, len(cfg.Sweep.Axes)+1)
	for _, a := range cfg.Sweep.Axes {
		axes = append(axes, engine.Axis{Name: a.Name, Values: a.Values, Prefix: a.Prefix})
	}
	axes = append(axes, engine.RepetitionAxis(cfg.Sweep.Repetitions))

	spec := engine.RuleSpec{
		Model:    model,
		Program:  cp.Program,
		Args:     cp.Args,
		Identity: cp.Identity,
		RunLog:   cp.RunLog,
	}
	for _, v := range cp.Vars {
		spec.Vars = append(spec.Vars, engine.Var{Name: v.Name, Value: v.Value})
	}
	if len(cp.Env) > 0 {
		spec.Env = engine.MergeEnv(os.Environ(), cp.Env)
	}
	rule, err := engine.NewTemplateRule(spec)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", model, err)
	}

	policy, err := engine.ParseRetryPolicy(cfg.RetryPolicy)
	if err != nil {
		return nil, err
	}

	return &engine.Runner{
		Model:  model,
		Axes:   axes,
		Rule:   rule,
		Log:    engine.CompletionLogAt(cfg.CompletedFile),
		LogDir: cfg.LogDir,
		Exec:   engine.ProcessExecutor{},
		Pause:  cfg.Pause,
		Policy: policy,
	}, nil
}

type closer interface{ Close() error }

func runSweep(ctx context.Context, cfg *config.Config, opts sweepOptions, stdout, stderr io.Writer) (engine.Summary, error) {
	r, err := buildRunner(cfg, opts.Model)
	if err != nil {
		return engine.Summary{}, err
	}
	r.DryRun = opts.DryRun
	r.PassID = uuid.NewString()

	var closers []closer
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				output.Logger.Warn("Failed to close output", "error", err)
			}
		}
	}()

	if !opts.DryRun {
		log, err := engine.OpenCompletionLog(cfg.CompletedFile)
		if err != nil {
			return engine.Summary{}, err
		}
		r.Log = log

		if cfg.Journal != "" {
			jw, err := output.NewJSONWriter(cfg.Journal)
			if err != nil {
				return engine.Summary{}, fmt.Errorf("failed to init journal at %s: %w", cfg.Journal, err)
			}
			closers = append(closers, jw)
			r.Recorders = append(r.Recorders, jw)
		}
		if cfg.CSV != "" {
			cw, err := output.NewCSVWriter(cfg.CSV)
			if err != nil {
				return engine.Summary{}, fmt.Errorf("failed to init CSV writer at %s: %w", cfg.CSV, err)
			}
			closers = append(closers, cw)
			r.Recorders = append(r.Recorders, cw)
		}
		if cfg.MetricsFile != "" {
			r.Recorders = append(r.Recorders, output.NewMetrics(cfg.MetricsFile, opts.Model))
		}
		if opts.Tee {
			r.Echo = stdout
		}
	}

	var progress *output.Progress
	if opts.Progress && !opts.DryRun {
		progress = output.NewProgress(stderr, opts.Model, engine.GridSize(r.Axes))
		r.Recorders = append(r.Recorders, progress)
	}

	if opts.WaitReady && !opts.DryRun {
		probe := engine.NewProbe(cfg.ReadyTimeout, cfg.ReadyRetries, cfg.ReadyDelay)
		if err := probe.WaitReady(ctx, cfg.HealthURL); err != nil {
			return engine.Summary{}, err
		}
	}

	output.Logger.Info("Starting sweep",
		"model", opts.Model,
		"pass_id", r.PassID,
		"combinations", engine.GridSize(r.Axes),
		"completed_file", cfg.CompletedFile,
		"retry_policy", r.Policy,
		"dry_run", opts.DryRun,
	)

	sum, err := r.Run(ctx)
	if progress != nil {
		_ = progress.Finish()
	}

	output.Logger.Info("Sweep finished",
		"model", opts.Model,
		"total", sum.Total,
		"skipped", sum.Skipped,
		"attempted", sum.Attempted,
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
		"pending", sum.Pending,
	)
	return sum, err
}

func completeClientModels(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	return cfg.ClientModels(), cobra.ShellCompDirectiveNoFileComp
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	flags := sweepCmd.Flags()
	flags.StringVarP(&sweepOpts.Model, "model", "m", "", "model to benchmark (see list-models)")
	flags.BoolVar(&sweepOpts.DryRun, "dry-run", false, "list pending combinations without running them")
	flags.BoolVar(&sweepOpts.WaitReady, "wait-ready", false, "wait for the server health endpoint before the first run")
	flags.BoolVar(&sweepOpts.Progress, "progress", false, "show a progress bar on stderr")
	flags.BoolVar(&sweepOpts.Tee, "tee", false, "also copy benchmark output to stdout")

	flags.StringVar(&completedOverride, "completed-file", "", "completion log path (overrides config)")
	flags.StringVar(&logDirOverride, "log-dir", "", "directory for per-run log files (overrides config)")
	flags.DurationVar(&pauseOverride, "pause", 0, "pause between runs, e.g. 15s (overrides config)")
	flags.StringVar(&policyOverride, "retry-policy", "", "record-all or success-only (overrides config)")
	flags.StringVar(&journalOverride, "journal", "", "JSON Lines attempt journal; empty disables (overrides config)")
	flags.StringVar(&csvOverride, "csv", "", "CSV attempt summary; empty disables (overrides config)")
	flags.StringVar(&metricsOverride, "metrics-file", "", "Prometheus textfile to update after each run")
	flags.IntSliceVar(&ratesOverride, "rates", nil, "comma-separated request rates")
	flags.IntSliceVar(&maxPromptsOverride, "max-prompts", nil, "comma-separated prompt caps")
	flags.IntVar(&repetitionsOverride, "repetitions", 0, "runs per combination")

	_ = sweepCmd.MarkFlagRequired("model")
	_ = sweepCmd.RegisterFlagCompletionFunc("model", completeClientModels)
}
