/*
PURPOSE:
  High-level runner that drives an idempotent, resumable benchmark sweep.
  Loops through every combination of the sweep axes and runs one external
  benchmark process per combination not yet recorded as complete.

REQUIREMENTS:
  User-specified:
  - Skip combinations already listed in the completion log.
  - Capture each run's command and output to its own log file.
  - Pause between runs so the server can settle.

  Implementation-discovered:
  - Identities must be unique across the grid or resume breaks silently.
  - An interrupted run must NOT be recorded, so it is retried next pass.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli
  - Uses: internal/engine (grid, rule, exec, completion), internal/output

ERROR HANDLING:
  - Per-combination failures (launch failure, non-zero exit, a child that
    cannot be waited for) are logged, recorded as failed, and the sweep
    continues.
  - Completion log and run log I/O failures abort the sweep.

IMPLEMENTATION RULES:
  - Strictly sequential: one child process at a time.
  - Read the completion log before every combination; never cache it.
  - Sync the completion log after every append.

USAGE:
  r := &engine.Runner{Axes: axes, Rule: rule, Log: log, Exec: engine.ProcessExecutor{}}
  summary, err := r.Run(ctx)

SELF-HEALING INSTRUCTIONS:
  - If runs repeat after a restart, check that identities are stable.

RELATED FILES:
  - internal/engine/completion.go
  - internal/engine/rule.go

MAINTENANCE:
  - Update iteration logic if parallel shards are introduced (needs file locking).
*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/daryltucker/bench-sweep/internal/model"
	"github.com/daryltucker/bench-sweep/internal/output"
)

// RetryPolicy decides which attempts are appended to the completion log.
type RetryPolicy string

const (
	// RecordAll marks every attempted combination complete, failed or not.
	RecordAll RetryPolicy = "record-all"
	// SuccessOnly marks only zero-exit attempts complete; failures run again
	// on the next pass.
	SuccessOnly RetryPolicy = "success-only"
)

// ParseRetryPolicy validates a policy name.
func ParseRetryPolicy(s string) (RetryPolicy, error) {
	switch RetryPolicy(s) {
	case RecordAll, SuccessOnly:
		return RetryPolicy(s), nil
	case "":
		return RecordAll, nil
	}
	return "", fmt.Errorf("unknown retry policy %q (want %s or %s)", s, RecordAll, SuccessOnly)
}

// Recorder receives every finished attempt.
type Recorder interface {
	Write(a model.Attempt) error
}

// SkipObserver is optionally implemented by a Recorder that also wants to
// hear about skipped combinations.
type SkipObserver interface {
	Skip(identity string)
}

// Step is one combination of the sweep with its identity and whether the
// completion log already lists it.
type Step struct {
	Combination Combination
	Identity    string
	Done        bool
}

// Summary counts what a pass did.
type Summary struct {
	Total     int
	Skipped   int
	Attempted int
	Succeeded int
	Failed    int
	Pending   int // dry run only
}

// Runner executes a sweep.
type Runner struct {
	Model  string
	Axes   []Axis
	Rule   Rule
	Log    *CompletionLog
	LogDir string
	Exec   Executor
	Pause  time.Duration
	Policy RetryPolicy
	DryRun bool
	// Echo, if set, also receives each run's combined output.
	Echo      io.Writer
	Recorders []Recorder
	PassID    string

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Plan enumerates the grid in visiting order and marks which steps the
// completion log already lists. It fails if two combinations share an
// identity.
func (r *Runner) Plan() ([]Step, error) {
	if err := ValidateAxes(r.Axes); err != nil {
		return nil, err
	}
	done, err := r.Log.Set()
	if err != nil {
		return nil, err
	}

	combos := Product(r.Axes)
	steps := make([]Step, 0, len(combos))
	seen := make(map[string]string, len(combos))
	for _, c := range combos {
		id, err := r.Rule.Identity(c)
		if err != nil {
			return nil, fmt.Errorf("failed to derive identity for %s: %w", c, err)
		}
		desc := r.describe(c)
		if prev, ok := seen[id]; ok {
			return nil, fmt.Errorf("identity %q is shared by [%s] and [%s]; change the grid or the identity template", id, prev, desc)
		}
		seen[id] = desc
		steps = append(steps, Step{Combination: c, Identity: id, Done: done[id]})
	}
	return steps, nil
}

// describe renders a combination with the rule's derived values, which is
// where clamped values such as a prompt count show up.
func (r *Runner) describe(c Combination) string {
	d, ok := r.Rule.(interface {
		Derived(c Combination) ([]Var, error)
	})
	if !ok {
		return c.String()
	}
	vars, err := d.Derived(c)
	if err != nil || len(vars) == 0 {
		return c.String()
	}
	parts := make([]string, len(vars))
	for i, v := range vars {
		parts[i] = v.Name + "=" + v.Value
	}
	return c.String() + "; " + strings.Join(parts, ", ")
}

// Run performs one pass over the grid. It returns early with ctx.Err() when
// cancelled; the interrupted combination is left unrecorded.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	steps, err := r.Plan()
	if err != nil {
		return sum, err
	}
	sum.Total = len(steps)

	if r.LogDir != "" && !r.DryRun {
		if err := os.MkdirAll(r.LogDir, 0755); err != nil {
			return sum, fmt.Errorf("failed to create run log directory %s: %w", r.LogDir, err)
		}
	}

	generated := r.now()
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		// The log is re-read per combination so entries added by hand or
		// by an earlier step are honoured.
		done, err := r.Log.Contains(step.Identity)
		if err != nil {
			return sum, err
		}
		if done {
			output.Logger.Info("Skipping already completed combination", "identity", step.Identity)
			sum.Skipped++
			r.notifySkip(step.Identity)
			continue
		}

		inv, err := r.Rule.Invocation(step.Combination)
		if err != nil {
			return sum, fmt.Errorf("failed to build command for %s: %w", step.Identity, err)
		}

		if r.DryRun {
			output.Logger.Info("Would run", "identity", step.Identity, "command", inv.String())
			sum.Pending++
			continue
		}

		attempt, err := r.attempt(ctx, step, inv, generated)
		if err != nil {
			if ctx.Err() != nil {
				output.Logger.Warn("Run interrupted, not recording", "identity", step.Identity)
			}
			return sum, err
		}

		sum.Attempted++
		if attempt.Succeeded() {
			sum.Succeeded++
		} else {
			sum.Failed++
		}

		if r.Policy != SuccessOnly || attempt.Succeeded() {
			if err := r.Log.Append(step.Identity); err != nil {
				return sum, err
			}
			attempt.Recorded = true
		} else {
			output.Logger.Warn("Run failed, leaving it for the next pass", "identity", step.Identity, "exit_code", attempt.ExitCode)
		}

		for _, rec := range r.Recorders {
			if err := rec.Write(attempt); err != nil {
				output.Logger.Error("Failed to record attempt", "identity", step.Identity, "error", err)
			}
		}

		if err := r.sleep(ctx, r.Pause); err != nil {
			return sum, err
		}
	}

	return sum, nil
}

func (r *Runner) attempt(ctx context.Context, step Step, inv Invocation, generated time.Time) (model.Attempt, error) {
	name, err := r.Rule.RunLogName(step.Combination, generated)
	if err != nil {
		return model.Attempt{}, fmt.Errorf("failed to name run log for %s: %w", step.Identity, err)
	}
	f, path, err := createRunLog(filepath.Join(r.LogDir, name))
	if err != nil {
		return model.Attempt{}, err
	}
	defer f.Close()

	attempt := model.Attempt{
		PassID:    r.PassID,
		Identity:  step.Identity,
		Model:     r.Model,
		Values:    step.Combination.Values(),
		Command:   inv.String(),
		RunLog:    path,
		Timestamp: r.now(),
	}

	if _, err := fmt.Fprintf(f, "Executing: %s\n", attempt.Command); err != nil {
		discardRunLog(f, path)
		return attempt, fmt.Errorf("failed to write run log %s: %w", path, err)
	}

	var out io.Writer = f
	if r.Echo != nil {
		out = io.MultiWriter(f, r.Echo)
	}

	output.Logger.Info("Running benchmark", "identity", step.Identity, "combination", step.Combination.String(), "run_log", path)

	code, err := r.Exec.Execute(ctx, inv, out)
	attempt.Duration = r.now().Sub(attempt.Timestamp)
	attempt.ExitCode = code

	var launchErr *LaunchError
	switch {
	case err == nil && code == 0:
		attempt.Status = model.StatusSucceeded
		output.Logger.Info("Benchmark finished", "identity", step.Identity, "duration", attempt.Duration)
	case err == nil:
		attempt.Status = model.StatusFailed
		attempt.Error = "exit status " + strconv.Itoa(code)
		output.Logger.Warn("Benchmark exited non-zero", "identity", step.Identity, "exit_code", code)
	case errors.As(err, &launchErr):
		attempt.Status = model.StatusLaunchFailed
		attempt.Error = err.Error()
		fmt.Fprintf(f, "Launch failed: %v\n", err)
		output.Logger.Error("Benchmark could not be started", "identity", step.Identity, "error", err)
	case ctx.Err() != nil:
		return attempt, err
	default:
		attempt.Status = model.StatusFailed
		attempt.Error = err.Error()
		fmt.Fprintf(f, "Run failed: %v\n", err)
		output.Logger.Error("Benchmark run failed", "identity", step.Identity, "error", err)
	}

	if err := f.Sync(); err != nil {
		output.Logger.Warn("Failed to sync run log", "path", path, "error", err)
	}
	return attempt, nil
}

// createRunLog opens a new file for exclusive append. If the name is taken
// (same generation timestamp) a numeric suffix is added.
func createRunLog(path string) (*os.File, string, error) {
	candidate := path
	for i := 1; ; i++ {
		f, err := os.OpenFile(candidate, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			return f, candidate, nil
		}
		if !errors.Is(err, os.ErrExist) || i > 100 {
			return nil, "", fmt.Errorf("failed to create run log %s: %w", candidate, err)
		}
		ext := filepath.Ext(path)
		candidate = fmt.Sprintf("%s.%d%s", path[:len(path)-len(ext)], i, ext)
	}
}

// discardRunLog removes a run log that never received its header, so no
// file is left behind without a matching attempt.
func discardRunLog(f *os.File, path string) {
	f.Close()
	if err := os.Remove(path); err != nil {
		output.Logger.Warn("Failed to remove run log", "path", path, "error", err)
	}
}

func (r *Runner) notifySkip(identity string) {
	for _, rec := range r.Recorders {
		if obs, ok := rec.(SkipObserver); ok {
			obs.Skip(identity)
		}
	}
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
