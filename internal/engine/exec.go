/*
PURPOSE:
  Runs one external command and reports its exit code.

REQUIREMENTS:
  User-specified:
  - Per-model environment variables for the child.

  Implementation-discovered:
  - Distinguish "could not start" from "ran and failed".
  - Background children may hold the output pipe after exit.

ARCHITECTURE INTEGRATION:
  - Used by: internal/engine/runner.go, internal/launch

ERROR HANDLING:
  - Non-zero exit is a result, not an error.
  - Start failures return *LaunchError; cancellation returns ctx.Err().

IMPLEMENTATION RULES:
  - Never touch the runner's own environment.
  - No shell: argv is passed as-is.

USAGE:
  code, err := engine.ProcessExecutor{}.Execute(ctx, inv, logFile)

SELF-HEALING INSTRUCTIONS:
  - If children linger after Ctrl-C, lower WaitDelay.

RELATED FILES:
  - internal/engine/runner.go

MAINTENANCE:
  - None.
*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// Invocation is the fully materialized command for one external run.
// Env is the complete environment handed to the child; a nil Env inherits
// the parent's environment unchanged.
type Invocation struct {
	Program string
	Args    []string
	Env     map[string]string
}

// String renders the invocation as a shell-like command line.
func (inv Invocation) String() string {
	parts := make([]string, 0, len(inv.Args)+1)
	parts = append(parts, quoteArg(inv.Program))
	for _, a := range inv.Args {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}

// Environ returns Env as sorted KEY=VALUE pairs, or nil when Env is nil.
func (inv Invocation) Environ() []string {
	if inv.Env == nil {
		return nil
	}
	out := make([]string, 0, len(inv.Env))
	for k, v := range inv.Env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func quoteArg(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// LaunchError means the process could not be started at all.
type LaunchError struct {
	Program string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Program, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Executor runs an invocation to completion with its combined output
// written to out. It returns the exit code; a non-zero exit is not an error.
type Executor interface {
	Execute(ctx context.Context, inv Invocation, out io.Writer) (int, error)
}

// ProcessExecutor launches invocations as OS processes.
type ProcessExecutor struct {
	// WaitDelay bounds how long to wait for the child after it has been
	// signalled on cancellation.
	WaitDelay time.Duration
}

// Execute implements Executor. Cancelling ctx sends the child an interrupt.
func (p ProcessExecutor) Execute(ctx context.Context, inv Invocation, out io.Writer) (int, error) {
	cmd := exec.CommandContext(ctx, inv.Program, inv.Args...)
	cmd.Env = inv.Environ()
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = p.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = 10 * time.Second
	}

	if err := cmd.Start(); err != nil {
		return -1, &LaunchError{Program: inv.Program, Err: err}
	}

	err := cmd.Wait()
	if ctx.Err() != nil {
		return -1, ctx.Err()
	}
	if err == nil {
		return 0, nil
	}
	// The child exited but something it spawned still holds the output
	// pipe open. The exit status is still valid.
	if errors.Is(err, exec.ErrWaitDelay) {
		return cmd.ProcessState.ExitCode(), nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// MergeEnv copies base (KEY=VALUE pairs, as from os.Environ) into a new map
// and applies overlay on top. Neither input is modified.
func MergeEnv(base []string, overlay map[string]string) map[string]string {
	env := make(map[string]string, len(base)+len(overlay))
	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = v
	}
	for k, v := range overlay {
		env[k] = v
	}
	return env
}
