/*
PURPOSE:
  Builds and runs the inference server command for a model profile.
  The sweep needs a running server; this is the companion to `sweep`.

REQUIREMENTS:
  User-specified:
  - Per-model environment variables and flags.
  - Print the command and relevant variables; optionally stop there.
  - Tee server output to the console and a timestamped log file.

  Implementation-discovered:
  - The per-model environment is built as an explicit map handed to the
    child process; the launcher's own environment is never mutated.
  - Extra variables can come from a dotenv file.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (launch)
  - Uses: internal/config, internal/engine (Invocation, Executor)

ERROR HANDLING:
  - Returns error if the dotenv file cannot be read or the log file
    cannot be created. The server's exit code is returned, not judged.

IMPLEMENTATION RULES:
  - Flag order follows the SGLang launch script so logs stay comparable.

USAGE:
  plan, err := launch.Build(profile, launch.Options{Model: "GROK2"}, os.Environ())
  launch.Print(os.Stdout, plan)
  code, err := launch.Run(ctx, plan, engine.ProcessExecutor{}, os.Stdout)

SELF-HEALING INSTRUCTIONS:
  - If the server rejects a flag, check the profile's extra_args first.

RELATED FILES:
  - internal/config/profiles.go

MAINTENANCE:
  - Update PrintedPrefixes when new vendor variables matter.
*/

package launch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/daryltucker/bench-sweep/internal/config"
	"github.com/daryltucker/bench-sweep/internal/engine"
	"github.com/daryltucker/bench-sweep/internal/output"
	"github.com/joho/godotenv"
)

// PrintedPrefixes selects which environment variables Print shows.
var PrintedPrefixes = []string{"SGLANG_", "RCCL_"}

// Options are the per-launch choices that are not part of the profile.
type Options struct {
	Model       string
	AttnBackend string
	Profiling   bool
	EnvFile     string
	LogDir      string
	Timestamp   time.Time
}

// Plan is a fully built server launch.
type Plan struct {
	Model      string
	Invocation engine.Invocation
	LogFile    string
}

// Build assembles the server command and its environment from base (usually
// os.Environ()), the profile's env table and the optional dotenv file, in
// that order of precedence.
func Build(p *config.ServerProfile, opts Options, base []string) (Plan, error) {
	if p == nil {
		return Plan{}, fmt.Errorf("no server profile for %s", opts.Model)
	}

	env := engine.MergeEnv(base, p.Env)
	if opts.EnvFile != "" {
		extra, err := godotenv.Read(opts.EnvFile)
		if err != nil {
			return Plan{}, fmt.Errorf("failed to read env file %s: %w", opts.EnvFile, err)
		}
		for k, v := range extra {
			env[k] = v
		}
	}

	backend := opts.AttnBackend
	if backend == "" {
		backend = "aiter"
	}
	quant := p.Quantization
	if quant == "" {
		quant = "fp8"
	}
	tp := p.TP
	if tp == 0 {
		tp = 8
	}
	program := p.Program
	if program == "" {
		program = "python3"
	}

	var args []string
	if p.Module != "" {
		args = append(args, "-m", p.Module)
	}
	args = append(args,
		"--model", p.ModelPath,
		"--tp", strconv.Itoa(tp),
		"--quantization", quant,
		"--trust-remote-code",
		"--attention-backend", backend,
	)
	if p.TokenizerPath != "" {
		args = append(args, "--tokenizer-path", p.TokenizerPath)
	}
	args = append(args, p.ExtraArgs...)
	if opts.Profiling {
		args = append(args, "--enable-profiling")
	}

	ts := opts.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	logFile := fmt.Sprintf("sglang_server_log_%s.json", ts.Format(engine.TimestampLayout))
	if opts.LogDir != "" {
		logFile = filepath.Join(opts.LogDir, logFile)
	}

	return Plan{
		Model:      opts.Model,
		Invocation: engine.Invocation{Program: program, Args: args, Env: env},
		LogFile:    logFile,
	}, nil
}

// Print writes the vendor environment variables, the command and the log
// file name.
func Print(w io.Writer, plan Plan) {
	fmt.Fprintln(w, "Environment Variables:")
	keys := make([]string, 0, len(plan.Invocation.Env))
	for k := range plan.Invocation.Env {
		for _, prefix := range PrintedPrefixes {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
				break
			}
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s=%s\n", k, plan.Invocation.Env[k])
	}

	fmt.Fprintln(w, "\nCommand:")
	fmt.Fprintln(w, plan.Invocation.String())
	fmt.Fprintf(w, "\nLog File: %s\n", plan.LogFile)
}

// Run starts the server and blocks until it exits, copying its combined
// output to console and the plan's log file.
func Run(ctx context.Context, plan Plan, exec engine.Executor, console io.Writer) (int, error) {
	if dir := filepath.Dir(plan.LogFile); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return -1, fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}
	}
	f, err := os.Create(plan.LogFile)
	if err != nil {
		return -1, fmt.Errorf("failed to create server log %s: %w", plan.LogFile, err)
	}
	defer f.Close()

	output.Logger.Info("Launching server", "model", plan.Model, "log_file", plan.LogFile)
	code, err := exec.Execute(ctx, plan.Invocation, io.MultiWriter(console, f))
	if err != nil {
		return code, err
	}
	output.Logger.Info("Server exited", "model", plan.Model, "exit_code", code)
	return code, nil
}
