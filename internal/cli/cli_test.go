package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/daryltucker/bench-sweep/internal/config"
	"github.com/daryltucker/bench-sweep/internal/engine"
	"github.com/daryltucker/bench-sweep/internal/model"
	"github.com/daryltucker/bench-sweep/internal/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.CompletedFile = filepath.Join(dir, "completed_combinations.log")
	cfg.LogDir = filepath.Join(dir, "logs")
	cfg.Journal = filepath.Join(dir, "attempts.jsonl")
	cfg.Pause = 0
	return cfg
}

func TestBuildRunner_GROK2MatchesScriptNaming(t *testing.T) {
	cfg := testConfig(t)
	r, err := buildRunner(cfg, "GROK2")
	require.NoError(t, err)

	steps, err := r.Plan()
	require.NoError(t, err)
	require.Len(t, steps, 12)

	assert.Equal(t, "GROK2_1_300_run1", steps[0].Identity)
	assert.Equal(t, "GROK2_1_300_run3", steps[2].Identity)
	assert.Equal(t, "GROK2_8_2400_run3", steps[11].Identity)

	inv, err := r.Rule.Invocation(steps[3].Combination)
	require.NoError(t, err)
	assert.Equal(t, "python3 -m sglang.bench_serving --backend sglang --dataset-name random "+
		"--random-input 8192 --random-output 1024 --num-prompts 600 "+
		"--tokenizer /data2/grok-2/tokenizer.tok.json --request-rate 2 --output-file online-GROK2.jsonl", inv.String())

	name, err := r.Rule.RunLogName(steps[3].Combination, time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "sglang_client_log_grok2_2_max2400_run1_20250304_050607.log", name)
}

func TestBuildRunner_UnknownModel(t *testing.T) {
	_, err := buildRunner(testConfig(t), "GROK2.8T")
	assert.ErrorIs(t, err, config.ErrUnknownModel)
}

func TestBuildRunner_DoesNotCreateCompletionLog(t *testing.T) {
	cfg := testConfig(t)
	_, err := buildRunner(cfg, "GROK2")
	require.NoError(t, err)
	assert.NoFileExists(t, cfg.CompletedFile)
}

func TestBuildRunner_ClampedPromptCapsCollide(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, overrideAxis(cfg, "max_prompts", []int{300, 2400}))
	r, err := buildRunner(cfg, "GROK2")
	require.NoError(t, err)

	_, err = r.Plan()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `identity "GROK2_1_300_run1" is shared`)
	assert.Contains(t, err.Error(), "[rate=1, max_prompts=2400, run=1; num_prompts=300]")
}

func TestOverrideAxis(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, overrideAxis(cfg, "rate", []int{16, 32}))
	assert.Equal(t, []string{"16", "32"}, cfg.Sweep.Axes[0].Values)

	assert.Error(t, overrideAxis(cfg, "concurrency", []int{1}))
}

func TestPrintStatus(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sweep.Axes[0].Values = []string{"1", "2"}
	require.NoError(t, os.WriteFile(cfg.CompletedFile, []byte("GROK2_1_300_run1\nGROK2_1_300_run2\n"), 0644))

	jw, err := output.NewJSONWriter(cfg.Journal)
	require.NoError(t, err)
	require.NoError(t, jw.Write(model.Attempt{Identity: "GROK2_1_300_run2", Status: model.StatusFailed}))
	require.NoError(t, jw.Close())

	var buf bytes.Buffer
	require.NoError(t, printStatus(&buf, cfg, "GROK2", false))
	out := buf.String()

	assert.Contains(t, out, "2/6 done, 4 pending")
	assert.Regexp(t, `GROK2_1_300_run2\s+done\s+failed`, out)
	assert.Regexp(t, `GROK2_2_600_run3\s+pending`, out)

	buf.Reset()
	require.NoError(t, printStatus(&buf, cfg, "GROK2", true))
	assert.NotContains(t, buf.String(), "GROK2_1_300_run1 ")
	assert.Contains(t, buf.String(), "GROK2_1_300_run3")
}

func TestListModels(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, listModels(&buf, config.DefaultConfig()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2+7)
	assert.Regexp(t, `^GROK2\s+yes\s+yes\s+/data2/grok-2/$`, lines[5])
	assert.Regexp(t, `^GROK1-INT4\s+yes\s+-\s*$`, lines[4])
}

func shellConfig(t *testing.T, script string) *config.Config {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	cfg := testConfig(t)
	cfg.Sweep.Axes = []config.AxisConfig{
		{Name: "rate", Values: []string{"1", "2"}},
		{Name: "cap", Values: []string{"10"}},
	}
	cfg.Models["M"] = config.Profile{Client: &config.ClientProfile{
		Program: "/bin/sh",
		Args:    []string{"-c", script, "bench", "{{.rate}}", "{{.run}}"},
	}}
	return cfg
}

func TestRunSweep_EndToEndWithFailingStub(t *testing.T) {
	cfg := shellConfig(t, `echo "rate=$1 run=$2"; exit 1`)
	require.NoError(t, os.WriteFile(cfg.CompletedFile, []byte("M_1_10_run1\nM_1_10_run2\n"), 0644))

	var stdout, stderr bytes.Buffer
	sum, err := runSweep(context.Background(), cfg, sweepOptions{Model: "M"}, &stdout, &stderr)
	require.NoError(t, err)

	assert.Equal(t, engine.Summary{Total: 6, Skipped: 2, Attempted: 4, Failed: 4}, sum)

	data, err := os.ReadFile(cfg.CompletedFile)
	require.NoError(t, err)
	assert.Equal(t, "M_1_10_run1\nM_1_10_run2\nM_1_10_run3\nM_2_10_run1\nM_2_10_run2\nM_2_10_run3\n", string(data))

	attempts, err := output.ReadJournal(cfg.Journal)
	require.NoError(t, err)
	require.Len(t, attempts, 4)
	assert.Equal(t, "M_1_10_run3", attempts[0].Identity)
	assert.Equal(t, model.StatusFailed, attempts[0].Status)
	assert.Equal(t, attempts[0].PassID, attempts[3].PassID)

	runLog, err := os.ReadFile(attempts[1].RunLog)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(runLog), "Executing: /bin/sh -c "))
	assert.Contains(t, string(runLog), "rate=2 run=1\n")

	// Second pass: nothing left to do.
	sum, err = runSweep(context.Background(), cfg, sweepOptions{Model: "M"}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Equal(t, 6, sum.Skipped)
	assert.Equal(t, 0, sum.Attempted)
}

func TestRunSweep_DryRunTouchesNothing(t *testing.T) {
	cfg := shellConfig(t, "exit 0")

	var stdout, stderr bytes.Buffer
	sum, err := runSweep(context.Background(), cfg, sweepOptions{Model: "M", DryRun: true}, &stdout, &stderr)
	require.NoError(t, err)

	assert.Equal(t, 6, sum.Pending)
	assert.NoFileExists(t, cfg.CompletedFile)
	assert.NoFileExists(t, cfg.Journal)
	assert.NoDirExists(t, cfg.LogDir)
}

func TestRunSweep_TeeAndCSV(t *testing.T) {
	cfg := shellConfig(t, `echo "hello $1"`)
	cfg.Sweep.Axes[0].Values = []string{"7"}
	cfg.Sweep.Repetitions = 1
	cfg.CSV = filepath.Join(t.TempDir(), "attempts.csv")
	cfg.MetricsFile = filepath.Join(t.TempDir(), "sweep.prom")

	var stdout, stderr bytes.Buffer
	sum, err := runSweep(context.Background(), cfg, sweepOptions{Model: "M", Tee: true}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Succeeded)

	assert.Equal(t, "hello 7\n", stdout.String())
	assert.FileExists(t, cfg.CSV)
	metrics, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `bench_sweep_attempts_total{model="M",status="succeeded"} 1`)
}
