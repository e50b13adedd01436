package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "completed_combinations.log", cfg.CompletedFile)
	assert.Equal(t, 15*time.Second, cfg.Pause)
	assert.Equal(t, 3, cfg.Sweep.Repetitions)
	assert.Equal(t, []string{"1", "2", "4", "8"}, cfg.Sweep.Axes[0].Values)
	assert.Equal(t, []string{"GROK1-FP8", "GROK1-INT4", "GROK2"}, cfg.ClientModels())
	assert.Equal(t, []string{"GROK1", "GROK2", "GROK2.8T", "LLAMA3.1-70B", "LLAMA3.1-8B"}, cfg.ServerModels())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench_sweep.yaml")
	content := `
pause: 2s
completed_file: runs/done.log
retry_policy: success-only
sweep:
  axes:
    - name: rate
      values: [16, 32]
    - name: max_prompts
      values: [4800]
  repetitions: 1
models:
  GROK2:
    client:
      program: ./bench.sh
      args: ["{{.rate}}"]
  TINY:
    client:
      program: echo
      env:
        TOKENIZERS_PARALLELISM: "false"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Pause)
	assert.Equal(t, "runs/done.log", cfg.CompletedFile)
	assert.Equal(t, "success-only", cfg.RetryPolicy)
	assert.Equal(t, []string{"16", "32"}, cfg.Sweep.Axes[0].Values)
	assert.Equal(t, 1, cfg.Sweep.Repetitions)

	grok2, err := cfg.Client("GROK2")
	require.NoError(t, err)
	assert.Equal(t, "./bench.sh", grok2.Program)

	// A profile from the file replaces the built-in one, server part included.
	_, err = cfg.Server("GROK2")
	assert.ErrorIs(t, err, ErrUnknownModel)

	tiny, err := cfg.Client("TINY")
	require.NoError(t, err)
	assert.Equal(t, "false", tiny.Env["TOKENIZERS_PARALLELISM"])

	// Built-ins not mentioned in the file survive.
	_, err = cfg.Client("GROK1-FP8")
	assert.NoError(t, err)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pause: [\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench_sweep.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sweep:\n  repetitions: 0\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repetitions")
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"BENCH_SWEEP_COMPLETED_FILE": "/tmp/done.log",
		"BENCH_SWEEP_LOG_DIR":        "/tmp/logs",
		"BENCH_SWEEP_PAUSE":          "1m",
		"BENCH_SWEEP_REPETITIONS":    "5",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	require.NoError(t, cfg.applyEnv(lookup))
	assert.Equal(t, "/tmp/done.log", cfg.CompletedFile)
	assert.Equal(t, "/tmp/logs", cfg.LogDir)
	assert.Equal(t, time.Minute, cfg.Pause)
	assert.Equal(t, 5, cfg.Sweep.Repetitions)

	env["BENCH_SWEEP_PAUSE"] = "soon"
	assert.Error(t, DefaultConfig().applyEnv(lookup))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"no completed file", func(c *Config) { c.CompletedFile = "" }, "completed_file"},
		{"negative pause", func(c *Config) { c.Pause = -time.Second }, "pause"},
		{"reserved axis", func(c *Config) { c.Sweep.Axes = append(c.Sweep.Axes, AxisConfig{Name: "run", Values: []string{"1"}}) }, "reserved"},
		{"empty profile", func(c *Config) { c.Models["X"] = Profile{} }, "neither client nor server"},
		{"client without program", func(c *Config) { c.Models["X"] = Profile{Client: &ClientProfile{}} }, "client.program"},
		{"server without model path", func(c *Config) { c.Models["X"] = Profile{Server: &ServerProfile{}} }, "server.model_path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestClient_UnknownModel(t *testing.T) {
	cfg := DefaultConfig()

	_, err := cfg.Client("LLAMA3.1-8B")
	require.ErrorIs(t, err, ErrUnknownModel)
	assert.Contains(t, err.Error(), "GROK1-FP8, GROK1-INT4, GROK2")

	_, err = cfg.Server("GROK1-INT4")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestBuiltinProfiles(t *testing.T) {
	cfg := DefaultConfig()

	grok2, err := cfg.Client("GROK2")
	require.NoError(t, err)
	assert.Contains(t, grok2.Args, "8192")
	assert.Contains(t, grok2.Args, "online-GROK2.jsonl")

	int4, err := cfg.Client("GROK1-INT4")
	require.NoError(t, err)
	assert.Contains(t, int4.Args, "online-GROK1.jsonl")

	server, err := cfg.Server("GROK2.8T")
	require.NoError(t, err)
	assert.Equal(t, []string{"--load-format", "dummy"}, server.ExtraArgs)
	assert.Equal(t, "0", server.Env["SGLANG_USE_AITER"])

	small, err := cfg.Server("LLAMA3.1-8B")
	require.NoError(t, err)
	assert.Equal(t, 1, small.TP)
	assert.Empty(t, small.TokenizerPath)
}
