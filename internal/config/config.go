/*
PURPOSE:
  Defines the configuration structure and loading logic for bench-sweep.
  Adheres to "Config IS Code" philosophy: per-model tables live here as
  built-in defaults and can be overridden from YAML.

REQUIREMENTS:
  User-specified:
  - Per-model client commands for the sweep and server launch settings.
  - Sweep grid (request rates, prompt caps, repetitions) and pause length.

  Implementation-discovered:
  - Needs to support YAML parsing.
  - Needs Environment variable overrides (BENCH_SWEEP_...) for paths.
  - A profile in the file replaces the built-in profile of the same name.

ARCHITECTURE INTEGRATION:
  - Used by: internal/cli, internal/launch
  - Dependencies: gopkg.in/yaml.v3 (standard for Go config)

ERROR HANDLING:
  - Returns explicit error if config file is invalid.
  - Missing default files fall back to defaults silently.

IMPLEMENTATION RULES:
  - Config struct tags should support yaml.
  - Defaults mirror the SGLang benchmark scripts (15s pause, 3 runs).

USAGE:
  cfg, err := config.Load("bench_sweep.yaml")

SELF-HEALING INSTRUCTIONS:
  - If new fields are needed, add to Config struct and update DefaultConfig().

RELATED FILES:
  - internal/config/profiles.go
  - internal/cli/root.go

MAINTENANCE:
  - Update when adding new tuning parameters.
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrUnknownModel is returned when a model has no profile.
var ErrUnknownModel = errors.New("unknown model")

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "BENCH_SWEEP_"

// Config represents the full configuration for bench-sweep.
type Config struct {
	CompletedFile string        `yaml:"completed_file"`
	LogDir        string        `yaml:"log_dir"`
	Pause         time.Duration `yaml:"pause"`
	RetryPolicy   string        `yaml:"retry_policy"`
	Journal       string        `yaml:"journal"`
	CSV           string        `yaml:"csv"`
	MetricsFile   string        `yaml:"metrics_file"`
	HealthURL     string        `yaml:"health_url"`
	ReadyTimeout  time.Duration `yaml:"ready_timeout"`
	ReadyRetries  int           `yaml:"ready_retries"`
	ReadyDelay    time.Duration `yaml:"ready_delay"`

	Sweep  SweepConfig        `yaml:"sweep"`
	Models map[string]Profile `yaml:"models"`
}

// SweepConfig describes the grid. Axes are visited outermost first; the
// repetition axis is always innermost.
type SweepConfig struct {
	Axes        []AxisConfig `yaml:"axes"`
	Repetitions int          `yaml:"repetitions"`
}

// AxisConfig is one parameter axis.
type AxisConfig struct {
	Name   string   `yaml:"name"`
	Values []string `yaml:"values"`
	Prefix string   `yaml:"prefix"`
}

// Profile holds everything model specific.
type Profile struct {
	Client *ClientProfile `yaml:"client"`
	Server *ServerProfile `yaml:"server"`
}

// ClientProfile is the benchmark client command for one model.
// Args, vars, identity and run_log are text/template strings.
type ClientProfile struct {
	Program  string            `yaml:"program"`
	Args     []string          `yaml:"args"`
	Vars     []VarConfig       `yaml:"vars"`
	Identity string            `yaml:"identity"`
	RunLog   string            `yaml:"run_log"`
	Env      map[string]string `yaml:"env"`
}

// VarConfig is a derived template value.
type VarConfig struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// ServerProfile is the inference server launch settings for one model.
type ServerProfile struct {
	Program       string            `yaml:"program"`
	Module        string            `yaml:"module"`
	ModelPath     string            `yaml:"model_path"`
	TokenizerPath string            `yaml:"tokenizer_path"`
	TP            int               `yaml:"tp"`
	Quantization  string            `yaml:"quantization"`
	Env           map[string]string `yaml:"env"`
	ExtraArgs     []string          `yaml:"extra_args"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		CompletedFile: "completed_combinations.log",
		LogDir:        ".",
		Pause:         15 * time.Second,
		RetryPolicy:   "record-all",
		Journal:       "sweep_attempts.jsonl",
		HealthURL:     "http://localhost:30000/health",
		ReadyTimeout:  10 * time.Second,
		ReadyRetries:  60,
		ReadyDelay:    10 * time.Second,
		Sweep: SweepConfig{
			Axes: []AxisConfig{
				{Name: "rate", Values: []string{"1", "2", "4", "8"}},
				{Name: "max_prompts", Values: []string{"2400"}},
			},
			Repetitions: 3,
		},
		Models: defaultProfiles(),
	}
}

// Load reads configuration from a file.
// If path is specified, it attempts to load that file.
// If path is empty, it searches for default files in order.
// If no file found, returns default config.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	var data []byte
	var err error

	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		defaults := []string{"bench_sweep.yaml", "bench_sweep.yml", "sweep.yaml"}
		for _, name := range defaults {
			data, err = os.ReadFile(name)
			if err == nil {
				path = name
				break
			}
		}
	}

	if data != nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPrefix + "COMPLETED_FILE"); ok {
		c.CompletedFile = v
	}
	if v, ok := lookup(EnvPrefix + "LOG_DIR"); ok {
		c.LogDir = v
	}
	if v, ok := lookup(EnvPrefix + "HEALTH_URL"); ok {
		c.HealthURL = v
	}
	if v, ok := lookup(EnvPrefix + "PAUSE"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sPAUSE: %w", EnvPrefix, err)
		}
		c.Pause = d
	}
	if v, ok := lookup(EnvPrefix + "REPETITIONS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sREPETITIONS: %w", EnvPrefix, err)
		}
		c.Sweep.Repetitions = n
	}
	return nil
}

// Validate checks values that would otherwise fail mid-sweep.
func (c *Config) Validate() error {
	if c.CompletedFile == "" {
		return errors.New("completed_file must be set")
	}
	if c.Pause < 0 {
		return errors.New("pause must not be negative")
	}
	if c.Sweep.Repetitions < 1 {
		return errors.New("sweep.repetitions must be at least 1")
	}
	for _, a := range c.Sweep.Axes {
		if a.Name == "run" {
			return errors.New(`axis name "run" is reserved for repetitions`)
		}
	}
	for name, p := range c.Models {
		if strings.TrimSpace(name) == "" {
			return errors.New("model with empty name")
		}
		if p.Client == nil && p.Server == nil {
			return fmt.Errorf("model %s has neither client nor server settings", name)
		}
		if p.Client != nil && p.Client.Program == "" {
			return fmt.Errorf("model %s: client.program must be set", name)
		}
		if p.Server != nil && p.Server.ModelPath == "" {
			return fmt.Errorf("model %s: server.model_path must be set", name)
		}
	}
	return nil
}

// Client returns the client profile for model.
func (c *Config) Client(model string) (*ClientProfile, error) {
	p, ok := c.Models[model]
	if !ok || p.Client == nil {
		return nil, fmt.Errorf("%w %q for sweep (supported: %s)", ErrUnknownModel, model, strings.Join(c.ClientModels(), ", "))
	}
	return p.Client, nil
}

// Server returns the server profile for model.
func (c *Config) Server(model string) (*ServerProfile, error) {
	p, ok := c.Models[model]
	if !ok || p.Server == nil {
		return nil, fmt.Errorf("%w %q for launch (supported: %s)", ErrUnknownModel, model, strings.Join(c.ServerModels(), ", "))
	}
	return p.Server, nil
}

// ClientModels lists models that can be swept, sorted.
func (c *Config) ClientModels() []string {
	var out []string
	for name, p := range c.Models {
		if p.Client != nil {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// ServerModels lists models that can be launched, sorted.
func (c *Config) ServerModels() []string {
	var out []string
	for name, p := range c.Models {
		if p.Server != nil {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
