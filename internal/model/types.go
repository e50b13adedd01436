/*
PURPOSE:
  Defines the core data structures shared across bench-sweep.
  These models describe one attempted sweep combination.

REQUIREMENTS:
  User-specified:
  - Record which combination ran, the exact command and where its output went.
  - Distinguish "attempted" from "succeeded".

  Implementation-discovered:
  - Need JSON tags for the attempt journal (JSON Lines).
  - CSV mapping is explicit in internal/output/csv.go.

ARCHITECTURE INTEGRATION:
  - Used by: internal/engine, internal/output
  - Shared across boundaries.

ERROR HANDLING:
  - None (pure data structs).

IMPLEMENTATION RULES:
  - Keep structs simple and public.
  - Use time.Time and time.Duration for high precision.

USAGE:
  a := model.Attempt{Identity: "GROK2_1_300_run1", ...}

SELF-HEALING INSTRUCTIONS:
  - If new fields are needed, add them here and update CSV/JSON writers.

RELATED FILES:
  - internal/output/csv.go
  - internal/output/json.go

MAINTENANCE:
  - Update when adding new fields to capture.
*/

package model

import (
	"time"
)

// Status classifies how an attempt ended at the OS-process level.
type Status string

const (
	StatusSucceeded    Status = "succeeded"
	StatusFailed       Status = "failed"
	StatusLaunchFailed Status = "launch_failed"
)

// Attempt represents the outcome of a single external benchmark invocation.
type Attempt struct {
	PassID    string            `json:"pass_id"`
	Identity  string            `json:"identity"`
	Model     string            `json:"model"`
	Values    map[string]string `json:"values"` // axis name -> value
	Command   string            `json:"command"`
	RunLog    string            `json:"run_log"`
	Timestamp time.Time         `json:"timestamp"`
	Duration  time.Duration     `json:"duration"`
	ExitCode  int               `json:"exit_code"`
	Status    Status            `json:"status"`
	Recorded  bool              `json:"recorded"` // appended to the completion log
	Error     string            `json:"error,omitempty"`
}

// Succeeded reports whether the process ran and exited zero.
func (a Attempt) Succeeded() bool {
	return a.Status == StatusSucceeded
}
