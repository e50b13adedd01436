/*
PURPOSE:
  Writes sweep attempts to a JSON Lines journal (NDJSON).
  Keeps "attempted" and "succeeded" apart, which the completion log cannot.

REQUIREMENTS:
  User-specified:
  - Machine-readable record of every run, including failures.

  Implementation-discovered:
  - The journal spans passes, so it is opened for append, never truncated.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (as an engine.Recorder)
  - Consumes: internal/model.Attempt

ERROR HANDLING:
  - Returns error on file creation or write failure.

IMPLEMENTATION RULES:
  - Use encoding/json.NewEncoder.
  - Thread-safe.

USAGE:
  w, err := output.NewJSONWriter("attempts.jsonl")
  w.Write(attempt)
  w.Close()

SELF-HEALING INSTRUCTIONS:
  - None specific.

RELATED FILES:
  - internal/model/types.go

MAINTENANCE:
  - None.
*/

package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/daryltucker/bench-sweep/internal/model"
)

// JSONWriter handles writing attempts to a JSON Lines file.
type JSONWriter struct {
	file    *os.File
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter opens path for append, creating it if needed.
func NewJSONWriter(path string) (*JSONWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	return &JSONWriter{
		file:    f,
		encoder: json.NewEncoder(f),
	}, nil
}

// Write writes a single attempt as a JSON line.
func (jw *JSONWriter) Write(a model.Attempt) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	return jw.encoder.Encode(a)
}

// Close closes the underlying file.
func (jw *JSONWriter) Close() error {
	return jw.file.Close()
}

// ReadJournal loads every attempt from a JSON Lines journal.
// Lines that fail to parse are skipped with a warning.
func ReadJournal(path string) ([]model.Attempt, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []model.Attempt
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var a model.Attempt
		if err := json.Unmarshal(scanner.Bytes(), &a); err != nil {
			Logger.Warn("Skipping invalid journal line", "path", path, "line", line, "error", err)
			continue
		}
		out = append(out, a)
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("failed to scan journal %s: %w", path, err)
	}
	return out, nil
}

// LatestByIdentity keeps the last attempt seen for each identity.
func LatestByIdentity(attempts []model.Attempt) map[string]model.Attempt {
	m := make(map[string]model.Attempt, len(attempts))
	for _, a := range attempts {
		m[a.Identity] = a
	}
	return m
}
