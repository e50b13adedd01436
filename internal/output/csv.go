/*
PURPOSE:
  Writes sweep attempts to a CSV file for spreadsheet review.
  Ensures data integrity by flushing writes immediately.

REQUIREMENTS:
  User-specified:
  - Output to CSV.

  Implementation-discovered:
  - Sweeps resume across processes, so the file is appended to and the
    header is written only when the file is new.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (as an engine.Recorder)
  - Consumes: internal/model.Attempt

ERROR HANDLING:
  - Returns error on file creation or write failure.

IMPLEMENTATION RULES:
  - Use encoding/csv.
  - Flush() after every write (critical for crash resilience).

USAGE:
  w, err := output.NewCSVWriter("attempts.csv")
  w.Write(attempt)
  w.Close()

SELF-HEALING INSTRUCTIONS:
  - If CSV format changes, update header and record conversion.

RELATED FILES:
  - internal/model/types.go

MAINTENANCE:
  - Update Write() mapping when Attempt struct changes.
*/

package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/daryltucker/bench-sweep/internal/model"
)

var csvHeader = []string{
	"pass_id", "identity", "model", "values", "timestamp", "duration_s",
	"exit_code", "status", "recorded", "run_log", "command", "error",
}

// CSVWriter handles writing attempts to a CSV file.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter opens path for append and writes the header if the file is
// empty.
func NewCSVWriter(path string) (*CSVWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			f.Close()
			return nil, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, err
		}
	}

	return &CSVWriter{
		file:   f,
		writer: w,
	}, nil
}

// Write writes a single attempt to the CSV file.
// It is thread-safe.
func (cw *CSVWriter) Write(a model.Attempt) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	values, err := json.Marshal(a.Values)
	if err != nil {
		return fmt.Errorf("failed to encode values: %w", err)
	}

	record := []string{
		a.PassID,
		a.Identity,
		a.Model,
		string(values),
		a.Timestamp.Format(time.RFC3339),
		fmt.Sprintf("%.3f", a.Duration.Seconds()),
		strconv.Itoa(a.ExitCode),
		string(a.Status),
		strconv.FormatBool(a.Recorded),
		a.RunLog,
		a.Command,
		a.Error,
	}

	if err := cw.writer.Write(record); err != nil {
		return err
	}
	cw.writer.Flush()
	return cw.writer.Error()
}

// Close closes the underlying file.
func (cw *CSVWriter) Close() error {
	cw.writer.Flush()
	return cw.file.Close()
}
