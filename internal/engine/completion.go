/*
PURPOSE:
  Append-only completion log: one finished identity per line.
  This file is the only state a sweep keeps between passes.

REQUIREMENTS:
  User-specified:
  - Users can read, edit and delete the log by hand.

  Implementation-discovered:
  - A hand-edited log may lack a trailing newline.
  - status and dry runs must not create the file.

ARCHITECTURE INTEGRATION:
  - Used by: internal/engine/runner.go, internal/cli

ERROR HANDLING:
  - All I/O errors are returned; the runner treats them as fatal.

IMPLEMENTATION RULES:
  - Exact line match after trimming whitespace.
  - Sync after every append.

USAGE:
  log, err := engine.OpenCompletionLog("completed_combinations.log")

SELF-HEALING INSTRUCTIONS:
  - If a combination reruns, check for stray characters on its line.

RELATED FILES:
  - internal/engine/runner.go

MAINTENANCE:
  - Needs file locking before parallel runners share one log.
*/

package engine

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CompletionLog is the append-only record of finished combination identities,
// one per line. The runner never rewrites or compacts it.
type CompletionLog struct {
	path string
}

// OpenCompletionLog ensures the log file exists and returns a handle to it.
func OpenCompletionLog(path string) (*CompletionLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create completion log directory %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open completion log %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return &CompletionLog{path: path}, nil
}

// CompletionLogAt returns a handle without touching the file system. A log
// that does not exist yet reads as empty.
func CompletionLogAt(path string) *CompletionLog {
	return &CompletionLog{path: path}
}

// Path returns the file backing the log.
func (l *CompletionLog) Path() string {
	return l.path
}

// Entries reads every identity currently in the log, in file order.
// Blank lines and surrounding whitespace are ignored.
func (l *CompletionLog) Entries() ([]string, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read completion log %s: %w", l.path, err)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan completion log %s: %w", l.path, err)
	}
	return out, nil
}

// Set returns the log contents as a membership set.
func (l *CompletionLog) Set() (map[string]bool, error) {
	entries, err := l.Entries()
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(entries))
	for _, e := range entries {
		set[e] = true
	}
	return set, nil
}

// Contains re-reads the log and reports whether identity is present as an
// exact line. A prefix or substring of another identity does not match.
func (l *CompletionLog) Contains(identity string) (bool, error) {
	set, err := l.Set()
	if err != nil {
		return false, err
	}
	return set[identity], nil
}

// Append writes identity as a new line and syncs it to disk before returning.
func (l *CompletionLog) Append(identity string) error {
	if strings.ContainsAny(identity, "\r\n") {
		return fmt.Errorf("identity %q contains a line break", identity)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open completion log %s: %w", l.path, err)
	}
	line := identity + "\n"
	// A hand-edited log may lack its trailing newline.
	if info, err := f.Stat(); err == nil && info.Size() > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, info.Size()-1); err == nil && last[0] != '\n' {
			line = "\n" + line
		}
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("failed to append to completion log: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync completion log: %w", err)
	}
	return f.Close()
}
