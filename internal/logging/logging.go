// Package logging provides the process-wide structured logger used across
// the session/index orchestration core.
//
// Every analyzer subprocess this module supervises owns its stdin/stdout for
// the LS protocol (spec §4.1); our own logging must never touch either, the
// same constraint lci's internal/debug encodes with its MCPMode flag. We
// keep that shape (a package-level logger, a "stdio is reserved" switch,
// optional file-backed sinks) but back it with charmbracelet/log instead of
// hand-rolled io.Writer plumbing.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	mu            sync.Mutex
	stdioReserved bool
	base          = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
	logFile *os.File
)

// SetStdioReserved suppresses all logging when true. Set this before
// spawning or talking to an analyzer over stdio-framed LS protocol, and
// whenever an MCP stdio transport owns the process's stdout.
func SetStdioReserved(reserved bool) {
	mu.Lock()
	defer mu.Unlock()
	stdioReserved = reserved
	if reserved {
		base.SetOutput(io.Discard)
	} else if logFile != nil {
		base.SetOutput(logFile)
	} else {
		base.SetOutput(os.Stderr)
	}
}

// SetLevel parses a level string ("debug", "info", "warn", "error") the way
// the §6 `log_level` configuration input names it.
func SetLevel(levelStr string) {
	lvl, err := log.ParseLevel(levelStr)
	if err != nil {
		lvl = log.InfoLevel
	}
	base.SetLevel(lvl)
}

// SetJSONFormat toggles logfmt vs JSON rendering, mirroring the §6
// `log_json_format` configuration input.
func SetJSONFormat(json bool) {
	mu.Lock()
	defer mu.Unlock()
	if json {
		base.SetFormatter(log.JSONFormatter)
	} else {
		base.SetFormatter(log.LogfmtFormatter)
	}
}

// InitFile opens a log file at path, optionally suffixing the filename with
// the process PID (§6 `log_file_unique_per_pid`), and routes all subsequent
// output there unless stdio is reserved.
func InitFile(path string, uniquePerPID bool) (string, error) {
	mu.Lock()
	defer mu.Unlock()

	if uniquePerPID {
		ext := filepath.Ext(path)
		base := path[:len(path)-len(ext)]
		path = fmt.Sprintf("%s.%d%s", base, os.Getpid(), ext)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("open log file: %w", err)
	}
	logFile = f
	if !stdioReserved {
		base_output(f)
	}
	return path, nil
}

func base_output(w io.Writer) {
	base.SetOutput(w)
}

// Close releases the file-backed sink, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		err := logFile.Close()
		logFile = nil
		return err
	}
	return nil
}

// Default returns the process-wide logger.
func Default() *log.Logger {
	return base
}

// ForComponent returns a logger scoped with a component= field, matching
// the per-subsystem diagnostic style lci's debug package used ad hoc
// (LogMCP, LogIndex, ...), generalized to any component name.
func ForComponent(name string) *log.Logger {
	return base.With("component", name)
}
