// Package logging builds the slog loggers shared by the SafeSound binaries.
// Loggers are constructed once in main and passed down explicitly.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
)

// DefaultLogFile is the launcher log file name, relative to the home directory.
const DefaultLogFile = "safesound_debug.log"

// New returns a text logger writing to w at the given level.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewFileLogger returns a logger that appends to path and duplicates every
// record to stdout. The returned closer releases the file.
func NewFileLogger(path string, level slog.Level, stdout io.Writer) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return New(io.MultiWriter(f, stdout), level), f, nil
}

// DefaultLogPath returns ~/safesound_debug.log, or the file name alone when
// the home directory cannot be determined.
func DefaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultLogFile
	}
	return filepath.Join(home, DefaultLogFile)
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// ParseLevel maps a config log level to a slog level. Unknown values are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ErrorWithStack logs err at error level together with the current goroutine's stack.
func ErrorWithStack(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err, "stack", string(debug.Stack()))
}
