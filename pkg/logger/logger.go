// Package logger provides logging implementations for the importer
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/bttc/roundrobin/pkg/interfaces"
)

// CharmLogger adapts charmbracelet/log to interfaces.Logger
type CharmLogger struct {
	Level string
	File  string
	base  *log.Logger
}

// New builds a logger writing to w at the given level
func New(w io.Writer, level string) *CharmLogger {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	base := log.NewWithOptions(w, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		Prefix:          "rrimport",
	})
	return &CharmLogger{Level: lvl.String(), base: base}
}

// Debug logs debug level messages
func (l *CharmLogger) Debug(msg string, fields ...map[string]interface{}) {
	l.base.Debug(msg, flatten(fields...)...)
}

// Info logs info level messages
func (l *CharmLogger) Info(msg string, fields ...map[string]interface{}) {
	l.base.Info(msg, flatten(fields...)...)
}

// Warn logs warning level messages
func (l *CharmLogger) Warn(msg string, fields ...map[string]interface{}) {
	l.base.Warn(msg, flatten(fields...)...)
}

// Error logs error level messages
func (l *CharmLogger) Error(msg string, err error, fields ...map[string]interface{}) {
	kv := flatten(fields...)
	if err != nil {
		kv = append([]interface{}{"error", err}, kv...)
	}
	l.base.Error(msg, kv...)
}

// Fatal logs fatal level messages and exits
func (l *CharmLogger) Fatal(msg string, err error, fields ...map[string]interface{}) {
	kv := flatten(fields...)
	if err != nil {
		kv = append([]interface{}{"error", err}, kv...)
	}
	l.base.Fatal(msg, kv...)
}

// WithFields returns a logger with additional fields
func (l *CharmLogger) WithFields(fields map[string]interface{}) interfaces.Logger {
	return &CharmLogger{
		Level: l.Level,
		File:  l.File,
		base:  l.base.With(flatten(fields)...),
	}
}

// flatten turns field maps into sorted key/value pairs so output is stable
func flatten(fields ...map[string]interface{}) []interface{} {
	var kv []interface{}
	for _, fieldMap := range fields {
		keys := make([]string, 0, len(fieldMap))
		for key := range fieldMap {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			kv = append(kv, key, fieldMap[key])
		}
	}
	return kv
}

// NewConsoleLogger creates a new console logger
func NewConsoleLogger(level string) interfaces.Logger {
	return New(os.Stderr, level)
}

// NewFileLogger creates a logger appending to path
func NewFileLogger(level, path string) (interfaces.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	l := New(io.MultiWriter(os.Stderr, f), level)
	l.File = path
	return l, nil
}

// NewTestLogger creates a logger for testing
func NewTestLogger() interfaces.Logger {
	return New(io.Discard, "debug")
}

// NewLogger creates a new logger with default settings
func NewLogger() interfaces.Logger {
	return New(os.Stderr, "info")
}

// NewNopLogger creates a logger that discards everything
func NewNopLogger() interfaces.Logger {
	return New(io.Discard, "fatal")
}
