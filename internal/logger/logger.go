// Package logger wraps charmbracelet/log with the field-scoping and
// level/format selection NovaPipe's CLI and engine need.
package logger

import (
	"io"
	"os"
	"sort"
	"strings"

	cblog "github.com/charmbracelet/log"
)

// Options describes logger configuration supplied at creation time.
type Options struct {
	Level         string
	HumanReadable bool
	Writer        io.Writer
}

// Logger is a thin, field-scoped wrapper around a charmbracelet/log logger.
type Logger struct {
	base *cblog.Logger
}

// New creates a configured Logger instance based on Options.
func New(opts Options) (*Logger, error) {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}

	base := cblog.NewWithOptions(writer, cblog.Options{
		ReportTimestamp: opts.HumanReadable,
	})

	if !opts.HumanReadable {
		base.SetFormatter(cblog.JSONFormatter)
	}

	level := cblog.InfoLevel
	if parsed, err := cblog.ParseLevel(strings.ToLower(opts.Level)); err == nil {
		level = parsed
	}
	base.SetLevel(level)

	return &Logger{base: base}, nil
}

// WithFields returns a derived logger that always writes the supplied fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	if l == nil || l.base == nil || len(fields) == 0 {
		return l
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	args := make([]interface{}, 0, len(fields)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}

	return &Logger{base: l.base.With(args...)}
}

// Info writes an informational log entry.
func (l *Logger) Info(msg string) {
	if l == nil || l.base == nil {
		return
	}
	l.base.Info(strings.TrimSpace(msg))
}

// Debug writes a debug-level log entry if enabled.
func (l *Logger) Debug(msg string) {
	if l == nil || l.base == nil {
		return
	}
	l.base.Debug(strings.TrimSpace(msg))
}

// Warn writes a warning level log entry.
func (l *Logger) Warn(msg string) {
	if l == nil || l.base == nil {
		return
	}
	l.base.Warn(strings.TrimSpace(msg))
}

// Error writes an error log entry including the supplied error context.
func (l *Logger) Error(err error, msg string) {
	if l == nil || l.base == nil {
		return
	}
	fields := []interface{}{}
	if err != nil {
		fields = append(fields, "error", err)
	}
	l.base.Error(strings.TrimSpace(msg), fields...)
}
