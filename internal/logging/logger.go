// Package logging provides the logger abstraction shared by every component,
// plus a no-op fallback for optional Logger parameters left nil.
package logging

// file: internal/logging/logger.go

import (
	"context"
)

// Logger is the structured logging contract the components accept.
// Implementations must be safe for concurrent use; the proxy logs from
// several goroutines at once.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// WithContext returns a logger enriched with values from the context.
	WithContext(ctx context.Context) Logger

	// WithField returns a logger that attaches the field to every entry.
	WithField(key string, value any) Logger
}

// NoopLogger discards everything. Components fall back to it when no logger
// is supplied, so logging stays optional on every constructor.
type NoopLogger struct{}

func (l *NoopLogger) Debug(_ string, _ ...any) {}

func (l *NoopLogger) Info(_ string, _ ...any) {}

func (l *NoopLogger) Warn(_ string, _ ...any) {}

func (l *NoopLogger) Error(_ string, _ ...any) {}

func (l *NoopLogger) WithContext(_ context.Context) Logger { return l }

func (l *NoopLogger) WithField(_ string, _ any) Logger { return l }

var noop = &NoopLogger{}

// GetNoopLogger returns the shared no-op logger.
func GetNoopLogger() Logger {
	return noop
}

var defaultLogger = GetNoopLogger()

// SetDefaultLogger installs the process-wide logger handed out by GetLogger.
// A nil argument is ignored.
func SetDefaultLogger(logger Logger) {
	if logger != nil {
		defaultLogger = logger
	}
}

// GetLogger returns the default logger tagged with a component field. The CLI
// subcommands use it where no logger is threaded through explicitly.
func GetLogger(name string) Logger {
	return defaultLogger.WithField("component", name)
}
