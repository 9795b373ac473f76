// Package logging provides a common interface and setup for application-wide logging.
package logging

// file: internal/logging/slog_logger.go

import (
	"context"
	"log/slog"
	"os"
)

// SlogLogger implements Logger using the standard library's structured logger.
// All output goes to stderr so it never interleaves with the NDJSON protocol
// stream on stdout.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a text-format slog-backed logger writing to stderr.
// When debug is true the level threshold drops to Debug.
func NewSlogLogger(debug bool) *SlogLogger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return &SlogLogger{logger: slog.New(handler)}
}

// Debug logs a debug-level message.
func (l *SlogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// Info logs an info-level message.
func (l *SlogLogger) Info(msg string, args ...any) { l.logger.Info(msg, args...) }

// Warn logs a warning-level message.
func (l *SlogLogger) Warn(msg string, args ...any) { l.logger.Warn(msg, args...) }

// Error logs an error-level message.
func (l *SlogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// WithContext returns the logger unchanged; slog carries context per call.
func (l *SlogLogger) WithContext(_ context.Context) Logger { return l }

// WithField returns a logger with an additional field attached to every record.
func (l *SlogLogger) WithField(key string, value any) Logger {
	return &SlogLogger{logger: l.logger.With(key, value)}
}
