// Package log defines the logging interface shared by the engine, the task
// packages and the CLI.
package log

import (
	"context"
	"log/slog"
)

// Logger is the logging surface every component depends on. The internal
// implementation is slog based; tests and embedders may supply their own.
type Logger interface {
	// Debugf, Infof, Warnf and Errorf log a fmt.Sprintf formatted message.
	// Errorf implementations should log a trailing error argument as
	// structured fields when they recognise its type.
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	// Log emits msg at level with key-value attributes.
	Log(level slog.Level, msg string, args ...interface{})
	// LogCtx is Log with a context, so trace and span IDs can be attached.
	LogCtx(ctx context.Context, level slog.Level, msg string, args ...interface{})

	// With returns a Logger that adds args to every entry.
	With(args ...interface{}) Logger
	// IsEnabled reports whether entries at level are emitted.
	IsEnabled(level slog.Level) bool
}
