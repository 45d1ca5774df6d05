// Package log provides the structured logging interface used across histboost.
//
// The Logger interface is slog-compatible so the backend can be swapped. The
// default backend is zerolog writing JSON lines; NewSlogLogger adapts any
// slog.Handler. Fields are passed as alternating key/value pairs using the
// keys defined in attributes.go:
//
//	logger := log.GetLoggerWithName("gbdt")
//	logger.Info("round finished",
//	    log.IterationKey, r,
//	    log.LossKey, loss,
//	)
package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with log/slog.
type Logger interface {
	// Debug logs detailed diagnostic information, such as per-node split decisions.
	Debug(msg string, fields ...any)

	// Info logs general progress, such as boosting rounds.
	Info(msg string, fields ...any)

	// Warn logs conditions that do not stop the operation.
	Warn(msg string, fields ...any)

	// Error logs a failure. An error value passed under ErrAttrKey has its
	// recorded stack trace attached under StacktraceAttrKey.
	Error(msg string, fields ...any)

	// With returns a Logger that adds fields to every record.
	With(fields ...any) Logger

	// Enabled reports whether a record at level would be emitted. Callers use it
	// to skip building expensive fields.
	Enabled(ctx context.Context, level Level) bool
}

// Level is a logging level; values match slog.Level.
type Level int

const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the upper-case level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LoggerProvider creates loggers sharing one backend and level.
type LoggerProvider interface {
	// GetLogger returns the root logger.
	GetLogger() Logger

	// GetLoggerWithName returns a logger tagged with a component name.
	GetLoggerWithName(name string) Logger

	// SetLevel sets the minimum level for every logger from this provider.
	SetLevel(level Level)
}
