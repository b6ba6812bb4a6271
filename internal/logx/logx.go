// Package logx provides the structured, component-scoped logger every core
// subsystem logs through. It mirrors the call shape the rest of the module's
// ancestry used (.WithComponent(name), .Info(msg, fields)) but sits directly
// on the standard library's log/slog instead of a private logging module, so
// the module has no unfetchable dependency for something as ambient as
// logging.
package logx

import (
	"context"
	"log/slog"
	"os"
)

// Logger is a component-scoped wrapper around *slog.Logger.
type Logger struct {
	inner *slog.Logger
}

var base = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

// New returns the root logger. Call WithComponent to scope it.
func New() *Logger {
	return &Logger{inner: base}
}

// SetOutput redirects all subsequently created loggers; primarily for
// tests that want to assert on emitted records.
func SetOutput(h slog.Handler) {
	base = slog.New(h)
}

// WithComponent scopes every subsequent record with a "component" field,
// matching the teacher's per-subsystem logger convention
// (logging.New().WithComponent("supervisor")).
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{inner: l.inner.With("component", name)}
}

// With attaches arbitrary key/value pairs to the returned logger.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{inner: l.inner.With(args...)}
}

func fields(m map[string]interface{}) []any {
	out := make([]any, 0, len(m)*2)
	for k, v := range m {
		out = append(out, k, v)
	}
	return out
}

func (l *Logger) Debug(msg string, f map[string]interface{}) { l.inner.Debug(msg, fields(f)...) }
func (l *Logger) Info(msg string, f map[string]interface{})  { l.inner.Info(msg, fields(f)...) }
func (l *Logger) Warn(msg string, f map[string]interface{})  { l.inner.Warn(msg, fields(f)...) }
func (l *Logger) Error(msg string, f map[string]interface{}) { l.inner.Error(msg, fields(f)...) }

// InfoCtx logs with a context, letting slog handlers pick up request-scoped
// attributes (trace IDs, etc.) from context values.
func (l *Logger) InfoCtx(ctx context.Context, msg string, f map[string]interface{}) {
	l.inner.InfoContext(ctx, msg, fields(f)...)
}
