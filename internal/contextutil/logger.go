// Package contextutil carries the request-scoped logger through a
// context.Context, so services and repos never take a logger parameter.
package contextutil

import (
	"context"
	"log/slog"
)

// loggerKey is unexported: attach and retrieve go through WithLogger and
// LoggerFromContext, which keeps the key type consistent on both sides.
type loggerKey struct{}

// WithLogger returns a context carrying the given logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFromContext returns the logger attached by WithLogger, falling back
// to slog.Default for contexts that never passed through the middleware.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
