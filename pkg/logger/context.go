package logger

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// With enriches the request-scoped logger with fields and returns the
// context carrying it. Middleware uses this to thread trace ids into
// every log line below the handler.
func With(ctx context.Context, fields ...any) context.Context {
	return context.WithValue(ctx, ctxKey{}, From(ctx).With(fields...))
}

// From returns the logger carried by the context, falling back to the
// process-wide logger when none was attached.
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return LoggerWrapper()
}
