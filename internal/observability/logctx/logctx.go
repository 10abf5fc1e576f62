// Package logctx carries the request- or event-scoped logger on a context.
// Middleware installs one per HTTP request or bus delivery; use cases enrich
// it with aggregate ids once they know them.
package logctx

import (
	"context"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
)

type scopedLogger struct{}

func With(ctx context.Context, logger observability.Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, scopedLogger{}, logger)
}

// From returns nil when ctx carries no logger.
func From(ctx context.Context) observability.Logger {
	logger, _ := ctx.Value(scopedLogger{}).(observability.Logger)
	return logger
}

func FromOr(ctx context.Context, fallback observability.Logger) observability.Logger {
	if logger := From(ctx); logger != nil {
		return logger
	}
	return fallback
}

// Enrich stores a child of the scoped logger (or fallback) that carries
// fields, so every later line on ctx repeats them.
func Enrich(ctx context.Context, fallback observability.Logger, fields ...observability.Field) context.Context {
	base := FromOr(ctx, fallback)
	if base == nil || len(fields) == 0 {
		return ctx
	}
	return With(ctx, base.With(fields...))
}
