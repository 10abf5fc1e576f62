package workerpresentation

import (
	"context"

	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// WithEventContext injects an event-scoped logger for background executions.
// Dynamic fields only: event_id (generated if empty), trace_id/span_id when
// valid, plus caller-provided low-cardinality attributes.
func WithEventContext(
	ctx context.Context,
	base observability.Logger,
	attrs map[string]string,
) context.Context {
	if base == nil {
		base = observability.NopLogger()
	}

	fields := make([]observability.Field, 0, len(attrs)+3)

	evtID := attrs["event_id"]
	if evtID == "" {
		evtID = uuid.NewString()
	}
	fields = append(fields, observability.F("event_id", evtID))
	fields = append(fields, observability.TraceFields(ctx)...)

	for k, v := range attrs {
		if k == "event_id" || v == "" {
			continue
		}
		fields = append(fields, observability.F(k, v))
	}

	return logctx.Enrich(ctx, base, fields...)
}

// Handle wraps h with an Event.<name> span and an event-scoped logger. The
// message id is used as event_id so log lines join up with the outbox row.
func Handle(useCase string, tel observability.Observability, h domoutbox.Handler) domoutbox.Handler {
	log, tracer, _ := observability.Resolve(tel)
	return func(ctx context.Context, e domoutbox.Event) error {
		ctx, span := tracer.Start(ctx, "Event."+e.EventName(),
			attribute.String("use_case", useCase),
			attribute.String("event", e.EventName()),
		)
		defer span.End()

		attrs := map[string]string{
			"use_case": useCase,
			"event":    e.EventName(),
		}
		if m, ok := e.(domoutbox.Message); ok {
			attrs["event_id"] = m.ID
			span.SetAttributes(attribute.String("messaging.message.id", m.ID))
		}
		ctx = WithEventContext(ctx, logctx.FromOr(ctx, log), attrs)

		err := h(ctx, e)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "HANDLER_FAILED")
			return err
		}
		span.SetStatus(codes.Ok, "OK")
		return nil
	}
}

