// Package observability holds the ports the engine, saga and adapters log,
// trace and measure through. Implementations live under
// internal/infrastructure/observability.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Observability is the bundle every use case, worker and adapter is built with.
type Observability interface {
	Tracer() Tracer
	Logger() Logger
	Metrics() Metrics
}

// Field is a structured log attribute.
type Field struct {
	Key   string
	Value any
}

func F(k string, v any) Field { return Field{Key: k, Value: v} }

type Logger interface {
	With(fields ...Field) Logger
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

type Tracer interface {
	Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span)
}

// MetricKey names an instrument declared at startup; see metrics.go.
type MetricKey string

// Label is one metric dimension. Values must stay low-cardinality: SKUs and
// order ids belong in logs, not labels.
type Label struct{ Key, Value string }

func L(k, v string) Label { return Label{Key: k, Value: v} }

type Metrics interface {
	Counter(name MetricKey) Counter
	Histogram(name MetricKey) Histogram
}

// Counter hides the metrics backend behind label pairs.
type Counter interface {
	Add(delta float64, labels ...Label)
	Bind(labels ...Label) BoundCounter
}

type BoundCounter interface{ Add(delta float64) }

type Histogram interface {
	Observe(value float64, labels ...Label)
	Bind(labels ...Label) BoundHistogram
}

type BoundHistogram interface{ Observe(value float64) }

// TraceFields returns trace_id and span_id fields when ctx carries a valid span.
func TraceFields(ctx context.Context) []Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []Field{
		F("trace_id", sc.TraceID().String()),
		F("span_id", sc.SpanID().String()),
	}
}

// Resolve fills in nop implementations so callers can always dereference.
func Resolve(tel Observability) (Logger, Tracer, Metrics) {
	if tel == nil {
		return NopLogger(), NopTracer(), NopMetrics()
	}
	logger, tracer, metrics := tel.Logger(), tel.Tracer(), tel.Metrics()
	if logger == nil {
		logger = NopLogger()
	}
	if tracer == nil {
		tracer = NopTracer()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	return logger, tracer, metrics
}
