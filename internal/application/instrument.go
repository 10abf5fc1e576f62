package application

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const spanPrefix = "UC."

// Instrumentation bundles the logger, tracer and use-case instruments of one service.
type Instrumentation struct {
	Log     observability.Logger
	Tracer  observability.Tracer
	Metrics observability.Metrics

	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
}

func NewInstrumentation(service string, tel observability.Observability) Instrumentation {
	log, tracer, metrics := observability.Resolve(tel)
	return Instrumentation{
		Log:          log.With(observability.F("service", service)),
		Tracer:       tracer,
		Metrics:      metrics,
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
	}
}

// Run is one use-case invocation. Done must be called exactly once.
type Run struct {
	Ctx    context.Context
	Span   trace.Span
	Logger observability.Logger

	ins        Instrumentation
	useCase    string
	start      time.Time
	outcome    string
	statusText string
	fields     []observability.Field
}

// Begin opens the UC.<name> span and a logger carrying fields.
func (in Instrumentation) Begin(ctx context.Context, useCase, name string, fields []observability.Field, attrs ...attribute.KeyValue) *Run {
	logger := logctx.FromOr(ctx, in.Log).With(
		append([]observability.Field{observability.F("use_case", useCase)}, fields...)...,
	)
	ctx, span := in.Tracer.Start(ctx, spanPrefix+name,
		append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)...,
	)
	return &Run{
		Ctx:        ctx,
		Span:       span,
		Logger:     logger,
		ins:        in,
		useCase:    useCase,
		start:      time.Now(),
		outcome:    "success",
		statusText: "OK",
	}
}

// Outcome relabels a run that finishes without error, e.g. an idempotent replay.
func (r *Run) Outcome(outcome, statusText string) {
	r.outcome, r.statusText = outcome, statusText
}

// Note adds fields to the use_case_done line.
func (r *Run) Note(fields ...observability.Field) {
	r.fields = append(r.fields, fields...)
}

// Done closes the span, records the use-case metrics and logs use_case_done.
// A non-nil err marks the run failed with statusText.
func (r *Run) Done(err error, statusText string) {
	if err != nil {
		r.outcome, r.statusText = "error", statusText
	}

	if r.Span != nil {
		if err != nil {
			r.Span.RecordError(err)
			r.Span.SetStatus(codes.Error, r.statusText)
		} else {
			r.Span.SetStatus(codes.Ok, r.statusText)
		}
		r.Span.End()
	}

	latency := time.Since(r.start).Seconds()
	r.ins.reqCounter.Add(1,
		observability.L("use_case", r.useCase),
		observability.L("outcome", r.outcome),
	)
	r.ins.durHistogram.Observe(latency,
		observability.L("use_case", r.useCase),
	)

	fields := []observability.Field{
		observability.F("outcome", r.outcome),
		observability.F("status", r.statusText),
		observability.F("latency_seconds", latency),
	}
	fields = append(fields, observability.TraceFields(r.Ctx)...)
	fields = append(fields, r.fields...)
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}
	r.Logger.Info("use_case_done", fields...)
}
