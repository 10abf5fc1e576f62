// Package observability binds the process tracer, logger and Prometheus
// instruments into the observability.Observability port.
package observability

import (
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
)

type Option func(*bundle)

func WithTracer(t observability.Tracer) Option {
	return func(b *bundle) {
		if t != nil {
			b.tracer = t
		}
	}
}

func WithLogger(l observability.Logger) Option {
	return func(b *bundle) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithInstruments registers the metric instruments by key. Nil entries are
// skipped; keys without an instrument resolve to no-ops.
func WithInstruments(
	counters map[observability.MetricKey]observability.Counter,
	histograms map[observability.MetricKey]observability.Histogram,
) Option {
	return func(b *bundle) {
		for k, c := range counters {
			if c != nil {
				b.instruments.counters[k] = c
			}
		}
		for k, h := range histograms {
			if h != nil {
				b.instruments.histograms[k] = h
			}
		}
	}
}

// New returns a bundle that defaults every missing part to its no-op.
func New(opts ...Option) observability.Observability {
	b := &bundle{
		tracer: observability.NopTracer(),
		logger: observability.NopLogger(),
		instruments: instruments{
			counters:   make(map[observability.MetricKey]observability.Counter),
			histograms: make(map[observability.MetricKey]observability.Histogram),
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type bundle struct {
	tracer      observability.Tracer
	logger      observability.Logger
	instruments instruments
}

func (b *bundle) Tracer() observability.Tracer   { return b.tracer }
func (b *bundle) Logger() observability.Logger   { return b.logger }
func (b *bundle) Metrics() observability.Metrics { return b.instruments }

// instruments is read-only once New returns.
type instruments struct {
	counters   map[observability.MetricKey]observability.Counter
	histograms map[observability.MetricKey]observability.Histogram
}

func (m instruments) Counter(key observability.MetricKey) observability.Counter {
	if c, ok := m.counters[key]; ok {
		return c
	}
	return observability.NopCounter()
}

func (m instruments) Histogram(key observability.MetricKey) observability.Histogram {
	if h, ok := m.histograms[key]; ok {
		return h
	}
	return observability.NopHistogram()
}
