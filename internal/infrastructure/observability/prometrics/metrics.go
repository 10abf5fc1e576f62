package prometrics

import (
	"errors"
	"sync"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry exposes the subset of Prometheus registry functionality needed by the application.
type Registry interface {
	Counter(name string, help string, labelKeys ...string) observability.Counter
	Histogram(name string, help string, buckets []float64, labelKeys ...string) observability.Histogram
}

type registry struct {
	reg       prometheus.Registerer
	namespace string
	subsystem string

	mu         sync.Mutex
	counters   map[string]*counter
	histograms map[string]*histogram
}

// New registers into reg, or the default registerer when reg is nil.
func New(reg prometheus.Registerer, namespace, subsystem string) Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &registry{
		reg:        reg,
		namespace:  namespace,
		subsystem:  subsystem,
		counters:   make(map[string]*counter),
		histograms: make(map[string]*histogram),
	}
}

// labelSet orders label values by the keys a vector was declared with.
// Undeclared labels are dropped and missing ones are empty, so a caller
// passing the wrong set never panics the process.
type labelSet []string

func (keys labelSet) values(ls []observability.Label) []string {
	out := make([]string, len(keys))
	for _, l := range ls {
		for i, k := range keys {
			if k == l.Key {
				out[i] = l.Value
				break
			}
		}
	}
	return out
}

type counter struct {
	v    *prometheus.CounterVec
	keys labelSet
}

func (c *counter) Add(d float64, labels ...observability.Label) {
	c.v.WithLabelValues(c.keys.values(labels)...).Add(d)
}

func (c *counter) Bind(labels ...observability.Label) observability.BoundCounter {
	return boundCounter{c.v.WithLabelValues(c.keys.values(labels)...)}
}

type boundCounter struct{ c prometheus.Counter }

func (b boundCounter) Add(d float64) { b.c.Add(d) }

type histogram struct {
	v    *prometheus.HistogramVec
	keys labelSet
}

func (h *histogram) Observe(v float64, labels ...observability.Label) {
	h.v.WithLabelValues(h.keys.values(labels)...).Observe(v)
}

func (h *histogram) Bind(labels ...observability.Label) observability.BoundHistogram {
	return boundHistogram{h.v.WithLabelValues(h.keys.values(labels)...)}
}

type boundHistogram struct{ o prometheus.Observer }

func (b boundHistogram) Observe(v float64) { b.o.Observe(v) }

func (r *registry) Counter(name string, help string, labelKeys ...string) observability.Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace, Subsystem: r.subsystem, Name: name, Help: help,
	}, labelKeys)
	c := &counter{v: register(r.reg, cv), keys: labelKeys}
	r.counters[name] = c
	return c
}

func (r *registry) Histogram(name string, help string, buckets []float64, labelKeys ...string) observability.Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[name]; ok {
		return h
	}
	hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace, Subsystem: r.subsystem, Name: name, Help: help, Buckets: buckets,
	}, labelKeys)
	h := &histogram{v: register(r.reg, hv), keys: labelKeys}
	r.histograms[name] = h
	return h
}

// register adopts a collector already registered under the same descriptor,
// which happens when two registries share the default registerer.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing
		}
	}
	panic(err)
}

// Standard declares every instrument the service records, keyed for the
// observability provider.
func Standard(r Registry) (map[observability.MetricKey]observability.Counter, map[observability.MetricKey]observability.Histogram) {
	counter := func(k observability.MetricKey, help string, labels ...string) observability.Counter {
		return r.Counter(string(k), help, labels...)
	}
	histogram := func(k observability.MetricKey, help string, labels ...string) observability.Histogram {
		return r.Histogram(string(k), help, prometheus.DefBuckets, labels...)
	}

	counters := map[observability.MetricKey]observability.Counter{
		observability.MUsecaseRequests:      counter(observability.MUsecaseRequests, "Total number of use case invocations.", "use_case", "outcome"),
		observability.MHTTPRequests:         counter(observability.MHTTPRequests, "Total number of HTTP requests.", "method", "route", "status"),
		observability.MExternalRequests:     counter(observability.MExternalRequests, "Calls to collaborators and publishers.", "peer", "endpoint", "outcome"),
		observability.MConflictRetries:      counter(observability.MConflictRetries, "Ledger version conflicts retried by the engine.", "operation"),
		observability.MLowStockAlerts:       counter(observability.MLowStockAlerts, "Low and out of stock alerts raised.", "type"),
		observability.MReservationsExpired:  counter(observability.MReservationsExpired, "Reservations expired by the sweeper."),
		observability.MReservationsPurged:   counter(observability.MReservationsPurged, "Terminal reservations purged by the sweeper."),
		observability.MCompensationFailures: counter(observability.MCompensationFailures, "Sagas left in COMPENSATION_FAILED."),
		observability.MOutboxRelayed:        counter(observability.MOutboxRelayed, "Outbox messages handed to publishers.", "event", "outcome"),
	}
	histograms := map[observability.MetricKey]observability.Histogram{
		observability.MUsecaseDuration:         histogram(observability.MUsecaseDuration, "Duration of use case execution in seconds.", "use_case"),
		observability.MHTTPRequestDuration:     histogram(observability.MHTTPRequestDuration, "Duration of HTTP requests in seconds.", "method", "route", "status"),
		observability.MExternalRequestDuration: histogram(observability.MExternalRequestDuration, "Duration of collaborator calls in seconds.", "peer", "endpoint"),
	}
	return counters, histograms
}
