package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	appInventory "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/inventory"
	appOrder "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/order"
	domainInventory "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/inventory"
	domainOrder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	domainSaga "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/saga"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type Handler struct {
	inventory *appInventory.Engine
	orders    *appOrder.Orchestrator
	metrics   http.Handler

	log      observability.Logger
	tracer   trace.Tracer
	requests observability.Counter
	latency  observability.Histogram
}

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	headerIdempotency    = "Idempotency-Key"

	maxBodyBytes = 1 << 20
)

// NewHandler builds the HTTP surface. metrics serves /metrics when non-nil; tp
// falls back to the global tracer provider.
func NewHandler(inventory *appInventory.Engine, orders *appOrder.Orchestrator, metrics http.Handler,
	tp trace.TracerProvider, tel observability.Observability,
) *Handler {
	log, _, m := observability.Resolve(tel)
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Handler{
		inventory: inventory,
		orders:    orders,
		metrics:   metrics,
		log:       log.With(observability.F("component", componentHTTPHandler)),
		tracer:    tp.Tracer("minishop.http"),
		requests:  m.Counter(observability.MHTTPRequests),
		latency:   m.Histogram(observability.MHTTPRequestDuration),
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	h.muxHandle(mux, http.MethodPost, "/inventory/stock", h.handleCreateStock)
	h.muxHandle(mux, http.MethodGet, "/inventory/stock", h.handleGetStock)
	h.muxHandle(mux, http.MethodPost, "/inventory/reserve", h.handleReserve)
	h.muxHandle(mux, http.MethodPost, "/inventory/release", h.handleRelease)
	h.muxHandle(mux, http.MethodPost, "/inventory/confirm", h.handleConfirm)
	h.muxHandle(mux, http.MethodPost, "/inventory/adjust", h.handleAdjust)
	h.muxHandle(mux, http.MethodGet, "/inventory/availability", h.handleAvailability)
	h.muxHandle(mux, http.MethodGet, "/inventory/low-stock", h.handleLowStock)
	h.muxHandle(mux, http.MethodGet, "/inventory/reservations", h.handleReservations)
	h.muxHandle(mux, http.MethodGet, "/inventory/movements", h.handleMovements)
	h.muxHandle(mux, http.MethodGet, "/inventory/alerts", h.handleAlerts)
	h.muxHandle(mux, http.MethodPost, "/inventory/alerts/resolve", h.handleResolveAlert)

	h.muxHandle(mux, http.MethodPost, "/orders", h.handlePlaceOrder)
	h.muxHandle(mux, http.MethodGet, "/orders", h.handleGetOrder)
	h.muxHandle(mux, http.MethodGet, "/orders/saga", h.handleGetSaga)
	h.muxHandle(mux, http.MethodPost, "/orders/cancel", h.handleCancelOrder)
	h.muxHandle(mux, http.MethodPost, "/orders/status", h.handleUpdateStatus)

	h.muxHandle(mux, http.MethodGet, "/health", h.handleHealth)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}
	return mux
}

func (h *Handler) muxHandle(mux *http.ServeMux, method, route string, fn http.HandlerFunc) {
	pattern := method + " " + route
	mux.Handle(pattern, h.serverSpan(method, route, RequestLogger(h.log)(h.accessLog(fn))))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// serverSpan continues the caller's W3C trace, tags the request with its
// registered pattern and records the request counter and duration.
func (h *Handler) serverSpan(method, route string, next http.Handler) http.Handler {
	pattern := method + " " + route
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx = contextWithRoute(ctx, pattern)
		ctx, span := h.tracer.Start(ctx, pattern,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", method),
				attribute.String("http.route", route),
				attribute.String("http.target", r.URL.Path),
			),
		)
		defer span.End()

		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", rec.status))
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}
		labels := []observability.Label{
			observability.L("method", method),
			observability.L("route", pattern),
			observability.L("status", strconv.Itoa(rec.status)),
		}
		h.requests.Add(1, labels...)
		h.latency.Observe(time.Since(start).Seconds(), labels...)
	})
}

// accessLog runs inside RequestLogger so the line carries request and trace ids.
func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r)

		log := logctx.FromOr(r.Context(), h.log)
		fields := []observability.Field{
			observability.F("method", r.Method),
			observability.F("path", r.URL.Path),
			observability.F("status", rec.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		}
		if rec.status >= http.StatusInternalServerError {
			log.Warn("http_access", fields...)
			return
		}
		log.Info("http_access", fields...)
	})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := errorResponse{Error: err.Error()}
	if status != http.StatusInternalServerError {
		body.Reason = domainInventory.FailureReason(err)
	}
	writeJSON(w, status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domainInventory.ErrNotFound),
		errors.Is(err, domainInventory.ErrReservationNotFound),
		errors.Is(err, domainInventory.ErrAlertNotFound),
		errors.Is(err, domainOrder.ErrNotFound),
		errors.Is(err, domainSaga.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domainInventory.ErrValidation),
		errors.Is(err, domainInventory.ErrInvalidQuantity),
		errors.Is(err, domainOrder.ErrNoItems),
		errors.Is(err, domainOrder.ErrInvalidQuantity),
		errors.Is(err, domainOrder.ErrInvalidAmount),
		errors.Is(err, domainOrder.ErrUserRequired):
		return http.StatusBadRequest
	case errors.Is(err, domainInventory.ErrInsufficientStock),
		errors.Is(err, domainInventory.ErrAlreadyTerminal),
		errors.Is(err, domainInventory.ErrConcurrencyConflict),
		errors.Is(err, domainInventory.ErrAlreadyExists),
		errors.Is(err, domainInventory.ErrDuplicateID),
		errors.Is(err, domainOrder.ErrInvalidStateTransition),
		appOrder.IsNotCancellable(err):
		return http.StatusConflict
	case errors.Is(err, domainSaga.ErrDownstreamTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type routeKey struct{}

func contextWithRoute(ctx context.Context, pattern string) context.Context {
	return context.WithValue(ctx, routeKey{}, pattern)
}

// routeFromContext returns the mux pattern, e.g. "POST /inventory/reserve".
func routeFromContext(ctx context.Context) string {
	route, _ := ctx.Value(routeKey{}).(string)
	return route
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", key, err)
	}
	return n, nil
}
