package httppresentation

import (
	"net/http"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"

	"github.com/google/uuid"
)

const headerUserID = "X-User-ID"

// RequestLogger installs the request-scoped logger. It runs inside serverSpan,
// so trace_id/span_id come from the server span. X-Request-ID is generated
// when absent and echoed on the response; X-User-ID is logged when present.
func RequestLogger(base observability.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = observability.NopLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := r.Header.Get(headerRequestID)
			if rid == "" {
				rid = uuid.NewString()
			}
			w.Header().Set(headerRequestID, rid)

			fields := append([]observability.Field{
				observability.F("request_id", rid),
				observability.F("route", routeFromContext(r.Context())),
			}, observability.TraceFields(r.Context())...)
			if uid := r.Header.Get(headerUserID); uid != "" {
				fields = append(fields, observability.F("user_id", uid))
			}

			ctx := logctx.Enrich(r.Context(), base, fields...)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// statusRecorder remembers the first status written; handlers that never
// call WriteHeader answered 200.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (w *statusRecorder) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }
