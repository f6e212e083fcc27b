package httppresentation

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability/logctx"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	headerRequestID = "X-Request-ID"
	tracerName      = "minishop.http"
	maxRequestIDLen = 128
)

// instrument wraps one registered route. A single status recorder feeds the
// server span, the request counter, the route's latency series and the access
// log; panics below it become 500s.
func (h *Handler) instrument(method, route string, next http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)
	spanName := method + " " + route
	latency := h.durations.Bind(observability.L("method", method), observability.L("route", route))
	next = middleware.Recoverer(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", method),
				attribute.String("http.route", route),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		rid := requestID(r)
		w.Header().Set(headerRequestID, rid)
		fields := append([]observability.Field{observability.F("request_id", rid)}, logctx.TraceFields(span.SpanContext())...)
		ctx, log := logctx.Enrich(ctx, h.log, fields...)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))
		elapsed := time.Since(start)

		span.SetAttributes(attribute.Int("http.status_code", rec.status))
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}
		h.requests.Add(1,
			observability.L("method", method),
			observability.L("route", route),
			observability.L("status", strconv.Itoa(rec.status)),
		)
		latency.Observe(elapsed.Seconds())
		log.Info("http_access",
			observability.F("method", method),
			observability.F("route", route),
			observability.F("path", r.URL.Path),
			observability.F("status", rec.status),
			observability.F("latency_ms", elapsed.Milliseconds()),
		)
	})
}

// requestID echoes a caller-supplied X-Request-ID or mints one.
func requestID(r *http.Request) string {
	if rid := r.Header.Get(headerRequestID); rid != "" && len(rid) <= maxRequestIDLen {
		return rid
	}
	return uuid.NewString()
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusRecorder) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}
