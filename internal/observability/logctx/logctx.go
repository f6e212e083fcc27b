// Package logctx carries a request- or event-scoped logger on a context.
package logctx

import (
	"context"

	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"go.opentelemetry.io/otel/trace"
)

type ctxKey struct{}

// With returns ctx carrying l. A nil logger leaves ctx untouched.
func With(ctx context.Context, l observability.Logger) context.Context {
	if ctx == nil || l == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, l)
}

func From(ctx context.Context) observability.Logger {
	if ctx == nil {
		return nil
	}
	l, _ := ctx.Value(ctxKey{}).(observability.Logger)
	return l
}

func FromOr(ctx context.Context, fallback observability.Logger) observability.Logger {
	if l := From(ctx); l != nil {
		return l
	}
	return fallback
}

// Enrich stores the context logger (or fallback) extended with fields.
func Enrich(ctx context.Context, fallback observability.Logger, fields ...observability.Field) (context.Context, observability.Logger) {
	l := FromOr(ctx, fallback)
	if l == nil {
		l = observability.NopLogger()
	}
	l = l.With(fields...)
	return With(ctx, l), l
}

// TraceFields returns trace_id and span_id for sc, skipping ids that are unset.
func TraceFields(sc trace.SpanContext) []observability.Field {
	var out []observability.Field
	if sc.HasTraceID() {
		out = append(out, observability.F("trace_id", sc.TraceID().String()))
	}
	if sc.HasSpanID() {
		out = append(out, observability.F("span_id", sc.SpanID().String()))
	}
	return out
}
