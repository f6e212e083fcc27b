package logctx

import (
	"context"

	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// WithEvent stores a logger for a background event handler. It carries
// event_id (generated when attrs has none), the publisher's trace ids and the
// remaining non-empty attrs.
func WithEvent(ctx context.Context, base observability.Logger, sc trace.SpanContext, attrs map[string]string) context.Context {
	id := attrs["event_id"]
	if id == "" {
		id = uuid.NewString()
	}
	fields := append([]observability.Field{observability.F("event_id", id)}, TraceFields(sc)...)
	for k, v := range attrs {
		if k != "event_id" && v != "" {
			fields = append(fields, observability.F(k, v))
		}
	}
	if base == nil {
		base = observability.NopLogger()
	}
	return With(ctx, base.With(fields...))
}
