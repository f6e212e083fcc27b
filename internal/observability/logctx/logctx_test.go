package logctx

import (
	"context"
	"testing"

	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

type recordingLogger struct {
	observability.Logger
	fields []observability.Field
}

func (l *recordingLogger) With(fields ...observability.Field) observability.Logger {
	return &recordingLogger{Logger: observability.NopLogger(), fields: append(append([]observability.Field(nil), l.fields...), fields...)}
}

func fieldMap(fs []observability.Field) map[string]any {
	m := make(map[string]any, len(fs))
	for _, f := range fs {
		m[f.Key] = f.Value
	}
	return m
}

func TestFromOr(t *testing.T) {
	fallback := observability.NopLogger()
	assert.Equal(t, fallback, FromOr(context.Background(), fallback))

	l := &recordingLogger{Logger: observability.NopLogger()}
	ctx := With(context.Background(), l)
	assert.Same(t, l, FromOr(ctx, fallback))
}

func TestWithEvent(t *testing.T) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1},
		SpanID:  trace.SpanID{2},
	})
	base := &recordingLogger{Logger: observability.NopLogger()}

	ctx := WithEvent(context.Background(), base, sc, map[string]string{
		"event":    "order.placed",
		"event_id": "evt-1",
		"empty":    "",
	})
	got, ok := From(ctx).(*recordingLogger)
	require.True(t, ok)

	fields := fieldMap(got.fields)
	assert.Equal(t, "evt-1", fields["event_id"])
	assert.Equal(t, "order.placed", fields["event"])
	assert.Equal(t, sc.TraceID().String(), fields["trace_id"])
	assert.Equal(t, sc.SpanID().String(), fields["span_id"])
	assert.NotContains(t, fields, "empty")
}

func TestWithEventGeneratesID(t *testing.T) {
	base := &recordingLogger{Logger: observability.NopLogger()}
	ctx := WithEvent(context.Background(), base, trace.SpanContext{}, nil)

	fields := fieldMap(From(ctx).(*recordingLogger).fields)
	assert.NotEmpty(t, fields["event_id"])
	assert.NotContains(t, fields, "trace_id")
}

func TestEnrichExtendsContextLogger(t *testing.T) {
	base := &recordingLogger{Logger: observability.NopLogger()}
	ctx := With(context.Background(), base.With(observability.F("request_id", "r-1")))

	ctx, l := Enrich(ctx, observability.NopLogger(), observability.F("use_case", "PlaceOrder"))
	assert.Same(t, l, From(ctx))
	fields := fieldMap(l.(*recordingLogger).fields)
	assert.Equal(t, "r-1", fields["request_id"])
	assert.Equal(t, "PlaceOrder", fields["use_case"])
}

func TestEnrichWithoutAnyLogger(t *testing.T) {
	ctx, l := Enrich(context.Background(), nil)
	require.NotNil(t, l)
	assert.NotNil(t, From(ctx))
}

func TestTraceFieldsSkipsUnsetIDs(t *testing.T) {
	assert.Empty(t, TraceFields(trace.SpanContext{}))

	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: trace.TraceID{9}})
	fields := fieldMap(TraceFields(sc))
	assert.Equal(t, sc.TraceID().String(), fields["trace_id"])
	assert.NotContains(t, fields, "span_id")
}
