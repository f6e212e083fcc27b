// Package oteltrace adapts an OpenTelemetry tracer to observability.Tracer.
package oteltrace

import (
	"context"

	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultName = "minishop-storefront"

type Option func(*Tracer)

// WithProvider pins the tracer to tp instead of the global provider.
func WithProvider(tp trace.TracerProvider) Option {
	return func(t *Tracer) {
		if tp != nil {
			t.provider = tp
		}
	}
}

// Tracer opens internal spans on behalf of use cases and background handlers.
type Tracer struct {
	provider trace.TracerProvider
	tracer   trace.Tracer
}

var _ observability.Tracer = (*Tracer)(nil)

// New resolves the provider once. Without WithProvider it uses whatever
// telemetry.SetupTracer installed globally, so call it after setup.
func New(name string, opts ...Option) *Tracer {
	if name == "" {
		name = defaultName
	}
	t := &Tracer{provider: otel.GetTracerProvider()}
	for _, opt := range opts {
		opt(t)
	}
	t.tracer = t.provider.Tracer(name)
	return t
}

func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}
