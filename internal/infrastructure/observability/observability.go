// Package observability assembles the storefront's Observability from its adapters:
// oteltrace for spans, zaplogger for logs and prometrics for metrics.
package observability

import (
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
)

type provider struct {
	tracer  observability.Tracer
	logger  observability.Logger
	metrics observability.Metrics
}

// New bundles the adapters. Any nil signal falls back to its no-op.
func New(tracer observability.Tracer, logger observability.Logger, metrics observability.Metrics) observability.Observability {
	p := &provider{tracer: tracer, logger: logger, metrics: metrics}
	if p.tracer == nil {
		p.tracer = observability.NopTracer()
	}
	if p.logger == nil {
		p.logger = observability.NopLogger()
	}
	if p.metrics == nil {
		p.metrics = observability.NopMetrics()
	}
	return p
}

func (p *provider) Tracer() observability.Tracer   { return p.tracer }
func (p *provider) Logger() observability.Logger   { return p.logger }
func (p *provider) Metrics() observability.Metrics { return p.metrics }
