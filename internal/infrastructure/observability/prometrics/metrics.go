// Package prometrics backs observability.Metrics with Prometheus vectors.
package prometrics

import (
	"errors"
	"sync"

	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
)

// ProviderBuckets spans fast local fakes through slow card-network round trips.
var ProviderBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Registry creates or reuses named vectors.
type Registry interface {
	Counter(name string, help string, labelKeys ...string) observability.Counter
	Histogram(name string, help string, buckets []float64, labelKeys ...string) observability.Histogram
}

type registry struct {
	reg       prometheus.Registerer
	namespace string
	subsystem string

	mu         sync.Mutex
	collectors map[string]prometheus.Collector
}

// New registers on reg, or on prometheus.DefaultRegisterer when reg is nil.
func New(reg prometheus.Registerer, namespace, subsystem string) Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &registry{
		reg:        reg,
		namespace:  namespace,
		subsystem:  subsystem,
		collectors: make(map[string]prometheus.Collector),
	}
}

func (r *registry) Counter(name string, help string, labelKeys ...string) observability.Counter {
	c := r.register(name, func() prometheus.Collector {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: r.namespace,
			Subsystem: r.subsystem,
			Name:      name,
			Help:      help,
		}, labelKeys)
	})
	return counterVec{c.(*prometheus.CounterVec)}
}

func (r *registry) Histogram(name string, help string, buckets []float64, labelKeys ...string) observability.Histogram {
	h := r.register(name, func() prometheus.Collector {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: r.namespace,
			Subsystem: r.subsystem,
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		}, labelKeys)
	})
	return histogramVec{h.(*prometheus.HistogramVec)}
}

// register returns the collector already known under name, adopting one that
// another Registry put on the same registerer.
func (r *registry) register(name string, build func() prometheus.Collector) prometheus.Collector {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.collectors[name]; ok {
		return c
	}
	c := build()
	if err := r.reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			panic(err)
		}
		c = are.ExistingCollector
	}
	r.collectors[name] = c
	return c
}

// Instruments maps metric keys to vectors. It satisfies observability.Metrics;
// unknown keys resolve to no-op instruments.
type Instruments struct {
	Counters   map[observability.MetricKey]observability.Counter
	Histograms map[observability.MetricKey]observability.Histogram
}

func (i Instruments) Counter(key observability.MetricKey) observability.Counter {
	if c := i.Counters[key]; c != nil {
		return c
	}
	return observability.NopCounter()
}

func (i Instruments) Histogram(key observability.MetricKey) observability.Histogram {
	if h := i.Histograms[key]; h != nil {
		return h
	}
	return observability.NopHistogram()
}

// Standard registers every instrument the storefront reports to.
func Standard(r Registry) Instruments {
	counter := func(key observability.MetricKey, help string, labels ...string) observability.Counter {
		return r.Counter(string(key), help, labels...)
	}
	histogram := func(key observability.MetricKey, help string, buckets []float64, labels ...string) observability.Histogram {
		return r.Histogram(string(key), help, buckets, labels...)
	}

	inst := Instruments{
		Counters:   make(map[observability.MetricKey]observability.Counter),
		Histograms: make(map[observability.MetricKey]observability.Histogram),
	}
	inst.Counters[observability.MUsecaseRequests] = counter(observability.MUsecaseRequests,
		"Use case invocations by outcome.", "use_case", "outcome")
	inst.Counters[observability.MHTTPRequests] = counter(observability.MHTTPRequests,
		"HTTP requests by route and status.", "method", "route", "status")
	inst.Counters[observability.MExternalRequests] = counter(observability.MExternalRequests,
		"Payment and email provider calls by outcome.", "provider", "operation", "outcome")
	inst.Counters[observability.MSideEffectFailures] = counter(observability.MSideEffectFailures,
		"Best-effort steps that failed without failing the caller.", "effect")

	inst.Histograms[observability.MUsecaseDuration] = histogram(observability.MUsecaseDuration,
		"Use case latency in seconds.", prometheus.DefBuckets, "use_case")
	inst.Histograms[observability.MHTTPRequestDuration] = histogram(observability.MHTTPRequestDuration,
		"HTTP request latency in seconds.", prometheus.DefBuckets, "method", "route")
	inst.Histograms[observability.MExternalRequestDuration] = histogram(observability.MExternalRequestDuration,
		"Provider call latency in seconds.", ProviderBuckets, "provider", "operation")
	return inst
}

type counterVec struct{ v *prometheus.CounterVec }

func (c counterVec) Add(d float64, labels ...observability.Label) {
	c.v.With(labelMap(labels)).Add(d)
}

// Bind resolves the series once; later Adds skip the label lookup.
func (c counterVec) Bind(labels ...observability.Label) observability.BoundCounter {
	return c.v.With(labelMap(labels))
}

type histogramVec struct{ v *prometheus.HistogramVec }

func (h histogramVec) Observe(v float64, labels ...observability.Label) {
	h.v.With(labelMap(labels)).Observe(v)
}

func (h histogramVec) Bind(labels ...observability.Label) observability.BoundHistogram {
	return h.v.With(labelMap(labels))
}

func labelMap(ls []observability.Label) prometheus.Labels {
	m := make(prometheus.Labels, len(ls))
	for _, l := range ls {
		m[l.Key] = l.Value
	}
	return m
}
