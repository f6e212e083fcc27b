package application

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability/logctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const spanPrefix = "UC."

// Instruments carries the tracer, base logger and RED metrics shared by the use cases of one service.
type Instruments struct {
	tracer observability.Tracer
	log    observability.Logger

	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{provider,operation,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{provider,operation}
	sideEffects  observability.Counter   // side_effect_failures_total{effect}
}

// NewInstruments resolves metric instruments once; use cases must not create them per call.
func NewInstruments(obs observability.Observability, service string) *Instruments {
	obs = observability.Or(obs)
	m := obs.Metrics()
	return &Instruments{
		tracer:       obs.Tracer(),
		log:          obs.Logger().With(observability.F("service", service)),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
		sideEffects:  m.Counter(observability.MSideEffectFailures),
	}
}

func (in *Instruments) Logger() observability.Logger { return in.log }

// Run tracks a single use case execution from Start to End.
type Run struct {
	in      *Instruments
	useCase string
	span    trace.Span
	start   time.Time
	logger  observability.Logger

	outcome string
	status  string
	fields  []observability.Field
}

// Start opens a span named UC.<spanName>, binds a request logger with the use case
// and trace ids, and stores that logger on the returned context.
func (in *Instruments) Start(ctx context.Context, useCase, spanName string, attrs ...attribute.KeyValue) (context.Context, *Run) {
	attrs = append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)
	ctx, span := in.tracer.Start(ctx, spanPrefix+spanName, attrs...)

	fields := append([]observability.Field{observability.F("use_case", useCase)}, logctx.TraceFields(trace.SpanContextFromContext(ctx))...)
	ctx, logger := logctx.Enrich(ctx, in.log, fields...)

	return ctx, &Run{
		in:      in,
		useCase: useCase,
		span:    span,
		start:   time.Now(),
		logger:  logger,
		outcome: "success",
		status:  "OK",
	}
}

func (r *Run) Logger() observability.Logger { return r.logger }
func (r *Run) Span() trace.Span             { return r.span }

// Fail records an error outcome with a machine-readable status and returns err unchanged.
func (r *Run) Fail(status string, err error) error {
	r.outcome, r.status = "error", status
	return err
}

// Note changes the status text without marking the run as failed.
func (r *Run) Note(status string) {
	r.status = status
}

// With adds fields to the closing use_case_done line.
func (r *Run) With(fields ...observability.Field) {
	r.fields = append(r.fields, fields...)
}

// End closes the span, records RED metrics and writes the use_case_done line.
func (r *Run) End(err error) {
	lat := time.Since(r.start).Seconds()
	if err != nil && r.outcome == "success" {
		r.outcome, r.status = "error", "FAILED"
	}

	if err != nil {
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, r.status)
	} else {
		r.span.SetStatus(codes.Ok, r.status)
	}
	r.span.End()

	r.in.reqCounter.Add(1,
		observability.L("use_case", r.useCase),
		observability.L("outcome", r.outcome),
	)
	r.in.durHistogram.Observe(lat,
		observability.L("use_case", r.useCase),
	)

	fields := append([]observability.Field{
		observability.F("outcome", r.outcome),
		observability.F("status", r.status),
		observability.F("latency_seconds", lat),
	}, r.fields...)
	if err != nil {
		fields = append(fields, observability.Err(err))
	}
	r.logger.Info("use_case_done", fields...)
}

// External records a call to a third party such as the payment provider.
func (in *Instruments) External(provider, operation string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	in.extCounter.Add(1,
		observability.L("provider", provider),
		observability.L("operation", operation),
		observability.L("outcome", outcome),
	)
	in.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("provider", provider),
		observability.L("operation", operation),
	)
}

// SideEffectFailed counts a best-effort step that failed without failing its caller.
func (in *Instruments) SideEffectFailed(effect string) {
	in.sideEffects.Add(1, observability.L("effect", effect))
}
