package telemetry

import (
	"context"
	"time"
)

// Observability bundles a Logger/Metrics/Tracer triple behind the
// span-plus-counter wrapper idiom the teacher establishes in
// runtime/registry/observability.go: every operation starts a span, runs,
// and records a success/error counter and a duration, independent of which
// concrete backend the three components are wired to.
type Observability struct {
	Logger  Logger
	Metrics Metrics
	Tracer  Tracer
}

// NewObservability defaults any nil component to its no-op implementation,
// mirroring the teacher's NewObservability constructor.
func NewObservability(logger Logger, metrics Metrics, tracer Tracer) *Observability {
	o := &Observability{Logger: logger, Metrics: metrics, Tracer: tracer}
	if o.Logger == nil {
		o.Logger = NewNoopLogger()
	}
	if o.Metrics == nil {
		o.Metrics = NewNoopMetrics()
	}
	if o.Tracer == nil {
		o.Tracer = NewNoopTracer()
	}
	return o
}

// Observe runs fn inside a span named "<scope>.<operation>" and records
// "<scope>.operation.duration", plus "<scope>.operation.success" or
// "<scope>.operation.error" depending on fn's result — the same
// StartSpan/EndSpan-plus-RecordOperationMetrics pairing the teacher's
// Observability.StartSpan/EndSpan/RecordOperationMetrics perform around
// each registry operation, generalized to any scope/operation pair so both
// the worker and orchestration executors can share it.
func (o *Observability) Observe(ctx context.Context, scope, operation string, tags []string, fn func(ctx context.Context) error) error {
	spanTags := append([]string{"operation", operation}, tags...)
	ctx, span := o.Tracer.StartSpan(ctx, scope+"."+operation, spanTags...)

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	counterTags := append([]string{"operation", operation}, tags...)
	o.Metrics.RecordDuration(scope+".operation.duration", duration, counterTags...)
	if err != nil {
		span.SetError(err)
		o.Metrics.IncCounter(scope+".operation.error", 1, counterTags...)
	} else {
		o.Metrics.IncCounter(scope+".operation.success", 1, counterTags...)
	}
	span.End()
	return err
}
