package telemetry

import (
	"context"
	"time"
)

type (
	// NoopLogger discards all log messages. Suitable for tests and any
	// caller that has not configured a logging backend.
	NoopLogger struct{}

	// NoopMetrics discards all metrics.
	NoopMetrics struct{}

	// NoopTracer creates spans that record nothing.
	NoopTracer struct{}

	noopSpan struct{}
)

// NewNoopLogger constructs a Logger that discards all log messages.
func NewNoopLogger() Logger { return NoopLogger{} }

// NewNoopMetrics constructs a Metrics recorder that discards all metrics.
func NewNoopMetrics() Metrics { return NoopMetrics{} }

// NewNoopTracer constructs a Tracer that creates no-op spans.
func NewNoopTracer() Tracer { return NoopTracer{} }

func (NoopLogger) Debug(context.Context, string, ...any) {}
func (NoopLogger) Info(context.Context, string, ...any)  {}
func (NoopLogger) Warn(context.Context, string, ...any)  {}
func (NoopLogger) Error(context.Context, string, ...any) {}

func (NoopMetrics) IncCounter(string, float64, ...string)             {}
func (NoopMetrics) RecordDuration(string, time.Duration, ...string)   {}
func (NoopMetrics) SetGauge(string, float64, ...string)               {}

func (NoopTracer) StartSpan(ctx context.Context, _ string, _ ...string) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (noopSpan) End()                        {}
func (noopSpan) SetError(error)              {}
func (noopSpan) SetAttribute(string, any)    {}
