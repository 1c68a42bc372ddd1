// Package telemetry defines the logging, metrics, and tracing contracts used
// throughout the orchestration engine. Components take these as explicit
// constructor dependencies rather than reaching for package-level globals,
// so the engine and its step registries stay testable in isolation.
package telemetry

import (
	"context"
	"time"
)

type (
	// Logger emits structured, leveled log messages. All methods take a
	// context first so implementations can attach trace/span correlation.
	Logger interface {
		Debug(ctx context.Context, msg string, keyvals ...any)
		Info(ctx context.Context, msg string, keyvals ...any)
		Warn(ctx context.Context, msg string, keyvals ...any)
		Error(ctx context.Context, msg string, keyvals ...any)
	}

	// Metrics records counters, gauges, and durations for engine operations
	// (step attempts, retries, progress chunks emitted, template resolution
	// failures).
	Metrics interface {
		IncCounter(name string, value float64, tags ...string)
		RecordDuration(name string, d time.Duration, tags ...string)
		SetGauge(name string, value float64, tags ...string)
	}

	// Tracer creates spans for workflow and step execution.
	Tracer interface {
		StartSpan(ctx context.Context, name string, tags ...string) (context.Context, Span)
	}

	// Span is a single unit of traced work.
	Span interface {
		End()
		SetError(err error)
		SetAttribute(key string, value any)
	}
)
