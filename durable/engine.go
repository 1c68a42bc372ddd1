// Package durable defines the durability contract the engine depends on
// (§6, "Durability contract") and the pluggable Engine abstraction that lets
// a workflow run target Temporal, an in-memory backend, or any other
// durable-execution system without the orchestration executor changing.
package durable

import (
	"context"
	"time"

	"github.com/agentflow/core/telemetry"
)

type (
	// Engine abstracts workflow registration and execution so adapters
	// (Temporal, in-memory, or custom) can be swapped without touching the
	// orchestration executor.
	Engine interface {
		// RegisterWorkflow registers a workflow definition with the
		// engine. Must be called before StartWorkflow for that name.
		RegisterWorkflow(ctx context.Context, def WorkflowDefinition) error

		// RegisterActivity registers an activity (durable step) definition
		// with the engine. Must be called before any workflow that
		// schedules it runs.
		RegisterActivity(ctx context.Context, def ActivityDefinition) error

		// StartWorkflow initiates a new workflow execution and returns a
		// handle for interacting with it. req.ID must be unique for the
		// engine instance.
		StartWorkflow(ctx context.Context, req WorkflowStartRequest) (WorkflowHandle, error)

		// GetRun returns the status handle for a previously started run.
		GetRun(ctx context.Context, runID string) (RunHandle, error)
	}

	// RunStatus is the coarse-grained lifecycle state of a workflow run.
	RunStatus string

	// WorkflowDefinition binds a workflow handler to a logical name and
	// default queue.
	WorkflowDefinition struct {
		Name      string
		TaskQueue string
		Handler   WorkflowFunc
	}

	// WorkflowFunc is the durable entry point for one workflow run. It must
	// be deterministic: given the same inputs and the same sequence of
	// activity results, it must produce the same sequence of engine calls.
	WorkflowFunc func(ctx WorkflowContext, input any) (any, error)

	// WorkflowContext exposes engine operations to a workflow handler
	// within the deterministic execution environment of a run.
	//
	// Implementations must ensure deterministic replay: ExecuteActivity and
	// SignalChannel must produce deterministic results when replayed.
	// Direct I/O, random number generation, or system time access within a
	// workflow handler violates determinism.
	//
	// WorkflowContext is bound to a single run and must not be shared
	// across goroutines outside the concurrency primitives the engine
	// itself provides (ExecuteActivityAsync/Future).
	WorkflowContext interface {
		// Context returns the Go context for the workflow. In
		// deterministic engines this is a replay-aware context.
		Context() context.Context

		// WorkflowID returns the caller-assigned identifier for this run.
		WorkflowID() string

		// RunID returns the engine-assigned run identifier.
		RunID() string

		// ExecuteActivity schedules a durable step and blocks for its
		// result.
		ExecuteActivity(ctx context.Context, req ActivityRequest, result any) error

		// ExecuteActivityAsync schedules a durable step without blocking.
		ExecuteActivityAsync(ctx context.Context, req ActivityRequest) (Future, error)

		// SignalChannel returns a channel for the given signal name.
		SignalChannel(name string) SignalChannel

		Logger() telemetry.Logger
		Metrics() telemetry.Metrics
		Tracer() telemetry.Tracer

		// Now returns the current workflow time in a replay-safe manner.
		Now() time.Time
	}

	// Future represents a pending activity result.
	Future interface {
		Get(ctx context.Context, result any) error
		IsReady() bool
	}

	// ActivityDefinition registers a durable step handler.
	ActivityDefinition struct {
		Name    string
		Handler ActivityFunc
		Options ActivityOptions
	}

	// ActivityFunc is a durable step body. Unlike a WorkflowFunc, it may
	// perform side effects (I/O, model calls, tool calls).
	ActivityFunc func(ctx context.Context, input any) (any, error)

	// ActivityOptions configures retry/timeout behavior for a durable step.
	ActivityOptions struct {
		Queue       string
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// WorkflowStartRequest describes how to launch a workflow run.
	WorkflowStartRequest struct {
		ID               string
		Workflow         string
		TaskQueue        string
		Input            any
		Memo             map[string]any
		SearchAttributes map[string]any
		RetryPolicy      RetryPolicy
	}

	// ActivityRequest schedules a durable step from within a workflow.
	ActivityRequest struct {
		Name        string
		Input       any
		Queue       string
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// WorkflowHandle lets callers interact with a running or completed
	// workflow.
	WorkflowHandle interface {
		Wait(ctx context.Context, result any) error
		Signal(ctx context.Context, name string, payload any) error
		Cancel(ctx context.Context) error
	}

	// RunHandle exposes the status of a previously started run (§6,
	// "getRun(runId) -> { status, returnValue, cancel() }").
	RunHandle interface {
		Status(ctx context.Context) (RunStatus, error)
		Wait(ctx context.Context, result any) error
		Cancel(ctx context.Context) error
	}

	// RetryPolicy defines retry semantics shared by workflows and
	// activities. Zero-valued fields mean the engine uses its defaults.
	RetryPolicy struct {
		MaxAttempts        int
		InitialInterval    time.Duration
		BackoffCoefficient float64
	}

	// SignalChannel exposes signal delivery in an engine-agnostic way.
	SignalChannel interface {
		Receive(ctx context.Context, dest any) error
		ReceiveAsync(dest any) bool
	}
)

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)
