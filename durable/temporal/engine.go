// Package temporal adapts the Temporal Go SDK to the durable.Engine
// contract (§6, "Durability contract"), so the orchestration executor and
// worker executor can run against a real durable-execution backend without
// depending on any Temporal type directly.
//
// A workflow run maps to a Temporal workflow, a durable step maps to a
// Temporal activity, durable.RetryPolicy maps to temporal.RetryPolicy, and
// durable.SignalChannel maps to a Temporal signal channel. Workflow
// execution in Temporal is deterministic and replay-driven: the handler
// registered with RegisterWorkflow must make the same sequence of engine
// calls given the same sequence of activity results, exactly like any other
// durable.WorkflowFunc.
package temporal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/agentflow/core/durable"
	"github.com/agentflow/core/telemetry"
)

type (
	// Options configures an Engine. Client and TaskQueue are required;
	// Logger, Metrics and Tracer default to no-op implementations.
	Options struct {
		Client    client.Client
		TaskQueue string
		Logger    telemetry.Logger
		Metrics   telemetry.Metrics
		Tracer    telemetry.Tracer
	}

	// Engine is the Temporal-backed implementation of durable.Engine. A
	// single Engine owns one worker.Worker bound to a default task queue;
	// workflows and activities registered through it are registered with
	// that worker.
	Engine struct {
		mu              sync.Mutex
		client          client.Client
		worker          worker.Worker
		defaultQueue    string
		activityOptions map[string]durable.ActivityOptions

		logger  telemetry.Logger
		metrics telemetry.Metrics
		tracer  telemetry.Tracer

		// ctxMu and wfContexts track the live temporalWorkflowContext for
		// each in-flight run, keyed by Temporal run ID. Workflow code is
		// replayed on a worker goroutine and must stay deterministic, so
		// this side table exists only to let code holding a plain
		// context.Context (for example a nested activity helper) look its
		// originating WorkflowContext back up; it must never be consulted
		// to make a decision that affects the sequence of engine calls.
		ctxMu      sync.Mutex
		wfContexts map[string]*workflowContext
	}
)

// New constructs an Engine bound to a Temporal client and default task
// queue. The returned Engine does not start its worker; call Run once all
// workflows and activities have been registered.
func New(opts Options) (*Engine, error) {
	if opts.Client == nil {
		return nil, errors.New("temporal: client is required")
	}
	if opts.TaskQueue == "" {
		return nil, errors.New("temporal: task queue is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}

	e := &Engine{
		client:          opts.Client,
		defaultQueue:    opts.TaskQueue,
		activityOptions: make(map[string]durable.ActivityOptions),
		logger:          logger,
		metrics:         metrics,
		tracer:          tracer,
		wfContexts:      make(map[string]*workflowContext),
	}
	e.worker = worker.New(opts.Client, opts.TaskQueue, worker.Options{})
	return e, nil
}

// Run starts the underlying Temporal worker and blocks until ctx is
// cancelled or the worker stops with an error.
func (e *Engine) Run(ctx context.Context) error {
	stop := make(chan interface{})
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			close(stop)
		case <-done:
		}
	}()
	return e.worker.Run(stop)
}

// RegisterWorkflow registers def with the Temporal worker under def.Name.
// The handler is wrapped so that, from Temporal's perspective, it is an
// ordinary workflow function taking a workflow.Context and an any input;
// internally it adapts that workflow.Context into a durable.WorkflowContext
// before calling def.Handler.
func (e *Engine) RegisterWorkflow(_ context.Context, def durable.WorkflowDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return errors.New("temporal: invalid workflow definition")
	}
	e.worker.RegisterWorkflowWithOptions(
		func(ctx workflow.Context, input any) (any, error) {
			wfCtx := e.newWorkflowContext(ctx)
			defer e.releaseWorkflowContext(wfCtx.runID)
			return def.Handler(wfCtx, input)
		},
		workflow.RegisterOptions{Name: def.Name},
	)
	return nil
}

// RegisterActivity registers def with the Temporal worker under def.Name,
// and remembers its default queue/retry/timeout so workflow code that omits
// per-call overrides still gets sane activity options.
func (e *Engine) RegisterActivity(_ context.Context, def durable.ActivityDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return errors.New("temporal: invalid activity definition")
	}
	e.worker.RegisterActivityWithOptions(
		func(ctx context.Context, input any) (any, error) {
			return def.Handler(ctx, input)
		},
		activity.RegisterOptions{Name: def.Name},
	)
	e.mu.Lock()
	e.activityOptions[def.Name] = def.Options
	e.mu.Unlock()
	return nil
}

// StartWorkflow starts req.Workflow as a new Temporal workflow execution
// with workflow ID req.ID.
func (e *Engine) StartWorkflow(ctx context.Context, req durable.WorkflowStartRequest) (durable.WorkflowHandle, error) {
	queue := req.TaskQueue
	if queue == "" {
		queue = e.defaultQueue
	}
	run, err := e.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                 req.ID,
		TaskQueue:          queue,
		Memo:               req.Memo,
		SearchAttributes:   req.SearchAttributes,
		WorkflowRunTimeout: 0,
		RetryPolicy:        convertRetryPolicy(req.RetryPolicy),
	}, req.Workflow, req.Input)
	if err != nil {
		return nil, fmt.Errorf("temporal: start workflow %q: %w", req.Workflow, err)
	}
	return &workflowHandle{client: e.client, workflowID: run.GetID(), runID: run.GetRunID()}, nil
}

// GetRun returns a handle to a previously started workflow execution.
func (e *Engine) GetRun(_ context.Context, runID string) (durable.RunHandle, error) {
	return &runHandle{client: e.client, workflowID: runID}, nil
}

func (e *Engine) activityDefaultsFor(name string) durable.ActivityOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activityOptions[name]
}

func (e *Engine) trackWorkflowContext(runID string, wc *workflowContext) {
	e.ctxMu.Lock()
	defer e.ctxMu.Unlock()
	e.wfContexts[runID] = wc
}

func (e *Engine) releaseWorkflowContext(runID string) {
	e.ctxMu.Lock()
	defer e.ctxMu.Unlock()
	delete(e.wfContexts, runID)
}

// lookupWorkflowContext resolves the workflowContext tracked for runID, if
// any is still live. It exists for helper code that only has a plain
// context.Context in hand (derived from workflowContext.Context()) and
// needs to recover the originating WorkflowContext to make further engine
// calls.
func (e *Engine) lookupWorkflowContext(runID string) (*workflowContext, bool) {
	e.ctxMu.Lock()
	defer e.ctxMu.Unlock()
	wc, ok := e.wfContexts[runID]
	return wc, ok
}

func convertRetryPolicy(r durable.RetryPolicy) *client.RetryPolicy {
	if r.MaxAttempts == 0 && r.InitialInterval == 0 && r.BackoffCoefficient == 0 {
		return nil
	}
	p := &client.RetryPolicy{}
	if r.MaxAttempts > 0 {
		p.MaximumAttempts = int32(r.MaxAttempts)
	}
	if r.InitialInterval > 0 {
		p.InitialInterval = r.InitialInterval
	}
	if r.BackoffCoefficient > 0 {
		p.BackoffCoefficient = r.BackoffCoefficient
	}
	return p
}

func convertActivityRetryPolicy(r durable.RetryPolicy) *sdktemporal.RetryPolicy {
	if r.MaxAttempts == 0 && r.InitialInterval == 0 && r.BackoffCoefficient == 0 {
		return nil
	}
	p := &sdktemporal.RetryPolicy{}
	if r.MaxAttempts > 0 {
		p.MaximumAttempts = int32(r.MaxAttempts)
	}
	if r.InitialInterval > 0 {
		p.InitialInterval = r.InitialInterval
	}
	if r.BackoffCoefficient > 0 {
		p.BackoffCoefficient = r.BackoffCoefficient
	}
	return p
}

// normalizeTemporalError translates Temporal cancellation errors to
// context.Canceled so callers can classify cancellation uniformly across
// engine backends without importing the Temporal SDK.
func normalizeTemporalError(err error) error {
	if err == nil {
		return nil
	}
	if sdktemporal.IsCanceledError(err) {
		return context.Canceled
	}
	return err
}
