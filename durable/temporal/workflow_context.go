package temporal

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/agentflow/core/durable"
	"github.com/agentflow/core/telemetry"
)

type (
	// workflowContext adapts a Temporal workflow.Context into the engine's
	// durable.WorkflowContext contract. It is created once per run by
	// RegisterWorkflow's wrapper and lives for the lifetime of that run.
	workflowContext struct {
		engine     *Engine
		ctx        workflow.Context
		workflowID string
		runID      string
	}

	temporalFuture struct {
		future workflow.Future
		ctx    workflow.Context
	}

	temporalSignalChannel struct {
		ctx workflow.Context
		ch  workflow.ReceiveChannel
	}

	runIDKeyType struct{}
)

var runIDKey = runIDKeyType{}

func (e *Engine) newWorkflowContext(ctx workflow.Context) *workflowContext {
	info := workflow.GetInfo(ctx)
	wc := &workflowContext{
		engine:     e,
		ctx:        ctx,
		workflowID: info.WorkflowExecution.ID,
		runID:      info.WorkflowExecution.RunID,
	}
	e.trackWorkflowContext(wc.runID, wc)
	return wc
}

// Context returns a stdlib context.Context carrying wc's run ID. Temporal
// workflow code must never use this context to perform I/O directly or to
// seed randomness/time — it exists only so that plain Go helpers further
// down the call stack (logging, tracing, argument plumbing) can run without
// threading a workflow.Context through signatures that predate Temporal.
// Anything that needs to call back into the engine (schedule an activity,
// wait on a signal) must go through the WorkflowContext methods below,
// which use wc.ctx, the real workflow.Context, directly.
func (wc *workflowContext) Context() context.Context {
	return context.WithValue(context.Background(), runIDKey, wc.runID)
}

func (wc *workflowContext) WorkflowID() string { return wc.workflowID }
func (wc *workflowContext) RunID() string      { return wc.runID }

func (wc *workflowContext) Logger() telemetry.Logger   { return wc.engine.logger }
func (wc *workflowContext) Metrics() telemetry.Metrics { return wc.engine.metrics }
func (wc *workflowContext) Tracer() telemetry.Tracer   { return wc.engine.tracer }

// Now returns Temporal's deterministic workflow clock rather than
// time.Now(), so replay reproduces the same value at the same point in the
// execution history.
func (wc *workflowContext) Now() time.Time {
	return workflow.Now(wc.ctx)
}

func (wc *workflowContext) ExecuteActivity(_ context.Context, req durable.ActivityRequest, result any) error {
	f, err := wc.ExecuteActivityAsync(context.Background(), req)
	if err != nil {
		return err
	}
	return f.Get(context.Background(), result)
}

func (wc *workflowContext) ExecuteActivityAsync(_ context.Context, req durable.ActivityRequest) (durable.Future, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("temporal: activity name is required")
	}
	actx := workflow.WithActivityOptions(wc.ctx, wc.activityOptionsFor(req))
	fut := workflow.ExecuteActivity(actx, req.Name, req.Input)
	return &temporalFuture{future: fut, ctx: actx}, nil
}

func (wc *workflowContext) activityOptionsFor(req durable.ActivityRequest) workflow.ActivityOptions {
	defaults := wc.engine.activityDefaultsFor(req.Name)

	queue := req.Queue
	if queue == "" {
		queue = defaults.Queue
	}
	if queue == "" {
		queue = wc.engine.defaultQueue
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = defaults.Timeout
	}
	if timeout == 0 {
		timeout = time.Minute
	}

	retry := req.RetryPolicy
	if retry.MaxAttempts == 0 {
		retry = defaults.RetryPolicy
	}

	return workflow.ActivityOptions{
		// Bound schedule-to-start as well as start-to-close: without it a
		// workflow can block until the overall run timeout when no worker
		// is available to pick up the activity, which defeats a step's own
		// timeout budget.
		ScheduleToStartTimeout: timeout,
		StartToCloseTimeout:    timeout,
		TaskQueue:              queue,
		RetryPolicy:            convertActivityRetryPolicy(retry),
	}
}

// SignalChannel returns a durable.SignalChannel bound to name on this run.
// Temporal delivers signals in the order received and replays them
// deterministically from workflow history, so repeated calls with the same
// name return a channel over the same underlying Temporal signal channel.
func (wc *workflowContext) SignalChannel(name string) durable.SignalChannel {
	return &temporalSignalChannel{ctx: wc.ctx, ch: workflow.GetSignalChannel(wc.ctx, name)}
}

func (f *temporalFuture) Get(_ context.Context, result any) error {
	if err := f.future.Get(f.ctx, result); err != nil {
		return normalizeTemporalError(err)
	}
	return nil
}

func (f *temporalFuture) IsReady() bool {
	return f.future.IsReady()
}

func (s *temporalSignalChannel) Receive(_ context.Context, dest any) error {
	s.ch.Receive(s.ctx, dest)
	return nil
}

func (s *temporalSignalChannel) ReceiveAsync(dest any) bool {
	return s.ch.ReceiveAsync(dest)
}
