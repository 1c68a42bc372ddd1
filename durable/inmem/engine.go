// Package inmem provides an in-memory implementation of durable.Engine for
// local development and tests. It is not deterministic or replay-safe and
// must not be used for production workloads — workflow state lives only in
// process memory and is lost on crash.
package inmem

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agentflow/core/durable"
	"github.com/agentflow/core/telemetry"
)

type (
	engine struct {
		mu         sync.RWMutex
		workflows  map[string]durable.WorkflowDefinition
		activities map[string]durable.ActivityDefinition
		runs       map[string]*run

		logger  telemetry.Logger
		metrics telemetry.Metrics
		tracer  telemetry.Tracer
	}

	run struct {
		mu     sync.Mutex
		status durable.RunStatus
		done   chan struct{}
		result any
		err    error
		cancel context.CancelFunc
	}

	wfCtx struct {
		ctx   context.Context
		id    string
		runID string
		eng   *engine

		sigMu sync.Mutex
		sigs  map[string]chan any
	}

	future struct {
		ready  chan struct{}
		result any
		err    error
		once   sync.Once
	}

	signalChannel struct {
		ch  chan any
		ctx context.Context
	}
)

// New returns a fresh in-memory Engine. logger/metrics/tracer may be nil,
// in which case no-op implementations are used.
func New(logger telemetry.Logger, metrics telemetry.Metrics, tracer telemetry.Tracer) durable.Engine {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return &engine{
		workflows:  make(map[string]durable.WorkflowDefinition),
		activities: make(map[string]durable.ActivityDefinition),
		runs:       make(map[string]*run),
		logger:     logger,
		metrics:    metrics,
		tracer:     tracer,
	}
}

func (e *engine) RegisterWorkflow(_ context.Context, def durable.WorkflowDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return errors.New("inmem: invalid workflow definition")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.workflows[def.Name]; dup {
		return fmt.Errorf("inmem: workflow %q already registered", def.Name)
	}
	e.workflows[def.Name] = def
	return nil
}

func (e *engine) RegisterActivity(_ context.Context, def durable.ActivityDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return errors.New("inmem: invalid activity definition")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.activities[def.Name]; dup {
		return fmt.Errorf("inmem: activity %q already registered", def.Name)
	}
	e.activities[def.Name] = def
	return nil
}

func (e *engine) StartWorkflow(ctx context.Context, req durable.WorkflowStartRequest) (durable.WorkflowHandle, error) {
	e.mu.RLock()
	def, ok := e.workflows[req.Workflow]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("inmem: workflow %q not registered", req.Workflow)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{status: durable.RunStatusRunning, done: make(chan struct{}), cancel: cancel}

	e.mu.Lock()
	if _, dup := e.runs[req.ID]; dup {
		e.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("inmem: run id %q already in use", req.ID)
	}
	e.runs[req.ID] = r
	e.mu.Unlock()

	wc := &wfCtx{ctx: runCtx, id: req.ID, runID: req.ID, eng: e, sigs: make(map[string]chan any)}

	go func() {
		defer close(r.done)
		result, err := def.Handler(wc, req.Input)
		r.mu.Lock()
		defer r.mu.Unlock()
		r.result = result
		r.err = err
		switch {
		case errors.Is(runCtx.Err(), context.Canceled) && err != nil:
			r.status = durable.RunStatusCancelled
		case err != nil:
			r.status = durable.RunStatusFailed
		default:
			r.status = durable.RunStatusCompleted
		}
	}()

	return &handle{run: r}, nil
}

func (e *engine) GetRun(_ context.Context, runID string) (durable.RunHandle, error) {
	e.mu.RLock()
	r, ok := e.runs[runID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("inmem: run %q not found", runID)
	}
	return &handle{run: r}, nil
}

type handle struct{ run *run }

func (h *handle) Wait(ctx context.Context, result any) error {
	select {
	case <-h.run.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	h.run.mu.Lock()
	defer h.run.mu.Unlock()
	if h.run.err != nil {
		return h.run.err
	}
	return assign(result, h.run.result)
}

func (h *handle) Signal(ctx context.Context, name string, payload any) error {
	return errors.New("inmem: signaling a handle directly is not supported; use WorkflowContext.SignalChannel from within the workflow")
}

func (h *handle) Cancel(ctx context.Context) error {
	h.run.cancel()
	return nil
}

func (h *handle) Status(ctx context.Context) (durable.RunStatus, error) {
	h.run.mu.Lock()
	defer h.run.mu.Unlock()
	return h.run.status, nil
}

func (wc *wfCtx) Context() context.Context { return wc.ctx }
func (wc *wfCtx) WorkflowID() string       { return wc.id }
func (wc *wfCtx) RunID() string            { return wc.runID }

func (wc *wfCtx) Logger() telemetry.Logger   { return wc.eng.logger }
func (wc *wfCtx) Metrics() telemetry.Metrics { return wc.eng.metrics }
func (wc *wfCtx) Tracer() telemetry.Tracer   { return wc.eng.tracer }
func (wc *wfCtx) Now() time.Time             { return time.Now() }

func (wc *wfCtx) ExecuteActivity(ctx context.Context, req durable.ActivityRequest, result any) error {
	f, err := wc.ExecuteActivityAsync(ctx, req)
	if err != nil {
		return err
	}
	return f.Get(ctx, result)
}

func (wc *wfCtx) ExecuteActivityAsync(ctx context.Context, req durable.ActivityRequest) (durable.Future, error) {
	wc.eng.mu.RLock()
	def, ok := wc.eng.activities[req.Name]
	wc.eng.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("inmem: activity %q not registered", req.Name)
	}

	f := &future{ready: make(chan struct{})}
	go func() {
		result, err := runWithRetry(ctx, def.Handler, req)
		f.result, f.err = result, err
		close(f.ready)
	}()
	return f, nil
}

func runWithRetry(ctx context.Context, handler durable.ActivityFunc, req durable.ActivityRequest) (any, error) {
	policy := req.RetryPolicy
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := handler(ctx, req.Input)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt < maxAttempts {
			delay := policy.InitialInterval
			if delay <= 0 {
				delay = time.Second
			}
			coeff := policy.BackoffCoefficient
			if coeff < 1 {
				coeff = 1
			}
			for i := 1; i < attempt; i++ {
				delay = time.Duration(float64(delay) * coeff)
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

func (wc *wfCtx) SignalChannel(name string) durable.SignalChannel {
	wc.sigMu.Lock()
	defer wc.sigMu.Unlock()
	ch, ok := wc.sigs[name]
	if !ok {
		ch = make(chan any, 16)
		wc.sigs[name] = ch
	}
	return &signalChannel{ch: ch, ctx: wc.ctx}
}

func (f *future) Get(ctx context.Context, result any) error {
	select {
	case <-f.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	if f.err != nil {
		return f.err
	}
	return assign(result, f.result)
}

func (f *future) IsReady() bool {
	select {
	case <-f.ready:
		return true
	default:
		return false
	}
}

func (s *signalChannel) Receive(ctx context.Context, dest any) error {
	select {
	case v := <-s.ch:
		return assign(dest, v)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *signalChannel) ReceiveAsync(dest any) bool {
	select {
	case v := <-s.ch:
		return assign(dest, v) == nil
	default:
		return false
	}
}

// assign copies src into dest when dest is a non-nil pointer, mimicking the
// boxed any-to-any assignment real engines perform via serialization.
func assign(dest, src any) error {
	if dest == nil {
		return nil
	}
	switch d := dest.(type) {
	case *any:
		*d = src
		return nil
	}
	return copyViaReflect(dest, src)
}
