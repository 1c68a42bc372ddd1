package durable

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflow/core/telemetry"
)

type fakeWorkflowContext struct {
	result any
	err    error
	gotReq ActivityRequest
}

func (f *fakeWorkflowContext) Context() context.Context { return context.Background() }
func (f *fakeWorkflowContext) WorkflowID() string       { return "wf-1" }
func (f *fakeWorkflowContext) RunID() string            { return "run-1" }

func (f *fakeWorkflowContext) ExecuteActivity(ctx context.Context, req ActivityRequest, dest any) error {
	f.gotReq = req
	if f.err != nil {
		return f.err
	}
	switch d := dest.(type) {
	case *string:
		*d = f.result.(string)
	case *int:
		*d = f.result.(int)
	}
	return nil
}

func (f *fakeWorkflowContext) ExecuteActivityAsync(ctx context.Context, req ActivityRequest) (Future, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeWorkflowContext) SignalChannel(name string) SignalChannel { return nil }
func (f *fakeWorkflowContext) Logger() telemetry.Logger                 { return telemetry.NewNoopLogger() }
func (f *fakeWorkflowContext) Metrics() telemetry.Metrics               { return telemetry.NewNoopMetrics() }
func (f *fakeWorkflowContext) Tracer() telemetry.Tracer                 { return telemetry.NewNoopTracer() }
func (f *fakeWorkflowContext) Now() time.Time                           { return time.Unix(0, 0) }

func TestCall_DecodesActivityResultIntoT(t *testing.T) {
	wf := &fakeWorkflowContext{result: "hello"}
	out, err := Call[string](context.Background(), wf, ActivityRequest{Name: "greet"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "greet", wf.gotReq.Name)
}

func TestCall_PropagatesActivityError(t *testing.T) {
	wantErr := errors.New("activity failed")
	wf := &fakeWorkflowContext{err: wantErr}
	_, err := Call[string](context.Background(), wf, ActivityRequest{Name: "greet"})
	assert.ErrorIs(t, err, wantErr)
}

func TestRetryPolicyFromAttempts_ConvertsMillisecondsToDuration(t *testing.T) {
	p := RetryPolicyFromAttempts(5, 200, 2.0)
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, p.InitialInterval)
	assert.Equal(t, 2.0, p.BackoffCoefficient)
}
