package temporal

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.temporal.io/sdk/client"

	"github.com/agentflow/core/durable"
)

// fakeTemporalClient embeds the (unimplemented) client.Client interface so a
// zero-value instance satisfies it for nil-check purposes only; New never
// calls through to it once task-queue validation fails first.
type fakeTemporalClient struct {
	client.Client
}

// New's client/task-queue validation is exercised directly without a live
// Temporal connection; everything past that point requires a real
// client.Client and is exercised by the integration-level fakes in
// workflowrun instead (§6, "Durability contract").
func TestNew_MissingClientErrors(t *testing.T) {
	_, err := New(Options{TaskQueue: "queue"})
	assert.Error(t, err)
}

func TestNew_MissingTaskQueueErrors(t *testing.T) {
	_, err := New(Options{Client: fakeTemporalClient{}})
	assert.Error(t, err)
}

func TestConvertRetryPolicy_ZeroValueYieldsNil(t *testing.T) {
	assert.Nil(t, convertRetryPolicy(durable.RetryPolicy{}))
}

func TestConvertRetryPolicy_PopulatesOnlySetFields(t *testing.T) {
	p := convertRetryPolicy(durable.RetryPolicy{
		MaxAttempts:        5,
		InitialInterval:    2 * time.Second,
		BackoffCoefficient: 1.5,
	})
	if assert.NotNil(t, p) {
		assert.EqualValues(t, 5, p.MaximumAttempts)
		assert.Equal(t, 2*time.Second, p.InitialInterval)
		assert.Equal(t, 1.5, p.BackoffCoefficient)
	}
}

func TestConvertActivityRetryPolicy_ZeroValueYieldsNil(t *testing.T) {
	assert.Nil(t, convertActivityRetryPolicy(durable.RetryPolicy{}))
}

func TestConvertActivityRetryPolicy_PopulatesOnlySetFields(t *testing.T) {
	p := convertActivityRetryPolicy(durable.RetryPolicy{MaxAttempts: 3})
	if assert.NotNil(t, p) {
		assert.EqualValues(t, 3, p.MaximumAttempts)
	}
}

func TestNormalizeTemporalError_NilPassesThrough(t *testing.T) {
	assert.Nil(t, normalizeTemporalError(nil))
}

func TestNormalizeTemporalError_NonCancelErrorPassesThroughUnchanged(t *testing.T) {
	plain := errors.New("activity failed")
	assert.Same(t, plain, normalizeTemporalError(plain))
}

func TestEngine_ActivityDefaultsFor_UnknownNameReturnsZeroValue(t *testing.T) {
	e := &Engine{activityOptions: make(map[string]durable.ActivityOptions)}
	assert.Equal(t, durable.ActivityOptions{}, e.activityDefaultsFor("nope"))
}

func TestActivityOptionsFor_FallsBackToPerActivityDefaults(t *testing.T) {
	e := &Engine{
		defaultQueue: "default-queue",
		activityOptions: map[string]durable.ActivityOptions{
			"send-email": {Queue: "email-queue", Timeout: 30 * time.Second},
		},
	}
	wc := &workflowContext{engine: e}

	opts := wc.activityOptionsFor(durable.ActivityRequest{Name: "send-email"})
	assert.Equal(t, "email-queue", opts.TaskQueue)
	assert.Equal(t, 30*time.Second, opts.StartToCloseTimeout)
}

func TestActivityOptionsFor_ExplicitRequestFieldsOverrideDefaults(t *testing.T) {
	e := &Engine{
		defaultQueue:    "default-queue",
		activityOptions: map[string]durable.ActivityOptions{"send-email": {Queue: "email-queue"}},
	}
	wc := &workflowContext{engine: e}

	opts := wc.activityOptionsFor(durable.ActivityRequest{Name: "send-email", Queue: "priority-queue", Timeout: 5 * time.Second})
	assert.Equal(t, "priority-queue", opts.TaskQueue)
	assert.Equal(t, 5*time.Second, opts.StartToCloseTimeout)
}

func TestActivityOptionsFor_NoConfigurationFallsBackToDefaultQueueAndTimeout(t *testing.T) {
	e := &Engine{defaultQueue: "default-queue", activityOptions: map[string]durable.ActivityOptions{}}
	wc := &workflowContext{engine: e}

	opts := wc.activityOptionsFor(durable.ActivityRequest{Name: "unregistered"})
	assert.Equal(t, "default-queue", opts.TaskQueue)
	assert.Equal(t, time.Minute, opts.StartToCloseTimeout)
}

func TestEngine_WorkflowContextTracking_TrackThenRelease(t *testing.T) {
	e := &Engine{wfContexts: make(map[string]*workflowContext)}
	wc := &workflowContext{runID: "run-1"}
	e.trackWorkflowContext("run-1", wc)

	got, ok := e.lookupWorkflowContext("run-1")
	assert.True(t, ok)
	assert.Same(t, wc, got)

	e.releaseWorkflowContext("run-1")
	_, ok = e.lookupWorkflowContext("run-1")
	assert.False(t, ok)
}
