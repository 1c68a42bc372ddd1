package worker

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflow/core/agent"
	"github.com/agentflow/core/apierrors"
	"github.com/agentflow/core/manifest"
	"github.com/agentflow/core/progress"
	"github.com/agentflow/core/registry"
)

type fakePartialStream struct {
	items []PartialOutput
	i     int
}

func (s *fakePartialStream) Recv() (PartialOutput, error) {
	if s.i >= len(s.items) {
		return PartialOutput{}, io.EOF
	}
	v := s.items[s.i]
	s.i++
	return v, nil
}

type fakeToolStream struct {
	items []ToolEvent
	i     int
}

func (s *fakeToolStream) Recv() (ToolEvent, error) {
	if s.i >= len(s.items) {
		return ToolEvent{}, io.EOF
	}
	v := s.items[s.i]
	s.i++
	return v, nil
}

type fakeRun struct {
	partials *fakePartialStream
	events   *fakeToolStream
	output   any
	usage    TokenUsage
	waitErr  error
}

func (r *fakeRun) PartialOutputs() PartialOutputStream { return r.partials }
func (r *fakeRun) ToolEvents() ToolEventStream          { return r.events }
func (r *fakeRun) Wait(ctx context.Context) (any, TokenUsage, error) {
	return r.output, r.usage, r.waitErr
}
func (r *fakeRun) Close() error { return nil }

type fakeClient struct {
	run *fakeRun
	err error
	// startErrors, when set, pops one error per Run call before falling
	// back to the success run — used to exercise Execute's retry loop.
	startErrors []error
	calls       int
}

func (c *fakeClient) Run(ctx context.Context, req RunRequest) (Run, error) {
	c.calls++
	if len(c.startErrors) > 0 {
		err := c.startErrors[0]
		c.startErrors = c.startErrors[1:]
		if err != nil {
			return nil, err
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.run, nil
}

type fakeCredentials struct {
	has    bool
	oauth  bool
}

func (c fakeCredentials) HasCredential(provider string) bool  { return c.has }
func (c fakeCredentials) IsOAuthProvider(provider string) bool { return c.oauth }

type recordingWriter struct {
	chunks []progress.Chunk
}

func (w *recordingWriter) Write(ctx context.Context, c progress.Chunk) error {
	w.chunks = append(w.chunks, c)
	return nil
}
func (w *recordingWriter) Close(ctx context.Context) error { return nil }

func newExecutorFixture(t *testing.T, client *fakeClient) (*Executor, string) {
	t.Helper()
	dir := writeAgentDir(t, "writer", "Be concise.", nil)
	reg := registry.New()
	inSchema, err := registry.CompileJSONSchema("mem://in.json", []byte(`{"type":"object"}`))
	require.NoError(t, err)
	outSchema, err := registry.CompileJSONSchema("mem://out.json", []byte(`{"type":"object"}`))
	require.NoError(t, err)
	reg.RegisterSchema("writer:input", inSchema)
	reg.RegisterSchema("writer:output", outSchema)

	e := &Executor{
		Manifests:   manifest.NewCache(),
		Registry:    reg,
		Client:      client,
		Credentials: fakeCredentials{has: true},
		Models:      TierTable{Tiers: map[string]string{"balanced": "mid-model"}},
	}
	return e, dir
}

func TestExecute_SuccessReturnsOutputAndUsage(t *testing.T) {
	run := &fakeRun{
		partials: &fakePartialStream{},
		events:   &fakeToolStream{},
		output:   map[string]any{"result": "ok"},
		usage:    TokenUsage{TotalTokens: 42},
	}
	client := &fakeClient{run: run}
	e, dir := newExecutorFixture(t, client)

	out, err := e.Execute(context.Background(), Request{AgentID: "writer", BasePath: dir})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"result": "ok"}, out.Output)
	assert.Equal(t, 42, out.Usage.TotalTokens)
	assert.Equal(t, 1, client.calls)
}

func TestExecute_EstimatesUsageWhenProviderReportsNone(t *testing.T) {
	run := &fakeRun{
		partials: &fakePartialStream{},
		events:   &fakeToolStream{},
		output:   "short",
	}
	client := &fakeClient{run: run}
	e, dir := newExecutorFixture(t, client)

	out, err := e.Execute(context.Background(), Request{AgentID: "writer", BasePath: dir})
	require.NoError(t, err)
	assert.True(t, out.Usage.Estimated)
	assert.Greater(t, out.Usage.TotalTokens, 0)
}

func TestExecute_NoCredentialsIsFatalAndNotRetried(t *testing.T) {
	client := &fakeClient{}
	e, dir := newExecutorFixture(t, client)
	e.Credentials = fakeCredentials{has: false}

	_, err := e.Execute(context.Background(), Request{AgentID: "writer", BasePath: dir})
	require.Error(t, err)
	assert.True(t, apierrors.IsFatal(err))
	assert.Equal(t, 0, client.calls)
}

func TestExecute_RetriesRetryableStartErrorThenSucceeds(t *testing.T) {
	run := &fakeRun{
		partials: &fakePartialStream{},
		events:   &fakeToolStream{},
		output:   map[string]any{"ok": true},
	}
	client := &fakeClient{
		startErrors: []error{errors.New("transient failure"), nil},
		run:         run,
	}
	e, dir := newExecutorFixture(t, client)

	out, err := e.Execute(context.Background(), Request{AgentID: "writer", BasePath: dir})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, out.Output)
	assert.Equal(t, 2, client.calls)
}

func TestExecute_MissingManifestIsFatal(t *testing.T) {
	e, _ := newExecutorFixture(t, &fakeClient{})
	_, err := e.Execute(context.Background(), Request{AgentID: "writer", BasePath: t.TempDir()})
	require.Error(t, err)
	assert.True(t, apierrors.IsFatal(err))
}

func TestDrainProgress_AIProgressSuppressesToolFallback(t *testing.T) {
	run := &fakeRun{
		partials: &fakePartialStream{items: []PartialOutput{
			{Progress: &InBandProgress{UserMessage: "halfway", EstimatedProgress: 50}},
		}},
		events: &fakeToolStream{items: []ToolEvent{
			{ToolName: "search", Bounds: &agent.Bounds{Returned: 5, Truncated: true, RefinementHint: "narrow your query"}},
		}},
	}
	e := &Executor{}
	w := &recordingWriter{}

	e.drainProgress(context.Background(), run, w, "writer", progress.Range{Start: 0, End: 100}, progress.WorkerCap)

	require.Len(t, w.chunks, 1)
	assert.Equal(t, 50, w.chunks[0].EstimatedProgress)
	assert.Equal(t, "halfway", w.chunks[0].UserMessage)
}

func TestDrainProgress_ToolEventsSynthesizeProgressWithoutAISignal(t *testing.T) {
	run := &fakeRun{
		partials: &fakePartialStream{},
		events: &fakeToolStream{items: []ToolEvent{
			{ToolName: "search"},
			{ToolName: "browse"},
		}},
	}
	e := &Executor{}
	w := &recordingWriter{}

	e.drainProgress(context.Background(), run, w, "writer", progress.Range{Start: 0, End: 100}, progress.WorkerCap)

	require.Len(t, w.chunks, 2)
	assert.Equal(t, "search", w.chunks[0].ToolName)
	assert.Less(t, w.chunks[0].EstimatedProgress, w.chunks[1].EstimatedProgress)
}

func TestBoundsAdminDetails(t *testing.T) {
	assert.Empty(t, boundsAdminDetails(nil))
	assert.Empty(t, boundsAdminDetails(&agent.Bounds{Truncated: false}))

	total := 100
	detail := boundsAdminDetails(&agent.Bounds{Returned: 10, Total: &total, Truncated: true, RefinementHint: "be specific"})
	assert.Contains(t, detail, "returned 10 of 100")
	assert.Contains(t, detail, "be specific")
}
