package workflowrun

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/agentflow/core/agent"
	"github.com/agentflow/core/manifest"
	"github.com/agentflow/core/orchestrator"
	"github.com/agentflow/core/progress"
	"github.com/agentflow/core/registry"
	"github.com/agentflow/core/worker"
)

// recordingWriter is a progress.Writer that appends every chunk it sees, for
// tests that assert on emitted step ids and progress values. Safe for
// concurrent Write calls.
type recordingWriter struct {
	mu     sync.Mutex
	chunks []progress.Chunk
	closed bool
}

func (w *recordingWriter) Write(_ context.Context, c progress.Chunk) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chunks = append(w.chunks, c)
	return nil
}

func (w *recordingWriter) Close(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *recordingWriter) snapshot() []progress.Chunk {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]progress.Chunk, len(w.chunks))
	copy(out, w.chunks)
	return out
}

// passSchema accepts any value, for agents whose input/output shape does
// not matter to these tests.
type passSchema struct{}

func (passSchema) Validate(any) error { return nil }

// emptyStream ends immediately, for a fake Run with no partial output or
// tool-call traffic.
type emptyStream struct{}

func (emptyStream) Recv() (worker.PartialOutput, error) { return worker.PartialOutput{}, io.EOF }

type emptyToolStream struct{}

func (emptyToolStream) Recv() (worker.ToolEvent, error) { return worker.ToolEvent{}, io.EOF }

// fakeRun is a worker.Run that resolves immediately to a fixed output, with
// no partial-output or tool-event traffic.
type fakeRun struct {
	output any
}

func (fakeRun) PartialOutputs() worker.PartialOutputStream { return emptyStream{} }
func (fakeRun) ToolEvents() worker.ToolEventStream         { return emptyToolStream{} }
func (r fakeRun) Wait(context.Context) (any, worker.TokenUsage, error) {
	return r.output, worker.TokenUsage{TotalTokens: 7, Estimated: true}, nil
}
func (fakeRun) Close() error { return nil }

// fakeClient is a worker.Client whose fixed output is a function of the
// request input, so tests can assert the right agent produced the right
// value without a real model behind it.
type fakeClient struct {
	outputFor func(input any) any
}

func (c fakeClient) Run(_ context.Context, req worker.RunRequest) (worker.Run, error) {
	out := req.Input
	if c.outputFor != nil {
		out = c.outputFor(req.Input)
	}
	return fakeRun{output: out}, nil
}

type fakeCredentials struct{}

func (fakeCredentials) HasCredential(string) bool   { return true }
func (fakeCredentials) IsOAuthProvider(string) bool { return true }

type fakeModelResolver struct{}

func (fakeModelResolver) Resolve(worker.ManifestConfig) (worker.ResolvedModel, error) {
	return worker.ResolvedModel{Model: "test-model", Provider: "test"}, nil
}

// agentFixture describes one manifest directory to materialize on disk for
// a test.
type agentFixture struct {
	id             string
	instruction    string
	config         map[string]any
	workflowMD     string
	outputArtifact string
}

// writeAgent materializes an agent manifest directory under root/id.
func writeAgent(t *testing.T, root string, f agentFixture) string {
	t.Helper()
	dir := filepath.Join(root, f.id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}

	cfg := f.config
	if cfg == nil {
		cfg = map[string]any{}
	}
	aj := map[string]any{
		"id":      f.id,
		"version": "1.0.0",
		"interface": map[string]any{
			"input":  f.id + ":input",
			"output": f.id + ":output",
		},
		"config": cfg,
	}
	raw, err := json.Marshal(aj)
	if err != nil {
		t.Fatalf("marshal agent.json: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "agent.json"), raw, 0o644); err != nil {
		t.Fatalf("write agent.json: %v", err)
	}

	instr := f.instruction
	if instr == "" {
		instr = "You are " + f.id + "."
	}
	if err := os.WriteFile(filepath.Join(dir, "AGENTS.md"), []byte(instr), 0o644); err != nil {
		t.Fatalf("write AGENTS.md: %v", err)
	}

	if f.workflowMD != "" {
		if err := os.WriteFile(filepath.Join(dir, "WORKFLOW.md"), []byte(f.workflowMD), 0o644); err != nil {
			t.Fatalf("write WORKFLOW.md: %v", err)
		}
	}

	return dir
}

// testHarness wires a Runner with fakes over a set of agent fixtures laid
// out under a temp directory, keyed by agent id for the path resolver.
type testHarness struct {
	runner *Runner
	dirs   map[string]string
}

func newHarness(t *testing.T, fixtures ...agentFixture) *testHarness {
	t.Helper()
	root := t.TempDir()

	reg := registry.New()
	dirs := make(map[string]string, len(fixtures))
	for _, f := range fixtures {
		dirs[f.id] = writeAgent(t, root, f)
		reg.RegisterSchema(f.id+":input", passSchema{})
		reg.RegisterSchema(f.id+":output", passSchema{})
	}

	resolver := func(id agent.Ident) (string, error) {
		dir, ok := dirs[string(id)]
		if !ok {
			return "", os.ErrNotExist
		}
		return dir, nil
	}

	manifests := manifest.NewCache()

	workers := &worker.Executor{
		Manifests:    manifests,
		Registry:     reg,
		Client:       fakeClient{outputFor: func(input any) any { return input }},
		Credentials:  fakeCredentials{},
		Models:       fakeModelResolver{},
		PathResolver: resolver,
	}

	runner := &Runner{Manifests: manifests}

	orch := &orchestrator.Executor{
		Workers:      workers,
		Registry:     reg,
		Manifests:    manifests,
		Nested:       runner,
		PathResolver: resolver,
	}

	runner.Workers = workers
	runner.Orchestrator = orch

	return &testHarness{runner: runner, dirs: dirs}
}
