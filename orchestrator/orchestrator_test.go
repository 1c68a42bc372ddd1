package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflow/core/apierrors"
	"github.com/agentflow/core/registry"
	"github.com/agentflow/core/template"
	"github.com/agentflow/core/workflow"
)

func newTestContext(artifacts map[string]any) *template.Context {
	if artifacts == nil {
		artifacts = map[string]any{}
	}
	return &template.Context{Artifacts: artifacts}
}

func TestRunTransform_AppliesRegisteredTransform(t *testing.T) {
	reg := registry.New()
	reg.RegisterTransform("double", func(ctx context.Context, input map[string]any) (any, error) {
		n := input["n"].(float64)
		return n * 2, nil
	})
	e := &Executor{Registry: reg}

	tctx := newTestContext(map[string]any{"n": 21.0})
	step := &workflow.Step{
		Kind:        workflow.KindTransform,
		Name:        "double-it",
		TransformID: "double",
		InputMap:    map[string]any{"n": "${n}"},
		StoreKey:    "doubled",
	}

	require.NoError(t, e.RunStep(context.Background(), step, tctx, StepEnvelope{}))
	assert.Equal(t, float64(42), tctx.Artifacts["doubled"])
}

func TestRunTransform_UnknownTransformIsFatal(t *testing.T) {
	e := &Executor{Registry: registry.New()}
	tctx := newTestContext(nil)
	step := &workflow.Step{Kind: workflow.KindTransform, Name: "x", TransformID: "nope"}

	err := e.RunStep(context.Background(), step, tctx, StepEnvelope{})
	require.Error(t, err)
	assert.True(t, apierrors.IsFatal(err))
}

func TestRunTransform_FnErrorIsFatal(t *testing.T) {
	reg := registry.New()
	reg.RegisterTransform("boom", func(ctx context.Context, input map[string]any) (any, error) {
		return nil, errors.New("kaboom")
	})
	e := &Executor{Registry: reg}
	tctx := newTestContext(nil)
	step := &workflow.Step{Kind: workflow.KindTransform, Name: "x", TransformID: "boom"}

	err := e.RunStep(context.Background(), step, tctx, StepEnvelope{})
	require.Error(t, err)
	assert.True(t, apierrors.IsFatal(err))
}

func TestRunConditional_TakesThenOrElse(t *testing.T) {
	e := &Executor{Registry: registry.New()}

	mark := func(key string) []*workflow.Step {
		return []*workflow.Step{{
			Kind:        workflow.KindTransform,
			TransformID: "mark",
			StoreKey:    key,
		}}
	}
	reg := e.Registry
	reg.RegisterTransform("mark", func(ctx context.Context, input map[string]any) (any, error) {
		return true, nil
	})

	step := &workflow.Step{
		Kind:      workflow.KindConditional,
		Condition: "${flag} == true",
		Then:      mark("then_ran"),
		Else:      mark("else_ran"),
	}

	tctx := newTestContext(map[string]any{"flag": true})
	require.NoError(t, e.RunStep(context.Background(), step, tctx, StepEnvelope{}))
	assert.Equal(t, true, tctx.Artifacts["then_ran"])
	assert.Nil(t, tctx.Artifacts["else_ran"])

	tctx2 := newTestContext(map[string]any{"flag": false})
	require.NoError(t, e.RunStep(context.Background(), step, tctx2, StepEnvelope{}))
	assert.Equal(t, true, tctx2.Artifacts["else_ran"])
	assert.Nil(t, tctx2.Artifacts["then_ran"])
}

func TestRunParallel_BranchesRunConcurrentlyAgainstSharedArtifacts(t *testing.T) {
	reg := registry.New()
	reg.RegisterTransform("identity", func(ctx context.Context, input map[string]any) (any, error) {
		return input["v"], nil
	})
	e := &Executor{Registry: reg}

	branch := func(key string, v any) []*workflow.Step {
		return []*workflow.Step{{
			Kind:        workflow.KindTransform,
			TransformID: "identity",
			InputMap:    map[string]any{"v": v},
			StoreKey:    key,
		}}
	}

	step := &workflow.Step{
		Kind: workflow.KindParallel,
		Branches: [][]*workflow.Step{
			branch("a", "one"),
			branch("b", "two"),
			branch("c", "three"),
		},
	}

	tctx := newTestContext(nil)
	require.NoError(t, e.RunStep(context.Background(), step, tctx, StepEnvelope{}))
	assert.Equal(t, "one", tctx.Artifacts["a"])
	assert.Equal(t, "two", tctx.Artifacts["b"])
	assert.Equal(t, "three", tctx.Artifacts["c"])
}

func TestRunParallel_FirstBranchErrorPropagates(t *testing.T) {
	reg := registry.New()
	e := &Executor{Registry: reg}
	step := &workflow.Step{
		Kind: workflow.KindParallel,
		Branches: [][]*workflow.Step{
			{{Kind: workflow.KindTransform, TransformID: "missing"}},
		},
	}
	err := e.RunStep(context.Background(), step, newTestContext(nil), StepEnvelope{})
	assert.Error(t, err)
}

func TestRunLoop_SequentialCollectsResultsInOrder(t *testing.T) {
	reg := registry.New()
	reg.RegisterTransform("square", func(ctx context.Context, input map[string]any) (any, error) {
		n := input["n"].(float64)
		return n * n, nil
	})
	e := &Executor{Registry: reg}

	step := &workflow.Step{
		Kind:      workflow.KindLoop,
		Over:      []any{1.0, 2.0, 3.0},
		ItemVar:   "n",
		LoopMode:  workflow.LoopSequential,
		OutputKey: "squares",
		LoopSteps: []*workflow.Step{{
			Kind:        workflow.KindTransform,
			TransformID: "square",
			InputMap:    map[string]any{"n": "${n}"},
			StoreKey:    "squared",
		}},
	}

	tctx := newTestContext(nil)
	require.NoError(t, e.RunStep(context.Background(), step, tctx, StepEnvelope{}))
	// The first nested step is a Transform, not a Call, so each iteration
	// collects the item variable itself rather than the "squared" artifact.
	assert.Equal(t, []any{1.0, 2.0, 3.0}, tctx.Artifacts["squares"])
	// item binding is unset after the loop completes.
	_, hasItem := tctx.Artifacts["n"]
	assert.False(t, hasItem)
}

func TestRunLoop_EmptySequenceStoresEmptyResult(t *testing.T) {
	e := &Executor{Registry: registry.New()}
	step := &workflow.Step{Kind: workflow.KindLoop, Over: []any{}, OutputKey: "out"}
	tctx := newTestContext(nil)
	require.NoError(t, e.RunStep(context.Background(), step, tctx, StepEnvelope{}))
	assert.Equal(t, []any{}, tctx.Artifacts["out"])
}

func TestRunLoop_ParallelPreservesOrderRegardlessOfCompletionOrder(t *testing.T) {
	reg := registry.New()
	reg.RegisterTransform("identity", func(ctx context.Context, input map[string]any) (any, error) {
		return input["n"], nil
	})
	e := &Executor{Registry: reg}

	step := &workflow.Step{
		Kind:      workflow.KindLoop,
		Over:      []any{10.0, 20.0, 30.0},
		ItemVar:   "n",
		LoopMode:  workflow.LoopParallel,
		OutputKey: "out",
		LoopSteps: []*workflow.Step{{
			Kind:        workflow.KindTransform,
			TransformID: "identity",
			InputMap:    map[string]any{"n": "${n}"},
			StoreKey:    "result",
		}},
	}

	tctx := newTestContext(nil)
	require.NoError(t, e.RunStep(context.Background(), step, tctx, StepEnvelope{}))
	assert.Equal(t, []any{10.0, 20.0, 30.0}, tctx.Artifacts["out"])
}

func TestRunLoop_OverTemplatePathResolvesToArtifactSequence(t *testing.T) {
	e := &Executor{Registry: registry.New()}
	step := &workflow.Step{
		Kind:      workflow.KindLoop,
		Over:      "${items}",
		ItemVar:   "x",
		OutputKey: "out",
	}
	tctx := newTestContext(map[string]any{"items": []any{"a", "b"}})
	require.NoError(t, e.RunStep(context.Background(), step, tctx, StepEnvelope{}))
	assert.Equal(t, []any{"a", "b"}, tctx.Artifacts["out"])
}

func TestRunLoop_OverNonSequenceIsFatal(t *testing.T) {
	e := &Executor{Registry: registry.New()}
	step := &workflow.Step{Kind: workflow.KindLoop, Over: 42, OutputKey: "out"}
	err := e.RunStep(context.Background(), step, newTestContext(nil), StepEnvelope{})
	require.Error(t, err)
	assert.True(t, apierrors.IsFatal(err))
}

func TestRunStep_UnknownKindIsFatal(t *testing.T) {
	e := &Executor{Registry: registry.New()}
	err := e.RunStep(context.Background(), &workflow.Step{Kind: "bogus"}, newTestContext(nil), StepEnvelope{})
	require.Error(t, err)
	assert.True(t, apierrors.IsFatal(err))
}

func TestStepUserMessage(t *testing.T) {
	cases := []struct {
		step *workflow.Step
		want string
	}{
		{&workflow.Step{Kind: workflow.KindCall, AgentID: "writer"}, "Running writer"},
		{&workflow.Step{Kind: workflow.KindParallel, Branches: make([][]*workflow.Step, 2)}, "Running 2 parallel branches"},
		{&workflow.Step{Kind: workflow.KindLoop, Name: "per-item"}, "Looping over per-item"},
		{&workflow.Step{Kind: workflow.KindConditional, Name: "check"}, "Evaluating condition for check"},
		{&workflow.Step{Kind: workflow.KindTransform, TransformID: "uppercase"}, "Applying transform uppercase"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, StepUserMessage(c.step))
	}
}
