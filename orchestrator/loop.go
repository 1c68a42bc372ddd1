package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentflow/core/apierrors"
	"github.com/agentflow/core/template"
	"github.com/agentflow/core/workflow"
)

// runLoop executes a Loop step (§4.8, "Loop step").
func (e *Executor) runLoop(ctx context.Context, step *workflow.Step, tctx *template.Context, env StepEnvelope) error {
	items, err := resolveOverSequence(env, step.Over, tctx)
	if err != nil {
		return apierrors.Fatal(fmt.Sprintf("resolving loop %q's over sequence", step.Name), err)
	}

	itemVar := step.ItemVar
	if itemVar == "" {
		itemVar = "item"
	}
	resultKey := loopResultKey(step, itemVar)

	// A loop over an empty sequence stores [] and executes no nested
	// steps (§8, "Round-trip / idempotence").
	if len(items) == 0 {
		setArtifact(env, tctx, step.OutputKey, []any{})
		return nil
	}

	if step.LoopMode == workflow.LoopSequential {
		return e.runLoopSequential(ctx, step, items, itemVar, resultKey, tctx, env)
	}
	return e.runLoopParallel(ctx, step, items, itemVar, resultKey, tctx, env)
}

func (e *Executor) runLoopSequential(ctx context.Context, step *workflow.Step, items []any, itemVar, resultKey string, tctx *template.Context, env StepEnvelope) error {
	bindItem := func(item any, i int) {
		if env.artifactsMu != nil {
			env.artifactsMu.Lock()
			defer env.artifactsMu.Unlock()
		}
		tctx.Artifacts[itemVar] = item
		tctx.Artifacts[itemVar+"_index"] = i
	}
	unbindItem := func() {
		if env.artifactsMu != nil {
			env.artifactsMu.Lock()
			defer env.artifactsMu.Unlock()
		}
		delete(tctx.Artifacts, itemVar)
		delete(tctx.Artifacts, itemVar+"_index")
	}
	readResult := func() any {
		if env.artifactsMu != nil {
			env.artifactsMu.Lock()
			defer env.artifactsMu.Unlock()
		}
		return collectLoopResult(tctx.Artifacts, resultKey, itemVar)
	}

	results := make([]any, len(items))
	for i, item := range items {
		bindItem(item, i)
		if err := e.RunSteps(ctx, step.LoopSteps, tctx, env); err != nil {
			unbindItem()
			return err
		}
		results[i] = readResult()
	}
	unbindItem()
	setArtifact(env, tctx, step.OutputKey, results)
	return nil
}

// runLoopParallel runs every iteration concurrently, each against an
// isolated, shallow-copied artifacts view extended with itemVar and
// itemVar_index (§4.8 step 3). Results preserve input order regardless of
// completion order.
func (e *Executor) runLoopParallel(ctx context.Context, step *workflow.Step, items []any, itemVar, resultKey string, tctx *template.Context, env StepEnvelope) error {
	results := make([]any, len(items))
	errs := make([]error, len(items))

	var wg sync.WaitGroup
	wg.Add(len(items))
	for i, item := range items {
		i, item := i, item
		go func() {
			defer wg.Done()
			view := readArtifactsSnapshot(env, tctx)
			view[itemVar] = item
			view[itemVar+"_index"] = i
			viewCtx := &template.Context{Input: tctx.Input, Artifacts: view}

			// view is private to this iteration, so nested steps run
			// against it without the outer shared-map lock; a nested
			// Parallel step still gets its own fresh mutex.
			iterEnv := env
			iterEnv.artifactsMu = nil

			if err := e.RunSteps(ctx, step.LoopSteps, viewCtx, iterEnv); err != nil {
				errs[i] = err
				return
			}
			results[i] = collectLoopResult(view, resultKey, itemVar)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	setArtifact(env, tctx, step.OutputKey, results)
	return nil
}

// loopResultKey derives the "result key" from the storeKey of the loop's
// first nested step when that step is a Call with a storeKey; otherwise it
// falls back to capturing the
// iteration variable itself (§9, "Open questions": this fallback is
// brittle by design and matches the spec's own acknowledgment that future
// workflow documents should name this explicitly).
func loopResultKey(step *workflow.Step, itemVar string) string {
	if len(step.LoopSteps) > 0 && step.LoopSteps[0].Kind == workflow.KindCall && step.LoopSteps[0].StoreKey != "" {
		return trimArtifactsPrefix(step.LoopSteps[0].StoreKey)
	}
	return itemVar
}

func collectLoopResult(artifacts map[string]any, resultKey, itemVar string) any {
	if v, ok := artifacts[resultKey]; ok {
		return v
	}
	return artifacts[itemVar]
}

// readArtifactsSnapshot returns tctx.Artifacts, locking env.artifactsMu
// around the read so a concurrent sibling branch's write cannot race with
// the map iteration shallowCopyArtifacts performs over the result.
func readArtifactsSnapshot(env StepEnvelope, tctx *template.Context) map[string]any {
	if env.artifactsMu == nil {
		return shallowCopyArtifacts(tctx.Artifacts)
	}
	env.artifactsMu.Lock()
	defer env.artifactsMu.Unlock()
	return shallowCopyArtifacts(tctx.Artifacts)
}

func shallowCopyArtifacts(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src)+2)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// resolveOverSequence resolves a Loop step's `over` field, which is either
// a literal []any or a "${...}" template path yielding a sequence (§4.8
// step 1).
func resolveOverSequence(env StepEnvelope, over any, tctx *template.Context) ([]any, error) {
	switch v := over.(type) {
	case []any:
		return v, nil
	case string:
		var resolved any
		if env.artifactsMu != nil {
			env.artifactsMu.Lock()
			resolved = template.Resolve(v, *tctx)
			env.artifactsMu.Unlock()
		} else {
			resolved = template.Resolve(v, *tctx)
		}
		seq, ok := resolved.([]any)
		if !ok {
			return nil, fmt.Errorf("orchestrator: loop 'over' path did not resolve to a sequence, got %T", resolved)
		}
		return seq, nil
	default:
		return nil, fmt.Errorf("orchestrator: loop 'over' must be an array or a template path, got %T", over)
	}
}
