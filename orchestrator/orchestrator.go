// Package orchestrator traverses a parsed step graph, resolving data-flow
// templates, executing worker and nested-manager nodes, aggregating
// parallel and loop results, evaluating conditionals, running transforms,
// and enforcing retry/fallback policies (§4.8, "Orchestration Executor").
//
// A single dispatcher routes each step to its handler by its tagged-variant
// Kind, matching the teacher's "exhaustive match, closed change" dispatch
// style (§9, "Dynamic dispatch over step types").
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentflow/core/agent"
	"github.com/agentflow/core/apierrors"
	"github.com/agentflow/core/manifest"
	"github.com/agentflow/core/progress"
	"github.com/agentflow/core/registry"
	"github.com/agentflow/core/telemetry"
	"github.com/agentflow/core/template"
	"github.com/agentflow/core/worker"
	"github.com/agentflow/core/workflow"
)

type (
	// NestedManagerRunner starts a child workflow run for a sub-agent that
	// is itself a manager, and bridges its progress stream into the
	// parent's (§4.10). It is implemented by the workflowrun package,
	// which owns the durable workflow-entry machinery; orchestrator only
	// depends on this narrow interface to avoid an import cycle.
	NestedManagerRunner interface {
		RunNested(ctx context.Context, req NestedManagerRequest) (any, error)
	}

	// NestedManagerRequest describes one nested-manager invocation.
	NestedManagerRequest struct {
		AgentID    agent.Ident
		BasePath   string
		Input      any
		StepPrefix string
		Writer     progress.Writer
		// Range is the parent Call step's own assigned global-progress
		// range. The child workflow run computes its own chunks against
		// its own [0,100] space; the bridge that implements
		// NestedManagerRunner maps each child chunk into Range before
		// re-emitting it, so "a child workflow's global-range mapping is
		// contained inside its parent step's range" (§3, invariants).
		Range progress.Range
	}

	// Executor dispatches step-graph nodes (§4.8). It is constructed once
	// per process (or per test) with its collaborators injected explicitly
	// (§9, "Global state").
	Executor struct {
		Workers      *worker.Executor
		Registry     *registry.Registry
		Manifests    *manifest.Cache
		Nested       NestedManagerRunner
		PathResolver func(id agent.Ident) (string, error)
		Logger       telemetry.Logger
		Metrics      telemetry.Metrics
		Tracer       telemetry.Tracer
	}

	// StepEnvelope is the step execution envelope passed through the
	// dispatcher (§3, "Step execution envelope"): the writable progress
	// stream, the original invocation parameters (carried inside tctx),
	// and the step's assigned global-progress range.
	//
	// artifactsMu guards writes to tctx.Artifacts while a Parallel step's
	// branches are running concurrently against the same map (§4.8,
	// "Parallel step"). It is nil outside a parallel branch, in which case
	// setArtifact writes without locking.
	StepEnvelope struct {
		Writer      progress.Writer
		Range       progress.Range
		StepPrefix  string
		artifactsMu *sync.Mutex
	}
)

// RunSteps executes steps in order against tctx, mutating tctx.Artifacts as
// each step completes. It returns the first error raised by a step that
// aborts the run (a Call step with onFailure=abort exhausting retries, a
// fatal error from a nested manager or transform).
func (e *Executor) RunSteps(ctx context.Context, steps []*workflow.Step, tctx *template.Context, env StepEnvelope) error {
	for _, step := range steps {
		if err := e.runStep(ctx, step, tctx, env); err != nil {
			return err
		}
	}
	return nil
}

// obs builds the span-plus-counter observability wrapper around the
// executor's own Logger/Metrics/Tracer fields (defaulting any unset field to
// its no-op implementation), so runStep's span and success/error counters
// are exercised through whichever telemetry backend a caller wires in (§9,
// "ambient stack").
func (e *Executor) obs() *telemetry.Observability {
	return telemetry.NewObservability(e.Logger, e.Metrics, e.Tracer)
}

func (e *Executor) runStep(ctx context.Context, step *workflow.Step, tctx *template.Context, env StepEnvelope) error {
	tags := []string{"kind", string(step.Kind)}
	return e.obs().Observe(ctx, "orchestrator", "run_step", tags, func(ctx context.Context) error {
		switch step.Kind {
		case workflow.KindCall:
			return e.runCall(ctx, step, tctx, env)
		case workflow.KindParallel:
			return e.runParallel(ctx, step, tctx, env)
		case workflow.KindLoop:
			return e.runLoop(ctx, step, tctx, env)
		case workflow.KindConditional:
			return e.runConditional(ctx, step, tctx, env)
		case workflow.KindTransform:
			return e.runTransform(ctx, step, tctx, env)
		default:
			return apierrors.Fatal(fmt.Sprintf("orchestrator: unknown step kind %q", step.Kind), nil)
		}
	})
}

// RunStep dispatches a single top-level step. The workflow entry point
// (§4.9 step 4) calls this once per top-level graph step, in between
// emitting that step's own start-of-step progress chunk and subdividing
// its assigned global-progress range; RunSteps itself stays silent on
// progress so that recursing into a Parallel branch, Loop body, or
// Conditional arm does not re-subdivide the parent step's range.
func (e *Executor) RunStep(ctx context.Context, step *workflow.Step, tctx *template.Context, env StepEnvelope) error {
	return e.runStep(ctx, step, tctx, env)
}

// StepUserMessage derives a start-of-step progress message from a step's
// type and, for Call steps, its agent id (§4.9 step 4).
func StepUserMessage(step *workflow.Step) string {
	switch step.Kind {
	case workflow.KindCall:
		return fmt.Sprintf("Running %s", step.AgentID)
	case workflow.KindParallel:
		return fmt.Sprintf("Running %d parallel branches", len(step.Branches))
	case workflow.KindLoop:
		return fmt.Sprintf("Looping over %s", step.Name)
	case workflow.KindConditional:
		return fmt.Sprintf("Evaluating condition for %s", step.Name)
	case workflow.KindTransform:
		return fmt.Sprintf("Applying transform %s", step.TransformID)
	default:
		return step.Name
	}
}

// setArtifact writes value at a dot-notation or "artifacts."-prefixed key
// into tctx.Artifacts. Only single-segment keys and the conventional
// "artifacts.<key>" form are supported for writes (§3, "Artifacts are
// append-only... values may be overwritten by the step that owns the
// key"); nested dotted writes are not part of this engine's contract,
// matching the read-side dot-notation being a lookup-only facility.
//
// env.artifactsMu, when set, is locked around the write: a Parallel step's
// branches share tctx.Artifacts and run concurrently, so every write against
// that shared map during a parallel branch must be serialized.
func setArtifact(env StepEnvelope, tctx *template.Context, key string, value any) {
	key = trimArtifactsPrefix(key)
	if env.artifactsMu != nil {
		env.artifactsMu.Lock()
		defer env.artifactsMu.Unlock()
	}
	tctx.Artifacts[key] = value
}

// resolveInputMap resolves m against tctx, locking env.artifactsMu around
// the read when set. Reads of tctx.Artifacts from inside a Parallel step's
// branches race with sibling branches' writes unless serialized the same
// way writes are (§4.8, "Parallel step").
func resolveInputMap(env StepEnvelope, m map[string]any, tctx *template.Context) map[string]any {
	if env.artifactsMu == nil {
		return template.ResolveInputMap(m, *tctx)
	}
	env.artifactsMu.Lock()
	defer env.artifactsMu.Unlock()
	return template.ResolveInputMap(m, *tctx)
}

// resolveArtifactPath resolves a bare path against tctx the same way,
// locking env.artifactsMu around the read when set.
func resolveArtifactPath(env StepEnvelope, path string, tctx *template.Context) any {
	if env.artifactsMu == nil {
		return template.ResolvePath(path, *tctx)
	}
	env.artifactsMu.Lock()
	defer env.artifactsMu.Unlock()
	return template.ResolvePath(path, *tctx)
}

func trimArtifactsPrefix(key string) string {
	const prefix = "artifacts."
	if len(key) > len(prefix) && key[:len(prefix)] == prefix {
		return key[len(prefix):]
	}
	return key
}
