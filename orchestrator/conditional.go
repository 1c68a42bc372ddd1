package orchestrator

import (
	"context"

	"github.com/agentflow/core/telemetry"
	"github.com/agentflow/core/template"
	"github.com/agentflow/core/workflow"
)

// runConditional evaluates step's condition against the current context and
// runs the matching branch (§4.8, "Conditional step"). A branch omitted
// from the workflow document (an empty Else, for instance) is simply a
// no-op.
func (e *Executor) runConditional(ctx context.Context, step *workflow.Step, tctx *template.Context, env StepEnvelope) error {
	cond := evalCondition(ctx, e.Logger, step.Condition, env, tctx)
	if cond {
		return e.RunSteps(ctx, step.Then, tctx, env)
	}
	return e.RunSteps(ctx, step.Else, tctx, env)
}

// evalCondition locks env.artifactsMu (set while a Parallel step's branches
// are running) around the read, since condition evaluation resolves
// "${...}" references against the shared artifacts map.
func evalCondition(ctx context.Context, log telemetry.Logger, cond string, env StepEnvelope, tctx *template.Context) bool {
	if env.artifactsMu != nil {
		env.artifactsMu.Lock()
		defer env.artifactsMu.Unlock()
	}
	return template.EvalCondition(ctx, log, cond, *tctx)
}
