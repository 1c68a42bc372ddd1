package orchestrator

import (
	"context"
	"fmt"

	"github.com/agentflow/core/apierrors"
	"github.com/agentflow/core/template"
	"github.com/agentflow/core/workflow"
)

// runTransform resolves step's inputMap and invokes the deterministic
// transform registered under step.TransformID (§4.8, "Transform step"). An
// unregistered transform id is a fatal error at the enclosing run: unlike a
// Call step, a Transform step is never retried, so there is no recovery
// path other than fixing the workflow document.
func (e *Executor) runTransform(ctx context.Context, step *workflow.Step, tctx *template.Context, env StepEnvelope) error {
	fn, ok := e.Registry.Transform(step.TransformID)
	if !ok {
		return apierrors.Fatal(fmt.Sprintf("transform step %q references unknown transform %q", step.Name, step.TransformID), nil)
	}

	resolvedInput := resolveInputMap(env, step.InputMap, tctx)

	result, err := fn(ctx, resolvedInput)
	if err != nil {
		return apierrors.Fatal(fmt.Sprintf("transform %q failed", step.TransformID), err)
	}

	setArtifact(env, tctx, step.StoreKey, result)
	return nil
}
