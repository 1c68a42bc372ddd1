package orchestrator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/agentflow/core/agent"
	"github.com/agentflow/core/apierrors"
	"github.com/agentflow/core/manifest"
	"github.com/agentflow/core/template"
	"github.com/agentflow/core/worker"
	"github.com/agentflow/core/workflow"
)

// runCall executes a Call step (§4.8, "Call step").
func (e *Executor) runCall(ctx context.Context, step *workflow.Step, tctx *template.Context, env StepEnvelope) error {
	resolvedInput := resolveInputMap(env, step.InputMap, tctx)

	basePath, err := e.resolveBasePath(step.AgentID)
	if err != nil {
		return apierrors.Fatal(fmt.Sprintf("resolving manifest path for %s", step.AgentID), err)
	}
	sub, err := e.Manifests.Load(basePath)
	if err != nil {
		return apierrors.Fatal(fmt.Sprintf("loading manifest for %s", step.AgentID), err)
	}

	result, callErr := e.invokeRetrying(ctx, step, sub, basePath, resolvedInput, tctx, env)
	if callErr == nil {
		markRetryExhausted(env, tctx, step.Name)
		setArtifact(env, tctx, step.StoreKey, result)
		return nil
	}

	policy := step.Retry
	markRetryExhausted(env, tctx, step.Name)

	if policy.OnFailure == workflow.OnFailureContinue {
		var fallback any
		if policy.FallbackStore != "" {
			fallback = resolveArtifactPath(env, trimArtifactsPrefix(policy.FallbackStore), tctx)
		}
		setArtifact(env, tctx, step.StoreKey, fallback)
		setArtifact(env, tctx, step.StoreKey+"_error", callErr.Error())
		return nil
	}
	return apierrors.StepPolicy(fmt.Sprintf("call step %q exhausted retries", step.Name), callErr)
}

// invokeRetrying runs sub's worker or nested-manager invocation, retrying
// per step.Retry (§4.2 step 5). Retry bookkeeping is recorded in
// artifacts._retryState[stepId] as each attempt starts, so a crash between
// attempts leaves enough state for a resumed run to know how many attempts
// have already been spent (§4.8 step 6).
func (e *Executor) invokeRetrying(
	ctx context.Context,
	step *workflow.Step,
	sub *manifest.Manifest,
	basePath string,
	resolvedInput map[string]any,
	tctx *template.Context,
	env StepEnvelope,
) (any, error) {
	policy := step.Retry
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		recordRetryAttempt(env, tctx, step.Name, attempt)

		result, err := e.invokeOnce(ctx, step, sub, basePath, resolvedInput, env)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if apierrors.IsFatal(err) {
			return nil, err
		}
		if attempt < maxAttempts {
			delay := time.Duration(policy.DelayMs) * time.Millisecond
			if policy.BackoffMultiplier > 0 {
				delay = time.Duration(float64(delay) * math.Pow(policy.BackoffMultiplier, float64(attempt-1)))
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

func (e *Executor) invokeOnce(
	ctx context.Context,
	step *workflow.Step,
	sub *manifest.Manifest,
	basePath string,
	resolvedInput map[string]any,
	env StepEnvelope,
) (any, error) {
	if sub.IsManager() {
		out, err := e.Nested.RunNested(ctx, NestedManagerRequest{
			AgentID:    agent.Ident(step.AgentID),
			BasePath:   basePath,
			Input:      resolvedInput,
			StepPrefix: env.StepPrefix,
			Writer:     env.Writer,
			Range:      env.Range,
		})
		if err != nil {
			return nil, apierrors.Fatal(fmt.Sprintf("nested manager %s failed", step.AgentID), err)
		}
		return out, nil
	}

	out, err := e.Workers.Execute(ctx, worker.Request{
		AgentID:    agent.Ident(step.AgentID),
		BasePath:   basePath,
		Input:      resolvedInput,
		StepPrefix: env.StepPrefix,
		Range:      env.Range,
		InWorkflow: true,
		Writer:     env.Writer,
	})
	if err != nil {
		return nil, err
	}
	return out.Output, nil
}

// resolveBasePath maps a Call step's agent id to its manifest directory
// using e.PathResolver.
func (e *Executor) resolveBasePath(agentID string) (string, error) {
	if e.PathResolver == nil {
		return "", fmt.Errorf("orchestrator: no path resolver configured")
	}
	return e.PathResolver(agent.Ident(agentID))
}

// markRetryExhausted clears a step's retry-attempt bookkeeping once its
// outcome (success, abort or continue) has been decided, so a resumed run does not
// see a stale in-progress attempt count for a step that has already
// concluded. Locks env.artifactsMu, since a Parallel step's branches share
// the same _retryState map.
func markRetryExhausted(env StepEnvelope, tctx *template.Context, stepName string) {
	if env.artifactsMu != nil {
		env.artifactsMu.Lock()
		defer env.artifactsMu.Unlock()
	}
	state := retryState(tctx)
	delete(state, stepName)
}

// recordRetryAttempt records the attempt number a Call step is about to
// make in artifacts._retryState[stepId] (§4.8 step 6), so a crash between
// attempts is resumable: a re-run of the workflow can inspect this map to
// know how many attempts have already been spent for this step. Locks
// env.artifactsMu for the same reason as markRetryExhausted.
func recordRetryAttempt(env StepEnvelope, tctx *template.Context, stepName string, attempt int) {
	if env.artifactsMu != nil {
		env.artifactsMu.Lock()
		defer env.artifactsMu.Unlock()
	}
	state := retryState(tctx)
	state[stepName] = attempt
}

func retryState(tctx *template.Context) map[string]any {
	raw, ok := tctx.Artifacts["_retryState"]
	if !ok {
		m := make(map[string]any)
		tctx.Artifacts["_retryState"] = m
		return m
	}
	m, ok := raw.(map[string]any)
	if !ok {
		m = make(map[string]any)
		tctx.Artifacts["_retryState"] = m
	}
	return m
}
