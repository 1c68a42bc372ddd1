package orchestrator

import (
	"context"
	"sync"

	"github.com/agentflow/core/template"
	"github.com/agentflow/core/workflow"
)

// runParallel launches all of step's branches concurrently, each running
// its nested steps sequentially against the *shared* artifacts map (§4.8,
// "Parallel step"). Branches must not write to overlapping storeKeys; the
// engine does not detect or arbitrate a collision, per the same section.
func (e *Executor) runParallel(ctx context.Context, step *workflow.Step, tctx *template.Context, env StepEnvelope) error {
	branchEnv := env
	if branchEnv.artifactsMu == nil {
		branchEnv.artifactsMu = &sync.Mutex{}
	}

	var wg sync.WaitGroup
	errs := make([]error, len(step.Branches))

	wg.Add(len(step.Branches))
	for i, branch := range step.Branches {
		i, branch := i, branch
		go func() {
			defer wg.Done()
			errs[i] = e.RunSteps(ctx, branch, tctx, branchEnv)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
