package workflowrun

import (
	"github.com/agentflow/core/apierrors"
	"github.com/agentflow/core/durable"
)

// AsWorkflowFunc adapts r.Run into a durable.WorkflowFunc, so a workflow run
// can be registered and started through any durable.Engine implementation
// (durable/inmem for local dev and tests, durable/temporal for production)
// without workflowrun depending on either backend directly. The handler
// pulls the Go context and run id out of the engine-provided
// WorkflowContext, so a caller need only supply the RunInput fields that
// are specific to the invocation (agent id, base path, input, writer).
func (r *Runner) AsWorkflowFunc() durable.WorkflowFunc {
	return func(wfCtx durable.WorkflowContext, input any) (any, error) {
		req, ok := input.(RunInput)
		if !ok {
			return nil, apierrors.Fatal("workflowrun: workflow input must be a RunInput", nil)
		}
		if req.RunID == "" {
			req.RunID = wfCtx.RunID()
		}
		return r.Run(wfCtx.Context(), req)
	}
}
