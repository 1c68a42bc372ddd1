package temporal

import (
	"context"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"

	"github.com/agentflow/core/durable"
)

type (
	workflowHandle struct {
		client     client.Client
		workflowID string
		runID      string
	}

	runHandle struct {
		client     client.Client
		workflowID string
	}
)

func (h *workflowHandle) Wait(ctx context.Context, result any) error {
	run := h.client.GetWorkflow(ctx, h.workflowID, h.runID)
	if err := run.Get(ctx, result); err != nil {
		return normalizeTemporalError(err)
	}
	return nil
}

func (h *workflowHandle) Signal(ctx context.Context, name string, payload any) error {
	return h.client.SignalWorkflow(ctx, h.workflowID, h.runID, name, payload)
}

func (h *workflowHandle) Cancel(ctx context.Context) error {
	return h.client.CancelWorkflow(ctx, h.workflowID, h.runID)
}

func (h *runHandle) Status(ctx context.Context) (durable.RunStatus, error) {
	desc, err := h.client.DescribeWorkflowExecution(ctx, h.workflowID, "")
	if err != nil {
		return "", err
	}
	return mapRunStatus(desc.GetWorkflowExecutionInfo().GetStatus()), nil
}

func (h *runHandle) Wait(ctx context.Context, result any) error {
	run := h.client.GetWorkflow(ctx, h.workflowID, "")
	if err := run.Get(ctx, result); err != nil {
		return normalizeTemporalError(err)
	}
	return nil
}

func (h *runHandle) Cancel(ctx context.Context) error {
	return h.client.CancelWorkflow(ctx, h.workflowID, "")
}

func mapRunStatus(s enumspb.WorkflowExecutionStatus) durable.RunStatus {
	switch s {
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING, enumspb.WORKFLOW_EXECUTION_STATUS_CONTINUED_AS_NEW:
		return durable.RunStatusRunning
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		return durable.RunStatusCompleted
	case enumspb.WORKFLOW_EXECUTION_STATUS_FAILED, enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		return durable.RunStatusFailed
	case enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED, enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED:
		return durable.RunStatusCancelled
	default:
		return durable.RunStatusPending
	}
}
