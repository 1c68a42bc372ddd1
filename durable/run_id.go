package durable

import "github.com/google/uuid"

// NewRunID generates a unique run identifier for a WorkflowStartRequest,
// namespaced by the agent id that is the root of the run.
func NewRunID(agentID string) string {
	return agentID + "-" + uuid.NewString()
}
