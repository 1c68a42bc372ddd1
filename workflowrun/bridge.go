package workflowrun

import (
	"context"
	"fmt"

	"github.com/agentflow/core/apierrors"
	"github.com/agentflow/core/orchestrator"
	"github.com/agentflow/core/progress"
	"github.com/agentflow/core/stream"
)

// nestedRun is the outcome of a child workflow run, carried across the
// goroutine boundary alongside the chunk channel.
type nestedRun struct {
	result *Result
	err    error
}

// RunNested implements orchestrator.NestedManagerRunner (§4.10): it starts a
// child workflow run for req.AgentID, reads the child's progress stream
// chunk by chunk, and re-emits each one on the parent's stream with its
// step id namespaced "<childAgentId>:" and its local progress value mapped
// into the parent Call step's own assigned range. The child's own
// finish/error chunks are absorbed rather than forwarded: they are internal
// to the child run's lifecycle, and the parent only cares about the
// child's final output or failure, which RunNested returns directly.
func (r *Runner) RunNested(ctx context.Context, req orchestrator.NestedManagerRequest) (any, error) {
	child := stream.NewChannelWriter(32)
	done := make(chan nestedRun, 1)

	go func() {
		res, err := r.Run(ctx, RunInput{
			AgentID:  req.AgentID,
			BasePath: req.BasePath,
			Input:    req.Input,
			Writer:   child,
		})
		done <- nestedRun{result: res, err: err}
	}()

	prefix := string(req.AgentID) + ":"
	for c := range child.Chunks() {
		if c.Type != progress.TypeProgress {
			continue
		}
		c.Step = prefix + c.Step
		c.EstimatedProgress = req.Range.Map(c.EstimatedProgress)
		if writeErr := req.Writer.Write(ctx, c); writeErr != nil {
			return nil, writeErr
		}
	}

	out := <-done
	if out.err != nil {
		return nil, apierrors.Fatal(fmt.Sprintf("nested manager %s failed", req.AgentID), out.err)
	}
	if out.result == nil || !out.result.Success {
		msg := "nested manager run did not succeed"
		if out.result != nil && out.result.Error != nil {
			msg = out.result.Error.Message
		}
		return nil, apierrors.Fatal(fmt.Sprintf("nested manager %s failed: %s", req.AgentID, msg), nil)
	}
	return out.result.Output, nil
}
