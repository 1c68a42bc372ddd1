package stream

import (
	"context"
	"time"

	"github.com/agentflow/core/agent"
	"github.com/agentflow/core/progress"
	"github.com/agentflow/core/runlog"
)

// RunLogTee wraps a progress.Writer so every chunk delivered to callers is
// also appended to a runlog.Store under runID, making the run log the
// canonical record of a run's progress independent of whether any caller
// stayed subscribed to the live stream (see package doc).
type RunLogTee struct {
	inner   progress.Writer
	store   runlog.Store
	runID   string
	agentID agent.Ident
	now     func() time.Time
}

// NewRunLogTee constructs a RunLogTee. now defaults to time.Now if nil.
func NewRunLogTee(inner progress.Writer, store runlog.Store, runID string, agentID agent.Ident, now func() time.Time) *RunLogTee {
	if now == nil {
		now = time.Now
	}
	return &RunLogTee{inner: inner, store: store, runID: runID, agentID: agentID, now: now}
}

func (t *RunLogTee) Write(ctx context.Context, c progress.Chunk) error {
	if err := t.store.Append(ctx, &runlog.Event{
		RunID:     t.runID,
		AgentID:   t.agentID,
		Chunk:     c,
		Timestamp: t.now(),
	}); err != nil {
		return err
	}
	return t.inner.Write(ctx, c)
}

func (t *RunLogTee) Close(ctx context.Context) error {
	return t.inner.Close(ctx)
}
