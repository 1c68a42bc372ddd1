// Package runlog provides a durable, append-only event log for workflow
// runs.
//
// The run log is the canonical source of truth for run introspection: every
// progress chunk a run emits (§4.4) is also appended here, so a caller that
// reconnects after a dropped stream, or an operator debugging a failed run,
// can replay a run's history using opaque, store-owned cursors rather than
// re-subscribing to the live progress stream.
package runlog

import (
	"context"
	"time"

	"github.com/agentflow/core/agent"
	"github.com/agentflow/core/progress"
)

type (
	// Event is a single immutable run event appended to the run log.
	//
	// Store implementations assign the ID when persisting the event. IDs are
	// opaque, monotonically ordered within a run, and suitable for
	// cursor-based pagination.
	Event struct {
		// ID is the store-assigned opaque identifier for this event.
		ID string
		// RunID is the identifier of the run this event belongs to.
		RunID string
		// AgentID is the identifier of the agent (worker or manager) that
		// emitted the event.
		AgentID agent.Ident
		// Chunk is the progress chunk this event records (§3, "Progress
		// chunk").
		Chunk progress.Chunk
		// Timestamp is the event time.
		Timestamp time.Time
	}

	// Page is a forward page of run events.
	Page struct {
		// Events are ordered oldest-first.
		Events []*Event
		// NextCursor is the cursor to use to fetch the next page. It is
		// empty when there are no further events.
		NextCursor string
	}

	// Store is an append-only event store for run introspection.
	//
	// Implementations must provide stable ordering within a run. Cursor
	// values are store-owned and opaque to callers.
	Store interface {
		// Append stores the event in the run log. Append must be durable:
		// failures are surfaced to callers so a workflow run can fail fast
		// when canonical logging is unavailable.
		Append(ctx context.Context, e *Event) error

		// List returns the next forward page of events for the given run
		// ID. Cursor is an opaque value returned by a previous call to
		// List (or empty to start from the beginning). Limit must be
		// greater than zero.
		List(ctx context.Context, runID string, cursor string, limit int) (Page, error)
	}
)
