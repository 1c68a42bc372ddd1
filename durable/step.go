package durable

import (
	"context"
	"time"
)

// Call schedules req as a durable step and decodes its result into T. It is
// a typed convenience wrapper around ExecuteActivity that spares callers an
// `any` result pointer. The orchestration and worker executors in this
// module do not call it; they invoke workers and transforms directly.
//
// A step's inputs and outputs must be fully serializable (primitives,
// arrays, maps of the same) — the non-serializable boundary from §4.5:
// schemas, functions, and live connections must never cross a step call.
// Callers reconstruct any heavy value (compiled schema, tool client) inside
// the step body from plain identifiers carried in req.Input.
func Call[T any](ctx context.Context, wf WorkflowContext, req ActivityRequest) (T, error) {
	var out T
	err := wf.ExecuteActivity(ctx, req, &out)
	return out, err
}

// RetryPolicyFromAttempts builds a durable.RetryPolicy from a workflow
// step's retry configuration (§4.2 step 5: maxAttempts, delayMs,
// backoffMultiplier), so callers never hand-construct engine retry policies
// from parsed workflow-document fields.
func RetryPolicyFromAttempts(maxAttempts, delayMs int, backoffMultiplier float64) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:        maxAttempts,
		InitialInterval:    time.Duration(delayMs) * time.Millisecond,
		BackoffCoefficient: backoffMultiplier,
	}
}
