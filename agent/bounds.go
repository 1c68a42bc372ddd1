package agent

// Bounds describes how a tool result has been truncated relative to the
// full underlying data set, so a worker executor can surface truncation
// metadata on a tool-call progress chunk without inspecting tool-specific
// result fields (§4.6 step 6, "tool-call progress").
//
// Returned is how many items or points are present in the bounded view.
// Total, when non-nil, is the best-effort total before truncation.
// Truncated reports whether any cap (length, window, depth) was applied.
// RefinementHint is short, human-readable guidance for narrowing the query
// when Truncated is true.
type Bounds struct {
	Returned       int
	Total          *int
	Truncated      bool
	RefinementHint string
}
