// Package agent provides strong type identifiers and small shared value
// types used across the orchestration engine.
package agent

// Ident is the strong type for fully qualified agent identifiers
// (e.g., "research.summarizer"). Use this type when referencing agents in
// maps or APIs to avoid accidental mixing with free-form strings.
type Ident string

// ToolIdent is the strong type for fully qualified tool identifiers
// discovered from static registration or a tool server (e.g.,
// "weather.search.forecast").
type ToolIdent string
