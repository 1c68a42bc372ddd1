// Package registry holds the three process-wide, write-once-read-many
// tables the orchestration engine reads from but never mutates during a
// workflow run: output/input schemas, deterministic transforms, and
// per-agent tool sets (§4.3). Registration is idempotent with
// last-write-wins; readers return a zero value and ok=false for missing
// keys.
//
// Instances of Registry are constructed once at process start and passed
// explicitly to the engine's constructors, rather than kept as package-level
// globals, so tests can use isolated registries (§9, "Global state").
package registry

import (
	"context"
	"sync"
)

type (
	// Schema is an opaque validator handle. Concrete validator
	// implementations (for example a JSON Schema compiler) live behind
	// this interface so the core never depends on a specific schema
	// technology.
	Schema interface {
		// Validate reports whether data conforms to the schema. A non-nil
		// error carries a human-readable description of the first
		// violation encountered.
		Validate(data any) error
	}

	// Transform is a pure, deterministic function taking a resolved input
	// mapping and returning a value or an error. Transforms are never
	// retried (§4.8, "Transform step").
	Transform func(ctx context.Context, input map[string]any) (any, error)

	// ToolSet is the static set of tools registered for a given agent id,
	// prior to merging with any tools discovered from a tool server at
	// worker-executor load time (§4.6 step 3).
	ToolSet []Tool

	// Tool describes one statically registered tool available to a
	// worker's tool loop.
	Tool struct {
		Name        string
		Description string
		InputSchema Schema
		Execute     func(ctx context.Context, args map[string]any) (any, error)
	}

	// Registry is the process-wide collection of schemas, transforms, and
	// tool sets. The zero value is ready to use.
	Registry struct {
		mu         sync.RWMutex
		schemas    map[string]Schema
		transforms map[string]Transform
		toolSets   map[string]ToolSet
	}
)

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		schemas:    make(map[string]Schema),
		transforms: make(map[string]Transform),
		toolSets:   make(map[string]ToolSet),
	}
}

// RegisterSchema registers (or replaces) the validator for name.
func (r *Registry) RegisterSchema(name string, s Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[name] = s
}

// Schema returns the validator registered for name, if any.
func (r *Registry) Schema(name string) (Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	return s, ok
}

// RegisterTransform registers (or replaces) the deterministic transform
// function for id.
func (r *Registry) RegisterTransform(id string, fn Transform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transforms[id] = fn
}

// Transform returns the transform function registered for id, if any.
func (r *Registry) Transform(id string) (Transform, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.transforms[id]
	return fn, ok
}

// RegisterToolSet registers (or replaces) the static tool set for an agent
// id.
func (r *Registry) RegisterToolSet(agentID string, tools ToolSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toolSets[agentID] = tools
}

// ToolSet returns the static tool set registered for an agent id. Returns
// nil, false when the agent has no statically registered tools.
func (r *Registry) ToolSet(agentID string) (ToolSet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ts, ok := r.toolSets[agentID]
	return ts, ok
}
