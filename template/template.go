// Package template resolves "${path}" references against a hierarchical
// orchestration context and evaluates boolean conditions built from those
// references, per §4.1 of the engine's design.
package template

import (
	"fmt"
	"strconv"
	"strings"
)

// Context is the two-slot orchestration context a workflow run carries:
// the original invocation input (read-only) and the mutable artifacts map
// accumulated as steps complete.
type Context struct {
	// Input is the original invocation input, read-only for the life of
	// the run.
	Input any
	// Artifacts maps string keys to arbitrary values produced by
	// completed steps. Dot-notation keys support nested reads.
	Artifacts map[string]any
}

// isFullToken reports whether s is, in its entirety, a single "${path}"
// token (as opposed to a string that merely embeds one), and returns path.
func isFullToken(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 3 || !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
		return "", false
	}
	return s[2 : len(s)-1], true
}

// Resolve substitutes a "${path}" string against ctx. Strings that are not a
// pure "${...}" token are returned unchanged (Resolver law: resolve(s, c) ==
// s for any non-template string).
func Resolve(s string, ctx Context) any {
	path, ok := isFullToken(s)
	if !ok {
		return s
	}
	return ResolvePath(path, ctx)
}

// ResolvePath resolves a bare path (without the "${...}" wrapper) against
// ctx, applying the prefix rules from §4.1:
//   - "input."      -> ctx.Input
//   - "artifacts."   -> ctx.Artifacts
//   - "context."     -> dropped, remainder resolved as above
//   - unprefixed     -> defaults to "artifacts."
//
// Missing keys at any segment resolve to the string "undefined".
func ResolvePath(path string, ctx Context) any {
	path = strings.TrimSpace(path)
	for strings.HasPrefix(path, "context.") {
		path = strings.TrimPrefix(path, "context.")
	}
	if path == "context" {
		return "undefined"
	}

	var root any
	rest := path
	switch {
	case path == "input" || strings.HasPrefix(path, "input."):
		root = ctx.Input
		rest = strings.TrimPrefix(strings.TrimPrefix(path, "input"), ".")
		if path == "input" {
			return root
		}
	case path == "artifacts" || strings.HasPrefix(path, "artifacts."):
		root = ctx.Artifacts
		rest = strings.TrimPrefix(strings.TrimPrefix(path, "artifacts"), ".")
		if path == "artifacts" {
			return root
		}
	default:
		root = ctx.Artifacts
		rest = path
	}
	return lookup(root, rest)
}

// lookup walks a dot-separated path of segments against root, treating each
// segment as a key lookup into a map (string-keyed) or an index into a
// slice. Missing keys resolve to "undefined".
func lookup(root any, path string) any {
	if path == "" {
		return root
	}
	segments := strings.Split(path, ".")
	cur := root
	for _, seg := range segments {
		if cur == nil {
			return "undefined"
		}
		switch v := cur.(type) {
		case map[string]any:
			val, ok := v[seg]
			if !ok {
				return "undefined"
			}
			cur = val
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return "undefined"
			}
			cur = v[idx]
		default:
			return "undefined"
		}
	}
	return cur
}

// ResolveInputMap resolves a mapping whose values are full "${...}" tokens,
// literal scalars, arrays (passed through verbatim), or nested mappings
// (resolved recursively), producing a concrete mapping ready to send as a
// sub-agent's input.
func ResolveInputMap(m map[string]any, ctx Context) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = resolveValue(v, ctx)
	}
	return out
}

func resolveValue(v any, ctx Context) any {
	switch t := v.(type) {
	case string:
		return Resolve(t, ctx)
	case map[string]any:
		return ResolveInputMap(t, ctx)
	case []any:
		return t
	default:
		return t
	}
}

// Stringify renders a resolved value as text for condition evaluation, so
// numbers, strings, and booleans remain comparable after substitution.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return "undefined"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
