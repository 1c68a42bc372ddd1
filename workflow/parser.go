package workflow

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	headerPattern = regexp.MustCompile(`(?m)^#{1,2}\s*(\d+)\.\s+(.+?)\s*$`)
	fencePattern  = regexp.MustCompile("(?ms)^```ya?ml\\s*\\n(.*?)\\n```\\s*$")
)

type header struct {
	pos  int
	name string
}

type block struct {
	pos  int
	body string
}

// Parse converts a workflow document into a step graph. Malformed YAML in
// one block is returned as a warning and that block is skipped (§4.2,
// "Errors"); Parse itself logs nothing. Block association errors are fatal
// and returned as *ParseError.
func Parse(doc string) (*Graph, []error, error) {
	headers := scanHeaders(doc)
	blocks := scanBlocks(doc)

	var steps []*Step
	var warnings []error

	for _, b := range blocks {
		h, err := enclosingHeader(headers, b.pos)
		if err != nil {
			return nil, warnings, err
		}

		node, err := decodeYAMLNode(b.body)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("workflow: skipping malformed yaml block under %q: %w", h.name, err))
			continue
		}

		step, err := stepFromNode(node, h.name)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("workflow: skipping unrecognized block under %q: %w", h.name, err))
			continue
		}
		steps = append(steps, step)
	}

	return &Graph{Steps: steps}, warnings, nil
}

// scanHeaders finds every numbered header ("## N. Name" or "# N. Name") and
// records its byte position and name.
func scanHeaders(doc string) []header {
	matches := headerPattern.FindAllStringSubmatchIndex(doc, -1)
	headers := make([]header, 0, len(matches))
	for _, m := range matches {
		headers = append(headers, header{
			pos:  m[0],
			name: doc[m[4]:m[5]],
		})
	}
	return headers
}

// scanBlocks finds every fenced code block labeled yaml or yml.
func scanBlocks(doc string) []block {
	matches := fencePattern.FindAllStringSubmatchIndex(doc, -1)
	blocks := make([]block, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, block{
			pos:  m[0],
			body: doc[m[2]:m[3]],
		})
	}
	return blocks
}

// enclosingHeader finds the numbered header with the largest position
// strictly less than pos — the "closest enclosing header" (§4.2 step 3).
func enclosingHeader(headers []header, pos int) (header, error) {
	best := -1
	for i, h := range headers {
		if h.pos < pos && (best < 0 || h.pos > headers[best].pos) {
			best = i
		}
	}
	if best < 0 {
		return header{}, &ParseError{Message: "workflow: yaml block has no enclosing numbered header"}
	}
	return headers[best], nil
}

func decodeYAMLNode(body string) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(body), &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("empty yaml document")
	}
	return doc.Content[0], nil
}

// recognizedKeys lists the step-discriminating keys in dispatch priority
// order, used when a decoded mapping's key order cannot be trusted (nested
// steps decoded via mapping rather than node order).
var recognizedKeys = []string{"call", "transform", "loop", "parallel", "if"}

// firstRecognizedKey returns the first key in n's mapping (by document
// order) that is one of recognizedKeys.
func firstRecognizedKey(n *yaml.Node) (string, error) {
	if n.Kind != yaml.MappingNode {
		return "", fmt.Errorf("expected a mapping, got %v", n.Kind)
	}
	for i := 0; i < len(n.Content); i += 2 {
		key := n.Content[i].Value
		for _, rk := range recognizedKeys {
			if key == rk {
				return rk, nil
			}
		}
	}
	return "", fmt.Errorf("no recognized step key (call/transform/loop/parallel/if)")
}

func mapFromNode(n *yaml.Node) (map[string]any, error) {
	var m map[string]any
	if err := n.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// stepFromNode dispatches a decoded YAML mapping to the matching step
// constructor and names the result from the enclosing header.
func stepFromNode(n *yaml.Node, headerName string) (*Step, error) {
	key, err := firstRecognizedKey(n)
	if err != nil {
		return nil, err
	}
	m, err := mapFromNode(n)
	if err != nil {
		return nil, err
	}
	step, err := stepFromMap(key, m)
	if err != nil {
		return nil, err
	}
	step.Name = headerName
	return step, nil
}

// stepFromMap builds a Step from a decoded mapping given its dispatch key.
// Used both for top-level (header-associated) steps and for nested steps
// inside loop/parallel/if bodies, which are not associated with their own
// header and so are named after their dispatch key.
func stepFromMap(key string, m map[string]any) (*Step, error) {
	switch key {
	case "call":
		return buildCall(m)
	case "transform":
		return buildTransform(m)
	case "loop":
		return buildLoop(m)
	case "parallel":
		return buildParallel(m)
	case "if":
		return buildConditional(m)
	default:
		return nil, fmt.Errorf("unrecognized step key %q", key)
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func lastSlashSegment(agentID string) string {
	parts := strings.Split(agentID, "/")
	return parts[len(parts)-1]
}

func buildCall(m map[string]any) (*Step, error) {
	agentID := asString(m["call"])
	if agentID == "" {
		return nil, fmt.Errorf("call step missing agent id")
	}
	store := asString(m["store"])
	if store == "" {
		store = "artifacts." + lastSlashSegment(agentID)
	}
	retry := DefaultRetryPolicy()
	if r := asMap(m["retry"]); r != nil {
		if v, ok := r["maxAttempts"]; ok {
			retry.MaxAttempts = toInt(v)
		}
		if v, ok := r["delayMs"]; ok {
			retry.DelayMs = toInt(v)
		} else {
			retry.DelayMs = 1000
		}
		if v, ok := r["backoffMultiplier"]; ok {
			retry.BackoffMultiplier = toFloat(v)
		} else {
			retry.BackoffMultiplier = 1
		}
		if v, ok := r["onFailure"]; ok {
			retry.OnFailure = OnFailure(asString(v))
		} else {
			retry.OnFailure = OnFailureAbort
		}
		retry.FallbackStore = asString(r["fallbackStore"])
	}
	return &Step{
		Kind:     KindCall,
		AgentID:  agentID,
		InputMap: asMap(m["input"]),
		StoreKey: store,
		Retry:    retry,
	}, nil
}

func buildTransform(m map[string]any) (*Step, error) {
	id := asString(m["transform"])
	if id == "" {
		return nil, fmt.Errorf("transform step missing transform id")
	}
	store := asString(m["store"])
	if store == "" {
		return nil, fmt.Errorf("transform step missing store key")
	}
	return &Step{
		Kind:        KindTransform,
		TransformID: id,
		InputMap:    asMap(m["input"]),
		StoreKey:    store,
	}, nil
}

func buildLoop(m map[string]any) (*Step, error) {
	item := asString(m["item"])
	if item == "" {
		item = "item"
	}
	mode := LoopMode(asString(m["mode"]))
	if mode == "" {
		mode = LoopParallel
	}
	rawSteps := asSlice(m["steps"])
	nested, err := buildStepList(rawSteps)
	if err != nil {
		return nil, err
	}
	output := asString(m["output"])
	if output == "" {
		output = "artifacts.loopResult"
	}
	// Over prefers an explicit "over:" field — the sequence to iterate,
	// distinct from "loop:" which is only this kind's dispatch-key marker
	// (mirroring the call/transform/if convention of a dispatch key that
	// doubles as the step's primary argument when the body gives nothing
	// more specific). Falling back to the "loop:" marker value keeps a
	// document that follows that terser convention working exactly as
	// before.
	over, ok := m["over"]
	if !ok {
		over = m["loop"]
	}
	return &Step{
		Kind:      KindLoop,
		Over:      over,
		ItemVar:   item,
		LoopMode:  mode,
		LoopSteps: nested,
		OutputKey: output,
	}, nil
}

func buildParallel(m map[string]any) (*Step, error) {
	rawBranches := asSlice(m["branches"])
	branches := make([][]*Step, 0, len(rawBranches))
	for _, rb := range rawBranches {
		branchSteps, ok := rb.([]any)
		if !ok {
			return nil, fmt.Errorf("parallel branch must be a step list")
		}
		steps, err := buildStepList(branchSteps)
		if err != nil {
			return nil, err
		}
		branches = append(branches, steps)
	}
	return &Step{Kind: KindParallel, Branches: branches}, nil
}

func buildConditional(m map[string]any) (*Step, error) {
	cond := asString(m["if"])
	thenSteps, err := buildStepList(asSlice(m["then"]))
	if err != nil {
		return nil, err
	}
	var elseSteps []*Step
	if _, ok := m["else"]; ok {
		elseSteps, err = buildStepList(asSlice(m["else"]))
		if err != nil {
			return nil, err
		}
	}
	return &Step{Kind: KindConditional, Condition: cond, Then: thenSteps, Else: elseSteps}, nil
}

// buildStepList builds nested steps from a decoded YAML sequence. Each
// element is a mapping dispatched by its first recognized key, same as a
// top-level block, but named after that key since there is no enclosing
// header.
func buildStepList(raw []any) ([]*Step, error) {
	steps := make([]*Step, 0, len(raw))
	for _, item := range raw {
		im, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("step list element must be a mapping")
		}
		key, err := firstKeyOf(im)
		if err != nil {
			return nil, err
		}
		step, err := stepFromMap(key, im)
		if err != nil {
			return nil, err
		}
		step.Name = key
		steps = append(steps, step)
	}
	return steps, nil
}

// firstKeyOf finds the first recognized dispatch key present in a decoded
// map. Go map iteration order is random, so when more than one recognized
// key is present (which a well-formed step body never has) this picks by
// recognizedKeys priority rather than map order.
func firstKeyOf(m map[string]any) (string, error) {
	for _, rk := range recognizedKeys {
		if _, ok := m[rk]; ok {
			return rk, nil
		}
	}
	return "", fmt.Errorf("step list element has no recognized step key")
}

func toInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return 0
	}
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return 0
	}
}
