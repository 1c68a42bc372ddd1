// Package manifest loads an agent's on-disk manifest — agent.json,
// AGENTS.md, WORKFLOW.md, and skills/*.skill.md — into the typed Manifest
// the worker and orchestration executors consume (§3, "Agent manifest";
// §6, "Manifest format").
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agentflow/core/agent"
	"github.com/agentflow/core/registry"
	"github.com/agentflow/core/workflow"
)

type (
	// Tier selects a model tier when Config.Model is "auto" (§6, "Execution
	// config").
	Tier string

	// ExecutionMode selects how a worker invokes its model.
	ExecutionMode string

	// CheckpointStrategy selects when a durability preset checkpoints a
	// worker's progress.
	CheckpointStrategy string
)

const (
	TierFast     Tier = "fast"
	TierBalanced Tier = "balanced"
	TierQuality  Tier = "quality"

	ExecutionModeStream   ExecutionMode = "stream"
	ExecutionModeGenerate ExecutionMode = "generate"
	ExecutionModeDurable  ExecutionMode = "durable"

	CheckpointStep CheckpointStrategy = "step"
	CheckpointTool CheckpointStrategy = "tool"
	CheckpointBoth CheckpointStrategy = "both"
)

type (
	// Interface names the $ref schema identifiers an agent's input and
	// output conform to (§6, "Manifest format"). Refs are resolved by the
	// schema-registry collaborator, which is out of scope for this module;
	// Manifest carries only the ref strings until ResolveSchemas binds them
	// against a registry.Registry.
	Interface struct {
		Input  string `json:"input"`
		Output string `json:"output"`
	}

	// SkillsConfig configures where an agent's skill documents live and
	// whether they are exposed to a parent manager (§4.7).
	SkillsConfig struct {
		Path   string `json:"path,omitempty"`
		Expose bool   `json:"expose,omitempty"`
	}

	// ProgressConfig governs whether a worker expects in-band AI-driven
	// progress in its structured output (§4.6 step 6).
	ProgressConfig struct {
		AIDriven bool `json:"aiDriven,omitempty"`
	}

	// RetryConfig is the explicit form of a durability preset's retry
	// behavior (§6, "Execution config").
	RetryConfig struct {
		MaxAttempts       int     `json:"maxAttempts,omitempty"`
		BackoffMs         int     `json:"backoffMs,omitempty"`
		BackoffMultiplier float64 `json:"backoffMultiplier,omitempty"`
	}

	// DurabilityConfig is either a named preset or the explicit shape it
	// expands to (§6, "Execution config", `durability`).
	DurabilityConfig struct {
		Preset             string             `json:"preset,omitempty"`
		Enabled            bool               `json:"enabled,omitempty"`
		MaxDurationMs      int                `json:"maxDurationMs,omitempty"`
		Retry              RetryConfig        `json:"retry,omitempty"`
		CheckpointStrategy CheckpointStrategy `json:"checkpointStrategy,omitempty"`
	}

	// Config is an agent's execution configuration (§6, "Execution config
	// (enumerated)").
	Config struct {
		Tier           Tier             `json:"tier,omitempty"`
		Model          string           `json:"model,omitempty"`
		Provider       string           `json:"provider,omitempty"`
		Temperature    float64          `json:"temperature,omitempty"`
		MaxSteps       int              `json:"maxSteps,omitempty"`
		MaxTokens      int              `json:"maxTokens,omitempty"`
		TimeoutMs      int              `json:"timeout,omitempty"`
		ExecutionMode  ExecutionMode    `json:"executionMode,omitempty"`
		SkipSynthesis  bool             `json:"skipSynthesis,omitempty"`
		OutputArtifact string           `json:"outputArtifact,omitempty"`
		Durability     DurabilityConfig `json:"durability,omitempty"`
	}

	// toolsFile is the raw `tools` block of agent.json: per-server tool
	// descriptors keyed by an opaque name the worker executor merges with
	// tool-server discovery (§6, "Tool-server contract").
	toolsFile map[string]json.RawMessage

	// mcpServersFile is the raw `mcpServers` block of agent.json.
	mcpServersFile map[string]json.RawMessage

	// agentJSON is the literal on-disk shape of agent.json.
	agentJSON struct {
		ID         string         `json:"id"`
		Version    string         `json:"version"`
		Type       string         `json:"type"`
		Interface  Interface      `json:"interface"`
		Config     Config         `json:"config,omitempty"`
		MCPServers mcpServersFile `json:"mcpServers,omitempty"`
		Skills     SkillsConfig   `json:"skills,omitempty"`
		Tools      toolsFile      `json:"tools,omitempty"`
		Progress   ProgressConfig `json:"progress,omitempty"`
	}

	// Skill is one loaded `*.skill.md` document (§4.7).
	Skill struct {
		Name string
		Body string
	}

	// Manifest is the full, in-process agent manifest: identity, version,
	// filesystem path, schema refs, base instruction, optional step graph,
	// tool-server descriptors, and execution config (§3, "Agent manifest").
	//
	// Manifest itself is not a serializable view: once schema refs are
	// resolved (ResolveSchemas), it carries live registry.Schema validator
	// handles, which must never cross a durable step boundary (§4.5,
	// "Non-serializable boundary"). Use View for that.
	Manifest struct {
		ID       agent.Ident
		Version  string
		BasePath string

		InputRef  string
		OutputRef string
		Input     registry.Schema
		Output    registry.Schema

		Instruction string
		Workflow    *workflow.Graph // nil for a worker manifest

		MCPServers mcpServersFile
		SkillsDir  string
		ExposeSkills bool
		Tools      toolsFile
		Progress   ProgressConfig
		Config     Config
	}

	// View is the serializable manifest view a durable step may carry
	// across its boundary: no validators, no compiled step graph functions,
	// only plain data (§3, "A serializable manifest view"; §4.5).
	View struct {
		ID          string         `json:"id"`
		Version     string         `json:"version"`
		BasePath    string         `json:"basePath"`
		InputRef    string         `json:"inputRef"`
		OutputRef   string         `json:"outputRef"`
		Instruction string         `json:"instruction"`
		IsManager   bool           `json:"isManager"`
		Config      Config         `json:"config"`
		Progress    ProgressConfig `json:"progress"`
	}
)

// IsManager reports whether the manifest describes a manager agent (one
// with a WORKFLOW.md step graph) rather than a worker (§2, "worker mode").
func (m *Manifest) IsManager() bool { return m.Workflow != nil }

// View projects m into its serializable form, dropping compiled validators
// and the step graph's nested function-typed fields are already plain data
// so the graph itself may still be needed by the orchestration executor;
// View intentionally omits it since only the workflow-entry durable step
// that already holds the Manifest drives graph traversal, and everything
// else downstream works from artifacts and the View's plain config.
func (m *Manifest) View() View {
	return View{
		ID:          string(m.ID),
		Version:     m.Version,
		BasePath:    m.BasePath,
		InputRef:    m.InputRef,
		OutputRef:   m.OutputRef,
		Instruction: m.Instruction,
		IsManager:   m.IsManager(),
		Config:      m.Config,
		Progress:    m.Progress,
	}
}

// stripFrontmatter splits a leading YAML frontmatter block delimited by
// "---" lines, as used by AGENTS.md and *.skill.md documents, from the body
// that follows it. The body is returned untrimmed; a document without a
// complete frontmatter block is returned whole as the body.
func stripFrontmatter(doc string) (frontmatter string, body string) {
	const fence = "---"
	trimmed := strings.TrimLeft(doc, "\n")
	if !strings.HasPrefix(trimmed, fence) {
		return "", doc
	}
	rest := strings.TrimPrefix(trimmed, fence)
	idx := strings.Index(rest, "\n"+fence)
	if idx < 0 {
		return "", doc
	}
	fm := rest[:idx]
	after := rest[idx+len("\n"+fence):]
	after = strings.TrimPrefix(after, "\n")
	return strings.TrimSpace(fm), after
}

// Load reads an agent manifest directory (agent.json, AGENTS.md, an
// optional WORKFLOW.md, and an optional skills directory) into a Manifest.
// Schema refs are carried as strings; call ResolveSchemas to bind them
// against a registry.Registry before use by the worker executor.
func Load(dir string) (*Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "agent.json"))
	if err != nil {
		return nil, fmt.Errorf("manifest: reading agent.json: %w", err)
	}
	var aj agentJSON
	if err := json.Unmarshal(raw, &aj); err != nil {
		return nil, fmt.Errorf("manifest: parsing agent.json: %w", err)
	}
	if aj.ID == "" {
		return nil, fmt.Errorf("manifest: agent.json missing id in %s", dir)
	}

	instrRaw, err := os.ReadFile(filepath.Join(dir, "AGENTS.md"))
	if err != nil {
		return nil, fmt.Errorf("manifest: reading AGENTS.md: %w", err)
	}
	_, instruction := stripFrontmatter(string(instrRaw))

	m := &Manifest{
		ID:           agent.Ident(aj.ID),
		Version:      aj.Version,
		BasePath:     dir,
		InputRef:     aj.Interface.Input,
		OutputRef:    aj.Interface.Output,
		Instruction:  strings.TrimSpace(instruction),
		MCPServers:   aj.MCPServers,
		SkillsDir:    aj.Skills.Path,
		ExposeSkills: aj.Skills.Expose,
		Tools:        aj.Tools,
		Progress:     aj.Progress,
		Config:       aj.Config,
	}
	if m.SkillsDir == "" {
		m.SkillsDir = "skills"
	}

	workflowRaw, err := os.ReadFile(filepath.Join(dir, "WORKFLOW.md"))
	switch {
	case err == nil:
		graph, warnings, perr := workflow.Parse(string(workflowRaw))
		if perr != nil {
			return nil, fmt.Errorf("manifest: parsing WORKFLOW.md for %s: %w", aj.ID, perr)
		}
		_ = warnings // discarded: Load neither returns nor logs the skipped-block warnings
		m.Workflow = graph
	case os.IsNotExist(err):
		// Worker manifest: no workflow graph.
	default:
		return nil, fmt.Errorf("manifest: reading WORKFLOW.md: %w", err)
	}

	return m, nil
}

// ResolveSchemas binds m's input/output schema refs against reg. Refs of
// the form "<agentId>:input" / "<agentId>:output" are looked up directly;
// "./file.ts#Name" refs are left unresolved here since loading them is the
// responsibility of the collaborator that owns schema compilation (§6,
// "Manifest format") — callers that need them pre-register the compiled
// schema under the ref string itself.
func (m *Manifest) ResolveSchemas(reg *registry.Registry) error {
	in, ok := reg.Schema(m.InputRef)
	if !ok {
		return fmt.Errorf("manifest: no schema registered for input ref %q (agent %s)", m.InputRef, m.ID)
	}
	out, ok := reg.Schema(m.OutputRef)
	if !ok {
		return fmt.Errorf("manifest: no schema registered for output ref %q (agent %s)", m.OutputRef, m.ID)
	}
	m.Input = in
	m.Output = out
	return nil
}

// LoadSkills loads every "*.skill.md" file in m's skills directory, in
// directory order, stripping YAML frontmatter from each (§4.7). A missing
// skills directory is non-fatal and yields an empty slice.
func LoadSkills(m *Manifest) ([]Skill, error) {
	dir := filepath.Join(m.BasePath, m.SkillsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("manifest: reading skills dir %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".skill.md") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	skills := make([]Skill, 0, len(names))
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("manifest: reading skill %s: %w", name, err)
		}
		_, body := stripFrontmatter(string(raw))
		skillName := strings.TrimSuffix(name, ".skill.md")
		skills = append(skills, Skill{Name: skillName, Body: strings.TrimSpace(body)})
	}
	return skills, nil
}
