// Package worker executes a single LLM-driven agent to produce structured
// output (§4.6, "Worker Executor"). The worker executor is the largest
// single component in this engine: manifest loading, system-prompt
// construction, tool loading and merging, model configuration resolution,
// tool-loop construction, dual-stream progress extraction, retry, and
// fatal-condition handling all live here.
package worker

import (
	"context"

	"github.com/agentflow/core/agent"
)

type (
	// TokenUsage reports token consumption for one model invocation. A
	// worker that cannot obtain usage from its provider estimates it
	// instead (§4.6 step 7).
	TokenUsage struct {
		InputTokens  int
		OutputTokens int
		TotalTokens  int
		Estimated    bool
	}

	// PartialOutput is one successively-more-complete value of a tool-loop
	// agent's structured output, as produced by the partial-output stream
	// (§4.6 step 6).
	PartialOutput struct {
		// Value is the partially filled structured output so far.
		Value any
		// Progress is the in-band "_progress" field of Value, if present
		// and shaped like a progress chunk; nil otherwise.
		Progress *InBandProgress
	}

	// InBandProgress is the "_progress" field a model may emit inside its
	// structured output to report its own progress (§9, "In-band AI
	// progress vs synthesized progress").
	InBandProgress struct {
		Step              string
		UserMessage       string
		EstimatedProgress int
		IconHint          string
	}

	// ToolEvent reports a tool-call event from the tool-event stream
	// (§4.6 step 6).
	ToolEvent struct {
		ToolName string
		Bounds   *agent.Bounds
	}

	// PartialOutputStream yields successive PartialOutput values, ending
	// with io.EOF.
	PartialOutputStream interface {
		Recv() (PartialOutput, error)
	}

	// ToolEventStream yields successive ToolEvent values, ending with
	// io.EOF.
	ToolEventStream interface {
		Recv() (ToolEvent, error)
	}

	// RunRequest describes one tool-loop agent invocation.
	RunRequest struct {
		SystemPrompt    string
		Input           any
		OutputSchemaRef string
		Tools           []Tool
		Model           ResolvedModel
		MaxToolCalls    int
	}

	// Run is a single in-flight tool-loop agent invocation, exposing its
	// two concurrent streams and a blocking Wait for the final structured
	// output.
	Run interface {
		PartialOutputs() PartialOutputStream
		ToolEvents() ToolEventStream
		// Wait blocks for the final structured output. It must be safe to
		// call concurrently with draining PartialOutputs/ToolEvents.
		Wait(ctx context.Context) (output any, usage TokenUsage, err error)
		Close() error
	}

	// ResolvedModel is a fully resolved model selection: either an
	// explicit model id or one chosen from tier, plus provider and
	// sampling parameters (§6, "Execution config").
	ResolvedModel struct {
		Model       string
		Provider    string
		Temperature float64
		MaxTokens   int
		TimeoutMs   int
	}

	// Client is the LLM provider adapter boundary. The core depends only
	// on this interface; concrete provider adapters (OpenAI, Anthropic,
	// Bedrock, ...) are external collaborators out of scope for this
	// module (§1).
	Client interface {
		Run(ctx context.Context, req RunRequest) (Run, error)
	}

	// CredentialSource reports whether credentials are available for a
	// resolved model's provider. OAuth-backed providers are assumed to
	// always have usable credentials at the engine boundary (the OAuth
	// flow itself is an external collaborator); other providers fail fast
	// without an explicit credential (§4.6, "Fatal conditions").
	CredentialSource interface {
		HasCredential(provider string) bool
		IsOAuthProvider(provider string) bool
	}
)

// Tool is a tool available to a worker's tool loop, whether statically
// registered or discovered from a tool server (§6, "Tool-server contract").
type Tool struct {
	Name        string
	Description string
	InputSchema any
	Execute     func(ctx context.Context, args map[string]any) (any, error)
}

// ToolServer discovers tools advertised by a tool server and adapts them
// into engine Tools (§6, "Tool-server contract"). The core uses only the
// two operations named here; transport, auth, and protocol framing are an
// external collaborator's concern.
type ToolServer interface {
	Connect(ctx context.Context, servers map[string]any) ([]Tool, error)
}
