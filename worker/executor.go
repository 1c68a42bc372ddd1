package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/agentflow/core/agent"
	"github.com/agentflow/core/apierrors"
	"github.com/agentflow/core/manifest"
	"github.com/agentflow/core/progress"
	"github.com/agentflow/core/registry"
	"github.com/agentflow/core/telemetry"
)

const (
	standardProgressInstruction = "Report your own progress by including a `_progress` field " +
		"in your structured output: { step, userMessage, estimatedProgress (0-100), iconHint? }. " +
		"estimatedProgress must never decrease across successive partial outputs."

	// maxRetryAttempts and the 2^n backoff are the worker executor's own
	// retry policy (§4.6, "Retry"), independent of a Call step's retry
	// policy (§4.2 step 5) or the durable step layer's memoized retry
	// (§4.5).
	maxRetryAttempts = 3
)

type (
	// Executor runs one LLM-driven agent to produce structured output
	// (§4.6). It depends explicitly on every collaborator it needs rather
	// than reaching for globals, matching the rest of the engine (§9,
	// "Global state").
	Executor struct {
		Manifests   *manifest.Cache
		Registry    *registry.Registry
		Client      Client
		ToolServer  ToolServer
		Credentials CredentialSource
		Models      ModelResolver
		// PathResolver maps an agent id to its manifest directory. It is
		// consulted when aggregating a manager's child skills (§4.7) and
		// by the orchestration executor when dispatching a Call step to a
		// sub-agent (§4.8).
		PathResolver func(id agent.Ident) (string, error)
		Logger       telemetry.Logger
		Metrics      telemetry.Metrics
		Tracer       telemetry.Tracer
	}

	// Request describes one worker invocation (§4.6, "Inputs").
	Request struct {
		AgentID agent.Ident
		// BasePath is the agent's manifest directory.
		BasePath string
		Input    any
		// UserIdentity optionally scopes credentials/tool access.
		UserIdentity string
		// StepPrefix namespaces progress chunk step ids (§4.10 uses
		// "<childAgentId>:").
		StepPrefix string
		// Range is this worker's assigned global-progress range. The zero
		// Range{} means the worker is standalone (not inside a workflow),
		// so it publishes progress unmapped and may reach 100 (§4.4).
		Range      progress.Range
		InWorkflow bool

		Writer progress.Writer
	}

	// Output is the worker executor's result (§4.6 step 9).
	Output struct {
		Output any
		Usage  TokenUsage
	}
)

// Execute runs Request end to end: load manifest, build prompt, load
// tools, resolve model, run the tool loop, extract progress, and return
// the structured output. Non-fatal failures are retried with 2^n backoff
// up to maxRetryAttempts; fatal failures (§4.6, "Fatal conditions") are
// never retried.
func (e *Executor) Execute(ctx context.Context, req Request) (Output, error) {
	var lastErr error
	for attempt := 1; attempt <= maxRetryAttempts; attempt++ {
		out, err := e.attempt(ctx, req)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if apierrors.IsFatal(err) || !apierrors.IsRetryable(err) {
			return Output{}, err
		}
		if attempt < maxRetryAttempts {
			select {
			case <-time.After(time.Duration(math.Pow(2, float64(attempt))) * time.Second):
			case <-ctx.Done():
				return Output{}, ctx.Err()
			}
		}
	}
	return Output{}, lastErr
}

// obs builds the span-plus-counter observability wrapper around the
// executor's own Logger/Metrics/Tracer fields (defaulting any unset field to
// its no-op implementation), so attempt's span and success/error counters
// are exercised through whichever telemetry backend a caller wires in (§9,
// "ambient stack").
func (e *Executor) obs() *telemetry.Observability {
	return telemetry.NewObservability(e.Logger, e.Metrics, e.Tracer)
}

func (e *Executor) attempt(ctx context.Context, req Request) (out Output, err error) {
	tags := []string{"agent", string(req.AgentID)}
	err = e.obs().Observe(ctx, "worker", "attempt", tags, func(ctx context.Context) error {
		var attemptErr error
		out, attemptErr = e.runAttempt(ctx, req)
		return attemptErr
	})
	return out, err
}

func (e *Executor) runAttempt(ctx context.Context, req Request) (Output, error) {
	m, err := e.Manifests.Load(req.BasePath)
	if err != nil {
		return Output{}, apierrors.Fatal(fmt.Sprintf("loading manifest for %s", req.AgentID), err)
	}
	if err := m.ResolveSchemas(e.Registry); err != nil {
		return Output{}, apierrors.Fatal("resolving manifest schemas", err)
	}

	prompt, err := e.buildSystemPrompt(m)
	if err != nil {
		return Output{}, apierrors.Fatal("building system prompt", err)
	}

	tools := e.loadTools(ctx, m)

	resolved, err := e.Models.Resolve(ManifestConfig{
		Tier:        string(m.Config.Tier),
		Model:       m.Config.Model,
		Provider:    m.Config.Provider,
		Temperature: m.Config.Temperature,
		MaxTokens:   m.Config.MaxTokens,
		TimeoutMs:   m.Config.TimeoutMs,
	})
	if err != nil {
		return Output{}, apierrors.Fatal("resolving model configuration", err)
	}
	if !e.Credentials.IsOAuthProvider(resolved.Provider) && !e.Credentials.HasCredential(resolved.Provider) {
		return Output{}, apierrors.Fatal(fmt.Sprintf("no credentials for provider %q", resolved.Provider), nil)
	}

	maxSteps := m.Config.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 10
	}

	run, err := e.Client.Run(ctx, RunRequest{
		SystemPrompt:    prompt,
		Input:           req.Input,
		OutputSchemaRef: m.OutputRef,
		Tools:           tools,
		Model:           resolved,
		MaxToolCalls:    maxSteps,
	})
	if err != nil {
		return Output{}, apierrors.Retryable("starting model run", err)
	}
	defer run.Close()

	progressCap := progress.WorkerCap
	if !req.InWorkflow {
		progressCap = 100
	}
	stepID := req.StepPrefix + string(req.AgentID)

	writer := req.Writer
	if writer == nil {
		writer = progress.Discard
	}
	dedup := progress.NewDedupWriter(writer)
	e.drainProgress(ctx, run, dedup, stepID, req.Range, progressCap)

	output, usage, err := run.Wait(ctx)
	if err != nil {
		return Output{}, apierrors.Retryable("awaiting model output", err)
	}
	if output == nil {
		return Output{}, apierrors.Fatal("structured output was never produced", nil)
	}

	if usage.TotalTokens == 0 && !usage.Estimated {
		usage = e.estimateUsage(prompt, req.Input, output)
	}

	final := progress.Chunk{
		Type:              progress.TypeProgress,
		Step:              stepID,
		EstimatedProgress: completionValue(req.Range, req.InWorkflow),
		IconHint:          progress.IconDone,
	}
	_ = dedup.Write(ctx, final)

	return Output{Output: output, Usage: usage}, nil
}

func completionValue(r progress.Range, inWorkflow bool) int {
	if !inWorkflow {
		return 100
	}
	return r.Map(progress.WorkerCap)
}

// drainProgress concurrently drains the partial-output and tool-event
// streams from run, emitting range-mapped, de-duplicated progress chunks
// on w until both streams end (§4.6 step 6). It returns once both streams
// are drained; callers still must call run.Wait for the final output.
func (e *Executor) drainProgress(ctx context.Context, run Run, w progress.Writer, stepID string, r progress.Range, progressCap int) {
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		sawAIProgess bool
		lastLocal    int
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		for {
			p, err := run.PartialOutputs().Recv()
			if err != nil {
				if err != io.EOF && e.Logger != nil {
					e.Logger.Debug(ctx, "partial output stream ended with error", "err", err)
				}
				return
			}
			if p.Progress == nil {
				continue
			}
			local := p.Progress.EstimatedProgress
			if local > progressCap {
				local = progressCap
			}
			mu.Lock()
			sawAIProgess = true
			if local > lastLocal {
				lastLocal = local
			}
			mu.Unlock()

			mapped := mappedProgress(r, local)
			_ = w.Write(ctx, progress.Chunk{
				Type:              progress.TypeProgress,
				Step:              stepID,
				UserMessage:       p.Progress.UserMessage,
				EstimatedProgress: mapped,
				IconHint:          progress.IconHint(p.Progress.IconHint),
			})
		}
	}()

	go func() {
		defer wg.Done()
		for {
			t, err := run.ToolEvents().Recv()
			if err != nil {
				if err != io.EOF && e.Logger != nil {
					e.Logger.Debug(ctx, "tool event stream ended with error", "err", err)
				}
				return
			}

			mu.Lock()
			hadAIProgress := sawAIProgess
			var local int
			if !hadAIProgress {
				local = lastLocal + 10
				if local > 80 {
					local = 80
				}
				lastLocal = local
			}
			mu.Unlock()
			if hadAIProgress {
				continue
			}

			mapped := mappedProgress(r, local)
			_ = w.Write(ctx, progress.Chunk{
				Type:              progress.TypeProgress,
				Step:              stepID,
				UserMessage:       fmt.Sprintf("Calling tool %s", t.ToolName),
				EstimatedProgress: mapped,
				IconHint:          progress.IconTool,
				ToolName:          t.ToolName,
				AdminDetails:      boundsAdminDetails(t.Bounds),
			})
		}
	}()

	wg.Wait()
}

// boundsAdminDetails renders a truncated tool result's bounds as an
// operator-facing note. Returns "" when b is nil or the result was not
// truncated, so AdminDetails stays empty on the common path.
func boundsAdminDetails(b *agent.Bounds) string {
	if b == nil || !b.Truncated {
		return ""
	}
	total := "unknown"
	if b.Total != nil {
		total = fmt.Sprintf("%d", *b.Total)
	}
	detail := fmt.Sprintf("tool result truncated: returned %d of %s", b.Returned, total)
	if b.RefinementHint != "" {
		detail += "; " + b.RefinementHint
	}
	return detail
}

func mappedProgress(r progress.Range, local int) int {
	if r == (progress.Range{}) {
		return local
	}
	return r.Map(local)
}

// estimateUsage approximates token usage as ceil((|system| + |user| +
// |jsonified-output|) / 4) when the provider reported none (§4.6 step 7).
func (e *Executor) estimateUsage(systemPrompt string, input, output any) TokenUsage {
	total := len(systemPrompt) + approxLen(input) + approxLen(output)
	tokens := int(math.Ceil(float64(total) / 4))
	return TokenUsage{TotalTokens: tokens, Estimated: true}
}

// approxLen measures v the way §4.6 step 7 specifies: a bare string counts
// by its own length, anything else is JSON-serialized first so the estimate
// reflects the wire shape the provider actually sees/returns rather than
// Go's default %v rendering (which omits quotes/uses map[...] delimiters and
// would under- or over-count relative to JSON).
func approxLen(v any) int {
	if s, ok := v.(string); ok {
		return len(s)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return len(fmt.Sprintf("%v", v))
	}
	return len(b)
}
