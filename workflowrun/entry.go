// Package workflowrun implements the workflow entry point (§4.9): the single
// place that decides whether an agent runs in worker mode or manager mode,
// reserves the global progress ranges a manager's steps divide up, drives
// the orchestration executor through a manager's step graph, and produces
// the final synthesized (or extracted) output. It also implements the
// nested-manager bridge (§4.10) that lets a Call step target a sub-agent
// that is itself a manager.
//
// workflowrun sits one layer above orchestrator and worker: it owns the
// run-level concerns (progress-range reservation, synthesis, the
// success/failure result shape) that a single step dispatch or a single LLM
// invocation has no business knowing about.
package workflowrun

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agentflow/core/agent"
	"github.com/agentflow/core/apierrors"
	"github.com/agentflow/core/manifest"
	"github.com/agentflow/core/orchestrator"
	"github.com/agentflow/core/progress"
	"github.com/agentflow/core/runlog"
	"github.com/agentflow/core/stream"
	"github.com/agentflow/core/telemetry"
	"github.com/agentflow/core/template"
	"github.com/agentflow/core/worker"
)

// initRange, synthRange and the completion boundary are the fixed global
// progress reservation a manager run divides up (§4.9 step 3):
// [0,10] initialization, [10,90] split evenly across the top-level steps,
// [90,98] synthesis, [98,100] completion.
var (
	initRange  = progress.Range{Start: 0, End: 10}
	synthRange = progress.Range{Start: 90, End: 98}
)

type (
	// Runner is the workflow entry point. One Runner is shared across runs;
	// it depends explicitly on its collaborators rather than reaching for
	// globals (§9, "Global state").
	Runner struct {
		Manifests    *manifest.Cache
		Workers      *worker.Executor
		Orchestrator *orchestrator.Executor
		// RunLog is optional. When set, every chunk a run emits is also
		// appended there (§4.4), making the run log the canonical history
		// independent of whether a caller stayed subscribed to the stream.
		RunLog runlog.Store
		Logger telemetry.Logger
	}

	// RunInput describes one workflow run invocation, worker or manager.
	RunInput struct {
		AgentID agent.Ident
		// BasePath is the agent's manifest directory.
		BasePath string
		Input    any
		// UserIdentity optionally scopes credentials/tool access.
		UserIdentity string
		// RunID identifies this run for run-log correlation. Callers that
		// do not care about run-log history may leave it empty.
		RunID string
		// Writer is the stream this run publishes progress chunks to. A nil
		// Writer discards every chunk.
		Writer progress.Writer
	}

	// ResultError is the stable, serializable shape of a run failure (§7).
	ResultError struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}

	// Meta carries run-level bookkeeping alongside a Result (§7).
	Meta struct {
		DurationMs int64 `json:"durationMs"`
		TokensUsed int   `json:"tokensUsed"`
		// CostUSD is always zero: pricing tables are an external
		// collaborator's concern, out of scope for this engine (§1).
		CostUSD float64 `json:"costUSD"`
	}

	// Result is the workflow entry point's terminal outcome (§4.9, §7):
	// either a successful output plus usage, or a structured failure.
	Result struct {
		Success bool         `json:"success"`
		Output  any          `json:"output,omitempty"`
		Error   *ResultError `json:"error,omitempty"`
		Meta    Meta         `json:"meta"`
	}
)

// Run executes one agent invocation end to end (§4.9). For a worker
// manifest it delegates directly to the worker executor. For a manager
// manifest it drives the manager's step graph through the orchestration
// executor, reserving and subdividing the global progress range as it goes,
// then either extracts the configured output artifact (skipSynthesis) or
// invokes the worker executor once more over the accumulated artifacts to
// synthesize the final output.
//
// Run always returns a non-nil *Result, even on failure: a failed run's
// Result.Success is false and Result.Error carries the stable
// code/message pair callers can surface without string-sniffing the
// returned error. The returned error is the same failure, for callers that
// want Go-idiomatic error handling (logging, errors.Is/As) instead of
// inspecting Result.
func (r *Runner) Run(ctx context.Context, req RunInput) (*Result, error) {
	start := time.Now()

	w := req.Writer
	if w == nil {
		w = progress.Discard
	}
	if r.RunLog != nil && req.RunID != "" {
		w = stream.NewRunLogTee(w, r.RunLog, req.RunID, req.AgentID, nil)
	}
	dedup := progress.NewDedupWriter(w)

	m, err := r.Manifests.Load(req.BasePath)
	if err != nil {
		return r.fail(ctx, dedup, start, apierrors.Fatal(fmt.Sprintf("loading manifest for %s", req.AgentID), err))
	}

	if !m.IsManager() {
		return r.runWorker(ctx, dedup, start, req)
	}
	return r.runManager(ctx, dedup, start, req, m)
}

// runWorker executes a worker manifest directly: no step graph to
// subdivide, so the worker executor owns the entire [0,100] progress space
// itself (§2, "worker mode").
func (r *Runner) runWorker(ctx context.Context, w progress.Writer, start time.Time, req RunInput) (*Result, error) {
	out, err := r.Workers.Execute(ctx, worker.Request{
		AgentID:      req.AgentID,
		BasePath:     req.BasePath,
		Input:        req.Input,
		UserIdentity: req.UserIdentity,
		InWorkflow:   false,
		Writer:       w,
	})
	if err != nil {
		return r.fail(ctx, w, start, err)
	}

	_ = w.Write(ctx, progress.Chunk{Type: progress.TypeFinish, Step: string(req.AgentID)})
	_ = w.Close(ctx)

	return &Result{
		Success: true,
		Output:  out.Output,
		Meta:    Meta{DurationMs: time.Since(start).Milliseconds(), TokensUsed: out.Usage.TotalTokens},
	}, nil
}

// runManager drives a manager's step graph to completion (§4.9 steps
// 2-8).
func (r *Runner) runManager(ctx context.Context, w progress.Writer, start time.Time, req RunInput, m *manifest.Manifest) (*Result, error) {
	tctx := &template.Context{
		Input:     req.Input,
		Artifacts: map[string]any{"input": req.Input},
	}

	_ = w.Write(ctx, progress.Chunk{
		Type:              progress.TypeProgress,
		Step:              string(req.AgentID),
		UserMessage:       fmt.Sprintf("Starting %s", req.AgentID),
		EstimatedProgress: initRange.End,
		IconHint:          progress.IconThinking,
	})

	steps := m.Workflow.Steps
	n := len(steps)
	for i, step := range steps {
		stepRange := stepGlobalRange(i, n)
		_ = w.Write(ctx, progress.Chunk{
			Type:              progress.TypeProgress,
			Step:              step.Name,
			UserMessage:       orchestrator.StepUserMessage(step),
			EstimatedProgress: stepRange.Start,
			IconHint:          progress.IconThinking,
		})

		env := orchestrator.StepEnvelope{Writer: w, Range: stepRange}
		if err := r.Orchestrator.RunStep(ctx, step, tctx, env); err != nil {
			return r.fail(ctx, w, start, err)
		}
	}

	output, tokens, err := r.finalize(ctx, w, req, m, tctx)
	if err != nil {
		return r.fail(ctx, w, start, err)
	}

	_ = w.Write(ctx, progress.Chunk{
		Type:              progress.TypeProgress,
		Step:              string(req.AgentID),
		EstimatedProgress: 100,
		IconHint:          progress.IconDone,
	})
	_ = w.Write(ctx, progress.Chunk{Type: progress.TypeFinish, Step: string(req.AgentID)})
	_ = w.Close(ctx)

	return &Result{
		Success: true,
		Output:  output,
		Meta:    Meta{DurationMs: time.Since(start).Milliseconds(), TokensUsed: tokens},
	}, nil
}

// finalize produces the manager's final output: either extracted from
// artifacts (skipSynthesis) or synthesized by one more worker invocation
// (§4.9 steps 6-7).
//
// Token accounting for a manager run reports only the synthesis
// invocation's usage (zero when skipSynthesis is set): a Call step's worker
// usage is not threaded back out of orchestrator.RunStep, which returns
// only success/failure by design (§9, "Call step token accounting" —
// documented as an Open Question resolution in DESIGN.md).
func (r *Runner) finalize(ctx context.Context, w progress.Writer, req RunInput, m *manifest.Manifest, tctx *template.Context) (any, int, error) {
	if m.Config.SkipSynthesis {
		key := m.Config.OutputArtifact
		if key == "" {
			return nil, 0, apierrors.Fatal("skipSynthesis is set but no outputArtifact is configured", nil)
		}
		val := template.ResolvePath(key, *tctx)
		if s, ok := val.(string); ok && s == "undefined" {
			keys := make([]string, 0, len(tctx.Artifacts))
			for k := range tctx.Artifacts {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			return nil, 0, apierrors.Fatal(
				fmt.Sprintf("output artifact %q not found; available artifacts: %s", key, strings.Join(keys, ", ")),
				nil,
			)
		}
		_ = w.Write(ctx, progress.Chunk{
			Type:              progress.TypeProgress,
			Step:              string(req.AgentID),
			UserMessage:       "Finalizing",
			EstimatedProgress: synthRange.End,
			IconHint:          progress.IconDone,
		})
		return val, 0, nil
	}

	out, err := r.Workers.Execute(ctx, worker.Request{
		AgentID:      req.AgentID,
		BasePath:     req.BasePath,
		Input:        tctx.Artifacts,
		UserIdentity: req.UserIdentity,
		StepPrefix:   "synthesis:",
		Range:        synthRange,
		InWorkflow:   true,
		Writer:       w,
	})
	if err != nil {
		return nil, 0, err
	}
	return out.Output, out.Usage.TotalTokens, nil
}

// stepGlobalRange computes the i-th of n top-level steps' slice of the
// [10,90] manager-steps band, using the canonical formula from §9:
// [10 + i*80/n, 10 + (i+1)*80/n].
func stepGlobalRange(i, n int) progress.Range {
	const bandStart, bandWidth = 10, 80
	return progress.Range{
		Start: bandStart + i*bandWidth/n,
		End:   bandStart + (i+1)*bandWidth/n,
	}
}

// fail emits an error chunk, closes the stream, and returns the failed
// Result alongside the originating error (§7).
func (r *Runner) fail(ctx context.Context, w progress.Writer, start time.Time, err error) (*Result, error) {
	code := "WORKFLOW_EXECUTION_FAILED"
	if ae, ok := apierrors.As(err); ok {
		code = ae.Code()
	}

	_ = w.Write(ctx, progress.Chunk{
		Type:    progress.TypeError,
		Step:    "run",
		Code:    code,
		Message: err.Error(),
	})
	_ = w.Close(ctx)

	if r.Logger != nil {
		r.Logger.Error(ctx, "workflow run failed", "code", code, "err", err)
	}

	return &Result{
		Success: false,
		Error:   &ResultError{Code: code, Message: err.Error()},
		Meta:    Meta{DurationMs: time.Since(start).Milliseconds()},
	}, err
}
