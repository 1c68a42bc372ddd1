// Package stream provides the public wire adapter for a workflow run's
// progress stream (§6, "Progress wire format"): each progress.Chunk is
// framed as a Server-Sent Event, with a terminating `data: [DONE]\n\n`
// event once the stream closes.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/agentflow/core/progress"
)

// HeaderRunID and HeaderExecutionID are the response headers a public SSE
// endpoint sets before writing any event (§6, "Progress wire format").
const (
	HeaderRunID       = "x-workflow-run-id"
	HeaderExecutionID = "x-execution-id"
)

// SSEWriter adapts an http.ResponseWriter (or any io.Writer paired with a
// Flusher) into a progress.Writer that frames each chunk as a Server-Sent
// Event. It is the outermost layer a caller wraps around a
// progress.DedupWriter: durable steps write chunks through the dedup
// writer, which forwards surviving chunks here for wire framing.
type SSEWriter struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	closed  bool
}

// NewSSEWriter constructs an SSEWriter over w, setting the run-correlation
// headers on header before the first byte is written. If w also implements
// http.Flusher, each event is flushed immediately so chunks reach the
// client without buffering delay.
func NewSSEWriter(w io.Writer, header http.Header, runID, executionID string) *SSEWriter {
	if header != nil {
		header.Set(HeaderRunID, runID)
		header.Set(HeaderExecutionID, executionID)
	}
	sw := &SSEWriter{w: w}
	if f, ok := w.(http.Flusher); ok {
		sw.flusher = f
	}
	return sw
}

// Write frames c as a single SSE `data:` event. It never returns a
// classified engine error; I/O failures are returned as-is so the caller's
// durable write-progress step can classify them (typically retryable).
func (s *SSEWriter) Write(_ context.Context, c progress.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream: write after close")
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("stream: marshaling chunk: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", raw); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// Close writes the terminating `data: [DONE]\n\n` event. It is idempotent:
// a second call is a no-op.
func (s *SSEWriter) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if _, err := io.WriteString(s.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}
