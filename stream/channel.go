package stream

import (
	"context"

	"github.com/agentflow/core/progress"
)

// ChannelWriter is a progress.Writer backed by a buffered Go channel,
// useful for tests and for in-process readers that consume a workflow run's
// progress without an HTTP transport (for example the nested-manager
// bridge, §4.10, which reads a child run's chunks directly).
type ChannelWriter struct {
	ch     chan progress.Chunk
	closed chan struct{}
}

// NewChannelWriter constructs a ChannelWriter with the given channel
// buffer size.
func NewChannelWriter(buffer int) *ChannelWriter {
	return &ChannelWriter{
		ch:     make(chan progress.Chunk, buffer),
		closed: make(chan struct{}),
	}
}

// Chunks returns the channel chunks are delivered on. It is closed when
// Close is called.
func (w *ChannelWriter) Chunks() <-chan progress.Chunk { return w.ch }

func (w *ChannelWriter) Write(ctx context.Context, c progress.Chunk) error {
	select {
	case w.ch <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *ChannelWriter) Close(context.Context) error {
	select {
	case <-w.closed:
		return nil
	default:
		close(w.closed)
		close(w.ch)
	}
	return nil
}
