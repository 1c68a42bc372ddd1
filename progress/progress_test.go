package progress

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRange_Map_Bounds(t *testing.T) {
	r := Range{Start: 10, End: 90}
	assert.Equal(t, 10, r.Map(0))
	assert.Equal(t, 90, r.Map(100))
	assert.Equal(t, 50, r.Map(50))
}

func TestRange_Map_ClampsOutOfBoundInput(t *testing.T) {
	r := Range{Start: 0, End: 100}
	assert.Equal(t, 0, r.Map(-5))
	assert.Equal(t, 100, r.Map(150))
}

func TestRange_Map_RoundHalfUp(t *testing.T) {
	// span=1, p=50 -> 0 + round(0.5) = 1 under round-half-up.
	r := Range{Start: 0, End: 1}
	assert.Equal(t, 1, r.Map(50))
}

// TestRange_Map_AlwaysWithinRange is a property test (§9, canonical
// rounding formula): for any well-formed ascending range and any p in
// [0,100], Map(p) never leaves [r.Start, r.End].
func TestRange_Map_AlwaysWithinRange(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("Map(p) stays within [Start,End] for ascending ranges", prop.ForAll(
		func(start, span, p int) bool {
			r := Range{Start: start, End: start + span}
			got := r.Map(p)
			return got >= r.Start && got <= r.End
		},
		gen.IntRange(-1000, 1000),
		gen.IntRange(0, 1000),
		gen.IntRange(-50, 150),
	))

	properties.TestingRun(t)
}

func TestDiscard_NeverErrors(t *testing.T) {
	require.NoError(t, Discard.Write(context.Background(), Chunk{Type: TypeProgress}))
	require.NoError(t, Discard.Close(context.Background()))
}

type recordingWriter struct {
	chunks []Chunk
	closed bool
}

func (w *recordingWriter) Write(_ context.Context, c Chunk) error {
	w.chunks = append(w.chunks, c)
	return nil
}

func (w *recordingWriter) Close(context.Context) error {
	w.closed = true
	return nil
}

func TestDedupWriter_SuppressesConsecutiveSameStepProgress(t *testing.T) {
	inner := &recordingWriter{}
	w := NewDedupWriter(inner)
	ctx := context.Background()

	require.NoError(t, w.Write(ctx, Chunk{Type: TypeProgress, Step: "a", EstimatedProgress: 10}))
	require.NoError(t, w.Write(ctx, Chunk{Type: TypeProgress, Step: "a", EstimatedProgress: 20}))
	require.NoError(t, w.Write(ctx, Chunk{Type: TypeProgress, Step: "b", EstimatedProgress: 30}))

	require.Len(t, inner.chunks, 2)
	assert.Equal(t, "a", inner.chunks[0].Step)
	assert.Equal(t, "b", inner.chunks[1].Step)
}

func TestDedupWriter_FinishAndErrorAlwaysPassThrough(t *testing.T) {
	inner := &recordingWriter{}
	w := NewDedupWriter(inner)
	ctx := context.Background()

	require.NoError(t, w.Write(ctx, Chunk{Type: TypeProgress, Step: "a"}))
	require.NoError(t, w.Write(ctx, Chunk{Type: TypeFinish, Step: "a"}))
	require.NoError(t, w.Write(ctx, Chunk{Type: TypeError, Step: "a"}))

	require.Len(t, inner.chunks, 3)
	assert.Equal(t, TypeFinish, inner.chunks[1].Type)
	assert.Equal(t, TypeError, inner.chunks[2].Type)
}

func TestDedupWriter_Close(t *testing.T) {
	inner := &recordingWriter{}
	w := NewDedupWriter(inner)
	require.NoError(t, w.Close(context.Background()))
	assert.True(t, inner.closed)
}
