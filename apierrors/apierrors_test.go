package apierrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors_ClassifyCorrectly(t *testing.T) {
	cause := errors.New("boom")

	v := Validation("bad input", cause)
	assert.Equal(t, KindValidation, v.Kind())
	assert.Equal(t, "VALIDATION_ERROR", v.Code())
	assert.False(t, v.Retryable())

	f := Fatal("missing schema", nil)
	assert.Equal(t, KindFatal, f.Kind())
	assert.False(t, f.Retryable())

	r := Retryable("provider overloaded", cause)
	assert.Equal(t, KindRetryable, r.Kind())
	assert.True(t, r.Retryable())

	sp := StepPolicy("retries exhausted", nil)
	assert.Equal(t, KindStepPolicy, sp.Kind())
	assert.False(t, sp.Retryable())
}

func TestError_MessageFallsBackToCauseThenKind(t *testing.T) {
	cause := errors.New("root cause")
	withMessage := New(KindFatal, "FATAL_ERROR", "explicit", cause)
	assert.Equal(t, "FATAL_ERROR: explicit", withMessage.Error())

	withoutMessage := New(KindFatal, "FATAL_ERROR", "", cause)
	assert.Equal(t, "FATAL_ERROR: root cause", withoutMessage.Error())

	bare := New(KindUnknown, "", "", nil)
	assert.Equal(t, "unknown", bare.Error())
}

func TestError_UnwrapPreservesCauseChain(t *testing.T) {
	cause := errors.New("root cause")
	err := Fatal("wrapped", cause)
	assert.Same(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, cause))
}

func TestAs_FindsErrorInWrappedChain(t *testing.T) {
	original := Retryable("timeout", nil)
	wrapped := fmt.Errorf("context: %w", original)

	got, ok := As(wrapped)
	require.True(t, ok)
	assert.Same(t, original, got)
}

func TestAs_FalseForUnrelatedError(t *testing.T) {
	_, ok := As(errors.New("plain"))
	assert.False(t, ok)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Retryable("x", nil)))
	assert.False(t, IsRetryable(Fatal("x", nil)))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(Fatal("x", nil)))
	assert.False(t, IsFatal(Retryable("x", nil)))
	assert.False(t, IsFatal(errors.New("plain")))
}

func TestNew_PanicsWithoutKind(t *testing.T) {
	assert.Panics(t, func() {
		New("", "CODE", "message", nil)
	})
}
