// Package apierrors defines the error taxonomy used throughout the
// orchestration engine (workflow parser, template resolver, durable step
// layer, worker executor, orchestration executor): validation, fatal,
// retryable, and step-policy failures, per the classification in the
// engine's error handling design.
package apierrors

import (
	"errors"
	"fmt"
)

// Kind classifies an engine failure into one of the categories the durable
// step layer and orchestration executor use to decide whether to retry,
// abort, or continue past a failure.
type Kind string

const (
	// KindValidation reports that an input or output value failed its schema.
	// Never retried.
	KindValidation Kind = "validation"

	// KindFatal reports a violated precondition: a missing schema, an
	// unknown transform id, missing model credentials, a structured output
	// that was never produced, or a nested manager failure. Never retried;
	// aborts the enclosing unit.
	KindFatal Kind = "fatal"

	// KindRetryable reports a transient failure: provider overload,
	// timeouts, connection resets, rate limiting. Retried by the durable
	// step layer with exponential backoff up to the step's retry limit.
	KindRetryable Kind = "retryable"

	// KindStepPolicy reports that a Call step exhausted its retries; the
	// step's onFailure policy determines whether this aborts the run or is
	// absorbed with a fallback value.
	KindStepPolicy Kind = "step_policy"

	// KindUnknown reports an unclassified failure, treated as
	// non-recoverable.
	KindUnknown Kind = "unknown"
)

// Error is a structured engine failure. It is intended to cross package
// boundaries so the workflow entry point and progress stream can surface
// stable, structured information (code, retryability) to callers without
// string-sniffing error messages.
type Error struct {
	kind      Kind
	code      string
	message   string
	retryable bool
	cause     error
}

// New constructs an Error of the given kind. code is a short machine-stable
// identifier such as "VALIDATION_ERROR" or "FATAL_ERROR" (see §7 of the
// engine's error handling design). cause may be nil but is recommended to
// preserve the original error chain.
func New(kind Kind, code, message string, cause error) *Error {
	if kind == "" {
		panic("apierrors: kind is required")
	}
	return &Error{
		kind:      kind,
		code:      code,
		message:   message,
		retryable: kind == KindRetryable,
		cause:     cause,
	}
}

// Validation constructs a non-retryable validation error.
func Validation(message string, cause error) *Error {
	return New(KindValidation, "VALIDATION_ERROR", message, cause)
}

// Fatal constructs a non-retryable fatal error.
func Fatal(message string, cause error) *Error {
	return New(KindFatal, "FATAL_ERROR", message, cause)
}

// Retryable constructs a retryable error.
func Retryable(message string, cause error) *Error {
	return New(KindRetryable, "RETRYABLE_ERROR", message, cause)
}

// StepPolicy constructs a step-policy failure raised after a Call step
// exhausts its retries with onFailure=abort.
func StepPolicy(message string, cause error) *Error {
	return New(KindStepPolicy, "STEP_POLICY_FAILURE", message, cause)
}

// Kind returns the coarse-grained failure classification.
func (e *Error) Kind() Kind { return e.kind }

// Code returns the machine-stable error code.
func (e *Error) Code() string { return e.code }

// Retryable reports whether the durable step layer may retry the operation
// that produced this error.
func (e *Error) Retryable() bool { return e.retryable }

func (e *Error) Error() string {
	msg := e.message
	if msg == "" && e.cause != nil {
		msg = e.cause.Error()
	}
	if msg == "" {
		msg = string(e.kind)
	}
	if e.code != "" {
		return fmt.Sprintf("%s: %s", e.code, msg)
	}
	return msg
}

// Unwrap returns the underlying cause to preserve the original error chain.
func (e *Error) Unwrap() error { return e.cause }

// As returns the first *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable reports whether err (or any error in its chain) is classified
// as retryable. Errors that are not *Error are treated as non-retryable
// ("Unknown error" in §7 is classified as non-recoverable).
func IsRetryable(err error) bool {
	e, ok := As(err)
	return ok && e.Retryable()
}

// IsFatal reports whether err (or any error in its chain) is classified as
// fatal.
func IsFatal(err error) bool {
	e, ok := As(err)
	return ok && e.kind == KindFatal
}
