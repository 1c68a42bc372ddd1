// Package toolerrors gives tool invocation failures a structured shape that
// survives the worker executor's tool loop and any retry around it, so a
// caller can distinguish "the tool ran and reported a failure" from "the
// tool could not be invoked at all" without string-matching error text.
package toolerrors

import (
	"errors"
	"fmt"
)

// Error is a tool invocation failure, carrying the tool that raised it and
// wrapping the underlying cause so errors.Is/errors.As still see through
// it.
type Error struct {
	Tool    string
	Message string
	cause   error
}

// New constructs a tool Error for tool, wrapping cause. message may be
// empty, in which case cause's message is used.
func New(tool, message string, cause error) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{Tool: tool, Message: message, cause: cause}
}

// Errorf constructs a tool Error for tool from a format string, with no
// wrapped cause.
func Errorf(tool, format string, args ...any) *Error {
	return New(tool, fmt.Sprintf(format, args...), nil)
}

func (e *Error) Error() string {
	if e.Tool == "" {
		return e.Message
	}
	return fmt.Sprintf("tool %s: %s", e.Tool, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// As returns the first *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
