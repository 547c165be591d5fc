// Package perr defines the error taxonomy shared across the runtime.
//
// Every error that crosses a component boundary (Session Manager, Agent
// Loop, Tool Scheduler, Stream Parser, SSE Emitter) is a *perr.Error with
// one of the seven kinds below, so callers can make a single type switch
// instead of matching error strings.
package perr

import (
	"errors"
	"fmt"
)

// Kind is one of the error taxonomy entries.
type Kind string

const (
	// Configuration covers missing API keys, invalid base URLs, unknown
	// models. Surfaced pre-stream; translates to HTTP 500.
	Configuration Kind = "configuration"
	// Validation covers empty messages, bad tool parameters, invalid
	// paths. Translates to HTTP 400 at the request level, or a failed
	// tool_complete at the tool level.
	Validation Kind = "validation"
	// RateLimit is tool-level only: the scheduler's sliding window was
	// exceeded.
	RateLimit Kind = "rate-limit"
	// Timeout is tool-level: a tool overran its effective deadline.
	Timeout Kind = "timeout"
	// Cancellation covers client disconnect or an explicit cancel. No
	// error event is emitted for this kind; the stream just ends.
	Cancellation Kind = "cancellation"
	// Upstream covers a non-2xx LLM response, malformed JSON, or a
	// truncated stream.
	Upstream Kind = "upstream"
	// Internal covers an unexpected panic or invariant violation.
	Internal Kind = "internal"
)

// Error is the single error type that crosses package boundaries.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind around an existing error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetails attaches structured details and returns the receiver for
// chaining at the construction site.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error, otherwise
// returns Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Code returns the stable wire-level code for an error's kind, used in
// the SSE `error` event's `code` field.
func (e *Error) Code() string {
	return string(e.Kind)
}
