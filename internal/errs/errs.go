// Package errs implements the investigation engine's error taxonomy, kept
// orthogonal to the concrete error values returned by tools, providers, or
// the LLM client. Every error surfaced across a component boundary is
// wrapped in one of the Kind values below so the state machine and the
// audit log can react to it uniformly.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation policy purposes.
type Kind string

const (
	// Configuration covers missing credentials or malformed config.
	// Non-fatal at startup if the affected provider is optional, fatal if
	// required.
	Configuration Kind = "configuration"

	// TransientIO covers network timeouts and 5xx responses from
	// providers. Surfaced as a tool_error event; the investigation
	// continues and may retry with different parameters.
	TransientIO Kind = "transient_io"

	// PermanentIO covers 4xx auth failures. Surfaced as a tool_error
	// event; the tool is marked at-limit for the session.
	PermanentIO Kind = "permanent_io"

	// ContractViolation covers malformed structured output from the LLM,
	// unknown hypothesis IDs, or unknown result IDs. Logged and surfaced;
	// the state machine proceeds with the current step skipped.
	ContractViolation Kind = "contract_violation"

	// Policy covers depth budget exceeded, iteration budget exceeded, or
	// approval rejected/timeout. Terminal for the affected action; the
	// state machine advances to CONCLUDE with an "insufficient evidence"
	// outcome.
	Policy Kind = "policy"

	// Cancelled is terminal: investigation state is persisted and the
	// final event is "cancelled".
	Cancelled Kind = "cancelled"
)

// Error is a classified error carrying a Kind alongside the wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs a classified error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs a classified error around an existing cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf reports the Kind of err if it (or something it wraps) is an *Error,
// and false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Recoverable reports whether local recovery (retry, skip-and-continue) is
// the preferred propagation policy for this error: transient I/O and
// contract violations recover locally, everything else is reported as a
// terminal structured event.
func Recoverable(err error) bool {
	k, ok := KindOf(err)
	if !ok {
		return false
	}
	return k == TransientIO || k == ContractViolation
}

// Terminal reports whether err should end the current action (Policy,
// Cancelled) rather than allow continued investigation.
func Terminal(err error) bool {
	k, ok := KindOf(err)
	if !ok {
		return false
	}
	return k == Policy || k == Cancelled
}
