// Package types holds the data model shared by the schedulers, gateways,
// worker, and search strategies: tasks, results, worker records, and the
// declaration/analysis model used by proof analysis.
package types

import "fmt"

// ErrorKind classifies a failure the way the control plane reasons about it,
// not the way the transport reported it. Search strategies branch on Kind,
// not on HTTP status codes or error strings.
type ErrorKind string

const (
	// ErrTransport covers an unreachable gateway or upstream: connection
	// refused, DNS failure, or a non-2xx response with no structured body.
	ErrTransport ErrorKind = "transport"
	// ErrProtocol covers malformed JSON, a missing required field, or an
	// invalid restart token. Never retried.
	ErrProtocol ErrorKind = "protocol"
	// ErrSemanticFailure marks a compilation result with non-empty errors.
	// It is a valid negative result, not a fault.
	ErrSemanticFailure ErrorKind = "semantic_failure"
	// ErrVerificationFailure marks an incomplete isolated lemma
	// verification.
	ErrVerificationFailure ErrorKind = "verification_failure"
	// ErrChildProcessFailure covers a REPL crash, timeout, or non-JSON
	// reply from a compilation child process.
	ErrChildProcessFailure ErrorKind = "child_process_failure"
	// ErrOutputRejection marks LLM output rejected by the output-
	// normalization heuristics (apply?, exact?, admit, new axiom).
	ErrOutputRejection ErrorKind = "output_rejection"
)

// Error is a structured error carrying the kind, an HTTP-status-equivalent,
// and whether the caller should spend a retry/revision budget on it.
type Error struct {
	Kind       ErrorKind
	Message    string
	HTTPStatus int
	Retryable  bool
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an Error of the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WithCause attaches the underlying cause and returns the receiver.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP-equivalent status and returns the receiver.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks whether a caller should retry and returns the
// receiver.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable reports whether err is a *Error marked retryable.
func IsRetryable(err error) bool {
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
		return e.Retryable
	}
	return false
}

// KindOf extracts the ErrorKind from err, or "" if err is not a *Error.
func KindOf(err error) ErrorKind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return ""
}
