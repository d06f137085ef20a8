package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind classifies an adapter failure. The kind, never the error's message,
// decides what the client sees.
type Kind string

const (
	// KindUpstreamFailure is a transient upstream fault: timeout, 5xx,
	// connection reset. Retryable by the caller, surfaced as 503.
	KindUpstreamFailure Kind = "upstream_failure"

	// KindContractMismatch means upstream returned data that failed local
	// shape validation. Not retryable and not the user's fault; surfaced as an
	// empty 200 and logged server-side.
	KindContractMismatch Kind = "contract_mismatch"

	// KindCancelled means the in-flight request was aborted by its own caller.
	// Nothing is wrong; surfaced as an empty 200.
	KindCancelled Kind = "cancelled"

	// KindUnknown is anything uncategorized, surfaced as 500.
	KindUnknown Kind = "unknown"
)

// Error is the typed failure adapters construct at their boundary.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s (status %d): %s: %v", e.Kind, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("upstream %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Failure builds a transient upstream failure.
func Failure(statusCode int, message string, err error) *Error {
	return &Error{Kind: KindUpstreamFailure, StatusCode: statusCode, Message: message, Err: err}
}

// Mismatch builds a contract-mismatch failure for responses that fail local
// shape validation.
func Mismatch(message string, err error) *Error {
	return &Error{Kind: KindContractMismatch, Message: message, Err: err}
}

// Classify assigns any adapter error to exactly one Kind.
//
// Typed errors constructed through this package win outright. For third-party
// error values the classifier falls back to transport checks and then message
// heuristics; the fallback errs toward ContractMismatch only for decode and
// shape wording, everything else lands in Unknown. Classify never panics and
// a nil error is Unknown.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	// Caller cancellation checked first: an aborted request often surfaces as
	// a wrapped context error deep inside a transport error chain.
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}

	var typed *Error
	if errors.As(err, &typed) {
		switch typed.Kind {
		case KindUpstreamFailure, KindContractMismatch, KindCancelled:
			return typed.Kind
		}
		return KindUnknown
	}

	// Deadline expiry without a typed wrapper is an upstream timeout.
	if errors.Is(err, context.DeadlineExceeded) {
		return KindUpstreamFailure
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindUpstreamFailure
	}

	return classifyMessage(err.Error())
}

// classifyMessage is the heuristic fallback for untyped errors.
func classifyMessage(msg string) Kind {
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "timeout"),
		strings.Contains(lower, "timed out"),
		strings.Contains(lower, "connection reset"),
		strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "eof"),
		strings.Contains(lower, "bad gateway"),
		strings.Contains(lower, "service unavailable"),
		strings.Contains(lower, "gateway timeout"):
		return KindUpstreamFailure

	case strings.Contains(lower, "unmarshal"),
		strings.Contains(lower, "cannot parse"),
		strings.Contains(lower, "invalid character"),
		strings.Contains(lower, "unexpected end of json"),
		strings.Contains(lower, "missing field"),
		strings.Contains(lower, "unexpected shape"):
		return KindContractMismatch

	default:
		return KindUnknown
	}
}
