package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorKind classifies a provider failure for the resilience layers.
// Every error that crosses a provider boundary carries exactly one kind.
type ErrorKind string

const (
	// KindTransient covers timeouts, connection failures and 5xx responses.
	// Retrying is expected to help.
	KindTransient ErrorKind = "transient"

	// KindRateLimited means the provider returned 429. Retryable, but with
	// a longer backoff than plain transient failures.
	KindRateLimited ErrorKind = "rate_limited"

	// KindAuthFailure means credentials were rejected (401/403). Never retried.
	KindAuthFailure ErrorKind = "auth_failure"

	// KindInvalidRequest means the request itself is malformed or references
	// an unknown model (4xx). Never retried.
	KindInvalidRequest ErrorKind = "invalid_request"

	// KindCircuitOpen means the circuit breaker rejected the call without
	// reaching the provider.
	KindCircuitOpen ErrorKind = "circuit_open"

	// KindUnknown is the fallback for anything that could not be classified.
	KindUnknown ErrorKind = "unknown"
)

// Error is the structured error shared by adapters and the resilience layers.
type Error struct {
	// Kind is the taxonomy bucket used for retry/breaker decisions
	Kind ErrorKind

	// Provider that produced the error (empty for client-side errors)
	Provider string

	// StatusCode is the upstream HTTP status, if there was one
	StatusCode int

	// Message is a human-readable description
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is; two provider errors match when their kinds match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewError creates a new provider error
func NewError(kind ErrorKind, provider, message string, statusCode int, cause error) *Error {
	return &Error{
		Kind:       kind,
		Provider:   provider,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}

// KindOf returns the kind of a provider error, or KindUnknown for
// anything else (including nil wrapping mistakes upstream).
func KindOf(err error) ErrorKind {
	var provErr *Error
	if errors.As(err, &provErr) {
		return provErr.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether the retry layer may re-attempt the call.
// Only transient and rate-limited failures qualify.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindRateLimited:
		return true
	}
	return false
}

// IsTransient checks if an error is a transient provider failure
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

// IsRateLimited checks if an error is a provider rate limit
func IsRateLimited(err error) bool {
	return KindOf(err) == KindRateLimited
}

// IsAuthFailure checks if an error is an authentication failure
func IsAuthFailure(err error) bool {
	return KindOf(err) == KindAuthFailure
}

// IsInvalidRequest checks if an error is a malformed or unsupported request
func IsInvalidRequest(err error) bool {
	return KindOf(err) == KindInvalidRequest
}

// IsCircuitOpen checks if an error is a circuit breaker rejection
func IsCircuitOpen(err error) bool {
	return KindOf(err) == KindCircuitOpen
}

// ClassifyStatusCode maps an upstream HTTP status to an error kind.
func ClassifyStatusCode(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuthFailure
	case status == http.StatusRequestTimeout:
		return KindTransient
	case status >= 500:
		return KindTransient
	case status == http.StatusBadRequest,
		status == http.StatusNotFound,
		status == http.StatusRequestEntityTooLarge,
		status == http.StatusUnprocessableEntity:
		return KindInvalidRequest
	case status >= 400:
		return KindUnknown
	default:
		return KindUnknown
	}
}

// ClassifyTransportError maps a transport-level failure (the request never
// produced an HTTP status) to an error kind. Timeouts, cancellations and
// connection errors are all transient from the caller's point of view.
func ClassifyTransportError(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient
	}
	// url.Error wraps dial failures without a typed cause we can assert on
	msg := err.Error()
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "EOF") {
		return KindTransient
	}
	return KindUnknown
}
