package reliability

import (
	"errors"
	"fmt"
)

// TransientExternalFailure wraps a retryable cause (timeout, connection
// reset, 5xx, 429) per §7's error taxonomy.
type TransientExternalFailure struct {
	Cause error
}

func (e *TransientExternalFailure) Error() string {
	return fmt.Sprintf("transient external failure: %v", e.Cause)
}

func (e *TransientExternalFailure) Unwrap() error { return e.Cause }

// ErrCircuitOpen is returned when a breaker is OPEN and a call is
// rejected without invoking the wrapped function.
var ErrCircuitOpen = errors.New("circuit breaker open")

// MalformedExternalReply is a non-retryable parse/schema failure.
type MalformedExternalReply struct {
	RawPrefix string
	Cause     error
}

func (e *MalformedExternalReply) Error() string {
	return fmt.Sprintf("malformed external reply: %v (prefix: %q)", e.Cause, e.RawPrefix)
}

func (e *MalformedExternalReply) Unwrap() error { return e.Cause }

// ErrInvalidInput marks a bad ticker or missing required field.
var ErrInvalidInput = errors.New("invalid input")

// ErrRetriesExhausted is the distinguished "exhausted" result a caller
// receives once retry has made its final attempt.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryableStatus is implemented by errors carrying an HTTP-like status
// code, so Retry can decide retryability and honor Retry-After.
type RetryableStatus interface {
	error
	StatusCode() int
	RetryAfterSeconds() (int, bool)
}

// StatusError is a minimal RetryableStatus implementation adapters can use
// to surface HTTP-shaped failures to the reliability layer.
type StatusError struct {
	Status     int
	RetryAfter int  // seconds; only meaningful if RetryAfterSet
	RetryAfterSet bool
	Message    string
}

func (e *StatusError) Error() string { return e.Message }

func (e *StatusError) StatusCode() int { return e.Status }

func (e *StatusError) RetryAfterSeconds() (int, bool) { return e.RetryAfter, e.RetryAfterSet }
