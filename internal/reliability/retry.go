package reliability

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryConfig configures the bounded exponential-backoff retry loop
// described in §4.1. Grounded on the teacher's internal/exchange/retry.go
// RetryConfig, extended with RetryableStatusCodes and a name used for
// logging.
type RetryConfig struct {
	Name             string
	MaxRetries       int
	InitialDelay     time.Duration
	BackoffFactor    float64
	MaxDelay         time.Duration
	RetryableErrors  []string // additional substrings to treat as retryable
	RetryableStatus  []int    // HTTP-like status codes that are retryable
}

// DefaultRetryConfig mirrors the teacher's defaults.
func DefaultRetryConfig(name string) RetryConfig {
	return RetryConfig{
		Name:            name,
		MaxRetries:      3,
		InitialDelay:    500 * time.Millisecond,
		BackoffFactor:   2.0,
		MaxDelay:        10 * time.Second,
		RetryableStatus: []int{429, 500, 502, 503, 504},
	}
}

// Operation is a blocking external call subject to retry.
type Operation func(ctx context.Context) error

// Retry invokes op, retrying on retryable errors with exponential backoff
// up to cfg.MaxRetries additional attempts. On a 429 carrying a
// Retry-After value (via RetryableStatus), that delay is honored instead
// of the exponential schedule. Non-retryable errors short-circuit
// immediately. Final failure returns ErrRetriesExhausted wrapping the
// last error.
func Retry(ctx context.Context, cfg RetryConfig, op Operation) error {
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if !isRetryable(lastErr, cfg) {
			log.Debug().Str("operation", cfg.Name).Err(lastErr).Msg("non-retryable error, short-circuiting")
			return lastErr
		}

		if attempt == cfg.MaxRetries {
			break
		}

		wait := delay
		if status, ok := lastErr.(RetryableStatus); ok {
			if secs, has := status.RetryAfterSeconds(); has && status.StatusCode() == 429 {
				wait = time.Duration(secs) * time.Second
			}
		}

		log.Warn().
			Str("operation", cfg.Name).
			Int("attempt", attempt+1).
			Int("max_retries", cfg.MaxRetries).
			Dur("wait", wait).
			Err(lastErr).
			Msg("retrying after failure")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	log.Error().Str("operation", cfg.Name).Int("attempts", cfg.MaxRetries+1).Err(lastErr).Msg("retries exhausted")
	return &retriesExhaustedError{cause: lastErr}
}

type retriesExhaustedError struct {
	cause error
}

func (e *retriesExhaustedError) Error() string { return "retries exhausted: " + e.cause.Error() }
func (e *retriesExhaustedError) Unwrap() error { return e.cause }
func (e *retriesExhaustedError) Is(target error) bool { return target == ErrRetriesExhausted }

func isRetryable(err error, cfg RetryConfig) bool {
	if err == nil {
		return false
	}

	var status RetryableStatus
	if errors.As(err, &status) {
		code := status.StatusCode()
		for _, c := range cfg.RetryableStatus {
			if c == code {
				return true
			}
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, substr := range append([]string{
		"timeout", "connection reset", "connection refused", "broken pipe",
		"temporary failure", "i/o timeout", "eof",
	}, cfg.RetryableErrors...) {
		if strings.Contains(msg, strings.ToLower(substr)) {
			return true
		}
	}

	return false
}

// Fallback catches any failure from op and substitutes the result of
// calling onFailure instead (§4.1's fallback(f, default)).
func Fallback[T any](op func() (T, error), onFailure func() T) T {
	result, err := op()
	if err != nil {
		return onFailure()
	}
	return result
}
