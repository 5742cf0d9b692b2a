package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_SucceedsWithoutRetryOnFirstTry(t *testing.T) {
	calls := 0
	cfg := DefaultRetryConfig("t")
	err := Retry(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_RetriesRetryableErrorThenSucceeds(t *testing.T) {
	calls := 0
	cfg := RetryConfig{Name: "t", MaxRetries: 3, InitialDelay: time.Millisecond, BackoffFactor: 2, MaxDelay: 10 * time.Millisecond}
	err := Retry(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_NonRetryableShortCircuits(t *testing.T) {
	calls := 0
	cfg := DefaultRetryConfig("t")
	err := Retry(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return errors.New("invalid ticker")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_ExhaustionReturnsRetriesExhausted(t *testing.T) {
	cfg := RetryConfig{Name: "t", MaxRetries: 2, InitialDelay: time.Millisecond, BackoffFactor: 2, MaxDelay: 5 * time.Millisecond}
	err := Retry(context.Background(), cfg, func(ctx context.Context) error {
		return errors.New("timeout exceeded")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
}

func TestRetry_HonorsRetryAfterOn429(t *testing.T) {
	calls := 0
	start := time.Now()
	cfg := RetryConfig{Name: "t", MaxRetries: 1, InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second, RetryableStatus: []int{429}}
	err := Retry(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &StatusError{Status: 429, RetryAfter: 0, RetryAfterSet: true, Message: "rate limited"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "should have honored the zero-second Retry-After instead of the 1s initial delay")
}

func TestRetry_ContextCancellationStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := DefaultRetryConfig("t")
	err := Retry(ctx, cfg, func(ctx context.Context) error {
		return errors.New("timeout")
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFallback_SubstitutesOnFailure(t *testing.T) {
	result := Fallback(func() (int, error) {
		return 0, errors.New("boom")
	}, func() int { return 42 })
	assert.Equal(t, 42, result)
}

func TestFallback_PassesThroughOnSuccess(t *testing.T) {
	result := Fallback(func() (int, error) {
		return 7, nil
	}, func() int { return 42 })
	assert.Equal(t, 7, result)
}
