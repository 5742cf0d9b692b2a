package reliability

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_ClosedStaysClosedOnSuccess(t *testing.T) {
	b := NewBreaker("t:closed", 3, 50*time.Millisecond)

	for i := 0; i < 10; i++ {
		_, err := b.Execute(func() (interface{}, error) { return "ok", nil })
		require.NoError(t, err)
	}

	assert.Equal(t, "closed", b.State())
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker("t:opens", 3, 50*time.Millisecond)
	failing := func() (interface{}, error) { return nil, errors.New("boom") }

	for i := 0; i < 3; i++ {
		_, err := b.Execute(failing)
		require.Error(t, err)
	}

	assert.Equal(t, "open", b.State())

	// Scenario 5: the fourth call returns CircuitOpen without invoking fn.
	called := false
	_, err := b.Execute(func() (interface{}, error) {
		called = true
		return nil, nil
	})
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreaker_RecoversAfterTimeout(t *testing.T) {
	b := NewBreaker("t:recovers", 3, 30*time.Millisecond)
	failing := func() (interface{}, error) { return nil, errors.New("boom") }

	for i := 0; i < 3; i++ {
		_, _ = b.Execute(failing)
	}
	require.Equal(t, "open", b.State())

	time.Sleep(40 * time.Millisecond)

	_, err := b.Execute(func() (interface{}, error) { return "recovered", nil })
	require.NoError(t, err)
	assert.Equal(t, "closed", b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker("t:halfopen-fail", 2, 20*time.Millisecond)
	failing := func() (interface{}, error) { return nil, errors.New("boom") }

	_, _ = b.Execute(failing)
	_, _ = b.Execute(failing)
	require.Equal(t, "open", b.State())

	time.Sleep(25 * time.Millisecond)

	_, err := b.Execute(failing)
	require.Error(t, err)
	assert.Equal(t, "open", b.State())
}

func TestRegistry_PerEndpointIsolation(t *testing.T) {
	reg := NewRegistry(2, 20*time.Millisecond)
	failing := func() (interface{}, error) { return nil, errors.New("boom") }

	a := reg.Get("quote:AAPL")
	_, _ = a.Execute(failing)
	_, _ = a.Execute(failing)
	assert.Equal(t, "open", a.State())

	b := reg.Get("quote:MSFT")
	assert.Equal(t, "closed", b.State())
}
