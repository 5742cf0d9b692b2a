package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newControlMsg(t *testing.T, payload string) *nats.Msg {
	t.Helper()
	return &nats.Msg{Data: []byte(payload)}
}

func TestNew_DefaultsTimezoneWhenUnset(t *testing.T) {
	s, err := New(Config{}, &Jobs{Log: zerolog.Nop()}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", s.loc.String())
}

func TestNew_RejectsUnknownTimezone(t *testing.T) {
	_, err := New(Config{Timezone: "Not/AZone"}, &Jobs{Log: zerolog.Nop()}, zerolog.Nop())
	assert.Error(t, err)
}

func TestStartStop_RegistersAllSevenCadenceEntries(t *testing.T) {
	s, err := New(Config{Timezone: "UTC"}, &Jobs{Log: zerolog.Nop()}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 7)
	s.Stop()
}

func TestIsPaused_DefaultsFalseAndTracksControlEvents(t *testing.T) {
	s, err := New(Config{Timezone: "UTC"}, &Jobs{Log: zerolog.Nop()}, zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, s.IsPaused())

	s.handleControlEvent(newControlMsg(t, `{"event":"scheduler_paused","reason":"manual halt"}`))
	assert.True(t, s.IsPaused())

	s.handleControlEvent(newControlMsg(t, `{"event":"scheduler_resumed"}`))
	assert.False(t, s.IsPaused())
}

func TestRunGuarded_SkipsWhenPaused(t *testing.T) {
	s, err := New(Config{Timezone: "UTC", JobWallClockDeadline: time.Second}, &Jobs{Log: zerolog.Nop()}, zerolog.Nop())
	require.NoError(t, err)

	s.handleControlEvent(newControlMsg(t, `{"event":"scheduler_paused"}`))

	ran := false
	guarded := s.runGuarded("test_job", func(ctx context.Context) { ran = true })
	guarded(context.Background())

	assert.False(t, ran)
}

func TestRunGuarded_RunsWhenNotPaused(t *testing.T) {
	s, err := New(Config{Timezone: "UTC", JobWallClockDeadline: time.Second}, &Jobs{Log: zerolog.Nop()}, zerolog.Nop())
	require.NoError(t, err)

	ran := false
	guarded := s.runGuarded("test_job", func(ctx context.Context) { ran = true })
	guarded(context.Background())

	assert.True(t, ran)
}
