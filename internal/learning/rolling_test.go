package learning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/signalforge/core/internal/domain"
)

func TestComputeRollingPerformance_CountsOnlyWithinWindow(t *testing.T) {
	asOf := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	outcomes := []ClosedOutcome{
		{AgentName: "a", Recommendation: domain.Buy, PnL: 10, ClosedAt: asOf.AddDate(0, 0, -1)},  // in 7d window, win
		{AgentName: "a", Recommendation: domain.Buy, PnL: -5, ClosedAt: asOf.AddDate(0, 0, -6)},  // in 7d window, loss
		{AgentName: "a", Recommendation: domain.Buy, PnL: 20, ClosedAt: asOf.AddDate(0, 0, -20)}, // outside 7d, inside 30d
		{AgentName: "a", Recommendation: domain.Buy, PnL: 30, ClosedAt: asOf.AddDate(0, 0, -95)}, // outside every window
	}

	perf := ComputeRollingPerformance("a", outcomes, asOf)

	assert.Equal(t, 2, perf.Trades7)
	assert.InDelta(t, 50.0, perf.WinRate7, 0.001)
	assert.Equal(t, 3, perf.Trades30)
	assert.Equal(t, 3, perf.Trades90)
}

func TestComputeRollingPerformance_EmptyWindowIsZero(t *testing.T) {
	perf := ComputeRollingPerformance("a", nil, time.Now())
	assert.Equal(t, 0, perf.Trades7)
	assert.Equal(t, 0.0, perf.WinRate7)
}

func TestIsWin_HoldRequiresSmallMove(t *testing.T) {
	asOf := time.Now()
	outcomes := []ClosedOutcome{
		{AgentName: "a", Recommendation: domain.Hold, PnL: 2, ClosedAt: asOf},
		{AgentName: "a", Recommendation: domain.Hold, PnL: -40, ClosedAt: asOf},
		{AgentName: "a", Recommendation: domain.Sell, PnL: -10, ClosedAt: asOf},
		{AgentName: "a", Recommendation: domain.Sell, PnL: 10, ClosedAt: asOf},
	}
	wins, trades := windowStats(outcomes, asOf.Add(time.Hour), 7)
	assert.Equal(t, 4, trades)
	assert.Equal(t, 2, wins) // small HOLD move wins, SELL+loss wins; big HOLD move and SELL+gain lose
}
