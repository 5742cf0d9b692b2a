package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalforge/core/internal/adapters"
	"github.com/signalforge/core/internal/domain"
)

func signalOn(day time.Time, ticker string, confidence int, entry, target, stop float64) domain.StoredSignal {
	return domain.StoredSignal{
		Ticker:      ticker,
		SignalType:  domain.StoredBuy,
		Confidence:  confidence,
		EntryPrice:  entry,
		TargetPrice: target,
		StopLoss:    stop,
		CreatedAt:   day,
	}
}

func TestRankDay_SortsByScoreDescending(t *testing.T) {
	day := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	signals := []domain.StoredSignal{
		signalOn(day, "LOW", 2, 100, 105, 95),
		signalOn(day, "HIGH", 5, 100, 130, 98),
	}
	ranked := RankDay(signals)
	require.Len(t, ranked, 2)
	assert.Equal(t, "HIGH", ranked[0].Signal.Ticker)
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, 2, ranked[1].Rank)
}

func TestAllocate_CoreFocusGivesTopSignalSixtyPercent(t *testing.T) {
	day := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	signals := []domain.StoredSignal{
		signalOn(day, "A", 5, 100, 130, 98),
		signalOn(day, "B", 4, 50, 60, 48),
		signalOn(day, "C", 4, 50, 60, 48),
		signalOn(day, "D", 4, 50, 60, 48),
	}
	ranked := RankDay(signals)
	allocations := Allocate(ranked, domain.AllocationCoreFocus, 100000)

	require.Len(t, allocations, 4)
	assert.Equal(t, domain.PositionCore, allocations[0].PositionType)
	assert.InDelta(t, 60000, allocations[0].AllocationDollars, 0.01)
	assert.Equal(t, domain.PositionSatellite, allocations[1].PositionType)
	assert.InDelta(t, 10000, allocations[1].AllocationDollars, 0.01)
}

func TestAllocate_DiversifiedSplitsTopFiveEqually(t *testing.T) {
	day := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	var signals []domain.StoredSignal
	for i := 0; i < 6; i++ {
		signals = append(signals, signalOn(day, "T", 4, 50, 60, 48))
	}
	ranked := RankDay(signals)
	allocations := Allocate(ranked, domain.AllocationDiversified, 100000)

	require.Len(t, allocations, 5) // 6th signal dropped, beyond the mode's covered rank count
	for _, a := range allocations {
		assert.Equal(t, domain.PositionEqual, a.PositionType)
		assert.InDelta(t, 16000, a.AllocationDollars, 0.01)
	}
}

func TestSimulatePosition_StopLossCheckedBeforeTakeProfit(t *testing.T) {
	entryDate := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	history := adapters.NewStaticHistorySource()
	history.Set("T", []adapters.HistoryBar{
		{Date: entryDate.AddDate(0, 0, 1), Low: 80, High: 130, Close: 100}, // both stop and target would fire
	})

	sim := NewSimulator(history, 5, 1)
	alloc := Allocation{
		Signal: domain.StoredSignal{Ticker: "T", EntryPrice: 100, TargetPrice: 120, StopLoss: 90},
		Shares: 10,
	}
	trade := sim.SimulatePosition(context.Background(), "bt1", alloc, entryDate)

	assert.Equal(t, domain.ExitStopLoss, trade.ExitReason)
	assert.Equal(t, 90.0, trade.ExitPrice)
}

func TestSimulatePosition_HoldPeriodEndExitsAtLastClose(t *testing.T) {
	entryDate := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	history := adapters.NewStaticHistorySource()
	var bars []adapters.HistoryBar
	for d := 1; d <= 3; d++ {
		bars = append(bars, adapters.HistoryBar{Date: entryDate.AddDate(0, 0, d), Low: 98, High: 102, Close: 101})
	}
	history.Set("T", bars)

	sim := NewSimulator(history, 3, 1)
	alloc := Allocation{
		Signal: domain.StoredSignal{Ticker: "T", EntryPrice: 100, TargetPrice: 150, StopLoss: 50},
		Shares: 10,
	}
	trade := sim.SimulatePosition(context.Background(), "bt1", alloc, entryDate)

	assert.Equal(t, domain.ExitHoldPeriodEnd, trade.ExitReason)
	assert.Equal(t, 101.0, trade.ExitPrice)
}

func TestComputeMetrics_ProfitFactorIsInfWithNoLosses(t *testing.T) {
	trades := []domain.BacktestTrade{
		{PnL: 100, DaysHeld: 3},
		{PnL: 50, DaysHeld: 2},
	}
	metrics := ComputeMetrics(trades, 10000)
	assert.True(t, metrics.ProfitFactor > 1e300) // +Inf
	assert.Equal(t, 100.0, metrics.WinRate)
}

func TestComputeMetrics_ZeroTradesYieldsZeroProfitFactor(t *testing.T) {
	metrics := ComputeMetrics(nil, 10000)
	assert.Equal(t, Metrics{}, metrics)
}

func TestEngine_RunSkipsNonPositiveEntryPrice(t *testing.T) {
	history := adapters.NewStaticHistorySource()
	engine := NewEngine(history, 5, 1)
	day := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	signals := []domain.StoredSignal{signalOn(day, "BAD", 4, 0, 0, 0)}

	result := engine.Run(context.Background(), signals, domain.AllocationCoreFocus, 10000)
	assert.Empty(t, result.Trades)
}
