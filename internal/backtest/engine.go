package backtest

import (
	"context"
	"sort"

	"github.com/signalforge/core/internal/adapters"
	"github.com/signalforge/core/internal/domain"
)

// Engine runs the full rank -> allocate -> simulate -> metrics pipeline
// over a set of BUY StoredSignals (§4.5).
type Engine struct {
	simulator *Simulator
}

// NewEngine wires a backtest engine against a history source.
func NewEngine(history adapters.HistorySource, holdPeriodDays int, rngSeed int64) *Engine {
	return &Engine{simulator: NewSimulator(history, holdPeriodDays, rngSeed)}
}

// Result is one backtest run's full output: the ordered trade log and
// the aggregate metrics computed over it.
type Result struct {
	BacktestID string
	Trades     []domain.BacktestTrade
	Metrics    Metrics
}

// Run implements §4.5 steps 1-4. signals must already be filtered to BUY
// StoredSignals within [startDate, endDate] (and the optional ticker
// filter, if any); grouping by calendar day and the rank/allocate/
// simulate loop happen here.
func (e *Engine) Run(ctx context.Context, signals []domain.StoredSignal, mode domain.AllocationMode, startingCapital float64) Result {
	backtestID := NewBacktestID()
	byDay := groupByDay(signals)
	days := sortedDayKeys(byDay)

	var trades []domain.BacktestTrade
	realizedPnL := 0.0

	for _, day := range days {
		daySignals := byDay[day]
		ranked := RankDay(daySignals)
		currentCapital := startingCapital + realizedPnL
		allocations := Allocate(ranked, mode, currentCapital)

		for _, alloc := range allocations {
			if alloc.Signal.EntryPrice <= 0 || alloc.Shares <= 0 {
				continue // missing entry price or zero-share allocation is skipped (§4.5 failure semantics)
			}
			trade := e.simulator.SimulatePosition(ctx, backtestID, alloc, alloc.Signal.CreatedAt)
			trades = append(trades, trade)
			realizedPnL += trade.PnL
		}
	}

	metrics := ComputeMetrics(trades, startingCapital)
	return Result{BacktestID: backtestID, Trades: trades, Metrics: metrics}
}

func groupByDay(signals []domain.StoredSignal) map[string][]domain.StoredSignal {
	byDay := make(map[string][]domain.StoredSignal)
	for _, s := range signals {
		key := s.CreatedAt.Format("2006-01-02")
		byDay[key] = append(byDay[key], s)
	}
	return byDay
}

func sortedDayKeys(byDay map[string][]domain.StoredSignal) []string {
	keys := make([]string, 0, len(byDay))
	for k := range byDay {
		keys = append(keys, k)
	}
	sort.Strings(keys) // "YYYY-MM-DD" sorts chronologically as a string
	return keys
}
