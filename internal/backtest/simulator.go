package backtest

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/signalforge/core/internal/adapters"
	"github.com/signalforge/core/internal/domain"
)

// dayBar is the OHLC a position is checked against on one simulated day.
type dayBar struct {
	Low   float64
	High  float64
	Close float64
}

// Simulator runs the day-by-day exit check from §4.5 step 3c.
type Simulator struct {
	history      adapters.HistorySource
	holdPeriod   int
	rng          *rand.Rand
}

// NewSimulator wires a simulator against a history source. rngSeed lets
// tests get deterministic synthesized bars when history is missing.
func NewSimulator(history adapters.HistorySource, holdPeriodDays int, rngSeed int64) *Simulator {
	return &Simulator{history: history, holdPeriod: holdPeriodDays, rng: rand.New(rand.NewSource(rngSeed))}
}

// SimulatePosition walks at most s.holdPeriod calendar days forward from
// entryDate, exiting on STOP_LOSS (checked first), TAKE_PROFIT, or
// HOLD_PERIOD_END, and returns the resulting BacktestTrade.
func (s *Simulator) SimulatePosition(ctx context.Context, backtestID string, alloc Allocation, entryDate time.Time) domain.BacktestTrade {
	signal := alloc.Signal
	exitPrice := signal.EntryPrice
	exitDate := entryDate
	exitReason := domain.ExitHoldPeriodEnd

	bars, _ := s.history.GetHistorical(ctx, signal.Ticker, s.holdPeriod+5)
	barByDate := make(map[string]adapters.HistoryBar, len(bars))
	for _, b := range bars {
		barByDate[b.Date.Format("2006-01-02")] = b
	}

	lastClose := signal.EntryPrice
	for day := 1; day <= s.holdPeriod; day++ {
		currentDate := entryDate.AddDate(0, 0, day)
		bar := s.barForDay(barByDate, currentDate, lastClose, signal)
		lastClose = bar.Close

		switch {
		case bar.Low <= signal.StopLoss:
			exitPrice = signal.StopLoss
			exitDate = currentDate
			exitReason = domain.ExitStopLoss
			goto recorded
		case bar.High >= signal.TargetPrice:
			exitPrice = signal.TargetPrice
			exitDate = currentDate
			exitReason = domain.ExitTakeProfit
			goto recorded
		}

		if day == s.holdPeriod {
			exitPrice = bar.Close
			exitDate = currentDate
			exitReason = domain.ExitHoldPeriodEnd
		}
	}

recorded:
	pnl := float64(alloc.Shares) * (exitPrice - signal.EntryPrice)
	pnlPct := 0.0
	if signal.EntryPrice > 0 {
		pnlPct = (exitPrice - signal.EntryPrice) / signal.EntryPrice
	}
	result := domain.ResultLoss
	if pnl > 0 {
		result = domain.ResultWin
	}

	return domain.BacktestTrade{
		BacktestID:    backtestID,
		SignalID:      signal.ID,
		EntryDate:     entryDate,
		ExitDate:      exitDate,
		EntryPrice:    signal.EntryPrice,
		ExitPrice:     exitPrice,
		Shares:        alloc.Shares,
		PnL:           pnl,
		PnLPct:        pnlPct,
		Result:        result,
		DaysHeld:      int(exitDate.Sub(entryDate).Hours() / 24),
		ExitReason:    exitReason,
		PositionType:  alloc.PositionType,
		AllocationPct: alloc.AllocationPct,
	}
}

// barForDay returns the real bar for currentDate if the history adapter
// has one, else synthesizes a small random walk biased slightly positive
// from lastClose, per §4.5's "a missing historical bar does not abort the
// simulation" failure semantics.
func (s *Simulator) barForDay(barByDate map[string]adapters.HistoryBar, currentDate time.Time, lastClose float64, signal domain.StoredSignal) dayBar {
	if b, ok := barByDate[currentDate.Format("2006-01-02")]; ok {
		return dayBar{Low: b.Low, High: b.High, Close: b.Close}
	}

	// biased slightly positive: drift +0.02%, noise +/-0.8%
	drift := 0.0002
	noise := (s.rng.Float64()*2 - 1) * 0.008
	close := lastClose * (1 + drift + noise)
	high := close * (1 + s.rng.Float64()*0.01)
	low := close * (1 - s.rng.Float64()*0.01)
	return dayBar{Low: low, High: high, Close: close}
}

// NewBacktestID generates a fresh identifier for one backtest run.
func NewBacktestID() string {
	return uuid.NewString()
}
