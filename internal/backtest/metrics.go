package backtest

import (
	"math"

	"github.com/signalforge/core/internal/domain"
)

// Metrics is the aggregate report computed over all simulated trades in
// one backtest run (§4.5 step 4).
type Metrics struct {
	TotalPnL      float64
	WinRate       float64
	AvgGain       float64
	AvgLoss       float64
	LargestWin    float64
	LargestLoss   float64
	ProfitFactor  float64
	Sharpe        float64
	MaxDrawdown   float64
	AvgDaysHeld   float64
	TotalTrades   int
}

// ComputeMetrics implements §4.5 step 4's aggregate metrics over a
// backtest's trades, in entry-date order (the caller is expected to have
// recorded them that way per §5's causal-consistency ordering guarantee).
func ComputeMetrics(trades []domain.BacktestTrade, startingCapital float64) Metrics {
	if len(trades) == 0 {
		return Metrics{}
	}

	var totalPnL, winsSum, lossesSum, daysSum float64
	var wins, losses int
	largestWin, largestLoss := math.Inf(-1), math.Inf(1)
	returns := make([]float64, len(trades))
	cumulative := make([]float64, len(trades))

	running := 0.0
	for i, t := range trades {
		totalPnL += t.PnL
		daysSum += float64(t.DaysHeld)
		returns[i] = t.PnLPct

		if t.PnL > 0 {
			wins++
			winsSum += t.PnL
			if t.PnL > largestWin {
				largestWin = t.PnL
			}
		} else if t.PnL < 0 {
			losses++
			lossesSum += t.PnL
			if t.PnL < largestLoss {
				largestLoss = t.PnL
			}
		}

		running += t.PnL
		cumulative[i] = running
	}

	if wins == 0 {
		largestWin = 0
	}
	if losses == 0 {
		largestLoss = 0
	}

	winRate := float64(wins) / float64(len(trades)) * 100

	avgGain := 0.0
	if wins > 0 {
		avgGain = winsSum / float64(wins)
	}
	avgLoss := 0.0
	if losses > 0 {
		avgLoss = lossesSum / float64(losses)
	}

	profitFactor := profitFactor(winsSum, lossesSum, wins)
	sharpe := sharpeRatio(returns)
	maxDrawdown := maxDrawdown(cumulative, startingCapital)

	return Metrics{
		TotalPnL:     totalPnL,
		WinRate:      winRate,
		AvgGain:      avgGain,
		AvgLoss:      avgLoss,
		LargestWin:   largestWin,
		LargestLoss:  largestLoss,
		ProfitFactor: profitFactor,
		Sharpe:       sharpe,
		MaxDrawdown:  maxDrawdown,
		AvgDaysHeld:  daysSum / float64(len(trades)),
		TotalTrades:  len(trades),
	}
}

// profitFactor is sum(wins)/|sum(losses)|, +Inf if there are wins and no
// losses, 0 if there are neither (§4.5 step 4).
func profitFactor(winsSum, lossesSum float64, wins int) float64 {
	if lossesSum == 0 {
		if wins > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return winsSum / math.Abs(lossesSum)
}

// sharpeRatio is mean(returns)/stdev(returns), 0 if stdev is 0.
func sharpeRatio(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	stdev := math.Sqrt(variance)

	if stdev == 0 {
		return 0
	}
	return mean / stdev
}

// maxDrawdown is the largest peak-to-trough drop across the cumulative
// P&L curve, expressed as a fraction of starting capital.
func maxDrawdown(cumulative []float64, startingCapital float64) float64 {
	if startingCapital <= 0 {
		return 0
	}
	peak := 0.0
	maxDD := 0.0
	for _, c := range cumulative {
		equity := startingCapital + c
		peakEquity := startingCapital + peak
		if c > peak {
			peak = c
		}
		dd := (peakEquity - equity) / startingCapital
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}
