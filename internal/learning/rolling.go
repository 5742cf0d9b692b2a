package learning

import "time"

// ComputeRollingPerformance implements §4.6's rolling-performance
// computation for one agent across the 7/30/90 day windows, given all of
// that agent's CLOSED outcomes (already filtered to one agent_name by
// the caller) and the as-of instant the windows are measured back from.
func ComputeRollingPerformance(agentName string, outcomes []ClosedOutcome, asOf time.Time) AgentPerformance {
	perf := AgentPerformance{AgentName: agentName}

	wins7, trades7 := windowStats(outcomes, asOf, 7)
	wins30, trades30 := windowStats(outcomes, asOf, 30)
	wins90, trades90 := windowStats(outcomes, asOf, 90)

	perf.Trades7, perf.WinRate7 = trades7, winRate(wins7, trades7)
	perf.Trades30, perf.WinRate30 = trades30, winRate(wins30, trades30)
	perf.Trades90, perf.WinRate90 = trades90, winRate(wins90, trades90)

	return perf
}

func windowStats(outcomes []ClosedOutcome, asOf time.Time, windowDays int) (wins, trades int) {
	cutoff := asOf.AddDate(0, 0, -windowDays)
	for _, o := range outcomes {
		if o.ClosedAt.Before(cutoff) || o.ClosedAt.After(asOf) {
			continue
		}
		trades++
		if isWin(o) {
			wins++
		}
	}
	return wins, trades
}

// isWin implements §4.6's win predicate: BUY+profit, SELL+loss, or
// HOLD+small-enough move (|pnl| < 5).
func isWin(o ClosedOutcome) bool {
	switch o.Recommendation {
	case "BUY", "STRONG_BUY":
		return o.PnL > 0
	case "SELL", "STRONG_SELL":
		return o.PnL < 0
	case "HOLD":
		return abs(o.PnL) < 5
	default:
		return false
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func winRate(wins, trades int) float64 {
	if trades == 0 {
		return 0
	}
	return float64(wins) / float64(trades) * 100
}
