package learning

import (
	"math"

	"github.com/signalforge/core/internal/domain"
)

// overfittingCIThreshold and overfittingMinTrades are §4.6's OVERFITTING
// cutpoints.
const (
	overfittingCIThreshold = 0.15
	overfittingMinTrades   = 10
	recencyGapThreshold    = 0.20
	thrashingStdevThreshold = 0.30
	thrashingSignReversals  = 3
)

// severityBySeverityCount picks HIGH when at least two agents are
// flagged, otherwise the given single-agent severity (§4.6, OVERFITTING
// and RECENCY share this shape).
func severityBySeverityCount(flaggedCount int, single domain.BiasSeverity) domain.BiasSeverity {
	if flaggedCount >= 2 {
		return domain.SeverityHigh
	}
	if flaggedCount == 0 {
		return ""
	}
	return single
}

// DetectOverfitting implements §4.6's OVERFITTING detector: a window is
// suspect if it has fewer than 10 trades or its normal-approximation 95%
// CI half-width exceeds 0.15.
func DetectOverfitting(perfs []AgentPerformance) BiasFinding {
	var flagged []string
	for _, p := range perfs {
		if windowIsOverfit(p.WinRate7/100, p.Trades7) ||
			windowIsOverfit(p.WinRate30/100, p.Trades30) ||
			windowIsOverfit(p.WinRate90/100, p.Trades90) {
			flagged = append(flagged, p.AgentName)
		}
	}
	if len(flagged) == 0 {
		return BiasFinding{}
	}
	return BiasFinding{BiasType: "OVERFITTING", Severity: severityBySeverityCount(len(flagged), domain.SeverityMedium), AgentNames: flagged}
}

func windowIsOverfit(p float64, n int) bool {
	if n < overfittingMinTrades {
		return true
	}
	return ciHalfWidth(p, n) > overfittingCIThreshold
}

func ciHalfWidth(p float64, n int) float64 {
	if n == 0 {
		return math.Inf(1)
	}
	return 1.96 * math.Sqrt(p*(1-p)/float64(n))
}

// DetectRecency implements §4.6's RECENCY detector: flag an agent whose
// 7-day and 30-day win rates diverge by more than 0.20 (as a fraction).
func DetectRecency(perfs []AgentPerformance) BiasFinding {
	var flagged []string
	for _, p := range perfs {
		if math.Abs(p.WinRate7-p.WinRate30)/100 > recencyGapThreshold {
			flagged = append(flagged, p.AgentName)
		}
	}
	if len(flagged) == 0 {
		return BiasFinding{}
	}
	return BiasFinding{BiasType: "RECENCY", Severity: severityBySeverityCount(len(flagged), domain.SeverityLow), AgentNames: flagged}
}

// DetectThrashing implements §4.6's THRASHING detector over each agent's
// last up-to-7 per-day weight deltas (oldest-first).
func DetectThrashing(weightHistory map[string][]float64) BiasFinding {
	var flagged []string
	for agent, history := range weightHistory {
		deltas := recentDeltas(history, 7)
		if len(deltas) == 0 {
			continue
		}
		if stdev(deltas) > thrashingStdevThreshold || signReversals(deltas) > thrashingSignReversals {
			flagged = append(flagged, agent)
		}
	}
	if len(flagged) == 0 {
		return BiasFinding{}
	}
	return BiasFinding{BiasType: "THRASHING", Severity: domain.SeverityHigh, AgentNames: flagged}
}

// recentDeltas turns an oldest-first weight history into its day-over-day
// deltas, keeping at most the last maxDeltas.
func recentDeltas(history []float64, maxDeltas int) []float64 {
	if len(history) < 2 {
		return nil
	}
	deltas := make([]float64, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		deltas = append(deltas, history[i]-history[i-1])
	}
	if len(deltas) > maxDeltas {
		deltas = deltas[len(deltas)-maxDeltas:]
	}
	return deltas
}

func stdev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

func signReversals(deltas []float64) int {
	reversals := 0
	lastSign := 0
	for _, d := range deltas {
		sign := 0
		switch {
		case d > 0:
			sign = 1
		case d < 0:
			sign = -1
		}
		if sign != 0 && lastSign != 0 && sign != lastSign {
			reversals++
		}
		if sign != 0 {
			lastSign = sign
		}
	}
	return reversals
}

// DetectRegimeBlindness implements §4.6's REGIME_BLINDNESS detector: if
// the regime changed since the last recorded run, flag every agent.
func DetectRegimeBlindness(current, previous domain.MarketRegime, allAgents []string) BiasFinding {
	if current == previous || previous == "" {
		return BiasFinding{}
	}
	return BiasFinding{BiasType: "REGIME_BLINDNESS", Severity: domain.SeverityMedium, AgentNames: allAgents}
}
