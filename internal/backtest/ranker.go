// Package backtest implements the rank -> allocate -> simulate -> metrics
// pipeline from §4.5.
package backtest

import (
	"sort"

	"github.com/signalforge/core/internal/domain"
)

// fallbackExpectedReturn and fallbackRiskFactor are used when a signal's
// target/stop fields leave expected_return or risk_factor undefined
// (§4.5 step 3a).
const (
	fallbackExpectedReturn = 0.10
	fallbackRiskFactor     = 1.5
	minRiskFactor          = 1.0
)

// RankedSignal is one day's BUY StoredSignal annotated with its ranking
// score and 1-based rank.
type RankedSignal struct {
	Signal         domain.StoredSignal
	ExpectedReturn float64
	RiskFactor     float64
	Score          float64
	Rank           int
}

// RankDay implements §4.5 step 3a: score each signal and sort descending,
// assigning rank 1..k.
func RankDay(daySignals []domain.StoredSignal) []RankedSignal {
	ranked := make([]RankedSignal, len(daySignals))
	for i, s := range daySignals {
		expectedReturn := expectedReturn(s)
		riskFactor := riskFactor(s)
		score := (float64(s.Confidence) / 5) * expectedReturn / riskFactor
		ranked[i] = RankedSignal{Signal: s, ExpectedReturn: expectedReturn, RiskFactor: riskFactor, Score: score}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

func expectedReturn(s domain.StoredSignal) float64 {
	if s.EntryPrice <= 0 || s.TargetPrice == 0 {
		return fallbackExpectedReturn
	}
	r := (s.TargetPrice - s.EntryPrice) / s.EntryPrice
	if r == 0 {
		return fallbackExpectedReturn
	}
	return r
}

func riskFactor(s domain.StoredSignal) float64 {
	if s.EntryPrice <= 0 || s.StopLoss == 0 {
		return fallbackRiskFactor
	}
	rf := (s.EntryPrice - s.StopLoss) / s.EntryPrice * 10
	if rf < minRiskFactor {
		return minRiskFactor
	}
	return rf
}
