package learning

import "github.com/signalforge/core/internal/domain"

// winRates bundles one agent's three window win-rates as fractions in
// [0, 1] (not the 0-100 scale AgentPerformance stores), the shape
// ProposeWeight's perf formula consumes.
type winRates struct {
	w7, w30, w90 float64
}

func ratesFromPerformance(p AgentPerformance) winRates {
	return winRates{w7: p.WinRate7 / 100, w30: p.WinRate30 / 100, w90: p.WinRate90 / 100}
}

// ProposeWeight implements §4.6's steps 1-5: perf -> perf_weight ->
// smoothed -> clamped to [0.30, 2.00] -> per-day-change-capped.
func ProposeWeight(oldWeight float64, rates winRates, tf TimeframeWeights) float64 {
	perf := tf[7]*rates.w7 + tf[30]*rates.w30 + tf[90]*rates.w90
	perfWeight := 2 * perf
	newWeight := 0.9*oldWeight + 0.1*perfWeight
	newWeight = clampWeight(newWeight)
	return capDailyChange(newWeight, oldWeight, 0.10)
}

func clampWeight(w float64) float64 {
	if w < domain.WeightMin {
		return domain.WeightMin
	}
	if w > domain.WeightMax {
		return domain.WeightMax
	}
	return w
}

// capDailyChange implements §4.6 step 5: |new - old| <= capFraction *
// old.
func capDailyChange(newWeight, oldWeight, capFraction float64) float64 {
	maxDelta := capFraction * oldWeight
	delta := newWeight - oldWeight
	if delta > maxDelta {
		return oldWeight + maxDelta
	}
	if delta < -maxDelta {
		return oldWeight - maxDelta
	}
	return newWeight
}

// Normalize implements §4.6 step 6: scale the proposed-weight vector so
// its sum equals N_agents (average 1.0 per agent).
func Normalize(weights map[string]float64) map[string]float64 {
	if len(weights) == 0 {
		return weights
	}
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum == 0 {
		return weights
	}
	n := float64(len(weights))
	normalized := make(map[string]float64, len(weights))
	for name, w := range weights {
		normalized[name] = w * n / sum
	}
	return normalized
}
