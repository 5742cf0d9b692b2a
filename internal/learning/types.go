// Package learning implements the self-learning weight-adjustment loop
// from §4.6: rolling performance, a weight proposal, four bias
// detectors, guardrails, and the apply/review policy.
package learning

import (
	"time"

	"github.com/signalforge/core/internal/domain"
)

// ClosedOutcome is one CLOSED StoredSignal's AgentAnalysis row, reduced
// to what rolling performance needs (§4.6's rolling-performance join).
type ClosedOutcome struct {
	AgentName      string
	Recommendation domain.SignalClass
	PnL            float64
	ClosedAt       time.Time
}

// AgentPerformance is one agent's rolling win-rate across the three
// windows from §4.6.
type AgentPerformance struct {
	AgentName string
	WinRate7  float64
	Trades7   int
	WinRate30 float64
	Trades30  int
	WinRate90 float64
	Trades90  int
}

// TimeframeWeights maps a rolling window (days) to its contribution to
// perf. Defaults per §4.6: {7: 0.4, 30: 0.4, 90: 0.2}.
type TimeframeWeights map[int]float64

// DefaultTimeframeWeights is §4.6's default weighting of the three
// rolling windows.
func DefaultTimeframeWeights() TimeframeWeights {
	return TimeframeWeights{7: 0.4, 30: 0.4, 90: 0.2}
}

// recencyTimeframeWeights is the RECENCY bias correction's reweighting
// (§4.6): {7: 0.2, 30: 0.5, 90: 0.3}.
func recencyTimeframeWeights() TimeframeWeights {
	return TimeframeWeights{7: 0.2, 30: 0.5, 90: 0.3}
}

// WeightProposal tracks one agent's weight through the pipeline: the
// pre-bias-correction proposal, then the post-correction, pre-normalize
// value, then the final normalized weight.
type WeightProposal struct {
	AgentName        string
	OldWeight        float64
	RawProposed      float64 // step 1-5 of §4.6, before bias corrections
	Corrected        float64 // after any bias-detector correction is applied
	DailyChangeCap   float64 // 0.10 * old_weight unless tightened by OVERFITTING
	Final            float64 // after cross-agent normalization
}

// BiasFinding is one detector's report for this run.
type BiasFinding struct {
	BiasType   string
	Severity   domain.BiasSeverity
	AgentNames []string
}

// biasConfidencePenalty maps a finding's severity to its confidence
// deduction (§4.6's "confidence = clamp(1.0 - Σ{...})").
func biasConfidencePenalty(severity domain.BiasSeverity) float64 {
	switch severity {
	case domain.SeverityHigh:
		return 0.30
	case domain.SeverityMedium:
		return 0.15
	case domain.SeverityLow:
		return 0.05
	default:
		return 0
	}
}

// OverallConfidence implements §4.6's confidence formula across every
// finding from every detector.
func OverallConfidence(findings []BiasFinding) float64 {
	penalty := 0.0
	for _, f := range findings {
		penalty += biasConfidencePenalty(f.Severity)
	}
	confidence := 1.0 - penalty
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}
