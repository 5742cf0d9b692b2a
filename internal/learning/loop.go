package learning

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/signalforge/core/internal/adapters"
	"github.com/signalforge/core/internal/config"
	"github.com/signalforge/core/internal/domain"
)

// WeightStore persists the learning loop's append-only ledgers: one
// AgentWeight snapshot per agent per run, and one LearningEvent per
// notable thing that happened during the run.
type WeightStore interface {
	CurrentWeights(ctx context.Context) (map[string]float64, error)
	WeightAsOf(ctx context.Context, agentName string, asOf time.Time) (float64, bool, error)
	RecentWeightHistory(ctx context.Context, agentName string, days int) ([]float64, error)
	LastRegime(ctx context.Context) (domain.MarketRegime, error)
	RegimeShiftsSince(ctx context.Context, since time.Time) (int, error)
	SaveWeights(ctx context.Context, weights []domain.AgentWeight) error
	SaveEvents(ctx context.Context, events []domain.LearningEvent) error
}

// Policy gates whether a run's proposed weights are applied automatically
// or held for human review (§4.6's apply policy).
type Policy struct {
	AutoLearningEnabled  bool
	HumanReviewRequired  bool
	MinConfidenceForAuto float64 // default 0.80
}

// freezeDurationDays is how long a THRASHING correction freezes an
// agent's weight (§4.6).
const freezeDurationDays = 3

// Loop runs the daily self-learning cycle described in §4.6.
type Loop struct {
	store    WeightStore
	alerts   adapters.AlertSink
	timeframe TimeframeWeights
	log      zerolog.Logger
}

// NewLoop builds a Loop with §4.6's default timeframe weights unless
// overridden by configuration.
func NewLoop(store WeightStore, alerts adapters.AlertSink, timeframe TimeframeWeights, log zerolog.Logger) *Loop {
	if timeframe == nil {
		timeframe = DefaultTimeframeWeights()
	}
	return &Loop{store: store, alerts: alerts, timeframe: timeframe, log: config.NewLogger(log, "learning_loop")}
}

// RunResult summarizes one invocation of the loop for callers/tests.
type RunResult struct {
	Applied     bool
	Frozen      bool
	Confidence  float64
	Findings    []BiasFinding
	Violations  []GuardrailViolation
	NewWeights  map[string]float64
}

// Run executes one day's learning cycle: rolling performance, weight
// proposals, bias detection/correction, guardrails, and the apply/review
// policy. asOf is the run's as-of instant (a scheduled run's trigger
// time); regime and vix are this run's already-classified MarketRegime
// and VIX reading (§4.6 derives the regime separately, from VIX/SPY/
// sector inputs via DetectRegime).
func (l *Loop) Run(ctx context.Context, policy Policy, outcomesByAgent map[string][]ClosedOutcome, asOf time.Time, regime domain.MarketRegime, vix float64) (RunResult, error) {
	agentNames := make([]string, 0, len(outcomesByAgent))
	performanceByAgent := make(map[string]AgentPerformance, len(outcomesByAgent))
	for name, outcomes := range outcomesByAgent {
		agentNames = append(agentNames, name)
		performanceByAgent[name] = ComputeRollingPerformance(name, outcomes, asOf)
	}

	currentWeights, err := l.store.CurrentWeights(ctx)
	if err != nil {
		return RunResult{}, fmt.Errorf("loading current weights: %w", err)
	}

	previousRegime, err := l.store.LastRegime(ctx)
	if err != nil {
		return RunResult{}, fmt.Errorf("loading last regime: %w", err)
	}
	regimeShifts, err := l.store.RegimeShiftsSince(ctx, asOf.AddDate(0, 0, -7))
	if err != nil {
		return RunResult{}, fmt.Errorf("loading regime shift history: %w", err)
	}

	var events []domain.LearningEvent
	if regime != previousRegime && previousRegime != "" {
		events = append(events, domain.LearningEvent{EventType: domain.EventRegimeShift, Reasoning: fmt.Sprintf("%s -> %s", previousRegime, regime)})
	}

	if ShouldFreezeLearning(regimeShifts, regime, vix) {
		events = append(events, domain.LearningEvent{EventType: domain.EventAlert, Reasoning: fmt.Sprintf("learning frozen this run: regime %s, %d shifts in trailing 7 days", regime, regimeShifts)})
		if err := l.store.SaveEvents(ctx, events); err != nil {
			return RunResult{Frozen: true}, fmt.Errorf("saving freeze event: %w", err)
		}
		return RunResult{Frozen: true}, nil
	}

	weightHistory := make(map[string][]float64, len(agentNames))
	for _, name := range agentNames {
		history, err := l.store.RecentWeightHistory(ctx, name, 7)
		if err != nil {
			return RunResult{}, fmt.Errorf("loading weight history for %s: %w", name, err)
		}
		weightHistory[name] = history
	}
	thrashing := DetectThrashing(weightHistory)
	frozenAgents, freezeEvents := frozenAgentsFromFinding(thrashing)
	events = append(events, freezeEvents...)

	perfs := make([]AgentPerformance, 0, len(performanceByAgent))
	for _, p := range performanceByAgent {
		perfs = append(perfs, p)
	}

	overfitting := DetectOverfitting(perfs)
	recency := DetectRecency(perfs)
	regimeBlindness := DetectRegimeBlindness(regime, previousRegime, agentNames)

	findings := nonEmptyFindings(overfitting, recency, thrashing, regimeBlindness)
	confidence := OverallConfidence(findings)

	overfitAgents := toSet(overfitting.AgentNames)
	recencyAgents := toSet(recency.AgentNames)
	regimeBlindAgents := toSet(regimeBlindness.AgentNames)

	proposed := make(map[string]float64, len(agentNames))
	for _, name := range agentNames {
		old := currentWeights[name]
		if old == 0 {
			old = 1.0
		}

		if frozenAgents[name] {
			proposed[name] = old
			continue
		}

		tf := l.timeframe
		if recencyAgents[name] {
			tf = recencyTimeframeWeights()
		}
		rates := ratesFromPerformance(performanceByAgent[name])

		dailyCap := 0.10
		if overfitAgents[name] {
			dailyCap = 0.05
		}
		raw := proposeWeightWithCap(old, rates, tf, dailyCap)

		if regimeBlindAgents[name] {
			raw = 0.7*raw + 0.3*old
		}

		proposed[name] = raw
	}

	final := Normalize(proposed)

	sevenDaysAgo := asOf.AddDate(0, 0, -7)
	weightSevenDaysAgo := make(map[string]float64, len(agentNames))
	for _, name := range agentNames {
		w, ok, err := l.store.WeightAsOf(ctx, name, sevenDaysAgo)
		if err != nil {
			return RunResult{}, fmt.Errorf("loading 7-day-old weight for %s: %w", name, err)
		}
		if ok {
			weightSevenDaysAgo[name] = w
		}
	}
	violations := CheckGuardrails(final, weightSevenDaysAgo)

	result := RunResult{Confidence: confidence, Findings: findings, Violations: violations, NewWeights: final}

	if len(violations) > 0 {
		for _, v := range violations {
			events = append(events, domain.LearningEvent{EventType: domain.EventAlert, Reasoning: fmt.Sprintf("guardrail %s violated: %s", v.Rule, v.Detail)})
		}
		if err := l.store.SaveEvents(ctx, events); err != nil {
			return result, fmt.Errorf("saving guardrail-block events: %w", err)
		}
		return result, nil
	}

	for _, f := range findings {
		events = append(events, domain.LearningEvent{EventType: domain.EventBiasDetected, BiasType: f.BiasType, Reasoning: fmt.Sprintf("severity %s, agents %v", f.Severity, f.AgentNames)})
	}
	for _, name := range overfitting.AgentNames {
		events = append(events, domain.LearningEvent{EventType: domain.EventCorrectionApplied, AgentName: name, BiasType: "OVERFITTING", Reasoning: "daily change cap tightened to 0.05"})
	}
	for _, name := range recency.AgentNames {
		events = append(events, domain.LearningEvent{EventType: domain.EventCorrectionApplied, AgentName: name, BiasType: "RECENCY", Reasoning: "timeframe weights re-skewed toward recent windows"})
	}
	for _, name := range regimeBlindness.AgentNames {
		events = append(events, domain.LearningEvent{EventType: domain.EventCorrectionApplied, AgentName: name, BiasType: "REGIME_BLINDNESS", Reasoning: "proposal blended 70/30 with prior weight"})
	}

	shouldApply := policy.AutoLearningEnabled && (!policy.HumanReviewRequired || confidence >= minConfidenceForAuto(policy))
	if !shouldApply {
		events = append(events, domain.LearningEvent{EventType: domain.EventAlert, Reasoning: "pending review"})
		if err := l.store.SaveEvents(ctx, events); err != nil {
			return result, fmt.Errorf("saving pending-review events: %w", err)
		}
		return result, nil
	}

	weights := make([]domain.AgentWeight, 0, len(agentNames))
	for _, name := range agentNames {
		old := currentWeights[name]
		newW := final[name]
		weights = append(weights, domain.AgentWeight{
			Date:      asOf,
			AgentName: name,
			Weight:    newW,
			WinRate7:  performanceByAgent[name].WinRate7,
			Trades7:   performanceByAgent[name].Trades7,
			WinRate30: performanceByAgent[name].WinRate30,
			Trades30:  performanceByAgent[name].Trades30,
			WinRate90: performanceByAgent[name].WinRate90,
			Trades90:  performanceByAgent[name].Trades90,
		})
		oldCopy, newCopy := old, newW
		events = append(events, domain.LearningEvent{
			EventType: domain.EventWeightUpdate,
			AgentName: name,
			OldValue:  &oldCopy,
			NewValue:  &newCopy,
		})
	}

	if err := l.store.SaveWeights(ctx, weights); err != nil {
		return result, fmt.Errorf("saving weights: %w", err)
	}
	if err := l.store.SaveEvents(ctx, events); err != nil {
		return result, fmt.Errorf("saving events: %w", err)
	}

	result.Applied = true
	return result, nil
}

func minConfidenceForAuto(p Policy) float64 {
	if p.MinConfidenceForAuto == 0 {
		return 0.80
	}
	return p.MinConfidenceForAuto
}

// proposeWeightWithCap is ProposeWeight with the daily-change cap
// parameterized, so OVERFITTING's tightened 0.05 cap can reuse the same
// clamp/cap pipeline as the default 0.10 cap.
func proposeWeightWithCap(oldWeight float64, rates winRates, tf TimeframeWeights, capFraction float64) float64 {
	perf := tf[7]*rates.w7 + tf[30]*rates.w30 + tf[90]*rates.w90
	perfWeight := 2 * perf
	newWeight := 0.9*oldWeight + 0.1*perfWeight
	newWeight = clampWeight(newWeight)
	return capDailyChange(newWeight, oldWeight, capFraction)
}

func nonEmptyFindings(findings ...BiasFinding) []BiasFinding {
	out := make([]BiasFinding, 0, len(findings))
	for _, f := range findings {
		if f.BiasType != "" {
			out = append(out, f)
		}
	}
	return out
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// frozenAgentsFromFinding turns a THRASHING finding into the set of
// agents whose weight freezes this run, emitting one FREEZE event per
// newly-frozen agent (§4.6: freeze for 3 days).
func frozenAgentsFromFinding(thrashing BiasFinding) (map[string]bool, []domain.LearningEvent) {
	frozen := make(map[string]bool, len(thrashing.AgentNames))
	var events []domain.LearningEvent
	for _, name := range thrashing.AgentNames {
		frozen[name] = true
		events = append(events, domain.LearningEvent{
			EventType: domain.EventFreeze,
			AgentName: name,
			Reasoning: fmt.Sprintf("THRASHING detected, weight frozen for %d days", freezeDurationDays),
		})
	}
	return frozen, events
}

// ManualOverride implements §4.6's operator override: set a single
// agent's weight directly, bypassing the proposal pipeline, logged at
// confidence 1.0.
func (l *Loop) ManualOverride(ctx context.Context, agentName string, newWeight float64) error {
	if newWeight < domain.WeightMin || newWeight > domain.WeightMax {
		return fmt.Errorf("weight %.4f outside [%.2f, %.2f]", newWeight, domain.WeightMin, domain.WeightMax)
	}
	current, err := l.store.CurrentWeights(ctx)
	if err != nil {
		return fmt.Errorf("loading current weights: %w", err)
	}
	old := current[agentName]

	confidence := 1.0
	oldCopy, newCopy := old, newWeight
	event := domain.LearningEvent{
		EventType:       domain.EventWeightUpdate,
		AgentName:       agentName,
		OldValue:        &oldCopy,
		NewValue:        &newCopy,
		ConfidenceLevel: &confidence,
		Reasoning:       "manual operator override",
	}

	if err := l.store.SaveWeights(ctx, []domain.AgentWeight{{Date: time.Now(), AgentName: agentName, Weight: newWeight}}); err != nil {
		return fmt.Errorf("saving manual override: %w", err)
	}
	return l.store.SaveEvents(ctx, []domain.LearningEvent{event})
}
