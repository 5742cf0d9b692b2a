package learning

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalforge/core/internal/adapters"
	"github.com/signalforge/core/internal/domain"
)

// fakeWeightStore is an in-memory WeightStore for exercising Loop.Run
// without a database.
type fakeWeightStore struct {
	current  map[string]float64
	history  map[string][]float64 // oldest-first
	regime   domain.MarketRegime
	shifts   int
	weights  []domain.AgentWeight
	events   []domain.LearningEvent
}

func newFakeWeightStore() *fakeWeightStore {
	return &fakeWeightStore{current: map[string]float64{}, history: map[string][]float64{}}
}

func (f *fakeWeightStore) CurrentWeights(ctx context.Context) (map[string]float64, error) {
	return f.current, nil
}

func (f *fakeWeightStore) WeightAsOf(ctx context.Context, agentName string, asOf time.Time) (float64, bool, error) {
	h := f.history[agentName]
	if len(h) == 0 {
		return 0, false, nil
	}
	return h[0], true, nil
}

func (f *fakeWeightStore) RecentWeightHistory(ctx context.Context, agentName string, days int) ([]float64, error) {
	return f.history[agentName], nil
}

func (f *fakeWeightStore) LastRegime(ctx context.Context) (domain.MarketRegime, error) {
	return f.regime, nil
}

func (f *fakeWeightStore) RegimeShiftsSince(ctx context.Context, since time.Time) (int, error) {
	return f.shifts, nil
}

func (f *fakeWeightStore) SaveWeights(ctx context.Context, weights []domain.AgentWeight) error {
	f.weights = append(f.weights, weights...)
	return nil
}

func (f *fakeWeightStore) SaveEvents(ctx context.Context, events []domain.LearningEvent) error {
	f.events = append(f.events, events...)
	return nil
}

type fakeAlertSinkLearning struct{}

func (fakeAlertSinkLearning) SendSignalAlert(ctx context.Context, payload adapters.SignalAlertPayload) error {
	return nil
}
func (fakeAlertSinkLearning) SendDailySummary(ctx context.Context, signals []adapters.SignalAlertPayload) error {
	return nil
}
func (fakeAlertSinkLearning) SendLearningEvent(ctx context.Context, payload adapters.LearningEventPayload) error {
	return nil
}

func goodOutcomes(agent string, n int, asOf time.Time) []ClosedOutcome {
	outcomes := make([]ClosedOutcome, 0, n)
	for i := 0; i < n; i++ {
		outcomes = append(outcomes, ClosedOutcome{
			AgentName:      agent,
			Recommendation: domain.Buy,
			PnL:            10,
			ClosedAt:       asOf.AddDate(0, 0, -1),
		})
	}
	return outcomes
}

func TestLoopRun_AppliesWhenAutoLearningEnabledAndConfident(t *testing.T) {
	asOf := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store := newFakeWeightStore()
	store.current = map[string]float64{"momentum": 1.0}
	store.history = map[string][]float64{"momentum": {1.0, 1.0, 1.0}}
	store.regime = domain.RegimeNormal

	loop := NewLoop(store, fakeAlertSinkLearning{}, nil, zerolog.Nop())
	policy := Policy{AutoLearningEnabled: true, HumanReviewRequired: false}

	outcomes := map[string][]ClosedOutcome{"momentum": goodOutcomes("momentum", 50, asOf)}
	result, err := loop.Run(context.Background(), policy, outcomes, asOf, domain.RegimeNormal, 15)

	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.False(t, result.Frozen)
	assert.NotEmpty(t, store.weights)
}

func TestLoopRun_HoldsForReviewBelowConfidenceThreshold(t *testing.T) {
	asOf := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store := newFakeWeightStore()
	store.current = map[string]float64{"thin": 1.0, "shaky": 1.0}
	store.history = map[string][]float64{"thin": {1.0}, "shaky": {1.0}}
	store.regime = domain.RegimeNormal

	loop := NewLoop(store, fakeAlertSinkLearning{}, nil, zerolog.Nop())
	policy := Policy{AutoLearningEnabled: true, HumanReviewRequired: true, MinConfidenceForAuto: 0.80}

	// Both agents have too few trades in every window: OVERFITTING flags
	// both, pushing its severity to HIGH and confidence below 0.80.
	outcomes := map[string][]ClosedOutcome{
		"thin":  goodOutcomes("thin", 2, asOf),
		"shaky": goodOutcomes("shaky", 2, asOf),
	}
	result, err := loop.Run(context.Background(), policy, outcomes, asOf, domain.RegimeNormal, 15)

	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.Empty(t, store.weights)
	assert.NotEmpty(t, store.events)
}

func TestLoopRun_FreezesOnExtremeVolatility(t *testing.T) {
	asOf := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store := newFakeWeightStore()
	store.current = map[string]float64{"momentum": 1.0}
	store.regime = domain.RegimeHighVolatility

	loop := NewLoop(store, fakeAlertSinkLearning{}, nil, zerolog.Nop())
	policy := Policy{AutoLearningEnabled: true}

	outcomes := map[string][]ClosedOutcome{"momentum": goodOutcomes("momentum", 50, asOf)}
	result, err := loop.Run(context.Background(), policy, outcomes, asOf, domain.RegimeHighVolatility, 40)

	require.NoError(t, err)
	assert.True(t, result.Frozen)
	assert.False(t, result.Applied)
	assert.Empty(t, store.weights)
}

func TestLoopRun_GuardrailViolationBlocksUpdate(t *testing.T) {
	asOf := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store := newFakeWeightStore()
	store.current = map[string]float64{"momentum": 1.0}
	store.history = map[string][]float64{"momentum": {1.0, 1.0, 1.0}}
	// 7-day-ago weight far from what any capped proposal could reach legitimately,
	// forcing the seven_day_change guardrail to trip.
	store.history["momentum"] = []float64{2.0, 1.0, 1.0}
	store.regime = domain.RegimeNormal

	loop := NewLoop(store, fakeAlertSinkLearning{}, nil, zerolog.Nop())
	policy := Policy{AutoLearningEnabled: true}

	outcomes := map[string][]ClosedOutcome{"momentum": goodOutcomes("momentum", 50, asOf)}
	result, err := loop.Run(context.Background(), policy, outcomes, asOf, domain.RegimeNormal, 15)

	require.NoError(t, err)
	assert.NotEmpty(t, result.Violations)
	assert.False(t, result.Applied)
	assert.Empty(t, store.weights)
}

func TestManualOverride_RejectsOutOfBoundsWeight(t *testing.T) {
	store := newFakeWeightStore()
	loop := NewLoop(store, fakeAlertSinkLearning{}, nil, zerolog.Nop())

	err := loop.ManualOverride(context.Background(), "momentum", 3.0)
	assert.Error(t, err)
	assert.Empty(t, store.weights)
}

func TestManualOverride_PersistsWithinBounds(t *testing.T) {
	store := newFakeWeightStore()
	store.current = map[string]float64{"momentum": 1.0}
	loop := NewLoop(store, fakeAlertSinkLearning{}, nil, zerolog.Nop())

	err := loop.ManualOverride(context.Background(), "momentum", 1.5)
	require.NoError(t, err)
	require.Len(t, store.weights, 1)
	assert.Equal(t, 1.5, store.weights[0].Weight)
	require.Len(t, store.events, 1)
	assert.Equal(t, domain.EventWeightUpdate, store.events[0].EventType)
}
