package ensemble

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/signalforge/core/internal/adapters"
	"github.com/signalforge/core/internal/agents"
	"github.com/signalforge/core/internal/domain"
)

// mockAgent always returns the configured opinion, ignoring its inputs.
type mockAgent struct {
	name    string
	weight  float64
	opinion domain.AgentOpinion
	delay   time.Duration
	panics  bool
}

func (m *mockAgent) Name() string    { return m.name }
func (m *mockAgent) Weight() float64 { return m.weight }
func (m *mockAgent) Analyze(ctx context.Context, ticker string, market agents.MarketData, sentiment *adapters.SentimentResult, history []adapters.HistoryBar) domain.AgentOpinion {
	if m.panics {
		panic("boom")
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
		}
	}
	return m.opinion
}

func newMockAgent(name string, weight, rawScore, confidence float64) *mockAgent {
	return &mockAgent{name: name, weight: weight, opinion: domain.NewAgentOpinion(name, "AAPL", rawScore, confidence, "mock", nil)}
}

func sampleMarket() agents.MarketData {
	return agents.MarketData{CurrentPrice: 100, RSI: 40}
}

func TestGenerateSignal_UnanimousBullish(t *testing.T) {
	agentSet := []agents.AnalyzerAgent{
		newMockAgent("a1", 1.0, 0.8, 0.9),
		newMockAgent("a2", 1.0, 0.8, 0.9),
		newMockAgent("a3", 1.0, 0.8, 0.9),
	}
	e := New(agentSet, zerolog.Nop())
	signal := e.GenerateSignal(context.Background(), "AAPL", sampleMarket(), nil, nil)

	assert.InDelta(t, 0.8, signal.RawScore, 0.01)
	assert.Equal(t, domain.StrongBuy, signal.SignalClass)
	assert.Equal(t, 1.0, signal.AgreementRatio)
	assert.GreaterOrEqual(t, signal.Confidence, 0.8)
	assert.Equal(t, domain.PositionLarge, signal.PositionSizeClass)
}

func TestGenerateSignal_Split2v2(t *testing.T) {
	agentSet := []agents.AnalyzerAgent{
		newMockAgent("a1", 1.0, 0.6, 0.8),
		newMockAgent("a2", 1.0, 0.6, 0.8),
		newMockAgent("a3", 1.0, -0.6, 0.8),
		newMockAgent("a4", 1.0, -0.6, 0.8),
	}
	e := New(agentSet, zerolog.Nop())
	signal := e.GenerateSignal(context.Background(), "AAPL", sampleMarket(), nil, nil)

	assert.InDelta(t, 0.0, signal.RawScore, 0.01)
	assert.Equal(t, domain.Hold, signal.SignalClass)
	assert.InDelta(t, 0.5, signal.AgreementRatio, 0.01)
	assert.Contains(t, []domain.PositionSizeClass{domain.PositionSmall, domain.PositionNone}, signal.PositionSizeClass)
}

func TestGenerateSignal_OneHeavyBullTwoLightBears(t *testing.T) {
	agentSet := []agents.AnalyzerAgent{
		newMockAgent("bull", 2.0, 0.5, 0.7),
		newMockAgent("bear1", 0.5, -0.5, 0.7),
		newMockAgent("bear2", 0.5, -0.5, 0.7),
	}
	e := New(agentSet, zerolog.Nop())
	signal := e.GenerateSignal(context.Background(), "AAPL", sampleMarket(), nil, nil)

	assert.Greater(t, signal.RawScore, 0.0)
	assert.InDelta(t, 1.0/3.0, signal.AgreementRatio, 0.01)
}

func TestGenerateSignal_EmptyAgentSetReturnsNeutralHold(t *testing.T) {
	e := New(nil, zerolog.Nop())
	signal := e.GenerateSignal(context.Background(), "AAPL", sampleMarket(), nil, nil)

	assert.Equal(t, domain.Hold, signal.SignalClass)
	assert.Equal(t, domain.PositionNone, signal.PositionSizeClass)
}

func TestGenerateSignal_PanickingAgentDowngradesToNeutralWithoutAborting(t *testing.T) {
	agentSet := []agents.AnalyzerAgent{
		newMockAgent("good", 1.0, 0.7, 0.8),
		&mockAgent{name: "bad", weight: 1.0, panics: true},
	}
	e := New(agentSet, zerolog.Nop())
	signal := e.GenerateSignal(context.Background(), "AAPL", sampleMarket(), nil, nil)

	assert.Len(t, signal.Opinions, 2)
	assert.Greater(t, signal.RawScore, 0.0)
}

func TestGenerateSignal_SlowAgentTreatedAsNeutralAfterDeadline(t *testing.T) {
	agentSet := []agents.AnalyzerAgent{
		newMockAgent("fast", 1.0, 0.7, 0.8),
		&mockAgent{name: "slow", weight: 1.0, delay: agents.PerAgentDeadline + 2*time.Second,
			opinion: domain.NewAgentOpinion("slow", "AAPL", -0.9, 0.9, "too late", nil)},
	}
	e := New(agentSet, zerolog.Nop())
	signal := e.GenerateSignal(context.Background(), "AAPL", sampleMarket(), nil, nil)

	// the slow agent's opinion should have been replaced by neutral (raw_score 0),
	// so the aggregate should still lean bullish from the fast agent alone.
	assert.Greater(t, signal.RawScore, 0.0)
}

func TestGenerateSignal_SingleOpinionAgreementRatioIsOne(t *testing.T) {
	agentSet := []agents.AnalyzerAgent{newMockAgent("solo", 1.0, 0.3, 0.6)}
	e := New(agentSet, zerolog.Nop())
	signal := e.GenerateSignal(context.Background(), "AAPL", sampleMarket(), nil, nil)

	assert.Equal(t, 1.0, signal.AgreementRatio)
}
