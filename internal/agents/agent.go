// Package agents implements the analyzer agent contract (§4.2): a
// stateless capability that turns market/sentiment/history inputs into one
// domain.AgentOpinion, wrapped so that input validation, breaker-open, and
// retry-exhaustion failures all degrade to a neutral opinion rather than
// propagating an error.
package agents

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/signalforge/core/internal/adapters"
	"github.com/signalforge/core/internal/config"
	"github.com/signalforge/core/internal/domain"
)

// MarketData is the subset of QuoteSource + IndicatorSource output an
// agent analyzes, bundled for convenience.
type MarketData struct {
	CurrentPrice   float64
	ChangePercent  float64
	Volume         float64
	High           float64
	Low            float64
	Open           float64
	PreviousClose  float64
	RSI            float64
	PriceChange7d  float64
	PriceChange30d float64
	VolumeTrend    string // "increasing", "decreasing", "neutral"
	SMA50          float64
	SMA200         float64
}

// Empty reports whether the caller supplied no usable market data at all,
// the trigger for the framework's neutral-opinion fallback.
func (m MarketData) Empty() bool {
	return m.CurrentPrice == 0 && m.RSI == 0 && m.PriceChange7d == 0 && m.PriceChange30d == 0
}

// AnalyzerAgent is the one-operation contract every agent variant
// implements (§4.2, §9's "capability interface").
type AnalyzerAgent interface {
	Name() string
	Weight() float64
	Analyze(ctx context.Context, ticker string, market MarketData, sentiment *adapters.SentimentResult, history []adapters.HistoryBar) domain.AgentOpinion
}

// validateInput implements the framework-level input validation from
// §4.2: an absent/non-string ticker or empty market data yields a neutral
// opinion before the agent-specific logic ever runs.
func validateInput(agentName, ticker string, market MarketData) (domain.AgentOpinion, bool) {
	if ticker == "" {
		return domain.NeutralOpinion(agentName, ticker, "missing ticker"), false
	}
	if market.Empty() {
		return domain.NeutralOpinion(agentName, ticker, "missing or empty market_data"), false
	}
	return domain.AgentOpinion{}, true
}

// NewAgentLogger gives every agent a component-scoped zerolog logger
// carrying its name and kind.
func NewAgentLogger(base zerolog.Logger, name, kind string) zerolog.Logger {
	return config.NewAgentLogger(base, name, kind)
}

// PerAgentDeadline is the per-agent timeout the ensemble enforces when
// fanning out calls in parallel (§5): an agent that has not returned
// within this window is treated as having produced a neutral opinion.
const PerAgentDeadline = 8 * time.Second
