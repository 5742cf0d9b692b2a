package agents

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/signalforge/core/internal/adapters"
	"github.com/signalforge/core/internal/domain"
)

// RuleBasedAgent is the deterministic local agent from §4.2: a weighted
// sum of RSI, momentum, moving-average position, volume trend, and
// sentiment, with no external call.
type RuleBasedAgent struct {
	name   string
	weight float64
	log    zerolog.Logger
}

// NewRuleBasedAgent constructs the local rule-based agent with the given
// ensemble weight.
func NewRuleBasedAgent(name string, weight float64, base zerolog.Logger) *RuleBasedAgent {
	return &RuleBasedAgent{name: name, weight: weight, log: NewAgentLogger(base, name, "rule_based")}
}

func (a *RuleBasedAgent) Name() string    { return a.name }
func (a *RuleBasedAgent) Weight() float64 { return a.weight }

// factorScore is one sub-score the rule-based agent computes; ok is false
// when the underlying data point was unavailable (so it does not count
// toward the confidence denominator).
type factorScore struct {
	name  string
	value float64
	ok    bool
}

func (a *RuleBasedAgent) Analyze(ctx context.Context, ticker string, market MarketData, sentiment *adapters.SentimentResult, history []adapters.HistoryBar) domain.AgentOpinion {
	if opinion, ok := validateInput(a.name, ticker, market); !ok {
		return opinion
	}

	factors := []factorScore{
		rsiFactor(market),
		momentumFactor(market),
		movingAverageFactor(market),
		volumeTrendFactor(market),
		sentimentFactor(sentiment),
	}

	var weightedSum float64
	var withData int
	var nonZeroAgreeing int
	var nonZeroTotal int
	var dominantSign int

	for _, f := range factors {
		if !f.ok {
			continue
		}
		withData++
		weightedSum += f.value

		if f.value != 0 {
			nonZeroTotal++
			sign := sign(f.value)
			if dominantSign == 0 {
				dominantSign = sign
			}
			if sign == dominantSign {
				nonZeroAgreeing++
			}
		}
	}

	rawScore := 0.0
	if withData > 0 {
		rawScore = weightedSum / float64(len(factors))
	}

	dataFraction := float64(withData) / float64(len(factors))
	agreementFraction := 1.0
	if nonZeroTotal > 0 {
		agreementFraction = float64(nonZeroAgreeing) / float64(nonZeroTotal)
	}
	confidence := 0.4*dataFraction + 0.6*agreementFraction

	factorMap := make(map[string]float64, len(factors))
	for _, f := range factors {
		if f.ok {
			factorMap[f.name] = f.value
		}
	}

	a.log.Debug().
		Str("ticker", ticker).
		Float64("raw_score", rawScore).
		Float64("confidence", confidence).
		Msg("rule-based analysis complete")

	return domain.NewAgentOpinion(a.name, ticker, rawScore, confidence, "rule-based weighted-factor analysis", factorMap)
}

func sign(v float64) int {
	if v > 0 {
		return 1
	}
	if v < 0 {
		return -1
	}
	return 0
}

// rsiFactor applies the cutpoints from §4.2: RSI <= 30 strongly bullish,
// RSI >= 70 strongly bearish, 50/50 neutral band returns 0.
func rsiFactor(m MarketData) factorScore {
	if m.RSI == 0 {
		return factorScore{name: "rsi", ok: false}
	}
	switch {
	case m.RSI <= 30:
		return factorScore{name: "rsi", value: 0.8, ok: true}
	case m.RSI >= 70:
		return factorScore{name: "rsi", value: -0.8, ok: true}
	case m.RSI > 45 && m.RSI < 55:
		return factorScore{name: "rsi", value: 0, ok: true}
	default:
		// linear interpolation between the neutral band and the strong cutpoints
		if m.RSI < 50 {
			return factorScore{name: "rsi", value: (50 - m.RSI) / 20 * 0.8, ok: true}
		}
		return factorScore{name: "rsi", value: -(m.RSI - 50) / 20 * 0.8, ok: true}
	}
}

// momentumFactor treats >10% over 7 days as strong momentum.
func momentumFactor(m MarketData) factorScore {
	if m.PriceChange7d == 0 {
		return factorScore{name: "momentum", ok: false}
	}
	value := m.PriceChange7d / 10 * 0.6
	if value > 0.6 {
		value = 0.6
	}
	if value < -0.6 {
		value = -0.6
	}
	return factorScore{name: "momentum", value: value, ok: true}
}

func movingAverageFactor(m MarketData) factorScore {
	if m.SMA50 == 0 || m.SMA200 == 0 {
		return factorScore{name: "moving_average", ok: false}
	}
	if m.SMA50 > m.SMA200 {
		return factorScore{name: "moving_average", value: 0.4, ok: true}
	}
	if m.SMA50 < m.SMA200 {
		return factorScore{name: "moving_average", value: -0.4, ok: true}
	}
	return factorScore{name: "moving_average", value: 0, ok: true}
}

// volumeTrendFactor maps {increasing, decreasing, neutral} to {+0.3, -0.2, 0}.
func volumeTrendFactor(m MarketData) factorScore {
	switch m.VolumeTrend {
	case "increasing":
		return factorScore{name: "volume_trend", value: 0.3, ok: true}
	case "decreasing":
		return factorScore{name: "volume_trend", value: -0.2, ok: true}
	case "neutral":
		return factorScore{name: "volume_trend", value: 0, ok: true}
	default:
		return factorScore{name: "volume_trend", ok: false}
	}
}

func sentimentFactor(sentiment *adapters.SentimentResult) factorScore {
	if sentiment == nil {
		return factorScore{name: "sentiment", ok: false}
	}
	return factorScore{name: "sentiment", value: sentiment.CombinedSentiment, ok: true}
}
