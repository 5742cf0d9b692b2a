// Package ensemble implements the weighted-voting aggregation that turns
// several AgentOpinions into one ConsensusSignal (§4.3).
package ensemble

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/signalforge/core/internal/adapters"
	"github.com/signalforge/core/internal/agents"
	"github.com/signalforge/core/internal/domain"
)

// Ensemble fans out to its registered agents in parallel, enforcing a
// per-agent deadline, and aggregates their opinions into one consensus
// signal. Grounded on the teacher's internal/orchestrator consensus
// aggregation shape, generalized to the spec's weighted-voting formula.
type Ensemble struct {
	agents []agents.AnalyzerAgent
	log    zerolog.Logger
}

// New builds an ensemble over the given agent set. Order is preserved in
// ConsensusSignal.Opinions but does not affect the aggregate.
func New(agentSet []agents.AnalyzerAgent, log zerolog.Logger) *Ensemble {
	return &Ensemble{agents: agentSet, log: log}
}

// weightedOpinion pairs an agent's opinion with the agent's registered
// ensemble weight, since AgentOpinion itself carries no weight (that is
// an ensemble-level configuration, not a per-call result).
type weightedOpinion struct {
	opinion domain.AgentOpinion
	weight  float64
}

// GenerateSignal implements §4.3's generate_signal operation.
func (e *Ensemble) GenerateSignal(ctx context.Context, ticker string, market agents.MarketData, sentiment *adapters.SentimentResult, history []adapters.HistoryBar) domain.ConsensusSignal {
	weighted := e.collectOpinions(ctx, ticker, market, sentiment, history)
	return aggregate(ticker, weighted)
}

// collectOpinions invokes every agent concurrently, bounding each call to
// agents.PerAgentDeadline and substituting a neutral opinion for any agent
// that panics, errors, or exceeds its deadline (§4.3 step 1, §5).
func (e *Ensemble) collectOpinions(ctx context.Context, ticker string, market agents.MarketData, sentiment *adapters.SentimentResult, history []adapters.HistoryBar) []weightedOpinion {
	if len(e.agents) == 0 {
		return nil
	}

	results := make([]weightedOpinion, len(e.agents))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, a := range e.agents {
		i, a := i, a
		g.Go(func() error {
			opinion := e.invokeWithDeadline(gctx, a, ticker, market, sentiment, history)
			mu.Lock()
			results[i] = weightedOpinion{opinion: opinion, weight: a.Weight()}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // invokeWithDeadline never returns an error; agent failures degrade to neutral

	return results
}

func (e *Ensemble) invokeWithDeadline(ctx context.Context, a agents.AnalyzerAgent, ticker string, market agents.MarketData, sentiment *adapters.SentimentResult, history []adapters.HistoryBar) (opinion domain.AgentOpinion) {
	deadlineCtx, cancel := context.WithTimeout(ctx, agents.PerAgentDeadline)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			e.log.Warn().Str("agent", a.Name()).Str("ticker", ticker).Interface("panic", r).Msg("agent panicked, substituting neutral opinion")
			opinion = domain.NeutralOpinion(a.Name(), ticker, "agent panicked")
		}
	}()

	result := make(chan domain.AgentOpinion, 1)
	go func() {
		result <- a.Analyze(deadlineCtx, ticker, market, sentiment, history)
	}()

	select {
	case opinion = <-result:
		return opinion
	case <-deadlineCtx.Done():
		e.log.Warn().Str("agent", a.Name()).Str("ticker", ticker).Msg("agent exceeded per-agent deadline, substituting neutral opinion")
		return domain.NeutralOpinion(a.Name(), ticker, "agent exceeded per-agent deadline")
	}
}

// aggregate implements §4.3 steps 2-6, the pure weighted-voting math.
func aggregate(ticker string, weighted []weightedOpinion) domain.ConsensusSignal {
	opinions := make([]domain.AgentOpinion, len(weighted))
	for i, w := range weighted {
		opinions[i] = w.opinion
	}

	if len(weighted) == 0 {
		return domain.ConsensusSignal{
			Ticker:            ticker,
			SignalClass:       domain.Hold,
			Confidence:        0,
			RawScore:          0,
			PositionSizeClass: domain.PositionNone,
			AgreementRatio:    0,
			Opinions:          nil,
		}
	}

	var weightedSum, totalWeight, confidenceSum float64
	var bullish, bearish, neutral int

	for _, w := range weighted {
		o := w.opinion
		ew := effectiveWeight(w.weight, o.Confidence)
		weightedSum += o.RawScore * ew
		totalWeight += ew
		confidenceSum += o.Confidence

		switch {
		case o.RawScore > 0.1:
			bullish++
		case o.RawScore < -0.1:
			bearish++
		default:
			neutral++
		}
	}

	if totalWeight == 0 {
		return domain.ConsensusSignal{
			Ticker:            ticker,
			SignalClass:       domain.Hold,
			Confidence:        0,
			RawScore:          0,
			PositionSizeClass: domain.PositionNone,
			AgreementRatio:    0,
			Opinions:          opinions,
		}
	}

	weightedScore := weightedSum / totalWeight

	maxDirectionCount := bullish
	if bearish > maxDirectionCount {
		maxDirectionCount = bearish
	}
	if neutral > maxDirectionCount {
		maxDirectionCount = neutral
	}
	agreementRatio := float64(maxDirectionCount) / float64(len(weighted))
	if len(weighted) == 1 {
		agreementRatio = 1.0
	}

	avgConfidence := confidenceSum / float64(len(weighted))
	countTerm := float64(len(weighted)) / 3
	if countTerm > 1 {
		countTerm = 1
	}
	consensusConfidence := clamp01(0.5*avgConfidence + 0.3*agreementRatio + 0.2*countTerm)

	signalClass := classifyConsensus(weightedScore)
	positionSize := positionSizeCascade(weightedScore, consensusConfidence, agreementRatio)

	return domain.ConsensusSignal{
		Ticker:            ticker,
		SignalClass:       signalClass,
		Confidence:        consensusConfidence,
		RawScore:          weightedScore,
		PositionSizeClass: positionSize,
		AgreementRatio:    agreementRatio,
		Opinions:          opinions,
	}
}

// effectiveWeight implements §4.3 step 2's effective_weight formula:
// agent.weight × (0.5 + 0.5 × opinion.confidence).
func effectiveWeight(agentWeight, confidence float64) float64 {
	return agentWeight * (0.5 + 0.5*confidence)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// classifyConsensus applies the tighter post-aggregation cutpoints from
// §4.3 step 5 (±0.1 / ±0.5), distinct from the per-agent cutpoints.
func classifyConsensus(weightedScore float64) domain.SignalClass {
	switch {
	case weightedScore >= domain.ConsensusCutpointStrong:
		return domain.StrongBuy
	case weightedScore >= domain.ConsensusCutpointWeak:
		return domain.Buy
	case weightedScore <= -domain.ConsensusCutpointStrong:
		return domain.StrongSell
	case weightedScore <= -domain.ConsensusCutpointWeak:
		return domain.Sell
	default:
		return domain.Hold
	}
}

// positionSizeCascade implements §4.3 step 6's first-match-wins rules.
func positionSizeCascade(weightedScore, confidence, agreementRatio float64) domain.PositionSizeClass {
	abs := weightedScore
	if abs < 0 {
		abs = -abs
	}

	switch {
	case abs < domain.ConsensusCutpointWeak || confidence < 0.3:
		return domain.PositionNone
	case confidence >= 0.7 && agreementRatio >= 0.8 && abs >= domain.ConsensusCutpointStrong:
		return domain.PositionLarge
	case confidence >= 0.5 && agreementRatio >= 0.6:
		return domain.PositionNormal
	case confidence >= 0.3:
		return domain.PositionMedium
	default:
		return domain.PositionSmall
	}
}
