package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/signalforge/core/internal/adapters"
	"github.com/signalforge/core/internal/agents"
	"github.com/signalforge/core/internal/domain"
	"github.com/signalforge/core/internal/learning"
)

// Cache is the shared, read-mostly, last-writer-wins-by-timestamp data
// cache from §5, narrowed to what the scheduler's fetch/read jobs need.
// The concrete implementation is internal/market's Redis-backed cache.
type Cache interface {
	SetQuote(ctx context.Context, ticker string, quote adapters.Quote, indicators adapters.Indicators) error
	SetSentiment(ctx context.Context, ticker string, sentiment adapters.SentimentResult) error
	GetMarketData(ctx context.Context, ticker string) (agents.MarketData, bool)
	GetSentiment(ctx context.Context, ticker string) (*adapters.SentimentResult, bool)
}

// SignalGenerator is the Ensemble.GenerateSignal contract (§4.3).
type SignalGenerator interface {
	GenerateSignal(ctx context.Context, ticker string, market agents.MarketData, sentiment *adapters.SentimentResult, history []adapters.HistoryBar) domain.ConsensusSignal
}

// TradePlan mirrors risk.TradePlan's fields the scheduler reads when
// building a StoredSignal; kept as a local shape so this package does
// not import internal/risk just for a struct literal. The composition
// root adapts risk.Translator.Translate into Jobs.Translate's func shape.
type TradePlan struct {
	SignalType        domain.StoredSignalType
	ConfidenceBucket  int
	EntryPrice        float64
	TargetPrice       float64
	StopLoss          float64
	ShareCount        int
	PositionSizeClass domain.PositionSizeClass
}

// SignalStore is the subset of signals.Store the scheduler drives.
type SignalStore interface {
	Create(ctx context.Context, signal domain.StoredSignal, opinions []domain.AgentOpinion, runLabel string) (int64, error)
	ListActive(ctx context.Context, ticker string) ([]domain.StoredSignal, error)
}

// LearningRunner is the learning.Loop.Run contract (§4.6).
type LearningRunner interface {
	Run(ctx context.Context, policy learning.Policy, outcomesByAgent map[string][]learning.ClosedOutcome, asOf time.Time, regime domain.MarketRegime, vix float64) (learning.RunResult, error)
}

// OutcomeSource supplies the closed trade outcomes optimize_agent_weights
// folds into rolling performance, grouped by agent name.
type OutcomeSource interface {
	ClosedOutcomesByAgent(ctx context.Context) (map[string][]learning.ClosedOutcome, error)
}

// RegimeSource supplies the inputs §4.6's regime classifier and freeze
// trigger need.
type RegimeSource interface {
	RegimeInputs(ctx context.Context) (learning.RegimeInputs, error)
	RegimeShiftsLast7Days(ctx context.Context) (int, error)
}

// BiasDataSource supplies the rolling-performance and weight-history data
// check_critical_biases runs its detectors over, independent of a
// scheduled learning run.
type BiasDataSource interface {
	AgentPerformances(ctx context.Context) ([]learning.AgentPerformance, error)
	WeightHistory(ctx context.Context) (map[string][]float64, error)
	AgentNames(ctx context.Context) ([]string, error)
}

// AgentStatusRecorder persists a coarse per-agent liveness record:
// how many opinions an agent produced this generate_daily_signals cycle,
// its average confidence, and how many of those opinions degraded to a
// neutral/zero-confidence fallback. Optional: a nil AgentStatusRecorder
// on Jobs simply skips this bookkeeping.
type AgentStatusRecorder interface {
	RecordAgentRun(ctx context.Context, agentName string, opinions int, avgConfidence float64, degraded int) error
}

// Jobs implements the seven operations in §4.7's job table. Each method
// iterates the configured watchlist, isolating per-ticker failures (logs
// and continues) and respecting ctx cancellation from the scheduler's
// wall-clock deadline by skipping and logging any ticker not yet started.
type Jobs struct {
	Tickers []string

	Quotes     adapters.QuoteSource
	History    adapters.HistorySource
	Indicators adapters.IndicatorSource
	Sentiment  adapters.SentimentSource
	Cache      Cache

	Ensemble    SignalGenerator
	Translate   func(signal domain.ConsensusSignal, entryPrice, portfolioValue float64) TradePlan
	Signals     SignalStore
	Learning    LearningRunner
	Outcomes    OutcomeSource
	Regimes     RegimeSource
	BiasData    BiasDataSource
	AgentStatus AgentStatusRecorder

	Alerts adapters.AlertSink

	DefaultPortfolioValue float64
	Log                   zerolog.Logger
}

// forEachTicker runs fn for every configured ticker concurrently, bounded
// by ctx. A ticker not yet started when ctx is done is logged SKIPPED
// rather than run (§5's soft wall-clock job deadline); a ticker whose fn
// returns an error is logged and does not abort the batch (§4.7).
func (j *Jobs) forEachTicker(ctx context.Context, jobName string, fn func(ctx context.Context, ticker string) error) {
	g, gctx := errgroup.WithContext(context.Background())
	for _, ticker := range j.Tickers {
		ticker := ticker
		g.Go(func() error {
			if ctx.Err() != nil {
				j.Log.Warn().Str("job", jobName).Str("ticker", ticker).Msg("SKIPPED: wall-clock deadline exceeded")
				return nil
			}
			if err := fn(gctx, ticker); err != nil {
				j.Log.Error().Err(err).Str("job", jobName).Str("ticker", ticker).Msg("per-ticker job step failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// FetchMarketData implements the every-5-minute job: refresh quotes and
// indicators for the watchlist into the data cache.
func (j *Jobs) FetchMarketData(ctx context.Context) {
	j.forEachTicker(ctx, "fetch_market_data", func(ctx context.Context, ticker string) error {
		quote, err := j.Quotes.GetQuote(ctx, ticker)
		if err != nil {
			return fmt.Errorf("fetching quote: %w", err)
		}
		indicators, err := j.Indicators.GetIndicators(ctx, ticker)
		if err != nil {
			return fmt.Errorf("fetching indicators: %w", err)
		}
		return j.Cache.SetQuote(ctx, ticker, quote, indicators)
	})
}

// FetchSentiment implements the every-30-minute job: refresh aggregated
// sentiment for the watchlist into the data cache.
func (j *Jobs) FetchSentiment(ctx context.Context) {
	j.forEachTicker(ctx, "fetch_sentiment", func(ctx context.Context, ticker string) error {
		sentiment, err := j.Sentiment.Aggregate(ctx, ticker)
		if err != nil {
			return fmt.Errorf("aggregating sentiment: %w", err)
		}
		return j.Cache.SetSentiment(ctx, ticker, sentiment)
	})
}

// agentRunStats accumulates one generate_daily_signals cycle's opinions
// for a single agent, across every ticker that cycle touched.
type agentRunStats struct {
	opinions      int
	confidenceSum float64
	degraded      int
}

// GenerateDailySignals implements the 09:00/12:00 job: run the ensemble
// over the watchlist and persist StoredSignals. runLabel distinguishes
// the two daily runs as part of the (ticker, day, run_label)
// de-duplication key (§5). Alongside persisting signals, it aggregates
// each agent's opinions across the whole watchlist into a coarse
// liveness record via AgentStatus (§4.7, "agent status").
func (j *Jobs) GenerateDailySignals(ctx context.Context) {
	runLabel := time.Now().In(time.Local).Format("15:04")

	var mu sync.Mutex
	stats := make(map[string]*agentRunStats)
	recordOpinions := func(opinions []domain.AgentOpinion) {
		mu.Lock()
		defer mu.Unlock()
		for _, op := range opinions {
			s, ok := stats[op.AgentName]
			if !ok {
				s = &agentRunStats{}
				stats[op.AgentName] = s
			}
			s.opinions++
			s.confidenceSum += op.Confidence
			if op.Confidence == 0 && op.RawScore == 0 {
				s.degraded++
			}
		}
	}

	j.forEachTicker(ctx, "generate_daily_signals", func(ctx context.Context, ticker string) error {
		market, ok := j.Cache.GetMarketData(ctx, ticker)
		if !ok {
			return fmt.Errorf("no cached market data for %s", ticker)
		}
		sentiment, _ := j.Cache.GetSentiment(ctx, ticker)

		history, err := j.History.GetHistorical(ctx, ticker, 200)
		if err != nil {
			j.Log.Warn().Err(err).Str("ticker", ticker).Msg("history unavailable, proceeding without it")
		}

		consensus := j.Ensemble.GenerateSignal(ctx, ticker, market, sentiment, history)
		recordOpinions(consensus.Opinions)
		plan := j.Translate(consensus, market.CurrentPrice, j.portfolioValue())

		stored := domain.StoredSignal{
			Ticker:      ticker,
			SignalType:  plan.SignalType,
			Confidence:  plan.ConfidenceBucket,
			EntryPrice:  plan.EntryPrice,
			TargetPrice: plan.TargetPrice,
			StopLoss:    plan.StopLoss,
			ShareCount:  plan.ShareCount,
			CreatedAt:   time.Now(),
		}

		_, err = j.Signals.Create(ctx, stored, consensus.Opinions, runLabel)
		return err
	})

	if j.AgentStatus == nil {
		return
	}
	for agentName, s := range stats {
		avgConfidence := 0.0
		if s.opinions > 0 {
			avgConfidence = s.confidenceSum / float64(s.opinions)
		}
		if err := j.AgentStatus.RecordAgentRun(ctx, agentName, s.opinions, avgConfidence, s.degraded); err != nil {
			j.Log.Warn().Err(err).Str("agent", agentName).Msg("recording agent status failed")
		}
	}
}

// AnalyzeSignalPerformance implements the 16:30 job: compare recent
// PENDING/APPROVED/EXECUTED signals against the current price. This job
// only observes and alerts; lifecycle advancement (approve/execute/close)
// remains an explicit operator or downstream-consumer action per §4.4.
func (j *Jobs) AnalyzeSignalPerformance(ctx context.Context) {
	j.forEachTicker(ctx, "analyze_signal_performance", func(ctx context.Context, ticker string) error {
		active, err := j.Signals.ListActive(ctx, ticker)
		if err != nil {
			return fmt.Errorf("listing active signals: %w", err)
		}
		if len(active) == 0 {
			return nil
		}

		quote, err := j.Quotes.GetQuote(ctx, ticker)
		if err != nil {
			return fmt.Errorf("fetching current price: %w", err)
		}
		if quote.CurrentPrice == nil {
			return nil
		}
		current := *quote.CurrentPrice

		for _, sig := range active {
			hitTarget := (sig.SignalType == domain.StoredBuy && current >= sig.TargetPrice) ||
				(sig.SignalType == domain.StoredSell && current <= sig.TargetPrice)
			hitStop := (sig.SignalType == domain.StoredBuy && current <= sig.StopLoss) ||
				(sig.SignalType == domain.StoredSell && current >= sig.StopLoss)

			if hitTarget || hitStop {
				j.Log.Info().
					Str("ticker", ticker).
					Int64("signal_id", sig.ID).
					Float64("current_price", current).
					Bool("hit_target", hitTarget).
					Bool("hit_stop", hitStop).
					Msg("active signal crossed target or stop")
			}
		}
		return nil
	})
}

// OptimizeAgentWeights implements the 00:00 job: run LearningLoop over
// the trailing-window outcomes and current regime reading.
func (j *Jobs) OptimizeAgentWeights(ctx context.Context) error {
	outcomes, err := j.Outcomes.ClosedOutcomesByAgent(ctx)
	if err != nil {
		return fmt.Errorf("loading closed outcomes: %w", err)
	}

	regimeIn, err := j.Regimes.RegimeInputs(ctx)
	if err != nil {
		return fmt.Errorf("loading regime inputs: %w", err)
	}
	regime := learning.DetectRegime(regimeIn)

	shifts, err := j.Regimes.RegimeShiftsLast7Days(ctx)
	if err != nil {
		return fmt.Errorf("loading regime shift count: %w", err)
	}

	if learning.ShouldFreezeLearning(shifts, regime, regimeIn.VIX) {
		j.Log.Warn().
			Str("regime", string(regime)).
			Float64("vix", regimeIn.VIX).
			Int("regime_shifts_7d", shifts).
			Msg("learning frozen this run per §4.6 freeze trigger")
		return nil
	}

	_, err = j.Learning.Run(ctx, learning.Policy{}, outcomes, time.Now(), regime, regimeIn.VIX)
	return err
}

// SendDailySummary implements the 08:30 job: push a digest of each
// watchlist ticker's currently active signals via the alert hook.
func (j *Jobs) SendDailySummary(ctx context.Context) {
	var digest []adapters.SignalAlertPayload

	j.forEachTicker(ctx, "send_daily_summary", func(ctx context.Context, ticker string) error {
		active, err := j.Signals.ListActive(ctx, ticker)
		if err != nil {
			return fmt.Errorf("listing active signals: %w", err)
		}
		for _, sig := range active {
			digest = append(digest, adapters.SignalAlertPayload{
				Ticker:      sig.Ticker,
				SignalType:  string(sig.SignalType),
				Confidence:  float64(sig.Confidence) / 5,
				EntryPrice:  sig.EntryPrice,
				TargetPrice: sig.TargetPrice,
				StopLoss:    sig.StopLoss,
				TimestampET: sig.CreatedAt.Format(time.RFC3339),
			})
		}
		return nil
	})

	if j.Alerts == nil {
		return
	}
	if err := j.Alerts.SendDailySummary(ctx, digest); err != nil {
		j.Log.Error().Err(err).Msg("failed to send daily summary")
	}
}

// CheckCriticalBiases implements the on-demand job: run the bias
// detectors independently of a scheduled learning run, surfacing any
// finding through the alert hook.
func (j *Jobs) CheckCriticalBiases(ctx context.Context) error {
	perfs, err := j.BiasData.AgentPerformances(ctx)
	if err != nil {
		return fmt.Errorf("loading agent performances: %w", err)
	}
	weightHistory, err := j.BiasData.WeightHistory(ctx)
	if err != nil {
		return fmt.Errorf("loading weight history: %w", err)
	}

	findings := []learning.BiasFinding{
		learning.DetectOverfitting(perfs),
		learning.DetectRecency(perfs),
		learning.DetectThrashing(weightHistory),
	}

	for _, f := range findings {
		if f.BiasType == "" || j.Alerts == nil {
			continue
		}
		for _, agentName := range f.AgentNames {
			if err := j.Alerts.SendLearningEvent(ctx, adapters.LearningEventPayload{
				EventType: string(domain.EventBiasDetected),
				AgentName: agentName,
				Reasoning: fmt.Sprintf("%s bias detected (severity %s)", f.BiasType, f.Severity),
			}); err != nil {
				j.Log.Error().Err(err).Str("bias_type", f.BiasType).Msg("failed to send bias alert")
			}
		}
	}
	return nil
}

func (j *Jobs) portfolioValue() float64 {
	if j.DefaultPortfolioValue > 0 {
		return j.DefaultPortfolioValue
	}
	return 100000
}
