package db

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/signalforge/core/internal/domain"
	"github.com/signalforge/core/internal/learning"
)

// regimeShiftReasoningSeparator splits a REGIME_SHIFT learning_event's
// "OLD -> NEW" reasoning string, mirroring how internal/learning.Loop.Run
// writes it.
const regimeShiftReasoningSeparator = " -> "

// LearningPool is the subset of *pgxpool.Pool LearningStore needs,
// narrowed the same way internal/signals.PoolInterface is.
type LearningPool interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// LearningStore is the database-backed implementation of
// learning.WeightStore, scheduler.OutcomeSource, scheduler.RegimeSource,
// and scheduler.BiasDataSource, against migrations/002_learning.sql's
// agent_weights/learning_events tables plus the existing
// stored_signals/agent_analyses/candlesticks tables.
//
// There is no live market-data vendor integration in scope (§1/§6), so
// RegimeInputs sources VIX and SPY from whatever candlesticks rows exist
// under the "VIX"/"SPY" symbols (defaulting to 0 when absent) rather than
// reaching out to a vendor, and computes AISectorCorrelation as the
// Pearson correlation between SPY's daily returns and the watchlist
// basket's average daily return over the trailing 30 days. This is a
// deliberate simplification, not a stub: the regime classifier itself
// (learning.DetectRegime) still runs its full VIX/SMA/correlation rule
// chain against these inputs.
type LearningStore struct {
	pool LearningPool
	// SectorBasket is the watchlist tickers AISectorCorrelation averages
	// against SPY; set at construction from the scheduler's configured
	// ticker list.
	SectorBasket []string
}

// NewLearningStore builds a LearningStore over pool, correlating SPY
// against sectorBasket for regime detection's AISectorCorrelation input.
func NewLearningStore(pool LearningPool, sectorBasket []string) *LearningStore {
	return &LearningStore{pool: pool, SectorBasket: sectorBasket}
}

// CurrentWeights returns each agent's most recently recorded weight.
func (s *LearningStore) CurrentWeights(ctx context.Context) (map[string]float64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (agent_name) agent_name, weight
		FROM agent_weights
		ORDER BY agent_name, recorded_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying current weights: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var name string
		var weight float64
		if err := rows.Scan(&name, &weight); err != nil {
			return nil, fmt.Errorf("scanning current weight: %w", err)
		}
		out[name] = weight
	}
	return out, rows.Err()
}

// WeightAsOf returns agentName's most recently recorded weight at or
// before asOf, and false if no such row exists.
func (s *LearningStore) WeightAsOf(ctx context.Context, agentName string, asOf time.Time) (float64, bool, error) {
	var weight float64
	err := s.pool.QueryRow(ctx, `
		SELECT weight FROM agent_weights
		WHERE agent_name = $1 AND recorded_at <= $2
		ORDER BY recorded_at DESC
		LIMIT 1
	`, agentName, asOf).Scan(&weight)
	if err == pgx.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("querying weight as of %s for %s: %w", asOf, agentName, err)
	}
	return weight, true, nil
}

// RecentWeightHistory returns agentName's weight snapshots recorded in
// the trailing `days` days, oldest first, for DetectThrashing.
func (s *LearningStore) RecentWeightHistory(ctx context.Context, agentName string, days int) ([]float64, error) {
	since := time.Now().AddDate(0, 0, -days)
	rows, err := s.pool.Query(ctx, `
		SELECT weight FROM agent_weights
		WHERE agent_name = $1 AND recorded_at >= $2
		ORDER BY recorded_at ASC
	`, agentName, since)
	if err != nil {
		return nil, fmt.Errorf("querying weight history for %s: %w", agentName, err)
	}
	defer rows.Close()

	var history []float64
	for rows.Next() {
		var weight float64
		if err := rows.Scan(&weight); err != nil {
			return nil, fmt.Errorf("scanning weight history for %s: %w", agentName, err)
		}
		history = append(history, weight)
	}
	return history, rows.Err()
}

// LastRegime returns the regime named on the most recent REGIME_SHIFT
// learning_event's "OLD -> NEW" reasoning, or "" if no such event has
// ever been recorded (the loop's first-ever run).
func (s *LearningStore) LastRegime(ctx context.Context) (domain.MarketRegime, error) {
	var reasoning string
	err := s.pool.QueryRow(ctx, `
		SELECT reasoning FROM learning_events
		WHERE event_type = $1
		ORDER BY recorded_at DESC
		LIMIT 1
	`, domain.EventRegimeShift).Scan(&reasoning)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying last regime: %w", err)
	}

	parts := strings.SplitN(reasoning, regimeShiftReasoningSeparator, 2)
	if len(parts) != 2 {
		return "", nil
	}
	return domain.MarketRegime(strings.TrimSpace(parts[1])), nil
}

// RegimeShiftsSince counts REGIME_SHIFT events recorded at or after
// since, for the freeze trigger's trailing-7-day check.
func (s *LearningStore) RegimeShiftsSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM learning_events
		WHERE event_type = $1 AND recorded_at >= $2
	`, domain.EventRegimeShift, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting regime shifts since %s: %w", since, err)
	}
	return count, nil
}

// RegimeShiftsLast7Days is the scheduler.RegimeSource convenience form of
// RegimeShiftsSince used outside a Loop.Run call.
func (s *LearningStore) RegimeShiftsLast7Days(ctx context.Context) (int, error) {
	return s.RegimeShiftsSince(ctx, time.Now().AddDate(0, 0, -7))
}

// SaveWeights appends one row per domain.AgentWeight. A zero Date stamps
// recorded_at as NOW().
func (s *LearningStore) SaveWeights(ctx context.Context, weights []domain.AgentWeight) error {
	for _, w := range weights {
		recordedAt := w.Date
		if recordedAt.IsZero() {
			recordedAt = time.Now()
		}
		_, err := s.pool.Exec(ctx, `
			INSERT INTO agent_weights (
				agent_name, weight, win_rate_7, trades_7, win_rate_30, trades_30,
				win_rate_90, trades_90, recorded_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, w.AgentName, w.Weight, w.WinRate7, w.Trades7, w.WinRate30, w.Trades30,
			w.WinRate90, w.Trades90, recordedAt)
		if err != nil {
			return fmt.Errorf("saving weight for %s: %w", w.AgentName, err)
		}
	}
	return nil
}

// SaveEvents appends one row per domain.LearningEvent. A zero Date
// stamps recorded_at as NOW().
func (s *LearningStore) SaveEvents(ctx context.Context, events []domain.LearningEvent) error {
	for _, e := range events {
		recordedAt := e.Date
		if recordedAt.IsZero() {
			recordedAt = time.Now()
		}
		var agentName, biasType *string
		if e.AgentName != "" {
			agentName = &e.AgentName
		}
		if e.BiasType != "" {
			biasType = &e.BiasType
		}
		_, err := s.pool.Exec(ctx, `
			INSERT INTO learning_events (
				event_type, agent_name, old_value, new_value, bias_type,
				reasoning, confidence_level, recorded_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, e.EventType, agentName, e.OldValue, e.NewValue, biasType,
			e.Reasoning, e.ConfidenceLevel, recordedAt)
		if err != nil {
			return fmt.Errorf("saving %s event: %w", e.EventType, err)
		}
	}
	return nil
}

// ClosedOutcomesByAgent implements scheduler.OutcomeSource: every
// agent_analyses row whose parent stored_signal has been CLOSED with a
// recorded pnl, grouped by agent name.
func (s *LearningStore) ClosedOutcomesByAgent(ctx context.Context) (map[string][]learning.ClosedOutcome, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.agent_name, a.recommendation, s.pnl, s.closed_at
		FROM agent_analyses a
		JOIN stored_signals s ON s.id = a.signal_id
		WHERE s.status = $1 AND s.pnl IS NOT NULL AND s.closed_at IS NOT NULL
	`, domain.StatusClosed)
	if err != nil {
		return nil, fmt.Errorf("querying closed outcomes: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]learning.ClosedOutcome)
	for rows.Next() {
		var agentName, recommendation string
		var pnl float64
		var closedAt time.Time
		if err := rows.Scan(&agentName, &recommendation, &pnl, &closedAt); err != nil {
			return nil, fmt.Errorf("scanning closed outcome: %w", err)
		}
		out[agentName] = append(out[agentName], learning.ClosedOutcome{
			AgentName:      agentName,
			Recommendation: domain.SignalClass(recommendation),
			PnL:            pnl,
			ClosedAt:       closedAt,
		})
	}
	return out, rows.Err()
}

// RegimeInputs implements scheduler.RegimeSource's market-wide reading.
// See the LearningStore doc comment for the VIX/SPY/correlation
// simplification this takes in the absence of a live vendor feed.
func (s *LearningStore) RegimeInputs(ctx context.Context) (learning.RegimeInputs, error) {
	vix, err := s.latestClose(ctx, "VIX")
	if err != nil {
		return learning.RegimeInputs{}, fmt.Errorf("loading VIX: %w", err)
	}
	spyClose, err := s.latestClose(ctx, "SPY")
	if err != nil {
		return learning.RegimeInputs{}, fmt.Errorf("loading SPY close: %w", err)
	}
	spySMA, err := s.sma200(ctx, "SPY")
	if err != nil {
		return learning.RegimeInputs{}, fmt.Errorf("loading SPY 200-day SMA: %w", err)
	}
	correlation, err := s.sectorCorrelation(ctx)
	if err != nil {
		return learning.RegimeInputs{}, fmt.Errorf("computing sector correlation: %w", err)
	}

	return learning.RegimeInputs{
		VIX:                 vix,
		SPYClose:            spyClose,
		SPY200DaySMA:        spySMA,
		AISectorCorrelation: correlation,
	}, nil
}

func (s *LearningStore) latestClose(ctx context.Context, symbol string) (float64, error) {
	var close float64
	err := s.pool.QueryRow(ctx, `
		SELECT close FROM candlesticks
		WHERE symbol = $1
		ORDER BY open_time DESC
		LIMIT 1
	`, symbol).Scan(&close)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return close, nil
}

func (s *LearningStore) sma200(ctx context.Context, symbol string) (float64, error) {
	var sma *float64
	err := s.pool.QueryRow(ctx, `
		SELECT AVG(close) FROM (
			SELECT close FROM candlesticks
			WHERE symbol = $1
			ORDER BY open_time DESC
			LIMIT 200
		) recent
	`, symbol).Scan(&sma)
	if err != nil {
		return 0, err
	}
	if sma == nil {
		return 0, nil
	}
	return *sma, nil
}

// sectorCorrelation returns the Pearson correlation between SPY's daily
// returns and the SectorBasket's average daily return over the trailing
// 31 closes (30 returns). Defaults to 1.0 (fully correlated, i.e. not
// DIVERGENCE) when there isn't enough data to compute it, so a cold
// database doesn't spuriously trip the DIVERGENCE regime.
func (s *LearningStore) sectorCorrelation(ctx context.Context) (float64, error) {
	if len(s.SectorBasket) == 0 {
		return 1.0, nil
	}

	spyReturns, err := s.dailyReturns(ctx, "SPY")
	if err != nil {
		return 0, err
	}

	basketReturns := make([][]float64, 0, len(s.SectorBasket))
	for _, ticker := range s.SectorBasket {
		if ticker == "SPY" {
			continue
		}
		returns, err := s.dailyReturns(ctx, ticker)
		if err != nil {
			return 0, err
		}
		if len(returns) > 0 {
			basketReturns = append(basketReturns, returns)
		}
	}
	if len(spyReturns) < 2 || len(basketReturns) == 0 {
		return 1.0, nil
	}

	avgBasket := averageSeries(basketReturns)
	n := min(len(spyReturns), len(avgBasket))
	if n < 2 {
		return 1.0, nil
	}
	return pearsonCorrelation(spyReturns[:n], avgBasket[:n]), nil
}

func (s *LearningStore) dailyReturns(ctx context.Context, symbol string) ([]float64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT close FROM candlesticks
		WHERE symbol = $1
		ORDER BY open_time DESC
		LIMIT 31
	`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var closes []float64
	for rows.Next() {
		var close float64
		if err := rows.Scan(&close); err != nil {
			return nil, err
		}
		closes = append(closes, close)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// closes is newest-first; reverse to oldest-first before diffing.
	for i, j := 0, len(closes)-1; i < j; i, j = i+1, j-1 {
		closes[i], closes[j] = closes[j], closes[i]
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
	}
	return returns, nil
}

func averageSeries(series [][]float64) []float64 {
	shortest := series[0]
	for _, s := range series[1:] {
		if len(s) < len(shortest) {
			shortest = s
		}
	}
	n := len(shortest)
	avg := make([]float64, n)
	for _, s := range series {
		for i := 0; i < n; i++ {
			avg[i] += s[i]
		}
	}
	for i := range avg {
		avg[i] /= float64(len(series))
	}
	return avg
}

func pearsonCorrelation(a, b []float64) float64 {
	n := float64(len(a))
	var sumA, sumB, sumAB, sumA2, sumB2 float64
	for i := range a {
		sumA += a[i]
		sumB += b[i]
		sumAB += a[i] * b[i]
		sumA2 += a[i] * a[i]
		sumB2 += b[i] * b[i]
	}
	numerator := n*sumAB - sumA*sumB
	denominator := math.Sqrt((n*sumA2 - sumA*sumA) * (n*sumB2 - sumB*sumB))
	if denominator == 0 {
		return 1.0
	}
	return numerator / denominator
}

// AgentPerformances implements scheduler.BiasDataSource: each known
// agent's rolling win rate, computed the same way Loop.Run does, over
// ClosedOutcomesByAgent's data as of now.
func (s *LearningStore) AgentPerformances(ctx context.Context) ([]learning.AgentPerformance, error) {
	outcomes, err := s.ClosedOutcomesByAgent(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	perfs := make([]learning.AgentPerformance, 0, len(outcomes))
	for name, agentOutcomes := range outcomes {
		perfs = append(perfs, learning.ComputeRollingPerformance(name, agentOutcomes, now))
	}
	return perfs, nil
}

// WeightHistory implements scheduler.BiasDataSource: each known agent's
// trailing-7-day weight history, for DetectThrashing.
func (s *LearningStore) WeightHistory(ctx context.Context) (map[string][]float64, error) {
	names, err := s.AgentNames(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]float64, len(names))
	for _, name := range names {
		history, err := s.RecentWeightHistory(ctx, name, 7)
		if err != nil {
			return nil, err
		}
		out[name] = history
	}
	return out, nil
}

// AgentNames implements scheduler.BiasDataSource: every agent name that
// has ever recorded a weight.
func (s *LearningStore) AgentNames(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT agent_name FROM agent_weights ORDER BY agent_name`)
	if err != nil {
		return nil, fmt.Errorf("querying agent names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning agent name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
