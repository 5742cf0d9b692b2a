// Package signals persists ConsensusSignal/RiskTranslator output as
// StoredSignal + AgentAnalysis rows and enforces the lifecycle transition
// and de-duplication rules from §4.4/§5.
package signals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/signalforge/core/internal/adapters"
	"github.com/signalforge/core/internal/domain"
	"github.com/signalforge/core/internal/validation"
)

// ErrInvalidTransition is returned when a lifecycle advance would move a
// StoredSignal backward (§4.4, §5, P8).
var ErrInvalidTransition = errors.New("signal lifecycle transition would move backward")

// ErrCloseRequiresPnL is returned when CloseSignal is called without a
// numeric pnl, per §4.4's "a close requires a numeric pnl".
var ErrCloseRequiresPnL = errors.New("closing a signal requires a numeric pnl")

// PoolInterface is the subset of *pgxpool.Pool the store needs, narrowed
// so tests can substitute pgxmock, matching the teacher's narrow-pool-
// interface convention.
type PoolInterface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Store persists signals atomically together with their AgentAnalysis
// rows and enqueues alert hooks in the same transaction, per §4.4/§5.
// Grounded on the teacher's internal/db pgxpool usage pattern.
type Store struct {
	pool   PoolInterface
	alerts adapters.AlertSink
	log    zerolog.Logger
}

// NewStore wires a SignalStore against a connection pool and an alert
// sink; alerts may be nil to disable the alert-enqueue side effect (e.g.
// in backtest mode).
func NewStore(pool PoolInterface, alerts adapters.AlertSink, log zerolog.Logger) *Store {
	return &Store{pool: pool, alerts: alerts, log: log}
}

// AnalysisInput is one AgentOpinion reduced to its persisted shape,
// bucketed identically to the parent StoredSignal's confidence bucket
// rule.
type AnalysisInput struct {
	Opinion domain.AgentOpinion
}

// Create persists signal together with one AgentAnalysis row per
// opinion, in a single transaction, and enqueues a signal alert when the
// stored confidence bucket is >= 4 and the type is BUY or SELL (§4.4).
// runLabel is part of the (ticker, created_at_date, run_label)
// de-duplication key (§5); Create is a no-op returning the existing ID
// if a row for that key already exists.
func (s *Store) Create(ctx context.Context, signal domain.StoredSignal, opinions []domain.AgentOpinion, runLabel string) (int64, error) {
	if verrs := validateStoredSignal(signal); verrs.HasErrors() {
		return 0, fmt.Errorf("invalid signal: %w", verrs)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var existingID int64
	err = tx.QueryRow(ctx, `
		SELECT id FROM stored_signals
		WHERE ticker = $1 AND created_at::date = $2::date AND run_label = $3
	`, signal.Ticker, signal.CreatedAt, runLabel).Scan(&existingID)
	if err == nil {
		s.log.Debug().Str("ticker", signal.Ticker).Str("run_label", runLabel).Msg("signal already exists for this (ticker, day, run_label), skipping")
		return existingID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("checking for existing signal: %w", err)
	}

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO stored_signals
			(ticker, signal_type, confidence, entry_price, target_price, stop_loss, share_count, status, created_at, notes, run_label)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, signal.Ticker, signal.SignalType, signal.Confidence, signal.EntryPrice, signal.TargetPrice,
		signal.StopLoss, signal.ShareCount, domain.StatusPending, signal.CreatedAt, signal.Notes, runLabel).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting stored signal: %w", err)
	}

	for _, opinion := range opinions {
		_, err = tx.Exec(ctx, `
			INSERT INTO agent_analyses (signal_id, agent_name, recommendation, confidence, reasoning, factors_snapshot)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, id, opinion.AgentName, opinion.SignalClass, confidenceBucketOf(opinion.Confidence), opinion.Reasoning, opinion.Factors)
		if err != nil {
			return 0, fmt.Errorf("inserting agent analysis for %s: %w", opinion.AgentName, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing signal transaction: %w", err)
	}

	if s.alerts != nil && signal.Confidence >= 4 && (signal.SignalType == domain.StoredBuy || signal.SignalType == domain.StoredSell) {
		payload := adapters.SignalAlertPayload{
			Ticker:      signal.Ticker,
			SignalType:  string(signal.SignalType),
			Confidence:  float64(signal.Confidence) / 5,
			EntryPrice:  signal.EntryPrice,
			TargetPrice: signal.TargetPrice,
			StopLoss:    signal.StopLoss,
			TimestampET: signal.CreatedAt.Format(time.RFC3339),
		}
		if alertErr := s.alerts.SendSignalAlert(ctx, payload); alertErr != nil {
			s.log.Warn().Err(alertErr).Str("ticker", signal.Ticker).Msg("signal alert enqueue failed")
		}
	}

	return id, nil
}

// validateStoredSignal catches malformed ensemble/risk-translator output
// before it reaches the database, per §4.4's persisted-field invariants.
func validateStoredSignal(signal domain.StoredSignal) validation.ValidationErrors {
	v := validation.NewSignalValidator()
	v.Ticker("ticker", signal.Ticker)
	v.ValidateSignalType(string(signal.SignalType))
	v.ValidateConfidence(signal.Confidence)
	v.ValidateShareCount(signal.ShareCount)
	v.ValidatePrice("entry_price", signal.EntryPrice)
	v.ValidatePrice("target_price", signal.TargetPrice)
	v.ValidatePrice("stop_loss", signal.StopLoss)
	return v.Errors()
}

func confidenceBucketOf(confidence float64) int {
	switch {
	case confidence < 0.2:
		return 1
	case confidence < 0.4:
		return 2
	case confidence < 0.6:
		return 3
	case confidence < 0.8:
		return 4
	default:
		return 5
	}
}

// Approve advances PENDING -> APPROVED.
func (s *Store) Approve(ctx context.Context, id int64) error {
	return s.transition(ctx, id, domain.StatusApproved, nil, nil)
}

// Execute advances APPROVED -> EXECUTED, stamping executed_at.
func (s *Store) Execute(ctx context.Context, id int64) error {
	now := time.Now()
	return s.transition(ctx, id, domain.StatusExecuted, &now, nil)
}

// Close advances EXECUTED -> CLOSED, stamping closed_at and pnl. A
// missing pnl is a caller error (§4.4).
func (s *Store) Close(ctx context.Context, id int64, pnl *float64) error {
	if pnl == nil {
		return ErrCloseRequiresPnL
	}
	now := time.Now()
	return s.transitionWithPnL(ctx, id, domain.StatusClosed, &now, pnl)
}

func (s *Store) transition(ctx context.Context, id int64, to domain.SignalStatus, executedAt *time.Time, closedAt *time.Time) error {
	return s.transitionWithPnL(ctx, id, to, executedAt, nil)
}

// ListActive returns every StoredSignal still in PENDING/APPROVED/EXECUTED
// for a ticker, newest first, for the analyze_signal_performance job
// (§4.7) to mark against the current price.
func (s *Store) ListActive(ctx context.Context, ticker string) ([]domain.StoredSignal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, ticker, signal_type, confidence, entry_price, target_price, stop_loss,
			share_count, status, created_at, executed_at, closed_at, pnl, notes
		FROM stored_signals
		WHERE ticker = $1 AND status IN ($2, $3, $4)
		ORDER BY created_at DESC
	`, ticker, domain.StatusPending, domain.StatusApproved, domain.StatusExecuted)
	if err != nil {
		return nil, fmt.Errorf("querying active signals for %s: %w", ticker, err)
	}
	defer rows.Close()

	var out []domain.StoredSignal
	for rows.Next() {
		var sig domain.StoredSignal
		if err := rows.Scan(&sig.ID, &sig.Ticker, &sig.SignalType, &sig.Confidence, &sig.EntryPrice,
			&sig.TargetPrice, &sig.StopLoss, &sig.ShareCount, &sig.Status, &sig.CreatedAt,
			&sig.ExecutedAt, &sig.ClosedAt, &sig.PnL, &sig.Notes); err != nil {
			return nil, fmt.Errorf("scanning active signal row: %w", err)
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// ListForBacktest returns every BUY StoredSignal in [start, end], oldest
// first, optionally narrowed to tickers (no filter if tickers is empty),
// for cmd/backtest's rank/allocate/simulate replay (§4.5).
func (s *Store) ListForBacktest(ctx context.Context, start, end time.Time, tickers []string) ([]domain.StoredSignal, error) {
	var rows pgx.Rows
	var err error
	if len(tickers) == 0 {
		rows, err = s.pool.Query(ctx, `
			SELECT id, ticker, signal_type, confidence, entry_price, target_price, stop_loss,
				share_count, status, created_at, executed_at, closed_at, pnl, notes
			FROM stored_signals
			WHERE signal_type = $1 AND created_at >= $2 AND created_at <= $3
			ORDER BY created_at ASC
		`, domain.StoredBuy, start, end)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT id, ticker, signal_type, confidence, entry_price, target_price, stop_loss,
				share_count, status, created_at, executed_at, closed_at, pnl, notes
			FROM stored_signals
			WHERE signal_type = $1 AND created_at >= $2 AND created_at <= $3 AND ticker = ANY($4)
			ORDER BY created_at ASC
		`, domain.StoredBuy, start, end, tickers)
	}
	if err != nil {
		return nil, fmt.Errorf("querying signals for backtest: %w", err)
	}
	defer rows.Close()

	var out []domain.StoredSignal
	for rows.Next() {
		var sig domain.StoredSignal
		if err := rows.Scan(&sig.ID, &sig.Ticker, &sig.SignalType, &sig.Confidence, &sig.EntryPrice,
			&sig.TargetPrice, &sig.StopLoss, &sig.ShareCount, &sig.Status, &sig.CreatedAt,
			&sig.ExecutedAt, &sig.ClosedAt, &sig.PnL, &sig.Notes); err != nil {
			return nil, fmt.Errorf("scanning backtest signal row: %w", err)
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

func (s *Store) transitionWithPnL(ctx context.Context, id int64, to domain.SignalStatus, stampedAt *time.Time, pnl *float64) error {
	var current domain.SignalStatus
	if err := s.pool.QueryRow(ctx, `SELECT status FROM stored_signals WHERE id = $1`, id).Scan(&current); err != nil {
		return fmt.Errorf("loading current status: %w", err)
	}

	if current == to {
		return nil // idempotent re-attempt at the same terminal state
	}
	if !domain.CanTransition(current, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, to)
	}

	switch to {
	case domain.StatusApproved:
		_, err := s.pool.Exec(ctx, `UPDATE stored_signals SET status = $1 WHERE id = $2 AND status = $3`, to, id, current)
		return err
	case domain.StatusExecuted:
		_, err := s.pool.Exec(ctx, `UPDATE stored_signals SET status = $1, executed_at = $2 WHERE id = $3 AND status = $4`, to, stampedAt, id, current)
		return err
	case domain.StatusClosed:
		_, err := s.pool.Exec(ctx, `UPDATE stored_signals SET status = $1, closed_at = $2, pnl = $3 WHERE id = $4 AND status = $5`, to, stampedAt, pnl, id, current)
		return err
	default:
		return fmt.Errorf("unsupported target status %s", to)
	}
}
