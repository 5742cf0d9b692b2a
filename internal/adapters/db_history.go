package adapters

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// HistoryQueryPool is the pgxpool.Pool surface DBHistorySource needs,
// narrowed the same way internal/signals.PoolInterface is.
type HistoryQueryPool interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// DBHistorySource implements HistorySource by replaying persisted
// candlesticks (§4.5's backtest data feed), extended to the full OHLCV
// columns a backtest simulator needs for its stop-loss/take-profit
// checks, which a close-only series can't support.
type DBHistorySource struct {
	pool     HistoryQueryPool
	interval string
}

// NewDBHistorySource wires a HistorySource against a live connection
// pool, replaying the given candlestick interval (e.g. "1d").
func NewDBHistorySource(pool HistoryQueryPool, interval string) *DBHistorySource {
	return &DBHistorySource{pool: pool, interval: interval}
}

// GetHistorical returns up to `days` of daily OHLCV bars for ticker,
// oldest first, from the persisted candlesticks table.
func (d *DBHistorySource) GetHistorical(ctx context.Context, ticker string, days int) ([]HistoryBar, error) {
	query := `
		SELECT open_time, open, high, low, close, volume
		FROM candlesticks
		WHERE symbol = $1 AND interval = $2
		ORDER BY open_time DESC
		LIMIT $3
	`
	rows, err := d.pool.Query(ctx, query, ticker, d.interval, days)
	if err != nil {
		return nil, fmt.Errorf("querying candlesticks for %s: %w", ticker, err)
	}
	defer rows.Close()

	var bars []HistoryBar
	for rows.Next() {
		var bar HistoryBar
		var openTime time.Time
		if err := rows.Scan(&openTime, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, fmt.Errorf("scanning candlestick row for %s: %w", ticker, err)
		}
		bar.Date = openTime
		bar.Source = "db"
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating candlestick rows for %s: %w", ticker, err)
	}

	// the simulator walks forward from entryDate, so oldest-first
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}
