// Package adapters defines the narrow external-collaborator interfaces the
// core consumes (§6). Concrete vendor integrations are deliberately out of
// scope (§1); this package ships one deterministic reference
// implementation per interface, suitable for tests and for a paper-mode
// deployment.
package adapters

import (
	"context"
	"time"
)

// Quote is the QuoteSource reply shape. CurrentPrice is a pointer so the
// adapter can signal "unavailable" with nil rather than a sentinel zero.
type Quote struct {
	CurrentPrice  *float64
	ChangePercent *float64
	Volume        *float64
	High          *float64
	Low           *float64
	Open          *float64
	PreviousClose *float64
}

// QuoteSource fetches the latest quote for a ticker. Latency budget is
// 10s, enforced by the caller via context.
type QuoteSource interface {
	GetQuote(ctx context.Context, ticker string) (Quote, error)
}

// HistoryBar is one day of OHLCV history, newest-first in HistorySource's
// return slice.
type HistoryBar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Source string
}

// HistorySource fetches up to `days` of daily history for a ticker.
type HistorySource interface {
	GetHistorical(ctx context.Context, ticker string, days int) ([]HistoryBar, error)
}

// Indicators is the IndicatorSource reply shape; pointers again signal
// "unavailable" distinctly from zero.
type Indicators struct {
	RSI           *float64
	PriceChange7d *float64
	PriceChange30d *float64
	VolumeTrend   *string // "increasing", "decreasing", "neutral"
	SMA50         *float64
	SMA200        *float64
}

// IndicatorSource supplies technical indicators for a ticker, falling
// back to local computation from history when upstream is unavailable.
type IndicatorSource interface {
	GetIndicators(ctx context.Context, ticker string) (Indicators, error)
}

// SentimentBreakdown is one source's contribution to combined sentiment.
type SentimentBreakdown struct {
	SentimentScore float64
	Mentions       int // Reddit mentions, or News article count
}

// SentimentResult is the SentimentSource reply shape (§6).
type SentimentResult struct {
	CombinedSentiment float64 // in [-1, 1]
	SentimentLabel    string  // bullish, slightly_bullish, neutral, slightly_bearish, bearish
	TotalMentions     int
	Reddit            SentimentBreakdown
	News              SentimentBreakdown
}

// SentimentSource aggregates social/news sentiment for a ticker.
type SentimentSource interface {
	Aggregate(ctx context.Context, ticker string) (SentimentResult, error)
}

// LLMClient calls an external model endpoint.
type LLMClient interface {
	Call(ctx context.Context, model, systemPrompt, userPrompt string, maxTokens int, temperature float64, timeout time.Duration) (string, error)
}

// AlertSink pushes user-facing notifications; the concrete default is
// internal/alerts.Manager.
type AlertSink interface {
	SendSignalAlert(ctx context.Context, payload SignalAlertPayload) error
	SendDailySummary(ctx context.Context, signals []SignalAlertPayload) error
	SendLearningEvent(ctx context.Context, payload LearningEventPayload) error
}

// SignalAlertPayload is the wire shape for a signal alert (§6).
type SignalAlertPayload struct {
	Ticker      string
	SignalType  string
	Confidence  float64 // 0-1
	EntryPrice  float64
	TargetPrice float64
	StopLoss    float64
	TimestampET string
}

// LearningEventPayload is the wire shape for a learning-event alert.
type LearningEventPayload struct {
	EventType string
	AgentName string
	Reasoning string
}
