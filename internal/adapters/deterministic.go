package adapters

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cinar/indicator/v2/momentum"
)

// StaticQuoteSource is a deterministic QuoteSource backed by an in-memory
// map, suitable for tests and as the paper-mode default. Concurrent-safe
// for the "shared read-mostly, last-writer-wins by timestamp" cache model
// in §5.
type StaticQuoteSource struct {
	mu     sync.RWMutex
	quotes map[string]Quote
	stamps map[string]time.Time
}

// NewStaticQuoteSource builds an empty quote source.
func NewStaticQuoteSource() *StaticQuoteSource {
	return &StaticQuoteSource{
		quotes: make(map[string]Quote),
		stamps: make(map[string]time.Time),
	}
}

// Set stores/overwrites the quote for ticker if it is newer than (or
// simultaneous with) any previously stored quote, per the last-writer-wins
// policy.
func (s *StaticQuoteSource) Set(ticker string, q Quote, observedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prior, ok := s.stamps[ticker]; ok && observedAt.Before(prior) {
		return
	}
	s.quotes[ticker] = q
	s.stamps[ticker] = observedAt
}

func (s *StaticQuoteSource) GetQuote(ctx context.Context, ticker string) (Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[ticker]
	if !ok {
		return Quote{}, nil // current_price=nil signals unavailable, not an error
	}
	return q, nil
}

// StaticHistorySource is a deterministic HistorySource backed by an
// in-memory map of newest-first bars.
type StaticHistorySource struct {
	mu  sync.RWMutex
	bars map[string][]HistoryBar
}

func NewStaticHistorySource() *StaticHistorySource {
	return &StaticHistorySource{bars: make(map[string][]HistoryBar)}
}

func (s *StaticHistorySource) Set(ticker string, bars []HistoryBar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars[ticker] = bars
}

func (s *StaticHistorySource) GetHistorical(ctx context.Context, ticker string, days int) ([]HistoryBar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.bars[ticker]
	if len(all) > days {
		all = all[:days]
	}
	return all, nil
}

// LocalIndicatorSource computes RSI and moving averages directly from a
// HistorySource when no upstream indicator feed is configured, exactly as
// §6 allows ("the adapter may compute RSI and moving averages locally from
// the history series"). Grounded on the cinar/indicator RSI usage the
// teacher's internal/indicators/rsi.go established (momentum.NewRsiWithPeriod,
// channel-based Compute).
type LocalIndicatorSource struct {
	history HistorySource
}

func NewLocalIndicatorSource(history HistorySource) *LocalIndicatorSource {
	return &LocalIndicatorSource{history: history}
}

// defaultRSI is returned when there isn't enough history to compute RSI,
// per §6 ("RSI default when data is insufficient is 50").
const defaultRSI = 50.0

func (s *LocalIndicatorSource) GetIndicators(ctx context.Context, ticker string) (Indicators, error) {
	bars, err := s.history.GetHistorical(ctx, ticker, 210)
	if err != nil {
		return Indicators{}, fmt.Errorf("loading history for indicators: %w", err)
	}

	closes := make([]float64, len(bars))
	// bars are newest-first; cinar's indicators expect oldest-first.
	for i, b := range bars {
		closes[len(bars)-1-i] = b.Close
	}

	rsi := defaultRSI
	const rsiPeriod = 14
	if len(closes) > rsiPeriod {
		pricesChan := make(chan float64, len(closes))
		for _, p := range closes {
			pricesChan <- p
		}
		close(pricesChan)

		rsiIndicator := momentum.NewRsiWithPeriod[float64](rsiPeriod)
		rsiChan := rsiIndicator.Compute(pricesChan)

		var values []float64
		for v := range rsiChan {
			values = append(values, v)
		}
		if len(values) > 0 {
			rsi = values[len(values)-1]
		}
	}

	priceChange7d := computeChange(closes, 7)
	priceChange30d := computeChange(closes, 30)
	sma50 := movingAverage(closes, 50)
	sma200 := movingAverage(closes, 200)
	volumeTrend := volumeTrendFromBars(bars)

	result := Indicators{RSI: &rsi}
	if priceChange7d != nil {
		result.PriceChange7d = priceChange7d
	}
	if priceChange30d != nil {
		result.PriceChange30d = priceChange30d
	}
	if sma50 != nil {
		result.SMA50 = sma50
	}
	if sma200 != nil {
		result.SMA200 = sma200
	}
	result.VolumeTrend = volumeTrend

	return result, nil
}

func computeChange(closesOldestFirst []float64, window int) *float64 {
	n := len(closesOldestFirst)
	if n <= window {
		return nil
	}
	start := closesOldestFirst[n-1-window]
	end := closesOldestFirst[n-1]
	if start == 0 {
		return nil
	}
	pct := (end - start) / start * 100
	return &pct
}

func movingAverage(closesOldestFirst []float64, window int) *float64 {
	n := len(closesOldestFirst)
	if n < window {
		return nil
	}
	sum := 0.0
	for _, v := range closesOldestFirst[n-window:] {
		sum += v
	}
	avg := sum / float64(window)
	return &avg
}

func volumeTrendFromBars(barsNewestFirst []HistoryBar) *string {
	if len(barsNewestFirst) < 10 {
		return nil
	}
	recent, prior := 0.0, 0.0
	for i := 0; i < 5; i++ {
		recent += barsNewestFirst[i].Volume
	}
	for i := 5; i < 10; i++ {
		prior += barsNewestFirst[i].Volume
	}
	trend := "neutral"
	if prior > 0 {
		switch {
		case recent > prior*1.2:
			trend = "increasing"
		case recent < prior*0.8:
			trend = "decreasing"
		}
	}
	return &trend
}

// StaticSentimentSource is a deterministic SentimentSource backed by an
// in-memory map, implementing the weighting rule from §6: 0.6*reddit +
// 0.4*news when both present, otherwise whichever is present at full
// weight.
type StaticSentimentSource struct {
	mu   sync.RWMutex
	data map[string]SentimentResult
}

func NewStaticSentimentSource() *StaticSentimentSource {
	return &StaticSentimentSource{data: make(map[string]SentimentResult)}
}

func (s *StaticSentimentSource) SetBreakdown(ticker string, reddit, news *SentimentBreakdown) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var combined float64
	mentions := 0
	switch {
	case reddit != nil && news != nil:
		combined = 0.6*reddit.SentimentScore + 0.4*news.SentimentScore
		mentions = reddit.Mentions + news.Mentions
	case reddit != nil:
		combined = reddit.SentimentScore
		mentions = reddit.Mentions
	case news != nil:
		combined = news.SentimentScore
		mentions = news.Mentions
	}

	result := SentimentResult{
		CombinedSentiment: combined,
		SentimentLabel:    sentimentLabel(combined),
		TotalMentions:     mentions,
	}
	if reddit != nil {
		result.Reddit = *reddit
	}
	if news != nil {
		result.News = *news
	}
	s.data[ticker] = result
}

func (s *StaticSentimentSource) Aggregate(ctx context.Context, ticker string) (SentimentResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.data[ticker]
	if !ok {
		return SentimentResult{SentimentLabel: "neutral"}, nil
	}
	return result, nil
}

func sentimentLabel(combined float64) string {
	switch {
	case combined >= 0.5:
		return "bullish"
	case combined >= 0.15:
		return "slightly_bullish"
	case combined <= -0.5:
		return "bearish"
	case combined <= -0.15:
		return "slightly_bearish"
	default:
		return "neutral"
	}
}
