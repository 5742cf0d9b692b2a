// Package market is the Redis-backed implementation of scheduler.Cache
// (§5): a read-mostly, last-writer-wins store of each ticker's most
// recent quote/indicator snapshot and sentiment reading, refreshed by
// the fetch_market_data and fetch_sentiment jobs and read by every
// downstream job that needs a ticker's current state without calling an
// upstream adapter again.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/signalforge/core/internal/adapters"
	"github.com/signalforge/core/internal/agents"
	"github.com/signalforge/core/internal/metrics"
)

// Cache is the Redis-backed implementation of scheduler.Cache. Reads and
// writes go through metrics.RedisMetrics so every hit/miss feeds
// RedisCacheHitRate, the only place in the tree that instruments cache
// effectiveness.
type Cache struct {
	client *metrics.RedisMetrics
	ttl    time.Duration
}

// marketEntry is the JSON shape stored under a ticker's market key. Quote
// and Indicators carry pointer fields already (§6's "field not reported
// this cycle" convention); caching them as-is means GetMarketData can
// report exactly which fields are known vs. zero-valued.
type marketEntry struct {
	Quote      adapters.Quote      `json:"quote"`
	Indicators adapters.Indicators `json:"indicators"`
	Timestamp  time.Time           `json:"timestamp"`
}

type sentimentEntry struct {
	Sentiment adapters.SentimentResult `json:"sentiment"`
	Timestamp time.Time                `json:"timestamp"`
}

// NewCache creates a Redis-backed cache. If client is nil, returns nil
// (optional Redis support, matching the teacher's "cache is best-effort"
// convention elsewhere in the tree).
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if client == nil {
		return nil
	}
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{client: metrics.NewRedisMetrics(client), ttl: ttl}
}

// SetQuote overwrites the cached quote/indicator snapshot for ticker.
// Last write wins; there is no read-modify-write merge, matching §5's
// read-mostly last-writer-wins cache policy.
func (c *Cache) SetQuote(ctx context.Context, ticker string, quote adapters.Quote, indicators adapters.Indicators) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}

	entry := marketEntry{Quote: quote, Indicators: indicators, Timestamp: time.Now()}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal market entry: %w", err)
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	if err := c.client.Set(cacheCtx, c.marketKey(ticker), data, c.ttl); err != nil {
		log.Warn().Err(err).Str("ticker", ticker).Msg("failed to cache quote")
		return err
	}
	return nil
}

// SetSentiment overwrites the cached sentiment reading for ticker.
func (c *Cache) SetSentiment(ctx context.Context, ticker string, sentiment adapters.SentimentResult) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}

	entry := sentimentEntry{Sentiment: sentiment, Timestamp: time.Now()}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal sentiment entry: %w", err)
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	if err := c.client.Set(cacheCtx, c.sentimentKey(ticker), data, c.ttl); err != nil {
		log.Warn().Err(err).Str("ticker", ticker).Msg("failed to cache sentiment")
		return err
	}
	return nil
}

// GetMarketData reads the cached quote/indicator snapshot for ticker and
// flattens it into the agents.MarketData shape agent analyzers expect.
// Fields the source never reported stay at their zero value.
func (c *Cache) GetMarketData(ctx context.Context, ticker string) (agents.MarketData, bool) {
	if c == nil || c.client == nil {
		return agents.MarketData{}, false
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	cached, err := c.client.Get(cacheCtx, c.marketKey(ticker))
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Str("ticker", ticker).Msg("redis get error, treating as cache miss")
		}
		return agents.MarketData{}, false
	}

	var entry marketEntry
	if err := json.Unmarshal([]byte(cached), &entry); err != nil {
		log.Warn().Err(err).Str("ticker", ticker).Msg("failed to unmarshal cached market entry")
		return agents.MarketData{}, false
	}

	return flatten(entry.Quote, entry.Indicators), true
}

// GetSentiment reads the cached sentiment reading for ticker.
func (c *Cache) GetSentiment(ctx context.Context, ticker string) (*adapters.SentimentResult, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	cached, err := c.client.Get(cacheCtx, c.sentimentKey(ticker))
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Str("ticker", ticker).Msg("redis get error, treating as cache miss")
		}
		return nil, false
	}

	var entry sentimentEntry
	if err := json.Unmarshal([]byte(cached), &entry); err != nil {
		log.Warn().Err(err).Str("ticker", ticker).Msg("failed to unmarshal cached sentiment entry")
		return nil, false
	}

	return &entry.Sentiment, true
}

// Health checks the Redis connection.
func (c *Cache) Health(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.client.Client().Ping(cacheCtx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

func (c *Cache) marketKey(ticker string) string {
	return fmt.Sprintf("signalforge:market:%s", ticker)
}

func (c *Cache) sentimentKey(ticker string) string {
	return fmt.Sprintf("signalforge:sentiment:%s", ticker)
}

func flatten(q adapters.Quote, ind adapters.Indicators) agents.MarketData {
	deref := func(p *float64) float64 {
		if p == nil {
			return 0
		}
		return *p
	}
	derefStr := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}

	return agents.MarketData{
		CurrentPrice:   deref(q.CurrentPrice),
		ChangePercent:  deref(q.ChangePercent),
		Volume:         deref(q.Volume),
		High:           deref(q.High),
		Low:            deref(q.Low),
		Open:           deref(q.Open),
		PreviousClose:  deref(q.PreviousClose),
		RSI:            deref(ind.RSI),
		PriceChange7d:  deref(ind.PriceChange7d),
		PriceChange30d: deref(ind.PriceChange30d),
		VolumeTrend:    derefStr(ind.VolumeTrend),
		SMA50:          deref(ind.SMA50),
		SMA200:         deref(ind.SMA200),
	}
}
