package market

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/signalforge/core/internal/adapters"
)

func ptr(v float64) *float64 { return &v }

func TestNewCache(t *testing.T) {
	tests := []struct {
		name        string
		client      *redis.Client
		ttl         time.Duration
		shouldBeNil bool
	}{
		{name: "nil client returns nil", client: nil, ttl: 60 * time.Second, shouldBeNil: true},
		{name: "valid client with TTL", client: &redis.Client{}, ttl: 60 * time.Second, shouldBeNil: false},
		{name: "valid client with zero TTL uses default", client: &redis.Client{}, ttl: 0, shouldBeNil: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := NewCache(tt.client, tt.ttl)
			if tt.shouldBeNil {
				if cache != nil {
					t.Error("expected nil cache")
				}
				return
			}
			if cache == nil {
				t.Fatal("expected non-nil cache")
			}
			if cache.ttl == 0 {
				t.Error("expected non-zero TTL")
			}
		})
	}
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to create miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewCache(client, 60*time.Second), mr
}

func TestCache_SetQuoteAndGetMarketData(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	if _, found := cache.GetMarketData(ctx, "AAPL"); found {
		t.Error("expected cache miss")
	}

	quote := adapters.Quote{CurrentPrice: ptr(150.25), ChangePercent: ptr(1.2), Volume: ptr(1_000_000)}
	indicators := adapters.Indicators{RSI: ptr(65.0), SMA50: ptr(145.0)}

	if err := cache.SetQuote(ctx, "AAPL", quote, indicators); err != nil {
		t.Fatalf("failed to set quote: %v", err)
	}

	data, found := cache.GetMarketData(ctx, "AAPL")
	if !found {
		t.Fatal("expected cache hit")
	}
	if data.CurrentPrice != 150.25 {
		t.Errorf("expected current price 150.25, got %f", data.CurrentPrice)
	}
	if data.RSI != 65.0 {
		t.Errorf("expected RSI 65.0, got %f", data.RSI)
	}
	if data.SMA200 != 0 {
		t.Errorf("expected unset SMA200 to be zero, got %f", data.SMA200)
	}
}

func TestCache_SetSentimentAndGetSentiment(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	if _, found := cache.GetSentiment(ctx, "TSLA"); found {
		t.Error("expected cache miss")
	}

	sentiment := adapters.SentimentResult{CombinedSentiment: 0.4, SentimentLabel: "slightly_bullish", TotalMentions: 120}
	if err := cache.SetSentiment(ctx, "TSLA", sentiment); err != nil {
		t.Fatalf("failed to set sentiment: %v", err)
	}

	got, found := cache.GetSentiment(ctx, "TSLA")
	if !found {
		t.Fatal("expected cache hit")
	}
	if got.SentimentLabel != "slightly_bullish" {
		t.Errorf("expected slightly_bullish, got %s", got.SentimentLabel)
	}
}

func TestCache_QuoteExpiresAfterTTL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to create miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, 1*time.Second)
	ctx := context.Background()

	if err := cache.SetQuote(ctx, "MSFT", adapters.Quote{CurrentPrice: ptr(300)}, adapters.Indicators{}); err != nil {
		t.Fatalf("failed to set quote: %v", err)
	}

	mr.FastForward(2 * time.Second)

	if _, found := cache.GetMarketData(ctx, "MSFT"); found {
		t.Error("expected cache miss after TTL expiry")
	}
}

func TestCache_Health(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	if err := cache.Health(ctx); err != nil {
		t.Errorf("expected health check to pass: %v", err)
	}

	mr.Close()

	if err := cache.Health(ctx); err == nil {
		t.Error("expected health check to fail after redis close")
	}
}

func TestCache_NilSafety(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	if _, found := cache.GetMarketData(ctx, "AAPL"); found {
		t.Error("expected false for nil cache")
	}
	if _, found := cache.GetSentiment(ctx, "AAPL"); found {
		t.Error("expected false for nil cache")
	}
	if err := cache.SetQuote(ctx, "AAPL", adapters.Quote{}, adapters.Indicators{}); err == nil {
		t.Error("expected error for nil cache SetQuote")
	}
	if err := cache.SetSentiment(ctx, "AAPL", adapters.SentimentResult{}); err == nil {
		t.Error("expected error for nil cache SetSentiment")
	}
	if err := cache.Health(ctx); err == nil {
		t.Error("expected error for nil cache Health")
	}
}

func TestCache_RedisFailureGraceful(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:9999"})
	cache := NewCache(client, 60*time.Second)
	ctx := context.Background()

	if _, found := cache.GetMarketData(ctx, "AAPL"); found {
		t.Error("expected cache miss on redis failure")
	}

	if err := cache.SetQuote(ctx, "AAPL", adapters.Quote{CurrentPrice: ptr(1)}, adapters.Indicators{}); err == nil {
		t.Error("expected error when redis is unavailable")
	}
}

func TestCache_KeyFormat(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	if err := cache.SetQuote(ctx, "AAPL", adapters.Quote{CurrentPrice: ptr(1)}, adapters.Indicators{}); err != nil {
		t.Fatalf("failed to set quote: %v", err)
	}
	if err := cache.SetSentiment(ctx, "AAPL", adapters.SentimentResult{}); err != nil {
		t.Fatalf("failed to set sentiment: %v", err)
	}

	exists, err := cache.client.Exists(ctx, "signalforge:market:AAPL")
	if err != nil || exists != 1 {
		t.Errorf("expected market key to exist, exists=%d err=%v", exists, err)
	}

	exists, err = cache.client.Exists(ctx, "signalforge:sentiment:AAPL")
	if err != nil || exists != 1 {
		t.Errorf("expected sentiment key to exist, exists=%d err=%v", exists, err)
	}
}
