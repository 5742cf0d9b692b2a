package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalforge/core/internal/domain"
	"github.com/signalforge/core/internal/reliability"
)

type fakeLLMClient struct {
	replies []string
	errs    []error
	calls   int
}

func (f *fakeLLMClient) Call(ctx context.Context, model, systemPrompt, userPrompt string, maxTokens int, temperature float64, timeout time.Duration) (string, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return f.replies[len(f.replies)-1], nil
}

func newTestLLMAgent(client *fakeLLMClient) *LLMAgent {
	cfg := LLMAgentConfig{Name: "news_llm", Weight: 1.0, Model: "test-model", SystemPrompt: "you are a trading analyst"}
	breaker := reliability.NewBreaker("test-llm-agent", 3, time.Minute)
	return NewLLMAgent(cfg, client, breaker, testLogger())
}

func TestLLMAgent_ValidJSONReplyProducesOpinion(t *testing.T) {
	client := &fakeLLMClient{replies: []string{`{"signal":"BUY","confidence":0.8,"score":0.6,"reasoning":"strong earnings","factors":{"earnings":0.6}}`}}
	a := newTestLLMAgent(client)

	opinion := a.Analyze(context.Background(), "AAPL", MarketData{CurrentPrice: 100, RSI: 40}, nil, nil)
	require.Equal(t, domain.StrongBuy, opinion.SignalClass)
	assert.Equal(t, 0.8, opinion.Confidence)
	assert.Equal(t, 0.6, opinion.RawScore)
	assert.Equal(t, "strong earnings", opinion.Reasoning)
}

func TestLLMAgent_FencedJSONReplyParses(t *testing.T) {
	client := &fakeLLMClient{replies: []string{"```json\n{\"signal\":\"HOLD\",\"confidence\":0.5,\"score\":0.0,\"reasoning\":\"mixed\",\"factors\":{}}\n```"}}
	a := newTestLLMAgent(client)

	opinion := a.Analyze(context.Background(), "AAPL", MarketData{CurrentPrice: 100, RSI: 40}, nil, nil)
	assert.Equal(t, domain.Hold, opinion.SignalClass)
	assert.Equal(t, 0.5, opinion.Confidence)
}

func TestLLMAgent_MalformedReplyYieldsNeutral(t *testing.T) {
	client := &fakeLLMClient{replies: []string{"not json at all"}}
	a := newTestLLMAgent(client)

	opinion := a.Analyze(context.Background(), "AAPL", MarketData{CurrentPrice: 100, RSI: 40}, nil, nil)
	assert.Equal(t, domain.Hold, opinion.SignalClass)
	assert.Equal(t, 0.0, opinion.Confidence)
}

func TestLLMAgent_OutOfRangeFieldsYieldNeutral(t *testing.T) {
	client := &fakeLLMClient{replies: []string{`{"signal":"BUY","confidence":1.5,"score":0.4,"reasoning":"x","factors":{}}`}}
	a := newTestLLMAgent(client)

	opinion := a.Analyze(context.Background(), "AAPL", MarketData{CurrentPrice: 100, RSI: 40}, nil, nil)
	assert.Equal(t, domain.Hold, opinion.SignalClass)
	assert.Equal(t, 0.0, opinion.Confidence)
}

func TestLLMAgent_EmptyMarketDataYieldsNeutralWithoutCallingClient(t *testing.T) {
	client := &fakeLLMClient{}
	a := newTestLLMAgent(client)

	opinion := a.Analyze(context.Background(), "AAPL", MarketData{}, nil, nil)
	assert.Equal(t, domain.Hold, opinion.SignalClass)
	assert.Equal(t, 0, client.calls)
}
