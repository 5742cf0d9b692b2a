package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/signalforge/core/internal/adapters"
	"github.com/signalforge/core/internal/domain"
	"github.com/signalforge/core/internal/reliability"
)

// llmReply is the strict JSON shape an LLM-backed agent must answer with
// (§4.2 step iii). Any parse failure or schema mismatch degrades to a
// neutral opinion rather than propagating an error.
type llmReply struct {
	Signal     string             `json:"signal"`
	Confidence float64            `json:"confidence"`
	Score      float64            `json:"score"`
	Reasoning  string             `json:"reasoning"`
	Factors    map[string]float64 `json:"factors"`
}

// LLMAgentConfig parameterizes one LLM-backed analyzer persona (news,
// technical, fundamental, ...), per §1.3's supplemented multi-persona
// note: the framework is generic over any system prompt, not just one
// hardcoded "LLM agent".
type LLMAgentConfig struct {
	Name         string
	Weight       float64
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	Timeout      time.Duration
}

// LLMAgent is the LLM-backed analyzer variant from §4.2: it renders a
// PromptPacket, calls the model through the reliability layer, and parses
// a strict JSON reply.
type LLMAgent struct {
	cfg    LLMAgentConfig
	client adapters.LLMClient
	breaker *reliability.Breaker
	log    zerolog.Logger
}

// NewLLMAgent wires an LLM-backed agent against the narrow adapters.LLMClient
// contract so this package never depends on a specific vendor SDK.
func NewLLMAgent(cfg LLMAgentConfig, client adapters.LLMClient, breaker *reliability.Breaker, base zerolog.Logger) *LLMAgent {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = PerAgentDeadline
	}
	return &LLMAgent{
		cfg:     cfg,
		client:  client,
		breaker: breaker,
		log:     NewAgentLogger(base, cfg.Name, "llm"),
	}
}

func (a *LLMAgent) Name() string    { return a.cfg.Name }
func (a *LLMAgent) Weight() float64 { return a.cfg.Weight }

func (a *LLMAgent) Analyze(ctx context.Context, ticker string, market MarketData, sentiment *adapters.SentimentResult, history []adapters.HistoryBar) domain.AgentOpinion {
	if opinion, ok := validateInput(a.cfg.Name, ticker, market); !ok {
		return opinion
	}

	prompt := BuildPrompt(PromptPacket{Ticker: ticker, Market: market, Sentiment: sentiment, History: history})

	retryCfg := reliability.DefaultRetryConfig(a.cfg.Name + "-llm")
	var raw string
	err := reliability.Retry(ctx, retryCfg, func(ctx context.Context) error {
		result, breakerErr := a.breaker.Execute(func() (interface{}, error) {
			return a.client.Call(ctx, a.cfg.Model, a.cfg.SystemPrompt, prompt, a.cfg.MaxTokens, a.cfg.Temperature, a.cfg.Timeout)
		})
		if breakerErr != nil {
			return breakerErr
		}
		raw = result.(string)
		return nil
	})

	if err != nil {
		a.log.Warn().Err(err).Str("ticker", ticker).Msg("llm call failed, falling back to neutral opinion")
		return domain.NeutralOpinion(a.cfg.Name, ticker, fmt.Sprintf("llm call failed: %v", err))
	}

	reply, parseErr := parseLLMReply(raw)
	if parseErr != nil {
		a.log.Warn().Err(parseErr).Str("ticker", ticker).Msg("llm reply failed schema validation, falling back to neutral opinion")
		return domain.NeutralOpinion(a.cfg.Name, ticker, fmt.Sprintf("unparseable llm reply: %v", parseErr))
	}

	return domain.NewAgentOpinion(a.cfg.Name, ticker, reply.Score, reply.Confidence, reply.Reasoning, reply.Factors)
}

// parseLLMReply extracts and validates the strict JSON reply shape,
// grounded on internal/llm/client.go's ParseJSONResponse/
// extractJSONFromMarkdown: try a fenced ```json block first, then the
// first top-level {...} object, then the raw trimmed text.
func parseLLMReply(raw string) (llmReply, error) {
	candidate := extractJSONFromMarkdown(raw)

	var reply llmReply
	if err := json.Unmarshal([]byte(candidate), &reply); err != nil {
		return llmReply{}, fmt.Errorf("unmarshaling llm reply: %w", err)
	}

	switch strings.ToUpper(reply.Signal) {
	case "BUY", "SELL", "HOLD":
	default:
		return llmReply{}, fmt.Errorf("invalid signal field %q", reply.Signal)
	}
	if reply.Confidence < 0 || reply.Confidence > 1 {
		return llmReply{}, fmt.Errorf("confidence %v out of [0,1]", reply.Confidence)
	}
	if reply.Score < -1 || reply.Score > 1 {
		return llmReply{}, fmt.Errorf("score %v out of [-1,1]", reply.Score)
	}
	if reply.Factors == nil {
		reply.Factors = map[string]float64{}
	}
	return reply, nil
}

// extractJSONFromMarkdown mirrors the teacher's internal/llm/client.go
// helper: a ```json fenced block takes priority, then any ``` fence,
// then a scan for the first top-level {...} object, then the raw text.
func extractJSONFromMarkdown(raw string) string {
	raw = strings.TrimSpace(raw)

	if start := strings.Index(raw, "```json"); start != -1 {
		rest := raw[start+len("```json"):]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
	}
	if start := strings.Index(raw, "```"); start != -1 {
		rest := raw[start+len("```"):]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
	}

	if start := strings.Index(raw, "{"); start != -1 {
		depth := 0
		for i := start; i < len(raw); i++ {
			switch raw[i] {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return raw[start : i+1]
				}
			}
		}
	}

	return raw
}
