package agents

import (
	"fmt"
	"strings"

	"github.com/signalforge/core/internal/adapters"
)

// PromptPacket is the structured input an LLM-backed agent renders into a
// prompt. Keeping it as its own type lets every LLM agent variant (news,
// technical, fundamental) share one rendering path while varying only the
// system prompt/persona (§1.3's supplemented multi-persona note).
type PromptPacket struct {
	Ticker    string
	Market    MarketData
	Sentiment *adapters.SentimentResult
	History   []adapters.HistoryBar
}

// BuildPrompt renders the packet into the user-turn text sent to the
// model. The schema instruction at the end is load-bearing: it is what
// lets ParseJSONReply degrade safely to a neutral opinion on any
// deviation.
func BuildPrompt(p PromptPacket) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Ticker: %s\n\n", p.Ticker)
	fmt.Fprintf(&b, "Market data:\n")
	fmt.Fprintf(&b, "  current_price: %.2f\n", p.Market.CurrentPrice)
	fmt.Fprintf(&b, "  change_percent: %.2f\n", p.Market.ChangePercent)
	fmt.Fprintf(&b, "  volume: %.0f\n", p.Market.Volume)
	fmt.Fprintf(&b, "  rsi: %.1f\n", p.Market.RSI)
	fmt.Fprintf(&b, "  price_change_7d: %.2f%%\n", p.Market.PriceChange7d)
	fmt.Fprintf(&b, "  price_change_30d: %.2f%%\n", p.Market.PriceChange30d)
	fmt.Fprintf(&b, "  volume_trend: %s\n", nonEmpty(p.Market.VolumeTrend))
	fmt.Fprintf(&b, "  sma_50: %.2f\n", p.Market.SMA50)
	fmt.Fprintf(&b, "  sma_200: %.2f\n\n", p.Market.SMA200)

	if p.Sentiment != nil {
		fmt.Fprintf(&b, "Sentiment: %s (combined=%.2f, mentions=%d)\n\n",
			p.Sentiment.SentimentLabel, p.Sentiment.CombinedSentiment, p.Sentiment.TotalMentions)
	}

	if len(p.History) > 0 {
		fmt.Fprintf(&b, "Recent history (newest first, up to 10 days):\n")
		for i, bar := range p.History {
			if i >= 10 {
				break
			}
			fmt.Fprintf(&b, "  %s close=%.2f volume=%.0f\n", bar.Date.Format("2006-01-02"), bar.Close, bar.Volume)
		}
		b.WriteString("\n")
	}

	b.WriteString("Respond with strict JSON only, no markdown fence, no prose, of exactly this shape:\n")
	b.WriteString(`{"signal": "BUY|SELL|HOLD", "confidence": 0.0-1.0, "score": -1.0-1.0, "reasoning": "...", "factors": {"name": number, ...}}`)
	b.WriteString("\n")

	return b.String()
}

func nonEmpty(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
