package risk

import (
	"math"

	"github.com/signalforge/core/internal/domain"
)

// stopLossPct and targetPct are the fixed fractional moves §4.4 applies
// around entry_price.
const (
	stopLossPct = 0.10
	targetPct   = 0.25
	riskPct     = 0.10 // fraction of portfolio_value allocated at size_multiplier=1
)

// Translator converts a ConsensusSignal plus entry_price/portfolio_value
// into a concrete, storable trade plan (§4.4).
type Translator struct{}

// NewTranslator constructs a RiskTranslator. It is stateless; a value
// type would do, but a constructor matches the rest of the package's
// convention of explicit New* constructors.
func NewTranslator() *Translator {
	return &Translator{}
}

// TradePlan is the RiskTranslator's output before persistence: everything
// SignalStore needs to build a StoredSignal row.
type TradePlan struct {
	SignalType        domain.StoredSignalType
	ConfidenceBucket  int
	EntryPrice        float64
	TargetPrice       float64
	StopLoss          float64
	ShareCount        int
	PositionSizeClass domain.PositionSizeClass
}

// Translate implements §4.4's stop/target/share-count/confidence-bucket
// derivation.
func (t *Translator) Translate(signal domain.ConsensusSignal, entryPrice, portfolioValue float64) TradePlan {
	stopLoss := stopLoss(signal.SignalClass, entryPrice)
	targetPrice := targetPrice(signal.SignalClass, entryPrice)
	shareCount := shareCount(entryPrice, portfolioValue, signal.PositionSizeClass)

	return TradePlan{
		SignalType:        domain.MapSignalType(signal.SignalClass),
		ConfidenceBucket:  confidenceBucket(signal.Confidence),
		EntryPrice:        entryPrice,
		TargetPrice:       targetPrice,
		StopLoss:          stopLoss,
		ShareCount:        shareCount,
		PositionSizeClass: signal.PositionSizeClass,
	}
}

func stopLoss(class domain.SignalClass, entry float64) float64 {
	switch class {
	case domain.Buy, domain.StrongBuy:
		return entry * (1 - stopLossPct)
	case domain.Sell, domain.StrongSell:
		return entry * (1 + stopLossPct)
	default:
		return entry
	}
}

func targetPrice(class domain.SignalClass, entry float64) float64 {
	switch class {
	case domain.Buy, domain.StrongBuy:
		return entry * (1 + targetPct)
	case domain.Sell, domain.StrongSell:
		return entry * (1 - targetPct)
	default:
		return entry
	}
}

// shareCount implements §4.4's floor(portfolio_value * 0.10 *
// size_multiplier / entry_price), zero for a non-positive entry price or
// a NONE position size.
func shareCount(entryPrice, portfolioValue float64, class domain.PositionSizeClass) int {
	if entryPrice <= 0 || class == domain.PositionNone {
		return 0
	}
	multiplier := class.SizeMultiplier()
	shares := math.Floor(portfolioValue * riskPct * multiplier / entryPrice)
	if shares < 0 {
		return 0
	}
	return int(shares)
}

// confidenceBucket maps confidence in [0,1] to the 1..5 storage bucket at
// the cutpoints 0.2/0.4/0.6/0.8 from §4.4.
func confidenceBucket(confidence float64) int {
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
