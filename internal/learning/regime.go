package learning

import "github.com/signalforge/core/internal/domain"

// regimeBearSMAGap and regimeDivergenceCorrelation are §4.6's BEAR_MARKET
// and DIVERGENCE cutpoints.
const (
	regimeVIXHigh             = 35.0
	regimeVIXElevated         = 25.0
	regimeBearSMAGap          = 0.05
	regimeDivergenceCorrelation = 0.30
)

// RegimeInputs bundles the market signals §4.6's regime classifier reads.
type RegimeInputs struct {
	VIX                 float64
	SPYClose            float64
	SPY200DaySMA        float64
	AISectorCorrelation float64 // mean 30-day correlation, AI-sector basket vs SPY
}

// DetectRegime implements §4.6's MarketRegime derivation: VIX first, then
// SPY-vs-200-day-SMA, then sector/SPY correlation, defaulting to NORMAL.
func DetectRegime(in RegimeInputs) domain.MarketRegime {
	if in.VIX >= regimeVIXElevated {
		return domain.RegimeHighVolatility
	}
	if in.SPY200DaySMA > 0 && in.SPYClose <= in.SPY200DaySMA*(1-regimeBearSMAGap) {
		return domain.RegimeBearMarket
	}
	if in.AISectorCorrelation < regimeDivergenceCorrelation {
		return domain.RegimeDivergence
	}
	return domain.RegimeNormal
}

// ShouldFreezeLearning implements §4.6's freeze trigger: three or more
// regime shifts in the trailing 7 days, or the current run is
// HIGH_VOLATILITY driven by VIX >= 35.
func ShouldFreezeLearning(regimeShiftsLast7Days int, current domain.MarketRegime, vix float64) bool {
	if regimeShiftsLast7Days >= 3 {
		return true
	}
	return current == domain.RegimeHighVolatility && vix >= regimeVIXHigh
}
