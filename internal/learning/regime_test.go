package learning

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/signalforge/core/internal/domain"
)

func TestDetectRegime_HighVIXIsHighVolatility(t *testing.T) {
	assert.Equal(t, domain.RegimeHighVolatility, DetectRegime(RegimeInputs{VIX: 36}))
	assert.Equal(t, domain.RegimeHighVolatility, DetectRegime(RegimeInputs{VIX: 27}))
}

func TestDetectRegime_SPYBelowSMAIsBearMarket(t *testing.T) {
	in := RegimeInputs{VIX: 15, SPYClose: 400, SPY200DaySMA: 450, AISectorCorrelation: 0.8}
	assert.Equal(t, domain.RegimeBearMarket, DetectRegime(in))
}

func TestDetectRegime_LowCorrelationIsDivergence(t *testing.T) {
	in := RegimeInputs{VIX: 15, SPYClose: 450, SPY200DaySMA: 450, AISectorCorrelation: 0.1}
	assert.Equal(t, domain.RegimeDivergence, DetectRegime(in))
}

func TestDetectRegime_DefaultIsNormal(t *testing.T) {
	in := RegimeInputs{VIX: 12, SPYClose: 460, SPY200DaySMA: 450, AISectorCorrelation: 0.9}
	assert.Equal(t, domain.RegimeNormal, DetectRegime(in))
}

func TestShouldFreezeLearning_ThreeShiftsInSevenDays(t *testing.T) {
	assert.True(t, ShouldFreezeLearning(3, domain.RegimeNormal, 10))
	assert.False(t, ShouldFreezeLearning(2, domain.RegimeNormal, 10))
}

func TestShouldFreezeLearning_HighVolatilityAndExtremeVIX(t *testing.T) {
	assert.True(t, ShouldFreezeLearning(0, domain.RegimeHighVolatility, 36))
	assert.False(t, ShouldFreezeLearning(0, domain.RegimeHighVolatility, 26)) // elevated but not extreme
}
