package learning

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckGuardrails_FlagsSevenDayChangeOverTwentyPercent(t *testing.T) {
	final := map[string]float64{"a": 1.0}
	old := map[string]float64{"a": 0.5} // 100% change
	violations := CheckGuardrails(final, old)
	assert.Len(t, violations, 1)
	assert.Equal(t, "seven_day_change", violations[0].Rule)
}

func TestCheckGuardrails_FlagsSumDeviation(t *testing.T) {
	final := map[string]float64{"a": 1.9, "b": 1.9} // sum 3.8 vs N=2, deviation > 10%
	violations := CheckGuardrails(final, nil)
	found := false
	for _, v := range violations {
		if v.Rule == "sum_conservation" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCheckGuardrails_FlagsOutOfBoundsWeight(t *testing.T) {
	final := map[string]float64{"a": 2.5}
	violations := CheckGuardrails(final, nil)
	found := false
	for _, v := range violations {
		if v.Rule == "weight_bounds" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCheckGuardrails_NoViolationsWhenWithinBounds(t *testing.T) {
	final := map[string]float64{"a": 1.05, "b": 0.95}
	old := map[string]float64{"a": 1.0, "b": 1.0}
	violations := CheckGuardrails(final, old)
	assert.Empty(t, violations)
}
