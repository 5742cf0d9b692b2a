package learning

import (
	"fmt"
	"math"

	"github.com/signalforge/core/internal/domain"
)

// guardrailSevenDayChangeCap and guardrailSumTolerance are §4.6's
// guardrail cutpoints. Any violation blocks the entire update.
const (
	guardrailSevenDayChangeCap = 0.20
	guardrailSumTolerance      = 0.10
)

// GuardrailViolation names why a proposed weight update was blocked.
type GuardrailViolation struct {
	Rule   string
	Detail string
}

// CheckGuardrails implements §4.6's three guardrails. weightSevenDaysAgo
// must contain every agent's weight from 7 days prior; final holds the
// normalized post-correction proposal for every agent this run.
func CheckGuardrails(final map[string]float64, weightSevenDaysAgo map[string]float64) []GuardrailViolation {
	var violations []GuardrailViolation

	for name, w := range final {
		old, ok := weightSevenDaysAgo[name]
		if !ok || old == 0 {
			continue
		}
		change := math.Abs(w-old) / old
		if change > guardrailSevenDayChangeCap {
			violations = append(violations, GuardrailViolation{
				Rule:   "seven_day_change",
				Detail: fmt.Sprintf("%s: 7-day change %.4f exceeds %.2f", name, change, guardrailSevenDayChangeCap),
			})
		}
	}

	n := float64(len(final))
	sum := 0.0
	for _, w := range final {
		sum += w
	}
	if n > 0 && math.Abs(sum-n) > guardrailSumTolerance*n {
		violations = append(violations, GuardrailViolation{
			Rule:   "sum_conservation",
			Detail: fmt.Sprintf("sum of new weights %.4f deviates from %.4f by more than %.2f%%", sum, n, guardrailSumTolerance*100),
		})
	}

	for name, w := range final {
		if w < domain.WeightMin || w > domain.WeightMax {
			violations = append(violations, GuardrailViolation{
				Rule:   "weight_bounds",
				Detail: fmt.Sprintf("%s: weight %.4f outside [%.2f, %.2f]", name, w, domain.WeightMin, domain.WeightMax),
			})
		}
	}

	return violations
}
