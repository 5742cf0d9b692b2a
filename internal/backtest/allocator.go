package backtest

import (
	"math"

	"github.com/signalforge/core/internal/domain"
)

// Allocation is one ranked signal's dollar allocation for a simulated day.
type Allocation struct {
	Signal          domain.StoredSignal
	PositionType    domain.BacktestPositionType
	AllocationPct   float64
	AllocationDollars float64
	Shares          int
}

// allocationSlot describes one rank band's treatment under a mode: how
// many signals it covers (0 means "all remaining up to the mode's cap"),
// its pct share, and its BacktestPositionType.
type allocationSlot struct {
	count        int
	pctEach      float64
	positionType domain.BacktestPositionType
}

// allocationTable implements §4.5 step 3b's three allocation modes.
var allocationTable = map[domain.AllocationMode][]allocationSlot{
	domain.AllocationCoreFocus: {
		{count: 1, pctEach: 0.60, positionType: domain.PositionCore},
		{count: 3, pctEach: 0.10, positionType: domain.PositionSatellite},
	},
	domain.AllocationBalanced: {
		{count: 1, pctEach: 0.40, positionType: domain.PositionCore},
		{count: 4, pctEach: 0.125, positionType: domain.PositionSatellite},
	},
	domain.AllocationDiversified: {
		{count: 5, pctEach: 0.16, positionType: domain.PositionEqual},
	},
}

// Allocate implements §4.5 step 3b: distribute currentCapital across the
// day's ranked signals per mode, dropping any signal beyond the mode's
// covered rank count.
func Allocate(ranked []RankedSignal, mode domain.AllocationMode, currentCapital float64) []Allocation {
	slots := allocationTable[mode]

	allocations := make([]Allocation, 0, len(ranked))
	idx := 0
	for _, slot := range slots {
		for i := 0; i < slot.count && idx < len(ranked); i++ {
			r := ranked[idx]
			idx++
			dollars := currentCapital * slot.pctEach
			shares := 0
			if r.Signal.EntryPrice > 0 {
				shares = int(math.Floor(dollars / r.Signal.EntryPrice))
			}
			allocations = append(allocations, Allocation{
				Signal:            r.Signal,
				PositionType:      slot.positionType,
				AllocationPct:     slot.pctEach,
				AllocationDollars: dollars,
				Shares:            shares,
			})
		}
	}
	return allocations
}
