// Package domain holds the shared record types that flow between the
// ensemble, risk translation, persistence, backtest, and learning
// components. Nothing in this package performs I/O.
package domain

import "time"

// SignalClass is the five-way recommendation enum an agent or the ensemble
// emits for a ticker.
type SignalClass string

const (
	StrongBuy  SignalClass = "STRONG_BUY"
	Buy        SignalClass = "BUY"
	Hold       SignalClass = "HOLD"
	Sell       SignalClass = "SELL"
	StrongSell SignalClass = "STRONG_SELL"
)

// PositionSizeClass is the ensemble's sizing recommendation.
type PositionSizeClass string

const (
	PositionNone     PositionSizeClass = "NONE"
	PositionSmall    PositionSizeClass = "SMALL"
	PositionMedium   PositionSizeClass = "MEDIUM"
	PositionNormal   PositionSizeClass = "NORMAL"
	PositionLarge    PositionSizeClass = "LARGE"
)

// sizeMultipliers maps a PositionSizeClass to the fraction of the 10%
// portfolio allocation it is entitled to (§4.4).
var sizeMultipliers = map[PositionSizeClass]float64{
	PositionNone:   0,
	PositionSmall:  0.25,
	PositionMedium: 0.50,
	PositionNormal: 1.00,
	PositionLarge:  1.50,
}

// SizeMultiplier returns the share-count multiplier for a position size
// class, 0 for an unrecognized class.
func (c PositionSizeClass) SizeMultiplier() float64 {
	return sizeMultipliers[c]
}

// classifySignal maps a raw score in [-1, 1] to a SignalClass using the
// supplied cutpoints. bullishStrong/bullish are positive, bearish/bearishStrong
// are their negatives.
func classifySignal(rawScore, weak, strong float64) SignalClass {
	switch {
	case rawScore >= strong:
		return StrongBuy
	case rawScore >= weak:
		return Buy
	case rawScore <= -strong:
		return StrongSell
	case rawScore <= -weak:
		return Sell
	default:
		return Hold
	}
}

// AgentOpinionCutpointWeak and AgentOpinionCutpointStrong are the per-agent
// classification cutpoints from §4.2 (±0.2 / ±0.6).
const (
	AgentOpinionCutpointWeak   = 0.2
	AgentOpinionCutpointStrong = 0.6
)

// ConsensusCutpointWeak and ConsensusCutpointStrong are the tighter
// post-aggregation cutpoints from §4.3 (±0.1 / ±0.5).
const (
	ConsensusCutpointWeak   = 0.1
	ConsensusCutpointStrong = 0.5
)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// AgentOpinion is the ephemeral per-ticker judgment one agent emits.
type AgentOpinion struct {
	AgentName   string
	Ticker      string
	SignalClass SignalClass
	Confidence  float64
	RawScore    float64
	Reasoning   string
	Factors     map[string]float64
	Timestamp   time.Time
}

// NewAgentOpinion builds an AgentOpinion, clamping RawScore to [-1, 1] and
// Confidence to [0, 1] and deriving SignalClass from the per-agent
// cutpoints, per the invariant in §3.
func NewAgentOpinion(agentName, ticker string, rawScore, confidence float64, reasoning string, factors map[string]float64) AgentOpinion {
	rawScore = clamp(rawScore, -1, 1)
	confidence = clamp(confidence, 0, 1)
	return AgentOpinion{
		AgentName:   agentName,
		Ticker:      ticker,
		SignalClass: classifySignal(rawScore, AgentOpinionCutpointWeak, AgentOpinionCutpointStrong),
		Confidence:  confidence,
		RawScore:    rawScore,
		Reasoning:   reasoning,
		Factors:     factors,
		Timestamp:   time.Now(),
	}
}

// NeutralOpinion is the framework's fallback opinion for invalid input,
// an open circuit breaker, or retry exhaustion (§4.2).
func NeutralOpinion(agentName, ticker, reason string) AgentOpinion {
	return AgentOpinion{
		AgentName:   agentName,
		Ticker:      ticker,
		SignalClass: Hold,
		Confidence:  0.0,
		RawScore:    0.0,
		Reasoning:   reason,
		Factors:     map[string]float64{},
		Timestamp:   time.Now(),
	}
}

// ConsensusSignal is the ephemeral ensemble-level aggregate for one ticker.
type ConsensusSignal struct {
	Ticker            string
	SignalClass       SignalClass
	Confidence        float64
	RawScore          float64
	PositionSizeClass PositionSizeClass
	AgreementRatio    float64
	Opinions          []AgentOpinion
}

// SignalStatus is the StoredSignal lifecycle state.
type SignalStatus string

const (
	StatusPending  SignalStatus = "PENDING"
	StatusApproved SignalStatus = "APPROVED"
	StatusExecuted SignalStatus = "EXECUTED"
	StatusClosed   SignalStatus = "CLOSED"
)

// statusRank gives the lifecycle states their monotone order (§4.4, §5, P8).
var statusRank = map[SignalStatus]int{
	StatusPending:  0,
	StatusApproved: 1,
	StatusExecuted: 2,
	StatusClosed:   3,
}

// CanTransition reports whether moving from `from` to `to` is a forward
// (or no-op idempotent) lifecycle step.
func CanTransition(from, to SignalStatus) bool {
	return statusRank[to] >= statusRank[from]
}

// StoredSignalType coalesces STRONG_BUY/STRONG_SELL into BUY/SELL for
// persistence (§3, and the Open Question in §9 resolved in DESIGN.md).
type StoredSignalType string

const (
	StoredBuy  StoredSignalType = "BUY"
	StoredSell StoredSignalType = "SELL"
	StoredHold StoredSignalType = "HOLD"
)

// MapSignalType coalesces a SignalClass to its persisted form.
func MapSignalType(c SignalClass) StoredSignalType {
	switch c {
	case StrongBuy, Buy:
		return StoredBuy
	case StrongSell, Sell:
		return StoredSell
	default:
		return StoredHold
	}
}

// StoredSignal is the persistent record created by RiskTranslator.
type StoredSignal struct {
	ID           int64
	Ticker       string
	SignalType   StoredSignalType
	Confidence   int // bucketed 1..5
	EntryPrice   float64
	TargetPrice  float64
	StopLoss     float64
	ShareCount   int
	Status       SignalStatus
	CreatedAt    time.Time
	ExecutedAt   *time.Time
	ClosedAt     *time.Time
	PnL          *float64
	Notes        string
}

// AgentAnalysis is one per-agent record accompanying a StoredSignal.
type AgentAnalysis struct {
	SignalID        int64
	AgentName       string
	Recommendation  SignalClass
	Confidence      int // bucketed 1..5
	Reasoning       string
	FactorsSnapshot map[string]float64
}

// AgentWeight is an append-only daily snapshot of an agent's ensemble
// weight and rolling performance.
type AgentWeight struct {
	Date        time.Time
	AgentName   string
	Weight      float64
	WinRate7    float64
	Trades7     int
	WinRate30   float64
	Trades30    int
	WinRate90   float64
	Trades90    int
}

// Weight bounds from §3 / §4.6.
const (
	WeightMin = 0.30
	WeightMax = 2.00
)

// BacktestExitReason is why a simulated position closed.
type BacktestExitReason string

const (
	ExitStopLoss      BacktestExitReason = "STOP_LOSS"
	ExitTakeProfit    BacktestExitReason = "TAKE_PROFIT"
	ExitHoldPeriodEnd BacktestExitReason = "HOLD_PERIOD_END"
)

// BacktestResult is WIN or LOSS, the simplified +/- classification stored
// alongside a BacktestTrade.
type BacktestResult string

const (
	ResultWin  BacktestResult = "WIN"
	ResultLoss BacktestResult = "LOSS"
)

// BacktestPositionType is the allocation role of a simulated trade.
type BacktestPositionType string

const (
	PositionCore      BacktestPositionType = "CORE"
	PositionSatellite BacktestPositionType = "SATELLITE"
	PositionEqual     BacktestPositionType = "EQUAL"
)

// BacktestTrade is one simulated trade persisted by a backtest run.
type BacktestTrade struct {
	BacktestID     string
	SignalID       int64
	EntryDate      time.Time
	ExitDate       time.Time
	EntryPrice     float64
	ExitPrice      float64
	Shares         int
	PnL            float64
	PnLPct         float64
	Result         BacktestResult
	DaysHeld       int
	ExitReason     BacktestExitReason
	PositionType   BacktestPositionType
	AllocationPct  float64
}

// LearningEventType enumerates the append-only audit events the learning
// loop emits.
type LearningEventType string

const (
	EventWeightUpdate      LearningEventType = "WEIGHT_UPDATE"
	EventBiasDetected      LearningEventType = "BIAS_DETECTED"
	EventCorrectionApplied LearningEventType = "CORRECTION_APPLIED"
	EventRegimeShift       LearningEventType = "REGIME_SHIFT"
	EventFreeze            LearningEventType = "FREEZE"
	EventAlert             LearningEventType = "ALERT"
)

// LearningEvent is one append-only audit row.
type LearningEvent struct {
	Date            time.Time
	EventType       LearningEventType
	AgentName       string
	OldValue        *float64
	NewValue        *float64
	BiasType        string
	Reasoning       string
	ConfidenceLevel *float64
}

// MarketRegime is the coarse market-state classification used to dampen
// learning-loop weight changes (§4.6).
type MarketRegime string

const (
	RegimeNormal         MarketRegime = "NORMAL"
	RegimeHighVolatility MarketRegime = "HIGH_VOLATILITY"
	RegimeBearMarket     MarketRegime = "BEAR_MARKET"
	RegimeDivergence     MarketRegime = "DIVERGENCE"
)

// BiasSeverity ranks a detected bias finding.
type BiasSeverity string

const (
	SeverityLow    BiasSeverity = "LOW"
	SeverityMedium BiasSeverity = "MEDIUM"
	SeverityHigh   BiasSeverity = "HIGH"
)

// AllocationMode is a backtest's portfolio-allocation strategy (§4.5).
type AllocationMode string

const (
	AllocationCoreFocus   AllocationMode = "CORE_FOCUS"
	AllocationBalanced    AllocationMode = "BALANCED"
	AllocationDiversified AllocationMode = "DIVERSIFIED"
)
