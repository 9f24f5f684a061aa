// Package domain holds the named records passed between pipeline stages.
// Per the design notes, these replace the ad-hoc dict-like contexts the
// original implementation threaded between components: every boundary
// gets a concrete, validated type instead of a map[string]any.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Action is a signal or trade direction.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// CircuitBreakerLevel is the risk manager's posture, re-derived every cycle.
type CircuitBreakerLevel string

const (
	LevelNone   CircuitBreakerLevel = "NONE"
	LevelYellow CircuitBreakerLevel = "YELLOW"
	LevelOrange CircuitBreakerLevel = "ORANGE"
	LevelRed    CircuitBreakerLevel = "RED"
)

// Severity classifies an audit entry.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Bar is one OHLCV observation. Primary key is (Symbol, Timeframe, Timestamp).
type Bar struct {
	Symbol     string
	Timeframe  string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	VWAP       *float64
	TradeCount *int64
}

// IndicatorSnapshot is the named indicator->value mapping for one bar.
// A nil entry in Values means the indicator was undefined for that window.
type IndicatorSnapshot struct {
	Symbol    string
	Timeframe string
	Timestamp time.Time
	Values    map[string]*float64
}

// Get returns the indicator value or false if undefined/missing.
func (s IndicatorSnapshot) Get(name string) (float64, bool) {
	v, ok := s.Values[name]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// MarketContext is the ephemeral per-cycle broad-market record.
type MarketContext struct {
	BroadIndexReturn1D float64
	VIX                float64
	VIXChange          float64
}

// SymbolContext is per-symbol supporting data assembled for the analyst
// review — price, trend, volume, and news context sections of the prompt.
type SymbolContext struct {
	Symbol          string
	Price           float64
	ChangePct       float64
	VolumeRatio     float64
	Low52W          float64
	High52W         float64
	SectorLabel     string
	SectorPerf      string
	NewsHeadlines   []NewsItem
	UpcomingEvents  []string
	Market          MarketContext
}

// NewsItem is one headline with its summary, used in the analyst prompt.
type NewsItem struct {
	Headline  string
	Summary   string
	Timestamp time.Time
}

// Signal is one scored, reviewed trading decision.
type Signal struct {
	ID                       uint64
	DecisionChainID          uuid.UUID
	Symbol                   string
	Action                   Action
	Confidence               float64
	ModelVersion             string
	FeaturesSnapshot         map[string]float64
	Status                   SignalStatus
	AnalystApproved          *bool
	AnalystAdjustedConfidence *float64
	AnalystReasoning         string
	AnalystRiskFlags         []string
	AnalystPositionSizing    string
	RiskApproved             *bool
	RiskRejectionReason      string
	CreatedAt                time.Time
	ReviewedAt               *time.Time
}

// SignalStatus is the Signal lifecycle state.
type SignalStatus string

const (
	SignalPending  SignalStatus = "pending"
	SignalApproved SignalStatus = "approved"
	SignalRejected SignalStatus = "rejected"
	SignalExecuted SignalStatus = "executed"
)

// Trade is the local projection of a bracket order placed at the broker.
type Trade struct {
	ID               uint64
	DecisionChainID  uuid.UUID
	SignalID         uint64
	BrokerOrderID    string
	Symbol           string
	Side             string // "buy" | "sell"
	Shares           int64
	EntryPrice       decimal.Decimal
	StopPrice        decimal.Decimal
	TargetPrice      decimal.Decimal
	FillPrice        *decimal.Decimal
	ExitPrice        *decimal.Decimal
	RealizedPnL      *decimal.Decimal
	MLConfidence     float64
	AnalystConfidence float64
	AllocationPct    decimal.Decimal
	DollarAmount     decimal.Decimal
	Status           TradeStatus
	ExitReason       string
	PlacedAt         time.Time
	FilledAt         *time.Time
	ClosedAt         *time.Time
}

// TradeStatus is the Trade lifecycle state.
type TradeStatus string

const (
	TradePending   TradeStatus = "pending"
	TradeFilled    TradeStatus = "filled"
	TradePartial   TradeStatus = "partial"
	TradeClosed    TradeStatus = "closed"
	TradeCancelled TradeStatus = "cancelled"
	TradeExpired   TradeStatus = "expired"
)

// PositionSnapshot is one open position inside a PortfolioSnapshot.
type PositionSnapshot struct {
	Symbol           string
	Shares           int64
	Side             string
	EntryPrice       decimal.Decimal
	CurrentPrice     decimal.Decimal
	MarketValue      decimal.Decimal
	UnrealizedPnL    decimal.Decimal
	UnrealizedPnLPct float64
}

// PortfolioSnapshot is the per-cycle account+positions record the risk
// manager and executor read from.
type PortfolioSnapshot struct {
	Timestamp           time.Time
	TotalEquity         decimal.Decimal
	Cash                decimal.Decimal
	MarketValue         decimal.Decimal
	DailyPnL            decimal.Decimal
	DailyPnLPct         float64
	WeeklyPnL           decimal.Decimal
	WeeklyPnLPct        float64
	MonthlyPnL          decimal.Decimal
	MonthlyPnLPct       float64
	PeakEquity          decimal.Decimal
	CurrentDrawdownPct  float64
	TotalExposurePct    float64
	OpenPositionsCount  int
	Positions           map[string]PositionSnapshot
	SectorExposure      map[string]float64
	TradesToday         int
}

// RiskEvent records a circuit-breaker state transition.
type RiskEvent struct {
	Timestamp      time.Time
	Level          CircuitBreakerLevel
	TriggerReason  string
	TriggerValue   float64
	ThresholdValue float64
	ActionTaken    string
	Resolved       bool
	ResolvedBy     string
	Details        map[string]any
}

// AuditEntry is one append-only audit-journal record.
type AuditEntry struct {
	Timestamp       time.Time
	EventType       string
	Severity        Severity
	Component       string
	Symbol          string
	Details         map[string]any
	DecisionChainID *uuid.UUID
}

// RiskCheckResult is the pre-trade gate's verdict.
type RiskCheckResult struct {
	Approved        bool
	Reason          string
	AdjustedSizePct float64
	Warnings        []string
}

// PositionSize is the executor's sizing decision for one approved signal.
type PositionSize struct {
	Shares           int64
	DollarAmount     decimal.Decimal
	AllocationPct    decimal.Decimal
	LimitPrice       decimal.Decimal
	StopPrice        decimal.Decimal
	TargetPrice      decimal.Decimal
	RiskRewardRatio  float64
}

// AnalystVerdict is the structured output of a signal review.
type AnalystVerdict struct {
	AdjustedConfidence   float64
	ConfidenceAdjustment int
	PositionSizing       string // conservative | normal | aggressive
	Reasoning             string
	RiskFlags             []string
	Approve               bool
	InputTokens           int
	OutputTokens          int
}

// SymbolAnalysis is the richer on-demand deep-analysis record.
type SymbolAnalysis struct {
	Symbol           string
	Direction        string
	Conviction       int // 1-10
	Timeframe        string
	EntryZoneLow     decimal.Decimal
	EntryZoneHigh    decimal.Decimal
	StopLoss         decimal.Decimal
	TakeProfit1      decimal.Decimal
	TakeProfit2      decimal.Decimal
	RiskRewardRatio  float64
	SupportLevels    []decimal.Decimal
	ResistanceLevels []decimal.Decimal
	Summary          string
}
