// Package store persists the decision core's seven tables with gorm,
// matching the teacher's model+repository layering. Connection setup and
// migrations are the caller's responsibility; these repositories accept
// an already-opened *gorm.DB per SPEC_FULL.md §3.
package store

import (
	"time"

	"github.com/google/uuid"
)

// BarModel is the gorm row for one OHLCV bar.
type BarModel struct {
	ID         uint64 `gorm:"primaryKey"`
	Symbol     string `gorm:"uniqueIndex:idx_bar_key;size:16"`
	Timeframe  string `gorm:"uniqueIndex:idx_bar_key;size:8"`
	Timestamp  time.Time `gorm:"uniqueIndex:idx_bar_key"`
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	VWAP       *float64
	TradeCount *int64
}

func (BarModel) TableName() string { return "bars" }

// IndicatorSnapshotModel stores the named indicator map as JSON.
type IndicatorSnapshotModel struct {
	ID        uint64    `gorm:"primaryKey"`
	Symbol    string    `gorm:"uniqueIndex:idx_ind_key;size:16"`
	Timeframe string    `gorm:"uniqueIndex:idx_ind_key;size:8"`
	Timestamp time.Time `gorm:"uniqueIndex:idx_ind_key"`
	ValuesJSON string   `gorm:"type:jsonb"`
}

func (IndicatorSnapshotModel) TableName() string { return "indicator_snapshots" }

// SignalModel is the gorm row for a Signal.
type SignalModel struct {
	ID                        uint64 `gorm:"primaryKey"`
	DecisionChainID           uuid.UUID `gorm:"index:idx_signal_chain;type:uuid"`
	Symbol                    string    `gorm:"size:16;index"`
	Action                    string    `gorm:"size:8"`
	Confidence                float64
	ModelVersion              string `gorm:"size:32"`
	FeaturesJSON              string `gorm:"type:jsonb"`
	Status                    string `gorm:"size:16;index"`
	AnalystApproved           *bool
	AnalystAdjustedConfidence *float64
	AnalystReasoning          string `gorm:"type:text"`
	AnalystRiskFlagsJSON      string `gorm:"type:jsonb"`
	AnalystPositionSizing     string `gorm:"size:16"`
	RiskApproved              *bool
	RiskRejectionReason       string `gorm:"size:256"`
	CreatedAt                 time.Time `gorm:"index"`
	ReviewedAt                *time.Time
}

func (SignalModel) TableName() string { return "signals" }

// TradeModel is the gorm row for a Trade.
type TradeModel struct {
	ID                uint64    `gorm:"primaryKey"`
	DecisionChainID   uuid.UUID `gorm:"index:idx_trade_chain;type:uuid"`
	SignalID          uint64    `gorm:"index"`
	BrokerOrderID     string    `gorm:"size:64;index"`
	Symbol            string    `gorm:"size:16;index"`
	Side              string    `gorm:"size:8"`
	Shares            int64
	EntryPrice        string `gorm:"type:numeric(18,6)"`
	StopPrice         string `gorm:"type:numeric(18,6)"`
	TargetPrice       string `gorm:"type:numeric(18,6)"`
	FillPrice         *string `gorm:"type:numeric(18,6)"`
	ExitPrice         *string `gorm:"type:numeric(18,6)"`
	RealizedPnL       *string `gorm:"type:numeric(18,6)"`
	MLConfidence      float64
	AnalystConfidence float64
	AllocationPct     string `gorm:"type:numeric(8,4)"`
	DollarAmount      string `gorm:"type:numeric(18,6)"`
	Status            string `gorm:"size:16;index"`
	ExitReason        string `gorm:"size:64"`
	PlacedAt          time.Time `gorm:"index"`
	FilledAt          *time.Time
	ClosedAt          *time.Time
}

func (TradeModel) TableName() string { return "trades" }

// PortfolioSnapshotModel is the gorm row for a PortfolioSnapshot.
type PortfolioSnapshotModel struct {
	ID                 uint64 `gorm:"primaryKey"`
	Timestamp          time.Time `gorm:"index"`
	TotalEquity        string `gorm:"type:numeric(18,6)"`
	Cash                string `gorm:"type:numeric(18,6)"`
	MarketValue         string `gorm:"type:numeric(18,6)"`
	DailyPnL            string `gorm:"type:numeric(18,6)"`
	DailyPnLPct         float64
	WeeklyPnL           string `gorm:"type:numeric(18,6)"`
	WeeklyPnLPct        float64
	MonthlyPnL          string `gorm:"type:numeric(18,6)"`
	MonthlyPnLPct       float64
	PeakEquity          string `gorm:"type:numeric(18,6)"`
	CurrentDrawdownPct  float64
	TotalExposurePct    float64
	OpenPositionsCount  int
	PositionsJSON       string `gorm:"type:jsonb"`
	SectorExposureJSON  string `gorm:"type:jsonb"`
	TradesToday         int
}

func (PortfolioSnapshotModel) TableName() string { return "portfolio_snapshots" }

// RiskEventModel is the gorm row for a RiskEvent.
type RiskEventModel struct {
	ID             uint64    `gorm:"primaryKey"`
	Timestamp      time.Time `gorm:"index"`
	Level          string    `gorm:"size:8;index"`
	TriggerReason  string    `gorm:"size:128"`
	TriggerValue   float64
	ThresholdValue float64
	ActionTaken    string `gorm:"size:128"`
	Resolved       bool   `gorm:"index"`
	ResolvedBy     string `gorm:"size:64"`
	DetailsJSON    string `gorm:"type:jsonb"`
}

func (RiskEventModel) TableName() string { return "risk_events" }

// AuditEntryModel is the gorm row for one append-only audit record.
type AuditEntryModel struct {
	ID              uint64     `gorm:"primaryKey"`
	Timestamp       time.Time  `gorm:"index"`
	EventType       string     `gorm:"size:64;index"`
	Severity        string     `gorm:"size:16;index"`
	Component       string     `gorm:"size:64"`
	Symbol          string     `gorm:"size:16"`
	DetailsJSON     string     `gorm:"type:jsonb"`
	DecisionChainID *uuid.UUID `gorm:"index:idx_audit_chain;type:uuid"`
}

func (AuditEntryModel) TableName() string { return "audit_entries" }
