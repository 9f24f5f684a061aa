package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/auroratrading/core/internal/domain"
	coreerrors "github.com/auroratrading/core/pkg/errors"
)

// Repository is the single persistence entry point for the decision core.
// It wraps one *gorm.DB and exposes only the operations the pipeline
// needs, matching SPEC_FULL.md §3's named-operation list.
type Repository struct {
	db *gorm.DB
}

// New wraps an already-opened, already-migrated *gorm.DB.
func New(db *gorm.DB) *Repository { return &Repository{db: db} }

// AutoMigrate creates/updates the seven tables. Callers decide when (and
// whether, in production) to invoke this; it is not called implicitly.
func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&BarModel{}, &IndicatorSnapshotModel{}, &SignalModel{}, &TradeModel{},
		&PortfolioSnapshotModel{}, &RiskEventModel{}, &AuditEntryModel{},
	)
}

func wrapErr(component, msg string, err error) error {
	if err == nil {
		return nil
	}
	return coreerrors.New(coreerrors.KindPersistence, component, msg, err)
}

// UpsertBar inserts or updates a bar keyed on (symbol, timeframe, timestamp).
func (r *Repository) UpsertBar(b domain.Bar) error {
	m := BarModel{
		Symbol: b.Symbol, Timeframe: b.Timeframe, Timestamp: b.Timestamp,
		Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume,
		VWAP: b.VWAP, TradeCount: b.TradeCount,
	}
	err := r.db.Where(BarModel{Symbol: b.Symbol, Timeframe: b.Timeframe, Timestamp: b.Timestamp}).
		Assign(m).FirstOrCreate(&m).Error
	return wrapErr("store", "upsert bar", err)
}

// UpsertIndicatorSnapshot inserts or updates the indicator map for one bar.
func (r *Repository) UpsertIndicatorSnapshot(s domain.IndicatorSnapshot) error {
	raw, err := json.Marshal(s.Values)
	if err != nil {
		return wrapErr("store", "marshal indicator snapshot", err)
	}
	m := IndicatorSnapshotModel{Symbol: s.Symbol, Timeframe: s.Timeframe, Timestamp: s.Timestamp, ValuesJSON: string(raw)}
	err = r.db.Where(IndicatorSnapshotModel{Symbol: s.Symbol, Timeframe: s.Timeframe, Timestamp: s.Timestamp}).
		Assign(m).FirstOrCreate(&m).Error
	return wrapErr("store", "upsert indicator snapshot", err)
}

// RecentBars returns the most recent limit bars for symbol/timeframe,
// oldest first, the shape internal/indicators.Compute expects.
func (r *Repository) RecentBars(symbol, timeframe string, limit int) ([]domain.Bar, error) {
	var rows []BarModel
	err := r.db.Where("symbol = ? AND timeframe = ?", symbol, timeframe).
		Order("timestamp desc").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, wrapErr("store", "load recent bars", err)
	}
	out := make([]domain.Bar, len(rows))
	for i, m := range rows {
		out[len(rows)-1-i] = domain.Bar{
			Symbol: m.Symbol, Timeframe: m.Timeframe, Timestamp: m.Timestamp,
			Open: m.Open, High: m.High, Low: m.Low, Close: m.Close, Volume: m.Volume,
			VWAP: m.VWAP, TradeCount: m.TradeCount,
		}
	}
	return out, nil
}

// InsertSignal persists a newly scored signal and sets s.ID to its assigned ID.
func (r *Repository) InsertSignal(s *domain.Signal) error {
	featuresJSON, err := json.Marshal(s.FeaturesSnapshot)
	if err != nil {
		return wrapErr("store", "marshal signal features", err)
	}
	flagsJSON, err := json.Marshal(s.AnalystRiskFlags)
	if err != nil {
		return wrapErr("store", "marshal analyst risk flags", err)
	}
	m := SignalModel{
		DecisionChainID: s.DecisionChainID, Symbol: s.Symbol, Action: string(s.Action),
		Confidence: s.Confidence, ModelVersion: s.ModelVersion, FeaturesJSON: string(featuresJSON),
		Status: string(s.Status), AnalystApproved: s.AnalystApproved,
		AnalystAdjustedConfidence: s.AnalystAdjustedConfidence, AnalystReasoning: s.AnalystReasoning,
		AnalystRiskFlagsJSON: string(flagsJSON), AnalystPositionSizing: s.AnalystPositionSizing,
		RiskApproved: s.RiskApproved, RiskRejectionReason: s.RiskRejectionReason,
		CreatedAt: s.CreatedAt, ReviewedAt: s.ReviewedAt,
	}
	if err := r.db.Create(&m).Error; err != nil {
		return wrapErr("store", "insert signal", err)
	}
	s.ID = m.ID
	return nil
}

// UpdateSignal persists post-review fields (analyst verdict, risk verdict,
// status transition) for an existing signal row.
func (r *Repository) UpdateSignal(s domain.Signal) error {
	flagsJSON, err := json.Marshal(s.AnalystRiskFlags)
	if err != nil {
		return wrapErr("store", "marshal analyst risk flags", err)
	}
	updates := map[string]any{
		"status":                      string(s.Status),
		"analyst_approved":            s.AnalystApproved,
		"analyst_adjusted_confidence": s.AnalystAdjustedConfidence,
		"analyst_reasoning":           s.AnalystReasoning,
		"analyst_risk_flags_json":     string(flagsJSON),
		"analyst_position_sizing":     s.AnalystPositionSizing,
		"risk_approved":               s.RiskApproved,
		"risk_rejection_reason":       s.RiskRejectionReason,
		"reviewed_at":                 s.ReviewedAt,
	}
	err = r.db.Model(&SignalModel{}).Where("id = ?", s.ID).Updates(updates).Error
	return wrapErr("store", "update signal", err)
}

// InsertTrade persists a newly placed trade and sets t.ID to its assigned ID.
func (r *Repository) InsertTrade(t *domain.Trade) error {
	m := TradeModel{
		DecisionChainID: t.DecisionChainID, SignalID: t.SignalID, BrokerOrderID: t.BrokerOrderID,
		Symbol: t.Symbol, Side: t.Side, Shares: t.Shares,
		EntryPrice: t.EntryPrice.String(), StopPrice: t.StopPrice.String(), TargetPrice: t.TargetPrice.String(),
		FillPrice: decimalPtrToStringPtr(t.FillPrice), ExitPrice: decimalPtrToStringPtr(t.ExitPrice),
		RealizedPnL: decimalPtrToStringPtr(t.RealizedPnL),
		MLConfidence: t.MLConfidence, AnalystConfidence: t.AnalystConfidence,
		AllocationPct: t.AllocationPct.String(), DollarAmount: t.DollarAmount.String(),
		Status: string(t.Status), ExitReason: t.ExitReason,
		PlacedAt: t.PlacedAt, FilledAt: t.FilledAt, ClosedAt: t.ClosedAt,
	}
	if err := r.db.Create(&m).Error; err != nil {
		return wrapErr("store", "insert trade", err)
	}
	t.ID = m.ID
	return nil
}

// CountTradesToday returns how many trades were placed on the UTC calendar
// day containing day, used to enforce the daily trade-count limit.
func (r *Repository) CountTradesToday(day time.Time) (int, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	var count int64
	err := r.db.Model(&TradeModel{}).Where("placed_at >= ? AND placed_at < ?", start, end).Count(&count).Error
	if err != nil {
		return 0, wrapErr("store", "count trades today", err)
	}
	return int(count), nil
}

// InsertPortfolioSnapshot persists one per-cycle portfolio record.
func (r *Repository) InsertPortfolioSnapshot(p domain.PortfolioSnapshot) error {
	posJSON, err := json.Marshal(p.Positions)
	if err != nil {
		return wrapErr("store", "marshal positions", err)
	}
	sectorJSON, err := json.Marshal(p.SectorExposure)
	if err != nil {
		return wrapErr("store", "marshal sector exposure", err)
	}
	m := PortfolioSnapshotModel{
		Timestamp: p.Timestamp, TotalEquity: p.TotalEquity.String(), Cash: p.Cash.String(),
		MarketValue: p.MarketValue.String(), DailyPnL: p.DailyPnL.String(), DailyPnLPct: p.DailyPnLPct,
		WeeklyPnL: p.WeeklyPnL.String(), WeeklyPnLPct: p.WeeklyPnLPct,
		MonthlyPnL: p.MonthlyPnL.String(), MonthlyPnLPct: p.MonthlyPnLPct,
		PeakEquity: p.PeakEquity.String(), CurrentDrawdownPct: p.CurrentDrawdownPct,
		TotalExposurePct: p.TotalExposurePct, OpenPositionsCount: p.OpenPositionsCount,
		PositionsJSON: string(posJSON), SectorExposureJSON: string(sectorJSON), TradesToday: p.TradesToday,
	}
	return wrapErr("store", "insert portfolio snapshot", r.db.Create(&m).Error)
}

// LatestPortfolioSnapshot returns the most recently persisted snapshot, or
// nil if none exists; the operator surface's portfolio and dashboard routes
// read it.
func (r *Repository) LatestPortfolioSnapshot() (*domain.PortfolioSnapshot, error) {
	var m PortfolioSnapshotModel
	err := r.db.Order("timestamp desc").First(&m).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("store", "load latest portfolio snapshot", err)
	}
	snap, err := portfolioModelToDomain(m)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// PortfolioSnapshotBefore returns the most recent snapshot at or before
// cutoff, used to derive weekly/monthly P&L deltas. Returns nil if none exists.
func (r *Repository) PortfolioSnapshotBefore(cutoff time.Time) (*domain.PortfolioSnapshot, error) {
	var m PortfolioSnapshotModel
	err := r.db.Where("timestamp <= ?", cutoff).Order("timestamp desc").First(&m).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("store", "load portfolio snapshot before cutoff", err)
	}
	snap, err := portfolioModelToDomain(m)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// MaxHistoricalEquity returns the highest total_equity ever recorded, or
// zero if no snapshot exists yet.
func (r *Repository) MaxHistoricalEquity() (decimal.Decimal, error) {
	var rows []PortfolioSnapshotModel
	err := r.db.Select("total_equity").Order("id asc").Find(&rows).Error
	if err != nil {
		return decimal.Zero, wrapErr("store", "load historical equity", err)
	}
	max := decimal.Zero
	for _, m := range rows {
		v, err := decimal.NewFromString(m.TotalEquity)
		if err != nil {
			continue
		}
		if v.GreaterThan(max) {
			max = v
		}
	}
	return max, nil
}

// InsertRiskEvent persists one circuit-breaker transition.
func (r *Repository) InsertRiskEvent(e domain.RiskEvent) error {
	detailsJSON, err := json.Marshal(e.Details)
	if err != nil {
		return wrapErr("store", "marshal risk event details", err)
	}
	m := RiskEventModel{
		Timestamp: e.Timestamp, Level: string(e.Level), TriggerReason: e.TriggerReason,
		TriggerValue: e.TriggerValue, ThresholdValue: e.ThresholdValue, ActionTaken: e.ActionTaken,
		Resolved: e.Resolved, ResolvedBy: e.ResolvedBy, DetailsJSON: string(detailsJSON),
	}
	return wrapErr("store", "insert risk event", r.db.Create(&m).Error)
}

// LatestUnresolvedRiskEvent returns the most recent unresolved risk event,
// if any — the source of truth for reconciling breaker level at startup.
func (r *Repository) LatestUnresolvedRiskEvent() (*domain.RiskEvent, error) {
	var m RiskEventModel
	err := r.db.Where("resolved = ?", false).Order("timestamp desc").First(&m).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("store", "load latest risk event", err)
	}
	var details map[string]any
	_ = json.Unmarshal([]byte(m.DetailsJSON), &details)
	return &domain.RiskEvent{
		Timestamp: m.Timestamp, Level: domain.CircuitBreakerLevel(m.Level), TriggerReason: m.TriggerReason,
		TriggerValue: m.TriggerValue, ThresholdValue: m.ThresholdValue, ActionTaken: m.ActionTaken,
		Resolved: m.Resolved, ResolvedBy: m.ResolvedBy, Details: details,
	}, nil
}

// AppendAudit writes one append-only audit entry. Callers are expected to
// have already redacted Details via internal/audit before calling this.
func (r *Repository) AppendAudit(e domain.AuditEntry) error {
	detailsJSON, err := json.Marshal(e.Details)
	if err != nil {
		return wrapErr("store", "marshal audit details", err)
	}
	m := AuditEntryModel{
		Timestamp: e.Timestamp, EventType: e.EventType, Severity: string(e.Severity),
		Component: e.Component, Symbol: e.Symbol, DetailsJSON: string(detailsJSON),
		DecisionChainID: e.DecisionChainID,
	}
	return wrapErr("store", "append audit entry", r.db.Create(&m).Error)
}

// GetChain returns every audit entry for a decision chain, oldest first,
// giving full provenance for one signal-to-trade lifecycle.
func (r *Repository) GetChain(id uuid.UUID) ([]domain.AuditEntry, error) {
	var rows []AuditEntryModel
	err := r.db.Where("decision_chain_id = ?", id).Order("timestamp asc").Find(&rows).Error
	if err != nil {
		return nil, wrapErr("store", "load decision chain", err)
	}
	out := make([]domain.AuditEntry, 0, len(rows))
	for _, m := range rows {
		var details map[string]any
		_ = json.Unmarshal([]byte(m.DetailsJSON), &details)
		out = append(out, domain.AuditEntry{
			Timestamp: m.Timestamp, EventType: m.EventType, Severity: domain.Severity(m.Severity),
			Component: m.Component, Symbol: m.Symbol, Details: details, DecisionChainID: m.DecisionChainID,
		})
	}
	return out, nil
}

func decimalPtrToStringPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func portfolioModelToDomain(m PortfolioSnapshotModel) (domain.PortfolioSnapshot, error) {
	parse := func(s string) decimal.Decimal {
		d, _ := decimal.NewFromString(s)
		return d
	}
	var positions map[string]domain.PositionSnapshot
	_ = json.Unmarshal([]byte(m.PositionsJSON), &positions)
	var sector map[string]float64
	_ = json.Unmarshal([]byte(m.SectorExposureJSON), &sector)
	return domain.PortfolioSnapshot{
		Timestamp: m.Timestamp, TotalEquity: parse(m.TotalEquity), Cash: parse(m.Cash),
		MarketValue: parse(m.MarketValue), DailyPnL: parse(m.DailyPnL), DailyPnLPct: m.DailyPnLPct,
		WeeklyPnL: parse(m.WeeklyPnL), WeeklyPnLPct: m.WeeklyPnLPct,
		MonthlyPnL: parse(m.MonthlyPnL), MonthlyPnLPct: m.MonthlyPnLPct,
		PeakEquity: parse(m.PeakEquity), CurrentDrawdownPct: m.CurrentDrawdownPct,
		TotalExposurePct: m.TotalExposurePct, OpenPositionsCount: m.OpenPositionsCount,
		Positions: positions, SectorExposure: sector, TradesToday: m.TradesToday,
	}, nil
}
