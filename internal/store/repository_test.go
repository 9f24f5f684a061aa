package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/auroratrading/core/internal/domain"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	repo := New(db)
	require.NoError(t, repo.AutoMigrate())
	return repo
}

func TestUpsertBar_RecentBarsReturnsOldestFirst(t *testing.T) {
	repo := newTestRepo(t)
	base := time.Date(2026, 7, 1, 9, 30, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.UpsertBar(domain.Bar{
			Symbol: "AAPL", Timeframe: "1Day", Timestamp: base.Add(time.Duration(i) * 24 * time.Hour),
			Open: 100 + float64(i), High: 101, Low: 99, Close: 100.5, Volume: 1000,
		}))
	}

	bars, err := repo.RecentBars("AAPL", "1Day", 10)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.True(t, bars[0].Timestamp.Before(bars[1].Timestamp))
	assert.True(t, bars[1].Timestamp.Before(bars[2].Timestamp))
}

func TestUpsertBar_ConflictOnSameKeyUpdatesInPlace(t *testing.T) {
	repo := newTestRepo(t)
	ts := time.Date(2026, 7, 1, 9, 30, 0, 0, time.UTC)

	require.NoError(t, repo.UpsertBar(domain.Bar{Symbol: "AAPL", Timeframe: "1Day", Timestamp: ts, Close: 100}))
	require.NoError(t, repo.UpsertBar(domain.Bar{Symbol: "AAPL", Timeframe: "1Day", Timestamp: ts, Close: 105}))

	bars, err := repo.RecentBars("AAPL", "1Day", 10)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 105.0, bars[0].Close)
}

func TestCountTradesToday_OnlyCountsTradesWithinUTCDay(t *testing.T) {
	repo := newTestRepo(t)
	day := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

	in := &domain.Trade{Symbol: "AAPL", Side: "buy", Shares: 1, PlacedAt: day.Add(10 * time.Hour),
		EntryPrice: decimal.NewFromInt(100), StopPrice: decimal.NewFromInt(95), TargetPrice: decimal.NewFromInt(110),
		AllocationPct: decimal.NewFromInt(5), DollarAmount: decimal.NewFromInt(500)}
	outBefore := &domain.Trade{Symbol: "AAPL", Side: "buy", Shares: 1, PlacedAt: day.Add(-time.Hour),
		EntryPrice: decimal.NewFromInt(100), StopPrice: decimal.NewFromInt(95), TargetPrice: decimal.NewFromInt(110),
		AllocationPct: decimal.NewFromInt(5), DollarAmount: decimal.NewFromInt(500)}
	outAfter := &domain.Trade{Symbol: "AAPL", Side: "buy", Shares: 1, PlacedAt: day.Add(24 * time.Hour),
		EntryPrice: decimal.NewFromInt(100), StopPrice: decimal.NewFromInt(95), TargetPrice: decimal.NewFromInt(110),
		AllocationPct: decimal.NewFromInt(5), DollarAmount: decimal.NewFromInt(500)}

	require.NoError(t, repo.InsertTrade(in))
	require.NoError(t, repo.InsertTrade(outBefore))
	require.NoError(t, repo.InsertTrade(outAfter))

	count, err := repo.CountTradesToday(day.Add(3 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestInsertRiskEvent_LatestUnresolvedReturnsNewestOnly(t *testing.T) {
	repo := newTestRepo(t)
	now := time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.InsertRiskEvent(domain.RiskEvent{
		Timestamp: now, Level: domain.LevelYellow, TriggerReason: "daily_loss", Resolved: true,
	}))
	require.NoError(t, repo.InsertRiskEvent(domain.RiskEvent{
		Timestamp: now.Add(time.Hour), Level: domain.LevelOrange, TriggerReason: "daily_loss",
	}))

	ev, err := repo.LatestUnresolvedRiskEvent()
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, domain.LevelOrange, ev.Level)
	assert.False(t, ev.Resolved)
}

func TestInsertRiskEvent_NoUnresolvedReturnsNil(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.InsertRiskEvent(domain.RiskEvent{
		Timestamp: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), Level: domain.LevelYellow, Resolved: true,
	}))

	ev, err := repo.LatestUnresolvedRiskEvent()
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestPortfolioSnapshot_LatestAndBeforeCutoffRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	t1 := time.Date(2026, 7, 10, 16, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 7, 15, 16, 0, 0, 0, time.UTC)

	require.NoError(t, repo.InsertPortfolioSnapshot(domain.PortfolioSnapshot{
		Timestamp: t1, TotalEquity: decimal.NewFromInt(100000), Cash: decimal.NewFromInt(20000),
		MarketValue: decimal.NewFromInt(80000), DailyPnL: decimal.Zero, WeeklyPnL: decimal.Zero,
		MonthlyPnL: decimal.Zero, PeakEquity: decimal.NewFromInt(100000),
		Positions: map[string]domain.PositionSnapshot{}, SectorExposure: map[string]float64{},
	}))
	require.NoError(t, repo.InsertPortfolioSnapshot(domain.PortfolioSnapshot{
		Timestamp: t2, TotalEquity: decimal.NewFromInt(105000), Cash: decimal.NewFromInt(25000),
		MarketValue: decimal.NewFromInt(80000), DailyPnL: decimal.NewFromInt(500), WeeklyPnL: decimal.Zero,
		MonthlyPnL: decimal.Zero, PeakEquity: decimal.NewFromInt(105000),
		Positions: map[string]domain.PositionSnapshot{}, SectorExposure: map[string]float64{},
	}))

	latest, err := repo.LatestPortfolioSnapshot()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.TotalEquity.Equal(decimal.NewFromInt(105000)))

	before, err := repo.PortfolioSnapshotBefore(t1.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, before)
	assert.True(t, before.TotalEquity.Equal(decimal.NewFromInt(100000)))

	max, err := repo.MaxHistoricalEquity()
	require.NoError(t, err)
	assert.True(t, max.Equal(decimal.NewFromInt(105000)))
}

func TestAppendAudit_GetChainReturnsOnlyMatchingChainOldestFirst(t *testing.T) {
	repo := newTestRepo(t)
	chainA, chainB := uuid.New(), uuid.New()
	now := time.Date(2026, 7, 15, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.AppendAudit(domain.AuditEntry{
		Timestamp: now, EventType: "signal_generated", Severity: domain.SeverityInfo,
		DecisionChainID: &chainA, Details: map[string]any{"symbol": "AAPL"},
	}))
	require.NoError(t, repo.AppendAudit(domain.AuditEntry{
		Timestamp: now.Add(time.Minute), EventType: "signal_generated", Severity: domain.SeverityInfo,
		DecisionChainID: &chainB, Details: map[string]any{"symbol": "MSFT"},
	}))
	require.NoError(t, repo.AppendAudit(domain.AuditEntry{
		Timestamp: now.Add(2 * time.Minute), EventType: "risk_check_passed", Severity: domain.SeverityInfo,
		DecisionChainID: &chainA, Details: map[string]any{},
	}))

	entries, err := repo.GetChain(chainA)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "signal_generated", entries[0].EventType)
	assert.Equal(t, "risk_check_passed", entries[1].EventType)
	assert.Equal(t, "AAPL", entries[0].Details["symbol"])
}

func TestInsertSignal_UpdateSignalPersistsReviewFields(t *testing.T) {
	repo := newTestRepo(t)
	sig := &domain.Signal{
		Symbol: "AAPL", Action: domain.ActionBuy, Confidence: 0.75, ModelVersion: "heuristic-v1",
		Status: domain.SignalPending, CreatedAt: time.Date(2026, 7, 15, 9, 30, 0, 0, time.UTC),
	}
	require.NoError(t, repo.InsertSignal(sig))
	assert.NotZero(t, sig.ID)

	approved := true
	adjusted := 0.70
	sig.AnalystApproved = &approved
	sig.AnalystAdjustedConfidence = &adjusted
	sig.Status = domain.SignalApproved
	require.NoError(t, repo.UpdateSignal(*sig))

	var row SignalModel
	require.NoError(t, repo.db.First(&row, sig.ID).Error)
	assert.Equal(t, string(domain.SignalApproved), row.Status)
	require.NotNil(t, row.AnalystApproved)
	assert.True(t, *row.AnalystApproved)
	require.NotNil(t, row.AnalystAdjustedConfidence)
	assert.InDelta(t, 0.70, *row.AnalystAdjustedConfidence, 1e-9)
}
