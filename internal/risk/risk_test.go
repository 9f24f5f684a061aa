package risk

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/auroratrading/core/internal/audit"
	"github.com/auroratrading/core/internal/config"
	"github.com/auroratrading/core/internal/domain"
)

type fakeStore struct {
	events         []domain.RiskEvent
	unresolved     *domain.RiskEvent
	auditedEntries []domain.AuditEntry
}

func (f *fakeStore) InsertRiskEvent(e domain.RiskEvent) error {
	f.events = append(f.events, e)
	return nil
}
func (f *fakeStore) LatestUnresolvedRiskEvent() (*domain.RiskEvent, error) { return f.unresolved, nil }
func (f *fakeStore) AppendAudit(e domain.AuditEntry) error {
	f.auditedEntries = append(f.auditedEntries, e)
	return nil
}
func (f *fakeStore) GetChain(uuid.UUID) ([]domain.AuditEntry, error) { return nil, nil }

type RiskManagerTestSuite struct {
	suite.Suite
	store   *fakeStore
	manager *Manager
	midday  time.Time
}

func defaultRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxPortfolioExposurePct: 80.0,
		MaxSingleStockPct:       15.0,
		MaxOpenPositions:        10,
		MinSignalConfidence:     0.60,
		VIXHaltThreshold:        35.0,
		VIXHalveThreshold:       25.0,
		DailyLossOrangePct:      5.0,
		MaxWeeklyLossPct:        10.0,
		MaxMonthlyLossPct:       15.0,
		DrawdownRedPct:          15.0,
		MaxTradesPerDay:         20,
	}
}

func (s *RiskManagerTestSuite) SetupTest() {
	s.store = &fakeStore{}
	logger := zap.NewNop()
	journal := audit.New(s.store, logger)
	s.manager = NewManager(defaultRiskConfig(), s.store, journal)
	// 2024-01-02 is a Tuesday; 18:00 UTC = 13:00 ET, safely mid-session.
	s.midday = time.Date(2024, 1, 2, 18, 0, 0, 0, time.UTC)
}

func (s *RiskManagerTestSuite) portfolio() domain.PortfolioSnapshot {
	return domain.PortfolioSnapshot{
		TotalExposurePct:   40.0,
		OpenPositionsCount: 2,
		TradesToday:        1,
		SectorExposure:     map[string]float64{},
	}
}

func (s *RiskManagerTestSuite) TestApprovesWithinLimits() {
	result := s.manager.PreTradeCheck("AAPL", domain.ActionBuy, 0.75, 5.0, s.portfolio(), domain.MarketContext{VIX: 18}, uuid.New(), s.midday)
	assert.True(s.T(), result.Approved)
	assert.Equal(s.T(), 5.0, result.AdjustedSizePct)
	assert.Empty(s.T(), result.Warnings)
}

func (s *RiskManagerTestSuite) TestRejectsBelowMinConfidence() {
	result := s.manager.PreTradeCheck("AAPL", domain.ActionBuy, 0.50, 5.0, s.portfolio(), domain.MarketContext{VIX: 18}, uuid.New(), s.midday)
	assert.False(s.T(), result.Approved)
	assert.Contains(s.T(), result.Reason, "below minimum")
}

func (s *RiskManagerTestSuite) TestVIXHaltAboveThreshold() {
	result := s.manager.PreTradeCheck("AAPL", domain.ActionBuy, 0.90, 5.0, s.portfolio(), domain.MarketContext{VIX: 40}, uuid.New(), s.midday)
	assert.False(s.T(), result.Approved)
	assert.Contains(s.T(), result.Reason, "VIX")
}

func (s *RiskManagerTestSuite) TestVIXHalvesPositionAboveHalveThreshold() {
	result := s.manager.PreTradeCheck("AAPL", domain.ActionBuy, 0.90, 10.0, s.portfolio(), domain.MarketContext{VIX: 28}, uuid.New(), s.midday)
	assert.True(s.T(), result.Approved)
	assert.Equal(s.T(), 5.0, result.AdjustedSizePct)
}

func (s *RiskManagerTestSuite) TestRedBreakerBlocksEverything() {
	s.manager.EmergencyStop("test halt")
	result := s.manager.PreTradeCheck("AAPL", domain.ActionSell, 0.95, 5.0, s.portfolio(), domain.MarketContext{VIX: 18}, uuid.New(), s.midday)
	assert.False(s.T(), result.Approved)
	assert.Contains(s.T(), result.Reason, "RED circuit breaker")
}

func (s *RiskManagerTestSuite) TestOrangeBreakerAllowsOnlySell() {
	s.manager.EvaluateCircuitBreakers(domain.PortfolioSnapshot{DailyPnLPct: -6.0, SectorExposure: map[string]float64{}})
	s.Require().Equal(domain.LevelOrange, s.manager.Level())

	buyResult := s.manager.PreTradeCheck("AAPL", domain.ActionBuy, 0.90, 5.0, s.portfolio(), domain.MarketContext{VIX: 18}, uuid.New(), s.midday)
	assert.False(s.T(), buyResult.Approved)

	sellResult := s.manager.PreTradeCheck("AAPL", domain.ActionSell, 0.90, 5.0, s.portfolio(), domain.MarketContext{VIX: 18}, uuid.New(), s.midday)
	assert.True(s.T(), sellResult.Approved)
}

func (s *RiskManagerTestSuite) TestCircuitBreakerPrecedenceRedBeatsOrange() {
	level := s.manager.EvaluateCircuitBreakers(domain.PortfolioSnapshot{
		DailyPnLPct: -6.0, MonthlyPnLPct: -20.0, SectorExposure: map[string]float64{},
	})
	assert.Equal(s.T(), domain.LevelRed, level)
}

func (s *RiskManagerTestSuite) TestSingleStockCapClamps() {
	result := s.manager.PreTradeCheck("AAPL", domain.ActionBuy, 0.90, 14.0, domain.PortfolioSnapshot{
		TotalExposurePct: 10, SectorExposure: map[string]float64{},
	}, domain.MarketContext{VIX: 10}, uuid.New(), s.midday)
	assert.True(s.T(), result.Approved)
	assert.LessOrEqual(s.T(), result.AdjustedSizePct, maxSingleStockHardCap)
}

func (s *RiskManagerTestSuite) TestReconcileRestoresPersistedLevel() {
	s.store.unresolved = &domain.RiskEvent{Level: domain.LevelOrange}
	s.Require().NoError(s.manager.Reconcile())
	assert.Equal(s.T(), domain.LevelOrange, s.manager.Level())
}

func TestRiskManagerSuite(t *testing.T) {
	suite.Run(t, new(RiskManagerTestSuite))
}
