package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/auroratrading/core/internal/audit"
	"github.com/auroratrading/core/internal/config"
	"github.com/auroratrading/core/internal/domain"
	"github.com/auroratrading/core/internal/risk"
)

type noopAuditStore struct{}

func (noopAuditStore) AppendAudit(domain.AuditEntry) error             { return nil }
func (noopAuditStore) GetChain(uuid.UUID) ([]domain.AuditEntry, error) { return nil, nil }

type fakeRiskEventStore struct{ unresolved *domain.RiskEvent }

func (fakeRiskEventStore) InsertRiskEvent(domain.RiskEvent) error { return nil }
func (f fakeRiskEventStore) LatestUnresolvedRiskEvent() (*domain.RiskEvent, error) {
	return f.unresolved, nil
}

func newTestLoop() *Loop {
	logger := zap.NewNop()
	journal := audit.New(noopAuditStore{}, logger)
	riskMgr := risk.NewManager(config.RiskConfig{
		MaxPortfolioExposurePct: 80, MaxSingleStockPct: 15, MaxOpenPositions: 10,
		MinSignalConfidence: 0.6, VIXHaltThreshold: 35, VIXHalveThreshold: 25,
		DailyLossOrangePct: 5, MaxWeeklyLossPct: 10, MaxMonthlyLossPct: 15, DrawdownRedPct: 15, MaxTradesPerDay: 20,
	}, fakeRiskEventStore{}, journal)

	return &Loop{
		cfg:   Config{Symbols: []string{"AAPL"}, CycleInterval: time.Minute, Location: time.UTC},
		risk:  riskMgr,
		audit: journal,
		log:   logger,
	}
}

func TestRunCycle_EmergencyHaltSkipsEntirely(t *testing.T) {
	loop := newTestLoop()
	loop.EmergencyStop("operator requested halt")

	result := loop.RunCycle(context.Background())

	require.Len(t, result.Errors, 1)
	assert.Equal(t, "emergency_halt_active", result.Errors[0])
	assert.Equal(t, 0, result.SymbolsProcessed)
}

func TestResume_ClearsEmergencyFlagButNotBreakerLevel(t *testing.T) {
	loop := newTestLoop()
	loop.EmergencyStop("test")
	assert.True(t, loop.emergencyHalted.Load())

	loop.Resume()

	assert.False(t, loop.emergencyHalted.Load())
	assert.Equal(t, domain.LevelRed, loop.risk.Level())
}
