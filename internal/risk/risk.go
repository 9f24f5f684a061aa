// Package risk implements the four-level circuit breaker and the 10-step
// pre-trade gate, grounded on
// original_source/backend/app/core/risk_manager.py's RiskManager. This is
// deliberately NOT built on sony/gobreaker (see internal/resilience and
// DESIGN.md): the breaker here trips on portfolio loss percentages, not
// call failure ratios.
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/auroratrading/core/internal/audit"
	"github.com/auroratrading/core/internal/config"
	"github.com/auroratrading/core/internal/domain"
)

// Hard maximums. These can never be relaxed by configuration, matching
// RiskManager's HARD_MAX_* class constants.
const (
	HardMaxPositionPct     = 10.0
	HardMaxDailyLossPct    = 5.0
	HardMaxWeeklyLossPct   = 10.0
	HardMaxMonthlyLossPct  = 15.0
	HardMaxDrawdownPct     = 20.0
	HardMaxOpenPositions   = 15
	HardMaxTradesPerDay    = 20
	maxPortfolioExposure   = 80.0
	maxSectorExposurePct   = 30.0
	maxSingleStockHardCap  = 15.0
)

// EventStore is the persistence dependency for circuit-breaker transitions.
type EventStore interface {
	InsertRiskEvent(domain.RiskEvent) error
	LatestUnresolvedRiskEvent() (*domain.RiskEvent, error)
}

// Manager validates every trade against all risk limits and owns the
// circuit-breaker state machine. It has absolute veto authority.
type Manager struct {
	cfg    config.RiskConfig
	store  EventStore
	audit  *audit.Journal

	mu    sync.RWMutex
	level domain.CircuitBreakerLevel
}

// NewManager constructs a Manager starting at CircuitBreakerLevel NONE.
func NewManager(cfg config.RiskConfig, store EventStore, journal *audit.Journal) *Manager {
	return &Manager{cfg: cfg, store: store, audit: journal, level: domain.LevelNone}
}

// Reconcile re-derives the in-memory circuit-breaker level from the most
// recently persisted unresolved risk event on startup. The in-memory level
// is advisory until this runs — see SPEC_FULL.md §5.
func (m *Manager) Reconcile() error {
	event, err := m.store.LatestUnresolvedRiskEvent()
	if err != nil {
		return err
	}
	if event == nil {
		return nil
	}
	m.mu.Lock()
	m.level = event.Level
	m.mu.Unlock()
	return nil
}

// Level returns the current circuit-breaker level.
func (m *Manager) Level() domain.CircuitBreakerLevel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.level
}

func (m *Manager) maxPositionPct() float64 { return min(m.cfg.MaxSingleStockPct, HardMaxPositionPct) }
func (m *Manager) maxDailyLossPct() float64 {
	return min(orDefault(m.cfg.DailyLossOrangePct, HardMaxDailyLossPct), HardMaxDailyLossPct)
}
func (m *Manager) maxWeeklyLossPct() float64 {
	return min(orDefault(m.cfg.MaxWeeklyLossPct, HardMaxWeeklyLossPct), HardMaxWeeklyLossPct)
}
func (m *Manager) maxMonthlyLossPct() float64 {
	return min(orDefault(m.cfg.MaxMonthlyLossPct, HardMaxMonthlyLossPct), HardMaxMonthlyLossPct)
}
func (m *Manager) maxDrawdownPct() float64 {
	return min(orDefault(m.cfg.DrawdownRedPct, HardMaxDrawdownPct), HardMaxDrawdownPct)
}
func (m *Manager) maxOpenPositions() int { return minInt(m.cfg.MaxOpenPositions, HardMaxOpenPositions) }
func (m *Manager) maxTradesPerDay() int {
	return minInt(orDefaultInt(m.cfg.MaxTradesPerDay, HardMaxTradesPerDay), HardMaxTradesPerDay)
}

// yellowDailyLossPct is the early-warning daily-loss threshold: 50% of the
// (already clamped) daily-loss cap. The original risk_manager.py has no
// separate "yellow" setting — it derives this fraction directly.
func (m *Manager) yellowDailyLossPct() float64 {
	return m.maxDailyLossPct() * 0.5
}

// orDefault returns v if positive, else def — config.RiskConfig fields
// left at their zero value fall back to the named hard cap rather than
// tripping the breaker on every cycle.
func orDefault(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}

// orDefaultInt is orDefault's int counterpart, for MaxTradesPerDay.
func orDefaultInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// PreTradeCheck runs the full 10-step validation pipeline in the exact
// order of risk_manager.py's pre_trade_check.
func (m *Manager) PreTradeCheck(
	symbol string,
	action domain.Action,
	confidence float64,
	positionPct float64,
	portfolio domain.PortfolioSnapshot,
	market domain.MarketContext,
	chainID uuid.UUID,
	now time.Time,
) domain.RiskCheckResult {
	var warnings []string
	level := m.Level()

	// 1. Circuit breaker status.
	if level == domain.LevelRed {
		return domain.RiskCheckResult{Approved: false, Reason: "RED circuit breaker active — system halted"}
	}
	if level == domain.LevelOrange && action != domain.ActionSell {
		return domain.RiskCheckResult{Approved: false, Reason: "ORANGE circuit breaker — only exits allowed"}
	}

	// 2. Minimum confidence threshold.
	minConfidence := m.cfg.MinSignalConfidence
	if confidence < minConfidence {
		return domain.RiskCheckResult{Approved: false, Reason: fmt.Sprintf("confidence %.1f%% below minimum %.1f%%", confidence*100, minConfidence*100)}
	}

	// 3. Daily trade limit.
	if portfolio.TradesToday >= m.maxTradesPerDay() {
		return domain.RiskCheckResult{Approved: false, Reason: fmt.Sprintf("daily trade limit reached (%d/%d)", portfolio.TradesToday, m.maxTradesPerDay())}
	}

	// 4. Position size, halved under YELLOW.
	adjustedPct := min(positionPct, m.maxPositionPct())
	if level == domain.LevelYellow {
		adjustedPct *= 0.5
		warnings = append(warnings, "YELLOW circuit breaker — position size halved")
	}

	// 5. VIX check.
	vix := market.VIX
	if vix > m.cfg.VIXHaltThreshold {
		return domain.RiskCheckResult{Approved: false, Reason: fmt.Sprintf("VIX (%.1f) exceeds max threshold (%.1f)", vix, m.cfg.VIXHaltThreshold)}
	}
	if vix > m.cfg.VIXHalveThreshold {
		adjustedPct *= 0.5
		warnings = append(warnings, fmt.Sprintf("high VIX (%.1f) — position size halved", vix))
	}

	// 6. Portfolio exposure check.
	maxExposure := m.cfg.MaxPortfolioExposurePct
	if maxExposure <= 0 {
		maxExposure = maxPortfolioExposure
	}
	if portfolio.TotalExposurePct+adjustedPct > maxExposure {
		return domain.RiskCheckResult{Approved: false, Reason: fmt.Sprintf("total exposure (%.1f%%) would exceed %.1f%%", portfolio.TotalExposurePct+adjustedPct, maxExposure)}
	}

	// 7. Open positions check (BUY only).
	if action == domain.ActionBuy && portfolio.OpenPositionsCount >= m.maxOpenPositions() {
		return domain.RiskCheckResult{Approved: false, Reason: fmt.Sprintf("max open positions reached (%d/%d)", portfolio.OpenPositionsCount, m.maxOpenPositions())}
	}

	// 8. Sector exposure check — warning only.
	for sector, pct := range portfolio.SectorExposure {
		if pct > maxSectorExposurePct {
			warnings = append(warnings, fmt.Sprintf("sector %s exposure (%.1f%%) exceeds recommended %.1f%%", sector, pct, maxSectorExposurePct))
		}
	}

	// 9. Single-stock exposure check.
	maxSingleStock := m.cfg.MaxSingleStockPct
	if maxSingleStock <= 0 || maxSingleStock > maxSingleStockHardCap {
		maxSingleStock = maxSingleStockHardCap
	}
	if adjustedPct > maxSingleStock {
		adjustedPct = maxSingleStock
		warnings = append(warnings, fmt.Sprintf("position capped to %.1f%% single stock limit", maxSingleStock))
	}

	// 10. Market timing window (US/Eastern open/close exclusions).
	if reason, blocked := marketTimingBlocked(now); blocked {
		return domain.RiskCheckResult{Approved: false, Reason: reason}
	}

	_ = m.audit.LogChain(chainID, "risk_check_passed", "risk_manager", map[string]any{
		"symbol": symbol, "action": string(action), "confidence": confidence,
		"original_size_pct": positionPct, "adjusted_size_pct": adjustedPct,
		"warnings": warnings, "circuit_breaker": string(level),
	}, audit.WithSymbol(symbol))

	return domain.RiskCheckResult{Approved: true, AdjustedSizePct: adjustedPct, Warnings: warnings}
}

// marketTimingBlocked excludes the first 15 minutes after open and the
// last 10 minutes before close, using the UTC-offset approximation of
// 9:30-16:00 America/New_York the original uses (14:30-21:00 UTC).
func marketTimingBlocked(now time.Time) (string, bool) {
	utc := now.UTC()
	hour, minute := utc.Hour(), utc.Minute()

	marketOpenMinutes := 0
	if hour >= 14 {
		marketOpenMinutes = (hour-14)*60 + (minute - 30)
	}
	marketCloseMinutes := 0
	if hour < 21 {
		marketCloseMinutes = (21-hour)*60 - minute
	}

	if marketOpenMinutes > 0 && marketOpenMinutes < 15 {
		return "no trades in first 15 minutes after open", true
	}
	if marketCloseMinutes > 0 && marketCloseMinutes < 10 {
		return "no trades in last 10 minutes before close", true
	}
	return "", false
}

// EvaluateCircuitBreakers re-derives the breaker level from current
// portfolio P&L, in RED > ORANGE > YELLOW > NONE precedence, persisting
// and auditing any level transition.
func (m *Manager) EvaluateCircuitBreakers(portfolio domain.PortfolioSnapshot) domain.CircuitBreakerLevel {
	dailyLoss := lossOnly(portfolio.DailyPnLPct)
	weeklyLoss := lossOnly(portfolio.WeeklyPnLPct)
	monthlyLoss := lossOnly(portfolio.MonthlyPnLPct)
	drawdown := portfolio.CurrentDrawdownPct

	oldLevel := m.Level()
	var newLevel domain.CircuitBreakerLevel
	switch {
	case monthlyLoss > m.maxMonthlyLossPct() || drawdown > m.maxDrawdownPct():
		newLevel = domain.LevelRed
	case dailyLoss > m.maxDailyLossPct() || weeklyLoss > m.maxWeeklyLossPct():
		newLevel = domain.LevelOrange
	case dailyLoss > m.yellowDailyLossPct():
		newLevel = domain.LevelYellow
	default:
		newLevel = domain.LevelNone
	}

	m.mu.Lock()
	m.level = newLevel
	m.mu.Unlock()

	if newLevel != oldLevel {
		trigger := max4(dailyLoss, weeklyLoss, monthlyLoss, drawdown)
		details := map[string]any{
			"daily_loss_pct": dailyLoss, "weekly_loss_pct": weeklyLoss,
			"monthly_loss_pct": monthlyLoss, "drawdown_pct": drawdown,
			"old_level": string(oldLevel), "new_level": string(newLevel),
		}
		_ = m.store.InsertRiskEvent(domain.RiskEvent{
			Timestamp: time.Now().UTC(), Level: newLevel,
			TriggerReason:  fmt.Sprintf("daily=%.2f%% weekly=%.2f%% monthly=%.2f%% drawdown=%.2f%%", dailyLoss, weeklyLoss, monthlyLoss, drawdown),
			TriggerValue:   trigger,
			ThresholdValue: m.maxDailyLossPct(),
			ActionTaken:    actionForLevel(newLevel),
			Details:        details,
		})
		severity := domain.SeverityWarning
		if newLevel == domain.LevelRed {
			severity = domain.SeverityCritical
		}
		_ = m.audit.Log("circuit_breaker_activated", details, audit.WithComponent("risk_manager"), audit.WithSeverity(severity))
	}

	return newLevel
}

// EmergencyStop immediately trips RED, independent of portfolio state.
func (m *Manager) EmergencyStop(reason string) {
	m.mu.Lock()
	m.level = domain.LevelRed
	m.mu.Unlock()

	_ = m.store.InsertRiskEvent(domain.RiskEvent{
		Timestamp: time.Now().UTC(), Level: domain.LevelRed, TriggerReason: reason,
		ActionTaken: "emergency_close_all_halt_system", Details: map[string]any{"manual": true, "reason": reason},
	})
	_ = m.audit.Log("emergency_stop_activated", map[string]any{"reason": reason},
		audit.WithComponent("risk_manager"), audit.WithSeverity(domain.SeverityCritical))
}

func actionForLevel(level domain.CircuitBreakerLevel) string {
	switch level {
	case domain.LevelNone:
		return "normal_trading"
	case domain.LevelYellow:
		return "reduce_position_sizes_50pct"
	case domain.LevelOrange:
		return "halt_new_trades_allow_exits"
	case domain.LevelRed:
		return "close_all_positions_halt_system"
	default:
		return "unknown"
	}
}

func lossOnly(pnlPct float64) float64 {
	if pnlPct < 0 {
		return -pnlPct
	}
	return 0
}

func max4(a, b, c, d float64) float64 {
	m := a
	for _, v := range []float64{b, c, d} {
		if v > m {
			m = v
		}
	}
	return m
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
