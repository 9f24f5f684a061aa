// Package portfolio tracks positions, P&L, exposure, and the equity curve,
// grounded on original_source/backend/app/core/portfolio_tracker.py's
// PortfolioTracker. Weekly/monthly P&L and peak-equity drawdown — left as
// "computed from historical data" placeholders in the original — are
// filled in here from the persisted snapshot history.
package portfolio

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/auroratrading/core/internal/broker"
	"github.com/auroratrading/core/internal/domain"
)

// Store is the persistence dependency for snapshot history.
type Store interface {
	InsertPortfolioSnapshot(domain.PortfolioSnapshot) error
	LatestPortfolioSnapshot() (*domain.PortfolioSnapshot, error)
	PortfolioSnapshotBefore(cutoff time.Time) (*domain.PortfolioSnapshot, error)
	MaxHistoricalEquity() (decimal.Decimal, error)
}

// Tracker builds and persists one PortfolioSnapshot per cycle.
type Tracker struct {
	broker *broker.Client
	store  Store
	log    *zap.Logger
}

// New constructs a Tracker.
func New(brokerClient *broker.Client, store Store, log *zap.Logger) *Tracker {
	return &Tracker{broker: brokerClient, store: store, log: log.Named("portfolio")}
}

// Snapshot fetches account and position state from the broker, computes
// P&L and exposure, and persists the result.
func (t *Tracker) Snapshot(ctx context.Context, tradesToday int) (domain.PortfolioSnapshot, error) {
	account, err := t.broker.GetAccount(ctx)
	if err != nil {
		t.log.Error("failed to fetch account", zap.Error(err))
		return domain.PortfolioSnapshot{}, err
	}
	positions, err := t.broker.GetPositions(ctx)
	if err != nil {
		t.log.Error("failed to fetch positions", zap.Error(err))
		return domain.PortfolioSnapshot{}, err
	}

	equity := parseDecimal(account.Equity)
	cash := parseDecimal(account.Cash)
	marketValue := decimal.Zero

	positionsBySymbol := make(map[string]domain.PositionSnapshot, len(positions))
	for _, p := range positions {
		mv := parseDecimal(p.MarketValue).Abs()
		marketValue = marketValue.Add(mv)
		pnl := parseDecimal(p.UnrealizedPL)
		entry := parseDecimal(p.AvgEntryPrice)
		current := parseDecimal(p.CurrentPrice)
		var pnlPct float64
		if entry.IsPositive() {
			pnlPct, _ = pnl.Div(entry).Mul(decimal.NewFromInt(100)).Float64()
		}
		positionsBySymbol[p.Symbol] = domain.PositionSnapshot{
			Symbol: p.Symbol, Shares: parseInt(p.Qty), Side: p.Side,
			EntryPrice: entry, CurrentPrice: current, MarketValue: mv,
			UnrealizedPnL: pnl, UnrealizedPnLPct: pnlPct,
		}
	}

	now := time.Now().UTC()

	dailyCutoff := now.Add(-24 * time.Hour)
	weeklyCutoff := now.Add(-7 * 24 * time.Hour)
	monthlyCutoff := now.Add(-30 * 24 * time.Hour)

	dailyPnL, dailyPnLPct := deltaAgainst(t.store, dailyCutoff, equity)
	weeklyPnL, weeklyPnLPct := deltaAgainst(t.store, weeklyCutoff, equity)
	monthlyPnL, monthlyPnLPct := deltaAgainst(t.store, monthlyCutoff, equity)

	peakEquity, err := t.store.MaxHistoricalEquity()
	if err != nil {
		t.log.Warn("failed to load historical peak equity, using current", zap.Error(err))
		peakEquity = equity
	}
	if equity.GreaterThan(peakEquity) {
		peakEquity = equity
	}
	var drawdownPct float64
	if peakEquity.IsPositive() {
		drawdownPct, _ = peakEquity.Sub(equity).Div(peakEquity).Mul(decimal.NewFromInt(100)).Float64()
		if drawdownPct < 0 {
			drawdownPct = 0
		}
	}

	var totalExposurePct float64
	if equity.IsPositive() {
		totalExposurePct, _ = marketValue.Div(equity).Mul(decimal.NewFromInt(100)).Float64()
	}

	snapshot := domain.PortfolioSnapshot{
		Timestamp: now, TotalEquity: equity, Cash: cash, MarketValue: marketValue,
		DailyPnL: dailyPnL, DailyPnLPct: dailyPnLPct,
		WeeklyPnL: weeklyPnL, WeeklyPnLPct: weeklyPnLPct,
		MonthlyPnL: monthlyPnL, MonthlyPnLPct: monthlyPnLPct,
		PeakEquity: peakEquity, CurrentDrawdownPct: drawdownPct,
		TotalExposurePct: totalExposurePct, OpenPositionsCount: len(positions),
		Positions: positionsBySymbol, SectorExposure: map[string]float64{},
		TradesToday: tradesToday,
	}

	if err := t.store.InsertPortfolioSnapshot(snapshot); err != nil {
		return domain.PortfolioSnapshot{}, err
	}

	t.log.Info("portfolio snapshot",
		zap.String("equity", equity.String()), zap.Int("positions", len(positions)),
		zap.Float64("exposure_pct", totalExposurePct), zap.String("daily_pnl", dailyPnL.String()),
	)

	return snapshot, nil
}

func deltaAgainst(store Store, cutoff time.Time, currentEquity decimal.Decimal) (decimal.Decimal, float64) {
	prior, err := store.PortfolioSnapshotBefore(cutoff)
	if err != nil || prior == nil || !prior.TotalEquity.IsPositive() {
		return decimal.Zero, 0
	}
	delta := currentEquity.Sub(prior.TotalEquity)
	pct, _ := delta.Div(prior.TotalEquity).Mul(decimal.NewFromInt(100)).Float64()
	return delta, pct
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseInt(s string) int64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.IntPart()
}
