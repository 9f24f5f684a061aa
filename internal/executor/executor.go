// Package executor sizes approved signals and places bracket orders,
// grounded on original_source/backend/app/core/trade_executor.py's
// TradeExecutor. Money fields use github.com/shopspring/decimal (the
// pattern benedict-anokye-davies-atlas-ai uses throughout its trade and
// portfolio types) so rounding to the cent is exact.
package executor

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/auroratrading/core/internal/audit"
	"github.com/auroratrading/core/internal/broker"
	"github.com/auroratrading/core/internal/domain"
	"github.com/auroratrading/core/internal/risk"
	coreerrors "github.com/auroratrading/core/pkg/errors"
)

var sizingMultiplier = map[string]float64{
	"conservative": 0.5,
	"normal":       1.0,
	"aggressive":   1.25,
}

// TradeStore is the persistence dependency for placed trades.
type TradeStore interface {
	InsertTrade(*domain.Trade) error
}

// Executor runs the size -> risk check -> place pipeline.
type Executor struct {
	risk   *risk.Manager
	broker *broker.Client
	store  TradeStore
	audit  *audit.Journal
	log    *zap.Logger
}

// New constructs an Executor.
func New(riskMgr *risk.Manager, brokerClient *broker.Client, store TradeStore, journal *audit.Journal, log *zap.Logger) *Executor {
	return &Executor{risk: riskMgr, broker: brokerClient, store: store, audit: journal, log: log.Named("executor")}
}

// CalculatePosition derives ATR-based stop/target and analyst-adjusted
// sizing, matching TradeExecutor.calculate_position.
func CalculatePosition(sig domain.Signal, currentPrice float64, verdict domain.AnalystVerdict, totalEquity decimal.Decimal, allocationPct float64) domain.PositionSize {
	atr := currentPrice * 0.02
	if v, ok := sig.FeaturesSnapshot["atr_14"]; ok && v > 0 {
		atr = v
	}

	multiplier, ok := sizingMultiplier[verdict.PositionSizing]
	if !ok {
		multiplier = 0.5
	}
	finalPct := allocationPct * multiplier

	dollarAmount := totalEquity.Mul(decimal.NewFromFloat(finalPct / 100))
	shares := int64(0)
	if currentPrice > 0 {
		shares = int64(dollarAmount.Div(decimal.NewFromFloat(currentPrice)).IntPart())
	}
	if shares <= 0 {
		shares = 1
	}

	stopPrice := decimal.NewFromFloat(currentPrice - 2.0*atr).Round(2)
	targetPrice := decimal.NewFromFloat(currentPrice + 3.0*atr).Round(2)
	limitPrice := decimal.NewFromFloat(currentPrice * 1.001).Round(2)

	risk := decimal.NewFromFloat(currentPrice).Sub(stopPrice)
	reward := targetPrice.Sub(decimal.NewFromFloat(currentPrice))
	var rrRatio float64
	if risk.IsPositive() {
		rrRatio, _ = reward.Div(risk).Round(2).Float64()
	}

	return domain.PositionSize{
		Shares:          shares,
		DollarAmount:    decimal.NewFromInt(shares).Mul(decimal.NewFromFloat(currentPrice)).Round(2),
		AllocationPct:   decimal.NewFromFloat(finalPct).Round(2),
		LimitPrice:      limitPrice,
		StopPrice:       stopPrice,
		TargetPrice:     targetPrice,
		RiskRewardRatio: rrRatio,
	}
}

// Execute runs the full pipeline: pre-trade risk check -> position sizing
// -> bracket order placement -> persistence. A risk veto is returned as a
// KindRiskRejection error (a normal outcome, not a defect); a failed order
// placement is audited and returns nil, nil with no Trade persisted.
func (e *Executor) Execute(
	ctx context.Context,
	sig domain.Signal,
	verdict domain.AnalystVerdict,
	currentPrice float64,
	portfolio domain.PortfolioSnapshot,
	market domain.MarketContext,
	defaultAllocationPct float64,
) (*domain.Trade, error) {
	riskResult := e.risk.PreTradeCheck(sig.Symbol, sig.Action, verdict.AdjustedConfidence, defaultAllocationPct, portfolio, market, sig.DecisionChainID, time.Now())

	if !riskResult.Approved {
		_ = e.audit.LogChain(sig.DecisionChainID, "trade_rejected_risk", "trade_executor", map[string]any{
			"symbol": sig.Symbol, "reason": riskResult.Reason,
		}, audit.WithSymbol(sig.Symbol))
		e.log.Info("trade rejected by risk manager", zap.String("symbol", sig.Symbol), zap.String("reason", riskResult.Reason))
		return nil, coreerrors.New(coreerrors.KindRiskRejection, "trade_executor", riskResult.Reason, nil)
	}

	allocation := riskResult.AdjustedSizePct
	if allocation <= 0 {
		allocation = defaultAllocationPct
	}
	position := CalculatePosition(sig, currentPrice, verdict, portfolio.TotalEquity, allocation)
	if position.Shares <= 0 {
		e.log.Warn("position sizing resulted in 0 shares", zap.String("symbol", sig.Symbol))
		return nil, nil
	}

	side := "sell"
	if sig.Action == domain.ActionBuy {
		side = "buy"
	}

	order, err := e.broker.PlaceBracketOrder(ctx, broker.BracketOrderRequest{
		Symbol: sig.Symbol, Qty: position.Shares, Side: side,
		LimitPrice: position.LimitPrice, StopPrice: position.StopPrice, TargetPrice: position.TargetPrice,
	})
	if err != nil {
		_ = e.audit.LogChain(sig.DecisionChainID, "trade_placement_failed", "trade_executor", map[string]any{
			"symbol": sig.Symbol, "error": err.Error(),
		}, audit.WithSymbol(sig.Symbol), audit.WithSeverity(domain.SeverityWarning))
		e.log.Error("order placement failed", zap.String("symbol", sig.Symbol), zap.Error(err))
		return nil, nil
	}

	trade := &domain.Trade{
		DecisionChainID: sig.DecisionChainID, SignalID: sig.ID, BrokerOrderID: order.ID,
		Symbol: sig.Symbol, Side: side, Shares: position.Shares,
		EntryPrice: position.LimitPrice, StopPrice: position.StopPrice, TargetPrice: position.TargetPrice,
		MLConfidence: sig.Confidence, AnalystConfidence: verdict.AdjustedConfidence,
		AllocationPct: position.AllocationPct, DollarAmount: position.DollarAmount,
		Status: domain.TradePending, PlacedAt: time.Now().UTC(),
	}
	if err := e.store.InsertTrade(trade); err != nil {
		return nil, err
	}

	_ = e.audit.LogChain(sig.DecisionChainID, "trade_placed", "trade_executor", map[string]any{
		"symbol": sig.Symbol, "side": side, "shares": position.Shares,
		"entry_price": position.LimitPrice.String(), "stop_price": position.StopPrice.String(),
		"target_price": position.TargetPrice.String(), "allocation_pct": position.AllocationPct.String(),
		"risk_reward": position.RiskRewardRatio, "order_id": order.ID,
	}, audit.WithSymbol(sig.Symbol))

	e.log.Info("trade placed",
		zap.String("action", string(sig.Action)), zap.String("symbol", sig.Symbol),
		zap.Int64("shares", position.Shares), zap.String("limit_price", position.LimitPrice.String()),
	)

	return trade, nil
}

// CancelAllOrders and CloseAllPositions are the emergency-stop actions the
// orchestrator invokes from Loop.EmergencyStop.
func (e *Executor) CancelAllOrders(ctx context.Context) (int, error) {
	count, err := e.broker.CancelAllOrders(ctx)
	if err == nil {
		_ = e.audit.Log("all_orders_cancelled", map[string]any{"count": count}, audit.WithComponent("trade_executor"), audit.WithSeverity(domain.SeverityWarning))
	}
	return count, err
}

func (e *Executor) CloseAllPositions(ctx context.Context) (int, error) {
	count, err := e.broker.CloseAllPositions(ctx)
	if err == nil {
		_ = e.audit.Log("all_positions_closed", map[string]any{"count": count}, audit.WithComponent("trade_executor"), audit.WithSeverity(domain.SeverityCritical))
	}
	return count, err
}
