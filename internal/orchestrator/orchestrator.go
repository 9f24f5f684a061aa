// Package orchestrator drives the DATA -> ANALYZE -> DECIDE -> RISK ->
// EXECUTE -> LOG trading cycle, grounded on
// original_source/backend/app/core/scheduler.py's TradingLoop. The cycle
// body runs on a single goroutine (no per-symbol fan-out) to keep the
// single-writer persistence invariant trivial to audit.
package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/auroratrading/core/internal/analyst"
	"github.com/auroratrading/core/internal/audit"
	"github.com/auroratrading/core/internal/broker"
	"github.com/auroratrading/core/internal/domain"
	"github.com/auroratrading/core/internal/executor"
	"github.com/auroratrading/core/internal/indicators"
	"github.com/auroratrading/core/internal/metrics"
	"github.com/auroratrading/core/internal/portfolio"
	"github.com/auroratrading/core/internal/risk"
	"github.com/auroratrading/core/internal/signal"
)

const (
	barTimeframe  = "1Min"
	barLookback   = 300
	callTimeout   = 30 * time.Second
	broadIndexSym = "SPY"
)

// Store is the persistence surface the orchestrator reads/writes bars,
// indicator snapshots, and signal lifecycle state through.
type Store interface {
	UpsertBar(domain.Bar) error
	RecentBars(symbol, timeframe string, limit int) ([]domain.Bar, error)
	UpsertIndicatorSnapshot(domain.IndicatorSnapshot) error
	InsertSignal(*domain.Signal) error
	UpdateSignal(domain.Signal) error
	CountTradesToday(time.Time) (int, error)
}

// NewsProvider is a pluggable recent-headlines source for the analyst
// review context. A nil NewsProvider degrades to "no recent news", the
// same default the original falls back to when ingestion has nothing.
type NewsProvider interface {
	RecentNews(ctx context.Context, symbol string, limit int) ([]domain.NewsItem, error)
}

// Loop is the long-lived coordinator. Its mutable flags (running,
// emergency halt) are atomics so internal/apiserver can read/flip them
// from a different goroutine without a lock.
type Loop struct {
	cfg        Config
	store      Store
	broker     *broker.Client
	portfolio  *portfolio.Tracker
	scorer     *signal.Scorer
	analyst    *analyst.Client
	risk       *risk.Manager
	executor   *executor.Executor
	audit      *audit.Journal
	news       NewsProvider
	vix        VIXSource
	log        *zap.Logger

	running         atomic.Bool
	emergencyHalted atomic.Bool
}

// Config holds the orchestrator's own tunables, distinct from config.Config
// so the struct literal below stays readable at the call site.
type Config struct {
	Symbols              []string
	CycleInterval        time.Duration
	DefaultAllocationPct float64
	Location             *time.Location
	// TradingStartHour/TradingEndHour gate RunCycle to a Mon-Fri,
	// [start,end) local-hour window in Location, mirroring the original's
	// apscheduler CronTrigger(day_of_week="mon-fri", hour=f"{start}-{end}").
	TradingStartHour int
	TradingEndHour   int
}

// New constructs a Loop. news and vix may be nil.
func New(
	cfg Config, store Store, brokerClient *broker.Client, tracker *portfolio.Tracker,
	scorer *signal.Scorer, analystClient *analyst.Client, riskMgr *risk.Manager,
	exec *executor.Executor, journal *audit.Journal, news NewsProvider, vix VIXSource,
	log *zap.Logger,
) *Loop {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.TradingStartHour == 0 && cfg.TradingEndHour == 0 {
		cfg.TradingEndHour = 24
	}
	return &Loop{
		cfg: cfg, store: store, broker: brokerClient, portfolio: tracker,
		scorer: scorer, analyst: analystClient, risk: riskMgr, executor: exec,
		audit: journal, news: news, vix: vix, log: log.Named("orchestrator"),
	}
}

// CycleResult summarizes one run_cycle invocation, mirroring the Python
// TradingLoop.run_cycle return dict.
type CycleResult struct {
	CycleID           string
	SymbolsProcessed  int
	SignalsGenerated  int
	SignalsApproved   int
	TradesPlaced      int
	Errors            []string
}

// Run blocks, firing RunCycle on cfg.CycleInterval until ctx is cancelled.
// max_instances=1 is enforced by Loop.running: a tick is skipped entirely
// if the previous cycle hasn't finished.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.log.Info("orchestrator stopping")
			return
		case <-ticker.C:
			if !l.running.CompareAndSwap(false, true) {
				l.log.Warn("previous cycle still running, skipping tick")
				continue
			}
			result := l.RunCycle(ctx)
			l.running.Store(false)
			l.log.Info("cycle finished",
				zap.String("cycle_id", result.CycleID), zap.Int("symbols", result.SymbolsProcessed),
				zap.Int("signals", result.SignalsGenerated), zap.Int("approved", result.SignalsApproved),
				zap.Int("trades", result.TradesPlaced), zap.Int("errors", len(result.Errors)),
			)
		}
	}
}

// EmergencyStop halts all future cycles, trips the risk manager to RED, and
// issues best-effort cancel-all-orders and close-all-positions requests
// through the executor. Shared with internal/apiserver's emergency-stop handler.
func (l *Loop) EmergencyStop(reason string) {
	l.emergencyHalted.Store(true)
	l.risk.EmergencyStop(reason)
	if l.executor == nil {
		return
	}
	ctx, cancel := withTimeout(context.Background())
	defer cancel()
	if _, err := l.executor.CancelAllOrders(ctx); err != nil {
		l.log.Error("emergency cancel of open orders failed", zap.Error(err))
	}
	if _, err := l.executor.CloseAllPositions(ctx); err != nil {
		l.log.Error("emergency close of open positions failed", zap.Error(err))
	}
}

// Resume clears the emergency halt flag, allowing future cycles to run
// again. It does not itself clear the risk manager's RED level; the next
// cycle's EvaluateCircuitBreakers re-derives the level from the portfolio
// snapshot.
func (l *Loop) Resume() { l.emergencyHalted.Store(false) }

// withinTradingWindow reports whether t, converted to cfg.Location, falls
// on a weekday within [TradingStartHour, TradingEndHour), mirroring the
// original's CronTrigger(day_of_week="mon-fri", hour=f"{start}-{end}",
// timezone="US/Eastern").
func (l *Loop) withinTradingWindow(t time.Time) bool {
	loc := l.cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	startHour, endHour := l.cfg.TradingStartHour, l.cfg.TradingEndHour
	if startHour == 0 && endHour == 0 {
		endHour = 24
	}

	local := t.In(loc)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	hour := local.Hour()
	return hour >= startHour && hour < endHour
}

// RunCycle executes one full trading cycle across cfg.Symbols. It never
// returns an error — every failure is captured in CycleResult.Errors and
// audited, matching the original's try/except-per-stage shape.
func (l *Loop) RunCycle(ctx context.Context) CycleResult {
	start := time.Now()
	cycleID := uuid.New().String()[:8]
	l.log.Info("trading cycle starting", zap.String("cycle_id", cycleID))
	result := CycleResult{CycleID: cycleID}

	defer func() {
		metrics.CycleDurationSeconds.Observe(time.Since(start).Seconds())
		_ = l.audit.Log("cycle_completed", map[string]any{
			"cycle_id": cycleID, "symbols_processed": result.SymbolsProcessed,
			"signals_generated": result.SignalsGenerated, "signals_approved": result.SignalsApproved,
			"trades_placed": result.TradesPlaced, "errors": result.Errors,
		}, audit.WithComponent("orchestrator"))
	}()

	if l.emergencyHalted.Load() {
		result.Errors = append(result.Errors, "emergency_halt_active")
		return result
	}

	if !l.withinTradingWindow(start) {
		result.Errors = append(result.Errors, "outside_trading_window")
		return result
	}

	tradesToday, _ := l.store.CountTradesToday(start)
	snapCtx, snapCancel := withTimeout(ctx)
	snap, err := l.portfolio.Snapshot(snapCtx, tradesToday)
	snapCancel()
	if err != nil {
		result.Errors = append(result.Errors, "portfolio_snapshot_failed")
		return result
	}

	cbLevel := l.risk.EvaluateCircuitBreakers(snap)
	metrics.SetCircuitBreakerLevel(string(cbLevel))
	if cbLevel == domain.LevelRed {
		l.log.Error("RED circuit breaker — aborting cycle", zap.String("cycle_id", cycleID))
		_ = l.audit.Log("cycle_aborted", map[string]any{"reason": "RED circuit breaker", "cycle_id": cycleID},
			audit.WithComponent("orchestrator"), audit.WithSeverity(domain.SeverityCritical))
		return result
	}

	market := l.buildMarketContext(ctx)

	for _, symbol := range l.cfg.Symbols {
		if err := l.processSymbol(ctx, symbol, snap, market, &result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", symbol, err))
		}
	}

	return result
}

func (l *Loop) buildMarketContext(ctx context.Context) domain.MarketContext {
	barCtx, cancel := withTimeout(ctx)
	bars, err := l.broker.GetBars(barCtx, broadIndexSym, "1Day", 30)
	cancel()
	if err != nil {
		l.log.Warn("failed to fetch broad index bars, using defaults", zap.Error(err))
		return domain.MarketContext{VIX: 20}
	}
	domainBars := make([]domain.Bar, len(bars))
	for i, b := range bars {
		domainBars[i] = domain.Bar{Symbol: broadIndexSym, Timeframe: "1Day", Close: b.Close}
	}
	return BuildMarketContext(ctx, domainBars, l.vix)
}

// processSymbol runs one symbol through ingest -> indicators -> score ->
// analyst review -> execute, matching run_cycle's per-symbol try/except.
func (l *Loop) processSymbol(ctx context.Context, symbol string, snap domain.PortfolioSnapshot, market domain.MarketContext, result *CycleResult) error {
	if err := l.ingestLatestBar(ctx, symbol); err != nil {
		return err
	}

	bars, err := l.store.RecentBars(symbol, barTimeframe, barLookback)
	if err != nil {
		return err
	}
	ind, ok := indicators.Compute(symbol, barTimeframe, bars)
	if !ok {
		return nil
	}
	if err := l.store.UpsertIndicatorSnapshot(ind); err != nil {
		return err
	}

	result.SymbolsProcessed++

	sig, err := l.scorer.Score(symbol, ind, market)
	if err != nil {
		return err
	}
	if sig == nil || sig.Action == domain.ActionHold {
		return nil
	}
	result.SignalsGenerated++
	metrics.IncSignal(string(sig.Action), sig.ModelVersion)

	if err := l.store.InsertSignal(sig); err != nil {
		return err
	}
	_ = l.audit.LogChain(sig.DecisionChainID, "signal_generated", "signal_scorer", map[string]any{
		"symbol": symbol, "action": string(sig.Action), "confidence": sig.Confidence,
		"top_features": signal.TopFeatures(sig.FeaturesSnapshot, 8),
	}, audit.WithSymbol(symbol))

	symCtx := l.buildSymbolContext(ctx, symbol, ind, market)
	reviewCtx, reviewCancel := withTimeout(ctx)
	verdict := l.analyst.ReviewSignal(reviewCtx, *sig, symCtx)
	reviewCancel()
	outcome := "approved"
	if !verdict.Approve {
		outcome = "rejected"
	}
	metrics.IncAnalystReview(outcome)
	_ = l.audit.LogChain(sig.DecisionChainID, "claude_review", "analyst_client", map[string]any{
		"symbol": symbol, "approve": verdict.Approve, "adjusted_confidence": verdict.AdjustedConfidence,
		"confidence_adjustment": verdict.ConfidenceAdjustment, "position_sizing": verdict.PositionSizing,
		"risk_flags": verdict.RiskFlags, "reasoning": verdict.Reasoning,
		"input_tokens": verdict.InputTokens, "output_tokens": verdict.OutputTokens,
	}, audit.WithSymbol(symbol))

	now := time.Now().UTC()
	sig.AnalystApproved = &verdict.Approve
	sig.AnalystAdjustedConfidence = &verdict.AdjustedConfidence
	sig.AnalystReasoning = verdict.Reasoning
	sig.AnalystRiskFlags = verdict.RiskFlags
	sig.AnalystPositionSizing = verdict.PositionSizing
	sig.ReviewedAt = &now

	if !verdict.Approve {
		sig.Status = domain.SignalRejected
		_ = l.store.UpdateSignal(*sig)
		return nil
	}

	result.SignalsApproved++
	sig.Status = domain.SignalApproved
	_ = l.store.UpdateSignal(*sig)

	execCtx, execCancel := withTimeout(ctx)
	trade, err := l.executor.Execute(execCtx, *sig, verdict, symCtx.Price, snap, market, l.cfg.DefaultAllocationPct)
	execCancel()
	if err != nil {
		metrics.IncRiskRejection("pre_trade_check")
		sig.Status = domain.SignalRejected
		_ = l.store.UpdateSignal(*sig)
		return nil
	}
	if trade != nil {
		sig.Status = domain.SignalExecuted
		_ = l.store.UpdateSignal(*sig)
		result.TradesPlaced++
		metrics.IncTrade(trade.Side)
	}

	return nil
}

func (l *Loop) ingestLatestBar(ctx context.Context, symbol string) error {
	barCtx, cancel := withTimeout(ctx)
	bars, err := l.broker.GetBars(barCtx, symbol, barTimeframe, 1)
	cancel()
	if err != nil {
		return err
	}
	for _, b := range bars {
		ts, _ := time.Parse(time.RFC3339, b.Timestamp)
		var vwap *float64
		if b.VWAP != 0 {
			v := b.VWAP
			vwap = &v
		}
		var tc *int64
		if b.TradeCount != 0 {
			n := b.TradeCount
			tc = &n
		}
		domainBar := domain.Bar{
			Symbol: symbol, Timeframe: barTimeframe, Timestamp: ts,
			Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume,
			VWAP: vwap, TradeCount: tc,
		}
		if err := l.store.UpsertBar(domainBar); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loop) buildSymbolContext(ctx context.Context, symbol string, ind domain.IndicatorSnapshot, market domain.MarketContext) domain.SymbolContext {
	price, _ := ind.Get("close")
	changePct, _ := ind.Get("return_1d")
	volRatio, ok := ind.Get("volume_vs_sma20")
	if !ok {
		volRatio = 1
	}

	symCtx := domain.SymbolContext{
		Symbol: symbol, Price: price, ChangePct: changePct, VolumeRatio: volRatio,
		SectorLabel: "N/A", SectorPerf: "N/A", Market: market,
	}

	if l.news != nil {
		newsCtx, cancel := withTimeout(ctx)
		items, err := l.news.RecentNews(newsCtx, symbol, 5)
		cancel()
		if err == nil {
			symCtx.NewsHeadlines = items
		}
	}
	return symCtx
}

// withTimeout wraps ctx with callTimeout. Callers must invoke the
// returned cancel (directly or via defer) once the call completes.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, callTimeout)
}
