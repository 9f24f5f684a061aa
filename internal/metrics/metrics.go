// Package metrics exposes Prometheus collectors for the decision pipeline,
// grounded on _examples/chidi150c-coinbase's metrics.go — CounterVec/Gauge
// declarations registered once in init() with small typed helper setters.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aurora_signals_total",
			Help: "Scored signals by action and model version.",
		},
		[]string{"action", "model_version"},
	)

	AnalystReviewsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aurora_analyst_reviews_total",
			Help: "Analyst reviews by outcome (approved|rejected|fallback).",
		},
		[]string{"outcome"},
	)

	RiskRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aurora_risk_rejections_total",
			Help: "Pre-trade risk rejections by reason category.",
		},
		[]string{"reason"},
	)

	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aurora_trades_total",
			Help: "Trades placed by side.",
		},
		[]string{"side"},
	)

	CircuitBreakerLevel = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aurora_circuit_breaker_level",
			Help: "Current circuit breaker level as an ordinal: 0=NONE 1=YELLOW 2=ORANGE 3=RED.",
		},
	)

	PortfolioEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aurora_portfolio_equity_usd",
			Help: "Total account equity in USD, from the latest portfolio snapshot.",
		},
	)

	PortfolioExposurePct = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aurora_portfolio_exposure_pct",
			Help: "Total market exposure as a percentage of equity.",
		},
	)

	PortfolioDrawdownPct = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aurora_portfolio_drawdown_pct",
			Help: "Current drawdown from peak equity, in percent.",
		},
	)

	CycleDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aurora_cycle_duration_seconds",
			Help:    "Wall-clock duration of one orchestrator trading cycle.",
			Buckets: prometheus.DefBuckets,
		},
	)

	BreakerStateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aurora_breaker_state_transitions_total",
			Help: "Outbound-call circuit breaker transitions by operation and target state.",
		},
		[]string{"operation", "to"},
	)
)

func init() {
	prometheus.MustRegister(SignalsTotal, AnalystReviewsTotal, RiskRejectionsTotal, TradesTotal)
	prometheus.MustRegister(CircuitBreakerLevel, PortfolioEquity, PortfolioExposurePct, PortfolioDrawdownPct)
	prometheus.MustRegister(CycleDurationSeconds, BreakerStateTransitionsTotal)
}

var breakerLevelOrdinal = map[string]float64{
	"NONE": 0, "YELLOW": 1, "ORANGE": 2, "RED": 3,
}

// SetCircuitBreakerLevel records the current breaker level as an ordinal
// gauge value, keyed on the four-level name.
func SetCircuitBreakerLevel(level string) {
	if v, ok := breakerLevelOrdinal[level]; ok {
		CircuitBreakerLevel.Set(v)
	}
}

// IncSignal records one scored signal.
func IncSignal(action, modelVersion string) { SignalsTotal.WithLabelValues(action, modelVersion).Inc() }

// IncAnalystReview records one analyst review outcome.
func IncAnalystReview(outcome string) { AnalystReviewsTotal.WithLabelValues(outcome).Inc() }

// IncRiskRejection records one pre-trade rejection by reason category.
func IncRiskRejection(reason string) { RiskRejectionsTotal.WithLabelValues(reason).Inc() }

// IncTrade records one placed trade by side.
func IncTrade(side string) { TradesTotal.WithLabelValues(side).Inc() }

// RecordBreakerTransition records one outbound-call breaker state change.
func RecordBreakerTransition(operation, to string) {
	BreakerStateTransitionsTotal.WithLabelValues(operation, to).Inc()
}
