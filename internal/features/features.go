// Package features builds the fixed-length, order-stable feature vector
// the signal scorer consumes, grounded on
// original_source/backend/app/ml/feature_engineering.py's FeatureEngineer.
// The original's FEATURE_NAMES has 43 entries; this package adds five more
// (documented in SPEC_FULL.md §4.2) to reach the required 48-name vector.
package features

import (
	"math"

	"github.com/auroratrading/core/internal/domain"
)

// FEATURE_NAMES is the fixed, order-stable list the vector is built and
// validated against. Order matters: it is the contract with Classifier.Predict.
var FEATURE_NAMES = []string{
	// Price-based (10)
	"return_1d", "return_5d", "return_10d", "return_20d",
	"high_low_ratio", "close_open_ratio",
	"price_vs_sma20", "price_vs_sma50", "price_vs_sma200",
	"gap_percentage",
	// Technical indicators (20)
	"rsi_14", "macd_signal_diff", "macd_histogram",
	"bb_position", "adx_14", "cci_20", "stoch_k", "stoch_d",
	"obv_slope", "vwap_diff", "atr_14", "atr_ratio",
	"williams_r", "parabolic_sar_signal",
	"ema12_ema26_cross", "sma20_sma50_cross",
	"volume_vs_sma20", "volume_ratio_5d",
	"keltner_position", "roc_10",
	// Multi-timeframe (5)
	"trend_alignment_score", "bb_squeeze",
	"volume_breakout_score", "momentum_divergence",
	"rsi_macd_agreement",
	// Market context (3)
	"spy_return_1d", "vix_level", "vix_change",
	// Derived (5)
	"volume_price_confirmation",
	"trend_strength_composite",
	"mean_reversion_score",
	"breakout_probability",
	"support_resistance_proximity",
	// [ADD] extension to reach the required 48-entry vector (SPEC_FULL.md §4.2)
	"macd_raw", "macd_signal_raw", "price_vs_vwap",
	"stoch_kd_spread", "cci_normalized",
}

// Builder turns one indicator snapshot plus market context into a feature
// map, then a stable-ordered vector.
type Builder struct{}

func NewBuilder() *Builder { return &Builder{} }

// Build returns the named feature map. Missing/undefined indicators fall
// back to the documented defaults, matching indicators.get(name, default).
func (b *Builder) Build(ind domain.IndicatorSnapshot, market domain.MarketContext) map[string]float64 {
	get := func(name string, def float64) float64 {
		if v, ok := ind.Get(name); ok {
			return v
		}
		return def
	}

	feat := make(map[string]float64, len(FEATURE_NAMES))

	feat["return_1d"] = get("return_1d", 0)
	feat["return_5d"] = get("return_5d", 0)
	feat["return_10d"] = get("return_10d", 0)
	feat["return_20d"] = get("return_20d", 0)
	feat["high_low_ratio"] = get("high_low_ratio", 1)
	feat["close_open_ratio"] = get("close_open_ratio", 1)
	feat["price_vs_sma20"] = get("price_vs_sma20", 1)
	feat["price_vs_sma50"] = orDefault(get("price_vs_sma50", 0), 1)
	feat["price_vs_sma200"] = orDefault(get("price_vs_sma200", 0), 1)
	feat["gap_percentage"] = get("gap_percentage", 0)

	feat["rsi_14"] = get("rsi_14", 50)
	macd := get("macd", 0)
	macdSig := get("macd_signal", 0)
	if macd != 0 && macdSig != 0 {
		feat["macd_signal_diff"] = macd - macdSig
	} else {
		feat["macd_signal_diff"] = 0
	}
	feat["macd_histogram"] = get("macd_histogram", 0)
	feat["bb_position"] = get("bb_position", 0.5)
	feat["adx_14"] = get("adx_14", 20)
	feat["cci_20"] = get("cci_20", 0)
	feat["stoch_k"] = get("stoch_k", 50)
	feat["stoch_d"] = get("stoch_d", 50)
	feat["obv_slope"] = get("obv_slope", 0)
	feat["vwap_diff"] = get("vwap_diff", 0)
	feat["atr_14"] = get("atr_14", 0)
	feat["atr_ratio"] = get("atr_ratio", 0.02)
	feat["williams_r"] = get("williams_r", -50)
	feat["parabolic_sar_signal"] = get("parabolic_sar_signal", 0)
	feat["ema12_ema26_cross"] = get("ema12_ema26_cross", 0)
	feat["sma20_sma50_cross"] = get("sma20_sma50_cross", 0)
	feat["volume_vs_sma20"] = get("volume_vs_sma20", 1)
	feat["volume_ratio_5d"] = get("volume_ratio_5d", 1)
	feat["keltner_position"] = get("keltner_position", 0.5)
	feat["roc_10"] = get("roc_10", 0)

	feat["rsi_macd_agreement"] = get("rsi_macd_agreement", 0)
	feat["volume_price_confirmation"] = get("volume_price_confirmation", 0)
	feat["bb_squeeze"] = get("bb_squeeze", 0)

	trendSignals := []float64{
		sign(feat["ema12_ema26_cross"]),
		sign(feat["sma20_sma50_cross"]),
		sign(feat["macd_histogram"]),
		sign(feat["parabolic_sar_signal"]),
	}
	var sum float64
	for _, s := range trendSignals {
		sum += s
	}
	feat["trend_alignment_score"] = sum / float64(len(trendSignals))

	feat["volume_breakout_score"] = math.Min(feat["volume_vs_sma20"]/2.0, 1.0)

	rsiBull := feat["rsi_14"] > 50
	priceBull := feat["return_5d"] > 0
	if rsiBull == priceBull {
		feat["momentum_divergence"] = 0.0
	} else {
		feat["momentum_divergence"] = 1.0
	}

	feat["spy_return_1d"] = market.BroadIndexReturn1D
	feat["vix_level"] = orDefault(market.VIX, 20)
	feat["vix_change"] = market.VIXChange

	feat["trend_strength_composite"] = math.Abs(feat["adx_14"]/50) * feat["trend_alignment_score"]
	feat["mean_reversion_score"] = math.Abs(1 - feat["price_vs_sma20"])
	feat["breakout_probability"] = math.Min(feat["volume_breakout_score"]*math.Abs(feat["bb_position"]-0.5)*2, 1.0)
	feat["support_resistance_proximity"] = math.Min(feat["bb_position"], 1-feat["bb_position"])

	// [ADD] extension features.
	feat["macd_raw"] = get("macd", 0)
	feat["macd_signal_raw"] = get("macd_signal", 0)
	vwap := get("vwap", 0)
	close := get("close", 0)
	if vwap != 0 {
		feat["price_vs_vwap"] = close / vwap
	} else {
		feat["price_vs_vwap"] = 1
	}
	feat["stoch_kd_spread"] = feat["stoch_k"] - feat["stoch_d"]
	feat["cci_normalized"] = clamp(feat["cci_20"]/100, -2, 2)

	for k, val := range feat {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			feat[k] = 0.0
		}
	}

	return feat
}

// Vector renders the feature map as the fixed-order slice Classifier.Predict
// expects, validating that every name in FEATURE_NAMES was populated.
func (b *Builder) Vector(feat map[string]float64) ([]float64, error) {
	vec := make([]float64, len(FEATURE_NAMES))
	for i, name := range FEATURE_NAMES {
		val, ok := feat[name]
		if !ok {
			return nil, &MissingFeatureError{Name: name}
		}
		vec[i] = val
	}
	return vec, nil
}

// MissingFeatureError reports a FEATURE_NAMES entry absent from a built map.
type MissingFeatureError struct{ Name string }

func (e *MissingFeatureError) Error() string { return "missing feature: " + e.Name }

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func sign(v float64) float64 {
	if v > 0 {
		return 1
	}
	return -1
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
