// Package indicators computes the named technical-indicator set from a
// series of bars, grounded on the teacher's IndicatorCalculator
// (internal/trading/market_data/timeframe/indicators.go) and the formulas in
// original_source/backend/app/core/indicators.py. Values are computed with
// github.com/markcheno/go-talib rather than hand-rolled rolling windows.
package indicators

import (
	"math"

	"github.com/markcheno/go-talib"

	"github.com/auroratrading/core/internal/domain"
)

// MinBars is the minimum history required before indicators are computed,
// matching the original's 50-bar guard.
const MinBars = 50

// f returns a pointer to v, or nil if v is NaN/Inf — the Go analogue of the
// original's "clean NaN values" pass at the end of compute_all_indicators.
func f(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Compute derives the full named indicator snapshot for the latest bar in
// bars (oldest first). Returns a zero-value snapshot and false if there
// isn't enough history.
func Compute(symbol, timeframe string, bars []domain.Bar) (domain.IndicatorSnapshot, bool) {
	n := len(bars)
	if n < MinBars {
		return domain.IndicatorSnapshot{}, false
	}

	opens := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range bars {
		opens[i], highs[i], lows[i], closes[i], volumes[i] = b.Open, b.High, b.Low, b.Close, b.Volume
	}

	last := n - 1
	close := closes[last]
	v := make(map[string]*float64, 48)

	sma20 := talib.Sma(closes, 20)
	v["sma_20"] = f(sma20[last])
	var sma50Val, sma200Val *float64
	if n >= 50 {
		sma50 := talib.Sma(closes, 50)
		sma50Val = f(sma50[last])
	}
	if n >= 200 {
		sma200 := talib.Sma(closes, 200)
		sma200Val = f(sma200[last])
	}
	v["sma_50"] = sma50Val
	v["sma_200"] = sma200Val

	ema12 := talib.Ema(closes, 12)
	ema26 := talib.Ema(closes, 26)
	v["ema_12"] = f(ema12[last])
	v["ema_26"] = f(ema26[last])

	macd, macdSignal, macdHist := talib.Macd(closes, 12, 26, 9)
	v["macd"] = f(macd[last])
	v["macd_signal"] = f(macdSignal[last])
	v["macd_histogram"] = f(macdHist[last])

	adx := talib.Adx(highs, lows, closes, 14)
	v["adx_14"] = f(adx[last])

	sar := talib.Sar(highs, lows, 0.02, 0.2)
	v["parabolic_sar"] = f(sar[last])
	if close > sar[last] {
		v["parabolic_sar_signal"] = f(1.0)
	} else {
		v["parabolic_sar_signal"] = f(-1.0)
	}

	rsi := talib.Rsi(closes, 14)
	v["rsi_14"] = f(rsi[last])

	stochK, stochD := talib.Stoch(highs, lows, closes, 14, 3, talib.SMA, 3, talib.SMA)
	v["stoch_k"] = f(stochK[last])
	v["stoch_d"] = f(stochD[last])

	willR := talib.WillR(highs, lows, closes, 14)
	v["williams_r"] = f(willR[last])

	cci := talib.Cci(highs, lows, closes, 20)
	v["cci_20"] = f(cci[last])

	roc := talib.Roc(closes, 10)
	v["roc_10"] = f(roc[last])

	bbUpper, bbMid, bbLower := talib.BBands(closes, 20, 2, 2, talib.SMA)
	v["bb_high"] = f(bbUpper[last])
	v["bb_low"] = f(bbLower[last])
	v["bb_mid"] = f(bbMid[last])
	bbRange := bbUpper[last] - bbLower[last]
	if bbRange > 0 {
		v["bb_position"] = f(math.Min(1, math.Max(0, (close-bbLower[last])/bbRange)))
	} else {
		v["bb_position"] = f(0.5)
	}
	if sma20[last] != 0 {
		v["bb_squeeze"] = f(bbRange / sma20[last])
	} else {
		v["bb_squeeze"] = f(0.0)
	}

	atr := talib.Atr(highs, lows, closes, 14)
	v["atr_14"] = f(atr[last])
	if close != 0 {
		v["atr_ratio"] = f(atr[last] / close)
	} else {
		v["atr_ratio"] = f(0.0)
	}

	// Keltner Channel approximation: EMA(20) midline +/- 2*ATR(14) bands.
	kcMid := talib.Ema(closes, 20)
	kcHigh := kcMid[last] + 2*atr[last]
	kcLow := kcMid[last] - 2*atr[last]
	if kcRange := kcHigh - kcLow; kcRange > 0 {
		v["keltner_position"] = f(math.Min(1, math.Max(0, (close-kcLow)/kcRange)))
	} else {
		v["keltner_position"] = f(0.5)
	}

	obv := talib.Obv(closes, volumes)
	v["obv"] = f(obv[last])
	if n >= 5 {
		v["obv_slope"] = f(obv[last] - obv[last-5])
	} else {
		v["obv_slope"] = f(0.0)
	}

	// VWAP (intraday approximation) — cumulative typical-price*volume / cumulative volume.
	var cumTPVol, cumVol float64
	for i := 0; i < n; i++ {
		tp := (highs[i] + lows[i] + closes[i]) / 3
		cumTPVol += tp * volumes[i]
		cumVol += volumes[i]
	}
	vwap := close
	if cumVol > 0 {
		vwap = cumTPVol / cumVol
	}
	v["vwap"] = f(vwap)
	v["vwap_diff"] = f(close - vwap)

	volSMA20 := talib.Sma(volumes, 20)
	if volSMA20[last] > 0 {
		v["volume_vs_sma20"] = f(volumes[last] / volSMA20[last])
	} else {
		v["volume_vs_sma20"] = f(1.0)
	}
	volSMA5 := talib.Sma(volumes, 5)
	if volSMA5[last] > 0 {
		v["volume_ratio_5d"] = f(volumes[last] / volSMA5[last])
	} else {
		v["volume_ratio_5d"] = f(1.0)
	}

	v["open"] = f(opens[last])
	v["high"] = f(highs[last])
	v["low"] = f(lows[last])
	v["close"] = f(close)
	v["volume"] = f(volumes[last])

	v["return_1d"] = pctChange(closes, last, 1)
	v["return_5d"] = pctChange(closes, last, 5)
	v["return_10d"] = pctChange(closes, last, 10)
	v["return_20d"] = pctChange(closes, last, 20)

	if lows[last] > 0 {
		v["high_low_ratio"] = f(highs[last] / lows[last])
	} else {
		v["high_low_ratio"] = f(1.0)
	}
	if opens[last] > 0 {
		v["close_open_ratio"] = f(close / opens[last])
	} else {
		v["close_open_ratio"] = f(1.0)
	}
	if sma20[last] != 0 {
		v["price_vs_sma20"] = f(close / sma20[last])
	} else {
		v["price_vs_sma20"] = f(1.0)
	}
	if sma50Val != nil && *sma50Val != 0 {
		v["price_vs_sma50"] = f(close / *sma50Val)
	} else {
		v["price_vs_sma50"] = nil
	}
	if sma200Val != nil && *sma200Val != 0 {
		v["price_vs_sma200"] = f(close / *sma200Val)
	} else {
		v["price_vs_sma200"] = nil
	}
	if n >= 2 && closes[last-1] != 0 {
		v["gap_percentage"] = f((opens[last] - closes[last-1]) / closes[last-1])
	} else {
		v["gap_percentage"] = f(0.0)
	}

	if ema12[last] > ema26[last] {
		v["ema12_ema26_cross"] = f(1.0)
	} else {
		v["ema12_ema26_cross"] = f(-1.0)
	}
	sma50ForCross := sma20
	if n >= 50 {
		sma50ForCross = talib.Sma(closes, 50)
	}
	if sma20[last] > sma50ForCross[last] {
		v["sma20_sma50_cross"] = f(1.0)
	} else {
		v["sma20_sma50_cross"] = f(-1.0)
	}

	rsiVal, macdHistVal := rsi[last], macdHist[last]
	agree := (rsiVal > 50 && macdHistVal > 0) || (rsiVal < 50 && macdHistVal < 0)
	v["rsi_macd_agreement"] = f(boolToFloat(agree))
	return1D, _ := v["return_1d"], true
	volRatio, _ := v["volume_vs_sma20"], true
	confirmed := return1D != nil && *return1D > 0 && volRatio != nil && *volRatio > 1.2
	v["volume_price_confirmation"] = f(boolToFloat(confirmed))

	return domain.IndicatorSnapshot{
		Symbol: symbol, Timeframe: timeframe, Timestamp: bars[last].Timestamp, Values: v,
	}, true
}

func pctChange(closes []float64, last, lag int) *float64 {
	if last-lag < 0 || closes[last-lag] == 0 {
		return f(0.0)
	}
	return f((closes[last] - closes[last-lag]) / closes[last-lag])
}

func boolToFloat(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}
