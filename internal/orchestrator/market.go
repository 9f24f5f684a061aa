package orchestrator

import (
	"context"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/auroratrading/core/internal/domain"
)

// VIXSource is a pluggable live-VIX feed. A nil VIXSource (or one that
// returns ok=false) falls back to the realized-volatility proxy computed
// from the broad index's own bars.
type VIXSource interface {
	GetVIX(ctx context.Context) (value float64, ok bool, err error)
}

// BuildMarketContext derives the per-cycle MarketContext from the broad
// index's (e.g. SPY) daily bars, oldest first. When vix is nil or reports
// ok=false, VIX and VIXChange are estimated from the index's own realized
// volatility — the documented proxy for when no live VIX feed is
// configured.
func BuildMarketContext(ctx context.Context, broadIndexBars []domain.Bar, vix VIXSource) domain.MarketContext {
	mc := domain.MarketContext{VIX: 20}
	n := len(broadIndexBars)
	if n < 2 {
		return mc
	}

	closes := make([]float64, n)
	for i, b := range broadIndexBars {
		closes[i] = b.Close
	}

	last := closes[n-1]
	if prev := closes[n-2]; prev != 0 {
		mc.BroadIndexReturn1D = (last - prev) / prev
	}

	if vix != nil {
		if v, ok, err := vix.GetVIX(ctx); err == nil && ok {
			mc.VIX = v
			return mc
		}
	}

	returns := dailyReturns(closes)
	mc.VIX = annualizedVolPct(window(returns, 20))

	last5 := annualizedVolPct(window(returns, 5))
	prior5 := annualizedVolPct(windowBefore(returns, 5, 5))
	mc.VIXChange = last5 - prior5

	return mc
}

func dailyReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (closes[i]-closes[i-1])/closes[i-1])
	}
	return out
}

// window returns the last n elements of s (or all of s if shorter).
func window(s []float64, n int) []float64 {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// windowBefore returns the n elements immediately preceding the last
// skip elements of s.
func windowBefore(s []float64, n, skip int) []float64 {
	end := len(s) - skip
	if end <= 0 {
		return nil
	}
	start := end - n
	if start < 0 {
		start = 0
	}
	return s[start:end]
}

// annualizedVolPct is the realized-volatility VIX proxy: stdev of daily
// returns, annualized assuming 252 trading days, expressed in VIX-like
// points (percent). Uses gonum/stat for the mean/stdev pass, the same
// package the teacher's strategy layer uses for this calculation.
func annualizedVolPct(returns []float64) float64 {
	if len(returns) < 2 {
		return 20
	}
	_, stdev := stat.MeanStdDev(returns, nil)
	return stdev * math.Sqrt(252) * 100
}
