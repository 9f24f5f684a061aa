package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/auroratrading/core/internal/domain"
)

type fakeVIXSource struct {
	value float64
	ok    bool
	err   error
}

func (f fakeVIXSource) GetVIX(context.Context) (float64, bool, error) { return f.value, f.ok, f.err }

func bars(closes ...float64) []domain.Bar {
	out := make([]domain.Bar, len(closes))
	for i, c := range closes {
		out[i] = domain.Bar{Close: c}
	}
	return out
}

func TestBuildMarketContext_UsesLiveVIXWhenAvailable(t *testing.T) {
	mc := BuildMarketContext(context.Background(), bars(100, 101, 102), fakeVIXSource{value: 18.5, ok: true})
	assert.Equal(t, 18.5, mc.VIX)
	assert.InDelta(t, (102.0-101.0)/101.0, mc.BroadIndexReturn1D, 0.0001)
}

func TestBuildMarketContext_FallsBackToProxyWhenVIXSourceNotOK(t *testing.T) {
	closes := make([]float64, 0, 22)
	price := 100.0
	for i := 0; i < 22; i++ {
		if i%2 == 0 {
			price *= 1.01
		} else {
			price *= 0.99
		}
		closes = append(closes, price)
	}
	mc := BuildMarketContext(context.Background(), bars(closes...), fakeVIXSource{ok: false})
	assert.Greater(t, mc.VIX, 0.0)
}

func TestBuildMarketContext_NilVIXSourceUsesProxy(t *testing.T) {
	mc := BuildMarketContext(context.Background(), bars(100, 99, 101, 98, 103), nil)
	assert.Greater(t, mc.VIX, 0.0)
}

func TestBuildMarketContext_TooFewBarsReturnsDefault(t *testing.T) {
	mc := BuildMarketContext(context.Background(), bars(100), nil)
	assert.Equal(t, domain.MarketContext{VIX: 20}, mc)
}

func TestAnnualizedVolPct_ShortSeriesReturnsDefault(t *testing.T) {
	assert.Equal(t, 20.0, annualizedVolPct([]float64{0.01}))
	assert.Equal(t, 20.0, annualizedVolPct(nil))
}

func TestWindowBefore_NotEnoughHistoryReturnsNil(t *testing.T) {
	assert.Nil(t, windowBefore([]float64{1, 2}, 5, 5))
}
