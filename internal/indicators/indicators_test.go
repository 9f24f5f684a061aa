package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auroratrading/core/internal/domain"
)

// syntheticBars builds n daily bars with a mild upward drift and a
// realistic high/low spread, enough history for every talib window
// this package uses (SMA200 in particular).
func syntheticBars(n int) []domain.Bar {
	out := make([]domain.Bar, n)
	price := 100.0
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		if i%7 == 0 {
			price *= 0.99
		} else {
			price *= 1.002
		}
		out[i] = domain.Bar{
			Symbol: "AAPL", Timeframe: "1Day", Timestamp: start.AddDate(0, 0, i),
			Open: price * 0.999, High: price * 1.01, Low: price * 0.99, Close: price,
			Volume: 1_000_000 + float64(i*1000),
		}
	}
	return out
}

func TestCompute_InsufficientHistoryReturnsFalse(t *testing.T) {
	_, ok := Compute("AAPL", "1Day", syntheticBars(MinBars-1))
	assert.False(t, ok)
}

func TestCompute_DeterministicForSameInput(t *testing.T) {
	bars := syntheticBars(220)
	snap1, ok1 := Compute("AAPL", "1Day", bars)
	snap2, ok2 := Compute("AAPL", "1Day", bars)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, len(snap1.Values), len(snap2.Values))
	for name, v1 := range snap1.Values {
		v2, ok := snap2.Values[name]
		require.True(t, ok, "indicator %s missing from second run", name)
		if v1 == nil {
			assert.Nil(t, v2, "indicator %s", name)
			continue
		}
		require.NotNil(t, v2, "indicator %s", name)
		assert.Equal(t, *v1, *v2, "indicator %s", name)
	}
}

func TestCompute_BBPositionIsClampedToUnitInterval(t *testing.T) {
	bars := syntheticBars(220)
	snap, ok := Compute("AAPL", "1Day", bars)
	require.True(t, ok)

	v, ok := snap.Get("bb_position")
	require.True(t, ok)
	assert.GreaterOrEqual(t, v, 0.0)
	assert.LessOrEqual(t, v, 1.0)

	v, ok = snap.Get("keltner_position")
	require.True(t, ok)
	assert.GreaterOrEqual(t, v, 0.0)
	assert.LessOrEqual(t, v, 1.0)
}

func TestCompute_BBPositionClampsEvenWithExtremeCloses(t *testing.T) {
	bars := syntheticBars(220)
	// Drive the last close far outside the Bollinger band range so the raw
	// (close-low)/range ratio would fall well outside [0,1] unclamped.
	bars[len(bars)-1].Close = bars[len(bars)-1].High * 5
	snap, ok := Compute("AAPL", "1Day", bars)
	require.True(t, ok)

	v, ok := snap.Get("bb_position")
	require.True(t, ok)
	assert.LessOrEqual(t, v, 1.0)
	assert.GreaterOrEqual(t, v, 0.0)
}

func TestCompute_StochasticKAndDAreDefined(t *testing.T) {
	bars := syntheticBars(220)
	snap, ok := Compute("AAPL", "1Day", bars)
	require.True(t, ok)

	_, hasK := snap.Get("stoch_k")
	_, hasD := snap.Get("stoch_d")
	assert.True(t, hasK)
	assert.True(t, hasD)
}

func TestCompute_SMA200NilBelow200Bars(t *testing.T) {
	bars := syntheticBars(150)
	snap, ok := Compute("AAPL", "1Day", bars)
	require.True(t, ok)
	assert.Nil(t, snap.Values["sma_200"])
}

func TestCompute_NoNaNOrInfValues(t *testing.T) {
	bars := syntheticBars(220)
	snap, ok := Compute("AAPL", "1Day", bars)
	require.True(t, ok)
	for name, v := range snap.Values {
		if v == nil {
			continue
		}
		assert.False(t, math.IsNaN(*v), "indicator %s is NaN", name)
		assert.False(t, math.IsInf(*v, 0), "indicator %s is Inf", name)
	}
}
