package analyst

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auroratrading/core/internal/domain"
)

func TestReviewSignal_QuotaExhaustedReturnsConservativeFallback(t *testing.T) {
	c := NewClient("test-key", "", "gpt-4o-mini", 0)
	sig := domain.Signal{Symbol: "AAPL", Action: domain.ActionBuy, Confidence: 0.80}

	verdict := c.ReviewSignal(context.Background(), sig, domain.SymbolContext{Symbol: "AAPL"})

	assert.Equal(t, "conservative", verdict.PositionSizing)
	assert.Contains(t, verdict.RiskFlags, "review_limit_reached")
	assert.InDelta(t, sig.Confidence*0.9, verdict.AdjustedConfidence, 1e-9)
	assert.Equal(t, -10, verdict.ConfidenceAdjustment)
}

func TestAnalyzeSymbol_QuotaExhaustedReturnsNeutralAnalysisWithATRDefaults(t *testing.T) {
	c := NewClient("test-key", "", "gpt-4o-mini", 0)
	symCtx := domain.SymbolContext{Symbol: "AAPL", Price: 100.0}

	analysis, err := c.AnalyzeSymbol(context.Background(), symCtx)
	require.NoError(t, err)

	assert.Equal(t, "AAPL", analysis.Symbol)
	assert.Equal(t, "neutral", analysis.Direction)
	assert.Equal(t, 1, analysis.Conviction)
	// ATR proxy is 2% of price: stop = price - 2*atr, target1 = price + 2*atr.
	assert.InDelta(t, 96.0, analysis.StopLoss.InexactFloat64(), 0.01)
	assert.InDelta(t, 104.0, analysis.TakeProfit1.InexactFloat64(), 0.01)
	assert.InDelta(t, 106.0, analysis.TakeProfit2.InexactFloat64(), 0.01)
	assert.Greater(t, analysis.RiskRewardRatio, 0.0)
	assert.NotEmpty(t, analysis.SupportLevels)
	assert.NotEmpty(t, analysis.ResistanceLevels)
}

func TestTakeQuota_ResetsOnDayRollover(t *testing.T) {
	c := NewClient("test-key", "", "gpt-4o-mini", 1)
	assert.True(t, c.takeQuota())
	assert.False(t, c.takeQuota(), "second call same day should exhaust a budget of 1")

	c.mu.Lock()
	c.reviewDate = "2000-01-01"
	c.mu.Unlock()
	assert.True(t, c.takeQuota(), "rollover to a new UTC day should reset the counter")
}

func TestParseVerdict_TolerantOfCodeFence(t *testing.T) {
	raw := "```json\n{\"adjusted_confidence\": 0.77, \"approve\": false, \"position_sizing\": \"aggressive\"}\n```"
	verdict, err := parseVerdict(raw, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.77, verdict.AdjustedConfidence)
	assert.False(t, verdict.Approve)
	assert.Equal(t, "aggressive", verdict.PositionSizing)
}

func TestParseVerdict_MissingFieldsFallBackToDefaults(t *testing.T) {
	verdict, err := parseVerdict(`{}`, 0.6)
	require.NoError(t, err)
	assert.Equal(t, 0.6, verdict.AdjustedConfidence)
	assert.Equal(t, "conservative", verdict.PositionSizing)
	assert.True(t, verdict.Approve)
}

func TestParseVerdict_InvalidJSONErrors(t *testing.T) {
	_, err := parseVerdict("not json", 0.5)
	assert.Error(t, err)
}

func TestStripFence_RemovesLeadingAndTrailingFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFence(`{"a":1}`))
}
