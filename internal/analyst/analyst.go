// Package analyst implements the LLM second-opinion review that runs
// between signal scoring and the risk gate, grounded on
// original_source/backend/app/core/claude_analyst.py's ClaudeAnalyst and
// built on the openai-go client plumbing and options pattern seen in
// tgeconf-nof0/go/pkg/llm (functional ClientOption, tolerant JSON parsing).
package analyst

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/auroratrading/core/internal/domain"
)

const systemPrompt = `You are AURORA's senior financial analyst.
You receive ML-generated trading signals with supporting data.

Your job:
1. Evaluate the signal quality given current market context
2. Check for risks the ML model might miss (earnings, news, macro events)
3. Provide a CONFIDENCE ADJUSTMENT (-30 to +20 points)
4. Flag any concerns
5. Suggest position sizing (conservative/normal/aggressive)

RULES:
- Always err on the side of caution
- Flag if earnings are within 5 days (avoid holding through earnings)
- Flag unusual volume or price action
- Consider sector rotation and macro trends
- Be skeptical of signals during high VIX (>25)
- If unsure, recommend conservative sizing

Respond ONLY in this JSON format (no markdown, no extra text):
{
    "adjusted_confidence": <float 0.0-1.0>,
    "confidence_adjustment": <int -30 to +20>,
    "position_sizing": "conservative" | "normal" | "aggressive",
    "reasoning": "<2-3 sentence explanation>",
    "risk_flags": ["<flag1>", "<flag2>"],
    "approve": true | false
}`

const deepAnalysisSystemPrompt = `You are AURORA's senior financial analyst performing an on-demand deep
dive on one symbol. Respond ONLY in the requested JSON shape.`

// ClientOption configures optional Client behaviour.
type ClientOption func(*clientOptions)

type clientOptions struct {
	logger *zap.Logger
}

func WithLogger(l *zap.Logger) ClientOption { return func(o *clientOptions) { o.logger = l } }

// Client reviews signals via an OpenAI-compatible chat completions API. Its
// per-UTC-day quota counter is single-writer state on the struct, not a
// package global, per SPEC_FULL.md §4.4.
type Client struct {
	openai           openai.Client
	model            string
	maxDailyRequests int
	log              *zap.Logger

	mu          sync.Mutex
	reviewDate  string
	reviewsToday int
}

// NewClient builds a Client against apiKey/baseURL/model.
func NewClient(apiKey, baseURL, model string, maxDailyRequests int, opts ...ClientOption) *Client {
	o := clientOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	oaOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		oaOpts = append(oaOpts, option.WithBaseURL(baseURL))
	}

	return &Client{
		openai:           openai.NewClient(oaOpts...),
		model:            model,
		maxDailyRequests: maxDailyRequests,
		log:              o.logger.Named("analyst"),
	}
}

// takeQuota increments the per-UTC-day counter and reports whether the
// caller is still within budget. Resets the counter on day rollover.
func (c *Client) takeQuota() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	today := time.Now().UTC().Format("2006-01-02")
	if today != c.reviewDate {
		c.reviewDate = today
		c.reviewsToday = 0
	}
	if c.reviewsToday >= c.maxDailyRequests {
		return false
	}
	c.reviewsToday++
	return true
}

// ReviewSignal reviews one scored signal against its supporting context,
// returning a conservative fallback verdict on quota exhaustion, transport
// failure, or an unparsable response — never propagating those as hard
// errors to the caller, matching the original's three fallback paths.
func (c *Client) ReviewSignal(ctx context.Context, sig domain.Signal, symCtx domain.SymbolContext) domain.AnalystVerdict {
	if !c.takeQuota() {
		c.log.Warn("analyst review limit reached", zap.Int("max_daily_requests", c.maxDailyRequests))
		return domain.AnalystVerdict{
			AdjustedConfidence:   sig.Confidence * 0.9,
			ConfidenceAdjustment: -10,
			PositionSizing:       "conservative",
			Reasoning:            "Review limit reached — auto-conservative sizing applied.",
			RiskFlags:            []string{"review_limit_reached"},
			Approve:              sig.Confidence > 0.70,
		}
	}

	prompt := buildReviewPrompt(sig, symCtx)
	resp, err := c.complete(ctx, systemPrompt, prompt)
	if err != nil {
		c.log.Error("analyst review failed", zap.Error(err))
		return domain.AnalystVerdict{
			AdjustedConfidence:   sig.Confidence * 0.85,
			ConfidenceAdjustment: -15,
			PositionSizing:       "conservative",
			Reasoning:            fmt.Sprintf("Analyst review failed (%v) — auto-conservative fallback.", err),
			RiskFlags:            []string{"analyst_api_error"},
			Approve:              sig.Confidence > 0.72,
		}
	}

	verdict, err := parseVerdict(resp.text, sig.Confidence)
	if err != nil {
		c.log.Warn("failed to parse analyst response", zap.Error(err))
		return domain.AnalystVerdict{
			AdjustedConfidence:   sig.Confidence * 0.9,
			ConfidenceAdjustment: -10,
			PositionSizing:       "conservative",
			Reasoning:            fmt.Sprintf("Parse error — applying conservative defaults. Raw: %s", truncate(resp.text, 200)),
			RiskFlags:            []string{"parse_error"},
			Approve:              sig.Confidence > 0.70,
		}
	}
	verdict.InputTokens = resp.inputTokens
	verdict.OutputTokens = resp.outputTokens
	return verdict
}

// AnalyzeSymbol runs the richer on-demand deep-analysis path, reusing the
// same completion plumbing with a different prompt and schema. It is
// structurally identical to ReviewSignal: quota exhaustion, a transport
// failure, and an unparsable response all synthesize a neutral,
// low-conviction SymbolAnalysis with ATR-based default stops and targets
// rather than surfacing a hard error, per SPEC_FULL.md §4.4.
func (c *Client) AnalyzeSymbol(ctx context.Context, symCtx domain.SymbolContext) (domain.SymbolAnalysis, error) {
	if !c.takeQuota() {
		c.log.Warn("analyst deep-analysis limit reached", zap.Int("max_daily_requests", c.maxDailyRequests))
		return neutralSymbolAnalysis(symCtx, "Review limit reached — neutral analysis with default levels."), nil
	}

	prompt := buildDeepAnalysisPrompt(symCtx)
	resp, err := c.complete(ctx, deepAnalysisSystemPrompt, prompt)
	if err != nil {
		c.log.Error("analyst deep analysis failed", zap.Error(err))
		return neutralSymbolAnalysis(symCtx, fmt.Sprintf("Deep analysis request failed (%v) — neutral fallback.", err)), nil
	}

	var raw struct {
		Direction        string    `json:"direction"`
		Conviction       int       `json:"conviction"`
		Timeframe        string    `json:"timeframe"`
		EntryZoneLow     *float64  `json:"entry_zone_low"`
		EntryZoneHigh    *float64  `json:"entry_zone_high"`
		StopLoss         *float64  `json:"stop_loss"`
		TakeProfit1      *float64  `json:"take_profit_1"`
		TakeProfit2      *float64  `json:"take_profit_2"`
		RiskRewardRatio  *float64  `json:"risk_reward_ratio"`
		SupportLevels    []float64 `json:"support_levels"`
		ResistanceLevels []float64 `json:"resistance_levels"`
		Summary          string    `json:"summary"`
	}
	if err := json.Unmarshal([]byte(stripFence(resp.text)), &raw); err != nil {
		c.log.Warn("failed to parse deep analysis response", zap.Error(err))
		return neutralSymbolAnalysis(symCtx, fmt.Sprintf("Parse error — applying neutral defaults. Raw: %s", truncate(resp.text, 200))), nil
	}

	analysis := neutralSymbolAnalysis(symCtx, raw.Summary)
	analysis.Direction = raw.Direction
	analysis.Conviction = raw.Conviction
	analysis.Timeframe = raw.Timeframe
	if raw.EntryZoneLow != nil {
		analysis.EntryZoneLow = decimal.NewFromFloat(*raw.EntryZoneLow)
	}
	if raw.EntryZoneHigh != nil {
		analysis.EntryZoneHigh = decimal.NewFromFloat(*raw.EntryZoneHigh)
	}
	if raw.StopLoss != nil {
		analysis.StopLoss = decimal.NewFromFloat(*raw.StopLoss)
	}
	if raw.TakeProfit1 != nil {
		analysis.TakeProfit1 = decimal.NewFromFloat(*raw.TakeProfit1)
	}
	if raw.TakeProfit2 != nil {
		analysis.TakeProfit2 = decimal.NewFromFloat(*raw.TakeProfit2)
	}
	if raw.RiskRewardRatio != nil {
		analysis.RiskRewardRatio = *raw.RiskRewardRatio
	}
	if len(raw.SupportLevels) > 0 {
		analysis.SupportLevels = toDecimals(raw.SupportLevels)
	}
	if len(raw.ResistanceLevels) > 0 {
		analysis.ResistanceLevels = toDecimals(raw.ResistanceLevels)
	}
	return analysis, nil
}

// neutralSymbolAnalysis synthesizes a low-conviction SymbolAnalysis using
// the same 2x/3x-ATR stop/target convention as executor.CalculatePosition,
// falling back to 2% of price when no ATR is known — the original
// trade_executor.py's own fallback (`current_price * 0.02`).
func neutralSymbolAnalysis(symCtx domain.SymbolContext, summary string) domain.SymbolAnalysis {
	price := symCtx.Price
	atr := price * 0.02

	stopLoss := price - 2.0*atr
	takeProfit1 := price + 2.0*atr
	takeProfit2 := price + 3.0*atr
	risk := price - stopLoss
	reward := takeProfit2 - price
	var riskReward float64
	if risk > 0 {
		riskReward = reward / risk
	}

	return domain.SymbolAnalysis{
		Symbol:           symCtx.Symbol,
		Direction:        "neutral",
		Conviction:       1,
		Timeframe:        "unknown",
		EntryZoneLow:     decimal.NewFromFloat(price - 0.5*atr).Round(2),
		EntryZoneHigh:    decimal.NewFromFloat(price + 0.5*atr).Round(2),
		StopLoss:         decimal.NewFromFloat(stopLoss).Round(2),
		TakeProfit1:      decimal.NewFromFloat(takeProfit1).Round(2),
		TakeProfit2:      decimal.NewFromFloat(takeProfit2).Round(2),
		RiskRewardRatio:  riskReward,
		SupportLevels:    []decimal.Decimal{decimal.NewFromFloat(stopLoss).Round(2)},
		ResistanceLevels: []decimal.Decimal{decimal.NewFromFloat(takeProfit1).Round(2), decimal.NewFromFloat(takeProfit2).Round(2)},
		Summary:          summary,
	}
}

func toDecimals(vs []float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vs))
	for i, v := range vs {
		out[i] = decimal.NewFromFloat(v).Round(2)
	}
	return out
}

type completionResult struct {
	text         string
	inputTokens  int
	outputTokens int
}

func (c *Client) complete(ctx context.Context, system, user string) (completionResult, error) {
	resp, err := c.openai.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxTokens: openai.Int(600),
	})
	if err != nil {
		return completionResult{}, err
	}
	if len(resp.Choices) == 0 {
		return completionResult{}, fmt.Errorf("analyst: empty choices in response")
	}
	return completionResult{
		text:         resp.Choices[0].Message.Content,
		inputTokens:  int(resp.Usage.PromptTokens),
		outputTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

func buildReviewPrompt(sig domain.Signal, ctx domain.SymbolContext) string {
	var news strings.Builder
	if len(ctx.NewsHeadlines) == 0 {
		news.WriteString("No recent news available.")
	}
	for _, n := range ctx.NewsHeadlines {
		fmt.Fprintf(&news, "- %s: %s\n", n.Headline, n.Summary)
	}
	events := "None known."
	if len(ctx.UpcomingEvents) > 0 {
		events = strings.Join(ctx.UpcomingEvents, ", ")
	}

	rsi, macdHist, bbPos, atr := "N/A", "N/A", "N/A", "N/A"
	if v, ok := sig.FeaturesSnapshot["rsi_14"]; ok {
		rsi = fmt.Sprintf("%.1f", v)
	}
	if v, ok := sig.FeaturesSnapshot["macd_histogram"]; ok {
		macdHist = fmt.Sprintf("%.4f", v)
	}
	if v, ok := sig.FeaturesSnapshot["bb_position"]; ok {
		bbPos = fmt.Sprintf("%.2f", v)
	}
	if v, ok := sig.FeaturesSnapshot["atr_14"]; ok {
		atr = fmt.Sprintf("%.2f", v)
	}

	return fmt.Sprintf(`SIGNAL REVIEW REQUEST:
Symbol: %s
Action: %s
ML Confidence: %.1f%%
Model Version: %s

CURRENT DATA:
Price: $%.2f
Change Today: %.2f%%
Volume vs Avg: %.1fx
RSI(14): %s
MACD Histogram: %s
BB Position: %s
ATR(14): %s
52w Range: $%.2f — $%.2f

MARKET CONTEXT:
SPY Today: %.2f%%
VIX: %.1f
Sector Performance: %s

RECENT NEWS:
%s

UPCOMING EVENTS:
%s

Please review and provide your assessment.`,
		sig.Symbol, sig.Action, sig.Confidence*100, sig.ModelVersion,
		ctx.Price, ctx.ChangePct*100, ctx.VolumeRatio,
		rsi, macdHist, bbPos, atr,
		ctx.Low52W, ctx.High52W,
		ctx.Market.BroadIndexReturn1D*100, ctx.Market.VIX, ctx.SectorPerf,
		strings.TrimSpace(news.String()), events,
	)
}

func buildDeepAnalysisPrompt(ctx domain.SymbolContext) string {
	return fmt.Sprintf(`DEEP ANALYSIS REQUEST for %s
Price: $%.2f, Change: %.2f%%, Volume ratio: %.1fx
52w Range: $%.2f — $%.2f
VIX: %.1f, Sector: %s (%s)

Provide a full trade plan: direction, conviction, timeframe, an entry zone,
a stop loss, two take-profit levels, the resulting risk/reward ratio, and
the key support and resistance levels you used to derive them.

Respond with JSON: {"direction": "...", "conviction": 1-10, "timeframe": "...",
"entry_zone_low": 0.0, "entry_zone_high": 0.0, "stop_loss": 0.0,
"take_profit_1": 0.0, "take_profit_2": 0.0, "risk_reward_ratio": 0.0,
"support_levels": [0.0], "resistance_levels": [0.0], "summary": "..."}`,
		ctx.Symbol, ctx.Price, ctx.ChangePct*100, ctx.VolumeRatio, ctx.Low52W, ctx.High52W,
		ctx.Market.VIX, ctx.SectorLabel, ctx.SectorPerf)
}

// parseVerdict parses the model's JSON reply, tolerating a leading/trailing
// ```json fence the way _parse_response strips markdown code blocks.
func parseVerdict(text string, fallbackConfidence float64) (domain.AnalystVerdict, error) {
	var raw struct {
		AdjustedConfidence   *float64 `json:"adjusted_confidence"`
		ConfidenceAdjustment *int     `json:"confidence_adjustment"`
		PositionSizing       string   `json:"position_sizing"`
		Reasoning            string   `json:"reasoning"`
		RiskFlags            []string `json:"risk_flags"`
		Approve              *bool    `json:"approve"`
	}
	if err := json.Unmarshal([]byte(stripFence(text)), &raw); err != nil {
		return domain.AnalystVerdict{}, err
	}

	v := domain.AnalystVerdict{
		AdjustedConfidence: fallbackConfidence,
		PositionSizing:     "conservative",
		Reasoning:          "No reasoning provided.",
		Approve:            true,
	}
	if raw.AdjustedConfidence != nil {
		v.AdjustedConfidence = *raw.AdjustedConfidence
	}
	if raw.ConfidenceAdjustment != nil {
		v.ConfidenceAdjustment = *raw.ConfidenceAdjustment
	}
	if raw.PositionSizing != "" {
		v.PositionSizing = raw.PositionSizing
	}
	if raw.Reasoning != "" {
		v.Reasoning = raw.Reasoning
	}
	if raw.RiskFlags != nil {
		v.RiskFlags = raw.RiskFlags
	}
	if raw.Approve != nil {
		v.Approve = *raw.Approve
	}
	return v, nil
}

func stripFence(text string) string {
	clean := strings.TrimSpace(text)
	if !strings.HasPrefix(clean, "```") {
		return clean
	}
	lines := strings.SplitN(clean, "\n", 2)
	if len(lines) < 2 {
		return clean
	}
	rest := lines[1]
	if idx := strings.LastIndex(rest, "```"); idx >= 0 {
		rest = rest[:idx]
	}
	return strings.TrimSpace(rest)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
