// Package broker implements the Alpaca REST client, grounded on
// original_source/backend/app/core/trade_executor.py's httpx client usage
// for order placement and account/position reads, and wired through
// internal/resilience's gobreaker factory per named operation.
package broker

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/auroratrading/core/internal/resilience"
	coreerrors "github.com/auroratrading/core/pkg/errors"
)

// Client is a thin Alpaca trading+market-data REST client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	dataURL    string
	apiKey     string
	apiSecret  string
	timeout    time.Duration
	breakers   *resilience.Factory
}

// New constructs a Client. breakers may be nil — a Factory is created
// internally so every operation still runs under a default breaker.
func New(baseURL, dataURL, apiKey, apiSecret string, timeout time.Duration, breakers *resilience.Factory) *Client {
	if breakers == nil {
		breakers = resilience.NewFactory(nil)
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL, dataURL: dataURL, apiKey: apiKey, apiSecret: apiSecret,
		timeout: timeout, breakers: breakers,
	}
}

// Bar is the wire shape of one Alpaca market-data bar.
type Bar struct {
	Timestamp string  `json:"t"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
	VWAP      float64 `json:"vw"`
	TradeCount int64  `json:"n"`
}

// Account is the wire shape of the Alpaca account endpoint's fields used here.
type Account struct {
	Equity        string `json:"equity"`
	Cash          string `json:"cash"`
	PortfolioValue string `json:"portfolio_value"`
}

// Position is the wire shape of one open Alpaca position.
type Position struct {
	Symbol       string `json:"symbol"`
	Qty          string `json:"qty"`
	Side         string `json:"side"`
	AvgEntryPrice string `json:"avg_entry_price"`
	CurrentPrice string `json:"current_price"`
	MarketValue  string `json:"market_value"`
	UnrealizedPL string `json:"unrealized_pl"`
}

// BracketOrderRequest mirrors trade_executor.py's _place_bracket_order payload.
type BracketOrderRequest struct {
	Symbol      string
	Qty         int64
	Side        string // "buy" | "sell"
	LimitPrice  decimal.Decimal
	StopPrice   decimal.Decimal
	TargetPrice decimal.Decimal
}

// OrderResponse is the wire shape of the Alpaca order-creation response.
type OrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// LatestTrade is the wire shape of the Alpaca latest-trade endpoint.
type LatestTrade struct {
	Price     float64 `json:"p"`
	Size      float64 `json:"s"`
	Timestamp string  `json:"t"`
}

// NewsArticle is the wire shape of one Alpaca news item.
type NewsArticle struct {
	Headline  string   `json:"headline"`
	Summary   string   `json:"summary"`
	CreatedAt string   `json:"created_at"`
	Symbols   []string `json:"symbols"`
}

func (c *Client) authHeaders(req *http.Request) {
	req.Header.Set("APCA-API-KEY-ID", c.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.apiSecret)
	req.Header.Set("Content-Type", "application/json")
}

func (c *Client) do(ctx context.Context, method, baseURL, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, coreerrors.New(coreerrors.KindTransport, "broker", "marshal request body", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reader)
	if err != nil {
		return nil, coreerrors.New(coreerrors.KindTransport, "broker", "build request", err)
	}
	c.authHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, coreerrors.New(coreerrors.KindTransport, "broker", fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, coreerrors.New(coreerrors.KindTransport, "broker", "read response body", err)
	}
	if resp.StatusCode >= 400 {
		return nil, coreerrors.New(coreerrors.KindTransport, "broker", fmt.Sprintf("%s %s returned %d: %s", method, path, resp.StatusCode, string(raw)), nil)
	}
	return raw, nil
}

func (c *Client) breaker(ctx context.Context, name string, fn func(ctx context.Context) (any, error)) (any, error) {
	return c.breakers.Execute(ctx, name, fn)
}

func joinSymbols(symbols []string) string {
	out := ""
	for i, s := range symbols {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

// GetBars fetches recent bars for symbol/timeframe from the market-data API.
func (c *Client) GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]Bar, error) {
	result, err := c.breaker(ctx, "broker.get_bars", func(ctx context.Context) (any, error) {
		path := fmt.Sprintf("/v2/stocks/%s/bars?timeframe=%s&limit=%d&adjustment=raw&feed=iex", symbol, timeframe, limit)
		raw, err := c.do(ctx, http.MethodGet, c.dataURL, path, nil)
		if err != nil {
			return nil, err
		}
		var parsed struct {
			Bars []Bar `json:"bars"`
		}
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return nil, coreerrors.New(coreerrors.KindParse, "broker", "parse bars response", err)
		}
		return parsed.Bars, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]Bar), nil
}

// GetDailyBarsFallback covers a primary-market-data-API outage for daily
// bars by pulling the free Stooq CSV endpoint, no API key required. It is
// not wrapped by the named-operation breaker factory since it is itself
// the fallback path, not an operation with an alternate implementation.
func (c *Client) GetDailyBarsFallback(ctx context.Context, symbol string) ([]Bar, error) {
	url := fmt.Sprintf("https://stooq.com/q/d/l/?s=%s.us&i=d", strings.ToLower(symbol))
	return c.getDailyBarsFallbackFrom(ctx, url)
}

// getDailyBarsFallbackFrom fetches and parses a Stooq-shaped daily-bars CSV
// from an arbitrary URL, split out of GetDailyBarsFallback so tests can
// point it at a local fixture server instead of the live Stooq endpoint.
func (c *Client) getDailyBarsFallbackFrom(ctx context.Context, url string) ([]Bar, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, coreerrors.New(coreerrors.KindTransport, "broker", "build fallback bars request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, coreerrors.New(coreerrors.KindTransport, "broker", "fetch fallback daily bars", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, coreerrors.New(coreerrors.KindTransport, "broker", fmt.Sprintf("fallback bars source returned %d", resp.StatusCode), nil)
	}

	rows, err := csv.NewReader(resp.Body).ReadAll()
	if err != nil {
		return nil, coreerrors.New(coreerrors.KindParse, "broker", "parse fallback bars CSV", err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	bars := make([]Bar, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) < 6 {
			continue
		}
		open, _ := strconv.ParseFloat(row[1], 64)
		high, _ := strconv.ParseFloat(row[2], 64)
		low, _ := strconv.ParseFloat(row[3], 64)
		close, _ := strconv.ParseFloat(row[4], 64)
		volume, _ := strconv.ParseFloat(row[5], 64)
		bars = append(bars, Bar{Timestamp: row[0] + "T00:00:00Z", Open: open, High: high, Low: low, Close: close, Volume: volume})
	}
	return bars, nil
}

// GetLatestTrade fetches the most recent executed trade print for symbol.
func (c *Client) GetLatestTrade(ctx context.Context, symbol string) (LatestTrade, error) {
	result, err := c.breaker(ctx, "broker.get_latest_trade", func(ctx context.Context) (any, error) {
		path := fmt.Sprintf("/v2/stocks/%s/trades/latest?feed=iex", symbol)
		raw, err := c.do(ctx, http.MethodGet, c.dataURL, path, nil)
		if err != nil {
			return nil, err
		}
		var parsed struct {
			Trade LatestTrade `json:"trade"`
		}
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return nil, coreerrors.New(coreerrors.KindParse, "broker", "parse latest trade response", err)
		}
		return parsed.Trade, nil
	})
	if err != nil {
		return LatestTrade{}, err
	}
	return result.(LatestTrade), nil
}

// GetNews fetches the most recent limit news articles for the given symbols,
// used as the analyst review's headline context.
func (c *Client) GetNews(ctx context.Context, symbols []string, limit int) ([]NewsArticle, error) {
	result, err := c.breaker(ctx, "broker.get_news", func(ctx context.Context) (any, error) {
		path := fmt.Sprintf("/v1beta1/news?symbols=%s&limit=%d", joinSymbols(symbols), limit)
		raw, err := c.do(ctx, http.MethodGet, c.dataURL, path, nil)
		if err != nil {
			return nil, err
		}
		var parsed struct {
			News []NewsArticle `json:"news"`
		}
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return nil, coreerrors.New(coreerrors.KindParse, "broker", "parse news response", err)
		}
		return parsed.News, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]NewsArticle), nil
}

// GetAccount fetches the trading account snapshot.
func (c *Client) GetAccount(ctx context.Context) (Account, error) {
	result, err := c.breaker(ctx, "broker.get_account", func(ctx context.Context) (any, error) {
		raw, err := c.do(ctx, http.MethodGet, c.baseURL, "/v2/account", nil)
		if err != nil {
			return nil, err
		}
		var acc Account
		if err := json.Unmarshal(raw, &acc); err != nil {
			return nil, coreerrors.New(coreerrors.KindParse, "broker", "parse account response", err)
		}
		return acc, nil
	})
	if err != nil {
		return Account{}, err
	}
	return result.(Account), nil
}

// GetPositions fetches all open positions.
func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	result, err := c.breaker(ctx, "broker.get_positions", func(ctx context.Context) (any, error) {
		raw, err := c.do(ctx, http.MethodGet, c.baseURL, "/v2/positions", nil)
		if err != nil {
			return nil, err
		}
		var pos []Position
		if err := json.Unmarshal(raw, &pos); err != nil {
			return nil, coreerrors.New(coreerrors.KindParse, "broker", "parse positions response", err)
		}
		return pos, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]Position), nil
}

// PlaceBracketOrder places an entry+stop-loss+take-profit bracket order.
func (c *Client) PlaceBracketOrder(ctx context.Context, req BracketOrderRequest) (OrderResponse, error) {
	result, err := c.breaker(ctx, "broker.post_bracket_order", func(ctx context.Context) (any, error) {
		payload := map[string]any{
			"symbol":        req.Symbol,
			"qty":           fmt.Sprintf("%d", req.Qty),
			"side":          req.Side,
			"type":          "limit",
			"limit_price":   req.LimitPrice.StringFixed(2),
			"time_in_force": "day",
			"order_class":   "bracket",
			"stop_loss":     map[string]string{"stop_price": req.StopPrice.StringFixed(2)},
			"take_profit":   map[string]string{"limit_price": req.TargetPrice.StringFixed(2)},
		}
		raw, err := c.do(ctx, http.MethodPost, c.baseURL, "/v2/orders", payload)
		if err != nil {
			return nil, err
		}
		var order OrderResponse
		if err := json.Unmarshal(raw, &order); err != nil {
			return nil, coreerrors.New(coreerrors.KindParse, "broker", "parse order response", err)
		}
		return order, nil
	})
	if err != nil {
		return OrderResponse{}, err
	}
	return result.(OrderResponse), nil
}

// CancelAllOrders cancels every open order and returns the cancelled count.
func (c *Client) CancelAllOrders(ctx context.Context) (int, error) {
	result, err := c.breaker(ctx, "broker.cancel_all_orders", func(ctx context.Context) (any, error) {
		raw, err := c.do(ctx, http.MethodDelete, c.baseURL, "/v2/orders", nil)
		if err != nil {
			return nil, err
		}
		var cancelled []json.RawMessage
		_ = json.Unmarshal(raw, &cancelled)
		return len(cancelled), nil
	})
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}

// CloseAllPositions closes every open position at market and returns the count.
func (c *Client) CloseAllPositions(ctx context.Context) (int, error) {
	result, err := c.breaker(ctx, "broker.close_all_positions", func(ctx context.Context) (any, error) {
		raw, err := c.do(ctx, http.MethodDelete, c.baseURL, "/v2/positions?cancel_orders=true", nil)
		if err != nil {
			return nil, err
		}
		var closed []json.RawMessage
		_ = json.Unmarshal(raw, &closed)
		return len(closed), nil
	})
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}
