package broker

import "context"

// VIXAdapter satisfies internal/orchestrator's VIXSource interface using
// the latest trade print of a configured volatility-tracking symbol (e.g.
// the VIXY ETN) as a live stand-in for a direct VIX index feed. Per
// spec.md §9, a direct feed is preferred when configured; the realized-
// volatility proxy in internal/orchestrator/market.go remains the default
// when this returns ok=false.
type VIXAdapter struct {
	client *Client
	symbol string
}

// NewVIXAdapter builds a VIXAdapter reading the latest trade of symbol
// (e.g. "VIXY"). An empty symbol disables the adapter (ok=false always).
func NewVIXAdapter(client *Client, symbol string) *VIXAdapter {
	return &VIXAdapter{client: client, symbol: symbol}
}

// GetVIX returns the latest trade price of the configured symbol.
func (a *VIXAdapter) GetVIX(ctx context.Context) (float64, bool, error) {
	if a.symbol == "" {
		return 0, false, nil
	}
	trade, err := a.client.GetLatestTrade(ctx, a.symbol)
	if err != nil {
		return 0, false, err
	}
	if trade.Price <= 0 {
		return 0, false, nil
	}
	return trade.Price, true, nil
}
