package portfolio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/auroratrading/core/internal/broker"
	"github.com/auroratrading/core/internal/domain"
	"github.com/auroratrading/core/internal/resilience"
)

type fakeStore struct {
	inserted   []domain.PortfolioSnapshot
	before     *domain.PortfolioSnapshot
	maxEquity  decimal.Decimal
}

func (f *fakeStore) InsertPortfolioSnapshot(p domain.PortfolioSnapshot) error {
	f.inserted = append(f.inserted, p)
	return nil
}
func (f *fakeStore) LatestPortfolioSnapshot() (*domain.PortfolioSnapshot, error) { return nil, nil }
func (f *fakeStore) PortfolioSnapshotBefore(time.Time) (*domain.PortfolioSnapshot, error) {
	return f.before, nil
}
func (f *fakeStore) MaxHistoricalEquity() (decimal.Decimal, error) { return f.maxEquity, nil }

func newTestBroker() *broker.Client {
	breakers := resilience.NewFactory(zap.NewNop())
	return broker.New("https://paper-api.alpaca.markets", "https://data.alpaca.markets", "key", "secret", time.Second, breakers)
}

func TestSnapshot_DrawdownClampedToZeroWhenAboveOldPeak(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/account":
			w.Write([]byte(`{"equity":"100000","cash":"100000","portfolio_value":"100000"}`))
		case "/v2/positions":
			w.Write([]byte(`[]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	store := &fakeStore{maxEquity: decimal.NewFromInt(90000)}
	brokerClient := broker.New(srv.URL, srv.URL, "key", "secret", time.Second, resilience.NewFactory(zap.NewNop()))
	tracker := New(brokerClient, store, zap.NewNop())

	// Equity exceeds the recorded peak, so peak becomes equity and drawdown
	// must be zero, not negative.
	snap, err := tracker.Snapshot(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, float64(0), snap.CurrentDrawdownPct)
	assert.True(t, snap.PeakEquity.Equal(decimal.NewFromInt(100000)))
}

func TestDeltaAgainst_NoPriorSnapshotReturnsZero(t *testing.T) {
	store := &fakeStore{before: nil}
	pnl, pct := deltaAgainst(store, time.Now().Add(-24*time.Hour), decimal.NewFromInt(100000))
	assert.True(t, pnl.IsZero())
	assert.Equal(t, float64(0), pct)
}

func TestDeltaAgainst_ComputesPercentChange(t *testing.T) {
	store := &fakeStore{before: &domain.PortfolioSnapshot{TotalEquity: decimal.NewFromInt(100000)}}
	pnl, pct := deltaAgainst(store, time.Now().Add(-24*time.Hour), decimal.NewFromInt(110000))
	assert.True(t, pnl.Equal(decimal.NewFromInt(10000)))
	assert.InDelta(t, 10.0, pct, 0.001)
}

func TestParseDecimal_InvalidInputReturnsZero(t *testing.T) {
	require.True(t, parseDecimal("not-a-number").IsZero())
}
