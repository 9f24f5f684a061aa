package broker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/auroratrading/core/internal/resilience"
)

func TestJoinSymbols(t *testing.T) {
	assert.Equal(t, "", joinSymbols(nil))
	assert.Equal(t, "AAPL", joinSymbols([]string{"AAPL"}))
	assert.Equal(t, "AAPL,MSFT,SPY", joinSymbols([]string{"AAPL", "MSFT", "SPY"}))
}

func TestGetDailyBarsFallback_ParsesStooqCSV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Date,Open,High,Low,Close,Volume\n2026-07-28,100.00,102.50,99.00,101.25,1000000\n"))
	}))
	defer srv.Close()

	client := New(srv.URL, srv.URL, "key", "secret", time.Second, resilience.NewFactory(zap.NewNop()))
	client.httpClient = srv.Client()

	bars, err := client.getDailyBarsFallbackFrom(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, "2026-07-28T00:00:00Z", bars[0].Timestamp)
	assert.Equal(t, 100.00, bars[0].Open)
	assert.Equal(t, 101.25, bars[0].Close)
	assert.Equal(t, 1000000.0, bars[0].Volume)
}

func TestGetDailyBarsFallback_EmptyBodyReturnsNoBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Date,Open,High,Low,Close,Volume\n"))
	}))
	defer srv.Close()

	client := New(srv.URL, srv.URL, "key", "secret", time.Second, resilience.NewFactory(zap.NewNop()))
	client.httpClient = srv.Client()

	bars, err := client.getDailyBarsFallbackFrom(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Empty(t, bars)
}
