package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExecute_ReturnsResultOnSuccess(t *testing.T) {
	f := NewFactory(zap.NewNop())
	result, err := f.Execute(context.Background(), "broker.get_bars", func(context.Context) (any, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestExecute_PropagatesError(t *testing.T) {
	f := NewFactory(zap.NewNop())
	boom := errors.New("boom")
	_, err := f.Execute(context.Background(), "broker.post_bracket_order", func(context.Context) (any, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestExecute_ReusesBreakerPerOperationName(t *testing.T) {
	f := NewFactory(zap.NewNop())
	_, _ = f.Execute(context.Background(), "analyst.review_signal", func(context.Context) (any, error) { return nil, nil })
	first := f.get("analyst.review_signal")
	_, _ = f.Execute(context.Background(), "analyst.review_signal", func(context.Context) (any, error) { return nil, nil })
	second := f.get("analyst.review_signal")
	assert.Same(t, first, second)
}

func TestState_UnknownOperationIsClosed(t *testing.T) {
	f := NewFactory(zap.NewNop())
	assert.Equal(t, gobreaker.StateClosed, f.State("never.called"))
}

func TestState_TripsOpenAfterRepeatedFailures(t *testing.T) {
	f := NewFactory(zap.NewNop())
	boom := errors.New("boom")
	for i := 0; i < 10; i++ {
		_, _ = f.Execute(context.Background(), "broker.get_bars", func(context.Context) (any, error) {
			return nil, boom
		})
	}
	assert.Equal(t, gobreaker.StateOpen, f.State("broker.get_bars"))
}

func TestMetrics_RecordsSuccessAndFailureCounts(t *testing.T) {
	f := NewFactory(zap.NewNop())
	_, _ = f.Execute(context.Background(), "op", func(context.Context) (any, error) { return nil, nil })
	_, _ = f.Execute(context.Background(), "op", func(context.Context) (any, error) { return nil, errors.New("x") })

	assert.Equal(t, int64(1), f.Metrics().FailureCount("op"))
}

func TestNewFactory_NilLoggerDoesNotPanic(t *testing.T) {
	f := NewFactory(nil)
	_, err := f.Execute(context.Background(), "op", func(context.Context) (any, error) { return "ok", nil })
	assert.NoError(t, err)
}
