package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestIncSignal_IncrementsLabeledCounter(t *testing.T) {
	before := testutil.ToFloat64(SignalsTotal.WithLabelValues("BUY", "v1"))
	IncSignal("BUY", "v1")
	after := testutil.ToFloat64(SignalsTotal.WithLabelValues("BUY", "v1"))
	assert.Equal(t, before+1, after)
}

func TestSetCircuitBreakerLevel_UnknownNameIsNoop(t *testing.T) {
	before := testutil.ToFloat64(CircuitBreakerLevel)
	SetCircuitBreakerLevel("NOT_A_LEVEL")
	assert.Equal(t, before, testutil.ToFloat64(CircuitBreakerLevel))
}

func TestSetCircuitBreakerLevel_KnownLevelSetsOrdinal(t *testing.T) {
	SetCircuitBreakerLevel("RED")
	assert.Equal(t, float64(3), testutil.ToFloat64(CircuitBreakerLevel))
	SetCircuitBreakerLevel("NONE")
	assert.Equal(t, float64(0), testutil.ToFloat64(CircuitBreakerLevel))
}
