// Package resilience wraps outbound broker HTTP calls with per-operation
// circuit breakers (the analyst's LLM calls are not wrapped), adapted from the teacher's
// internal/architecture/fx/resilience/circuit_breaker.go
// CircuitBreakerFactory. The fx-injected constructor is dropped (this
// module doesn't use fx) but the factory shape, default trip settings, and
// metrics recording are kept as-is, generalized to plain constructor args.
//
// This is deliberately the only place gobreaker appears: the domain-level
// NONE/YELLOW/ORANGE/RED circuit breaker in internal/risk trips on
// portfolio-loss percentages, a trigger model gobreaker's failure-ratio
// ReadyToTrip doesn't express — see DESIGN.md.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Factory creates and reuses one gobreaker.CircuitBreaker per named
// operation (e.g. "broker.get_bars", "broker.post_bracket_order",
// "broker.get_account").
type Factory struct {
	logger   *zap.Logger
	breakers map[string]*gobreaker.CircuitBreaker
	mu       sync.RWMutex
	metrics  *Metrics
}

// NewFactory builds a Factory. logger may be nil.
func NewFactory(logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		metrics:  NewMetrics(),
	}
}

func (f *Factory) defaultSettings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			f.logger.Warn("circuit breaker state changed",
				zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
			f.metrics.RecordStateChange(name, from.String(), to.String())
		},
	}
}

func (f *Factory) get(name string) *gobreaker.CircuitBreaker {
	f.mu.RLock()
	cb, ok := f.breakers[name]
	f.mu.RUnlock()
	if ok {
		return cb
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if cb, ok = f.breakers[name]; ok {
		return cb
	}
	cb = gobreaker.NewCircuitBreaker(f.defaultSettings(name))
	f.breakers[name] = cb
	return cb
}

// Execute runs fn under the named breaker with context, recording metrics.
func (f *Factory) Execute(ctx context.Context, name string, fn func(ctx context.Context) (any, error)) (any, error) {
	cb := f.get(name)
	start := time.Now()
	result, err := cb.Execute(func() (any, error) { return fn(ctx) })
	f.metrics.RecordExecution(name, err == nil, time.Since(start))
	return result, err
}

// State returns the current breaker state for a named operation.
func (f *Factory) State(name string) gobreaker.State {
	f.mu.RLock()
	cb, ok := f.breakers[name]
	f.mu.RUnlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}

// Metrics returns the factory's shared metrics collector.
func (f *Factory) Metrics() *Metrics { return f.metrics }

// Metrics collects lightweight in-memory execution counters per operation,
// mirroring the teacher's CircuitBreakerMetrics (trimmed to what this
// module actually reads — Prometheus, via internal/metrics, is the
// system of record for dashboards).
type Metrics struct {
	mu           sync.RWMutex
	executions   map[string]int64
	successes    map[string]int64
	failures     map[string]int64
	stateChanges map[string]map[string]map[string]int64
}

func NewMetrics() *Metrics {
	return &Metrics{
		executions:   make(map[string]int64),
		successes:    make(map[string]int64),
		failures:     make(map[string]int64),
		stateChanges: make(map[string]map[string]map[string]int64),
	}
}

func (m *Metrics) RecordExecution(name string, success bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions[name]++
	if success {
		m.successes[name]++
	} else {
		m.failures[name]++
	}
}

func (m *Metrics) RecordStateChange(name, from, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stateChanges[name]; !ok {
		m.stateChanges[name] = make(map[string]map[string]int64)
	}
	if _, ok := m.stateChanges[name][from]; !ok {
		m.stateChanges[name][from] = make(map[string]int64)
	}
	m.stateChanges[name][from][to]++
}

func (m *Metrics) FailureCount(name string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failures[name]
}
