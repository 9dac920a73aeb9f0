package util

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState is the state of a provider circuit.
type CircuitState string

const (
	CircuitStateClosed   CircuitState = "CLOSED"
	CircuitStateOpen     CircuitState = "OPEN"
	CircuitStateHalfOpen CircuitState = "HALF_OPEN"
)

func (s CircuitState) String() string {
	return string(s)
}

// HealthCheckFunction checks an upstream while its circuit is open.
type HealthCheckFunction func() bool

// CircuitBreaker guards calls to an external provider (LLM, scraping API).
// After failureThreshold consecutive failures the circuit opens and calls are
// refused until resetTimeout elapses or the optional health check passes.
type CircuitBreaker struct {
	name                string
	state               CircuitState
	failureCount        int
	failureThreshold    int
	resetTimeout        time.Duration
	openedUntil         time.Time
	nextHealthCheck     time.Time
	healthCheckInterval time.Duration
	checking            bool
	healthCheckFn       HealthCheckFunction
	now                 func() time.Time
	logger              *zap.Logger
	mu                  sync.Mutex
}

func NewCircuitBreaker(
	name string,
	failureThreshold int,
	resetTimeout time.Duration,
	healthCheckInterval time.Duration,
	healthCheckFn HealthCheckFunction,
	logger *zap.Logger,
) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 1
	}
	return &CircuitBreaker{
		name:                name,
		state:               CircuitStateClosed,
		failureThreshold:    failureThreshold,
		resetTimeout:        resetTimeout,
		healthCheckInterval: healthCheckInterval,
		healthCheckFn:       healthCheckFn,
		now:                 time.Now,
		logger:              logger.With(zap.String("circuit", name)),
	}
}

// State returns the current state, moving an expired OPEN circuit to HALF_OPEN.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitStateOpen {
		return cb.state
	}

	now := cb.now()
	switch {
	case cb.healthCheckFn != nil:
		if now.After(cb.nextHealthCheck) && !cb.checking {
			cb.checking = true
			go cb.runHealthCheck()
		}
	case now.After(cb.openedUntil):
		cb.transitionTo(CircuitStateHalfOpen)
	}

	return cb.state
}

func (cb *CircuitBreaker) CanExecute() bool {
	return cb.State() != CircuitStateOpen
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitStateHalfOpen {
		cb.transitionTo(CircuitStateClosed)
	}
	cb.failureCount = 0
}

// RecordFailure counts a failure. A positive customTimeout overrides the
// reset timeout, e.g. for rate-limit responses.
func (cb *CircuitBreaker) RecordFailure(customTimeout time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++

	timeout := cb.resetTimeout
	if customTimeout > 0 {
		timeout = customTimeout
	}

	cb.logger.Warn("Provider failure recorded",
		zap.Int("count", cb.failureCount),
		zap.Int("threshold", cb.failureThreshold),
	)

	if cb.state == CircuitStateHalfOpen || cb.failureCount >= cb.failureThreshold {
		cb.openedUntil = cb.now().Add(timeout)
		cb.nextHealthCheck = cb.now().Add(cb.healthCheckInterval)
		cb.transitionTo(CircuitStateOpen)
	}
}

func (cb *CircuitBreaker) runHealthCheck() {
	healthy := cb.healthCheckFn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.checking = false
	if healthy {
		cb.transitionTo(CircuitStateHalfOpen)
		return
	}
	cb.nextHealthCheck = cb.now().Add(cb.healthCheckInterval)
}

// must be called with mu held
func (cb *CircuitBreaker) transitionTo(next CircuitState) {
	prev := cb.state
	cb.state = next
	if next == CircuitStateClosed {
		cb.failureCount = 0
	}

	fields := []zap.Field{
		zap.String("from", prev.String()),
		zap.String("to", next.String()),
		zap.Int("failure_count", cb.failureCount),
	}
	if next == CircuitStateOpen {
		fields = append(fields, zap.Time("open_until", cb.openedUntil))
		cb.logger.Error("Circuit opened", fields...)
		return
	}
	cb.logger.Info("Circuit state transition", fields...)
}

func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = CircuitStateClosed
	cb.failureCount = 0
	cb.openedUntil = time.Time{}
}

type CircuitBreakerStatus struct {
	Name         string       `json:"name"`
	State        CircuitState `json:"state"`
	FailureCount int          `json:"failure_count"`
	OpenUntil    *time.Time   `json:"open_until,omitempty"`
}

func (cb *CircuitBreaker) Status() CircuitBreakerStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	status := CircuitBreakerStatus{
		Name:         cb.name,
		State:        cb.state,
		FailureCount: cb.failureCount,
	}
	if cb.state == CircuitStateOpen {
		until := cb.openedUntil
		status.OpenUntil = &until
	}
	return status
}
