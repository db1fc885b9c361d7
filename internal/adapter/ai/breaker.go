package ai

import (
	"log/slog"
	"sync"
	"time"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// circuitBreaker guards the chat-completions endpoint. After
// failureThreshold consecutive failed calls the circuit opens and requests
// fail fast; once recoveryTimeout passes a single probe is let through and
// its outcome closes or re-opens the circuit.
type circuitBreaker struct {
	mu               sync.Mutex
	model            string
	failureThreshold int
	recoveryTimeout  time.Duration
	state            breakerState
	failureCount     int
	lastFailureTime  time.Time
	now              func() time.Time
}

func newCircuitBreaker(model string) *circuitBreaker {
	return &circuitBreaker{
		model:            model,
		failureThreshold: 3,
		recoveryTimeout:  30 * time.Second,
		state:            breakerClosed,
		now:              time.Now,
	}
}

// shouldAttempt reports whether a request may go out. When the circuit is
// open and the recovery timeout has passed it transitions to half-open and
// admits the caller as the probe.
func (cb *circuitBreaker) shouldAttempt() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case breakerClosed, breakerHalfOpen:
		return true
	case breakerOpen:
		if cb.now().Sub(cb.lastFailureTime) > cb.recoveryTimeout {
			cb.state = breakerHalfOpen
			slog.Info("ai circuit breaker probing recovery", slog.String("model", cb.model))
			return true
		}
		return false
	default:
		return false
	}
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	if cb.state != breakerClosed {
		slog.Info("ai circuit breaker closed",
			slog.String("model", cb.model),
			slog.String("from", cb.state.String()))
	}
	cb.state = breakerClosed
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = cb.now()

	if cb.state == breakerHalfOpen || cb.failureCount >= cb.failureThreshold {
		if cb.state != breakerOpen {
			slog.Warn("ai circuit breaker opened",
				slog.String("model", cb.model),
				slog.Int("failure_count", cb.failureCount),
				slog.Int("threshold", cb.failureThreshold))
		}
		cb.state = breakerOpen
	}
}
