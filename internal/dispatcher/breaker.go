package dispatcher

import (
	"sync"
	"time"

	"github.com/kart-io/predictive-scheduler/core"
)

// Breaker is the dispatcher-owned predictor circuit breaker. It is
// mutated only on the dispatcher's loop; no external mutation is
// supported, matching the dispatcher's single-owner concurrency model.
//
// Half-open policy: a pure short-circuit (skip the predictor entirely
// while open, until an external trigger forces an attempt) can never
// self-heal under steady-state predictor failure, since every call while
// open would skip the predictor. Instead, every probeEvery-th call while
// open is allowed through to the predictor as a probe; a successful probe
// closes the breaker immediately, same as any other success.
type Breaker struct {
	mu sync.Mutex

	threshold  int
	probeEvery int

	consecutiveFailures int
	lastFailure         time.Time
	open                bool
	callsSinceOpen      int
}

// NewBreaker returns a closed breaker that opens after threshold
// consecutive predictor failures and probes once every probeEvery calls
// while open.
func NewBreaker(threshold, probeEvery int) *Breaker {
	if probeEvery <= 0 {
		probeEvery = 10
	}
	return &Breaker{threshold: threshold, probeEvery: probeEvery}
}

// ShouldAttemptPredictor reports whether this call should invoke the
// predictor: always when closed, or on every probeEvery-th call when
// open.
func (b *Breaker) ShouldAttemptPredictor() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return true
	}
	b.callsSinceOpen++
	return b.callsSinceOpen%b.probeEvery == 0
}

// RecordSuccess resets the breaker to closed, as any successful
// prediction does.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	b.lastFailure = time.Time{}
	b.open = false
	b.callsSinceOpen = 0
}

// RecordFailure increments the consecutive-failure count and opens the
// breaker once it reaches the threshold.
func (b *Breaker) RecordFailure(at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures++
	b.lastFailure = at
	if b.consecutiveFailures >= b.threshold {
		b.open = true
	}
}

// State returns a snapshot of the breaker's state.
func (b *Breaker) State() core.CircuitBreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return core.CircuitBreakerState{
		ConsecutiveFailures: b.consecutiveFailures,
		LastFailure:         b.lastFailure,
		Open:                b.open,
	}
}

// Open reports whether the breaker is currently open.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}
