package resource

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Breaker.Allow while the marketplace is
// considered unavailable.
var ErrCircuitOpen = errors.New("resource: circuit breaker is open")

// BreakerState is the state of a Breaker. The numeric values are exported
// as the circuit breaker gauge.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerHalfOpen
	BreakerOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerHalfOpen:
		return "half-open"
	case BreakerOpen:
		return "open"
	default:
		return "unknown"
	}
}

// minRateSamples is the number of calls a window needs before its error
// rate can trip the breaker.
const minRateSamples = 10

// rateWindow is a tumbling window of call outcomes.
type rateWindow struct {
	span     time.Duration
	started  time.Time
	total    int
	failures int
}

func (w *rateWindow) roll(now time.Time) {
	if w.span > 0 && now.Sub(w.started) > w.span {
		w.reset(now)
	}
}

func (w *rateWindow) reset(now time.Time) {
	w.started = now
	w.total = 0
	w.failures = 0
}

func (w *rateWindow) add(now time.Time, failed bool) {
	if w.span <= 0 {
		return
	}
	w.roll(now)
	w.total++
	if failed {
		w.failures++
	}
}

func (w *rateWindow) rate() float64 {
	if w.total == 0 {
		return 0
	}
	return float64(w.failures) / float64(w.total)
}

// Breaker guards calls to the marketplace API. It opens after a run of
// consecutive failures or when the failure rate inside the window reaches
// the threshold, and closes again after enough successful probes.
// Safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time

	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	rateThreshold    float64
	window           rateWindow

	now      func() time.Time
	onChange func(BreakerState)
}

// NewBreaker creates a Breaker. Zero or negative thresholds fall back to
// 5 consecutive failures, 2 probe successes and a 30s cooldown. A zero
// rateThreshold or rateWindow disables rate-based tripping.
func NewBreaker(failureThreshold, successThreshold int, cooldown time.Duration,
	rateThreshold float64, rateWindow time.Duration) *Breaker {
	if failureThreshold < 1 {
		failureThreshold = 5
	}
	if successThreshold < 1 {
		successThreshold = 2
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	b := &Breaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		cooldown:         cooldown,
		rateThreshold:    rateThreshold,
		now:              time.Now,
	}
	b.window.span = rateWindow
	b.window.started = b.now()
	return b
}

// OnStateChange registers fn to be called, with the lock held, whenever
// the state changes. fn must not call back into the breaker.
func (b *Breaker) OnStateChange(fn func(BreakerState)) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

// Allow returns ErrCircuitOpen when calls must not be attempted.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeHalfOpen()
	if b.state == BreakerOpen {
		return ErrCircuitOpen
	}
	return nil
}

// RecordSuccess reports a call that reached the marketplace and was not a
// server error.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failures = 0
		b.window.add(b.now(), false)
	case BreakerHalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			b.failures = 0
			b.successes = 0
			b.window.reset(b.now())
			b.transition(BreakerClosed)
		}
	}
}

// RecordFailure reports a transport error or a 5xx answer.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case BreakerClosed:
		b.failures++
		b.window.add(now, true)
		if b.failures >= b.failureThreshold || b.rateExceeded() {
			b.openedAt = now
			b.window.reset(now)
			b.transition(BreakerOpen)
		}
	case BreakerHalfOpen:
		b.successes = 0
		b.openedAt = now
		b.transition(BreakerOpen)
	}
}

// State returns the current state, moving Open to HalfOpen once the
// cooldown has elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// ErrorRate returns the failure rate and sample count of the current window.
func (b *Breaker) ErrorRate() (float64, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.window.roll(b.now())
	return b.window.rate(), b.window.total
}

func (b *Breaker) maybeHalfOpen() {
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) > b.cooldown {
		b.successes = 0
		b.transition(BreakerHalfOpen)
	}
}

func (b *Breaker) rateExceeded() bool {
	if b.rateThreshold <= 0 || b.window.span <= 0 || b.window.total < minRateSamples {
		return false
	}
	return b.window.rate() >= b.rateThreshold
}

func (b *Breaker) transition(to BreakerState) {
	if b.state == to {
		return
	}
	b.state = to
	if b.onChange != nil {
		b.onChange(to)
	}
}
