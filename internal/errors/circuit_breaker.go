package errors

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Breaker defaults.
const (
	ErrorThreshold      = 0.5
	MinRequests         = 10
	TimeoutDuration     = 30 * time.Second
	CountInterval       = time.Minute
	HalfOpenMaxRequests = 3
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// ErrCircuitOpen is returned without calling fn while the breaker rejects
// calls, including half-open calls beyond the probe budget.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type BreakerOption func(*CircuitBreaker)

// WithMinRequests sets how many calls are observed before the error rate can trip the breaker.
func WithMinRequests(n int) BreakerOption {
	return func(cb *CircuitBreaker) {
		if n > 0 {
			cb.minRequests = n
		}
	}
}

// WithOpenTimeout sets how long the breaker stays open before probing again.
func WithOpenTimeout(d time.Duration) BreakerOption {
	return func(cb *CircuitBreaker) {
		if d > 0 {
			cb.openTimeout = d
		}
	}
}

// WithInterval sets how often the closed-state counters start over, so old
// failures stop weighing on the error rate.
func WithInterval(d time.Duration) BreakerOption {
	return func(cb *CircuitBreaker) {
		if d > 0 {
			cb.interval = d
		}
	}
}

// window counts outcomes since the last state change or interval reset.
type window struct {
	calls, failures, successes int
}

func (w window) errorRate() float64 {
	if w.calls == 0 {
		return 0
	}
	return float64(w.failures) / float64(w.calls)
}

// CircuitBreaker trips open once the error rate over at least minRequests
// calls reaches ErrorThreshold. After openTimeout it lets HalfOpenMaxRequests
// probes through: one failure reopens it, that many successes close it.
type CircuitBreaker struct {
	minRequests int
	openTimeout time.Duration
	interval    time.Duration
	now         func() time.Time

	mu          sync.Mutex
	state       State
	openedAt    time.Time
	countsSince time.Time
	counts      window
	probes      int
}

func NewCircuitBreaker(opts ...BreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		minRequests: MinRequests,
		openTimeout: TimeoutDuration,
		interval:    CountInterval,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}
	cb.countsSince = cb.now()
	return cb
}

// Call runs fn when the breaker admits it and records the outcome.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if fn == nil {
		return nil
	}
	if !cb.admit() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.record(outcomeOf(err))
	return err
}

// CallContext is Call for work bound to ctx. When ctx has ended by the time
// fn returns, the call is not counted: a caller giving up says nothing about
// the health of the dependency.
func (cb *CircuitBreaker) CallContext(ctx context.Context, fn func() error) error {
	if fn == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !cb.admit() {
		return ErrCircuitOpen
	}
	err := fn()
	if ctx.Err() != nil {
		cb.record(outcomeIgnored)
		return err
	}
	cb.record(outcomeOf(err))
	return err
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeIgnored
)

func outcomeOf(err error) outcome {
	if err != nil {
		return outcomeFailure
	}
	return outcomeSuccess
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) admit() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.openTimeout {
			return false
		}
		cb.moveTo(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= HalfOpenMaxRequests {
			return false
		}
		cb.probes++
	}
	return true
}

func (cb *CircuitBreaker) record(o outcome) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen && cb.probes > 0 {
		cb.probes--
	}
	if o == outcomeIgnored {
		return
	}

	if cb.state == StateClosed && cb.now().Sub(cb.countsSince) >= cb.interval {
		cb.counts = window{}
		cb.countsSince = cb.now()
	}

	cb.counts.calls++
	if o == outcomeFailure {
		cb.counts.failures++
	} else {
		cb.counts.successes++
	}

	switch cb.state {
	case StateHalfOpen:
		if o == outcomeFailure {
			cb.moveTo(StateOpen)
		} else if cb.counts.successes >= HalfOpenMaxRequests {
			cb.moveTo(StateClosed)
		}
	case StateClosed:
		if cb.counts.calls >= cb.minRequests && cb.counts.errorRate() >= ErrorThreshold {
			cb.moveTo(StateOpen)
		}
	}
}

func (cb *CircuitBreaker) moveTo(s State) {
	cb.state = s
	cb.counts = window{}
	cb.probes = 0
	cb.countsSince = cb.now()
	if s == StateOpen {
		cb.openedAt = cb.now()
	}
}
