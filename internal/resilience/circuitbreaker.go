// Package resilience guards provider calls with circuit breakers and ordered
// failover.
//
// A [CircuitBreaker] stops hammering a backend that keeps failing. A
// [FallbackGroup] chains a primary backend with alternates, each behind its own
// breaker, and the LLM, STT and TTS wrappers expose such a group through the
// ordinary provider interfaces so the session never knows failover happened.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker is
// rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker defaults.
const (
	DefaultMaxFailures  = 5
	DefaultResetTimeout = 30 * time.Second
	DefaultHalfOpenMax  = 3
)

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until ResetTimeout has
	// passed since the last failure.
	StateOpen

	// StateHalfOpen lets up to HalfOpenMax probe calls through. All of them
	// succeeding closes the breaker; any failure re-opens it.
	StateHalfOpen
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero fields take the package
// defaults.
type CircuitBreakerConfig struct {
	// Name labels log lines and OnStateChange callbacks, usually the provider
	// name ("groq", "piper").
	Name string

	// MaxFailures is how many consecutive failures open a closed breaker.
	MaxFailures int

	// ResetTimeout is how long an open breaker waits before probing.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of probe calls admitted in the half-open state.
	HalfOpenMax int

	// OnStateChange, if set, is called after every transition. It runs with
	// the breaker's lock released and must not block.
	OnStateChange func(name string, from, to State)

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// CircuitBreaker is a closed / open / half-open breaker.
type CircuitBreaker struct {
	name          string
	maxFailures   int
	resetTimeout  time.Duration
	halfOpenMax   int
	onStateChange func(name string, from, to State)
	now           func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probes    int
	probeWins int
}

// NewCircuitBreaker returns a closed breaker configured by cfg.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = DefaultHalfOpenMax
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		resetTimeout:  cfg.ResetTimeout,
		halfOpenMax:   cfg.HalfOpenMax,
		onStateChange: cfg.OnStateChange,
		now:           cfg.Now,
		state:         StateClosed,
	}
}

// Name returns the label the breaker was created with.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute calls fn unless the breaker is rejecting calls, in which case it
// returns [ErrCircuitOpen] without calling fn. The outcome of fn drives the
// state machine and its error is returned unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, ok, change := cb.admit()
	cb.notify(change)
	if !ok {
		return ErrCircuitOpen
	}

	err := fn()

	cb.mu.Lock()
	if err != nil {
		change = cb.failed(probe)
	} else {
		change = cb.succeeded(probe)
	}
	cb.mu.Unlock()
	cb.notify(change)
	return err
}

type transition struct {
	from, to State
}

// admit decides whether a call may proceed and whether it counts as a
// half-open probe.
func (cb *CircuitBreaker) admit() (probe, ok bool, change *transition) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return false, false, nil
		}
		change = cb.moveTo(StateHalfOpen)
		cb.probes, cb.probeWins = 0, 0
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.halfOpenMax {
			return false, false, change
		}
		cb.probes++
		return true, true, change
	}
	return false, true, change
}

// failed records a failure. cb.mu must be held.
func (cb *CircuitBreaker) failed(probe bool) *transition {
	if probe {
		cb.openedAt = cb.now()
		cb.failures = cb.maxFailures
		return cb.moveTo(StateOpen)
	}
	if cb.state != StateClosed {
		return nil
	}
	cb.failures++
	if cb.failures < cb.maxFailures {
		return nil
	}
	cb.openedAt = cb.now()
	return cb.moveTo(StateOpen)
}

// succeeded records a success. cb.mu must be held.
func (cb *CircuitBreaker) succeeded(probe bool) *transition {
	if !probe {
		if cb.state == StateClosed {
			cb.failures = 0
		}
		return nil
	}
	if cb.state != StateHalfOpen {
		return nil
	}
	cb.probeWins++
	if cb.probeWins < cb.halfOpenMax {
		return nil
	}
	cb.failures, cb.probes, cb.probeWins = 0, 0, 0
	return cb.moveTo(StateClosed)
}

// moveTo switches state and logs. cb.mu must be held.
func (cb *CircuitBreaker) moveTo(to State) *transition {
	from := cb.state
	if from == to {
		return nil
	}
	cb.state = to
	if to == StateOpen {
		slog.Warn("circuit breaker opened", "name", cb.name, "from", from.String(), "failures", cb.failures)
	} else {
		slog.Info("circuit breaker state changed", "name", cb.name, "from", from.String(), "to", to.String())
	}
	return &transition{from: from, to: to}
}

func (cb *CircuitBreaker) notify(t *transition) {
	if t != nil && cb.onStateChange != nil {
		cb.onStateChange(cb.name, t.from, t.to)
	}
}

// State reports the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// Execute.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	change := cb.moveTo(StateClosed)
	cb.failures, cb.probes, cb.probeWins = 0, 0, 0
	cb.mu.Unlock()
	cb.notify(change)
}
