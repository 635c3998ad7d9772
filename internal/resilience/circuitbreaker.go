// Package resilience protects the analysis pipeline from failing external
// collaborators.
//
// [CircuitBreaker] is a three-state breaker (closed, open, half-open) that
// stops calling a backend after repeated failures. [FallbackGroup] tries
// several backends of the same kind in order, each behind its own breaker;
// [ASRFallback] and [FeaturesFallback] apply it to the two collaborator
// interfaces.
//
// Errors the caller caused (malformed input, a cancelled context) never
// count against a backend.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/tartil/pkg/types"
)

// ErrCircuitOpen is returned without calling the backend while its breaker
// is open or its half-open probes are all in flight.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker defaults applied to zero config fields.
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
	// StateOpen rejects calls until the reset timeout has passed.
	StateOpen
	// StateHalfOpen lets a few probe calls through. One failed probe
	// re-opens the breaker; HalfOpenMax successful probes close it.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// IsCallerError reports whether err was caused by the caller rather than the
// backend: malformed input or a cancelled or expired context.
func IsCallerError(err error) bool {
	return errors.Is(err, types.ErrInput) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero fields take the
// Default* values.
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs, metrics and readiness output.
	Name string

	// MaxFailures is the run of consecutive failures that opens the breaker.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of concurrent probes, and the number of
	// successful ones needed to close again.
	HalfOpenMax int

	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(name string, from, to State)

	// Logger receives transition messages. Defaults to slog.Default().
	Logger *slog.Logger

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// CircuitBreaker guards one collaborator backend.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    State
	gen      uint64 // incremented by every transition
	failures int
	openedAt time.Time
	probes   int // probes admitted in the current half-open phase
	probeOK  int
}

// ticket is handed out when a call is admitted and settles its outcome.
// Outcomes from an earlier generation are dropped: the state they would
// count against has already been left.
type ticket struct {
	gen   uint64
	probe bool
}

// NewCircuitBreaker returns a closed breaker.
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
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Name returns the configured label.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Do calls fn when the breaker admits it and records the outcome. A
// context that is already done is returned without calling fn. Errors for
// which [IsCallerError] holds leave the breaker untouched.
func (cb *CircuitBreaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	cb.settle(t, err)
	return err
}

func (cb *CircuitBreaker) admit() (ticket, error) {
	var hook func()
	cb.mu.Lock()
	defer func() {
		cb.mu.Unlock()
		run(hook)
	}()

	switch cb.state {
	case StateOpen:
		if cb.cfg.Now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return ticket{}, ErrCircuitOpen
		}
		hook = cb.moveTo(StateHalfOpen)
	case StateHalfOpen:
		if cb.probes >= cb.cfg.HalfOpenMax {
			return ticket{}, ErrCircuitOpen
		}
	}
	t := ticket{gen: cb.gen, probe: cb.state == StateHalfOpen}
	if t.probe {
		cb.probes++
	}
	return t, nil
}

func (cb *CircuitBreaker) settle(t ticket, err error) {
	var hook func()
	cb.mu.Lock()
	defer func() {
		cb.mu.Unlock()
		run(hook)
	}()

	if t.gen != cb.gen {
		return
	}
	switch {
	case IsCallerError(err):
		if t.probe {
			cb.probes--
		}
	case err != nil:
		cb.failures++
		if t.probe || cb.failures >= cb.cfg.MaxFailures {
			hook = cb.moveTo(StateOpen)
		}
	case t.probe:
		cb.probeOK++
		if cb.probeOK >= cb.cfg.HalfOpenMax {
			hook = cb.moveTo(StateClosed)
		}
	default:
		cb.failures = 0
	}
}

// moveTo changes the state and returns the OnStateChange call to run after
// unlocking. cb.mu must be held.
func (cb *CircuitBreaker) moveTo(to State) func() {
	from := cb.state
	if from == to {
		return nil
	}
	cb.state = to
	cb.gen++
	cb.probes, cb.probeOK = 0, 0
	level := slog.LevelInfo
	switch to {
	case StateOpen:
		cb.openedAt = cb.cfg.Now()
		level = slog.LevelWarn
	case StateClosed:
		cb.failures = 0
	}
	cb.cfg.Logger.Log(context.Background(), level, "circuit breaker state changed",
		"breaker", cb.cfg.Name, "from", from.String(), "to", to.String(), "failures", cb.failures)

	if cb.cfg.OnStateChange == nil {
		return nil
	}
	hook, name := cb.cfg.OnStateChange, cb.cfg.Name
	return func() { hook(name, from, to) }
}

func run(f func()) {
	if f != nil {
		f()
	}
}

// State returns the current state. An open breaker whose reset timeout
// has passed reports [StateHalfOpen]; it moves there on the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Failures returns the current run of consecutive failures.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset closes the breaker and clears its failure count.
func (cb *CircuitBreaker) Reset() {
	var hook func()
	cb.mu.Lock()
	defer func() {
		cb.mu.Unlock()
		run(hook)
	}()
	cb.failures = 0
	hook = cb.moveTo(StateClosed)
}
