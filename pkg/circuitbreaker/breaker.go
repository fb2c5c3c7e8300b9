// Package circuitbreaker stops calls to an upstream service after repeated
// failures and lets a few probe calls through once a cool-down has passed.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

var stateNames = map[State]string{
	StateClosed:   "closed",
	StateHalfOpen: "half-open",
	StateOpen:     "open",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Config tunes a CircuitBreaker. Zero values mean 5 consecutive failures to
// open, a 60s cool-down, one probe at a time while half-open and 2 probe
// successes to close.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
	HalfOpenProbes   int

	// IsFailure decides which errors count against the upstream. By
	// default every error except context.Canceled does.
	IsFailure     func(err error) bool
	OnStateChange func(name string, from, to State)
	Logger        *zap.Logger

	now func() time.Time
}

// Snapshot is a point-in-time view of the breaker.
type Snapshot struct {
	State                State
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	Rejected             int
	OpenedAt             time.Time
}

type CircuitBreaker struct {
	name string
	cfg  Config

	mu       sync.Mutex
	stats    Snapshot
	inFlight int
}

func NewCircuitBreaker(name string, cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 60 * time.Second
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return !errors.Is(err, context.Canceled) }
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}

	return &CircuitBreaker{name: name, cfg: cfg}
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Execute runs fn unless the breaker rejects the call. A call whose context
// is already done never reaches fn and is not recorded.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	probe, err := cb.admit()
	if err != nil {
		return err
	}

	completed := false
	defer func() {
		if !completed {
			cb.record(probe, false)
		}
	}()

	err = fn()
	completed = true
	cb.record(probe, err == nil || !cb.cfg.IsFailure(err))
	return err
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.coolDown()
	return cb.stats.State
}

func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.coolDown()
	return cb.stats
}

// admit reports whether the call is a half-open probe.
func (cb *CircuitBreaker) admit() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.coolDown()

	switch cb.stats.State {
	case StateOpen:
		cb.stats.Rejected++
		return false, ErrCircuitOpen
	case StateHalfOpen:
		if cb.inFlight >= cb.cfg.HalfOpenProbes {
			cb.stats.Rejected++
			return false, ErrTooManyRequests
		}
		cb.inFlight++
		return true, nil
	default:
		return false, nil
	}
}

func (cb *CircuitBreaker) record(probe, ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe && cb.inFlight > 0 {
		cb.inFlight--
	}

	if ok {
		cb.stats.ConsecutiveFailures = 0
		cb.stats.ConsecutiveSuccesses++
		if cb.stats.State == StateHalfOpen && cb.stats.ConsecutiveSuccesses >= cb.cfg.SuccessThreshold {
			cb.transition(StateClosed)
		}
		return
	}

	cb.stats.ConsecutiveSuccesses = 0
	cb.stats.ConsecutiveFailures++

	switch {
	case cb.stats.State == StateHalfOpen:
		cb.transition(StateOpen)
	case cb.stats.State == StateClosed && cb.stats.ConsecutiveFailures >= cb.cfg.FailureThreshold:
		cb.transition(StateOpen)
	}
}

// coolDown moves an open breaker to half-open once OpenTimeout has passed.
// Callers hold mu.
func (cb *CircuitBreaker) coolDown() {
	if cb.stats.State == StateOpen && !cb.cfg.now().Before(cb.stats.OpenedAt.Add(cb.cfg.OpenTimeout)) {
		cb.transition(StateHalfOpen)
	}
}

// transition resets the streak counters for the new state. Callers hold mu.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.stats.State
	if from == to {
		return
	}

	failures := cb.stats.ConsecutiveFailures
	cb.stats.State = to
	cb.stats.ConsecutiveFailures = 0
	cb.stats.ConsecutiveSuccesses = 0
	cb.inFlight = 0
	if to == StateOpen {
		cb.stats.OpenedAt = cb.cfg.now()
	}

	cb.cfg.Logger.Info("Circuit breaker state changed",
		zap.String("name", cb.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Int("failures", failures),
	)

	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, from, to)
	}
}
