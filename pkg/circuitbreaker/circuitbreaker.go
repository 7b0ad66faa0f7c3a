package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/medassist/booking-api/pkg/clock"
)

// ErrOpen is returned without calling fn while the breaker is open.
var ErrOpen = errors.New("circuit breaker is open")

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

type Settings struct {
	Name string
	// MaxFailures consecutive failures open the breaker.
	MaxFailures int
	// Interval resets the failure count after a quiet period while closed.
	Interval time.Duration
	// Timeout is how long the breaker stays open before a trial call.
	Timeout time.Duration
	Clock   clock.Clock
}

type CircuitBreaker struct {
	name        string
	maxFailures int
	interval    time.Duration
	timeout     time.Duration
	clock       clock.Clock

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	state       State
}

func NewCircuitBreaker(settings Settings) *CircuitBreaker {
	if settings.MaxFailures <= 0 {
		settings.MaxFailures = 5
	}
	if settings.Clock == nil {
		settings.Clock = clock.New()
	}
	return &CircuitBreaker{
		name:        settings.Name,
		maxFailures: settings.MaxFailures,
		interval:    settings.Interval,
		timeout:     settings.Timeout,
		clock:       settings.Clock,
		state:       StateClosed,
	}
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}

	err := fn()
	cb.after(err)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.clock.Now()
	switch cb.state {
	case StateOpen:
		if now.Sub(cb.lastFailure) <= cb.timeout {
			return ErrOpen
		}
		cb.state = StateHalfOpen
	case StateClosed:
		if cb.interval > 0 && cb.failures > 0 && now.Sub(cb.lastFailure) > cb.interval {
			cb.failures = 0
		}
	}
	return nil
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailure = cb.clock.Now()
		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			cb.state = StateOpen
		}
		return
	}

	cb.state = StateClosed
	cb.failures = 0
}
