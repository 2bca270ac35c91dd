package resilience

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/offboardhq/llmbridge/services/providers"
)

// CircuitState identifies the breaker position
type CircuitState int

const (
	// StateClosed lets calls through and counts consecutive failures
	StateClosed CircuitState = iota

	// StateOpen rejects calls until the cool-down elapses
	StateOpen

	// StateHalfOpen admits a single trial call at a time
	StateHalfOpen
)

// String returns the lowercase state name
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the state as its string name
func (s CircuitState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// BreakerConfig controls the circuit breaker
type BreakerConfig struct {
	// FailureThreshold is the consecutive failure count that opens the circuit
	FailureThreshold int

	// CoolDown is how long the circuit stays open before admitting a trial
	CoolDown time.Duration

	// SuccessesToClose is the number of consecutive half-open successes
	// required to close the circuit again
	SuccessesToClose int
}

// DefaultBreakerConfig returns a sensible default configuration
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		CoolDown:         30 * time.Second,
		SuccessesToClose: 1,
	}
}

// CircuitStatus is a point-in-time snapshot for introspection
type CircuitStatus struct {
	State        CircuitState `json:"state"`
	FailureCount int          `json:"failure_count"`
}

// StateChangeFunc observes breaker transitions. It runs with the breaker's
// lock held and must not call back into the breaker.
type StateChangeFunc func(name string, from, to CircuitState)

// CircuitBreaker fails fast once a provider looks unhealthy. Failures of any
// kind count toward the threshold; the failure counter survives the
// transition to open so callers can inspect it, and resets when the circuit
// closes again.
type CircuitBreaker struct {
	name          string
	next          Invoker
	config        BreakerConfig
	logger        *zap.Logger
	onStateChange StateChangeFunc

	mu                sync.Mutex
	state             CircuitState
	failures          int
	halfOpenSuccesses int
	openedAt          time.Time
	trialInFlight     bool

	now func() time.Time
}

// NewCircuitBreaker creates a breaker named after the provider it guards.
// onStateChange may be nil.
func NewCircuitBreaker(name string, next Invoker, config BreakerConfig, logger *zap.Logger, onStateChange StateChangeFunc) *CircuitBreaker {
	if config.FailureThreshold < 1 {
		config.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if config.CoolDown <= 0 {
		config.CoolDown = DefaultBreakerConfig().CoolDown
	}
	if config.SuccessesToClose < 1 {
		config.SuccessesToClose = 1
	}

	return &CircuitBreaker{
		name:          name,
		next:          next,
		config:        config,
		logger:        logger,
		onStateChange: onStateChange,
		state:         StateClosed,
		now:           time.Now,
	}
}

// Name returns the breaker name
func (b *CircuitBreaker) Name() string {
	return b.name
}

// ChatCompletion rejects immediately while the circuit is open, otherwise
// forwards the call and records its outcome. Errors from the next layer
// propagate unchanged.
func (b *CircuitBreaker) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	if err := b.allow(); err != nil {
		return nil, err
	}

	resp, err := b.next.ChatCompletion(ctx, req)
	b.record(err)
	return resp, err
}

// Status returns the current state and failure count
func (b *CircuitBreaker) Status() CircuitStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	return CircuitStatus{
		State:        b.state,
		FailureCount: b.failures,
	}
}

// Reset forces the circuit closed and clears all counters
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.halfOpenSuccesses = 0
	b.trialInFlight = false
	b.transitionLocked(StateClosed)
}

// allow decides whether a call may proceed. An open circuit whose cool-down
// has elapsed flips to half-open and admits the caller as the trial.
func (b *CircuitBreaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.config.CoolDown {
			return b.rejectionLocked()
		}
		b.transitionLocked(StateHalfOpen)
		b.trialInFlight = true
	case StateHalfOpen:
		if b.trialInFlight {
			return b.rejectionLocked()
		}
		b.trialInFlight = true
	}
	return nil
}

// record applies a call outcome to the state machine
func (b *CircuitBreaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.trialInFlight = false
	}

	if err == nil {
		switch b.state {
		case StateClosed:
			b.failures = 0
		case StateHalfOpen:
			b.halfOpenSuccesses++
			if b.halfOpenSuccesses >= b.config.SuccessesToClose {
				b.failures = 0
				b.transitionLocked(StateClosed)
			}
		}
		return
	}

	b.failures++
	switch b.state {
	case StateClosed:
		if b.failures >= b.config.FailureThreshold {
			b.openedAt = b.now()
			b.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		// Failed trial reopens the circuit and restarts the cool-down.
		b.openedAt = b.now()
		b.transitionLocked(StateOpen)
	}
}

// rejectionLocked builds the circuit-open error. Must be called with the lock held.
func (b *CircuitBreaker) rejectionLocked() error {
	return providers.NewError(providers.KindCircuitOpen, b.name, "circuit breaker is open", 0, nil)
}

// transitionLocked moves to a new state and notifies observers.
// Must be called with the lock held.
func (b *CircuitBreaker) transitionLocked(to CircuitState) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to

	if to == StateHalfOpen {
		b.halfOpenSuccesses = 0
	}

	b.logger.Info("circuit state changed",
		zap.String("circuit", b.name),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Int("failures", b.failures))

	if b.onStateChange != nil {
		b.onStateChange(b.name, from, to)
	}
}
