package resilience

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/offboardhq/llmbridge/services/providers"
)

// scriptedInvoker fails while failing is true and counts calls
type scriptedInvoker struct {
	mu      sync.Mutex
	failing bool
	calls   int
}

func (s *scriptedInvoker) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.failing {
		return nil, transientErr()
	}
	return &providers.ChatResponse{Content: "ok"}, nil
}

func (s *scriptedInvoker) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// testClock drives the breaker's view of time
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(next Invoker, config BreakerConfig) (*CircuitBreaker, *testClock) {
	logger, _ := zap.NewDevelopment()
	b := NewCircuitBreaker("openai", next, config, logger, nil)
	clock := newTestClock()
	b.now = clock.Now
	return b, clock
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	upstream := &scriptedInvoker{failing: true}
	b, _ := newTestBreaker(upstream, BreakerConfig{FailureThreshold: 3, CoolDown: 30 * time.Second, SuccessesToClose: 1})

	// three failures pass through and trip the breaker
	for i := 0; i < 3; i++ {
		_, err := b.ChatCompletion(context.Background(), &providers.ChatRequest{})
		require.Error(t, err)
		assert.True(t, providers.IsTransient(err))
	}

	status := b.Status()
	assert.Equal(t, StateOpen, status.State)
	assert.Equal(t, 3, status.FailureCount)

	// the fourth call fails fast without reaching the provider
	_, err := b.ChatCompletion(context.Background(), &providers.ChatRequest{})
	require.Error(t, err)
	assert.True(t, providers.IsCircuitOpen(err))
	assert.Equal(t, 3, upstream.callCount())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	upstream := &scriptedInvoker{failing: true}
	b, _ := newTestBreaker(upstream, BreakerConfig{FailureThreshold: 3, CoolDown: 30 * time.Second, SuccessesToClose: 1})

	for i := 0; i < 2; i++ {
		_, err := b.ChatCompletion(context.Background(), &providers.ChatRequest{})
		require.Error(t, err)
	}
	assert.Equal(t, 2, b.Status().FailureCount)

	upstream.failing = false
	_, err := b.ChatCompletion(context.Background(), &providers.ChatRequest{})
	require.NoError(t, err)

	status := b.Status()
	assert.Equal(t, StateClosed, status.State)
	assert.Equal(t, 0, status.FailureCount)

	// the streak starts over
	upstream.failing = true
	for i := 0; i < 2; i++ {
		_, _ = b.ChatCompletion(context.Background(), &providers.ChatRequest{})
	}
	assert.Equal(t, StateClosed, b.Status().State)
}

func TestCircuitBreaker_ErrorsPropagateUnchanged(t *testing.T) {
	authErr := providers.NewError(providers.KindAuthFailure, "openai", "bad key", 401, nil)
	b, _ := newTestBreaker(InvokerFunc(func(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
		return nil, authErr
	}), BreakerConfig{FailureThreshold: 5, CoolDown: time.Minute, SuccessesToClose: 1})

	_, err := b.ChatCompletion(context.Background(), &providers.ChatRequest{})
	assert.Same(t, authErr, err)
	assert.Equal(t, 1, b.Status().FailureCount)
}

func TestCircuitBreaker_HalfOpenAfterCoolDown(t *testing.T) {
	upstream := &scriptedInvoker{failing: true}
	b, clock := newTestBreaker(upstream, BreakerConfig{FailureThreshold: 2, CoolDown: 30 * time.Second, SuccessesToClose: 1})

	for i := 0; i < 2; i++ {
		_, _ = b.ChatCompletion(context.Background(), &providers.ChatRequest{})
	}
	require.Equal(t, StateOpen, b.Status().State)

	// still rejecting just before the cool-down elapses
	clock.Advance(29 * time.Second)
	_, err := b.ChatCompletion(context.Background(), &providers.ChatRequest{})
	assert.True(t, providers.IsCircuitOpen(err))

	// after the cool-down the trial goes through and closes the circuit
	clock.Advance(2 * time.Second)
	upstream.failing = false
	resp, err := b.ChatCompletion(context.Background(), &providers.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)

	status := b.Status()
	assert.Equal(t, StateClosed, status.State)
	assert.Equal(t, 0, status.FailureCount)
}

func TestCircuitBreaker_FailedTrialReopens(t *testing.T) {
	upstream := &scriptedInvoker{failing: true}
	b, clock := newTestBreaker(upstream, BreakerConfig{FailureThreshold: 2, CoolDown: 30 * time.Second, SuccessesToClose: 1})

	for i := 0; i < 2; i++ {
		_, _ = b.ChatCompletion(context.Background(), &providers.ChatRequest{})
	}
	calls := upstream.callCount()

	clock.Advance(31 * time.Second)
	_, err := b.ChatCompletion(context.Background(), &providers.ChatRequest{})
	require.Error(t, err)
	assert.True(t, providers.IsTransient(err), "trial failure propagates the provider error")
	assert.Equal(t, calls+1, upstream.callCount())
	assert.Equal(t, StateOpen, b.Status().State)

	// the failed trial restarted the cool-down
	clock.Advance(29 * time.Second)
	_, err = b.ChatCompletion(context.Background(), &providers.ChatRequest{})
	assert.True(t, providers.IsCircuitOpen(err))
	assert.Equal(t, calls+1, upstream.callCount())
}

func TestCircuitBreaker_ConfigurableSuccessesToClose(t *testing.T) {
	upstream := &scriptedInvoker{failing: true}
	b, clock := newTestBreaker(upstream, BreakerConfig{FailureThreshold: 1, CoolDown: 10 * time.Second, SuccessesToClose: 2})

	_, _ = b.ChatCompletion(context.Background(), &providers.ChatRequest{})
	require.Equal(t, StateOpen, b.Status().State)

	clock.Advance(11 * time.Second)
	upstream.failing = false

	// first half-open success is not yet enough
	_, err := b.ChatCompletion(context.Background(), &providers.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, b.Status().State)

	// second success closes
	_, err = b.ChatCompletion(context.Background(), &providers.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.Status().State)
}

func TestCircuitBreaker_SingleTrialInHalfOpen(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex

	slow := InvokerFunc(func(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		close(started)
		<-release
		return &providers.ChatResponse{Content: "ok"}, nil
	})

	b, clock := newTestBreaker(slow, BreakerConfig{FailureThreshold: 1, CoolDown: 10 * time.Second, SuccessesToClose: 1})

	// trip the breaker directly
	b.mu.Lock()
	b.state = StateOpen
	b.failures = 1
	b.openedAt = clock.Now()
	b.mu.Unlock()

	clock.Advance(11 * time.Second)

	done := make(chan error, 1)
	go func() {
		_, err := b.ChatCompletion(context.Background(), &providers.ChatRequest{})
		done <- err
	}()
	<-started

	// a second caller during the trial is rejected without an upstream call
	_, err := b.ChatCompletion(context.Background(), &providers.ChatRequest{})
	assert.True(t, providers.IsCircuitOpen(err))

	close(release)
	require.NoError(t, <-done)

	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
	assert.Equal(t, StateClosed, b.Status().State)
}

func TestCircuitBreaker_Reset(t *testing.T) {
	upstream := &scriptedInvoker{failing: true}
	b, _ := newTestBreaker(upstream, BreakerConfig{FailureThreshold: 1, CoolDown: time.Hour, SuccessesToClose: 1})

	_, _ = b.ChatCompletion(context.Background(), &providers.ChatRequest{})
	require.Equal(t, StateOpen, b.Status().State)

	b.Reset()

	status := b.Status()
	assert.Equal(t, StateClosed, status.State)
	assert.Equal(t, 0, status.FailureCount)

	// calls flow again without waiting out the cool-down
	upstream.failing = false
	_, err := b.ChatCompletion(context.Background(), &providers.ChatRequest{})
	assert.NoError(t, err)
}

func TestCircuitBreaker_StateChangeHook(t *testing.T) {
	var transitions []string
	var mu sync.Mutex
	hook := func(name string, from, to CircuitState) {
		mu.Lock()
		transitions = append(transitions, from.String()+"->"+to.String())
		mu.Unlock()
	}

	upstream := &scriptedInvoker{failing: true}
	logger, _ := zap.NewDevelopment()
	b := NewCircuitBreaker("openai", upstream, BreakerConfig{FailureThreshold: 1, CoolDown: 10 * time.Second, SuccessesToClose: 1}, logger, hook)
	clock := newTestClock()
	b.now = clock.Now

	_, _ = b.ChatCompletion(context.Background(), &providers.ChatRequest{})
	clock.Advance(11 * time.Second)
	upstream.failing = false
	_, _ = b.ChatCompletion(context.Background(), &providers.ChatRequest{})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"closed->open", "open->half_open", "half_open->closed"}, transitions)
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(99).String())
}
