package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/offboardhq/llmbridge/services/providers"
)

// RetryConfig controls the exponential backoff retry layer
type RetryConfig struct {
	// MaxRetries is the number of re-attempts after the initial call
	MaxRetries int

	// BaseDelay is the delay before the first re-attempt; each further
	// re-attempt doubles it
	BaseDelay time.Duration

	// MaxDelay caps a single computed delay
	MaxDelay time.Duration

	// Jitter is the random fraction applied to each delay (0 disables it)
	Jitter float64

	// RateLimitFactor stretches the delay when the last failure was a
	// provider rate limit
	RateLimitFactor float64
}

// DefaultRetryConfig returns a sensible default configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		BaseDelay:       1 * time.Second,
		MaxDelay:        30 * time.Second,
		Jitter:          0.25,
		RateLimitFactor: 2.0,
	}
}

// Retrier re-attempts transient and rate-limited failures with exponential
// backoff. Fatal kinds (auth, invalid request) propagate immediately.
type Retrier struct {
	next   Invoker
	config RetryConfig
	logger *zap.Logger

	// injected in tests
	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
}

// NewRetrier creates a retry layer around next
func NewRetrier(next Invoker, config RetryConfig, logger *zap.Logger) *Retrier {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultRetryConfig().BaseDelay
	}
	if config.MaxDelay < config.BaseDelay {
		config.MaxDelay = DefaultRetryConfig().MaxDelay
	}
	if config.RateLimitFactor < 1 {
		config.RateLimitFactor = 1
	}

	return &Retrier{
		next:   next,
		config: config,
		logger: logger,
		sleep:  sleepContext,
		rand:   rand.Float64,
	}
}

// ChatCompletion invokes the next layer, retrying retryable failures until
// the attempt budget runs out. The last provider error is returned as-is so
// callers can still inspect its kind.
func (r *Retrier) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			kind := providers.KindOf(lastErr)
			delay := r.backoffDelay(attempt, kind)

			r.logger.Warn("retrying provider call",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", r.config.MaxRetries),
				zap.Int64("delay_ms", delay.Milliseconds()),
				zap.String("kind", string(kind)),
				zap.Error(lastErr))

			if err := r.sleep(ctx, delay); err != nil {
				// Caller gave up during the wait; keep the provider error
				// reachable for kind inspection.
				return nil, errors.Join(err, lastErr)
			}
		}

		resp, err := r.next.ChatCompletion(ctx, req)
		if err == nil {
			if attempt > 0 {
				r.logger.Info("provider call recovered after retry",
					zap.Int("attempt", attempt))
			}
			return resp, nil
		}
		lastErr = err

		if !providers.IsRetryable(err) {
			return nil, err
		}
	}

	r.logger.Warn("retry budget exhausted",
		zap.Int("max_retries", r.config.MaxRetries),
		zap.Error(lastErr))
	return nil, lastErr
}

// backoffDelay computes the delay before re-attempt number attempt (1-based):
// BaseDelay * 2^(attempt-1), stretched for rate limits, capped, then jittered.
func (r *Retrier) backoffDelay(attempt int, kind providers.ErrorKind) time.Duration {
	delay := float64(r.config.BaseDelay) * math.Pow(2, float64(attempt-1))

	if kind == providers.KindRateLimited {
		delay *= r.config.RateLimitFactor
	}

	if maxDelay := float64(r.config.MaxDelay); delay > maxDelay {
		delay = maxDelay
	}

	if r.config.Jitter > 0 {
		delay += delay * r.config.Jitter * (2*r.rand() - 1)
	}
	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

// sleepContext waits for d or until ctx is done, whichever comes first
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
