// Package llmclient assembles provider adapters and the resilience layers
// into ready-to-use clients. A client owns the pipeline for one provider:
// calls pass through retry and circuit breaking, identical requests are
// served from the response cache, and an optional client-side rate limiter
// rejects traffic beyond the configured budget.
package llmclient

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/offboardhq/llmbridge/internal/observability"
	"github.com/offboardhq/llmbridge/services/providers"
	"github.com/offboardhq/llmbridge/services/resilience"
)

// ClientConfig collects the pipeline settings for one provider.
type ClientConfig struct {
	// Model is applied to requests that do not name one.
	Model string

	Retry   resilience.RetryConfig
	Breaker resilience.BreakerConfig
	Cache   resilience.CacheConfig

	// CacheCleanupInterval starts a background sweep for expired cache
	// entries when positive.
	CacheCleanupInterval time.Duration

	// RequestsPerSecond enables the client-side rate limiter when positive.
	RequestsPerSecond float64
	Burst             int

	Logger  *zap.Logger
	Metrics *observability.Metrics
}

// Client wraps a provider adapter with retries, a circuit breaker and a
// response cache. Metrics are recorded here at the boundary so the inner
// layers stay collector-free.
type Client struct {
	provider string
	model    string
	adapter  providers.Provider
	pipeline resilience.Invoker
	cache    *resilience.ResponseCache
	breaker  *resilience.CircuitBreaker
	limiter  *rate.Limiter
	logger   *zap.Logger
	metrics  *observability.Metrics

	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// NewClient builds the call path adapter -> retry -> breaker -> cache.
// Metrics may be nil.
func NewClient(adapter providers.Provider, config ClientConfig) *Client {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		provider: adapter.Name(),
		model:    config.Model,
		adapter:  adapter,
		logger:   logger,
		metrics:  config.Metrics,
	}

	retrier := resilience.NewRetrier(adapter, config.Retry, logger)
	c.breaker = resilience.NewCircuitBreaker(c.provider, retrier, config.Breaker, logger,
		func(_ string, _, to resilience.CircuitState) {
			c.setCircuitGauge(to)
		})
	c.pipeline = c.breaker
	c.cache = resilience.NewResponseCache(config.Cache, logger)
	c.setCircuitGauge(resilience.StateClosed)

	// The limiter sits ahead of the breaker, after the cache: cached
	// responses never spend budget, and limiter rejections never count
	// as breaker failures.
	if config.RequestsPerSecond > 0 {
		burst := config.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
		inner := c.pipeline
		c.pipeline = resilience.InvokerFunc(func(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
			if !c.limiter.Allow() {
				return nil, providers.NewError(providers.KindRateLimited, c.provider, "client-side rate limit exceeded", 0, nil)
			}
			return inner.ChatCompletion(ctx, req)
		})
	}

	if config.CacheCleanupInterval > 0 {
		c.stopCleanup = make(chan struct{})
		go c.cache.StartCleanupWorker(config.CacheCleanupInterval, c.stopCleanup)
	}

	return c
}

// Chat sends a chat completion request through the pipeline. Identical
// requests within the cache TTL are served from memory without reaching
// the provider.
func (c *Client) Chat(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	if req == nil {
		return nil, providers.NewError(providers.KindInvalidRequest, c.provider, "request is nil", 0, nil)
	}

	r := *req
	if r.Model == "" {
		r.Model = c.model
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	logger := c.logger.With(
		zap.String("provider", c.provider),
		zap.String("request_id", uuid.NewString()),
		zap.String("model", r.Model))

	var computed atomic.Bool
	start := time.Now()
	resp, err := c.cache.GetOrCompute(ctx, r.CacheKey(), func(ctx context.Context) (*providers.ChatResponse, error) {
		computed.Store(true)
		return c.pipeline.ChatCompletion(ctx, &r)
	})
	duration := time.Since(start)

	if err != nil {
		kind := providers.KindOf(err)
		c.observeRequest(string(kind), duration)
		if computed.Load() {
			c.recordCache(false)
		}
		logger.Warn("chat request failed",
			zap.String("kind", string(kind)),
			zap.Duration("duration", duration),
			zap.Error(err))
		return nil, err
	}

	cached := !computed.Load()
	c.recordCache(cached)
	c.observeRequest(observability.OutcomeSuccess, duration)
	if c.metrics != nil && !cached {
		c.metrics.AddTokens(c.provider, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}

	logger.Debug("chat request served",
		zap.Bool("cached", cached),
		zap.Duration("duration", duration),
		zap.Int("total_tokens", resp.Usage.TotalTokens))
	return resp, nil
}

// Available reports whether the provider answers its health endpoint. The
// probe goes straight to the adapter and does not touch breaker state.
func (c *Client) Available(ctx context.Context) bool {
	return c.adapter.IsAvailable(ctx)
}

// Models lists the models the provider currently serves.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	return c.adapter.Models(ctx)
}

// Provider returns the name of the wrapped adapter.
func (c *Client) Provider() string {
	return c.provider
}

// Model returns the default model applied to requests that omit one.
func (c *Client) Model() string {
	return c.model
}

// CircuitStatus reports the breaker state and failure count.
func (c *Client) CircuitStatus() resilience.CircuitStatus {
	return c.breaker.Status()
}

// ResetCircuit closes the breaker and clears its counters.
func (c *Client) ResetCircuit() {
	c.breaker.Reset()
}

// CacheStats reports the response cache counters.
func (c *Client) CacheStats() resilience.CacheStats {
	return c.cache.Stats()
}

// ClearCache drops all cached responses.
func (c *Client) ClearCache() {
	c.cache.Clear()
}

// Close stops the cache cleanup worker. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.stopCleanup != nil {
			close(c.stopCleanup)
		}
	})
}

func (c *Client) setCircuitGauge(state resilience.CircuitState) {
	if c.metrics == nil {
		return
	}
	var value float64
	switch state {
	case resilience.StateHalfOpen:
		value = 1
	case resilience.StateOpen:
		value = 2
	}
	c.metrics.SetCircuitState(c.provider, value)
}

func (c *Client) observeRequest(outcome string, duration time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.ObserveRequest(c.provider, outcome, duration)
}

func (c *Client) recordCache(hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.CacheHit(c.provider)
	} else {
		c.metrics.CacheMiss(c.provider)
	}
}
