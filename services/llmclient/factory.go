package llmclient

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/offboardhq/llmbridge/config"
	"github.com/offboardhq/llmbridge/internal/observability"
	"github.com/offboardhq/llmbridge/services/providers"
	"github.com/offboardhq/llmbridge/services/providers/ollama"
	"github.com/offboardhq/llmbridge/services/providers/openai"
	"github.com/offboardhq/llmbridge/services/resilience"
)

// Factory hands out one pipeline client per provider. Repeated requests for
// the same provider return the same client, so breaker state and cache
// contents are shared by everyone using it.
type Factory struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *observability.Metrics
	registry *providers.Registry

	mu      sync.Mutex
	clients map[string]*Client
}

// NewFactory registers the providers the configuration enables. Clients are
// built lazily on first request. Metrics may be nil.
func NewFactory(cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) (*Factory, error) {
	registry := providers.NewRegistry()

	if cfg.Providers.OpenAI.APIKey != "" {
		adapter := openai.New(openai.Config{
			APIKey:  cfg.Providers.OpenAI.APIKey,
			BaseURL: cfg.Providers.OpenAI.BaseURL,
			OrgID:   cfg.Providers.OpenAI.OrgID,
			Timeout: cfg.Providers.OpenAI.Timeout,
		})
		if err := registry.Register(adapter); err != nil {
			return nil, fmt.Errorf("failed to register openai provider: %w", err)
		}
		logger.Info("registered openai provider")
	}

	adapter := ollama.New(ollama.Config{
		BaseURL: cfg.Providers.Ollama.BaseURL,
		Timeout: cfg.Providers.Ollama.Timeout,
	})
	if err := registry.Register(adapter); err != nil {
		return nil, fmt.Errorf("failed to register ollama provider: %w", err)
	}
	logger.Info("registered ollama provider")

	return &Factory{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		registry: registry,
		clients:  make(map[string]*Client),
	}, nil
}

// Client returns the pipeline client for the named provider, building it on
// first use.
func (f *Factory) Client(provider string) (*Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if client, ok := f.clients[provider]; ok {
		return client, nil
	}

	adapter, err := f.registry.Get(provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, provider)
	}

	client := NewClient(adapter, f.clientConfig(provider))
	f.clients[provider] = client
	f.logger.Info("llm client built", zap.String("provider", provider))
	return client, nil
}

// Active returns the client for the configured active provider.
func (f *Factory) Active() (*Client, error) {
	return f.Client(f.cfg.ActiveProvider)
}

// Providers lists the registered provider names.
func (f *Factory) Providers() []string {
	return f.registry.Names()
}

// CircuitStatus reports the breaker state for a provider. A client that has
// not been built yet reports a closed circuit.
func (f *Factory) CircuitStatus(provider string) (resilience.CircuitStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if client, ok := f.clients[provider]; ok {
		return client.CircuitStatus(), nil
	}
	if _, err := f.registry.Get(provider); err != nil {
		return resilience.CircuitStatus{}, fmt.Errorf("%w: %s", err, provider)
	}
	return resilience.CircuitStatus{State: resilience.StateClosed}, nil
}

// ClearCache drops the cached responses of every client built so far.
func (f *Factory) ClearCache() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, client := range f.clients {
		client.ClearCache()
	}
}

// Close shuts down every client built so far.
func (f *Factory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, client := range f.clients {
		client.Close()
	}
}

func (f *Factory) clientConfig(provider string) ClientConfig {
	return ClientConfig{
		Model: f.cfg.ProviderModel(provider),
		Retry: resilience.RetryConfig{
			MaxRetries:      f.cfg.Retry.MaxRetries,
			BaseDelay:       f.cfg.Retry.BaseDelay,
			MaxDelay:        f.cfg.Retry.MaxDelay,
			Jitter:          f.cfg.Retry.Jitter,
			RateLimitFactor: f.cfg.Retry.RateLimitFactor,
		},
		Breaker: resilience.BreakerConfig{
			FailureThreshold: f.cfg.Breaker.FailureThreshold,
			CoolDown:         f.cfg.Breaker.CoolDown,
			SuccessesToClose: f.cfg.Breaker.SuccessesToClose,
		},
		Cache: resilience.CacheConfig{
			TTL:        f.cfg.Cache.TTL,
			MaxEntries: f.cfg.Cache.MaxEntries,
		},
		CacheCleanupInterval: f.cfg.Cache.CleanupInterval,
		RequestsPerSecond:    f.cfg.RateLimit.RequestsPerSecond,
		Burst:                f.cfg.RateLimit.Burst,
		Logger:               f.logger,
		Metrics:              f.metrics,
	}
}
