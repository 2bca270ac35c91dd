package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcome label for successful calls. Failures use the error kind.
const OutcomeSuccess = "success"

// Metrics collects the pipeline's Prometheus metrics.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	circuitState    *prometheus.GaugeVec
}

// NewMetrics registers the pipeline collectors with reg. Passing nil uses
// the default registerer. Call once per registerer; promauto panics on
// duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmbridge_requests_total",
			Help: "Total number of LLM requests by outcome",
		}, []string{"provider", "outcome"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llmbridge_request_duration_seconds",
			Help:    "Duration of LLM requests including retries and cache lookups",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"provider"}),

		tokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmbridge_tokens_total",
			Help: "Total number of tokens consumed",
		}, []string{"provider", "type"}),

		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmbridge_cache_hits_total",
			Help: "Responses served from the cache",
		}, []string{"provider"}),

		cacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmbridge_cache_misses_total",
			Help: "Requests that reached the provider pipeline",
		}, []string{"provider"}),

		circuitState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "llmbridge_circuit_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"provider"}),
	}
}

// ObserveRequest records one completed request and its duration
func (m *Metrics) ObserveRequest(provider, outcome string, duration time.Duration) {
	m.requestsTotal.WithLabelValues(provider, outcome).Inc()
	m.requestDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// AddTokens records token usage from a provider response
func (m *Metrics) AddTokens(provider string, prompt, completion int) {
	if prompt > 0 {
		m.tokensTotal.WithLabelValues(provider, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		m.tokensTotal.WithLabelValues(provider, "completion").Add(float64(completion))
	}
}

// CacheHit records a response served without reaching the pipeline
func (m *Metrics) CacheHit(provider string) {
	m.cacheHits.WithLabelValues(provider).Inc()
}

// CacheMiss records a request that had to be computed
func (m *Metrics) CacheMiss(provider string) {
	m.cacheMisses.WithLabelValues(provider).Inc()
}

// SetCircuitState publishes the current breaker state for a provider
func (m *Metrics) SetCircuitState(provider string, state float64) {
	m.circuitState.WithLabelValues(provider).Set(state)
}
