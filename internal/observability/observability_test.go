package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		logger, err := NewLogger("info", FormatJSON)
		require.NoError(t, err)
		assert.NotNil(t, logger)
	})

	t.Run("console format", func(t *testing.T) {
		logger, err := NewLogger("debug", FormatConsole)
		require.NoError(t, err)
		assert.NotNil(t, logger)
	})

	t.Run("default format", func(t *testing.T) {
		logger, err := NewLogger("warn", "")
		require.NoError(t, err)
		assert.NotNil(t, logger)
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := NewLogger("loud", FormatJSON)
		assert.Error(t, err)
	})

	t.Run("invalid format", func(t *testing.T) {
		_, err := NewLogger("info", "xml")
		assert.Error(t, err)
	})
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveRequest("openai", OutcomeSuccess, 120*time.Millisecond)
	m.ObserveRequest("openai", "transient", 50*time.Millisecond)
	m.AddTokens("openai", 10, 20)
	m.CacheHit("openai")
	m.CacheMiss("openai")
	m.CacheMiss("openai")
	m.SetCircuitState("openai", 2)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.requestsTotal.WithLabelValues("openai", OutcomeSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.requestsTotal.WithLabelValues("openai", "transient")))
	assert.Equal(t, float64(10), testutil.ToFloat64(m.tokensTotal.WithLabelValues("openai", "prompt")))
	assert.Equal(t, float64(20), testutil.ToFloat64(m.tokensTotal.WithLabelValues("openai", "completion")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.cacheHits.WithLabelValues("openai")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.cacheMisses.WithLabelValues("openai")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.circuitState.WithLabelValues("openai")))
}

func TestMetrics_ZeroTokensNotCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.AddTokens("ollama", 0, 0)

	count, err := testutil.GatherAndCount(reg, "llmbridge_tokens_total")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
