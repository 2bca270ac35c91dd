package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Environment string `validate:"required,oneof=development staging production"`

	// ActiveProvider selects the default provider for new clients
	ActiveProvider string `validate:"required,oneof=openai ollama"`

	Providers     ProvidersConfig
	Retry         RetryConfig
	Breaker       BreakerConfig
	Cache         CacheConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
}

// ProvidersConfig holds LLM provider configurations
type ProvidersConfig struct {
	OpenAI OpenAIConfig
	Ollama OllamaConfig
}

// OpenAIConfig holds OpenAI provider configuration
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	OrgID   string
	Model   string
	Timeout time.Duration `validate:"gt=0"`
}

// OllamaConfig holds local Ollama provider configuration
type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration `validate:"gt=0"`
}

// RetryConfig controls the retry layer
type RetryConfig struct {
	// MaxRetries is the number of re-attempts after the initial call
	MaxRetries int `validate:"gte=0,lte=10"`

	// BaseDelay seeds the exponential backoff curve
	BaseDelay time.Duration `validate:"gt=0"`

	// MaxDelay caps a single computed delay
	MaxDelay time.Duration `validate:"gt=0"`

	// Jitter is the random delay fraction (0 disables jitter)
	Jitter float64 `validate:"gte=0,lte=1"`

	// RateLimitFactor stretches delays after a 429
	RateLimitFactor float64 `validate:"gte=1"`
}

// BreakerConfig controls the circuit breaker
type BreakerConfig struct {
	// FailureThreshold is the consecutive failure count that opens the circuit
	FailureThreshold int `validate:"gte=1"`

	// CoolDown is how long the circuit stays open before probing
	CoolDown time.Duration `validate:"gt=0"`

	// SuccessesToClose is the number of half-open successes required to close
	SuccessesToClose int `validate:"gte=1"`
}

// CacheConfig controls the response cache
type CacheConfig struct {
	// TTL after which an entry is stale
	TTL time.Duration `validate:"gt=0"`

	// MaxEntries bounds the cache size
	MaxEntries int `validate:"gte=1"`

	// CleanupInterval drives the background expiry sweep (0 disables it)
	CleanupInterval time.Duration `validate:"gte=0"`
}

// RateLimitConfig controls the optional client-side limiter.
// RequestsPerSecond <= 0 disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// ObservabilityConfig holds logging settings
type ObservabilityConfig struct {
	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=json console"`
}

// Load reads configuration from the environment, with optional .env support
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment:    getEnv("ENVIRONMENT", "development"),
		ActiveProvider: getEnv("LLM_PROVIDER", "openai"),
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				APIKey:  getEnv("OPENAI_API_KEY", ""),
				BaseURL: getEnv("OPENAI_BASE_URL", ""),
				OrgID:   getEnv("OPENAI_ORG_ID", ""),
				Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
				Timeout: getEnvAsDuration("OPENAI_TIMEOUT", 30*time.Second),
			},
			Ollama: OllamaConfig{
				BaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   getEnv("OLLAMA_MODEL", "llama3"),
				Timeout: getEnvAsDuration("OLLAMA_TIMEOUT", 120*time.Second),
			},
		},
		Retry: RetryConfig{
			MaxRetries:      getEnvAsInt("LLM_RETRY_MAX_RETRIES", 3),
			BaseDelay:       getEnvAsDuration("LLM_RETRY_BASE_DELAY", 1*time.Second),
			MaxDelay:        getEnvAsDuration("LLM_RETRY_MAX_DELAY", 30*time.Second),
			Jitter:          getEnvAsFloat("LLM_RETRY_JITTER", 0.25),
			RateLimitFactor: getEnvAsFloat("LLM_RETRY_RATE_LIMIT_FACTOR", 2.0),
		},
		Breaker: BreakerConfig{
			FailureThreshold: getEnvAsInt("LLM_BREAKER_FAILURE_THRESHOLD", 5),
			CoolDown:         getEnvAsDuration("LLM_BREAKER_COOL_DOWN", 30*time.Second),
			SuccessesToClose: getEnvAsInt("LLM_BREAKER_SUCCESSES_TO_CLOSE", 1),
		},
		Cache: CacheConfig{
			TTL:             getEnvAsDuration("LLM_CACHE_TTL", 5*time.Minute),
			MaxEntries:      getEnvAsInt("LLM_CACHE_MAX_ENTRIES", 1000),
			CleanupInterval: getEnvAsDuration("LLM_CACHE_CLEANUP_INTERVAL", 1*time.Minute),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsFloat("LLM_RATE_LIMIT_RPS", 0),
			Burst:             getEnvAsInt("LLM_RATE_LIMIT_BURST", 1),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "console"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural constraints and provider-specific requirements
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.ActiveProvider == "openai" && c.Providers.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry max delay %v is below base delay %v", c.Retry.MaxDelay, c.Retry.BaseDelay)
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate limit burst must be at least 1 when the limiter is enabled")
	}
	return nil
}

// ProviderModel returns the configured default model for a provider name
func (c *Config) ProviderModel(provider string) string {
	switch provider {
	case "openai":
		return c.Providers.OpenAI.Model
	case "ollama":
		return c.Providers.Ollama.Model
	default:
		return ""
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
