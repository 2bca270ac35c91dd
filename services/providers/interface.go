package providers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider represents a unified LLM provider interface
type Provider interface {
	// Name returns the provider name (e.g., "openai", "ollama")
	Name() string

	// ChatCompletion performs a chat completion request. Failures are
	// returned as *Error with a populated Kind.
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// IsAvailable checks if the provider is currently reachable
	IsAvailable(ctx context.Context) bool

	// Models returns the model identifiers the provider advertises
	Models(ctx context.Context) ([]string, error)
}

// ChatRequest represents a unified chat completion request
type ChatRequest struct {
	// Model identifier (e.g., "gpt-4o-mini", "llama3")
	Model string `json:"model"`

	// Messages in the conversation, oldest first
	Messages []Message `json:"messages"`

	// MaxTokens limits the response length
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0 to 2.0)
	Temperature float64 `json:"temperature,omitempty"`

	// TopP controls nucleus sampling
	TopP float64 `json:"top_p,omitempty"`

	// Stop sequences
	Stop []string `json:"stop,omitempty"`
}

// Message represents a single message in a conversation
type Message struct {
	// Role can be "system", "user", or "assistant"
	Role string `json:"role"`

	// Content is the message text
	Content string `json:"content"`
}

// ChatResponse represents a unified chat completion response
type ChatResponse struct {
	// ID is the provider-assigned identifier for this completion
	ID string `json:"id,omitempty"`

	// Provider that handled the request
	Provider string `json:"provider"`

	// Model used for the completion
	Model string `json:"model"`

	// Content is the generated assistant text
	Content string `json:"content"`

	// FinishReason indicates why generation stopped ("stop", "length", ...)
	FinishReason string `json:"finish_reason,omitempty"`

	// Usage statistics
	Usage Usage `json:"usage"`

	// Latency of the upstream request
	Latency time.Duration `json:"latency"`

	// Created timestamp
	Created time.Time `json:"created"`
}

// Usage represents token usage statistics
type Usage struct {
	// PromptTokens used in the request
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens used in the response
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is the sum of prompt and completion tokens
	TotalTokens int `json:"total_tokens"`
}

// cacheKeyMaterial fixes the field set and order that feed the cache key.
// Struct (not map) serialization keeps the JSON deterministic.
type cacheKeyMaterial struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p"`
	Stop        []string  `json:"stop"`
}

// CacheKey returns a deterministic hash of the conversation content and the
// generation parameters. Requests that differ in any of them get distinct keys.
func (r *ChatRequest) CacheKey() string {
	material, err := json.Marshal(cacheKeyMaterial{
		Model:       r.Model,
		Messages:    r.Messages,
		MaxTokens:   r.MaxTokens,
		Temperature: r.Temperature,
		TopP:        r.TopP,
		Stop:        r.Stop,
	})
	if err != nil {
		// Marshal cannot fail on these field types; keep a defined fallback.
		material = []byte(r.Model)
	}
	sum := sha256.Sum256(material)
	return hex.EncodeToString(sum[:])
}

// Validate checks the request invariants shared by all providers.
func (r *ChatRequest) Validate() error {
	if r.Model == "" {
		return NewError(KindInvalidRequest, "", "model is required", 0, nil)
	}
	if len(r.Messages) == 0 {
		return NewError(KindInvalidRequest, "", "messages cannot be empty", 0, nil)
	}
	for i, m := range r.Messages {
		if m.Content == "" {
			return NewError(KindInvalidRequest, "", fmt.Sprintf("message %d has empty content", i), 0, nil)
		}
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return NewError(KindInvalidRequest, "", fmt.Sprintf("message %d has unknown role %q", i, m.Role), 0, nil)
		}
	}
	return nil
}
