package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/offboardhq/llmbridge/services/providers"
)

func TestNew(t *testing.T) {
	adapter := New(Config{APIKey: "test-key"})

	if adapter == nil {
		t.Fatal("New() returned nil")
	}

	if adapter.Name() != "openai" {
		t.Errorf("Name() = %s, want openai", adapter.Name())
	}

	if adapter.config.BaseURL != defaultBaseURL {
		t.Errorf("BaseURL = %s, want %s", adapter.config.BaseURL, defaultBaseURL)
	}

	if adapter.config.Timeout != defaultTimeout {
		t.Errorf("Timeout = %v, want %v", adapter.config.Timeout, defaultTimeout)
	}
}

func TestAdapter_ChatCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST request, got %s", r.Method)
		}

		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}

		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			t.Error("Authorization header missing or invalid")
		}

		body, _ := io.ReadAll(r.Body)
		var req chatCompletionRequest
		json.Unmarshal(body, &req)

		if req.MaxTokens == nil || *req.MaxTokens != 100 {
			t.Error("max_tokens not forwarded")
		}

		resp := chatCompletionResponse{
			ID:      "chatcmpl-test123",
			Object:  "chat.completion",
			Created: time.Now().Unix(),
			Model:   req.Model,
			Choices: []chatChoice{
				{
					Index: 0,
					Message: chatMessage{
						Role:    "assistant",
						Content: "This is a test response",
					},
					FinishReason: "stop",
				},
			},
			Usage: chatUsage{
				PromptTokens:     10,
				CompletionTokens: 20,
				TotalTokens:      30,
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	adapter := New(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	})

	req := &providers.ChatRequest{
		Model: "gpt-4o-mini",
		Messages: []providers.Message{
			{Role: "user", Content: "Hello"},
		},
		MaxTokens:   100,
		Temperature: 0.7,
	}

	resp, err := adapter.ChatCompletion(context.Background(), req)
	if err != nil {
		t.Fatalf("ChatCompletion() error = %v", err)
	}

	if resp.ID == "" {
		t.Error("Response ID is empty")
	}

	if resp.Provider != "openai" {
		t.Errorf("Provider = %s, want openai", resp.Provider)
	}

	if resp.Content != "This is a test response" {
		t.Errorf("Unexpected response content: %s", resp.Content)
	}

	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %s, want stop", resp.FinishReason)
	}

	if resp.Usage.TotalTokens != 30 {
		t.Errorf("TotalTokens = %d, want 30", resp.Usage.TotalTokens)
	}
}

func TestAdapter_ChatCompletion_ErrorTranslation(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantKind   providers.ErrorKind
	}{
		{
			name:       "rate limited",
			statusCode: http.StatusTooManyRequests,
			body:       `{"error":{"message":"Rate limit reached","type":"rate_limit_error"}}`,
			wantKind:   providers.KindRateLimited,
		},
		{
			name:       "invalid api key",
			statusCode: http.StatusUnauthorized,
			body:       `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`,
			wantKind:   providers.KindAuthFailure,
		},
		{
			name:       "forbidden",
			statusCode: http.StatusForbidden,
			body:       `{"error":{"message":"Project does not have access","type":"invalid_request_error"}}`,
			wantKind:   providers.KindAuthFailure,
		},
		{
			name:       "bad request",
			statusCode: http.StatusBadRequest,
			body:       `{"error":{"message":"Invalid value for temperature","type":"invalid_request_error"}}`,
			wantKind:   providers.KindInvalidRequest,
		},
		{
			name:       "model not found",
			statusCode: http.StatusNotFound,
			body:       `{"error":{"message":"The model does not exist","type":"invalid_request_error","code":"model_not_found"}}`,
			wantKind:   providers.KindInvalidRequest,
		},
		{
			name:       "server error",
			statusCode: http.StatusInternalServerError,
			body:       `{"error":{"message":"The server had an error","type":"server_error"}}`,
			wantKind:   providers.KindTransient,
		},
		{
			name:       "service unavailable",
			statusCode: http.StatusServiceUnavailable,
			body:       `{"error":{"message":"Engine overloaded","type":"server_error"}}`,
			wantKind:   providers.KindTransient,
		},
		{
			name:       "unparseable error body",
			statusCode: http.StatusBadGateway,
			body:       `upstream gateway choked`,
			wantKind:   providers.KindTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.statusCode)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			adapter := New(Config{APIKey: "test-key", BaseURL: server.URL})

			req := &providers.ChatRequest{
				Model:    "gpt-4o-mini",
				Messages: []providers.Message{{Role: "user", Content: "Hello"}},
			}

			_, err := adapter.ChatCompletion(context.Background(), req)
			if err == nil {
				t.Fatal("Expected error but got none")
			}

			if got := providers.KindOf(err); got != tt.wantKind {
				t.Errorf("KindOf(err) = %s, want %s", got, tt.wantKind)
			}
		})
	}
}

func TestAdapter_ChatCompletion_ConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	adapter := New(Config{APIKey: "test-key", BaseURL: server.URL})

	req := &providers.ChatRequest{
		Model:    "gpt-4o-mini",
		Messages: []providers.Message{{Role: "user", Content: "Hello"}},
	}

	_, err := adapter.ChatCompletion(context.Background(), req)
	if err == nil {
		t.Fatal("Expected error but got none")
	}

	if !providers.IsTransient(err) {
		t.Errorf("Expected transient error, got %v", err)
	}
}

func TestAdapter_ChatCompletion_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		io.WriteString(w, `{}`)
	}))
	defer server.Close()

	adapter := New(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 20 * time.Millisecond,
	})

	req := &providers.ChatRequest{
		Model:    "gpt-4o-mini",
		Messages: []providers.Message{{Role: "user", Content: "Hello"}},
	}

	_, err := adapter.ChatCompletion(context.Background(), req)
	if err == nil {
		t.Fatal("Expected error but got none")
	}

	if !providers.IsTransient(err) {
		t.Errorf("Expected transient error for timeout, got %v", err)
	}
}

func TestAdapter_ChatCompletion_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"chatcmpl-1","object":"chat.completion","choices":[]}`)
	}))
	defer server.Close()

	adapter := New(Config{APIKey: "test-key", BaseURL: server.URL})

	req := &providers.ChatRequest{
		Model:    "gpt-4o-mini",
		Messages: []providers.Message{{Role: "user", Content: "Hello"}},
	}

	_, err := adapter.ChatCompletion(context.Background(), req)
	if err == nil {
		t.Fatal("Expected error but got none")
	}

	if providers.IsRetryable(err) {
		t.Errorf("Empty choices should not be retryable, got %v", err)
	}
}

func TestAdapter_ChatCompletion_InvalidRequest(t *testing.T) {
	adapter := New(Config{APIKey: "test-key"})

	req := &providers.ChatRequest{
		Model:    "",
		Messages: []providers.Message{{Role: "user", Content: "Hello"}},
	}

	_, err := adapter.ChatCompletion(context.Background(), req)
	if err == nil {
		t.Fatal("Expected error but got none")
	}

	if !providers.IsInvalidRequest(err) {
		t.Errorf("Expected invalid request error, got %v", err)
	}
}

func TestAdapter_IsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("Expected path /models, got %s", r.URL.Path)
		}
		io.WriteString(w, `{"data":[]}`)
	}))
	defer server.Close()

	adapter := New(Config{APIKey: "test-key", BaseURL: server.URL})

	if !adapter.IsAvailable(context.Background()) {
		t.Error("IsAvailable() = false, want true")
	}

	server.Close()
	if adapter.IsAvailable(context.Background()) {
		t.Error("IsAvailable() = true after server shutdown, want false")
	}
}

func TestAdapter_Models(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":[{"id":"gpt-4o"},{"id":"gpt-4o-mini"}]}`)
	}))
	defer server.Close()

	adapter := New(Config{APIKey: "test-key", BaseURL: server.URL})

	models, err := adapter.Models(context.Background())
	if err != nil {
		t.Fatalf("Models() error = %v", err)
	}

	if len(models) != 2 {
		t.Fatalf("len(models) = %d, want 2", len(models))
	}

	if models[0] != "gpt-4o" || models[1] != "gpt-4o-mini" {
		t.Errorf("Unexpected models: %v", models)
	}
}
