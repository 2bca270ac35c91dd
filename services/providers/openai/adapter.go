package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/offboardhq/llmbridge/services/providers"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 30 * time.Second
)

// Config holds the settings for the OpenAI adapter. BaseURL can point at any
// OpenAI-compatible endpoint (Azure, vLLM, LM Studio, ...).
type Config struct {
	// APIKey for authentication
	APIKey string

	// BaseURL for the API (optional override)
	BaseURL string

	// OrgID for organization-scoped keys
	OrgID string

	// Timeout bounds each upstream request
	Timeout time.Duration
}

// Adapter implements the Provider interface for OpenAI-compatible APIs.
// It performs a single request per call; retries belong to the layer above.
type Adapter struct {
	config     Config
	httpClient *http.Client
}

// New creates a new OpenAI adapter
func New(config Config) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	return &Adapter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return "openai"
}

// ChatCompletion performs a chat completion request and translates every
// failure into the shared error taxonomy.
func (a *Adapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	startTime := time.Now()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	reqBody, err := json.Marshal(buildChatRequest(req))
	if err != nil {
		return nil, providers.NewError(providers.KindInvalidRequest, a.Name(), "failed to encode request", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewError(providers.KindInvalidRequest, a.Name(), "failed to create request", 0, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	if a.config.OrgID != "" {
		httpReq.Header.Set("OpenAI-Organization", a.config.OrgID)
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		kind := providers.ClassifyTransportError(err)
		return nil, providers.NewError(kind, a.Name(), "request failed", 0, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewError(providers.KindTransient, a.Name(), "failed to read response body", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(httpResp.StatusCode, respBody)
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, providers.NewError(providers.KindUnknown, a.Name(), "failed to decode response", httpResp.StatusCode, err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, providers.NewError(providers.KindUnknown, a.Name(), "response contained no choices", httpResp.StatusCode, nil)
	}

	choice := chatResp.Choices[0]
	return &providers.ChatResponse{
		ID:           chatResp.ID,
		Provider:     a.Name(),
		Model:        chatResp.Model,
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage: providers.Usage{
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:      chatResp.Usage.TotalTokens,
		},
		Latency: time.Since(startTime),
		Created: time.Unix(chatResp.Created, 0),
	}, nil
}

// IsAvailable checks if the provider is currently available
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.BaseURL+"/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+a.config.APIKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// Models returns the model identifiers the endpoint advertises
func (a *Adapter) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.BaseURL+"/models", nil)
	if err != nil {
		return nil, providers.NewError(providers.KindInvalidRequest, a.Name(), "failed to create request", 0, err)
	}
	req.Header.Set("Authorization", "Bearer "+a.config.APIKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		kind := providers.ClassifyTransportError(err)
		return nil, providers.NewError(kind, a.Name(), "request failed", 0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, providers.NewError(providers.KindTransient, a.Name(), "failed to read response body", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(resp.StatusCode, respBody)
	}

	var listResp modelListResponse
	if err := json.Unmarshal(respBody, &listResp); err != nil {
		return nil, providers.NewError(providers.KindUnknown, a.Name(), "failed to decode model list", resp.StatusCode, err)
	}

	models := make([]string, 0, len(listResp.Data))
	for _, m := range listResp.Data {
		models = append(models, m.ID)
	}
	return models, nil
}

// handleErrorResponse translates an upstream error body into the taxonomy
func (a *Adapter) handleErrorResponse(statusCode int, body []byte) error {
	kind := providers.ClassifyStatusCode(statusCode)

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return providers.NewError(kind, a.Name(), fmt.Sprintf("upstream returned status %d", statusCode), statusCode, nil)
	}

	// Some compatible backends report unknown models as 400/404 plus a code.
	if errResp.Error.Code == "model_not_found" {
		kind = providers.KindInvalidRequest
	}

	return providers.NewError(kind, a.Name(), errResp.Error.Message, statusCode, nil)
}

// buildChatRequest converts the unified request to the OpenAI wire format
func buildChatRequest(req *providers.ChatRequest) *chatCompletionRequest {
	wire := &chatCompletionRequest{
		Model:    req.Model,
		Messages: make([]chatMessage, len(req.Messages)),
	}
	for i, msg := range req.Messages {
		wire.Messages[i] = chatMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	if req.MaxTokens > 0 {
		wire.MaxTokens = &req.MaxTokens
	}
	if req.Temperature > 0 {
		wire.Temperature = &req.Temperature
	}
	if req.TopP > 0 {
		wire.TopP = &req.TopP
	}
	if len(req.Stop) > 0 {
		wire.Stop = req.Stop
	}

	return wire
}

// OpenAI-specific request/response types

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

type modelListResponse struct {
	Data []modelEntry `json:"data"`
}

type modelEntry struct {
	ID string `json:"id"`
}
