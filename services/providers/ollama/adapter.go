package ollama

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
	defaultBaseURL = "http://localhost:11434"

	// Local models can be slow to load on first use, so the default
	// request timeout is generous.
	defaultTimeout = 120 * time.Second
)

// Config holds the settings for the Ollama adapter
type Config struct {
	// BaseURL of the Ollama server
	BaseURL string

	// Timeout bounds each upstream request
	Timeout time.Duration
}

// Adapter implements the Provider interface for a local Ollama server
type Adapter struct {
	config     Config
	httpClient *http.Client
}

// New creates a new Ollama adapter
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
	return "ollama"
}

// ChatCompletion performs a non-streaming chat request against /api/chat
func (a *Adapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	startTime := time.Now()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	reqBody, err := json.Marshal(buildChatRequest(req))
	if err != nil {
		return nil, providers.NewError(providers.KindInvalidRequest, a.Name(), "failed to encode request", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/api/chat", bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewError(providers.KindInvalidRequest, a.Name(), "failed to create request", 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, providers.NewError(providers.KindUnknown, a.Name(), "failed to decode response", httpResp.StatusCode, err)
	}
	if chatResp.Message.Content == "" && !chatResp.Done {
		return nil, providers.NewError(providers.KindUnknown, a.Name(), "response contained no message", httpResp.StatusCode, nil)
	}

	created, err := time.Parse(time.RFC3339Nano, chatResp.CreatedAt)
	if err != nil {
		created = time.Now()
	}

	return &providers.ChatResponse{
		Provider:     a.Name(),
		Model:        chatResp.Model,
		Content:      chatResp.Message.Content,
		FinishReason: chatResp.DoneReason,
		Usage: providers.Usage{
			PromptTokens:     chatResp.PromptEvalCount,
			CompletionTokens: chatResp.EvalCount,
			TotalTokens:      chatResp.PromptEvalCount + chatResp.EvalCount,
		},
		Latency: time.Since(startTime),
		Created: created,
	}, nil
}

// IsAvailable checks if the Ollama server is reachable
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// Models returns the locally pulled model names
func (a *Adapter) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, providers.NewError(providers.KindInvalidRequest, a.Name(), "failed to create request", 0, err)
	}

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

	var tagsResp tagsResponse
	if err := json.Unmarshal(respBody, &tagsResp); err != nil {
		return nil, providers.NewError(providers.KindUnknown, a.Name(), "failed to decode model list", resp.StatusCode, err)
	}

	models := make([]string, 0, len(tagsResp.Models))
	for _, m := range tagsResp.Models {
		models = append(models, m.Name)
	}
	return models, nil
}

// handleErrorResponse translates an Ollama error body into the taxonomy.
// Ollama reports unknown models as 404 with a plain {"error": "..."} body.
func (a *Adapter) handleErrorResponse(statusCode int, body []byte) error {
	kind := providers.ClassifyStatusCode(statusCode)

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return providers.NewError(kind, a.Name(), fmt.Sprintf("upstream returned status %d", statusCode), statusCode, nil)
	}

	return providers.NewError(kind, a.Name(), errResp.Error, statusCode, nil)
}

// buildChatRequest converts the unified request to the Ollama wire format
func buildChatRequest(req *providers.ChatRequest) *chatRequest {
	wire := &chatRequest{
		Model:    req.Model,
		Messages: make([]chatMessage, len(req.Messages)),
		Stream:   false,
	}
	for i, msg := range req.Messages {
		wire.Messages[i] = chatMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	opts := &chatOptions{}
	hasOpts := false
	if req.Temperature > 0 {
		opts.Temperature = &req.Temperature
		hasOpts = true
	}
	if req.MaxTokens > 0 {
		opts.NumPredict = &req.MaxTokens
		hasOpts = true
	}
	if req.TopP > 0 {
		opts.TopP = &req.TopP
		hasOpts = true
	}
	if len(req.Stop) > 0 {
		opts.Stop = req.Stop
		hasOpts = true
	}
	if hasOpts {
		wire.Options = opts
	}

	return wire
}

// Ollama-specific request/response types

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *chatOptions  `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type chatResponse struct {
	Model           string      `json:"model"`
	CreatedAt       string      `json:"created_at"`
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	DoneReason      string      `json:"done_reason"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type tagsResponse struct {
	Models []modelTag `json:"models"`
}

type modelTag struct {
	Name string `json:"name"`
}
