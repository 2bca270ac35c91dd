// Package interview provides the conversational assistant built on top of
// the llmclient pipeline: reply generation for an ongoing conversation and
// sentiment analysis of candidate answers.
package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/offboardhq/llmbridge/services/providers"
)

// ErrAssistantUnavailable marks any failure of the underlying pipeline so
// callers can show a stable degradation message. The provider error stays
// inspectable through errors.As.
var ErrAssistantUnavailable = errors.New("assistant unavailable")

// Turn is one exchange in a conversation.
type Turn = providers.Message

// ChatClient is the slice of the pipeline client the service needs.
type ChatClient interface {
	Chat(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error)
}

// Config sets the service defaults. Every field may be overridden per call
// through ReplyOptions.
type Config struct {
	// SystemPrompt sets the assistant persona. Optional.
	SystemPrompt string

	// Model overrides the client default when set.
	Model string

	// MaxTokens bounds generated replies. Zero leaves it to the provider.
	MaxTokens int

	// Temperature for reply generation. Sentiment analysis always runs
	// with the provider default.
	Temperature float64
}

// ReplyOptions carries per-call overrides for GenerateReply. Zero values
// fall back to the service configuration.
type ReplyOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Service generates assistant replies and classifies answer sentiment.
type Service struct {
	client ChatClient
	config Config
	logger *zap.Logger
}

// NewService creates the interview service.
func NewService(client ChatClient, config Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		client: client,
		config: config,
		logger: logger,
	}
}

// GenerateReply produces the assistant's next turn for a conversation. The
// history must already contain the user's latest message.
func (s *Service) GenerateReply(ctx context.Context, history []Turn, opts ReplyOptions) (string, error) {
	if len(history) == 0 {
		return "", providers.NewError(providers.KindInvalidRequest, "", "conversation is empty", 0, nil)
	}

	model := opts.Model
	if model == "" {
		model = s.config.Model
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = s.config.MaxTokens
	}
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = s.config.Temperature
	}

	resp, err := s.client.Chat(ctx, &providers.ChatRequest{
		Model:       model,
		Messages:    buildMessages(s.config.SystemPrompt, history),
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		s.logger.Warn("reply generation failed", zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrAssistantUnavailable, err)
	}

	s.logger.Debug("reply generated",
		zap.Int("history_turns", len(history)),
		zap.Int("reply_chars", len(resp.Content)))
	return resp.Content, nil
}

// AnalyzeSentiment classifies the sentiment of a single answer.
func (s *Service) AnalyzeSentiment(ctx context.Context, text string) (Sentiment, error) {
	if strings.TrimSpace(text) == "" {
		return Sentiment{}, providers.NewError(providers.KindInvalidRequest, "", "text is empty", 0, nil)
	}

	resp, err := s.client.Chat(ctx, &providers.ChatRequest{
		Model: s.config.Model,
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: sentimentSystemPrompt},
			{Role: providers.RoleUser, Content: text},
		},
		MaxTokens: sentimentMaxTokens,
	})
	if err != nil {
		s.logger.Warn("sentiment analysis failed", zap.Error(err))
		return Sentiment{}, fmt.Errorf("%w: %w", ErrAssistantUnavailable, err)
	}

	result, err := parseSentiment(resp.Content, resp.Provider)
	if err != nil {
		s.logger.Warn("sentiment response rejected", zap.Error(err))
		return Sentiment{}, err
	}

	s.logger.Debug("sentiment analyzed",
		zap.String("label", result.Label),
		zap.Float64("score", result.Score))
	return result, nil
}

// buildMessages prepends the persona prompt to the conversation.
func buildMessages(systemPrompt string, history []Turn) []providers.Message {
	messages := make([]providers.Message, 0, len(history)+1)
	if systemPrompt != "" {
		messages = append(messages, providers.Message{Role: providers.RoleSystem, Content: systemPrompt})
	}
	return append(messages, history...)
}
