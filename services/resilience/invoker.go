package resilience

import (
	"context"

	"github.com/offboardhq/llmbridge/services/providers"
)

// Invoker is the uniform call shape each resilience layer wraps
type Invoker interface {
	ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error)
}

// InvokerFunc adapts a function to the Invoker interface
type InvokerFunc func(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error)

// ChatCompletion implements Invoker
func (f InvokerFunc) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	return f(ctx, req)
}
