// Package llm provides the completion-service abstraction used by the
// translation gateway.
//
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Classification of provider failures into ProviderError
//
// Retry policy lives in the gateway package, not here.

package llm

import (
	"context"
)

// Provider defines the abstract interface for LLM completion backends.
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Model returns the current model being used.
	Model() string

	// Chat sends a chat completion request without tools.
	Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error)

	// ChatWithTools sends a chat completion request with tool definitions.
	// The service decides whether to call a tool; requested calls are
	// returned in LLMResponse.ToolCalls.
	ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error)
}
