// OpenAI Provider implementation using go-openai library.
//
// Information Hiding:
// - API endpoint and authentication (custom OpenAI-compatible endpoints included)
// - Request/response format for the Chat Completions API
// - Mapping of APIError/RequestError status codes onto ProviderError

package llm

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements the Provider interface for OpenAI and any
// service that speaks the same Chat Completions protocol.
type OpenAIProvider struct {
	client      *openai.Client
	name        string
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAIProvider creates a new OpenAI provider. An empty baseURL uses
// the public OpenAI endpoint.
func NewOpenAIProvider(apiKey, baseURL, model string, maxTokens uint32, temperature float32) *OpenAIProvider {
	return newOpenAICompatible("openai", apiKey, baseURL, model, maxTokens, temperature)
}

func newOpenAICompatible(name, apiKey, baseURL, model string, maxTokens uint32, temperature float32) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = strings.TrimRight(baseURL, "/")
	}

	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(config),
		name:        name,
		model:       model,
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Model returns the current model.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Chat sends a chat completion request.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return p.ChatWithTools(ctx, messages, nil)
}

// ChatWithTools sends a chat completion request with tool definitions.
// Tool choice is left to the service.
func (p *OpenAIProvider) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    convertToOpenAIMessages(messages),
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	}
	if len(tools) > 0 {
		req.Tools = convertToOpenAITools(tools)
		req.ToolChoice = "auto"
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return LLMResponse{}, newProviderError(p.name, err, openAIStatus)
	}

	content := ""
	var toolCalls []ToolCall
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		for _, tc := range resp.Choices[0].Message.ToolCalls {
			toolCalls = append(toolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: []byte(tc.Function.Arguments),
			})
		}
	}

	usage := &TokenUsage{
		PromptTokens:     uint32(resp.Usage.PromptTokens),
		CompletionTokens: uint32(resp.Usage.CompletionTokens),
		TotalTokens:      uint32(resp.Usage.TotalTokens),
	}

	return LLMResponse{Content: content, ToolCalls: toolCalls, Usage: usage}, nil
}

// openAIStatus pulls the HTTP status out of go-openai errors. APIError is
// returned when the body decoded as an error object, RequestError otherwise.
func openAIStatus(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}

// convertToOpenAIMessages handles plain turns, tool calls and tool responses.
func convertToOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		result[i] = oaiMsg
	}
	return result
}

// convertToOpenAITools converts tool definitions to OpenAI format.
func convertToOpenAITools(tools []ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return result
}

// Verify OpenAIProvider implements Provider
var _ Provider = (*OpenAIProvider)(nil)
