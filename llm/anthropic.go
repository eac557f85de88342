// Anthropic Provider implementation using official anthropic-sdk-go.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for the Messages API
// - SDK-level retries are disabled; the gateway owns the retry policy

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements the Provider interface for Anthropic Claude.
type AnthropicProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(apiKey, model string, maxTokens uint32, temperature float32) *AnthropicProvider {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	)

	return &AnthropicProvider{
		client:      client,
		model:       model,
		maxTokens:   int64(maxTokens),
		temperature: float64(temperature),
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Model returns the current model.
func (p *AnthropicProvider) Model() string {
	return p.model
}

// Chat sends a chat completion request.
func (p *AnthropicProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return p.ChatWithTools(ctx, messages, nil)
}

// ChatWithTools sends a chat completion request with tool definitions.
func (p *AnthropicProvider) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	// Tool blocks are only accepted when tools are declared.
	anthropicMessages, systemPrompt := convertToAnthropicMessages(messages, len(tools) == 0)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   p.maxTokens,
		Messages:    anthropicMessages,
		Temperature: anthropic.Float(p.temperature),
	}
	if len(tools) > 0 {
		params.Tools = convertToAnthropicTools(tools)
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return LLMResponse{}, newProviderError(p.Name(), err, anthropicStatus)
	}

	content := ""
	var toolCalls []ToolCall
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += variant.Text
		case anthropic.ToolUseBlock:
			inputJSON, _ := json.Marshal(variant.Input)
			toolCalls = append(toolCalls, ToolCall{
				ID:        variant.ID,
				Name:      variant.Name,
				Arguments: inputJSON,
			})
		}
	}

	var usage *TokenUsage
	if message.Usage.InputTokens > 0 || message.Usage.OutputTokens > 0 {
		usage = &TokenUsage{
			PromptTokens:     uint32(message.Usage.InputTokens),
			CompletionTokens: uint32(message.Usage.OutputTokens),
			TotalTokens:      uint32(message.Usage.InputTokens + message.Usage.OutputTokens),
		}
	}

	return LLMResponse{Content: content, ToolCalls: toolCalls, Usage: usage}, nil
}

func anthropicStatus(err error) (int, bool) {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		return apiErr.StatusCode, true
	}
	return 0, false
}

// convertToAnthropicMessages extracts the system prompt and maps tool
// requests and tool results onto content blocks, or onto plain text when
// flattenTools is set.
func convertToAnthropicMessages(messages []ChatMessage, flattenTools bool) ([]anthropic.MessageParam, string) {
	var anthropicMessages []anthropic.MessageParam
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			systemPrompt = msg.Content
		case RoleUser:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		case RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				anthropicMessages = append(anthropicMessages, anthropic.NewAssistantMessage(
					anthropic.NewTextBlock(msg.Content),
				))
				continue
			}
			if flattenTools {
				text := msg.Content
				for _, tc := range msg.ToolCalls {
					text += fmt.Sprintf("\n[called %s with %s]", tc.Name, string(tc.Arguments))
				}
				anthropicMessages = append(anthropicMessages, anthropic.NewAssistantMessage(
					anthropic.NewTextBlock(strings.TrimSpace(text)),
				))
				continue
			}
			turn := anthropic.MessageParam{Role: anthropic.MessageParamRoleAssistant}
			if msg.Content != "" {
				turn.Content = append(turn.Content, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]interface{}
				_ = json.Unmarshal(tc.Arguments, &input)
				turn.Content = append(turn.Content, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    tc.ID,
						Name:  tc.Name,
						Input: input,
					},
				})
			}
			anthropicMessages = append(anthropicMessages, turn)
		case RoleTool:
			if flattenTools {
				anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
					anthropic.NewTextBlock("[tool result] "+msg.Content),
				))
				continue
			}
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		}
	}

	return anthropicMessages, systemPrompt
}

// convertToAnthropicTools converts tool definitions to Anthropic format.
func convertToAnthropicTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		properties, _ := t.Parameters["properties"].(map[string]interface{})
		required, _ := t.Parameters["required"].([]string)

		toolParam := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
				Required:   required,
			},
		}
		result[i] = anthropic.ToolUnionParam{OfTool: &toolParam}
	}
	return result
}

// Verify AnthropicProvider implements Provider
var _ Provider = (*AnthropicProvider)(nil)
