// Google Gemini Provider implementation using official google.golang.org/genai SDK.
//
// Information Hiding:
// - API authentication and client creation
// - Request/response format for Gemini API
// - System instruction handling via config
// - Function call and function response parts

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider implements the Provider interface for Google Gemini.
type GeminiProvider struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
	initErr     error // returned on first use
}

// NewGeminiProvider creates a new Gemini provider.
// If client initialization fails, the error is stored and returned on first use.
func NewGeminiProvider(apiKey, model string, maxTokens uint32, temperature float32) *GeminiProvider {
	p := &GeminiProvider{
		model:       model,
		maxTokens:   int32(maxTokens),
		temperature: temperature,
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		p.initErr = fmt.Errorf("failed to initialize Gemini client: %w", err)
		return p
	}
	p.client = client
	return p
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Model returns the current model.
func (p *GeminiProvider) Model() string {
	return p.model
}

// Chat sends a chat completion request.
func (p *GeminiProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return p.ChatWithTools(ctx, messages, nil)
}

// ChatWithTools sends a chat completion request with tool definitions.
func (p *GeminiProvider) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	if p.initErr != nil {
		return LLMResponse{}, p.initErr
	}
	if p.client == nil {
		return LLMResponse{}, fmt.Errorf("gemini client not initialized")
	}

	contents, systemInstruction := convertToGeminiMessages(messages)

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(p.temperature),
		MaxOutputTokens: p.maxTokens,
		Tools:           convertToGeminiTools(tools),
	}
	if systemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}

	response, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return LLMResponse{}, newProviderError(p.Name(), err, geminiStatus)
	}

	content := ""
	var toolCalls []ToolCall
	if len(response.Candidates) > 0 && response.Candidates[0].Content != nil {
		for _, part := range response.Candidates[0].Content.Parts {
			if part.Text != "" {
				content += part.Text
			}
			if part.FunctionCall != nil {
				argsJSON, _ := json.Marshal(part.FunctionCall.Args)
				toolCalls = append(toolCalls, ToolCall{
					ID:        part.FunctionCall.Name, // Gemini has no call IDs
					Name:      part.FunctionCall.Name,
					Arguments: argsJSON,
				})
			}
		}
	}

	var usage *TokenUsage
	if response.UsageMetadata != nil {
		usage = &TokenUsage{
			PromptTokens:     uint32(response.UsageMetadata.PromptTokenCount),
			CompletionTokens: uint32(response.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      uint32(response.UsageMetadata.TotalTokenCount),
		}
	}

	return LLMResponse{Content: content, ToolCalls: toolCalls, Usage: usage}, nil
}

func geminiStatus(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code != 0 {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr.Code != 0 {
		return apiErrPtr.Code, true
	}
	return 0, false
}

// convertToGeminiMessages handles plain turns, tool calls and tool responses.
func convertToGeminiMessages(messages []ChatMessage) ([]*genai.Content, string) {
	var contents []*genai.Content
	var systemInstruction string

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			systemInstruction = msg.Content
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
				continue
			}
			turn := &genai.Content{Role: genai.RoleModel}
			if msg.Content != "" {
				turn.Parts = append(turn.Parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal(tc.Arguments, &args)
				turn.Parts = append(turn.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: args},
				})
			}
			contents = append(contents, turn)
		case RoleTool:
			var result map[string]any
			_ = json.Unmarshal([]byte(msg.Content), &result)
			if result == nil {
				result = map[string]any{"result": msg.Content}
			}
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						Name:     msg.ToolCallID,
						Response: result,
					},
				}},
			})
		}
	}

	return contents, systemInstruction
}

// convertToGeminiTools converts tool definitions to Gemini format.
func convertToGeminiTools(tools []ToolDefinition) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}

	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  convertToGeminiSchema(t.Parameters),
		})
	}

	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// convertToGeminiSchema converts a flat JSON schema object. Tool
// parameters here are scalars, so nested objects are not descended into.
func convertToGeminiSchema(params map[string]interface{}) *genai.Schema {
	schema := &genai.Schema{Type: genai.TypeObject}

	if req, ok := params["required"].([]string); ok {
		schema.Required = req
	}

	if props, ok := params["properties"].(map[string]interface{}); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			propMap, ok := prop.(map[string]interface{})
			if !ok {
				continue
			}
			s := &genai.Schema{}
			if t, ok := propMap["type"].(string); ok {
				s.Type = mapToGeminiType(t)
			}
			if d, ok := propMap["description"].(string); ok {
				s.Description = d
			}
			schema.Properties[name] = s
		}
	}

	return schema
}

// mapToGeminiType maps JSON schema type to Gemini type.
func mapToGeminiType(t string) genai.Type {
	switch t {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

// Verify GeminiProvider implements Provider
var _ Provider = (*GeminiProvider)(nil)
