// Package llm provides shared data models for LLM providers.
package llm

import "encoding/json"

// Message roles understood by every provider adapter.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatMessage represents a chat message with role and content.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`  // assistant turns that requested a tool
	ToolCallID string     `json:"tool_call_id,omitempty"` // tool result turns
}

// ToolCall represents a tool call requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition defines a tool that the model can call.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON Schema
}

// SystemMessage creates a system message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content}
}

// ToolCallMessage creates the assistant turn that carries a tool request.
func ToolCallMessage(content string, calls ...ToolCall) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolResultMessage creates the turn that answers a tool request.
func ToolResultMessage(callID, content string) ChatMessage {
	return ChatMessage{Role: RoleTool, Content: content, ToolCallID: callID}
}

// LLMResponse represents a response from an LLM provider.
type LLMResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// TokenUsage contains token usage statistics.
type TokenUsage struct {
	PromptTokens     uint32
	CompletionTokens uint32
	TotalTokens      uint32
}
