// Package tools provides the deterministic side calculations the model may
// request during a conversation.
//
// Information Hiding:
// - Tool execution details hidden behind interface
// - Parameter schemas derived from ToolParameter declarations
// - Argument validation internalized in the registry
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownTool is returned when a requested tool is not registered.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidArguments is returned when tool arguments fail validation.
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// ToolParameter defines a parameter schema for a tool.
type ToolParameter struct {
	Name        string `json:"name"`
	ParamType   string `json:"param_type"` // JSON Schema type: number, integer, string, boolean
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// ToolMetadata describes what a tool does and how to use it.
type ToolMetadata struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
}

// String returns a string representation of the tool metadata.
func (m ToolMetadata) String() string {
	return fmt.Sprintf("%s: %s", m.Name, m.Description)
}

// Schema returns the JSON Schema object for the tool's arguments.
// "required" is a []string so provider converters can read it directly,
// and is omitted when no parameter is required.
func (m ToolMetadata) Schema() map[string]interface{} {
	properties := make(map[string]interface{}, len(m.Parameters))
	var required []string
	for _, p := range m.Parameters {
		properties[p.Name] = map[string]interface{}{
			"type":        p.ParamType,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ToolResult represents the result of a tool execution.
// Success is determined by whether Error is nil.
type ToolResult struct {
	Summary string          `json:"-"` // human-readable one-liner
	Data    json.RawMessage `json:"-"` // structured output handed back to the model
	Error   error           `json:"-"`
}

// MarshalJSON renders the payload sent back to the model: the structured
// data on success, an error object otherwise.
func (t ToolResult) MarshalJSON() ([]byte, error) {
	if t.Error != nil {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{Error: t.Error.Error()})
	}
	if len(t.Data) > 0 {
		return t.Data, nil
	}
	return json.Marshal(struct {
		Summary string `json:"summary"`
	}{Summary: t.Summary})
}

// Success returns true if the tool execution succeeded.
func (t ToolResult) Success() bool {
	return t.Error == nil
}

// Content returns the JSON text for a tool result turn.
func (t ToolResult) Content() string {
	b, err := t.MarshalJSON()
	if err != nil {
		return `{"error":"unencodable tool result"}`
	}
	return string(b)
}

// SuccessResult creates a successful tool result.
func SuccessResult(summary string, data json.RawMessage) ToolResult {
	return ToolResult{Summary: summary, Data: data}
}

// FailureResult creates a failed tool result.
func FailureResult(err error) ToolResult {
	return ToolResult{Error: err}
}

// Tool is the interface that all tools must implement.
type Tool interface {
	// Metadata returns tool metadata (name, description, parameters).
	Metadata() ToolMetadata

	// Execute runs the tool with already validated arguments.
	Execute(ctx context.Context, args json.RawMessage) (ToolResult, error)

	// Validate applies checks the schema cannot express.
	Validate(args json.RawMessage) error
}
