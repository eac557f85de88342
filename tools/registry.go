// Tool registry.
//
// Information Hiding:
// - Tool storage and lookup implementation hidden
// - Compiled argument schemas kept alongside each tool
// - Fenced or commented arguments normalized before validation

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/richinex/kotoba/internal/jsonx"
	"github.com/richinex/kotoba/llm"
	"github.com/xeipuuv/gojsonschema"
)

type entry struct {
	tool   Tool
	schema *gojsonschema.Schema
}

// Registry manages available tools. It is populated at startup and read
// concurrently afterwards.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]entry
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]entry),
	}
}

// Register adds a new tool to the registry.
// Returns error if a tool with the same name already exists or its
// parameter schema does not compile.
func (r *Registry) Register(tool Tool) error {
	meta := tool.Metadata()
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(meta.Schema()))
	if err != nil {
		return fmt.Errorf("tool '%s' schema: %w", meta.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[meta.Name]; exists {
		return fmt.Errorf("tool '%s' already registered", meta.Name)
	}
	r.tools[meta.Name] = entry{tool: tool, schema: schema}
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.tools[name]
	return e.tool, exists
}

// Has checks if a tool exists in the registry.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns all registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns metadata for all registered tools, sorted by name.
func (r *Registry) List() []ToolMetadata {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	metadata := make([]ToolMetadata, 0, len(names))
	for _, name := range names {
		if e, ok := r.tools[name]; ok {
			metadata = append(metadata, e.tool.Metadata())
		}
	}
	return metadata
}

// Definitions returns the tool declarations attached to a completion request.
func (r *Registry) Definitions() []llm.ToolDefinition {
	list := r.List()
	defs := make([]llm.ToolDefinition, len(list))
	for i, meta := range list {
		defs[i] = llm.ToolDefinition{
			Name:        meta.Name,
			Description: meta.Description,
			Parameters:  meta.Schema(),
		}
	}
	return defs
}

// Description returns a formatted description of all tools, used by the
// CLI listing and in the system prompt hint.
func (r *Registry) Description() string {
	var descriptions []string
	for _, meta := range r.List() {
		var params []string
		for _, p := range meta.Parameters {
			required := "optional"
			if p.Required {
				required = "required"
			}
			params = append(params, fmt.Sprintf("  - %s (%s): %s [%s]",
				p.Name, p.ParamType, p.Description, required))
		}

		descriptions = append(descriptions, fmt.Sprintf(
			"Tool: %s\nDescription: %s\nParameters:\n%s",
			meta.Name, meta.Description, strings.Join(params, "\n")))
	}

	return strings.Join(descriptions, "\n\n")
}

// Execute validates args against the tool's schema and runs it.
// Unknown names wrap ErrUnknownTool; rejected arguments wrap ErrInvalidArguments.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return ToolResult{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	normalized, err := normalizeArguments(args)
	if err != nil {
		return ToolResult{}, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	result, err := e.schema.Validate(gojsonschema.NewBytesLoader(normalized))
	if err != nil {
		return ToolResult{}, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return ToolResult{}, fmt.Errorf("%w: %s", ErrInvalidArguments, strings.Join(problems, "; "))
	}

	if err := e.tool.Validate(normalized); err != nil {
		return ToolResult{}, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	return e.tool.Execute(ctx, normalized)
}

// normalizeArguments accepts a JSON object, possibly wrapped in a code
// fence. Empty arguments become an empty object.
func normalizeArguments(args json.RawMessage) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(args))
	if trimmed == "" {
		return json.RawMessage(`{}`), nil
	}
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}
	return jsonx.Object(trimmed)
}

// WithDefaults creates a registry holding every built-in tool.
func WithDefaults() (*Registry, error) {
	registry := NewRegistry()

	for _, t := range []Tool{
		NewReimbursementTool(DefaultDailyRate),
	} {
		if err := registry.Register(t); err != nil {
			return nil, fmt.Errorf("failed to register default tools: %w", err)
		}
	}

	return registry, nil
}
