// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/richinex/kotoba/llm"
)

// ErrScriptExhausted is returned once every scripted step has been used
// and no Respond function is set.
var ErrScriptExhausted = errors.New("llmtest: script exhausted")

// Step is one scripted provider answer.
type Step struct {
	Response llm.LLMResponse
	Err      error
	Hang     bool // block until the call's context ends, then report a timeout
}

// Call records one request the provider received.
type Call struct {
	Messages []llm.ChatMessage
	Tools    []llm.ToolDefinition
}

// Provider replays steps in order, then falls back to Respond.
type Provider struct {
	// Respond answers calls after the script runs out. Must be safe for
	// concurrent use.
	Respond func(messages []llm.ChatMessage, tools []llm.ToolDefinition) (llm.LLMResponse, error)

	mu    sync.Mutex
	steps []Step
	calls []Call
}

// New creates a provider that replays steps.
func New(steps ...Step) *Provider {
	return &Provider{steps: steps}
}

// Name returns "fake".
func (p *Provider) Name() string { return "fake" }

// Model returns "fake-model".
func (p *Provider) Model() string { return "fake-model" }

// Chat records the call and returns the next step.
func (p *Provider) Chat(ctx context.Context, messages []llm.ChatMessage) (llm.LLMResponse, error) {
	return p.next(ctx, messages, nil)
}

// ChatWithTools records the call and returns the next step.
func (p *Provider) ChatWithTools(ctx context.Context, messages []llm.ChatMessage, tools []llm.ToolDefinition) (llm.LLMResponse, error) {
	return p.next(ctx, messages, tools)
}

func (p *Provider) next(ctx context.Context, messages []llm.ChatMessage, tools []llm.ToolDefinition) (llm.LLMResponse, error) {
	p.mu.Lock()
	msgs := make([]llm.ChatMessage, len(messages))
	copy(msgs, messages)
	p.calls = append(p.calls, Call{Messages: msgs, Tools: tools})

	var (
		step   Step
		script bool
	)
	if len(p.steps) > 0 {
		step, p.steps, script = p.steps[0], p.steps[1:], true
	}
	respond := p.Respond
	p.mu.Unlock()

	if !script {
		if respond == nil {
			return llm.LLMResponse{}, ErrScriptExhausted
		}
		return respond(messages, tools)
	}

	if step.Hang {
		<-ctx.Done()
		return llm.LLMResponse{}, &llm.ProviderError{Provider: "fake", Class: llm.ClassTimeout, Err: ctx.Err()}
	}
	return step.Response, step.Err
}

// Calls returns every request received so far.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// Reply scripts a direct text answer.
func Reply(text string) Step {
	return Step{Response: llm.LLMResponse{Content: text}}
}

// ToolRequest scripts a single tool call.
func ToolRequest(id, name string, args any) Step {
	raw, err := json.Marshal(args)
	if err != nil {
		panic(fmt.Sprintf("llmtest: marshal tool args: %v", err))
	}
	return Step{Response: llm.LLMResponse{
		ToolCalls: []llm.ToolCall{{ID: id, Name: name, Arguments: raw}},
	}}
}

// Status scripts a failure with an HTTP status.
func Status(code int) Step {
	return Step{Err: StatusError(code)}
}

// Timeout scripts an attempt that runs until its deadline.
func Timeout() Step {
	return Step{Hang: true}
}

// StatusError builds the error a real adapter returns for code.
func StatusError(code int) error {
	return &llm.ProviderError{
		Provider:   "fake",
		Class:      llm.ClassifyStatus(code),
		StatusCode: code,
		Err:        fmt.Errorf("status %d", code),
	}
}

// Verify Provider implements llm.Provider
var _ llm.Provider = (*Provider)(nil)
