// Package gateway wraps an llm.Provider with the retry and timeout policy
// used for every completion call.
//
// Information Hiding:
// - Per-attempt deadlines derived from the caller's context
// - Reduction of each attempt to success, retryable or fatal
// - Backoff between attempts
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/richinex/kotoba/llm"
	"github.com/rs/zerolog"
)

// Defaults for the completion policy.
const (
	DefaultTimeout     = 15 * time.Second
	DefaultMaxAttempts = 3
	DefaultBackoff     = 200 * time.Millisecond
	maxBackoff         = 2 * time.Second
)

var (
	// ErrUpstreamClient means the service rejected the request (4xx).
	// It is never retried.
	ErrUpstreamClient = errors.New("upstream rejected request")

	// ErrUpstreamUnavailable means every attempt failed with a server
	// error or timeout.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Completion is the result of a successful completion call: either a
// direct reply or a request to run a tool.
type Completion struct {
	Text     string
	ToolCall *llm.ToolCall // first requested call; nil for a direct reply
	Usage    *llm.TokenUsage
	Attempts int
}

// RequestsTool reports whether the model asked for a tool instead of replying.
func (c Completion) RequestsTool() bool {
	return c.ToolCall != nil
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithTimeout bounds each individual attempt.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithMaxAttempts sets the total number of attempts, including the first.
func WithMaxAttempts(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithBackoff sets the base delay between attempts. Zero disables waiting.
func WithBackoff(d time.Duration) Option {
	return func(g *Gateway) {
		if d >= 0 {
			g.backoff = d
		}
	}
}

// Gateway issues completion requests under the retry policy.
// Safe for concurrent use.
type Gateway struct {
	provider    llm.Provider
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
}

// New creates a Gateway over provider.
func New(provider llm.Provider, opts ...Option) *Gateway {
	g := &Gateway{
		provider:    provider,
		timeout:     DefaultTimeout,
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Provider returns the underlying provider.
func (g *Gateway) Provider() llm.Provider {
	return g.provider
}

type outcome int

const (
	succeeded outcome = iota
	retryable
	fatal
)

type attemptResult struct {
	outcome outcome
	resp    llm.LLMResponse
	err     error
}

// Complete sends messages, with tools attached only when non-empty.
//
// A 4xx fails immediately with ErrUpstreamClient. Server errors and
// timeouts are retried; once attempts run out the result is
// ErrUpstreamUnavailable. Errors without a status are returned unchanged.
// Both sentinels wrap the last provider error.
func (g *Gateway) Complete(ctx context.Context, messages []llm.ChatMessage, tools []llm.ToolDefinition) (Completion, error) {
	logger := zerolog.Ctx(ctx)

	var last attemptResult
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := g.wait(ctx, attempt); err != nil {
				return Completion{Attempts: attempt - 1}, err
			}
		}

		last = g.attempt(ctx, messages, tools)
		switch last.outcome {
		case succeeded:
			return newCompletion(last.resp, attempt), nil
		case fatal:
			return Completion{Attempts: attempt}, last.err
		}

		logger.Warn().
			Err(last.err).
			Str("provider", g.provider.Name()).
			Int("attempt", attempt).
			Int("max_attempts", g.maxAttempts).
			Msg("completion attempt failed, retrying")
	}

	return Completion{Attempts: g.maxAttempts},
		fmt.Errorf("%w after %d attempts: %w", ErrUpstreamUnavailable, g.maxAttempts, last.err)
}

// attempt runs one call under its own deadline and classifies the result.
func (g *Gateway) attempt(ctx context.Context, messages []llm.ChatMessage, tools []llm.ToolDefinition) attemptResult {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var (
		resp llm.LLMResponse
		err  error
	)
	if len(tools) > 0 {
		resp, err = g.provider.ChatWithTools(callCtx, messages, tools)
	} else {
		resp, err = g.provider.Chat(callCtx, messages)
	}
	if err == nil {
		return attemptResult{outcome: succeeded, resp: resp}
	}

	// The caller gave up; the per-attempt deadline did not fire.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return attemptResult{outcome: fatal, err: fmt.Errorf("completion cancelled: %w", ctxErr)}
	}

	var pe *llm.ProviderError
	if !errors.As(err, &pe) {
		if errors.Is(err, context.DeadlineExceeded) {
			return attemptResult{outcome: retryable, err: err}
		}
		return attemptResult{outcome: fatal, err: err}
	}

	switch pe.Class {
	case llm.ClassClient:
		return attemptResult{outcome: fatal, err: fmt.Errorf("%w: %w", ErrUpstreamClient, err)}
	case llm.ClassServer, llm.ClassTimeout:
		return attemptResult{outcome: retryable, err: err}
	default:
		return attemptResult{outcome: fatal, err: err}
	}
}

// wait sleeps before the given attempt with exponential backoff.
func (g *Gateway) wait(ctx context.Context, attempt int) error {
	if g.backoff == 0 {
		return ctx.Err()
	}
	delay := g.backoff * time.Duration(1<<(attempt-2))
	if delay > maxBackoff {
		delay = maxBackoff
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("completion cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func newCompletion(resp llm.LLMResponse, attempts int) Completion {
	c := Completion{Text: resp.Content, Usage: resp.Usage, Attempts: attempts}
	if len(resp.ToolCalls) > 0 {
		call := resp.ToolCalls[0]
		c.ToolCall = &call
	}
	return c
}
