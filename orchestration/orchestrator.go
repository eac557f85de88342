// Conversation orchestrator.
//
// Information Hiding:
// - Order of steps for one conversational request
// - Two-phase tool protocol (request, execute, follow-up)
// - What gets written back to the user's context

package orchestration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/richinex/kotoba/gateway"
	"github.com/richinex/kotoba/lang"
	"github.com/richinex/kotoba/llm"
	"github.com/richinex/kotoba/storage"
	"github.com/richinex/kotoba/tools"
	"github.com/rs/zerolog"
)

// Completer issues completion calls under the retry policy.
type Completer interface {
	Complete(ctx context.Context, messages []llm.ChatMessage, tools []llm.ToolDefinition) (gateway.Completion, error)
}

// ToolRunner exposes tool declarations and executes requested calls.
type ToolRunner interface {
	Definitions() []llm.ToolDefinition
	Execute(ctx context.Context, name string, args json.RawMessage) (tools.ToolResult, error)
}

// ContextStore reserves a user's history for the duration of a request.
type ContextStore interface {
	Begin(userID string) *storage.Pending
}

var errEmptyReply = errors.New("completion returned no text")

// Orchestrator runs conversational translation requests.
// Safe for concurrent use.
type Orchestrator struct {
	completer Completer
	tools     ToolRunner
	store     ContextStore
}

// NewOrchestrator wires the collaborators of a conversation.
func NewOrchestrator(completer Completer, runner ToolRunner, store ContextStore) *Orchestrator {
	return &Orchestrator{
		completer: completer,
		tools:     runner,
		store:     store,
	}
}

// toolMetadata is stored with the assistant turn when a tool ran.
type toolMetadata struct {
	Name      string          `json:"name"`
	CallID    string          `json:"call_id,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    json.RawMessage `json:"result"`
	Success   bool            `json:"success"`
}

// Translate runs one request to completion. On success exactly two
// exchanges are appended to the user's context; on failure nothing is.
// Errors are *StageError values wrapping ErrInvalidInput or a gateway error.
func (o *Orchestrator) Translate(ctx context.Context, req Request) (Outcome, error) {
	start := time.Now()
	logger := zerolog.Ctx(ctx)

	// Received
	if err := ValidateMessage(req.Message); err != nil {
		return Outcome{}, failAt(StageReceived, err)
	}
	safe := Sanitize(req.Message)

	// LanguageResolved
	source, target, err := lang.Resolve(safe, req.SourceLang)
	if err != nil {
		return Outcome{}, failAt(StageLanguageResolved, fmt.Errorf("%w: %w", ErrInvalidInput, err))
	}

	// HistoryLoaded
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = DefaultUserID
	}
	pending := o.store.Begin(userID)
	defer pending.Abort()

	definitions := o.tools.Definitions()
	names := make([]string, len(definitions))
	for i, d := range definitions {
		names[i] = d.Name
	}
	messages := composeMessages(source, target, names, pending.History(), safe)

	// FirstCompletionPending
	var stats TokenStats
	first, err := o.completer.Complete(ctx, messages, definitions)
	if err != nil {
		return Outcome{}, failAt(StageFirstCompletion, err)
	}
	stats.AddUsage(first.Usage)

	reply := first.Text
	var (
		toolUsed string
		meta     json.RawMessage
	)
	if first.RequestsTool() {
		// ToolExecuting
		call := *first.ToolCall
		result := o.runTool(ctx, call)
		toolUsed = call.Name

		meta, err = json.Marshal(toolMetadata{
			Name:      call.Name,
			CallID:    call.ID,
			Arguments: validJSON(call.Arguments),
			Result:    json.RawMessage(result.Content()),
			Success:   result.Success(),
		})
		if err != nil {
			return Outcome{}, failAt(StageToolExecuting, fmt.Errorf("encode tool metadata: %w", err))
		}

		// FollowupCompletionPending
		followup := make([]llm.ChatMessage, 0, len(messages)+2)
		followup = append(followup, messages...)
		followup = append(followup,
			llm.ToolCallMessage(first.Text, call),
			llm.ToolResultMessage(call.ID, result.Content()),
		)
		second, err := o.completer.Complete(ctx, followup, nil)
		if err != nil {
			return Outcome{}, failAt(StageFollowupCompletion, err)
		}
		stats.AddUsage(second.Usage)

		reply = second.Text
		if strings.TrimSpace(reply) == "" {
			reply = result.Summary
		}
	}

	// ReplyReady
	if strings.TrimSpace(reply) == "" {
		return Outcome{}, failAt(StageReplyReady, errEmptyReply)
	}

	// ContextUpdated
	pending.Commit(
		storage.Exchange{Role: llm.RoleUser, Content: safe},
		storage.Exchange{Role: llm.RoleAssistant, Content: reply, ToolMetadata: meta},
	)

	out := Outcome{
		Reply:        reply,
		DetectedLang: source,
		TargetLang:   target,
		RequestID:    req.RequestID,
		Latency:      time.Since(start),
		ToolUsed:     toolUsed,
		Tokens:       stats,
	}

	logger.Debug().
		Str("stage", StageDone.String()).
		Str("source_lang", string(source)).
		Str("target_lang", string(target)).
		Str("tool", toolUsed).
		Int("llm_calls", stats.LLMCalls).
		Uint32("total_tokens", stats.TotalTokens).
		Dur("latency", out.Latency).
		Msg("translation complete")

	return out, nil
}

// runTool executes call. Failures become an error result for the model
// rather than failing the request.
func (o *Orchestrator) runTool(ctx context.Context, call llm.ToolCall) tools.ToolResult {
	result, err := o.tools.Execute(ctx, call.Name, call.Arguments)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("tool", call.Name).Msg("tool call failed, continuing with error result")
		return tools.FailureResult(err)
	}
	if !result.Success() {
		zerolog.Ctx(ctx).Warn().Err(result.Error).Str("tool", call.Name).Msg("tool reported failure")
	}
	return result
}

func validJSON(raw json.RawMessage) json.RawMessage {
	if json.Valid(raw) {
		return raw
	}
	quoted, _ := json.Marshal(string(raw))
	return quoted
}
