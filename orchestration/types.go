// Package orchestration drives a translation request through language
// resolution, conversation context, completion calls and tool execution.
//
// Types shared by the conversation orchestrator and the batch coordinator.
package orchestration

import (
	"errors"
	"fmt"
	"time"

	"github.com/richinex/kotoba/lang"
	"github.com/richinex/kotoba/llm"
)

// DefaultUserID is the context key used when a request carries no user id.
// Every such caller shares one history.
const DefaultUserID = "anonymous"

// MaxMessageRunes is the longest accepted message, in characters.
const MaxMessageRunes = 1000

var (
	// ErrInvalidInput covers empty or oversized messages and unsupported
	// source languages.
	ErrInvalidInput = errors.New("invalid input")

	// ErrBatchTooLarge is returned before any item is processed.
	ErrBatchTooLarge = errors.New("batch too large")
)

// Stage names a step of the conversation state machine.
type Stage int

const (
	StageReceived Stage = iota
	StageLanguageResolved
	StageHistoryLoaded
	StageFirstCompletion
	StageToolExecuting
	StageFollowupCompletion
	StageReplyReady
	StageContextUpdated
	StageDone
)

// String returns the stage name used in logs.
func (s Stage) String() string {
	switch s {
	case StageReceived:
		return "received"
	case StageLanguageResolved:
		return "language_resolved"
	case StageHistoryLoaded:
		return "history_loaded"
	case StageFirstCompletion:
		return "first_completion"
	case StageToolExecuting:
		return "tool_executing"
	case StageFollowupCompletion:
		return "followup_completion"
	case StageReplyReady:
		return "reply_ready"
	case StageContextUpdated:
		return "context_updated"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// StageError records where a request failed. The wrapped error keeps its
// category for errors.Is.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func failAt(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// Request is one conversational translation request.
type Request struct {
	UserID     string
	Message    string
	SourceLang string // "auto", "vi" or "ja"; empty means auto
	RequestID  string
}

// Outcome is a completed translation.
type Outcome struct {
	Reply        string        `json:"reply"`
	DetectedLang lang.Language `json:"detected_lang"`
	TargetLang   lang.Language `json:"target_lang"`
	RequestID    string        `json:"request_id"`
	Latency      time.Duration `json:"-"`
	ToolUsed     string        `json:"tool_used,omitempty"`
	Tokens       TokenStats    `json:"-"`
}

// TokenStats tracks token usage across the completion calls of one request.
type TokenStats struct {
	PromptTokens     uint32 `json:"prompt_tokens"`
	CompletionTokens uint32 `json:"completion_tokens"`
	TotalTokens      uint32 `json:"total_tokens"`
	LLMCalls         int    `json:"llm_calls"`
}

// AddUsage adds token usage from an LLM call.
func (ts *TokenStats) AddUsage(usage *llm.TokenUsage) {
	ts.LLMCalls++
	if usage == nil {
		return
	}
	ts.PromptTokens += usage.PromptTokens
	ts.CompletionTokens += usage.CompletionTokens
	ts.TotalTokens += usage.TotalTokens
}
