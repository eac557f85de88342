package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/richinex/kotoba/internal/logging"
	"github.com/richinex/kotoba/lang"
	"github.com/richinex/kotoba/llm"
	"github.com/richinex/kotoba/orchestration"
	"github.com/richinex/kotoba/speech"
	"github.com/richinex/kotoba/storage"
	"github.com/rs/zerolog"
)

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type chatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// translateRequest accepts either a message list, whose last user entry
// is the new turn, or a single legacy message field.
type translateRequest struct {
	Messages   []chatTurn `json:"messages"`
	Message    *string    `json:"message"`
	SourceLang string     `json:"source_lang"`
	UserID     string     `json:"user_id"`
}

type translateResponse struct {
	Reply        string        `json:"reply"`
	DetectedLang lang.Language `json:"detected_lang"`
	TargetLang   lang.Language `json:"target_lang"`
	RequestID    string        `json:"request_id"`
	LatencyMs    int64         `json:"latency_ms"`
	ToolUsed     string        `json:"tool_used,omitempty"`
}

type contextResponse struct {
	UserID        string             `json:"user_id"`
	MessageCount  int                `json:"message_count"`
	ContextLength int                `json:"context_length"`
	Messages      []storage.Exchange `json:"messages"`
}

type clearContextResponse struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

type healthResponse struct {
	Status         string `json:"status"`
	ActiveContexts int    `json:"active_contexts"`
	MaxTurns       int    `json:"max_turns"`
	BatchMaxItems  int    `json:"batch_max_items"`
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	TTSAvailable   bool   `json:"tts_available"`
}

type speechRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type speechResponse struct {
	Audio       string        `json:"audio"`
	ContentType string        `json:"content_type"`
	Language    lang.Language `json:"language"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// latestMessage returns the text of the new turn.
func (req translateRequest) latestMessage() (string, error) {
	if len(req.Messages) > 0 {
		for i := len(req.Messages) - 1; i >= 0; i-- {
			if req.Messages[i].Role == llm.RoleUser {
				return req.Messages[i].Content, nil
			}
		}
		return "", fmt.Errorf("%w: messages contain no user turn", orchestration.ErrInvalidInput)
	}
	if req.Message != nil {
		return *req.Message, nil
	}
	return "", fmt.Errorf("%w: message is required", orchestration.ErrInvalidInput)
}

// ─────────────────────────────────────────────
// Translation handlers
// ─────────────────────────────────────────────

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	entry := storage.Entry{
		RequestID: logging.RequestID(r.Context()),
		Endpoint:  r.URL.Path,
	}

	var req translateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, entry, start, decodeFailure(err))
		return
	}
	entry.UserID = req.UserID
	if entry.UserID == "" {
		entry.UserID = orchestration.DefaultUserID
	}

	message, err := req.latestMessage()
	if err != nil {
		s.fail(w, r, entry, start, failureFor(err))
		return
	}

	out, err := s.deps.Translator.Translate(r.Context(), orchestration.Request{
		UserID:     req.UserID,
		Message:    message,
		SourceLang: req.SourceLang,
		RequestID:  entry.RequestID,
	})
	if err != nil {
		s.fail(w, r, entry, start, failureFor(err))
		return
	}

	entry.ToolUsed = out.ToolUsed
	s.succeed(r, entry, start)
	writeJSON(w, http.StatusOK, translateResponse{
		Reply:        out.Reply,
		DetectedLang: out.DetectedLang,
		TargetLang:   out.TargetLang,
		RequestID:    out.RequestID,
		LatencyMs:    out.Latency.Milliseconds(),
		ToolUsed:     out.ToolUsed,
	})
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	entry := storage.Entry{
		RequestID: logging.RequestID(r.Context()),
		Endpoint:  r.URL.Path,
	}

	items, err := decodeBatch(r)
	if err != nil {
		s.fail(w, r, entry, start, decodeFailure(err))
		return
	}
	entry.Items = len(items)

	results, err := s.deps.Batch.Translate(r.Context(), items)
	if err != nil {
		s.fail(w, r, entry, start, failureFor(err))
		return
	}

	failed := 0
	for _, res := range results {
		if res.Failed() {
			failed++
		}
	}
	if failed > 0 {
		entry.Cause = fmt.Sprintf("%d of %d items failed", failed, len(results))
	}
	s.succeed(r, entry, start)
	writeJSON(w, http.StatusOK, results)
}

// decodeBatch accepts a bare array of items or an object with an items field.
func decodeBatch(r *http.Request) ([]orchestration.BatchItem, error) {
	var raw json.RawMessage
	if err := decodeJSON(r, &raw); err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)

	switch {
	case len(raw) > 0 && raw[0] == '[':
		var items []orchestration.BatchItem
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("invalid batch items: %w", err)
		}
		return items, nil
	case len(raw) > 0 && raw[0] == '{':
		var body struct {
			Items []orchestration.BatchItem `json:"items"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("invalid batch items: %w", err)
		}
		if body.Items == nil {
			return nil, errors.New("items is required")
		}
		return body.Items, nil
	default:
		return nil, errors.New("batch body must be an array or an object with items")
	}
}

// ─────────────────────────────────────────────
// Context handlers
// ─────────────────────────────────────────────

func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	history := s.deps.Contexts.Get(userID)

	writeJSON(w, http.StatusOK, contextResponse{
		UserID:        userID,
		MessageCount:  len(history),
		ContextLength: len(history),
		Messages:      history,
	})
}

func (s *Server) handleClearContext(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	s.deps.Contexts.Clear(userID)

	zerolog.Ctx(r.Context()).Info().Str("user_id", userID).Msg("context cleared")
	writeJSON(w, http.StatusOK, clearContextResponse{
		Message: "context cleared",
		UserID:  userID,
	})
}

// ─────────────────────────────────────────────
// Health, speech and fixtures
// ─────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		ActiveContexts: s.deps.Contexts.Len(),
		MaxTurns:       s.deps.Contexts.MaxTurns(),
		BatchMaxItems:  s.deps.Batch.MaxItems(),
		Provider:       s.deps.Provider,
		Model:          s.deps.Model,
		TTSAvailable:   s.deps.Speech.Available(),
	})
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	entry := storage.Entry{
		RequestID: logging.RequestID(r.Context()),
		Endpoint:  r.URL.Path,
	}

	var req speechRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, entry, start, decodeFailure(err))
		return
	}

	language := lang.Language(strings.ToLower(strings.TrimSpace(req.Language)))
	if err := speech.Validate(req.Text, language); err != nil {
		s.fail(w, r, entry, start, failure{
			status:   http.StatusBadRequest,
			category: "invalid_speech_request",
			message:  "invalid text",
			cause:    err,
		})
		return
	}

	audio, err := s.deps.Speech.Synthesize(r.Context(), req.Text, language)
	switch {
	case errors.Is(err, speech.ErrModelUnavailable):
		s.fail(w, r, entry, start, failure{
			status:   http.StatusServiceUnavailable,
			category: "speech_unavailable",
			message:  "speech model unavailable",
			cause:    err,
		})
		return
	case err != nil:
		s.fail(w, r, entry, start, failure{
			status:   http.StatusInternalServerError,
			category: "speech_failed",
			message:  "speech generation failed",
			cause:    err,
		})
		return
	}

	s.succeed(r, entry, start)
	writeJSON(w, http.StatusOK, speechResponse{
		Audio:       base64.StdEncoding.EncodeToString(audio.Data),
		ContentType: audio.ContentType,
		Language:    language,
	})
}

func (s *Server) handleMockData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, mockData)
}

func (s *Server) handleBatchMock(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, batchMock)
}

// ─────────────────────────────────────────────
// Outcome helpers
// ─────────────────────────────────────────────

// failure is an error response plus what the operator journal records.
type failure struct {
	status   int
	category string
	message  string
	cause    error
}

// failureFor maps a component error onto its HTTP response.
func failureFor(err error) failure {
	category := orchestration.Classify(err)
	return failure{
		status:   statusFor(category),
		category: string(category),
		message:  category.Message(),
		cause:    err,
	}
}

// decodeFailure covers unreadable or oversized request bodies.
func decodeFailure(err error) failure {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return failure{
			status:   http.StatusRequestEntityTooLarge,
			category: string(orchestration.CategoryInvalidInput),
			message:  "request body too large",
			cause:    err,
		}
	}
	return failure{
		status:   http.StatusBadRequest,
		category: string(orchestration.CategoryInvalidInput),
		message:  "invalid request body",
		cause:    err,
	}
}

func statusFor(category orchestration.Category) int {
	switch category {
	case orchestration.CategoryOK:
		return http.StatusOK
	case orchestration.CategoryInvalidInput,
		orchestration.CategoryBatchTooLarge,
		orchestration.CategoryUpstreamClient:
		return http.StatusBadRequest
	case orchestration.CategoryUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, entry storage.Entry, start time.Time, f failure) {
	logger := zerolog.Ctx(r.Context())
	event := logger.Warn()
	if f.status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Err(f.cause).
		Str("category", f.category).
		Int("status", f.status).
		Msg("request failed")

	entry.Status = f.status
	entry.Category = f.category
	if f.cause != nil {
		entry.Cause = f.cause.Error()
	}
	s.record(r.Context(), entry, start)

	writeError(w, r, f.status, f.message)
}

func (s *Server) succeed(r *http.Request, entry storage.Entry, start time.Time) {
	entry.Status = http.StatusOK
	entry.Category = string(orchestration.CategoryOK)
	s.record(r.Context(), entry, start)
}

func (s *Server) record(ctx context.Context, entry storage.Entry, start time.Time) {
	entry.LatencyMs = time.Since(start).Milliseconds()
	if err := s.deps.Journal.Record(context.WithoutCancel(ctx), entry); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("journal write failed")
	}
}

// ─────────────────────────────────────────────
// JSON helpers
// ─────────────────────────────────────────────

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, errorResponse{
		Error:     message,
		RequestID: logging.RequestID(r.Context()),
	})
}
