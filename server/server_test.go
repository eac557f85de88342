package server_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/richinex/kotoba/gateway"
	"github.com/richinex/kotoba/internal/llmtest"
	"github.com/richinex/kotoba/lang"
	"github.com/richinex/kotoba/llm"
	"github.com/richinex/kotoba/orchestration"
	"github.com/richinex/kotoba/server"
	"github.com/richinex/kotoba/speech"
	"github.com/richinex/kotoba/storage"
	"github.com/richinex/kotoba/tools"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

type fakeSynthesizer struct {
	err   error
	calls int
	mu    sync.Mutex
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, text string, _ lang.Language) (speech.Audio, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return speech.Audio{}, f.err
	}
	return speech.Audio{Data: []byte("mp3:" + text), ContentType: "audio/mpeg"}, nil
}

func (f *fakeSynthesizer) Available() bool { return f.err == nil }

type testServer struct {
	handler  http.Handler
	provider *llmtest.Provider
	store    *storage.ContextStore
	journal  *storage.SqliteJournal
}

func newTestServer(t *testing.T, synth speech.Synthesizer, steps ...llmtest.Step) testServer {
	t.Helper()

	registry, err := tools.WithDefaults()
	require.NoError(t, err)

	journal, err := storage.NewJournalInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	p := llmtest.New(steps...)
	gw := gateway.New(p, gateway.WithBackoff(0))
	store := storage.NewContextStore(storage.DefaultMaxTurns)

	srv := server.New(server.Deps{
		Translator: orchestration.NewOrchestrator(gw, registry, store),
		Batch:      orchestration.NewBatchCoordinator(gw),
		Contexts:   store,
		Speech:     synth,
		Journal:    journal,
		Logger:     zerolog.Nop(),
		Provider:   p.Name(),
		Model:      p.Model(),
	})
	return testServer{handler: srv, provider: p, store: store, journal: journal}
}

func (ts testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body=%s", w.Body.String())
	return v
}

func TestTranslateLegacyMessage(t *testing.T) {
	ts := newTestServer(t, nil, llmtest.Reply("こんにちは"))

	w := ts.do(t, http.MethodPost, "/api/translate", `{"message":"Xin chào","user_id":"u1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode[map[string]any](t, w)
	assert.Equal(t, "こんにちは", body["reply"])
	assert.Equal(t, "vi", body["detected_lang"])
	assert.Equal(t, "ja", body["target_lang"])
	assert.Contains(t, body, "latency_ms")
	assert.Equal(t, w.Header().Get("X-Request-ID"), body["request_id"])
	assert.NotContains(t, body, "tool_used")

	assert.Len(t, ts.store.Get("u1"), 2)
}

func TestTranslateMessagesUsesLastUserTurn(t *testing.T) {
	ts := newTestServer(t, nil, llmtest.Reply("Xin chào"))

	w := ts.do(t, http.MethodPost, "/api/chat", `{
		"messages": [
			{"role":"user","content":"ignored"},
			{"role":"assistant","content":"also ignored"},
			{"role":"user","content":"こんにちは"}
		],
		"source_lang": "auto",
		"user_id": "u2"
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	calls := ts.provider.Calls()
	require.Len(t, calls, 1)
	last := calls[0].Messages[len(calls[0].Messages)-1]
	assert.Equal(t, "こんにちは", last.Content)

	body := decode[map[string]any](t, w)
	assert.Equal(t, "ja", body["detected_lang"])
}

func TestTranslateEchoesRequestID(t *testing.T) {
	ts := newTestServer(t, nil, llmtest.Reply("こんにちは"))

	req := httptest.NewRequest(http.MethodPost, "/api/translate", strings.NewReader(`{"message":"Xin chào"}`))
	req.Header.Set("X-Request-ID", "caller-supplied")
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "caller-supplied", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "caller-supplied", decode[map[string]any](t, w)["request_id"])
}

func TestTranslateWithTool(t *testing.T) {
	ts := newTestServer(t, nil,
		llmtest.ToolRequest("call_1", tools.ReimbursementToolName, map[string]any{"amount": 100, "days": 3}),
		llmtest.Reply("払い戻し総額は250ドルです。"),
	)

	w := ts.do(t, http.MethodPost, "/api/translate",
		`{"message":"Tôi đã chi 100 đô la cho 3 ngày công tác","user_id":"trip"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode[map[string]any](t, w)
	assert.Equal(t, tools.ReimbursementToolName, body["tool_used"])

	entries, err := ts.journal.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, tools.ReimbursementToolName, entries[0].ToolUsed)
	assert.Equal(t, "trip", entries[0].UserID)
}

func TestTranslateRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"message":`},
		{"missing message", `{"user_id":"u1"}`},
		{"empty message", `{"message":""}`},
		{"blank message", `{"message":"   "}`},
		{"too long", fmt.Sprintf(`{"message":%q}`, strings.Repeat("a", orchestration.MaxMessageRunes+1))},
		{"no user turn", `{"messages":[{"role":"assistant","content":"hi"}]}`},
		{"bad source lang", `{"message":"hello","source_lang":"en"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			w := ts.do(t, http.MethodPost, "/api/translate", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			body := decode[map[string]any](t, w)
			assert.NotEmpty(t, body["error"])
			assert.NotEmpty(t, body["request_id"])
			assert.Empty(t, ts.provider.Calls())
		})
	}
}

func TestTranslateUpstreamFailures(t *testing.T) {
	tests := []struct {
		name       string
		steps      []llmtest.Step
		wantStatus int
		wantCalls  int
	}{
		{"exhausted retries", []llmtest.Step{llmtest.Status(500), llmtest.Status(502), llmtest.Status(503)}, http.StatusBadGateway, 3},
		{"client error", []llmtest.Step{llmtest.Status(401)}, http.StatusBadRequest, 1},
		{"recovers", []llmtest.Step{llmtest.Status(500), llmtest.Reply("こんにちは")}, http.StatusOK, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil, tt.steps...)
			w := ts.do(t, http.MethodPost, "/api/translate", `{"message":"Xin chào","user_id":"u1"}`)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Len(t, ts.provider.Calls(), tt.wantCalls)

			if tt.wantStatus != http.StatusOK {
				assert.Empty(t, ts.store.Get("u1"))
				assert.NotContains(t, w.Body.String(), "status 50")
			}
		})
	}
}

func TestTranslateJournalsFailureCategory(t *testing.T) {
	ts := newTestServer(t, nil, llmtest.Status(500), llmtest.Status(500), llmtest.Status(500))

	w := ts.do(t, http.MethodPost, "/api/translate", `{"message":"Xin chào"}`)
	require.Equal(t, http.StatusBadGateway, w.Code)

	counts, err := ts.journal.CountByCategory(context.Background(), time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, counts[string(orchestration.CategoryUpstreamUnavailable)])

	entries, err := ts.journal.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, orchestration.DefaultUserID, entries[0].UserID)
	assert.Contains(t, entries[0].Cause, "after 3 attempts")
}

func TestBatch(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.provider.Respond = func(messages []llm.ChatMessage, _ []llm.ToolDefinition) (llm.LLMResponse, error) {
		text := messages[len(messages)-1].Content
		return llm.LLMResponse{Content: "translated:" + text}, nil
	}

	w := ts.do(t, http.MethodPost, "/api/batch",
		`[{"id":1,"text":"Xin chào"},{"id":2,"text":"こんにちは"},{"id":"three","text":""}]`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	results := decode[[]map[string]any](t, w)
	require.Len(t, results, 3)

	assert.Equal(t, float64(1), results[0]["id"])
	assert.Equal(t, "translated:Xin chào", results[0]["translation"])
	assert.Equal(t, "vi", results[0]["source_lang"])
	assert.Equal(t, "ja", results[0]["target_lang"])

	assert.Equal(t, float64(2), results[1]["id"])
	assert.Equal(t, "ja", results[1]["source_lang"])

	assert.Equal(t, "three", results[2]["id"])
	assert.NotEmpty(t, results[2]["error"])
	assert.NotContains(t, results[2], "translation")
}

func TestBatchAcceptsItemsObject(t *testing.T) {
	ts := newTestServer(t, nil, llmtest.Reply("こんにちは"))

	w := ts.do(t, http.MethodPost, "/api/batch", `{"items":[{"id":1,"text":"Xin chào"}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode[[]map[string]any](t, w), 1)
}

func TestBatchRejects(t *testing.T) {
	var items []string
	for i := range orchestration.DefaultBatchMaxItems + 1 {
		items = append(items, fmt.Sprintf(`{"id":%d,"text":"Xin chào"}`, i))
	}
	tooMany := "[" + strings.Join(items, ",") + "]"

	tests := []struct {
		name string
		body string
	}{
		{"too many items", tooMany},
		{"invalid json", `[{"id":1,`},
		{"scalar body", `"hello"`},
		{"object without items", `{"id":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			w := ts.do(t, http.MethodPost, "/api/batch", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Empty(t, ts.provider.Calls())
		})
	}
}

func TestContextInspectAndClear(t *testing.T) {
	ts := newTestServer(t, nil, llmtest.Reply("こんにちは"))

	w := ts.do(t, http.MethodPost, "/api/translate", `{"message":"Xin chào","user_id":"ctx-user"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/context/ctx-user", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "ctx-user", body["user_id"])
	assert.Equal(t, float64(2), body["message_count"])
	assert.Equal(t, float64(2), body["context_length"])
	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0].(map[string]any)["role"])

	w = ts.do(t, http.MethodDelete, "/api/context/ctx-user", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ctx-user", decode[map[string]any](t, w)["user_id"])

	// Clearing twice is fine.
	w = ts.do(t, http.MethodDelete, "/api/context/ctx-user", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/context/ctx-user", "")
	body = decode[map[string]any](t, w)
	assert.Equal(t, float64(0), body["message_count"])
	assert.Equal(t, []any{}, body["messages"])
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.store.Append("someone", storage.Exchange{Role: "user", Content: "x"})

	w := ts.do(t, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[map[string]any](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["active_contexts"])
	assert.Equal(t, float64(storage.DefaultMaxTurns), body["max_turns"])
	assert.Equal(t, float64(orchestration.DefaultBatchMaxItems), body["batch_max_items"])
	assert.Equal(t, "fake", body["provider"])
	assert.Equal(t, "fake-model", body["model"])
	assert.Equal(t, false, body["tts_available"])
}

func TestSpeech(t *testing.T) {
	synth := &fakeSynthesizer{}
	ts := newTestServer(t, synth)

	w := ts.do(t, http.MethodPost, "/api/tts", `{"text":"こんにちは","language":"ja"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode[map[string]any](t, w)
	audio, err := base64.StdEncoding.DecodeString(body["audio"].(string))
	require.NoError(t, err)
	assert.Equal(t, "mp3:こんにちは", string(audio))
	assert.Equal(t, "audio/mpeg", body["content_type"])
	assert.Equal(t, "ja", body["language"])
}

func TestSpeechErrors(t *testing.T) {
	tests := []struct {
		name       string
		synth      speech.Synthesizer
		body       string
		wantStatus int
	}{
		{"empty text", &fakeSynthesizer{}, `{"text":"","language":"vi"}`, http.StatusBadRequest},
		{"too long", &fakeSynthesizer{}, fmt.Sprintf(`{"text":%q,"language":"vi"}`, strings.Repeat("a", speech.MaxTextRunes+1)), http.StatusBadRequest},
		{"bad language", &fakeSynthesizer{}, `{"text":"hi","language":"en"}`, http.StatusBadRequest},
		{"disabled", nil, `{"text":"Xin chào","language":"vi"}`, http.StatusServiceUnavailable},
		{"generation error", &fakeSynthesizer{err: errors.New("decoder crashed")}, `{"text":"Xin chào","language":"vi"}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.synth)
			w := ts.do(t, http.MethodPost, "/api/tts", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.NotContains(t, w.Body.String(), "decoder crashed")
		})
	}
}

func TestMockEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)
	for _, path := range []string{"/api/mock-data", "/api/batch-mock"} {
		w := ts.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.True(t, json.Valid(w.Body.Bytes()), path)
	}
	assert.Empty(t, ts.provider.Calls())
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/translate", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestBodyLimit(t *testing.T) {
	ts := newTestServer(t, nil)
	big := fmt.Sprintf(`{"message":%q}`, strings.Repeat("a", server.DefaultMaxBodyBytes))

	req := httptest.NewRequest(http.MethodPost, "/api/translate", bytes.NewReader([]byte(big)))
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(t, http.MethodGet, "/api/translate", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

type panickingTranslator struct{}

func (panickingTranslator) Translate(context.Context, orchestration.Request) (orchestration.Outcome, error) {
	panic("boom")
}

func TestRecovery(t *testing.T) {
	srv := server.New(server.Deps{
		Translator: panickingTranslator{},
		Contexts:   storage.NewContextStore(0),
		Logger:     zerolog.Nop(),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/translate", strings.NewReader(`{"message":"Xin chào"}`))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestRunStopsOnCancel(t *testing.T) {
	srv := server.New(server.Deps{Contexts: storage.NewContextStore(0), Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
