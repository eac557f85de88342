// Package server exposes the translation service over HTTP.
//
// Information Hiding:
// - Route table and request/response DTOs
// - Mapping of error categories onto HTTP status codes
// - Middleware order (request id, access log, CORS, recovery, body limit)
// - Graceful shutdown of the listener
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/richinex/kotoba/orchestration"
	"github.com/richinex/kotoba/speech"
	"github.com/richinex/kotoba/storage"
	"github.com/rs/zerolog"
)

// DefaultMaxBodyBytes caps request bodies.
const DefaultMaxBodyBytes = 1 << 20

const shutdownTimeout = 10 * time.Second

// Translator runs conversational translations.
type Translator interface {
	Translate(ctx context.Context, req orchestration.Request) (orchestration.Outcome, error)
}

// BatchTranslator runs stateless batch translations.
type BatchTranslator interface {
	Translate(ctx context.Context, items []orchestration.BatchItem) ([]orchestration.BatchResult, error)
	MaxItems() int
}

// Contexts inspects and clears stored conversations.
type Contexts interface {
	Get(userID string) []storage.Exchange
	Clear(userID string)
	Len() int
	MaxTurns() int
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Translator Translator
	Batch      BatchTranslator
	Contexts   Contexts
	Speech     speech.Synthesizer // nil means speech is unavailable
	Journal    storage.Journal    // nil disables journaling
	Logger     zerolog.Logger

	// Reported by the health route.
	Provider string
	Model    string
}

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins sets the origins granted CORS access.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithMaxBodyBytes caps request body size. Non-positive values are ignored.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// Server routes HTTP requests to the translation components.
type Server struct {
	deps           Deps
	allowedOrigins []string
	maxBodyBytes   int64
	handler        http.Handler
}

// New builds a Server and its route table.
func New(deps Deps, opts ...Option) *Server {
	if deps.Speech == nil {
		deps.Speech = speech.Unavailable{}
	}
	if deps.Journal == nil {
		deps.Journal = storage.NopJournal{}
	}

	s := &Server{
		deps:           deps,
		allowedOrigins: []string{"http://localhost", "http://127.0.0.1"},
		maxBodyBytes:   DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/translate", s.handleTranslate)
	mux.HandleFunc("POST /api/chat", s.handleTranslate)
	mux.HandleFunc("POST /api/batch", s.handleBatch)
	mux.HandleFunc("GET /api/context/{user_id}", s.handleGetContext)
	mux.HandleFunc("DELETE /api/context/{user_id}", s.handleClearContext)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/tts", s.handleSpeech)
	mux.HandleFunc("GET /api/mock-data", s.handleMockData)
	mux.HandleFunc("GET /api/batch-mock", s.handleBatchMock)

	// Applied inside out: the request id wraps everything.
	s.handler = chainMiddlewares(mux,
		s.withBodyLimit,
		s.withRecovery,
		s.withCORS,
		s.withAccessLog,
		s.withRequestID,
	)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.Info().Str("addr", addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	<-errCh
	s.deps.Logger.Info().Msg("server stopped")
	return nil
}
