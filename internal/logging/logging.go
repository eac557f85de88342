// Package logging builds the service's zerolog loggers and carries
// request-scoped loggers through context.Context.
//
// Information Hiding:
// - Output format selection (JSON lines or console)
// - Level parsing
// - Context keys for request ids
package logging

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Formats accepted by New.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Options configures a logger.
type Options struct {
	Level  string
	Format string
}

// New creates a logger writing to w.
func New(w io.Writer, opts Options) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	switch opts.Format {
	case "", FormatJSON:
	case FormatConsole:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q", opts.Format)
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

type requestIDKey struct{}

// WithRequest returns a context carrying the request id and a child of
// logger tagged with it, retrievable with zerolog.Ctx.
func WithRequest(ctx context.Context, logger zerolog.Logger, requestID string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey{}, requestID)
	child := logger.With().Str("request_id", requestID).Logger()
	return child.WithContext(ctx)
}

// RequestID returns the request id stored by WithRequest, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
