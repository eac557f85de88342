// Package speech converts text to synthesized audio.
//
// Information Hiding:
// - Speech backend client creation deferred until first use
// - Voice selection per language
// - Audio encoding details
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/richinex/kotoba/lang"
)

// MaxTextRunes is the longest text accepted for synthesis.
const MaxTextRunes = 500

var (
	// ErrModelUnavailable means no speech backend could be initialized.
	ErrModelUnavailable = errors.New("speech model unavailable")

	// ErrInvalidText covers empty or oversized text and unsupported languages.
	ErrInvalidText = errors.New("invalid speech request")
)

// Audio is synthesized speech.
type Audio struct {
	Data        []byte
	ContentType string
}

// Synthesizer turns text into audio in the given language.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, language lang.Language) (Audio, error)

	// Available reports whether Synthesize can succeed at all.
	Available() bool
}

// Validate checks text and language before any backend work.
func Validate(text string, language lang.Language) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: text is empty", ErrInvalidText)
	}
	if n := utf8.RuneCountInString(text); n > MaxTextRunes {
		return fmt.Errorf("%w: text has %d characters, limit is %d", ErrInvalidText, n, MaxTextRunes)
	}
	if !language.Valid() {
		return fmt.Errorf("%w: unsupported language %q", ErrInvalidText, language)
	}
	return nil
}

// Unavailable is the Synthesizer used when speech is disabled.
type Unavailable struct{}

// Synthesize always fails with ErrModelUnavailable.
func (Unavailable) Synthesize(context.Context, string, lang.Language) (Audio, error) {
	return Audio{}, ErrModelUnavailable
}

// Available returns false.
func (Unavailable) Available() bool { return false }

var _ Synthesizer = Unavailable{}
