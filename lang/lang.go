// Package lang identifies which of the two supported languages a text is
// written in and resolves translation direction.
package lang

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Language is a supported conversation language.
type Language string

const (
	Vietnamese Language = "vi"
	Japanese   Language = "ja"
)

// Auto is the source_lang value that asks for classification.
const Auto = "auto"

// japaneseThreshold is the share of Japanese-script runes above which a
// text counts as Japanese.
const japaneseThreshold = 0.3

// ErrUnsupportedLanguage is returned by Parse for anything other than
// auto, vi or ja.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Classify returns Japanese when more than 30% of the runes in text are
// Hiragana, Katakana or Han; otherwise Vietnamese. Empty text is Vietnamese.
func Classify(text string) Language {
	var total, japanese int
	for _, r := range text {
		total++
		if isJapaneseScript(r) {
			japanese++
		}
	}
	if total == 0 {
		return Vietnamese
	}
	if float64(japanese)/float64(total) > japaneseThreshold {
		return Japanese
	}
	return Vietnamese
}

func isJapaneseScript(r rune) bool {
	return unicode.In(r, unicode.Hiragana, unicode.Katakana, unicode.Han)
}

// Complement returns the other supported language.
func Complement(l Language) Language {
	if l == Japanese {
		return Vietnamese
	}
	return Japanese
}

// Name returns the English name used in prompts.
func (l Language) Name() string {
	switch l {
	case Japanese:
		return "Japanese"
	case Vietnamese:
		return "Vietnamese"
	default:
		return string(l)
	}
}

// Valid reports whether l is one of the supported languages.
func (l Language) Valid() bool {
	return l == Vietnamese || l == Japanese
}

// Parse reads a source_lang value. It returns pinned=false for auto (and the
// empty string), meaning the caller should classify the text.
func Parse(s string) (l Language, pinned bool, err error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", Auto:
		return "", false, nil
	case string(Vietnamese):
		return Vietnamese, true, nil
	case string(Japanese):
		return Japanese, true, nil
	default:
		return "", false, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, s)
	}
}

// Resolve returns the detected source and the target for text, honoring a
// pinned source language when one is given.
func Resolve(text, sourceLang string) (source, target Language, err error) {
	source, pinned, err := Parse(sourceLang)
	if err != nil {
		return "", "", err
	}
	if !pinned {
		source = Classify(text)
	}
	return source, Complement(source), nil
}
