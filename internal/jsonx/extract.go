// Package jsonx recovers JSON objects from model output.
//
// Models sometimes wrap tool arguments in markdown fences or surround them
// with commentary. Object strips that noise and returns the first complete
// object it can find.
package jsonx

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Object returns the JSON object contained in raw.
//
// Tried in order: the whole (fence-stripped) input, then the span from the
// first '{' to the last '}'. Braces inside strings are not tracked.
func Object(raw string) (json.RawMessage, error) {
	text := stripFences(raw)
	if isObject(text) {
		return json.RawMessage(text), nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		candidate := text[start : end+1]
		if isObject(candidate) {
			return json.RawMessage(candidate), nil
		}
	}

	preview := raw
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return nil, fmt.Errorf("no JSON object in %q", preview)
}

func isObject(s string) bool {
	var m map[string]json.RawMessage
	return json.Unmarshal([]byte(s), &m) == nil
}

// stripFences removes ```json / ``` markers around a payload.
func stripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(trimmed, "```json"); ok {
		trimmed = strings.TrimSpace(rest)
	} else if rest, ok := strings.CutPrefix(trimmed, "```"); ok {
		trimmed = strings.TrimSpace(rest)
	}
	if rest, ok := strings.CutSuffix(trimmed, "```"); ok {
		trimmed = strings.TrimSpace(rest)
	}
	return trimmed
}
