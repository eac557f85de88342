package orchestration

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/richinex/kotoba/lang"
	"github.com/richinex/kotoba/llm"
	"github.com/richinex/kotoba/storage"
)

var htmlEscaper = strings.NewReplacer("<", "&lt;", ">", "&gt;")

// Sanitize escapes angle brackets so stored and echoed text cannot carry markup.
func Sanitize(s string) string {
	return htmlEscaper.Replace(s)
}

// ValidateMessage checks that msg is non-blank and at most MaxMessageRunes
// characters long.
func ValidateMessage(msg string) error {
	if strings.TrimSpace(msg) == "" {
		return fmt.Errorf("%w: message is empty", ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(msg); n > MaxMessageRunes {
		return fmt.Errorf("%w: message has %d characters, limit is %d", ErrInvalidInput, n, MaxMessageRunes)
	}
	return nil
}

// systemPrompt states the translation direction and output rules.
func systemPrompt(source, target lang.Language, toolNames []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an interpreter between Vietnamese and Japanese in an ongoing conversation. "+
		"Translate the user's latest message from %s into %s.\n", source.Name(), target.Name())
	b.WriteString("Rules:\n")
	b.WriteString("- Reply with the translation only. No explanations, notes, romanization or quotation marks.\n")
	b.WriteString("- Keep the tone and politeness level of the original.\n")
	b.WriteString("- Keep names, numbers and line breaks as they are.\n")
	b.WriteString("- Use earlier turns only to resolve references; do not translate them again.\n")
	if len(toolNames) > 0 {
		fmt.Fprintf(&b, "- If the user asks to calculate a business trip reimbursement, call %s "+
			"and present its result in %s.\n", strings.Join(toolNames, " or "), target.Name())
	}
	return b.String()
}

// composeMessages builds the request: system instruction, prior turns,
// then the new user turn.
func composeMessages(source, target lang.Language, toolNames []string, history []storage.Exchange, message string) []llm.ChatMessage {
	messages := make([]llm.ChatMessage, 0, len(history)+2)
	messages = append(messages, llm.SystemMessage(systemPrompt(source, target, toolNames)))
	for _, ex := range history {
		switch ex.Role {
		case llm.RoleUser:
			messages = append(messages, llm.UserMessage(ex.Content))
		case llm.RoleAssistant:
			messages = append(messages, llm.AssistantMessage(ex.Content))
		}
	}
	return append(messages, llm.UserMessage(message))
}

// batchMessages builds a stateless single-shot request.
func batchMessages(source, target lang.Language, text string) []llm.ChatMessage {
	return []llm.ChatMessage{
		llm.SystemMessage(systemPrompt(source, target, nil)),
		llm.UserMessage(text),
	}
}
