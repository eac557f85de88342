// Completion backend construction.
//
// Information Hiding:
// - Provider names and aliases accepted in settings
// - Which environment variable holds each backend's key
// - Fallback model, token limit and temperature
//
//	p, err := llm.ProviderOpenAI.New(apiKey, llm.Options{BaseURL: "https://llm.internal/v1"})

package llm

import (
	"fmt"
	"strings"
)

// ProviderType identifies a completion backend.
type ProviderType int

const (
	// ProviderOpenAI is OpenAI or any compatible endpoint.
	ProviderOpenAI ProviderType = iota
	ProviderAnthropic
	ProviderDeepSeek
	ProviderGemini
)

// Fallback models.
const (
	ModelOpenAIGPT35Turbo       = "gpt-3.5-turbo"
	ModelAnthropicClaudeSonnet4 = "claude-sonnet-4-20250514"
	ModelDeepSeekChat           = "deepseek-chat"
	ModelGeminiFlash            = "gemini-2.5-flash"
)

const (
	defaultMaxTokens   = 1024
	defaultTemperature = 0.3
)

type backend struct {
	name   string
	keyEnv string
	model  string
}

var backends = map[ProviderType]backend{
	ProviderOpenAI:    {"openai", "OPENAI_API_KEY", ModelOpenAIGPT35Turbo},
	ProviderAnthropic: {"anthropic", "ANTHROPIC_API_KEY", ModelAnthropicClaudeSonnet4},
	ProviderDeepSeek:  {"deepseek", "DEEPSEEK_API_KEY", ModelDeepSeekChat},
	ProviderGemini:    {"gemini", "GEMINI_API_KEY", ModelGeminiFlash},
}

var providerNames = map[string]ProviderType{
	"openai":    ProviderOpenAI,
	"gpt":       ProviderOpenAI,
	"anthropic": ProviderAnthropic,
	"claude":    ProviderAnthropic,
	"deepseek":  ProviderDeepSeek,
	"gemini":    ProviderGemini,
	"google":    ProviderGemini,
}

func (p ProviderType) String() string {
	if b, ok := backends[p]; ok {
		return b.name
	}
	return "unknown"
}

// EnvVar names the variable holding this backend's API key.
func (p ProviderType) EnvVar() string {
	return backends[p].keyEnv
}

// DefaultModel is used when Options.Model is empty.
func (p ProviderType) DefaultModel() string {
	return backends[p].model
}

// ParseProviderType accepts a provider name or alias, ignoring case.
func ParseProviderType(s string) (ProviderType, error) {
	p, ok := providerNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown provider: %s", s)
	}
	return p, nil
}

// Options tune a backend. Zero Model and MaxTokens take the fallbacks;
// a nil Temperature means 0.3.
type Options struct {
	Model       string
	BaseURL     string // OpenAI only
	MaxTokens   uint32
	Temperature *float32
}

// New builds the backend with apiKey.
func (p ProviderType) New(apiKey string, opts Options) (Provider, error) {
	model := opts.Model
	if model == "" {
		model = p.DefaultModel()
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := float32(defaultTemperature)
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}

	switch p {
	case ProviderOpenAI:
		return NewOpenAIProvider(apiKey, opts.BaseURL, model, maxTokens, temperature), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(apiKey, model, maxTokens, temperature), nil
	case ProviderDeepSeek:
		return NewDeepSeekProvider(apiKey, model, maxTokens, temperature), nil
	case ProviderGemini:
		return NewGeminiProvider(apiKey, model, maxTokens, temperature), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %d", p)
	}
}
