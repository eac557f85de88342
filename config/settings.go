// Package config provides application settings loaded by viper from
// environment variables and an optional YAML file.
//
// Settings are created via Load() which handles:
// - Default value application
// - Environment variable binding (llm.max_tokens reads LLM_MAX_TOKENS)
// - Provider-specific model and API key lookup
// - Speech credentials falling back to the OpenAI ones
// - Validation of ranges and enumerations

package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings holds all application configuration.
type Settings struct {
	LLM     LLMConfig     `mapstructure:"llm"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Context ContextConfig `mapstructure:"context"`
	Batch   BatchConfig   `mapstructure:"batch"`
	Server  ServerConfig  `mapstructure:"server"`
	TTS     SpeechConfig  `mapstructure:"tts"`
	Log     LogConfig     `mapstructure:"log"`
	Journal JournalConfig `mapstructure:"journal"`
}

// LLMConfig holds completion provider configuration. Model, APIKey and
// Endpoint are resolved from the provider-specific variables.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	MaxTokens   uint32  `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`

	Model    string `mapstructure:"-"`
	APIKey   string `mapstructure:"-"`
	Endpoint string `mapstructure:"-"`
}

// GatewayConfig holds the retry policy for completion calls.
type GatewayConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// ContextConfig holds conversation history limits.
type ContextConfig struct {
	MaxTurns int `mapstructure:"max_turns"`
}

// BatchConfig holds batch translation limits.
type BatchConfig struct {
	MaxItems    int `mapstructure:"max_items"`
	Concurrency int `mapstructure:"concurrency"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// SpeechConfig holds text-to-speech configuration. An empty APIKey or
// Endpoint falls back to the OpenAI credentials.
type SpeechConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Model    string `mapstructure:"model"`
	VoiceVI  string `mapstructure:"voice_vi"`
	VoiceJA  string `mapstructure:"voice_ja"`
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// JournalConfig holds the operator journal location. An empty path
// disables the journal.
type JournalConfig struct {
	Path string `mapstructure:"path"`
}

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"openai":    {"OPENAI_MODEL", "gpt-3.5-turbo", "OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_MODEL", "claude-sonnet-4-20250514", "ANTHROPIC_API_KEY"},
	"deepseek":  {"DEEPSEEK_MODEL", "deepseek-chat", "DEEPSEEK_API_KEY"},
	"gemini":    {"GEMINI_MODEL", "gemini-2.5-flash", "GEMINI_API_KEY"},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
}

// endpointEnv names the custom OpenAI-compatible endpoint variable.
const endpointEnv = "OPENAI_ENDPOINT"

// speechProvider supplies fallback credentials for text-to-speech.
const speechProvider = "openai"

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.temperature", 0.3)

	v.SetDefault("gateway.timeout", "15s")
	v.SetDefault("gateway.max_attempts", 3)

	v.SetDefault("context.max_turns", 20)

	v.SetDefault("batch.max_items", 50)
	v.SetDefault("batch.concurrency", 5)

	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.allowed_origins", []string{"http://localhost", "http://127.0.0.1"})

	v.SetDefault("tts.enabled", false)
	v.SetDefault("tts.model", "tts-1")
	v.SetDefault("tts.voice_vi", "")
	v.SetDefault("tts.voice_ja", "")
	v.SetDefault("tts.api_key", "")
	v.SetDefault("tts.endpoint", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("journal.path", "")
}

// Load reads settings from the environment and, when configPath is set,
// from that YAML file. Without a path, config.yaml in the working
// directory is used if present.
func Load(configPath string) (Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return Settings{}, fmt.Errorf("unable to decode settings: %w", err)
	}

	settings.LLM.Provider = normalizeProvider(settings.LLM.Provider)
	info, err := getProviderInfo(settings.LLM.Provider)
	if err != nil {
		return Settings{}, err
	}
	settings.LLM.Model = v.GetString(info.modelEnv)
	if settings.LLM.Model == "" {
		settings.LLM.Model = info.defaultModel
	}
	settings.LLM.APIKey = v.GetString(info.apiKeyEnv)
	if settings.LLM.Provider == speechProvider {
		settings.LLM.Endpoint = v.GetString(endpointEnv)
	}

	if settings.TTS.APIKey == "" {
		settings.TTS.APIKey = v.GetString(providers[speechProvider].apiKeyEnv)
	}
	if settings.TTS.Endpoint == "" {
		settings.TTS.Endpoint = v.GetString(endpointEnv)
	}

	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// Validate checks ranges and enumerations.
func (s Settings) Validate() error {
	var errs []error
	if s.LLM.MaxTokens == 0 {
		errs = append(errs, errors.New("llm.max_tokens must be positive"))
	}
	if s.LLM.Temperature < 0 || s.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be in [0, 2], got %v", s.LLM.Temperature))
	}
	if s.Gateway.Timeout <= 0 {
		errs = append(errs, errors.New("gateway.timeout must be positive"))
	}
	if s.Gateway.MaxAttempts < 1 {
		errs = append(errs, errors.New("gateway.max_attempts must be at least 1"))
	}
	if s.Context.MaxTurns < 1 {
		errs = append(errs, errors.New("context.max_turns must be at least 1"))
	}
	if s.Batch.MaxItems < 1 {
		errs = append(errs, errors.New("batch.max_items must be at least 1"))
	}
	if s.Batch.Concurrency < 1 {
		errs = append(errs, errors.New("batch.concurrency must be at least 1"))
	}
	switch s.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", s.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, fmt.Errorf("unknown provider: %q (supported: %s)",
			provider, strings.Join(SupportedProviders(), ", "))
	}
	return info, nil
}

// SupportedProviders returns the sorted list of supported provider names.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}
