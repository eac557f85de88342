package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LLM_PROVIDER", "LLM_MAX_TOKENS", "LLM_TEMPERATURE",
		"OPENAI_MODEL", "OPENAI_API_KEY", "OPENAI_ENDPOINT",
		"ANTHROPIC_MODEL", "ANTHROPIC_API_KEY", "GEMINI_MODEL",
		"GATEWAY_TIMEOUT", "GATEWAY_MAX_ATTEMPTS",
		"CONTEXT_MAX_TURNS", "BATCH_MAX_ITEMS", "BATCH_CONCURRENCY",
		"SERVER_ADDR", "SERVER_ALLOWED_ORIGINS",
		"TTS_ENABLED", "TTS_API_KEY", "TTS_ENDPOINT", "LOG_FORMAT", "LOG_LEVEL", "JOURNAL_PATH",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	// Keep a stray config.yaml in the package dir from being picked up.
	t.Chdir(t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	settings, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", settings.LLM.Provider)
	}
	if settings.LLM.Model != "gpt-3.5-turbo" {
		t.Errorf("expected model 'gpt-3.5-turbo', got %q", settings.LLM.Model)
	}
	if settings.LLM.MaxTokens != 1024 {
		t.Errorf("expected max tokens 1024, got %d", settings.LLM.MaxTokens)
	}
	if settings.Gateway.Timeout != 15*time.Second {
		t.Errorf("expected timeout 15s, got %v", settings.Gateway.Timeout)
	}
	if settings.Gateway.MaxAttempts != 3 {
		t.Errorf("expected 3 attempts, got %d", settings.Gateway.MaxAttempts)
	}
	if settings.Context.MaxTurns != 20 {
		t.Errorf("expected 20 turns, got %d", settings.Context.MaxTurns)
	}
	if settings.Batch.MaxItems != 50 || settings.Batch.Concurrency != 5 {
		t.Errorf("unexpected batch config: %+v", settings.Batch)
	}
	if settings.Server.Addr != ":5000" {
		t.Errorf("expected addr ':5000', got %q", settings.Server.Addr)
	}
	if len(settings.Server.AllowedOrigins) != 2 {
		t.Errorf("expected 2 default origins, got %v", settings.Server.AllowedOrigins)
	}
	if settings.TTS.Enabled {
		t.Error("expected speech disabled by default")
	}
	if settings.Journal.Path != "" {
		t.Errorf("expected journal disabled, got %q", settings.Journal.Path)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_PROVIDER", "claude")
	t.Setenv("ANTHROPIC_MODEL", "claude-haiku")
	t.Setenv("ANTHROPIC_API_KEY", "secret")
	t.Setenv("GATEWAY_TIMEOUT", "3s")
	t.Setenv("CONTEXT_MAX_TURNS", "4")
	t.Setenv("SERVER_ALLOWED_ORIGINS", "http://a.example,http://b.example")
	t.Setenv("TTS_ENABLED", "true")

	settings, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "anthropic" {
		t.Errorf("expected provider 'anthropic' (normalized from 'claude'), got %q", settings.LLM.Provider)
	}
	if settings.LLM.Model != "claude-haiku" || settings.LLM.APIKey != "secret" {
		t.Errorf("unexpected LLM config: %+v", settings.LLM)
	}
	if settings.Gateway.Timeout != 3*time.Second {
		t.Errorf("expected timeout 3s, got %v", settings.Gateway.Timeout)
	}
	if settings.Context.MaxTurns != 4 {
		t.Errorf("expected 4 turns, got %d", settings.Context.MaxTurns)
	}
	if got := strings.Join(settings.Server.AllowedOrigins, " "); got != "http://a.example http://b.example" {
		t.Errorf("unexpected origins: %q", got)
	}
	if !settings.TTS.Enabled {
		t.Error("expected speech enabled")
	}
}

func TestLoadOpenAIEndpoint(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_ENDPOINT", "https://proxy.internal/v1")

	settings, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Endpoint != "https://proxy.internal/v1" {
		t.Errorf("expected custom endpoint, got %q", settings.LLM.Endpoint)
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "kotoba.yaml")
	content := "batch:\n  max_items: 10\nlog:\n  format: console\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	settings, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Batch.MaxItems != 10 {
		t.Errorf("expected 10 items, got %d", settings.Batch.MaxItems)
	}
	if settings.Log.Format != "console" {
		t.Errorf("expected console format, got %q", settings.Log.Format)
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for explicit missing config file")
	}
}

func TestLoadUnknownProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_PROVIDER", "unknown_provider")
	_, err := Load("")
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if !strings.Contains(err.Error(), "anthropic, deepseek, gemini, openai") {
		t.Errorf("expected supported providers in error, got %v", err)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"LLM_MAX_TOKENS", "not-a-number"},
		{"LLM_TEMPERATURE", "3.5"},
		{"GATEWAY_MAX_ATTEMPTS", "0"},
		{"CONTEXT_MAX_TURNS", "0"},
		{"BATCH_CONCURRENCY", "0"},
		{"LOG_FORMAT", "xml"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			if _, err := Load(""); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestLoadSpeechCredentialsFromFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_PROVIDER", "anthropic")
	path := filepath.Join(t.TempDir(), "kotoba.yaml")
	content := "openai_api_key: sk-file\nopenai_endpoint: https://proxy.internal/v1\ntts:\n  enabled: true\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	settings, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.TTS.APIKey != "sk-file" {
		t.Errorf("expected speech key from file, got %q", settings.TTS.APIKey)
	}
	if settings.TTS.Endpoint != "https://proxy.internal/v1" {
		t.Errorf("expected speech endpoint from file, got %q", settings.TTS.Endpoint)
	}
	if settings.LLM.Endpoint != "" {
		t.Errorf("expected no completion endpoint for anthropic, got %q", settings.LLM.Endpoint)
	}
}

func TestLoadSpeechCredentialsOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-chat")
	t.Setenv("TTS_API_KEY", "sk-speech")
	t.Setenv("TTS_ENDPOINT", "https://speech.internal/v1")

	settings, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.APIKey != "sk-chat" {
		t.Errorf("expected completion key sk-chat, got %q", settings.LLM.APIKey)
	}
	if settings.TTS.APIKey != "sk-speech" {
		t.Errorf("expected speech key sk-speech, got %q", settings.TTS.APIKey)
	}
	if settings.TTS.Endpoint != "https://speech.internal/v1" {
		t.Errorf("expected speech endpoint override, got %q", settings.TTS.Endpoint)
	}
}

func TestSupportedProviders(t *testing.T) {
	got := strings.Join(SupportedProviders(), ",")
	if got != "anthropic,deepseek,gemini,openai" {
		t.Errorf("unexpected providers: %q", got)
	}
}
