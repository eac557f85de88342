// Application wiring shared by the CLI commands.
//
// Information Hiding:
// - Construction order of provider, gateway, tools, stores and coordinators
// - Provider selection from settings
// - Speech backend selection
// - Journal lifecycle

package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/richinex/kotoba/config"
	"github.com/richinex/kotoba/gateway"
	"github.com/richinex/kotoba/internal/logging"
	"github.com/richinex/kotoba/lang"
	"github.com/richinex/kotoba/llm"
	"github.com/richinex/kotoba/orchestration"
	"github.com/richinex/kotoba/server"
	"github.com/richinex/kotoba/speech"
	"github.com/richinex/kotoba/storage"
	"github.com/richinex/kotoba/tools"
	"github.com/rs/zerolog"
)

// App holds the wired components of the service.
type App struct {
	Settings     config.Settings
	Logger       zerolog.Logger
	Gateway      *gateway.Gateway
	Tools        *tools.Registry
	Contexts     *storage.ContextStore
	Orchestrator *orchestration.Orchestrator
	Batch        *orchestration.BatchCoordinator
	Speech       speech.Synthesizer
	Journal      storage.Journal
}

// NewApp builds every component from settings. Logs go to logOut.
func NewApp(settings config.Settings, logOut io.Writer) (*App, error) {
	provider, err := createProvider(settings.LLM)
	if err != nil {
		return nil, err
	}
	return newApp(settings, provider, logOut)
}

func newApp(settings config.Settings, provider llm.Provider, logOut io.Writer) (*App, error) {
	logger, err := logging.New(logOut, logging.Options{
		Level:  settings.Log.Level,
		Format: settings.Log.Format,
	})
	if err != nil {
		return nil, err
	}

	registry, err := tools.WithDefaults()
	if err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	var journal storage.Journal = storage.NopJournal{}
	if settings.Journal.Path != "" {
		j, err := storage.OpenJournal(settings.Journal.Path)
		if err != nil {
			return nil, err
		}
		journal = j
	}

	gw := gateway.New(provider,
		gateway.WithTimeout(settings.Gateway.Timeout),
		gateway.WithMaxAttempts(settings.Gateway.MaxAttempts),
	)
	contexts := storage.NewContextStore(settings.Context.MaxTurns)

	return &App{
		Settings:     settings,
		Logger:       logger,
		Gateway:      gw,
		Tools:        registry,
		Contexts:     contexts,
		Orchestrator: orchestration.NewOrchestrator(gw, registry, contexts),
		Batch: orchestration.NewBatchCoordinator(gw,
			orchestration.WithMaxItems(settings.Batch.MaxItems),
			orchestration.WithConcurrency(settings.Batch.Concurrency),
		),
		Speech:  createSynthesizer(settings),
		Journal: journal,
	}, nil
}

// Server returns the HTTP server over the app's components.
func (a *App) Server() *server.Server {
	return server.New(server.Deps{
		Translator: a.Orchestrator,
		Batch:      a.Batch,
		Contexts:   a.Contexts,
		Speech:     a.Speech,
		Journal:    a.Journal,
		Logger:     a.Logger,
		Provider:   a.Gateway.Provider().Name(),
		Model:      a.Gateway.Provider().Model(),
	}, server.WithAllowedOrigins(a.Settings.Server.AllowedOrigins))
}

// Close releases the journal.
func (a *App) Close() error {
	return a.Journal.Close()
}

func createProvider(cfg config.LLMConfig) (llm.Provider, error) {
	providerType, err := llm.ParseProviderType(cfg.Provider)
	if err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, errors.New(providerType.EnvVar() + " environment variable not set")
	}

	temperature := float32(cfg.Temperature)
	return providerType.New(cfg.APIKey, llm.Options{
		Model:       cfg.Model,
		BaseURL:     cfg.Endpoint,
		MaxTokens:   cfg.MaxTokens,
		Temperature: &temperature,
	})
}

// createSynthesizer picks the speech backend. Speech always talks to an
// OpenAI-compatible endpoint, whatever the completion provider.
func createSynthesizer(settings config.Settings) speech.Synthesizer {
	if !settings.TTS.Enabled {
		return speech.Unavailable{}
	}
	return speech.NewOpenAISynthesizer(speech.OpenAIConfig{
		APIKey:  settings.TTS.APIKey,
		BaseURL: settings.TTS.Endpoint,
		Model:   settings.TTS.Model,
		Voices: map[lang.Language]string{
			lang.Vietnamese: settings.TTS.VoiceVI,
			lang.Japanese:   settings.TTS.VoiceJA,
		},
	})
}
