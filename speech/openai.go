// OpenAI speech backend using go-openai.
//
// Information Hiding:
// - Client constructed once, on the first request
// - Language to voice mapping
// - Streaming response body read into memory

package speech

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/richinex/kotoba/lang"
	openai "github.com/sashabaranov/go-openai"
)

// Default voices per language.
const (
	DefaultVoiceVietnamese = string(openai.VoiceNova)
	DefaultVoiceJapanese   = string(openai.VoiceAlloy)
	DefaultModel           = string(openai.TTSModel1)
)

// OpenAIConfig configures the OpenAI speech backend.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Voices  map[lang.Language]string
}

// OpenAISynthesizer implements Synthesizer with the OpenAI speech API.
type OpenAISynthesizer struct {
	cfg OpenAIConfig

	once    sync.Once
	client  *openai.Client
	initErr error
}

// NewOpenAISynthesizer creates the backend. Nothing is contacted until
// the first Synthesize call.
func NewOpenAISynthesizer(cfg OpenAIConfig) *OpenAISynthesizer {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	voices := map[lang.Language]string{
		lang.Vietnamese: DefaultVoiceVietnamese,
		lang.Japanese:   DefaultVoiceJapanese,
	}
	for l, v := range cfg.Voices {
		if v != "" {
			voices[l] = v
		}
	}
	cfg.Voices = voices
	return &OpenAISynthesizer{cfg: cfg}
}

func (s *OpenAISynthesizer) init() error {
	s.once.Do(func() {
		if s.cfg.APIKey == "" {
			s.initErr = fmt.Errorf("%w: no API key configured", ErrModelUnavailable)
			return
		}
		config := openai.DefaultConfig(s.cfg.APIKey)
		if s.cfg.BaseURL != "" {
			config.BaseURL = strings.TrimRight(s.cfg.BaseURL, "/")
		}
		s.client = openai.NewClientWithConfig(config)
	})
	return s.initErr
}

// Available reports whether the backend has credentials.
func (s *OpenAISynthesizer) Available() bool {
	return s.init() == nil
}

// Synthesize returns MP3 audio for text.
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string, language lang.Language) (Audio, error) {
	if err := Validate(text, language); err != nil {
		return Audio{}, err
	}
	if err := s.init(); err != nil {
		return Audio{}, err
	}

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.cfg.Model),
		Input:          text,
		Voice:          openai.SpeechVoice(s.cfg.Voices[language]),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return Audio{}, fmt.Errorf("speech generation failed: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return Audio{}, fmt.Errorf("read speech audio: %w", err)
	}
	return Audio{Data: data, ContentType: "audio/mpeg"}, nil
}

// Verify OpenAISynthesizer implements Synthesizer
var _ Synthesizer = (*OpenAISynthesizer)(nil)
