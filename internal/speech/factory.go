package speech

import (
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ProviderConfig selects and configures the speech backends.
type ProviderConfig struct {
	TTSProvider    string
	GTTSURL        string
	OpenAITTSModel string
	OpenAITTSVoice string

	STTProvider      string
	DeepgramAPIKey   string
	DeepgramModel    string
	OpenAISTTModel   string
	WhisperServerURL string

	OpenAIBaseURL string
	OpenAIAPIKey  string
}

func (c ProviderConfig) openAIClient() *openai.Client {
	cfg := openai.DefaultConfig(c.OpenAIAPIKey)
	if base := strings.TrimSpace(c.OpenAIBaseURL); base != "" {
		cfg.BaseURL = strings.TrimRight(base, "/")
	}
	return openai.NewClientWithConfig(cfg)
}

func NewEngine(cfg ProviderConfig) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.TTSProvider)) {
	case "", "gtts":
		return NewGTTSEngine(cfg.GTTSURL), nil
	case "openai":
		return NewOpenAIEngine(cfg.openAIClient(), cfg.OpenAITTSModel, cfg.OpenAITTSVoice), nil
	case "mock":
		return NewMockEngine(), nil
	default:
		return nil, fmt.Errorf("%w %q", errUnsupportedEngine, cfg.TTSProvider)
	}
}

func NewRecognizer(cfg ProviderConfig) (Recognizer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.STTProvider)) {
	case "", "deepgram":
		return NewDeepgramRecognizer(cfg.DeepgramAPIKey, cfg.DeepgramModel)
	case "openai":
		return NewOpenAIRecognizer(cfg.openAIClient(), cfg.OpenAISTTModel), nil
	case "whisper-server":
		if strings.TrimSpace(cfg.WhisperServerURL) == "" {
			return nil, fmt.Errorf("whisper server url is required for whisper-server provider")
		}
		return NewWhisperServerRecognizer(cfg.WhisperServerURL), nil
	case "mock":
		return NewMockRecognizer(), nil
	default:
		return nil, fmt.Errorf("unsupported stt provider %q", cfg.STTProvider)
	}
}
