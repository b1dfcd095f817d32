package app

import (
	"context"
	"fmt"

	"github.com/ent0n29/ollavoice/internal/assistant"
	"github.com/ent0n29/ollavoice/internal/audio"
	"github.com/ent0n29/ollavoice/internal/config"
	"github.com/ent0n29/ollavoice/internal/httpapi"
	"github.com/ent0n29/ollavoice/internal/llm"
	"github.com/ent0n29/ollavoice/internal/locale"
	"github.com/ent0n29/ollavoice/internal/observability"
	"github.com/ent0n29/ollavoice/internal/session"
	"github.com/ent0n29/ollavoice/internal/speech"
	"github.com/ent0n29/ollavoice/internal/stream"
)

// BackendInfo describes the providers that were selected.
type BackendInfo struct {
	LLM         string
	TTS         string
	STT         string
	FFmpegFound bool
}

type BuildResult struct {
	Config      config.Config
	API         *httpapi.Server
	Sessions    *session.Manager
	Assistant   *assistant.Assistant
	Models      *assistant.ModelCatalog
	Catalog     *locale.Catalog
	Synthesizer *speech.Synthesizer
	Metrics     *observability.Metrics
	Backends    BackendInfo
}

// Build wires the service graph shared by the server and the CLI.
func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	catalog, err := locale.Load(cfg.LocaleFile)
	if err != nil {
		return nil, fmt.Errorf("locale catalog init failed: %w", err)
	}

	model, err := llm.NewClient(llm.Config{
		Provider:      cfg.LLMProvider,
		OllamaURL:     cfg.OllamaURL,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		Metrics:       metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("model client init failed: %w", err)
	}

	providers := speech.ProviderConfig{
		TTSProvider:      cfg.TTSProvider,
		GTTSURL:          cfg.GTTSURL,
		OpenAITTSModel:   cfg.OpenAITTSModel,
		OpenAITTSVoice:   cfg.OpenAITTSVoice,
		STTProvider:      cfg.STTProvider,
		DeepgramAPIKey:   cfg.DeepgramAPIKey,
		DeepgramModel:    cfg.DeepgramModel,
		OpenAISTTModel:   cfg.OpenAISTTModel,
		WhisperServerURL: cfg.WhisperServerURL,
		OpenAIBaseURL:    cfg.OpenAIBaseURL,
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
	}
	engine, err := speech.NewEngine(providers)
	if err != nil {
		return nil, fmt.Errorf("tts init failed: %w", err)
	}
	recognizer, err := speech.NewRecognizer(providers)
	if err != nil {
		return nil, fmt.Errorf("stt init failed: %w", err)
	}

	conv := audio.NewConverter(cfg.FFmpegPath, cfg.AudioPipeMode)
	synth := speech.NewSynthesizer(engine, conv, speech.SynthesizerConfig{
		Tempo:    cfg.TTSTempo,
		TempRoot: cfg.AudioTempRoot,
	}, metrics)
	transcriber := speech.NewTranscriber(recognizer, conv, speech.TranscriberConfig{
		TempRoot: cfg.AudioTempRoot,
	}, metrics)

	delimiter, err := stream.ParseDelimiter(cfg.StreamDelimiter)
	if err != nil {
		return nil, err
	}
	policy, err := stream.ParseInterruptPolicy(cfg.StreamInterruptPolicy)
	if err != nil {
		return nil, err
	}
	controller := stream.NewController(model, synth, transcriber, stream.Config{
		Delimiter:       delimiter,
		InterruptPolicy: policy,
		Options:         llm.DefaultOptions(),
	}, metrics)

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.CountSessionEvent("expired")
		metrics.SetActiveSessions(sessions.ActiveCount())
	})

	models := assistant.NewModelCatalog(model, cfg.DefaultModel)
	asst := assistant.New(assistant.Deps{
		Sessions:    sessions,
		Catalog:     catalog,
		Models:      models,
		Controller:  controller,
		Transcriber: transcriber,
		Synthesizer: synth,
		Metrics:     metrics,
	})

	api := httpapi.New(cfg, sessions, asst, models, catalog, metrics)

	return &BuildResult{
		Config:      cfg,
		API:         api,
		Sessions:    sessions,
		Assistant:   asst,
		Models:      models,
		Catalog:     catalog,
		Synthesizer: synth,
		Metrics:     metrics,
		Backends: BackendInfo{
			LLM:         cfg.LLMProvider,
			TTS:         cfg.TTSProvider,
			STT:         cfg.STTProvider,
			FFmpegFound: conv.Available(),
		},
	}, nil
}
