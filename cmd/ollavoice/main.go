package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ent0n29/ollavoice/internal/app"
	"github.com/ent0n29/ollavoice/internal/config"
	"github.com/ent0n29/ollavoice/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config error")
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	built, err := app.Build(runCtx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	log.Info().
		Str("llm", built.Backends.LLM).
		Str("tts", built.Backends.TTS).
		Str("stt", built.Backends.STT).
		Str("model", built.Models.Default()).
		Bool("ffmpeg", built.Backends.FFmpegFound).
		Msg("backends selected")
	if !built.Backends.FFmpegFound {
		log.Warn().Str("path", cfg.FFmpegPath).Msg("ffmpeg not found; transcription fails and speech plays at normal speed")
	}

	if models, err := built.Models.Refresh(runCtx); err != nil {
		log.Warn().Err(err).Msg("model server not reachable yet")
	} else {
		log.Info().Strs("models", models).Msg("models available")
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           built.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	built.Sessions.StartJanitor(runCtx, 5*time.Second)

	go func() {
		log.Info().Str("addr", cfg.BindAddr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		_ = httpServer.Close()
	}

	log.Info().Msg("shutdown complete")
}
