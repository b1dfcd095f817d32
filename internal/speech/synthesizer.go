// Package speech converts text to spoken audio and spoken audio to text.
package speech

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/ent0n29/ollavoice/internal/audio"
	"github.com/ent0n29/ollavoice/internal/locale"
	"github.com/ent0n29/ollavoice/internal/observability"
	"github.com/ent0n29/ollavoice/internal/reliability"
)

// Engine turns text into MP3 audio.
type Engine interface {
	Synthesize(ctx context.Context, text string, loc locale.Locale) ([]byte, error)
}

// Result is the outcome of one synthesis. Audio is nil on failure or cancellation.
type Result struct {
	Audio     []byte
	Text      string
	Cancelled bool
}

// SynthesizerConfig controls the post-processing applied to engine output.
type SynthesizerConfig struct {
	// Tempo is the atempo factor; values <= 0 or == 1 skip the filter.
	Tempo float64
	// TempRoot is the parent of per-call work dirs; empty means os.TempDir().
	TempRoot string
}

type Synthesizer struct {
	engine  Engine
	conv    *audio.Converter
	cfg     SynthesizerConfig
	metrics *observability.Metrics
}

func NewSynthesizer(engine Engine, conv *audio.Converter, cfg SynthesizerConfig, metrics *observability.Metrics) *Synthesizer {
	return &Synthesizer{engine: engine, conv: conv, cfg: cfg, metrics: metrics}
}

// Synthesize never fails: errors yield a Result with nil audio and the
// original text. cancel is polled before and after each step.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, loc locale.Locale, cancel *atomic.Bool) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Text: text}
	}
	cancelled := func() bool {
		return (cancel != nil && cancel.Load()) || ctx.Err() != nil
	}
	if cancelled() {
		return s.cancelled(loc)
	}

	mp3, err := s.engine.Synthesize(ctx, text, loc)
	if cancelled() {
		return s.cancelled(loc)
	}
	if err != nil || len(mp3) == 0 {
		if err == nil {
			err = fmt.Errorf("engine returned no audio")
		}
		s.metrics.CountSynthesis("failed")
		s.metrics.CountError(string(reliability.KindSynthesisFailure))
		log.Warn().Err(err).Str("lang", string(loc.Lang)).Msg("speech synthesis failed")
		return Result{Text: text}
	}

	out := s.speedUp(ctx, mp3)
	if cancelled() {
		return s.cancelled(loc)
	}
	s.metrics.CountSynthesis("ok")
	return Result{Audio: out, Text: text}
}

// speedUp falls back to the unaccelerated audio on any failure.
func (s *Synthesizer) speedUp(ctx context.Context, mp3 []byte) []byte {
	if s.conv == nil || !s.conv.Available() || s.cfg.Tempo <= 0 || s.cfg.Tempo == 1 {
		return mp3
	}
	workDir, err := os.MkdirTemp(s.cfg.TempRoot, "synth-")
	if err != nil {
		log.Warn().Err(err).Msg("tempo work dir")
		return mp3
	}
	defer os.RemoveAll(workDir)

	fast, err := s.conv.Tempo(ctx, mp3, s.cfg.Tempo, workDir)
	if err != nil {
		log.Debug().Err(err).Msg("tempo filter failed, using original audio")
		return mp3
	}
	return fast
}

func (s *Synthesizer) cancelled(loc locale.Locale) Result {
	s.metrics.CountSynthesis("cancelled")
	return Result{Text: loc.Message(locale.MsgSpeechCancelled), Cancelled: true}
}
