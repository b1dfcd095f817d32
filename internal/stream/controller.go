// Package stream turns a model's token stream into spoken chunks while
// watching for interruptions.
package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/ollavoice/internal/conversation"
	"github.com/ent0n29/ollavoice/internal/llm"
	"github.com/ent0n29/ollavoice/internal/locale"
	"github.com/ent0n29/ollavoice/internal/observability"
	"github.com/ent0n29/ollavoice/internal/protocol"
	"github.com/ent0n29/ollavoice/internal/reliability"
	"github.com/ent0n29/ollavoice/internal/speech"
	"github.com/ent0n29/ollavoice/internal/textnorm"
)

// InterruptPolicy decides what happens to unflushed text on interrupt.
type InterruptPolicy string

const (
	InterruptDiscard InterruptPolicy = "discard"
	InterruptFlush   InterruptPolicy = "flush"
)

func ParseInterruptPolicy(s string) (InterruptPolicy, error) {
	switch InterruptPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", InterruptDiscard:
		return InterruptDiscard, nil
	case InterruptFlush:
		return InterruptFlush, nil
	default:
		return "", fmt.Errorf("unknown interrupt policy %q", s)
	}
}

// Flags are the per-session cancellation switches polled at checkpoints.
type Flags struct {
	CancelSpeech   atomic.Bool
	CancelResponse atomic.Bool
}

func (f *Flags) Reset() {
	f.CancelSpeech.Store(false)
	f.CancelResponse.Store(false)
}

// AudioSource yields queued audio payloads without blocking.
type AudioSource interface {
	TryPop() (string, bool)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string, loc locale.Locale, cancel *atomic.Bool) speech.Result
}

type Transcriber interface {
	Transcribe(ctx context.Context, payload string, loc locale.Locale) (string, error)
}

// Emitter delivers outbound events to the client.
type Emitter interface {
	Emit(msg protocol.Outbound)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(protocol.Outbound)

func (f EmitterFunc) Emit(msg protocol.Outbound) { f(msg) }

// Outcome is how a generation ended.
type Outcome string

const (
	OutcomeCompleted   Outcome = "completed"
	OutcomeInterrupted Outcome = "interrupted"
	OutcomeCancelled   Outcome = "cancelled"
	OutcomeFailed      Outcome = "failed"
)

type Config struct {
	Delimiter       Delimiter
	InterruptPolicy InterruptPolicy
	Options         llm.Options
}

// Request is one generation.
type Request struct {
	Prompt  string
	Model   string
	Locale  locale.Locale
	History *conversation.History
	Flags   *Flags
	// Pending is polled between fragments for spoken interrupts; may be nil.
	Pending AudioSource
}

type Controller struct {
	model       llm.Client
	synth       Synthesizer
	transcriber Transcriber
	cfg         Config
	metrics     *observability.Metrics
}

func NewController(model llm.Client, synth Synthesizer, transcriber Transcriber, cfg Config, metrics *observability.Metrics) *Controller {
	if cfg.Delimiter == "" {
		cfg.Delimiter = DelimiterNewline
	}
	if cfg.InterruptPolicy == "" {
		cfg.InterruptPolicy = InterruptDiscard
	}
	if cfg.Options == (llm.Options{}) {
		cfg.Options = llm.DefaultOptions()
	}
	return &Controller{model: model, synth: synth, transcriber: transcriber, cfg: cfg, metrics: metrics}
}

var (
	errInterrupted = errors.New("interrupted by speech")
	errCancelled   = errors.New("response cancelled")
)

// run is the per-generation state.
type run struct {
	c       *Controller
	ctx     context.Context
	req     Request
	emit    Emitter
	log     zerolog.Logger
	seg     *Segmenter
	full    strings.Builder
	started time.Time
	chunks  int
}

// Generate streams one reply. It emits zero or more chunks followed by
// exactly one of: a completion, an interrupt, or a single error response.
func (c *Controller) Generate(ctx context.Context, req Request, emit Emitter) Outcome {
	if req.Flags == nil {
		req.Flags = &Flags{}
	}
	if req.History == nil {
		req.History = conversation.NewHistory(conversation.DefaultLimit)
	}
	req.Flags.Reset()

	r := &run{
		c:       c,
		ctx:     ctx,
		req:     req,
		emit:    emit,
		log:     zerolog.Ctx(ctx).With().Str("model", req.Model).Logger(),
		seg:     NewSegmenter(c.cfg.Delimiter),
		started: time.Now(),
	}
	outcome := r.execute()
	c.metrics.CountGeneration(string(outcome))
	return outcome
}

func (r *run) execute() Outcome {
	loc := r.req.Locale
	err := r.c.model.Stream(r.ctx, llm.Request{
		Model:   r.req.Model,
		Prompt:  conversation.BuildPrompt(r.req.History.Turns(), r.req.Prompt, loc),
		System:  loc.SystemPrompt,
		Options: r.c.cfg.Options,
	}, r.onFragment)

	switch {
	case err == nil:
		r.finish()
		r.req.History.Append(r.req.Prompt, r.full.String())
		return OutcomeCompleted

	case errors.Is(err, errInterrupted):
		if r.c.cfg.InterruptPolicy == InterruptFlush {
			if rest := r.seg.Flush(); strings.TrimSpace(rest) != "" {
				r.emitChunk(rest, "interrupt_flush", false)
			}
		}
		r.emit.Emit(protocol.Interrupt{Message: loc.Message(locale.MsgResponseCancelled)})
		return OutcomeInterrupted

	case errors.Is(err, errCancelled):
		r.emit.Emit(protocol.ResponseComplete{LastUserMessage: r.req.Prompt, IsComplete: true, Cancelled: true})
		return OutcomeCancelled

	case r.ctx.Err() != nil:
		r.log.Debug().Err(err).Msg("generation aborted")
		return OutcomeCancelled

	case r.full.Len() > 0:
		// Keep what already arrived; a partial reply is not remembered.
		r.log.Warn().Err(err).Int("chunks", r.chunks).Msg("model stream ended early")
		r.c.metrics.CountError(string(reliability.Classify(err)))
		r.finish()
		return OutcomeCompleted

	default:
		key := locale.MsgModelAccess
		if llm.IsStatusError(err) || errors.Is(err, llm.ErrStreamBroken) {
			key = locale.MsgModelCommunication
		}
		r.log.Warn().Err(err).Msg("model request failed")
		r.c.metrics.CountError(string(reliability.Classify(err)))
		r.emit.Emit(protocol.Response{Text: loc.Message(key), IsComplete: true})
		return OutcomeFailed
	}
}

func (r *run) onFragment(f llm.Fragment) error {
	if err := r.checkpoint(); err != nil {
		return err
	}
	r.full.WriteString(f.Text)
	r.seg.Write(f.Text)
	for {
		seg, ok := r.seg.Next()
		if !ok {
			break
		}
		r.emitChunk(seg, "segment", true)
	}
	return nil
}

// checkpoint drains queued audio looking for a spoken interrupt and honours
// a cancel_response control.
func (r *run) checkpoint() error {
	if r.req.Flags.CancelResponse.Load() {
		return errCancelled
	}
	if r.req.Pending == nil || r.c.transcriber == nil {
		return nil
	}
	for {
		payload, ok := r.req.Pending.TryPop()
		if !ok {
			return nil
		}
		text, err := r.c.transcriber.Transcribe(r.ctx, payload, r.req.Locale)
		if err != nil {
			continue
		}
		if r.req.Locale.HasInterruptPhrase(text) {
			r.log.Info().Str("text", observability.Redact(text)).Msg("spoken interrupt")
			return errInterrupted
		}
		r.log.Debug().Str("text", observability.Redact(text)).Msg("dropping speech heard during generation")
	}
}

func (r *run) finish() {
	if rest := r.seg.Flush(); strings.TrimSpace(rest) != "" {
		r.emitChunk(rest, "flush", true)
	}
	r.emit.Emit(protocol.ResponseComplete{LastUserMessage: r.req.Prompt, IsComplete: true})
}

// emitChunk normalizes a segment and, when speak is set, synthesizes it.
// Segments that normalize to nothing are sent without audio.
func (r *run) emitChunk(segment, kind string, speak bool) {
	text := strings.TrimRight(segment, "\r\n")
	spoken := textnorm.Normalize(text, textnorm.ConnectorsFor(r.req.Locale))

	var audio []byte
	if speak && spoken != "" && r.c.synth != nil {
		res := r.c.synth.Synthesize(r.ctx, spoken, r.req.Locale, &r.req.Flags.CancelSpeech)
		audio = res.Audio
	}
	if r.chunks == 0 {
		r.c.metrics.ObserveFirstChunkLatency(time.Since(r.started))
	}
	r.chunks++
	r.c.metrics.CountChunk(kind)
	r.emit.Emit(protocol.ResponseChunk{Text: text, Audio: protocol.EncodeAudio(audio), IsComplete: false})
}
