// Package assistant drives one client connection: it handles inbound
// events, runs the audio worker and hands prompts to the stream controller.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/ollavoice/internal/locale"
	"github.com/ent0n29/ollavoice/internal/observability"
	"github.com/ent0n29/ollavoice/internal/protocol"
	"github.com/ent0n29/ollavoice/internal/reliability"
	"github.com/ent0n29/ollavoice/internal/session"
	"github.com/ent0n29/ollavoice/internal/speech"
	"github.com/ent0n29/ollavoice/internal/stream"
)

const (
	defaultPollInterval    = time.Second
	criticalSendTimeout    = 600 * time.Millisecond
	modelRefreshTimeout    = 5 * time.Second
	generationBusyInterval = 100 * time.Millisecond
)

// Deps are the collaborators an Assistant needs.
type Deps struct {
	Sessions    *session.Manager
	Catalog     *locale.Catalog
	Models      *ModelCatalog
	Controller  *stream.Controller
	Transcriber stream.Transcriber
	Synthesizer stream.Synthesizer
	Metrics     *observability.Metrics
	// PollInterval is how long the worker waits on an empty queue.
	PollInterval time.Duration
}

type Assistant struct {
	sessions     *session.Manager
	catalog      *locale.Catalog
	models       *ModelCatalog
	controller   *stream.Controller
	transcriber  stream.Transcriber
	synth        stream.Synthesizer
	metrics      *observability.Metrics
	pollInterval time.Duration
}

func New(d Deps) *Assistant {
	if d.Catalog == nil {
		d.Catalog = locale.Default()
	}
	if d.PollInterval <= 0 {
		d.PollInterval = defaultPollInterval
	}
	return &Assistant{
		sessions:     d.Sessions,
		catalog:      d.Catalog,
		models:       d.Models,
		controller:   d.Controller,
		transcriber:  d.Transcriber,
		synth:        d.Synthesizer,
		metrics:      d.Metrics,
		pollInterval: d.PollInterval,
	}
}

// RunConnection serves one connection until ctx ends or inbound closes.
// Messages written to outbound are protocol.Outbound values.
func (a *Assistant) RunConnection(ctx context.Context, s *session.Session, inbound <-chan any, outbound chan<- any) error {
	logger := observability.SessionLogger(s.ID)
	ctx = logger.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)

	var (
		wg           sync.WaitGroup
		workerCancel context.CancelFunc
	)
	defer func() {
		cancel()
		wg.Wait()
		s.StopListening()
	}()

	emit := stream.EmitterFunc(func(msg protocol.Outbound) { a.send(outbound, msg) })
	emit.Emit(protocol.Status{Message: a.locale(s).Message(locale.MsgConnected)})

	if a.models != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rctx, rcancel := context.WithTimeout(ctx, modelRefreshTimeout)
			defer rcancel()
			_, _ = a.models.Refresh(rctx)
		}()
	}

	stopWorker := func() {
		if workerCancel != nil {
			workerCancel()
			workerCancel = nil
		}
		s.StopListening()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-inbound:
			if !ok {
				return nil
			}
			a.touch(s)
			switch m := raw.(type) {
			case protocol.StartListening:
				if s.TakeEndedByStop() {
					s.History.Reset()
					logger.Info().Msg("conversation reset after goodbye")
				}
				if s.StartListening() {
					if workerCancel != nil {
						workerCancel()
					}
					wctx, wcancel := context.WithCancel(ctx)
					workerCancel = wcancel
					wg.Add(1)
					go func() {
						defer wg.Done()
						a.worker(wctx, s, emit)
					}()
					a.metrics.CountSessionEvent("listening_started")
				}
				emit.Emit(protocol.ListeningStarted{})

			case protocol.StopListening:
				stopWorker()
				a.metrics.CountSessionEvent("listening_stopped")
				emit.Emit(protocol.ListeningStopped{})

			case protocol.AudioData:
				if s.Queue.Push(m.Audio) {
					a.metrics.CountSessionEvent("audio_dropped")
				}

			case protocol.TextInput:
				text := m.Text
				wg.Add(1)
				go func() {
					defer wg.Done()
					a.Reply(ctx, s, text, emit)
				}()

			case protocol.ChangeModel:
				a.changeModel(ctx, s, m.Model, emit)

			case protocol.ChangeTTSLang:
				a.changeLang(s, m.Lang, emit)

			case protocol.CancelResponse:
				s.Flags.CancelResponse.Store(true)
				s.Flags.CancelSpeech.Store(true)
				dropped := s.Queue.Drain()
				logger.Info().Int("dropped_audio", dropped).Msg("response cancelled")
				a.metrics.CountSessionEvent("cancel_response")
				emit.Emit(protocol.Status{Message: a.locale(s).Message(locale.MsgResponseCancelled)})

			case protocol.CancelSpeech:
				s.Flags.CancelSpeech.Store(true)
				s.Queue.Drain()
				a.metrics.CountSessionEvent("cancel_speech")
				emit.Emit(protocol.Status{Message: a.locale(s).Message(locale.MsgSpeechCancelled)})

			default:
				logger.Debug().Type("message", raw).Msg("ignoring unsupported inbound message")
			}
		}
	}
}

// Reply answers typed text. It skips activation gating but still honours
// stop phrases.
func (a *Assistant) Reply(ctx context.Context, s *session.Session, text string, emit stream.Emitter) stream.Outcome {
	loc := a.locale(s)
	if loc.HasStopPhrase(text) {
		a.goodbye(ctx, s, text, emit)
		return stream.OutcomeCompleted
	}
	return a.generate(ctx, s, text, emit)
}

func (a *Assistant) generate(ctx context.Context, s *session.Session, prompt string, emit stream.Emitter) stream.Outcome {
	loc := a.locale(s)
	if !s.BeginGeneration() {
		emit.Emit(protocol.Error{Message: loc.Message(locale.MsgBusy)})
		return stream.OutcomeFailed
	}
	defer s.EndGeneration()

	return a.controller.Generate(ctx, stream.Request{
		Prompt:  prompt,
		Model:   s.Model(),
		Locale:  loc,
		History: s.History,
		Flags:   &s.Flags,
		Pending: s.Queue,
	}, emit)
}

// worker consumes queued utterances until ctx ends or the user says goodbye.
func (a *Assistant) worker(ctx context.Context, s *session.Session, emit stream.Emitter) {
	log := zerolog.Ctx(ctx)
	log.Debug().Msg("audio worker started")
	defer log.Debug().Msg("audio worker stopped")

	for ctx.Err() == nil {
		// A running generation owns the queue so it can hear interrupts.
		if s.Generating() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(generationBusyInterval):
			}
			continue
		}
		payload, ok := s.Queue.Pop(ctx, a.pollInterval)
		if !ok {
			continue
		}
		if a.handleUtterance(ctx, s, payload, emit) {
			return
		}
	}
}

// handleUtterance runs one queued payload through gating. It reports true
// when the utterance ended the listening session.
func (a *Assistant) handleUtterance(ctx context.Context, s *session.Session, payload string, emit stream.Emitter) bool {
	loc := a.locale(s)
	log := zerolog.Ctx(ctx)

	text, err := a.transcriber.Transcribe(ctx, payload, loc)
	if err != nil {
		if msg, ok := transcriptionError(loc, err); ok {
			emit.Emit(protocol.Error{Message: msg})
		}
		log.Debug().Err(err).Msg("utterance not transcribed")
		return false
	}

	if loc.HasStopPhrase(text) {
		s.StopListening()
		a.goodbye(ctx, s, text, emit)
		emit.Emit(protocol.ListeningStopped{})
		return true
	}

	if loc.HasInterruptPhrase(text) {
		emit.Emit(protocol.Interrupt{Message: loc.Message(locale.MsgResponseCancelled)})
		return false
	}

	prompt, ok := loc.Activate(text)
	if !ok {
		log.Debug().Str("text", observability.Redact(text)).Msg("utterance without activation phrase")
		return false
	}
	emit.Emit(protocol.Transcript{Text: text})
	if prompt == "" {
		return false
	}
	a.generate(ctx, s, prompt, emit)
	return false
}

// transcriptionError maps a failed transcription to the message shown to
// the user. Blobs too short to hold speech and cancellations stay silent.
func transcriptionError(loc locale.Locale, err error) (string, bool) {
	if errors.Is(err, speech.ErrPayloadTooSmall) {
		return "", false
	}
	switch reliability.Classify(err) {
	case reliability.KindCancelled:
		return "", false
	case reliability.KindRecognitionEmpty:
		return loc.Message(locale.MsgNotUnderstood), true
	case reliability.KindUpstreamUnavailable:
		return loc.Message(locale.MsgSpeechUnavailable), true
	default:
		return fmt.Sprintf("%s: %v", loc.Message(locale.MsgErrorPrefix), err), true
	}
}

// goodbye answers a stop phrase without consulting the model.
func (a *Assistant) goodbye(ctx context.Context, s *session.Session, heard string, emit stream.Emitter) {
	loc := a.locale(s)
	text := loc.Message(locale.MsgGoodbye)
	var audio []byte
	if a.synth != nil {
		s.Flags.CancelSpeech.Store(false)
		audio = a.synth.Synthesize(ctx, text, loc, &s.Flags.CancelSpeech).Audio
	}
	s.MarkEndedByStop()
	a.metrics.CountSessionEvent("goodbye")
	zerolog.Ctx(ctx).Info().Str("text", observability.Redact(heard)).Msg("stop phrase heard")
	emit.Emit(protocol.Response{
		Text:            text,
		Audio:           protocol.EncodeAudio(audio),
		LastUserMessage: heard,
		IsComplete:      true,
	})
}

func (a *Assistant) changeModel(ctx context.Context, s *session.Session, model string, emit stream.Emitter) {
	loc := a.locale(s)
	if a.models == nil || !a.models.Resolve(ctx, model) {
		emit.Emit(protocol.Error{Message: fmt.Sprintf("%s: %s", loc.Message(locale.MsgUnknownModel), model)})
		return
	}
	s.SetModel(model)
	zerolog.Ctx(ctx).Info().Str("model", model).Msg("model changed")
	emit.Emit(protocol.Status{Message: fmt.Sprintf("%s %s", loc.Message(locale.MsgModelChanged), model)})
}

func (a *Assistant) changeLang(s *session.Session, raw string, emit stream.Emitter) {
	lang, ok := a.catalog.Parse(raw)
	if !ok {
		loc := a.locale(s)
		emit.Emit(protocol.Error{Message: fmt.Sprintf("%s: %s", loc.Message(locale.MsgLanguageNotSupported), raw)})
		return
	}
	s.SetLang(lang)
	emit.Emit(protocol.Status{Message: a.catalog.Get(lang).Message(locale.MsgLanguageChanged)})
}

func (a *Assistant) locale(s *session.Session) locale.Locale {
	return a.catalog.Get(s.Lang())
}

func (a *Assistant) touch(s *session.Session) {
	if a.sessions != nil {
		_ = a.sessions.Touch(s.ID)
	}
}

func (a *Assistant) send(outbound chan<- any, msg protocol.Outbound) {
	msgType, critical := outboundMessageMeta(msg)
	record := func(result string) {
		a.metrics.ObserveOutboundMessage(msgType, result)
	}

	if critical {
		timer := time.NewTimer(criticalSendTimeout)
		defer timer.Stop()
		select {
		case outbound <- msg:
			record("delivered")
		case <-timer.C:
			record("timeout")
			a.metrics.CountSessionEvent("outbound_timeout_critical")
			a.metrics.CountSessionEvent("outbound_drop")
		}
		return
	}

	select {
	case outbound <- msg:
		record("delivered")
	default:
		record("dropped")
		a.metrics.CountSessionEvent("outbound_drop")
	}
}

// outboundMessageMeta reports the wire event name and whether the message
// must not be dropped under backpressure.
func outboundMessageMeta(msg protocol.Outbound) (string, bool) {
	switch msg.(type) {
	case protocol.ResponseChunk, protocol.Transcript:
		return string(msg.EventName()), false
	default:
		return string(msg.EventName()), true
	}
}
