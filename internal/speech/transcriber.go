package speech

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ent0n29/ollavoice/internal/audio"
	"github.com/ent0n29/ollavoice/internal/locale"
	"github.com/ent0n29/ollavoice/internal/observability"
	"github.com/ent0n29/ollavoice/internal/reliability"
)

// MinPayloadChars is the shortest encoded payload worth transcribing.
const MinPayloadChars = 100

var (
	// ErrNoSpeech means the audio held nothing recognizable.
	ErrNoSpeech = reliability.Mark(reliability.KindRecognitionEmpty, errors.New("no speech recognized"))
	// ErrUnavailable wraps network and API failures of the recognizer.
	ErrUnavailable = reliability.Mark(reliability.KindUpstreamUnavailable, errors.New("speech recognition unavailable"))
	// ErrPayloadTooSmall rejects blobs too short to hold speech.
	ErrPayloadTooSmall = reliability.Mark(reliability.KindRecognitionEmpty, errors.New("audio payload too small"))
)

// Recognizer turns PCM16LE mono 16 kHz WAV into text. tag is a BCP-47
// language tag such as fr-FR.
type Recognizer interface {
	Recognize(ctx context.Context, wav []byte, tag string) (string, error)
}

type TranscriberConfig struct {
	// TempRoot is the parent of per-call work dirs; empty means os.TempDir().
	TempRoot string
}

type Transcriber struct {
	rec     Recognizer
	conv    *audio.Converter
	cfg     TranscriberConfig
	metrics *observability.Metrics
}

func NewTranscriber(rec Recognizer, conv *audio.Converter, cfg TranscriberConfig, metrics *observability.Metrics) *Transcriber {
	return &Transcriber{rec: rec, conv: conv, cfg: cfg, metrics: metrics}
}

// Transcribe decodes a data URL or bare base64 blob, converts it to WAV
// inside a private work dir and recognizes it. The work dir is removed on
// every path.
func (t *Transcriber) Transcribe(ctx context.Context, payload string, loc locale.Locale) (string, error) {
	text, err := t.transcribe(ctx, payload, loc)
	switch {
	case err == nil:
		t.metrics.CountTranscription("ok")
	case errors.Is(err, ErrNoSpeech), errors.Is(err, ErrPayloadTooSmall):
		t.metrics.CountTranscription("no_speech")
		log.Debug().Err(err).Msg("no speech in audio")
	case errors.Is(err, ErrUnavailable):
		t.metrics.CountTranscription("unavailable")
		log.Warn().Err(err).Msg("speech recognition unavailable")
	default:
		t.metrics.CountTranscription("failed")
		log.Warn().Err(err).Msg("transcription failed")
	}
	if err != nil {
		t.metrics.CountError(string(reliability.Classify(err)))
	}
	return text, err
}

func (t *Transcriber) transcribe(ctx context.Context, payload string, loc locale.Locale) (string, error) {
	src, err := DecodePayload(payload)
	if err != nil {
		return "", err
	}

	root := t.cfg.TempRoot
	if root == "" {
		root = os.TempDir()
	}
	workDir := filepath.Join(root, "transcribe-"+uuid.NewString())
	if err := os.MkdirAll(workDir, 0o700); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			log.Warn().Err(err).Str("dir", workDir).Msg("remove work dir")
		}
	}()

	if t.conv == nil {
		return "", fmt.Errorf("transcode: %w", audio.ErrFFmpegUnavailable)
	}
	wav, err := t.conv.ToWAV(ctx, src, workDir)
	if err != nil {
		return "", fmt.Errorf("transcode: %w", err)
	}
	if info, err := audio.ParseWAVHeader(wav); err == nil && info.DataBytes == 0 {
		return "", ErrNoSpeech
	}

	text, err := t.rec.Recognize(ctx, wav, loc.SpeechTag)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, ErrNoSpeech) {
			return "", err
		}
		return "", reliability.Mark(reliability.KindUpstreamUnavailable, fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoSpeech
	}
	return text, nil
}

// DecodePayload accepts "data:<mime>;base64,<data>" or bare base64.
func DecodePayload(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if len(payload) < MinPayloadChars {
		return nil, ErrPayloadTooSmall
	}
	if strings.HasPrefix(payload, "data:") {
		i := strings.Index(payload, ",")
		if i < 0 {
			return nil, fmt.Errorf("malformed data url")
		}
		payload = payload[i+1:]
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(payload); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("decode audio payload: invalid base64")
}
