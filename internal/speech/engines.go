package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"

	"github.com/ent0n29/ollavoice/internal/locale"
)

// gttsMaxChars is the longest text the translate endpoint accepts per request.
const gttsMaxChars = 100

// GTTSEngine uses the Google Translate speech endpoint.
type GTTSEngine struct {
	baseURL string
	client  *http.Client
}

func NewGTTSEngine(baseURL string) *GTTSEngine {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://translate.google.com/translate_tts"
	}
	return &GTTSEngine{
		baseURL: strings.TrimSpace(baseURL),
		client:  &http.Client{Timeout: 20 * time.Second},
	}
}

func (e *GTTSEngine) Synthesize(ctx context.Context, text string, loc locale.Locale) ([]byte, error) {
	parts := splitForGTTS(text, gttsMaxChars)
	var out []byte
	for i, part := range parts {
		b, err := e.fetch(ctx, part, string(loc.Lang), i, len(parts))
		if err != nil {
			return nil, err
		}
		// MP3 frames concatenate cleanly.
		out = append(out, b...)
	}
	return out, nil
}

func (e *GTTSEngine) fetch(ctx context.Context, text, lang string, idx, total int) ([]byte, error) {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", lang)
	q.Set("q", text)
	q.Set("idx", fmt.Sprint(idx))
	q.Set("total", fmt.Sprint(total))
	q.Set("textlen", fmt.Sprint(utf8.RuneCountInString(text)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gtts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return nil, fmt.Errorf("gtts HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return io.ReadAll(io.LimitReader(resp.Body, 16<<20))
}

// splitForGTTS breaks text into pieces of at most max runes, preferring
// whitespace boundaries.
func splitForGTTS(text string, max int) []string {
	text = strings.Join(strings.Fields(text), " ")
	var out []string
	for utf8.RuneCountInString(text) > max {
		runes := []rune(text)
		cut := max
		for i := max; i > 0; i-- {
			if runes[i] == ' ' {
				cut = i
				break
			}
		}
		out = append(out, strings.TrimSpace(string(runes[:cut])))
		text = strings.TrimSpace(string(runes[cut:]))
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

// OpenAIEngine calls an OpenAI-compatible /audio/speech endpoint.
type OpenAIEngine struct {
	client *openai.Client
	model  string
	voice  string
}

func NewOpenAIEngine(client *openai.Client, model, voice string) *OpenAIEngine {
	if strings.TrimSpace(model) == "" {
		model = string(openai.TTSModel1)
	}
	if strings.TrimSpace(voice) == "" {
		voice = string(openai.VoiceAlloy)
	}
	return &OpenAIEngine{client: client, model: model, voice: voice}
}

func (e *OpenAIEngine) Synthesize(ctx context.Context, text string, _ locale.Locale) ([]byte, error) {
	resp, err := e.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(e.model),
		Input:          text,
		Voice:          openai.SpeechVoice(e.voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Close()
	return io.ReadAll(resp)
}

// MockEngine returns deterministic bytes and records every call.
type MockEngine struct {
	mu    sync.Mutex
	calls []string
	// Err, when set, is returned instead of audio.
	Err error
	// OnSynthesize runs before returning; tests use it to flip cancel flags.
	OnSynthesize func(text string)
}

func NewMockEngine() *MockEngine { return &MockEngine{} }

func (e *MockEngine) Synthesize(ctx context.Context, text string, loc locale.Locale) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.calls = append(e.calls, text)
	hook := e.OnSynthesize
	fail := e.Err
	e.mu.Unlock()

	if hook != nil {
		hook(text)
	}
	if fail != nil {
		return nil, fail
	}
	return []byte("ID3mock:" + string(loc.Lang) + ":" + text), nil
}

func (e *MockEngine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

var errUnsupportedEngine = errors.New("unsupported tts provider")
