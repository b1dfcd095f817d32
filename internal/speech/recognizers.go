package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/sashabaranov/go-openai"
)

// DeepgramRecognizer uses Deepgram's prerecorded REST API.
type DeepgramRecognizer struct {
	apiKey string
	model  string
}

func NewDeepgramRecognizer(apiKey, model string) (*DeepgramRecognizer, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("deepgram api key is required")
	}
	if strings.TrimSpace(model) == "" {
		model = "nova-2"
	}
	return &DeepgramRecognizer{apiKey: strings.TrimSpace(apiKey), model: model}, nil
}

func (r *DeepgramRecognizer) Recognize(ctx context.Context, wav []byte, tag string) (string, error) {
	c := listenClient.NewREST(r.apiKey, &interfaces.ClientOptions{})
	dg := api.New(c)

	res, err := dg.FromStream(ctx, bytes.NewReader(wav), &interfaces.PreRecordedTranscriptionOptions{
		Model:       r.model,
		Language:    tag,
		Punctuate:   true,
		SmartFormat: true,
	})
	if err != nil {
		return "", fmt.Errorf("deepgram: %w", err)
	}

	// Re-encode so only the fields read here tie us to the SDK's response shape.
	raw, err := sonic.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("deepgram response: %w", err)
	}
	return deepgramTranscript(raw)
}

type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func deepgramTranscript(raw []byte) (string, error) {
	var out deepgramResponse
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("deepgram response: %w", err)
	}
	for _, ch := range out.Results.Channels {
		for _, alt := range ch.Alternatives {
			if text := strings.TrimSpace(alt.Transcript); text != "" {
				return text, nil
			}
		}
	}
	return "", ErrNoSpeech
}

// OpenAIRecognizer calls an OpenAI-compatible /audio/transcriptions endpoint.
type OpenAIRecognizer struct {
	client *openai.Client
	model  string
}

func NewOpenAIRecognizer(client *openai.Client, model string) *OpenAIRecognizer {
	if strings.TrimSpace(model) == "" {
		model = openai.Whisper1
	}
	return &OpenAIRecognizer{client: client, model: model}
}

func (r *OpenAIRecognizer) Recognize(ctx context.Context, wav []byte, tag string) (string, error) {
	resp, err := r.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    r.model,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(wav),
		Language: baseLanguage(tag),
	})
	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// WhisperServerRecognizer posts WAV files to a whisper.cpp server.
type WhisperServerRecognizer struct {
	url    string
	client *http.Client
	// whisper.cpp servers usually run a single processor.
	mu sync.Mutex
}

func NewWhisperServerRecognizer(url string) *WhisperServerRecognizer {
	return &WhisperServerRecognizer{
		url:    strings.TrimSpace(url),
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (r *WhisperServerRecognizer) Recognize(ctx context.Context, wav []byte, tag string) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		_ = mw.Close()
		return "", err
	}
	if _, err := fw.Write(wav); err != nil {
		_ = mw.Close()
		return "", err
	}
	_ = mw.WriteField("temperature", "0.0")
	_ = mw.WriteField("response_format", "json")
	if lang := baseLanguage(tag); lang != "" {
		_ = mw.WriteField("language", lang)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	r.mu.Lock()
	defer r.mu.Unlock()

	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", context.Canceled
		}
		return "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper-server HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := sonic.Unmarshal(b, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Text), nil
}

// MockRecognizer returns canned text and records every call.
type MockRecognizer struct {
	mu    sync.Mutex
	texts []string
	calls int
	Err   error
}

// NewMockRecognizer returns texts in order, repeating the last one.
func NewMockRecognizer(texts ...string) *MockRecognizer {
	return &MockRecognizer{texts: texts}
}

func (r *MockRecognizer) Recognize(ctx context.Context, wav []byte, tag string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.Err != nil {
		return "", r.Err
	}
	if len(r.texts) == 0 {
		return "", nil
	}
	i := r.calls - 1
	if i >= len(r.texts) {
		i = len(r.texts) - 1
	}
	return r.texts[i], nil
}

func (r *MockRecognizer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// baseLanguage turns fr-FR into fr.
func baseLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}
