package speech

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
)

func TestSplitForGTTS(t *testing.T) {
	long := strings.Repeat("mot ", 60)
	parts := splitForGTTS(long, gttsMaxChars)
	if len(parts) < 2 {
		t.Fatalf("parts = %d, want several", len(parts))
	}
	for _, p := range parts {
		if utf8.RuneCountInString(p) > gttsMaxChars {
			t.Fatalf("part %q longer than %d", p, gttsMaxChars)
		}
		if strings.HasPrefix(p, " ") || strings.HasSuffix(p, " ") {
			t.Fatalf("part %q not trimmed", p)
		}
	}
	if strings.Join(parts, " ") != strings.TrimSpace(long) {
		t.Fatalf("split lost text")
	}
	if got := splitForGTTS("  court  ", gttsMaxChars); len(got) != 1 || got[0] != "court" {
		t.Fatalf("splitForGTTS(short) = %q", got)
	}
	nospace := strings.Repeat("é", 250)
	for _, p := range splitForGTTS(nospace, gttsMaxChars) {
		if utf8.RuneCountInString(p) > gttsMaxChars {
			t.Fatalf("unbroken part too long: %d", utf8.RuneCountInString(p))
		}
	}
}

func TestGTTSEngineConcatenatesParts(t *testing.T) {
	var mu sync.Mutex
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("tl") != "fr" || q.Get("client") != "tw-ob" {
			t.Errorf("query = %v", q)
		}
		mu.Lock()
		queries = append(queries, q.Get("q"))
		mu.Unlock()
		fmt.Fprintf(w, "[%s]", q.Get("idx"))
	}))
	defer srv.Close()

	e := NewGTTSEngine(srv.URL)
	out, err := e.Synthesize(context.Background(), strings.Repeat("bonjour ", 20), frLocale)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(out) != "[0][1]" || len(queries) != 2 {
		t.Fatalf("out = %q queries = %d", out, len(queries))
	}
}

func TestGTTSEngineStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if _, err := NewGTTSEngine(srv.URL).Synthesize(context.Background(), "salut", frLocale); err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("Synthesize() error = %v, want HTTP 429", err)
	}
}

func openAITestClient(url string) *openai.Client {
	cfg := openai.DefaultConfig("test")
	cfg.BaseURL = url
	return openai.NewClientWithConfig(cfg)
}

func TestOpenAIEngine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("path = %q", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"input":"Hello"`) || !strings.Contains(string(body), `"voice":"alloy"`) {
			t.Errorf("body = %s", body)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3fake"))
	}))
	defer srv.Close()

	out, err := NewOpenAIEngine(openAITestClient(srv.URL), "", "").Synthesize(context.Background(), "Hello", enLocale)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(out) != "ID3fake" {
		t.Fatalf("audio = %q", out)
	}
}

func TestOpenAIRecognizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() error = %v", err)
		}
		if r.FormValue("language") != "en" || r.FormValue("model") != "whisper-1" {
			t.Errorf("form = %v", r.MultipartForm.Value)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"text":" hey assistant "}`)
	}))
	defer srv.Close()

	text, err := NewOpenAIRecognizer(openAITestClient(srv.URL), "").Recognize(context.Background(), []byte("RIFF"), "en-US")
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if text != "hey assistant" {
		t.Fatalf("text = %q", text)
	}
}

func TestWhisperServerRecognizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() error = %v", err)
		}
		if r.FormValue("language") != "fr" || r.FormValue("response_format") != "json" {
			t.Errorf("form = %v", r.MultipartForm.Value)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("FormFile() error = %v", err)
		}
		fmt.Fprint(w, `{"text":" bonjour "}`)
	}))
	defer srv.Close()

	text, err := NewWhisperServerRecognizer(srv.URL+"/inference").Recognize(context.Background(), []byte("RIFF"), "fr-FR")
	if err != nil || text != "bonjour" {
		t.Fatalf("Recognize() = %q, %v", text, err)
	}
}

func TestWhisperServerRecognizerStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := NewWhisperServerRecognizer(srv.URL).Recognize(context.Background(), []byte("RIFF"), "fr-FR"); err == nil {
		t.Fatalf("Recognize() error = nil")
	}
}

func TestDeepgramTranscript(t *testing.T) {
	raw := []byte(`{"metadata":{},"results":{"channels":[{"alternatives":[{"transcript":"","confidence":0},{"transcript":" ok assistant ","confidence":0.9}]}]}}`)
	text, err := deepgramTranscript(raw)
	if err != nil || text != "ok assistant" {
		t.Fatalf("deepgramTranscript() = %q, %v", text, err)
	}
	if _, err := deepgramTranscript([]byte(`{"results":{"channels":[]}}`)); err != ErrNoSpeech {
		t.Fatalf("deepgramTranscript(empty) error = %v, want ErrNoSpeech", err)
	}
	if _, err := NewDeepgramRecognizer(" ", ""); err == nil {
		t.Fatalf("NewDeepgramRecognizer(no key) error = nil")
	}
}

func TestBaseLanguage(t *testing.T) {
	cases := map[string]string{"fr-FR": "fr", "en_US": "en", "EN": "en", "": ""}
	for in, want := range cases {
		if got := baseLanguage(in); got != want {
			t.Fatalf("baseLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMockRecognizerSequence(t *testing.T) {
	r := NewMockRecognizer("a", "b")
	for _, want := range []string{"a", "b", "b"} {
		got, _ := r.Recognize(context.Background(), nil, "fr-FR")
		if got != want {
			t.Fatalf("Recognize() = %q, want %q", got, want)
		}
	}
	if r.Calls() != 3 {
		t.Fatalf("Calls() = %d", r.Calls())
	}
}

func TestProviderFactories(t *testing.T) {
	if _, err := NewEngine(ProviderConfig{TTSProvider: "polly"}); err == nil {
		t.Fatalf("NewEngine(polly) error = nil")
	}
	for _, p := range []string{"", "gtts", "openai", "mock"} {
		if _, err := NewEngine(ProviderConfig{TTSProvider: p}); err != nil {
			t.Fatalf("NewEngine(%q) error = %v", p, err)
		}
	}
	if _, err := NewRecognizer(ProviderConfig{STTProvider: "deepgram"}); err == nil {
		t.Fatalf("NewRecognizer(deepgram without key) error = nil")
	}
	for _, p := range []string{"openai", "mock"} {
		if _, err := NewRecognizer(ProviderConfig{STTProvider: p}); err != nil {
			t.Fatalf("NewRecognizer(%q) error = %v", p, err)
		}
	}
	if _, err := NewRecognizer(ProviderConfig{STTProvider: "whisper-server", WhisperServerURL: "http://x/inference"}); err != nil {
		t.Fatalf("NewRecognizer(whisper-server) error = %v", err)
	}
}
