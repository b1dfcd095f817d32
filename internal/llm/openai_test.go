package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIClientStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"Hel"},"finish_reason":null}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"lo\n"},"finish_reason":null}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	frags, err := collect(t, NewOpenAIClient(srv.URL+"/v1", ""), Request{Model: "llama3", Prompt: "hi", System: "be brief", Options: DefaultOptions()})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if joinText(frags) != "Hello\n" {
		t.Fatalf("text = %q", joinText(frags))
	}
	if !frags[len(frags)-1].Done {
		t.Fatalf("last fragment should be done")
	}
}

func TestOpenAIClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"boom","type":"server_error"}}`)
	}))
	defer srv.Close()

	_, err := collect(t, NewOpenAIClient(srv.URL, "key"), Request{Model: "m", Prompt: "hi"})
	if !IsStatusError(err) {
		t.Fatalf("Stream() error = %v, want StatusError", err)
	}
}

func TestOpenAIClientListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"id":"llama3","object":"model"},{"id":"qwen2","object":"model"}]}`)
	}))
	defer srv.Close()

	models, err := NewOpenAIClient(srv.URL, "").ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if strings.Join(models, ",") != "llama3,qwen2" {
		t.Fatalf("models = %v", models)
	}
}

func TestNewClientProviders(t *testing.T) {
	cases := []struct {
		provider string
		wantErr  bool
	}{
		{"", false},
		{"ollama", false},
		{"OpenAI", false},
		{"mock", false},
		{"bard", true},
	}
	for _, tc := range cases {
		_, err := NewClient(Config{Provider: tc.provider, OllamaURL: "http://localhost:11434"})
		if (err != nil) != tc.wantErr {
			t.Fatalf("NewClient(%q) error = %v, wantErr %v", tc.provider, err, tc.wantErr)
		}
	}
	if _, err := NewClient(Config{Provider: "ollama"}); err == nil {
		t.Fatalf("NewClient(ollama without url) error = nil")
	}
}

func TestMockClientEchoesLastUserLine(t *testing.T) {
	frags, err := collect(t, NewMockClient(), Request{Prompt: "User [en]: hello there\nAssistant [en]:"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if joinText(frags) != "I heard you.\nhello there\n" {
		t.Fatalf("text = %q", joinText(frags))
	}
	if !frags[len(frags)-1].Done {
		t.Fatalf("last fragment should be done")
	}
}
