// Package llm streams completions from a language-model server.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/ollavoice/internal/observability"
	"github.com/ent0n29/ollavoice/internal/reliability"
)

// Options are the sampling parameters sent with every request.
type Options struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

func DefaultOptions() Options {
	return Options{Temperature: 0.7, TopP: 0.9}
}

// Request is a single streaming completion request.
type Request struct {
	Model   string
	Prompt  string
	System  string
	Options Options
}

// Fragment is one decoded piece of the response stream.
type Fragment struct {
	Text string
	Done bool
}

// FragmentHandler receives fragments in order. Returning an error stops the
// stream and Stream returns that error unchanged.
type FragmentHandler func(Fragment) error

// Client is a streaming language-model backend.
type Client interface {
	// Stream delivers fragments until the model reports completion or the
	// body ends. A stream that ends without a done marker is treated as done.
	Stream(ctx context.Context, req Request, onFragment FragmentHandler) error
	// ListModels returns the model names the server can serve.
	ListModels(ctx context.Context) ([]string, error)
}

// StatusError is returned when the server answers the initial request with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("model server status %d", e.Code)
	}
	return fmt.Sprintf("model server status %d: %s", e.Code, e.Body)
}

// ErrStreamBroken marks failures that happen after the stream started
// flowing. Callers finish with what they already received.
var ErrStreamBroken = errors.New("model stream broken")

// ErrUnavailable wraps transport failures on the initial request.
var ErrUnavailable = errors.New("model server unavailable")

// IsStatusError reports whether err carries a non-2xx status from the server.
func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

func broken(err error) error {
	return reliability.Mark(reliability.KindUpstreamUnavailable, fmt.Errorf("%w: %v", ErrStreamBroken, err))
}

func unavailable(err error) error {
	return reliability.Mark(reliability.KindUpstreamUnavailable, fmt.Errorf("%w: %v", ErrUnavailable, err))
}

// Config controls client construction.
type Config struct {
	Provider      string
	OllamaURL     string
	OpenAIBaseURL string
	OpenAIAPIKey  string
	Metrics       *observability.Metrics
}

func NewClient(cfg Config) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "ollama"
	}

	switch provider {
	case "ollama":
		if strings.TrimSpace(cfg.OllamaURL) == "" {
			return nil, errors.New("ollama url is required for ollama provider")
		}
		return NewOllamaClient(cfg.OllamaURL, cfg.Metrics), nil
	case "openai":
		base := strings.TrimSpace(cfg.OpenAIBaseURL)
		if base == "" && strings.TrimSpace(cfg.OllamaURL) != "" {
			// Ollama exposes an OpenAI-compatible surface under /v1.
			base = strings.TrimRight(cfg.OllamaURL, "/") + "/v1"
		}
		return NewOpenAIClient(base, cfg.OpenAIAPIKey), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
