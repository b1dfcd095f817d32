package llm

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"

	"github.com/ent0n29/ollavoice/internal/observability"
	"github.com/ent0n29/ollavoice/internal/reliability"
)

// OllamaClient talks to Ollama's native API.
type OllamaClient struct {
	baseURL string
	// No overall timeout: generations are bounded by the caller's context.
	client  *http.Client
	metrics *observability.Metrics
}

func NewOllamaClient(baseURL string, metrics *observability.Metrics) *OllamaClient {
	return &OllamaClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{},
		metrics: metrics,
	}
}

type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	System  string  `json:"system,omitempty"`
	Stream  bool    `json:"stream"`
	Options Options `json:"options"`
}

type generateLine struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func (c *OllamaClient) Stream(ctx context.Context, req Request, onFragment FragmentHandler) error {
	payload, err := sonic.Marshal(generateRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		System:  req.System,
		Stream:  true,
		Options: req.Options,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return unavailable(err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return reliability.Mark(reliability.KindUpstreamUnavailable, &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(body))})
	}
	return c.consume(ctx, res.Body, onFragment)
}

func (c *OllamaClient) consume(ctx context.Context, body io.Reader, onFragment FragmentHandler) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var frag generateLine
		if err := sonic.Unmarshal(line, &frag); err != nil {
			c.metrics.CountError(string(reliability.KindMalformedFragment))
			log.Warn().Err(err).Str("line", truncate(string(line), 200)).Msg("skipping malformed model fragment")
			continue
		}
		if frag.Error != "" {
			return broken(fmt.Errorf("model error: %s", frag.Error))
		}
		if onFragment != nil {
			if err := onFragment(Fragment{Text: frag.Response, Done: frag.Done}); err != nil {
				return err
			}
		}
		if frag.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return broken(err)
	}

	if onFragment != nil {
		return onFragment(Fragment{Done: true})
	}
	return nil
}

// ListModels retries retryable statuses a few times; Ollama answers 503
// briefly while it loads.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	const attempts = 3
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(reliability.ExponentialBackoff(attempt-1, 100*time.Millisecond, time.Second)):
			}
		}
		models, retry, err := c.listModelsOnce(ctx)
		if err == nil {
			return models, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return nil, lastErr
}

func (c *OllamaClient) listModelsOnce(ctx context.Context) ([]string, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	res, err := c.client.Do(httpReq.WithContext(ctxTimeout))
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, false, unavailable(err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, false, unavailable(err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		se := &StatusError{Code: res.StatusCode, Body: truncate(strings.TrimSpace(string(body)), 512)}
		return nil, reliability.IsRetryableHTTPStatus(res.StatusCode), reliability.Mark(reliability.KindUpstreamUnavailable, se)
	}

	var tags tagsResponse
	if err := sonic.Unmarshal(body, &tags); err != nil {
		return nil, false, reliability.Mark(reliability.KindMalformedFragment, fmt.Errorf("decode tags: %w", err))
	}
	out := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		if name := strings.TrimSpace(m.Name); name != "" {
			out = append(out, name)
		}
	}
	return out, false, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
