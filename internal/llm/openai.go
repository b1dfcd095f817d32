package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/ent0n29/ollavoice/internal/reliability"
)

// OpenAIClient streams chat completions from any OpenAI-compatible server,
// including Ollama's /v1 endpoint.
type OpenAIClient struct {
	client *openai.Client
}

func NewOpenAIClient(baseURL, apiKey string) *OpenAIClient {
	if strings.TrimSpace(apiKey) == "" {
		// Ollama ignores the key but the client always sends one.
		apiKey = "ollama"
	}
	cfg := openai.DefaultConfig(apiKey)
	if base := strings.TrimSpace(baseURL); base != "" {
		cfg.BaseURL = strings.TrimRight(base, "/")
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg)}
}

func (c *OpenAIClient) Stream(ctx context.Context, req Request, onFragment FragmentHandler) error {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Options.Temperature),
		TopP:        float32(req.Options.TopP),
		Stream:      true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return classifyOpenAIError(err)
	}
	defer stream.Close()

	for {
		res, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return broken(err)
		}
		for _, choice := range res.Choices {
			done := choice.FinishReason != "" && choice.FinishReason != openai.FinishReasonNull
			if choice.Delta.Content == "" && !done {
				continue
			}
			if onFragment != nil {
				if err := onFragment(Fragment{Text: choice.Delta.Content, Done: done}); err != nil {
					return err
				}
			}
			if done {
				return nil
			}
		}
	}

	if onFragment != nil {
		return onFragment(Fragment{Done: true})
	}
	return nil
}

func (c *OpenAIClient) ListModels(ctx context.Context) ([]string, error) {
	list, err := c.client.ListModels(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyOpenAIError(err)
	}
	out := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		if id := strings.TrimSpace(m.ID); id != "" {
			out = append(out, id)
		}
	}
	return out, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return reliability.Mark(reliability.KindUpstreamUnavailable, &StatusError{Code: apiErr.HTTPStatusCode, Body: apiErr.Message})
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return reliability.Mark(reliability.KindUpstreamUnavailable, &StatusError{Code: reqErr.HTTPStatusCode, Body: fmt.Sprint(reqErr.Err)})
	}
	return unavailable(err)
}
