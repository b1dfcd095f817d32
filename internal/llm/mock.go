package llm

import (
	"context"
	"strings"
)

// MockClient provides deterministic local replies when no model server is configured.
type MockClient struct {
	Models []string
}

func NewMockClient() *MockClient {
	return &MockClient{Models: []string{"mock"}}
}

func (c *MockClient) Stream(ctx context.Context, req Request, onFragment FragmentHandler) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	reply := buildMockReply(req)
	for _, line := range strings.SplitAfter(reply, "\n") {
		if line == "" {
			continue
		}
		if onFragment != nil {
			if err := onFragment(Fragment{Text: line}); err != nil {
				return err
			}
		}
	}
	if onFragment != nil {
		return onFragment(Fragment{Done: true})
	}
	return nil
}

func (c *MockClient) ListModels(ctx context.Context) ([]string, error) {
	return append([]string(nil), c.Models...), nil
}

// buildMockReply echoes the last user line of the prompt.
func buildMockReply(req Request) string {
	last := ""
	for _, line := range strings.Split(req.Prompt, "\n") {
		line = strings.TrimSpace(line)
		if i := strings.Index(line, "]:"); i >= 0 && strings.TrimSpace(line[i+2:]) != "" {
			last = strings.TrimSpace(line[i+2:])
		}
	}
	if last == "" {
		last = strings.TrimSpace(req.Prompt)
	}
	if last == "" {
		return "I am listening.\n"
	}
	return "I heard you.\n" + last + "\n"
}
