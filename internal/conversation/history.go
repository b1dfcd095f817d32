// Package conversation keeps the bounded dialogue window fed back to the model.
package conversation

import "sync"

// DefaultLimit is the number of stored turns (five exchanges).
const DefaultLimit = 10

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one side of an exchange. Roles alternate starting with the user.
type Turn struct {
	Role Role
	Text string
}

// History is an ordered, size-bounded log of alternating user/assistant turns.
type History struct {
	mu    sync.Mutex
	turns []string
	limit int
}

// NewHistory returns a history capped at limit entries. Odd limits are rounded
// down so eviction always drops whole exchanges.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit%2 == 1 {
		limit--
	}
	if limit < 2 {
		limit = 2
	}
	return &History{limit: limit}
}

// Append records a completed exchange, evicting the oldest exchanges first.
func (h *History) Append(user, assistant string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, user, assistant)
	if over := len(h.turns) - h.limit; over > 0 {
		h.turns = append(h.turns[:0:0], h.turns[over:]...)
	}
}

// Turns returns a snapshot with roles derived from position parity.
func (h *History) Turns() []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Turn, len(h.turns))
	for i, text := range h.turns {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		out[i] = Turn{Role: role, Text: text}
	}
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

func (h *History) Limit() int { return h.limit }

func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}
