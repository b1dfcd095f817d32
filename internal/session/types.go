package session

import (
	"time"

	"github.com/ent0n29/ollavoice/internal/locale"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// CreateOptions seeds a new session.
type CreateOptions struct {
	Lang         locale.Lang
	Model        string
	QueueSize    int
	HistoryLimit int
}

// Info is a read-only snapshot of a session.
type Info struct {
	ID             string      `json:"session_id"`
	Status         Status      `json:"status"`
	Lang           locale.Lang `json:"lang"`
	Model          string      `json:"model"`
	Listening      bool        `json:"listening"`
	Generating     bool        `json:"generating"`
	QueuedAudio    int         `json:"queued_audio"`
	StartedAt      time.Time   `json:"started_at"`
	LastActivityAt time.Time   `json:"last_activity_at"`
}
