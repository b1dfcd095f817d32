package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ent0n29/ollavoice/internal/conversation"
	"github.com/ent0n29/ollavoice/internal/locale"
	"github.com/ent0n29/ollavoice/internal/stream"
)

// Session is the per-connection context shared by the reader loop, the
// audio worker and in-flight generations.
type Session struct {
	ID        string
	StartedAt time.Time

	Flags   stream.Flags
	Queue   *AudioQueue
	History *conversation.History

	lang        atomic.Value // locale.Lang
	model       atomic.Value // string
	listening   atomic.Bool
	generating  atomic.Bool
	endedByStop atomic.Bool

	mu             sync.Mutex
	status         Status
	lastActivityAt time.Time
}

func newSession(id string, opts CreateOptions) *Session {
	now := time.Now().UTC()
	lang := opts.Lang
	if lang == "" {
		lang = locale.DefaultLang
	}
	limit := opts.HistoryLimit
	if limit <= 0 {
		limit = conversation.DefaultLimit
	}
	s := &Session{
		ID:             id,
		StartedAt:      now,
		Queue:          NewAudioQueue(opts.QueueSize),
		History:        conversation.NewHistory(limit),
		status:         StatusActive,
		lastActivityAt: now,
	}
	s.lang.Store(lang)
	s.model.Store(opts.Model)
	return s
}

func (s *Session) Lang() locale.Lang     { return s.lang.Load().(locale.Lang) }
func (s *Session) SetLang(l locale.Lang) { s.lang.Store(l) }
func (s *Session) Model() string         { return s.model.Load().(string) }
func (s *Session) SetModel(m string)     { s.model.Store(m) }

// StartListening claims the worker slot; false means a worker already runs.
func (s *Session) StartListening() bool { return s.listening.CompareAndSwap(false, true) }

// StopListening releases the worker slot; false means none was running.
func (s *Session) StopListening() bool { return s.listening.CompareAndSwap(true, false) }

func (s *Session) Listening() bool { return s.listening.Load() }

// BeginGeneration marks a generation in flight; false means one already is.
func (s *Session) BeginGeneration() bool { return s.generating.CompareAndSwap(false, true) }
func (s *Session) EndGeneration()        { s.generating.Store(false) }
func (s *Session) Generating() bool      { return s.generating.Load() }

// MarkEndedByStop records that the user said goodbye.
func (s *Session) MarkEndedByStop() { s.endedByStop.Store(true) }

// TakeEndedByStop reports and clears the goodbye marker.
func (s *Session) TakeEndedByStop() bool { return s.endedByStop.Swap(false) }

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActivityAt = now
	s.mu.Unlock()
}

func (s *Session) Info() Info {
	s.mu.Lock()
	status, last := s.status, s.lastActivityAt
	s.mu.Unlock()
	return Info{
		ID:             s.ID,
		Status:         status,
		Lang:           s.Lang(),
		Model:          s.Model(),
		Listening:      s.Listening(),
		Generating:     s.Generating(),
		QueuedAudio:    s.Queue.Len(),
		StartedAt:      s.StartedAt,
		LastActivityAt: last,
	}
}
