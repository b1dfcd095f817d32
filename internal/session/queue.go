package session

import (
	"context"
	"time"
)

// DefaultQueueSize bounds pending audio per session.
const DefaultQueueSize = 16

// AudioQueue is a bounded FIFO of encoded audio payloads. When full, the
// oldest payload is dropped to make room.
type AudioQueue struct {
	ch chan string
}

func NewAudioQueue(size int) *AudioQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &AudioQueue{ch: make(chan string, size)}
}

// Push enqueues payload and reports whether an older payload was dropped.
func (q *AudioQueue) Push(payload string) bool {
	dropped := false
	for {
		select {
		case q.ch <- payload:
			return dropped
		default:
		}
		select {
		case <-q.ch:
			dropped = true
		default:
		}
	}
}

// TryPop never blocks.
func (q *AudioQueue) TryPop() (string, bool) {
	select {
	case p := <-q.ch:
		return p, true
	default:
		return "", false
	}
}

// Pop waits up to timeout for a payload.
func (q *AudioQueue) Pop(ctx context.Context, timeout time.Duration) (string, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case p := <-q.ch:
		return p, true
	case <-timer.C:
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

// Drain empties the queue and returns how many payloads were discarded.
func (q *AudioQueue) Drain() int {
	n := 0
	for {
		select {
		case <-q.ch:
			n++
		default:
			return n
		}
	}
}

func (q *AudioQueue) Len() int { return len(q.ch) }
