package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ent0n29/ollavoice/internal/locale"
)

func TestManagerCreateGetEnd(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create(CreateOptions{Lang: locale.English, Model: "llama3"})
	if s.ID == "" {
		t.Fatalf("session ID should not be empty")
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != s || got.Lang() != locale.English || got.Model() != "llama3" || got.Status() != StatusActive {
		t.Fatalf("unexpected session state: %+v", got.Info())
	}
	if m.ActiveCount() != 1 || len(m.List()) != 1 {
		t.Fatalf("ActiveCount() = %d", m.ActiveCount())
	}

	s.Queue.Push("pending")
	ended, err := m.End(s.ID)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.Status() != StatusEnded || ended.Queue.Len() != 0 {
		t.Fatalf("ended = %+v", ended.Info())
	}
	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(ended) error = %v, want ErrNotFound", err)
	}
	if _, err := m.End(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("End(twice) error = %v, want ErrNotFound", err)
	}
}

func TestSessionDefaults(t *testing.T) {
	s := NewManager(time.Minute).Create(CreateOptions{})
	if s.Lang() != locale.DefaultLang {
		t.Fatalf("Lang() = %q, want default", s.Lang())
	}
	if s.History.Limit() != 10 {
		t.Fatalf("History.Limit() = %d, want 10", s.History.Limit())
	}
	s.SetLang(locale.English)
	s.SetModel("gemma3:12b")
	info := s.Info()
	if info.Lang != locale.English || info.Model != "gemma3:12b" {
		t.Fatalf("Info() = %+v", info)
	}
}

func TestSessionWorkerGuard(t *testing.T) {
	s := NewManager(time.Minute).Create(CreateOptions{})

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.StartListening() {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("StartListening winners = %d, want 1", wins.Load())
	}
	if !s.StopListening() || s.StopListening() {
		t.Fatalf("StopListening should succeed exactly once")
	}
	if !s.BeginGeneration() || s.BeginGeneration() {
		t.Fatalf("BeginGeneration should succeed exactly once")
	}
	s.EndGeneration()
	if s.Generating() {
		t.Fatalf("Generating() after EndGeneration")
	}
}

func TestSessionEndedByStopIsConsumedOnce(t *testing.T) {
	s := NewManager(time.Minute).Create(CreateOptions{})
	if s.TakeEndedByStop() {
		t.Fatalf("fresh session marked ended")
	}
	s.MarkEndedByStop()
	if !s.TakeEndedByStop() || s.TakeEndedByStop() {
		t.Fatalf("TakeEndedByStop should report true exactly once")
	}
}

func TestManagerJanitorExpiresInactive(t *testing.T) {
	m := NewManager(30 * time.Millisecond)
	s := m.Create(CreateOptions{})
	expired := make(chan string, 1)
	m.SetExpireHook(func(s *Session) { expired <- s.ID })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	select {
	case id := <-expired:
		if id != s.ID {
			t.Fatalf("expired %q, want %q", id, s.ID)
		}
	case <-time.After(time.Second):
		t.Fatalf("session not expired")
	}
	if s.Status() != StatusEnded || m.ActiveCount() != 0 {
		t.Fatalf("status = %q active = %d", s.Status(), m.ActiveCount())
	}
}

func TestManagerTouchKeepsSessionAlive(t *testing.T) {
	m := NewManager(time.Hour)
	s := m.Create(CreateOptions{})
	if err := m.Touch(s.ID); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	m.expireInactive()
	if m.ActiveCount() != 1 {
		t.Fatalf("fresh session expired")
	}
	if err := m.Touch("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Touch(missing) error = %v", err)
	}
}

func TestAudioQueueDropsOldest(t *testing.T) {
	q := NewAudioQueue(3)
	for i := 0; i < 3; i++ {
		if q.Push(fmt.Sprint(i)) {
			t.Fatalf("Push(%d) dropped with room left", i)
		}
	}
	if !q.Push("3") {
		t.Fatalf("Push on full queue should drop")
	}
	var got []string
	for {
		p, ok := q.TryPop()
		if !ok {
			break
		}
		got = append(got, p)
	}
	if fmt.Sprint(got) != "[1 2 3]" {
		t.Fatalf("queue = %v, want [1 2 3]", got)
	}
}

func TestAudioQueuePopAndDrain(t *testing.T) {
	q := NewAudioQueue(0)
	start := time.Now()
	if _, ok := q.Pop(context.Background(), 20*time.Millisecond); ok {
		t.Fatalf("Pop on empty queue returned a payload")
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Fatalf("Pop returned before its timeout")
	}

	go func() {
		time.Sleep(5 * time.Millisecond)
		q.Push("late")
	}()
	if p, ok := q.Pop(context.Background(), time.Second); !ok || p != "late" {
		t.Fatalf("Pop() = %q, %v", p, ok)
	}

	q.Push("a")
	q.Push("b")
	if n := q.Drain(); n != 2 || q.Len() != 0 {
		t.Fatalf("Drain() = %d, Len() = %d", n, q.Len())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := q.Pop(ctx, time.Second); ok {
		t.Fatalf("Pop with cancelled ctx returned a payload")
	}
}
