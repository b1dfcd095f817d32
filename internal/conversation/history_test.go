package conversation

import (
	"fmt"
	"sync"
	"testing"

	"github.com/ent0n29/ollavoice/internal/locale"
)

func TestHistoryCapsAndEvictsOldestFirst(t *testing.T) {
	h := NewHistory(DefaultLimit)
	for i := 0; i < 8; i++ {
		h.Append(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
		if h.Len() > DefaultLimit {
			t.Fatalf("Len() = %d after %d exchanges, want <= %d", h.Len(), i+1, DefaultLimit)
		}
	}

	turns := h.Turns()
	if len(turns) != DefaultLimit {
		t.Fatalf("len(turns) = %d, want %d", len(turns), DefaultLimit)
	}
	if turns[0].Text != "q3" || turns[len(turns)-1].Text != "a7" {
		t.Fatalf("window = %q..%q, want q3..a7", turns[0].Text, turns[len(turns)-1].Text)
	}
	for i, turn := range turns {
		want := RoleUser
		if i%2 == 1 {
			want = RoleAssistant
		}
		if turn.Role != want {
			t.Fatalf("turns[%d].Role = %q, want %q", i, turn.Role, want)
		}
	}
}

func TestHistoryOddLimitKeepsPairs(t *testing.T) {
	h := NewHistory(5)
	if h.Limit() != 4 {
		t.Fatalf("Limit() = %d, want 4", h.Limit())
	}
	for i := 0; i < 3; i++ {
		h.Append("q", "a")
	}
	if h.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", h.Len())
	}
	if h.Turns()[0].Role != RoleUser {
		t.Fatalf("first turn should be a user turn")
	}
}

func TestHistoryResetAndConcurrentAppend(t *testing.T) {
	h := NewHistory(0)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.Append(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
		}(i)
	}
	wg.Wait()
	if h.Len() != DefaultLimit {
		t.Fatalf("Len() = %d, want %d", h.Len(), DefaultLimit)
	}
	h.Reset()
	if h.Len() != 0 {
		t.Fatalf("Len() after Reset = %d, want 0", h.Len())
	}
}

func TestBuildPrompt(t *testing.T) {
	h := NewHistory(DefaultLimit)
	h.Append("Bonjour", "Salut !")
	fr := locale.Default().Get(locale.French)

	got := BuildPrompt(h.Turns(), "  Quelle heure ?  ", fr)
	want := "Utilisateur [fr]: Bonjour\nAssistant [fr]: Salut !\nUtilisateur [fr]: Quelle heure ?\nAssistant [fr]:"
	if got != want {
		t.Fatalf("BuildPrompt() = %q, want %q", got, want)
	}

	en := locale.Default().Get(locale.English)
	got = BuildPrompt(nil, "hi", en)
	if got != "User [en]: hi\nAssistant [en]:" {
		t.Fatalf("BuildPrompt(empty history) = %q", got)
	}
}
