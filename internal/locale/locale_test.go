package locale

import (
	"os"
	"path/filepath"
	"testing"
)

func TestContainsPhrase(t *testing.T) {
	cases := []struct {
		text   string
		phrase string
		want   bool
	}{
		{"Au revoir mon ami", "au revoir", true},
		{"OK, STOP now", "stop", true},
		{"le chronomètre stopwatch", "stop", false},
		{"arrête!", "arrête", true},
		{"this weekend", "end", false},
		{"", "stop", false},
		{"stop", "", false},
	}
	for _, tc := range cases {
		if got := ContainsPhrase(tc.text, tc.phrase); got != tc.want {
			t.Fatalf("ContainsPhrase(%q, %q) = %v, want %v", tc.text, tc.phrase, got, tc.want)
		}
	}
}

func TestActivateStripsLeadingPhrase(t *testing.T) {
	fr := Default().Get(French)

	prompt, ok := fr.Activate("OK assistant, quelle heure est-il ?")
	if !ok {
		t.Fatalf("Activate() ok = false, want true")
	}
	if prompt != "quelle heure est-il ?" {
		t.Fatalf("Activate() prompt = %q, want %q", prompt, "quelle heure est-il ?")
	}

	prompt, ok = fr.Activate("dis donc, ok assistant quelle heure")
	if !ok || prompt != "dis donc, ok assistant quelle heure" {
		t.Fatalf("Activate() = (%q, %v), want unchanged prompt and true", prompt, ok)
	}

	if _, ok := fr.Activate("quelle heure est-il"); ok {
		t.Fatalf("Activate() without phrase ok = true, want false")
	}
}

func TestCatalogFallbackAndMessages(t *testing.T) {
	c := Default()
	if _, ok := c.Parse("de"); ok {
		t.Fatalf("Parse(de) ok = true, want false")
	}
	lang, ok := c.Parse(" EN ")
	if !ok || lang != English {
		t.Fatalf("Parse(EN) = (%q, %v), want (en, true)", lang, ok)
	}
	if got := c.Get("xx").Lang; got != French {
		t.Fatalf("Get(xx).Lang = %q, want %q", got, French)
	}
	if got := c.Get(English).Message(MsgGoodbye); got != "Goodbye! See you soon." {
		t.Fatalf("goodbye = %q", got)
	}
	if got := c.Get(English).Message("missing_key"); got != "missing_key" {
		t.Fatalf("Message(missing_key) = %q, want key echo", got)
	}
}

func TestLoadOverridesEmbeddedCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locales.yaml")
	data := []byte("fr:\n  activation: [\"salut ordi\"]\n  messages:\n    goodbye: \"Salut!\"\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	fr := c.Get(French)
	if _, ok := fr.Activate("salut ordi raconte une blague"); !ok {
		t.Fatalf("override activation phrase not applied")
	}
	if fr.Message(MsgGoodbye) != "Salut!" {
		t.Fatalf("goodbye = %q, want override", fr.Message(MsgGoodbye))
	}
	if fr.Message(MsgNotUnderstood) == MsgNotUnderstood {
		t.Fatalf("non-overridden messages should be kept")
	}
	if fr.SpeechTag != "fr-FR" {
		t.Fatalf("SpeechTag = %q, want fr-FR", fr.SpeechTag)
	}
}
