package locale

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Lang is a short language code understood by the speech services.
type Lang string

const (
	French  Lang = "fr"
	English Lang = "en"
)

// DefaultLang is used when a session has not picked a language yet.
const DefaultLang = French

// Message keys.
const (
	MsgConnected            = "connected"
	MsgNotUnderstood        = "not_understood"
	MsgModelCommunication   = "model_communication"
	MsgModelAccess          = "model_access"
	MsgLanguageNotSupported = "language_not_supported"
	MsgUnknownModel         = "unknown_model"
	MsgModelChanged         = "model_changed"
	MsgGoodbye              = "goodbye"
	MsgLanguageChanged      = "language_changed"
	MsgSpeechCancelled      = "speech_cancelled"
	MsgResponseCancelled    = "response_cancelled"
	MsgErrorPrefix          = "error_prefix"
	MsgBusy                 = "busy"
	MsgSpeechUnavailable    = "speech_unavailable"
)

//go:embed locales.yaml
var defaultLocalesYAML []byte

// Locale holds everything language-specific the assistant needs.
type Locale struct {
	Lang             Lang              `yaml:"-"`
	SpeechTag        string            `yaml:"speech_tag"`
	UserLabel        string            `yaml:"user_label"`
	AssistantLabel   string            `yaml:"assistant_label"`
	SystemPrompt     string            `yaml:"system_prompt"`
	Activation       []string          `yaml:"activation"`
	Stop             []string          `yaml:"stop"`
	Interrupt        []string          `yaml:"interrupt"`
	DecimalWord      string            `yaml:"decimal_word"`
	PeriodWord       string            `yaml:"period_word"`
	TablePlaceholder string            `yaml:"table_placeholder"`
	Messages         map[string]string `yaml:"messages"`
}

// Catalog maps languages to their locale data.
type Catalog struct {
	locales map[Lang]Locale
}

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	c, err := parse(defaultLocalesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded locales.yaml: %v", err))
	}
	return c
}

// Load returns the embedded catalog with entries from path layered on top.
// An empty path yields the embedded catalog.
func Load(path string) (*Catalog, error) {
	base := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read locale file %s: %w", path, err)
	}
	override, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse locale file %s: %w", path, err)
	}
	for lang, loc := range override.locales {
		base.locales[lang] = merge(base.locales[lang], loc)
	}
	return base, nil
}

func parse(data []byte) (*Catalog, error) {
	raw := map[string]Locale{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	c := &Catalog{locales: make(map[Lang]Locale, len(raw))}
	for code, loc := range raw {
		lang := Lang(strings.ToLower(strings.TrimSpace(code)))
		loc.Lang = lang
		loc.SystemPrompt = strings.TrimSpace(loc.SystemPrompt)
		c.locales[lang] = loc
	}
	return c, nil
}

func merge(base, over Locale) Locale {
	out := base
	out.Lang = over.Lang
	if over.SpeechTag != "" {
		out.SpeechTag = over.SpeechTag
	}
	if over.UserLabel != "" {
		out.UserLabel = over.UserLabel
	}
	if over.AssistantLabel != "" {
		out.AssistantLabel = over.AssistantLabel
	}
	if over.SystemPrompt != "" {
		out.SystemPrompt = over.SystemPrompt
	}
	if len(over.Activation) > 0 {
		out.Activation = over.Activation
	}
	if len(over.Stop) > 0 {
		out.Stop = over.Stop
	}
	if len(over.Interrupt) > 0 {
		out.Interrupt = over.Interrupt
	}
	if over.DecimalWord != "" {
		out.DecimalWord = over.DecimalWord
	}
	if over.PeriodWord != "" {
		out.PeriodWord = over.PeriodWord
	}
	if over.TablePlaceholder != "" {
		out.TablePlaceholder = over.TablePlaceholder
	}
	if len(over.Messages) > 0 {
		msgs := make(map[string]string, len(base.Messages)+len(over.Messages))
		for k, v := range base.Messages {
			msgs[k] = v
		}
		for k, v := range over.Messages {
			msgs[k] = v
		}
		out.Messages = msgs
	}
	return out
}

// Parse reports whether raw names a language present in the catalog.
func (c *Catalog) Parse(raw string) (Lang, bool) {
	lang := Lang(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := c.locales[lang]
	return lang, ok
}

// Get returns the locale for lang, falling back to DefaultLang.
func (c *Catalog) Get(lang Lang) Locale {
	if loc, ok := c.locales[lang]; ok {
		return loc
	}
	return c.locales[DefaultLang]
}

// Message returns the localized message for key, or the key itself.
func (l Locale) Message(key string) string {
	if v, ok := l.Messages[key]; ok && v != "" {
		return v
	}
	return key
}

// HasStopPhrase reports whether text contains one of the session-ending phrases.
func (l Locale) HasStopPhrase(text string) bool {
	return containsAny(text, l.Stop)
}

// HasInterruptPhrase reports whether text asks to interrupt the current reply.
func (l Locale) HasInterruptPhrase(text string) bool {
	return containsAny(text, l.Interrupt)
}

// Activate checks text for an activation phrase. When the phrase opens the
// utterance it is stripped from the returned prompt.
func (l Locale) Activate(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)
	for _, phrase := range l.Activation {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase == "" {
			continue
		}
		if strings.HasPrefix(lower, phrase) && boundaryAt(lower, len(phrase)) {
			rest := trimmed[len(phrase):]
			rest = strings.TrimLeftFunc(rest, func(r rune) bool {
				return unicode.IsSpace(r) || unicode.IsPunct(r)
			})
			return strings.TrimSpace(rest), true
		}
	}
	for _, phrase := range l.Activation {
		if ContainsPhrase(trimmed, phrase) {
			return trimmed, true
		}
	}
	return "", false
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if ContainsPhrase(text, p) {
			return true
		}
	}
	return false
}

// ContainsPhrase reports whether phrase occurs in text as whole words,
// ignoring case.
func ContainsPhrase(text, phrase string) bool {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if phrase == "" {
		return false
	}
	lower := strings.ToLower(text)
	from := 0
	for from <= len(lower) {
		idx := strings.Index(lower[from:], phrase)
		if idx < 0 {
			return false
		}
		start := from + idx
		end := start + len(phrase)
		if boundaryBefore(lower, start) && boundaryAt(lower, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(lower[start:])
		from = start + size
	}
	return false
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAt(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
