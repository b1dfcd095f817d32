package stream

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Delimiter selects where the segmenter cuts the token stream.
type Delimiter string

const (
	DelimiterNewline  Delimiter = "newline"
	DelimiterSentence Delimiter = "sentence"
)

func ParseDelimiter(s string) (Delimiter, error) {
	switch Delimiter(strings.ToLower(strings.TrimSpace(s))) {
	case "", DelimiterNewline:
		return DelimiterNewline, nil
	case DelimiterSentence:
		return DelimiterSentence, nil
	default:
		return "", fmt.Errorf("unknown delimiter %q", s)
	}
}

// State is the segmenter's position in its two-state machine.
type State int

const (
	// Accumulating: the buffer holds no complete segment.
	Accumulating State = iota
	// EmitReady: at least one complete segment can be taken with Next.
	EmitReady
)

func (s State) String() string {
	if s == EmitReady {
		return "EMIT_READY"
	}
	return "ACCUMULATING"
}

// boundaryFunc returns the index just past the first delimiter in buf, or -1.
type boundaryFunc func(buf string) int

func newlineBoundary(buf string) int {
	i := strings.IndexByte(buf, '\n')
	if i < 0 {
		return -1
	}
	return i + 1
}

// sentenceBoundary cuts after a newline, or after terminal punctuation once
// the following whitespace has arrived. "3.14" and a trailing "." wait.
func sentenceBoundary(buf string) int {
	for i, r := range buf {
		switch r {
		case '\n':
			return i + 1
		case '.', '!', '?', '…':
			j := i + utf8.RuneLen(r)
			if j >= len(buf) {
				return -1
			}
			next, size := utf8.DecodeRuneInString(buf[j:])
			if unicode.IsSpace(next) {
				return j + size
			}
		}
	}
	return -1
}

// Segmenter splits an append-only text stream into delimiter-terminated
// segments. Each delimiter yields exactly one segment.
type Segmenter struct {
	buf      string
	state    State
	boundary boundaryFunc
}

func NewSegmenter(d Delimiter) *Segmenter {
	s := &Segmenter{boundary: newlineBoundary}
	if d == DelimiterSentence {
		s.boundary = sentenceBoundary
	}
	return s
}

// Write appends a fragment and updates the state.
func (s *Segmenter) Write(fragment string) {
	if fragment == "" {
		return
	}
	s.buf += fragment
	s.update()
}

// Next pops the oldest complete segment, delimiter included.
func (s *Segmenter) Next() (string, bool) {
	if s.state != EmitReady {
		return "", false
	}
	end := s.boundary(s.buf)
	seg := s.buf[:end]
	s.buf = s.buf[end:]
	s.update()
	return seg, true
}

// Flush returns whatever is left and resets the buffer.
func (s *Segmenter) Flush() string {
	rest := s.buf
	s.buf = ""
	s.state = Accumulating
	return rest
}

func (s *Segmenter) State() State { return s.state }

// Pending is the unterminated text currently buffered.
func (s *Segmenter) Pending() string { return s.buf }

func (s *Segmenter) update() {
	if s.boundary(s.buf) >= 0 {
		s.state = EmitReady
		return
	}
	s.state = Accumulating
}
