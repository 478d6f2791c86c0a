package reader

import (
	"io"
	"unicode"

	"github.com/ahills/sibilant/internal/datum"
)

// Stream is a seekable character source with line and column
// bookkeeping. Position reports the location of the next character to
// be read; lines start at 1, columns at 0.
type Stream struct {
	filename string
	runes    []rune
	off      int
	line     int
	col      int
}

// NewStringStream wraps source text in a Stream. When skipExec is true
// a leading #! line is discarded.
func NewStringStream(src, filename string, skipExec bool) *Stream {
	s := &Stream{filename: filename, runes: []rune(src), line: 1}
	if skipExec {
		s.SkipExec()
	}
	return s
}

// NewStream reads r to its end and wraps the contents in a Stream.
func NewStream(r io.Reader, filename string, skipExec bool) (*Stream, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return NewStringStream(string(data), filename, skipExec), nil
}

// Filename returns the name the stream was opened under.
func (s *Stream) Filename() string { return s.filename }

// Position returns the line and column of the next character.
func (s *Stream) Position() datum.Position {
	return datum.Position{Line: s.line, Col: s.col}
}

// Error builds a syntax error at pos, or at the current position when
// pos is nil. It never raises by itself.
func (s *Stream) Error(message string, pos *datum.Position) *SyntaxError {
	p := s.Position()
	if pos != nil {
		p = *pos
	}
	return &SyntaxError{
		Message:  message,
		Filename: s.filename,
		Position: p,
	}
}

func (s *Stream) advance(c rune) {
	switch c {
	case '\n':
		s.line++
		s.col = 0
	case '\r':
		s.col = 0
	default:
		s.col++
	}
}

// Read consumes up to count characters, updating the line and column
// counters. A carriage return alone resets the column; a line feed
// increments the line and resets the column.
func (s *Stream) Read(count int) string {
	if count < 1 {
		panic("nonsense read value")
	}
	end := s.off + count
	if end > len(s.runes) {
		end = len(s.runes)
	}
	data := s.runes[s.off:end]
	for _, c := range data {
		s.advance(c)
	}
	s.off = end
	return string(data)
}

// ReadRune consumes a single character. ok is false at end of stream.
func (s *Stream) ReadRune() (c rune, ok bool) {
	if s.off >= len(s.runes) {
		return 0, false
	}
	c = s.runes[s.off]
	s.off++
	s.advance(c)
	return c, true
}

// Peek returns up to count characters without consuming them.
func (s *Stream) Peek(count int) string {
	end := s.off + count
	if end > len(s.runes) {
		end = len(s.runes)
	}
	return string(s.runes[s.off:end])
}

// ReadLine consumes through the end of the current line, advancing the
// line counter.
func (s *Stream) ReadLine() string {
	start := s.off
	for s.off < len(s.runes) {
		c := s.runes[s.off]
		s.off++
		if c == '\n' {
			break
		}
	}
	s.line++
	s.col = 0
	return string(s.runes[start:s.off])
}

// ReadUntil consumes the longest prefix whose characters fail pred.
// The first character satisfying pred is left in the stream.
func (s *Stream) ReadUntil(pred func(rune) bool) string {
	n := 0
	for s.off+n < len(s.runes) && !pred(s.runes[s.off+n]) {
		n++
	}
	if n == 0 {
		return ""
	}
	return s.Read(n)
}

// SkipWhitespace discards any run of whitespace characters.
func (s *Stream) SkipWhitespace() {
	s.ReadUntil(func(c rune) bool { return !unicode.IsSpace(c) })
}

// SkipExec discards the first line iff it begins with #!.
func (s *Stream) SkipExec() {
	if s.Peek(2) == "#!" {
		s.ReadLine()
	}
}
