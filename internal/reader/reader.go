// Package reader implements sibilant's s-expression reader: a
// table-driven parser with run-time modifiable event macros and atom
// patterns, producing cons-cell trees stamped with source positions.
package reader

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ahills/sibilant/internal/datum"
)

// Event classifies the outcome of a single read step. Events are part
// of the reader's normal return channel, not errors.
type Event int

const (
	EventValue Event = iota
	EventSkip
	EventDot
	EventCloseParen
	EventEOF
)

// EventMacro handles one dispatch character. c is the character that
// triggered the macro, already consumed from the stream.
type EventMacro func(s *Stream, c rune) (Event, datum.Value, error)

// MacroFunc is the value-returning convenience form of an event macro.
type MacroFunc func(s *Stream, c rune) (datum.Value, error)

// AtomConverter turns a matched atom into a value. A conversion error
// is reported as a syntax error at the atom's position.
type AtomConverter func(atom string) (datum.Value, error)

type atomPattern struct {
	name  *datum.Symbol
	match func(string) bool
	conv  AtomConverter
}

var (
	symFraction        = datum.Intern("fraction")
	symQuote           = datum.Intern("quote")
	symQuasiquote      = datum.Intern("quasiquote")
	symUnquote         = datum.Intern("unquote")
	symUnquoteSplicing = datum.Intern("unquote-splicing")
	symSplice          = datum.Intern("splice")
)

// Reader is a table-driven s-expression parser. Its event-macro and
// atom-pattern tables are instance-scoped; concurrent readers must be
// independent instances.
type Reader struct {
	macros      map[rune]EventMacro
	terminating map[rune]bool
	atoms       []*atomPattern
}

// New returns a reader with the default macros and atom patterns
// installed.
func New() *Reader {
	r := NewBare()
	r.addDefaultMacros()
	r.addDefaultAtoms()
	return r
}

// NewBare returns a reader with empty tables. Only whitespace is
// terminating.
func NewBare() *Reader {
	return &Reader{
		macros:      map[rune]EventMacro{},
		terminating: map[rune]bool{'\n': true, '\r': true, '\t': true, ' ': true},
	}
}

// Read returns the next value in the stream, or nil with no error when
// the stream is exhausted.
func (r *Reader) Read(s *Stream) (datum.Value, error) {
	v, _, err := r.ReadAndPosition(s)
	return v, err
}

// ReadAndPosition is Read, also reporting the position the value
// started at.
func (r *Reader) ReadAndPosition(s *Stream) (datum.Value, datum.Position, error) {
	event, pos, value, err := r.read(s)
	if err != nil {
		return nil, pos, err
	}
	switch event {
	case EventValue:
		return value, pos, nil
	case EventEOF:
		return nil, pos, nil
	default:
		return nil, pos, s.Error("invalid syntax", &pos)
	}
}

func (r *Reader) read(s *Stream) (Event, datum.Position, datum.Value, error) {
	for {
		s.SkipWhitespace()

		pos := s.Position()
		c, ok := s.ReadRune()
		if !ok {
			return EventEOF, pos, nil, nil
		}

		macro := r.macros[c]
		if macro == nil {
			macro = r.readAtom
		}

		event, value, err := macro(s, c)
		if err != nil {
			if _, isSyntax := err.(*SyntaxError); !isSyntax {
				// a conversion issue inside the macro, most likely the
				// default atom reader
				err = s.Error(err.Error(), &pos)
			}
			return event, pos, nil, err
		}

		if p, isPair := value.(*datum.Pair); isPair {
			p.SetPosition(pos)
		}

		if event == EventSkip {
			continue
		}
		return event, pos, value, nil
	}
}

// SetEventMacro installs fn for every character in chars. Terminating
// characters also end any atom in progress.
func (r *Reader) SetEventMacro(chars string, fn EventMacro, terminating bool) {
	for _, c := range chars {
		r.macros[c] = fn
		if terminating {
			r.terminating[c] = true
		}
	}
}

// GetEventMacro reports the macro bound to c, if any.
func (r *Reader) GetEventMacro(c rune) (EventMacro, bool, bool) {
	fn, ok := r.macros[c]
	return fn, r.terminating[c], ok
}

// ClearEventMacro removes the macro bound to c.
func (r *Reader) ClearEventMacro(c rune) {
	if _, ok := r.macros[c]; ok {
		delete(r.macros, c)
		delete(r.terminating, c)
	}
}

// TemporaryEventMacro installs fn for c and returns a restore function
// that reinstates the previous binding. Callers defer the restore so
// the table is repaired on every exit path.
func (r *Reader) TemporaryEventMacro(c rune, fn EventMacro, terminating bool) func() {
	old, oldTerm, had := r.GetEventMacro(c)
	r.SetEventMacro(string(c), fn, terminating)

	return func() {
		if !had {
			r.ClearEventMacro(c)
		} else {
			r.ClearEventMacro(c)
			r.SetEventMacro(string(c), old, oldTerm)
		}
	}
}

// SetMacroCharacter installs a value-returning reader macro for every
// character in chars.
func (r *Reader) SetMacroCharacter(chars string, fn MacroFunc, terminating bool) {
	r.SetEventMacro(chars, adaptMacro(fn), terminating)
}

// TemporaryMacroCharacter installs a value-returning reader macro for
// c and returns its restore function.
func (r *Reader) TemporaryMacroCharacter(c rune, fn MacroFunc, terminating bool) func() {
	return r.TemporaryEventMacro(c, adaptMacro(fn), terminating)
}

func adaptMacro(fn MacroFunc) EventMacro {
	return func(s *Stream, c rune) (Event, datum.Value, error) {
		v, err := fn(s, c)
		return EventValue, v, err
	}
}

// SetAtomPattern registers (or replaces) a named atom pattern. New
// patterns are tried before previously registered ones.
func (r *Reader) SetAtomPattern(name *datum.Symbol, match func(string) bool, conv AtomConverter) {
	for _, patt := range r.atoms {
		if patt.name == name {
			patt.match = match
			patt.conv = conv
			return
		}
	}
	r.atoms = append([]*atomPattern{{name: name, match: match, conv: conv}}, r.atoms...)
}

// GetAtomPattern reports whether a pattern is registered under name.
func (r *Reader) GetAtomPattern(name *datum.Symbol) bool {
	for _, patt := range r.atoms {
		if patt.name == name {
			return true
		}
	}
	return false
}

// ClearAtomPattern removes the pattern registered under name.
func (r *Reader) ClearAtomPattern(name *datum.Symbol) {
	for i, patt := range r.atoms {
		if patt.name == name {
			r.atoms = append(r.atoms[:i], r.atoms[i+1:]...)
			return
		}
	}
}

// SetAtomRegex registers an atom pattern matching the given regular
// expression. The expression is anchored at the start of the atom, so
// a prefix match selects the pattern and the converter decides whether
// the whole atom is well formed.
func (r *Reader) SetAtomRegex(name *datum.Symbol, expr string, conv AtomConverter) error {
	re, err := regexp.Compile("^(?:" + expr + ")")
	if err != nil {
		return err
	}
	r.SetAtomPattern(name, re.MatchString, conv)
	return nil
}

func (r *Reader) addDefaultMacros() {
	r.SetEventMacro("(", r.readPair, true)
	r.SetEventMacro(")", closeParen, true)
	r.SetEventMacro(`"`, readString, true)
	r.SetEventMacro("'", r.readQuote, true)
	r.SetEventMacro("`", r.readQuasiquote, true)
	r.SetEventMacro(";", readComment, true)
}

// Registration order matters: each pattern is inserted at the front,
// so the effective try order is the reverse of the order below, ending
// with fraction first and keyword last.
func (r *Reader) addDefaultAtoms() {
	mustRegex := func(name, expr string, conv AtomConverter) {
		if err := r.SetAtomRegex(datum.Intern(name), expr, conv); err != nil {
			panic(err)
		}
	}

	mustRegex("keyword", `(:.+|.+:)$`, asKeyword)
	mustRegex("int", `-?\d+`, asInt)
	mustRegex("hex", `0x[\da-f]+`, asBaseInt)
	mustRegex("oct", `0o[0-7]+`, asBaseInt)
	mustRegex("binary", `0b[01]+`, asBaseInt)
	mustRegex("float", `-?((\d*\.\d+|\d+\.\d*)(e-?\d+)?|(\d+e-?\d+))`, asFloat)
	mustRegex("complex", `-?\d*\.?\d+\+\d*\.?\d*[ij]`, asComplex)
	mustRegex("fraction", `-?\d+/\d+`, asFraction)
}

func asKeyword(atom string) (datum.Value, error) {
	return datum.InternKeyword(atom), nil
}

func asInt(atom string) (datum.Value, error) {
	n, err := strconv.ParseInt(atom, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid integer literal %q", atom)
	}
	return n, nil
}

func asBaseInt(atom string) (datum.Value, error) {
	n, err := strconv.ParseInt(atom, 0, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid numeric literal %q", atom)
	}
	return n, nil
}

func asFloat(atom string) (datum.Value, error) {
	f, err := strconv.ParseFloat(atom, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid float literal %q", atom)
	}
	return f, nil
}

func asComplex(atom string) (datum.Value, error) {
	s := atom
	if strings.HasSuffix(s, "j") {
		s = s[:len(s)-1] + "i"
	}
	c, err := strconv.ParseComplex(s, 128)
	if err != nil {
		return nil, fmt.Errorf("invalid complex literal %q", atom)
	}
	return c, nil
}

// asFraction lowers p/q into the source form (fraction P Q). The
// target constant pool cannot hold fractions, so the numerator and
// denominator are parsed once here and the runtime constructor is
// called when the code is evaluated.
func asFraction(atom string) (datum.Value, error) {
	num, den, ok := strings.Cut(atom, "/")
	if !ok {
		return nil, fmt.Errorf("invalid fraction literal %q", atom)
	}
	p, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid fraction literal %q", atom)
	}
	q, err := strconv.ParseInt(den, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid fraction literal %q", atom)
	}
	if q == 0 {
		return nil, fmt.Errorf("zero denominator in %q", atom)
	}
	return datum.NewList(symFraction, p, q), nil
}

// readAtom is the default handler, for when no event macro matched.
func (r *Reader) readAtom(s *Stream, c rune) (Event, datum.Value, error) {
	atom := string(c) + s.ReadUntil(func(c rune) bool { return r.terminating[c] })

	if atom == "." {
		return EventDot, nil, nil
	}

	for _, patt := range r.atoms {
		if patt.match(atom) {
			v, err := patt.conv(atom)
			return EventValue, v, err
		}
	}

	return EventValue, datum.Intern(atom), nil
}

// readPair is the event macro for pair notation.
func (r *Reader) readPair(s *Stream, c rune) (Event, datum.Value, error) {
	var result datum.Value = datum.Nil
	var work *datum.Pair

	for {
		event, pos, value, err := r.read(s)
		if err != nil {
			return EventValue, nil, err
		}

		switch event {
		case EventCloseParen:
			return EventValue, result, nil

		case EventDot:
			if work == nil {
				// no items in the result yet, dot is invalid here
				return EventValue, nil, s.Error("invalid dotted list", &pos)
			}

			// improper list: the next item is the tail
			event, pos, value, err = r.read(s)
			if err != nil {
				return EventValue, nil, err
			}
			if event != EventValue {
				return EventValue, nil, s.Error("invalid list syntax", &pos)
			}
			work.SetCdr(value)

			// the list must end immediately after the dotted value
			event, pos, _, err = r.read(s)
			if err != nil {
				return EventValue, nil, err
			}
			if event != EventCloseParen {
				return EventValue, nil, s.Error("invalid use of dot in list", &pos)
			}
			return EventValue, result, nil

		case EventEOF:
			return EventValue, nil, s.Error("unexpected EOF", &pos)

		default:
			cell := datum.Cons(value, datum.Nil)
			cell.SetPosition(pos)
			if work == nil {
				// begin the list; this position is overwritten by the
				// caller with the position of the open paren
				result = cell
			} else {
				work.SetCdr(cell)
			}
			work = cell
		}
	}
}

func closeParen(s *Stream, c rune) (Event, datum.Value, error) {
	return EventCloseParen, nil, nil
}

// readString is the event macro for string literals. A backslash
// escapes the terminator; the collected text is decoded so \n, \t,
// \uXXXX and friends are interpreted.
func readString(s *Stream, quote rune) (Event, datum.Value, error) {
	var raw strings.Builder

	for {
		c, ok := s.ReadRune()
		if !ok {
			return EventValue, nil, s.Error("unexpected EOF", nil)
		}
		if c == quote {
			break
		}
		raw.WriteRune(c)
		if c == '\\' {
			esc, ok := s.ReadRune()
			if !ok {
				return EventValue, nil, s.Error("unexpected EOF", nil)
			}
			raw.WriteRune(esc)
		}
	}

	text, err := decodeEscapes(raw.String())
	if err != nil {
		return EventValue, nil, err
	}
	return EventValue, text, nil
}

func (r *Reader) readQuote(s *Stream, c rune) (Event, datum.Value, error) {
	child, pos, err := r.readSubForm(s, c)
	if err != nil {
		return EventValue, nil, err
	}
	return EventValue, wrapForm(symQuote, child, pos), nil
}

func (r *Reader) readQuasiquote(s *Stream, c rune) (Event, datum.Value, error) {
	restore := r.TemporaryEventMacro(',', r.readUnquote, true)
	child, pos, err := func() (datum.Value, datum.Position, error) {
		defer restore()
		return r.readSubForm(s, c)
	}()
	if err != nil {
		return EventValue, nil, err
	}
	return EventValue, wrapForm(symQuasiquote, child, pos), nil
}

func (r *Reader) readUnquote(s *Stream, c rune) (Event, datum.Value, error) {
	restore := r.TemporaryEventMacro('@', r.readSplice, true)
	child, pos, err := func() (datum.Value, datum.Position, error) {
		defer restore()
		return r.readSubForm(s, c)
	}()
	if err != nil {
		return EventValue, nil, err
	}

	// ,@x arrives as (splice x); collapse to unquote-splicing
	if p, ok := child.(*datum.Pair); ok && p.Head() == datum.Value(symSplice) {
		return EventValue, datum.Cons(symUnquoteSplicing, p.Tail()), nil
	}
	return EventValue, wrapForm(symUnquote, child, pos), nil
}

func (r *Reader) readSplice(s *Stream, c rune) (Event, datum.Value, error) {
	child, pos, err := r.readSubForm(s, c)
	if err != nil {
		return EventValue, nil, err
	}
	return EventValue, wrapForm(symSplice, child, pos), nil
}

// wrapForm builds (tag child), stamping the child cell with the
// child's own position.
func wrapForm(tag *datum.Symbol, child datum.Value, pos datum.Position) datum.Value {
	inner := datum.Cons(child, datum.Nil)
	inner.SetPosition(pos)
	return datum.Cons(tag, inner)
}

func (r *Reader) readSubForm(s *Stream, c rune) (datum.Value, datum.Position, error) {
	event, pos, child, err := r.read(s)
	if err != nil {
		return nil, pos, err
	}
	if event != EventValue {
		return nil, pos, s.Error(fmt.Sprintf("invalid use of %c", c), &pos)
	}
	return child, pos, nil
}

func readComment(s *Stream, c rune) (Event, datum.Value, error) {
	s.ReadLine()
	return EventSkip, nil, nil
}
