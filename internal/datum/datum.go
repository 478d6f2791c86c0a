// Package datum provides the value model shared by the reader and the
// compiler: cons pairs with optional source positions, interned symbols
// and keywords, and the nil sentinel that terminates proper lists.
package datum

import (
	"strconv"
	"strings"
	"sync"
)

// Value is any sibilant datum: *Pair, *Symbol, *Keyword, Nil, int64,
// float64, complex128, or string. The untyped Go nil is also a valid
// Value; it stands for the target VM's None constant.
type Value interface{}

// Position is a source location. Lines start at 1, columns at 0.
type Position struct {
	Line int
	Col  int
}

type nilType struct{}

// Nil is the empty-list sentinel. It is distinct from the Go nil
// Value, which represents the target VM's None.
var Nil = &nilType{}

func (*nilType) String() string { return "nil" }

// Pair is a cons cell of (head, tail). Proper lists terminate in Nil.
type Pair struct {
	head Value
	tail Value
	pos  *Position
}

// Cons builds a single pair.
func Cons(head, tail Value) *Pair {
	return &Pair{head: head, tail: tail}
}

// NewList builds a proper list from items.
func NewList(items ...Value) Value {
	var result Value = Nil
	for i := len(items) - 1; i >= 0; i-- {
		result = Cons(items[i], result)
	}
	return result
}

// NewImproper builds an improper list: the final item becomes the tail
// of the last pair. At least two items are required.
func NewImproper(items ...Value) Value {
	if len(items) < 2 {
		panic("improper list needs at least two items")
	}
	var result Value = items[len(items)-1]
	for i := len(items) - 2; i >= 0; i-- {
		result = Cons(items[i], result)
	}
	return result
}

func (p *Pair) Head() Value { return p.head }
func (p *Pair) Tail() Value { return p.tail }

// SetHead replaces the head of the pair.
func (p *Pair) SetHead(v Value) { p.head = v }

// SetCdr replaces the tail of the pair, possibly making a list
// improper.
func (p *Pair) SetCdr(v Value) { p.tail = v }

// SetPosition stamps the pair with a source position.
func (p *Pair) SetPosition(pos Position) { p.pos = &pos }

// Position reports the pair's source position, if stamped.
func (p *Pair) Position() (Position, bool) {
	if p.pos == nil {
		return Position{}, false
	}
	return *p.pos, true
}

func (p *Pair) String() string { return Print(p) }

// IsPair reports whether v is a cons cell.
func IsPair(v Value) bool {
	_, ok := v.(*Pair)
	return ok
}

// IsNil reports whether v is the empty-list sentinel.
func IsNil(v Value) bool { return v == Value(Nil) }

// IsProper reports whether p is a proper list, terminating in Nil.
func IsProper(p *Pair) bool {
	for {
		switch t := p.tail.(type) {
		case *nilType:
			return true
		case *Pair:
			p = t
		default:
			return false
		}
	}
}

// Unpack flattens a pair chain into a slice. Heads are collected in
// order; for an improper list the final non-nil tail is appended as
// the last element, so (a . b) unpacks to [a b].
func Unpack(p *Pair) []Value {
	var items []Value
	for {
		items = append(items, p.head)
		switch t := p.tail.(type) {
		case *nilType:
			return items
		case *Pair:
			p = t
		default:
			return append(items, t)
		}
	}
}

// Count returns the number of items Unpack would yield.
func Count(p *Pair) int { return len(Unpack(p)) }

// Symbol is an interned identifier. Two symbols with the same name are
// the same pointer, so equality is pointer equality.
type Symbol struct {
	name string
}

func (s *Symbol) Name() string   { return s.name }
func (s *Symbol) String() string { return s.name }

// Keyword is an interned tag. Its printed form carries a leading
// colon; the colon is not part of the interned name.
type Keyword struct {
	name string
}

func (k *Keyword) Name() string   { return k.name }
func (k *Keyword) String() string { return ":" + k.name }

var (
	internMu sync.Mutex
	symbols  = map[string]*Symbol{}
	keywords = map[string]*Keyword{}
)

// Intern returns the symbol for name, creating it on first use. The
// pool is process-wide and safe for concurrent use.
func Intern(name string) *Symbol {
	internMu.Lock()
	defer internMu.Unlock()
	s, ok := symbols[name]
	if !ok {
		s = &Symbol{name: name}
		symbols[name] = s
	}
	return s
}

// InternKeyword returns the keyword for name. Leading and trailing
// colons are stripped before interning, so :foo and foo: intern the
// same tag.
func InternKeyword(name string) *Keyword {
	name = strings.TrimSuffix(strings.TrimPrefix(name, ":"), ":")
	internMu.Lock()
	defer internMu.Unlock()
	k, ok := keywords[name]
	if !ok {
		k = &Keyword{name: name}
		keywords[name] = k
	}
	return k
}

// PosMap records source positions keyed by value identity. Only pairs
// are registered; pointer equality of *Pair makes the identity key.
type PosMap map[Value]Position

// Set records the position of v.
func (m PosMap) Set(v Value, pos Position) { m[v] = pos }

// Get reports the recorded position of v.
func (m PosMap) Get(v Value) (Position, bool) {
	pos, ok := m[v]
	return pos, ok
}

// Print renders a datum in its source form. Reading the printed form
// of a reader-produced value yields an equal value, modulo numeric
// normalisation.
func Print(v Value) string {
	var b strings.Builder
	printTo(&b, v)
	return b.String()
}

func printTo(b *strings.Builder, v Value) {
	switch x := v.(type) {
	case nil:
		b.WriteString("None")
	case *nilType:
		b.WriteString("nil")
	case *Pair:
		printPair(b, x)
	case *Symbol:
		b.WriteString(x.name)
	case *Keyword:
		b.WriteString(x.String())
	case int64:
		b.WriteString(strconv.FormatInt(x, 10))
	case float64:
		s := strconv.FormatFloat(x, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		b.WriteString(s)
	case complex128:
		b.WriteString(formatComplex(x))
	case string:
		b.WriteString(quoteString(x))
	case bool:
		if x {
			b.WriteString("True")
		} else {
			b.WriteString("False")
		}
	default:
		b.WriteString("#<unprintable>")
	}
}

func printPair(b *strings.Builder, p *Pair) {
	b.WriteByte('(')
	for {
		printTo(b, p.head)
		switch t := p.tail.(type) {
		case *nilType:
			b.WriteByte(')')
			return
		case *Pair:
			b.WriteByte(' ')
			p = t
		default:
			b.WriteString(" . ")
			printTo(b, t)
			b.WriteByte(')')
			return
		}
	}
}

func formatComplex(c complex128) string {
	re := strconv.FormatFloat(real(c), 'g', -1, 64)
	im := strconv.FormatFloat(imag(c), 'g', -1, 64)
	return re + "+" + im + "i"
}

func quoteString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
