package ast

import (
	"io"

	"github.com/ahills/sibilant/internal/datum"
	"github.com/ahills/sibilant/internal/reader"
)

// Composer reads zero or more expressions from a reader, yielding one
// typed tree per top-level form.
type Composer struct {
	reader *reader.Reader
	stream *reader.Stream
}

// NewComposer wraps a reader and stream.
func NewComposer(r *reader.Reader, s *reader.Stream) *Composer {
	return &Composer{reader: r, stream: s}
}

// Next composes the next top-level form, or returns nil with no error
// when the stream is exhausted.
func (c *Composer) Next() (Node, error) {
	v, pos, err := c.reader.ReadAndPosition(c.stream)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return convert(v, pos), nil
}

// ComposeFromString composes a single expression from source text.
func ComposeFromString(src, filename string) (Node, error) {
	return ComposeAllFromString(src, filename).Next()
}

// ComposeFromStream composes a single expression from r.
func ComposeFromStream(r io.Reader, filename string) (Node, error) {
	c, err := ComposeAllFromStream(r, filename)
	if err != nil {
		return nil, err
	}
	return c.Next()
}

// ComposeAllFromString returns a composer over every top-level form in
// the source text.
func ComposeAllFromString(src, filename string) *Composer {
	s := reader.NewStringStream(src, filename, true)
	return NewComposer(reader.New(), s)
}

// ComposeAllFromStream returns a composer over every top-level form
// read from r.
func ComposeAllFromStream(r io.Reader, filename string) (*Composer, error) {
	s, err := reader.NewStream(r, filename, true)
	if err != nil {
		return nil, err
	}
	return NewComposer(reader.New(), s), nil
}

var wrapperNames = map[string]func(pos datum.Position, child Node) Node{
	"quote":            func(pos datum.Position, child Node) Node { return &Quote{base{pos}, child} },
	"quasiquote":       func(pos datum.Position, child Node) Node { return &Quasi{base{pos}, child} },
	"unquote":          func(pos datum.Position, child Node) Node { return &Unquote{base{pos}, child} },
	"unquote-splicing": func(pos datum.Position, child Node) Node { return &Splice{base{pos}, child} },
}

func convert(v datum.Value, pos datum.Position) Node {
	switch x := v.(type) {
	case *datum.Pair:
		return convertPair(x, pos)
	case *datum.Symbol:
		return &Symbol{base{pos}, x.Name()}
	case *datum.Keyword:
		return &Keyword{base{pos}, x.Name()}
	case int64:
		return &Integer{base{pos}, x}
	case float64:
		return &Decimal{base{pos}, x}
	case complex128:
		return &Complex{base{pos}, x}
	case string:
		return &String{base{pos}, x}
	default:
		// datum.Nil: the empty form
		return &List{base: base{pos}, Proper: true}
	}
}

func convertPair(p *datum.Pair, pos datum.Position) Node {
	if at, ok := p.Position(); ok {
		pos = at
	}

	if node := convertWrapper(p, pos); node != nil {
		return node
	}
	if node := convertFraction(p, pos); node != nil {
		return node
	}

	proper := datum.IsProper(p)
	var elements []Node

	cell := p
	cellPos := pos
	for {
		if at, ok := cell.Position(); ok {
			cellPos = at
		}
		elements = append(elements, convert(cell.Head(), cellPos))

		switch t := cell.Tail().(type) {
		case *datum.Pair:
			cell = t
		default:
			if !proper {
				elements = append(elements, convert(t, cellPos))
			}
			return &List{base: base{pos}, Proper: proper, Elements: elements}
		}
	}
}

// convertWrapper recognises the quote-family shapes the reader emits
// for ', `, , and ,@ and restores their dedicated node types.
func convertWrapper(p *datum.Pair, pos datum.Position) Node {
	head, ok := p.Head().(*datum.Symbol)
	if !ok {
		return nil
	}
	build, ok := wrapperNames[head.Name()]
	if !ok {
		return nil
	}
	rest, ok := p.Tail().(*datum.Pair)
	if !ok || !datum.IsNil(rest.Tail()) {
		return nil
	}

	childPos := pos
	if at, ok := rest.Position(); ok {
		childPos = at
	}
	return build(pos, convert(rest.Head(), childPos))
}

// convertFraction recognises the (fraction P Q) source form produced
// by the reader's fraction atom pattern.
func convertFraction(p *datum.Pair, pos datum.Position) Node {
	items := datum.Unpack(p)
	if len(items) != 3 || !datum.IsProper(p) {
		return nil
	}
	head, ok := items[0].(*datum.Symbol)
	if !ok || head.Name() != "fraction" {
		return nil
	}
	num, ok := items[1].(int64)
	if !ok {
		return nil
	}
	den, ok := items[2].(int64)
	if !ok {
		return nil
	}
	return &Fraction{base{pos}, num, den}
}
