// Package ast wraps reader output in a typed tree. Each node carries
// its source position and knows how to simplify itself into the
// runtime cons-cell shapes the compiler consumes, registering every
// produced pair in a position table along the way.
package ast

import (
	"github.com/ahills/sibilant/internal/datum"
)

// Node is a typed expression tree element.
type Node interface {
	// Position is the source location the node started at.
	Position() datum.Position

	// Simplify produces the runtime value for the node, registering
	// each produced pair in positions keyed by identity.
	Simplify(positions datum.PosMap) datum.Value
}

type base struct {
	pos datum.Position
}

func (b base) Position() datum.Position { return b.pos }

// Symbol names a variable or special form.
type Symbol struct {
	base
	Name string
}

// Keyword is a first-class interned tag.
type Keyword struct {
	base
	Name string
}

// Integer is a decimal, binary, octal or hex integer literal.
type Integer struct {
	base
	Value int64
}

// Decimal is a floating-point literal.
type Decimal struct {
	base
	Value float64
}

// Fraction is a p/q literal. It simplifies to the source form
// (fraction P Q) since the target constant pool cannot hold fractions.
type Fraction struct {
	base
	Numerator   int64
	Denominator int64
}

// Complex is an a+bi literal.
type Complex struct {
	base
	Value complex128
}

// String is a string literal, already unescaped.
type String struct {
	base
	Value string
}

// List is a parenthesised form. Proper lists terminate in nil; an
// improper list's last element is the dotted tail.
type List struct {
	base
	Proper   bool
	Elements []Node
}

// Quote is 'x.
type Quote struct {
	base
	Child Node
}

// Quasi is `x.
type Quasi struct {
	base
	Child Node
}

// Unquote is ,x.
type Unquote struct {
	base
	Child Node
}

// Splice is ,@x.
type Splice struct {
	base
	Child Node
}

// NewSymbol builds a Symbol node at pos.
func NewSymbol(pos datum.Position, name string) *Symbol {
	return &Symbol{base{pos}, name}
}

// NewInteger builds an Integer node at pos.
func NewInteger(pos datum.Position, v int64) *Integer {
	return &Integer{base{pos}, v}
}

// NewDecimal builds a Decimal node at pos.
func NewDecimal(pos datum.Position, v float64) *Decimal {
	return &Decimal{base{pos}, v}
}

// NewString builds a String node at pos.
func NewString(pos datum.Position, v string) *String {
	return &String{base{pos}, v}
}

func (n *Symbol) Simplify(positions datum.PosMap) datum.Value {
	return datum.Intern(n.Name)
}

func (n *Keyword) Simplify(positions datum.PosMap) datum.Value {
	return datum.InternKeyword(n.Name)
}

func (n *Integer) Simplify(positions datum.PosMap) datum.Value {
	return n.Value
}

func (n *Decimal) Simplify(positions datum.PosMap) datum.Value {
	return n.Value
}

func (n *Fraction) Simplify(positions datum.PosMap) datum.Value {
	v := datum.NewList(datum.Intern("fraction"), n.Numerator, n.Denominator)
	register(positions, v, n.pos)
	return v
}

func (n *Complex) Simplify(positions datum.PosMap) datum.Value {
	return n.Value
}

func (n *String) Simplify(positions datum.PosMap) datum.Value {
	return n.Value
}

func (n *List) Simplify(positions datum.PosMap) datum.Value {
	if len(n.Elements) == 0 {
		return datum.Nil
	}

	if !n.Proper {
		items := make([]datum.Value, len(n.Elements))
		for i, e := range n.Elements {
			items[i] = e.Simplify(positions)
		}
		v := datum.NewImproper(items...)
		n.stamp(positions, v)
		return v
	}

	items := make([]datum.Value, len(n.Elements))
	for i, e := range n.Elements {
		items[i] = e.Simplify(positions)
	}
	v := datum.NewList(items...)
	n.stamp(positions, v)
	return v
}

// stamp registers each pair of the produced chain: the head pair gets
// the list's own position, subsequent pairs the positions of their
// elements, mirroring what the reader records.
func (n *List) stamp(positions datum.PosMap, v datum.Value) {
	p, ok := v.(*datum.Pair)
	if !ok {
		return
	}
	register(positions, p, n.pos)
	i := 1
	for {
		next, ok := p.Tail().(*datum.Pair)
		if !ok {
			return
		}
		if i < len(n.Elements) {
			register(positions, next, n.Elements[i].Position())
		}
		p = next
		i++
	}
}

func (n *Quote) Simplify(positions datum.PosMap) datum.Value {
	return wrap(positions, "quote", n.pos, n.Child)
}

func (n *Quasi) Simplify(positions datum.PosMap) datum.Value {
	return wrap(positions, "quasiquote", n.pos, n.Child)
}

func (n *Unquote) Simplify(positions datum.PosMap) datum.Value {
	return wrap(positions, "unquote", n.pos, n.Child)
}

func (n *Splice) Simplify(positions datum.PosMap) datum.Value {
	return wrap(positions, "unquote-splicing", n.pos, n.Child)
}

func wrap(positions datum.PosMap, name string, pos datum.Position, child Node) datum.Value {
	inner := datum.Cons(child.Simplify(positions), datum.Nil)
	register(positions, inner, child.Position())
	outer := datum.Cons(datum.Intern(name), inner)
	register(positions, outer, pos)
	return outer
}

func register(positions datum.PosMap, v datum.Value, pos datum.Position) {
	p, ok := v.(*datum.Pair)
	if !ok {
		return
	}
	p.SetPosition(pos)
	if positions != nil {
		positions.Set(p, pos)
	}
}
