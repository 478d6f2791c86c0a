package compiler

import (
	"github.com/golang/glog"

	"github.com/ahills/sibilant/internal/datum"
)

// Syntax is a compile-time callable: a built-in special form or a
// user-defined macro. Invoke either emits pseudo-ops directly and
// returns nil, or returns a rewritten expression for the compiler to
// start over on.
type Syntax interface {
	SyntaxName() string
	Invoke(cs *CodeSpace, tail datum.Value) (datum.Value, error)
}

// Special is a built-in special form whose compilation is hard-coded.
type Special struct {
	name string
	fn   func(*CodeSpace, datum.Value) (datum.Value, error)
}

func (s *Special) SyntaxName() string { return s.name }

func (s *Special) Invoke(cs *CodeSpace, tail datum.Value) (datum.Value, error) {
	return s.fn(cs, tail)
}

// MacroFunc is the expansion function of a user-defined macro. It
// receives the unexpanded argument forms and returns the rewritten
// expression.
type MacroFunc func(args ...datum.Value) (datum.Value, error)

// Macro wraps a function as a compile-time transformer. The runtime's
// macro() wrapper produces these, and defmacro-defined bindings reach
// the compiler through the environment in this shape.
type Macro struct {
	name   string
	expand MacroFunc
}

// NewMacro wraps fn as a macro named name.
func NewMacro(name string, fn MacroFunc) *Macro {
	return &Macro{name: name, expand: fn}
}

func (m *Macro) SyntaxName() string { return m.name }

// Invoke unpacks the argument forms and hands them, unevaluated, to
// the expansion function.
func (m *Macro) Invoke(cs *CodeSpace, tail datum.Value) (datum.Value, error) {
	var args []datum.Value
	if p, ok := tail.(*datum.Pair); ok {
		args = datum.Unpack(p)
	}
	return m.expand(args...)
}

// AddExpression compiles one expression into the code space. Special
// forms and macros found in the environment are expanded, and the
// resulting rewrites are compiled from the top; anything else becomes
// a function call, a variable load, or a constant.
func (cs *CodeSpace) AddExpression(expr datum.Value) error {
	if err := cs.requireActive(); err != nil {
		return err
	}

	cs.pseudopPositionOf(expr)

	for {
		if datum.IsNil(expr) {
			cs.pseudopConst(datum.Nil)
			return nil
		}

		switch x := expr.(type) {
		case *datum.Pair:
			if head, ok := x.Head().(*datum.Symbol); ok {
				syntax := cs.findSyntax(head)
				if syntax != nil {
					expansion, err := syntax.Invoke(cs, x.Tail())
					if err != nil {
						return err
					}
					if expansion == nil {
						// the special or macro emitted everything
						return nil
					}
					glog.V(2).Infof("expanded %s to %s",
						syntax.SyntaxName(), datum.Print(expansion))
					expr = expansion
					continue
				}
			}

			// not a special, so it's a function call
			items := datum.Unpack(x)
			for _, item := range items {
				if err := cs.AddExpression(item); err != nil {
					return err
				}
			}
			cs.pseudopPositionOf(x)
			cs.pseudopCall(len(items) - 1)
			return nil

		case *datum.Symbol:
			cs.pseudopGetVar(x.Name())
			return nil

		default:
			cs.pseudopConst(expr)
			return nil
		}
	}
}

// AddExpressionWithPop compiles an expression, then discards its
// result.
func (cs *CodeSpace) AddExpressionWithPop(expr datum.Value) error {
	if err := cs.AddExpression(expr); err != nil {
		return err
	}
	cs.pseudopPop()
	return nil
}

// AddExpressionWithReturn compiles an expression, then returns its
// result from the current call.
func (cs *CodeSpace) AddExpressionWithReturn(expr datum.Value) error {
	if err := cs.AddExpression(expr); err != nil {
		return err
	}
	cs.pseudopReturn()
	return nil
}

// findSyntax resolves a head symbol to a special form or macro: first
// in the environment itself, then in __builtins__. A binding that is
// not Syntax means the expression is an ordinary call.
func (cs *CodeSpace) findSyntax(sym *datum.Symbol) Syntax {
	name := sym.Name()

	found, ok := cs.env[name]
	if !ok {
		if builtins, isEnv := cs.env[builtinsKey].(Env); isEnv {
			found = builtins[name]
		}
	}

	if syntax, isSyntax := found.(Syntax); isSyntax {
		return syntax
	}
	return nil
}
