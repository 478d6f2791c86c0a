package compiler

import (
	"github.com/ahills/sibilant/internal/datum"
)

var (
	symElse            = datum.Intern("else")
	symUnquote         = datum.Intern("unquote")
	symUnquoteSplicing = datum.Intern("unquote-splicing")

	kwElse    = datum.InternKeyword("else")
	kwFinally = datum.InternKeyword("finally")
)

// Builtins returns the table of built-in special forms, suitable for
// binding under __builtins__ in a compilation environment.
func Builtins() Env {
	env := Env{}
	for name, fn := range map[string]func(*CodeSpace, datum.Value) (datum.Value, error){
		"quote":      (*CodeSpace).specialQuote,
		"quasiquote": (*CodeSpace).specialQuasiquote,
		"begin":      (*CodeSpace).specialBegin,
		"lambda":     (*CodeSpace).specialLambda,
		"let":        (*CodeSpace).specialLet,
		"while":      (*CodeSpace).specialWhile,
		"cond":       (*CodeSpace).specialCond,
		"try":        (*CodeSpace).specialTry,
		"set-var":    (*CodeSpace).specialSetVar,
		"define":     (*CodeSpace).specialDefine,
		"defun":      (*CodeSpace).specialDefun,
		"defmacro":   (*CodeSpace).specialDefmacro,
	} {
		env[name] = &Special{name: name, fn: fn}
	}
	return env
}

// oneArg unwraps the single argument of forms like (quote x).
func oneArg(name string, tail datum.Value) (datum.Value, error) {
	p, ok := tail.(*datum.Pair)
	if !ok || !datum.IsNil(p.Tail()) {
		return nil, syntaxErrorf("%s takes exactly one argument", name)
	}
	return p.Head(), nil
}

func (cs *CodeSpace) specialQuote(tail datum.Value) (datum.Value, error) {
	body, err := oneArg("quote", tail)
	if err != nil {
		return nil, err
	}
	return nil, cs.emitQuoted(body)
}

// emitQuoted emits literal construction: nil loads the nil global,
// symbols call the symbol constructor, pairs rebuild themselves with
// make-proper or cons, and everything else is a constant.
func (cs *CodeSpace) emitQuoted(body datum.Value) error {
	switch x := body.(type) {
	case *datum.Symbol:
		cs.pseudopGetVar("symbol")
		cs.pseudopConst(x.Name())
		cs.pseudopCall(1)

	case *datum.Pair:
		if datum.IsProper(x) {
			cs.pseudopGetVar("make-proper")
		} else {
			cs.pseudopGetVar("cons")
		}
		items := datum.Unpack(x)
		for _, item := range items {
			if err := cs.emitQuoted(item); err != nil {
				return err
			}
		}
		cs.pseudopCall(len(items))

	default:
		if datum.IsNil(body) {
			cs.pseudopGetVar("nil")
		} else {
			cs.pseudopConst(body)
		}
	}
	return nil
}

func (cs *CodeSpace) specialQuasiquote(tail datum.Value) (datum.Value, error) {
	body, err := oneArg("quasiquote", tail)
	if err != nil {
		return nil, err
	}
	return nil, cs.emitQuasiquoted(body)
}

// emitQuasiquoted is quote, but honouring embedded unquote and
// unquote-splicing. Children are gathered into tuples, spliced
// sequences are converted with to-tuple, and the groups are unpacked
// into a varargs call of the list constructor.
func (cs *CodeSpace) emitQuasiquoted(body datum.Value) error {
	pair, ok := body.(*datum.Pair)
	if !ok {
		return cs.emitQuoted(body)
	}

	if datum.IsProper(pair) {
		cs.pseudopGetVar("make-proper")
	} else {
		cs.pseudopGetVar("cons")
	}

	collTup := 0 // values waiting to be grouped into a tuple
	currTup := 0 // tuple groups emitted so far

	flush := func() {
		if collTup > 0 {
			cs.pseudopBuildTuple(collTup)
			collTup = 0
			currTup++
		}
	}

	for _, c := range datum.Unpack(pair) {
		switch x := c.(type) {
		case *datum.Symbol:
			cs.pseudopGetVar("symbol")
			cs.pseudopConst(x.Name())
			cs.pseudopCall(1)
			collTup++

		case *datum.Pair:
			head := x.Head()
			arg, hasArg := unquoteArg(x)

			switch {
			case head == datum.Value(symUnquote) && hasArg:
				if err := cs.AddExpression(arg); err != nil {
					return err
				}
				collTup++

			case head == datum.Value(symUnquoteSplicing) && hasArg:
				flush()
				cs.pseudopGetVar("to-tuple")
				if err := cs.AddExpression(arg); err != nil {
					return err
				}
				cs.pseudopCall(1)
				currTup++

			default:
				if err := cs.emitQuasiquoted(x); err != nil {
					return err
				}
				collTup++
			}

		default:
			if datum.IsNil(c) {
				cs.pseudopGetVar("nil")
			} else {
				cs.pseudopConst(c)
			}
			collTup++
		}
	}

	flush()
	cs.pseudopBuildTupleUnpack(currTup)
	cs.pseudopCallVarargs(0)
	return nil
}

func unquoteArg(p *datum.Pair) (datum.Value, bool) {
	rest, ok := p.Tail().(*datum.Pair)
	if !ok {
		return nil, false
	}
	return rest.Head(), true
}

// specialBegin evaluates each body form in order, discarding all but
// the last result. An empty begin evaluates to None.
func (cs *CodeSpace) specialBegin(tail datum.Value) (datum.Value, error) {
	body, ok := tail.(*datum.Pair)
	if !ok {
		// every form is an expression, so an empty begin still needs
		// a result
		cs.pseudopConst(nil)
		return nil, nil
	}

	cs.pseudopPositionOf(body)

	for i, c := range datum.Unpack(body) {
		if i > 0 {
			cs.pseudopPop()
		}
		if err := cs.AddExpression(c); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// parseFormals interprets a lambda formals spec: a lone symbol is a
// single rest arg; a pair is positional args, with an improper tail
// making the last formal a rest arg.
func parseFormals(formals datum.Value) (args []string, varargs bool, err error) {
	switch x := formals.(type) {
	case *datum.Symbol:
		return []string{x.Name()}, true, nil

	case *datum.Pair:
		varargs = !datum.IsProper(x)
		for _, item := range datum.Unpack(x) {
			sym, ok := item.(*datum.Symbol)
			if !ok {
				return nil, false, syntaxErrorf(
					"formals must be symbols, not %s", datum.Print(item))
			}
			args = append(args, sym.Name())
		}
		return args, varargs, nil

	default:
		if datum.IsNil(formals) {
			return nil, false, nil
		}
		return nil, false, syntaxErrorf(
			"formals must be symbol or pair, not %s", datum.Print(formals))
	}
}

// compileFunction compiles formals and body into a child code object.
func (cs *CodeSpace) compileFunction(name string, formals, body datum.Value,
	declaredAt *datum.Position) (*CodeObject, error) {

	args, varargs, err := parseFormals(formals)
	if err != nil {
		return nil, err
	}

	if declaredAt == nil {
		if pos, ok := cs.positions.Get(body); ok {
			declaredAt = &pos
		}
	}

	kid, restore, err := cs.childContext(args, varargs, name, declaredAt)
	if err != nil {
		return nil, err
	}
	defer restore()

	if _, err := kid.specialBegin(body); err != nil {
		return nil, err
	}
	kid.pseudopReturn()
	return kid.Complete()
}

func (cs *CodeSpace) specialLambda(tail datum.Value) (datum.Value, error) {
	p, ok := tail.(*datum.Pair)
	if !ok {
		return nil, syntaxErrorf("lambda needs formals and a body")
	}

	code, err := cs.compileFunction("<lambda>", p.Head(), p.Tail(), nil)
	if err != nil {
		return nil, err
	}
	cs.pseudopLambda(code)
	return nil, nil
}

// specialLet is ((lambda (names...) body...) values...), emitted
// directly.
func (cs *CodeSpace) specialLet(tail datum.Value) (datum.Value, error) {
	p, ok := tail.(*datum.Pair)
	if !ok {
		return nil, syntaxErrorf("let needs bindings and a body")
	}

	var args []string
	var vals []datum.Value

	if bindings, ok := p.Head().(*datum.Pair); ok {
		for _, b := range datum.Unpack(bindings) {
			binding, ok := b.(*datum.Pair)
			if !ok {
				return nil, syntaxErrorf("malformed let binding %s", datum.Print(b))
			}
			parts := datum.Unpack(binding)
			if len(parts) != 2 {
				return nil, syntaxErrorf("malformed let binding %s", datum.Print(b))
			}
			name, ok := parts[0].(*datum.Symbol)
			if !ok {
				return nil, syntaxErrorf("let binding name must be a symbol")
			}
			args = append(args, name.Name())
			vals = append(vals, parts[1])
		}
	} else if !datum.IsNil(p.Head()) {
		return nil, syntaxErrorf("malformed let bindings")
	}

	body := p.Tail()

	var declaredAt *datum.Position
	if pos, ok := cs.positions.Get(body); ok {
		declaredAt = &pos
	}

	kid, restore, err := cs.childContext(args, false, "<let>", declaredAt)
	if err != nil {
		return nil, err
	}
	code, err := func() (*CodeObject, error) {
		defer restore()
		if _, err := kid.specialBegin(body); err != nil {
			return nil, err
		}
		kid.pseudopReturn()
		return kid.Complete()
	}()
	if err != nil {
		return nil, err
	}

	cs.pseudopLambda(code)
	for _, val := range vals {
		if err := cs.AddExpression(val); err != nil {
			return nil, err
		}
	}
	cs.pseudopCall(len(vals))
	return nil, nil
}

// specialWhile loops while test holds. A sentinel is pushed before the
// loop and replaced by the body's value each iteration, so the final
// sentinel is the while expression's value.
func (cs *CodeSpace) specialWhile(tail datum.Value) (datum.Value, error) {
	p, ok := tail.(*datum.Pair)
	if !ok {
		return nil, syntaxErrorf("while needs a test and a body")
	}
	test := p.Head()
	body := p.Tail()

	top := cs.genLabel()
	done := cs.genLabel()

	cs.pseudopConst(nil)
	cs.pseudopLabel(top)

	if err := cs.AddExpression(test); err != nil {
		return nil, err
	}
	cs.pseudopPopJumpIfFalse(done)

	cs.pseudopPop()
	if _, err := cs.specialBegin(body); err != nil {
		return nil, err
	}
	cs.pseudopJump(top)

	cs.pseudopLabel(done)
	return nil, nil
}

// specialCond chains POP_JUMP_IF_FALSE over the clauses. An else
// clause fires unconditionally; if nothing matched, None is the
// result.
func (cs *CodeSpace) specialCond(tail datum.Value) (datum.Value, error) {
	done := cs.genLabel()
	label := ""

	if clauses, ok := tail.(*datum.Pair); ok {
		for _, c := range datum.Unpack(clauses) {
			clause, ok := c.(*datum.Pair)
			if !ok {
				return nil, syntaxErrorf("malformed cond clause %s", datum.Print(c))
			}

			if label != "" {
				cs.pseudopLabel(label)
			}
			label = cs.genLabel()

			test := clause.Head()
			body := clause.Tail()

			if test == datum.Value(symElse) {
				if _, err := cs.specialBegin(body); err != nil {
					return nil, err
				}
				cs.pseudopJump(done)
				continue
			}

			if err := cs.AddExpression(test); err != nil {
				return nil, err
			}
			cs.pseudopPopJumpIfFalse(label)
			if _, err := cs.specialBegin(body); err != nil {
				return nil, err
			}
			cs.pseudopJump(done)
		}
	}

	if label != "" {
		cs.pseudopLabel(label)
	}
	cs.pseudopConst(nil)
	cs.pseudopLabel(done)
	return nil, nil
}

func (cs *CodeSpace) specialSetVar(tail datum.Value) (datum.Value, error) {
	p, ok := tail.(*datum.Pair)
	if !ok {
		return nil, syntaxErrorf("set-var needs a binding and a value")
	}
	binding := p.Head()
	body := p.Tail()

	if _, err := cs.specialBegin(body); err != nil {
		return nil, err
	}

	sym, ok := binding.(*datum.Symbol)
	if !ok {
		return nil, syntaxErrorf("set-var binding must be a symbol, not %s",
			datum.Print(binding))
	}
	cs.pseudopSetVar(sym.Name())

	// set-var evaluates to None
	cs.pseudopConst(nil)
	return nil, nil
}

func (cs *CodeSpace) specialDefine(tail datum.Value) (datum.Value, error) {
	p, ok := tail.(*datum.Pair)
	if !ok {
		return nil, syntaxErrorf("define needs a binding and a value")
	}
	binding := p.Head()
	body := p.Tail()

	if _, err := cs.specialBegin(body); err != nil {
		return nil, err
	}

	sym, ok := binding.(*datum.Symbol)
	if !ok {
		return nil, syntaxErrorf("define binding must be a symbol, not %s",
			datum.Print(binding))
	}
	cs.pseudopDefine(sym.Name())

	// define evaluates to None
	cs.pseudopConst(nil)
	return nil, nil
}

func (cs *CodeSpace) parseNamedFunction(what string, tail datum.Value) (
	name string, formals, body datum.Value, declaredAt *datum.Position, err error) {

	p, ok := tail.(*datum.Pair)
	if !ok {
		return "", nil, nil, nil, syntaxErrorf("%s needs a name, formals and a body", what)
	}
	sym, ok := p.Head().(*datum.Symbol)
	if !ok {
		return "", nil, nil, nil, syntaxErrorf("%s name must be a symbol", what)
	}
	rest, ok := p.Tail().(*datum.Pair)
	if !ok {
		return "", nil, nil, nil, syntaxErrorf("%s needs formals and a body", what)
	}

	if pos, ok := cs.positions.Get(rest); ok {
		declaredAt = &pos
	}
	return sym.Name(), rest.Head(), rest.Tail(), declaredAt, nil
}

func (cs *CodeSpace) specialDefun(tail datum.Value) (datum.Value, error) {
	name, formals, body, declaredAt, err := cs.parseNamedFunction("defun", tail)
	if err != nil {
		return nil, err
	}

	code, err := cs.compileFunction(name, formals, body, declaredAt)
	if err != nil {
		return nil, err
	}

	cs.pseudopLambda(code)
	cs.pseudopDefine(name)

	// defun evaluates to None
	cs.pseudopConst(nil)
	return nil, nil
}

// specialDefmacro compiles the body like defun, but passes the
// function through the runtime macro wrapper before defining it, so
// later forms in the unit can expand against it.
func (cs *CodeSpace) specialDefmacro(tail datum.Value) (datum.Value, error) {
	name, formals, body, declaredAt, err := cs.parseNamedFunction("defmacro", tail)
	if err != nil {
		return nil, err
	}

	code, err := cs.compileFunction(name, formals, body, declaredAt)
	if err != nil {
		return nil, err
	}

	cs.pseudopGetVar("macro")
	cs.pseudopLambda(code)
	cs.pseudopCall(1)

	cs.pseudopDefine(name)

	// defmacro evaluates to None
	cs.pseudopConst(nil)
	return nil, nil
}
