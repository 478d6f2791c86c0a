package compiler

import (
	"github.com/ahills/sibilant/internal/datum"
)

type tryClauses struct {
	handlers []*datum.Pair
	elseBody datum.Value
	finBody  datum.Value
}

// specialTry compiles (try expr (exception-spec handler)...), with
// optional (else: ...) and (finally: ...) suffix clauses. A handler
// spec that is a proper pair (match-expr bind-name) binds the live
// exception value for its actions; any other spec is evaluated and
// matched against the exception type.
func (cs *CodeSpace) specialTry(tail datum.Value) (datum.Value, error) {
	p, ok := tail.(*datum.Pair)
	if !ok {
		return nil, syntaxErrorf("try needs an expression and handlers")
	}
	expr := p.Head()

	clauses, err := splitTryClauses(p.Tail())
	if err != nil {
		return nil, err
	}

	labelEnd := cs.genLabel()
	labelHandlers := cs.genLabel()

	labelElse := ""
	if clauses.elseBody != nil {
		labelElse = cs.genLabel()
	}
	labelFinally := ""
	if clauses.finBody != nil {
		labelFinally = cs.genLabel()
		cs.pseudopSetupFinally(labelFinally)
	}

	cs.pseudopSetupExcept(labelHandlers)
	if err := cs.AddExpression(expr); err != nil {
		return nil, err
	}
	cs.pseudopPopBlock()
	if labelElse != "" {
		cs.pseudopJumpForward(labelElse)
	} else {
		cs.pseudopJumpForward(labelEnd)
	}

	// handler entry: the exception type is on top, then the value,
	// then the traceback
	cs.pseudopLabel(labelHandlers)

	next := ""
	for _, clause := range clauses.handlers {
		if next != "" {
			cs.pseudopLabel(next)
		}
		next = cs.genLabel()

		ex := clause.Head()
		act := clause.Tail()

		if err := cs.emitHandler(ex, act, next, labelEnd); err != nil {
			return nil, err
		}
	}

	// nothing matched: clear the pushed exception triple and re-raise
	if next != "" {
		cs.pseudopLabel(next)
	}
	cs.pseudopPop()
	cs.pseudopPop()
	cs.pseudopPop()
	cs.pseudopRaise(0)

	if labelElse != "" {
		cs.pseudopLabel(labelElse)
		// discard the attempted expression's value in favour of the
		// else body's
		cs.pseudopPop()
		if _, err := cs.specialBegin(clauses.elseBody); err != nil {
			return nil, err
		}
	}

	cs.pseudopLabel(labelEnd)

	if labelFinally != "" {
		cs.pseudopPopBlock()
		cs.pseudopLabel(labelFinally)
		// the finally value always wins
		cs.pseudopPop()
		if _, err := cs.specialBegin(clauses.finBody); err != nil {
			return nil, err
		}
		cs.pseudopEndFinally()
	}

	return nil, nil
}

func splitTryClauses(rest datum.Value) (*tryClauses, error) {
	out := &tryClauses{}

	p, ok := rest.(*datum.Pair)
	if !ok {
		return nil, syntaxErrorf("try needs at least one handler clause")
	}

	for _, c := range datum.Unpack(p) {
		clause, ok := c.(*datum.Pair)
		if !ok {
			return nil, syntaxErrorf("malformed try clause %s", datum.Print(c))
		}

		switch clause.Head() {
		case datum.Value(kwElse):
			if out.elseBody != nil {
				return nil, syntaxErrorf("try has more than one else clause")
			}
			out.elseBody = clause.Tail()
		case datum.Value(kwFinally):
			if out.finBody != nil {
				return nil, syntaxErrorf("try has more than one finally clause")
			}
			out.finBody = clause.Tail()
		default:
			out.handlers = append(out.handlers, clause)
		}
	}

	if len(out.handlers) == 0 && out.finBody == nil {
		return nil, syntaxErrorf("try needs at least one handler clause")
	}
	return out, nil
}

func (cs *CodeSpace) emitHandler(ex, act datum.Value, next, labelEnd string) error {
	if spec, ok := ex.(*datum.Pair); ok && datum.IsProper(spec) {
		return cs.emitBindingHandler(spec, act, next, labelEnd)
	}

	// match against the evaluated spec, then run the actions with the
	// exception triple discarded
	cs.pseudopDup()
	if err := cs.AddExpression(ex); err != nil {
		return err
	}
	cs.pseudopExceptionMatch()
	cs.pseudopPopJumpIfFalse(next)

	cs.pseudopPop()
	cs.pseudopPop()
	cs.pseudopPop()
	if _, err := cs.specialBegin(act); err != nil {
		return err
	}

	cs.pseudopPopExcept()
	cs.pseudopJump(labelEnd)
	return nil
}

// emitBindingHandler matches a (match-expr bind-name) spec and calls a
// small child function, bound to bind-name, with the live exception
// value.
func (cs *CodeSpace) emitBindingHandler(spec *datum.Pair, act datum.Value,
	next, labelEnd string) error {

	parts := datum.Unpack(spec)
	if len(parts) != 2 {
		return syntaxErrorf("malformed exception spec %s", datum.Print(spec))
	}
	matchExpr := parts[0]
	bind, ok := parts[1].(*datum.Symbol)
	if !ok {
		return syntaxErrorf("exception binding must be a symbol, not %s",
			datum.Print(parts[1]))
	}

	var declaredAt *datum.Position
	if pos, ok := cs.positions.Get(spec); ok {
		declaredAt = &pos
	}

	kid, restore, err := cs.childContext([]string{bind.Name()}, false,
		"<catch>", declaredAt)
	if err != nil {
		return err
	}
	code, err := func() (*CodeObject, error) {
		defer restore()
		if _, err := kid.specialBegin(act); err != nil {
			return nil, err
		}
		kid.pseudopReturn()
		return kid.Complete()
	}()
	if err != nil {
		return err
	}

	cs.pseudopDup()
	cs.pseudopPositionOf(spec)
	if err := cs.AddExpression(matchExpr); err != nil {
		return err
	}
	cs.pseudopExceptionMatch()
	cs.pseudopPopJumpIfFalse(next)

	// drop the type, call the handler on the value, then drop the
	// traceback from under the result
	cs.pseudopPop()
	cs.pseudopLambda(code)
	cs.pseudopRotTwo()
	cs.pseudopCall(1)
	cs.pseudopRotTwo()
	cs.pseudopPop()

	cs.pseudopPopExcept()
	cs.pseudopJump(labelEnd)
	return nil
}
