package compiler

// genSink receives the generated opcode stream. Jump instructions
// carry the target label instead of a resolved argument; the dialect
// records them for the patch pass.
type genSink struct {
	emit         func(op Opcode, arg int, label string)
	declareLabel func(name string)
	declarePos   func(line, col int)
}

var unaryOpcodes = map[string]Opcode{
	"positive": OP_UNARY_POSITIVE,
	"negative": OP_UNARY_NEGATIVE,
	"not":      OP_UNARY_NOT,
	"invert":   OP_UNARY_INVERT,
}

var binaryOpcodes = map[string]Opcode{
	"power":        OP_BINARY_POWER,
	"multiply":     OP_BINARY_MULTIPLY,
	"modulo":       OP_BINARY_MODULO,
	"add":          OP_BINARY_ADD,
	"subtract":     OP_BINARY_SUBTRACT,
	"floor-divide": OP_BINARY_FLOOR_DIVIDE,
	"true-divide":  OP_BINARY_TRUE_DIVIDE,
}

// generate lowers the pseudo-op buffer of cs into target opcodes. The
// wordcode flag selects the few places where the 3.6 instruction set
// differs from 3.5.
func generate(cs *CodeSpace, wordcode bool, sink genSink) error {
	for _, i := range cs.pseudops {
		switch i.op {
		case PseudopPosition:
			sink.declarePos(i.n, i.m)

		case PseudopLabel:
			sink.declareLabel(i.name)

		case PseudopFauxPush:
			// bookkeeping only, no bytes

		case PseudopCall:
			sink.emit(OP_CALL_FUNCTION, i.n, "")

		case PseudopCallVarargs:
			if wordcode {
				sink.emit(OP_CALL_FUNCTION_EX, 0, "")
			} else {
				sink.emit(OP_CALL_FUNCTION_VAR, i.n, "")
			}

		case PseudopConst:
			idx, err := constIndex(cs.consts, i.value)
			if err != nil {
				return err
			}
			sink.emit(OP_LOAD_CONST, idx, "")

		case PseudopGetVar:
			if err := emitVarAccess(cs, i.name, sink,
				OP_LOAD_DEREF, OP_LOAD_FAST, OP_LOAD_GLOBAL); err != nil {
				return err
			}

		case PseudopSetVar:
			if err := emitVarAccess(cs, i.name, sink,
				OP_STORE_DEREF, OP_STORE_FAST, OP_STORE_GLOBAL); err != nil {
				return err
			}

		case PseudopDeleteVar:
			if err := emitVarAccess(cs, i.name, sink,
				OP_DELETE_DEREF, OP_DELETE_FAST, OP_DELETE_GLOBAL); err != nil {
				return err
			}

		case PseudopGetGlobal:
			idx := indexOf(cs.names, i.name)
			if idx < 0 {
				return syntaxErrorf("unresolved global name %q", i.name)
			}
			sink.emit(OP_LOAD_GLOBAL, idx, "")

		case PseudopGetAttr:
			idx := indexOf(cs.names, i.name)
			if idx < 0 {
				return syntaxErrorf("unresolved attribute name %q", i.name)
			}
			sink.emit(OP_LOAD_ATTR, idx, "")

		case PseudopSetAttr:
			idx := indexOf(cs.names, i.name)
			if idx < 0 {
				return syntaxErrorf("unresolved attribute name %q", i.name)
			}
			sink.emit(OP_STORE_ATTR, idx, "")

		case PseudopDefine:
			if !contains(cs.globalVars, i.name) {
				return syntaxErrorf("undeclared global name %q", i.name)
			}
			idx := indexOf(cs.names, i.name)
			if idx < 0 {
				return syntaxErrorf("unresolved global name %q", i.name)
			}
			sink.emit(OP_STORE_GLOBAL, idx, "")

		case PseudopPop:
			sink.emit(OP_POP_TOP, 0, "")
		case PseudopDup:
			sink.emit(OP_DUP_TOP, 0, "")
		case PseudopRotTwo:
			sink.emit(OP_ROT_TWO, 0, "")
		case PseudopRotThree:
			sink.emit(OP_ROT_THREE, 0, "")
		case PseudopRetVal:
			sink.emit(OP_RETURN_VALUE, 0, "")

		case PseudopLambda:
			if err := generateLambda(cs, i.code, wordcode, sink); err != nil {
				return err
			}

		case PseudopJump:
			sink.emit(OP_JUMP_ABSOLUTE, 0, i.name)
		case PseudopJumpForward:
			sink.emit(OP_JUMP_FORWARD, 0, i.name)
		case PseudopPopJumpIfTrue:
			sink.emit(OP_POP_JUMP_IF_TRUE, 0, i.name)
		case PseudopPopJumpIfFalse:
			sink.emit(OP_POP_JUMP_IF_FALSE, 0, i.name)

		case PseudopBuildTuple:
			sink.emit(OP_BUILD_TUPLE, i.n, "")
		case PseudopBuildTupleUnpack:
			sink.emit(OP_BUILD_TUPLE_UNPACK, i.n, "")

		case PseudopSetupLoop:
			sink.emit(OP_SETUP_LOOP, 0, i.name)
		case PseudopSetupExcept:
			sink.emit(OP_SETUP_EXCEPT, 0, i.name)
		case PseudopSetupFinally:
			sink.emit(OP_SETUP_FINALLY, 0, i.name)
		case PseudopSetupWith:
			sink.emit(OP_SETUP_WITH, 0, i.name)

		case PseudopPopBlock:
			sink.emit(OP_POP_BLOCK, 0, "")
		case PseudopPopExcept:
			sink.emit(OP_POP_EXCEPT, 0, "")
		case PseudopEndFinally:
			sink.emit(OP_END_FINALLY, 0, "")
		case PseudopWithCleanupStart:
			sink.emit(OP_WITH_CLEANUP_START, 0, "")
		case PseudopWithCleanupFinish:
			sink.emit(OP_WITH_CLEANUP_FINISH, 0, "")

		case PseudopExceptionMatch:
			sink.emit(OP_COMPARE_OP, compareExcMatch, "")
		case PseudopCompareOp:
			sink.emit(OP_COMPARE_OP, i.n, "")

		case PseudopItem:
			sink.emit(OP_BINARY_SUBSCR, 0, "")
		case PseudopIter:
			sink.emit(OP_GET_ITER, 0, "")

		case PseudopUnary:
			op, ok := unaryOpcodes[i.name]
			if !ok {
				return syntaxErrorf("unknown unary operation %q", i.name)
			}
			sink.emit(op, 0, "")

		case PseudopBinary:
			op, ok := binaryOpcodes[i.name]
			if !ok {
				return syntaxErrorf("unknown binary operation %q", i.name)
			}
			sink.emit(op, 0, "")

		case PseudopRaise:
			sink.emit(OP_RAISE_VARARGS, i.n, "")

		default:
			return syntaxErrorf("unknown pseudo-op %s", i.op)
		}
	}
	return nil
}

// emitVarAccess resolves a name against the scope's classification.
// Cell vars index the derefs first, free vars follow them; fast vars
// index the local slots, and globals index the name pool.
func emitVarAccess(cs *CodeSpace, name string, sink genSink,
	deref, fast, global Opcode) error {

	if idx := indexOf(cs.cellVars, name); idx >= 0 {
		sink.emit(deref, idx, "")
		return nil
	}
	if idx := indexOf(cs.freeVars, name); idx >= 0 {
		sink.emit(deref, len(cs.cellVars)+idx, "")
		return nil
	}
	if idx := indexOf(cs.fastVars, name); idx >= 0 {
		sink.emit(fast, idx, "")
		return nil
	}
	if contains(cs.globalVars, name) {
		if idx := indexOf(cs.names, name); idx >= 0 {
			sink.emit(global, idx, "")
			return nil
		}
	}
	return syntaxErrorf("unresolved name %q", name)
}

// generateLambda loads a child code object and makes a function of
// it, providing the matching closure cells when the child has free
// variables.
func generateLambda(cs *CodeSpace, code *CodeObject, wordcode bool, sink genSink) error {
	ci, err := constIndex(cs.consts, code)
	if err != nil {
		return err
	}
	ni, err := constIndex(cs.consts, code.Name)
	if err != nil {
		return err
	}

	if len(code.FreeVars) == 0 {
		sink.emit(OP_LOAD_CONST, ci, "")
		sink.emit(OP_LOAD_CONST, ni, "")
		sink.emit(OP_MAKE_FUNCTION, 0, "")
		return nil
	}

	for _, f := range code.FreeVars {
		var fi int
		if idx := indexOf(cs.cellVars, f); idx >= 0 {
			fi = idx
		} else if idx := indexOf(cs.freeVars, f); idx >= 0 {
			fi = len(cs.cellVars) + idx
		} else {
			return syntaxErrorf("missing closure cell for %q", f)
		}
		sink.emit(OP_LOAD_CLOSURE, fi, "")
	}

	sink.emit(OP_BUILD_TUPLE, len(code.FreeVars), "")
	sink.emit(OP_LOAD_CONST, ci, "")
	sink.emit(OP_LOAD_CONST, ni, "")

	if wordcode {
		sink.emit(OP_MAKE_FUNCTION, 0x08, "")
	} else {
		sink.emit(OP_MAKE_CLOSURE, 0, "")
	}
	return nil
}
