package compiler

import (
	"fmt"
)

// setupExceptReserve models the exception triple the VM pushes when
// control unwinds into a handler.
const setupExceptReserve = 3

// maxStack walks a pseudo-op buffer with a virtual stack, asserting
// the depth never goes negative and closes at zero. The depth at the
// first branch reaching each label is recorded, and adopted when the
// walk arrives at that label.
func maxStack(ops []instr) (int, error) {
	depth := 0
	max := 0

	atLabel := map[string]int{}

	push := func(by int) {
		depth += by
		if depth > max {
			max = depth
		}
	}

	pop := func(by int) error {
		depth -= by
		if depth < 0 {
			return fmt.Errorf("stack depth went negative")
		}
		return nil
	}

	record := func(label string, d int) {
		if _, ok := atLabel[label]; !ok {
			atLabel[label] = d
		}
		if d > max {
			max = d
		}
	}

	for _, i := range ops {
		var err error

		switch i.op {
		case PseudopPosition:
			// no effect

		case PseudopConst, PseudopGetVar, PseudopGetGlobal, PseudopGetAttr, PseudopDup:
			push(1)

		case PseudopPop, PseudopSetVar, PseudopDefine, PseudopRetVal,
			PseudopSetAttr, PseudopCallVarargs, PseudopExceptionMatch,
			PseudopCompareOp, PseudopItem, PseudopBinary:
			err = pop(1)

		case PseudopDeleteVar, PseudopIter, PseudopUnary,
			PseudopRotTwo, PseudopRotThree:
			// no effect

		case PseudopCall:
			err = pop(i.n)

		case PseudopLambda:
			if free := len(i.code.FreeVars); free > 0 {
				push(free)
				err = pop(free)
			}
			if err == nil {
				push(2)
				err = pop(2)
			}
			push(1)

		case PseudopBuildTuple, PseudopBuildTupleUnpack:
			if err = pop(i.n); err == nil {
				push(1)
			}

		case PseudopRaise:
			err = pop(i.n)

		case PseudopFauxPush:
			push(i.n)

		case PseudopJump, PseudopJumpForward:
			record(i.name, depth)

		case PseudopPopJumpIfTrue, PseudopPopJumpIfFalse:
			if err = pop(1); err == nil {
				record(i.name, depth)
			}

		case PseudopLabel:
			if d, ok := atLabel[i.name]; ok {
				depth = d
			}

		case PseudopSetupExcept:
			record(i.name, depth+setupExceptReserve)

		case PseudopSetupLoop, PseudopSetupFinally, PseudopSetupWith,
			PseudopPopBlock, PseudopPopExcept, PseudopEndFinally,
			PseudopWithCleanupStart, PseudopWithCleanupFinish:
			// no effect

		default:
			return 0, syntaxErrorf("unknown pseudo-op %s", i.op)
		}

		if err != nil {
			return 0, fmt.Errorf("%v at %s", err, i.op)
		}
	}

	if depth != 0 {
		return 0, fmt.Errorf("stack depth %d at end of code space", depth)
	}
	return max, nil
}
