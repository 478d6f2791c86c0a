package compiler

// Pseudop is a logical instruction in the compiler's intermediate
// buffer, independent of the target VM encoding.
type Pseudop int

const (
	PseudopPop Pseudop = iota
	PseudopDup
	PseudopRotTwo
	PseudopRotThree
	PseudopCall
	PseudopCallVarargs
	PseudopConst
	PseudopGetVar
	PseudopSetVar
	PseudopDeleteVar
	PseudopGetGlobal
	PseudopGetAttr
	PseudopSetAttr
	PseudopDefine
	PseudopLambda
	PseudopRetVal
	PseudopJump
	PseudopJumpForward
	PseudopPopJumpIfTrue
	PseudopPopJumpIfFalse
	PseudopLabel
	PseudopBuildTuple
	PseudopBuildTupleUnpack
	PseudopSetupLoop
	PseudopSetupExcept
	PseudopSetupFinally
	PseudopSetupWith
	PseudopPopBlock
	PseudopPopExcept
	PseudopEndFinally
	PseudopWithCleanupStart
	PseudopWithCleanupFinish
	PseudopExceptionMatch
	PseudopCompareOp
	PseudopItem
	PseudopIter
	PseudopUnary
	PseudopBinary
	PseudopRaise
	PseudopFauxPush
	PseudopPosition
)

var pseudopNames = map[Pseudop]string{
	PseudopPop:               "POP",
	PseudopDup:               "DUP",
	PseudopRotTwo:            "ROT_TWO",
	PseudopRotThree:          "ROT_THREE",
	PseudopCall:              "CALL",
	PseudopCallVarargs:       "CALL_VARARGS",
	PseudopConst:             "CONST",
	PseudopGetVar:            "GET_VAR",
	PseudopSetVar:            "SET_VAR",
	PseudopDeleteVar:         "DELETE_VAR",
	PseudopGetGlobal:         "GET_GLOBAL",
	PseudopGetAttr:           "GET_ATTR",
	PseudopSetAttr:           "SET_ATTR",
	PseudopDefine:            "DEFINE",
	PseudopLambda:            "LAMBDA",
	PseudopRetVal:            "RET_VAL",
	PseudopJump:              "JUMP",
	PseudopJumpForward:       "JUMP_FORWARD",
	PseudopPopJumpIfTrue:     "POP_JUMP_IF_TRUE",
	PseudopPopJumpIfFalse:    "POP_JUMP_IF_FALSE",
	PseudopLabel:             "LABEL",
	PseudopBuildTuple:        "BUILD_TUPLE",
	PseudopBuildTupleUnpack:  "BUILD_TUPLE_UNPACK",
	PseudopSetupLoop:         "SETUP_LOOP",
	PseudopSetupExcept:       "SETUP_EXCEPT",
	PseudopSetupFinally:      "SETUP_FINALLY",
	PseudopSetupWith:         "SETUP_WITH",
	PseudopPopBlock:          "POP_BLOCK",
	PseudopPopExcept:         "POP_EXCEPT",
	PseudopEndFinally:        "END_FINALLY",
	PseudopWithCleanupStart:  "WITH_CLEANUP_START",
	PseudopWithCleanupFinish: "WITH_CLEANUP_FINISH",
	PseudopExceptionMatch:    "EXCEPTION_MATCH",
	PseudopCompareOp:         "COMPARE_OP",
	PseudopItem:              "ITEM",
	PseudopIter:              "ITER",
	PseudopUnary:             "UNARY",
	PseudopBinary:            "BINARY",
	PseudopRaise:             "RAISE",
	PseudopFauxPush:          "FAUX_PUSH",
	PseudopPosition:          "POSITION",
}

func (p Pseudop) String() string {
	if name, ok := pseudopNames[p]; ok {
		return name
	}
	return "PSEUDOP_?"
}

// instr is one pseudo-op with its small argument payload. The fields
// used depend on the tag: n/m carry counts, indices or line/column,
// name carries variable, attribute, label or operator names, value
// carries a constant, and code carries a completed child code object.
type instr struct {
	op    Pseudop
	n     int
	m     int
	name  string
	value interface{}
	code  *CodeObject
}
