package compiler

// Opcode is a target VM instruction number. The values below are
// shared by the 3.5 and 3.6 targets; opcodes that exist in only one
// dialect are noted and emitted only by that dialect's assembler.
type Opcode byte

const (
	OP_POP_TOP     Opcode = 1
	OP_ROT_TWO     Opcode = 2
	OP_ROT_THREE   Opcode = 3
	OP_DUP_TOP     Opcode = 4
	OP_DUP_TOP_TWO Opcode = 5
	OP_NOP         Opcode = 9

	OP_UNARY_POSITIVE Opcode = 10
	OP_UNARY_NEGATIVE Opcode = 11
	OP_UNARY_NOT      Opcode = 12
	OP_UNARY_INVERT   Opcode = 15

	OP_BINARY_POWER        Opcode = 19
	OP_BINARY_MULTIPLY     Opcode = 20
	OP_BINARY_MODULO       Opcode = 22
	OP_BINARY_ADD          Opcode = 23
	OP_BINARY_SUBTRACT     Opcode = 24
	OP_BINARY_SUBSCR       Opcode = 25
	OP_BINARY_FLOOR_DIVIDE Opcode = 26
	OP_BINARY_TRUE_DIVIDE  Opcode = 27

	OP_GET_ITER Opcode = 68

	OP_WITH_CLEANUP_START  Opcode = 81
	OP_WITH_CLEANUP_FINISH Opcode = 82
	OP_RETURN_VALUE        Opcode = 83
	OP_POP_BLOCK           Opcode = 87
	OP_END_FINALLY         Opcode = 88
	OP_POP_EXCEPT          Opcode = 89

	// opcodes from here on take an argument
	OP_STORE_ATTR    Opcode = 95
	OP_DELETE_ATTR   Opcode = 96
	OP_STORE_GLOBAL  Opcode = 97
	OP_DELETE_GLOBAL Opcode = 98

	OP_LOAD_CONST  Opcode = 100
	OP_BUILD_TUPLE Opcode = 102
	OP_LOAD_ATTR   Opcode = 106
	OP_COMPARE_OP  Opcode = 107

	OP_JUMP_FORWARD      Opcode = 110
	OP_JUMP_ABSOLUTE     Opcode = 113
	OP_POP_JUMP_IF_FALSE Opcode = 114
	OP_POP_JUMP_IF_TRUE  Opcode = 115

	OP_LOAD_GLOBAL Opcode = 116

	OP_CONTINUE_LOOP Opcode = 119
	OP_SETUP_LOOP    Opcode = 120
	OP_SETUP_EXCEPT  Opcode = 121
	OP_SETUP_FINALLY Opcode = 122

	OP_LOAD_FAST   Opcode = 124
	OP_STORE_FAST  Opcode = 125
	OP_DELETE_FAST Opcode = 126

	OP_RAISE_VARARGS Opcode = 130
	OP_CALL_FUNCTION Opcode = 131
	OP_MAKE_FUNCTION Opcode = 132
	OP_MAKE_CLOSURE  Opcode = 134 // 3.5 only
	OP_LOAD_CLOSURE  Opcode = 135
	OP_LOAD_DEREF    Opcode = 136
	OP_STORE_DEREF   Opcode = 137
	OP_DELETE_DEREF  Opcode = 138

	OP_CALL_FUNCTION_VAR Opcode = 140 // 3.5 only
	OP_CALL_FUNCTION_EX  Opcode = 142 // 3.6 only
	OP_SETUP_WITH        Opcode = 143
	OP_EXTENDED_ARG      Opcode = 144

	OP_BUILD_TUPLE_UNPACK Opcode = 152
)

// haveArgument is the threshold at or above which instructions carry
// an argument in the target encodings.
const haveArgument = 90

// compareExcMatch is the COMPARE_OP argument selecting exception
// matching.
const compareExcMatch = 10

func (op Opcode) hasArg() bool { return op >= haveArgument }

var jabsOpcodes = map[Opcode]bool{
	OP_JUMP_ABSOLUTE:     true,
	OP_POP_JUMP_IF_FALSE: true,
	OP_POP_JUMP_IF_TRUE:  true,
	OP_CONTINUE_LOOP:     true,
}

var jrelOpcodes = map[Opcode]bool{
	OP_JUMP_FORWARD:  true,
	OP_SETUP_LOOP:    true,
	OP_SETUP_EXCEPT:  true,
	OP_SETUP_FINALLY: true,
	OP_SETUP_WITH:    true,
}

func (op Opcode) hasJabs() bool { return jabsOpcodes[op] }
func (op Opcode) hasJrel() bool { return jrelOpcodes[op] }

// OpcodeNames maps opcodes to their conventional names, for the
// disassembler.
var OpcodeNames = map[Opcode]string{
	OP_POP_TOP:     "POP_TOP",
	OP_ROT_TWO:     "ROT_TWO",
	OP_ROT_THREE:   "ROT_THREE",
	OP_DUP_TOP:     "DUP_TOP",
	OP_DUP_TOP_TWO: "DUP_TOP_TWO",
	OP_NOP:         "NOP",

	OP_UNARY_POSITIVE: "UNARY_POSITIVE",
	OP_UNARY_NEGATIVE: "UNARY_NEGATIVE",
	OP_UNARY_NOT:      "UNARY_NOT",
	OP_UNARY_INVERT:   "UNARY_INVERT",

	OP_BINARY_POWER:        "BINARY_POWER",
	OP_BINARY_MULTIPLY:     "BINARY_MULTIPLY",
	OP_BINARY_MODULO:       "BINARY_MODULO",
	OP_BINARY_ADD:          "BINARY_ADD",
	OP_BINARY_SUBTRACT:     "BINARY_SUBTRACT",
	OP_BINARY_SUBSCR:       "BINARY_SUBSCR",
	OP_BINARY_FLOOR_DIVIDE: "BINARY_FLOOR_DIVIDE",
	OP_BINARY_TRUE_DIVIDE:  "BINARY_TRUE_DIVIDE",

	OP_GET_ITER: "GET_ITER",

	OP_WITH_CLEANUP_START:  "WITH_CLEANUP_START",
	OP_WITH_CLEANUP_FINISH: "WITH_CLEANUP_FINISH",
	OP_RETURN_VALUE:        "RETURN_VALUE",
	OP_POP_BLOCK:           "POP_BLOCK",
	OP_END_FINALLY:         "END_FINALLY",
	OP_POP_EXCEPT:          "POP_EXCEPT",

	OP_STORE_ATTR:    "STORE_ATTR",
	OP_DELETE_ATTR:   "DELETE_ATTR",
	OP_STORE_GLOBAL:  "STORE_GLOBAL",
	OP_DELETE_GLOBAL: "DELETE_GLOBAL",

	OP_LOAD_CONST:  "LOAD_CONST",
	OP_BUILD_TUPLE: "BUILD_TUPLE",
	OP_LOAD_ATTR:   "LOAD_ATTR",
	OP_COMPARE_OP:  "COMPARE_OP",

	OP_JUMP_FORWARD:      "JUMP_FORWARD",
	OP_JUMP_ABSOLUTE:     "JUMP_ABSOLUTE",
	OP_POP_JUMP_IF_FALSE: "POP_JUMP_IF_FALSE",
	OP_POP_JUMP_IF_TRUE:  "POP_JUMP_IF_TRUE",

	OP_LOAD_GLOBAL: "LOAD_GLOBAL",

	OP_CONTINUE_LOOP: "CONTINUE_LOOP",
	OP_SETUP_LOOP:    "SETUP_LOOP",
	OP_SETUP_EXCEPT:  "SETUP_EXCEPT",
	OP_SETUP_FINALLY: "SETUP_FINALLY",

	OP_LOAD_FAST:   "LOAD_FAST",
	OP_STORE_FAST:  "STORE_FAST",
	OP_DELETE_FAST: "DELETE_FAST",

	OP_RAISE_VARARGS: "RAISE_VARARGS",
	OP_CALL_FUNCTION: "CALL_FUNCTION",
	OP_MAKE_FUNCTION: "MAKE_FUNCTION",
	OP_MAKE_CLOSURE:  "MAKE_CLOSURE",
	OP_LOAD_CLOSURE:  "LOAD_CLOSURE",
	OP_LOAD_DEREF:    "LOAD_DEREF",
	OP_STORE_DEREF:   "STORE_DEREF",
	OP_DELETE_DEREF:  "DELETE_DEREF",

	OP_CALL_FUNCTION_VAR: "CALL_FUNCTION_VAR",
	OP_CALL_FUNCTION_EX:  "CALL_FUNCTION_EX",
	OP_SETUP_WITH:        "SETUP_WITH",
	OP_EXTENDED_ARG:      "EXTENDED_ARG",

	OP_BUILD_TUPLE_UNPACK: "BUILD_TUPLE_UNPACK",
}
