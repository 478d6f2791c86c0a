package compiler

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/ahills/sibilant/internal/datum"
)

const (
	ansiOp    = "\x1b[36m"
	ansiReset = "\x1b[0m"
)

// Disassemble writes a textual listing of a code object to w, decoded
// per the target dialect: byte offset, opcode name, argument and a
// resolved detail column. Opcode names are colored when w is a
// terminal.
func Disassemble(co *CodeObject, target Version, w io.Writer) error {
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd())
	}

	if _, err := fmt.Fprintf(w, "%s\n", co); err != nil {
		return err
	}

	if target.atLeast(3, 6) {
		return disasmWordcode(co, w, color)
	}
	return disasmBytecode(co, w, color)
}

func disasmWordcode(co *CodeObject, w io.Writer, color bool) error {
	ext := 0
	for pc := 0; pc+1 < len(co.Code); pc += 2 {
		op := Opcode(co.Code[pc])
		arg := int(co.Code[pc+1])

		if op == OP_EXTENDED_ARG {
			ext = (ext << 8) | arg
			if err := printInstr(w, color, pc, op, arg, ""); err != nil {
				return err
			}
			continue
		}

		full := (ext << 8) | arg
		ext = 0

		detail := instrDetail(co, op, full, pc+2)
		if err := printInstr(w, color, pc, op, full, detail); err != nil {
			return err
		}
	}
	return nil
}

func disasmBytecode(co *CodeObject, w io.Writer, color bool) error {
	for pc := 0; pc < len(co.Code); {
		op := Opcode(co.Code[pc])

		if !op.hasArg() {
			if err := printInstr(w, color, pc, op, -1, ""); err != nil {
				return err
			}
			pc++
			continue
		}

		if pc+2 >= len(co.Code) {
			return fmt.Errorf("truncated instruction at offset %d", pc)
		}
		arg := int(co.Code[pc+1]) | int(co.Code[pc+2])<<8

		detail := instrDetail(co, op, arg, pc+3)
		if err := printInstr(w, color, pc, op, arg, detail); err != nil {
			return err
		}
		pc += 3
	}
	return nil
}

func printInstr(w io.Writer, color bool, pc int, op Opcode, arg int, detail string) error {
	name, ok := OpcodeNames[op]
	if !ok {
		name = fmt.Sprintf("OPCODE_%d", byte(op))
	}
	if color {
		name = ansiOp + name + ansiReset
	}

	var err error
	switch {
	case arg < 0:
		_, err = fmt.Fprintf(w, "%5d  %s\n", pc, name)
	case detail != "":
		_, err = fmt.Fprintf(w, "%5d  %-20s %5d  (%s)\n", pc, name, arg, detail)
	default:
		_, err = fmt.Fprintf(w, "%5d  %-20s %5d\n", pc, name, arg)
	}
	return err
}

func instrDetail(co *CodeObject, op Opcode, arg, next int) string {
	switch op {
	case OP_LOAD_CONST:
		if arg < len(co.Consts) {
			return datum.Print(co.Consts[arg])
		}
	case OP_LOAD_GLOBAL, OP_STORE_GLOBAL, OP_DELETE_GLOBAL,
		OP_LOAD_ATTR, OP_STORE_ATTR, OP_DELETE_ATTR:
		if arg < len(co.Names) {
			return co.Names[arg]
		}
	case OP_LOAD_FAST, OP_STORE_FAST, OP_DELETE_FAST:
		if arg < len(co.Varnames) {
			return co.Varnames[arg]
		}
	case OP_LOAD_DEREF, OP_STORE_DEREF, OP_DELETE_DEREF, OP_LOAD_CLOSURE:
		derefs := append(append([]string(nil), co.CellVars...), co.FreeVars...)
		if arg < len(derefs) {
			return derefs[arg]
		}
	case OP_JUMP_ABSOLUTE, OP_POP_JUMP_IF_FALSE, OP_POP_JUMP_IF_TRUE, OP_CONTINUE_LOOP:
		return fmt.Sprintf("to %d", arg)
	case OP_JUMP_FORWARD, OP_SETUP_LOOP, OP_SETUP_EXCEPT, OP_SETUP_FINALLY, OP_SETUP_WITH:
		return fmt.Sprintf("to %d", next+arg)
	}
	return ""
}
