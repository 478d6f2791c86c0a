package compiler

import (
	"fmt"

	"github.com/ahills/sibilant/internal/datum"
)

// CodeFlags are the flag bits of an emitted code object, matching the
// target VM's co_flags values.
type CodeFlags uint32

const (
	FlagOptimized   CodeFlags = 0x0001
	FlagNewLocals   CodeFlags = 0x0002
	FlagVarargs     CodeFlags = 0x0004
	FlagVarKeywords CodeFlags = 0x0008
	FlagNested      CodeFlags = 0x0010
	FlagGenerator   CodeFlags = 0x0020
	FlagNoFree      CodeFlags = 0x0040
)

// CodeObject is an assembled unit of target-VM bytecode together with
// the pools and metadata the VM needs to execute it. Field layout and
// ordering rules follow the target ABI: Varnames is fast vars then
// cell vars, and LineTable is the packed line-number table.
type CodeObject struct {
	ArgCount  int
	NLocals   int
	StackSize int
	Flags     CodeFlags
	Code      []byte
	Consts    []datum.Value
	Names     []string
	Varnames  []string
	Filename  string
	Name      string
	FirstLine int
	LineTable []byte
	FreeVars  []string
	CellVars  []string
}

func (co *CodeObject) String() string {
	return fmt.Sprintf("<code %s %s:%d>", co.Name, co.Filename, co.FirstLine)
}

// constIndex finds a value in a constant pool. Code objects are
// compared by identity, everything else by equality.
func constIndex(consts []datum.Value, v datum.Value) (int, error) {
	for i, c := range consts {
		if sub, ok := v.(*CodeObject); ok {
			if other, ok := c.(*CodeObject); ok && sub == other {
				return i, nil
			}
			continue
		}
		if _, ok := c.(*CodeObject); ok {
			continue
		}
		if c == v {
			return i, nil
		}
	}
	return 0, syntaxErrorf("missing constant pool entry for %v", v)
}
