// Package compiler lowers s-expression trees into pseudo-operations
// within lexically nested code spaces, and assembles the code spaces
// into bytecode objects for a targeted stack VM.
package compiler

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/ahills/sibilant/internal/datum"
)

// Env is a compilation environment: module-level bindings plus the
// __builtins__ table. The active code space is stored under
// __compiler__ for the life of its activation.
type Env map[string]interface{}

const (
	compilerKey = "__compiler__"
	builtinsKey = "__builtins__"
)

// CodeSpace represents one lexical scope: its formal parameters,
// variable classifications, constant and name pools, pseudo-op buffer
// and the upward link to its parent scope.
type CodeSpace struct {
	parent *CodeSpace

	name     string
	filename string
	target   Version

	args    []string
	varargs bool

	// vars which are only ours
	fastVars []string

	// vars we have been loaned, and might re-loan to children
	freeVars []string

	// our own vars which we will loan to children
	cellVars []string

	// global vars are stored in names as well; this keeps them apart
	// from attribute accessors
	globalVars []string

	names []string

	// consts[0] is always present: nil or a doc string
	consts []datum.Value

	pseudops []instr

	positions  datum.PosMap
	declaredAt *datum.Position

	env          Env
	labelCounter int
}

// NewCodeSpace creates a top-level code space for a compilation unit.
// positions is the shared identity-keyed source position table.
func NewCodeSpace(filename string, positions datum.PosMap, target Version) *CodeSpace {
	if target.IsZero() {
		target = DefaultTarget
	}
	return newCodeSpace(nil, nil, false, "", filename, positions, nil, target)
}

func newCodeSpace(parent *CodeSpace, args []string, varargs bool,
	name, filename string, positions datum.PosMap,
	declaredAt *datum.Position, target Version) *CodeSpace {

	if positions == nil {
		positions = datum.PosMap{}
	}

	cs := &CodeSpace{
		parent:     parent,
		name:       name,
		filename:   filename,
		target:     target,
		varargs:    varargs,
		consts:     []datum.Value{nil},
		positions:  positions,
		declaredAt: declaredAt,
	}

	for _, arg := range args {
		appendUnique(&cs.args, arg)
		appendUnique(&cs.fastVars, arg)
	}

	if varargs {
		cs.prepVarargs()
	}

	return cs
}

// child returns a nested code space sharing the unit's position table
// and target.
func (cs *CodeSpace) child(args []string, varargs bool, name string,
	declaredAt *datum.Position) *CodeSpace {

	if declaredAt == nil {
		declaredAt = cs.declaredAt
	}
	return newCodeSpace(cs, args, varargs, name, cs.filename,
		cs.positions, declaredAt, cs.target)
}

// childContext returns a nested code space already activated against
// the parent's environment, along with its restore function.
func (cs *CodeSpace) childContext(args []string, varargs bool, name string,
	declaredAt *datum.Position) (*CodeSpace, func(), error) {

	if err := cs.requireActive(); err != nil {
		return nil, nil, err
	}
	kid := cs.child(args, varargs, name, declaredAt)
	restore := kid.Activate(cs.env)
	return kid, restore, nil
}

// Activate binds the code space into env as the current compiler. The
// returned function restores the previous binding and must run on
// every exit path; callers defer it.
func (cs *CodeSpace) Activate(env Env) func() {
	cs.env = env

	old, hadOld := env[compilerKey]
	env[compilerKey] = cs

	return func() {
		if hadOld {
			env[compilerKey] = old
		} else {
			delete(env, compilerKey)
		}
		cs.env = nil
	}
}

func (cs *CodeSpace) requireActive() error {
	if cs.env == nil {
		return fmt.Errorf("compiler code space is not active")
	}
	return nil
}

func appendUnique(list *[]string, v string) int {
	for i, x := range *list {
		if x == v {
			return i
		}
	}
	*list = append(*list, v)
	return len(*list)
}

func contains(list []string, v string) bool {
	return indexOf(list, v) >= 0
}

func indexOf(list []string, v string) int {
	for i, x := range list {
		if x == v {
			return i
		}
	}
	return -1
}

func (cs *CodeSpace) declareConst(v datum.Value) {
	if _, err := constIndex(cs.consts, v); err == nil {
		return
	}
	cs.consts = append(cs.consts, v)
}

// declareVar makes name a local of this scope.
func (cs *CodeSpace) declareVar(name string) {
	appendUnique(&cs.fastVars, name)
}

// requestVar classifies name for this scope: already classified, or a
// closure cell loaned by an ancestor, or a module global. A name
// belongs to exactly one of fast, cell, free or global.
func (cs *CodeSpace) requestVar(name string) {
	if contains(cs.fastVars, name) ||
		contains(cs.freeVars, name) ||
		contains(cs.cellVars, name) ||
		contains(cs.globalVars, name) {
		return
	}

	if cs.parent != nil && cs.parent.requestCell(name) {
		// an ancestor can loan it to us as a closure cell
		glog.V(2).Infof("scope %q takes %q as a free var", cs.name, name)
		appendUnique(&cs.freeVars, name)
	} else {
		appendUnique(&cs.globalVars, name)
		appendUnique(&cs.names, name)
	}
}

// requestCell is the upward half of closure conversion. A parent
// holding name as a fast var promotes it to a cell; intermediate
// scopes thread it through as a free var.
func (cs *CodeSpace) requestCell(name string) bool {
	switch {
	case contains(cs.globalVars, name):
		// no cell for a global
		return false

	case contains(cs.fastVars, name):
		// promote our fast var into a cell for the child to borrow
		i := indexOf(cs.fastVars, name)
		cs.fastVars = append(cs.fastVars[:i], cs.fastVars[i+1:]...)
		appendUnique(&cs.cellVars, name)
		glog.V(2).Infof("scope %q promotes %q to a cell var", cs.name, name)
		return true

	case contains(cs.freeVars, name) || contains(cs.cellVars, name):
		return true

	case cs.parent != nil && cs.parent.requestCell(name):
		// an ancestor had it; it threads through us as a free var
		appendUnique(&cs.freeVars, name)
		return true

	default:
		return false
	}
}

func (cs *CodeSpace) requestName(name string) {
	appendUnique(&cs.names, name)
}

// prepVarargs converts the host's rest-arg tuple into a proper cons
// list at function entry.
func (cs *CodeSpace) prepVarargs() {
	if cs.declaredAt != nil {
		cs.pseudopPosition(cs.declaredAt.Line, cs.declaredAt.Col)
	}

	rest := cs.args[len(cs.args)-1]
	cs.pseudopGetVar("make-proper")
	cs.pseudopGetVar(rest)
	cs.pseudopCallVarargs(0)
	cs.pseudopSetVar(rest)
}

func (cs *CodeSpace) genLabel() string {
	cs.labelCounter++
	return fmt.Sprintf("label_%04d", cs.labelCounter)
}

// pseudo-op emitters

func (cs *CodeSpace) pseudop(i instr) {
	cs.pseudops = append(cs.pseudops, i)
}

func (cs *CodeSpace) pseudopPosition(line, col int) {
	cs.pseudop(instr{op: PseudopPosition, n: line, m: col})
}

func (cs *CodeSpace) pseudopPositionOf(v datum.Value) {
	if pos, ok := cs.positions.Get(v); ok {
		cs.pseudopPosition(pos.Line, pos.Col)
	}
}

func (cs *CodeSpace) pseudopCall(argc int) {
	cs.pseudop(instr{op: PseudopCall, n: argc})
}

func (cs *CodeSpace) pseudopCallVarargs(argc int) {
	cs.pseudop(instr{op: PseudopCallVarargs, n: argc})
}

func (cs *CodeSpace) pseudopConst(v datum.Value) {
	cs.declareConst(v)
	cs.pseudop(instr{op: PseudopConst, value: v})
}

func (cs *CodeSpace) pseudopGetVar(name string) {
	cs.requestVar(name)
	cs.pseudop(instr{op: PseudopGetVar, name: name})
}

func (cs *CodeSpace) pseudopSetVar(name string) {
	cs.requestVar(name)
	cs.pseudop(instr{op: PseudopSetVar, name: name})
}

func (cs *CodeSpace) pseudopDeleteVar(name string) {
	cs.requestVar(name)
	cs.pseudop(instr{op: PseudopDeleteVar, name: name})
}

func (cs *CodeSpace) pseudopGetGlobal(name string) {
	appendUnique(&cs.globalVars, name)
	appendUnique(&cs.names, name)
	cs.pseudop(instr{op: PseudopGetGlobal, name: name})
}

func (cs *CodeSpace) pseudopGetAttr(name string) {
	cs.requestName(name)
	cs.pseudop(instr{op: PseudopGetAttr, name: name})
}

func (cs *CodeSpace) pseudopSetAttr(name string) {
	cs.requestName(name)
	cs.pseudop(instr{op: PseudopSetAttr, name: name})
}

// pseudopDefine stores TOS under a module-global name, regardless of
// what the surrounding scope would otherwise resolve name to.
func (cs *CodeSpace) pseudopDefine(name string) {
	appendUnique(&cs.globalVars, name)
	appendUnique(&cs.names, name)
	cs.pseudop(instr{op: PseudopDefine, name: name})
}

func (cs *CodeSpace) pseudopLambda(code *CodeObject) {
	cs.declareConst(code)
	cs.declareConst(code.Name)
	cs.pseudop(instr{op: PseudopLambda, code: code})
}

func (cs *CodeSpace) pseudopPop()      { cs.pseudop(instr{op: PseudopPop}) }
func (cs *CodeSpace) pseudopDup()      { cs.pseudop(instr{op: PseudopDup}) }
func (cs *CodeSpace) pseudopRotTwo()   { cs.pseudop(instr{op: PseudopRotTwo}) }
func (cs *CodeSpace) pseudopRotThree() { cs.pseudop(instr{op: PseudopRotThree}) }

func (cs *CodeSpace) pseudopReturn() {
	cs.pseudop(instr{op: PseudopRetVal})
}

func (cs *CodeSpace) pseudopReturnNone() {
	cs.pseudopConst(nil)
	cs.pseudop(instr{op: PseudopRetVal})
}

func (cs *CodeSpace) pseudopLabel(name string) {
	cs.pseudop(instr{op: PseudopLabel, name: name})
}

func (cs *CodeSpace) pseudopJump(label string) {
	cs.pseudop(instr{op: PseudopJump, name: label})
}

func (cs *CodeSpace) pseudopJumpForward(label string) {
	cs.pseudop(instr{op: PseudopJumpForward, name: label})
}

func (cs *CodeSpace) pseudopPopJumpIfTrue(label string) {
	cs.pseudop(instr{op: PseudopPopJumpIfTrue, name: label})
}

func (cs *CodeSpace) pseudopPopJumpIfFalse(label string) {
	cs.pseudop(instr{op: PseudopPopJumpIfFalse, name: label})
}

func (cs *CodeSpace) pseudopBuildTuple(count int) {
	cs.pseudop(instr{op: PseudopBuildTuple, n: count})
}

func (cs *CodeSpace) pseudopBuildTupleUnpack(count int) {
	cs.pseudop(instr{op: PseudopBuildTupleUnpack, n: count})
}

func (cs *CodeSpace) pseudopSetupLoop(done string) {
	cs.pseudop(instr{op: PseudopSetupLoop, name: done})
}

func (cs *CodeSpace) pseudopSetupExcept(handler string) {
	cs.pseudop(instr{op: PseudopSetupExcept, name: handler})
}

func (cs *CodeSpace) pseudopSetupFinally(final string) {
	cs.pseudop(instr{op: PseudopSetupFinally, name: final})
}

func (cs *CodeSpace) pseudopSetupWith(cleanup string) {
	cs.pseudop(instr{op: PseudopSetupWith, name: cleanup})
}

func (cs *CodeSpace) pseudopPopBlock()  { cs.pseudop(instr{op: PseudopPopBlock}) }
func (cs *CodeSpace) pseudopPopExcept() { cs.pseudop(instr{op: PseudopPopExcept}) }

func (cs *CodeSpace) pseudopEndFinally() {
	cs.pseudop(instr{op: PseudopEndFinally})
}

func (cs *CodeSpace) pseudopWithCleanupStart() {
	cs.pseudop(instr{op: PseudopWithCleanupStart})
}

func (cs *CodeSpace) pseudopWithCleanupFinish() {
	cs.pseudop(instr{op: PseudopWithCleanupFinish})
}

func (cs *CodeSpace) pseudopExceptionMatch() {
	cs.pseudop(instr{op: PseudopExceptionMatch})
}

func (cs *CodeSpace) pseudopCompareOp(op int) {
	cs.pseudop(instr{op: PseudopCompareOp, n: op})
}

func (cs *CodeSpace) pseudopItem() { cs.pseudop(instr{op: PseudopItem}) }
func (cs *CodeSpace) pseudopIter() { cs.pseudop(instr{op: PseudopIter}) }

func (cs *CodeSpace) pseudopUnary(tag string) {
	cs.pseudop(instr{op: PseudopUnary, name: tag})
}

func (cs *CodeSpace) pseudopBinary(tag string) {
	cs.pseudop(instr{op: PseudopBinary, name: tag})
}

func (cs *CodeSpace) pseudopRaise(count int) {
	cs.pseudop(instr{op: PseudopRaise, n: count})
}

func (cs *CodeSpace) pseudopFauxPush(count int) {
	cs.pseudop(instr{op: PseudopFauxPush, n: count})
}

// Complete produces the code object representing the state of this
// code space. The space is of no further use afterwards.
func (cs *CodeSpace) Complete() (*CodeObject, error) {
	if err := cs.requireActive(); err != nil {
		return nil, err
	}

	argcount := len(cs.args)

	// fast variables plus the ones converted to cells for child use
	nlocals := len(cs.fastVars) + len(cs.cellVars)

	stacksize, err := maxStack(cs.pseudops)
	if err != nil {
		return nil, err
	}

	flags := FlagNewLocals | FlagNested
	if cs.varargs {
		argcount--
		flags |= FlagVarargs
	}
	if len(cs.freeVars) == 0 {
		flags |= FlagNoFree
	}

	asm, err := assemblerFor(cs.target)
	if err != nil {
		return nil, err
	}

	code, lnt, err := asm.assemble(cs)
	if err != nil {
		return nil, err
	}

	filename := cs.filename
	if filename == "" {
		filename = "<sibilant>"
	}
	name := cs.name
	if name == "" {
		name = "<anon>"
	}

	firstline := 0
	if cs.declaredAt != nil {
		firstline = cs.declaredAt.Line
	}
	firstline, lineTable := packLineTable(lnt, firstline, asm.keepsNegativeLineDeltas())

	varnames := make([]string, 0, nlocals)
	varnames = append(varnames, cs.fastVars...)
	varnames = append(varnames, cs.cellVars...)

	co := &CodeObject{
		ArgCount:  argcount,
		NLocals:   nlocals,
		StackSize: stacksize,
		Flags:     flags,
		Code:      code,
		Consts:    append([]datum.Value(nil), cs.consts...),
		Names:     append([]string(nil), cs.names...),
		Varnames:  varnames,
		Filename:  filename,
		Name:      name,
		FirstLine: firstline,
		LineTable: lineTable,
		FreeVars:  append([]string(nil), cs.freeVars...),
		CellVars:  append([]string(nil), cs.cellVars...),
	}

	glog.V(2).Infof("completed code space %s: %d bytes, stack %d",
		co, len(co.Code), co.StackSize)

	return co, nil
}
