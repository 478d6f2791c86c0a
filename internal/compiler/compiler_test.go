package compiler

import (
	"testing"

	"github.com/ahills/sibilant/internal/ast"
	"github.com/ahills/sibilant/internal/datum"
)

func testEnv() Env {
	return Env{builtinsKey: Builtins()}
}

func compileString(t *testing.T, src string, target Version, env Env) *CodeObject {
	t.Helper()

	node, err := ast.ComposeFromString(src, "<test>")
	if err != nil {
		t.Fatalf("compose error for %q: %s", src, err)
	}
	if node == nil {
		t.Fatalf("no expression in %q", src)
	}

	positions := datum.PosMap{}
	expr := node.Simplify(positions)

	cs := NewCodeSpace("<test>", positions, target)
	restore := cs.Activate(env)
	defer restore()

	if err := cs.AddExpressionWithReturn(expr); err != nil {
		t.Fatalf("compile error for %q: %s", src, err)
	}
	code, err := cs.Complete()
	if err != nil {
		t.Fatalf("complete error for %q: %s", src, err)
	}
	return code
}

// wordInstr is one decoded wordcode instruction with any EXTENDED_ARG
// prefix folded into the argument.
type wordInstr struct {
	pc  int
	op  Opcode
	arg int
}

func decodeWordcode(t *testing.T, code []byte) []wordInstr {
	t.Helper()
	if len(code)%2 != 0 {
		t.Fatalf("wordcode length %d is odd", len(code))
	}

	ext := 0
	var out []wordInstr
	for pc := 0; pc < len(code); pc += 2 {
		op := Opcode(code[pc])
		arg := int(code[pc+1])
		if op == OP_EXTENDED_ARG {
			ext = ext<<8 | arg
			continue
		}
		out = append(out, wordInstr{pc: pc, op: op, arg: ext<<8 | arg})
		ext = 0
	}
	return out
}

func countOps(instrs []wordInstr, op Opcode) int {
	n := 0
	for _, i := range instrs {
		if i.op == op {
			n++
		}
	}
	return n
}

func findCodeConst(t *testing.T, co *CodeObject, name string) *CodeObject {
	t.Helper()
	for _, c := range co.Consts {
		if sub, ok := c.(*CodeObject); ok && sub.Name == name {
			return sub
		}
	}
	t.Fatalf("no code constant named %q in %s", name, co)
	return nil
}

func TestQuotedListConstruction(t *testing.T) {
	// scenario: (quote (testing a thing)) builds a proper list of
	// three interned symbols at run time
	co := compileString(t, "(quote (testing a thing))", Python36, testEnv())

	wantNames := []string{"make-proper", "symbol"}
	if len(co.Names) != 2 || co.Names[0] != wantNames[0] || co.Names[1] != wantNames[1] {
		t.Errorf("names wrong: %v", co.Names)
	}

	for _, want := range []string{"testing", "a", "thing"} {
		if _, err := constIndex(co.Consts, want); err != nil {
			t.Errorf("constant %q missing from pool", want)
		}
	}

	instrs := decodeWordcode(t, co.Code)
	if got := countOps(instrs, OP_LOAD_GLOBAL); got != 4 {
		t.Errorf("LOAD_GLOBAL count = %d, want 4", got)
	}
	if got := countOps(instrs, OP_CALL_FUNCTION); got != 4 {
		t.Errorf("CALL_FUNCTION count = %d, want 4", got)
	}
	if got := countOps(instrs, OP_RETURN_VALUE); got != 1 {
		t.Errorf("RETURN_VALUE count = %d, want 1", got)
	}

	// the final call collects the three member symbols
	last := instrs[len(instrs)-2]
	if last.op != OP_CALL_FUNCTION || last.arg != 3 {
		t.Errorf("final call wrong: %v", last)
	}
}

func TestQuotedImproperList(t *testing.T) {
	co := compileString(t, "'(testing . 123)", Python36, testEnv())

	// improper lists are rebuilt with cons, not make-proper
	if co.Names[0] != "cons" {
		t.Errorf("names wrong for improper quote: %v", co.Names)
	}
	if _, err := constIndex(co.Consts, int64(123)); err != nil {
		t.Errorf("dotted tail constant missing")
	}
}

func TestClosureConversion(t *testing.T) {
	// scenario: the outer lambda's x is promoted to a cell, the inner
	// scope sees it as free
	co := compileString(t, "((lambda (x) (lambda (y) (add x y))) 3)", Python36, testEnv())

	outer := findCodeConst(t, co, "<lambda>")
	if len(outer.CellVars) != 1 || outer.CellVars[0] != "x" {
		t.Errorf("outer cellvars wrong: %v", outer.CellVars)
	}
	if len(outer.FreeVars) != 0 {
		t.Errorf("outer freevars wrong: %v", outer.FreeVars)
	}
	if outer.Flags&FlagNoFree == 0 {
		t.Errorf("outer should carry NOFREE")
	}
	if outer.ArgCount != 1 {
		t.Errorf("outer argcount wrong: %d", outer.ArgCount)
	}
	// varnames order is fast vars then cell vars
	if len(outer.Varnames) != 1 || outer.Varnames[0] != "x" {
		t.Errorf("outer varnames wrong: %v", outer.Varnames)
	}

	inner := findCodeConst(t, outer, "<lambda>")
	if len(inner.FreeVars) != 1 || inner.FreeVars[0] != "x" {
		t.Errorf("inner freevars wrong: %v", inner.FreeVars)
	}
	if inner.Flags&FlagNoFree != 0 {
		t.Errorf("inner must not carry NOFREE")
	}
	if len(inner.Varnames) != 1 || inner.Varnames[0] != "y" {
		t.Errorf("inner varnames wrong: %v", inner.Varnames)
	}

	// the outer body loads the closure cell when making the inner
	// function
	instrs := decodeWordcode(t, outer.Code)
	if countOps(instrs, OP_LOAD_CLOSURE) != 1 {
		t.Errorf("outer code missing LOAD_CLOSURE")
	}
	if countOps(instrs, OP_MAKE_FUNCTION) != 1 {
		t.Errorf("outer code missing MAKE_FUNCTION")
	}
}

func TestFreeVarThreadsThroughIntermediateScopes(t *testing.T) {
	co := compileString(t,
		"((lambda (x) (lambda () (lambda () x))) 1)", Python36, testEnv())

	outer := findCodeConst(t, co, "<lambda>")
	middle := findCodeConst(t, outer, "<lambda>")
	inner := findCodeConst(t, middle, "<lambda>")

	if len(outer.CellVars) != 1 || outer.CellVars[0] != "x" {
		t.Errorf("owner scope did not promote x: %v", outer.CellVars)
	}
	if len(middle.FreeVars) != 1 || middle.FreeVars[0] != "x" {
		t.Errorf("intermediate scope does not thread x: %v", middle.FreeVars)
	}
	if len(inner.FreeVars) != 1 || inner.FreeVars[0] != "x" {
		t.Errorf("innermost scope does not see x free: %v", inner.FreeVars)
	}
}

func TestClassificationIsExclusive(t *testing.T) {
	node, err := ast.ComposeFromString(
		"((lambda (x y) (set-var x 1) (lambda () (add x z))) 1 2)", "<test>")
	if err != nil {
		t.Fatalf("compose error: %s", err)
	}

	positions := datum.PosMap{}
	expr := node.Simplify(positions)

	cs := NewCodeSpace("<test>", positions, Python36)
	restore := cs.Activate(testEnv())
	defer restore()

	if err := cs.AddExpressionWithReturn(expr); err != nil {
		t.Fatalf("compile error: %s", err)
	}
	if _, err := cs.Complete(); err != nil {
		t.Fatalf("complete error: %s", err)
	}

	assertExclusive(t, cs)
}

func assertExclusive(t *testing.T, cs *CodeSpace) {
	t.Helper()

	seen := map[string]int{}
	for _, n := range cs.fastVars {
		seen[n]++
	}
	for _, n := range cs.cellVars {
		seen[n]++
	}
	for _, n := range cs.freeVars {
		seen[n]++
	}
	for _, n := range cs.globalVars {
		seen[n]++
	}

	for name, count := range seen {
		if count != 1 {
			t.Errorf("scope %q: name %q classified %d times", cs.name, name, count)
		}
	}

	for _, n := range cs.globalVars {
		if !contains(cs.names, n) {
			t.Errorf("global %q missing from name pool", n)
		}
	}
}

func TestWhileLoop(t *testing.T) {
	// scenario: one forward conditional jump out, one backward
	// absolute jump to the top, stack closing at zero
	co := compileString(t,
		"(while (gt? i 0) (set-var i (sub i 1)))", Python36, testEnv())

	instrs := decodeWordcode(t, co.Code)

	var pjif, jabs []wordInstr
	for _, i := range instrs {
		switch i.op {
		case OP_POP_JUMP_IF_FALSE:
			pjif = append(pjif, i)
		case OP_JUMP_ABSOLUTE:
			jabs = append(jabs, i)
		}
	}

	if len(pjif) != 1 {
		t.Fatalf("POP_JUMP_IF_FALSE count = %d, want 1", len(pjif))
	}
	if len(jabs) != 1 {
		t.Fatalf("JUMP_ABSOLUTE count = %d, want 1", len(jabs))
	}

	if pjif[0].arg <= pjif[0].pc {
		t.Errorf("conditional jump is not forward: pc=%d target=%d",
			pjif[0].pc, pjif[0].arg)
	}
	if jabs[0].arg >= jabs[0].pc {
		t.Errorf("loop jump is not backward: pc=%d target=%d",
			jabs[0].pc, jabs[0].arg)
	}

	if co.StackSize < 1 {
		t.Errorf("stack size wrong: %d", co.StackSize)
	}
}

func TestCond(t *testing.T) {
	co := compileString(t,
		"(cond ((gt? a 1) 10) ((gt? a 0) 20) (else 30))", Python36, testEnv())

	instrs := decodeWordcode(t, co.Code)
	if got := countOps(instrs, OP_POP_JUMP_IF_FALSE); got != 2 {
		t.Errorf("POP_JUMP_IF_FALSE count = %d, want 2", got)
	}
	// each arm jumps to the shared done label
	if got := countOps(instrs, OP_JUMP_ABSOLUTE); got != 3 {
		t.Errorf("JUMP_ABSOLUTE count = %d, want 3", got)
	}
}

func TestLetDesugarsToLambdaCall(t *testing.T) {
	co := compileString(t, "(let ((a 1) (b 2)) (add a b))", Python36, testEnv())

	let := findCodeConst(t, co, "<let>")
	if let.ArgCount != 2 {
		t.Errorf("let argcount wrong: %d", let.ArgCount)
	}

	instrs := decodeWordcode(t, co.Code)
	last := instrs[len(instrs)-2]
	if last.op != OP_CALL_FUNCTION || last.arg != 2 {
		t.Errorf("let call wrong: %+v", last)
	}
}

func TestBegin(t *testing.T) {
	co := compileString(t, "(begin 1 2 3)", Python36, testEnv())

	instrs := decodeWordcode(t, co.Code)
	if got := countOps(instrs, OP_POP_TOP); got != 2 {
		t.Errorf("POP_TOP count = %d, want 2", got)
	}

	// empty begin still produces a value
	co = compileString(t, "(begin)", Python36, testEnv())
	instrs = decodeWordcode(t, co.Code)
	if len(instrs) != 2 || instrs[0].op != OP_LOAD_CONST || instrs[1].op != OP_RETURN_VALUE {
		t.Errorf("empty begin compiled wrong: %+v", instrs)
	}
}

func TestVarargsLambda(t *testing.T) {
	co := compileString(t, "(lambda args args)", Python36, testEnv())

	fn := findCodeConst(t, co, "<lambda>")
	if fn.Flags&FlagVarargs == 0 {
		t.Errorf("rest-arg lambda missing VARARGS flag")
	}
	if fn.ArgCount != 0 {
		t.Errorf("rest-arg lambda argcount wrong: %d", fn.ArgCount)
	}
	// function entry rebuilds the rest tuple as a proper list
	if !contains(fn.Names, "make-proper") {
		t.Errorf("varargs prep missing make-proper: %v", fn.Names)
	}

	co = compileString(t, "(lambda (a . rest) a)", Python36, testEnv())
	fn = findCodeConst(t, co, "<lambda>")
	if fn.Flags&FlagVarargs == 0 {
		t.Errorf("improper formals missing VARARGS flag")
	}
	if fn.ArgCount != 1 {
		t.Errorf("improper formals argcount wrong: %d", fn.ArgCount)
	}
}

func TestBadFormals(t *testing.T) {
	node, err := ast.ComposeFromString("(lambda 5 x)", "<test>")
	if err != nil {
		t.Fatalf("compose error: %s", err)
	}

	positions := datum.PosMap{}
	expr := node.Simplify(positions)

	cs := NewCodeSpace("<test>", positions, Python36)
	restore := cs.Activate(testEnv())
	defer restore()

	err = cs.AddExpression(expr)
	if err == nil {
		t.Fatalf("expected error for numeric formals")
	}
	if _, ok := err.(*SyntaxError); !ok {
		t.Errorf("error is not a compiler syntax error: %T", err)
	}
}

func TestDefine(t *testing.T) {
	co := compileString(t, "(define z 5)", Python36, testEnv())

	if !contains(co.Names, "z") {
		t.Errorf("define did not declare z in names: %v", co.Names)
	}

	instrs := decodeWordcode(t, co.Code)
	if countOps(instrs, OP_STORE_GLOBAL) != 1 {
		t.Errorf("define did not emit STORE_GLOBAL")
	}
	// a define expression evaluates to None
	last := instrs[len(instrs)-2]
	if last.op != OP_LOAD_CONST || last.arg != 0 {
		t.Errorf("define result is not the None constant: %+v", last)
	}
}

func TestSetVarAtTopLevel(t *testing.T) {
	co := compileString(t, "(set-var z 5)", Python36, testEnv())
	instrs := decodeWordcode(t, co.Code)
	if countOps(instrs, OP_STORE_GLOBAL) != 1 {
		t.Errorf("top-level set-var should store a global")
	}
}

func TestDefun(t *testing.T) {
	co := compileString(t, "(defun double (n) (add n n))", Python36, testEnv())

	fn := findCodeConst(t, co, "double")
	if fn.ArgCount != 1 {
		t.Errorf("defun argcount wrong: %d", fn.ArgCount)
	}
	if !contains(co.Names, "double") {
		t.Errorf("defun did not define its name: %v", co.Names)
	}
}

func TestDefmacroCompiles(t *testing.T) {
	co := compileString(t,
		"(defmacro unless (c . body) `(cond ((not ,c) ,@body)))",
		Python36, testEnv())

	// the compiled body is passed through the runtime macro wrapper
	if !contains(co.Names, "macro") {
		t.Errorf("defmacro does not call the macro wrapper: %v", co.Names)
	}

	fn := findCodeConst(t, co, "unless")
	if fn.Flags&FlagVarargs == 0 {
		t.Errorf("unless body should be varargs")
	}
}

func TestMacroExpansion(t *testing.T) {
	// scenario: (unless 0 1 2) expands to a cond and compiles the
	// expansion
	env := testEnv()
	env["unless"] = NewMacro("unless", func(args ...datum.Value) (datum.Value, error) {
		test := args[0]
		clause := append(
			[]datum.Value{datum.NewList(datum.Intern("not"), test)},
			args[1:]...)
		return datum.NewList(datum.Intern("cond"), datum.NewList(clause...)), nil
	})

	co := compileString(t, "(unless 0 1 2)", Python36, env)

	if !contains(co.Names, "not") {
		t.Errorf("expansion did not reference not: %v", co.Names)
	}
	for _, want := range []datum.Value{int64(0), int64(1), int64(2)} {
		if _, err := constIndex(co.Consts, want); err != nil {
			t.Errorf("constant %v missing after expansion", want)
		}
	}

	instrs := decodeWordcode(t, co.Code)
	if countOps(instrs, OP_POP_JUMP_IF_FALSE) != 1 {
		t.Errorf("expanded cond missing its conditional jump")
	}
	// body evaluates both 1 and 2, popping the first
	if countOps(instrs, OP_POP_TOP) < 1 {
		t.Errorf("expanded begin does not pop intermediate results")
	}
}

func TestQuasiquoteSplicing(t *testing.T) {
	co := compileString(t, "`(1 2 ,@(list 3 4))", Python36, testEnv())

	if !contains(co.Names, "to-tuple") {
		t.Errorf("splice does not convert with to-tuple: %v", co.Names)
	}

	instrs := decodeWordcode(t, co.Code)
	if countOps(instrs, OP_BUILD_TUPLE) < 1 {
		t.Errorf("quasiquote missing tuple grouping")
	}
	if countOps(instrs, OP_BUILD_TUPLE_UNPACK) != 1 {
		t.Errorf("quasiquote missing group unpacking")
	}
	if countOps(instrs, OP_CALL_FUNCTION_EX) != 1 {
		t.Errorf("quasiquote missing the varargs constructor call")
	}
}

func TestTryMatchingHandler(t *testing.T) {
	co := compileString(t, "(try (risky) (oops-error (recover)))", Python36, testEnv())

	instrs := decodeWordcode(t, co.Code)
	if countOps(instrs, OP_SETUP_EXCEPT) != 1 {
		t.Errorf("try missing SETUP_EXCEPT")
	}
	if countOps(instrs, OP_COMPARE_OP) != 1 {
		t.Errorf("try missing the exception match")
	}
	if countOps(instrs, OP_POP_EXCEPT) != 1 {
		t.Errorf("try missing POP_EXCEPT")
	}
	if countOps(instrs, OP_RAISE_VARARGS) != 1 {
		t.Errorf("try missing the no-match re-raise")
	}
}

func TestTryBindingHandler(t *testing.T) {
	co := compileString(t,
		"(try (risky) ((oops-error e) (recover e)))", Python36, testEnv())

	handler := findCodeConst(t, co, "<catch>")
	if handler.ArgCount != 1 || handler.Varnames[0] != "e" {
		t.Errorf("catch binding wrong: argcount=%d varnames=%v",
			handler.ArgCount, handler.Varnames)
	}
}

func TestTryFinally(t *testing.T) {
	co := compileString(t,
		"(try (risky) (oops-error 1) (finally: (cleanup)))", Python36, testEnv())

	instrs := decodeWordcode(t, co.Code)
	if countOps(instrs, OP_SETUP_FINALLY) != 1 {
		t.Errorf("try missing SETUP_FINALLY")
	}
	if countOps(instrs, OP_END_FINALLY) != 1 {
		t.Errorf("try missing END_FINALLY")
	}
}

func TestInactiveSpaceRefusesWork(t *testing.T) {
	cs := NewCodeSpace("<test>", nil, Python36)

	if err := cs.AddExpression(datum.Intern("x")); err == nil {
		t.Errorf("inactive space accepted an expression")
	}
	if _, err := cs.Complete(); err == nil {
		t.Errorf("inactive space completed")
	}
}

func TestActivationRestoresCompilerBinding(t *testing.T) {
	env := testEnv()

	cs := NewCodeSpace("<test>", nil, Python36)
	restore := cs.Activate(env)

	if env[compilerKey] != interface{}(cs) {
		t.Fatalf("activation did not bind __compiler__")
	}

	kid, kidRestore, err := cs.childContext(nil, false, "<kid>", nil)
	if err != nil {
		t.Fatalf("child context error: %s", err)
	}
	if env[compilerKey] != interface{}(kid) {
		t.Errorf("child activation did not rebind __compiler__")
	}

	kidRestore()
	if env[compilerKey] != interface{}(cs) {
		t.Errorf("child restore did not rebind the parent")
	}

	restore()
	if _, ok := env[compilerKey]; ok {
		t.Errorf("outer restore did not unbind __compiler__")
	}
	if cs.env != nil {
		t.Errorf("outer restore did not clear the env")
	}
}

func TestNilExpression(t *testing.T) {
	co := compileString(t, "()", Python36, testEnv())

	instrs := decodeWordcode(t, co.Code)
	if len(instrs) != 2 || instrs[0].op != OP_LOAD_CONST {
		t.Fatalf("nil compiled wrong: %+v", instrs)
	}
	if !datum.IsNil(co.Consts[instrs[0].arg]) {
		t.Errorf("nil expression does not load the nil constant")
	}
}

func TestStackDepthClosesForScenarios(t *testing.T) {
	sources := []string{
		"(quote (testing a thing))",
		"((lambda (x) (lambda (y) (add x y))) 3)",
		"(while (gt? i 0) (set-var i (sub i 1)))",
		"(cond ((gt? a 1) 10) (else 20))",
		"(try (risky) (oops-error (recover)) (else: 5) (finally: (cleanup)))",
		"`(1 2 ,@(list 3 4) ,x)",
		"(defmacro unless (c . body) `(cond ((not ,c) ,@body)))",
	}

	for _, src := range sources {
		// Complete runs the depth analysis; failure would error here
		co := compileString(t, src, Python36, testEnv())
		if co.StackSize < 1 {
			t.Errorf("%q: suspicious stack size %d", src, co.StackSize)
		}
	}
}
