package compiler

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/ahills/sibilant/internal/datum"
)

// activeSpace builds an activated code space and registers cleanup of
// the activation.
func activeSpace(t *testing.T, target Version) *CodeSpace {
	t.Helper()
	cs := NewCodeSpace("<test>", nil, target)
	restore := cs.Activate(testEnv())
	t.Cleanup(restore)
	return cs
}

func TestVersionDispatch(t *testing.T) {
	if _, err := assemblerFor(Version{3, 6}); err != nil {
		t.Errorf("3.6 has no assembler: %s", err)
	}
	if _, err := assemblerFor(Version{3, 9}); err != nil {
		t.Errorf("later wordcode targets have no assembler: %s", err)
	}
	if _, err := assemblerFor(Version{3, 5}); err != nil {
		t.Errorf("3.5 has no assembler: %s", err)
	}

	_, err := assemblerFor(Version{3, 2})
	if err == nil {
		t.Fatalf("3.2 should be unsupported")
	}
	if _, ok := err.(*UnsupportedVersionError); !ok {
		t.Errorf("error is not UnsupportedVersion: %T", err)
	}
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("3.6")
	if err != nil || v != Python36 {
		t.Errorf("parse 3.6 wrong: %v %v", v, err)
	}
	v, err = ParseVersion("3.5.2")
	if err != nil || v != Python35 {
		t.Errorf("parse 3.5.2 wrong: %v %v", v, err)
	}
	if _, err := ParseVersion("walnut"); err == nil {
		t.Errorf("nonsense version parsed")
	}
}

func TestWordcodeEncoding(t *testing.T) {
	cs := activeSpace(t, Python36)
	cs.pseudopConst(int64(42))
	cs.pseudopReturn()

	co, err := cs.Complete()
	if err != nil {
		t.Fatalf("complete error: %s", err)
	}

	// every instruction is exactly two bytes
	want := []byte{
		byte(OP_LOAD_CONST), 1,
		byte(OP_RETURN_VALUE), 0,
	}
	if !bytes.Equal(co.Code, want) {
		t.Errorf("wordcode bytes wrong.\n got=%v\nwant=%v", co.Code, want)
	}
}

func TestBytecodeEncoding(t *testing.T) {
	cs := activeSpace(t, Python35)
	cs.pseudopConst(int64(42))
	cs.pseudopReturn()

	co, err := cs.Complete()
	if err != nil {
		t.Fatalf("complete error: %s", err)
	}

	// argful opcodes take three bytes, bare ones a single byte
	want := []byte{
		byte(OP_LOAD_CONST), 1, 0,
		byte(OP_RETURN_VALUE),
	}
	if !bytes.Equal(co.Code, want) {
		t.Errorf("bytecode bytes wrong.\n got=%v\nwant=%v", co.Code, want)
	}
}

func TestWordcodeJumpPadding(t *testing.T) {
	cs := activeSpace(t, Python36)
	done := cs.genLabel()

	cs.pseudopConst(int64(1))
	cs.pseudopPopJumpIfFalse(done)
	cs.pseudopConst(int64(2))
	cs.pseudopPop()
	cs.pseudopLabel(done)
	cs.pseudopReturnNone()

	co, err := cs.Complete()
	if err != nil {
		t.Fatalf("complete error: %s", err)
	}

	// LOAD_CONST 1; EXTENDED_ARG 0; POP_JUMP_IF_FALSE lo;
	// LOAD_CONST 2; POP_TOP; LOAD_CONST None; RETURN_VALUE
	want := []byte{
		byte(OP_LOAD_CONST), 1,
		byte(OP_EXTENDED_ARG), 0,
		byte(OP_POP_JUMP_IF_FALSE), 10,
		byte(OP_LOAD_CONST), 2,
		byte(OP_POP_TOP), 0,
		byte(OP_LOAD_CONST), 0,
		byte(OP_RETURN_VALUE), 0,
	}
	if !bytes.Equal(co.Code, want) {
		t.Errorf("jump encoding wrong.\n got=%v\nwant=%v", co.Code, want)
	}
}

func TestBytecodeJumpEncoding(t *testing.T) {
	cs := activeSpace(t, Python35)
	done := cs.genLabel()

	cs.pseudopConst(int64(1))
	cs.pseudopPopJumpIfFalse(done)
	cs.pseudopConst(int64(2))
	cs.pseudopPop()
	cs.pseudopLabel(done)
	cs.pseudopReturnNone()

	co, err := cs.Complete()
	if err != nil {
		t.Fatalf("complete error: %s", err)
	}

	// LOAD_CONST(3) PJIF(3) LOAD_CONST(3) POP_TOP(1) | done=10
	want := []byte{
		byte(OP_LOAD_CONST), 1, 0,
		byte(OP_POP_JUMP_IF_FALSE), 10, 0,
		byte(OP_LOAD_CONST), 2, 0,
		byte(OP_POP_TOP),
		byte(OP_LOAD_CONST), 0, 0,
		byte(OP_RETURN_VALUE),
	}
	if !bytes.Equal(co.Code, want) {
		t.Errorf("jump encoding wrong.\n got=%v\nwant=%v", co.Code, want)
	}
}

func TestRelativeJumpResolution(t *testing.T) {
	cs := activeSpace(t, Python36)
	end := cs.genLabel()

	cs.pseudopConst(int64(1))
	cs.pseudopJumpForward(end)
	cs.pseudopLabel(end)
	cs.pseudopReturn()

	co, err := cs.Complete()
	if err != nil {
		t.Fatalf("complete error: %s", err)
	}

	// the forward jump lands immediately after itself: delta zero
	want := []byte{
		byte(OP_LOAD_CONST), 1,
		byte(OP_EXTENDED_ARG), 0,
		byte(OP_JUMP_FORWARD), 0,
		byte(OP_RETURN_VALUE), 0,
	}
	if !bytes.Equal(co.Code, want) {
		t.Errorf("relative jump wrong.\n got=%v\nwant=%v", co.Code, want)
	}
}

func TestUndefinedLabel(t *testing.T) {
	cs := activeSpace(t, Python36)
	cs.pseudopConst(int64(1))
	cs.pseudopPopJumpIfFalse("label_9999")
	cs.pseudopReturnNone()

	if _, err := cs.Complete(); err == nil {
		t.Fatalf("expected undefined label error")
	}
}

func TestStackUnderflowCaught(t *testing.T) {
	cs := activeSpace(t, Python36)
	cs.pseudopPop()

	if _, err := cs.Complete(); err == nil {
		t.Fatalf("expected stack underflow error")
	}
}

func TestStackMustCloseAtZero(t *testing.T) {
	cs := activeSpace(t, Python36)
	cs.pseudopConst(int64(1))
	cs.pseudopConst(int64(2))
	cs.pseudopReturn()

	if _, err := cs.Complete(); err == nil {
		t.Fatalf("expected leftover stack error")
	}
}

func TestMaxStackAdoptsLabelDepth(t *testing.T) {
	ops := []instr{
		{op: PseudopConst, value: int64(1)},
		{op: PseudopPopJumpIfFalse, name: "L"},
		{op: PseudopConst, value: int64(2)},
		{op: PseudopPop},
		{op: PseudopLabel, name: "L"},
		{op: PseudopConst, value: nil},
		{op: PseudopRetVal},
	}

	depth, err := maxStack(ops)
	if err != nil {
		t.Fatalf("max_stack error: %s", err)
	}
	if depth != 1 {
		t.Errorf("depth wrong: %d", depth)
	}
}

func TestLineTablePacking(t *testing.T) {
	entries := []lineEntry{
		{offset: 0, line: 3},
		{offset: 4, line: 2},
		{offset: 8, line: 5},
	}

	// wordcode keeps negative line deltas
	first, packed := packLineTable(entries, 0, true)
	if first != 3 {
		t.Errorf("first line wrong: %d", first)
	}
	want := []byte{0, 0, 4, 0xff, 4, 3}
	if !bytes.Equal(packed, want) {
		t.Errorf("packed table wrong.\n got=%v\nwant=%v", packed, want)
	}

	// the legacy dialect skips them, so the later entry spans further
	first, packed = packLineTable(entries, 0, false)
	if first != 3 {
		t.Errorf("first line wrong: %d", first)
	}
	want = []byte{0, 0, 8, 2}
	if !bytes.Equal(packed, want) {
		t.Errorf("packed table wrong.\n got=%v\nwant=%v", packed, want)
	}
}

func TestLineTableLargeDelta(t *testing.T) {
	entries := []lineEntry{
		{offset: 0, line: 1},
		{offset: 2, line: 300},
	}

	_, packed := packLineTable(entries, 0, true)
	want := []byte{0, 0, 2, 1, 2, 43}
	if !bytes.Equal(packed, want) {
		t.Errorf("continuation pair wrong.\n got=%v\nwant=%v", packed, want)
	}
}

func TestLineTableEmpty(t *testing.T) {
	first, packed := packLineTable(nil, 0, true)
	if first != 1 || len(packed) != 0 {
		t.Errorf("empty table wrong: %d %v", first, packed)
	}
	first, _ = packLineTable(nil, 7, true)
	if first != 7 {
		t.Errorf("declared first line lost: %d", first)
	}
}

func TestPositionsReachLineTable(t *testing.T) {
	cs := activeSpace(t, Python36)
	cs.pseudopPosition(4, 0)
	cs.pseudopConst(int64(1))
	cs.pseudopPop()
	cs.pseudopPosition(6, 2)
	cs.pseudopReturnNone()

	co, err := cs.Complete()
	if err != nil {
		t.Fatalf("complete error: %s", err)
	}
	if co.FirstLine != 4 {
		t.Errorf("first line wrong: %d", co.FirstLine)
	}
	want := []byte{0, 0, 4, 2}
	if !bytes.Equal(co.LineTable, want) {
		t.Errorf("line table wrong.\n got=%v\nwant=%v", co.LineTable, want)
	}
}

func TestDialectsDisagreeOnEncoding(t *testing.T) {
	src := "(cond ((gt? a 1) 10) (else 20))"

	co36 := compileString(t, src, Python36, testEnv())
	co35 := compileString(t, src, Python35, testEnv())

	if bytes.Equal(co36.Code, co35.Code) {
		t.Errorf("dialects produced identical bytes")
	}
	if len(co36.Code)%2 != 0 {
		t.Errorf("wordcode length %d is odd", len(co36.Code))
	}
}

func TestCallVarargsPerDialect(t *testing.T) {
	src := "`(1 ,@(list 2))"

	co36 := compileString(t, src, Python36, testEnv())
	if !bytes.Contains(co36.Code, []byte{byte(OP_CALL_FUNCTION_EX), 0}) {
		t.Errorf("3.6 quasiquote does not use CALL_FUNCTION_EX")
	}

	co35 := compileString(t, src, Python35, testEnv())
	if !bytes.Contains(co35.Code, []byte{byte(OP_CALL_FUNCTION_VAR), 0, 0}) {
		t.Errorf("3.5 quasiquote does not use CALL_FUNCTION_VAR")
	}
}

func TestClosurePerDialect(t *testing.T) {
	src := "(lambda (x) (lambda () x))"

	co36 := compileString(t, src, Python36, testEnv())
	outer36 := findCodeConst(t, co36, "<lambda>")
	if !bytes.Contains(outer36.Code, []byte{byte(OP_MAKE_FUNCTION), 0x08}) {
		t.Errorf("3.6 closure does not use MAKE_FUNCTION 0x08")
	}

	co35 := compileString(t, src, Python35, testEnv())
	outer35 := findCodeConst(t, co35, "<lambda>")
	if !bytes.Contains(outer35.Code, []byte{byte(OP_MAKE_CLOSURE), 0, 0}) {
		t.Errorf("3.5 closure does not use MAKE_CLOSURE")
	}
}

// normalizeListing reduces a disassembly to its whitespace-split
// fields so the comparison is layout-independent.
func normalizeListing(s string) string {
	var rows []string
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		rows = append(rows, strings.Join(strings.Fields(line), " "))
	}
	return strings.Join(rows, "\n")
}

func TestDisassembleWordcode(t *testing.T) {
	co := compileString(t, "(quote x)", Python36, testEnv())

	var buf bytes.Buffer
	if err := Disassemble(co, Python36, &buf); err != nil {
		t.Fatalf("disassemble error: %s", err)
	}

	got := normalizeListing(buf.String())
	want := normalizeListing(`
<code <anon> <test>:1>
    0  LOAD_GLOBAL               0  (symbol)
    2  LOAD_CONST                1  ("x")
    4  CALL_FUNCTION             1
    6  RETURN_VALUE              0
`)

	if got != want {
		dmp := diffmatchpatch.New()
		diffs := dmp.DiffMain(want, got, false)
		t.Errorf("listing differs:\n%s", dmp.DiffPrettyText(diffs))
	}
}

func TestDisassembleBytecode(t *testing.T) {
	co := compileString(t, "(quote x)", Python35, testEnv())

	var buf bytes.Buffer
	if err := Disassemble(co, Python35, &buf); err != nil {
		t.Fatalf("disassemble error: %s", err)
	}

	got := normalizeListing(buf.String())
	want := normalizeListing(`
<code <anon> <test>:1>
    0  LOAD_GLOBAL               0  (symbol)
    3  LOAD_CONST                1  ("x")
    6  CALL_FUNCTION             1
    9  RETURN_VALUE
`)

	if got != want {
		dmp := diffmatchpatch.New()
		diffs := dmp.DiffMain(want, got, false)
		t.Errorf("listing differs:\n%s", dmp.DiffPrettyText(diffs))
	}
}

func TestDisassembleResolvesJumpTargets(t *testing.T) {
	co := compileString(t, "(while x y)", Python36, testEnv())

	var buf bytes.Buffer
	if err := Disassemble(co, Python36, &buf); err != nil {
		t.Fatalf("disassemble error: %s", err)
	}

	out := buf.String()
	if !strings.Contains(out, "JUMP_ABSOLUTE") || !strings.Contains(out, "(to ") {
		t.Errorf("jump targets not resolved:\n%s", out)
	}
}

func TestConstIndexIdentity(t *testing.T) {
	a := &CodeObject{Name: "a"}
	b := &CodeObject{Name: "a"}

	consts := []datum.Value{nil, a, "a"}

	if idx, err := constIndex(consts, a); err != nil || idx != 1 {
		t.Errorf("code object lookup wrong: %d %v", idx, err)
	}
	if _, err := constIndex(consts, b); err == nil {
		t.Errorf("distinct code object matched by value")
	}
	if idx, err := constIndex(consts, "a"); err != nil || idx != 2 {
		t.Errorf("string lookup wrong: %d %v", idx, err)
	}
}
