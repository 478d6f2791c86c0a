package datum

import (
	"testing"
)

func TestInternIdentity(t *testing.T) {
	a := Intern("hello")
	b := Intern("hello")
	c := Intern("world")

	if a != b {
		t.Errorf("interned symbols are not identical: %p vs %p", a, b)
	}
	if a == c {
		t.Errorf("distinct symbols interned to the same value")
	}
	if a.Name() != "hello" {
		t.Errorf("symbol name wrong. got=%q", a.Name())
	}
}

func TestInternKeyword(t *testing.T) {
	a := InternKeyword(":foo")
	b := InternKeyword("foo:")
	c := InternKeyword("foo")

	if a != b || b != c {
		t.Errorf("keyword colon forms interned differently")
	}
	if a.String() != ":foo" {
		t.Errorf("keyword printed form wrong. got=%q", a.String())
	}

	if Value(a) == Value(Intern("foo")) {
		t.Errorf("keyword and symbol of the same name compare equal")
	}
}

func TestProperDetection(t *testing.T) {
	proper := NewList(int64(1), int64(2), int64(3)).(*Pair)
	if !IsProper(proper) {
		t.Errorf("proper list reported improper")
	}

	improper := Cons(int64(1), int64(2))
	if IsProper(improper) {
		t.Errorf("improper list reported proper")
	}
}

func TestUnpackAndCount(t *testing.T) {
	proper := NewList(int64(1), int64(2), int64(3)).(*Pair)
	items := Unpack(proper)
	if len(items) != 3 {
		t.Fatalf("unpacked wrong length. got=%d", len(items))
	}
	if items[0] != Value(int64(1)) || items[2] != Value(int64(3)) {
		t.Errorf("unpack returned wrong items: %v", items)
	}

	improper := Cons(int64(1), int64(2))
	items = Unpack(improper)
	if len(items) != 2 {
		t.Fatalf("improper unpack wrong length. got=%d", len(items))
	}
	if items[1] != Value(int64(2)) {
		t.Errorf("improper tail not included: %v", items)
	}

	if Count(proper) != 3 {
		t.Errorf("count wrong. got=%d", Count(proper))
	}
}

func TestSetCdr(t *testing.T) {
	p := Cons(int64(1), Nil)
	p.SetCdr(int64(2))
	if IsProper(p) {
		t.Errorf("list still proper after setcdr")
	}
	if Print(p) != "(1 . 2)" {
		t.Errorf("printed form wrong. got=%q", Print(p))
	}
}

func TestPrint(t *testing.T) {
	tests := []struct {
		value    Value
		expected string
	}{
		{Nil, "nil"},
		{nil, "None"},
		{int64(42), "42"},
		{float64(1.0), "1.0"},
		{float64(1.5), "1.5"},
		{"hi\nthere", `"hi\nthere"`},
		{Intern("lambda"), "lambda"},
		{InternKeyword("eof"), ":eof"},
		{NewList(Intern("a"), Intern("b")), "(a b)"},
		{Cons(Intern("a"), Intern("b")), "(a . b)"},
		{NewList(Intern("a"), NewList(Intern("b")), Nil), "(a (b) nil)"},
	}

	for _, tt := range tests {
		if got := Print(tt.value); got != tt.expected {
			t.Errorf("Print(%v) = %q, want %q", tt.value, got, tt.expected)
		}
	}
}

func TestPositions(t *testing.T) {
	p := Cons(Intern("x"), Nil)
	if _, ok := p.Position(); ok {
		t.Errorf("fresh pair already has a position")
	}

	p.SetPosition(Position{Line: 3, Col: 7})
	pos, ok := p.Position()
	if !ok || pos.Line != 3 || pos.Col != 7 {
		t.Errorf("position not recorded. got=%v ok=%v", pos, ok)
	}

	m := PosMap{}
	m.Set(p, pos)
	q := Cons(Intern("x"), Nil)
	if _, ok := m.Get(q); ok {
		t.Errorf("position map matched a different pair identity")
	}
	if got, ok := m.Get(p); !ok || got != pos {
		t.Errorf("position map lost the entry")
	}
}
