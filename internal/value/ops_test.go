package value

import (
	"math"
	"testing"
)

func TestIntBinaryOps(t *testing.T) {
	tests := []struct {
		op   string
		l, r int64
		want int64
	}{
		{"+", 1, 2, 3},
		{"-", 10, 4, 6},
		{"*", 6, 7, 42},
		{"/", 7, 2, 3},
		{"/", -7, 2, -3},
		{"%", 7, 2, 1},
		{"%", -7, 2, -1},
		{"+", math.MaxInt64, 1, math.MinInt64},
		{"*", math.MinInt64, -1, math.MinInt64},
	}
	for _, tt := range tests {
		got, err := BinaryOp(tt.op, &Int{Value: tt.l}, &Int{Value: tt.r})
		if err != nil {
			t.Fatalf("%d %s %d: unexpected error %s", tt.l, tt.op, tt.r, err.Message)
		}
		i, ok := got.(*Int)
		if !ok {
			t.Fatalf("%d %s %d: got %s, want INT", tt.l, tt.op, tt.r, got.Kind())
		}
		if i.Value != tt.want {
			t.Errorf("%d %s %d = %d, want %d", tt.l, tt.op, tt.r, i.Value, tt.want)
		}
	}
}

func TestIntComparisons(t *testing.T) {
	tests := []struct {
		op   string
		l, r int64
		want bool
	}{
		{"<", 1, 2, true},
		{"<", 2, 1, false},
		{"<=", 2, 2, true},
		{">", 3, 2, true},
		{">=", 2, 3, false},
		{"==", 5, 5, true},
		{"!=", 5, 5, false},
	}
	for _, tt := range tests {
		got, err := BinaryOp(tt.op, &Int{Value: tt.l}, &Int{Value: tt.r})
		if err != nil {
			t.Fatalf("%d %s %d: unexpected error %s", tt.l, tt.op, tt.r, err.Message)
		}
		if got != BoolOf(tt.want) {
			t.Errorf("%d %s %d = %s, want %v", tt.l, tt.op, tt.r, got.Inspect(), tt.want)
		}
	}
}

func TestDivideByZero(t *testing.T) {
	_, err := BinaryOp("/", &Int{Value: 1}, &Int{Value: 0})
	if err == nil || err.ErrKind != ErrDivByZero {
		t.Fatalf("expected div_by_zero, got %v", err)
	}
	if err.Message != "division by zero" {
		t.Errorf("wrong message %q", err.Message)
	}

	_, err = BinaryOp("%", &Int{Value: 1}, &Int{Value: 0})
	if err == nil || err.ErrKind != ErrDivByZero {
		t.Fatalf("expected div_by_zero for modulo, got %v", err)
	}
	if err.Message != "modulo by zero" {
		t.Errorf("wrong message %q", err.Message)
	}
}

func TestNoImplicitCoercion(t *testing.T) {
	_, err := BinaryOp("+", &Int{Value: 1}, &Float{Value: 2.0})
	if err == nil || err.ErrKind != ErrTypeError {
		t.Fatalf("int+float must be a type error, got %v", err)
	}

	widened, werr := Widen(&Int{Value: 3})
	if werr != nil {
		t.Fatalf("widen failed: %s", werr.Message)
	}
	got, verr := BinaryOp("+", widened, &Float{Value: 0.5})
	if verr != nil {
		t.Fatalf("widened add failed: %s", verr.Message)
	}
	if f := got.(*Float); f.Value != 3.5 {
		t.Errorf("widen(3)+0.5 = %v, want 3.5", f.Value)
	}
}

func TestStrOps(t *testing.T) {
	got, err := BinaryOp("+", &Str{Value: "foo"}, &Str{Value: "bar"})
	if err != nil {
		t.Fatalf("concat failed: %s", err.Message)
	}
	if got.(*Str).Value != "foobar" {
		t.Errorf("concat = %q", got.(*Str).Value)
	}
	lt, err := BinaryOp("<", &Str{Value: "a"}, &Str{Value: "b"})
	if err != nil || lt != TRUE {
		t.Errorf("a < b = %v, %v", lt, err)
	}
}

func TestEqualMixedKinds(t *testing.T) {
	eq, err := BinaryOp("==", &Int{Value: 1}, &Str{Value: "1"})
	if err != nil {
		t.Fatalf("cross-kind == must not error: %s", err.Message)
	}
	if eq != FALSE {
		t.Errorf("1 == \"1\" must be false")
	}
}

func TestDeepEqual(t *testing.T) {
	a := &List{Elements: []Value{&Int{Value: 1}, &Str{Value: "x"}}}
	b := &List{Elements: []Value{&Int{Value: 1}, &Str{Value: "x"}}}
	if !Equal(a, b) {
		t.Errorf("identical lists compare unequal")
	}

	s1 := NewStruct("P").Set("x", &Int{Value: 1})
	s2 := NewStruct("P").Set("x", &Int{Value: 1})
	s3 := NewStruct("Q").Set("x", &Int{Value: 1})
	if !Equal(s1, s2) {
		t.Errorf("identical structs compare unequal")
	}
	if Equal(s1, s3) {
		t.Errorf("structs with different names compare equal")
	}

	box := NewBox(&Int{Value: 1})
	if !Equal(box, box) {
		t.Errorf("box must equal itself")
	}
	if Equal(box, NewBox(&Int{Value: 1})) {
		t.Errorf("distinct boxes must compare by identity")
	}
}

func TestTruthiness(t *testing.T) {
	if IsTruthy(NULL) || IsTruthy(FALSE) {
		t.Errorf("null and false must be falsy")
	}
	for _, v := range []Value{TRUE, &Int{Value: 0}, &Str{Value: ""}, NONE, &List{}} {
		if !IsTruthy(v) {
			t.Errorf("%s must be truthy", v.Kind())
		}
	}
}

func TestIndex(t *testing.T) {
	list := &List{Elements: []Value{&Int{Value: 10}, &Int{Value: 20}}}
	got, err := Index(list, &Int{Value: 1})
	if err != nil || got.(*Int).Value != 20 {
		t.Fatalf("list[1] = %v, %v", got, err)
	}
	_, err = Index(list, &Int{Value: 2})
	if err == nil || err.ErrKind != ErrBadArgument {
		t.Errorf("out of range index must be bad_argument, got %v", err)
	}

	m := NewMap().Put("k", &Int{Value: 1})
	got, err = Index(m, &Str{Value: "k"})
	if err != nil {
		t.Fatalf("map index failed: %s", err.Message)
	}
	if opt := got.(*Option); opt.Value == nil || opt.Value.(*Int).Value != 1 {
		t.Errorf("map[k] = %s, want Some(1)", got.Inspect())
	}
	got, err = Index(m, &Str{Value: "missing"})
	if err != nil || got != NONE {
		t.Errorf("missing key must be None, got %v, %v", got, err)
	}
}

func TestVariantOf(t *testing.T) {
	tests := []struct {
		v       Value
		variant string
	}{
		{Ok(&Int{Value: 1}), "Ok"},
		{ErrOf(&Str{Value: "boom"}), "Err"},
		{Some(&Int{Value: 1}), "Some"},
		{NONE, "None"},
		{&Enum{Name: "Color", Variant: "Red"}, "Red"},
	}
	for _, tt := range tests {
		variant, _, err := VariantOf(tt.v)
		if err != nil {
			t.Fatalf("VariantOf(%s): %s", tt.v.Inspect(), err.Message)
		}
		if variant != tt.variant {
			t.Errorf("VariantOf(%s) = %q, want %q", tt.v.Inspect(), variant, tt.variant)
		}
	}

	_, _, err := VariantOf(&Int{Value: 1})
	if err == nil || err.ErrKind != ErrTypeError {
		t.Errorf("INT has no variants, got %v", err)
	}
}
