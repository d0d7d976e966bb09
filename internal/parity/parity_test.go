package parity

import (
	"runtime"
	"testing"

	"sable/internal/ast"
	"sable/internal/lower"
	"sable/internal/value"
)

func TestDiffValue(t *testing.T) {
	ref := Outcome{Value: &value.Int{Value: 7}}
	same := Outcome{Value: &value.Int{Value: 7}}
	if divs := Diff("case", ref, same); len(divs) != 0 {
		t.Errorf("equal outcomes diverged: %v", divs)
	}

	other := Outcome{Value: &value.Int{Value: 8}}
	divs := Diff("case", ref, other)
	if len(divs) != 1 || divs[0].Field != "value" {
		t.Fatalf("got %v", divs)
	}
	if divs[0].Reference != "7" || divs[0].Candidate != "8" {
		t.Errorf("divergence = %+v", divs[0])
	}
}

func TestDiffErrors(t *testing.T) {
	ok := Outcome{Value: value.NULL}
	failed := Outcome{Err: value.NewErr(value.ErrDivByZero, "division by zero")}

	divs := Diff("c", ok, failed)
	if len(divs) != 1 || divs[0].Field != "error" {
		t.Errorf("ok-vs-err: %v", divs)
	}

	divs = Diff("c", failed, ok)
	if len(divs) != 1 || divs[0].Field != "error" {
		t.Errorf("err-vs-ok: %v", divs)
	}

	otherKind := Outcome{Err: value.NewErr(value.ErrTypeError, "division by zero")}
	divs = Diff("c", failed, otherKind)
	if len(divs) != 1 || divs[0].Field != "error_kind" {
		t.Errorf("kind mismatch: %v", divs)
	}

	otherMsg := Outcome{Err: value.NewErr(value.ErrDivByZero, "divided by zero")}
	divs = Diff("c", failed, otherMsg)
	if len(divs) != 1 || divs[0].Field != "error_message" {
		t.Errorf("message mismatch: %v", divs)
	}
}

func TestDiffEffects(t *testing.T) {
	ref := Outcome{Value: value.NULL, Effects: []string{"print a", "print b"}}
	cand := Outcome{Value: value.NULL, Effects: []string{"print a"}}
	divs := Diff("c", ref, cand)
	if len(divs) != 1 || divs[0].Field != "effect_count" {
		t.Fatalf("got %v", divs)
	}

	cand = Outcome{Value: value.NULL, Effects: []string{"print a", "print c"}}
	divs = Diff("c", ref, cand)
	if len(divs) != 1 || divs[0].Field != "effect[1]" {
		t.Fatalf("got %v", divs)
	}
	if divs[0].Reference != "print b" || divs[0].Candidate != "print c" {
		t.Errorf("divergence = %+v", divs[0])
	}
}

func newRunner(t *testing.T, programJSON string) *Runner {
	t.Helper()
	prog, err := ast.DecodeProgram([]byte(programJSON))
	if err != nil {
		t.Fatalf("decode failed: %s", err)
	}
	irProg, err := lower.Program(prog)
	if err != nil {
		t.Fatalf("lowering failed: %s", err)
	}
	return &Runner{Prog: irProg, Workers: 2}
}

func check(t *testing.T, r *Runner, entry string, args ...value.Value) {
	t.Helper()
	if runtime.GOOS != "linux" || runtime.GOARCH != "amd64" {
		t.Skip("compiled engine requires linux/amd64")
	}
	divs, err := r.Check(entry, args)
	if err != nil {
		t.Fatalf("%s: %s", entry, err)
	}
	for _, d := range divs {
		t.Errorf("%s", d)
	}
}

func TestEnginesAgreeOnArithmetic(t *testing.T) {
	r := newRunner(t, `{"funcs":[{"name":"main","params":[],"body":[
	  {"node":"return","value":{"node":"binary","op":"+",
	    "left":{"node":"int","int":1},
	    "right":{"node":"binary","op":"*",
	      "left":{"node":"int","int":2},"right":{"node":"int","int":3}}}}]}]}`)
	check(t, r, "main")
}

func TestEnginesAgreeOnDivByZero(t *testing.T) {
	r := newRunner(t, `{"funcs":[{"name":"main","params":["d"],"body":[
	  {"node":"return","value":{"node":"binary","op":"/",
	    "left":{"node":"int","int":1},"right":{"node":"var","name":"d"}}}]}]}`)
	check(t, r, "main", &value.Int{Value: 0})
	check(t, r, "main", &value.Int{Value: 3})
}

func TestEnginesAgreeOnDecodeErr(t *testing.T) {
	r := newRunner(t, `{"funcs":[{"name":"main","params":["text"],"body":[
	  {"node":"return","value":{"node":"hostcall","name":"json.decode","args":[{"node":"var","name":"text"}]}}]}]}`)
	check(t, r, "main", &value.Str{Value: `{"a":[1,2]}`})
	check(t, r, "main", &value.Str{Value: `{"a":`})
}

func TestEnginesAgreeOnSpawnedTaskError(t *testing.T) {
	r := newRunner(t, `{"funcs":[
	  {"name":"boom","params":[],"body":[
	    {"node":"return","value":{"node":"binary","op":"/","left":{"node":"int","int":1},"right":{"node":"int","int":0}}}]},
	  {"name":"main","params":[],"body":[
	    {"node":"return","value":{"node":"await","value":{"node":"spawn","func":"boom","args":[]}}}]}]}`)
	check(t, r, "main")
}

func TestEnginesAgreeOnEffectOrder(t *testing.T) {
	r := newRunner(t, `{"funcs":[{"name":"main","params":[],"body":[
	  {"node":"let","name":"i","value":{"node":"int","int":0}},
	  {"node":"while","cond":{"node":"binary","op":"<","left":{"node":"var","name":"i"},"right":{"node":"int","int":3}},
	   "body":[
	    {"node":"expr","value":{"node":"hostcall","name":"std.print","args":[{"node":"var","name":"i"}]}},
	    {"node":"assign","name":"i","value":{"node":"binary","op":"+","left":{"node":"var","name":"i"},"right":{"node":"int","int":1}}}]},
	  {"node":"return","value":{"node":"null"}}]}]}`)
	check(t, r, "main")
}

func TestEnginesAgreeOnStructsAndOptions(t *testing.T) {
	r := newRunner(t, `{"funcs":[{"name":"main","params":[],"body":[
	  {"node":"let","name":"m","value":{"node":"map","keys":["a"],"values":[{"node":"int","int":1}]}},
	  {"node":"let","name":"hit","value":{"node":"index","target":{"node":"var","name":"m"},"index":{"node":"str","str":"a"}}},
	  {"node":"let","name":"miss","value":{"node":"index","target":{"node":"var","name":"m"},"index":{"node":"str","str":"z"}}},
	  {"node":"return","value":{"node":"list","values":[{"node":"var","name":"hit"},{"node":"var","name":"miss"}]}}]}]}`)
	check(t, r, "main")
}
