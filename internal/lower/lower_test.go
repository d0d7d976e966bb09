package lower

import (
	"strings"
	"testing"

	"sable/internal/ast"
	"sable/internal/ir"
)

func mustDecode(t *testing.T, text string) *ast.Program {
	t.Helper()
	prog, err := ast.DecodeProgram([]byte(text))
	if err != nil {
		t.Fatalf("decode failed: %s", err)
	}
	return prog
}

func TestLowerDeterministic(t *testing.T) {
	text := `{"name":"p","funcs":[{"name":"main","params":[],"body":[
	  {"node":"let","name":"x","value":{"node":"int","int":1}},
	  {"node":"while","cond":{"node":"binary","op":"<","left":{"node":"var","name":"x"},"right":{"node":"int","int":10}},
	    "body":[{"node":"assign","name":"x","value":{"node":"binary","op":"+","left":{"node":"var","name":"x"},"right":{"node":"int","int":1}}}]},
	  {"node":"return","value":{"node":"var","name":"x"}}
	]}]}`

	first, err := Program(mustDecode(t, text))
	if err != nil {
		t.Fatalf("lowering failed: %s", err)
	}
	second, err := Program(mustDecode(t, text))
	if err != nil {
		t.Fatalf("lowering failed: %s", err)
	}
	if ir.Dump(first) != ir.Dump(second) {
		t.Error("same input produced different IR")
	}
}

func TestLowerUndeclaredBinding(t *testing.T) {
	_, err := Program(mustDecode(t, `{"funcs":[{"name":"f","body":[
	  {"node":"return","value":{"node":"var","name":"ghost"}}]}]}`))
	lerr, ok := err.(*Error)
	if !ok {
		t.Fatalf("got %v, want *lower.Error", err)
	}
	if lerr.Func != "f" || !strings.Contains(lerr.Detail, `"ghost"`) {
		t.Errorf("error = %+v", lerr)
	}

	_, err = Program(mustDecode(t, `{"funcs":[{"name":"g","body":[
	  {"node":"assign","name":"ghost","value":{"node":"int","int":1}}]}]}`))
	if err == nil || !strings.Contains(err.Error(), "undeclared binding") {
		t.Errorf("got %v", err)
	}
}

func TestLowerImplicitReturn(t *testing.T) {
	prog, err := Program(mustDecode(t, `{"funcs":[{"name":"f","body":[]}]}`))
	if err != nil {
		t.Fatal(err)
	}
	fn, _ := prog.Func("f")
	last := fn.Blocks[len(fn.Blocks)-1]
	in := last.Instrs[len(last.Instrs)-1]
	if in.Op != ir.OpReturn || in.A != ir.NoReg {
		t.Errorf("empty body must end with a bare return, got %v", in)
	}
}

func TestLowerMatchWithoutArms(t *testing.T) {
	prog, err := Program(mustDecode(t, `{"funcs":[{"name":"f","body":[
	  {"node":"match","subject":{"node":"null"},"arms":[],
	   "default":[{"node":"return","value":{"node":"int","int":9}}]}]}]}`))
	if err != nil {
		t.Fatalf("armless match must lower to the default body: %s", err)
	}
	dump := ir.Dump(prog)
	if !strings.Contains(dump, "return") {
		t.Errorf("default body missing from IR:\n%s", dump)
	}
}

func TestLowerShortCircuit(t *testing.T) {
	prog, err := Program(mustDecode(t, `{"funcs":[{"name":"f","params":["a","b"],"body":[
	  {"node":"return","value":{"node":"binary","op":"&&",
	    "left":{"node":"var","name":"a"},"right":{"node":"var","name":"b"}}}]}]}`))
	if err != nil {
		t.Fatal(err)
	}
	fn, _ := prog.Func("f")
	branches := 0
	binaries := 0
	for _, b := range fn.Blocks {
		for _, in := range b.Instrs {
			switch in.Op {
			case ir.OpBranch:
				branches++
			case ir.OpBinary:
				binaries++
			}
		}
	}
	if branches != 1 {
		t.Errorf("got %d branches, want 1", branches)
	}
	if binaries != 0 {
		t.Errorf("&& must not lower to an eager binary op, got %d", binaries)
	}
}

func TestLowerMatchBind(t *testing.T) {
	prog, err := Program(mustDecode(t, `{"funcs":[{"name":"f","params":["r"],"body":[
	  {"node":"match","subject":{"node":"var","name":"r"},
	   "arms":[{"variant":"Ok","bind":"v","body":[{"node":"return","value":{"node":"var","name":"v"}}]}],
	   "default":[{"node":"return","value":{"node":"null"}}]}]}]}`))
	if err != nil {
		t.Fatal(err)
	}
	fn, _ := prog.Func("f")
	var sawIs, sawPayload bool
	for _, b := range fn.Blocks {
		for _, in := range b.Instrs {
			if in.Op == ir.OpVariantIs && in.Sym == "Ok" {
				sawIs = true
			}
			if in.Op == ir.OpPayload {
				sawPayload = true
			}
		}
	}
	if !sawIs || !sawPayload {
		t.Errorf("match lowering missing variant test or payload bind (is=%v payload=%v)", sawIs, sawPayload)
	}
}
