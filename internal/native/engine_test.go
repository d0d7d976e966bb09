package native

import (
	"runtime"
	"strings"
	"testing"

	"sable/internal/heap"
	"sable/internal/hostcall"
	"sable/internal/sched"
	"sable/internal/value"
)

func newEngine(t *testing.T, programJSON string) (*Engine, *hostcall.Ctx) {
	t.Helper()
	if runtime.GOOS != "linux" || runtime.GOARCH != "amd64" {
		t.Skip("native engine requires linux/amd64")
	}
	img, err := Compile(lowerJSON(t, programJSON))
	if err != nil {
		t.Fatalf("compile failed: %s", err)
	}
	ctx := hostcall.NewCtx()
	pool := sched.NewPool(2)
	t.Cleanup(pool.Drain)
	eng, err := New(img, heap.NewArena(), hostcall.Default(), ctx, pool)
	if err != nil {
		t.Fatalf("load failed: %s", err)
	}
	t.Cleanup(eng.Close)
	return eng, ctx
}

func runInt(t *testing.T, eng *Engine, name string, args ...value.Value) int64 {
	t.Helper()
	v, err := eng.RunFunction(name, args)
	if err != nil {
		t.Fatalf("%s: %s", name, err.Message)
	}
	i, ok := v.(*value.Int)
	if !ok {
		t.Fatalf("%s returned %s, want INT", name, v.Kind())
	}
	return i.Value
}

func TestNativeArithmetic(t *testing.T) {
	eng, _ := newEngine(t, `{"funcs":[{"name":"calc","params":["a","b"],"body":[
	  {"node":"return","value":{"node":"binary","op":"+",
	    "left":{"node":"var","name":"a"},
	    "right":{"node":"binary","op":"*",
	      "left":{"node":"var","name":"b"},"right":{"node":"int","int":3}}}}]}]}`)

	if got := runInt(t, eng, "calc", &value.Int{Value: 1}, &value.Int{Value: 2}); got != 7 {
		t.Errorf("calc(1,2) = %d, want 7", got)
	}
	if got := runInt(t, eng, "calc", &value.Int{Value: -10}, &value.Int{Value: -1}); got != -13 {
		t.Errorf("calc(-10,-1) = %d, want -13", got)
	}
}

func TestNativeDivMod(t *testing.T) {
	eng, _ := newEngine(t, `{"funcs":[
	  {"name":"div","params":["a","b"],"body":[
	    {"node":"return","value":{"node":"binary","op":"/","left":{"node":"var","name":"a"},"right":{"node":"var","name":"b"}}}]},
	  {"name":"mod","params":["a","b"],"body":[
	    {"node":"return","value":{"node":"binary","op":"%","left":{"node":"var","name":"a"},"right":{"node":"var","name":"b"}}}]}]}`)

	if got := runInt(t, eng, "div", &value.Int{Value: 7}, &value.Int{Value: 2}); got != 3 {
		t.Errorf("7/2 = %d", got)
	}
	if got := runInt(t, eng, "div", &value.Int{Value: -7}, &value.Int{Value: 2}); got != -3 {
		t.Errorf("-7/2 = %d, want truncation toward zero", got)
	}
	if got := runInt(t, eng, "mod", &value.Int{Value: -7}, &value.Int{Value: 2}); got != -1 {
		t.Errorf("-7%%2 = %d, want -1", got)
	}

	_, err := eng.RunFunction("div", []value.Value{&value.Int{Value: 1}, &value.Int{Value: 0}})
	if err == nil || err.ErrKind != value.ErrDivByZero || err.Message != "division by zero" {
		t.Errorf("1/0: got %v", err)
	}
	_, err = eng.RunFunction("mod", []value.Value{&value.Int{Value: 1}, &value.Int{Value: 0}})
	if err == nil || err.ErrKind != value.ErrDivByZero || err.Message != "modulo by zero" {
		t.Errorf("1%%0: got %v", err)
	}

	// The quotient of the smallest immediate and -1 overflows the
	// immediate range and must box instead of wrapping.
	min := int64(-1) << 60
	if got := runInt(t, eng, "div", &value.Int{Value: min}, &value.Int{Value: -1}); got != -min {
		t.Errorf("min/-1 = %d, want %d", got, -min)
	}
}

func TestNativeComparisonsAndBranch(t *testing.T) {
	eng, _ := newEngine(t, `{"funcs":[{"name":"max","params":["a","b"],"body":[
	  {"node":"if","cond":{"node":"binary","op":">","left":{"node":"var","name":"a"},"right":{"node":"var","name":"b"}},
	   "then":[{"node":"return","value":{"node":"var","name":"a"}}],
	   "else":[{"node":"return","value":{"node":"var","name":"b"}}]}]}]}`)

	if got := runInt(t, eng, "max", &value.Int{Value: 3}, &value.Int{Value: 9}); got != 9 {
		t.Errorf("max(3,9) = %d", got)
	}
	if got := runInt(t, eng, "max", &value.Int{Value: -1}, &value.Int{Value: -5}); got != -1 {
		t.Errorf("max(-1,-5) = %d", got)
	}
}

func TestNativeLoop(t *testing.T) {
	eng, _ := newEngine(t, `{"funcs":[{"name":"sum","params":["n"],"body":[
	  {"node":"let","name":"i","value":{"node":"int","int":0}},
	  {"node":"let","name":"acc","value":{"node":"int","int":0}},
	  {"node":"while","cond":{"node":"binary","op":"<","left":{"node":"var","name":"i"},"right":{"node":"var","name":"n"}},
	   "body":[
	    {"node":"assign","name":"acc","value":{"node":"binary","op":"+","left":{"node":"var","name":"acc"},"right":{"node":"var","name":"i"}}},
	    {"node":"assign","name":"i","value":{"node":"binary","op":"+","left":{"node":"var","name":"i"},"right":{"node":"int","int":1}}}]},
	  {"node":"return","value":{"node":"var","name":"acc"}}]}]}`)

	if got := runInt(t, eng, "sum", &value.Int{Value: 100}); got != 4950 {
		t.Errorf("sum(100) = %d, want 4950", got)
	}
}

func TestNativeOverflowBoxes(t *testing.T) {
	// The doubled value leaves the immediate range, forcing the slow
	// path to box it, then flows back through another multiply.
	eng, _ := newEngine(t, `{"funcs":[{"name":"quad","params":["n"],"body":[
	  {"node":"let","name":"d","value":{"node":"binary","op":"*","left":{"node":"var","name":"n"},"right":{"node":"int","int":2}}},
	  {"node":"return","value":{"node":"binary","op":"*","left":{"node":"var","name":"d"},"right":{"node":"int","int":2}}}]}]}`)

	big := int64(1) << 59
	if got := runInt(t, eng, "quad", &value.Int{Value: big}); got != big*4 {
		t.Errorf("quad(2^59) = %d, want %d", got, big*4)
	}
}

func TestNativeStringsTakeSlowPath(t *testing.T) {
	eng, _ := newEngine(t, `{"funcs":[{"name":"greet","params":["who"],"body":[
	  {"node":"return","value":{"node":"binary","op":"+",
	    "left":{"node":"str","str":"hello "},"right":{"node":"var","name":"who"}}}]}]}`)

	v, err := eng.RunFunction("greet", []value.Value{&value.Str{Value: "world"}})
	if err != nil {
		t.Fatalf("greet: %s", err.Message)
	}
	if v.(*value.Str).Value != "hello world" {
		t.Errorf("got %s", v.Inspect())
	}
}

func TestNativeCallAndHostCall(t *testing.T) {
	eng, ctx := newEngine(t, `{"funcs":[
	  {"name":"double","params":["n"],"body":[
	    {"node":"return","value":{"node":"binary","op":"*","left":{"node":"var","name":"n"},"right":{"node":"int","int":2}}}]},
	  {"name":"main","params":[],"body":[
	    {"node":"expr","value":{"node":"hostcall","name":"std.print","args":[{"node":"str","str":"running"}]}},
	    {"node":"return","value":{"node":"call","func":"double","args":[{"node":"int","int":21}]}}]}]}`)

	if got := runInt(t, eng, "main"); got != 42 {
		t.Errorf("main = %d", got)
	}
	entries := ctx.Effects.Entries()
	if len(entries) != 1 || entries[0] != "print running" {
		t.Errorf("effects = %v", entries)
	}
}

func TestNativeSpawnAwait(t *testing.T) {
	eng, _ := newEngine(t, `{"funcs":[
	  {"name":"square","params":["n"],"body":[
	    {"node":"return","value":{"node":"binary","op":"*","left":{"node":"var","name":"n"},"right":{"node":"var","name":"n"}}}]},
	  {"name":"main","params":[],"body":[
	    {"node":"let","name":"t","value":{"node":"spawn","func":"square","args":[{"node":"int","int":8}]}},
	    {"node":"return","value":{"node":"await","value":{"node":"var","name":"t"}}}]}]}`)

	if got := runInt(t, eng, "main"); got != 64 {
		t.Errorf("main = %d, want 64", got)
	}
}

func TestNativeStructsAndMatch(t *testing.T) {
	eng, _ := newEngine(t, `{"funcs":[{"name":"classify","params":["r"],"body":[
	  {"node":"match","subject":{"node":"var","name":"r"},
	   "arms":[
	    {"variant":"Ok","bind":"v","body":[{"node":"return","value":{"node":"var","name":"v"}}]},
	    {"variant":"Err","bind":"e","body":[{"node":"return","value":{"node":"field","target":{"node":"var","name":"e"},"name":"code"}}]}],
	   "default":[{"node":"return","value":{"node":"int","int":0}}]}]}]}`)

	if got := runInt(t, eng, "classify", value.Ok(&value.Int{Value: 5})); got != 5 {
		t.Errorf("Ok arm = %d", got)
	}
	payload := value.NewStruct("").Set("code", &value.Int{Value: 404})
	if got := runInt(t, eng, "classify", value.ErrOf(payload)); got != 404 {
		t.Errorf("Err arm = %d", got)
	}
	if got := runInt(t, eng, "classify", &value.Enum{Name: "E", Variant: "Other"}); got != 0 {
		t.Errorf("default arm = %d", got)
	}
}

func TestNativeCollectsDuringRun(t *testing.T) {
	if runtime.GOOS != "linux" || runtime.GOARCH != "amd64" {
		t.Skip("native engine requires linux/amd64")
	}
	// Every iteration allocates a fresh Some cell and drops the prior
	// one, so a long run must reclaim garbage as it goes.
	img, err := Compile(lowerJSON(t, `{"funcs":[{"name":"churn","params":["n"],"body":[
	  {"node":"let","name":"i","value":{"node":"int","int":0}},
	  {"node":"let","name":"s","value":{"node":"none"}},
	  {"node":"while","cond":{"node":"binary","op":"<","left":{"node":"var","name":"i"},"right":{"node":"var","name":"n"}},
	   "body":[
	    {"node":"assign","name":"s","value":{"node":"some","value":{"node":"var","name":"i"}}},
	    {"node":"assign","name":"i","value":{"node":"binary","op":"+","left":{"node":"var","name":"i"},"right":{"node":"int","int":1}}}]},
	  {"node":"return","value":{"node":"var","name":"i"}}]}]}`))
	if err != nil {
		t.Fatalf("compile failed: %s", err)
	}
	arena := heap.NewArena()
	pool := sched.NewPool(1)
	defer pool.Drain()
	eng, lerr := New(img, arena, hostcall.Default(), hostcall.NewCtx(), pool)
	if lerr != nil {
		t.Fatalf("load failed: %s", lerr)
	}
	defer eng.Close()

	const n = 20000
	v, rerr := eng.RunFunction("churn", []value.Value{&value.Int{Value: n}})
	if rerr != nil {
		t.Fatalf("churn: %s", rerr.Message)
	}
	if v.(*value.Int).Value != n {
		t.Errorf("churn = %s, want %d", v.Inspect(), n)
	}
	if arena.Reclaimed() == 0 {
		t.Error("no cells reclaimed during the run")
	}
	if live := arena.Live(); live > 5000 {
		t.Errorf("%d cells live after the run", live)
	}
}

func TestNativeUnknownFunction(t *testing.T) {
	eng, _ := newEngine(t, `{"funcs":[{"name":"f","params":[],"body":[
	  {"node":"return","value":{"node":"null"}}]}]}`)

	_, err := eng.RunFunction("g", nil)
	if err == nil || err.ErrKind != value.ErrUndefined {
		t.Errorf("got %v, want undefined", err)
	}
	_, err = eng.RunFunction("f", []value.Value{value.NULL})
	if err == nil || err.ErrKind != value.ErrBadArgument || !strings.Contains(err.Message, "expects 0 arguments") {
		t.Errorf("got %v, want bad_argument", err)
	}
}
