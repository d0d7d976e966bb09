package hostcall

import (
	"sync"

	"sable/internal/value"
)

// The host-call boundary: a fixed set of named calls, each taking and
// receiving fully-materialized values. This is the only place compiled
// code and the interpreter share an implementation for decode,
// validation, db, http, logging and environment access, which is what
// keeps the two engines from drifting apart.

// Fn is the fixed host-call signature.
type Fn func(ctx *Ctx, args []value.Value) (value.Value, *value.Err)

// Ctx carries per-run state across the boundary: the side-effect log
// the parity harness diffs, a handle table for external resources, and
// the environment snapshot.
type Ctx struct {
	Effects *EffectLog
	Env     func(string) (string, bool)

	mu      sync.Mutex
	nextID  int64
	handles map[int64]interface{}
}

func NewCtx() *Ctx {
	return &Ctx{
		Effects: NewEffectLog(),
		handles: map[int64]interface{}{},
	}
}

func (c *Ctx) NextHandleID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	return c.nextID
}

func (c *Ctx) PutHandle(id int64, h interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handles[id] = h
}

func (c *Ctx) Handle(id int64) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handles[id]
	return h, ok
}

func (c *Ctx) DropHandle(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handles, id)
}

// Registry maps host-call names to implementations.
type Registry struct {
	fns map[string]Fn
}

func NewRegistry() *Registry {
	return &Registry{fns: map[string]Fn{}}
}

func (r *Registry) Register(name string, fn Fn) {
	r.fns[name] = fn
}

func (r *Registry) Lookup(name string) (Fn, bool) {
	fn, ok := r.fns[name]
	return fn, ok
}

// Call invokes a named host call. An unknown name is a value-level
// error, classified the same by both engines.
func (r *Registry) Call(ctx *Ctx, name string, args []value.Value) (value.Value, *value.Err) {
	fn, ok := r.fns[name]
	if !ok {
		return nil, value.NewErr(value.ErrUndefined, "unknown host call %q", name)
	}
	return fn(ctx, args)
}

// Default returns the registry with every built-in host call wired.
func Default() *Registry {
	r := NewRegistry()

	r.Register("json.decode", fnJSONDecode)
	r.Register("json.encode", fnJSONEncode)
	r.Register("validate.refine", fnValidateRefine)

	r.Register("db.connect", fnDbConnect)
	r.Register("db.exec", fnDbExec)
	r.Register("db.query", fnDbQuery)
	r.Register("db.close", fnDbClose)

	r.Register("http.request", fnHTTPRequest)

	r.Register("log.emit", fnLogEmit)

	r.Register("env.get", fnEnvGet)

	r.Register("std.len", fnStdLen)
	r.Register("std.print", fnStdPrint)

	return r
}
