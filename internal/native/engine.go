package native

import (
	"log/slog"

	"sable/internal/heap"
	"sable/internal/hostcall"
	"sable/internal/ir"
	"sable/internal/sched"
	"sable/internal/value"
)

// entryFunc is the signature generated code is entered through: frame
// base, resume index, constant pool base, returning an exit status.
type entryFunc func(frame *heap.Word, resume uint64, consts *heap.Word) uint64

// Engine runs compiled images. Generated code never calls back into Go:
// at every site it parks its state in the heap-registered frame and
// returns a status, and the driver loop below services the site with
// the same value operations, host registry and scheduler the tree
// walker uses, then re-enters at the site's resume point.
type Engine struct {
	img   *Image
	arena *heap.Arena
	calls *hostcall.Registry
	ctx   *hostcall.Ctx
	pool  *sched.Pool
	funcs map[string]*loadedFunc
}

type loadedFunc struct {
	cf     *CompiledFunc
	enter  entryFunc
	pages  *codePages
	consts []heap.Word
}

var zeroWord heap.Word

// New maps every function of the image into executable memory. Constant
// pools are materialized in the arena once and pinned for the life of
// the engine.
func New(img *Image, arena *heap.Arena, calls *hostcall.Registry, ctx *hostcall.Ctx, pool *sched.Pool) (*Engine, error) {
	e := &Engine{
		img:   img,
		arena: arena,
		calls: calls,
		ctx:   ctx,
		pool:  pool,
		funcs: map[string]*loadedFunc{},
	}
	for _, name := range img.Order {
		cf := img.Funcs[name]
		pages, enter, err := mapCode(cf.Code)
		if err != nil {
			e.Close()
			return nil, err
		}
		lf := &loadedFunc{cf: cf, enter: enter, pages: pages}
		arena.BeginMutate()
		for _, c := range cf.Consts {
			w, cerr := arena.Encode(c)
			if cerr != nil {
				arena.EndMutate()
				e.Close()
				return nil, &Error{Func: name, Detail: cerr.Message}
			}
			arena.Pin(w)
			lf.consts = append(lf.consts, w)
		}
		arena.EndMutate()
		e.funcs[name] = lf
		slog.Debug("loaded native function",
			slog.String("func", name),
			slog.Int("code_bytes", len(cf.Code)),
			slog.Int("sites", len(cf.Sites)))
	}
	return e, nil
}

func (e *Engine) Name() string { return "native" }

// Close unmaps all executable pages and releases pinned constants.
func (e *Engine) Close() {
	for _, lf := range e.funcs {
		for _, w := range lf.consts {
			e.arena.Unpin(w)
		}
		if lf.pages != nil {
			lf.pages.Close()
		}
	}
	e.funcs = map[string]*loadedFunc{}
}

// RunFunction executes one compiled function with the given arguments.
func (e *Engine) RunFunction(name string, args []value.Value) (value.Value, *value.Err) {
	lf, ok := e.funcs[name]
	if !ok {
		return nil, value.NewErr(value.ErrUndefined, "unknown function %q", name)
	}
	cf := lf.cf
	if len(args) != cf.Params {
		return nil, value.NewErr(value.ErrBadArgument,
			"%s expects %d arguments, got %d", name, cf.Params, len(args))
	}

	slots := cf.NumRegs
	if slots == 0 {
		slots = 1
	}
	frame := &heap.Frame{Slots: make([]heap.Word, slots)}
	for i := range frame.Slots {
		frame.Slots[i] = heap.NullWord
	}
	e.arena.RegisterFrame(frame)
	defer e.arena.UnregisterFrame(frame)
	e.arena.BeginMutate()
	for i, a := range args {
		w, err := e.arena.Encode(a)
		if err != nil {
			e.arena.EndMutate()
			return nil, err
		}
		frame.Slots[i] = w
	}
	e.arena.EndMutate()

	consts := &zeroWord
	if len(lf.consts) > 0 {
		consts = &lf.consts[0]
	}

	resume := uint64(0)
	for {
		status := lf.enter(&frame.Slots[0], resume, consts)
		if status == 0 || int(status) > len(cf.Sites) {
			return nil, value.NewErr(value.ErrHostFailure,
				"%s: corrupt native exit status %d", name, status)
		}
		site := cf.Sites[status-1]
		in := site.Instr

		if site.Kind == SiteReturn {
			if in.A == ir.NoReg {
				return value.NULL, nil
			}
			return e.arena.Decode(frame.Slots[in.A])
		}

		v, err := e.service(site, frame)
		if err != nil {
			return nil, err
		}
		// The encoded result is unreachable until it lands in the
		// frame, so the store stays inside the mutation window.
		e.arena.BeginMutate()
		w, werr := e.arena.Encode(v)
		if werr == nil {
			frame.Slots[in.Dst] = w
		}
		e.arena.EndMutate()
		if werr != nil {
			return nil, werr
		}
		resume = status
		e.arena.MaybeCollect()
	}
}

// service handles one non-return exit and produces the value for the
// destination slot. It runs outside the mutation window so blocking
// kinds (calls, awaits, host calls) never hold up a collection.
func (e *Engine) service(site Site, frame *heap.Frame) (value.Value, *value.Err) {
	in := site.Instr
	switch site.Kind {
	case SiteSlow:
		return e.serviceSlow(in, frame)

	case SiteHost:
		args, err := e.valueArgs(in.Args, frame)
		if err != nil {
			return nil, err
		}
		return e.calls.Call(e.ctx, in.Sym, args)

	case SiteCall:
		args, err := e.valueArgs(in.Args, frame)
		if err != nil {
			return nil, err
		}
		return e.RunFunction(in.Sym, args)

	case SiteSpawn:
		args, err := e.valueArgs(in.Args, frame)
		if err != nil {
			return nil, err
		}
		name := in.Sym
		task := e.pool.Spawn(func() (value.Value, *value.Err) {
			return e.RunFunction(name, args)
		})
		return task, nil

	case SiteAwait:
		v, err := e.arena.Decode(frame.Slots[in.A])
		if err != nil {
			return nil, err
		}
		task, ok := v.(*sched.Task)
		if !ok {
			return nil, value.NewErr(value.ErrTypeError, "await requires TASK, got %s", v.Kind())
		}
		return task.Await()
	}
	return nil, value.NewErr(value.ErrUnsupported, "unknown site kind %s", site.Kind)
}

// serviceSlow covers every operation compiled code defers wholesale:
// allocating constructors, structural reads and anything whose operands
// fell off the tagged-integer fast path.
func (e *Engine) serviceSlow(in ir.Instr, frame *heap.Frame) (value.Value, *value.Err) {
	one := func(r ir.Reg) (value.Value, *value.Err) {
		return e.arena.Decode(frame.Slots[r])
	}

	switch in.Op {
	case ir.OpBinary:
		a, err := one(in.A)
		if err != nil {
			return nil, err
		}
		b, err := one(in.B)
		if err != nil {
			return nil, err
		}
		return value.BinaryOp(in.Sym, a, b)

	case ir.OpUnary:
		a, err := one(in.A)
		if err != nil {
			return nil, err
		}
		return value.UnaryOp(in.Sym, a)

	case ir.OpWiden:
		a, err := one(in.A)
		if err != nil {
			return nil, err
		}
		return value.Widen(a)

	case ir.OpMakeList:
		elements, err := e.valueArgs(in.Args, frame)
		if err != nil {
			return nil, err
		}
		return &value.List{Elements: elements}, nil

	case ir.OpMakeMap:
		m := value.NewMap()
		for i, k := range in.Keys {
			v, err := one(in.Args[i])
			if err != nil {
				return nil, err
			}
			m.Put(k, v)
		}
		return m, nil

	case ir.OpMakeStruct:
		s := value.NewStruct(in.Sym)
		for i, k := range in.Keys {
			v, err := one(in.Args[i])
			if err != nil {
				return nil, err
			}
			s.Set(k, v)
		}
		return s, nil

	case ir.OpMakeEnum:
		var payload value.Value
		if in.A != ir.NoReg {
			v, err := one(in.A)
			if err != nil {
				return nil, err
			}
			payload = v
		}
		return &value.Enum{Name: in.Sym, Variant: in.Keys[0], Payload: payload}, nil

	case ir.OpMakeSome:
		a, err := one(in.A)
		if err != nil {
			return nil, err
		}
		return value.Some(a), nil

	case ir.OpMakeNone:
		return value.NONE, nil

	case ir.OpMakeResult:
		a, err := one(in.A)
		if err != nil {
			return nil, err
		}
		if in.Flag {
			return value.Ok(a), nil
		}
		return value.ErrOf(a), nil

	case ir.OpField:
		a, err := one(in.A)
		if err != nil {
			return nil, err
		}
		return value.Field(a, in.Sym)

	case ir.OpIndex:
		a, err := one(in.A)
		if err != nil {
			return nil, err
		}
		b, err := one(in.B)
		if err != nil {
			return nil, err
		}
		return value.Index(a, b)

	case ir.OpVariantIs:
		a, err := one(in.A)
		if err != nil {
			return nil, err
		}
		variant, _, err := value.VariantOf(a)
		if err != nil {
			return nil, err
		}
		return value.BoolOf(variant == in.Sym), nil

	case ir.OpPayload:
		a, err := one(in.A)
		if err != nil {
			return nil, err
		}
		_, payload, err := value.VariantOf(a)
		if err != nil {
			return nil, err
		}
		if payload == nil {
			payload = value.NULL
		}
		return payload, nil

	case ir.OpBoxNew:
		a, err := one(in.A)
		if err != nil {
			return nil, err
		}
		return value.NewBox(a), nil

	case ir.OpBoxGet:
		a, err := one(in.A)
		if err != nil {
			return nil, err
		}
		box, ok := a.(*value.Box)
		if !ok {
			return nil, value.NewErr(value.ErrTypeError, "load requires BOX, got %s", a.Kind())
		}
		return box.Load(), nil

	case ir.OpBoxSet:
		a, err := one(in.A)
		if err != nil {
			return nil, err
		}
		box, ok := a.(*value.Box)
		if !ok {
			return nil, value.NewErr(value.ErrTypeError, "store requires BOX, got %s", a.Kind())
		}
		b, err := one(in.B)
		if err != nil {
			return nil, err
		}
		box.Store(b)
		return b, nil
	}
	return nil, value.NewErr(value.ErrUnsupported, "no service rule for %s", in.Op)
}

func (e *Engine) valueArgs(regs []ir.Reg, frame *heap.Frame) ([]value.Value, *value.Err) {
	args := make([]value.Value, len(regs))
	for i, r := range regs {
		v, err := e.arena.Decode(frame.Slots[r])
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}
