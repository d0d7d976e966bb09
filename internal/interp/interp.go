package interp

import (
	"log/slog"

	"sable/internal/hostcall"
	"sable/internal/ir"
	"sable/internal/sched"
	"sable/internal/value"
)

// Engine walks IR directly and defines ground-truth behavior for every
// operation: error propagation, decode/validate semantics and host-side
// effects. Whenever the engines disagree, this one is right.
type Engine struct {
	prog  *ir.Program
	calls *hostcall.Registry
	ctx   *hostcall.Ctx
	pool  *sched.Pool
}

func New(prog *ir.Program, calls *hostcall.Registry, ctx *hostcall.Ctx, pool *sched.Pool) *Engine {
	return &Engine{prog: prog, calls: calls, ctx: ctx, pool: pool}
}

func (e *Engine) Name() string { return "interp" }

// RunFunction executes one IR function with the given arguments.
func (e *Engine) RunFunction(name string, args []value.Value) (value.Value, *value.Err) {
	fn, ok := e.prog.Func(name)
	if !ok {
		return nil, value.NewErr(value.ErrUndefined, "unknown function %q", name)
	}
	if len(args) != len(fn.Params) {
		return nil, value.NewErr(value.ErrBadArgument,
			"%s expects %d arguments, got %d", name, len(fn.Params), len(args))
	}

	regs := make([]value.Value, fn.NumRegs)
	for i, a := range args {
		regs[i] = a
	}

	slog.Debug("interpreting function",
		slog.String("func", name),
		slog.Int("args", len(args)))

	block := 0
	for {
		b := fn.Blocks[block]
		for i := range b.Instrs {
			in := &b.Instrs[i]
			if in.Op.IsTerminator() {
				switch in.Op {
				case ir.OpReturn:
					if in.A == ir.NoReg {
						return value.NULL, nil
					}
					return regs[in.A], nil
				case ir.OpJump:
					block = in.Target
				case ir.OpBranch:
					if value.IsTruthy(regs[in.A]) {
						block = in.Target
					} else {
						block = in.Else
					}
				}
				break
			}
			if err := e.step(fn, in, regs); err != nil {
				return nil, err
			}
		}
	}
}

func (e *Engine) step(fn *ir.Func, in *ir.Instr, regs []value.Value) *value.Err {
	switch in.Op {
	case ir.OpConst:
		regs[in.Dst] = fn.Consts[in.ConstIdx]

	case ir.OpMove:
		regs[in.Dst] = regs[in.A]

	case ir.OpBinary:
		v, err := value.BinaryOp(in.Sym, regs[in.A], regs[in.B])
		if err != nil {
			return err
		}
		regs[in.Dst] = v

	case ir.OpUnary:
		v, err := value.UnaryOp(in.Sym, regs[in.A])
		if err != nil {
			return err
		}
		regs[in.Dst] = v

	case ir.OpWiden:
		v, err := value.Widen(regs[in.A])
		if err != nil {
			return err
		}
		regs[in.Dst] = v

	case ir.OpMakeList:
		elements := make([]value.Value, len(in.Args))
		for i, r := range in.Args {
			elements[i] = regs[r]
		}
		regs[in.Dst] = &value.List{Elements: elements}

	case ir.OpMakeMap:
		m := value.NewMap()
		for i, k := range in.Keys {
			m.Put(k, regs[in.Args[i]])
		}
		regs[in.Dst] = m

	case ir.OpMakeStruct:
		s := value.NewStruct(in.Sym)
		for i, k := range in.Keys {
			s.Set(k, regs[in.Args[i]])
		}
		regs[in.Dst] = s

	case ir.OpMakeEnum:
		var payload value.Value
		if in.A != ir.NoReg {
			payload = regs[in.A]
		}
		regs[in.Dst] = &value.Enum{Name: in.Sym, Variant: in.Keys[0], Payload: payload}

	case ir.OpMakeSome:
		regs[in.Dst] = value.Some(regs[in.A])

	case ir.OpMakeNone:
		regs[in.Dst] = value.NONE

	case ir.OpMakeResult:
		if in.Flag {
			regs[in.Dst] = value.Ok(regs[in.A])
		} else {
			regs[in.Dst] = value.ErrOf(regs[in.A])
		}

	case ir.OpField:
		v, err := value.Field(regs[in.A], in.Sym)
		if err != nil {
			return err
		}
		regs[in.Dst] = v

	case ir.OpIndex:
		v, err := value.Index(regs[in.A], regs[in.B])
		if err != nil {
			return err
		}
		regs[in.Dst] = v

	case ir.OpVariantIs:
		variant, _, err := value.VariantOf(regs[in.A])
		if err != nil {
			return err
		}
		regs[in.Dst] = value.BoolOf(variant == in.Sym)

	case ir.OpPayload:
		_, payload, err := value.VariantOf(regs[in.A])
		if err != nil {
			return err
		}
		if payload == nil {
			payload = value.NULL
		}
		regs[in.Dst] = payload

	case ir.OpCall:
		args := make([]value.Value, len(in.Args))
		for i, r := range in.Args {
			args[i] = regs[r]
		}
		v, err := e.RunFunction(in.Sym, args)
		if err != nil {
			return err
		}
		regs[in.Dst] = v

	case ir.OpHostCall:
		args := make([]value.Value, len(in.Args))
		for i, r := range in.Args {
			args[i] = regs[r]
		}
		v, err := e.calls.Call(e.ctx, in.Sym, args)
		if err != nil {
			return err
		}
		regs[in.Dst] = v

	case ir.OpSpawn:
		args := make([]value.Value, len(in.Args))
		for i, r := range in.Args {
			args[i] = regs[r]
		}
		name := in.Sym
		regs[in.Dst] = e.pool.Spawn(func() (value.Value, *value.Err) {
			return e.RunFunction(name, args)
		})

	case ir.OpAwait:
		task, ok := regs[in.A].(*sched.Task)
		if !ok {
			return value.NewErr(value.ErrTypeError, "await requires TASK, got %s", regs[in.A].Kind())
		}
		v, err := task.Await()
		if err != nil {
			return err
		}
		regs[in.Dst] = v

	case ir.OpBoxNew:
		regs[in.Dst] = value.NewBox(regs[in.A])

	case ir.OpBoxGet:
		box, ok := regs[in.A].(*value.Box)
		if !ok {
			return value.NewErr(value.ErrTypeError, "load requires BOX, got %s", regs[in.A].Kind())
		}
		regs[in.Dst] = box.Load()

	case ir.OpBoxSet:
		box, ok := regs[in.A].(*value.Box)
		if !ok {
			return value.NewErr(value.ErrTypeError, "store requires BOX, got %s", regs[in.A].Kind())
		}
		box.Store(regs[in.B])
		regs[in.Dst] = regs[in.B]

	default:
		return value.NewErr(value.ErrUnsupported, "no interpretation rule for %s", in.Op)
	}
	return nil
}
