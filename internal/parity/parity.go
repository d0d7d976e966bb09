package parity

import (
	"fmt"
	"log/slog"

	"sable/internal/heap"
	"sable/internal/hostcall"
	"sable/internal/interp"
	"sable/internal/ir"
	"sable/internal/native"
	"sable/internal/sched"
	"sable/internal/value"
)

// The tree walker is the reference engine. When outcomes differ the
// compiled engine is wrong by definition, whatever the two outputs
// look like, so divergences are reported reference-versus-candidate
// and never the other way around.

// Engine is the execution surface both engines expose.
type Engine interface {
	Name() string
	RunFunction(name string, args []value.Value) (value.Value, *value.Err)
}

// Outcome is everything observable from one run: the returned value or
// error, and the ordered side-effect log.
type Outcome struct {
	Value   value.Value
	Err     *value.Err
	Effects []string
}

// Divergence is one observable difference between engines.
type Divergence struct {
	Case      string
	Field     string
	Reference string
	Candidate string
}

func (d Divergence) String() string {
	return fmt.Sprintf("%s: %s differs: interp=%q native=%q",
		d.Case, d.Field, d.Reference, d.Candidate)
}

func render(v value.Value) string {
	if v == nil {
		return "<none>"
	}
	return v.Inspect()
}

// Diff compares a candidate outcome against the reference.
func Diff(name string, ref, cand Outcome) []Divergence {
	var divs []Divergence
	add := func(field, r, c string) {
		divs = append(divs, Divergence{Case: name, Field: field, Reference: r, Candidate: c})
	}

	switch {
	case ref.Err == nil && cand.Err != nil:
		add("error", "<ok>", cand.Err.Message)
	case ref.Err != nil && cand.Err == nil:
		add("error", ref.Err.Message, "<ok>")
	case ref.Err != nil && cand.Err != nil:
		if ref.Err.ErrKind != cand.Err.ErrKind {
			add("error_kind", ref.Err.ErrKind, cand.Err.ErrKind)
		}
		if ref.Err.Message != cand.Err.Message {
			add("error_message", ref.Err.Message, cand.Err.Message)
		}
	default:
		if !value.Equal(ref.Value, cand.Value) {
			add("value", render(ref.Value), render(cand.Value))
		}
	}

	if len(ref.Effects) != len(cand.Effects) {
		add("effect_count",
			fmt.Sprintf("%d", len(ref.Effects)),
			fmt.Sprintf("%d", len(cand.Effects)))
	}
	n := len(ref.Effects)
	if len(cand.Effects) < n {
		n = len(cand.Effects)
	}
	for i := 0; i < n; i++ {
		if ref.Effects[i] != cand.Effects[i] {
			add(fmt.Sprintf("effect[%d]", i), ref.Effects[i], cand.Effects[i])
		}
	}
	return divs
}

// Runner runs the same lowered program on both engines with isolated
// host contexts, so effect logs and handle tables cannot bleed across.
type Runner struct {
	Prog    *ir.Program
	Calls   *hostcall.Registry
	Workers int
	// Env overrides environment lookups for hermetic runs.
	Env func(string) (string, bool)
}

func (r *Runner) registry() *hostcall.Registry {
	if r.Calls != nil {
		return r.Calls
	}
	return hostcall.Default()
}

func (r *Runner) newCtx() *hostcall.Ctx {
	ctx := hostcall.NewCtx()
	ctx.Env = r.Env
	return ctx
}

// RunInterp executes the entry on the reference engine.
func (r *Runner) RunInterp(entry string, args []value.Value) Outcome {
	ctx := r.newCtx()
	pool := sched.NewPool(r.Workers)
	defer pool.Drain()
	eng := interp.New(r.Prog, r.registry(), ctx, pool)
	v, err := eng.RunFunction(entry, args)
	pool.Drain()
	return Outcome{Value: v, Err: err, Effects: ctx.Effects.Entries()}
}

// RunNative compiles and executes the entry on the compiled engine. A
// compile or load failure is an infrastructure error, not an outcome.
func (r *Runner) RunNative(entry string, args []value.Value) (Outcome, error) {
	img, err := native.Compile(r.Prog)
	if err != nil {
		return Outcome{}, err
	}
	ctx := r.newCtx()
	pool := sched.NewPool(r.Workers)
	defer pool.Drain()
	arena := heap.NewArena()
	eng, err := native.New(img, arena, r.registry(), ctx, pool)
	if err != nil {
		return Outcome{}, err
	}
	defer eng.Close()
	v, verr := eng.RunFunction(entry, args)
	pool.Drain()
	return Outcome{Value: v, Err: verr, Effects: ctx.Effects.Entries()}, nil
}

// Check runs the entry on both engines and reports every divergence.
func (r *Runner) Check(entry string, args []value.Value) ([]Divergence, error) {
	ref := r.RunInterp(entry, args)
	cand, err := r.RunNative(entry, args)
	if err != nil {
		return nil, err
	}
	divs := Diff(entry, ref, cand)
	if len(divs) > 0 {
		for _, d := range divs {
			slog.Warn("engine divergence", slog.String("detail", d.String()))
		}
	}
	return divs, nil
}
