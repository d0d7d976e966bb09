package lower

import (
	"fmt"
	"log/slog"

	"sable/internal/ast"
	"sable/internal/ir"
	"sable/internal/value"
)

// Lowering converts the canonical program into IR. Every control-flow
// construct becomes explicit block transfers and every coercion is
// already an explicit instruction; identical input yields byte-identical
// IR (checked against the disassembly). A construct with no IR encoding
// fails the whole lowering, never a silent approximation.

// Error identifies the construct lowering could not encode.
type Error struct {
	Construct string
	Func      string
	Detail    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("lowering failed in %s: no IR encoding for %s: %s", e.Func, e.Construct, e.Detail)
}

// Program lowers every function of the canonical program.
func Program(prog *ast.Program) (*ir.Program, error) {
	out := ir.NewProgram(prog.Name)
	for _, fn := range prog.Funcs {
		lowered, err := Func(fn)
		if err != nil {
			return nil, err
		}
		out.Add(lowered)
		slog.Debug("lowered function",
			slog.String("func", fn.Name),
			slog.Int("blocks", len(lowered.Blocks)),
			slog.Int("regs", lowered.NumRegs))
	}
	return out, nil
}

// Func lowers a single function declaration.
func Func(decl *ast.FuncDecl) (*ir.Func, error) {
	fl := &funcLowerer{
		fn:    &ir.Func{Name: decl.Name, Params: decl.Params},
		scope: map[string]ir.Reg{},
	}
	for _, p := range decl.Params {
		fl.scope[p] = fl.newReg()
	}
	fl.newBlock()
	if err := fl.stmts(decl.Body); err != nil {
		return nil, err
	}
	if !fl.terminated() {
		fl.emit(ir.Instr{Op: ir.OpReturn, A: ir.NoReg})
	}
	fl.fn.NumRegs = fl.nextReg
	return fl.fn, nil
}

type funcLowerer struct {
	fn      *ir.Func
	cur     int
	nextReg int
	scope   map[string]ir.Reg
}

func (fl *funcLowerer) newReg() ir.Reg {
	r := ir.Reg(fl.nextReg)
	fl.nextReg++
	return r
}

func (fl *funcLowerer) newBlock() int {
	fl.fn.Blocks = append(fl.fn.Blocks, &ir.Block{})
	fl.cur = len(fl.fn.Blocks) - 1
	return fl.cur
}

func (fl *funcLowerer) emit(in ir.Instr) {
	b := fl.fn.Blocks[fl.cur]
	b.Instrs = append(b.Instrs, in)
}

func (fl *funcLowerer) emitAt(block int, in ir.Instr) {
	b := fl.fn.Blocks[block]
	b.Instrs = append(b.Instrs, in)
}

func (fl *funcLowerer) terminated() bool {
	b := fl.fn.Blocks[fl.cur]
	if len(b.Instrs) == 0 {
		return false
	}
	return b.Instrs[len(b.Instrs)-1].Op.IsTerminator()
}

func (fl *funcLowerer) addConst(v value.Value) int {
	fl.fn.Consts = append(fl.fn.Consts, v)
	return len(fl.fn.Consts) - 1
}

func (fl *funcLowerer) failf(construct, format string, a ...interface{}) error {
	return &Error{Construct: construct, Func: fl.fn.Name, Detail: fmt.Sprintf(format, a...)}
}

func (fl *funcLowerer) stmts(body []ast.Stmt) error {
	for _, s := range body {
		if err := fl.stmt(s); err != nil {
			return err
		}
		if fl.terminated() {
			// Unreachable trailing statements were rejected upstream;
			// stop either way so blocks keep a single terminator.
			return nil
		}
	}
	return nil
}

func (fl *funcLowerer) stmt(s ast.Stmt) error {
	switch s := s.(type) {
	case *ast.LetStmt:
		r, err := fl.expr(s.Value)
		if err != nil {
			return err
		}
		dst := fl.newReg()
		fl.emit(ir.Instr{Op: ir.OpMove, Dst: dst, A: r})
		fl.scope[s.Name] = dst
		return nil

	case *ast.AssignStmt:
		dst, ok := fl.scope[s.Name]
		if !ok {
			return fl.failf("assignment", "assignment to undeclared binding %q", s.Name)
		}
		r, err := fl.expr(s.Value)
		if err != nil {
			return err
		}
		fl.emit(ir.Instr{Op: ir.OpMove, Dst: dst, A: r})
		return nil

	case *ast.ExprStmt:
		_, err := fl.expr(s.Value)
		return err

	case *ast.ReturnStmt:
		r := ir.NoReg
		if s.Value != nil {
			var err error
			r, err = fl.expr(s.Value)
			if err != nil {
				return err
			}
		}
		fl.emit(ir.Instr{Op: ir.OpReturn, A: r})
		return nil

	case *ast.IfStmt:
		cond, err := fl.expr(s.Cond)
		if err != nil {
			return err
		}
		condBlock := fl.cur

		thenBlock := fl.newBlock()
		if err := fl.stmts(s.Then); err != nil {
			return err
		}
		thenEnd := fl.cur
		thenDone := fl.terminated()

		elseBlock := fl.newBlock()
		if err := fl.stmts(s.Else); err != nil {
			return err
		}
		elseEnd := fl.cur
		elseDone := fl.terminated()

		endBlock := fl.newBlock()
		fl.emitAt(condBlock, ir.Instr{Op: ir.OpBranch, A: cond, Target: thenBlock, Else: elseBlock})
		if !thenDone {
			fl.emitAt(thenEnd, ir.Instr{Op: ir.OpJump, Target: endBlock})
		}
		if !elseDone {
			fl.emitAt(elseEnd, ir.Instr{Op: ir.OpJump, Target: endBlock})
		}
		return nil

	case *ast.WhileStmt:
		entry := fl.cur
		condBlock := fl.newBlock()
		fl.emitAt(entry, ir.Instr{Op: ir.OpJump, Target: condBlock})

		cond, err := fl.expr(s.Cond)
		if err != nil {
			return err
		}
		condEnd := fl.cur

		bodyBlock := fl.newBlock()
		if err := fl.stmts(s.Body); err != nil {
			return err
		}
		if !fl.terminated() {
			fl.emit(ir.Instr{Op: ir.OpJump, Target: condBlock})
		}

		endBlock := fl.newBlock()
		fl.emitAt(condEnd, ir.Instr{Op: ir.OpBranch, A: cond, Target: bodyBlock, Else: endBlock})
		return nil

	case *ast.MatchStmt:
		return fl.match(s)
	}
	return fl.failf("statement", "unknown statement %T", s)
}

func (fl *funcLowerer) match(s *ast.MatchStmt) error {
	subject, err := fl.expr(s.Subject)
	if err != nil {
		return err
	}

	// One test block per arm, falling through to the next test.
	type armBlocks struct {
		test int
		body int
	}
	entry := fl.cur
	arms := make([]armBlocks, len(s.Arms))
	var bodyEnds []int

	for i := range s.Arms {
		arms[i].test = fl.newBlock()
		cond := fl.newReg()
		fl.emit(ir.Instr{Op: ir.OpVariantIs, Dst: cond, A: subject, Sym: s.Arms[i].Variant})
		// Branch target filled in after the body block exists.
		fl.emit(ir.Instr{Op: ir.OpBranch, A: cond})
	}

	for i, arm := range s.Arms {
		arms[i].body = fl.newBlock()
		if arm.Bind != "" {
			bind := fl.newReg()
			fl.emit(ir.Instr{Op: ir.OpPayload, Dst: bind, A: subject})
			fl.scope[arm.Bind] = bind
		}
		if err := fl.stmts(arm.Body); err != nil {
			return err
		}
		if !fl.terminated() {
			bodyEnds = append(bodyEnds, fl.cur)
		}
	}

	defaultBlock := fl.newBlock()
	if err := fl.stmts(s.Default); err != nil {
		return err
	}
	if !fl.terminated() {
		bodyEnds = append(bodyEnds, fl.cur)
	}

	endBlock := fl.newBlock()
	first := defaultBlock
	if len(arms) > 0 {
		first = arms[0].test
	}
	fl.emitAt(entry, ir.Instr{Op: ir.OpJump, Target: first})
	for i := range arms {
		next := defaultBlock
		if i+1 < len(arms) {
			next = arms[i+1].test
		}
		test := fl.fn.Blocks[arms[i].test]
		term := &test.Instrs[len(test.Instrs)-1]
		term.Target = arms[i].body
		term.Else = next
	}
	for _, b := range bodyEnds {
		fl.emitAt(b, ir.Instr{Op: ir.OpJump, Target: endBlock})
	}
	return nil
}

func (fl *funcLowerer) expr(e ast.Expr) (ir.Reg, error) {
	switch e := e.(type) {
	case *ast.NullLit:
		return fl.constReg(value.NULL), nil
	case *ast.BoolLit:
		return fl.constReg(value.BoolOf(e.Value)), nil
	case *ast.IntLit:
		return fl.constReg(&value.Int{Value: e.Value}), nil
	case *ast.FloatLit:
		return fl.constReg(&value.Float{Value: e.Value}), nil
	case *ast.StrLit:
		return fl.constReg(&value.Str{Value: e.Value}), nil
	case *ast.BytesLit:
		return fl.constReg(&value.Bytes{Value: e.Value}), nil

	case *ast.VarRef:
		r, ok := fl.scope[e.Name]
		if !ok {
			return ir.NoReg, fl.failf("identifier", "reference to undeclared binding %q", e.Name)
		}
		return r, nil

	case *ast.BinaryExpr:
		if e.Op == "&&" || e.Op == "||" {
			return fl.shortCircuit(e)
		}
		left, err := fl.expr(e.Left)
		if err != nil {
			return ir.NoReg, err
		}
		right, err := fl.expr(e.Right)
		if err != nil {
			return ir.NoReg, err
		}
		dst := fl.newReg()
		fl.emit(ir.Instr{Op: ir.OpBinary, Dst: dst, A: left, B: right, Sym: e.Op})
		return dst, nil

	case *ast.UnaryExpr:
		operand, err := fl.expr(e.Operand)
		if err != nil {
			return ir.NoReg, err
		}
		dst := fl.newReg()
		fl.emit(ir.Instr{Op: ir.OpUnary, Dst: dst, A: operand, Sym: e.Op})
		return dst, nil

	case *ast.WidenExpr:
		operand, err := fl.expr(e.Operand)
		if err != nil {
			return ir.NoReg, err
		}
		dst := fl.newReg()
		fl.emit(ir.Instr{Op: ir.OpWiden, Dst: dst, A: operand})
		return dst, nil

	case *ast.ListExpr:
		args, err := fl.exprs(e.Elements)
		if err != nil {
			return ir.NoReg, err
		}
		dst := fl.newReg()
		fl.emit(ir.Instr{Op: ir.OpMakeList, Dst: dst, Args: args})
		return dst, nil

	case *ast.MapExpr:
		args, err := fl.exprs(e.Values)
		if err != nil {
			return ir.NoReg, err
		}
		dst := fl.newReg()
		fl.emit(ir.Instr{Op: ir.OpMakeMap, Dst: dst, Args: args, Keys: e.Keys})
		return dst, nil

	case *ast.StructExpr:
		args, err := fl.exprs(e.Values)
		if err != nil {
			return ir.NoReg, err
		}
		dst := fl.newReg()
		fl.emit(ir.Instr{Op: ir.OpMakeStruct, Dst: dst, Args: args, Sym: e.Name, Keys: e.Fields})
		return dst, nil

	case *ast.EnumExpr:
		payload := ir.NoReg
		if e.Payload != nil {
			var err error
			payload, err = fl.expr(e.Payload)
			if err != nil {
				return ir.NoReg, err
			}
		}
		dst := fl.newReg()
		fl.emit(ir.Instr{Op: ir.OpMakeEnum, Dst: dst, A: payload, Sym: e.Name, Keys: []string{e.Variant}})
		return dst, nil

	case *ast.SomeExpr:
		v, err := fl.expr(e.Value)
		if err != nil {
			return ir.NoReg, err
		}
		dst := fl.newReg()
		fl.emit(ir.Instr{Op: ir.OpMakeSome, Dst: dst, A: v})
		return dst, nil

	case *ast.NoneExpr:
		dst := fl.newReg()
		fl.emit(ir.Instr{Op: ir.OpMakeNone, Dst: dst})
		return dst, nil

	case *ast.ResultExpr:
		v, err := fl.expr(e.Value)
		if err != nil {
			return ir.NoReg, err
		}
		dst := fl.newReg()
		fl.emit(ir.Instr{Op: ir.OpMakeResult, Dst: dst, A: v, Flag: e.IsOk})
		return dst, nil

	case *ast.FieldExpr:
		target, err := fl.expr(e.Target)
		if err != nil {
			return ir.NoReg, err
		}
		dst := fl.newReg()
		fl.emit(ir.Instr{Op: ir.OpField, Dst: dst, A: target, Sym: e.Name})
		return dst, nil

	case *ast.IndexExpr:
		target, err := fl.expr(e.Target)
		if err != nil {
			return ir.NoReg, err
		}
		index, err := fl.expr(e.Index)
		if err != nil {
			return ir.NoReg, err
		}
		dst := fl.newReg()
		fl.emit(ir.Instr{Op: ir.OpIndex, Dst: dst, A: target, B: index})
		return dst, nil

	case *ast.CallExpr:
		args, err := fl.exprs(e.Args)
		if err != nil {
			return ir.NoReg, err
		}
		dst := fl.newReg()
		fl.emit(ir.Instr{Op: ir.OpCall, Dst: dst, Args: args, Sym: e.Func})
		return dst, nil

	case *ast.HostCallExpr:
		args, err := fl.exprs(e.Args)
		if err != nil {
			return ir.NoReg, err
		}
		dst := fl.newReg()
		fl.emit(ir.Instr{Op: ir.OpHostCall, Dst: dst, Args: args, Sym: e.Name})
		return dst, nil

	case *ast.SpawnExpr:
		args, err := fl.exprs(e.Args)
		if err != nil {
			return ir.NoReg, err
		}
		dst := fl.newReg()
		fl.emit(ir.Instr{Op: ir.OpSpawn, Dst: dst, Args: args, Sym: e.Func})
		return dst, nil

	case *ast.AwaitExpr:
		task, err := fl.expr(e.Task)
		if err != nil {
			return ir.NoReg, err
		}
		dst := fl.newReg()
		fl.emit(ir.Instr{Op: ir.OpAwait, Dst: dst, A: task})
		return dst, nil

	case *ast.BoxNewExpr:
		v, err := fl.expr(e.Value)
		if err != nil {
			return ir.NoReg, err
		}
		dst := fl.newReg()
		fl.emit(ir.Instr{Op: ir.OpBoxNew, Dst: dst, A: v})
		return dst, nil

	case *ast.BoxGetExpr:
		b, err := fl.expr(e.Box)
		if err != nil {
			return ir.NoReg, err
		}
		dst := fl.newReg()
		fl.emit(ir.Instr{Op: ir.OpBoxGet, Dst: dst, A: b})
		return dst, nil

	case *ast.BoxSetExpr:
		b, err := fl.expr(e.Box)
		if err != nil {
			return ir.NoReg, err
		}
		v, err := fl.expr(e.Value)
		if err != nil {
			return ir.NoReg, err
		}
		dst := fl.newReg()
		fl.emit(ir.Instr{Op: ir.OpBoxSet, Dst: dst, A: b, B: v})
		return dst, nil
	}
	return ir.NoReg, fl.failf("expression", "unknown expression %T", e)
}

// shortCircuit lowers && and || into explicit branches so neither
// backend ever evaluates the right operand eagerly.
func (fl *funcLowerer) shortCircuit(e *ast.BinaryExpr) (ir.Reg, error) {
	left, err := fl.expr(e.Left)
	if err != nil {
		return ir.NoReg, err
	}
	dst := fl.newReg()
	fl.emit(ir.Instr{Op: ir.OpMove, Dst: dst, A: left})
	condBlock := fl.cur

	rightBlock := fl.newBlock()
	right, err := fl.expr(e.Right)
	if err != nil {
		return ir.NoReg, err
	}
	fl.emit(ir.Instr{Op: ir.OpMove, Dst: dst, A: right})
	rightEnd := fl.cur

	endBlock := fl.newBlock()
	if e.Op == "&&" {
		fl.emitAt(condBlock, ir.Instr{Op: ir.OpBranch, A: left, Target: rightBlock, Else: endBlock})
	} else {
		fl.emitAt(condBlock, ir.Instr{Op: ir.OpBranch, A: left, Target: endBlock, Else: rightBlock})
	}
	fl.emitAt(rightEnd, ir.Instr{Op: ir.OpJump, Target: endBlock})
	return dst, nil
}

func (fl *funcLowerer) exprs(es []ast.Expr) ([]ir.Reg, error) {
	regs := make([]ir.Reg, 0, len(es))
	for _, e := range es {
		r, err := fl.expr(e)
		if err != nil {
			return nil, err
		}
		regs = append(regs, r)
	}
	return regs, nil
}

func (fl *funcLowerer) constReg(v value.Value) ir.Reg {
	dst := fl.newReg()
	fl.emit(ir.Instr{Op: ir.OpConst, Dst: dst, ConstIdx: fl.addConst(v)})
	return dst
}
