package ir

import (
	"fmt"
	"io"
	"strings"
)

// Disassembler renders IR as a stable text form. Lowering determinism
// is checked against this rendering: identical canonical input must
// produce byte-identical disassembly.
type Disassembler struct {
	w io.Writer
}

func NewDisassembler(w io.Writer) *Disassembler {
	return &Disassembler{w: w}
}

func (d *Disassembler) Program(p *Program) {
	for i, name := range p.Order {
		if i > 0 {
			fmt.Fprintln(d.w)
		}
		d.Func(p.Funcs[name])
	}
}

func (d *Disassembler) Func(f *Func) {
	fmt.Fprintf(d.w, "func %s(%s) regs=%d\n", f.Name, strings.Join(f.Params, ", "), f.NumRegs)
	for i, c := range f.Consts {
		fmt.Fprintf(d.w, "  const %d = %s\n", i, c.Inspect())
	}
	for i, b := range f.Blocks {
		label := b.Label
		if label == "" {
			label = fmt.Sprintf("b%d", i)
		}
		fmt.Fprintf(d.w, "%s:\n", label)
		for _, in := range b.Instrs {
			fmt.Fprintf(d.w, "  %s\n", FormatInstr(in))
		}
	}
}

// FormatInstr renders one instruction.
func FormatInstr(in Instr) string {
	var out strings.Builder
	switch in.Op {
	case OpConst:
		fmt.Fprintf(&out, "r%d = const %d", in.Dst, in.ConstIdx)
	case OpMove:
		fmt.Fprintf(&out, "r%d = r%d", in.Dst, in.A)
	case OpBinary:
		fmt.Fprintf(&out, "r%d = r%d %s r%d", in.Dst, in.A, in.Sym, in.B)
	case OpUnary:
		fmt.Fprintf(&out, "r%d = %s r%d", in.Dst, in.Sym, in.A)
	case OpWiden:
		fmt.Fprintf(&out, "r%d = widen r%d", in.Dst, in.A)
	case OpMakeList:
		fmt.Fprintf(&out, "r%d = make_list [%s]", in.Dst, formatRegs(in.Args))
	case OpMakeMap:
		fmt.Fprintf(&out, "r%d = make_map {%s}", in.Dst, formatPairs(in.Keys, in.Args))
	case OpMakeStruct:
		fmt.Fprintf(&out, "r%d = make_struct %s{%s}", in.Dst, in.Sym, formatPairs(in.Keys, in.Args))
	case OpMakeEnum:
		variant := ""
		if len(in.Keys) > 0 {
			variant = in.Keys[0]
		}
		if in.A == NoReg {
			fmt.Fprintf(&out, "r%d = make_enum %s.%s", in.Dst, in.Sym, variant)
		} else {
			fmt.Fprintf(&out, "r%d = make_enum %s.%s(r%d)", in.Dst, in.Sym, variant, in.A)
		}
	case OpMakeSome:
		fmt.Fprintf(&out, "r%d = some r%d", in.Dst, in.A)
	case OpMakeNone:
		fmt.Fprintf(&out, "r%d = none", in.Dst)
	case OpMakeResult:
		tag := "err"
		if in.Flag {
			tag = "ok"
		}
		fmt.Fprintf(&out, "r%d = %s r%d", in.Dst, tag, in.A)
	case OpField:
		fmt.Fprintf(&out, "r%d = r%d.%s", in.Dst, in.A, in.Sym)
	case OpIndex:
		fmt.Fprintf(&out, "r%d = r%d[r%d]", in.Dst, in.A, in.B)
	case OpVariantIs:
		fmt.Fprintf(&out, "r%d = r%d is %s", in.Dst, in.A, in.Sym)
	case OpPayload:
		fmt.Fprintf(&out, "r%d = payload r%d", in.Dst, in.A)
	case OpCall:
		fmt.Fprintf(&out, "r%d = call %s(%s)", in.Dst, in.Sym, formatRegs(in.Args))
	case OpHostCall:
		fmt.Fprintf(&out, "r%d = host %s(%s)", in.Dst, in.Sym, formatRegs(in.Args))
	case OpSpawn:
		fmt.Fprintf(&out, "r%d = spawn %s(%s)", in.Dst, in.Sym, formatRegs(in.Args))
	case OpAwait:
		fmt.Fprintf(&out, "r%d = await r%d", in.Dst, in.A)
	case OpBoxNew:
		fmt.Fprintf(&out, "r%d = box r%d", in.Dst, in.A)
	case OpBoxGet:
		fmt.Fprintf(&out, "r%d = load r%d", in.Dst, in.A)
	case OpBoxSet:
		fmt.Fprintf(&out, "r%d = store r%d <- r%d", in.Dst, in.A, in.B)
	case OpJump:
		fmt.Fprintf(&out, "jump b%d", in.Target)
	case OpBranch:
		fmt.Fprintf(&out, "branch r%d ? b%d : b%d", in.A, in.Target, in.Else)
	case OpReturn:
		if in.A == NoReg {
			out.WriteString("return")
		} else {
			fmt.Fprintf(&out, "return r%d", in.A)
		}
	default:
		fmt.Fprintf(&out, "%s ?", in.Op)
	}
	return out.String()
}

func formatRegs(regs []Reg) string {
	parts := make([]string, len(regs))
	for i, r := range regs {
		parts[i] = fmt.Sprintf("r%d", r)
	}
	return strings.Join(parts, ", ")
}

func formatPairs(keys []string, regs []Reg) string {
	parts := make([]string, 0, len(keys))
	for i, k := range keys {
		if i < len(regs) {
			parts = append(parts, fmt.Sprintf("%s: r%d", k, regs[i]))
		}
	}
	return strings.Join(parts, ", ")
}

// Dump renders a whole program to a string.
func Dump(p *Program) string {
	var out strings.Builder
	NewDisassembler(&out).Program(p)
	return out.String()
}
