package ir

import "sable/internal/value"

// The IR is the single instruction-level definition of what a program
// means. It is backend-agnostic: the interpreter executes it directly
// and the native code generator compiles it, and neither may
// special-case anything the lowering did not make explicit.

type Opcode int

const (
	OpConst      Opcode = iota // dst = consts[constIdx]
	OpMove                     // dst = a
	OpBinary                   // dst = a <sym> b
	OpUnary                    // dst = <sym> a
	OpWiden                    // dst = float(a), the only numeric coercion
	OpMakeList                 // dst = [args...]
	OpMakeMap                  // dst = {keys[i]: args[i]}
	OpMakeStruct               // dst = sym{keys[i]: args[i]}
	OpMakeEnum                 // dst = sym.keys[0](a), a = NoReg for bare variants
	OpMakeSome                 // dst = Some(a)
	OpMakeNone                 // dst = None
	OpMakeResult               // dst = Ok(a) / Err(a) per flag
	OpField                    // dst = a.sym
	OpIndex                    // dst = a[b]
	OpVariantIs                // dst = variant(a) == sym
	OpPayload                  // dst = payload(a)
	OpCall                     // dst = sym(args...)
	OpHostCall                 // dst = host sym(args...)
	OpSpawn                    // dst = spawn sym(args...)
	OpAwait                    // dst = await a
	OpBoxNew                   // dst = box(a)
	OpBoxGet                   // dst = load a
	OpBoxSet                   // store b into box a, dst = b

	// Terminators.
	OpJump   // goto target
	OpBranch // if a goto target else goto else
	OpReturn // return a (NoReg returns null)
)

var opcodeNames = map[Opcode]string{
	OpConst:      "const",
	OpMove:       "move",
	OpBinary:     "binary",
	OpUnary:      "unary",
	OpWiden:      "widen",
	OpMakeList:   "make_list",
	OpMakeMap:    "make_map",
	OpMakeStruct: "make_struct",
	OpMakeEnum:   "make_enum",
	OpMakeSome:   "make_some",
	OpMakeNone:   "make_none",
	OpMakeResult: "make_result",
	OpField:      "field",
	OpIndex:      "index",
	OpVariantIs:  "variant_is",
	OpPayload:    "payload",
	OpCall:       "call",
	OpHostCall:   "host_call",
	OpSpawn:      "spawn",
	OpAwait:      "await",
	OpBoxNew:     "box_new",
	OpBoxGet:     "box_get",
	OpBoxSet:     "box_set",
	OpJump:       "jump",
	OpBranch:     "branch",
	OpReturn:     "return",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "op?"
}

// IsTerminator reports whether the opcode ends a basic block.
func (op Opcode) IsTerminator() bool {
	switch op {
	case OpJump, OpBranch, OpReturn:
		return true
	}
	return false
}

// Reg is a virtual register index within a function frame.
type Reg int

// NoReg marks an absent operand.
const NoReg Reg = -1

type Instr struct {
	Op       Opcode
	Dst      Reg
	A        Reg
	B        Reg
	Args     []Reg
	Sym      string
	Keys     []string
	ConstIdx int
	Flag     bool
	Target   int
	Else     int
}

// Block is an ordered instruction run whose last instruction is the
// sole terminator.
type Block struct {
	Label  string
	Instrs []Instr
}

func (b *Block) Terminator() Instr {
	return b.Instrs[len(b.Instrs)-1]
}

type Func struct {
	Name    string
	Params  []string
	NumRegs int
	Consts  []value.Value
	Blocks  []*Block
}

type Program struct {
	Name  string
	Funcs map[string]*Func
	// Order preserves declaration order for deterministic rendering.
	Order []string
}

func NewProgram(name string) *Program {
	return &Program{Name: name, Funcs: map[string]*Func{}}
}

func (p *Program) Add(f *Func) {
	if _, exists := p.Funcs[f.Name]; !exists {
		p.Order = append(p.Order, f.Name)
	}
	p.Funcs[f.Name] = f
}

func (p *Program) Func(name string) (*Func, bool) {
	f, ok := p.Funcs[name]
	return f, ok
}
