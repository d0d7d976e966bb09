package native

import (
	"fmt"

	"sable/internal/heap"
	"sable/internal/ir"
)

// The code generator compiles IR to amd64 under a strict division of
// labor: tagged-integer arithmetic and control flow run inline, and
// everything else leaves through an exit site that the driver services
// with the same value operations the tree walker uses. A function
// containing an operation with no generation rule fails to compile as
// a whole; there is no partial fallback inside a function.
//
// Calling convention for generated code, matching the Go internal amd64
// ABI so the driver can enter it through a function value:
//
//	RAX  frame base (*heap.Word), one slot per virtual register
//	RBX  resume index, 0 for function entry
//	RCX  constant pool base (*heap.Word)
//	RAX  result: exit status, site index + 1
//
// The frame base and constant base are held in R12 and R13 for the
// duration. Values live in frame slots between instructions, so every
// live value is visible to the collector at every exit.

// Error reports a function the generator refused to compile.
type Error struct {
	Func   string
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("native compile of %s: %s", e.Func, e.Detail)
}

// Compile translates every function of the program. It is
// deterministic: the same program yields a byte-identical image.
func Compile(prog *ir.Program) (*Image, error) {
	img := &Image{Funcs: map[string]*CompiledFunc{}}
	for _, name := range prog.Order {
		cf, err := compileFunc(prog.Funcs[name])
		if err != nil {
			return nil, err
		}
		img.Funcs[name] = cf
		img.Order = append(img.Order, name)
	}
	return img, nil
}

type funcCompiler struct {
	asm   assembler
	fn    *ir.Func
	sites []Site
	// resume[i] is the code offset to re-enter after site i-1; index 0
	// is the body start.
	resume []int
	// blockOffsets[b] is the code offset of block b once emitted.
	blockOffsets []int
	// blockFixups are rel32 displacements waiting on a block offset.
	blockFixups []blockFixup
}

type blockFixup struct {
	fix   int
	block int
}

func compileFunc(f *ir.Func) (*CompiledFunc, error) {
	c := &funcCompiler{fn: f, blockOffsets: make([]int, len(f.Blocks))}

	c.asm.movRR(regR12, regRAX)
	c.asm.movRR(regR13, regRCX)
	c.asm.testRR(regRBX, regRBX)
	dispatchFix := c.asm.jccRel32(ccNE)
	c.resume = append(c.resume, c.asm.here())

	for bi, blk := range f.Blocks {
		c.blockOffsets[bi] = c.asm.here()
		for _, in := range blk.Instrs {
			if err := c.instr(in); err != nil {
				return nil, &Error{Func: f.Name, Detail: err.Error()}
			}
		}
	}

	for _, bf := range c.blockFixups {
		c.asm.patchRel32(bf.fix, c.blockOffsets[bf.block])
	}

	// Resume dispatch, jumped to when RBX is nonzero on entry.
	c.asm.patchRel32(dispatchFix, c.asm.here())
	for i := 1; i < len(c.resume); i++ {
		c.asm.cmpRI32(regRBX, int32(i))
		fix := c.asm.jccRel32(ccE)
		c.asm.patchRel32(fix, c.resume[i])
	}
	// Out-of-range resume: status 0, which the driver rejects.
	c.asm.movRI(regRAX, 0)
	c.asm.ret()

	return &CompiledFunc{
		Name:    f.Name,
		Params:  len(f.Params),
		NumRegs: f.NumRegs,
		Code:    c.asm.code,
		Consts:  f.Consts,
		Sites:   c.sites,
	}, nil
}

func (c *funcCompiler) slot(r ir.Reg) int32 { return int32(r) * 8 }

func (c *funcCompiler) load(dst reg, r ir.Reg) { c.asm.movRM(dst, regR12, c.slot(r)) }

func (c *funcCompiler) store(r ir.Reg, src reg) { c.asm.movMR(regR12, c.slot(r), src) }

// exit emits a site exit: status in RAX, then return to the driver.
// The code offset after the exit is the site's resume point.
func (c *funcCompiler) exit(kind SiteKind, in ir.Instr) {
	c.sites = append(c.sites, Site{Kind: kind, Instr: in})
	c.asm.movRI(regRAX, uint64(len(c.sites)))
	c.asm.ret()
	c.resume = append(c.resume, c.asm.here())
}

// jumpTo emits an unconditional jump to a block, deferred until the
// block's offset is known.
func (c *funcCompiler) jumpTo(block int) {
	fix := c.asm.jmpRel32()
	c.blockFixups = append(c.blockFixups, blockFixup{fix, block})
}

func (c *funcCompiler) instr(in ir.Instr) error {
	switch in.Op {
	case ir.OpConst:
		c.asm.movRM(regRAX, regR13, int32(in.ConstIdx)*8)
		c.store(in.Dst, regRAX)

	case ir.OpMove:
		c.load(regRAX, in.A)
		c.store(in.Dst, regRAX)

	case ir.OpBinary:
		c.binary(in)

	case ir.OpUnary:
		c.unary(in)

	case ir.OpJump:
		c.jumpTo(in.Target)

	case ir.OpBranch:
		// Falsy words are exactly false and null.
		c.load(regRAX, in.A)
		c.asm.cmpRI8(regRAX, int8(heap.FalseWord))
		elseFix1 := c.asm.jccRel32(ccE)
		c.asm.cmpRI8(regRAX, int8(heap.NullWord))
		elseFix2 := c.asm.jccRel32(ccE)
		c.jumpTo(in.Target)
		c.blockFixups = append(c.blockFixups,
			blockFixup{elseFix1, in.Else},
			blockFixup{elseFix2, in.Else})

	case ir.OpReturn:
		c.exit(SiteReturn, in)

	case ir.OpHostCall:
		c.exit(SiteHost, in)

	case ir.OpCall:
		c.exit(SiteCall, in)

	case ir.OpSpawn:
		c.exit(SiteSpawn, in)

	case ir.OpAwait:
		c.exit(SiteAwait, in)

	case ir.OpWiden, ir.OpMakeList, ir.OpMakeMap, ir.OpMakeStruct,
		ir.OpMakeEnum, ir.OpMakeSome, ir.OpMakeNone, ir.OpMakeResult,
		ir.OpField, ir.OpIndex, ir.OpVariantIs, ir.OpPayload,
		ir.OpBoxNew, ir.OpBoxGet, ir.OpBoxSet:
		// Allocating and structural operations run in the driver.
		c.exit(SiteSlow, in)

	default:
		return fmt.Errorf("no code generation rule for %s", in.Op)
	}
	return nil
}

// binary emits the tagged-integer fast path with a slow-site fallback.
// The fallback recomputes from the operand slots, so the fast path must
// not write anything before its tag and fit checks pass.
func (c *funcCompiler) binary(in ir.Instr) {
	switch in.Sym {
	case "+", "-", "*", "/", "%", "<", "<=", ">", ">=", "==", "!=":
	default:
		c.exit(SiteSlow, in)
		return
	}

	var slow []int
	toSlow := func(cc byte) { slow = append(slow, c.asm.jccRel32(cc)) }

	c.load(regRAX, in.A)
	c.load(regRCX, in.B)
	c.asm.movRR(regRDX, regRAX)
	c.asm.andRI8(regRDX, tagMaskImm)
	c.asm.cmpRI8(regRDX, tagIntImm)
	toSlow(ccNE)
	c.asm.movRR(regRDX, regRCX)
	c.asm.andRI8(regRDX, tagMaskImm)
	c.asm.cmpRI8(regRDX, tagIntImm)
	toSlow(ccNE)
	c.asm.sarRI8(regRAX, tagShift)
	c.asm.sarRI8(regRCX, tagShift)

	switch in.Sym {
	case "+":
		c.asm.addRR(regRAX, regRCX)
		c.encodeInt(&slow)
	case "-":
		c.asm.subRR(regRAX, regRCX)
		c.encodeInt(&slow)
	case "*":
		c.asm.imulRR(regRAX, regRCX)
		c.encodeInt(&slow)
	case "/", "%":
		// Zero divisor takes the slow site, which produces the error.
		c.asm.testRR(regRCX, regRCX)
		toSlow(ccE)
		c.asm.cqo()
		c.asm.idiv(regRCX)
		if in.Sym == "%" {
			c.asm.movRR(regRAX, regRDX)
		}
		// Dividing the smallest immediate by -1 overflows the
		// immediate range, so the quotient re-encodes with the same
		// overflow check as the other arithmetic ops.
		c.encodeInt(&slow)
	default:
		c.asm.cmpRR(regRAX, regRCX)
		c.asm.setccRAX(compareCC(in.Sym))
		c.asm.shlRI8(regRAX, tagShift)
		c.asm.orRI8(regRAX, tagBoolImm)
	}
	c.store(in.Dst, regRAX)
	done := c.asm.jmpRel32()

	for _, fix := range slow {
		c.asm.patchRel32(fix, c.asm.here())
	}
	c.exit(SiteSlow, in)
	c.asm.patchRel32(done, c.asm.here())
}

// unary inlines integer negation; everything else is a slow site.
func (c *funcCompiler) unary(in ir.Instr) {
	if in.Sym != "-" {
		c.exit(SiteSlow, in)
		return
	}
	var slow []int
	c.load(regRAX, in.A)
	c.asm.movRR(regRDX, regRAX)
	c.asm.andRI8(regRDX, tagMaskImm)
	c.asm.cmpRI8(regRDX, tagIntImm)
	slow = append(slow, c.asm.jccRel32(ccNE))
	c.asm.sarRI8(regRAX, tagShift)
	c.asm.negR(regRAX)
	c.encodeInt(&slow)
	c.store(in.Dst, regRAX)
	done := c.asm.jmpRel32()

	for _, fix := range slow {
		c.asm.patchRel32(fix, c.asm.here())
	}
	c.exit(SiteSlow, in)
	c.asm.patchRel32(done, c.asm.here())
}

// encodeInt re-tags the raw integer in RAX, diverting to the slow site
// when the value does not fit an immediate and must be boxed.
func (c *funcCompiler) encodeInt(slow *[]int) {
	c.asm.movRR(regRDX, regRAX)
	c.asm.shlRI8(regRDX, tagShift)
	c.asm.sarRI8(regRDX, tagShift)
	c.asm.cmpRR(regRDX, regRAX)
	*slow = append(*slow, c.asm.jccRel32(ccNE))
	c.asm.shlRI8(regRAX, tagShift)
	c.asm.orRI8(regRAX, tagIntImm)
}

const (
	tagShift   = 3
	tagMaskImm = 7
	tagIntImm  = int8(heap.TagInt)
	tagBoolImm = int8(heap.TagBool)
)

func compareCC(sym string) byte {
	switch sym {
	case "<":
		return ccL
	case "<=":
		return ccLE
	case ">":
		return ccG
	case ">=":
		return ccGE
	case "==":
		return ccE
	default:
		return ccNE
	}
}
