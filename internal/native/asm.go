package native

import "encoding/binary"

// Minimal amd64 emitter. Only the handful of encodings the code
// generator needs; everything richer than arithmetic and control flow
// over tagged words leaves compiled code through an exit site, so the
// instruction surface stays small.

type reg byte

const (
	regRAX reg = 0
	regRCX reg = 1
	regRDX reg = 2
	regRBX reg = 3
	regRSP reg = 4
	regRBP reg = 5
	regRSI reg = 6
	regRDI reg = 7
	regR12 reg = 12
	regR13 reg = 13
)

// Condition codes (Jcc = 0x80|cc, SETcc = 0x90|cc).
const (
	ccE  = 0x4
	ccNE = 0x5
	ccL  = 0xC
	ccGE = 0xD
	ccLE = 0xE
	ccG  = 0xF
)

type assembler struct {
	code []byte
}

func (a *assembler) here() int { return len(a.code) }

func (a *assembler) byte(b ...byte) { a.code = append(a.code, b...) }

func (a *assembler) imm32(v int32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	a.code = append(a.code, buf[:]...)
}

func (a *assembler) imm64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	a.code = append(a.code, buf[:]...)
}

// rex emits a REX.W prefix extended for the given operands.
func (a *assembler) rex(r, b reg) {
	rex := byte(0x48)
	if r >= 8 {
		rex |= 0x04
	}
	if b >= 8 {
		rex |= 0x01
	}
	a.byte(rex)
}

func (a *assembler) modRR(r, b reg) {
	a.byte(0xC0 | (byte(r)&7)<<3 | byte(b)&7)
}

// modRM emits a [base+disp32] memory operand, with the SIB byte RSP/R12
// bases require.
func (a *assembler) modRM(r, base reg, disp int32) {
	if base&7 == 4 {
		a.byte(0x80|(byte(r)&7)<<3|0x04, 0x24)
	} else {
		a.byte(0x80 | (byte(r)&7)<<3 | byte(base)&7)
	}
	a.imm32(disp)
}

// movRI loads a 64-bit immediate.
func (a *assembler) movRI(dst reg, v uint64) {
	a.rex(0, dst)
	a.byte(0xB8 | byte(dst)&7)
	a.imm64(v)
}

// movRR copies src into dst.
func (a *assembler) movRR(dst, src reg) {
	a.rex(src, dst)
	a.byte(0x89)
	a.modRR(src, dst)
}

// movRM loads dst from [base+disp].
func (a *assembler) movRM(dst, base reg, disp int32) {
	a.rex(dst, base)
	a.byte(0x8B)
	a.modRM(dst, base, disp)
}

// movMR stores src into [base+disp].
func (a *assembler) movMR(base reg, disp int32, src reg) {
	a.rex(src, base)
	a.byte(0x89)
	a.modRM(src, base, disp)
}

func (a *assembler) addRR(dst, src reg) {
	a.rex(src, dst)
	a.byte(0x01)
	a.modRR(src, dst)
}

func (a *assembler) subRR(dst, src reg) {
	a.rex(src, dst)
	a.byte(0x29)
	a.modRR(src, dst)
}

func (a *assembler) imulRR(dst, src reg) {
	a.rex(dst, src)
	a.byte(0x0F, 0xAF)
	a.modRR(dst, src)
}

func (a *assembler) orRR(dst, src reg) {
	a.rex(src, dst)
	a.byte(0x09)
	a.modRR(src, dst)
}

func (a *assembler) cmpRR(left, right reg) {
	a.rex(right, left)
	a.byte(0x39)
	a.modRR(right, left)
}

func (a *assembler) testRR(left, right reg) {
	a.rex(right, left)
	a.byte(0x85)
	a.modRR(right, left)
}

// Group-1 immediates with an 8-bit operand: /digit selects the op.
func (a *assembler) group1Imm8(digit byte, dst reg, v int8) {
	a.rex(0, dst)
	a.byte(0x83)
	a.modRR(reg(digit), dst)
	a.byte(byte(v))
}

func (a *assembler) andRI8(dst reg, v int8) { a.group1Imm8(4, dst, v) }
func (a *assembler) orRI8(dst reg, v int8)  { a.group1Imm8(1, dst, v) }
func (a *assembler) cmpRI8(dst reg, v int8) { a.group1Imm8(7, dst, v) }

func (a *assembler) cmpRI32(dst reg, v int32) {
	a.rex(0, dst)
	a.byte(0x81)
	a.modRR(7, dst)
	a.imm32(v)
}

func (a *assembler) negR(dst reg) {
	a.rex(0, dst)
	a.byte(0xF7)
	a.modRR(3, dst)
}

func (a *assembler) shlRI8(dst reg, v byte) {
	a.rex(0, dst)
	a.byte(0xC1)
	a.modRR(4, dst)
	a.byte(v)
}

func (a *assembler) sarRI8(dst reg, v byte) {
	a.rex(0, dst)
	a.byte(0xC1)
	a.modRR(7, dst)
	a.byte(v)
}

func (a *assembler) cqo() { a.byte(0x48, 0x99) }

func (a *assembler) idiv(divisor reg) {
	a.rex(0, divisor)
	a.byte(0xF7)
	a.modRR(7, divisor)
}

// setcc sets AL from the last comparison and zero-extends into RAX.
func (a *assembler) setccRAX(cc byte) {
	a.byte(0x0F, 0x90|cc)
	a.modRR(0, regRAX)
	a.byte(0x48, 0x0F, 0xB6)
	a.modRR(regRAX, regRAX)
}

func (a *assembler) ret() { a.byte(0xC3) }

// jmpRel32 emits an unconditional jump and returns the fixup offset of
// its displacement.
func (a *assembler) jmpRel32() int {
	a.byte(0xE9)
	fix := a.here()
	a.imm32(0)
	return fix
}

// jccRel32 emits a conditional jump and returns the fixup offset.
func (a *assembler) jccRel32(cc byte) int {
	a.byte(0x0F, 0x80|cc)
	fix := a.here()
	a.imm32(0)
	return fix
}

// patchRel32 resolves a previously emitted rel32 to target.
func (a *assembler) patchRel32(fix, target int) {
	binary.LittleEndian.PutUint32(a.code[fix:fix+4], uint32(target-(fix+4)))
}
