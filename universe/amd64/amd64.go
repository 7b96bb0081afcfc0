// Package amd64 provides a ready-made register universe for x86-64, built on
// the register tables of the golang-asm assembler so the names and encodings
// match what an amd64 backend emits.
package amd64

import (
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/tetratelabs/regalloc"
)

// The allocatable general-purpose registers. RSP and RBP are excluded as the
// stack and frame pointers; R15 is left out of the universe for embedders that
// pin it. R11 is the designated integer scratch, XMM15 the vector scratch.
var gprs = []int16{
	x86.REG_AX,
	x86.REG_CX,
	x86.REG_DX,
	x86.REG_BX,
	x86.REG_SI,
	x86.REG_DI,
	x86.REG_R8,
	x86.REG_R9,
	x86.REG_R10,
	x86.REG_R11,
	x86.REG_R12,
	x86.REG_R13,
	x86.REG_R14,
}

var xmms = []int16{
	x86.REG_X0,
	x86.REG_X1,
	x86.REG_X2,
	x86.REG_X3,
	x86.REG_X4,
	x86.REG_X5,
	x86.REG_X6,
	x86.REG_X7,
	x86.REG_X8,
	x86.REG_X9,
	x86.REG_X10,
	x86.REG_X11,
	x86.REG_X12,
	x86.REG_X13,
	x86.REG_X14,
	x86.REG_X15,
}

// Universe returns the x86-64 real-register universe: the general-purpose
// registers as class I64 and the XMM registers as class V128, allocatable
// ones first, followed by the reserved stack and frame pointers.
func Universe() *regalloc.RealRegUniverse {
	u := &regalloc.RealRegUniverse{}

	gprFirst := len(u.Regs)
	for _, r := range gprs {
		u.Regs = append(u.Regs, regalloc.RealRegAndName{
			Reg:  regalloc.NewRealReg(regalloc.RegClassI64, uint32(len(u.Regs))).AsReal(),
			Name: obj.Rconv(int(r)),
		})
	}
	gprScratch := gprFirst + indexOf(gprs, x86.REG_R11)

	xmmFirst := len(u.Regs)
	for _, r := range xmms {
		u.Regs = append(u.Regs, regalloc.RealRegAndName{
			Reg:  regalloc.NewRealReg(regalloc.RegClassV128, uint32(len(u.Regs))).AsReal(),
			Name: obj.Rconv(int(r)),
		})
	}
	xmmScratch := xmmFirst + indexOf(xmms, x86.REG_X15)

	u.Allocable = len(u.Regs)
	u.AllocableByClass[regalloc.RegClassI64] = &regalloc.RegClassInfo{
		First:            gprFirst,
		Last:             xmmFirst - 1,
		SuggestedScratch: gprScratch,
	}
	u.AllocableByClass[regalloc.RegClassV128] = &regalloc.RegClassInfo{
		First:            xmmFirst,
		Last:             u.Allocable - 1,
		SuggestedScratch: xmmScratch,
	}

	// Known to the universe so instructions may mention them, never assigned.
	for _, r := range []int16{x86.REG_SP, x86.REG_BP} {
		u.Regs = append(u.Regs, regalloc.RealRegAndName{
			Reg:  regalloc.NewRealReg(regalloc.RegClassI64, uint32(len(u.Regs))).AsReal(),
			Name: obj.Rconv(int(r)),
		})
	}

	if err := u.CheckSanity(); err != nil {
		panic(err)
	}
	return u
}

// GPR returns the allocatable general-purpose register backed by the given
// golang-asm register constant, e.g. x86.REG_AX.
func GPR(u *regalloc.RealRegUniverse, asmReg int16) regalloc.RealReg {
	return lookup(u, obj.Rconv(int(asmReg)))
}

// XMM returns the allocatable vector register backed by the given golang-asm
// register constant, e.g. x86.REG_X0.
func XMM(u *regalloc.RealRegUniverse, asmReg int16) regalloc.RealReg {
	return lookup(u, obj.Rconv(int(asmReg)))
}

func lookup(u *regalloc.RealRegUniverse, name string) regalloc.RealReg {
	for _, rn := range u.Regs {
		if rn.Name == name {
			return rn.Reg
		}
	}
	panic("unknown register " + name)
}

func indexOf(regs []int16, r int16) int {
	for i, c := range regs {
		if c == r {
			return i
		}
	}
	panic("register not in table")
}
