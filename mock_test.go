package regalloc

import (
	"fmt"
	"strings"
)

// mockInstr and mockFunction implement the api.go interfaces for testing.

type mockInstr struct {
	name             string
	uses, mods, defs []Reg
	isRet            bool
	isMove           bool
}

func insn(name string) *mockInstr             { return &mockInstr{name: name} }
func (i *mockInstr) use(rs ...Reg) *mockInstr { i.uses = append(i.uses, rs...); return i }
func (i *mockInstr) mod(rs ...Reg) *mockInstr { i.mods = append(i.mods, rs...); return i }
func (i *mockInstr) def(rs ...Reg) *mockInstr { i.defs = append(i.defs, rs...); return i }
func (i *mockInstr) ret() *mockInstr          { i.isRet = true; return i }

func move(dst, src Reg) *mockInstr {
	return &mockInstr{name: "mov", isMove: true, uses: []Reg{src}, defs: []Reg{dst}}
}

// String implements fmt.Stringer.
func (i *mockInstr) String() string {
	var b strings.Builder
	b.WriteString(i.name)
	writeOps := func(tag string, rs []Reg) {
		for _, r := range rs {
			fmt.Fprintf(&b, " %s:%s", tag, r)
		}
	}
	writeOps("u", i.uses)
	writeOps("m", i.mods)
	writeOps("d", i.defs)
	return b.String()
}

type mockBlock struct {
	insns []*mockInstr
	succs []BlockIx
}

func block(succs []BlockIx, insns ...*mockInstr) *mockBlock {
	return &mockBlock{insns: insns, succs: succs}
}

type mockFunction struct {
	insns    []*mockInstr
	firsts   []InstIx
	lens     []uint32
	succs    [][]BlockIx
	liveins  []RealReg
	liveouts []RealReg
	// generated counts how many spill/reload/move instructions were produced.
	generated struct{ spills, reloads, moves int }
}

func newMockFunction(blocks ...*mockBlock) *mockFunction {
	f := &mockFunction{}
	for _, b := range blocks {
		f.firsts = append(f.firsts, InstIx(len(f.insns)))
		f.lens = append(f.lens, uint32(len(b.insns)))
		f.succs = append(f.succs, b.succs)
		f.insns = append(f.insns, b.insns...)
	}
	return f
}

func (f *mockFunction) NumInsns() int  { return len(f.insns) }
func (f *mockFunction) NumBlocks() int { return len(f.firsts) }

func (f *mockFunction) Blocks() []BlockIx {
	out := make([]BlockIx, len(f.firsts))
	for i := range out {
		out[i] = BlockIx(i)
	}
	return out
}

func (f *mockFunction) BlockInsns(b BlockIx) InstRange {
	return InstRange{First: f.firsts[b], Len: f.lens[b]}
}

func (f *mockFunction) BlockSuccs(b BlockIx) []BlockIx { return f.succs[b] }
func (f *mockFunction) EntryBlock() BlockIx            { return 0 }
func (f *mockFunction) IsRet(i InstIx) bool            { return f.insns[i].isRet }

func (f *mockFunction) GetRegs(i InstIx, c *RegUsageCollector) {
	for _, r := range f.insns[i].uses {
		c.AddUse(r)
	}
	for _, r := range f.insns[i].mods {
		c.AddMod(r)
	}
	for _, r := range f.insns[i].defs {
		c.AddDef(r)
	}
}

func (f *mockFunction) IsMove(i InstIx) (dst, src Reg, ok bool) {
	in := f.insns[i]
	if !in.isMove {
		return RegInvalid, RegInvalid, false
	}
	return in.defs[0], in.uses[0], true
}

func (f *mockFunction) MapRegs(i InstIx, m RegUsageMapper) {
	in := f.insns[i]
	for j, r := range in.uses {
		if r.IsVirtual() {
			if rr := m.GetUse(r.AsVirtual()); rr.Valid() {
				in.uses[j] = rr.ToReg()
			}
		}
	}
	for j, r := range in.mods {
		if r.IsVirtual() {
			if rr := m.GetMod(r.AsVirtual()); rr.Valid() {
				in.mods[j] = rr.ToReg()
			}
		}
	}
	for j, r := range in.defs {
		if r.IsVirtual() {
			if rr := m.GetDef(r.AsVirtual()); rr.Valid() {
				in.defs[j] = rr.ToReg()
			}
		}
	}
}

func (f *mockFunction) Insn(i InstIx) Instruction { return f.insns[i] }

func (f *mockFunction) GenSpill(slot SpillSlot, from RealReg, vreg VirtualReg) Instruction {
	f.generated.spills++
	return insn(fmt.Sprintf("spill %s <- %s", slot, from))
}

func (f *mockFunction) GenReload(to RealReg, slot SpillSlot, vreg VirtualReg) Instruction {
	f.generated.reloads++
	return insn(fmt.Sprintf("reload %s <- %s", to, slot))
}

func (f *mockFunction) GenMove(dst, src RealReg, vreg VirtualReg) Instruction {
	f.generated.moves++
	return insn(fmt.Sprintf("move %s <- %s", dst, src))
}

func (f *mockFunction) GetSpillSlotSize(RegClass, VirtualReg) uint32 { return 1 }
func (f *mockFunction) FuncLiveins() []RealReg                       { return f.liveins }
func (f *mockFunction) FuncLiveouts() []RealReg                      { return f.liveouts }
func (f *mockFunction) IsIncludedInClobbers(i InstIx) bool           { return !f.insns[i].isRet }

// testUniverse returns n I64 registers named r0..r(n-1), all allocatable, with
// the last one as the suggested scratch.
func testUniverse(n int) *RealRegUniverse {
	u := &RealRegUniverse{Allocable: n}
	for i := 0; i < n; i++ {
		u.Regs = append(u.Regs, RealRegAndName{
			Reg:  NewRealReg(RegClassI64, uint32(i)).AsReal(),
			Name: fmt.Sprintf("r%d", i),
		})
	}
	u.AllocableByClass[RegClassI64] = &RegClassInfo{First: 0, Last: n - 1, SuggestedScratch: n - 1}
	return u
}

func v64(i uint32) Reg { return NewVirtualReg(RegClassI64, i) }

// renderInsns flattens the result stream for golden comparisons.
func renderInsns(res *Result) []string {
	out := make([]string, len(res.Insns))
	for i, in := range res.Insns {
		out[i] = in.String()
	}
	return out
}

func countPrefix(res *Result, prefix string) int {
	n := 0
	for _, in := range res.Insns {
		if strings.HasPrefix(in.String(), prefix) {
			n++
		}
	}
	return n
}
