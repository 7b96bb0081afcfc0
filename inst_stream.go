package regalloc

import (
	"fmt"
	"sort"
)

// Instruction-stream rewrite: applies the virtual-to-real mapping to every
// original instruction, brackets spilled mentions with scratch reloads and
// spills, interleaves the resolved moves, and assembles the final instruction
// vector with its index maps.

// instSubPoint orders insertions around one instruction. Moves come first so
// a reload into the scratch register cannot be clobbered by a later
// cycle-breaking move.
type instSubPoint uint8

const (
	subMove instSubPoint = iota
	subReload
	subInsn
	subSpill
)

// instExtPoint is an insertion point in the extended instruction space.
type instExtPoint struct {
	ix  InstIx
	sub instSubPoint
	// seq preserves the generation order of insertions at the same point.
	seq int
}

func (e instExtPoint) less(o instExtPoint) bool {
	if e.ix != o.ix {
		return e.ix < o.ix
	}
	if e.sub != o.sub {
		return e.sub < o.sub
	}
	return e.seq < o.seq
}

type editKind uint8

const (
	editSpill editKind = iota
	editReload
	editMove
)

// instToInsert is one generated instruction and where it goes.
type instToInsert struct {
	kind editKind
	at   instExtPoint

	toReg, fromReg RealReg
	slot           SpillSlot
	vreg           VirtualReg
}

func (e *instToInsert) materialize(f Function) Instruction {
	switch e.kind {
	case editSpill:
		return f.GenSpill(e.slot, e.fromReg, e.vreg)
	case editReload:
		return f.GenReload(e.toReg, e.slot, e.vreg)
	case editMove:
		return f.GenMove(e.toReg, e.fromReg, e.vreg)
	default:
		panic("BUG: unknown edit kind")
	}
}

// mentionQuad ties one mention of one virtual register to the location its
// covering range or interval was assigned.
type mentionQuad struct {
	ix      InstIx
	mention Mention
	vreg    VirtualReg
	loc     Location
}

// rewritePlan is everything the rewrite needs from an allocation core.
type rewritePlan struct {
	// quads are sorted by instruction; multiple quads may share an instruction.
	quads []mentionQuad
	// edits are the resolved moves; the rewrite adds spill/reload brackets.
	edits []instToInsert
	// numSpillSlots is the high-water spill-slot count.
	numSpillSlots uint32
	// stackmaps and safepointSlotOwners are pre-computed by the core; the
	// checker cross-verifies them.
	stackmaps [][]SpillSlot
	// safepointSlotOwners maps each safepoint position to the (slot, vreg)
	// pairs backing its stack map.
	safepointSlotOwners [][]slotOwner
}

type slotOwner struct {
	slot SpillSlot
	vreg VirtualReg
}

// regMapper implements RegUsageMapper for one instruction at a time.
type regMapper struct {
	useMap, defMap map[VirtualReg]RealReg
}

func newRegMapper() *regMapper {
	return &regMapper{
		useMap: map[VirtualReg]RealReg{},
		defMap: map[VirtualReg]RealReg{},
	}
}

func (m *regMapper) clear() {
	for v := range m.useMap {
		delete(m.useMap, v)
	}
	for v := range m.defMap {
		delete(m.defMap, v)
	}
}

// GetUse implements RegUsageMapper.
func (m *regMapper) GetUse(v VirtualReg) RealReg {
	if r, ok := m.useMap[v]; ok {
		return r
	}
	return RealRegInvalid
}

// GetDef implements RegUsageMapper.
func (m *regMapper) GetDef(v VirtualReg) RealReg {
	if r, ok := m.defMap[v]; ok {
		return r
	}
	return RealRegInvalid
}

// GetMod implements RegUsageMapper.
func (m *regMapper) GetMod(v VirtualReg) RealReg {
	u, okU := m.useMap[v]
	d, okD := m.defMap[v]
	if !okU || !okD {
		return RealRegInvalid
	}
	if u != d {
		panic(fmt.Sprintf("BUG: modified %s maps to %s on the use side but %s on the def side", v, u, d))
	}
	return u
}

// applyRegisters maps every original instruction and grows the edit list with
// the spill-code brackets for stack-resident mentions. It returns the set of
// clobbered allocatable registers.
func applyRegisters(f Function, u *RealRegUniverse, info *analysisInfo, plan *rewritePlan) (RegSet, error) {
	sort.SliceStable(plan.quads, func(i, j int) bool { return plan.quads[i].ix < plan.quads[j].ix })

	// Before touching the function, reject plans needing two scratch registers
	// of one class at one instruction: two stack-resident mentions of distinct
	// virtual registers cannot both be bracketed through the single scratch.
	// scratchTaken tracks, per class, which vreg owns the scratch register at
	// the current instruction.
	var scratchTaken [NumRegClasses]VirtualReg
	lastIx := InstIxInvalid
	for i := range plan.quads {
		q := &plan.quads[i]
		if q.loc.Slot() == SpillSlotInvalid {
			continue
		}
		if q.ix != lastIx {
			for c := range scratchTaken {
				scratchTaken[c] = VirtualRegInvalid
			}
			lastIx = q.ix
		}
		rc := q.vreg.Class()
		if taken := scratchTaken[rc]; taken.Valid() && taken != q.vreg {
			return 0, &OutOfRegistersError{Class: rc}
		}
		scratchTaken[rc] = q.vreg
	}

	var clobbered RegSet
	mapper := newRegMapper()
	seq := len(plan.edits)

	qi := 0
	for ix := InstIx(0); int(ix) < f.NumInsns(); ix++ {
		mapper.clear()

		anyMapped := false
		for ; qi < len(plan.quads) && plan.quads[qi].ix == ix; qi++ {
			q := &plan.quads[qi]
			rc := q.vreg.Class()

			var r RealReg
			if q.loc.Reg().Valid() {
				r = q.loc.Reg()
			} else if slot := q.loc.Slot(); slot != SpillSlotInvalid {
				r = u.scratchFor(rc)
				if !r.Valid() {
					panic(fmt.Sprintf("BUG: no scratch register for class %s", rc))
				}
				if q.mention.IsUseOrMod() {
					plan.edits = append(plan.edits, instToInsert{
						kind: editReload,
						at:   instExtPoint{ix: ix, sub: subReload, seq: seq},
						toReg: r, slot: slot, vreg: q.vreg,
					})
					seq++
				}
				if q.mention.IsModOrDef() {
					plan.edits = append(plan.edits, instToInsert{
						kind: editSpill,
						at:   instExtPoint{ix: ix, sub: subSpill, seq: seq},
						fromReg: r, slot: slot, vreg: q.vreg,
					})
					seq++
				}
			} else {
				panic(fmt.Sprintf("BUG: %s has no location at %s", q.vreg, ix))
			}

			if q.mention.IsUseOrMod() {
				if prev, ok := mapper.useMap[q.vreg]; ok && prev != r {
					panic(fmt.Sprintf("BUG: conflicting use mappings for %s at %s", q.vreg, ix))
				}
				mapper.useMap[q.vreg] = r
			}
			if q.mention.IsModOrDef() {
				if prev, ok := mapper.defMap[q.vreg]; ok && prev != r {
					panic(fmt.Sprintf("BUG: conflicting def mappings for %s at %s", q.vreg, ix))
				}
				mapper.defMap[q.vreg] = r
				if f.IsIncludedInClobbers(ix) && int(r.Index()) < u.Allocable {
					clobbered = clobbered.Add(r)
				}
			}
			anyMapped = true
		}
		if anyMapped {
			f.MapRegs(ix, mapper)
		}

		// Real-register writes of the original instruction clobber too.
		if f.IsIncludedInClobbers(ix) {
			for _, d := range info.rvb.defs(ix) {
				if d.IsReal() {
					clobbered = clobbered.Add(d.AsReal())
				}
			}
			for _, m := range info.rvb.mods(ix) {
				if m.IsReal() {
					clobbered = clobbered.Add(m.AsReal())
				}
			}
		}
	}

	// Scratch registers written by inserted reloads and moves count as
	// clobbered as well.
	for i := range plan.edits {
		e := &plan.edits[i]
		if e.kind == editReload || e.kind == editMove {
			if int(e.toReg.Index()) < u.Allocable {
				clobbered = clobbered.Add(e.toReg)
			}
		}
	}
	return clobbered, nil
}

// assembleStream emits the final instruction vector, interleaving the sorted
// edits, and produces the index maps, clobbered set, and renumbered
// safepoints.
func assembleStream(f Function, info *analysisInfo, req *StackmapRequestInfo, plan *rewritePlan, clobbered RegSet, annotations bool) *Result {
	sort.SliceStable(plan.edits, func(i, j int) bool { return plan.edits[i].at.less(plan.edits[j].at) })

	n := f.NumInsns()
	res := &Result{
		TargetMap:          make([]InstIx, f.NumBlocks()),
		NewInstMap:         make([]InstIx, n),
		ClobberedRegisters: clobbered,
		NumSpillSlots:      plan.numSpillSlots,
		Stackmaps:          plan.stackmaps,
	}
	if annotations {
		res.BlockAnnotations = map[BlockIx][]string{}
		for _, b := range f.Blocks() {
			for rc := RegClass(0); rc < NumRegClasses; rc++ {
				if p := info.pressure[b][rc]; p != 0 {
					res.BlockAnnotations[b] = append(res.BlockAnnotations[b],
						fmt.Sprintf("pressure %s=%d", rc, p))
				}
			}
		}
	}

	blockFirst := make(map[InstIx]BlockIx, f.NumBlocks())
	for _, b := range f.Blocks() {
		blockFirst[f.BlockInsns(b).First] = b
	}

	ei := 0
	annotate := func(b BlockIx, inst Instruction) {
		if res.BlockAnnotations != nil {
			res.BlockAnnotations[b] = append(res.BlockAnnotations[b], inst.String())
		}
	}
	for ix := InstIx(0); int(ix) < n; ix++ {
		owner := info.cfg.instToBlock[ix]
		if b, isFirst := blockFirst[ix]; isFirst {
			// The block starts at the first inserted move, if any, so branch
			// targets include the edge repairs.
			res.TargetMap[b] = InstIx(len(res.Insns))
		}
		for ; ei < len(plan.edits) && plan.edits[ei].at.ix == ix && plan.edits[ei].at.sub < subInsn; ei++ {
			inst := plan.edits[ei].materialize(f)
			res.Insns = append(res.Insns, inst)
			res.OrigInstMap = append(res.OrigInstMap, InstIxInvalid)
			annotate(owner, inst)
		}
		res.NewInstMap[ix] = InstIx(len(res.Insns))
		res.Insns = append(res.Insns, f.Insn(ix))
		res.OrigInstMap = append(res.OrigInstMap, ix)
		for ; ei < len(plan.edits) && plan.edits[ei].at.ix == ix && plan.edits[ei].at.sub > subInsn; ei++ {
			inst := plan.edits[ei].materialize(f)
			res.Insns = append(res.Insns, inst)
			res.OrigInstMap = append(res.OrigInstMap, InstIxInvalid)
			annotate(owner, inst)
		}
	}
	if ei != len(plan.edits) {
		panic("BUG: edits left over after stream assembly")
	}

	if req != nil {
		res.NewSafepointInsns = make([]InstIx, len(req.SafepointInsns))
		for i, sp := range req.SafepointInsns {
			res.NewSafepointInsns[i] = res.NewInstMap[sp]
		}
	}
	return res
}
