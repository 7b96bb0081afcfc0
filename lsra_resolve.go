package regalloc

import (
	"fmt"
	"sort"
)

// Move resolution for the linear-scan allocator. Splitting leaves one virtual
// register's value in different locations at different program points; this
// pass repairs the seams: within a block at each split boundary, and across
// every control-flow edge where the outgoing and incoming locations differ.

// buildLinearScanPlan turns the solved interval set into a rewrite plan.
func (s *lsraState) buildLinearScanPlan() (*rewritePlan, error) {
	plan := &rewritePlan{numSpillSlots: s.nextSpillSlot}

	// chainsByVReg groups every interval by virtual register, in creation
	// order, for location lookup by program point.
	chainsByVReg := map[VirtualReg][]intIx{}
	for i := 0; i < s.ints.Allocated(); i++ {
		vi := s.ints.View(i)
		if vi.location.IsNone() {
			panic(fmt.Sprintf("BUG: %s reached resolution unassigned", vi))
		}
		chainsByVReg[vi.vreg] = append(chainsByVReg[vi.vreg], vi.ix)
		for _, me := range vi.mentions {
			plan.quads = append(plan.quads, mentionQuad{
				ix:      me.Ix,
				mention: me.Mention,
				vreg:    vi.vreg,
				loc:     vi.location,
			})
		}
	}

	locAt := func(vreg VirtualReg, p InstPoint) (Location, bool) {
		for _, ix := range chainsByVReg[vreg] {
			vi := s.at(ix)
			if vi.covers(p) {
				return vi.location, true
			}
		}
		return LocationNone, false
	}

	seq := 0
	s.repairSplitBoundaries(plan, &seq)
	if err := s.resolveEdges(plan, locAt, &seq); err != nil {
		return nil, err
	}

	s.computeStackmaps(plan)
	return plan, nil
}

// repairSplitBoundaries inserts transfers at split points that fall inside a
// block. Boundaries on block starts are the edge resolver's job.
func (s *lsraState) repairSplitBoundaries(plan *rewritePlan, seq *int) {
	for i := 0; i < s.ints.Allocated(); i++ {
		child := s.ints.View(i)
		if child.parent == intIxInvalid {
			continue
		}
		parent := s.at(child.parent)
		boundary := child.start
		if s.isBlockStart(boundary.Inst()) && boundary.Point() == PointUse {
			continue
		}
		// The parent's value only needs to flow when it actually reaches the
		// boundary: a parent ending before the cut (a lifetime hole) means the
		// value is dead until redefined.
		if parent.end < prevProgPoint(boundary) {
			continue
		}
		if !locationsDiffer(parent.location, child.location) {
			continue
		}
		s.transferAt(plan, parent.location, child.location, child.vreg, boundary.Inst(), seq)
	}
}

// transferAt appends the edit moving one value between locations right before
// the given instruction.
func (s *lsraState) transferAt(plan *rewritePlan, from, to Location, vreg VirtualReg, at InstIx, seq *int) {
	e := instToInsert{at: instExtPoint{ix: at, sub: subMove, seq: *seq}, vreg: vreg}
	*seq++
	switch {
	case from.Reg().Valid() && to.Reg().Valid():
		e.kind, e.fromReg, e.toReg = editMove, from.Reg(), to.Reg()
	case from.Reg().Valid():
		e.kind, e.fromReg, e.slot = editSpill, from.Reg(), to.Slot()
	case to.Reg().Valid():
		e.kind, e.toReg, e.slot = editReload, to.Reg(), from.Slot()
	default:
		if from.Slot() != to.Slot() {
			panic(fmt.Sprintf("BUG: stack-to-stack transfer for %s", vreg))
		}
		return
	}
	plan.edits = append(plan.edits, e)
}

// resolveEdges computes, per control-flow edge, the parallel move joining the
// locations at the predecessor's exit with those at the successor's entry.
func (s *lsraState) resolveEdges(plan *rewritePlan, locAt func(VirtualReg, InstPoint) (Location, bool), seq *int) error {
	var moves []parallelMove
	for _, p := range s.f.Blocks() {
		succs := s.info.cfg.succs[p]
		term := s.f.BlockInsns(p).Last()
		exitPoint := DefPoint(term)
		for _, succ := range succs {
			first := s.f.BlockInsns(succ).First
			entryPoint := UsePoint(first)

			moves = moves[:0]
			s.info.df.liveIns[succ].rangeAll(s.info.extras.lookupUniversal, func(r Reg) {
				if !r.IsVirtual() {
					return
				}
				vreg := r.AsVirtual()
				srcLoc, okS := locAt(vreg, exitPoint)
				dstLoc, okD := locAt(vreg, entryPoint)
				if !okS || !okD {
					// The register flows into succ along a different edge.
					return
				}
				if locationsDiffer(srcLoc, dstLoc) {
					moves = append(moves, parallelMove{vreg: vreg, src: srcLoc, dst: dstLoc})
				}
			})
			if len(moves) == 0 {
				continue
			}

			// Placement: the predecessor's end when the edge is its only way
			// out, else the successor's start. A tolerated critical edge keeps
			// the predecessor placement; its terminator is known not to touch
			// registers.
			at := first
			if len(succs) == 1 || len(s.info.cfg.preds[succ]) > 1 {
				at = term
			}
			plan.edits = scheduleParallelMoves(s.u, moves, at, plan.edits, seq)
		}
	}
	return nil
}

func (s *lsraState) isBlockStart(ix InstIx) bool {
	b := s.info.cfg.instToBlock[ix]
	return s.f.BlockInsns(b).First == ix
}

func prevProgPoint(p InstPoint) InstPoint {
	if p.Point() == PointDef {
		return UsePoint(p.Inst())
	}
	if p.Inst() == 0 {
		return p
	}
	return DefPoint(p.Inst() - 1)
}

// computeStackmaps collects, per safepoint, the slots of stack-resident
// reference-typed intervals covering the safepoint's Use point.
func (s *lsraState) computeStackmaps(plan *rewritePlan) {
	if s.req == nil {
		return
	}
	plan.stackmaps = make([][]SpillSlot, len(s.req.SafepointInsns))
	plan.safepointSlotOwners = make([][]slotOwner, len(s.req.SafepointInsns))
	for i := 0; i < s.ints.Allocated(); i++ {
		vi := s.ints.View(i)
		slot := vi.location.Slot()
		if !vi.refTyped || slot == SpillSlotInvalid {
			continue
		}
		for _, sp := range vi.safepoints {
			plan.stackmaps[sp] = append(plan.stackmaps[sp], slot)
			plan.safepointSlotOwners[sp] = append(plan.safepointSlotOwners[sp], slotOwner{slot: slot, vreg: vi.vreg})
		}
	}
	for sp := range plan.stackmaps {
		sort.Slice(plan.stackmaps[sp], func(i, j int) bool { return plan.stackmaps[sp][i] < plan.stackmaps[sp][j] })
		plan.stackmaps[sp] = dedupeSlots(plan.stackmaps[sp])
	}
}

func dedupeSlots(slots []SpillSlot) []SpillSlot {
	out := slots[:0]
	for i, s := range slots {
		if i == 0 || s != slots[i-1] {
			out = append(out, s)
		}
	}
	return out
}
