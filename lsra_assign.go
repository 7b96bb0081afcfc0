package regalloc

import (
	"container/heap"
	"fmt"
)

// Register selection and interval splitting for the linear-scan sweep.

// tryAllocateFreeReg computes, per candidate register, the earliest point the
// register is next needed by an active, inactive or fixed interval, and picks
// the register that stays free longest. Returns false when no register is free
// at the interval's start.
func (s *lsraState) tryAllocateFreeReg(cur *virtualInterval) bool {
	if s.opts.Stats && s.opts.Statistics != nil {
		s.opts.Statistics.NumTryAllocate++
	}
	rc := cur.vreg.Class()
	ci := s.u.AllocableByClass[rc]
	if ci == nil {
		panic(fmt.Sprintf("BUG: no allocatable registers in class %s", rc))
	}

	for i := ci.First; i <= ci.Last; i++ {
		s.freeUntil[i] = InstPointInvalid // free forever
	}
	for _, ix := range s.active {
		vi := s.at(ix)
		if r := vi.location.Reg(); r.Valid() && r.Class() == rc {
			s.freeUntil[r.Index()] = 0
		}
	}
	for _, ix := range s.inactive {
		vi := s.at(ix)
		r := vi.location.Reg()
		if !r.Valid() || r.Class() != rc {
			continue
		}
		if p := intersectionWith(vi.frags, cur.frags); p != InstPointInvalid && p < s.freeUntil[r.Index()] {
			s.freeUntil[r.Index()] = p
		}
	}
	for i := ci.First; i <= ci.Last; i++ {
		if fx := s.fixed[i]; fx != nil {
			if p := intersectionWith(fx.frags, cur.frags); p != InstPointInvalid && p < s.freeUntil[i] {
				s.freeUntil[i] = p
			}
		}
	}

	best := -1
	for i := ci.First; i <= ci.Last; i++ {
		if i == ci.SuggestedScratch {
			continue
		}
		if best == -1 || s.freeUntil[i] > s.freeUntil[best] {
			best = i
		}
	}
	if best == -1 || s.freeUntil[best] <= cur.start {
		return false
	}

	r := s.u.Regs[best].Reg
	if s.freeUntil[best] > cur.end {
		cur.location = RegLocation(r)
		if s.opts.Stats && s.opts.Statistics != nil {
			s.opts.Statistics.NumTryAllocateOK++
		}
		return true
	}

	// The register is free only for a prefix: take it and split the rest off.
	splitPos := s.optimalSplitPos(cur, s.freeUntil[best])
	if splitPos == InstPointInvalid {
		return false
	}
	cur.location = RegLocation(r)
	child := s.split(cur, splitPos)
	heap.Push(&s.unhandled, intervalHeapItem{start: child.start, ix: child.ix})
	return true
}

// allocateBlockedReg implements spill-at-current: the register whose holders
// next need it furthest away is chosen; if that is later than cur's first
// mention, the incumbents' tails are split off and cur takes the register,
// otherwise cur itself spills.
func (s *lsraState) allocateBlockedReg(cur *virtualInterval) {
	rc := cur.vreg.Class()
	ci := s.u.AllocableByClass[rc]

	for i := ci.First; i <= ci.Last; i++ {
		s.nextUse[i] = InstPointInvalid
	}
	for _, ix := range s.active {
		vi := s.at(ix)
		if r := vi.location.Reg(); r.Valid() && r.Class() == rc {
			if p := vi.nextMentionAfter(cur.start); p < s.nextUse[r.Index()] {
				s.nextUse[r.Index()] = p
			}
		}
	}
	for _, ix := range s.inactive {
		vi := s.at(ix)
		r := vi.location.Reg()
		if !r.Valid() || r.Class() != rc {
			continue
		}
		if intersectionWith(vi.frags, cur.frags) == InstPointInvalid {
			continue
		}
		if p := vi.nextMentionAfter(cur.start); p < s.nextUse[r.Index()] {
			s.nextUse[r.Index()] = p
		}
	}
	for i := ci.First; i <= ci.Last; i++ {
		if fx := s.fixed[i]; fx != nil {
			// A fixed use blocks the register outright at its start.
			if p := intersectionWith(fx.frags, cur.frags); p != InstPointInvalid && p < s.nextUse[i] {
				s.nextUse[i] = p
			}
		}
	}

	best := -1
	for i := ci.First; i <= ci.Last; i++ {
		if i == ci.SuggestedScratch {
			continue
		}
		if best == -1 || s.nextUse[i] > s.nextUse[best] {
			best = i
		}
	}

	curFirst := cur.nextMentionAfter(cur.start)
	if best == -1 || curFirst == InstPointInvalid || s.nextUse[best] <= curFirst {
		// Everyone else needs their register sooner than cur needs one.
		s.spillInterval(cur)
		return
	}

	r := s.u.Regs[best].Reg
	evicted := false
	act := s.active[:0]
	for _, ix := range s.active {
		vi := s.at(ix)
		if vi.location.Reg() != r || vi.start >= cur.start {
			act = append(act, ix)
			continue
		}
		splitPos := s.legalSplitPos(vi, cur.start)
		if splitPos == InstPointInvalid {
			act = append(act, ix)
			continue
		}
		tail := s.split(vi, splitPos)
		tail.location = LocationNone
		heap.Push(&s.unhandled, intervalHeapItem{start: tail.start, ix: tail.ix})
		evicted = true
		if vi.end >= cur.start && vi.covers(cur.start) {
			panic("BUG: split interval still covers the cursor")
		}
	}
	s.active = act
	if !evicted {
		// The incumbent cannot be cut before the cursor; spilling cur is the
		// only move that makes progress.
		s.spillInterval(cur)
		return
	}

	// Inactive holders of r that intersect cur lose their tails too.
	inact := s.inactive[:0]
	for _, ix := range s.inactive {
		vi := s.at(ix)
		if vi.location.Reg() != r {
			inact = append(inact, ix)
			continue
		}
		p := intersectionWith(vi.frags, cur.frags)
		if p == InstPointInvalid {
			inact = append(inact, ix)
			continue
		}
		splitPos := s.legalSplitPos(vi, p)
		if splitPos == InstPointInvalid {
			inact = append(inact, ix)
			continue
		}
		tail := s.split(vi, splitPos)
		tail.location = LocationNone
		heap.Push(&s.unhandled, intervalHeapItem{start: tail.start, ix: tail.ix})
		inact = append(inact, ix)
	}
	s.inactive = inact

	cur.location = RegLocation(r)

	// A later fixed use of r inside cur still forces cur off the register. If
	// the conflict sits at cur's very first instruction, no split can separate
	// them and cur spills after all.
	if fx := s.fixed[best]; fx != nil {
		if p := intersectionWith(fx.frags, cur.frags); p != InstPointInvalid {
			if splitPos := s.legalSplitPos(cur, p); splitPos != InstPointInvalid {
				child := s.split(cur, splitPos)
				heap.Push(&s.unhandled, intervalHeapItem{start: child.start, ix: child.ix})
			} else {
				s.spillInterval(cur)
			}
		}
	}
}

// spillInterval parks the whole interval in its split tree's slot. Mentions
// are bracketed with scratch-register reloads and spills by the rewrite.
func (s *lsraState) spillInterval(vi *virtualInterval) {
	vi.location = StackLocation(s.slotFor(vi))
	if s.opts.Stats && s.opts.Statistics != nil {
		s.opts.Statistics.NumSpills++
	}
	if loggingEnabled {
		fmt.Printf("lsra: spilled %s\n", vi)
	}
}

// legalSplitPos returns the Use point of want's instruction when it lies
// strictly inside (vi.start, vi.end], or InstPointInvalid. Splitting later
// than want would leave the head overlapping whatever want blocks on.
func (s *lsraState) legalSplitPos(vi *virtualInterval, want InstPoint) InstPoint {
	p := UsePoint(want.Inst())
	if p <= vi.start || p > vi.end {
		return InstPointInvalid
	}
	return p
}

// optimalSplitPos places a split between the interval's start and the point
// the register becomes unavailable, applying the configured strategy and
// preferring block boundaries so the repair move lands on an edge.
func (s *lsraState) optimalSplitPos(cur *virtualInterval, blockedAt InstPoint) InstPoint {
	from := cur.start.Inst() + 1
	to := blockedAt.Inst()
	if to < from || UsePoint(from) > cur.end {
		return InstPointInvalid
	}
	if to > cur.end.Inst() {
		to = cur.end.Inst()
	}
	if to < from {
		to = from
	}

	var iix InstIx
	switch s.opts.SplitStrategy {
	case SplitFrom:
		iix = from
	case SplitTo:
		iix = to
	case SplitNextFrom:
		iix = from + 1
	case SplitNextNextFrom:
		iix = from + 2
	case SplitPrevTo:
		iix = to - 1
	case SplitPrevPrevTo:
		iix = to - 2
	case SplitMid:
		iix = from + (to-from)/2
	default:
		iix = from
	}
	if iix < from {
		iix = from
	}
	if iix > to {
		iix = to
	}

	// Snap back to the last block start in [from, iix] when one exists: a split
	// landing on a boundary is repaired by the edge resolver instead of an
	// extra mid-block move.
	if b := s.blockBoundaryWithin(from, iix); b != InstIxInvalid {
		iix = b
	}
	return UsePoint(iix)
}

// blockBoundaryWithin returns the last block-start instruction in [from, to],
// or InstIxInvalid.
func (s *lsraState) blockBoundaryWithin(from, to InstIx) InstIx {
	found := InstIxInvalid
	for _, b := range s.f.Blocks() {
		first := s.f.BlockInsns(b).First
		if first >= from && first <= to && (found == InstIxInvalid || first > found) {
			found = first
		}
	}
	return found
}

// split cuts vi at pos (a Use point), returning the new tail interval. The
// head keeps everything before pos, including any current assignment; the
// tail joins the split tree unassigned.
func (s *lsraState) split(vi *virtualInterval, pos InstPoint) *virtualInterval {
	if pos.Point() != PointUse {
		panic("BUG: split positions must be Use points")
	}
	if pos <= vi.start || pos > vi.end {
		panic(fmt.Sprintf("BUG: split position %s outside (%s, %s]", pos, vi.start, vi.end))
	}
	if s.opts.Stats && s.opts.Statistics != nil {
		s.opts.Statistics.NumSplits++
	}

	cutIx := pos.Inst()
	child := s.newInterval()
	child.vreg = vi.vreg
	child.refTyped = vi.refTyped

	// Partition the fragments, cutting the one that straddles pos.
	var head, tail []RangeFrag
	for _, fr := range vi.frags {
		switch {
		case fr.Last < pos:
			head = append(head, fr)
		case fr.First >= pos:
			tail = append(tail, fr)
		default:
			left, right := fr, fr
			left.Last = DefPoint(cutIx - 1)
			left.Kind = clearExit(fr.Kind)
			right.First = pos
			right.Kind = clearEntry(fr.Kind)
			head = append(head, left)
			tail = append(tail, right)
		}
	}
	if len(head) == 0 || len(tail) == 0 {
		panic("BUG: split produced an empty interval")
	}
	vi.frags, child.frags = head, tail

	// Partition mentions and safepoints at the cut instruction.
	var hm, tm MentionMap
	for _, me := range vi.mentions {
		if me.Ix < cutIx {
			hm = append(hm, me)
		} else {
			tm = append(tm, me)
		}
	}
	vi.mentions, child.mentions = hm, tm

	var hs, ts []int
	for _, sp := range vi.safepoints {
		if s.req.SafepointInsns[sp] < cutIx {
			hs = append(hs, sp)
		} else {
			ts = append(ts, sp)
		}
	}
	vi.safepoints, child.safepoints = hs, ts

	child.start = child.frags[0].First
	child.end = vi.end
	vi.end = vi.frags[len(vi.frags)-1].Last

	// Link into the split tree; an existing child chains under the new one.
	if vi.ancestor == intIxInvalid {
		child.ancestor = vi.ix
	} else {
		child.ancestor = vi.ancestor
	}
	if prev := vi.child; prev != intIxInvalid {
		child.child = prev
		s.at(prev).parent = child.ix
	}
	vi.child = child.ix
	child.parent = vi.ix

	if loggingEnabled {
		fmt.Printf("lsra: split %s at %s -> %s\n", vi, pos, child)
	}
	return child
}

func clearExit(k RangeFragKind) RangeFragKind {
	switch k {
	case RangeFragThru:
		return RangeFragLiveIn
	case RangeFragLiveOut:
		return RangeFragLocal
	default:
		return k
	}
}

func clearEntry(k RangeFragKind) RangeFragKind {
	switch k {
	case RangeFragThru:
		return RangeFragLiveOut
	case RangeFragLiveIn:
		return RangeFragLocal
	default:
		return k
	}
}
