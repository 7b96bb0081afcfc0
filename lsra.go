package regalloc

import (
	"container/heap"
	"fmt"

	"github.com/tetratelabs/regalloc/internal/arena"
)

// The linear-scan allocator, following Wimmer's optimized interval-splitting
// variant: a single sweep over virtual intervals sorted by start, with
// active/inactive/handled sets and on-demand splitting. Split descendants are
// linked to their parents so the original virtual register identity is always
// recoverable.

type (
	intIx int32

	virtualInterval struct {
		ix       intIx
		vreg     VirtualReg
		refTyped bool

		// Split tree links. parent is the interval this one was cut from;
		// child is the next interval cut from this one; ancestor is the root
		// of the whole tree.
		parent, child, ancestor intIx

		location Location

		// frags are owned copies, sorted by First; splits cut them in place.
		frags    []RangeFrag
		mentions MentionMap
		// safepoints are positions into StackmapRequestInfo.SafepointInsns
		// whose Use point this interval covers.
		safepoints []int

		start, end InstPoint
	}

	fixedInterval struct {
		rreg  RealReg
		frags []RangeFrag
	}

	lsraState struct {
		f    Function
		u    *RealRegUniverse
		info *analysisInfo
		req  *StackmapRequestInfo
		opts *LinearScanOptions

		ints arena.Pool[virtualInterval]
		// fixed is keyed by universe index; nil when the register has no fixed
		// uses.
		fixed []*fixedInterval

		unhandled        intervalHeap
		active, inactive []intIx

		// slotForRoot assigns one spill slot per split-tree root, so every
		// interval of one original range spills to the same place.
		slotForRoot   map[intIx]SpillSlot
		nextSpillSlot uint32

		// reusable per-step buffers, keyed by universe index.
		freeUntil, nextUse []InstPoint
	}

	intervalHeapItem struct {
		start InstPoint
		ix    intIx
	}
	intervalHeap []intervalHeapItem
)

const intIxInvalid = intIx(-1)

func (h intervalHeap) Len() int { return len(h) }
func (h intervalHeap) Less(i, j int) bool {
	if h[i].start != h[j].start {
		return h[i].start < h[j].start
	}
	return h[i].ix < h[j].ix
}
func (h intervalHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *intervalHeap) Push(x interface{}) { *h = append(*h, x.(intervalHeapItem)) }
func (h *intervalHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// String implements fmt.Stringer.
func (vi *virtualInterval) String() string {
	s := fmt.Sprintf("int%d %s [%s-%s] %s", vi.ix, vi.vreg, vi.start, vi.end, vi.location)
	if vi.parent != intIxInvalid {
		s += fmt.Sprintf(" parent=int%d", vi.parent)
	}
	return s
}

// covers reports whether the interval contains the point.
func (vi *virtualInterval) covers(p InstPoint) bool {
	lo, hi := 0, len(vi.frags)
	for lo < hi {
		mid := (lo + hi) / 2
		fr := &vi.frags[mid]
		switch {
		case p < fr.First:
			hi = mid
		case p > fr.Last:
			lo = mid + 1
		default:
			return true
		}
	}
	return false
}

// nextMentionAfter returns the program point of the first mention at or after
// p, or InstPointInvalid. A use or mod mention sits at its Use point, a pure
// def at its Def point.
func (vi *virtualInterval) nextMentionAfter(p InstPoint) InstPoint {
	for _, me := range vi.mentions {
		mp := DefPoint(me.Ix)
		if me.Mention.IsUseOrMod() {
			mp = UsePoint(me.Ix)
		}
		if mp >= p {
			return mp
		}
	}
	return InstPointInvalid
}

// intersectionWith returns the earliest point covered by both fragment lists,
// or InstPointInvalid.
func intersectionWith(a, b []RangeFrag) InstPoint {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		fa, fb := &a[i], &b[j]
		if fa.Last < fb.First {
			i++
			continue
		}
		if fb.Last < fa.First {
			j++
			continue
		}
		if fa.First > fb.First {
			return fa.First
		}
		return fb.First
	}
	return InstPointInvalid
}

// runLinearScan assigns a Location to every interval and returns the interval
// pool for move resolution and rewrite.
func runLinearScan(f Function, u *RealRegUniverse, info *analysisInfo, req *StackmapRequestInfo, opts *LinearScanOptions) (*lsraState, error) {
	s := &lsraState{
		f:           f,
		u:           u,
		info:        info,
		req:         req,
		opts:        opts,
		ints:        arena.NewPool[virtualInterval](),
		fixed:       make([]*fixedInterval, u.Allocable),
		slotForRoot: map[intIx]SpillSlot{},
		freeUntil:   make([]InstPoint, u.Allocable),
		nextUse:     make([]InstPoint, u.Allocable),
	}
	s.buildIntervals()

	if opts.Stats && opts.Statistics != nil {
		for _, fx := range s.fixed {
			if fx != nil {
				opts.Statistics.NumFixedIntervals++
			}
		}
		opts.Statistics.NumVirtualIntervals = s.ints.Allocated()
	}

	for s.unhandled.Len() > 0 {
		it := heap.Pop(&s.unhandled).(intervalHeapItem)
		cur := s.at(it.ix)
		pos := cur.start
		s.expireAndDemote(pos)

		if loggingEnabled {
			fmt.Printf("lsra: handling %s\n", cur)
		}

		if !s.tryAllocateFreeReg(cur) {
			s.allocateBlockedReg(cur)
		}
		if cur.location.Reg().Valid() {
			s.active = append(s.active, cur.ix)
		}
	}
	return s, nil
}

func (s *lsraState) at(ix intIx) *virtualInterval {
	return s.ints.View(int(ix))
}

// buildIntervals converts the analysis ranges into the initial unhandled set
// and the per-register fixed intervals.
func (s *lsraState) buildIntervals() {
	for i := range s.info.rt.vlrs {
		vlr := &s.info.rt.vlrs[i]
		vi := s.newInterval()
		vi.vreg = vlr.VReg
		vi.refTyped = vlr.IsRef
		vi.frags = make([]RangeFrag, len(vlr.SortedFrags))
		for j, fix := range vlr.SortedFrags {
			vi.frags[j] = s.info.env.frags[fix]
		}
		vi.mentions = s.info.mentionsWithin(vlr.VReg, vlr.SortedFrags)
		vi.safepoints = s.info.vlrSafepoints[i]
		vi.start = vi.frags[0].First
		vi.end = vi.frags[len(vi.frags)-1].Last

		// A reference-typed interval covering a safepoint is stack-resident by
		// construction: register residency across the safepoint is rejected,
		// and rejecting it everywhere keeps the stack map exact.
		if s.req != nil && vi.refTyped && len(vi.safepoints) > 0 {
			vi.location = StackLocation(s.slotFor(vi))
			continue
		}
		heap.Push(&s.unhandled, intervalHeapItem{start: vi.start, ix: vi.ix})
	}

	for i := range s.info.rt.rlrs {
		rlr := &s.info.rt.rlrs[i]
		uix := int(rlr.RReg.Index())
		fx := s.fixed[uix]
		if fx == nil {
			fx = &fixedInterval{rreg: rlr.RReg}
			s.fixed[uix] = fx
		}
		for _, fix := range rlr.SortedFrags {
			fx.frags = append(fx.frags, s.info.env.frags[fix])
		}
	}
	for _, fx := range s.fixed {
		if fx != nil {
			sortFragsByFirst(fx.frags)
		}
	}
}

func (s *lsraState) newInterval() *virtualInterval {
	vi := s.ints.Allocate()
	vi.ix = intIx(s.ints.Allocated() - 1)
	vi.parent, vi.child, vi.ancestor = intIxInvalid, intIxInvalid, intIxInvalid
	vi.location = LocationNone
	return vi
}

// slotFor returns the spill slot of the interval's split tree, allocating on
// first request.
func (s *lsraState) slotFor(vi *virtualInterval) SpillSlot {
	root := vi.ix
	if vi.ancestor != intIxInvalid {
		root = vi.ancestor
	}
	if slot, ok := s.slotForRoot[root]; ok {
		return slot
	}
	size := s.f.GetSpillSlotSize(vi.vreg.Class(), vi.vreg)
	if size == 0 {
		panic("BUG: zero-sized spill slot")
	}
	slot := SpillSlot(s.nextSpillSlot)
	s.nextSpillSlot += size
	s.slotForRoot[root] = slot
	return slot
}

// expireAndDemote retires or demotes active intervals and promotes or retires
// inactive ones relative to the cursor.
func (s *lsraState) expireAndDemote(pos InstPoint) {
	act := s.active[:0]
	for _, ix := range s.active {
		vi := s.at(ix)
		if vi.end < pos {
			continue // handled
		}
		if !vi.covers(pos) {
			s.inactive = append(s.inactive, ix)
			continue
		}
		act = append(act, ix)
	}
	s.active = act

	inact := s.inactive[:0]
	for _, ix := range s.inactive {
		vi := s.at(ix)
		if vi.end < pos {
			continue // handled
		}
		if vi.covers(pos) {
			s.active = append(s.active, ix)
			continue
		}
		inact = append(inact, ix)
	}
	s.inactive = inact
}

func sortFragsByFirst(frags []RangeFrag) {
	for i := 1; i < len(frags); i++ {
		for j := i; j > 0 && frags[j].First < frags[j-1].First; j-- {
			frags[j], frags[j-1] = frags[j-1], frags[j]
		}
	}
}
