package regalloc

import (
	"container/heap"
	"fmt"
)

// The backtracking allocator: a priority-driven assignment over whole
// VirtualRanges, with eviction and bounded requeueing instead of interval
// splitting. Spilled ranges keep no register; the rewrite brackets each of
// their mentions with a scratch-register reload and spill.

type (
	btAllocator struct {
		f    Function
		u    *RealRegUniverse
		info *analysisInfo
		req  *StackmapRequestInfo
		opts *BacktrackingOptions

		// commitments is keyed by universe index, allocatable registers only.
		commitments []commitment
		queue       btQueue

		// priorities carries the attenuated spill costs used for queue order
		// and the eviction comparison; it starts as each range's SpillCost.
		priorities []float32

		nextSpillSlot uint32

		evictScratch []VirtualRangeIx
	}

	btQueueItem struct {
		priority float32
		ix       VirtualRangeIx
	}

	// btQueue is a max-heap on priority, tie-broken by range index so the
	// allocation order is deterministic.
	btQueue []btQueueItem
)

func (q btQueue) Len() int { return len(q) }
func (q btQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].ix < q[j].ix
}
func (q btQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *btQueue) Push(x interface{}) { *q = append(*q, x.(btQueueItem)) }
func (q *btQueue) Pop() interface{} {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

// runBacktracking assigns a location to every VirtualRange in the analysis.
func runBacktracking(f Function, u *RealRegUniverse, info *analysisInfo, req *StackmapRequestInfo, opts *BacktrackingOptions) (numSpillSlots uint32, err error) {
	a := &btAllocator{
		f:           f,
		u:           u,
		info:        info,
		req:         req,
		opts:        opts,
		commitments: make([]commitment, u.Allocable),
		priorities:  make([]float32, len(info.rt.vlrs)),
	}

	for i := range info.rt.rlrs {
		rlr := &info.rt.rlrs[i]
		a.commitments[rlr.RReg.Index()].add(info.env, rlr.SortedFrags, VirtualRangeIxInvalid)
	}

	for i := range info.rt.vlrs {
		a.priorities[i] = info.rt.vlrs[i].SpillCost
		a.queue = append(a.queue, btQueueItem{priority: a.priorities[i], ix: VirtualRangeIx(i)})
	}
	heap.Init(&a.queue)

	budget := opts.evictionBudget()
	for a.queue.Len() > 0 {
		it := heap.Pop(&a.queue).(btQueueItem)
		vlr := &info.rt.vlrs[it.ix]

		// A reference-typed range covering a safepoint must be stack-resident
		// there; holding it in a register across the safepoint is rejected
		// outright, so it spills.
		if a.req != nil && vlr.IsRef && len(info.vlrSafepoints[it.ix]) > 0 {
			a.spill(it.ix)
			continue
		}

		if a.tryAssign(it.ix) {
			continue
		}
		if a.tryEvict(it.ix, budget) {
			continue
		}
		a.spill(it.ix)
	}
	return a.nextSpillSlot, nil
}

// classRegs iterates the allocatable, non-scratch registers of the class in
// universe order.
func (a *btAllocator) classRegs(rc RegClass, f func(r RealReg, uix int) bool) {
	ci := a.u.AllocableByClass[rc]
	if ci == nil {
		return
	}
	for i := ci.First; i <= ci.Last; i++ {
		if i == ci.SuggestedScratch {
			continue
		}
		if f(a.u.Regs[i].Reg, i) {
			return
		}
	}
}

// tryAssign finds the first register of the class free over the whole range.
func (a *btAllocator) tryAssign(ix VirtualRangeIx) (ok bool) {
	vlr := &a.info.rt.vlrs[ix]
	a.classRegs(vlr.VReg.Class(), func(r RealReg, uix int) bool {
		if a.commitments[uix].canFit(a.info.env, vlr.SortedFrags) {
			a.commitments[uix].add(a.info.env, vlr.SortedFrags, ix)
			vlr.rreg = r
			ok = true
			if loggingEnabled {
				fmt.Printf("bt: %s -> %s\n", vlr, a.u.RegName(r))
			}
			return true
		}
		return false
	})
	return ok
}

// tryEvict searches for a register whose overlapping assignments are all
// strictly cheaper than the incoming range and still under the eviction
// budget, evicts them, and assigns the register. Candidates are compared by
// the total cost of what must move; ties resolve to the lowest register.
func (a *btAllocator) tryEvict(ix VirtualRangeIx, budget int) bool {
	vlr := &a.info.rt.vlrs[ix]
	bestUix := -1
	var bestReg RealReg
	var bestCost float32

	a.classRegs(vlr.VReg.Class(), func(r RealReg, uix int) bool {
		a.evictScratch = a.commitments[uix].overlappingOwners(a.info.env, vlr.SortedFrags, a.evictScratch[:0])
		var total float32
		for _, o := range a.evictScratch {
			if o == VirtualRangeIxInvalid {
				return false // fixed range in the way
			}
			victim := &a.info.rt.vlrs[o]
			if victim.numEvictions >= budget || a.priorities[o] >= a.priorities[ix] {
				return false
			}
			total += a.priorities[o]
		}
		if len(a.evictScratch) == 0 {
			panic("BUG: eviction attempted on a free register")
		}
		if bestUix == -1 || total < bestCost {
			bestUix, bestReg, bestCost = uix, r, total
		}
		return false
	})
	if bestUix == -1 {
		return false
	}

	victims := a.commitments[bestUix].overlappingOwners(a.info.env, vlr.SortedFrags, nil)
	for _, o := range victims {
		victim := &a.info.rt.vlrs[o]
		a.commitments[bestUix].removeOwner(o)
		victim.rreg = RealRegInvalid
		victim.numEvictions++
		// Requeue at attenuated priority so repeated contests settle.
		a.priorities[o] /= 2
		heap.Push(&a.queue, btQueueItem{priority: a.priorities[o], ix: o})
		if loggingEnabled {
			fmt.Printf("bt: evicted %s from %s\n", victim, a.u.RegName(bestReg))
		}
	}
	a.commitments[bestUix].add(a.info.env, vlr.SortedFrags, ix)
	vlr.rreg = bestReg
	return true
}

// spill assigns the range a stack slot sized for its class.
func (a *btAllocator) spill(ix VirtualRangeIx) {
	vlr := &a.info.rt.vlrs[ix]
	size := a.f.GetSpillSlotSize(vlr.VReg.Class(), vlr.VReg)
	if size == 0 {
		panic("BUG: zero-sized spill slot")
	}
	vlr.slot = SpillSlot(a.nextSpillSlot)
	a.nextSpillSlot += size
	if loggingEnabled {
		fmt.Printf("bt: spilled %s\n", vlr)
	}
}
