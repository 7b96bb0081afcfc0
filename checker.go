package regalloc

import (
	"fmt"
	"sort"
)

// The symbolic checker: walks the rewritten function, tracking per location
// (real register or spill slot) the set of virtual registers whose value could
// currently occupy it, and verifies every original mention and every emitted
// stack map against that state. A diagnosis here is an allocator bug.

type (
	checkerLoc struct {
		isSlot bool
		n      uint32
	}

	checkerSet map[VirtualReg]struct{}

	checkerState map[checkerLoc]checkerSet

	checker struct {
		f    Function
		u    *RealRegUniverse
		info *analysisInfo
		req  *StackmapRequestInfo
		plan *rewritePlan

		// ins and outs are the per-block abstract states at entry and exit.
		ins, outs []checkerState

		// safepointAt maps an instruction to its safepoint position.
		safepointAt map[InstIx]int

		errs []CheckerError
	}
)

func regLoc(r RealReg) checkerLoc    { return checkerLoc{n: r.Index()} }
func slotLoc(s SpillSlot) checkerLoc { return checkerLoc{isSlot: true, n: uint32(s)} }

func (s checkerState) clone() checkerState {
	out := make(checkerState, len(s))
	for loc, set := range s {
		cp := make(checkerSet, len(set))
		for v := range set {
			cp[v] = struct{}{}
		}
		out[loc] = cp
	}
	return out
}

func (s checkerState) intersectWith(o checkerState) {
	for loc, set := range s {
		oset := o[loc]
		for v := range set {
			if _, ok := oset[v]; !ok {
				delete(set, v)
			}
		}
		if len(set) == 0 {
			delete(s, loc)
		}
	}
}

func (s checkerState) equal(o checkerState) bool {
	if len(s) != len(o) {
		return false
	}
	for loc, set := range s {
		oset, ok := o[loc]
		if !ok || len(set) != len(oset) {
			return false
		}
		for v := range set {
			if _, ok := oset[v]; !ok {
				return false
			}
		}
	}
	return true
}

func (s checkerState) holds(loc checkerLoc, v VirtualReg) bool {
	_, ok := s[loc][v]
	return ok
}

func (s checkerState) setOnly(loc checkerLoc, v VirtualReg) {
	s[loc] = checkerSet{v: {}}
}

func (s checkerState) copyLoc(dst, src checkerLoc) {
	set, ok := s[src]
	if !ok {
		delete(s, dst)
		return
	}
	cp := make(checkerSet, len(set))
	for v := range set {
		cp[v] = struct{}{}
	}
	s[dst] = cp
}

func (s checkerState) clobber(loc checkerLoc) {
	delete(s, loc)
}

// runChecker verifies the rewrite plan. Call it after applyRegisters has
// produced the full edit list and the edits have been sorted.
func runChecker(f Function, u *RealRegUniverse, info *analysisInfo, req *StackmapRequestInfo, plan *rewritePlan) error {
	c := &checker{
		f:           f,
		u:           u,
		info:        info,
		req:         req,
		plan:        plan,
		ins:         make([]checkerState, f.NumBlocks()),
		outs:        make([]checkerState, f.NumBlocks()),
		safepointAt: map[InstIx]int{},
	}
	if req != nil {
		for i, sp := range req.SafepointInsns {
			c.safepointAt[sp] = i
		}
	}

	// Fixed point over block states: entry starts empty, every other block's
	// in-state is the intersection of its computed predecessors. States only
	// shrink, so this terminates.
	for changed := true; changed; {
		changed = false
		for _, b := range c.info.cfg.rpo {
			in := c.inStateFor(b)
			if c.ins[b] != nil && in.equal(c.ins[b]) && c.outs[b] != nil {
				continue
			}
			c.ins[b] = in
			out := c.simulate(b, in.clone(), false)
			if c.outs[b] == nil || !out.equal(c.outs[b]) {
				c.outs[b] = out
				changed = true
			}
		}
	}

	// One more pass over the stable solution, now recording diagnoses.
	for _, b := range c.info.cfg.rpo {
		c.simulate(b, c.ins[b].clone(), true)
	}

	if len(c.errs) > 0 {
		sort.Slice(c.errs, func(i, j int) bool { return c.errs[i].Inst < c.errs[j].Inst })
		return &RegCheckerError{Errs: c.errs}
	}
	return nil
}

func (c *checker) inStateFor(b BlockIx) checkerState {
	if b == c.f.EntryBlock() {
		return checkerState{}
	}
	var in checkerState
	for _, p := range c.info.cfg.preds[b] {
		if c.outs[p] == nil {
			continue
		}
		if in == nil {
			in = c.outs[p].clone()
		} else {
			in.intersectWith(c.outs[p])
		}
	}
	if in == nil {
		in = checkerState{}
	}
	return in
}

func (c *checker) report(ix InstIx, format string, args ...interface{}) {
	c.errs = append(c.errs, CheckerError{Inst: ix, Msg: fmt.Sprintf(format, args...)})
}

// simulate runs the abstract interpretation over one block, returning the exit
// state. With record set, inconsistencies are reported.
func (c *checker) simulate(b BlockIx, st checkerState, record bool) checkerState {
	r := c.f.BlockInsns(b)
	edits := c.plan.edits
	ei := sort.Search(len(edits), func(i int) bool {
		return edits[i].at.ix >= r.First
	})
	qi := sort.Search(len(c.plan.quads), func(i int) bool {
		return c.plan.quads[i].ix >= r.First
	})

	for ix := r.First; ix <= r.Last(); ix++ {
		for ; ei < len(edits) && edits[ei].at.ix == ix && edits[ei].at.sub < subInsn; ei++ {
			c.applyEdit(&edits[ei], st)
		}

		for ; qi < len(c.plan.quads) && c.plan.quads[qi].ix == ix; qi++ {
			q := &c.plan.quads[qi]
			var loc checkerLoc
			if reg := q.loc.Reg(); reg.Valid() {
				loc = regLoc(reg)
			} else {
				loc = slotLoc(q.loc.Slot())
			}
			if q.mention.IsUseOrMod() {
				if !st.holds(loc, q.vreg) && record {
					c.report(ix, "%s is not in %s at its use", q.vreg, q.loc)
				}
			}
			if q.mention.IsModOrDef() {
				if reg := q.loc.Reg(); reg.Valid() {
					st.setOnly(loc, q.vreg)
				} else {
					// A stack-resident def lands in the scratch register; the
					// trailing spill edit parks it in the slot.
					scratch := c.u.scratchFor(q.vreg.Class())
					st.setOnly(regLoc(scratch), q.vreg)
				}
			}
		}

		// The instruction's own real-register writes invalidate whatever the
		// abstract state said those registers held.
		for _, d := range c.info.rvb.defs(ix) {
			if d.IsReal() {
				st.clobber(regLoc(d.AsReal()))
			}
		}
		for _, m := range c.info.rvb.mods(ix) {
			if m.IsReal() {
				st.clobber(regLoc(m.AsReal()))
			}
		}

		for ; ei < len(edits) && edits[ei].at.ix == ix && edits[ei].at.sub > subInsn; ei++ {
			c.applyEdit(&edits[ei], st)
		}

		if sp, ok := c.safepointAt[ix]; ok && record {
			c.checkSafepoint(ix, sp, st)
		}
	}
	return st
}

func (c *checker) applyEdit(e *instToInsert, st checkerState) {
	switch e.kind {
	case editMove:
		st.copyLoc(regLoc(e.toReg), regLoc(e.fromReg))
	case editReload:
		st.copyLoc(regLoc(e.toReg), slotLoc(e.slot))
	case editSpill:
		st.copyLoc(slotLoc(e.slot), regLoc(e.fromReg))
	}
}

// checkSafepoint verifies the emitted stack map: every listed slot must hold
// the reference-typed value it was emitted for, and every reference-typed
// range the analysis finds live at the safepoint must be held in a listed slot.
func (c *checker) checkSafepoint(ix InstIx, sp int, st checkerState) {
	if c.plan.safepointSlotOwners == nil {
		return
	}
	for i := range c.info.rt.vlrs {
		vlr := &c.info.rt.vlrs[i]
		for _, s := range c.info.vlrSafepoints[i] {
			if s != sp || !vlr.IsRef {
				continue
			}
			listed := false
			for _, slot := range c.plan.stackmaps[sp] {
				listed = listed || st.holds(slotLoc(slot), vlr.VReg)
			}
			if !listed {
				c.report(ix, "stack map misses reference-typed %s", vlr.VReg)
			}
		}
	}
	for _, so := range c.plan.safepointSlotOwners[sp] {
		if !st.holds(slotLoc(so.slot), so.vreg) {
			c.report(ix, "stack map lists %s for %s but the slot does not hold it", so.slot, so.vreg)
		}
	}
	emitted := map[SpillSlot]bool{}
	for _, s := range c.plan.stackmaps[sp] {
		emitted[s] = true
	}
	for _, so := range c.plan.safepointSlotOwners[sp] {
		if !emitted[so.slot] {
			c.report(ix, "stack map omits %s", so.slot)
		}
	}
}
