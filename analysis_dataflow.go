package regalloc

import (
	"fmt"
	"sort"
)

// Data-flow analysis: per-block def/use sets and the backward liveness fixed
// point. Sets are sparse over the universal register index space, so real and
// virtual registers flow through the same equations.

type dataflowInfo struct {
	// defs[b] holds registers written in b before any read; uses[b] holds
	// registers read in b before any write. A modified register is in both.
	defs, uses []regSparseSet
	// liveIns and liveOuts are the fixed-point solution.
	liveIns, liveOuts []regSparseSet
}

// analyzeDataflow computes the liveness solution, verifying that the entry
// block's live-ins are all declared function live-ins.
func analyzeDataflow(f Function, u *RealRegUniverse, cfg *cfgInfo, rvb *RegVecsAndBounds, extras *sanitizedExtras) (*dataflowInfo, error) {
	nb := f.NumBlocks()
	df := &dataflowInfo{
		defs:     make([]regSparseSet, nb),
		uses:     make([]regSparseSet, nb),
		liveIns:  make([]regSparseSet, nb),
		liveOuts: make([]regSparseSet, nb),
	}

	for _, b := range f.Blocks() {
		def, use := &df.defs[b], &df.uses[b]
		r := f.BlockInsns(b)
		for i := r.First; i <= r.Last(); i++ {
			for _, reg := range rvb.uses(i) {
				if !def.contains(reg) {
					use.insert(reg)
				}
			}
			for _, reg := range rvb.mods(i) {
				if !def.contains(reg) {
					use.insert(reg)
				}
				def.insert(reg)
			}
			for _, reg := range rvb.defs(i) {
				def.insert(reg)
			}
		}
	}

	// Function-level live-outs are live out of every returning block.
	// Non-allocatable registers are dropped like any other sanitized mention.
	var liveoutRegs []Reg
	for _, lo := range f.FuncLiveouts() {
		if int(lo.Index()) >= u.Allocable {
			continue
		}
		liveoutRegs = append(liveoutRegs, lo.ToReg())
		extras.observeUniversal(lo.ToReg())
	}
	for _, li := range f.FuncLiveins() {
		extras.observeUniversal(li.ToReg())
	}
	for _, b := range f.Blocks() {
		r := f.BlockInsns(b)
		if f.IsRet(r.Last()) {
			for _, lo := range liveoutRegs {
				df.liveOuts[b].insert(lo)
			}
		}
	}

	// Standard backward fixed point, worklisted by postorder so most blocks
	// settle in one sweep.
	var tmp regSparseSet
	for changed := true; changed; {
		changed = false
		for i := len(cfg.rpo) - 1; i >= 0; i-- {
			b := cfg.rpo[i]
			for _, s := range cfg.succs[b] {
				if df.liveOuts[b].unionWith(&df.liveIns[s]) {
					changed = true
				}
			}
			tmp.clear()
			tmp.unionWith(&df.liveOuts[b])
			tmp.removeAll(&df.defs[b])
			tmp.unionWith(&df.uses[b])
			if df.liveIns[b].unionWith(&tmp) {
				changed = true
			}
		}
	}

	if err := checkEntryLiveins(f, df, extras); err != nil {
		return nil, err
	}

	if loggingEnabled {
		for _, b := range f.Blocks() {
			fmt.Printf("%s: liveIn=%d liveOut=%d\n", b, df.liveIns[b].cardinality(), df.liveOuts[b].cardinality())
		}
	}
	return df, nil
}

// checkEntryLiveins verifies live_in(entry) is covered by FuncLiveins. Any
// virtual register live into the entry block is used before being defined.
func checkEntryLiveins(f Function, df *dataflowInfo, extras *sanitizedExtras) error {
	declared := NewRegSet(f.FuncLiveins()...)
	var undeclared []Reg
	df.liveIns[f.EntryBlock()].rangeAll(extras.lookupUniversal, func(r Reg) {
		if r.IsReal() && declared.Has(r.AsReal()) {
			return
		}
		undeclared = append(undeclared, r)
	})
	if len(undeclared) == 0 {
		return nil
	}
	sort.Slice(undeclared, func(i, j int) bool { return undeclared[i] < undeclared[j] })
	return &EntryLiveinValuesError{Regs: undeclared}
}
