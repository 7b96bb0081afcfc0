package regalloc

import (
	"fmt"
	"sort"
)

// Range merging: fragments of the same register are grouped into connected
// components along flow edges, one VirtualRange or RealRange per component.

type (
	// VirtualRange is the unit of allocation: a set of fragments of one
	// virtual register, sorted by start point, disjoint as a union of points.
	VirtualRange struct {
		VReg VirtualReg
		// SortedFrags indexes the analysis fragment table, ascending by First.
		SortedFrags []RangeFragIx
		// Size is the total number of instructions spanned.
		Size uint32
		// TotalCost is the sum of fragment metrics (mentions x block
		// frequency); SpillCost is TotalCost normalized by Size. Higher means
		// costlier to spill.
		TotalCost float32
		SpillCost float32
		// IsRef marks the range reference-typed.
		IsRef bool

		// Allocation state, owned by whichever allocator runs.
		rreg         RealReg
		slot         SpillSlot
		numEvictions int
	}

	// RealRange is a fixed constraint: the points where a real register is in
	// use by the input function itself.
	RealRange struct {
		RReg        RealReg
		SortedFrags []RangeFragIx
		IsRef       bool
	}

	// regToRangesMaps recovers the ranges of a register.
	regToRangesMaps struct {
		// byVReg maps a virtual register index to its VirtualRangeIxs.
		byVReg [][]VirtualRangeIx
		// byRReg maps a universe index to its RealRangeIxs.
		byRReg [][]RealRangeIx
	}

	// rangeTables bundles the merged ranges.
	rangeTables struct {
		vlrs []VirtualRange
		rlrs []RealRange
		maps regToRangesMaps
	}
)

// String implements fmt.Stringer.
func (v *VirtualRange) String() string {
	loc := "none"
	if v.rreg.Valid() {
		loc = v.rreg.String()
	} else if v.slot != SpillSlotInvalid {
		loc = v.slot.String()
	}
	return fmt.Sprintf("%s{%d frags, cost %.2f, %s}", v.VReg, len(v.SortedFrags), v.SpillCost, loc)
}

// mergeRangeFrags builds VirtualRanges and RealRanges from the fragment table.
func mergeRangeFrags(cfg *cfgInfo, env *fragEnv, extras *sanitizedExtras, u *RealRegUniverse) *rangeTables {
	rt := &rangeTables{}
	rt.maps.byVReg = make([][]VirtualRangeIx, len(env.byVReg))
	rt.maps.byRReg = make([][]RealRangeIx, len(env.byRReg))

	for vi, fl := range env.byVReg {
		if len(fl) == 0 {
			continue
		}
		for _, comp := range connectedComponents(cfg, env, fl) {
			vlrIx := VirtualRangeIx(len(rt.vlrs))
			vlr := VirtualRange{
				VReg:        extras.vregByIndex[vi],
				SortedFrags: comp,
				rreg:        RealRegInvalid,
				slot:        SpillSlotInvalid,
			}
			for _, fix := range comp {
				fr := &env.frags[fix]
				vlr.Size += uint32(fr.Last.Inst()-fr.First.Inst()) + 1
				vlr.TotalCost += float32(fr.Count) * float32(cfg.freq[fr.Block])
			}
			vlr.SpillCost = vlr.TotalCost / float32(vlr.Size)
			rt.vlrs = append(rt.vlrs, vlr)
			rt.maps.byVReg[vi] = append(rt.maps.byVReg[vi], vlrIx)
		}
	}

	for ri, fl := range env.byRReg {
		if len(fl) == 0 {
			continue
		}
		for _, comp := range connectedComponents(cfg, env, fl) {
			rlrIx := RealRangeIx(len(rt.rlrs))
			rt.rlrs = append(rt.rlrs, RealRange{
				RReg:        u.Regs[ri].Reg,
				SortedFrags: comp,
			})
			rt.maps.byRReg[ri] = append(rt.maps.byRReg[ri], rlrIx)
		}
	}
	return rt
}

// connectedComponents partitions one register's fragments: a fragment flowing
// out of b1 joins a fragment flowing into b2 when b2 succeeds b1. Components
// are returned in ascending order of their smallest fragment index, each with
// its fragments sorted by start point.
func connectedComponents(cfg *cfgInfo, env *fragEnv, fl []RangeFragIx) [][]RangeFragIx {
	parent := make([]int, len(fl))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			if ra > rb {
				ra, rb = rb, ra
			}
			parent[rb] = ra
		}
	}

	entryAt := make(map[BlockIx]int, len(fl))
	for pos, fix := range fl {
		switch env.frags[fix].Kind {
		case RangeFragLiveIn, RangeFragThru:
			if _, dup := entryAt[env.frags[fix].Block]; dup {
				panic("BUG: two entry fragments for one register in one block")
			}
			entryAt[env.frags[fix].Block] = pos
		}
	}
	for pos, fix := range fl {
		fr := &env.frags[fix]
		if fr.Kind != RangeFragLiveOut && fr.Kind != RangeFragThru {
			continue
		}
		for _, s := range cfg.succs[fr.Block] {
			if epos, ok := entryAt[s]; ok {
				union(pos, epos)
			}
		}
	}

	groups := map[int][]RangeFragIx{}
	var roots []int
	for pos, fix := range fl {
		r := find(pos)
		if _, seen := groups[r]; !seen {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], fix)
	}
	sort.Ints(roots)
	out := make([][]RangeFragIx, 0, len(roots))
	for _, r := range roots {
		comp := groups[r]
		sort.Slice(comp, func(i, j int) bool {
			return env.frags[comp[i]].First < env.frags[comp[j]].First
		})
		out = append(out, comp)
	}
	return out
}

// coversPoint reports whether the sorted fragment list contains the point.
func coversPoint(env *fragEnv, sorted []RangeFragIx, p InstPoint) bool {
	lo, hi := 0, len(sorted)
	for lo < hi {
		mid := (lo + hi) / 2
		fr := &env.frags[sorted[mid]]
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
