package regalloc

import (
	"fmt"
	"sort"
)

// Range-fragment construction: for each block and each register live in it,
// the maximal contiguous segments of liveness, confined to the block and
// ordered by program point.

// RangeFragKind tags how a fragment relates to its block's boundaries.
type RangeFragKind uint8

const (
	// RangeFragLocal is born and dies inside the block.
	RangeFragLocal RangeFragKind = iota
	// RangeFragLiveIn enters from a predecessor and dies inside the block.
	RangeFragLiveIn
	// RangeFragLiveOut is born inside the block and flows out.
	RangeFragLiveOut
	// RangeFragThru enters and exits without an intervening kill.
	RangeFragThru
)

// String implements fmt.Stringer.
func (k RangeFragKind) String() string {
	switch k {
	case RangeFragLocal:
		return "Local"
	case RangeFragLiveIn:
		return "LiveIn"
	case RangeFragLiveOut:
		return "LiveOut"
	case RangeFragThru:
		return "Thru"
	default:
		return "invalid"
	}
}

// RangeFrag is a contiguous live segment [First, Last] of one register inside
// one block. Count is the number of mentions inside the segment; together with
// the block frequency it forms the fragment's spill-cost metric.
type RangeFrag struct {
	Block       BlockIx
	First, Last InstPoint
	Kind        RangeFragKind
	Count       uint16
}

// String implements fmt.Stringer.
func (f *RangeFrag) String() string {
	return fmt.Sprintf("%s[%s-%s]@%s", f.Kind, f.First, f.Last, f.Block)
}

// fragEnv is the fragment table plus per-register fragment lists.
type fragEnv struct {
	frags []RangeFrag
	// byVReg maps a virtual register index to its fragment indices, ascending.
	byVReg [][]RangeFragIx
	// byRReg maps a universe index to its fragment indices, ascending.
	byRReg [][]RangeFragIx
}

type protoFrag struct {
	first, last   InstPoint
	count         uint16
	startsAtEntry bool
}

// buildRangeFrags walks every block once, producing the fragment table.
func buildRangeFrags(f Function, cfg *cfgInfo, df *dataflowInfo, rvb *RegVecsAndBounds, extras *sanitizedExtras, u *RealRegUniverse) *fragEnv {
	env := &fragEnv{
		byVReg: make([][]RangeFragIx, extras.numVRegs),
		byRReg: make([][]RangeFragIx, u.Allocable),
	}

	state := map[Reg]*protoFrag{}
	var order []Reg
	for _, b := range f.Blocks() {
		r := f.BlockInsns(b)
		entry, exit := UsePoint(r.First), DefPoint(r.Last())

		df.liveIns[b].rangeAll(extras.lookupUniversal, func(reg Reg) {
			state[reg] = &protoFrag{first: entry, last: entry, startsAtEntry: true}
		})

		for i := r.First; i <= r.Last(); i++ {
			for _, reg := range rvb.uses(i) {
				p := state[reg]
				if p == nil {
					panic(fmt.Sprintf("BUG: %s used at %s without a live fragment", reg, i))
				}
				p.last = UsePoint(i)
				p.count = satInc(p.count)
			}
			for _, reg := range rvb.mods(i) {
				p := state[reg]
				if p == nil {
					panic(fmt.Sprintf("BUG: %s modified at %s without a live fragment", reg, i))
				}
				p.last = DefPoint(i)
				p.count = satInc(p.count)
			}
			for _, reg := range rvb.defs(i) {
				if p := state[reg]; p != nil {
					// The previous value of reg dies before this definition.
					env.emit(b, reg, p, false)
					delete(state, reg)
				}
				state[reg] = &protoFrag{first: DefPoint(i), last: DefPoint(i), count: 1}
			}
		}

		df.liveOuts[b].rangeAll(extras.lookupUniversal, func(reg Reg) {
			p := state[reg]
			if p == nil {
				panic(fmt.Sprintf("BUG: %s live out of %s without a live fragment", reg, b))
			}
			p.last = exit
			env.emit(b, reg, p, true)
			delete(state, reg)
		})

		// Everything left dies inside the block. Emit in register order so the
		// fragment numbering is deterministic.
		order = order[:0]
		for reg := range state {
			order = append(order, reg)
		}
		sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
		for _, reg := range order {
			env.emit(b, reg, state[reg], false)
			delete(state, reg)
		}
	}
	return env
}

func (env *fragEnv) emit(b BlockIx, reg Reg, p *protoFrag, exitsBlock bool) {
	if p.first > p.last {
		panic("BUG: fragment ends before it starts")
	}
	var kind RangeFragKind
	switch {
	case p.startsAtEntry && exitsBlock:
		kind = RangeFragThru
	case p.startsAtEntry:
		kind = RangeFragLiveIn
	case exitsBlock:
		kind = RangeFragLiveOut
	default:
		kind = RangeFragLocal
	}
	fix := RangeFragIx(len(env.frags))
	env.frags = append(env.frags, RangeFrag{
		Block: b,
		First: p.first,
		Last:  p.last,
		Kind:  kind,
		Count: p.count,
	})
	if reg.IsVirtual() {
		env.byVReg[reg.Index()] = append(env.byVReg[reg.Index()], fix)
	} else {
		env.byRReg[reg.Index()] = append(env.byRReg[reg.Index()], fix)
	}
}

func satInc(c uint16) uint16 {
	if c == ^uint16(0) {
		return c
	}
	return c + 1
}
