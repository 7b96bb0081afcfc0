package regalloc

import (
	"fmt"
	"sort"
)

// Plan construction for the backtracking allocator. Whole ranges keep a single
// location, so no cross-edge moves are ever needed: a virtual register live
// across an edge is by construction one connected component with one location
// on both sides.

func buildBacktrackingPlan(info *analysisInfo, req *StackmapRequestInfo, numSpillSlots uint32) *rewritePlan {
	plan := &rewritePlan{numSpillSlots: numSpillSlots}

	for i := range info.rt.vlrs {
		vlr := &info.rt.vlrs[i]
		var loc Location
		switch {
		case vlr.rreg.Valid():
			loc = RegLocation(vlr.rreg)
		case vlr.slot != SpillSlotInvalid:
			loc = StackLocation(vlr.slot)
		default:
			panic(fmt.Sprintf("BUG: %s reached rewrite unassigned", vlr))
		}
		for _, me := range info.mentionsWithin(vlr.VReg, vlr.SortedFrags) {
			plan.quads = append(plan.quads, mentionQuad{
				ix:      me.Ix,
				mention: me.Mention,
				vreg:    vlr.VReg,
				loc:     loc,
			})
		}
	}

	if req != nil {
		plan.stackmaps = make([][]SpillSlot, len(req.SafepointInsns))
		plan.safepointSlotOwners = make([][]slotOwner, len(req.SafepointInsns))
		for i := range info.rt.vlrs {
			vlr := &info.rt.vlrs[i]
			if !vlr.IsRef || vlr.slot == SpillSlotInvalid {
				continue
			}
			for _, sp := range info.vlrSafepoints[i] {
				plan.stackmaps[sp] = append(plan.stackmaps[sp], vlr.slot)
				plan.safepointSlotOwners[sp] = append(plan.safepointSlotOwners[sp], slotOwner{slot: vlr.slot, vreg: vlr.VReg})
			}
		}
		for sp := range plan.stackmaps {
			sort.Slice(plan.stackmaps[sp], func(a, b int) bool { return plan.stackmaps[sp][a] < plan.stackmaps[sp][b] })
			plan.stackmaps[sp] = dedupeSlots(plan.stackmaps[sp])
		}
	}
	return plan
}
