package regalloc

// Reference-type propagation: given the caller's reference-typed virtual
// registers, close over the register-to-register move graph and mark every
// reachable range. A real range can become reference-typed when a reference
// moves through a real register (argument or callee-saved motion).

func propagateRefTypes(req *StackmapRequestInfo, env *fragEnv, rt *rangeTables, moves []moveInfo) {
	numV := len(rt.vlrs)
	parent := make([]int, numV+len(rt.rlrs))
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

	// nodeOf returns the union-find node for the range of reg covering p.
	nodeOf := func(reg Reg, p InstPoint) (int, bool) {
		if reg.IsVirtual() {
			if int(reg.Index()) >= len(rt.maps.byVReg) {
				return 0, false
			}
			for _, ix := range rt.maps.byVReg[reg.Index()] {
				if coversPoint(env, rt.vlrs[ix].SortedFrags, p) {
					return int(ix), true
				}
			}
			return 0, false
		}
		if int(reg.Index()) >= len(rt.maps.byRReg) {
			return 0, false
		}
		for _, ix := range rt.maps.byRReg[reg.Index()] {
			if coversPoint(env, rt.rlrs[ix].SortedFrags, p) {
				return numV + int(ix), true
			}
		}
		return 0, false
	}

	for _, mv := range moves {
		src, okS := nodeOf(mv.src, UsePoint(mv.ix))
		dst, okD := nodeOf(mv.dst, DefPoint(mv.ix))
		if okS && okD {
			union(src, dst)
		}
	}

	refRoots := map[int]bool{}
	for _, v := range req.RefTypedVRegs {
		if int(v.Index()) >= len(rt.maps.byVReg) {
			continue
		}
		for _, ix := range rt.maps.byVReg[v.Index()] {
			refRoots[find(int(ix))] = true
		}
	}

	for i := range rt.vlrs {
		if refRoots[find(i)] {
			rt.vlrs[i].IsRef = true
		}
	}
	for i := range rt.rlrs {
		if refRoots[find(numV+i)] {
			rt.rlrs[i].IsRef = true
		}
	}
}
