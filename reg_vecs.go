package regalloc

// Sanitized use collection: per-instruction (used, modified, defined) register
// vectors, flattened into three shared arrays with per-instruction bounds, and
// filtered against the universe. Everything downstream reads registers through
// this, never through Function.GetRegs again.

type (
	// RegVecs holds the flattened mention vectors for the whole function.
	RegVecs struct {
		Uses, Mods, Defs []Reg
	}

	// RegVecBounds locates one instruction's mentions inside RegVecs.
	RegVecBounds struct {
		UsesStart, ModsStart, DefsStart uint32
		UsesLen, ModsLen, DefsLen       uint8
	}

	// RegVecsAndBounds is the sanitized-use table for a function.
	RegVecsAndBounds struct {
		Vecs   RegVecs
		Bounds []RegVecBounds
	}

	// Mention is the use/mod/def annotation of one virtual register at one
	// instruction. Mod implies a read at the Use point and a write at the Def
	// point, with the same real register on both sides.
	Mention uint8

	// MentionEntry is a Mention located at an instruction.
	MentionEntry struct {
		Ix      InstIx
		Mention Mention
	}

	// MentionMap is a register's mentions in ascending instruction order.
	MentionMap []MentionEntry

	// moveInfo records one register-to-register move instruction, for reftype
	// propagation over the move graph.
	moveInfo struct {
		ix       InstIx
		dst, src Reg
	}
)

const (
	mentionUse Mention = 1 << iota
	mentionMod
	mentionDef
)

func (m Mention) IsUse() bool      { return m&mentionUse != 0 }
func (m Mention) IsMod() bool      { return m&mentionMod != 0 }
func (m Mention) IsDef() bool      { return m&mentionDef != 0 }
func (m Mention) IsUseOrMod() bool { return m&(mentionUse|mentionMod) != 0 }
func (m Mention) IsModOrDef() bool { return m&(mentionMod|mentionDef) != 0 }

// add records a mention of kind k at instruction ix, coalescing with the last
// entry when it is for the same instruction.
func (mm MentionMap) add(ix InstIx, k Mention) MentionMap {
	if n := len(mm); n > 0 && mm[n-1].Ix == ix {
		mm[n-1].Mention |= k
		return mm
	}
	return append(mm, MentionEntry{Ix: ix, Mention: k})
}

// uses returns the use-side mentions of instruction ix.
func (rvb *RegVecsAndBounds) uses(ix InstIx) []Reg {
	b := &rvb.Bounds[ix]
	return rvb.Vecs.Uses[b.UsesStart : b.UsesStart+uint32(b.UsesLen)]
}

// mods returns the modified mentions of instruction ix.
func (rvb *RegVecsAndBounds) mods(ix InstIx) []Reg {
	b := &rvb.Bounds[ix]
	return rvb.Vecs.Mods[b.ModsStart : b.ModsStart+uint32(b.ModsLen)]
}

// defs returns the def-side mentions of instruction ix.
func (rvb *RegVecsAndBounds) defs(ix InstIx) []Reg {
	b := &rvb.Bounds[ix]
	return rvb.Vecs.Defs[b.DefsStart : b.DefsStart+uint32(b.DefsLen)]
}

// mentionsReg reports whether instruction ix mentions any register at all.
func (rvb *RegVecsAndBounds) mentionsReg(ix InstIx) bool {
	b := &rvb.Bounds[ix]
	return b.UsesLen != 0 || b.ModsLen != 0 || b.DefsLen != 0
}

// getSanitizedRegUses collects and sanitizes the register mentions of every
// instruction. Real registers outside the universe fail with
// IllegalRealRegError; real registers known to the universe but not
// allocatable are dropped, since the allocator neither tracks nor reassigns
// them.
//
// Alongside the vectors it gathers the per-virtual-register mention maps, the
// move list, and the set of classes in which virtual registers occur.
func getSanitizedRegUses(f Function, u *RealRegUniverse) (*RegVecsAndBounds, *sanitizedExtras, error) {
	n := f.NumInsns()
	rvb := &RegVecsAndBounds{Bounds: make([]RegVecBounds, n)}
	extras := &sanitizedExtras{}

	collector := RegUsageCollector{vecs: &rvb.Vecs}
	for ix := InstIx(0); int(ix) < n; ix++ {
		b := &rvb.Bounds[ix]
		b.UsesStart = uint32(len(rvb.Vecs.Uses))
		b.ModsStart = uint32(len(rvb.Vecs.Mods))
		b.DefsStart = uint32(len(rvb.Vecs.Defs))

		f.GetRegs(ix, &collector)

		var err error
		rvb.Vecs.Uses, err = sanitize(rvb.Vecs.Uses[b.UsesStart:], rvb.Vecs.Uses[:b.UsesStart], u)
		if err != nil {
			return nil, nil, err
		}
		rvb.Vecs.Mods, err = sanitize(rvb.Vecs.Mods[b.ModsStart:], rvb.Vecs.Mods[:b.ModsStart], u)
		if err != nil {
			return nil, nil, err
		}
		rvb.Vecs.Defs, err = sanitize(rvb.Vecs.Defs[b.DefsStart:], rvb.Vecs.Defs[:b.DefsStart], u)
		if err != nil {
			return nil, nil, err
		}
		nu := uint32(len(rvb.Vecs.Uses)) - b.UsesStart
		nm := uint32(len(rvb.Vecs.Mods)) - b.ModsStart
		nd := uint32(len(rvb.Vecs.Defs)) - b.DefsStart
		if nu > 255 || nm > 255 || nd > 255 {
			return nil, nil, &ImplementationLimitsExceededError{}
		}
		b.UsesLen = uint8(nu)
		b.ModsLen = uint8(nm)
		b.DefsLen = uint8(nd)

		for _, r := range rvb.uses(ix) {
			extras.observe(r, ix, mentionUse)
		}
		for _, r := range rvb.mods(ix) {
			extras.observe(r, ix, mentionMod)
		}
		for _, r := range rvb.defs(ix) {
			extras.observe(r, ix, mentionDef)
		}

		if dst, src, ok := f.IsMove(ix); ok {
			extras.moves = append(extras.moves, moveInfo{ix: ix, dst: dst, src: src})
		}
	}
	return rvb, extras, nil
}

// sanitize filters the freshly appended mentions in fresh, writing survivors
// back over prefix's tail, and validates real registers against the universe.
func sanitize(fresh, prefix []Reg, u *RealRegUniverse) ([]Reg, error) {
	out := prefix
	for _, r := range fresh {
		if r.IsReal() {
			if int(r.Index()) >= len(u.Regs) {
				return nil, &IllegalRealRegError{Reg: r.AsReal()}
			}
			if int(r.Index()) >= u.Allocable {
				continue
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// sanitizedExtras carries the secondary products of the sanitizing pass.
type sanitizedExtras struct {
	// vregMentions maps a virtual register index to its MentionMap.
	vregMentions []MentionMap
	// vregByIndex recovers the full VirtualReg (with class) from its index.
	vregByIndex []VirtualReg
	// numVRegs is one past the largest virtual register index seen.
	numVRegs uint32
	// usedVRegClasses has bit c set when a virtual register of class c occurs.
	usedVRegClasses uint8
	// moves lists the register-to-register move instructions.
	moves []moveInfo
	// universalToReg recovers a Reg from its universal sparse-set index.
	universalToReg map[uint]Reg
}

// observeUniversal registers a register in the universal index lookup without
// recording a mention, for registers that only appear in ABI live sets.
func (e *sanitizedExtras) observeUniversal(r Reg) {
	if e.universalToReg == nil {
		e.universalToReg = make(map[uint]Reg)
	}
	e.universalToReg[universalIndex(r)] = r
}

func (e *sanitizedExtras) observe(r Reg, ix InstIx, k Mention) {
	e.observeUniversal(r)
	if !r.IsVirtual() {
		return
	}
	vi := r.Index()
	if vi >= e.numVRegs {
		e.numVRegs = vi + 1
	}
	for uint32(len(e.vregMentions)) <= vi {
		e.vregMentions = append(e.vregMentions, nil)
		e.vregByIndex = append(e.vregByIndex, VirtualRegInvalid)
	}
	e.vregMentions[vi] = e.vregMentions[vi].add(ix, k)
	e.vregByIndex[vi] = r.AsVirtual()
	e.usedVRegClasses |= 1 << r.Class()
}

// lookupUniversal recovers the Reg for a universal sparse-set index.
func (e *sanitizedExtras) lookupUniversal(i uint) Reg {
	r, ok := e.universalToReg[i]
	if !ok {
		panic("BUG: unknown universal register index")
	}
	return r
}
