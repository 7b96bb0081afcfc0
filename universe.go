package regalloc

import "fmt"

type (
	// RealRegUniverse is the immutable description of the machine's real
	// registers, partitioned by register class. The first Allocable entries of
	// Regs are available to the allocator; any registers after that are known
	// to the universe (so instructions may mention them) but never assigned.
	RealRegUniverse struct {
		// Regs lists all registers, allocatable first. Reg i must satisfy
		// Regs[i].Reg.Index() == i.
		Regs []RealRegAndName
		// Allocable is the number of allocatable registers at the front of Regs.
		Allocable int
		// AllocableByClass describes, per class, the [First, Last] span within
		// Regs[:Allocable] holding that class's registers, or nil if the class
		// has none.
		AllocableByClass [NumRegClasses]*RegClassInfo
	}

	// RealRegAndName pairs a real register with its ISA name for printing.
	RealRegAndName struct {
		Reg  RealReg
		Name string
	}

	// RegClassInfo describes the allocatable registers of one class.
	RegClassInfo struct {
		// First and Last are inclusive indices into RealRegUniverse.Regs.
		First, Last int
		// SuggestedScratch is the index of the register the allocator reserves
		// for cycle-breaking moves and spill-code temporaries, or -1.
		SuggestedScratch int
	}
)

// CheckSanity validates the universe's internal consistency. The allocator
// calls this once on entry; a failure means the embedder built the universe
// wrongly, not that the input function is invalid.
func (u *RealRegUniverse) CheckSanity() error {
	if len(u.Regs) > MaxRealRegs {
		return fmt.Errorf("too many real registers: %d > %d", len(u.Regs), MaxRealRegs)
	}
	if u.Allocable > len(u.Regs) {
		return fmt.Errorf("allocable count %d exceeds register count %d", u.Allocable, len(u.Regs))
	}
	for i, rn := range u.Regs {
		if !rn.Reg.Valid() {
			return fmt.Errorf("register %d is invalid", i)
		}
		if int(rn.Reg.Index()) != i {
			return fmt.Errorf("register %d has index %d", i, rn.Reg.Index())
		}
		if rn.Name == "" {
			return fmt.Errorf("register %d has no name", i)
		}
	}
	for rc := RegClass(0); rc < NumRegClasses; rc++ {
		info := u.AllocableByClass[rc]
		if info == nil {
			continue
		}
		if info.First < 0 || info.Last >= u.Allocable || info.First > info.Last {
			return fmt.Errorf("class %s has bad span [%d, %d]", rc, info.First, info.Last)
		}
		for i := info.First; i <= info.Last; i++ {
			if got := u.Regs[i].Reg.Class(); got != rc {
				return fmt.Errorf("register %d is in class %s's span but has class %s", i, rc, got)
			}
		}
		if s := info.SuggestedScratch; s != -1 && (s < info.First || s > info.Last) {
			return fmt.Errorf("class %s scratch %d outside span [%d, %d]", rc, s, info.First, info.Last)
		}
	}
	return nil
}

// scratchFor returns the scratch register for the class, or RealRegInvalid.
func (u *RealRegUniverse) scratchFor(rc RegClass) RealReg {
	info := u.AllocableByClass[rc]
	if info == nil || info.SuggestedScratch == -1 {
		return RealRegInvalid
	}
	return u.Regs[info.SuggestedScratch].Reg
}

// RegName returns the ISA name of the given real register for debugging.
func (u *RealRegUniverse) RegName(r RealReg) string {
	if i := int(r.Index()); i < len(u.Regs) {
		return u.Regs[i].Name
	}
	return r.String()
}
