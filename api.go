package regalloc

import "fmt"

// These interfaces are implemented by ISA-specific backends to abstract away
// the details, and allow the register allocators to work on any ISA. The
// allocator never inspects instructions beyond the capabilities below; it
// refers to them by InstIx and hands back a rewritten stream in Result.

type (
	// Function is the top-level interface consumed by register allocation:
	// a CFG of basic blocks holding a single contiguous instruction vector.
	//
	// The block list must be ordered so that BlockInsns ranges partition the
	// instruction vector in ascending order, with the entry block first in
	// program order. The last instruction of every block is its terminator.
	Function interface {
		// NumInsns returns the total number of instructions.
		NumInsns() int
		// NumBlocks returns the total number of blocks.
		NumBlocks() int
		// Blocks returns the ordered block indices, entry first.
		Blocks() []BlockIx
		// BlockInsns returns the contiguous instruction span of the block.
		BlockInsns(BlockIx) InstRange
		// BlockSuccs returns the successor blocks of the block. The returned
		// slice may be reused by the implementation across calls.
		BlockSuccs(BlockIx) []BlockIx
		// EntryBlock returns the entry block.
		EntryBlock() BlockIx
		// IsRet returns true iff the instruction is a return terminator.
		IsRet(InstIx) bool
		// GetRegs appends the registers the instruction uses, modifies and
		// defines to the collector, once per mention.
		GetRegs(InstIx, *RegUsageCollector)
		// IsMove reports whether the instruction is a plain register-to-register
		// move, and if so which registers it moves.
		IsMove(InstIx) (dst, src Reg, ok bool)
		// MapRegs rewrites each virtual register mention of the instruction
		// through the mapper, once per side.
		MapRegs(InstIx, RegUsageMapper)
		// Insn returns the (possibly rewritten) instruction, for assembling the
		// final instruction vector.
		Insn(InstIx) Instruction
		// GenSpill returns a target instruction storing from into slot. vreg
		// identifies the virtual register whose value moves, for annotation.
		GenSpill(slot SpillSlot, from RealReg, vreg VirtualReg) Instruction
		// GenReload returns a target instruction loading slot into to.
		GenReload(to RealReg, slot SpillSlot, vreg VirtualReg) Instruction
		// GenMove returns a target register-to-register move.
		GenMove(dst, src RealReg, vreg VirtualReg) Instruction
		// GetSpillSlotSize returns the number of spill-slot words a virtual
		// register of the class occupies.
		GetSpillSlotSize(RegClass, VirtualReg) uint32
		// FuncLiveins returns the ABI-level real registers live on entry.
		FuncLiveins() []RealReg
		// FuncLiveouts returns the ABI-level real registers live at returns.
		FuncLiveouts() []RealReg
		// IsIncludedInClobbers reports whether the instruction's writes
		// contribute to Result.ClobberedRegisters.
		IsIncludedInClobbers(InstIx) bool
	}

	// Instruction is an opaque target instruction. The allocator only ever
	// stores and prints these.
	Instruction interface {
		fmt.Stringer
	}

	// InstRange is a contiguous half-open span of instruction indices.
	InstRange struct {
		First InstIx
		// Len is the number of instructions; blocks are never empty.
		Len uint32
	}

	// RegUsageMapper supplies the virtual-to-real mapping for one instruction
	// during MapRegs. A modified register maps identically on both sides.
	RegUsageMapper interface {
		// GetUse returns the replacement for a use-side mention, or
		// RealRegInvalid if the register is not mapped at this instruction.
		GetUse(VirtualReg) RealReg
		// GetDef returns the replacement for a def-side mention.
		GetDef(VirtualReg) RealReg
		// GetMod returns the replacement for a modified mention.
		GetMod(VirtualReg) RealReg
	}

	// RegUsageCollector receives an instruction's register mentions.
	RegUsageCollector struct {
		vecs *RegVecs
	}

	// StackmapRequestInfo asks the allocator to compute stack maps at the given
	// safepoints for the given reference-typed virtual registers.
	StackmapRequestInfo struct {
		// RefTypeClass is the register class carrying reference-typed values.
		RefTypeClass RegClass
		// RefTypedVRegs are the roots of the reference-type closure.
		RefTypedVRegs []VirtualReg
		// SafepointInsns are the safepoint instructions, in ascending order.
		SafepointInsns []InstIx
	}

	// Result is the output of a successful allocation.
	Result struct {
		// Insns is the final instruction vector: the original instructions,
		// rewritten in place, interleaved with generated spills, reloads and
		// moves.
		Insns []Instruction
		// TargetMap maps each block to the new index of its first instruction,
		// for branch target fix-up.
		TargetMap []InstIx
		// OrigInstMap maps each new instruction index to the original InstIx it
		// came from, or InstIxInvalid for inserted instructions.
		OrigInstMap []InstIx
		// NewInstMap maps each original InstIx to its new index.
		NewInstMap []InstIx
		// ClobberedRegisters holds the allocatable real registers written by the
		// rewritten function, restricted to instructions included in clobbers.
		ClobberedRegisters RegSet
		// NumSpillSlots is the total number of spill-slot words used.
		NumSpillSlots uint32
		// BlockAnnotations optionally carries per-block printable summaries of
		// the edits applied, keyed by BlockIx. Nil unless Options.Annotations.
		BlockAnnotations map[BlockIx][]string
		// Stackmaps holds one sorted SpillSlot set per requested safepoint.
		Stackmaps [][]SpillSlot
		// NewSafepointInsns are the new indices of the requested safepoints.
		NewSafepointInsns []InstIx
	}
)

// Contains returns true if the range contains i.
func (r InstRange) Contains(i InstIx) bool {
	return i >= r.First && uint32(i-r.First) < r.Len
}

// Last returns the index of the final instruction in the range.
func (r InstRange) Last() InstIx {
	if r.Len == 0 {
		panic("BUG: empty instruction range")
	}
	return r.First + InstIx(r.Len-1)
}

// AddUse records a use-side register mention.
func (c *RegUsageCollector) AddUse(r Reg) { c.vecs.Uses = append(c.vecs.Uses, r) }

// AddMod records a modified register mention.
func (c *RegUsageCollector) AddMod(r Reg) { c.vecs.Mods = append(c.vecs.Mods, r) }

// AddDef records a def-side register mention.
func (c *RegUsageCollector) AddDef(r Reg) { c.vecs.Defs = append(c.vecs.Defs, r) }
