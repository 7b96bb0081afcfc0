package regalloc

import "fmt"

// RegClass denotes the register class of a real or virtual register. Disjoint
// classes are allocated independently: a virtual register of one class can only
// ever live in a real register of the same class, or in a spill slot sized for
// that class.
type RegClass uint8

const (
	RegClassI32 RegClass = iota
	RegClassF32
	RegClassI64
	RegClassF64
	RegClassV128
	NumRegClasses = 5
)

// String implements fmt.Stringer.
func (rc RegClass) String() string {
	switch rc {
	case RegClassI32:
		return "I32"
	case RegClassF32:
		return "F32"
	case RegClassI64:
		return "I64"
	case RegClassF64:
		return "F64"
	case RegClassV128:
		return "V128"
	default:
		return "invalid"
	}
}

// Reg is either a real or a virtual register, packed into 32 bits:
//
//	bit  31     virtual flag
//	bits 28..30 register class
//	bits 0..27  dense index (for a real register, the index into the universe)
//
// Both variants expose the dense index and the register class without
// unpacking into a wider struct, so a Reg can be used directly as a map key
// or sorted as an integer.
type Reg uint32

const (
	regVirtualFlag Reg = 1 << 31
	regClassShift      = 28
	regIndexMask   Reg = (1 << regClassShift) - 1

	// RegInvalid is the zero-like sentinel; no valid register encodes to it.
	RegInvalid = Reg(^uint32(0))
)

// NewVirtualReg returns a virtual Reg of the given class and dense index.
func NewVirtualReg(rc RegClass, index uint32) Reg {
	if Reg(index) > regIndexMask {
		panic(fmt.Sprintf("BUG: virtual register index too large: %d", index))
	}
	return regVirtualFlag | Reg(rc)<<regClassShift | Reg(index)
}

// NewRealReg returns a real Reg of the given class and universe index.
func NewRealReg(rc RegClass, index uint32) Reg {
	if index >= MaxRealRegs {
		panic(fmt.Sprintf("BUG: real register index too large: %d", index))
	}
	return Reg(rc)<<regClassShift | Reg(index)
}

// IsVirtual returns true if this Reg denotes a virtual register.
func (r Reg) IsVirtual() bool { return r != RegInvalid && r&regVirtualFlag != 0 }

// IsReal returns true if this Reg denotes a real register.
func (r Reg) IsReal() bool { return r != RegInvalid && r&regVirtualFlag == 0 }

// Class returns the register class of this Reg.
func (r Reg) Class() RegClass { return RegClass(r &^ regVirtualFlag >> regClassShift) }

// Index returns the dense index of this Reg within its variant's index space.
func (r Reg) Index() uint32 { return uint32(r & regIndexMask) }

// AsVirtual narrows this Reg to a VirtualReg.
func (r Reg) AsVirtual() VirtualReg {
	if !r.IsVirtual() {
		panic(fmt.Sprintf("BUG: %s is not a virtual register", r))
	}
	return VirtualReg(r)
}

// AsReal narrows this Reg to a RealReg.
func (r Reg) AsReal() RealReg {
	if !r.IsReal() {
		panic(fmt.Sprintf("BUG: %s is not a real register", r))
	}
	return RealReg(r)
}

// String implements fmt.Stringer.
func (r Reg) String() string {
	if r == RegInvalid {
		return "rINVALID"
	}
	if r.IsVirtual() {
		return fmt.Sprintf("%%v%d%s", r.Index(), r.Class())
	}
	return fmt.Sprintf("%%r%d%s", r.Index(), r.Class())
}

// VirtualReg is a Reg statically known to be virtual.
type VirtualReg Reg

// VirtualRegInvalid is the sentinel VirtualReg.
const VirtualRegInvalid = VirtualReg(RegInvalid)

func (v VirtualReg) ToReg() Reg        { return Reg(v) }
func (v VirtualReg) Class() RegClass   { return Reg(v).Class() }
func (v VirtualReg) Index() uint32     { return Reg(v).Index() }
func (v VirtualReg) String() string    { return Reg(v).String() }
func (v VirtualReg) Valid() bool       { return v != VirtualRegInvalid }

// RealReg is a Reg statically known to be real. Its index is the position in
// the RealRegUniverse it was created from.
type RealReg Reg

// RealRegInvalid is the sentinel RealReg.
const RealRegInvalid = RealReg(RegInvalid)

func (r RealReg) ToReg() Reg      { return Reg(r) }
func (r RealReg) Class() RegClass { return Reg(r).Class() }
func (r RealReg) Index() uint32   { return Reg(r).Index() }
func (r RealReg) String() string  { return Reg(r).String() }
func (r RealReg) Valid() bool     { return r != RealRegInvalid }

// MaxRealRegs bounds the size of a RealRegUniverse. Real-register sets are
// held as 64-bit masks, so the universe cannot name more than 64 registers.
const MaxRealRegs = 64

// Typed dense indices. Each acts as a key into a packed vector owned by the
// analysis results; none of them is ever an owning pointer.
type (
	// BlockIx identifies a basic block of the input function.
	BlockIx uint32
	// InstIx identifies an instruction of the input function.
	InstIx uint32
	// SpillSlot identifies one word of spill space in the function's frame.
	SpillSlot uint32
	// RangeFragIx identifies a RangeFrag in the analysis fragment table.
	RangeFragIx uint32
	// VirtualRangeIx identifies a VirtualRange.
	VirtualRangeIx uint32
	// RealRangeIx identifies a RealRange.
	RealRangeIx uint32
)

const (
	BlockIxInvalid        = BlockIx(^uint32(0))
	InstIxInvalid         = InstIx(^uint32(0))
	SpillSlotInvalid      = SpillSlot(^uint32(0))
	RangeFragIxInvalid    = RangeFragIx(^uint32(0))
	VirtualRangeIxInvalid = VirtualRangeIx(^uint32(0))
	RealRangeIxInvalid    = RealRangeIx(^uint32(0))
)

func (b BlockIx) String() string        { return fmt.Sprintf("b%d", uint32(b)) }
func (i InstIx) String() string         { return fmt.Sprintf("i%d", uint32(i)) }
func (s SpillSlot) String() string      { return fmt.Sprintf("S%d", uint32(s)) }
func (f RangeFragIx) String() string    { return fmt.Sprintf("f%d", uint32(f)) }
func (v VirtualRangeIx) String() string { return fmt.Sprintf("vr%d", uint32(v)) }
func (r RealRangeIx) String() string    { return fmt.Sprintf("rr%d", uint32(r)) }

// Implementation limits. Exceeding either yields ImplementationLimitsExceededError.
const (
	maxBlocks = 1 << 20
	maxInsts  = 1 << 24
)

// Point is the intra-instruction position of an InstPoint. Reload and Spill
// are never produced by analysis or by the allocators; the rewrite orders the
// instructions it inserts with its own instSubPoint instead.
type Point uint8

const (
	PointReload Point = iota
	PointUse
	PointDef
	PointSpill
)

// String implements fmt.Stringer.
func (p Point) String() string {
	switch p {
	case PointReload:
		return "r"
	case PointUse:
		return "u"
	case PointDef:
		return "d"
	case PointSpill:
		return "s"
	default:
		return "?"
	}
}

// InstPoint is a program point: an instruction index paired with a Point,
// packed so that the integer ordering of InstPoint is the program order.
// The Use point of an instruction precedes its Def point.
type InstPoint uint64

// InstPointInvalid orders after every valid program point.
const InstPointInvalid = InstPoint(^uint64(0))

const instPointShift = 2

// MakeInstPoint returns the program point at the given instruction and Point.
func MakeInstPoint(i InstIx, p Point) InstPoint {
	return InstPoint(i)<<instPointShift | InstPoint(p)
}

// UsePoint returns the Use point of the given instruction.
func UsePoint(i InstIx) InstPoint { return MakeInstPoint(i, PointUse) }

// DefPoint returns the Def point of the given instruction.
func DefPoint(i InstIx) InstPoint { return MakeInstPoint(i, PointDef) }

// Inst returns the instruction this point belongs to.
func (p InstPoint) Inst() InstIx { return InstIx(p >> instPointShift) }

// Point returns the intra-instruction position of this point.
func (p InstPoint) Point() Point { return Point(p & (1<<instPointShift - 1)) }

// String implements fmt.Stringer.
func (p InstPoint) String() string {
	if p == InstPointInvalid {
		return "pINVALID"
	}
	return fmt.Sprintf("%s%s", p.Inst(), p.Point())
}
