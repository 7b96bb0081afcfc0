package regalloc

import (
	"math/bits"
	"strings"
)

// RegSet represents a set of real registers as a 64-bit mask indexed by the
// universe index. MaxRealRegs keeps every universe inside the mask.
type RegSet uint64

// NewRegSet returns a new RegSet with the given registers.
func NewRegSet(regs ...RealReg) RegSet {
	var ret RegSet
	for _, r := range regs {
		ret = ret.Add(r)
	}
	return ret
}

// Has returns true if r is in the set.
func (rs RegSet) Has(r RealReg) bool {
	return rs&(1<<uint(r.Index())) != 0
}

// Add returns the set with r added.
func (rs RegSet) Add(r RealReg) RegSet {
	return rs | 1<<uint(r.Index())
}

// Remove returns the set with r removed.
func (rs RegSet) Remove(r RealReg) RegSet {
	return rs &^ (1 << uint(r.Index()))
}

// Cardinality returns the number of registers in the set.
func (rs RegSet) Cardinality() int {
	return bits.OnesCount64(uint64(rs))
}

// Range calls f for each register index in the set, in ascending index order.
func (rs RegSet) Range(f func(index uint32)) {
	for v := uint64(rs); v != 0; {
		i := uint(bits.TrailingZeros64(v))
		f(uint32(i))
		v &^= 1 << i
	}
}

func (rs RegSet) format(u *RealRegUniverse) string { //nolint:unused
	var ret []string
	rs.Range(func(i uint32) {
		ret = append(ret, u.Regs[i].Name)
	})
	return strings.Join(ret, ", ")
}

// regSparseSet is a set of registers keyed by universal dense index: real
// registers occupy [0, MaxRealRegs), virtual registers [MaxRealRegs, ...).
// Membership is a bitset so that iteration is in ascending index order, which
// keeps everything downstream of the liveness sets deterministic.
type regSparseSet struct {
	set bitset
}

// universalIndex maps a register to its key in a regSparseSet.
func universalIndex(r Reg) uint {
	if r.IsReal() {
		return uint(r.Index())
	}
	return MaxRealRegs + uint(r.Index())
}

func (s *regSparseSet) insert(r Reg) {
	s.set.set(universalIndex(r))
}

func (s *regSparseSet) contains(r Reg) bool {
	return s.set.has(universalIndex(r))
}

func (s *regSparseSet) clear() {
	s.set.reset()
}

// unionWith adds all members of other, reporting whether the set grew.
func (s *regSparseSet) unionWith(other *regSparseSet) bool {
	return s.set.unionWith(&other.set)
}

// removeAll removes all members of other.
func (s *regSparseSet) removeAll(other *regSparseSet) {
	s.set.removeAll(&other.set)
}

// rangeAll calls f for each member in ascending universal index order. The
// class of each register cannot be recovered from the index alone, so members
// are yielded through the lookup table built by the sanitizing pass.
func (s *regSparseSet) rangeAll(lookup func(universal uint) Reg, f func(Reg)) {
	s.set.scan(func(i uint) { f(lookup(i)) })
}

func (s *regSparseSet) cardinality() int {
	return s.set.cardinality()
}

// bitset is a growable bitmap with a small inline buffer. Most sets in a
// function stay under 320 bits; larger ones fall back to the heap.
type bitset struct {
	bits []uint64
	buf  [5]uint64
}

func (b *bitset) reset() {
	b.bits, b.buf = b.bits[:0], [5]uint64{}
}

func (b *bitset) scan(f func(uint)) {
	for i, v := range b.bits {
		for j := uint(i * 64); v != 0; j++ {
			n := uint(bits.TrailingZeros64(v))
			j += n
			v >>= n + 1
			f(j)
		}
	}
}

func (b *bitset) has(i uint) bool {
	index, shift := i/64, i%64
	return index < uint(len(b.bits)) && ((b.bits[index] & (1 << shift)) != 0)
}

func (b *bitset) set(i uint) {
	index, shift := i/64, i%64
	b.grow(index)
	b.bits[index] |= 1 << shift
}

func (b *bitset) grow(index uint) {
	if index < uint(len(b.bits)) {
		return
	}
	if index < uint(len(b.buf)) {
		b.bits = b.buf[:index+1]
	} else {
		b.bits = append(b.bits, make([]uint64, (index+1)-uint(len(b.bits)))...)
		b.buf = [5]uint64{}
	}
}

func (b *bitset) unionWith(other *bitset) (grew bool) {
	for i, w := range other.bits {
		if w == 0 {
			continue
		}
		b.grow(uint(i))
		old := b.bits[i]
		b.bits[i] = old | w
		if b.bits[i] != old {
			grew = true
		}
	}
	return grew
}

func (b *bitset) removeAll(other *bitset) {
	n := len(b.bits)
	if len(other.bits) < n {
		n = len(other.bits)
	}
	for i := 0; i < n; i++ {
		b.bits[i] &^= other.bits[i]
	}
}

func (b *bitset) cardinality() (n int) {
	for _, w := range b.bits {
		n += bits.OnesCount64(w)
	}
	return
}
