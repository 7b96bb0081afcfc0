package regalloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScheduleParallelMoves_acyclic(t *testing.T) {
	u := testUniverse(4)
	r0, r1, r2 := u.Regs[0].Reg, u.Regs[1].Reg, u.Regs[2].Reg

	seq := 0
	edits := scheduleParallelMoves(u, []parallelMove{
		{vreg: v64(0).AsVirtual(), src: RegLocation(r0), dst: RegLocation(r1)},
		{vreg: v64(1).AsVirtual(), src: RegLocation(r1), dst: RegLocation(r2)},
	}, 7, nil, &seq)

	// r2 <- r1 must run before r1 is overwritten.
	require.Equal(t, 2, len(edits))
	require.Equal(t, editMove, edits[0].kind)
	require.Equal(t, r2, edits[0].toReg)
	require.Equal(t, r1, edits[0].fromReg)
	require.Equal(t, editMove, edits[1].kind)
	require.Equal(t, r1, edits[1].toReg)
	require.Equal(t, r0, edits[1].fromReg)
	for _, e := range edits {
		require.Equal(t, InstIx(7), e.at.ix)
		require.Equal(t, subMove, e.at.sub)
	}
}

func TestScheduleParallelMoves_cycle(t *testing.T) {
	u := testUniverse(3)
	r0, r1 := u.Regs[0].Reg, u.Regs[1].Reg
	scratch := u.Regs[2].Reg

	seq := 0
	edits := scheduleParallelMoves(u, []parallelMove{
		{vreg: v64(0).AsVirtual(), src: RegLocation(r0), dst: RegLocation(r1)},
		{vreg: v64(1).AsVirtual(), src: RegLocation(r1), dst: RegLocation(r0)},
	}, 0, nil, &seq)

	require.Equal(t, 3, len(edits))
	// Park r1, swap through the scratch.
	require.Equal(t, scratch, edits[0].toReg)
	require.Equal(t, r1, edits[0].fromReg)
	require.Equal(t, r1, edits[1].toReg)
	require.Equal(t, r0, edits[1].fromReg)
	require.Equal(t, r0, edits[2].toReg)
	require.Equal(t, scratch, edits[2].fromReg)
}

func TestScheduleParallelMoves_stackLegs(t *testing.T) {
	u := testUniverse(3)
	r0, r1 := u.Regs[0].Reg, u.Regs[1].Reg

	seq := 0
	edits := scheduleParallelMoves(u, []parallelMove{
		// r0's old value parks on the stack while a reload fills r1.
		{vreg: v64(0).AsVirtual(), src: RegLocation(r0), dst: StackLocation(0)},
		{vreg: v64(1).AsVirtual(), src: StackLocation(1), dst: RegLocation(r1)},
	}, 0, nil, &seq)

	require.Equal(t, 2, len(edits))
	require.Equal(t, editSpill, edits[0].kind)
	require.Equal(t, SpillSlot(0), edits[0].slot)
	require.Equal(t, r0, edits[0].fromReg)
	require.Equal(t, editReload, edits[1].kind)
	require.Equal(t, SpillSlot(1), edits[1].slot)
	require.Equal(t, r1, edits[1].toReg)
}

func TestScheduleParallelMoves_identityFiltered(t *testing.T) {
	u := testUniverse(2)
	r0 := u.Regs[0].Reg
	seq := 0
	edits := scheduleParallelMoves(u, []parallelMove{
		{vreg: v64(0).AsVirtual(), src: RegLocation(r0), dst: RegLocation(r0)},
	}, 0, nil, &seq)
	require.Empty(t, edits)
}
