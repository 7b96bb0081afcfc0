package regalloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnalyzeCFG_diamond(t *testing.T) {
	f := newMockFunction(
		block([]BlockIx{1, 2}, insn("a"), insn("brz")),
		block([]BlockIx{3}, insn("b"), insn("jmp")),
		block([]BlockIx{3}, insn("c"), insn("jmp")),
		block(nil, insn("d"), insn("ret").ret()),
	)
	cfg, err := analyzeCFG(f)
	require.NoError(t, err)

	require.Equal(t, []BlockIx{0, 2, 1, 3}, cfg.rpo)
	require.Equal(t, []BlockIx{1, 2}, cfg.preds[3])
	require.Equal(t, []BlockIx{1, 2}, cfg.succs[0])
	require.Equal(t, []BlockIx{0, 0, 1, 1, 2, 2, 3, 3}, cfg.instToBlock)
	require.Equal(t, []uint32{0, 0, 0, 0}, cfg.depth)
	require.Nil(t, cfg.checkCriticalEdges())
}

func TestAnalyzeCFG_loopDepth(t *testing.T) {
	// b0 -> b1 <-> b2, b2 -> b3; b1/b2 form a loop.
	f := newMockFunction(
		block([]BlockIx{1}, insn("a"), insn("jmp")),
		block([]BlockIx{2}, insn("b"), insn("jmp")),
		block([]BlockIx{1, 3}, insn("c"), insn("brz")),
		block(nil, insn("d"), insn("ret").ret()),
	)
	cfg, err := analyzeCFG(f)
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 1, 1, 0}, cfg.depth)
	require.Equal(t, uint32(1), cfg.freq[0])
	require.Equal(t, uint32(8), cfg.freq[1])
	require.Equal(t, uint32(8), cfg.freq[2])
}

func TestAnalyzeCFG_selfLoop(t *testing.T) {
	f := newMockFunction(
		block([]BlockIx{1}, insn("a"), insn("jmp")),
		block([]BlockIx{1, 2}, insn("b"), insn("brz")),
		block(nil, insn("ret").ret()),
	)
	cfg, err := analyzeCFG(f)
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 1, 0}, cfg.depth)
}

func TestAnalyzeCFG_unreachable(t *testing.T) {
	f := newMockFunction(
		block(nil, insn("ret").ret()),
		block(nil, insn("ret").ret()),
	)
	_, err := analyzeCFG(f)
	ub := &UnreachableBlocksError{}
	require.ErrorAs(t, err, &ub)
}

func TestCheckCriticalEdges(t *testing.T) {
	f := newMockFunction(
		block([]BlockIx{1, 2}, insn("brz")),
		block([]BlockIx{2}, insn("jmp")),
		block(nil, insn("ret").ret()),
	)
	cfg, err := analyzeCFG(f)
	require.NoError(t, err)
	ce := cfg.checkCriticalEdges()
	require.NotNil(t, ce)
	require.Equal(t, BlockIx(0), ce.From)
	require.Equal(t, BlockIx(2), ce.To)
}
