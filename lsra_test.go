package regalloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/regalloc/internal/arena"
)

func newTestLsraState(t *testing.T, f *mockFunction, u *RealRegUniverse) *lsraState {
	info, err := runAnalysis(f, u, nil, AlgorithmLinearScan)
	require.NoError(t, err)
	return &lsraState{
		f:           f,
		u:           u,
		info:        info,
		opts:        &LinearScanOptions{},
		ints:        arena.NewPool[virtualInterval](),
		fixed:       make([]*fixedInterval, u.Allocable),
		slotForRoot: map[intIx]SpillSlot{},
		freeUntil:   make([]InstPoint, u.Allocable),
		nextUse:     make([]InstPoint, u.Allocable),
	}
}

func TestVirtualInterval_coversAndMentions(t *testing.T) {
	vi := &virtualInterval{
		frags: []RangeFrag{
			{First: DefPoint(0), Last: UsePoint(2)},
			{First: UsePoint(5), Last: DefPoint(7)},
		},
		mentions: MentionMap{
			{Ix: 0, Mention: mentionDef},
			{Ix: 2, Mention: mentionUse},
			{Ix: 6, Mention: mentionUse | mentionDef},
		},
		start: DefPoint(0),
		end:   DefPoint(7),
	}
	require.True(t, vi.covers(UsePoint(1)))
	require.False(t, vi.covers(UsePoint(3)))
	require.True(t, vi.covers(UsePoint(5)))

	require.Equal(t, DefPoint(0), vi.nextMentionAfter(DefPoint(0)))
	require.Equal(t, UsePoint(2), vi.nextMentionAfter(UsePoint(1)))
	require.Equal(t, UsePoint(6), vi.nextMentionAfter(UsePoint(3)))
	require.Equal(t, InstPointInvalid, vi.nextMentionAfter(UsePoint(7)))
}

func TestLsraState_splitLinksTree(t *testing.T) {
	f := newMockFunction(block(nil,
		insn("def0").def(v64(0)),
		insn("mid"),
		insn("mid2"),
		insn("use0").use(v64(0)),
		insn("ret").ret(),
	))
	s := newTestLsraState(t, f, testUniverse(2))
	s.buildIntervals()
	require.Equal(t, 1, s.ints.Allocated())

	root := s.at(0)
	require.Equal(t, DefPoint(0), root.start)
	require.Equal(t, UsePoint(3), root.end)

	child := s.split(root, UsePoint(2))
	require.Equal(t, UsePoint(2), child.start)
	require.Equal(t, UsePoint(3), child.end)
	require.Equal(t, DefPoint(1), root.end)
	require.Equal(t, root.ix, child.parent)
	require.Equal(t, child.ix, root.child)
	require.Equal(t, root.ix, child.ancestor)

	// The use mention moved to the child.
	require.Equal(t, 1, len(root.mentions))
	require.Equal(t, InstIx(0), root.mentions[0].Ix)
	require.Equal(t, 1, len(child.mentions))
	require.Equal(t, InstIx(3), child.mentions[0].Ix)

	// Cutting the child hangs the new interval under it, with the same root as
	// ancestor.
	grand := s.split(child, UsePoint(3))
	require.Equal(t, child.ix, grand.parent)
	require.Equal(t, root.ix, grand.ancestor)
	require.Equal(t, grand.ix, child.child)
}

func TestLsraState_slotSharedAcrossTree(t *testing.T) {
	f := newMockFunction(block(nil,
		insn("def0").def(v64(0)),
		insn("mid"),
		insn("use0").use(v64(0)),
		insn("ret").ret(),
	))
	s := newTestLsraState(t, f, testUniverse(2))
	s.buildIntervals()
	root := s.at(0)
	child := s.split(root, UsePoint(1))
	require.Equal(t, s.slotFor(root), s.slotFor(child))
	require.Equal(t, uint32(1), s.nextSpillSlot)
}
