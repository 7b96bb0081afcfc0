package regalloc

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

var bothAlgorithms = []Algorithm{AlgorithmBacktracking, AlgorithmLinearScan}

func TestRun_identity(t *testing.T) {
	for _, alg := range bothAlgorithms {
		t.Run(alg.String(), func(t *testing.T) {
			f := newMockFunction(block(nil,
				insn("const1").def(v64(0)),
				insn("ret").use(v64(0)).ret(),
			))
			u := testUniverse(2)
			res, err := Run(f, u, nil, Options{Algorithm: alg, Checker: true})
			require.NoError(t, err)

			r0 := u.Regs[0].Reg
			require.Equal(t, []string{
				"const1 d:" + r0.String(),
				"ret u:" + r0.String(),
			}, renderInsns(res))
			require.Equal(t, uint32(0), res.NumSpillSlots)
			require.Equal(t, NewRegSet(r0), res.ClobberedRegisters)
			require.Equal(t, []InstIx{0}, res.TargetMap)
			require.Equal(t, []InstIx{0, 1}, res.NewInstMap)
			require.Equal(t, []InstIx{0, 1}, res.OrigInstMap)
		})
	}
}

func TestRun_simpleSpill(t *testing.T) {
	for _, alg := range bothAlgorithms {
		t.Run(alg.String(), func(t *testing.T) {
			// Three values overlap in a class with two assignable registers.
			f := newMockFunction(block(nil,
				insn("const1").def(v64(0)),
				insn("const2").def(v64(1)),
				insn("const3").def(v64(2)),
				insn("use3").use(v64(0), v64(1), v64(2)),
				insn("ret").ret(),
			))
			u := testUniverse(3)
			res, err := Run(f, u, nil, Options{Algorithm: alg, Checker: true})
			require.NoError(t, err)

			require.Equal(t, uint32(1), res.NumSpillSlots)
			require.Equal(t, 1, countPrefix(res, "spill"))
			require.Equal(t, 1, countPrefix(res, "reload"))
			require.Equal(t, 7, len(res.Insns))
		})
	}
}

func TestRun_diamondMerge(t *testing.T) {
	newDiamond := func() *mockFunction {
		return newMockFunction(
			block([]BlockIx{1, 2},
				insn("const1").def(v64(0)),
				insn("brz")),
			block([]BlockIx{3},
				insn("useA").use(v64(0)),
				insn("jmp")),
			block([]BlockIx{3},
				insn("useB").use(v64(0)),
				insn("jmp")),
			block(nil,
				insn("useC").use(v64(0)),
				insn("ret").ret()),
		)
	}

	t.Run("analysis", func(t *testing.T) {
		u := testUniverse(2)
		info, err := runAnalysis(newDiamond(), u, nil, AlgorithmBacktracking)
		require.NoError(t, err)
		require.Equal(t, 1, len(info.rt.vlrs))
		require.Equal(t, 4, len(info.rt.vlrs[0].SortedFrags))
		kinds := map[BlockIx]RangeFragKind{}
		for _, fix := range info.rt.vlrs[0].SortedFrags {
			fr := info.env.frags[fix]
			kinds[fr.Block] = fr.Kind
		}
		require.Equal(t, map[BlockIx]RangeFragKind{
			0: RangeFragLiveOut,
			1: RangeFragThru,
			2: RangeFragThru,
			3: RangeFragLiveIn,
		}, kinds)
	})

	for _, alg := range bothAlgorithms {
		t.Run(alg.String(), func(t *testing.T) {
			f := newDiamond()
			res, err := Run(f, testUniverse(2), nil, Options{Algorithm: alg, Checker: true})
			require.NoError(t, err)
			// One range, one register, no cross-edge data movement.
			require.Equal(t, 8, len(res.Insns))
			require.Equal(t, 0, f.generated.moves)
			require.Equal(t, 0, f.generated.spills)
			require.Equal(t, 0, f.generated.reloads)
		})
	}
}

// TestRun_splitAcrossLoop drives the linear-scan allocator into splitting a
// value that is live through a loop but only used after it, with the loop
// body needing every assignable register.
func TestRun_splitAcrossLoop(t *testing.T) {
	newLoop := func() *mockFunction {
		return newMockFunction(
			block([]BlockIx{1},
				insn("defv").def(v64(0)),
				insn("jmp")),
			block([]BlockIx{1, 2},
				insn("deft0").def(v64(1)),
				insn("deft1").def(v64(2)),
				insn("use2").use(v64(1), v64(2)),
				insn("loop")),
			block(nil,
				insn("usev").use(v64(0)),
				insn("ret").ret()),
		)
	}

	t.Run("backtracking rejects the critical back edge", func(t *testing.T) {
		_, err := Run(newLoop(), testUniverse(3), nil, Options{Algorithm: AlgorithmBacktracking})
		ce := &CriticalEdgeError{}
		require.ErrorAs(t, err, &ce)
	})

	t.Run("linear scan", func(t *testing.T) {
		f := newLoop()
		var stats LinearScanStatistics
		opts := Options{
			Algorithm:  AlgorithmLinearScan,
			Checker:    true,
			LinearScan: LinearScanOptions{Stats: true, Statistics: &stats},
		}
		res, err := Run(f, testUniverse(3), nil, opts)
		require.NoError(t, err)

		require.Equal(t, 1, stats.NumSplits)
		require.Equal(t, uint32(1), res.NumSpillSlots)
		// The value parks in its slot inside the loop and the back edge
		// restores the register for the next iteration.
		require.Equal(t, 1, f.generated.spills)
		require.Equal(t, 2, f.generated.reloads)
		require.Equal(t, 11, len(res.Insns))
	})
}

func TestRun_safepointWithReftype(t *testing.T) {
	for _, alg := range bothAlgorithms {
		t.Run(alg.String(), func(t *testing.T) {
			f := newMockFunction(block(nil,
				insn("refdef").def(v64(0)),
				insn("safepoint"),
				insn("usev").use(v64(0)),
				insn("ret").ret(),
			))
			req := &StackmapRequestInfo{
				RefTypeClass:   RegClassI64,
				RefTypedVRegs:  []VirtualReg{v64(0).AsVirtual()},
				SafepointInsns: []InstIx{1},
			}
			res, err := Run(f, testUniverse(2), req, Options{Algorithm: alg, Checker: true})
			require.NoError(t, err)

			require.Equal(t, uint32(1), res.NumSpillSlots)
			require.Equal(t, [][]SpillSlot{{0}}, res.Stackmaps)
			// Stream: refdef, spill, safepoint, reload, usev, ret.
			require.Equal(t, 6, len(res.Insns))
			require.Equal(t, []InstIx{2}, res.NewSafepointInsns)
		})
	}
}

func TestRun_outOfRegisters(t *testing.T) {
	for _, alg := range bothAlgorithms {
		t.Run(alg.String(), func(t *testing.T) {
			u := testUniverse(3)
			r0, r1 := u.Regs[0].Reg.ToReg(), u.Regs[1].Reg.ToReg()
			// Both assignable registers are pinned by fixed ranges across the
			// modifies, so both values must spill, and the two modifies at one
			// instruction would need two scratch registers.
			f := newMockFunction(block(nil,
				insn("init").def(r0, r1),
				insn("defv0").def(v64(0)),
				insn("defv1").def(v64(1)),
				insn("mod2").mod(v64(0), v64(1)),
				insn("fini").use(r0, r1),
				insn("ret").ret(),
			))
			_, err := Run(f, u, nil, Options{Algorithm: alg})
			oor := &OutOfRegistersError{}
			require.ErrorAs(t, err, &oor)
			require.Equal(t, RegClassI64, oor.Class)
		})
	}
}

func TestRun_annotations(t *testing.T) {
	f := newMockFunction(block(nil,
		insn("const1").def(v64(0)),
		insn("const2").def(v64(1)),
		insn("use2").use(v64(0), v64(1)),
		insn("ret").ret(),
	))
	res, err := Run(f, testUniverse(3), nil, Options{Annotations: true})
	require.NoError(t, err)
	require.Contains(t, res.BlockAnnotations[0], "pressure I64=2")
}

func TestRun_deterministic(t *testing.T) {
	for _, alg := range bothAlgorithms {
		t.Run(alg.String(), func(t *testing.T) {
			run := func() []string {
				f := newMockFunction(
					block([]BlockIx{1},
						insn("const1").def(v64(0)),
						insn("const2").def(v64(1)),
						insn("const3").def(v64(2)),
						insn("jmp")),
					block(nil,
						insn("use3").use(v64(0), v64(1), v64(2)),
						insn("ret").ret()),
				)
				res, err := Run(f, testUniverse(3), nil, Options{Algorithm: alg, Checker: true})
				require.NoError(t, err)
				return append(renderInsns(res), fmt.Sprintf("%v|%v|%v", res.TargetMap, res.NewInstMap, res.ClobberedRegisters))
			}
			first := run()
			for i := 0; i < 3; i++ {
				require.Equal(t, first, run())
			}
		})
	}
}

func TestRun_modDiscipline(t *testing.T) {
	for _, alg := range bothAlgorithms {
		t.Run(alg.String(), func(t *testing.T) {
			f := newMockFunction(block(nil,
				insn("defv").def(v64(0)),
				insn("addimm").mod(v64(0)),
				insn("usev").use(v64(0)),
				insn("ret").ret(),
			))
			_, err := Run(f, testUniverse(2), nil, Options{Algorithm: alg, Checker: true})
			require.NoError(t, err)
			// The modified operand was rewritten to a single real register.
			modded := f.insns[1].mods[0]
			require.True(t, modded.IsReal())
			require.Equal(t, f.insns[0].defs[0], modded)
		})
	}
}

func TestRun_errors(t *testing.T) {
	u := testUniverse(2)
	r0 := u.Regs[0].Reg

	t.Run("undeclared entry livein", func(t *testing.T) {
		f := newMockFunction(block(nil,
			insn("use").use(r0.ToReg()),
			insn("ret").ret(),
		))
		_, err := Run(f, u, nil, Options{})
		el := &EntryLiveinValuesError{}
		require.ErrorAs(t, err, &el)
		require.Equal(t, []Reg{r0.ToReg()}, el.Regs)
	})

	t.Run("declared entry livein", func(t *testing.T) {
		f := newMockFunction(block(nil,
			insn("use").use(r0.ToReg()),
			insn("ret").ret(),
		))
		f.liveins = []RealReg{r0}
		_, err := Run(f, u, nil, Options{})
		require.NoError(t, err)
	})

	t.Run("unreachable block", func(t *testing.T) {
		f := newMockFunction(
			block(nil, insn("ret").ret()),
			block(nil, insn("ret").ret()),
		)
		_, err := Run(f, u, nil, Options{})
		ub := &UnreachableBlocksError{}
		require.ErrorAs(t, err, &ub)
	})

	t.Run("illegal real register", func(t *testing.T) {
		outside := NewRealReg(RegClassI64, 60).AsReal()
		f := newMockFunction(block(nil,
			insn("use").use(outside.ToReg()),
			insn("ret").ret(),
		))
		_, err := Run(f, u, nil, Options{})
		ir := &IllegalRealRegError{}
		require.ErrorAs(t, err, &ir)
		require.Equal(t, outside, ir.Reg)
	})

	t.Run("missing scratch", func(t *testing.T) {
		nu := testUniverse(2)
		nu.AllocableByClass[RegClassI64].SuggestedScratch = -1
		f := newMockFunction(block(nil,
			insn("defv").def(v64(0)),
			insn("ret").use(v64(0)).ret(),
		))
		_, err := Run(f, nu, nil, Options{})
		ms := &MissingSuggestedScratchRegError{}
		require.ErrorAs(t, err, &ms)
		require.Equal(t, RegClassI64, ms.Class)
	})

	t.Run("single register class", func(t *testing.T) {
		f := newMockFunction(block(nil,
			insn("defv").def(v64(0)),
			insn("ret").use(v64(0)).ret(),
		))
		_, err := Run(f, testUniverse(1), nil, Options{})
		oor := &OutOfRegistersError{}
		require.ErrorAs(t, err, &oor)
	})
}

func TestRun_criticalEdges(t *testing.T) {
	newCritical := func(term *mockInstr) *mockFunction {
		// b0 has two successors and b2 has two predecessors: b0 -> b2 is
		// critical.
		return newMockFunction(
			block([]BlockIx{1, 2}, insn("defv").def(v64(0)), term),
			block([]BlockIx{2}, insn("use").use(v64(0)), insn("jmp")),
			block(nil, insn("use2").use(v64(0)), insn("ret").ret()),
		)
	}

	t.Run("backtracking", func(t *testing.T) {
		_, err := Run(newCritical(insn("brz")), testUniverse(2), nil, Options{Algorithm: AlgorithmBacktracking})
		ce := &CriticalEdgeError{}
		require.ErrorAs(t, err, &ce)
		require.Equal(t, BlockIx(0), ce.From)
		require.Equal(t, BlockIx(2), ce.To)
	})

	t.Run("linear scan tolerates a bare terminator", func(t *testing.T) {
		_, err := Run(newCritical(insn("brz")), testUniverse(2), nil, Options{Algorithm: AlgorithmLinearScan, Checker: true})
		require.NoError(t, err)
	})

	t.Run("linear scan rejects a register-mentioning terminator", func(t *testing.T) {
		_, err := Run(newCritical(insn("brnz").use(v64(0))), testUniverse(2), nil, Options{Algorithm: AlgorithmLinearScan})
		le := &LsraCriticalEdgeError{}
		require.ErrorAs(t, err, &le)
	})
}
