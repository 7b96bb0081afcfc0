package regalloc

import "fmt"

// analysisInfo is the immutable bundle handed from the shared analysis
// front-end to either allocation core.
type analysisInfo struct {
	rvb    *RegVecsAndBounds
	extras *sanitizedExtras
	cfg    *cfgInfo
	df     *dataflowInfo
	env    *fragEnv
	rt     *rangeTables
	// vlrSafepoints lists, per VirtualRange, the positions (indices into
	// StackmapRequestInfo.SafepointInsns) whose Use point the range covers.
	vlrSafepoints [][]int
	// pressure estimates, per block and class, how many ranges touch the
	// block. It only feeds Result.BlockAnnotations; neither allocator reads it
	// when choosing registers.
	pressure [][NumRegClasses]uint32
}

// runAnalysis executes the whole analysis pipeline. alg selects which
// critical-edge rule applies.
func runAnalysis(f Function, u *RealRegUniverse, req *StackmapRequestInfo, alg Algorithm) (*analysisInfo, error) {
	rvb, extras, err := getSanitizedRegUses(f, u)
	if err != nil {
		return nil, err
	}

	cfg, err := analyzeCFG(f)
	if err != nil {
		return nil, err
	}

	if err := checkEdges(f, cfg, rvb, alg); err != nil {
		return nil, err
	}

	df, err := analyzeDataflow(f, u, cfg, rvb, extras)
	if err != nil {
		return nil, err
	}

	env := buildRangeFrags(f, cfg, df, rvb, extras, u)
	rt := mergeRangeFrags(cfg, env, extras, u)

	if req != nil {
		propagateRefTypes(req, env, rt, extras.moves)
	}

	info := &analysisInfo{
		rvb:    rvb,
		extras: extras,
		cfg:    cfg,
		df:     df,
		env:    env,
		rt:     rt,
	}
	info.computeSafepointCoverage(req)
	info.computePressure(f, u)

	if loggingEnabled {
		for i := range rt.vlrs {
			fmt.Printf("vr%d: %s\n", i, &rt.vlrs[i])
		}
	}
	return info, nil
}

// checkEdges applies the algorithm-specific critical-edge rule. The
// backtracking allocator requires all critical edges pre-split; linear scan
// tolerates a critical edge as long as its terminator mentions no register.
func checkEdges(f Function, cfg *cfgInfo, rvb *RegVecsAndBounds, alg Algorithm) error {
	ce := cfg.checkCriticalEdges()
	if ce == nil {
		return nil
	}
	if alg == AlgorithmBacktracking {
		return ce
	}
	for b, succs := range cfg.succs {
		if len(succs) < 2 {
			continue
		}
		for _, s := range succs {
			if len(cfg.preds[s]) < 2 {
				continue
			}
			if term := f.BlockInsns(BlockIx(b)).Last(); rvb.mentionsReg(term) {
				return &LsraCriticalEdgeError{From: BlockIx(b), To: s}
			}
		}
	}
	return nil
}

func (info *analysisInfo) computeSafepointCoverage(req *StackmapRequestInfo) {
	info.vlrSafepoints = make([][]int, len(info.rt.vlrs))
	if req == nil {
		return
	}
	for i := range info.rt.vlrs {
		vlr := &info.rt.vlrs[i]
		for spIx, spInsn := range req.SafepointInsns {
			if coversPoint(info.env, vlr.SortedFrags, UsePoint(spInsn)) {
				info.vlrSafepoints[i] = append(info.vlrSafepoints[i], spIx)
			}
		}
	}
}

func (info *analysisInfo) computePressure(f Function, u *RealRegUniverse) {
	info.pressure = make([][NumRegClasses]uint32, f.NumBlocks())
	for i := range info.rt.vlrs {
		vlr := &info.rt.vlrs[i]
		rc := vlr.VReg.Class()
		seen := BlockIxInvalid
		for _, fix := range vlr.SortedFrags {
			b := info.env.frags[fix].Block
			if b != seen {
				info.pressure[b][rc]++
				seen = b
			}
		}
	}
	for i := range info.rt.rlrs {
		rlr := &info.rt.rlrs[i]
		rc := rlr.RReg.Class()
		seen := BlockIxInvalid
		for _, fix := range rlr.SortedFrags {
			b := info.env.frags[fix].Block
			if b != seen {
				info.pressure[b][rc]++
				seen = b
			}
		}
	}
}

// mentionsWithin returns the mentions of vreg whose program points lie inside
// the sorted fragment list. An instruction that uses the old value and defines
// a new one splits across two ranges: the use and mod sides belong to the
// range covering the Use point, the def side to the one covering the Def
// point.
func (info *analysisInfo) mentionsWithin(vreg VirtualReg, sorted []RangeFragIx) MentionMap {
	all := info.extras.vregMentions[vreg.Index()]
	var out MentionMap
	for _, me := range all {
		var keep Mention
		if me.Mention.IsUseOrMod() && coversPoint(info.env, sorted, UsePoint(me.Ix)) {
			keep |= me.Mention & (mentionUse | mentionMod)
		}
		if me.Mention.IsDef() && coversPoint(info.env, sorted, DefPoint(me.Ix)) {
			keep |= mentionDef
		}
		if keep != 0 {
			out = append(out, MentionEntry{Ix: me.Ix, Mention: keep})
		}
	}
	return out
}
