// Package regalloc rewrites a function expressed over an unbounded supply of
// virtual registers into one mentioning only real registers, inserting spills,
// reloads and parallel-move resolutions as needed. The algorithm can work on
// any ISA by implementing the interfaces in api.go.
package regalloc

// References:
// * Wimmer & Franz, Optimized Interval Splitting in a Linear Scan Register
//   Allocator, 2005.
// * https://pfalcon.github.io/ssabook/latest/book-full.pdf: Chapter 9. for
//   liveness analysis.
// * https://docs.rs/regalloc2/latest/regalloc2/ for the operand-constraint
//   design space.

import "fmt"

// Run performs register allocation on f against the given universe. On
// success, f's instructions have been rewritten in place and the returned
// Result carries the final instruction vector and its metadata. Input and
// resource errors are returned before f is mutated; only a checker failure,
// which indicates an allocator bug, can leave f rewritten.
//
// Run is single-threaded and deterministic: identical inputs produce
// byte-identical output.
func Run(f Function, u *RealRegUniverse, req *StackmapRequestInfo, opts Options) (*Result, error) {
	if err := u.CheckSanity(); err != nil {
		return nil, &OtherError{Msg: fmt.Sprintf("bad universe: %v", err)}
	}

	info, err := runAnalysis(f, u, req, opts.Algorithm)
	if err != nil {
		return nil, err
	}
	if err := checkClassResources(info, u); err != nil {
		return nil, err
	}

	var plan *rewritePlan
	switch opts.Algorithm {
	case AlgorithmBacktracking:
		numSlots, err := runBacktracking(f, u, info, req, &opts.Backtracking)
		if err != nil {
			return nil, err
		}
		plan = buildBacktrackingPlan(info, req, numSlots)
	case AlgorithmLinearScan:
		state, err := runLinearScan(f, u, info, req, &opts.LinearScan)
		if err != nil {
			return nil, err
		}
		plan, err = state.buildLinearScanPlan()
		if err != nil {
			return nil, err
		}
	default:
		return nil, &OtherError{Msg: fmt.Sprintf("unknown algorithm %d", opts.Algorithm)}
	}

	clobbered, err := applyRegisters(f, u, info, plan)
	if err != nil {
		return nil, err
	}
	res := assembleStream(f, info, req, plan, clobbered, opts.Annotations)

	if opts.Checker {
		if err := runChecker(f, u, info, req, plan); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// checkClassResources verifies every class in which virtual registers occur
// has a designated scratch and at least two allocatable registers; with fewer,
// even spill code cannot be generated.
func checkClassResources(info *analysisInfo, u *RealRegUniverse) error {
	for rc := RegClass(0); rc < NumRegClasses; rc++ {
		if info.extras.usedVRegClasses&(1<<rc) == 0 {
			continue
		}
		ci := u.AllocableByClass[rc]
		if ci == nil || ci.Last-ci.First+1 < 2 {
			return &OutOfRegistersError{Class: rc}
		}
		if ci.SuggestedScratch == -1 {
			return &MissingSuggestedScratchRegError{Class: rc}
		}
	}
	return nil
}
