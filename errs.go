package regalloc

import (
	"fmt"
	"strings"
)

// Errors returned by Run. Input-validation errors are surfaced before any
// mutation of the Function; checker errors indicate an allocator bug.

type (
	// CriticalEdgeError reports an un-split critical edge: From has two or more
	// successors and To has two or more predecessors.
	CriticalEdgeError struct {
		From, To BlockIx
	}

	// LsraCriticalEdgeError reports a critical edge the linear-scan allocator
	// cannot tolerate because the edge's terminator mentions a register.
	LsraCriticalEdgeError struct {
		From, To BlockIx
	}

	// EntryLiveinValuesError reports registers live into the entry block that
	// the function did not declare in FuncLiveins.
	EntryLiveinValuesError struct {
		Regs []Reg
	}

	// IllegalRealRegError reports a mention of a real register outside the
	// universe.
	IllegalRealRegError struct {
		Reg RealReg
	}

	// UnreachableBlocksError reports blocks not reachable from the entry block.
	UnreachableBlocksError struct{}

	// ImplementationLimitsExceededError reports an input exceeding the
	// allocator's size limits.
	ImplementationLimitsExceededError struct{}

	// MissingSuggestedScratchRegError reports a used register class whose
	// universe entry designates no scratch register.
	MissingSuggestedScratchRegError struct {
		Class RegClass
	}

	// OutOfRegistersError reports that the class has too few registers to
	// allocate the function, even with spilling.
	OutOfRegistersError struct {
		Class RegClass
	}

	// AnalysisError wraps a failure of the shared analysis front-end.
	AnalysisError struct {
		Inner error
	}

	// CheckerError is a single diagnostic produced by the symbolic checker.
	CheckerError struct {
		Inst InstIx
		Msg  string
	}

	// OtherError carries a failure outside the structured taxonomy, such as a
	// malformed universe.
	OtherError struct {
		Msg string
	}

	// RegCheckerError aggregates checker diagnostics. Seeing one means the
	// allocator miscompiled the function; it is a bug report, not a user error.
	RegCheckerError struct {
		Errs []CheckerError
	}
)

func (e *CriticalEdgeError) Error() string {
	return fmt.Sprintf("critical edge %s -> %s must be split by the caller", e.From, e.To)
}

func (e *LsraCriticalEdgeError) Error() string {
	return fmt.Sprintf("critical edge %s -> %s with a register-mentioning terminator cannot be handled by linear scan", e.From, e.To)
}

func (e *EntryLiveinValuesError) Error() string {
	names := make([]string, len(e.Regs))
	for i, r := range e.Regs {
		names[i] = r.String()
	}
	return fmt.Sprintf("entry block has undeclared live-in values: %s", strings.Join(names, ", "))
}

func (e *IllegalRealRegError) Error() string {
	return fmt.Sprintf("instruction mentions real register %s outside the universe", e.Reg)
}

func (e *UnreachableBlocksError) Error() string {
	return "function contains blocks unreachable from the entry block"
}

func (e *ImplementationLimitsExceededError) Error() string {
	return "function exceeds implementation limits"
}

func (e *MissingSuggestedScratchRegError) Error() string {
	return fmt.Sprintf("no suggested scratch register for class %s", e.Class)
}

func (e *OutOfRegistersError) Error() string {
	return fmt.Sprintf("out of registers in class %s", e.Class)
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed: %v", e.Inner)
}

func (e *AnalysisError) Unwrap() error { return e.Inner }

func (e *OtherError) Error() string { return e.Msg }

func (e CheckerError) String() string {
	return fmt.Sprintf("at %s: %s", e.Inst, e.Msg)
}

func (e *RegCheckerError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, c := range e.Errs {
		msgs[i] = c.String()
	}
	return fmt.Sprintf("checker found %d problem(s): %s", len(e.Errs), strings.Join(msgs, "; "))
}
