package regalloc

// Compile-time switches for development. Enabling either makes allocation
// slower; both must be false in releases.
const (
	// loggingEnabled turns on trace prints of analysis results and allocator
	// decisions.
	loggingEnabled = false
	// validationEnabled turns on extra internal invariant checks that panic
	// with a "BUG" message on violation.
	validationEnabled = false
)
