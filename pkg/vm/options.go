package vm

// Options configures one Exec call: the frame-selection policy and
// the handful of process-wide toggles that affect tracing and the
// disabled-calls execution mode.
type Options struct {
	// SetFrame selects the frame policy: negative pushes a fresh
	// owning frame; zero or positive pushes a reference frame into
	// the frame that many levels below the current top, so writes to
	// locals pass through to that deeper frame.
	SetFrame int

	// NoCalls suppresses function declarations, object creation, and
	// function calls while still scanning the instruction stream's
	// structure (used to walk a block without side effects).
	NoCalls bool

	// Package names the package this activation belongs to, if any;
	// Exec records it as the engine's CurPackage. FUNC_DECL takes the
	// package it registers into from its own operand, not from here.
	Package string

	// Args is the argument vector for a function-entry activation:
	// element 0 is the function-name slot, which Exec skips (trace
	// lines take the name from the declaration header), and the rest
	// are the actual string arguments. A nil Args means this is a
	// top-level (non-function) activation.
	Args []string

	// Namespace is the declaring namespace to report in trace lines
	// and stack frames for a function-entry activation.
	Namespace string
}
