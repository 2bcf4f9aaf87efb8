package vm

import "github.com/kristofer/torquevm/pkg/bytecode"

// Debugger is the optional interactive-debugging hook. A host attaches
// one to an Engine before calling Exec; the driver notifies it on
// frame push/pop and on hitting OP_BREAK, and consults it to decide
// whether a given instruction is a breakpoint.
type Debugger interface {
	PushFrame(cb *bytecode.CodeBlock, funcName string, ip int)
	PopFrame()

	// ExecutionStopped is called when OP_BREAK is hit at a line the
	// debugger recognizes as a breakpoint. It blocks until the host
	// decides to resume.
	ExecutionStopped(cb *bytecode.CodeBlock, line int)

	// FindBreakLine reports the source line at ip if it is a
	// breakpoint, and whether it is one at all. When ok is false,
	// OP_BREAK is a no-op and execution falls straight through.
	FindBreakLine(ip int) (line int, ok bool)
}

// NullDebugger is a Debugger that never stops execution; Engine uses
// it when no debugger has been attached so call sites don't need a
// nil check on every opcode touching the hook.
type NullDebugger struct{}

func (NullDebugger) PushFrame(*bytecode.CodeBlock, string, int) {}
func (NullDebugger) PopFrame()                                  {}
func (NullDebugger) ExecutionStopped(*bytecode.CodeBlock, int)  {}
func (NullDebugger) FindBreakLine(int) (int, bool)              { return 0, false }
