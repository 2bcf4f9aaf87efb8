package bytecode

import (
	"fmt"
	"sort"
	"sync/atomic"
)

// CodeBlock is one compiled source file: a flat instruction-word
// stream plus the constant tables that stream indexes into.
//
// A block carries two copies each of its float and string tables: the
// "global" ones, live while the block is executed at its top level,
// and the "function" ones, live while executing inside one of the
// block's function bodies. The driver selects between them when it
// enters and leaves a function body. Both pairs are populated by the
// external compiler; this package only stores and serves them.
type CodeBlock struct {
	refCount int32

	Code []uint32 // the instruction-word stream

	GlobalFloats  []float64
	GlobalStrings []byte // null-terminated entries, indexed by byte offset

	FunctionFloats  []float64
	FunctionStrings []byte

	Name       string // source file name, used in diagnostics
	SourceRoot string

	// lineStarts maps an instruction index to the source line it was
	// compiled from. It is sparse: only indices where the line changes
	// from the previous instruction need an entry. Supplied by the
	// compiler; this package only consumes it for FileLine.
	lineStarts map[int]int

	// resolvedCalls is the side table OP_CALLFUNC_RESOLVE patches
	// itself into: a slot holds whatever the caller's namespace
	// package considers a resolved call target. Untyped here so this
	// package doesn't need to import the namespace package back.
	resolvedCalls []interface{}
}

// AddResolvedCall appends v to the resolved-call side table and
// returns its index, for a self-patching call site to store in its
// own operand word.
func (b *CodeBlock) AddResolvedCall(v interface{}) uint32 {
	b.resolvedCalls = append(b.resolvedCalls, v)
	return uint32(len(b.resolvedCalls) - 1)
}

// ResolvedCall returns a previously stored resolved-call target.
func (b *CodeBlock) ResolvedCall(i uint32) interface{} {
	if int(i) >= len(b.resolvedCalls) {
		return nil
	}
	return b.resolvedCalls[i]
}

// New constructs a CodeBlock with a starting reference count of zero.
// Callers that hand a block to Exec never need to adjust the count
// themselves; IncRefCount/DecRefCount is what the driver calls around an
// activation, keeping the count above zero while any activation of the
// block is live.
func New(name, sourceRoot string, code []uint32) *CodeBlock {
	return &CodeBlock{Name: name, SourceRoot: sourceRoot, Code: code}
}

// SetLineMap installs the instruction-index -> source-line table used
// by FileLine. Compilers that don't track line numbers may leave this
// unset; FileLine then reports just the block's name.
func (b *CodeBlock) SetLineMap(m map[int]int) { b.lineStarts = m }

// IncRefCount and DecRefCount implement the code block's reference-
// counted lifetime. They are atomic because a code block may be
// shared by namespace entries whose owning packages can be reloaded
// from a different goroutine than the one currently executing the
// block, even though only one goroutine ever executes it at a time.
func (b *CodeBlock) IncRefCount() { atomic.AddInt32(&b.refCount, 1) }
func (b *CodeBlock) DecRefCount() { atomic.AddInt32(&b.refCount, -1) }
func (b *CodeBlock) RefCount() int32 { return atomic.LoadInt32(&b.refCount) }

// FileLine maps an instruction index to a "file:line" string for
// diagnostics.
func (b *CodeBlock) FileLine(ip int) string {
	line := b.lineAt(ip)
	if line == 0 {
		return b.Name
	}
	return fmt.Sprintf("%s:%d", b.Name, line)
}

func (b *CodeBlock) lineAt(ip int) int {
	if len(b.lineStarts) == 0 {
		return 0
	}
	if line, ok := b.lineStarts[ip]; ok {
		return line
	}
	// Fall back to the nearest preceding recorded instruction, since
	// the map is sparse by design.
	keys := make([]int, 0, len(b.lineStarts))
	for k := range b.lineStarts {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	best := 0
	for _, k := range keys {
		if k > ip {
			break
		}
		best = b.lineStarts[k]
	}
	return best
}

// StringAt reads the null-terminated entry starting at byte offset off
// in table.
func StringAt(table []byte, off uint32) string {
	if int(off) >= len(table) {
		return ""
	}
	end := off
	for int(end) < len(table) && table[end] != 0 {
		end++
	}
	return string(table[off:end])
}
