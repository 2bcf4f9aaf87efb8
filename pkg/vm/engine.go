package vm

import (
	"github.com/kristofer/torquevm/internal/diagnostics"
	"github.com/kristofer/torquevm/internal/ident"
	"github.com/kristofer/torquevm/pkg/bytecode"
	"github.com/kristofer/torquevm/pkg/namespace"
	"github.com/kristofer/torquevm/pkg/simobject"
)

// Engine holds everything one interpreter needs across nested calls:
// the three operand workspaces, the scope stack, the process-wide
// collaborators (identifier table, namespace service, object
// registry), and the transient "current X" cursors the opcode set
// reads and writes. Only one top-level Exec call is ever active per
// Engine at a time; nested script calls recurse directly into Exec
// rather than creating a second Engine.
type Engine struct {
	Ints    IntStack
	Floats  FloatStack
	Strings StringWorkspace
	Scope   *Scope

	Idents     *ident.Table
	Namespaces *namespace.Service
	Objects    *simobject.Registry
	Diag       *diagnostics.Logger

	Debugger Debugger

	// CurObject/CurField/CurFieldArray are the field adaptor's
	// transient cursors: which object, which field name, and which
	// array-index suffix the next field opcode targets.
	CurObject     *simobject.Object
	CurField      string
	CurFieldArray string

	// Constructing is the in-construction cursor OP_SETCUROBJECT_NEW
	// binds to, live only between CREATE_OBJECT and ADD_OBJECT.
	Constructing     *simobject.Object
	constructingName string

	// curVar is the variable cursor OP_SETCURVAR and its siblings bind,
	// consulted by the LOADVAR/SAVEVAR opcodes.
	curVar *Variable

	// This is the method-call receiver; save/restored around a method
	// dispatch so nested calls see their own receiver.
	This *simobject.Object

	// CurCodeBlock, CurNamespace and CurPackage are the enclosing
	// activation's identity, consulted by PARENT-mode calls and by
	// diagnostics; saved and restored around every nested Exec call.
	CurCodeBlock *bytecode.CodeBlock
	CurNamespace string
	CurPackage   string

	Trace              bool
	WarnOnUndefinedVar bool

	curSource string
}

func (e *Engine) traceEnabled() bool { return e.Trace }

// source returns the "file:line" tag for the current instruction,
// used by diagnostics. Exec updates it before dispatching each opcode.
func (e *Engine) source() string { return e.curSource }

func diagChannelScript() diagnostics.Channel { return diagnostics.Script }

func diagChannelGeneral() diagnostics.Channel { return diagnostics.General }

// NewEngine wires a fresh Engine around the given process-wide
// collaborators. The object registry and namespace service are
// typically shared across many Engines that a host round-robins
// across scripts; the workspaces and scope stack are not.
func NewEngine(idents *ident.Table, ns *namespace.Service, objects *simobject.Registry, diag *diagnostics.Logger) *Engine {
	return &Engine{
		Scope:      NewScope(),
		Idents:     idents,
		Namespaces: ns,
		Objects:    objects,
		Diag:       diag,
		Debugger:   NullDebugger{},
	}
}
