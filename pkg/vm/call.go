package vm

import (
	"github.com/kristofer/torquevm/pkg/namespace"
	"github.com/kristofer/torquevm/pkg/simobject"
)

// resolvePlain looks up a plain function call's target namespace by
// name, global (unnamed) namespace when nsName is empty.
func (e *Engine) resolvePlain(nsName, selector string) *namespace.Entry {
	return e.Namespaces.Find(nsName).Lookup(selector)
}

// resolveMethod resolves a method call's receiver (the first textual
// argument) and looks the selector up in the receiver's own
// namespace.
func (e *Engine) resolveMethod(argv []string, selector string) (*namespace.Entry, *simobject.Object) {
	if len(argv) == 0 {
		return nil, nil
	}
	obj, ok := e.Objects.FindByName(argv[0])
	if !ok {
		return nil, nil
	}
	if obj.Namespace == nil {
		return nil, obj
	}
	return obj.Namespace.Lookup(selector), obj
}

// resolveParent looks selector up starting at the parent of the
// currently executing function's declaring namespace.
func (e *Engine) resolveParent(selector string) *namespace.Entry {
	ns := e.Namespaces.Find(e.CurNamespace)
	if ns.Parent == nil {
		return nil
	}
	return ns.Parent.Lookup(selector)
}

// invokeScript recurses the driver into a resolved script entry. A
// zero Offset means "declared but bodiless"; per the function-call
// contract that produces an empty string without recursing.
func (e *Engine) invokeScript(entry *namespace.Entry, argv []string) string {
	if entry.Offset == 0 {
		return ""
	}
	savedCB, savedNS, savedPkg := e.CurCodeBlock, e.CurNamespace, e.CurPackage
	defer func() { e.CurCodeBlock, e.CurNamespace, e.CurPackage = savedCB, savedNS, savedPkg }()

	opts := Options{
		SetFrame:  -1,
		Args:      argv,
		Namespace: entry.Namespace.Name,
		Package:   entry.Package,
	}
	return e.Exec(entry.Code, entry.Offset, opts)
}

// invokeHost validates arg count and calls a host builtin, returning
// its raw result; performCall then either coerces it to a string or,
// through the peephole coercion skip, places a numeric result directly
// on the target workspace.
func (e *Engine) invokeHost(entry *namespace.Entry, argv []string) (result hostResult, ok bool) {
	argc := len(argv)
	if argc < entry.MinArgs || (entry.MaxArgs >= 0 && argc > entry.MaxArgs) {
		e.Diag.Warnf(diagChannelScript(), e.source(), "%s: wrong number of arguments (got %d), usage: %s",
			selectorOf(entry), argc, entry.Usage)
		return hostResult{}, false
	}
	var this interface{}
	if e.This != nil {
		this = e.This
	}
	switch entry.Kind {
	case namespace.KindHostString:
		return hostResult{kind: namespace.KindHostString, str: entry.StringFn(this, argv)}, true
	case namespace.KindHostInt:
		return hostResult{kind: namespace.KindHostInt, i: entry.IntFn(this, argv)}, true
	case namespace.KindHostFloat:
		return hostResult{kind: namespace.KindHostFloat, f: entry.FloatFn(this, argv)}, true
	case namespace.KindHostVoid:
		entry.VoidFn(this, argv)
		return hostResult{kind: namespace.KindHostVoid}, true
	case namespace.KindHostBool:
		b := entry.BoolFn(this, argv)
		n := int64(0)
		if b {
			n = 1
		}
		return hostResult{kind: namespace.KindHostBool, i: n}, true
	}
	return hostResult{}, false
}

// hostResult carries a host callback's raw, not-yet-coerced result so
// the peephole in Exec can place it directly on the target workspace.
type hostResult struct {
	kind namespace.EntryKind
	str  string
	i    int64
	f    float64
}

func selectorOf(e *namespace.Entry) string {
	if e.Namespace != nil {
		return e.Namespace.Name
	}
	return "<unknown>"
}
