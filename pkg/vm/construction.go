package vm

import "github.com/kristofer/torquevm/pkg/simobject"

// createObject runs the CREATE_OBJECT handler: resolve or reuse the
// target object, copy a named parent's fields into it, then validate
// the constructor argument vector. argv follows the call-argument
// convention (argv[0] is unused, matching the selector slot a plain
// call would occupy); argv[1] is the class name, argv[2] the
// requested object name, argv[3:] the constructor arguments.
//
// It leaves the in-construction object on e.Constructing and its
// intended registration name on e.constructingName for ADD_OBJECT to
// pick up; it reports false (the caller branches to the fail target)
// on a datablock class mismatch or a ProcessArguments rejection.
func (e *Engine) createObject(argv []string, parentName string, isDataBlock bool) bool {
	if len(argv) < 3 {
		e.Diag.Errorf(diagChannelScript(), e.curSource, "malformed object declaration")
		return false
	}
	class := argv[1]
	name := argv[2]
	ctorArgs := argv[3:]

	var obj *simobject.Object
	if isDataBlock {
		if existing, found := e.Objects.FindDataBlockByName(name); found {
			if existing.ClassName != class {
				e.Diag.Errorf(diagChannelScript(), e.curSource,
					"cannot redeclare datablock %s as class %s (was %s)", name, class, existing.ClassName)
				return false
			}
			obj = existing
		}
	}
	if obj == nil {
		obj = e.Objects.CreateObject(class)
		if isDataBlock {
			obj.Kind = simobject.KindDataBlock
		}
	}

	if parentName != "" {
		if parent, ok := e.Objects.FindByName(parentName); ok {
			obj.AssignFieldsFrom(parent)
		}
	}

	if !obj.ProcessArguments(ctorArgs) {
		e.Diag.Errorf(diagChannelScript(), e.curSource, "%s: invalid constructor arguments", class)
		return false
	}

	e.Constructing = obj
	e.constructingName = name
	return true
}

// addObject runs the ADD_OBJECT handler: register the in-construction
// object (unless it is an already-registered reused datablock), run
// its preload hook, then place it under the selected parent group. A
// datablock stays under the registry's datablock group regardless of
// placeAtRoot — there is no "instant group" or nested-parent concept
// for datablocks, and moving one out would break FindDataBlockByName
// on a later redeclare.
//
// The int stack's top slot carries the enclosing parent id a nested
// declaration reads to place itself: a root-level object overwrites
// the current top in place (no net growth — the sibling that follows
// it reads the same slot), while a nested object pushes its id above
// the parent id already sitting there so the matching END_OBJECT can
// pop it back off, leaving the parent id in place for its own
// siblings.
//
// Registration failure has no fail-jump operand to branch to (unlike
// CREATE_OBJECT); it is handled by discarding the in-construction
// object and falling through to the next instruction.
func (e *Engine) addObject(placeAtRoot bool) bool {
	obj := e.Constructing
	if obj == nil {
		return false
	}
	if !obj.IsProperlyAdded() {
		if err := e.Objects.Register(obj, e.constructingName); err != nil {
			e.Diag.Errorf(diagChannelScript(), e.curSource, "%s", err)
			e.Constructing = nil
			return false
		}
		if obj.Kind == simobject.KindDataBlock && obj.Preload != nil {
			if ok, msg := obj.Preload(); !ok {
				e.Diag.Errorf(diagChannelScript(), e.curSource, "%s: preload failed: %s", obj.ClassName, msg)
				e.Constructing = nil
				return false
			}
		}
	}

	if obj.Kind != simobject.KindDataBlock {
		parent := e.Objects.Root
		if placeAtRoot {
			if g, ok := e.instantGroup(); ok {
				parent = g
			}
		} else if p, ok := e.Objects.FindByID(e.Ints.Top()); ok {
			parent = p
		}
		e.Objects.AddToGroup(parent, obj)
	}

	if placeAtRoot {
		e.Ints.SetTop(obj.ID)
	} else {
		e.Ints.Push(obj.ID)
	}
	e.Constructing = nil
	return true
}

// endObject runs the END_OBJECT handler, popping the id ADD_OBJECT
// pushed for a nested (non-root) object.
func (e *Engine) endObject(placeAtRoot bool) {
	if !placeAtRoot {
		e.Ints.Pop()
	}
}

// instantGroup resolves the "$instantGroup" global some constructors
// use to redirect a root-placed object into a named group instead of
// the registry root, mirroring the root-group convention scripts rely
// on when building an object tree top level statement by statement.
func (e *Engine) instantGroup() (*simobject.Object, bool) {
	v, ok := e.Scope.LookupGlobal("$instantGroup")
	if !ok {
		return nil, false
	}
	name := v.String()
	if name == "" {
		return nil, false
	}
	return e.Objects.FindByName(name)
}
