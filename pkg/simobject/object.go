// Package simobject is a minimal stand-in for the class metadata and
// full object model a production engine would supply. It exists so
// the interpreter's construction protocol and field adaptor are
// runnable and testable end to end; it implements no class-specific
// behavior of its own.
package simobject

import (
	"strconv"
	"strings"

	"github.com/kristofer/torquevm/pkg/namespace"
)

// Kind distinguishes the handful of object shapes the construction
// protocol cares about.
type Kind int

const (
	KindObject Kind = iota
	KindGroup
	KindSet
	KindDataBlock
)

// StaticField is a single typed, element-counted static field slot.
// Values are kept pre-stringified: every read in this interpreter goes
// through a string coercion immediately anyway.
type StaticField struct {
	Name   string
	Values []string // len(Values) is the field's element count
}

// Object is an instantiated, registered (or in-construction)
// simulation object.
type Object struct {
	ID        uint32
	ClassName string
	Name      string
	Kind      Kind

	Namespace *namespace.Namespace

	static  map[string]*StaticField
	dynamic map[string]string

	ModStaticFields  bool
	ModDynamicFields bool

	Group    *Object   // parent group, nil for the root
	Children []*Object // only meaningful for KindGroup/KindSet

	registered bool

	// ProcessArguments validates/consumes constructor arguments. The
	// default accepts anything; tests and host embedders may replace
	// it per class via Registry.RegisterClass.
	ProcessArguments func(argv []string) bool

	// Preload runs once for datablocks right after registration. The
	// default always succeeds.
	Preload func() (ok bool, errMsg string)
}

func newObject(class string, kind Kind) *Object {
	return &Object{
		ClassName:        class,
		Kind:             kind,
		static:           make(map[string]*StaticField),
		dynamic:          make(map[string]string),
		ModStaticFields:  true,
		ModDynamicFields: true,
		ProcessArguments: func(argv []string) bool { return true },
	}
}

// DefineStaticField pre-declares a typed static field slot with a
// fixed element count, as the external class metadata system would
// have done at class-registration time.
func (o *Object) DefineStaticField(name string, elementCount int) {
	o.static[name] = &StaticField{Name: name, Values: make([]string, elementCount)}
}

// IsProperlyAdded reports whether Register has succeeded for this
// object.
func (o *Object) IsProperlyAdded() bool { return o.registered }

// GetDataField reads a field value, honoring static fields (with
// their element-count bound) before dynamic ones. arraySuffix is the
// array index as built by the compiler (e.g. "3"); an empty suffix
// means "no array index".
func (o *Object) GetDataField(name, arraySuffix string) string {
	if o.ModStaticFields {
		if f, ok := o.static[name]; ok {
			idx := -1
			if arraySuffix != "" {
				if n, err := strconv.Atoi(arraySuffix); err == nil {
					idx = n
				}
			}
			if idx == -1 && len(f.Values) == 1 {
				return f.Values[0]
			}
			if idx >= 0 && idx < len(f.Values) {
				return f.Values[idx]
			}
			return ""
		}
	}
	if o.ModDynamicFields {
		key := name
		if arraySuffix != "" {
			key = name + arraySuffix
		}
		if v, ok := o.dynamic[key]; ok {
			return v
		}
	}
	return ""
}

// SetDataField writes a field value through the same static-then-
// dynamic routing as GetDataField.
func (o *Object) SetDataField(name, arraySuffix, value string) {
	if o.ModStaticFields {
		if f, ok := o.static[name]; ok {
			idx := 0
			if arraySuffix != "" {
				if n, err := strconv.Atoi(arraySuffix); err == nil {
					idx = n
				}
			}
			if idx >= 0 && idx < len(f.Values) {
				f.Values[idx] = value
				return
			}
		}
	}
	if !o.ModDynamicFields {
		return
	}
	key := name
	if arraySuffix != "" {
		key = name + arraySuffix
	}
	o.dynamic[key] = value
}

// DynamicField returns a dynamic field's raw value for inspection
// (used by tests, not by the interpreter itself, which always goes
// through GetDataField/SetDataField).
func (o *Object) DynamicField(name string) (string, bool) {
	v, ok := o.dynamic[name]
	return v, ok
}

// AssignFieldsFrom copies another object's static and dynamic field
// values into o, the "copy constructor" / parent object syntax:
// "new Foo(Bar) { ... }" copies Bar's fields into Foo. A static field
// o does not declare yet is added to o with the parent's element count.
func (o *Object) AssignFieldsFrom(parent *Object) {
	for name, f := range parent.static {
		if mine, ok := o.static[name]; ok {
			n := len(mine.Values)
			if len(f.Values) < n {
				n = len(f.Values)
			}
			copy(mine.Values, f.Values[:n])
		} else {
			o.static[name] = &StaticField{Name: name, Values: append([]string(nil), f.Values...)}
		}
	}
	for k, v := range parent.dynamic {
		o.dynamic[k] = v
	}
}

// findChild resolves a single path segment among this object's
// children (groups/sets only); non-containers always miss.
func (o *Object) findChild(name string) (*Object, bool) {
	for _, c := range o.Children {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// FindObject resolves a "/"-separated subpath rooted at o, recursing
// into child groups.
func (o *Object) FindObject(path string) (*Object, bool) {
	if path == "" {
		return o, true
	}
	head, rest, hasRest := strings.Cut(path, "/")
	child, ok := o.findChild(head)
	if !ok {
		return nil, false
	}
	if !hasRest {
		return child, true
	}
	return child.FindObject(rest)
}
