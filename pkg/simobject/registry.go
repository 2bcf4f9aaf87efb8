package simobject

import (
	"fmt"

	"github.com/kristofer/torquevm/pkg/namespace"
)

// Factory builds a blank, unregistered object of the named class. The
// default factory (used when no class-specific one is registered)
// produces a generic Object carrying the class name only, since the
// class-metadata system that would know a class's declared static
// fields lives outside this tree.
type Factory func(className string) *Object

// Registry is the process-wide object/datablock registry: every
// object the interpreter creates, constructs, and later resolves by
// id or name passes through exactly one Registry.
type Registry struct {
	nsService *namespace.Service

	nextID uint32
	byID   map[uint32]*Object
	byName map[string]*Object

	classFactories map[string]Factory

	Root        *Object // top-level group; every freestanding object lives under it unless reparented
	DataBlocks  *Object // the datablock group; Register places KindDataBlock objects here
}

// NewRegistry creates an empty registry with its root and datablock
// groups pre-created and registered.
func NewRegistry(nsService *namespace.Service) *Registry {
	r := &Registry{
		nsService:      nsService,
		byID:           make(map[uint32]*Object),
		byName:         make(map[string]*Object),
		classFactories: make(map[string]Factory),
	}
	r.Root = r.newGroup("SimGroup", "RootGroup")
	r.DataBlocks = r.newGroup("SimDataBlockGroup", "DataBlockGroup")
	return r
}

func (r *Registry) newGroup(class, name string) *Object {
	g := newObject(class, KindGroup)
	g.Name = name
	r.nextID++
	g.ID = r.nextID
	g.registered = true
	r.byID[g.ID] = g
	if name != "" {
		r.byName[name] = g
	}
	return g
}

// RegisterClass installs a non-default constructor for className,
// used by CreateObject from then on.
func (r *Registry) RegisterClass(className string, f Factory) {
	r.classFactories[className] = f
}

// CreateObject builds a blank, unregistered object of the given class.
// The interpreter's CREATE_OBJECT handler calls this before running
// ProcessArguments and the field-assignment opcodes that follow it in
// the instruction stream.
func (r *Registry) CreateObject(className string) *Object {
	if f, ok := r.classFactories[className]; ok {
		return f(className)
	}
	return newObject(className, KindObject)
}

// FindByID returns a registered object by numeric id.
func (r *Registry) FindByID(id uint32) (*Object, bool) {
	o, ok := r.byID[id]
	return o, ok
}

// FindByName returns a registered top-level or nested object by name,
// recursing into groups for a "/"-separated path. The name is looked
// up first in the flat name table (fast path for the common case),
// then as a path through Root's children ("Sub/Leaf"); a leading "/"
// is not stripped, so "/Sub/Leaf" misses.
func (r *Registry) FindByName(name string) (*Object, bool) {
	if o, ok := r.byName[name]; ok {
		return o, ok
	}
	return r.Root.FindObject(name)
}

// Register assigns an id, places the object (in the root group by
// default, or the datablock group if Kind is KindDataBlock), and
// marks it as resolvable by FindByID/FindByName. It fails only if the
// object is already registered.
func (r *Registry) Register(o *Object, name string) error {
	if o.registered {
		return fmt.Errorf("object %d already registered", o.ID)
	}
	if name != "" {
		if existing, ok := r.byName[name]; ok && existing != o {
			// Redeclaration: the existing object under this name is
			// displaced, matching datablock-reuse-on-redeclare semantics.
			delete(r.byID, existing.ID)
		}
	}
	r.nextID++
	o.ID = r.nextID
	o.Name = name
	r.byID[o.ID] = o
	if name != "" {
		r.byName[name] = o
	}
	o.registered = true

	target := r.Root
	if o.Kind == KindDataBlock {
		target = r.DataBlocks
	}
	r.addChild(target, o)
	return nil
}

// AddToGroup reparents a registered object under group, removing it
// from its previous group's child list first.
func (r *Registry) AddToGroup(group, o *Object) {
	if o.Group != nil {
		r.removeChild(o.Group, o)
	}
	r.addChild(group, o)
}

func (r *Registry) addChild(group, o *Object) {
	group.Children = append(group.Children, o)
	o.Group = group
}

func (r *Registry) removeChild(group, o *Object) {
	for i, c := range group.Children {
		if c == o {
			group.Children = append(group.Children[:i], group.Children[i+1:]...)
			return
		}
	}
}

// FindDataBlockByName looks up a registered datablock by name within
// the datablock group only, not the general object namespace, so a
// CREATE_OBJECT handler can decide whether it is declaring a fresh
// datablock or redeclaring an existing one.
func (r *Registry) FindDataBlockByName(name string) (*Object, bool) {
	return r.DataBlocks.findChild(name)
}
