// Package namespace implements the namespace/package dispatch service:
// a named bucket of script and host entries, with an optional parent
// chain and an optional package overlay that can shadow same-named
// entries while "linked".
package namespace

import (
	"sync"

	"github.com/kristofer/torquevm/pkg/bytecode"
)

// EntryKind distinguishes a script entry from the five host callback
// shapes a namespace entry can take.
type EntryKind int

const (
	KindScript EntryKind = iota
	KindHostString
	KindHostInt
	KindHostFloat
	KindHostVoid
	KindHostBool
)

// Host callback signatures. The receiver is untyped here to avoid this
// package depending on the concrete object representation; the
// interpreter driver type-asserts it to whatever pkg/simobject.Object
// it actually is before invoking.
type (
	StringFunc func(this interface{}, argv []string) string
	IntFunc    func(this interface{}, argv []string) int64
	FloatFunc  func(this interface{}, argv []string) float64
	VoidFunc   func(this interface{}, argv []string)
	BoolFunc   func(this interface{}, argv []string) bool
)

// Entry is one resolved namespace member: either a script function
// (a code block plus a start offset) or a host builtin.
type Entry struct {
	Kind EntryKind

	// Script entries.
	Code      *bytecode.CodeBlock
	Offset    uint32 // 0 means declared but bodiless
	Namespace *Namespace
	Package   string

	// Host entries.
	MinArgs, MaxArgs int
	Usage            string
	StringFn         StringFunc
	IntFn            IntFunc
	FloatFn          FloatFunc
	VoidFn           VoidFunc
	BoolFn           BoolFunc
}

// Namespace is a named dispatch bucket. Entries declared without an
// active package land in the base table; entries declared while a
// package is being registered land in that package's own overlay
// table, invisible to lookups until the package is linked.
type Namespace struct {
	Name   string
	Parent *Namespace

	service *Service
	entries map[string]*Entry
	overlay map[string]map[string]*Entry // package name -> selector -> entry
}

// AddFunction registers a script entry. pkg == "" registers into the
// namespace's base table; otherwise it lands in that package's
// overlay, where it stays invisible to Lookup until the package is
// linked.
func (ns *Namespace) AddFunction(selector string, code *bytecode.CodeBlock, offset uint32, pkg string) *Entry {
	e := &Entry{Kind: KindScript, Code: code, Offset: offset, Namespace: ns, Package: pkg}
	if pkg == "" {
		ns.entries[selector] = e
		return e
	}
	if ns.overlay[pkg] == nil {
		ns.overlay[pkg] = make(map[string]*Entry)
	}
	ns.overlay[pkg][selector] = e
	return e
}

// Lookup resolves selector against this namespace's currently linked
// package overlays (most-recently-linked first), then its base table.
// It does not walk the parent chain — callers that want "Parent::foo"
// semantics look up in ns.Parent directly.
func (ns *Namespace) Lookup(selector string) *Entry {
	linked := ns.service.linkedPackages()
	for i := len(linked) - 1; i >= 0; i-- {
		if m, ok := ns.overlay[linked[i]]; ok {
			if e, ok := m[selector]; ok {
				return e
			}
		}
	}
	if e, ok := ns.entries[selector]; ok {
		return e
	}
	return nil
}

// Service is the process-wide namespace registry: every Namespace a
// running interpreter touches is reachable through exactly one
// Service, and package linkage (which overlays are currently active)
// is Service-wide state.
type Service struct {
	mu     sync.Mutex
	byName map[string]*Namespace
	linked []string // active package names, push order = priority order
}

// NewService creates an empty namespace service.
func NewService() *Service {
	return &Service{byName: make(map[string]*Namespace)}
}

// Find returns the namespace for name, creating it on first use. An
// empty name addresses the global (unnamed) namespace.
func (s *Service) Find(name string) *Namespace {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ns, ok := s.byName[name]; ok {
		return ns
	}
	ns := &Namespace{
		Name:    name,
		service: s,
		entries: make(map[string]*Entry),
		overlay: make(map[string]map[string]*Entry),
	}
	s.byName[name] = ns
	return ns
}

// AddHostFunction registers a host builtin under (namespace, selector).
func (s *Service) AddHostFunction(nsName, selector string, e *Entry) {
	ns := s.Find(nsName)
	e.Namespace = ns
	ns.entries[selector] = e
}

// UnlinkPackages and RelinkPackages bracket a function-declaration
// registration: unlinking detaches the active package chain (lookups
// then see only base tables) and returns it, so the registration always
// lands in the target package's own overlay table rather than being
// resolved through whatever happens to be linked right now; relinking
// restores the returned chain.
func (s *Service) UnlinkPackages() (saved []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved = append([]string(nil), s.linked...)
	s.linked = nil
	return saved
}

func (s *Service) RelinkPackages(saved []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linked = saved
}

// ActivatePackage links a package, making its overlay entries shadow
// same-named base entries in every namespace.
func (s *Service) ActivatePackage(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.linked {
		if p == name {
			return
		}
	}
	s.linked = append(s.linked, name)
}

// DeactivatePackage unlinks a package.
func (s *Service) DeactivatePackage(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.linked[:0]
	for _, p := range s.linked {
		if p != name {
			out = append(out, p)
		}
	}
	s.linked = out
}

func (s *Service) linkedPackages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.linked...)
}
