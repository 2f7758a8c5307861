package vm

import (
	"sync"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Script and Library descriptors
// ---------------------------------------------------------------------------

// Script is one source unit belonging to a library.
type Script struct {
	URL    string
	Source string
}

// NativeFunction is an embedder-provided native implementation.
type NativeFunction func(args []Value) Value

// NativeResolver resolves a native function by name for a library.
type NativeResolver func(name string) (NativeFunction, bool)

// Library is the runtime descriptor for one loaded library. Identity
// across reloads is the resolved URL. A library is created at program
// load, mutated on reload, and superseded rather than destroyed.
type Library struct {
	url        string
	privateKey string

	// Index into the global registry, or -1 while the library is being
	// replaced during a reload.
	index int

	// Dirty is set when the library was reloaded this cycle.
	Dirty bool

	Debuggable bool
	Resolver   NativeResolver

	Scripts []*Script
	Classes []*Class

	// Imports and Exports reference other libraries by registry entry
	// and drive modified-library propagation.
	Imports []*Library
	Exports []*Library

	// Top-level bindings owned by the library.
	storage map[string]Value
}

// NewLibrary creates a library with a fresh private key.
func NewLibrary(url string) *Library {
	return &Library{
		url:        url,
		privateKey: uuid.NewString(),
		index:      -1,
	}
}

// URL returns the library's resolved URL.
func (lib *Library) URL() string { return lib.url }

// PrivateKey returns the key that ties class identity to this library
// instance across reloads.
func (lib *Library) PrivateKey() string { return lib.privateKey }

// AdoptPrivateKey makes this library share identity with the library it
// replaces. Called by the loader before any of the library's classes are
// registered.
func (lib *Library) AdoptPrivateKey(key string) {
	if key != "" {
		lib.privateKey = key
	}
}

// Index returns the registry index, or -1 if the library is detached.
func (lib *Library) Index() int { return lib.index }

// IsDirty reports whether the library was replaced by the current or
// most recent reload. Detached libraries count as dirty: their code is
// about to be superseded.
func (lib *Library) IsDirty() bool { return lib.Dirty || lib.index < 0 }

// SetIndex assigns the registry index.
func (lib *Library) SetIndex(i int) { lib.index = i }

// Binding returns a top-level binding, or Nil.
func (lib *Library) Binding(name string) Value {
	if lib.storage == nil {
		return Nil
	}
	return lib.storage[name]
}

// SetBinding stores a top-level binding.
func (lib *Library) SetBinding(name string, v Value) {
	if lib.storage == nil {
		lib.storage = make(map[string]Value)
	}
	lib.storage[name] = v
}

// ForEachBindingRef visits the address of every top-level binding so the
// collector and the forwarding engine can rewrite references.
func (lib *Library) ForEachBindingRef(fn func(*Value)) {
	for name, v := range lib.storage {
		fn(&v)
		lib.storage[name] = v
	}
}

// String implements fmt.Stringer.
func (lib *Library) String() string { return lib.url }

// ---------------------------------------------------------------------------
// LibraryRegistry: ordered global registry plus root library
// ---------------------------------------------------------------------------

// LibraryRegistry holds the ordered set of loaded libraries and the root
// library. During a reload the registry is checkpointed, cleared down to
// the preserved libraries, refilled by the loader, and either committed
// or restored.
type LibraryRegistry struct {
	mu   sync.RWMutex
	libs []*Library
	root *Library
}

// NewLibraryRegistry creates an empty registry.
func NewLibraryRegistry() *LibraryRegistry {
	return &LibraryRegistry{}
}

// Add appends a library and assigns its index.
func (r *LibraryRegistry) Add(lib *Library) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lib.index = len(r.libs)
	r.libs = append(r.libs, lib)
}

// Libraries returns a copy of the registered libraries in order.
func (r *LibraryRegistry) Libraries() []*Library {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Library, len(r.libs))
	copy(out, r.libs)
	return out
}

// SetLibraries replaces the registry contents and renumbers the entries.
func (r *LibraryRegistry) SetLibraries(libs []*Library) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.libs = libs
	for i, lib := range r.libs {
		lib.index = i
	}
}

// Len returns the number of registered libraries.
func (r *LibraryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.libs)
}

// Root returns the root library, or nil.
func (r *LibraryRegistry) Root() *Library {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.root
}

// SetRoot assigns the root library.
func (r *LibraryRegistry) SetRoot(lib *Library) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.root = lib
}

// LookupByURL finds a registered library by resolved URL, or nil.
func (r *LibraryRegistry) LookupByURL(url string) *Library {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, lib := range r.libs {
		if lib.url == url {
			return lib
		}
	}
	return nil
}
