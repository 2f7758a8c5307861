package vm

import (
	"sync"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// Runtime: one managed-runtime instance
// ---------------------------------------------------------------------------

// ChangedSet records what changed in the last committed reload, for
// external tooling. A function or field is changed when its fingerprint
// differs from its old counterpart or when it is entirely new.
type ChangedSet struct {
	Classes   []*Class
	Functions []*Function
	Fields    []*Field
}

// IsEmpty reports whether nothing changed.
func (cs *ChangedSet) IsEmpty() bool {
	return cs == nil || (len(cs.Classes) == 0 && len(cs.Functions) == 0 && len(cs.Fields) == 0)
}

// Runtime is one runtime instance: the global class table, the library
// registry, the heap, the execution stack, caches, and the background
// optimizer. All reload components receive the registries they mutate
// through the runtime handle; there are no package-level registries.
type Runtime struct {
	Classes   *ClassTable
	Libraries *LibraryRegistry
	Heap      *Heap
	Stack     *ExecStack

	Megamorphic *MegamorphicCache

	globalsMu sync.Mutex
	globals   map[string]Value

	optimizer *Optimizer

	frontEnd FrontEnd
	loader   Loader
	oracle   ModificationOracle
	checker  CompatibilityChecker

	// reload holds the in-flight reload context, if any. Heap walks
	// consult it so pre-reload cids resolve against the checkpointed
	// table while the live table is being mutated.
	reloadMu sync.Mutex
	reload   atomic.Pointer[ReloadContext]

	lastReloadTimestamp atomic.Int64 // unix nanos, zero until first reload
	changedInLastReload atomic.Pointer[ChangedSet]
}

// NewRuntime creates a runtime with empty registries and default
// collaborators. The heap is wired to the runtime's root sets; the
// background marker and optimizer are created stopped.
func NewRuntime() *Runtime {
	rt := &Runtime{
		Classes:     NewClassTable(),
		Libraries:   NewLibraryRegistry(),
		Heap:        NewHeap(),
		Stack:       NewExecStack(),
		Megamorphic: NewMegamorphicCache(),
		globals:     make(map[string]Value),
		loader:      &programLoader{},
		checker:     DefaultChecker{},
	}
	rt.optimizer = NewOptimizer(rt)

	rt.Heap.AddRootProvider(rt.Stack)
	rt.Heap.AddRootProvider(globalsRoot{rt})
	rt.Heap.AddRootProvider(classStaticsRoot{rt})
	rt.Heap.AddRootProvider(libraryBindingsRoot{rt})
	return rt
}

// SetFrontEnd installs the compiler front end collaborator.
func (rt *Runtime) SetFrontEnd(fe FrontEnd) { rt.frontEnd = fe }

// SetLoader replaces the program loader. The default loader understands
// the CBOR program container.
func (rt *Runtime) SetLoader(l Loader) { rt.loader = l }

// SetModificationOracle installs the source modification oracle.
func (rt *Runtime) SetModificationOracle(o ModificationOracle) { rt.oracle = o }

// SetCompatibilityChecker replaces the reload compatibility checker.
func (rt *Runtime) SetCompatibilityChecker(c CompatibilityChecker) { rt.checker = c }

// Optimizer returns the background optimizing-compilation task.
func (rt *Runtime) Optimizer() *Optimizer { return rt.optimizer }

// Global returns a global binding, or Nil.
func (rt *Runtime) Global(name string) Value {
	rt.globalsMu.Lock()
	defer rt.globalsMu.Unlock()
	return rt.globals[name]
}

// SetGlobal stores a global binding.
func (rt *Runtime) SetGlobal(name string, v Value) {
	rt.globalsMu.Lock()
	defer rt.globalsMu.Unlock()
	rt.globals[name] = v
}

// LastReloadTimestamp returns the commit time of the last successful
// reload, or the zero time.
func (rt *Runtime) LastReloadTimestamp() time.Time {
	n := rt.lastReloadTimestamp.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (rt *Runtime) setLastReloadTimestamp(t time.Time) {
	rt.lastReloadTimestamp.Store(t.UnixNano())
}

// ChangedInLastReload returns the changed-set recomputed by the last
// reload, or nil if no reload has happened.
func (rt *Runtime) ChangedInLastReload() *ChangedSet {
	return rt.changedInLastReload.Load()
}

// NewInstance allocates an instance of cls on the runtime's heap.
func (rt *Runtime) NewInstance(cls *Class) *Object {
	return rt.Heap.Allocate(cls)
}

// ---------------------------------------------------------------------------
// Heap-walk class resolution
// ---------------------------------------------------------------------------

// ClassForHeapWalkAt resolves a class id during heap iteration. Between
// checkpoint and discard/rollback the saved table answers, because the
// heap may still contain objects whose headers carry pre-reload cids
// whose live slot now holds a different class.
func (rt *Runtime) ClassForHeapWalkAt(cid int) *Class {
	if ctx := rt.reload.Load(); ctx != nil {
		if c := ctx.savedClassAt(cid); c != nil {
			return c
		}
	}
	return rt.Classes.At(cid)
}

// SizeForHeapWalkAt resolves an instance slot count during heap
// iteration, with the same saved-table fallback.
func (rt *Runtime) SizeForHeapWalkAt(cid int) int {
	if c := rt.ClassForHeapWalkAt(cid); c != nil {
		return c.NumSlots
	}
	return 0
}

// ---------------------------------------------------------------------------
// Root providers
// ---------------------------------------------------------------------------

type globalsRoot struct{ rt *Runtime }

func (r globalsRoot) ForEachRef(fn func(*Value)) {
	r.rt.globalsMu.Lock()
	defer r.rt.globalsMu.Unlock()
	for name, v := range r.rt.globals {
		fn(&v)
		r.rt.globals[name] = v
	}
}

type classStaticsRoot struct{ rt *Runtime }

func (r classStaticsRoot) ForEachRef(fn func(*Value)) {
	r.rt.Classes.ForEach(func(_ int, c *Class) {
		c.ForEachStaticRef(fn)
	})
	// Classes checkpointed to the side buffer stay roots until the
	// buffer is discarded or rolled back.
	if ctx := r.rt.reload.Load(); ctx != nil {
		ctx.forEachSavedStaticRef(fn)
	}
}

type libraryBindingsRoot struct{ rt *Runtime }

func (r libraryBindingsRoot) ForEachRef(fn func(*Value)) {
	for _, lib := range r.rt.Libraries.Libraries() {
		lib.ForEachBindingRef(fn)
	}
	if ctx := r.rt.reload.Load(); ctx != nil {
		ctx.forEachSavedLibraryRef(fn)
	}
}
