package vm

import "sync"

// ---------------------------------------------------------------------------
// Class: class descriptor
// ---------------------------------------------------------------------------

// NoTypeArguments marks a class without a type-argument vector slot.
const NoTypeArguments = -1

// Field describes one declared field of a class. Instance fields have a
// slot offset into the instance layout; static fields live in the class's
// static storage and have Offset == -1.
type Field struct {
	Name        string
	Offset      int
	IsStatic    bool
	Initializer Initializer
	Fingerprint uint32

	// Set during commit when a changed initializer is detected on a
	// static field that had already been initialized.
	InitializerChangedAfterInitialization bool
}

// HasInitializer reports whether the field declares an initializer
// expression.
func (f *Field) HasInitializer() bool { return f.Initializer != nil }

// Function describes one declared function (method or top-level
// procedure) of a class. The fingerprint is a stable hash of the
// function's source, used to detect behavior changes across reloads.
type Function struct {
	Name        string
	Fingerprint uint32
	Owner       *Class

	code         *CompiledCode
	usageCounter int
	wasCompiled  bool
	caches       *CallSiteCaches

	// After a reload retires the owning class, the function keeps a
	// pointer to the script it was compiled from so frames still
	// executing it resolve source locations against the old program.
	patchScript *Script
}

// Caches returns the function's call-site cache table, creating it on
// first use.
func (fn *Function) Caches() *CallSiteCaches {
	if fn.caches == nil {
		fn.caches = NewCallSiteCaches()
	}
	return fn.caches
}

// Code returns the function's compiled code, or nil.
func (fn *Function) Code() *CompiledCode { return fn.code }

// SetCode installs compiled code and marks the function compiled.
func (fn *Function) SetCode(code *CompiledCode) {
	fn.code = code
	if code != nil {
		fn.wasCompiled = true
	}
}

// ClearCode drops the function's compiled code. The next call compiles
// it again against the current program.
func (fn *Function) ClearCode() { fn.code = nil }

// WasCompiled reports whether the function has ever been compiled.
func (fn *Function) WasCompiled() bool { return fn.wasCompiled }

// SetWasCompiled overrides the compiled marker.
func (fn *Function) SetWasCompiled(compiled bool) { fn.wasCompiled = compiled }

// UsageCounter returns the call counter driving optimization decisions.
func (fn *Function) UsageCounter() int { return fn.usageCounter }

// BumpUsage increments the call counter.
func (fn *Function) BumpUsage() { fn.usageCounter++ }

// ResetUsageCounter zeroes the call counter so the function re-earns
// its optimization budget.
func (fn *Function) ResetUsageCounter() { fn.usageCounter = 0 }

// dropOptimizedCode discards optimized code, keeping unoptimized code.
func (fn *Function) dropOptimizedCode() {
	if fn.code != nil && fn.code.Optimized {
		fn.code = nil
	}
}

// compileOptimized replaces the function's code with an optimized
// compilation. Runs on the optimizer goroutine.
func (fn *Function) compileOptimized() {
	fn.code = &CompiledCode{Optimized: true}
}

// Class is the runtime descriptor for one class. Identity across reloads
// is (Name, declaring library private key, IsPatch); everything else may
// change between program versions.
type Class struct {
	Name      string
	Super     *Class
	Library   *Library
	Script    *Script
	IsPatch   bool
	IsEnum    bool
	Finalized bool

	// TypeArgsOffset is the slot holding the type-argument vector, or
	// NoTypeArguments.
	TypeArgsOffset int

	// Fields holds declared fields in order, instance and static mixed,
	// as they appear in the program.
	Fields []*Field

	// Functions holds declared functions in order.
	Functions []*Function

	// NumSlots is the total instance slot count including inherited
	// slots and the type-argument vector slot.
	NumSlots int

	cid     int
	statics map[string]Value
	patched bool
}

// Cid returns the class's id in the class table.
func (c *Class) Cid() int { return c.cid }

// InstanceFields returns the declared instance fields in layout order.
func (c *Class) InstanceFields() []*Field {
	var out []*Field
	for _, f := range c.Fields {
		if !f.IsStatic {
			out = append(out, f)
		}
	}
	return out
}

// StaticFields returns the declared static fields in order.
func (c *Class) StaticFields() []*Field {
	var out []*Field
	for _, f := range c.Fields {
		if f.IsStatic {
			out = append(out, f)
		}
	}
	return out
}

// FieldByName finds a declared field by name, or nil.
func (c *Class) FieldByName(name string) *Field {
	for _, f := range c.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// FunctionByName finds a declared function by name, or nil.
func (c *Class) FunctionByName(name string) *Function {
	for _, fn := range c.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

// Static returns the value of a static field, or Nil.
func (c *Class) Static(name string) Value {
	if c.statics == nil {
		return Nil
	}
	return c.statics[name]
}

// SetStatic stores a static field value.
func (c *Class) SetStatic(name string, v Value) {
	if c.statics == nil {
		c.statics = make(map[string]Value)
	}
	c.statics[name] = v
}

// ForEachStaticRef visits the address of every static field value so the
// collector and the forwarding engine can rewrite references held by the
// class itself.
func (c *Class) ForEachStaticRef(fn func(*Value)) {
	for name, v := range c.statics {
		fn(&v)
		c.statics[name] = v
	}
}

// CopyStaticValuesFrom carries static field values forward from the
// class this one replaces. Only statics that still exist by name are
// copied; new statics keep their defaults.
func (c *Class) CopyStaticValuesFrom(old *Class) {
	for _, f := range c.StaticFields() {
		if prev := old.FieldByName(f.Name); prev != nil && prev.IsStatic {
			c.SetStatic(f.Name, old.Static(f.Name))
		}
	}
}

// PatchFieldsAndFunctions re-points this class's functions at the
// class's own (pre-reload) script. Instances of the class may still be
// referenced from the stack, so frames executing these functions must
// keep resolving against the program data they were compiled from.
func (c *Class) PatchFieldsAndFunctions() {
	for _, fn := range c.Functions {
		fn.patchScript = c.Script
	}
	c.patched = true
}

// SameShape reports whether two classes lay out instances identically:
// same slot count, same type-argument slot, and the same instance field
// names at the same offsets.
func (c *Class) SameShape(other *Class) bool {
	if c.NumSlots != other.NumSlots || c.TypeArgsOffset != other.TypeArgsOffset {
		return false
	}
	a, b := c.InstanceFields(), other.InstanceFields()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Offset != b[i].Offset {
			return false
		}
	}
	return true
}

// privateKey returns the declaring library's private key, or "" for
// classes without a library (bootstrap classes).
func (c *Class) privateKey() string {
	if c.Library == nil {
		return ""
	}
	return c.Library.PrivateKey()
}

// String implements fmt.Stringer.
func (c *Class) String() string { return c.Name }

// ---------------------------------------------------------------------------
// ClassTable: global class registry, indexed by cid
// ---------------------------------------------------------------------------

// ClassTable is the runtime's global class registry: a dense array
// indexed by class id. Slot 0 is never used and slot TombstoneCid is
// reserved. It is replaced in place on reload commit and restored from a
// checkpoint on rollback.
type ClassTable struct {
	mu      sync.RWMutex
	classes []*Class
}

// NewClassTable creates an empty class table with the reserved low cids.
func NewClassTable() *ClassTable {
	return &ClassTable{classes: make([]*Class, FirstCid)}
}

// Register appends a class, assigning it the next cid.
func (ct *ClassTable) Register(c *Class) int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	c.cid = len(ct.classes)
	ct.classes = append(ct.classes, c)
	return c.cid
}

// At returns the class registered at cid, or nil.
func (ct *ClassTable) At(cid int) *Class {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	if cid < 0 || cid >= len(ct.classes) {
		return nil
	}
	return ct.classes[cid]
}

// SetAt overwrites the slot for cid. The class adopts the cid.
func (ct *ClassTable) SetAt(cid int, c *Class) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if c != nil {
		c.cid = cid
	}
	ct.classes[cid] = c
}

// HasValidClassAt reports whether cid holds a real class.
func (ct *ClassTable) HasValidClassAt(cid int) bool {
	return cid >= FirstCid && ct.At(cid) != nil
}

// NumCids returns the table length, including reserved slots.
func (ct *ClassTable) NumCids() int {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return len(ct.classes)
}

// SetNumCids truncates the table back to n entries. Used by rollback to
// drop classes registered during a failed reload.
func (ct *ClassTable) SetNumCids(n int) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if n < len(ct.classes) {
		ct.classes = ct.classes[:n]
	}
	for len(ct.classes) < n {
		ct.classes = append(ct.classes, nil)
	}
}

// Snapshot copies the table into dst, which must have been sized by the
// caller before the copy begins. The copy runs under the table lock with
// no allocation so a concurrent collector never observes a half-copied
// table.
func (ct *ClassTable) Snapshot(dst []*Class) int {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return copy(dst, ct.classes)
}

// ForEach visits every valid class in cid order.
func (ct *ClassTable) ForEach(fn func(cid int, c *Class)) {
	ct.mu.RLock()
	snapshot := make([]*Class, len(ct.classes))
	copy(snapshot, ct.classes)
	ct.mu.RUnlock()

	for cid, c := range snapshot {
		if cid >= FirstCid && c != nil {
			fn(cid, c)
		}
	}
}

// LookupByName finds a class by simple name, preferring lower cids.
// Intended for tooling and tests; reload matching never uses names alone.
func (ct *ClassTable) LookupByName(name string) *Class {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	for cid := FirstCid; cid < len(ct.classes); cid++ {
		if c := ct.classes[cid]; c != nil && c.Name == name {
			return c
		}
	}
	return nil
}
