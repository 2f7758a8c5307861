package vm

import "strconv"

// ---------------------------------------------------------------------------
// Object: heap-allocated instance
// ---------------------------------------------------------------------------

// Reserved class ids. Cid 0 is never valid; cid 1 marks a forwarding
// tombstone left behind after an instance has been morphed. The first
// real class receives FirstCid.
const (
	InvalidCid   = 0
	TombstoneCid = 1
	FirstCid     = 2
)

// Object is a heap-allocated instance. The header is the class id of the
// object's class; the layout of slots is defined by that class's shape.
//
// An object can be turned into a tombstone in place: the header becomes
// TombstoneCid and the slots are cleared, but the slot count is retained
// so a size-based heap walk stays valid until forwarding has removed
// every reference to it.
type Object struct {
	cid   int
	slots []Value
}

// newObject allocates an instance shell for the given class id and slot
// count. Callers normally go through Heap.Allocate so the heap tracks it.
func newObject(cid, numSlots int) *Object {
	return &Object{cid: cid, slots: make([]Value, numSlots)}
}

// Cid returns the object's class id header.
func (o *Object) Cid() int { return o.cid }

// NumSlots returns the object's slot count.
func (o *Object) NumSlots() int { return len(o.slots) }

// Slot returns the value at the given slot offset. Accessing a
// tombstone means a reference escaped forwarding, which is a runtime
// invariant violation.
func (o *Object) Slot(offset int) Value {
	if o.cid == TombstoneCid {
		panic("vm: slot access on forwarded object")
	}
	return o.slots[offset]
}

// SetSlot stores a value at the given slot offset.
func (o *Object) SetSlot(offset int, v Value) {
	if o.cid == TombstoneCid {
		panic("vm: slot store on forwarded object")
	}
	o.slots[offset] = v
}

// ForEachRef calls fn with the address of every slot so callers can read
// or rewrite references in place. Used by the collector and the
// forwarding engine.
func (o *Object) ForEachRef(fn func(*Value)) {
	for i := range o.slots {
		fn(&o.slots[i])
	}
}

// IsTombstone reports whether this object has been retired by a morph.
func (o *Object) IsTombstone() bool { return o.cid == TombstoneCid }

// becomeTombstone retires the object in place. The slot count is kept so
// the heap remains walkable; the slots themselves are cleared so the
// tombstone retains nothing.
func (o *Object) becomeTombstone() {
	o.cid = TombstoneCid
	for i := range o.slots {
		o.slots[i] = Nil
	}
}

// ClassName returns a debug label for the object. The heap does not keep
// a back-pointer to the class table, so this only names the cid.
func (o *Object) ClassName() string {
	if o.cid == TombstoneCid {
		return "Tombstone"
	}
	return "instance/" + strconv.Itoa(o.cid)
}
