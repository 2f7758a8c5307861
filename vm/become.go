package vm

import "fmt"

// ---------------------------------------------------------------------------
// Identity forwarding
// ---------------------------------------------------------------------------

// ObjectGraph is the slice of a runtime that identity forwarding needs:
// every object and every root slot that may hold a reference.
type ObjectGraph interface {
	IterateObjects(fn func(*Object))
	ForEachRoot(fn func(*Value))
}

// ForwardIdentity atomically redirects every reference to before[i] so
// it points at after[i], in a single pass over the whole graph. The
// forwarded objects are tombstoned afterwards; any later access through
// a stale direct pointer fails loudly. The pairs must be pairwise
// distinct on both sides; a duplicate means the caller built an
// inconsistent mapping and the runtime state can no longer be trusted,
// so this panics rather than returning an error.
func ForwardIdentity(g ObjectGraph, before, after []*Object) {
	if len(before) != len(after) {
		panic(fmt.Sprintf("vm: forward identity pair count mismatch: %d vs %d", len(before), len(after)))
	}
	fwd := make(map[*Object]*Object, len(before))
	targets := make(map[*Object]bool, len(after))
	for i, b := range before {
		a := after[i]
		if b == nil || a == nil {
			panic("vm: forward identity nil pair")
		}
		if _, dup := fwd[b]; dup {
			panic(fmt.Sprintf("vm: duplicate forward source %s", b.ClassName()))
		}
		if targets[a] {
			panic(fmt.Sprintf("vm: duplicate forward target %s", a.ClassName()))
		}
		fwd[b] = a
		targets[a] = true
	}

	rewrite := func(v *Value) {
		if o := v.Object(); o != nil {
			if repl, ok := fwd[o]; ok {
				*v = ObjectValue(repl)
			}
		}
	}

	g.IterateObjects(func(o *Object) {
		// Slots of a forwarded object are dead; skip them.
		if _, gone := fwd[o]; gone {
			return
		}
		o.ForEachRef(rewrite)
	})
	g.ForEachRoot(rewrite)

	for _, b := range before {
		b.becomeTombstone()
	}
}

// forwardIdentity runs ForwardIdentity against the runtime's heap. The
// heap must be quiescent: no marker tasks, growth suppressed.
func (rt *Runtime) forwardIdentity(before, after []*Object) {
	if n := rt.Heap.TaskCount(); n != 0 {
		panic(fmt.Sprintf("vm: forward identity with %d heap tasks running", n))
	}
	ForwardIdentity(rt.Heap, before, after)
}
