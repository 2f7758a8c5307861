package vm

import "testing"

func TestHeapWalkFallsBackToSavedTable(t *testing.T) {
	rt := NewRuntime()
	lib := NewLibrary(mainURL)
	rt.Libraries.Add(lib)
	rt.Libraries.SetRoot(lib)

	oldCls := &Class{Name: "Point", Library: lib, NumSlots: 2}
	rt.Classes.Register(oldCls)
	cid := oldCls.Cid()

	ctx := newReloadContext(rt, ReloadRequest{})
	ctx.modifiedLibs[lib] = true
	ctx.Checkpoint()
	rt.reload.Store(ctx)
	defer rt.reload.Store(nil)

	// Simulate the loader replacing the slot mid-reload.
	replacement := &Class{Name: "Point", Library: lib, NumSlots: 3}
	rt.Classes.SetAt(cid, replacement)

	if got := rt.Classes.At(cid); got != replacement {
		t.Fatal("live table should answer with the replacement")
	}
	if got := rt.ClassForHeapWalkAt(cid); got != oldCls {
		t.Error("heap walk must resolve pre-reload cids against the saved table")
	}
	if got := rt.SizeForHeapWalkAt(cid); got != 2 {
		t.Errorf("heap walk size = %d, want old shape 2", got)
	}

	ctx.DiscardSavedClassTable()
	if got := rt.ClassForHeapWalkAt(cid); got != replacement {
		t.Error("after discard the live table answers")
	}
}

func TestCheckpointSplitsPreservedAndModified(t *testing.T) {
	rt := NewRuntime()
	keep := NewLibrary(coreURL)
	lose := NewLibrary(mainURL)
	rt.Libraries.Add(keep)
	rt.Libraries.Add(lose)
	rt.Libraries.SetRoot(lose)

	ctx := newReloadContext(rt, ReloadRequest{})
	ctx.modifiedLibs[lose] = true
	ctx.Checkpoint()

	if rt.Libraries.Len() != 1 {
		t.Fatalf("registry len = %d, want only the preserved library", rt.Libraries.Len())
	}
	if rt.Libraries.Root() != nil {
		t.Error("root must be cleared for the loader to reset")
	}
	if keep.Index() != 0 {
		t.Errorf("preserved library index = %d, want renumbered 0", keep.Index())
	}
	if lose.Index() != -1 {
		t.Errorf("modified library index = %d, want detached -1", lose.Index())
	}
	if !lose.IsDirty() {
		t.Error("detached library counts as dirty")
	}
	if ctx.numSavedLibs != 1 {
		t.Errorf("numSavedLibs = %d, want 1", ctx.numSavedLibs)
	}
}

func TestRollbackRestoresExactWorld(t *testing.T) {
	rt := NewRuntime()
	keep := NewLibrary(coreURL)
	lose := NewLibrary(mainURL)
	rt.Libraries.Add(keep)
	rt.Libraries.Add(lose)
	rt.Libraries.SetRoot(lose)

	cls := &Class{Name: "Point", Library: lose}
	rt.Classes.Register(cls)
	cid := cls.Cid()
	numCids := rt.Classes.NumCids()

	ctx := newReloadContext(rt, ReloadRequest{})
	ctx.modifiedLibs[lose] = true
	ctx.Checkpoint()

	// A failed load half-replaced the world.
	rt.Classes.SetAt(cid, &Class{Name: "Point", Library: lose})
	rt.Classes.Register(&Class{Name: "Fresh", Library: lose})
	rt.Libraries.Add(NewLibrary("file:///app/new.px"))

	ctx.Rollback()

	if rt.Classes.NumCids() != numCids {
		t.Errorf("cids = %d, want %d", rt.Classes.NumCids(), numCids)
	}
	if rt.Classes.At(cid) != cls {
		t.Error("replaced class slot not restored")
	}
	if cls.Cid() != cid {
		t.Error("restored class lost its cid")
	}
	if rt.Libraries.Len() != 2 {
		t.Errorf("registry len = %d, want 2", rt.Libraries.Len())
	}
	if rt.Libraries.Root() != lose {
		t.Error("root not restored")
	}
	if lose.Index() != 1 {
		t.Errorf("restored index = %d, want 1", lose.Index())
	}
}

func TestSavedClassStaticsStayRooted(t *testing.T) {
	rt := NewRuntime()
	lib := NewLibrary(mainURL)
	rt.Libraries.Add(lib)
	rt.Libraries.SetRoot(lib)

	cls := &Class{Name: "Holder", Library: lib}
	rt.Classes.Register(cls)
	obj := rt.Heap.Allocate(cls)
	cls.SetStatic("it", ObjectValue(obj))

	ctx := newReloadContext(rt, ReloadRequest{})
	ctx.modifiedLibs[lib] = true
	ctx.Checkpoint()
	rt.reload.Store(ctx)
	defer rt.reload.Store(nil)

	// Even with the live slot replaced, the checkpointed class keeps
	// its statics reachable.
	rt.Classes.SetAt(cls.Cid(), &Class{Name: "Holder", Library: lib})
	if reclaimed := rt.Heap.Collect(); reclaimed != 0 {
		t.Errorf("collected %d objects, checkpointed statics must stay rooted", reclaimed)
	}
}
