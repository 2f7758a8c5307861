package vm

import "testing"

func TestCallSiteCacheProgression(t *testing.T) {
	c := &CallSiteCache{}
	fns := make([]*Function, MaxPolyEntries+1)
	for i := range fns {
		fns[i] = &Function{Name: "m"}
	}

	c.Update(FirstCid, fns[0])
	if c.State != CacheMonomorphic {
		t.Errorf("state after one class = %v, want monomorphic", c.State)
	}
	if got := c.Lookup(FirstCid); got != fns[0] {
		t.Error("monomorphic hit failed")
	}
	if got := c.Lookup(FirstCid + 1); got != nil {
		t.Error("monomorphic lookup of other class should miss")
	}

	c.Update(FirstCid+1, fns[1])
	if c.State != CachePolymorphic {
		t.Errorf("state after two classes = %v, want polymorphic", c.State)
	}
	for i := 2; i < MaxPolyEntries; i++ {
		c.Update(FirstCid+i, fns[i])
	}
	if c.State != CachePolymorphic || c.Count != MaxPolyEntries {
		t.Errorf("state = %v count = %d, want full polymorphic", c.State, c.Count)
	}

	c.Update(FirstCid+MaxPolyEntries, fns[MaxPolyEntries])
	if c.State != CacheMegamorphic {
		t.Errorf("state after overflow = %v, want megamorphic", c.State)
	}
	if got := c.Lookup(FirstCid); got != nil {
		t.Error("megamorphic cache must always miss")
	}

	c.Reset()
	if c.State != CacheEmpty || c.Count != 0 || c.Hits != 0 {
		t.Error("Reset did not clear the cache")
	}
}

func TestMegamorphicCache(t *testing.T) {
	mc := NewMegamorphicCache()
	fn := &Function{Name: "render"}
	mc.Insert(FirstCid, "render", fn)
	if mc.Lookup(FirstCid, "render") != fn {
		t.Error("lookup after insert failed")
	}
	if mc.Lookup(FirstCid, "other") != nil {
		t.Error("lookup of absent selector should miss")
	}
	mc.Clear()
	if mc.Len() != 0 || mc.Lookup(FirstCid, "render") != nil {
		t.Error("Clear did not empty the cache")
	}
}

func invalidationWorld(t *testing.T) (*Runtime, *Function, *Function) {
	t.Helper()
	rt := NewRuntime()

	clean := NewLibrary(coreURL)
	dirty := NewLibrary(mainURL)
	rt.Libraries.Add(clean)
	rt.Libraries.Add(dirty)
	dirty.Dirty = true

	prime := func(lib *Library, name string) *Function {
		cls := &Class{Name: name, Library: lib}
		fn := &Function{Name: "run", Owner: cls}
		fn.SetCode(&CompiledCode{})
		fn.Caches().GetOrCreate(0).Update(FirstCid, fn)
		fn.BumpUsage()
		cls.Functions = []*Function{fn}
		rt.Classes.Register(cls)
		return fn
	}
	cleanFn := prime(clean, "CleanThing")
	dirtyFn := prime(dirty, "DirtyThing")
	rt.Megamorphic.Insert(FirstCid, "run", cleanFn)
	return rt, cleanFn, dirtyFn
}

func TestInvalidateWorldSplitsCleanAndDirty(t *testing.T) {
	rt, cleanFn, dirtyFn := invalidationWorld(t)

	ctx := newReloadContext(rt, ReloadRequest{})
	ctx.InvalidateWorld()

	if dirtyFn.Code() != nil {
		t.Error("code of dirty library must be dropped")
	}
	if dirtyFn.WasCompiled() {
		t.Error("dirty function must lose its compiled marker")
	}
	if cleanFn.Code() == nil {
		t.Error("unoptimized code of clean library must survive")
	}
	if !cleanFn.WasCompiled() {
		t.Error("clean function keeps its compiled marker")
	}
	for _, fn := range []*Function{cleanFn, dirtyFn} {
		if fn.Caches().GetOrCreate(0).State != CacheEmpty {
			t.Errorf("%s caches not reset", fn.Owner.Name)
		}
		if fn.UsageCounter() != 0 {
			t.Errorf("%s usage counter not zeroed", fn.Owner.Name)
		}
	}
	if rt.Megamorphic.Len() != 0 {
		t.Error("megamorphic cache not cleared")
	}
}

func TestInvalidateWorldDropsOptimizedCodeEverywhere(t *testing.T) {
	rt, cleanFn, _ := invalidationWorld(t)
	cleanFn.SetCode(&CompiledCode{Optimized: true})

	ctx := newReloadContext(rt, ReloadRequest{})
	ctx.InvalidateWorld()

	if cleanFn.Code() != nil {
		t.Error("optimized code embeds stale assumptions and must go, even in clean libraries")
	}
}

func TestInvalidateWorldResetsActiveFrames(t *testing.T) {
	rt, cleanFn, _ := invalidationWorld(t)
	rt.Stack.Push(&Frame{Function: cleanFn})
	cleanFn.Caches().GetOrCreate(7).Update(FirstCid, cleanFn)

	ctx := newReloadContext(rt, ReloadRequest{})
	ctx.InvalidateWorld()

	if cleanFn.Caches().GetOrCreate(7).State != CacheEmpty {
		t.Error("call sites of active frames must be reset")
	}
}

func TestOptimizerDisableWaitsForIdle(t *testing.T) {
	rt := NewRuntime()
	o := rt.Optimizer()
	o.Start()
	defer o.Stop()

	fn := &Function{Name: "hot"}
	o.Enqueue(fn)
	o.Disable()

	// After Disable returns, no compilation is in flight and the queue
	// is gone.
	if o.QueueLen() != 0 {
		t.Errorf("queue = %d after Disable, want 0", o.QueueLen())
	}
	o.Enqueue(&Function{Name: "late"})
	if o.QueueLen() != 0 {
		t.Error("disabled optimizer must drop new work")
	}

	o.Enable()
	o.Enqueue(&Function{Name: "after"})
}
