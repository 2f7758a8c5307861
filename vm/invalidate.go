package vm

import "sync"

// CompiledCode is one compilation of a function. Optimized code embeds
// class and call-target assumptions, so it never survives a reload.
type CompiledCode struct {
	Optimized bool
	Bytecode  []byte
}

// ---------------------------------------------------------------------------
// Call-site caching
// ---------------------------------------------------------------------------

// CacheState is the current state of one call-site cache.
type CacheState uint8

const (
	CacheEmpty       CacheState = iota // no cached lookup yet
	CacheMonomorphic                   // single receiver class cached
	CachePolymorphic                   // 2-6 receiver classes cached
	CacheMegamorphic                   // too many classes, full lookup
)

// MaxPolyEntries is the polymorphic cache capacity before a call site
// goes megamorphic.
const MaxPolyEntries = 6

// CallSiteEntry is one cached lookup result.
type CallSiteEntry struct {
	Cid      int
	Function *Function
}

// CallSiteCache caches dispatch results for a single call site. It
// progresses Empty -> Monomorphic -> Polymorphic -> Megamorphic.
type CallSiteCache struct {
	State   CacheState
	Entries [MaxPolyEntries]CallSiteEntry
	Count   int

	Hits   uint64
	Misses uint64
}

// Lookup returns the cached target for a receiver class id, or nil.
func (c *CallSiteCache) Lookup(cid int) *Function {
	switch c.State {
	case CacheMonomorphic:
		if c.Entries[0].Cid == cid {
			c.Hits++
			return c.Entries[0].Function
		}
	case CachePolymorphic:
		for i := 0; i < c.Count; i++ {
			if c.Entries[i].Cid == cid {
				c.Hits++
				return c.Entries[i].Function
			}
		}
	case CacheMegamorphic, CacheEmpty:
	}
	c.Misses++
	return nil
}

// Update records a new (cid, target) pair, upgrading the state.
func (c *CallSiteCache) Update(cid int, fn *Function) {
	if fn == nil {
		return
	}
	switch c.State {
	case CacheEmpty:
		c.State = CacheMonomorphic
		c.Entries[0] = CallSiteEntry{Cid: cid, Function: fn}
		c.Count = 1
	case CacheMonomorphic:
		if c.Entries[0].Cid == cid {
			return
		}
		c.State = CachePolymorphic
		c.Entries[1] = CallSiteEntry{Cid: cid, Function: fn}
		c.Count = 2
	case CachePolymorphic:
		for i := 0; i < c.Count; i++ {
			if c.Entries[i].Cid == cid {
				return
			}
		}
		if c.Count < MaxPolyEntries {
			c.Entries[c.Count] = CallSiteEntry{Cid: cid, Function: fn}
			c.Count++
		} else {
			c.State = CacheMegamorphic
			for i := range c.Entries {
				c.Entries[i] = CallSiteEntry{}
			}
			c.Count = 0
		}
	case CacheMegamorphic:
	}
}

// Reset clears the cache back to the empty state.
func (c *CallSiteCache) Reset() {
	c.State = CacheEmpty
	c.Count = 0
	c.Hits = 0
	c.Misses = 0
	for i := range c.Entries {
		c.Entries[i] = CallSiteEntry{}
	}
}

// CallSiteCaches manages the call-site caches of one function, indexed
// by bytecode pc.
type CallSiteCaches struct {
	caches map[int]*CallSiteCache
}

// NewCallSiteCaches creates an empty cache table.
func NewCallSiteCaches() *CallSiteCaches {
	return &CallSiteCaches{caches: make(map[int]*CallSiteCache)}
}

// GetOrCreate returns the cache for a pc, creating one if needed.
func (t *CallSiteCaches) GetOrCreate(pc int) *CallSiteCache {
	if c := t.caches[pc]; c != nil {
		return c
	}
	c := &CallSiteCache{State: CacheEmpty}
	t.caches[pc] = c
	return c
}

// Get returns the cache for a pc, or nil.
func (t *CallSiteCaches) Get(pc int) *CallSiteCache { return t.caches[pc] }

// Len returns the number of call sites with a cache.
func (t *CallSiteCaches) Len() int { return len(t.caches) }

// Reset clears every cache in the table.
func (t *CallSiteCaches) Reset() {
	for _, c := range t.caches {
		c.Reset()
	}
}

// ---------------------------------------------------------------------------
// Megamorphic cache
// ---------------------------------------------------------------------------

type megamorphicKey struct {
	cid      int
	selector string
}

// MegamorphicCache is the shared lookup table behind megamorphic call
// sites.
type MegamorphicCache struct {
	mu      sync.Mutex
	entries map[megamorphicKey]*Function
}

// NewMegamorphicCache creates an empty megamorphic cache.
func NewMegamorphicCache() *MegamorphicCache {
	return &MegamorphicCache{entries: make(map[megamorphicKey]*Function)}
}

// Lookup returns the cached target for (cid, selector), or nil.
func (mc *MegamorphicCache) Lookup(cid int, selector string) *Function {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.entries[megamorphicKey{cid, selector}]
}

// Insert records a lookup result.
func (mc *MegamorphicCache) Insert(cid int, selector string, fn *Function) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.entries[megamorphicKey{cid, selector}] = fn
}

// Len returns the number of cached entries.
func (mc *MegamorphicCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.entries)
}

// Clear drops every entry. Lookups repopulate lazily.
func (mc *MegamorphicCache) Clear() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.entries = make(map[megamorphicKey]*Function)
}

// ---------------------------------------------------------------------------
// Background optimizer
// ---------------------------------------------------------------------------

// Optimizer recompiles hot functions on a background goroutine. During
// a reload it is disabled so no compilation races the metadata swap.
type Optimizer struct {
	rt *Runtime

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []*Function
	disabled bool
	busy     bool
	running  bool
	stop     chan struct{}
	stopped  chan struct{}
}

// NewOptimizer creates an optimizer for rt, stopped.
func NewOptimizer(rt *Runtime) *Optimizer {
	o := &Optimizer{rt: rt}
	o.cond = sync.NewCond(&o.mu)
	return o
}

// Start launches the background worker. Safe to call when running.
func (o *Optimizer) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return
	}
	o.running = true
	o.stop = make(chan struct{})
	o.stopped = make(chan struct{})
	go o.loop(o.stop, o.stopped)
}

// Stop shuts the worker down and waits for it.
func (o *Optimizer) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	stop, stopped := o.stop, o.stopped
	o.mu.Unlock()

	close(stop)
	o.mu.Lock()
	o.cond.Broadcast()
	o.mu.Unlock()
	<-stopped
}

// Enqueue queues a function for optimized recompilation. Dropped while
// the optimizer is disabled.
func (o *Optimizer) Enqueue(fn *Function) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.disabled {
		return
	}
	o.queue = append(o.queue, fn)
	o.cond.Broadcast()
}

// Disable stops accepting work, discards the queue, and waits until any
// in-flight compilation finishes.
func (o *Optimizer) Disable() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.disabled = true
	o.queue = nil
	for o.busy {
		o.cond.Wait()
	}
}

// Enable resumes accepting work.
func (o *Optimizer) Enable() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.disabled = false
	o.cond.Broadcast()
}

// QueueLen returns the number of queued functions.
func (o *Optimizer) QueueLen() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

func (o *Optimizer) loop(stop, stopped chan struct{}) {
	defer close(stopped)
	for {
		o.mu.Lock()
		for len(o.queue) == 0 || o.disabled {
			select {
			case <-stop:
				o.mu.Unlock()
				return
			default:
			}
			o.cond.Wait()
			select {
			case <-stop:
				o.mu.Unlock()
				return
			default:
			}
		}
		fn := o.queue[0]
		o.queue = o.queue[1:]
		o.busy = true
		o.mu.Unlock()

		fn.compileOptimized()

		o.mu.Lock()
		o.busy = false
		o.cond.Broadcast()
		o.mu.Unlock()
	}
}

// ---------------------------------------------------------------------------
// World invalidation
// ---------------------------------------------------------------------------

// InvalidateWorld throws away every piece of dispatch and compilation
// state that may embed pre-reload classes or functions. Code belonging
// to dirty libraries is dropped entirely; code belonging to clean
// libraries keeps running but its call-site caches are reset so they
// repopulate against the committed world.
func (ctx *ReloadContext) InvalidateWorld() {
	rt := ctx.rt
	reloadLog.Debug("invalidating dispatch and compilation state")

	rt.Megamorphic.Clear()

	// Call sites of active frames reset first so returning code never
	// dispatches through a stale entry.
	rt.Stack.ForEachFrame(func(f *Frame) {
		if f.Function != nil {
			f.Function.Caches().Reset()
		}
	})

	rt.Classes.ForEach(func(_ int, c *Class) {
		for _, fn := range c.Functions {
			fn.dropOptimizedCode()
			if fn.Owner != nil && fn.Owner.Library != nil && fn.Owner.Library.IsDirty() {
				fn.ClearCode()
				fn.SetWasCompiled(false)
			}
			fn.Caches().Reset()
			fn.ResetUsageCounter()
		}
	})
}
