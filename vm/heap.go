package vm

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"
)

var heapLog = commonlog.GetLogger("phoenix.heap")

// ---------------------------------------------------------------------------
// Heap: object store, roots, and the concurrent marker task
// ---------------------------------------------------------------------------

// RootProvider enumerates a set of reference locations that keep objects
// alive: globals, execution frames, class statics, library bindings.
// The forwarding engine rewrites through the same interface.
type RootProvider interface {
	ForEachRef(fn func(*Value))
}

// Heap owns every allocated instance. It supports whole-heap iteration
// for the shape morpher, mark-sweep collection driven by a background
// marker task, and a growth-control switch that suppresses collection
// while the heap deliberately contains mixed old-shape and new-shape
// instances under the same cid.
type Heap struct {
	mu      sync.Mutex
	objects []*Object
	roots   []RootProvider

	// allocsSinceGC triggers a collection when growth control is on.
	allocsSinceGC  int
	growthDisabled atomic.Int32

	concurrentMark atomic.Bool

	// Marker task lifecycle, one goroutine at most. markGate orders
	// the loop's enabled-check against PauseConcurrentMark so a pause
	// never races a tick into a fresh collection.
	taskMu      sync.Mutex
	markGate    sync.Mutex
	stop        chan struct{}
	stopped     chan struct{}
	activeTasks sync.WaitGroup
	taskCount   atomic.Int32

	collections atomic.Uint64
}

// GrowthCollectThreshold is the allocation count that triggers a
// growth-driven collection when the concurrent marker is enabled.
const GrowthCollectThreshold = 4096

// DefaultMarkInterval is the default period of the background marker.
const DefaultMarkInterval = 10 * time.Second

// NewHeap creates an empty heap with concurrent marking enabled.
func NewHeap() *Heap {
	h := &Heap{}
	h.concurrentMark.Store(true)
	return h
}

// AddRootProvider registers a root set with the heap.
func (h *Heap) AddRootProvider(p RootProvider) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.roots = append(h.roots, p)
}

// Allocate creates an instance of cls and tracks it. When growth control
// is active and the marker is enabled, enough allocations since the last
// collection trigger one.
func (h *Heap) Allocate(cls *Class) *Object {
	obj := newObject(cls.Cid(), cls.NumSlots)

	h.mu.Lock()
	h.objects = append(h.objects, obj)
	h.allocsSinceGC++
	shouldCollect := h.allocsSinceGC >= GrowthCollectThreshold &&
		h.growthDisabled.Load() == 0 && h.concurrentMark.Load()
	if shouldCollect {
		h.allocsSinceGC = 0
	}
	h.mu.Unlock()

	if shouldCollect {
		h.Collect()
	}
	return obj
}

// Adopt tracks an object allocated elsewhere (the image reader builds
// objects before the heap exists).
func (h *Heap) Adopt(obj *Object) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.objects = append(h.objects, obj)
}

// Len returns the number of tracked objects, tombstones included.
func (h *Heap) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.objects)
}

// IterateObjects hands every tracked object to fn. The object list is
// snapshotted first so fn may allocate.
func (h *Heap) IterateObjects(fn func(*Object)) {
	h.mu.Lock()
	snapshot := make([]*Object, len(h.objects))
	copy(snapshot, h.objects)
	h.mu.Unlock()

	for _, obj := range snapshot {
		fn(obj)
	}
}

// ForEachRoot visits the address of every root reference location.
func (h *Heap) ForEachRoot(fn func(*Value)) {
	h.mu.Lock()
	roots := make([]RootProvider, len(h.roots))
	copy(roots, h.roots)
	h.mu.Unlock()

	for _, p := range roots {
		p.ForEachRef(fn)
	}
}

// SuppressGrowth disables growth-triggered collection until the returned
// restore function runs. Nested calls stack.
func (h *Heap) SuppressGrowth() (restore func()) {
	h.growthDisabled.Add(1)
	return func() { h.growthDisabled.Add(-1) }
}

// SetConcurrentMark switches the concurrent marker on or off and returns
// the previous setting.
func (h *Heap) SetConcurrentMark(enabled bool) bool {
	return h.concurrentMark.Swap(enabled)
}

// PauseConcurrentMark turns the concurrent marker off, then waits out
// any in-flight marker collection, so the caller observes zero
// outstanding tasks until the returned restore function runs. The
// order matters: disabling first keeps a concurrent tick from starting
// a fresh collection between the wait and the flip.
func (h *Heap) PauseConcurrentMark() (restore func()) {
	h.markGate.Lock()
	prev := h.concurrentMark.Swap(false)
	h.markGate.Unlock()
	h.activeTasks.Wait()
	return func() { h.concurrentMark.Store(prev) }
}

// beginMarkerTask registers a marker tick as an active task, unless
// concurrent marking is off. Registration happens under the gate so a
// tick is either visible to PauseConcurrentMark's wait or never starts.
func (h *Heap) beginMarkerTask() bool {
	h.markGate.Lock()
	defer h.markGate.Unlock()
	if !h.concurrentMark.Load() {
		return false
	}
	h.activeTasks.Add(1)
	h.taskCount.Add(1)
	return true
}

func (h *Heap) endMarkerTask() {
	h.taskCount.Add(-1)
	h.activeTasks.Done()
}

// TaskCount returns the number of marker tasks currently running.
func (h *Heap) TaskCount() int {
	return int(h.taskCount.Load())
}

// WaitForMarkerTasks blocks until no marker task is in flight.
func (h *Heap) WaitForMarkerTasks() {
	h.activeTasks.Wait()
}

// Collections returns the number of completed collections.
func (h *Heap) Collections() uint64 {
	return h.collections.Load()
}

// ---------------------------------------------------------------------------
// Marker task lifecycle
// ---------------------------------------------------------------------------

// StartMarker begins the periodic background marker. Safe to call more
// than once; only one loop runs.
func (h *Heap) StartMarker(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultMarkInterval
	}

	h.taskMu.Lock()
	defer h.taskMu.Unlock()
	if h.stop != nil {
		return
	}
	h.stop = make(chan struct{})
	h.stopped = make(chan struct{})

	stopCh := h.stop
	stoppedCh := h.stopped
	go h.markerLoop(interval, stopCh, stoppedCh)
}

// StopMarker halts the background marker and waits for it to finish.
// Safe to call on a heap whose marker never started.
func (h *Heap) StopMarker() {
	h.taskMu.Lock()
	stopCh := h.stop
	stoppedCh := h.stopped
	h.stop = nil
	h.stopped = nil
	h.taskMu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-stoppedCh
	}
}

// markerLoop runs collections on a ticker. The stop channels are local
// copies so the loop never reads fields nilled by StopMarker.
func (h *Heap) markerLoop(interval time.Duration, stopCh <-chan struct{}, stoppedCh chan struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if h.beginMarkerTask() {
				h.Collect()
				h.endMarkerTask()
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Mark-sweep collection
// ---------------------------------------------------------------------------

// Collect performs one mark-sweep pass and returns the number of objects
// reclaimed. Tombstones with no remaining references are reclaimed like
// any other unreachable object.
func (h *Heap) Collect() int {
	h.activeTasks.Add(1)
	h.taskCount.Add(1)
	defer func() {
		h.taskCount.Add(-1)
		h.activeTasks.Done()
	}()

	marked := h.mark()

	h.mu.Lock()
	defer h.mu.Unlock()
	kept := h.objects[:0]
	collected := 0
	for _, obj := range h.objects {
		if _, ok := marked[obj]; ok {
			kept = append(kept, obj)
		} else {
			collected++
		}
	}
	h.objects = kept
	h.allocsSinceGC = 0
	h.collections.Add(1)
	if collected > 0 {
		heapLog.Debugf("collected %d objects, %d live", collected, len(kept))
	}
	return collected
}

// mark builds the reachable set from all root providers. Providers are
// scanned in parallel; the visited set is shared under a lock.
func (h *Heap) mark() map[*Object]struct{} {
	h.mu.Lock()
	roots := make([]RootProvider, len(h.roots))
	copy(roots, h.roots)
	h.mu.Unlock()

	var markMu sync.Mutex
	marked := make(map[*Object]struct{})

	var g errgroup.Group
	for _, p := range roots {
		p := p
		g.Go(func() error {
			p.ForEachRef(func(v *Value) {
				if obj := v.Object(); obj != nil {
					markMu.Lock()
					markObject(obj, marked)
					markMu.Unlock()
				}
			})
			return nil
		})
	}
	_ = g.Wait() // providers never return errors
	return marked
}

// markObject marks obj and everything reachable from it. Caller holds
// the mark lock.
func markObject(obj *Object, marked map[*Object]struct{}) {
	if _, ok := marked[obj]; ok {
		return
	}
	marked[obj] = struct{}{}
	obj.ForEachRef(func(v *Value) {
		if ref := v.Object(); ref != nil {
			markObject(ref, marked)
		}
	})
}
