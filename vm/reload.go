package vm

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

var reloadLog = commonlog.GetLogger("phoenix.reload")

// ---------------------------------------------------------------------------
// Reload state machine
// ---------------------------------------------------------------------------

// ReloadState tracks the phase of one reload attempt. Transitions go
// Idle -> Checkpointed -> Loaded -> Validated -> Committed, or from any
// phase after the checkpoint to RolledBack.
type ReloadState int

const (
	StateIdle ReloadState = iota
	StateCheckpointed
	StateLoaded
	StateValidated
	StateCommitted
	StateRolledBack
)

func (s ReloadState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCheckpointed:
		return "checkpointed"
	case StateLoaded:
		return "loaded"
	case StateValidated:
		return "validated"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled-back"
	default:
		return "unknown"
	}
}

type reloadStateMachine struct {
	current ReloadState
}

// transition moves from an expected phase to the next. A wrong current
// phase is a sequencing bug in the engine itself.
func (m *reloadStateMachine) transition(from, to ReloadState) {
	if m.current != from {
		panic(fmt.Sprintf("vm: reload state %s, expected %s before %s", m.current, from, to))
	}
	m.current = to
}

// transitionAny moves to a phase reachable from several others.
func (m *reloadStateMachine) transitionAny(to ReloadState) {
	m.current = to
}

// ---------------------------------------------------------------------------
// Reload request and context
// ---------------------------------------------------------------------------

// ReloadRequest describes one reload. Exactly one program source is
// used: an explicit image path, raw image bytes, or the front end
// compiling RootURL.
type ReloadRequest struct {
	ProgramPath  string
	ProgramBytes []byte
	RootURL      string
	PackagesURL  string

	// ModifiedSources overrides source-change discovery.
	ModifiedSources []string

	// Force reloads every library regardless of modification state.
	Force bool

	// Strict makes internal consistency violations fatal instead of
	// logged.
	Strict bool

	// ForceRollback validates and then rolls back, reporting what the
	// reload would have rejected.
	ForceRollback bool

	Trace bool
}

// ReloadContext carries the state of one reload attempt from
// checkpoint to commit or rollback.
type ReloadContext struct {
	rt      *Runtime
	request ReloadRequest
	id      string
	state   reloadStateMachine

	// Discovery results.
	modifiedLibs    map[*Library]bool
	modifiedSources []string

	// Base-moved URL rederivation prefixes.
	rootURLPrefix    string
	oldRootURLPrefix string

	// Checkpoint.
	savedClassTable  []*Class
	savedNumCids     int
	savedLibraries   []*Library
	savedRootLibrary *Library
	numSavedLibs     int

	// Identity sets over the pre-reload world.
	oldClassesSet   *identSet[*Class]
	oldLibrariesSet *identSet[*Library]

	// Mappings from new program elements to the elements they replace.
	// A preserved element maps to itself.
	classMap   *identMap[*Class, *Class]
	libraryMap *identMap[*Library, *Library]

	// Old classes of reloaded libraries with no replacement.
	removedClassSet *identSet[*Class]

	// Object pairs forwarded at commit, beyond morphed instances.
	becomeMap map[*Object]*Object

	// Enum value pairs matched by name.
	enumBefore []*Object
	enumAfter  []*Object

	instanceMorphers []*InstanceMorpher
	cidMorphers      map[int]*InstanceMorpher

	reasons []ReasonForCancelling

	receivedLibraryCount    int
	receivedLibrariesBytes  int
	receivedClassesCount    int
	receivedProceduresCount int

	changed ChangedSet

	report *ReloadReport
}

func newReloadContext(rt *Runtime, req ReloadRequest) *ReloadContext {
	return &ReloadContext{
		rt:              rt,
		request:         req,
		id:              uuid.NewString(),
		modifiedSources: req.ModifiedSources,
		modifiedLibs:    make(map[*Library]bool),
		oldClassesSet:   newIdentSet[*Class](ClassStrategy{}),
		oldLibrariesSet: newIdentSet[*Library](LibraryStrategy{}),
		classMap:        newIdentMap[*Class, *Class](ClassStrategy{}),
		libraryMap:      newIdentMap[*Library, *Library](LibraryStrategy{}),
		removedClassSet: newIdentSet[*Class](ClassStrategy{}),
		becomeMap:       make(map[*Object]*Object),
		cidMorphers:     make(map[int]*InstanceMorpher),
	}
}

// ID returns the reload's unique id.
func (ctx *ReloadContext) ID() string { return ctx.id }

// Report returns the reload report, available after the attempt ends.
func (ctx *ReloadContext) Report() *ReloadReport { return ctx.report }

func (ctx *ReloadContext) trace(format string, args ...any) {
	if ctx.request.Trace {
		reloadLog.Infof(format, args...)
	} else {
		reloadLog.Debugf(format, args...)
	}
}

// ---------------------------------------------------------------------------
// Orchestration
// ---------------------------------------------------------------------------

var errReloadInProgress = errors.New("vm: reload already in progress")

// Reload performs one hot reload against this runtime. It returns the
// report of the attempt; a non-nil error means the attempt could not
// run at all (bad request, concurrent reload), not that the reload was
// rejected. A rejected reload returns a report with Success false and
// the state fully rolled back.
func (rt *Runtime) Reload(req ReloadRequest) (*ReloadReport, error) {
	rt.reloadMu.Lock()
	defer rt.reloadMu.Unlock()
	if rt.reload.Load() != nil {
		return nil, errReloadInProgress
	}

	ctx := newReloadContext(rt, req)
	start := time.Now()
	ctx.trace("reload %s starting", ctx.id)

	program, imageBytes, err := ctx.acquireProgram()
	if err != nil {
		// A compile or read failure aborts before any state changed.
		ctx.reasons = append(ctx.reasons, ReasonForCancelling{
			Kind:    ReasonLoadError,
			Message: err.Error(),
		})
		ctx.report = ctx.buildReport(false)
		reloadLog.Errorf("reload %s failed to load program: %s", ctx.id, err.Error())
		return ctx.report, nil
	}
	ctx.receivedLibraryCount = program.NumLibraries()
	ctx.receivedLibrariesBytes = len(imageBytes)
	ctx.receivedClassesCount = program.NumClasses()
	ctx.receivedProceduresCount = program.NumProcedures()
	ctx.deriveRootPrefixes(program.RootURL)

	ctx.findModifiedLibraries(program)
	if len(ctx.modifiedLibs) == 0 && !req.Force {
		// Nothing changed; report success without touching the world.
		// Tooling still observes that a reload happened, with nothing
		// in it.
		rt.changedInLastReload.Store(&ChangedSet{})
		ctx.report = ctx.buildSkipReport()
		ctx.trace("reload %s skipped, no modified libraries", ctx.id)
		return ctx.report, nil
	}

	// Background work must be quiet across the metadata swap.
	rt.optimizer.Disable()
	defer rt.optimizer.Enable()
	restoreMark := rt.Heap.PauseConcurrentMark()
	defer restoreMark()

	ctx.Checkpoint()
	rt.reload.Store(ctx)
	defer rt.reload.Store(nil)

	_, loadErr := rt.loader.LoadProgram(rt, program, ctx)
	if loadErr != nil {
		ctx.FinalizeFailedLoad(loadErr)
	} else {
		ctx.state.transition(StateCheckpointed, StateLoaded)
		ctx.FinalizeLoading()
	}

	ctx.report = ctx.buildReport(ctx.state.current == StateCommitted)
	ctx.trace("reload %s finished in %s: success=%v", ctx.id, time.Since(start), ctx.report.Success)
	return ctx.report, nil
}

// acquireProgram resolves the request's program source.
func (ctx *ReloadContext) acquireProgram() (*Program, []byte, error) {
	req := ctx.request
	switch {
	case req.ProgramPath != "":
		return ReadProgramFile(req.ProgramPath)
	case len(req.ProgramBytes) > 0:
		p, err := ReadProgram(req.ProgramBytes)
		return p, req.ProgramBytes, err
	case ctx.rt.frontEnd != nil:
		modified := ctx.modifiedSources
		if modified == nil {
			modified = ctx.findModifiedSources()
			ctx.modifiedSources = modified
		}
		rootURL := req.RootURL
		if rootURL == "" {
			if root := ctx.rt.Libraries.Root(); root != nil {
				rootURL = root.URL()
			}
		}
		data, err := ctx.rt.frontEnd.Compile(rootURL, modified)
		if err != nil {
			return nil, nil, err
		}
		p, err := ReadProgram(data)
		return p, data, err
	default:
		return nil, nil, errors.New("vm: reload request has no program source")
	}
}

// deriveRootPrefixes prepares base-moved URL rederivation. When the new
// root URL differs from the old one only by a leading path, the shared
// suffix splits both into prefixes usable to translate any library URL
// from one base to the other.
func (ctx *ReloadContext) deriveRootPrefixes(newRootURL string) {
	root := ctx.rt.Libraries.Root()
	if root == nil || newRootURL == "" || root.URL() == newRootURL {
		return
	}
	oldRootURL := root.URL()
	n := commonSuffixLen(newRootURL, oldRootURL)
	ctx.rootURLPrefix = newRootURL[:len(newRootURL)-n]
	ctx.oldRootURLPrefix = oldRootURL[:len(oldRootURL)-n]
}

// findModifiedSources asks the oracle about every known script URL,
// deduplicated, plus the packages map if one was named.
func (ctx *ReloadContext) findModifiedSources() []string {
	rt := ctx.rt
	since := rt.LastReloadTimestamp()
	seen := make(map[string]bool)
	var out []string

	consider := func(url string) {
		if url == "" || seen[url] {
			return
		}
		seen[url] = true
		if ctx.rt.oracle != nil && ctx.rt.oracle(url, since) {
			out = append(out, url)
		}
	}
	for _, lib := range rt.Libraries.Libraries() {
		for _, s := range lib.Scripts {
			consider(s.URL)
		}
	}
	consider(ctx.request.PackagesURL)
	return out
}

// findModifiedLibraries marks every library whose own sources changed,
// then propagates dirtiness backwards along the imported-by graph,
// including export edges. A modified root forces everything importing
// it; a forced reload marks everything.
func (ctx *ReloadContext) findModifiedLibraries(program *Program) {
	rt := ctx.rt
	libs := rt.Libraries.Libraries()
	if ctx.request.Force {
		for _, lib := range libs {
			ctx.modifiedLibs[lib] = true
		}
		return
	}

	since := rt.LastReloadTimestamp()
	directly := make(map[*Library]bool)
	ctx.markMovedLibraries(program, directly)
	for _, lib := range libs {
		for _, s := range lib.Scripts {
			if ctx.sourceModified(s.URL, since) {
				directly[lib] = true
				break
			}
		}
	}

	// importedBy[dep] lists the libraries that depend on dep, through
	// imports or re-exports.
	importedBy := make(map[*Library][]*Library)
	for _, lib := range libs {
		for _, dep := range lib.Imports {
			importedBy[dep] = append(importedBy[dep], lib)
		}
		for _, dep := range lib.Exports {
			importedBy[dep] = append(importedBy[dep], lib)
		}
	}

	var work []*Library
	for lib := range directly {
		work = append(work, lib)
	}
	for len(work) > 0 {
		lib := work[len(work)-1]
		work = work[:len(work)-1]
		if ctx.modifiedLibs[lib] {
			continue
		}
		ctx.modifiedLibs[lib] = true
		work = append(work, importedBy[lib]...)
	}

	// The root library reloads whenever anything does.
	if root := rt.Libraries.Root(); root != nil && len(ctx.modifiedLibs) > 0 {
		ctx.modifiedLibs[root] = true
	}
}

// markMovedLibraries marks the root library modified when the new
// program's root URL differs from the live one, along with every other
// library whose rederived URL appears in the new program. A moved or
// replaced root always reloads even when no source changed.
func (ctx *ReloadContext) markMovedLibraries(program *Program, directly map[*Library]bool) {
	root := ctx.rt.Libraries.Root()
	if root == nil || program.RootURL == "" || program.RootURL == root.URL() {
		return
	}
	directly[root] = true
	ctx.trace("root library moved from %s to %s", root.URL(), program.RootURL)

	if ctx.oldRootURLPrefix == "" || ctx.rootURLPrefix == ctx.oldRootURLPrefix {
		return
	}
	inProgram := make(map[string]bool, len(program.Libraries))
	for _, pl := range program.Libraries {
		inProgram[pl.URL] = true
	}
	for _, lib := range ctx.rt.Libraries.Libraries() {
		if !strings.HasPrefix(lib.URL(), ctx.oldRootURLPrefix) {
			continue
		}
		moved := ctx.rootURLPrefix + lib.URL()[len(ctx.oldRootURLPrefix):]
		if inProgram[moved] {
			directly[lib] = true
		}
	}
}

func (ctx *ReloadContext) sourceModified(url string, since time.Time) bool {
	// An explicit modified-sources list, even an empty one, is
	// authoritative.
	if ctx.modifiedSources != nil {
		for _, m := range ctx.modifiedSources {
			if m == url {
				return true
			}
		}
		return false
	}
	if ctx.rt.oracle != nil {
		return ctx.rt.oracle(url, since)
	}
	// Without an oracle nothing is known to be stale after the first
	// reload; before it, everything is.
	return since.IsZero()
}

// ---------------------------------------------------------------------------
// Class registration during load
// ---------------------------------------------------------------------------

// RegisterClass enters a freshly built class into the class table. A
// matching pre-reload class donates its cid, so instances keep their
// headers; an unmatched class gets a fresh cid.
func (ctx *ReloadContext) RegisterClass(newC *Class) {
	if oldC := ctx.OldClassOrNull(newC); oldC != nil {
		ctx.rt.Classes.SetAt(oldC.Cid(), newC)
		ctx.classMap.Put(newC, oldC)
		ctx.trace("mapped class %s to existing cid %d", newC.Name, oldC.Cid())
		return
	}
	if ctx.request.Strict && ctx.request.Force && len(ctx.modifiedLibs) == len(ctx.savedLibraries) {
		// An identity reload must never mint classes.
		panic(fmt.Sprintf("vm: identity reload registered new class %q", newC.Name))
	}
	cid := ctx.rt.Classes.Register(newC)
	ctx.classMap.Put(newC, newC)
	ctx.trace("registered new class %s at cid %d", newC.Name, cid)
}

// OldClassOrNull finds the pre-reload class newC replaces, or nil.
func (ctx *ReloadContext) OldClassOrNull(newC *Class) *Class {
	if old, ok := ctx.oldClassesSet.Lookup(newC); ok {
		return old
	}
	return nil
}

// FindLibraryPrivateKey returns the private key of the pre-reload
// library at url, or "" when the library is new. The loader calls this
// before registering any of the library's classes so class identity
// matches.
func (ctx *ReloadContext) FindLibraryPrivateKey(url string) string {
	if old := ctx.oldLibraryOrNull(url); old != nil {
		return old.PrivateKey()
	}
	return ""
}

func (ctx *ReloadContext) oldLibraryOrNull(url string) *Library {
	probe := &Library{url: url}
	if old, ok := ctx.oldLibrariesSet.Lookup(probe); ok {
		return old
	}
	return ctx.oldLibraryBaseMoved(url)
}

// oldLibraryBaseMoved matches a library whose URL changed because the
// program root moved, by re-deriving a candidate URL from the common
// suffix of the old and new root URLs. An ambiguous suffix matches
// nothing.
func (ctx *ReloadContext) oldLibraryBaseMoved(url string) *Library {
	if ctx.rootURLPrefix == "" || ctx.oldRootURLPrefix == "" || ctx.rootURLPrefix == ctx.oldRootURLPrefix {
		return nil
	}
	if !strings.HasPrefix(url, ctx.rootURLPrefix) {
		return nil
	}
	suffix := url[len(ctx.rootURLPrefix):]
	candidate := ctx.oldRootURLPrefix + suffix

	var found *Library
	for _, lib := range ctx.savedLibraries {
		if lib.URL() == candidate {
			found = lib
		} else if suffix != "" && strings.HasSuffix(lib.URL(), suffix) {
			// Another library sharing the suffix makes the match
			// ambiguous; matching the wrong one would splice state
			// across unrelated libraries.
			return nil
		}
	}
	return found
}

// ---------------------------------------------------------------------------
// Finalization
// ---------------------------------------------------------------------------

// FinalizeLoading maps the loaded world onto the old one, validates the
// result, and commits or rolls back.
func (ctx *ReloadContext) FinalizeLoading() {
	ctx.BuildLibraryMapping()
	ctx.BuildRemovedClassesSet()

	if ctx.ValidateReload() {
		ctx.Commit()
		ctx.PostCommit()
		return
	}
	for _, r := range ctx.reasons {
		reloadLog.Noticef("reload %s rejected: %s", ctx.id, r.String())
	}
	ctx.Rollback()
}

// FinalizeFailedLoad records the load error and rolls back.
func (ctx *ReloadContext) FinalizeFailedLoad(err error) {
	ctx.reasons = append(ctx.reasons, ReasonForCancelling{
		Kind:    ReasonLoadError,
		Message: err.Error(),
	})
	reloadLog.Errorf("reload %s aborted: %s", ctx.id, err.Error())
	ctx.Rollback()
}

// BuildLibraryMapping maps every newly loaded library to the library it
// replaces. Preserved libraries occupy the registry prefix and map to
// themselves implicitly; only the reloaded tail needs entries.
func (ctx *ReloadContext) BuildLibraryMapping() {
	libs := ctx.rt.Libraries.Libraries()
	for _, newL := range libs[ctx.numSavedLibs:] {
		oldL := ctx.oldLibraryOrNull(newL.URL())
		if oldL == nil {
			// Brand new library.
			ctx.libraryMap.Put(newL, newL)
			continue
		}
		ctx.libraryMap.Put(newL, oldL)
	}
}

// BuildRemovedClassesSet collects old classes belonging to reloaded
// libraries that no new class replaced. Their instances survive, so the
// classes must stay usable after commit.
func (ctx *ReloadContext) BuildRemovedClassesSet() {
	mapped := make(map[*Class]bool)
	ctx.classMap.ForEach(func(_, oldC *Class) {
		mapped[oldC] = true
	})
	for cid := FirstCid; cid < ctx.savedNumCids; cid++ {
		oldC := ctx.savedClassTable[cid]
		if oldC == nil || mapped[oldC] {
			continue
		}
		if oldC.Library != nil && ctx.modifiedLibs[oldC.Library] {
			ctx.removedClassSet.Insert(oldC)
			ctx.trace("class %s removed by reload", oldC.Name)
		}
	}
}

// verifyMaps checks the class mapping is injective: two new classes
// must never claim the same old class. A violation means identity
// matching is broken and the commit cannot be trusted.
func (ctx *ReloadContext) verifyMaps() {
	reverse := make(map[*Class]*Class)
	ctx.classMap.ForEach(func(newC, oldC *Class) {
		if prior, ok := reverse[oldC]; ok && prior != newC {
			panic(fmt.Sprintf("vm: classes %q and %q both map to %q", prior.Name, newC.Name, oldC.Name))
		}
		reverse[oldC] = newC
	})
}

// ---------------------------------------------------------------------------
// Commit
// ---------------------------------------------------------------------------

// Commit makes the loaded world the live world. Order matters: state
// carries over before instances morph, and the saved class table is
// discarded before identity forwarding so no walk resolves against it
// afterwards.
func (ctx *ReloadContext) Commit() {
	ctx.state.transition(StateValidated, StateCommitted)
	ctx.verifyMaps()
	ctx.recordChanges()

	// Carry class state forward.
	ctx.classMap.ForEach(func(newC, oldC *Class) {
		if newC == oldC {
			return
		}
		if newC.IsEnum {
			ctx.replaceEnum(newC, oldC)
		} else {
			newC.CopyStaticValuesFrom(oldC)
		}
		oldC.PatchFieldsAndFunctions()
	})
	ctx.removedClassSet.ForEach(func(oldC *Class) {
		oldC.PatchFieldsAndFunctions()
	})

	// Carry library bits forward and mark the reloaded tail dirty.
	ctx.libraryMap.ForEach(func(newL, oldL *Library) {
		if newL == oldL {
			return
		}
		newL.Debuggable = oldL.Debuggable
		if newL.Resolver == nil {
			newL.Resolver = oldL.Resolver
		}
	})
	libs := ctx.rt.Libraries.Libraries()
	for i, lib := range libs {
		lib.SetIndex(i)
		lib.Dirty = i >= ctx.numSavedLibs
	}

	ctx.morphInstancesAndForward()
	ctx.checkIdentityReload()
}

// recordChanges computes the fingerprint-based changed-set exposed to
// tooling after the reload.
func (ctx *ReloadContext) recordChanges() {
	ctx.classMap.ForEach(func(newC, oldC *Class) {
		if newC == oldC {
			return
		}
		classChanged := false
		for _, fn := range newC.Functions {
			oldFn := oldC.FunctionByName(fn.Name)
			if oldFn == nil || oldFn.Fingerprint != fn.Fingerprint {
				ctx.changed.Functions = append(ctx.changed.Functions, fn)
				classChanged = true
			}
		}
		for _, f := range newC.Fields {
			oldF := oldC.FieldByName(f.Name)
			if oldF == nil || oldF.Fingerprint != f.Fingerprint {
				ctx.changed.Fields = append(ctx.changed.Fields, f)
				classChanged = true
				if oldF != nil && f.IsStatic && oldF.IsStatic {
					f.InitializerChangedAfterInitialization = true
				}
			}
		}
		if classChanged || !oldC.SameShape(newC) {
			ctx.changed.Classes = append(ctx.changed.Classes, newC)
		}
	})
}

// replaceEnum carries enum values forward by name. Matched old values
// are forwarded to their new counterparts so existing references keep
// working; values the new program dropped keep their old objects.
func (ctx *ReloadContext) replaceEnum(newC, oldC *Class) {
	for _, f := range newC.StaticFields() {
		oldV := oldC.Static(f.Name)
		newV := newC.Static(f.Name)
		oldO, newO := oldV.Object(), newV.Object()
		if oldO != nil && newO != nil && oldO != newO {
			ctx.enumBefore = append(ctx.enumBefore, oldO)
			ctx.enumAfter = append(ctx.enumAfter, newO)
		}
	}
}

// morphInstancesAndForward scans the heap for instances of shape-changed
// classes, allocates their replacements, and forwards every collected
// pair in one pass: morphed instances, enum values, and any extra
// become pairs. The saved class table is discarded first so the scan's
// successors resolve against the live table only.
func (ctx *ReloadContext) morphInstancesAndForward() {
	rt := ctx.rt
	restore := rt.Heap.SuppressGrowth()
	defer restore()

	if len(ctx.cidMorphers) > 0 {
		rt.Heap.IterateObjects(func(o *Object) {
			if m, ok := ctx.cidMorphers[o.Cid()]; ok && !o.IsTombstone() {
				m.AddObject(o)
			}
		})
		for _, m := range ctx.instanceMorphers {
			m.CreateMorphedCopies(rt.Heap)
			ctx.trace("morphing %d instances of %s", m.InstanceCount(), m.to.Name)
		}
	}

	ctx.DiscardSavedClassTable()

	var before, after []*Object
	for _, m := range ctx.instanceMorphers {
		before, after = m.AppendPairs(before, after)
	}
	before = append(before, ctx.enumBefore...)
	after = append(after, ctx.enumAfter...)
	for b, a := range ctx.becomeMap {
		before = append(before, b)
		after = append(after, a)
	}
	if len(before) > 0 {
		rt.forwardIdentity(before, after)
	}
}

// checkIdentityReload asserts that a forced reload of unchanged sources
// produced an identical world. Only meaningful under Strict.
func (ctx *ReloadContext) checkIdentityReload() {
	if !ctx.request.Strict || !ctx.request.Force {
		return
	}
	if len(ctx.modifiedSources) > 0 {
		return
	}
	if got, want := ctx.rt.Libraries.Len(), len(ctx.savedLibraries); got != want {
		panic(fmt.Sprintf("vm: identity reload changed library count: %d != %d", got, want))
	}
	if len(ctx.instanceMorphers) != 0 {
		panic("vm: identity reload changed instance shapes")
	}
}

// PostCommit finishes a committed reload: stale dispatch state goes
// away, then new fields get their initial values against the new world.
func (ctx *ReloadContext) PostCommit() {
	rt := ctx.rt
	ctx.savedLibraries = nil
	ctx.savedRootLibrary = nil

	ctx.InvalidateWorld()

	// Initializers run against the committed world, so a new field's
	// initializer can already call reloaded code.
	for _, m := range ctx.instanceMorphers {
		m.RunNewFieldInitializers(rt)
	}

	rt.setLastReloadTimestamp(time.Now())
	changed := ctx.changed
	rt.changedInLastReload.Store(&changed)
	reloadLog.Infof("reload %s committed: %d classes changed", ctx.id, len(changed.Classes))
}

// ---------------------------------------------------------------------------
// Reports
// ---------------------------------------------------------------------------

func (ctx *ReloadContext) buildReport(success bool) *ReloadReport {
	r := &ReloadReport{
		ID:                      ctx.id,
		Success:                 success,
		FinalLibraryCount:       ctx.rt.Libraries.Len(),
		ReceivedLibraryCount:    ctx.receivedLibraryCount,
		ReceivedLibrariesBytes:  ctx.receivedLibrariesBytes,
		ReceivedClassesCount:    ctx.receivedClassesCount,
		ReceivedProceduresCount: ctx.receivedProceduresCount,
		SavedLibraryCount:       ctx.numSavedLibs,
		LoadedLibraryCount:      ctx.rt.Libraries.Len() - ctx.numSavedLibs,
	}
	for _, reason := range ctx.reasons {
		r.Reasons = append(r.Reasons, reasonRecord(reason))
	}
	if success {
		for _, m := range ctx.instanceMorphers {
			r.ShapeChangeMappings = append(r.ShapeChangeMappings, m.ShapeChangeMapping())
		}
	}
	return r
}

// buildSkipReport reports the fast path: every library was saved, none
// loaded.
func (ctx *ReloadContext) buildSkipReport() *ReloadReport {
	n := ctx.rt.Libraries.Len()
	return &ReloadReport{
		ID:                      ctx.id,
		Success:                 true,
		Skipped:                 true,
		FinalLibraryCount:       n,
		ReceivedLibraryCount:    ctx.receivedLibraryCount,
		ReceivedLibrariesBytes:  ctx.receivedLibrariesBytes,
		ReceivedClassesCount:    ctx.receivedClassesCount,
		ReceivedProceduresCount: ctx.receivedProceduresCount,
		SavedLibraryCount:       n,
		LoadedLibraryCount:      0,
	}
}
