package vm

// ---------------------------------------------------------------------------
// Checkpoint and rollback
// ---------------------------------------------------------------------------

// CheckpointClasses copies the live class table into the context's side
// buffer and records every real class in the old-classes set. The live
// table keeps working during the load; heap walks with pre-reload cids
// are answered from the saved copy.
func (ctx *ReloadContext) CheckpointClasses() {
	rt := ctx.rt
	n := rt.Classes.NumCids()
	ctx.savedClassTable = make([]*Class, n)
	ctx.savedNumCids = rt.Classes.Snapshot(ctx.savedClassTable)

	for cid := FirstCid; cid < ctx.savedNumCids; cid++ {
		if c := ctx.savedClassTable[cid]; c != nil {
			ctx.oldClassesSet.Insert(c)
		}
	}
	reloadLog.Debugf("checkpoint: saved %d class ids", ctx.savedNumCids)
}

// CheckpointLibraries saves the library registry and splits it into the
// preserved prefix and the modified tail. Modified libraries get index
// -1 and drop out of the live registry; preserved libraries are packed
// and renumbered so the loader appends reloaded libraries after them.
// The root library always reloads, so the live root is cleared.
func (ctx *ReloadContext) CheckpointLibraries() {
	rt := ctx.rt
	ctx.savedLibraries = rt.Libraries.Libraries()
	ctx.savedRootLibrary = rt.Libraries.Root()

	preserved := make([]*Library, 0, len(ctx.savedLibraries))
	for _, lib := range ctx.savedLibraries {
		ctx.oldLibrariesSet.Insert(lib)
		if ctx.modifiedLibs[lib] {
			lib.SetIndex(-1)
		} else {
			lib.SetIndex(len(preserved))
			preserved = append(preserved, lib)
		}
	}
	ctx.numSavedLibs = len(preserved)

	rt.Libraries.SetLibraries(preserved)
	rt.Libraries.SetRoot(nil)
	reloadLog.Debugf("checkpoint: %d libraries preserved, %d to reload",
		ctx.numSavedLibs, len(ctx.savedLibraries)-ctx.numSavedLibs)
}

// Checkpoint saves the class table and library registry so a failed
// reload can restore them exactly.
func (ctx *ReloadContext) Checkpoint() {
	ctx.state.transition(StateIdle, StateCheckpointed)
	ctx.CheckpointClasses()
	ctx.CheckpointLibraries()
}

// RollbackClasses restores the class table from the side buffer.
func (ctx *ReloadContext) RollbackClasses() {
	rt := ctx.rt
	rt.Classes.SetNumCids(ctx.savedNumCids)
	for cid := FirstCid; cid < ctx.savedNumCids; cid++ {
		if c := ctx.savedClassTable[cid]; c != nil {
			rt.Classes.SetAt(cid, c)
		}
	}
	ctx.DiscardSavedClassTable()
}

// RollbackLibraries restores the registry and the saved indices.
func (ctx *ReloadContext) RollbackLibraries() {
	rt := ctx.rt
	for i, lib := range ctx.savedLibraries {
		lib.SetIndex(i)
	}
	rt.Libraries.SetLibraries(ctx.savedLibraries)
	rt.Libraries.SetRoot(ctx.savedRootLibrary)
}

// Rollback restores the runtime to its checkpointed state.
func (ctx *ReloadContext) Rollback() {
	ctx.state.transitionAny(StateRolledBack)
	ctx.RollbackClasses()
	ctx.RollbackLibraries()
	reloadLog.Info("reload rolled back")
}

// DiscardSavedClassTable drops the side buffer. After this, heap walks
// must only see live cids; the caller guarantees every surviving object
// has been morphed or its class re-registered.
func (ctx *ReloadContext) DiscardSavedClassTable() {
	ctx.savedClassTable = nil
	ctx.savedNumCids = 0
}

func (ctx *ReloadContext) savedClassAt(cid int) *Class {
	if cid >= FirstCid && cid < ctx.savedNumCids && ctx.savedClassTable != nil {
		return ctx.savedClassTable[cid]
	}
	return nil
}

// forEachSavedStaticRef keeps checkpointed classes' statics alive.
func (ctx *ReloadContext) forEachSavedStaticRef(fn func(*Value)) {
	for cid := FirstCid; cid < ctx.savedNumCids; cid++ {
		if c := ctx.savedClassTable[cid]; c != nil {
			c.ForEachStaticRef(fn)
		}
	}
}

// forEachSavedLibraryRef keeps checkpointed libraries' bindings alive.
func (ctx *ReloadContext) forEachSavedLibraryRef(fn func(*Value)) {
	for _, lib := range ctx.savedLibraries {
		lib.ForEachBindingRef(fn)
	}
}
