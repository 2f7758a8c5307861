package vm

import "fmt"

// ---------------------------------------------------------------------------
// Reload validation
// ---------------------------------------------------------------------------

// Cancellation reason kinds.
const (
	ReasonLoadError           = "load-error"
	ReasonClassIncompatible   = "class-incompatible"
	ReasonLibraryIncompatible = "library-incompatible"
	ReasonForcedRollback      = "forced-rollback"
)

// ReasonForCancelling is one reason a reload cannot be committed.
type ReasonForCancelling struct {
	Kind    string
	Message string
	Class   *Class
	Library *Library
}

func (r ReasonForCancelling) String() string {
	return fmt.Sprintf("%s: %s", r.Kind, r.Message)
}

// CompatibilityChecker decides whether an old program element can be
// replaced by its new counterpart. Incompatibilities are reported, not
// returned, so one element can report several.
type CompatibilityChecker interface {
	CheckClassReload(oldC, newC *Class, report func(ReasonForCancelling))
	CheckLibraryReload(oldL, newL *Library, report func(ReasonForCancelling))
}

// DefaultChecker implements the built-in compatibility rules.
type DefaultChecker struct{}

// CheckClassReload rejects enum flips and supertype changes that break
// the layout of an already finalized class.
func (DefaultChecker) CheckClassReload(oldC, newC *Class, report func(ReasonForCancelling)) {
	if oldC.IsEnum != newC.IsEnum {
		var msg string
		if newC.IsEnum {
			msg = fmt.Sprintf("class '%s' cannot be changed into an enum", oldC.Name)
		} else {
			msg = fmt.Sprintf("enum '%s' cannot be changed into a class", oldC.Name)
		}
		report(ReasonForCancelling{Kind: ReasonClassIncompatible, Message: msg, Class: newC})
	}
	if oldC.Finalized && newC.Finalized {
		oldSuper, newSuper := superName(oldC), superName(newC)
		if oldSuper != newSuper && oldC.NumSlots != newC.NumSlots {
			report(ReasonForCancelling{
				Kind:    ReasonClassIncompatible,
				Message: fmt.Sprintf("class '%s' changed superclass from '%s' to '%s' with a different layout", oldC.Name, oldSuper, newSuper),
				Class:   newC,
			})
		}
	}
}

// CheckLibraryReload has no built-in rules; embedders can wrap it.
func (DefaultChecker) CheckLibraryReload(oldL, newL *Library, report func(ReasonForCancelling)) {
}

func superName(c *Class) string {
	if c.Super == nil {
		return ""
	}
	return c.Super.Name
}

// ValidateReload checks every mapped library and class pair for
// compatibility and builds an instance morpher for every class whose
// shape changed. It returns true when the reload may be committed.
func (ctx *ReloadContext) ValidateReload() bool {
	ctx.state.transition(StateLoaded, StateValidated)

	report := func(r ReasonForCancelling) {
		ctx.reasons = append(ctx.reasons, r)
	}

	ctx.libraryMap.ForEach(func(newL, oldL *Library) {
		if newL == oldL {
			return
		}
		ctx.rt.checker.CheckLibraryReload(oldL, newL, report)
	})

	ctx.classMap.ForEach(func(newC, oldC *Class) {
		if newC == oldC {
			return
		}
		ctx.rt.checker.CheckClassReload(oldC, newC, report)
		if !oldC.SameShape(newC) {
			m, err := NewInstanceMorpher(oldC, newC)
			if err != nil {
				report(ReasonForCancelling{Kind: ReasonClassIncompatible, Message: err.Error(), Class: newC})
				return
			}
			ctx.addInstanceMorpher(m)
		}
	})

	if ctx.request.ForceRollback {
		report(ReasonForCancelling{Kind: ReasonForcedRollback, Message: "rollback forced by request"})
	}
	return len(ctx.reasons) == 0
}

func (ctx *ReloadContext) addInstanceMorpher(m *InstanceMorpher) {
	ctx.instanceMorphers = append(ctx.instanceMorphers, m)
	ctx.cidMorphers[m.Cid()] = m
}
