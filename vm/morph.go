package vm

import "fmt"

// ---------------------------------------------------------------------------
// Instance morphing
// ---------------------------------------------------------------------------

// SlotMapping maps one instance slot of the old shape to one of the new.
type SlotMapping struct {
	From int
	To   int
}

// InstanceMorpher transforms instances of one class whose shape changed
// across a reload. It is built once per changed class during validation
// and collects every live instance during the commit heap scan.
type InstanceMorpher struct {
	from *Class
	to   *Class
	cid  int

	mapping   []SlotMapping
	newFields []*Field

	before []*Object
	after  []*Object
}

// NewInstanceMorpher computes the slot mapping between the old and new
// shape of a class. Both classes carry the same cid; that is what makes
// this a shape change rather than a class replacement.
func NewInstanceMorpher(from, to *Class) (*InstanceMorpher, error) {
	if from.Cid() != to.Cid() {
		return nil, fmt.Errorf("vm: morpher cid mismatch: %d vs %d", from.Cid(), to.Cid())
	}
	m := &InstanceMorpher{from: from, to: to, cid: to.Cid()}
	m.computeMapping()
	return m, nil
}

// computeMapping matches the type-arguments slot first, then every new
// instance field by name against the old shape. New fields with an
// initializer are queued for post-commit evaluation.
func (m *InstanceMorpher) computeMapping() {
	if m.to.TypeArgsOffset != NoTypeArguments && m.from.TypeArgsOffset != NoTypeArguments {
		m.mapping = append(m.mapping, SlotMapping{From: m.from.TypeArgsOffset, To: m.to.TypeArgsOffset})
	}
	for _, f := range m.to.InstanceFields() {
		if old := m.from.FieldByName(f.Name); old != nil && !old.IsStatic {
			m.mapping = append(m.mapping, SlotMapping{From: old.Offset, To: f.Offset})
			continue
		}
		if f.HasInitializer() {
			m.newFields = append(m.newFields, f)
		}
	}
}

// Cid returns the class id this morpher handles.
func (m *InstanceMorpher) Cid() int { return m.cid }

// Mapping returns the computed slot mapping.
func (m *InstanceMorpher) Mapping() []SlotMapping { return m.mapping }

// AddObject collects one live instance found during the heap scan.
func (m *InstanceMorpher) AddObject(o *Object) {
	m.before = append(m.before, o)
}

// InstanceCount returns the number of collected instances.
func (m *InstanceMorpher) InstanceCount() int { return len(m.before) }

// CreateMorphedCopies allocates a new-shape copy for every collected
// instance and fills the mapped slots. Unmapped new slots stay Nil until
// the initializers run after commit.
func (m *InstanceMorpher) CreateMorphedCopies(h *Heap) {
	m.after = make([]*Object, 0, len(m.before))
	for _, o := range m.before {
		replacement := h.Allocate(m.to)
		for _, sm := range m.mapping {
			replacement.SetSlot(sm.To, o.Slot(sm.From))
		}
		m.after = append(m.after, replacement)
	}
}

// AppendPairs appends this morpher's before/after pairs to the shared
// identity-forwarding lists.
func (m *InstanceMorpher) AppendPairs(before, after []*Object) ([]*Object, []*Object) {
	return append(before, m.before...), append(after, m.after...)
}

// RunNewFieldInitializers evaluates the initializer of every new field
// on every morphed instance. A failing initializer is logged and the
// field keeps its default; one bad instance never blocks the rest.
func (m *InstanceMorpher) RunNewFieldInitializers(rt *Runtime) {
	for _, f := range m.newFields {
		for _, o := range m.after {
			v, err := f.Initializer.Eval(rt)
			if err != nil {
				reloadLog.Errorf("initializer for %s.%s failed: %s", m.to.Name, f.Name, err.Error())
				continue
			}
			o.SetSlot(f.Offset, v)
		}
	}
}

// ShapeChangeMapping summarizes this morpher for the reload report.
func (m *InstanceMorpher) ShapeChangeMapping() ShapeChangeMapping {
	pairs := make([][2]int, 0, len(m.mapping))
	for _, sm := range m.mapping {
		pairs = append(pairs, [2]int{sm.From, sm.To})
	}
	return ShapeChangeMapping{
		Class:               m.to.Name,
		InstanceCount:       len(m.before),
		FieldOffsetMappings: pairs,
	}
}
