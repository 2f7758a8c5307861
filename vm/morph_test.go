package vm

import (
	"errors"
	"testing"
)

var errTest = errors.New("boom")

func twoShapes() (*Class, *Class) {
	lib := NewLibrary(mainURL)
	from := &Class{
		Name:           "Box",
		Library:        lib,
		TypeArgsOffset: NoTypeArguments,
		Fields: []*Field{
			{Name: "a", Offset: 0},
			{Name: "b", Offset: 1},
		},
		NumSlots: 2,
	}
	to := &Class{
		Name:           "Box",
		Library:        lib,
		TypeArgsOffset: NoTypeArguments,
		Fields: []*Field{
			{Name: "b", Offset: 0},
			{Name: "c", Offset: 1, Initializer: LiteralInitializer(IntValue(5))},
		},
		NumSlots: 2,
	}
	return from, to
}

func TestMorpherMapping(t *testing.T) {
	from, to := twoShapes()
	from.cid = FirstCid
	to.cid = FirstCid

	m, err := NewInstanceMorpher(from, to)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Mapping()) != 1 {
		t.Fatalf("mapping = %v, want one pair for b", m.Mapping())
	}
	if m.Mapping()[0] != (SlotMapping{From: 1, To: 0}) {
		t.Errorf("b mapped as %v, want 1->0", m.Mapping()[0])
	}
	if len(m.newFields) != 1 || m.newFields[0].Name != "c" {
		t.Errorf("new fields = %v, want [c]", m.newFields)
	}
}

func TestMorpherCidMismatch(t *testing.T) {
	from, to := twoShapes()
	from.cid = 7
	to.cid = 8
	if _, err := NewInstanceMorpher(from, to); err == nil {
		t.Error("differing cids must be rejected")
	}
}

func TestMorpherTypeArgumentsSlot(t *testing.T) {
	from := &Class{Name: "G", TypeArgsOffset: 0, NumSlots: 2,
		Fields: []*Field{{Name: "v", Offset: 1}}}
	to := &Class{Name: "G", TypeArgsOffset: 1, NumSlots: 2,
		Fields: []*Field{{Name: "v", Offset: 0}}}

	m, err := NewInstanceMorpher(from, to)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Mapping()) != 2 {
		t.Fatalf("mapping = %v, want type args plus v", m.Mapping())
	}
	if m.Mapping()[0] != (SlotMapping{From: 0, To: 1}) {
		t.Errorf("type args mapped as %v, want 0->1", m.Mapping()[0])
	}
}

func TestMorphCopiesMappedSlots(t *testing.T) {
	from, to := twoShapes()
	h := NewHeap()

	obj := h.Allocate(from)
	obj.SetSlot(0, IntValue(10))
	obj.SetSlot(1, IntValue(20))

	m, err := NewInstanceMorpher(from, to)
	if err != nil {
		t.Fatal(err)
	}
	m.AddObject(obj)
	m.CreateMorphedCopies(h)

	if len(m.after) != 1 {
		t.Fatalf("copies = %d, want 1", len(m.after))
	}
	repl := m.after[0]
	if got := repl.Slot(0); got.Int() != 20 {
		t.Errorf("b = %v, want carried value 20", got)
	}
	if !repl.Slot(1).IsNil() {
		t.Error("c should stay nil until initializers run")
	}
}

func TestInitializerErrorSkipsInstance(t *testing.T) {
	from, to := twoShapes()
	calls := 0
	to.Fields[1].Initializer = InitializerFunc(func(*Runtime) (Value, error) {
		calls++
		if calls == 1 {
			return Nil, errTest
		}
		return IntValue(5), nil
	})

	h := NewHeap()
	a := h.Allocate(from)
	b := h.Allocate(from)

	m, err := NewInstanceMorpher(from, to)
	if err != nil {
		t.Fatal(err)
	}
	m.AddObject(a)
	m.AddObject(b)
	m.CreateMorphedCopies(h)
	m.RunNewFieldInitializers(NewRuntime())

	if !m.after[0].Slot(1).IsNil() {
		t.Error("failed initializer must leave the default")
	}
	if got := m.after[1].Slot(1); got.Int() != 5 {
		t.Errorf("second instance = %v, want 5 despite the first failing", got)
	}
}

func TestShapeChangeMapping(t *testing.T) {
	from, to := twoShapes()
	m, err := NewInstanceMorpher(from, to)
	if err != nil {
		t.Fatal(err)
	}
	h := NewHeap()
	m.AddObject(h.Allocate(from))
	m.CreateMorphedCopies(h)

	scm := m.ShapeChangeMapping()
	if scm.Class != "Box" || scm.InstanceCount != 1 {
		t.Errorf("mapping summary = %+v", scm)
	}
	if len(scm.FieldOffsetMappings) != 1 || scm.FieldOffsetMappings[0] != [2]int{1, 0} {
		t.Errorf("offset pairs = %v, want [[1 0]]", scm.FieldOffsetMappings)
	}
}
