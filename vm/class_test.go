package vm

import "testing"

func TestSameShape(t *testing.T) {
	a := &Class{NumSlots: 2, TypeArgsOffset: NoTypeArguments,
		Fields: []*Field{{Name: "x", Offset: 0}, {Name: "y", Offset: 1}}}
	b := &Class{NumSlots: 2, TypeArgsOffset: NoTypeArguments,
		Fields: []*Field{{Name: "x", Offset: 0}, {Name: "y", Offset: 1}}}
	if !a.SameShape(b) {
		t.Error("identical layouts should match")
	}

	renamed := &Class{NumSlots: 2, TypeArgsOffset: NoTypeArguments,
		Fields: []*Field{{Name: "x", Offset: 0}, {Name: "z", Offset: 1}}}
	if a.SameShape(renamed) {
		t.Error("renamed field changes the shape")
	}

	grown := &Class{NumSlots: 3, TypeArgsOffset: NoTypeArguments,
		Fields: []*Field{{Name: "x", Offset: 0}, {Name: "y", Offset: 1}, {Name: "z", Offset: 2}}}
	if a.SameShape(grown) {
		t.Error("added field changes the shape")
	}

	// Statics never affect the instance shape.
	withStatic := &Class{NumSlots: 2, TypeArgsOffset: NoTypeArguments,
		Fields: []*Field{{Name: "x", Offset: 0}, {Name: "y", Offset: 1},
			{Name: "s", Offset: -1, IsStatic: true}}}
	if !a.SameShape(withStatic) {
		t.Error("static fields must not affect shape comparison")
	}
}

func TestCopyStaticValuesFrom(t *testing.T) {
	old := &Class{Fields: []*Field{
		{Name: "count", Offset: -1, IsStatic: true},
		{Name: "gone", Offset: -1, IsStatic: true},
	}}
	old.SetStatic("count", IntValue(9))
	old.SetStatic("gone", IntValue(1))

	fresh := &Class{Fields: []*Field{
		{Name: "count", Offset: -1, IsStatic: true},
		{Name: "added", Offset: -1, IsStatic: true},
	}}
	fresh.CopyStaticValuesFrom(old)

	if got := fresh.Static("count"); got.Int() != 9 {
		t.Errorf("count = %v, want carried 9", got)
	}
	if !fresh.Static("added").IsNil() {
		t.Error("new static keeps its default")
	}
	if !fresh.Static("gone").IsNil() {
		t.Error("dropped static must not be carried")
	}
}

func TestClassTableRegisterAndSetAt(t *testing.T) {
	ct := NewClassTable()
	a := &Class{Name: "A"}
	cid := ct.Register(a)
	if cid != FirstCid {
		t.Errorf("first cid = %d, want %d", cid, FirstCid)
	}
	if !ct.HasValidClassAt(cid) || ct.HasValidClassAt(TombstoneCid) {
		t.Error("validity checks wrong")
	}

	b := &Class{Name: "B"}
	ct.SetAt(cid, b)
	if b.Cid() != cid {
		t.Error("SetAt must make the class adopt the cid")
	}
	if ct.At(cid) != b {
		t.Error("slot not replaced")
	}
	if ct.At(999) != nil {
		t.Error("out of range cid should answer nil")
	}
}

func TestClassTableSetNumCids(t *testing.T) {
	ct := NewClassTable()
	ct.Register(&Class{Name: "A"})
	ct.Register(&Class{Name: "B"})
	n := ct.NumCids()

	ct.Register(&Class{Name: "C"})
	ct.SetNumCids(n)
	if ct.NumCids() != n {
		t.Errorf("cids = %d, want truncated %d", ct.NumCids(), n)
	}
	if ct.LookupByName("C") != nil {
		t.Error("truncated class still visible")
	}

	ct.SetNumCids(n + 2)
	if ct.NumCids() != n+2 || ct.At(n) != nil {
		t.Error("padding should add empty slots")
	}
}

func TestPatchFieldsAndFunctions(t *testing.T) {
	script := &Script{URL: mainURL}
	cls := &Class{Name: "Old", Script: script}
	fn := &Function{Name: "run", Owner: cls}
	cls.Functions = []*Function{fn}

	cls.PatchFieldsAndFunctions()
	if fn.patchScript != script {
		t.Error("function not re-pointed at the retiring script")
	}
	if !cls.patched {
		t.Error("class not marked patched")
	}
}
