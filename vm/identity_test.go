package vm

import "testing"

func TestSameClassMatchesByNameAndLibraryKey(t *testing.T) {
	lib := NewLibrary(mainURL)
	a := &Class{Name: "Point", Library: lib}
	b := &Class{Name: "Point", Library: lib}
	if !SameClass(a, b) {
		t.Error("same name, same library key should match")
	}

	reloaded := NewLibrary(mainURL)
	reloaded.AdoptPrivateKey(lib.PrivateKey())
	c := &Class{Name: "Point", Library: reloaded}
	if !SameClass(a, c) {
		t.Error("adopted private key should preserve class identity")
	}

	other := NewLibrary(coreURL)
	d := &Class{Name: "Point", Library: other}
	if SameClass(a, d) {
		t.Error("different library key must not match")
	}

	e := &Class{Name: "Point", Library: lib, IsPatch: true}
	if SameClass(a, e) {
		t.Error("patch flag mismatch must not match")
	}

	f := &Class{Name: "Pixel", Library: lib}
	if SameClass(a, f) {
		t.Error("different name must not match")
	}
}

func TestSameLibraryByURL(t *testing.T) {
	a := NewLibrary(mainURL)
	b := NewLibrary(mainURL)
	c := NewLibrary(coreURL)
	if !SameLibrary(a, b) {
		t.Error("same URL should match")
	}
	if SameLibrary(a, c) {
		t.Error("different URL must not match")
	}
}

func TestCommonSuffixLen(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "abc", 3},
		{"file:///old/app/main.px", "file:///new/app/main.px", len("/app/main.px")},
		{"xyz", "abc", 0},
		{"main.px", "file:///main.px", len("main.px")},
	}
	for _, c := range cases {
		if got := commonSuffixLen(c.a, c.b); got != c.want {
			t.Errorf("commonSuffixLen(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestIdentMapReplaces(t *testing.T) {
	lib := NewLibrary(mainURL)
	m := newIdentMap[*Class, int](ClassStrategy{})
	a := &Class{Name: "A", Library: lib}
	aAgain := &Class{Name: "A", Library: lib}

	if m.Put(a, 1) {
		t.Error("first Put should not replace")
	}
	if !m.Put(aAgain, 2) {
		t.Error("Put of an identity-equal key should replace")
	}
	if v, ok := m.Get(a); !ok || v != 2 {
		t.Errorf("Get = %v %v, want 2 true", v, ok)
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
}

func TestIdentSetLookupReturnsStoredKey(t *testing.T) {
	lib := NewLibrary(mainURL)
	s := newIdentSet[*Class](ClassStrategy{})
	stored := &Class{Name: "A", Library: lib}
	s.Insert(stored)

	probe := &Class{Name: "A", Library: lib}
	got, ok := s.Lookup(probe)
	if !ok || got != stored {
		t.Error("Lookup must return the stored descriptor, not the probe")
	}
	if _, ok := s.Lookup(&Class{Name: "B", Library: lib}); ok {
		t.Error("Lookup of absent key should miss")
	}
}

func TestBaseMovedLibraryMatch(t *testing.T) {
	rt := NewRuntime()
	oldRoot := NewLibrary("file:///old/app/main.px")
	oldUtil := NewLibrary("file:///old/app/util.px")
	rt.Libraries.Add(oldRoot)
	rt.Libraries.Add(oldUtil)
	rt.Libraries.SetRoot(oldRoot)

	ctx := newReloadContext(rt, ReloadRequest{})
	ctx.savedLibraries = []*Library{oldRoot, oldUtil}
	ctx.deriveRootPrefixes("file:///new/app/main.px")

	if got := ctx.oldLibraryBaseMoved("file:///new/app/util.px"); got != oldUtil {
		t.Errorf("base-moved match = %v, want the old util library", got)
	}
	if got := ctx.oldLibraryBaseMoved("file:///new/app/other.px"); got != nil {
		t.Errorf("unknown library matched %v, want nil", got)
	}
	if got := ctx.oldLibraryBaseMoved("file:///elsewhere/util.px"); got != nil {
		t.Errorf("URL outside the new base matched %v, want nil", got)
	}
}

func TestBaseMovedAmbiguousSuffixMatchesNothing(t *testing.T) {
	rt := NewRuntime()
	oldRoot := NewLibrary("file:///old/app/main.px")
	a := NewLibrary("file:///old/app/util.px")
	b := NewLibrary("file:///old/vendor/app/util.px")
	rt.Libraries.Add(oldRoot)
	rt.Libraries.SetRoot(oldRoot)

	ctx := newReloadContext(rt, ReloadRequest{})
	ctx.savedLibraries = []*Library{oldRoot, a, b}
	ctx.deriveRootPrefixes("file:///new/app/main.px")

	if got := ctx.oldLibraryBaseMoved("file:///new/app/util.px"); got != nil {
		t.Errorf("ambiguous suffix matched %v, want nil", got)
	}
}

func TestVerifyMapsRejectsSharedOldClass(t *testing.T) {
	rt := NewRuntime()
	lib := NewLibrary(mainURL)
	oldC := &Class{Name: "A", Library: lib}
	newLib := NewLibrary(coreURL)
	n1 := &Class{Name: "A", Library: newLib}
	n2 := &Class{Name: "A2", Library: newLib}

	ctx := newReloadContext(rt, ReloadRequest{})
	ctx.classMap.Put(n1, oldC)
	ctx.classMap.Put(n2, oldC)

	defer func() {
		if recover() == nil {
			t.Error("two new classes claiming one old class must panic")
		}
	}()
	ctx.verifyMaps()
}
