package vm

import (
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Program loading
// ---------------------------------------------------------------------------

// Loader turns a program image into live classes and libraries. During
// a reload the context is non-nil and class registration goes through
// it so replacement classes adopt the ids of the classes they replace.
type Loader interface {
	LoadProgram(rt *Runtime, p *Program, reload *ReloadContext) (*Library, error)
}

// FrontEnd compiles sources into a program image. The modified-sources
// list lets an incremental compiler reuse its previous state.
type FrontEnd interface {
	Compile(rootURL string, modifiedSources []string) ([]byte, error)
}

// ModificationOracle reports whether the source behind url changed
// since the given time.
type ModificationOracle func(url string, since time.Time) bool

// LoadInitialProgram loads a program image outside any reload. Used at
// startup.
func (rt *Runtime) LoadInitialProgram(p *Program) (*Library, error) {
	return rt.loader.LoadProgram(rt, p, nil)
}

// programLoader is the default image loader.
type programLoader struct{}

// LoadProgram registers the image's libraries and classes with the
// runtime. Libraries already present in the registry were preserved by
// the checkpoint and are skipped; everything else loads fresh.
func (programLoader) LoadProgram(rt *Runtime, p *Program, reload *ReloadContext) (*Library, error) {
	classesByLib := make(map[*Library][]ProgramClass)
	loaded := make([]*Library, 0, len(p.Libraries))
	byURL := make(map[string]*Library, len(p.Libraries))

	for _, plib := range p.Libraries {
		if existing := rt.Libraries.LookupByURL(plib.URL); existing != nil {
			byURL[plib.URL] = existing
			continue
		}
		lib := NewLibrary(plib.URL)
		if reload != nil {
			lib.AdoptPrivateKey(reload.FindLibraryPrivateKey(plib.URL))
		}
		lib.Debuggable = plib.Debuggable
		for _, ps := range plib.Scripts {
			lib.Scripts = append(lib.Scripts, &Script{URL: ps.URL, Source: ps.Source})
		}
		for _, pb := range plib.Bindings {
			lib.SetBinding(pb.Name, pb.Value.Value())
		}
		rt.Libraries.Add(lib)
		loaded = append(loaded, lib)
		byURL[plib.URL] = lib
		classesByLib[lib] = plib.Classes
	}

	// Imports and exports link after every library exists.
	for _, plib := range p.Libraries {
		lib := byURL[plib.URL]
		if lib == nil || len(lib.Imports) > 0 || len(lib.Exports) > 0 {
			continue
		}
		for _, url := range plib.Imports {
			if dep := byURL[url]; dep != nil {
				lib.Imports = append(lib.Imports, dep)
			}
		}
		for _, url := range plib.Exports {
			if dep := byURL[url]; dep != nil {
				lib.Exports = append(lib.Exports, dep)
			}
		}
	}

	// Classes finalize in declaration order; a superclass must precede
	// its subclasses within the image.
	for _, lib := range loaded {
		for _, pc := range classesByLib[lib] {
			c, err := buildClass(rt, lib, pc, byURL)
			if err != nil {
				return nil, err
			}
			if reload != nil {
				reload.RegisterClass(c)
			} else {
				rt.Classes.Register(c)
			}
			lib.Classes = append(lib.Classes, c)
		}
	}

	root := byURL[p.RootURL]
	if root == nil {
		return nil, fmt.Errorf("vm: root library %q not in image", p.RootURL)
	}
	rt.Libraries.SetRoot(root)
	return root, nil
}

func buildClass(rt *Runtime, lib *Library, pc ProgramClass, byURL map[string]*Library) (*Class, error) {
	c := &Class{
		Name:           pc.Name,
		Library:        lib,
		IsPatch:        pc.Patch,
		IsEnum:         pc.Enum,
		Finalized:      true,
		TypeArgsOffset: NoTypeArguments,
	}
	if len(lib.Scripts) > 0 {
		c.Script = lib.Scripts[0]
	}

	next := 0
	if pc.Super != "" {
		super := lookupSuper(rt, pc.Super, byURL)
		if super == nil {
			return nil, fmt.Errorf("vm: class %q: unknown superclass %q", pc.Name, pc.Super)
		}
		c.Super = super
		next = super.NumSlots
	}
	if pc.TypeArgs {
		c.TypeArgsOffset = next
		next++
	}
	for _, pf := range pc.Fields {
		f := &Field{
			Name:        pf.Name,
			Offset:      -1,
			IsStatic:    pf.Static,
			Fingerprint: pf.Fingerprint,
		}
		if pf.Initializer != nil {
			f.Initializer = LiteralInitializer(pf.Initializer.Value())
		}
		if !f.IsStatic {
			f.Offset = next
			next++
		}
		c.Fields = append(c.Fields, f)
	}
	c.NumSlots = next

	for _, pfn := range pc.Functions {
		c.Functions = append(c.Functions, &Function{
			Name:        pfn.Name,
			Fingerprint: pfn.Fingerprint,
			Owner:       c,
		})
	}

	// Statics start from their declared initializers.
	for _, f := range c.StaticFields() {
		if f.HasInitializer() {
			v, err := f.Initializer.Eval(rt)
			if err != nil {
				return nil, fmt.Errorf("vm: static %s.%s: %w", c.Name, f.Name, err)
			}
			c.SetStatic(f.Name, v)
		}
	}
	return c, nil
}

// lookupSuper resolves a superclass by name, preferring classes loaded
// in this image over the global table.
func lookupSuper(rt *Runtime, name string, byURL map[string]*Library) *Class {
	for _, lib := range byURL {
		for _, c := range lib.Classes {
			if c.Name == name {
				return c
			}
		}
	}
	return rt.Classes.LookupByName(name)
}
