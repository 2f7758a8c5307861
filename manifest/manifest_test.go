package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadManifest(t *testing.T) {
	// Create a temporary directory with a phoenix.toml
	dir := t.TempDir()
	tomlContent := `
[project]
name = "test-app"
version = "0.1.0"

[source]
dirs = ["src", "lib"]
entry = "main.px"
root-url = "file:///app/main.px"

[image]
output = "test.pxi"

[reload]
force = true
trace = true
watch-debounce = "100ms"
`
	if err := os.WriteFile(filepath.Join(dir, "phoenix.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "test-app" {
		t.Errorf("project name = %q, want test-app", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if len(m.Source.Dirs) != 2 {
		t.Errorf("source dirs count = %d, want 2", len(m.Source.Dirs))
	}
	if m.Source.Entry != "main.px" {
		t.Errorf("source entry = %q, want main.px", m.Source.Entry)
	}
	if m.Source.RootURL != "file:///app/main.px" {
		t.Errorf("root url = %q, want file:///app/main.px", m.Source.RootURL)
	}
	if m.Image.Output != "test.pxi" {
		t.Errorf("image output = %q, want test.pxi", m.Image.Output)
	}
	if !m.Reload.Force {
		t.Error("reload force = false, want true")
	}
	if !m.Reload.Trace {
		t.Error("reload trace = false, want true")
	}
	if got := m.WatchDebounceDuration(); got != 100*time.Millisecond {
		t.Errorf("watch debounce = %v, want 100ms", got)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
[project]
name = "minimal"

[source]
entry = "main.px"
`
	if err := os.WriteFile(filepath.Join(dir, "phoenix.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Default source dir should be "src"
	if len(m.Source.Dirs) != 1 || m.Source.Dirs[0] != "src" {
		t.Errorf("default source dirs = %v, want [src]", m.Source.Dirs)
	}
	if m.Source.RootURL != "file:///main.px" {
		t.Errorf("default root url = %q, want file:///main.px", m.Source.RootURL)
	}
	if m.Image.Output != "minimal.pxi" {
		t.Errorf("default image output = %q, want minimal.pxi", m.Image.Output)
	}
	if got := m.WatchDebounceDuration(); got != DefaultWatchDebounce {
		t.Errorf("default watch debounce = %v, want %v", got, DefaultWatchDebounce)
	}
}

func TestFindAndLoad(t *testing.T) {
	// Create nested directory structure
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}

	tomlContent := `[project]
name = "found-project"
`
	if err := os.WriteFile(filepath.Join(dir, "phoenix.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no phoenix.toml exists")
	}
}

func TestSourceDirPaths(t *testing.T) {
	m := &Manifest{
		Dir: "/app",
		Source: Source{
			Dirs: []string{"src", "lib"},
		},
	}

	paths := m.SourceDirPaths()
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d", len(paths))
	}
	if paths[0] != "/app/src" {
		t.Errorf("paths[0] = %q, want /app/src", paths[0])
	}
	if paths[1] != "/app/lib" {
		t.Errorf("paths[1] = %q, want /app/lib", paths[1])
	}
}
