package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherModifiedSince(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.px")
	if err := os.WriteFile(path, []byte("class Main"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := Watch([]string{dir}, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer w.Close()

	// Before any event the stat fallback answers.
	if !w.ModifiedSince(path, time.Time{}) {
		t.Error("existing file should count as modified since zero time")
	}
	if w.ModifiedSince(path, time.Now().Add(time.Hour)) {
		t.Error("file should not be modified since a future time")
	}

	mark := time.Now()
	time.Sleep(10 * time.Millisecond)
	if err := os.WriteFile(path, []byte("class Main'"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !w.ModifiedSince(path, mark) {
		if time.Now().After(deadline) {
			t.Fatal("write never observed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatcherEventsDebounced(t *testing.T) {
	dir := t.TempDir()
	w, err := Watch([]string{dir}, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer w.Close()

	a := filepath.Join(dir, "a.px")
	b := filepath.Join(dir, "b.px")
	if err := os.WriteFile(a, []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("b"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case batch := <-w.Events():
		if len(batch) == 0 {
			t.Error("empty change batch")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no change batch delivered")
	}
}

func TestWatcherUnknownURL(t *testing.T) {
	dir := t.TempDir()
	w, err := Watch([]string{dir}, 0)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer w.Close()

	if w.ModifiedSince("http://example.com/lib.px", time.Time{}) {
		t.Error("non-file URL should never count as modified")
	}
	if w.ModifiedSince(filepath.Join(dir, "missing.px"), time.Time{}) {
		t.Error("missing file should never count as modified")
	}
}

func TestPathForURL(t *testing.T) {
	if got := PathForURL("file:///app/src/main.px"); got != "/app/src/main.px" {
		t.Errorf("PathForURL(file url) = %q", got)
	}
	if got := PathForURL("/plain/path.px"); got != "/plain/path.px" {
		t.Errorf("PathForURL(plain path) = %q", got)
	}
	if got := PathForURL("package:core/core.px"); got != "" {
		t.Errorf("PathForURL(package url) = %q, want empty", got)
	}
}
