package manifest

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce is how long the watcher waits after the last
// filesystem event before signalling a change batch.
const DefaultWatchDebounce = 250 * time.Millisecond

// Watcher observes the project's source directories and answers
// modification queries for the runtime. Changes are also delivered as
// debounced batches on Events for watch-mode reload triggering.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration

	mu       sync.Mutex
	modified map[string]time.Time

	events  chan []string
	stop    chan struct{}
	stopped chan struct{}
}

// Watch starts watching dirs recursively.
func Watch(dirs []string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("manifest: create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	w := &Watcher{
		fsw:      fsw,
		debounce: debounce,
		modified: make(map[string]time.Time),
		events:   make(chan []string, 1),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, dir := range dirs {
		if err := w.addRecursive(dir); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				return fmt.Errorf("manifest: watch %s: %w", path, err)
			}
		}
		return nil
	})
}

// Events delivers debounced batches of changed paths.
func (w *Watcher) Events() <-chan []string { return w.events }

// ModifiedSince reports whether the source behind url changed since t.
// Unknown URLs fall back to a filesystem stat so the runtime stays
// correct even for files outside the watched directories.
func (w *Watcher) ModifiedSince(sourceURL string, since time.Time) bool {
	path := PathForURL(sourceURL)
	if path == "" {
		return false
	}
	w.mu.Lock()
	mod, seen := w.modified[path]
	w.mu.Unlock()
	if seen {
		return since.IsZero() || mod.After(since)
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return since.IsZero() || info.ModTime().After(since)
}

// Close stops the watcher and releases its resources.
func (w *Watcher) Close() error {
	close(w.stop)
	err := w.fsw.Close()
	<-w.stopped
	return err
}

func (w *Watcher) loop() {
	defer close(w.stopped)

	var pending []string
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			// New directories join the watch set.
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = w.addRecursive(ev.Name)
				}
			}
			w.mu.Lock()
			w.modified[ev.Name] = time.Now()
			w.mu.Unlock()
			pending = append(pending, ev.Name)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			batch := dedupe(pending)
			pending = nil
			fire = nil
			select {
			case w.events <- batch:
			default:
			}
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	var out []string
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// PathForURL converts a file: source URL into a filesystem path. Plain
// paths pass through; other schemes return "".
func PathForURL(sourceURL string) string {
	if !strings.Contains(sourceURL, ":") {
		return sourceURL
	}
	u, err := url.Parse(sourceURL)
	if err != nil || u.Scheme != "file" {
		return ""
	}
	return u.Path
}
