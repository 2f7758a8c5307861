// Package manifest handles phoenix.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Manifest represents a phoenix.toml project configuration.
type Manifest struct {
	Project Project      `toml:"project"`
	Source  Source       `toml:"source"`
	Image   ImageConfig  `toml:"image"`
	Reload  ReloadConfig `toml:"reload"`

	// Dir is the directory containing the phoenix.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures source file locations.
type Source struct {
	Dirs    []string `toml:"dirs"`
	Entry   string   `toml:"entry"`
	RootURL string   `toml:"root-url"`
}

// ImageConfig configures program image output.
type ImageConfig struct {
	Output string `toml:"output"`
}

// ReloadConfig configures hot-reload behavior.
type ReloadConfig struct {
	Force         bool   `toml:"force"`
	Strict        bool   `toml:"strict"`
	ForceRollback bool   `toml:"force-rollback"`
	Trace         bool   `toml:"trace"`
	WatchDebounce string `toml:"watch-debounce"`
}

// Load parses a phoenix.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "phoenix.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"src"}
	}
	if m.Source.RootURL == "" && m.Source.Entry != "" {
		m.Source.RootURL = "file:///" + m.Source.Entry
	}
	if m.Image.Output == "" {
		m.Image.Output = m.Project.Name + ".pxi"
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a phoenix.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "phoenix.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, filepath.Join(m.Dir, d))
	}
	return paths
}

// ImagePath returns the absolute path of the program image output.
func (m *Manifest) ImagePath() string {
	if filepath.IsAbs(m.Image.Output) {
		return m.Image.Output
	}
	return filepath.Join(m.Dir, m.Image.Output)
}

// WatchDebounceDuration returns the configured debounce interval, or
// the default when unset or unparsable.
func (m *Manifest) WatchDebounceDuration() time.Duration {
	if m.Reload.WatchDebounce == "" {
		return DefaultWatchDebounce
	}
	d, err := time.ParseDuration(m.Reload.WatchDebounce)
	if err != nil || d <= 0 {
		return DefaultWatchDebounce
	}
	return d
}
