// Package policyloader implements the bundle-sync directory scanner
// backing the CLI's `bundles sync|list|compile-preview` commands (spec
// §6.6): idempotent import of bundle files from a directory, with a
// `sync` mode that deactivates bundles absent from the path.
package policyloader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Atom1250/Compliance-App/pkg/bundle"
	"gopkg.in/yaml.v3"
)

// Mode selects bundles sync's import semantics (spec §6.6).
type Mode string

const (
	// ModeMerge adds or updates bundles found on disk; never deactivates.
	ModeMerge Mode = "merge"
	// ModeSync additionally deactivates any previously loaded bundle whose
	// file is no longer present at path.
	ModeSync Mode = "sync"
)

// Entry is one loaded bundle plus its sync-tracked activation state.
type Entry struct {
	Bundle   *bundle.Bundle
	FileName string
	Active   bool
}

// pinFile is the optional `bundles.yaml` schema: for a bundle_id under
// `pinned`, only the named version participates in compilation, overriding
// SelectLatestBundles' default "highest version wins" rule. This lets an
// operator land a new bundle version on disk during `bundles sync` for
// review without it silently taking effect in the next compile.
type pinFile struct {
	Pinned map[string]string `yaml:"pinned"`
}

const pinFileName = "bundles.yaml"

// Loader scans a directory of `<bundle_id>@<version>.json` files and
// keeps an in-memory, mutex-guarded registry of loaded bundles, grounded
// on the teacher's directory-scan-plus-registry shape (previously
// pkg/policyloader's generic CEL policy bundle loader, retargeted here to
// regulatory bundles).
type Loader struct {
	mu        sync.RWMutex
	entries   map[string]*Entry // file name -> entry
	pins      map[string]string // bundle_id -> pinned version
	bundleDir string
}

// NewLoader creates a bundle loader rooted at bundleDir.
func NewLoader(bundleDir string) *Loader {
	return &Loader{
		entries:   make(map[string]*Entry),
		bundleDir: bundleDir,
	}
}

// Sync scans bundleDir and loads every `*.json` file found, applying the
// given mode. In ModeSync, any previously-loaded entry whose file is
// absent from this scan is marked inactive (never removed — spec §6.6's
// idempotent import never discards sync history). If bundleDir contains a
// `bundles.yaml` pin file, its `pinned` map is reloaded on every Sync call.
func (l *Loader) Sync(mode Mode) ([]*Entry, error) {
	pins, err := l.loadPins()
	if err != nil {
		return nil, err
	}

	files, err := os.ReadDir(l.bundleDir)
	if err != nil {
		return nil, fmt.Errorf("policyloader: read dir %s: %w", l.bundleDir, err)
	}

	seen := make(map[string]bool, len(files))
	var loaded []*Entry

	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}
		seen[f.Name()] = true

		entry, err := l.loadFile(filepath.Join(l.bundleDir, f.Name()))
		if err != nil {
			return nil, fmt.Errorf("policyloader: load %s: %w", f.Name(), err)
		}
		loaded = append(loaded, entry)
	}

	l.mu.Lock()
	l.pins = pins
	if mode == ModeSync {
		for name, entry := range l.entries {
			if !seen[name] {
				entry.Active = false
			}
		}
	}
	l.mu.Unlock()

	sort.Slice(loaded, func(i, j int) bool { return loaded[i].FileName < loaded[j].FileName })
	return loaded, nil
}

// loadPins reads and parses the optional bundles.yaml pin file. A missing
// file is not an error; it simply means no bundle_id is pinned.
func (l *Loader) loadPins() (map[string]string, error) {
	data, err := os.ReadFile(filepath.Join(l.bundleDir, pinFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("policyloader: read %s: %w", pinFileName, err)
	}

	var pf pinFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("policyloader: parse %s: %w", pinFileName, err)
	}
	return pf.Pinned, nil
}

func (l *Loader) loadFile(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	b, err := bundle.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse bundle: %w", err)
	}

	name := filepath.Base(path)
	entry := &Entry{Bundle: b, FileName: name, Active: true}

	l.mu.Lock()
	l.entries[name] = entry
	l.mu.Unlock()

	return entry, nil
}

// List returns every loaded entry (active and inactive), sorted by file
// name, for the `bundles list` command.
func (l *Loader) List() []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })
	return out
}

// ActiveBundles returns only the currently-active bundles, the candidate
// set the compiler selects from. When bundles.yaml pins a bundle_id to a
// specific version, only that version is returned for it — other on-disk
// versions stay loaded (and `List` still shows them) but are excluded from
// compilation until the pin is moved or removed.
func (l *Loader) ActiveBundles() []*bundle.Bundle {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*bundle.Bundle
	for _, e := range l.entries {
		if !e.Active {
			continue
		}
		if pinned, ok := l.pins[e.Bundle.Raw.BundleID]; ok && pinned != e.Bundle.Raw.Version {
			continue
		}
		out = append(out, e.Bundle)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileName() < out[j].FileName() })
	return out
}

// Pins returns the currently loaded bundle_id -> pinned-version map, for
// `bundles list` to render alongside each entry's activation state.
func (l *Loader) Pins() map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]string, len(l.pins))
	for k, v := range l.pins {
		out[k] = v
	}
	return out
}
