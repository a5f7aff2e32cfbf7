// Package manifest records where each split bundle was written. The
// manifest maps the call-site path of a lazy load to the bundle's id and
// URLs, and is persisted once per build after every bundle was written.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/specialistvlad/bundlesplit/internal/graph"
)

// Entry describes one bundle.
type Entry struct {
	ID  graph.ModuleID `json:"id"`
	JS  string         `json:"js,omitempty"`
	CSS string         `json:"css,omitempty"`
}

// ErrPersisted is returned when a manifest is persisted a second time.
var ErrPersisted = errors.New("manifest already persisted")

// Manifest is safe for concurrent use.
type Manifest struct {
	mu        sync.Mutex
	entries   map[string]Entry
	persisted bool
}

// New returns an empty manifest.
func New() *Manifest {
	return &Manifest{entries: make(map[string]Entry)}
}

// Add records e under key. Fields left empty in e keep their previous value,
// so a host can add a stylesheet to an entry the builder recorded.
func (m *Manifest) Add(key string, e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.entries[key]
	if e.ID != "" {
		prev.ID = e.ID
	}
	if e.JS != "" {
		prev.JS = e.JS
	}
	if e.CSS != "" {
		prev.CSS = e.CSS
	}
	m.entries[key] = prev
}

// Lookup returns the entry for name.
func (m *Manifest) Lookup(name string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[name]
	return e, ok
}

// Keys returns the recorded keys, sorted.
func (m *Manifest) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// MarshalJSON implements json.Marshaler.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return json.Marshal(m.entries)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	entries := make(map[string]Entry)
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = entries
	return nil
}

// Encode renders the manifest as indented JSON.
func (m *Manifest) Encode() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := json.MarshalIndent(m.entries, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Persist encodes the manifest and hands it to w. A manifest can be
// persisted once.
func (m *Manifest) Persist(ctx context.Context, w Writer) error {
	m.mu.Lock()
	if m.persisted {
		m.mu.Unlock()
		return ErrPersisted
	}
	m.persisted = true
	m.mu.Unlock()

	data, err := m.Encode()
	if err != nil {
		return &WriteError{Target: w.String(), Err: err}
	}
	if err := w.Write(ctx, data); err != nil {
		return &WriteError{Target: w.String(), Err: err}
	}
	return nil
}

// Read loads a manifest file.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := New()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return m, nil
}

// WriteError reports a manifest that could not be persisted. Bundles of the
// build are already in place; rerunning the build is safe.
type WriteError struct {
	Target string
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write manifest %s: %v", e.Target, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Writer persists an encoded manifest.
type Writer interface {
	Write(ctx context.Context, data []byte) error
	String() string
}

// File writes the manifest to a path, replacing it atomically.
type File string

// Write implements Writer.
func (f File) Write(_ context.Context, data []byte) error {
	path := string(f)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return writeFileAtomic(path, data, 0o644)
}

func (f File) String() string { return string(f) }

// WriterFunc adapts a function to the Writer interface.
type WriterFunc func(ctx context.Context, data []byte) error

// Write implements Writer.
func (f WriterFunc) Write(ctx context.Context, data []byte) error { return f(ctx, data) }

func (f WriterFunc) String() string { return "custom writer" }

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	_ = tmp.Sync()
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
