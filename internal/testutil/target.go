package testutil

import (
	"slices"
	"sync"

	"github.com/roach88/ajstore/internal/doc"
)

// Target is an in-memory persistence target for engine tests. It satisfies
// persist.Target.
type Target struct {
	mu          sync.Mutex
	name        string
	folder      string
	entries     map[string]doc.Data
	snapshotErr error
	restores    int
}

// NewTarget creates a target named name stored under folder.
func NewTarget(name, folder string) *Target {
	return &Target{name: name, folder: folder, entries: make(map[string]doc.Data)}
}

func (t *Target) Name() string       { return t.name }
func (t *Target) FileName() string   { return t.name }
func (t *Target) FolderPath() string { return t.folder }

// Put stores a record under key, adding the key field.
func (t *Target) Put(key string, data doc.Data) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d := doc.CloneData(data)
	if d == nil {
		d = doc.Data{}
	}
	d[doc.FieldKey] = key
	t.entries[key] = d
}

// Delete removes key.
func (t *Target) Delete(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

// FailSnapshot makes Snapshot return err until called again with nil.
func (t *Target) FailSnapshot(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snapshotErr = err
}

// Snapshot returns the records sorted by key.
func (t *Target) Snapshot() ([]doc.Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snapshotErr != nil {
		return nil, t.snapshotErr
	}
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]doc.Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, doc.Entry{Key: k, Data: doc.CloneData(t.entries[k])})
	}
	return out, nil
}

// Restore replaces the records.
func (t *Target) Restore(entries []doc.Entry) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.restores++
	t.entries = make(map[string]doc.Data, len(entries))
	for _, e := range entries {
		t.entries[e.Key] = doc.CloneData(e.Data)
	}
	return len(entries)
}

// Keys returns the current keys, sorted.
func (t *Target) Keys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Get returns a copy of the record under key.
func (t *Target) Get(key string) (doc.Data, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.entries[key]
	return doc.CloneData(d), ok
}

// Restores counts Restore calls.
func (t *Target) Restores() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.restores
}
