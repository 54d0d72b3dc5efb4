package brain

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/roach88/ajstore/internal/config"
	"github.com/roach88/ajstore/internal/doc"
	"github.com/roach88/ajstore/internal/persist"
)

// CollectionType describes a kind of collection. Like record types,
// collection types chain through Parent, and Config is merged so the most
// specific level wins.
type CollectionType struct {
	Name   string
	Parent *CollectionType
	Item   *Type
	Config doc.Data
}

// chain returns the collection type and its ancestors ordered root first.
func (ct *CollectionType) chain() []*CollectionType {
	var chain []*CollectionType
	for cur := ct; cur != nil; cur = cur.Parent {
		chain = append(chain, cur)
	}
	slices.Reverse(chain)
	return chain
}

// Collection is a named, typed, in-memory container of records with one
// persistence engine.
//
// Thread-safety: Collection methods are safe for concurrent use.
type Collection struct {
	name     string
	ct       *CollectionType
	reg      *Registry
	cc       config.CollectionConfig
	settings doc.Data
	engine   persist.Engine
	logger   *slog.Logger

	mu    sync.RWMutex
	items map[string]*Record
	keys  []string
}

var _ persist.Target = (*Collection)(nil)

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Type returns the collection type.
func (c *Collection) Type() *CollectionType { return c.ct }

// ItemType returns the type of records the collection holds.
func (c *Collection) ItemType() *Type { return c.ct.Item }

// FileName is the base name of the durable file or KV namespace.
func (c *Collection) FileName() string {
	if c.cc.FileName != "" {
		return c.cc.FileName
	}
	return c.name
}

// FolderPath is the folder holding the collection's files.
func (c *Collection) FolderPath() string { return c.reg.cfg.FolderPath() }

// DataPath is the storage root.
func (c *Collection) DataPath() string { return c.reg.cfg.DataPath }

// Config returns the effective collection settings.
func (c *Collection) Config() doc.Data { return doc.CloneData(c.settings) }

// Engine returns the collection's persistence engine.
func (c *Collection) Engine() persist.Engine { return c.engine }

// Len returns the number of records.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

// Keys returns the record keys in insertion order.
func (c *Collection) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.keys)
}

// Upsert merges data into the record with the same key, or creates one.
//
// The key is derived from data through a scratch record of the item type.
// An existing record that the merge leaves unchanged is returned without
// scheduling a flush. A record that fails validation is not admitted, and an
// existing record that an update made invalid is removed. Admitted records
// are flushed on the debounce schedule, then the type's init hook runs;
// Upsert returns once it has.
func (c *Collection) Upsert(ctx context.Context, data doc.Data) (*Record, error) {
	scratch, normalized, err := c.scratch(data)
	if err != nil {
		return nil, fmt.Errorf("upsert %s: %w", c.name, err)
	}
	key := scratch.Key()

	c.mu.Lock()
	rec, exists := c.items[key]
	if exists {
		changed, err := rec.Update(normalized)
		if err != nil {
			c.mu.Unlock()
			return nil, fmt.Errorf("upsert %s: %w", c.name, err)
		}
		if !changed {
			rec.mu.Lock()
			rec.isNew = false
			rec.mu.Unlock()
			c.mu.Unlock()
			return rec, nil
		}
	} else {
		rec = scratch
	}
	rec.mu.Lock()
	rec.isNew = !exists
	rec.mu.Unlock()

	if err := rec.Validate(); err != nil {
		if exists {
			c.deleteLocked(key)
		}
		c.mu.Unlock()
		if exists {
			c.logger.Warn("record removed after failed validation", "key", key, "error", err)
			c.Save()
		}
		return nil, err
	}
	c.setLocked(key, rec)
	c.mu.Unlock()
	c.Save()

	if init := rec.typ.initFunc(); init != nil {
		if err := init(ctx, rec); err != nil {
			return rec, fmt.Errorf("init %s/%s: %w", c.name, key, err)
		}
	}
	return rec, nil
}

// scratch builds a detached record of the item type from data so its key
// can be derived. A key field that is present must be a string; a null one
// counts as absent.
func (c *Collection) scratch(data doc.Data) (*Record, doc.Data, error) {
	normalized, err := doc.NormalizeData(data)
	if err != nil {
		return nil, nil, err
	}
	switch v := normalized[doc.FieldKey].(type) {
	case nil:
		delete(normalized, doc.FieldKey)
	case string:
	default:
		return nil, nil, &Error{Code: ErrCodeInvalidKey, Message: fmt.Sprintf("key must be a string, got %T", v), Collection: c.name}
	}
	return newRecord(c.ct.Item, c, normalized), normalized, nil
}

// FindBy derives the key data would be stored under and returns the record
// held there. Nothing is admitted or saved.
func (c *Collection) FindBy(data doc.Data) (*Record, bool) {
	scratch, _, err := c.scratch(data)
	if err != nil {
		return nil, false
	}
	return c.Get(scratch.Key())
}

// Get returns the record stored under key.
func (c *Collection) Get(key string) (*Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.items[key]
	return rec, ok
}

// GetMany returns the records stored under keys, skipping absent keys, so
// the result is not aligned with keys.
func (c *Collection) GetMany(keys []string) []*Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Record, 0, len(keys))
	for _, key := range keys {
		if rec, ok := c.items[key]; ok {
			out = append(out, rec)
		}
	}
	return out
}

// GetManyFrom is GetMany for loosely typed input such as decoded JSON.
// Anything but a list of keys is reported as an error.
func (c *Collection) GetManyFrom(v any) ([]*Record, error) {
	switch keys := v.(type) {
	case []string:
		return c.GetMany(keys), nil
	case []any:
		strs := make([]string, 0, len(keys))
		for _, k := range keys {
			if s, ok := k.(string); ok {
				strs = append(strs, s)
			}
		}
		return c.GetMany(strs), nil
	default:
		err := &Error{Code: ErrCodeNotSequence, Message: fmt.Sprintf("expected a list of keys, got %T", v), Collection: c.name}
		c.logger.Error("get many", "error", err)
		return nil, err
	}
}

// All returns every record in insertion order.
func (c *Collection) All() []*Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Record, 0, len(c.keys))
	for _, key := range c.keys {
		out = append(out, c.items[key])
	}
	return out
}

// Filter returns the records matching f in insertion order.
func (c *Collection) Filter(f Filter) []*Record {
	var out []*Record
	for _, rec := range c.All() {
		if rec.Matches(f) {
			out = append(out, rec)
		}
	}
	return out
}

// PickRandom returns a uniformly chosen record matching f, or any record
// when f is nil. It reports false when nothing qualifies.
func (c *Collection) PickRandom(f *Filter) (*Record, bool) {
	var population []*Record
	if f != nil {
		population = c.Filter(*f)
	} else {
		population = c.All()
	}
	if len(population) == 0 {
		return nil, false
	}
	return population[rand.IntN(len(population))], true
}

// Set stores rec under its key. The record must already carry a key.
func (c *Collection) Set(rec *Record) error {
	key := rec.storedKey()
	if key == "" {
		return &Error{Code: ErrCodeMissingKey, Message: "cannot set a record without a key", Collection: c.name}
	}
	if !rec.typ.IsA(c.ct.Item) {
		return &Error{
			Code:       ErrCodeTypeMismatch,
			Message:    fmt.Sprintf("type %q is not a %q", rec.typ.Tag, c.ct.Item.Tag),
			Collection: c.name,
			Key:        key,
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec.coll = c
	c.setLocked(key, rec)
	return nil
}

func (c *Collection) setLocked(key string, rec *Record) {
	if _, exists := c.items[key]; !exists {
		c.keys = append(c.keys, key)
	}
	c.items[key] = rec
}

// Delete removes key and schedules a flush. It reports whether the key was
// present.
func (c *Collection) Delete(key string) bool {
	c.mu.Lock()
	removed := c.deleteLocked(key)
	c.mu.Unlock()
	if removed {
		c.Save()
	}
	return removed
}

// DeleteMany removes keys and schedules one flush. It returns how many were
// present.
func (c *Collection) DeleteMany(keys []string) int {
	c.mu.Lock()
	n := 0
	for _, key := range keys {
		if c.deleteLocked(key) {
			n++
		}
	}
	c.mu.Unlock()
	if n > 0 {
		c.Save()
	}
	return n
}

func (c *Collection) deleteLocked(key string) bool {
	if _, ok := c.items[key]; !ok {
		return false
	}
	delete(c.items, key)
	c.keys = slices.DeleteFunc(c.keys, func(k string) bool { return k == key })
	return true
}

// Clear removes every record. It does not schedule a flush.
func (c *Collection) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*Record)
	c.keys = nil
}

// UpdateMany merges data into each named record and returns how many
// changed. Data that would change a record's key is rejected. It neither
// validates nor schedules a flush.
func (c *Collection) UpdateMany(keys []string, data doc.Data) (int, error) {
	n := 0
	for _, rec := range c.GetMany(keys) {
		changed, err := rec.Update(data)
		if err != nil {
			return n, fmt.Errorf("update %s/%s: %w", c.name, rec.Key(), err)
		}
		if changed {
			n++
		}
	}
	return n, nil
}

// Save schedules a debounced flush.
func (c *Collection) Save() {
	if c.engine != nil {
		c.engine.RequestSave()
	}
}

// Flush writes the collection now.
func (c *Collection) Flush(ctx context.Context, force bool) error {
	if c.engine == nil {
		return nil
	}
	return c.engine.Flush(ctx, force)
}

// Replace is the wire form of a record-valued field: records of the item
// type become their data, other records become references, and everything
// else passes through.
func (c *Collection) Replace(v any) any {
	rec, ok := v.(*Record)
	if !ok {
		return v
	}
	if rec.typ.IsA(c.ct.Item) {
		return rec.Data()
	}
	return rec.Ref().Data()
}

// Snapshot returns every record's wire form in insertion order.
func (c *Collection) Snapshot() ([]doc.Entry, error) {
	recs := c.All()
	entries := make([]doc.Entry, 0, len(recs))
	for _, rec := range recs {
		data, _ := c.Replace(rec).(doc.Data)
		entries = append(entries, doc.Entry{Key: rec.storedKey(), Data: data})
	}
	return entries, nil
}

// Restore replaces the records with entries, reviving each through its
// type_tag. Entries with a missing, unknown or foreign tag, or an invalid
// key, are skipped and logged.
func (c *Collection) Restore(entries []doc.Entry) int {
	items := make(map[string]*Record, len(entries))
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		rec, err := c.revive(entry)
		if err != nil {
			c.logger.Warn("skipping entry", "key", entry.Key, "error", err)
			continue
		}
		if _, dup := items[entry.Key]; !dup {
			keys = append(keys, entry.Key)
		}
		items[entry.Key] = rec
	}

	c.mu.Lock()
	c.items = items
	c.keys = keys
	c.mu.Unlock()
	return len(keys)
}

func (c *Collection) revive(entry doc.Entry) (*Record, error) {
	tag, _ := doc.String(entry.Data, doc.FieldTypeTag)
	if tag == "" {
		return nil, &Error{Code: ErrCodeUnknownType, Message: "entry has no type_tag", Collection: c.name, Key: entry.Key}
	}
	t, ok := c.reg.Type(tag)
	if !ok {
		return nil, &Error{Code: ErrCodeUnknownType, Message: fmt.Sprintf("unknown type_tag %q", tag), Collection: c.name, Key: entry.Key}
	}
	if !t.IsA(c.ct.Item) {
		return nil, &Error{Code: ErrCodeTypeMismatch, Message: fmt.Sprintf("type %q is not a %q", tag, c.ct.Item.Tag), Collection: c.name, Key: entry.Key}
	}

	data := doc.CloneData(entry.Data)
	switch key := data[doc.FieldKey].(type) {
	case nil:
		data[doc.FieldKey] = entry.Key
	case string:
		if key != entry.Key {
			return nil, &Error{Code: ErrCodeInvalidKey, Message: fmt.Sprintf("key field %q does not match entry key", key), Collection: c.name, Key: entry.Key}
		}
	default:
		return nil, &Error{Code: ErrCodeInvalidKey, Message: fmt.Sprintf("key must be a string, got %T", key), Collection: c.name, Key: entry.Key}
	}
	rec := newRecord(t, c, data)
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}
