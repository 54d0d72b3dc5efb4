package brain

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/roach88/ajstore/internal/doc"
)

// Record is one typed entry of a collection. Its data always carries the
// key and type_tag fields once the key has been derived.
//
// Thread-safety: Record methods are safe for concurrent use.
type Record struct {
	typ  *Type
	coll *Collection

	mu    sync.RWMutex
	data  doc.Data
	isNew bool
}

// newRecord builds a record of type t from the type's defaults with data
// merged over them. data must already be normalized.
func newRecord(t *Type, coll *Collection, data doc.Data) *Record {
	d := t.ComposedDefaults()
	doc.Merge(d, data)
	d[doc.FieldTypeTag] = t.Tag
	return &Record{typ: t, coll: coll, data: d}
}

// Type returns the record type.
func (r *Record) Type() *Type { return r.typ }

// Collection returns the owning collection, or nil for a detached record.
func (r *Record) Collection() *Collection { return r.coll }

// IsNew reports whether the last Upsert that touched the record created it.
func (r *Record) IsNew() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isNew
}

// Key returns the record key, deriving and storing it on first use.
func (r *Record) Key() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if key, ok := doc.String(r.data, doc.FieldKey); ok {
		return key
	}
	key := r.typ.keyFunc()(r.data)
	r.data[doc.FieldKey] = key
	return key
}

// storedKey returns the key field without deriving one.
func (r *Record) storedKey() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, _ := doc.String(r.data, doc.FieldKey)
	return key
}

// Data returns a copy of the record's fields.
func (r *Record) Data() doc.Data {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return doc.CloneData(r.data)
}

// Get returns a copy of one field.
func (r *Record) Get(field string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.data[field]
	return doc.Clone(v), ok
}

// Update deep-merges data into the record and reports whether anything
// changed. Records found anywhere inside data are stored as references.
func (r *Record) Update(data doc.Data) (bool, error) {
	normalized, err := doc.NormalizeData(data)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkKeyLocked(normalized); err != nil {
		return false, err
	}
	changed := doc.Merge(r.data, normalized)
	if tag, _ := r.data[doc.FieldTypeTag].(string); tag != r.typ.Tag {
		r.data[doc.FieldTypeTag] = r.typ.Tag
		changed = true
	}
	return changed, nil
}

// checkKeyLocked rejects data that would change an established key or set a
// non-string one. Callers hold r.mu.
func (r *Record) checkKeyLocked(data doc.Data) error {
	v, ok := data[doc.FieldKey]
	if !ok {
		return nil
	}
	stored, _ := doc.String(r.data, doc.FieldKey)
	switch key := v.(type) {
	case string:
		if stored == "" || key == stored {
			return nil
		}
		return &Error{Code: ErrCodeInvalidKey, Message: fmt.Sprintf("key cannot change to %q", key), Collection: r.collName(), Key: stored}
	case nil:
		if stored == "" {
			return nil
		}
	}
	return &Error{Code: ErrCodeInvalidKey, Message: fmt.Sprintf("key must be a string, got %T", v), Collection: r.collName(), Key: stored}
}

// Validate reports whether the record may be admitted to a collection.
func (r *Record) Validate() error {
	key := r.storedKey()
	if key == "" {
		return &Error{Code: ErrCodeInvalidKey, Message: "empty key", Collection: r.collName()}
	}
	if strings.Contains(key, "undefined") {
		return &Error{Code: ErrCodeInvalidKey, Message: "key derived from missing fields", Collection: r.collName(), Key: key}
	}
	if validate := r.typ.validateFunc(); validate != nil {
		return validate(r)
	}
	return nil
}

// Matches reports whether the record passes f.
func (r *Record) Matches(f Filter) bool {
	if !f.matchKey(r.Key()) {
		return false
	}
	if match := r.typ.matchFunc(); match != nil {
		return match(r, f)
	}
	return true
}

// Ref returns a reference to the record.
func (r *Record) Ref() doc.Reference {
	return doc.Reference{CollectionName: r.collName(), Key: r.Key()}
}

// MarshalJSON encodes the record as its reference so that a record placed
// inside another record's data is never embedded.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Ref())
}

// Save stores the record in its collection and schedules a flush.
func (r *Record) Save() error {
	if r.coll == nil {
		return &Error{Code: ErrCodeUnknownCollection, Message: "record has no collection", Key: r.storedKey()}
	}
	if err := r.coll.Set(r); err != nil {
		return err
	}
	r.coll.Save()
	return nil
}

// Delete removes the record from its collection.
func (r *Record) Delete() bool {
	if r.coll == nil {
		return false
	}
	return r.coll.Delete(r.storedKey())
}

func (r *Record) collName() string {
	if r.coll == nil {
		return ""
	}
	return r.coll.Name()
}
