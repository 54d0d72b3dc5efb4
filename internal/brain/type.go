package brain

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/ajstore/internal/doc"
)

// KeyFunc derives a record key from its data.
type KeyFunc func(data doc.Data) string

// MatchFunc extends the key-based filter checks for a type. It runs only
// after the base checks pass.
type MatchFunc func(r *Record, f Filter) bool

// ValidateFunc adds type-specific admission rules on top of key validation.
// It runs while the collection is locked and must not call back into it.
type ValidateFunc func(r *Record) error

// InitFunc runs after a record is admitted by Upsert. It may block, for
// example to resolve other records; Upsert returns once it does. If it
// changes the record it must save it.
type InitFunc func(ctx context.Context, r *Record) error

// Type describes a record type. Types form a single-inheritance chain
// through Parent. Defaults deep-merge from the root down; Key, Match,
// Validate and Init come from the nearest type in the chain that sets them.
//
// A Type must not be modified after its first use.
type Type struct {
	Tag      string
	Parent   *Type
	Defaults doc.Data
	Key      KeyFunc
	Match    MatchFunc
	Validate ValidateFunc
	Init     InitFunc

	once     sync.Once
	composed doc.Data
}

// baseDefaults are the fields every record starts with.
var baseDefaults = doc.Data{doc.FieldKey: nil}

// Chain returns the type and its ancestors ordered root first.
func (t *Type) Chain() []*Type {
	var chain []*Type
	for cur := t; cur != nil; cur = cur.Parent {
		chain = append(chain, cur)
	}
	slices.Reverse(chain)
	return chain
}

// IsA reports whether t is other or descends from it.
func (t *Type) IsA(other *Type) bool {
	for cur := t; cur != nil; cur = cur.Parent {
		if cur == other {
			return true
		}
	}
	return false
}

// ComposedDefaults returns a copy of the defaults of every type in the
// chain deep-merged root to leaf. The composition is computed once.
func (t *Type) ComposedDefaults() doc.Data {
	t.once.Do(func() {
		layers := []doc.Data{baseDefaults}
		for _, level := range t.Chain() {
			layers = append(layers, level.Defaults)
		}
		composed := doc.Compose(layers...)
		if normalized, err := doc.NormalizeData(composed); err == nil {
			composed = normalized
		}
		t.composed = composed
	})
	return doc.CloneData(t.composed)
}

func (t *Type) keyFunc() KeyFunc {
	for cur := t; cur != nil; cur = cur.Parent {
		if cur.Key != nil {
			return cur.Key
		}
	}
	return contentKey
}

func (t *Type) matchFunc() MatchFunc {
	for cur := t; cur != nil; cur = cur.Parent {
		if cur.Match != nil {
			return cur.Match
		}
	}
	return nil
}

func (t *Type) validateFunc() ValidateFunc {
	for cur := t; cur != nil; cur = cur.Parent {
		if cur.Validate != nil {
			return cur.Validate
		}
	}
	return nil
}

func (t *Type) initFunc() InitFunc {
	for cur := t; cur != nil; cur = cur.Parent {
		if cur.Init != nil {
			return cur.Init
		}
	}
	return nil
}

// contentKey is the default KeyFunc: an explicit key field wins, otherwise
// the content hash.
func contentKey(data doc.Data) string {
	if key, ok := doc.String(data, doc.FieldKey); ok {
		return key
	}
	key, err := doc.ContentKey(data)
	if err != nil {
		return ""
	}
	return key
}

// KeyPart renders a field value for use in a semantic key. Missing values
// render as "undefined" so keys built from absent fields fail validation.
func KeyPart(v any) string {
	switch val := v.(type) {
	case nil:
		return "undefined"
	case string:
		return val
	case int64, float64, bool:
		return fmt.Sprint(val)
	default:
		canonical, err := doc.MarshalCanonical(val)
		if err != nil {
			return "undefined"
		}
		return string(canonical)
	}
}
