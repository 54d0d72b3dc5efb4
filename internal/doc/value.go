package doc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"unicode/utf16"
)

// Data is the plain field mapping held by a record.
type Data = map[string]any

// Entry is one keyed record payload in file order.
type Entry struct {
	Key  string
	Data Data
}

// Reserved field names present on every persisted record.
const (
	FieldKey     = "key"
	FieldTypeTag = "type_tag"
)

// Normalize converts an arbitrary Go value into the JSON-shaped form used by
// Data. It round-trips through encoding/json, so any json.Marshaler in the
// input (a live record, a Reference) is replaced by what it marshals to.
//
// Integers become int64; other numbers become float64.
func Normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	return decodeValue(raw)
}

// NormalizeData is Normalize for a field mapping.
// A nil input yields an empty mapping.
func NormalizeData(d Data) (Data, error) {
	if d == nil {
		return Data{}, nil
	}
	v, err := Normalize(d)
	if err != nil {
		return nil, err
	}
	out, ok := v.(Data)
	if !ok {
		return nil, fmt.Errorf("normalize: expected object, got %T", v)
	}
	return out, nil
}

// EncodeObject renders a field mapping as compact JSON without HTML
// escaping. Keys are sorted, so equal mappings encode identically.
func EncodeObject(d Data) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("encode object: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// DecodeObject parses raw JSON that must hold an object.
func DecodeObject(raw []byte) (Data, error) {
	v, err := decodeValue(raw)
	if err != nil {
		return nil, err
	}
	d, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode: expected object, got %T", v)
	}
	return d, nil
}

// decodeValue parses a single JSON value with UseNumber so large integers
// survive without float64 precision loss.
func decodeValue(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return fromJSON(v), nil
}

// fromJSON rewrites json.Number leaves into int64 or float64.
func fromJSON(v any) any {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		f, err := val.Float64()
		if err != nil {
			// Out of float64 range; keep the literal so nothing is lost.
			return val.String()
		}
		return f
	case []any:
		for i := range val {
			val[i] = fromJSON(val[i])
		}
		return val
	case map[string]any:
		for k := range val {
			val[k] = fromJSON(val[k])
		}
		return val
	default:
		return v
	}
}

// Clone deep-copies a normalized value. Maps and slices are copied; scalars
// are returned as is.
func Clone(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneData(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Clone(elem)
		}
		return out
	default:
		return v
	}
}

// CloneData deep-copies a field mapping. Clone of nil is nil.
func CloneData(d Data) Data {
	if d == nil {
		return nil
	}
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = Clone(v)
	}
	return out
}

// Equal reports whether two normalized values are structurally identical.
func Equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// IsObject reports whether v is a plain mapping (the only kind of value
// deep merge recurses into).
func IsObject(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

// String returns d[field] when it is a non-empty string.
func String(d Data, field string) (string, bool) {
	s, ok := d[field].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings compares UTF-8 bytes, which orders some keys differently.
func SortedKeys(d Data) []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings by UTF-16 code units.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	default:
		return 0
	}
}
