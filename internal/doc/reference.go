package doc

// Reference is a non-owning pointer to a record in another (or the same)
// collection. It carries no ownership and never cascades deletes.
type Reference struct {
	CollectionName string `json:"collection_name"`
	Key            string `json:"key"`
}

// Data returns the wire form {"collection_name": ..., "key": ...}.
func (r Reference) Data() Data {
	return Data{
		"collection_name": r.CollectionName,
		"key":             r.Key,
	}
}

// IsZero reports whether the reference points nowhere.
func (r Reference) IsZero() bool {
	return r.CollectionName == "" && r.Key == ""
}

// AsReference recognizes the wire form of a Reference: a mapping with exactly
// the string fields collection_name and key.
func AsReference(v any) (Reference, bool) {
	switch val := v.(type) {
	case Reference:
		return val, true
	case map[string]any:
		if len(val) != 2 {
			return Reference{}, false
		}
		name, ok := val["collection_name"].(string)
		if !ok {
			return Reference{}, false
		}
		key, ok := val["key"].(string)
		if !ok {
			return Reference{}, false
		}
		return Reference{CollectionName: name, Key: key}, true
	default:
		return Reference{}, false
	}
}
