package brain

import (
	"slices"
	"strings"
)

// Filter selects records. The key checks apply to every type; Fields is
// left to the type's MatchFunc.
type Filter struct {
	ExcludeKeys      []string
	ExcludeKeyPrefix string
	KeySuffix        string
	Fields           map[string]any
}

func (f Filter) matchKey(key string) bool {
	if slices.Contains(f.ExcludeKeys, key) {
		return false
	}
	if f.ExcludeKeyPrefix != "" && strings.HasPrefix(key, f.ExcludeKeyPrefix) {
		return false
	}
	if f.KeySuffix != "" && !strings.HasSuffix(key, f.KeySuffix) {
		return false
	}
	return true
}
