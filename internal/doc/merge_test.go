package doc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestMergeDeep(t *testing.T) {
	dst := Data{
		"key":   "item_key",
		"value": "item_value",
		"nested": Data{
			"prop1": "prop1_value",
			"prop2": "prop2_value",
		},
	}

	changed := Merge(dst, Data{
		"value": "updated_value",
		"nested": Data{
			"prop2": "updated_prop2_value",
			"prop3": "prop3_value",
		},
	})

	assert.True(t, changed)
	assert.Equal(t, Data{
		"key":   "item_key",
		"value": "updated_value",
		"nested": Data{
			"prop1": "prop1_value",
			"prop2": "updated_prop2_value",
			"prop3": "prop3_value",
		},
	}, dst)
}

func TestMergeReplacesArrays(t *testing.T) {
	dst := Data{"tags": []any{"a", "b", "c"}}
	Merge(dst, Data{"tags": []any{"z"}})
	assert.Equal(t, []any{"z"}, dst["tags"])
}

func TestMergeReplacesMismatchedKinds(t *testing.T) {
	dst := Data{"v": Data{"a": int64(1)}}
	Merge(dst, Data{"v": "scalar"})
	assert.Equal(t, "scalar", dst["v"])

	Merge(dst, Data{"v": Data{"b": int64(2)}})
	assert.Equal(t, Data{"b": int64(2)}, dst["v"])
}

func TestMergeReportsNoChange(t *testing.T) {
	dst := Data{"a": int64(1), "n": Data{"b": []any{"x"}}}
	assert.False(t, Merge(dst, Data{"a": int64(1), "n": Data{"b": []any{"x"}}}))
	assert.False(t, Merge(dst, Data{}))
	assert.True(t, Merge(dst, Data{"c": nil}), "adding an absent key is a change even when nil")
}

func TestMergeDoesNotAliasSource(t *testing.T) {
	src := Data{"n": Data{"x": int64(1)}, "l": []any{int64(1)}}
	dst := Data{}
	Merge(dst, src)

	src["n"].(Data)["x"] = int64(99)
	src["l"].([]any)[0] = int64(99)

	assert.Equal(t, int64(1), dst["n"].(Data)["x"])
	assert.Equal(t, int64(1), dst["l"].([]any)[0])
}

func TestComposeMostSpecificWins(t *testing.T) {
	base := Data{"key": nil, "shared": Data{"a": int64(1), "b": int64(1)}, "list": []any{"base"}}
	mid := Data{"shared": Data{"b": int64(2)}, "mid": true}
	leaf := Data{"shared": Data{"c": int64(3)}, "list": []any{"leaf"}}

	got := Compose(base, mid, leaf)

	assert.Equal(t, Data{
		"key":    nil,
		"shared": Data{"a": int64(1), "b": int64(2), "c": int64(3)},
		"list":   []any{"leaf"},
		"mid":    true,
	}, got)
	assert.Equal(t, Data{"a": int64(1), "b": int64(1)}, base["shared"], "layers are not mutated")
}

func TestOverlayShallow(t *testing.T) {
	base := Data{"a": int64(1)}
	mid := Data{"a": int64(2), "b": int64(2)}
	leaf := Data{"b": int64(3), "c": int64(3)}

	assert.Equal(t, Data{"a": int64(2), "b": int64(3), "c": int64(3)}, Overlay(base, mid, leaf))
	assert.Equal(t, Data{"n": Data{"y": int64(2)}}, Overlay(Data{"n": Data{"x": int64(1)}}, Data{"n": Data{"y": int64(2)}}))
}

// genData draws a small nested field mapping.
func genData(depth int) *rapid.Generator[Data] {
	return rapid.Custom(func(t *rapid.T) Data {
		d := Data{}
		n := rapid.IntRange(0, 4).Draw(t, "n")
		for i := 0; i < n; i++ {
			field := rapid.SampledFrom([]string{"a", "b", "c", "d"}).Draw(t, "field")
			kind := rapid.IntRange(0, 3).Draw(t, "kind")
			switch {
			case kind == 0 && depth > 0:
				d[field] = genData(depth - 1).Draw(t, "nested")
			case kind == 1:
				d[field] = []any{rapid.Int64().Draw(t, "elem")}
			case kind == 2:
				d[field] = rapid.String().Draw(t, "str")
			default:
				d[field] = rapid.Int64().Draw(t, "int")
			}
		}
		return d
	})
}

func TestMergeIdempotentProperty(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		base := genData(2).Draw(r, "base")
		patch := genData(2).Draw(r, "patch")

		once := CloneData(base)
		Merge(once, patch)

		twice := CloneData(once)
		if Merge(twice, patch) {
			r.Fatalf("second merge of the same patch reported a change")
		}
		if !Equal(once, twice) {
			r.Fatalf("merge is not idempotent: %v != %v", once, twice)
		}
	})
}
