package doc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFragmentFormat(t *testing.T) {
	entries := []Entry{
		{Key: "a", Data: Data{"key": "a", "value": int64(1)}},
		{Key: "b<&>", Data: Data{"key": "b<&>", "nested": Data{"x": 0.25}}},
	}

	out, err := EncodeFragment(entries)
	require.NoError(t, err)

	expected := `"a": {"key":"a","value":1},` + "\n" +
		`"b<&>": {"key":"b<&>","nested":{"x":0.25}},` + "\n"
	assert.Equal(t, expected, string(out))
}

func TestEncodeFragmentEmpty(t *testing.T) {
	out, err := EncodeFragment(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDecodeFragmentRoundTrip(t *testing.T) {
	entries := []Entry{
		{Key: "z", Data: Data{"key": "z", "n": int64(9007199254740993)}},
		{Key: "a", Data: Data{"key": "a", "vec": []any{0.1, -2.5, int64(3)}}},
		{Key: "m", Data: Data{"key": "m", "ref": Data{"collection_name": "notes", "key": "n1"}, "none": nil}},
	}

	out, err := EncodeFragment(entries)
	require.NoError(t, err)

	decoded, err := DecodeFragment(out)
	require.NoError(t, err)
	assert.Equal(t, entries, decoded, "file order and large integers survive")
}

func TestDecodeFragmentTolerance(t *testing.T) {
	tests := []struct {
		name string
		text string
		keys []string
	}{
		{"empty", "", nil},
		{"whitespace", " \n\t", nil},
		{"trailing separator", `"a": {},` + "\n", []string{"a"}},
		{"no trailing separator", `"a": {}, "b": {}`, []string{"a", "b"}},
		{"trailing comma only", `"a": {},`, []string{"a"}},
		{"crlf", "\"a\": {},\r\n\"b\": {},\r\n", []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := DecodeFragment([]byte(tt.text))
			require.NoError(t, err)

			var keys []string
			for _, e := range entries {
				keys = append(keys, e.Key)
			}
			assert.Equal(t, tt.keys, keys)
		})
	}
}

func TestDecodeFragmentDuplicateKeyKeepsFirstPosition(t *testing.T) {
	entries, err := DecodeFragment([]byte(`"a": {"v":1}, "b": {"v":2}, "a": {"v":3},`))
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Key)
	assert.Equal(t, int64(3), entries[0].Data["v"])
	assert.Equal(t, "b", entries[1].Key)
}

func TestDecodeFragmentMalformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"truncated", `"a": {"v":1`},
		{"not an object", `"a": 1,`},
		{"bare value", `[1,2,3]`},
		{"extra brace", `"a": {}},`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFragment([]byte(tt.text))
			assert.Error(t, err)
		})
	}
}

func TestEncodeBatchNoTrailingSeparator(t *testing.T) {
	out, err := EncodeBatch([]Entry{{Key: "a", Data: Data{}}, {Key: "b", Data: Data{}}})
	require.NoError(t, err)
	assert.Equal(t, `"a": {},`+"\n"+`"b": {}`, string(out))
}
