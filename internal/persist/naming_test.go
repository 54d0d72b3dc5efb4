package persist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/ajstore/internal/doc"
)

func TestPaths(t *testing.T) {
	at := time.UnixMilli(1700000000123)

	assert.Equal(t, "data/notes.ajson", LivePath("data", "notes"))
	assert.Equal(t, "data/notes.old.ajson", BackupPath("data", "notes"))
	assert.Equal(t, "data/notes.temp.ajson", TempPath("data", "notes"))
	assert.Equal(t, "data/notes-1700000000123.failed.ajson", FailedPath("data", "notes", at))
	assert.Equal(t, "notes.ajson", LivePath("", "notes"))
}

func TestParseFailedName(t *testing.T) {
	name, at, ok := ParseFailedName("smart-notes-1700000000123.failed.ajson")
	assert.True(t, ok)
	assert.Equal(t, "smart-notes", name)
	assert.Equal(t, int64(1700000000123), at.UnixMilli())

	for _, bad := range []string{"notes.ajson", "notes.old.ajson", "-1.failed.ajson", "notes-x.failed.ajson"} {
		_, _, ok := ParseFailedName(bad)
		assert.False(t, ok, bad)
	}
}

func TestHeavy(t *testing.T) {
	tests := []struct {
		name string
		data doc.Data
		want bool
	}{
		{"missing", doc.Data{}, false},
		{"null", doc.Data{"vec": nil}, false},
		{"empty string", doc.Data{"vec": ""}, false},
		{"zero", doc.Data{"vec": int64(0)}, false},
		{"false", doc.Data{"vec": false}, false},
		{"empty array", doc.Data{"vec": []any{}}, true},
		{"vector", doc.Data{"vec": []any{0.1, 0.2}}, true},
		{"object", doc.Data{"vec": doc.Data{}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Heavy(tt.data, "vec"))
		})
	}
}
