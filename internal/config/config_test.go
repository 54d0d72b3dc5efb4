package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ajstore/internal/doc"
	"github.com/roach88/ajstore/internal/persist"
)

// checkFixture asserts the contents shared by ajstore.yaml and ajstore.cue.
func checkFixture(t *testing.T, cfg *Config) {
	t.Helper()

	assert.Equal(t, "vault/.smart-env", cfg.DataPath)
	assert.Equal(t, "vault/.smart-env/alice", cfg.FolderPath())
	assert.Equal(t, persist.StrategyBackupSwap, cfg.Engine)
	assert.Equal(t, KVConfig{Driver: DriverPebble, Path: "kv"}, cfg.KV)

	sources := cfg.Collection("smart_sources")
	assert.Equal(t, persist.StrategyKV, sources.Engine)
	assert.Equal(t, "embedding", sources.HeavyField)
	assert.Equal(t, 2*time.Second, sources.Debounce.Std())
	assert.Equal(t, persist.DefaultGuardTimeout, sources.GuardTimeoutOr(persist.DefaultGuardTimeout))

	blocks := cfg.Collection("smart_blocks")
	assert.Equal(t, persist.StrategyBackupSwap, blocks.Engine, "global engine applies")
	assert.Equal(t, "blocks", blocks.FileName)
	assert.Equal(t, 250, blocks.BatchSize)
	require.NotNil(t, blocks.GuardTimeout)
	assert.Equal(t, time.Duration(0), blocks.GuardTimeoutOr(persist.DefaultGuardTimeout))

	notes := cfg.Collection("notes")
	assert.Equal(t, persist.StrategyFullRewrite, notes.Engine)
	assert.True(t, notes.SizeGuardOr(false))
	assert.Equal(t, int64(100), notes.MinSize)

	settings, err := notes.SettingsData()
	require.NoError(t, err)
	assert.Equal(t, doc.Data{
		"min_chars": int64(200),
		"exclude":   []any{"drafts"},
	}, settings)
}

func TestLoadYAML(t *testing.T) {
	cfg, err := LoadYAML(filepath.Join("testdata", "ajstore.yaml"))
	require.NoError(t, err)
	checkFixture(t, cfg)
}

func TestLoadCUE(t *testing.T) {
	cfg, err := LoadCUE(filepath.Join("testdata", "ajstore.cue"))
	require.NoError(t, err)
	checkFixture(t, cfg)
}

func TestLoadYAML_NotFound(t *testing.T) {
	_, err := LoadYAML(filepath.Join("testdata", "missing.yaml"))
	var cfgErr *Error
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ErrCodeNotFound, cfgErr.Code)
}

func TestParseYAML_Empty(t *testing.T) {
	cfg, err := ParseYAML(nil)
	require.NoError(t, err)
	assert.Equal(t, ".", cfg.DataPath)
	assert.NotNil(t, cfg.Collections)
	assert.Equal(t, persist.StrategyFullRewrite, cfg.Collection("anything").Engine)
}

func TestParseYAML_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
	}{
		{"unknown field", "data_pth: x\n", ErrCodeParse},
		{"bad duration", "collections:\n  a:\n    debounce: soon\n", ErrCodeParse},
		{"unknown engine", "engine: append_only\n", ErrCodeInvalid},
		{"unknown collection engine", "collections:\n  a:\n    engine: nope\n", ErrCodeInvalid},
		{"unknown driver", "kv:\n  driver: bolt\n", ErrCodeInvalid},
		{"negative batch", "collections:\n  a:\n    batch_size: -1\n", ErrCodeInvalid},
		{"negative debounce", "collections:\n  a:\n    debounce: -1s\n", ErrCodeInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseYAML([]byte(tt.src))
			var cfgErr *Error
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tt.code, cfgErr.Code)
		})
	}
}

func TestParseCUE_Defaults(t *testing.T) {
	cfg, err := ParseCUE("empty.cue", []byte(""))
	require.NoError(t, err)
	assert.Equal(t, ".", cfg.DataPath)
	assert.Empty(t, cfg.Collections)
}

func TestLoadCUE_SchemaViolation(t *testing.T) {
	_, err := LoadCUE(filepath.Join("testdata", "bad_engine.cue"))
	var cfgErr *Error
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
	assert.Equal(t, ErrCodeSchema, cfgErr.Code)
}

func TestLoadCUE_SyntaxError(t *testing.T) {
	_, err := LoadCUE(filepath.Join("testdata", "syntax.cue"))
	var cfgErr *Error
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
	assert.Equal(t, ErrCodeParse, cfgErr.Code)
	assert.True(t, cfgErr.Pos.IsValid())
	assert.Contains(t, cfgErr.Error(), "syntax.cue")
}

func TestParseCUE_UnknownField(t *testing.T) {
	_, err := ParseCUE("x.cue", []byte(`collections: notes: speed: 3`))
	var cfgErr *Error
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
	assert.Equal(t, ErrCodeSchema, cfgErr.Code)
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Std())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	assert.Error(t, d.UnmarshalText([]byte("later")))
}

func TestError_Format(t *testing.T) {
	err := &Error{Code: ErrCodeInvalid, Field: "engine", Message: "unknown engine"}
	assert.Equal(t, "C004: engine: unknown engine", err.Error())
}

func TestLoadCUE_Directory(t *testing.T) {
	cfg, err := LoadCUE(filepath.Join("testdata", "pkg"))
	require.NoError(t, err)

	assert.Equal(t, "vault/.smart-env", cfg.DataPath)
	assert.Equal(t, persist.StrategyBackupSwap, cfg.Engine)
	sources := cfg.Collection("smart_sources")
	assert.Equal(t, persist.StrategyKV, sources.Engine)
	assert.Equal(t, 2*time.Second, sources.Debounce.Std())
}

func TestLoadCUE_NotFound(t *testing.T) {
	_, err := LoadCUE(filepath.Join("testdata", "missing.cue"))
	var cfgErr *Error
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ErrCodeNotFound, cfgErr.Code)
}

func TestSizeGuardOr(t *testing.T) {
	cfg, err := ParseYAML([]byte("collections:\n  off:\n    size_guard: false\n  on:\n    size_guard: true\n  unset:\n    min_size: 10\n"))
	require.NoError(t, err)

	assert.False(t, cfg.Collection("off").SizeGuardOr(true))
	assert.True(t, cfg.Collection("on").SizeGuardOr(false))
	assert.True(t, cfg.Collection("unset").SizeGuardOr(true))
	assert.False(t, cfg.Collection("unset").SizeGuardOr(false))
}
