package brain

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ajstore/internal/config"
	"github.com/roach88/ajstore/internal/store"
	"github.com/roach88/ajstore/internal/testutil"
)

// manual is a debounce long enough that only explicit flushes write.
var manual = config.Duration(time.Hour)

var (
	noteType = &Type{Tag: "Note"}
	noteColl = &CollectionType{Name: "notes", Item: noteType}
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig stores collections under "data" with manual flushing for each
// named collection.
func testConfig(names ...string) *config.Config {
	cfg := config.Default()
	cfg.DataPath = "data"
	for _, name := range names {
		cfg.Collections[name] = config.CollectionConfig{Debounce: manual}
	}
	return cfg
}

// newTestRegistry builds a registry on backend (a fresh memory backend when
// nil) and closes it when the test ends.
func newTestRegistry(t *testing.T, cfg *config.Config, backend store.Backend, opts ...Option) *Registry {
	t.Helper()
	if backend == nil {
		backend = store.NewMemoryBackend()
	}
	base := []Option{
		WithBackend(backend),
		WithLogger(quietLogger()),
		WithIDGenerator(testutil.NewSequenceIDGenerator("flush")),
		WithClock(testutil.NewDeterministicClock(time.Millisecond).Now),
	}
	r := New(cfg, append(base, opts...)...)
	t.Cleanup(func() {
		_ = r.Close(context.Background())
	})
	return r
}

func mustRegister(t *testing.T, r *Registry, ct *CollectionType, opts ...RegisterOption) *Collection {
	t.Helper()
	c, err := r.Register(ct, opts...)
	require.NoError(t, err)
	return c
}
