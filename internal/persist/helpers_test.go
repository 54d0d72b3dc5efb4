package persist

import (
	"io"
	"log/slog"
	"time"

	"github.com/roach88/ajstore/internal/testutil"
)

const testDebounce = 20 * time.Millisecond

// quietLogger discards engine logs in tests.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions(ids *testutil.SequenceIDGenerator) Options {
	return Options{
		Debounce: testDebounce,
		Logger:   quietLogger(),
		IDs:      ids,
		Now:      testutil.NewDeterministicClock(time.Millisecond).Now,
	}
}
