package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/ajstore/internal/doc"
)

// Strategy names as they appear in configuration.
const (
	StrategyFullRewrite = "full_rewrite"
	StrategyBackupSwap  = "backup_swap"
	StrategyKV          = "kv"
)

// Defaults shared by the strategies.
const (
	DefaultGuardTimeout = 10 * time.Second
	DefaultHeavyField   = "vec"
	DefaultBatchSize    = 1000
	DefaultMinRatio     = 0.8
)

// Ext is the file extension of every fragment file.
const Ext = ".ajson"

var (
	// ErrFlushInProgress is returned when a flush is requested while another
	// one holds the in-progress guard. The request is dropped.
	ErrFlushInProgress = errors.New("flush already in progress")

	// ErrClosed is returned by Flush after Close.
	ErrClosed = errors.New("engine closed")

	// ErrCorrupt marks a durable file or value that could not be parsed.
	ErrCorrupt = errors.New("corrupt collection data")
)

// Target is the collection an engine persists.
type Target interface {
	Name() string
	// FileName is the base name of the durable file, or the KV namespace.
	FileName() string
	FolderPath() string
	// Snapshot returns every record in key order, serialized for storage.
	Snapshot() ([]doc.Entry, error)
	// Restore replaces the in-memory state with entries and reports how many
	// were admitted.
	Restore(entries []doc.Entry) int
}

// Engine persists one collection.
type Engine interface {
	// Load rebuilds the target from durable storage.
	Load(ctx context.Context) error
	// RequestSave schedules a debounced flush.
	RequestSave()
	// Flush writes now, cancelling any pending scheduled flush. force
	// bypasses the size guard.
	Flush(ctx context.Context, force bool) error
	// Pending reports whether a scheduled flush has not fired yet.
	Pending() bool
	// Close flushes pending work and stops the timers.
	Close(ctx context.Context) error
}

// IDGenerator produces flush identifiers for log correlation.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Options configures the shared scheduling skeleton.
type Options struct {
	// Debounce is the delay after the last RequestSave before flushing.
	// Zero selects the strategy default.
	Debounce time.Duration
	// GuardTimeout releases the in-progress flag after this long even if
	// the flush is still running. Zero releases it only on completion.
	GuardTimeout time.Duration
	Logger       *slog.Logger
	IDs          IDGenerator
	// Now stamps failure artifacts. Defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults(debounce time.Duration) Options {
	if o.Debounce <= 0 {
		o.Debounce = debounce
	}
	if o.GuardTimeout < 0 {
		o.GuardTimeout = 0
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.IDs == nil {
		o.IDs = UUIDv7Generator{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// LivePath is the primary file of a collection.
func LivePath(folder, name string) string {
	return path.Join(folder, name+Ext)
}

// BackupPath holds the previous live file while BackupSwap writes.
func BackupPath(folder, name string) string {
	return path.Join(folder, name+".old"+Ext)
}

// TempPath is where FullRewrite stages the new content before renaming.
func TempPath(folder, name string) string {
	return path.Join(folder, name+".temp"+Ext)
}

// FailedPath is the artifact a failed BackupSwap flush leaves behind.
func FailedPath(folder, name string, at time.Time) string {
	return path.Join(folder, name+"-"+strconv.FormatInt(at.UnixMilli(), 10)+".failed"+Ext)
}

// ParseFailedName splits a failure artifact base name into the collection
// file name and its timestamp.
func ParseFailedName(base string) (name string, at time.Time, ok bool) {
	rest, found := strings.CutSuffix(base, ".failed"+Ext)
	if !found {
		return "", time.Time{}, false
	}
	i := strings.LastIndexByte(rest, '-')
	if i <= 0 {
		return "", time.Time{}, false
	}
	ms, err := strconv.ParseInt(rest[i+1:], 10, 64)
	if err != nil {
		return "", time.Time{}, false
	}
	return rest[:i], time.UnixMilli(ms), true
}

// Heavy reports whether a record carries the heavy field with a non-empty
// value. Records without it are not persisted by partial strategies.
func Heavy(data doc.Data, field string) bool {
	v, ok := data[field]
	if !ok {
		return false
	}
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int64:
		return val != 0
	case float64:
		return val != 0
	default:
		return true
	}
}

func filterHeavy(entries []doc.Entry, field string) []doc.Entry {
	out := make([]doc.Entry, 0, len(entries))
	for _, e := range entries {
		if Heavy(e.Data, field) {
			out = append(out, e)
		}
	}
	return out
}

// skipError marks a flush that decided not to write. It is not a failure.
type skipError struct {
	reason string
	attrs  []any
}

func (e *skipError) Error() string {
	return "flush skipped: " + e.reason
}

func skip(reason string, attrs ...any) error {
	return &skipError{reason: reason, attrs: attrs}
}

func corrupt(what string, err error) error {
	return fmt.Errorf("%s: %w: %w", what, ErrCorrupt, err)
}
