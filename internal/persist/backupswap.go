package persist

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/roach88/ajstore/internal/doc"
	"github.com/roach88/ajstore/internal/store"
)

// BackupSwapOptions configures a BackupSwap engine.
type BackupSwapOptions struct {
	Options
	// HeavyField gates which records are written. Defaults to "vec".
	HeavyField string
	// BatchSize is the number of records per append. Defaults to 1000.
	BatchSize int
}

// BackupSwap protects the live file with a rename-based backup while it
// appends the new content batch by batch.
type BackupSwap struct {
	*scheduler
	backend store.Backend
	target  Target
	opts    BackupSwapOptions
}

var _ Engine = (*BackupSwap)(nil)

// NewBackupSwap returns a BackupSwap engine with a 10s default debounce.
func NewBackupSwap(backend store.Backend, target Target, opts BackupSwapOptions) *BackupSwap {
	opts.Options = opts.Options.withDefaults(10 * time.Second)
	if opts.HeavyField == "" {
		opts.HeavyField = DefaultHeavyField
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	e := &BackupSwap{backend: backend, target: target, opts: opts}
	e.scheduler = newScheduler(StrategyBackupSwap, target, opts.Options, e.save)
	return e
}

// Load recovers from an interrupted flush, then reads the live file.
// See Recover for the recovery rules.
func (e *BackupSwap) Load(ctx context.Context) error {
	res, err := Recover(ctx, e.backend, e.target.FolderPath(), e.target.FileName(), e.opts.Now(), e.logger)
	if err != nil {
		return err
	}
	if res.Action != RecoveryNone {
		e.logger.Info("recovered collection files", "action", res.Action, "failed_artifact", res.Failed)
	}
	return loadFragment(ctx, e.backend, e.target, e.logger)
}

func (e *BackupSwap) save(ctx context.Context, force bool, log *slog.Logger) error {
	folder, name := e.target.FolderPath(), e.target.FileName()
	live, backup := LivePath(folder, name), BackupPath(folder, name)

	if err := e.backend.Mkdir(ctx, folder); err != nil {
		return err
	}

	if err := removeIfExists(ctx, e.backend, backup); err != nil {
		return fmt.Errorf("remove stale backup: %w", err)
	}
	hadLive, err := e.backend.Exists(ctx, live)
	if err != nil {
		return err
	}
	if hadLive {
		if err := e.backend.Rename(ctx, live, backup); err != nil {
			return fmt.Errorf("backup live file: %w", err)
		}
	}

	written, err := e.write(ctx, live)
	if err != nil {
		e.restore(ctx, live, backup, hadLive, log)
		return err
	}

	if hadLive {
		if err := removeIfExists(ctx, e.backend, backup); err != nil {
			return fmt.Errorf("remove backup: %w", err)
		}
	}
	log.Debug("collection written", "records", written, "heavy_field", e.opts.HeavyField)
	return nil
}

// write creates an empty live file and appends eligible records in batches,
// each batch terminated by the separator.
func (e *BackupSwap) write(ctx context.Context, live string) (int, error) {
	entries, err := e.target.Snapshot()
	if err != nil {
		return 0, fmt.Errorf("snapshot: %w", err)
	}
	eligible := filterHeavy(entries, e.opts.HeavyField)

	if err := e.backend.Write(ctx, live, nil); err != nil {
		return 0, err
	}
	for start := 0; start < len(eligible); start += e.opts.BatchSize {
		end := min(start+e.opts.BatchSize, len(eligible))
		batch, err := doc.EncodeBatch(eligible[start:end])
		if err != nil {
			return 0, fmt.Errorf("encode batch at %d: %w", start, err)
		}
		batch = append(batch, doc.Separator...)
		if err := e.backend.Append(ctx, live, batch); err != nil {
			return 0, fmt.Errorf("append batch at %d: %w", start, err)
		}
	}
	return len(eligible), nil
}

// restore keeps the failed output as an artifact and puts the backup back.
// Errors here are logged; the flush error is what the caller sees.
func (e *BackupSwap) restore(ctx context.Context, live, backup string, hadLive bool, log *slog.Logger) {
	failed := FailedPath(e.target.FolderPath(), e.target.FileName(), e.opts.Now())
	if err := e.backend.Rename(ctx, live, failed); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Error("move failed output aside", "error", err, "failed_artifact", failed)
	}
	if !hadLive {
		log.Warn("flush failed, no previous file to restore", "failed_artifact", failed)
		return
	}
	if err := e.backend.Rename(ctx, backup, live); err != nil {
		log.Error("restore backup", "error", err, "backup", backup)
		return
	}
	log.Warn("flush failed, previous file restored", "failed_artifact", failed)
}

func removeIfExists(ctx context.Context, backend store.Backend, path string) error {
	err := backend.Remove(ctx, path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
