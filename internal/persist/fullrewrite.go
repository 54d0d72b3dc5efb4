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

// FullRewriteOptions configures a FullRewrite engine.
type FullRewriteOptions struct {
	Options
	// SizeGuard skips non-forced flushes whose content is empty, shorter
	// than MinSize bytes, or smaller than MinRatio of the current file.
	SizeGuard bool
	MinRatio  float64
	MinSize   int64
}

// FullRewrite rewrites the whole collection file on every flush.
type FullRewrite struct {
	*scheduler
	backend store.Backend
	target  Target
	opts    FullRewriteOptions
}

var _ Engine = (*FullRewrite)(nil)

// NewFullRewrite returns a FullRewrite engine with a 1s default debounce.
func NewFullRewrite(backend store.Backend, target Target, opts FullRewriteOptions) *FullRewrite {
	opts.Options = opts.Options.withDefaults(time.Second)
	if opts.MinRatio <= 0 {
		opts.MinRatio = DefaultMinRatio
	}
	e := &FullRewrite{backend: backend, target: target, opts: opts}
	e.scheduler = newScheduler(StrategyFullRewrite, target, opts.Options, e.save)
	return e
}

// Load reads the live file. A missing file is created empty.
func (e *FullRewrite) Load(ctx context.Context) error {
	return loadFragment(ctx, e.backend, e.target, e.logger)
}

func (e *FullRewrite) save(ctx context.Context, force bool, log *slog.Logger) error {
	entries, err := e.target.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	content, err := doc.EncodeFragment(entries)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	folder, name := e.target.FolderPath(), e.target.FileName()
	live := LivePath(folder, name)

	if e.opts.SizeGuard && !force {
		newSize := int64(len(content))
		if len(entries) == 0 || newSize < e.opts.MinSize {
			return skip("content empty", "new_size", newSize)
		}
		info, err := e.backend.Stat(ctx, live)
		switch {
		case err == nil:
			if float64(newSize) < e.opts.MinRatio*float64(info.Size) {
				return skip("content smaller than previous file",
					"new_size", newSize, "old_size", info.Size)
			}
		case !errors.Is(err, fs.ErrNotExist):
			return err
		}
	}

	if err := e.backend.Mkdir(ctx, folder); err != nil {
		return err
	}
	tmp := TempPath(folder, name)
	if err := e.backend.Write(ctx, tmp, content); err != nil {
		return err
	}
	if err := e.backend.Rename(ctx, tmp, live); err != nil {
		return err
	}
	log.Debug("collection written", "records", len(entries), "bytes", len(content))
	return nil
}

// loadFragment reads a fragment file into target. A missing file is created
// empty; a malformed file is reported as ErrCorrupt and left untouched.
func loadFragment(ctx context.Context, backend store.Backend, target Target, logger *slog.Logger) error {
	start := time.Now()
	live := LivePath(target.FolderPath(), target.FileName())

	raw, err := backend.Read(ctx, live)
	if errors.Is(err, fs.ErrNotExist) {
		return createEmpty(ctx, backend, target, logger)
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", live, err)
	}

	entries, err := doc.DecodeFragment(raw)
	if err != nil {
		return corrupt("load "+live, err)
	}
	n := target.Restore(entries)
	logger.Info("collection loaded", "records", n, "duration", time.Since(start))
	return nil
}

func createEmpty(ctx context.Context, backend store.Backend, target Target, logger *slog.Logger) error {
	folder := target.FolderPath()
	live := LivePath(folder, target.FileName())
	if err := backend.Mkdir(ctx, folder); err != nil {
		return fmt.Errorf("create %s: %w", folder, err)
	}
	if err := backend.Write(ctx, live, nil); err != nil {
		return fmt.Errorf("create %s: %w", live, err)
	}
	target.Restore(nil)
	logger.Info("collection file created", "path", live)
	return nil
}
