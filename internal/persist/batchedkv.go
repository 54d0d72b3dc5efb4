package persist

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/ajstore/internal/doc"
	"github.com/roach88/ajstore/internal/store"
)

// BatchedKVOptions configures a BatchedKV engine.
type BatchedKVOptions struct {
	Options
	// HeavyField gates which records are written. Defaults to "vec".
	HeavyField string
}

// BatchedKV stores each eligible record under its key in a KV namespace
// named after the collection file.
type BatchedKV struct {
	*scheduler
	kv     store.KV
	target Target
	opts   BatchedKVOptions
}

var _ Engine = (*BatchedKV)(nil)

// NewBatchedKV returns a BatchedKV engine with a 10s default debounce.
func NewBatchedKV(kv store.KV, target Target, opts BatchedKVOptions) *BatchedKV {
	opts.Options = opts.Options.withDefaults(10 * time.Second)
	if opts.HeavyField == "" {
		opts.HeavyField = DefaultHeavyField
	}
	e := &BatchedKV{kv: kv, target: target, opts: opts}
	e.scheduler = newScheduler(StrategyKV, target, opts.Options, e.save)
	return e
}

// Load enumerates the namespace, bulk-reads the values and restores them.
// Values that fail to parse are skipped and logged.
func (e *BatchedKV) Load(ctx context.Context) error {
	start := time.Now()
	ns := e.target.FileName()

	keys, err := e.kv.Keys(ctx, ns)
	if err != nil {
		return fmt.Errorf("load %s: %w", ns, err)
	}
	values, err := e.kv.GetMany(ctx, ns, keys)
	if err != nil {
		return fmt.Errorf("load %s: %w", ns, err)
	}

	entries := make([]doc.Entry, 0, len(keys))
	for i, raw := range values {
		if raw == nil {
			continue
		}
		data, err := doc.DecodeObject(raw)
		if err != nil {
			e.logger.Warn("skipping unreadable value", "key", keys[i], "error", corrupt(keys[i], err))
			continue
		}
		entries = append(entries, doc.Entry{Key: keys[i], Data: data})
	}

	n := e.target.Restore(entries)
	e.logger.Info("collection loaded", "records", n, "duration", time.Since(start))
	return nil
}

// save writes every eligible record in one transaction and deletes stored
// keys that are no longer eligible, so removed records do not come back on
// the next load.
func (e *BatchedKV) save(ctx context.Context, force bool, log *slog.Logger) error {
	entries, err := e.target.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	eligible := filterHeavy(entries, e.opts.HeavyField)
	ns := e.target.FileName()

	stored, err := e.kv.Keys(ctx, ns)
	if err != nil {
		return err
	}
	keep := make(map[string]struct{}, len(eligible))

	err = e.kv.Update(ctx, ns, func(tx store.KVTx) error {
		for _, entry := range eligible {
			raw, err := doc.EncodeObject(entry.Data)
			if err != nil {
				return fmt.Errorf("encode %q: %w", entry.Key, err)
			}
			if err := tx.Put(entry.Key, raw); err != nil {
				return err
			}
			keep[entry.Key] = struct{}{}
		}
		for _, key := range stored {
			if _, ok := keep[key]; ok {
				continue
			}
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Debug("collection written", "records", len(eligible), "namespace", ns)
	return nil
}
