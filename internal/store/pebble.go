package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// nsSep separates the namespace prefix from the record key.
const nsSep = 0x00

// PebbleOptions configures OpenPebble.
type PebbleOptions struct {
	// InMemory keeps all data in memory; Dir is still used as the name.
	InMemory bool
	// Sync fsyncs the WAL on every committed batch. When false, WAL syncs
	// are grouped every SyncInterval.
	Sync         bool
	SyncInterval time.Duration
}

// PebbleKV is a KV backed by a Pebble database. Namespaces are key prefixes.
type PebbleKV struct {
	db        *pebble.DB
	writeSync bool
}

var _ KV = (*PebbleKV)(nil)

// OpenPebble creates or opens a Pebble database in dir.
func OpenPebble(dir string, opts PebbleOptions) (*PebbleKV, error) {
	if dir == "" {
		return nil, errors.New("pebble: dir is required")
	}

	po := &pebble.Options{}
	if opts.InMemory {
		po.FS = vfs.NewMem()
	}
	if !opts.Sync {
		interval := opts.SyncInterval
		if interval <= 0 {
			interval = 5 * time.Millisecond
		}
		po.WALMinSyncInterval = func() time.Duration { return interval }
	}

	db, err := pebble.Open(dir, po)
	if err != nil {
		return nil, fmt.Errorf("pebble: open %s: %w", dir, err)
	}
	return &PebbleKV{db: db, writeSync: opts.Sync}, nil
}

// Close closes the database.
func (p *PebbleKV) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Update stages fn's writes in one batch and commits it atomically.
func (p *PebbleKV) Update(ctx context.Context, ns string, fn func(tx KVTx) error) error {
	b := p.db.NewBatch()
	defer b.Close()

	if err := fn(&pebbleTx{batch: b, ns: ns}); err != nil {
		return fmt.Errorf("kv update %s: %w", ns, err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("kv update %s: %w", ns, err)
	}

	syncMode := pebble.NoSync
	if p.writeSync {
		syncMode = pebble.Sync
	}
	if err := b.Commit(syncMode); err != nil {
		return fmt.Errorf("kv update %s: commit: %w", ns, err)
	}
	return nil
}

// Keys iterates the namespace prefix in key order.
func (p *PebbleKV) Keys(ctx context.Context, ns string) ([]string, error) {
	prefix := nsPrefix(ns)
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("kv keys %s: %w", ns, err)
	}
	defer iter.Close()

	var keys []string
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		keys = append(keys, string(iter.Key()[len(prefix):]))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("kv keys %s: %w", ns, err)
	}
	return keys, nil
}

// GetMany reads from one snapshot so the values are mutually consistent.
func (p *PebbleKV) GetMany(ctx context.Context, ns string, keys []string) ([][]byte, error) {
	snap := p.db.NewSnapshot()
	defer snap.Close()

	out := make([][]byte, len(keys))
	for i, k := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		val, closer, err := snap.Get(nsKey(ns, k))
		if errors.Is(err, pebble.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("kv get %s/%s: %w", ns, k, err)
		}
		out[i] = append([]byte(nil), val...)
		closer.Close()
	}
	return out, nil
}

type pebbleTx struct {
	batch *pebble.Batch
	ns    string
}

func (t *pebbleTx) Put(key string, value []byte) error {
	if key == "" {
		return errors.New("put: empty key")
	}
	return t.batch.Set(nsKey(t.ns, key), value, nil)
}

func (t *pebbleTx) Delete(key string) error {
	return t.batch.Delete(nsKey(t.ns, key), nil)
}

func nsPrefix(ns string) []byte {
	prefix := make([]byte, 0, len(ns)+1)
	prefix = append(prefix, ns...)
	return append(prefix, nsSep)
}

func nsKey(ns, key string) []byte {
	return append(nsPrefix(ns), key...)
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix. The prefix always ends in nsSep, so bumping it is enough.
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	upper[len(upper)-1]++
	return upper
}
