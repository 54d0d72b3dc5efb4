package store

import "context"

// KVTx stages writes inside a KV.Update transaction.
type KVTx interface {
	Put(key string, value []byte) error
	Delete(key string) error
}

// KV is a namespaced key-value store. Namespaces are independent: keys in
// one are never visible from another.
type KV interface {
	// Update runs fn in a single transaction. It returns only after the
	// transaction has committed; if fn fails nothing is written.
	Update(ctx context.Context, ns string, fn func(tx KVTx) error) error
	// Keys returns every key in ns in byte order.
	Keys(ctx context.Context, ns string) ([]string, error)
	// GetMany returns values aligned with keys; missing keys yield nil.
	GetMany(ctx context.Context, ns string, keys []string) ([][]byte, error)
	Close() error
}
