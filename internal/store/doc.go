// Package store provides the storage capabilities persistence engines write
// through.
//
// Two shapes are offered:
//   - Backend: a file-oriented capability (read, write, append, rename,
//     remove, stat) implemented over afero, so the same engine code runs
//     against the local filesystem, a sandboxed base path, or memory.
//   - KV: a namespaced key-value store with single-transaction batch
//     updates, implemented over SQLite and Pebble.
//
// # Errors
//
// Backend methods report a missing path with an error satisfying
// errors.Is(err, fs.ErrNotExist). Engines rely on that to distinguish
// "first run" from real failures.
//
// # SQLite Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - Single connection: SQLite allows one writer
package store
