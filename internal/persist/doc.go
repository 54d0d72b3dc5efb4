// Package persist implements the persistence engines that make a collection
// durable.
//
// Every engine shares one scheduling skeleton:
//
//	Idle -> PendingFlush (timer armed) -> Flushing -> Idle
//
// RequestSave arms a debounce timer, replacing any pending one, so a burst
// of mutations produces a single flush of the state as of the last request.
// At most one flush runs per engine; a flush requested while another is in
// progress is dropped with ErrFlushInProgress. When Options.GuardTimeout is
// positive the in-progress flag is also released after that timeout, even if
// the flush has not returned.
//
// Strategies:
//   - FullRewrite: serialize every record and replace the file via a temp
//     file and rename. Optional size guard.
//   - BackupSwap: move the live file to a backup, append records carrying
//     the heavy field in fixed-size batches, restore the backup on failure.
//   - BatchedKV: one KV transaction per flush, one put per eligible record.
//
// On-disk files use the fragment format from package doc: a comma-terminated
// list of "key": {...} entries without enclosing braces.
package persist
