// Package trackdb persists pipeline state as three JSON files: the track
// table (Store), the outstanding-failure list (Ledger), and the single-slot
// run marker (CheckpointStore).
//
// Every load and save takes an advisory lock on "<file>.lock" through
// gofrs/flock, bounded by a timeout; a timeout surfaces as
// ErrStoreUnavailable. Writes go to a temp file that is renamed over the
// original. The tracks and checkpoint files keep a single-generation ".bak"
// copy of the previous content. An unreadable file is copied to ".bak" and
// the store continues empty.
//
// The public Load and Save calls lock individually. The mutating helpers
// (Add, Update, AppendError, Record, DrainAll, ...) hold the lock across their
// own read-modify-write, so they are safe against other processes using the
// same helpers. A caller that pairs Load with a later Save owns the window in
// between.
package trackdb
