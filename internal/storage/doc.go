// Package storage defines the retention-bounded durable log store.
//
// A [Backend] is a keyed object store holding log entries for one
// namespace (database name, store name, schema version). [RetentionStore]
// wraps a backend and enforces the retention policy around every read and
// write:
//
//   - Load reads everything, sorts newest-first, drops entries older than the
//     retention window, caps the result at MaxEntries, and writes the trimmed
//     set back when anything was removed.
//   - ReplaceAll sanitizes and trims its input, then atomically replaces the
//     whole namespace.
//
// Backends live in subpackages: sqlite (default), memory, redis, and mysql.
// All failures surface as *[Error], which matches [ErrStorage] under
// errors.Is.
package storage
