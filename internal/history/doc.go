// Package history holds the in-memory log history and keeps the durable
// store in sync with it.
//
// The main components are:
//
//   - [History]: newest-first, retention-bounded sequence of log entries
//     with pub/sub for live updates
//   - the flusher: a single goroutine that writes full snapshots to a
//     storage.Store after every mutation
//
// The durable store is authoritative at cold start ([History.Load]); from
// then on the in-memory history is authoritative and every mutation
// schedules a full-replace flush. Flush requests coalesce, so at most one
// write is in flight and the newest snapshot always wins. Flush failures are
// logged and never discard in-memory state.
//
// Subscribers receive new entries via buffered channels with non-blocking
// sends; slow subscribers miss updates rather than block polling.
package history
