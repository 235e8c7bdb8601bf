// Package probe issues single, time-bounded HTTP requests against a target
// and classifies the outcome.
//
// The main component is [Client], whose [Client.Probe] method never returns an
// error: every failure is folded into a [model.Outcome] with status
// success, timeout, or error. Requests carry a cache-busting query token so
// CDNs and intermediate caches cannot answer on the origin's behalf.
//
// Users of the pingmatrix library should not need to interact with this
// package directly.
package probe
