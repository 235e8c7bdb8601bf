package pingmatrix

import (
	"github.com/jpalmerr/pingmatrix/internal/model"
	"github.com/jpalmerr/pingmatrix/internal/storage"
)

// Status classifies a single probe: [StatusSuccess], [StatusTimeout], or
// [StatusError].
//
// Success means any HTTP response arrived, whatever its status code. A probe
// is reachability only; response bodies are never read.
type Status = model.Status

const (
	// StatusSuccess indicates a response was received before the timeout.
	StatusSuccess = model.StatusSuccess

	// StatusTimeout indicates the probe's own timeout fired first. The
	// recorded duration equals the timeout.
	StatusTimeout = model.StatusTimeout

	// StatusError indicates any other failure (DNS, TLS, refused connection).
	StatusError = model.StatusError
)

// TargetLogEntry is one target's result within a round. It snapshots the
// target's ID and name at probe time.
type TargetLogEntry = model.TargetLogEntry

// LogEntry is the aggregate of one polling round: a UUID, the round start in
// Unix milliseconds, and one result per target in target order.
type LogEntry = model.LogEntry

// State is the snapshot served by GET /api/state.
type State = model.State

// Store is a durable history store. Implementations enforce retention on
// every read and write; see the config package for opening the built-in
// sqlite, redis, mysql, and memory stores.
type Store = storage.Store
