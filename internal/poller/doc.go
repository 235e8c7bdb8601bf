// Package poller drives polling rounds for PingMatrix.
//
// This package is internal to PingMatrix. It fans out one probe per target,
// waits for every probe to settle, and folds the outcomes into a single
// ordered log entry per round.
//
// The main components are:
//
//   - [Aggregator]: Runs one round and produces a [model.LogEntry]
//   - [Scheduler]: Runs rounds immediately on start and then on a fixed interval
//   - [Prober]: The probe contract satisfied by probe.Client
//   - [Source]: Supplies the targets and timeout for each round
//
// Users of the pingmatrix library should not need to interact with this
// package directly. Configuration is done through the main pingmatrix package.
package poller
