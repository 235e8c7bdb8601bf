// Package server provides the HTTP API that a presentation layer drives.
//
// Routes:
//
//   - GET /healthz: liveness
//   - GET /api/state: targets, log, timers, running flag, latency stats
//   - POST /api/start, POST /api/stop: polling control
//   - DELETE /api/log: clear history and the durable store
//   - PUT /api/timers: partial update of interval, timeout, syncTimers (ms)
//   - GET /api/export/logs, POST /api/import/logs: log files
//   - GET /api/export/config, POST /api/import/config: config files
//   - GET /api/sse: Server-Sent Events stream of new log entries
//
// CORS is open to all origins. The server supports graceful shutdown via
// context cancellation, with a 5-second timeout for in-flight requests.
//
// Users of the pingmatrix library should not need to interact with this
// package directly. The server is started by [pingmatrix.Monitor.Run].
package server
