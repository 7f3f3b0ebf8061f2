// Package server exposes a running workflow over HTTP.
//
// Routes (all JSON):
//
//	POST /v1/enqueue         {"node": "a", "inputs": [...]} queues one work item
//	POST /v1/stop            stops the run loop after the in-flight item
//	POST /v1/terminate       halts the run loop and discards the queue
//	GET  /v1/info            state, cycle and counters
//	GET  /v1/results         terminal values by node (?node= filters)
//	GET  /v1/records/:id/trail  stored trail of a record (needs a store)
//	GET  /health             liveness
//	GET  /metrics            Prometheus exposition
//
// The server only talks to the App through its thread-safe surface, so it can
// run next to App.Serve on another goroutine.
package server
