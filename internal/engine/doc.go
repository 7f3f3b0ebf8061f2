// Package engine implements the tapflow scheduler.
//
// An App owns a FIFO work queue and a single-consumer run loop. Tasks are
// long-lived nodes; each work item invokes one task on an ordered list of
// audit records and wraps the result as a new record parented by them.
//
// ARCHITECTURE:
//
// Single-Consumer Run Loop:
// One goroutine dequeues and invokes. Other goroutines (HTTP handlers, tests)
// may enqueue and send signals at any time. This keeps:
// - Strict FIFO dispatch order
// - Join state free of races with node execution
// - Lineage deterministic for a given input order
//
// Work Item Flow:
//  1. Enqueue stamps one item per batch member with Clock.Next()
//  2. Run dequeues items one at a time
//  3. Declared dependencies are resolved at most once per run cycle
//  4. The task's process runs and its output becomes an audit record
//  5. Completion callbacks (joins) fire in registration order and enqueue
//     downstream work; a task without callbacks sends its record to the
//     Aggregator
//
// Signals:
// Stop lets the in-flight item finish and leaves the rest queued (READY).
// Terminate abandons the queue (TERMINATED). Any error halts the loop in
// TERMINATED with the remaining queue intact for inspection.
//
// The App is passed explicitly to every task and join. There is no global
// current application; a running process finds its App and node through
// AppFromContext and NodeFromContext.
package engine
