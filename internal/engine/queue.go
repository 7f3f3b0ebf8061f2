package engine

import (
	"sync"

	"github.com/roach88/tapflow/internal/audit"
)

// WorkItem is one pending invocation of a node.
type WorkItem struct {
	// Seq is the logical clock value stamped at enqueue time.
	Seq int64

	// Node is the concrete task to invoke (a single batch member).
	Node *Task

	// Inputs are passed to the node in order.
	Inputs []*audit.Record

	// Deferred marks self-scheduled join work (gates) that should not keep
	// other deferred work waiting. See App.Pending.
	Deferred bool
}

// workQueue is a thread-safe FIFO queue of work items.
//
// The queue is unbounded so a node completion can fan out into any number of
// downstream items without blocking the run loop that is enqueuing them.
//
// Enqueue is safe from any goroutine (HTTP handlers, running nodes); the
// App's run loop is the only consumer.
//
// The signal channel lets Serve wait for new work while still honoring
// context cancellation.
type workQueue struct {
	mu       sync.Mutex
	items    []*WorkItem
	deferred int
	closed   bool
	signal   chan struct{} // Signals item availability (buffered, size 1)
}

// newWorkQueue creates an empty work queue.
func newWorkQueue() *workQueue {
	return &workQueue{
		items:  make([]*WorkItem, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an item to the back of the queue.
// Returns false if the queue is closed.
func (q *workQueue) Enqueue(item *WorkItem) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, item)
	if item.Deferred {
		q.deferred++
	}
	q.notifyLocked()
	return true
}

// EnqueueBatch stamps each item with next() and appends them all under one
// lock, so Seq order always matches queue order and batch members stay
// adjacent. Returns false, enqueuing nothing, if the queue is closed.
func (q *workQueue) EnqueueBatch(items []*WorkItem, next func() int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	for _, item := range items {
		item.Seq = next()
		q.items = append(q.items, item)
		if item.Deferred {
			q.deferred++
		}
	}
	q.notifyLocked()
	return true
}

// Contains reports whether an item for node is queued.
func (q *workQueue) Contains(node *Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.items {
		if item.Node == node {
			return true
		}
	}
	return false
}

// TryDequeue removes and returns the front item without blocking.
func (q *workQueue) TryDequeue() (*WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}

	item := q.items[0]

	// Release the slot so the backing array does not pin the item's records.
	q.items[0] = nil

	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	if item.Deferred {
		q.deferred--
	}

	return item, true
}

// Wait returns a channel that signals when items may be available.
// The channel is closed once the queue is closed.
func (q *workQueue) Wait() <-chan struct{} {
	return q.signal
}

// Wake signals waiters without enqueuing anything.
func (q *workQueue) Wake() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.notifyLocked()
}

func (q *workQueue) notifyLocked() {
	if q.closed {
		return
	}
	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Len returns the current queue length.
func (q *workQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns the number of queued items that are not deferred.
func (q *workQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.deferred
}

// Snapshot returns a copy of the queued items in FIFO order.
func (q *workQueue) Snapshot() []*WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*WorkItem, len(q.items))
	copy(out, q.items)
	return out
}

// Clear discards all queued items and returns how many were dropped.
func (q *workQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	clear(q.items)
	q.items = q.items[:0]
	q.deferred = 0
	return n
}

// Closed reports whether Close has been called.
func (q *workQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close rejects further enqueues and wakes any waiter.
// Items already queued remain and can still be dequeued.
func (q *workQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
