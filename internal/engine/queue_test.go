package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkQueue_EnqueueDequeue(t *testing.T) {
	q := newWorkQueue()

	ok := q.Enqueue(&WorkItem{Seq: 1})
	require.True(t, ok, "enqueue should succeed")

	got, ok := q.TryDequeue()
	require.True(t, ok, "dequeue should succeed")
	assert.Equal(t, int64(1), got.Seq)
}

func TestWorkQueue_FIFO(t *testing.T) {
	q := newWorkQueue()

	for i := int64(1); i <= 3; i++ {
		q.Enqueue(&WorkItem{Seq: i})
	}

	for want := int64(1); want <= 3; want++ {
		item, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, item.Seq)
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestWorkQueue_PendingExcludesDeferred(t *testing.T) {
	q := newWorkQueue()
	q.Enqueue(&WorkItem{Seq: 1, Deferred: true})
	q.Enqueue(&WorkItem{Seq: 2})
	q.Enqueue(&WorkItem{Seq: 3, Deferred: true})

	assert.Equal(t, 3, q.Len())
	assert.Equal(t, 1, q.Pending())

	q.TryDequeue()
	assert.Equal(t, 1, q.Pending())
	q.TryDequeue()
	assert.Equal(t, 0, q.Pending())
	assert.Equal(t, 1, q.Len())
}

func TestWorkQueue_Clear(t *testing.T) {
	q := newWorkQueue()
	q.Enqueue(&WorkItem{Seq: 1})
	q.Enqueue(&WorkItem{Seq: 2, Deferred: true})

	assert.Equal(t, 2, q.Clear())
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0, q.Pending())

	q.Enqueue(&WorkItem{Seq: 3})
	assert.Equal(t, 1, q.Pending())
}

func TestWorkQueue_Snapshot(t *testing.T) {
	q := newWorkQueue()
	q.Enqueue(&WorkItem{Seq: 1})
	q.Enqueue(&WorkItem{Seq: 2})

	snap := q.Snapshot()
	require.Len(t, snap, 2)
	snap[0] = nil

	item, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, int64(1), item.Seq)
}

func TestWorkQueue_EnqueueAfterClose(t *testing.T) {
	q := newWorkQueue()
	q.Enqueue(&WorkItem{Seq: 1})
	q.Close()

	assert.False(t, q.Enqueue(&WorkItem{Seq: 2}), "enqueue after close should return false")
	assert.True(t, q.Closed())

	item, ok := q.TryDequeue()
	require.True(t, ok, "items queued before close remain")
	assert.Equal(t, int64(1), item.Seq)
}

func TestWorkQueue_WaitSignalsOnEnqueue(t *testing.T) {
	q := newWorkQueue()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(&WorkItem{Seq: 1})
	}()

	select {
	case <-q.Wait():
		assert.Equal(t, 1, q.Len())
	case <-time.After(time.Second):
		t.Fatal("wait did not signal")
	}
}

func TestWorkQueue_CloseWakesWaiter(t *testing.T) {
	q := newWorkQueue()
	q.Close()
	q.Close() // idempotent

	select {
	case _, ok := <-q.Wait():
		assert.False(t, ok, "signal channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("wait did not unblock after close")
	}
}

func TestWorkQueue_WakeAfterCloseDoesNotPanic(t *testing.T) {
	q := newWorkQueue()
	q.Close()
	assert.NotPanics(t, q.Wake)
}

func TestWorkQueue_ConcurrentEnqueue(t *testing.T) {
	q := newWorkQueue()
	const producers = 8
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(&WorkItem{})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer, q.Len())
}

func TestWorkQueue_EnqueueBatchStampsInOrder(t *testing.T) {
	q := newWorkQueue()
	clock := NewClock()
	a, b := &WorkItem{}, &WorkItem{Deferred: true}

	require.True(t, q.EnqueueBatch([]*WorkItem{a, b}, clock.Next))
	assert.Equal(t, int64(1), a.Seq)
	assert.Equal(t, int64(2), b.Seq)
	assert.Equal(t, 1, q.Pending())

	q.Close()
	c := &WorkItem{}
	assert.False(t, q.EnqueueBatch([]*WorkItem{c}, clock.Next))
	assert.Zero(t, c.Seq, "rejected items are not stamped")
	assert.Equal(t, 2, q.Len())
}

func TestWorkQueue_Contains(t *testing.T) {
	q := newWorkQueue()
	x, y := &Task{name: "x"}, &Task{name: "y"}

	q.Enqueue(&WorkItem{Node: x, Deferred: true})
	assert.True(t, q.Contains(x))
	assert.False(t, q.Contains(y))

	q.Clear()
	assert.False(t, q.Contains(x))
}

func TestWorkQueue_ConcurrentBatchesKeepSeqOrder(t *testing.T) {
	q := newWorkQueue()
	clock := NewClock()

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.EnqueueBatch([]*WorkItem{{}, {}}, clock.Next)
			}
		}()
	}
	wg.Wait()

	items := q.Snapshot()
	require.Len(t, items, 1600)
	for i, item := range items {
		assert.Equal(t, int64(i+1), item.Seq)
	}
}
