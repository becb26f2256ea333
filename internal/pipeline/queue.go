// Package pipeline implements the ingestion core: the arrival queue, the
// ticker-driven processor that drains it, and the notification feed the
// HTTP layer consumes. Many producers, one consumer loop.
package pipeline

import (
	"sync"

	"github.com/fyrsmithlabs/resultd/internal/artifact"
)

// Queue is a monitorable FIFO buffer of raw arrivals. It is unbounded by
// policy: backpressure is handled by the processor scaling its batch,
// never by dropping items. The queue is the only shared mutable state
// between watchers and the processor; a mutex is its whole concurrency
// discipline.
type Queue struct {
	mu     sync.Mutex
	items  []artifact.RawArrival
	closed bool
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends an arrival. Safe for concurrent use; watchers call it
// from their own goroutines. Returns artifact.ErrQueueClosed after Close.
func (q *Queue) Enqueue(a artifact.RawArrival) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return artifact.ErrQueueClosed
	}
	q.items = append(q.items, a)
	return nil
}

// DequeueBatch removes and returns up to n arrivals in FIFO order.
// Returns nil when the queue is empty.
func (q *Queue) DequeueBatch(n int) []artifact.RawArrival {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n <= 0 || len(q.items) == 0 {
		return nil
	}
	if n > len(q.items) {
		n = len(q.items)
	}
	batch := make([]artifact.RawArrival, n)
	copy(batch, q.items[:n])
	q.items = q.items[n:]
	if len(q.items) == 0 {
		q.items = nil // release the drained backing array
	}
	return batch
}

// Len returns the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further enqueues. Already-buffered arrivals remain
// drainable so in-flight shutdown can finish them.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
