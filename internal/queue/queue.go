// Package queue holds metric batches waiting to be published.
package queue

import (
	"sync"

	"github.com/and161185/toolkit-telemetry/model"
)

// EventQueue is a FIFO of metric batches safe for concurrent producers.
// Only the publisher takes items out of it.
type EventQueue struct {
	mu       sync.Mutex
	items    []model.Metrics
	capacity int
	dropped  uint64
}

// New creates a queue. A capacity of zero or less means unbounded.
func New(capacity int) *EventQueue {
	return &EventQueue{capacity: capacity}
}

// Enqueue appends m. When the queue is full the oldest batch is evicted
// and false is returned.
func (q *EventQueue) Enqueue(m model.Metrics) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	accepted := true
	if q.capacity > 0 && len(q.items) >= q.capacity {
		q.items = q.items[1:]
		q.dropped++
		accepted = false
	}
	q.items = append(q.items, m)
	return accepted
}

// Requeue puts batch back at the head of the queue in its original order.
// It never evicts: batches returned by the publisher may exceed capacity
// until the next Enqueue trims the head.
func (q *EventQueue) Requeue(batch []model.Metrics) {
	q.RequeueIf(nil, batch)
}

// RequeueIf is Requeue guarded by keep, which is evaluated under the queue
// lock so it cannot interleave with Clear. It reports whether batch was put back.
func (q *EventQueue) RequeueIf(keep func() bool, batch []model.Metrics) bool {
	if len(batch) == 0 {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if keep != nil && !keep() {
		return false
	}
	items := make([]model.Metrics, 0, len(batch)+len(q.items))
	items = append(items, batch...)
	q.items = append(items, q.items...)
	return true
}

// Dequeue removes up to n batches from the head.
func (q *EventQueue) Dequeue(n int) []model.Metrics {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n > len(q.items) {
		n = len(q.items)
	}
	if n <= 0 {
		return nil
	}
	out := make([]model.Metrics, n)
	copy(out, q.items[:n])
	q.items = q.items[n:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return out
}

// Len returns the number of queued batches.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear drops every queued batch and returns how many were removed.
func (q *EventQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

// Dropped returns the number of batches evicted because of capacity.
func (q *EventQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
