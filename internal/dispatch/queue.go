// Package dispatch hands accepted connections from the acceptor to idle
// workers.
//
// The queue is unbounded: Enqueue never waits for capacity, so sustained
// load beyond what the workers can serve grows memory without limit. Adding
// a bound would introduce backpressure on the acceptor and is left as an
// explicit decision for the caller.
package dispatch

import "sync"

// Queue is a FIFO shared by one producer and any number of consumers.
type Queue[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []T
	shutdown bool
}

// New returns an empty, running queue.
func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends item and wakes one waiting consumer. It reports false,
// leaving ownership of item with the caller, once Shutdown has been called.
func (q *Queue[T]) Enqueue(item T) bool {
	q.mu.Lock()
	if q.shutdown {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.cond.Signal()
	return true
}

// Dequeue blocks until an item is available or the queue is shut down.
// Items enqueued before Shutdown are still delivered; ok is false only when
// the queue is shut down and empty.
func (q *Queue[T]) Dequeue() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.shutdown {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return item, false
	}
	item = q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

// Shutdown raises the stop signal and wakes every blocked consumer. Calling
// it more than once is harmless.
func (q *Queue[T]) Shutdown() {
	q.mu.Lock()
	q.shutdown = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Drain removes and returns everything still pending, in FIFO order.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Len returns the number of pending items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Shutdown has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.shutdown
}
