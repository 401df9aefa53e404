// Package queue implements the unbounded FIFO buffer that backs instrumented
// channels. It owns all locking and consumer wakeup so that layers above it
// never busy-poll.
package queue

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrClosed signals an operation against a closed queue
var ErrClosed = errors.New("Queue is closed")

// compactAfter is the number of dead head slots tolerated before the buffer
// is compacted in place
const compactAfter = 64

// Queue is an unbounded FIFO buffer over items of type T.
// Any number of goroutines may Enqueue concurrently; a single consumer
// goroutine pops items via Dequeue or DequeueWait. Items come out in enqueue
// order. Enqueue never blocks - there is no capacity bound.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	head    int
	closed  bool
	waiters []chan struct{}
}

// New creates an empty, open queue
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Enqueue appends v at the tail and wakes a waiting consumer if there is one.
// Once the queue is closed, Enqueue fails with ErrClosed
func (q *Queue[T]) Enqueue(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, v)
	q.wake()
	return nil
}

// Dequeue pops the item at the head of the queue without blocking.
// It reports false when the queue is currently empty
func (q *Queue[T]) Dequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pop()
}

// DequeueWait pops the item at the head of the queue, suspending the caller
// cooperatively while the queue is empty but still open. The suspended caller
// wakes on the first enqueue, on Close, or when ctx ends - whichever comes
// first. A closed and drained queue yields ErrClosed; a finished ctx yields
// its error.
func (q *Queue[T]) DequeueWait(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if v, ok := q.pop(); ok {
			q.mu.Unlock()
			return v, nil
		}
		if q.closed {
			q.mu.Unlock()
			return zero, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			q.mu.Unlock()
			return zero, err
		}
		w := make(chan struct{})
		q.waiters = append(q.waiters, w)
		q.mu.Unlock()

		select {
		case <-w:
		case <-ctx.Done():
			q.forget(w)
			return zero, ctx.Err()
		}
	}
}

// Close marks the queue closed and wakes all suspended consumers.
// Buffered items remain dequeueable after Close; only enqueues are refused.
// Close is idempotent
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.wake()
}

// Closed reports whether Close has been called
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of items currently buffered
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// pop removes the head item. Callers must hold mu
func (q *Queue[T]) pop() (T, bool) {
	var zero T
	if q.head == len(q.items) {
		return zero, false
	}
	v := q.items[q.head]
	q.items[q.head] = zero // let the buffer drop its reference
	q.head++
	if q.head > compactAfter && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return v, true
}

// wake releases every suspended consumer. Callers must hold mu
func (q *Queue[T]) wake() {
	for _, w := range q.waiters {
		close(w)
	}
	q.waiters = q.waiters[:0]
}

// forget drops the waiter registration left behind by a canceled DequeueWait
func (q *Queue[T]) forget(w chan struct{}) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, x := range q.waiters {
		if x == w {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return
		}
	}
}
