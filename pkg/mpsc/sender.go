package mpsc

import (
	"sync/atomic"
)

// Sender is a producer handle on an instrumented channel. Clone hands out
// more handles on the same channel; each one disconnects independently. All
// methods are safe to call from any number of goroutines and none of them
// ever blocks - the channel has no capacity bound
type Sender[T any] struct {
	c        *channel[T]
	detached uint32 // atomic: this handle gave up its producer slot
}

// Send enqueues v for the consumer. It fails with ErrClosed once the channel
// is closed; the caller keeps v in that case. The send counter counts
// attempts - it moves before the enqueue outcome is known, so refused sends
// show up too
func (s *Sender[T]) Send(v T) error {
	s.c.metrics.MsgsSend.Inc()
	if atomic.LoadUint32(&s.detached) == 1 {
		return ErrClosed
	}
	size := s.c.sizeOf(v)
	s.c.mon.Enqueued(size)
	if err := s.c.q.Enqueue(v); err != nil {
		s.c.mon.Dequeued(size)
		return ErrClosed
	}
	return nil
}

// TrySend enqueues v without blocking. Sends on an unbounded channel never
// block, so TrySend and Send behave identically - both exist so call sites
// can spell out their intent
func (s *Sender[T]) TrySend(v T) error {
	return s.Send(v)
}

// Ready reports whether this handle can currently send. It returns ErrClosed
// once the channel is closed or the handle disconnected and never blocks.
// Checking readiness moves no counters
func (s *Sender[T]) Ready() error {
	if s.IsClosed() {
		return ErrClosed
	}
	return nil
}

// IsClosed observes whether the channel is closed for this handle. Purely
// observational
func (s *Sender[T]) IsClosed() bool {
	return atomic.LoadUint32(&s.detached) == 1 || s.c.q.Closed()
}

// Close closes the channel for every producer handle at once. Items already
// buffered stay receivable. Close is idempotent, moves no counters and never
// fails
func (s *Sender[T]) Close() error {
	s.c.q.Close()
	return nil
}

// Disconnect gives up this handle's producer slot. When the last live handle
// disconnects the channel closes for receiving: the consumer drains whatever
// is buffered and then sees exhaustion. Disconnect is idempotent per handle
func (s *Sender[T]) Disconnect() {
	if !atomic.CompareAndSwapUint32(&s.detached, 0, 1) {
		return
	}
	if atomic.AddInt64(&s.c.senders, -1) == 0 {
		s.c.q.Close()
	}
}

// Clone hands out a new producer handle on the same channel. Cloning a
// disconnected handle yields another disconnected handle
func (s *Sender[T]) Clone() *Sender[T] {
	if atomic.LoadUint32(&s.detached) == 1 {
		return &Sender[T]{c: s.c, detached: 1}
	}
	atomic.AddInt64(&s.c.senders, 1)
	return &Sender[T]{c: s.c}
}
