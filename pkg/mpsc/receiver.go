package mpsc

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/chronomq/tapmq/internal/queue"
)

// Receiver is the sole consumer handle on an instrumented channel. It cannot
// be cloned. A single goroutine is expected to drive the pulls; Close may be
// called from anywhere, any number of times
type Receiver[T any] struct {
	c        *channel[T]
	dropOnce sync.Once
}

// Next pulls the next item. With an item buffered it returns immediately,
// counting the receive. With an empty buffer and producers still connected it
// suspends cooperatively - no polling - until the first enqueue, the channel
// closing, or ctx ending, whichever comes first. Once the channel is closed
// and drained, Next fails with ErrExhausted, permanently. A ctx error is
// returned as-is and leaves the handle usable
func (r *Receiver[T]) Next(ctx context.Context) (T, error) {
	v, err := r.c.q.DequeueWait(ctx)
	if err != nil {
		var zero T
		if err == queue.ErrClosed {
			return zero, ErrExhausted
		}
		return zero, err
	}
	r.c.metrics.MsgsReceived.Inc()
	r.c.mon.Dequeued(r.c.sizeOf(v))
	return v, nil
}

// TryNext pulls without suspending. It reports false with a nil error when
// the buffer is momentarily empty but producers remain, and ErrExhausted once
// the channel terminated
func (r *Receiver[T]) TryNext() (T, bool, error) {
	if v, ok := r.c.q.Dequeue(); ok {
		r.c.metrics.MsgsReceived.Inc()
		r.c.mon.Dequeued(r.c.sizeOf(v))
		return v, true, nil
	}
	var zero T
	if r.c.q.Closed() {
		return zero, false, ErrExhausted
	}
	return zero, false, nil
}

// Len reports how many items are buffered and not yet received
func (r *Receiver[T]) Len() int {
	return r.c.q.Len()
}

// Close drops the receiver. Exactly one drop is counted no matter how often
// Close runs or whether items are still buffered. Closing releases a
// suspended Next - it then reports exhaustion - and closes the channel for
// all producers, whose later sends fail. Buffered items are discarded without
// ever counting as received. Defer Close right after creating the channel
func (r *Receiver[T]) Close() error {
	r.dropOnce.Do(func() {
		r.c.metrics.ChannelsDropped.Inc()
		r.c.q.Close()
		discarded := 0
		for {
			v, ok := r.c.q.Dequeue()
			if !ok {
				break
			}
			r.c.mon.Dequeued(r.c.sizeOf(v))
			discarded++
		}
		log.Debug().Str("channel", r.c.id).Int("discarded", discarded).Msg("Dropped instrumented channel")
	})
	return nil
}
