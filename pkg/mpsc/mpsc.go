package mpsc

import (
	"reflect"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	uuid "github.com/satori/go.uuid"

	"github.com/chronomq/tapmq/internal/monitor"
	"github.com/chronomq/tapmq/internal/queue"
)

// ErrClosed signals a send refused because the channel is closed - the
// receiver dropped it, a producer closed it, or every producer disconnected
var ErrClosed = errors.New("Channel is closed")

// ErrExhausted signals that the channel terminated: it is closed and the
// buffer is drained. Once a pull reports ErrExhausted every later pull does
var ErrExhausted = errors.New("Channel is exhausted")

// channel is the state shared by one sender/receiver handle pair
type channel[T any] struct {
	id      string
	q       *queue.Queue[T]
	metrics *Metrics
	mon     monitor.Monitor
	shallow uint64 // static size of one T, for backlog accounting
	senders int64  // live producer handles, counted atomically
}

// sizeOf approximates an item's resident size for backlog accounting. Items
// implement monitor.Sizeable to report exact sizes; everything else accounts
// its static type size
func (c *channel[T]) sizeOf(v T) uint64 {
	if s, ok := any(v).(monitor.Sizeable); ok {
		return s.SizeOf()
	}
	return c.shallow
}

// Unbounded creates an instrumented unbounded channel counting against the
// process-wide counter set. It returns the producer handle and the sole
// consumer handle. Creation cannot fail and accepts any item type
func Unbounded[T any]() (*Sender[T], *Receiver[T]) {
	return UnboundedWithMetrics[T](DefaultMetrics())
}

// UnboundedWithMetrics creates an instrumented unbounded channel counting
// against an explicit counter set
func UnboundedWithMetrics[T any](m *Metrics) (*Sender[T], *Receiver[T]) {
	c := &channel[T]{
		id:      uuid.NewV4().String(),
		q:       queue.New[T](),
		metrics: m,
		mon:     monitor.Default(),
		shallow: uint64(reflect.TypeOf((*T)(nil)).Elem().Size()),
		senders: 1,
	}
	m.ChannelsCreated.Inc()
	log.Debug().Str("channel", c.id).Msg("Created instrumented channel")
	return &Sender[T]{c: c}, &Receiver[T]{c: c}
}
