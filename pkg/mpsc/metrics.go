package mpsc

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// namespace prefixes every counter exposed by this package
const namespace = "instrumented_mpsc"

// Metrics is one set of channel counters. Every channel created against the
// same set increments the same four counters - the values aggregate across
// channels, they are not per-channel. Counters only ever go up and reset with
// the process
type Metrics struct {
	// ChannelsCreated counts calls to the channel factory
	ChannelsCreated prometheus.Counter
	// ChannelsDropped counts receiver handles dropped via Close
	ChannelsDropped prometheus.Counter
	// MsgsSend counts send attempts - it moves before the enqueue outcome is
	// known, so sends refused by a closed channel are visible too
	MsgsSend prometheus.Counter
	// MsgsReceived counts items actually handed to the consumer
	MsgsReceived prometheus.Counter
}

// NewMetrics creates an isolated counter set. Use it with
// UnboundedWithMetrics when the process-wide set would mix unrelated traffic,
// typically in tests
func NewMetrics() *Metrics {
	return &Metrics{
		ChannelsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channels_created_total",
			Help:      "Channels created total.",
		}),
		ChannelsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channels_dropped_total",
			Help:      "Channels dropped total.",
		}),
		MsgsSend: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "msgs_send_total",
			Help:      "Messages send total.",
		}),
		MsgsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "msgs_received_total",
			Help:      "Messages received total.",
		}),
	}
}

// MustRegister attaches all four counters to the collector r. Call it at most
// once per collector: a second registration of the same set with the same
// collector panics with prometheus.AlreadyRegisteredError. Registering the
// same set with several distinct collectors is fine - they observe the same
// shared values
func (m *Metrics) MustRegister(r prometheus.Registerer) {
	r.MustRegister(m.ChannelsCreated, m.ChannelsDropped, m.MsgsSend, m.MsgsReceived)
}

var (
	defaultOnce sync.Once
	defaultSet  *Metrics
)

// DefaultMetrics returns the process-wide counter set shared by every channel
// made with Unbounded. The set is created lazily on first use and lives for
// the process lifetime
func DefaultMetrics() *Metrics {
	defaultOnce.Do(func() {
		defaultSet = NewMetrics()
	})
	return defaultSet
}

// RegisterMetrics attaches the process-wide counter set to the collector r.
// Same contract as MustRegister: at most once per collector. Queue behavior
// does not depend on registration - unregistered counters still count
func RegisterMetrics(r prometheus.Registerer) {
	DefaultMetrics().MustRegister(r)
}
