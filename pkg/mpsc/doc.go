/*
Package mpsc provides unbounded multi-producer single-consumer channels that
transparently count sends, receives, channel creations and channel drops in
shared prometheus counters.

The counters aggregate over every channel in the process - they answer "how
busy are our queues" without any per-channel wiring. Register them once per
collector at startup:

	import "github.com/chronomq/tapmq/pkg/mpsc"
	...
	mpsc.RegisterMetrics(prometheus.DefaultRegisterer)

Then create channels anywhere:

	tx, rx := mpsc.Unbounded[string]()
	defer rx.Close()

Isolated counter sets for tests or embedded use come from NewMetrics and
UnboundedWithMetrics.
*/
package mpsc
