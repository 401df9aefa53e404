/*
Package metrics provides a statsd metrics wrapper for operational gauges and
per-operation counters. The channel counters themselves are prometheus
counters and live in pkg/mpsc - this package carries everything around them.

Metrics must be initialized at startup as early as possible:
  import "github.com/chronomq/tapmq/pkg/metrics"
  ...
  metrics.InitMetrics(metricsCollectorAddr)

Helpers silently drop metrics until InitMetrics runs, so library code can
report unconditionally.
*/
package metrics
