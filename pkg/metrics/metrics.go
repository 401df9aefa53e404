package metrics

import (
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"
)

// Client is the global metrics client for sending statsd compatible metrics.
// It stays nil until InitMetrics runs; the helpers below treat a nil Client
// as a silent sink
var Client *statsd.Client

// InitMetrics idempotently initializes a Client
func InitMetrics(statsAddr string) {
	if Client == nil {
		var err error
		Client, err = statsd.NewBuffered(statsAddr, 500)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize statsd metrics client")
		}
		Client.Namespace = "tapmq."
	}
}

// Time sends timing metrics when called.
// Ideally used with defer as Time("metricname", time.Now())
func Time(name string, start time.Time) error {
	if Client == nil {
		return nil
	}
	return Client.Timing(name, time.Since(start), nil, 1)
}

// Incr increments the given metric name
func Incr(name string) error {
	if Client == nil {
		return nil
	}
	return Client.Incr(name, nil, 1)
}

// Decr decrements the given metric name
func Decr(name string) error {
	if Client == nil {
		return nil
	}
	return Client.Decr(name, nil, 1)
}

// Gauge sends a gauge metric
func Gauge(name string, val float64) error {
	if Client == nil {
		return nil
	}
	return Client.Gauge(name, val, nil, 1)
}

// GaugeInt sends a gauge metric
func GaugeInt(name string, val int) error {
	if Client == nil {
		return nil
	}
	return Client.Gauge(name, float64(val), nil, 1)
}
