package monitor

import (
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"

	"github.com/chronomq/tapmq/pkg/metrics"
)

// Sizeable struct is one that wishes to enable backlog byte accounting for
// itself. Items without it are accounted at their static type size
type Sizeable interface {
	SizeOf() uint64
}

// Monitor watches the aggregate channel backlog - bytes enqueued but not yet
// received, across every instrumented channel in the process - and raises an
// alarm when it breaches the configured watermark. tapmq never blocks
// producers: the monitor observes and reports, nothing more.
// It is safe to call methods on Monitor from multiple goroutines
type Monitor interface {
	// Enqueued adds an item's bytes to the backlog account.
	// Call this when the item enters a channel buffer
	Enqueued(size uint64)
	// Dequeued subtracts an item's bytes from the backlog account.
	// Call this when the item leaves a channel buffer
	Dequeued(size uint64)
	// Breached returns true while the backlog is above the watermark and
	// hasn't fallen below the recovery watermark yet
	Breached() bool
	// Backlog returns the currently accounted backlog bytes
	Backlog() uint64
	// Report streams backlog gauges to statsd until the returned closer is
	// closed
	Report() io.Closer
}

// config is read from the environment once at startup
type config struct {
	// Watermark arms the monitor. Plain numbers are bytes; units like 64M
	// work too. Empty leaves the monitor disabled
	Watermark string `env:"TAPMQ_BACKLOG_WATERMARK"`
	// ReportInterval paces the statsd gauge reporter
	ReportInterval time.Duration `env:"TAPMQ_BACKLOG_REPORT_INTERVAL" envDefault:"1s"`
}

type backlogMonitor struct {
	current  uint64 // currently accounted backlog bytes
	breached uint32 // atomic flag: inside a breach episode

	watermark         uint64 // alarm watermark
	recoveryWatermark uint64 // alarm recovery watermark

	reportEvery time.Duration
}

var instance Monitor

func init() {
	cfg := config{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatal().Err(err).Msg("Unparseable backlog monitor environment")
	}
	if cfg.Watermark == "" {
		UseNoopMonitor()
		return
	}

	// If only number, treat as bytes
	watermark, err := strconv.ParseUint(cfg.Watermark, 10, 64)
	if err == nil {
		configureMonitor(watermark, cfg.ReportInterval)
		return
	}

	// try to parse with units
	watermark, err = bytefmt.ToBytes(cfg.Watermark)
	if err != nil {
		log.Fatal().Msgf("Unparseable backlog watermark: %s Should be specified as number of bytes", cfg.Watermark)
	}
	configureMonitor(watermark, cfg.ReportInterval)
}

// Default returns the process-wide backlog monitor. Channels capture it at
// creation time
func Default() Monitor {
	return instance
}

// configureMonitor sets a watermark value on a backlog monitor.
// Call this before creating the observed channels
func configureMonitor(watermark uint64, reportEvery time.Duration) Monitor {
	if watermark == 0 {
		UseNoopMonitor()
		return instance
	}

	if instance == nil {
		bm := &backlogMonitor{
			watermark:         watermark,
			recoveryWatermark: watermark - 10*(watermark>>10),
			reportEvery:       reportEvery,
		}
		log.Info().
			Str("AlarmWatermark", bytefmt.ByteSize(bm.watermark)).
			Str("AlarmRecoveryWatermark", bytefmt.ByteSize(bm.recoveryWatermark)).
			Msg("Initialized channel backlog monitor")
		instance = bm
	}
	return instance
}

func (bm *backlogMonitor) Enqueued(size uint64) {
	current := atomic.AddUint64(&bm.current, size)
	if current >= bm.watermark && atomic.CompareAndSwapUint32(&bm.breached, 0, 1) {
		log.Warn().
			Str("Backlog", bytefmt.ByteSize(current)).
			Str("AlarmWatermark", bytefmt.ByteSize(bm.watermark)).
			Msg("Channel backlog breached watermark")
	}
}

const tebibyte = uint64(1 << 40)

func (bm *backlogMonitor) Dequeued(size uint64) {
	current := atomic.AddUint64(&bm.current, ^(size - 1))
	if current > tebibyte { // hack to detect underflow - it will fire if we are decrementing more than incrementing
		atomic.StoreUint64(&bm.current, 0) // if someone recovers from the panic - we reset to 0
		log.Panic().Msg("BacklogMonitor underflow detected - cannot decrement without a matching increment")
	}
	if current < bm.recoveryWatermark && atomic.CompareAndSwapUint32(&bm.breached, 1, 0) {
		log.Info().
			Str("Backlog", bytefmt.ByteSize(current)).
			Msg("Channel backlog recovered below watermark")
	}
}

func (bm *backlogMonitor) Breached() bool {
	return atomic.LoadUint32(&bm.breached) == 1
}

func (bm *backlogMonitor) Backlog() uint64 {
	return atomic.LoadUint64(&bm.current)
}

func (bm *backlogMonitor) Report() io.Closer {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(bm.reportEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.Gauge("backlog.bytes", float64(atomic.LoadUint64(&bm.current)))
				metrics.Gauge("backlog.watermark", float64(bm.watermark))
				metrics.GaugeInt("backlog.breached", int(atomic.LoadUint32(&bm.breached)))
			case <-stop:
				return
			}
		}
	}()
	return &reporter{stop: stop}
}

// reporter stops a Report loop at most once
type reporter struct {
	stop chan struct{}
	once sync.Once
}

func (r *reporter) Close() error {
	r.once.Do(func() { close(r.stop) })
	return nil
}

// ############ NOOP Backlog Monitor ################
type noopMonitor struct{}

// UseNoopMonitor installs a noop implementation of the backlog monitor if we
// want to fully disable it with minimal penalty
func UseNoopMonitor() {
	instance = &noopMonitor{}
	log.Info().Msg("Using NOOP backlog monitor")
}

func (n *noopMonitor) Enqueued(size uint64) {}
func (n *noopMonitor) Dequeued(size uint64) {}
func (n *noopMonitor) Breached() bool       { return false }
func (n *noopMonitor) Backlog() uint64      { return 0 }
func (n *noopMonitor) Report() io.Closer    { return noopCloser{} }

type noopCloser struct{}

func (noopCloser) Close() error { return nil }
