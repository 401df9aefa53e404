package cmd

import (
	"context"
	"math/rand"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chronomq/tapmq/internal/monitor"
	"github.com/chronomq/tapmq/pkg/metrics"
	"github.com/chronomq/tapmq/pkg/mpsc"
)

var msgs = 100000
var producers = 5
var sizeBytes = 100

func init() {
	loadTestCmd.Flags().IntVarP(&msgs, "num", "n", msgs, "Number of total messages")
	loadTestCmd.Flags().IntVarP(&producers, "con", "c", producers, "Number of producer goroutines")
	loadTestCmd.Flags().IntVarP(&sizeBytes, "size", "z", sizeBytes, "Message size in bytes")

	rootCmd.AddCommand(loadTestCmd)
}

var loadTestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Run a tapmq loadtest",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		log.Info().Msg("Running tapmq load test")
		metrics.InitMetrics(statsAddr)
		runLoadTest()
	},
}

// loadMsg is the payload pushed through the channel under test
type loadMsg struct {
	data []byte
}

var loadMsgOverhead = uint64(unsafe.Sizeof(loadMsg{}))

// SizeOf returns the memory held by this message in bytes
func (m *loadMsg) SizeOf() uint64 {
	return loadMsgOverhead + uint64(len(m.data))
}

func runLoadTest() {
	log.Info().
		Int("MaxMessages", msgs).
		Int("Producers", producers).
		Int("SizeBytes", sizeBytes).
		Msg("Setting up load test parameters")

	reporter := monitor.Default().Report()
	defer reporter.Close()
	defer metrics.Time("loadtest.duration", time.Now())

	// An isolated counter set keeps repeated runs comparable
	registry := prometheus.NewRegistry()
	m := mpsc.NewMetrics()
	m.MustRegister(registry)

	tx, rx := mpsc.UnboundedWithMetrics[*loadMsg](m)
	data := randStringBytes(sizeBytes)

	start := time.Now()
	g := &errgroup.Group{}
	for c := 0; c < producers; c++ {
		count := msgs / producers
		if c < msgs%producers {
			count++
		}
		worker := c
		tx := tx.Clone()
		g.Go(func() error {
			defer tx.Disconnect()
			for i := 0; i < count; i++ {
				if err := tx.Send(&loadMsg{data: data}); err != nil {
					return errors.Wrapf(err, "Failed to enqueue for worker: %d", worker)
				}
				metrics.Incr("loadtest.enqueue")
			}
			return nil
		})
	}
	tx.Disconnect()

	received := 0
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			_, err := rx.Next(context.Background())
			if err != nil {
				return
			}
			received++
			metrics.Incr("loadtest.dequeue")
		}
	}()

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Load test producers failed")
	}
	<-drained
	elapsed := time.Since(start)
	if err := rx.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to drop loadtest channel")
	}

	log.Info().
		Int("Received", received).
		Dur("Elapsed", elapsed).
		Float64("MsgsPerSec", float64(received)/elapsed.Seconds()).
		Msg("Load test done")

	families, err := registry.Gather()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to gather channel counters")
	}
	for _, mf := range families {
		logCounter(mf)
	}
}

func logCounter(mf *dto.MetricFamily) {
	log.Info().Float64("value", mf.GetMetric()[0].GetCounter().GetValue()).Msg(mf.GetName())
}

const letterBytes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func randStringBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[rand.Intn(len(letterBytes))]
	}
	return b
}
