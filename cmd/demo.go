package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/chronomq/tapmq/internal/monitor"
	"github.com/chronomq/tapmq/pkg/metrics"
	"github.com/chronomq/tapmq/pkg/mpsc"
)

var haddr = ":9091"
var demoProducers = 4
var produceEvery = time.Millisecond * 250

func init() {
	demoCmd.Flags().StringVar(&haddr, "haddr", haddr, "Set counters/health http listener addr (host:port)")
	demoCmd.Flags().IntVarP(&demoProducers, "producers", "p", demoProducers, "Number of producer goroutines")
	demoCmd.Flags().DurationVar(&produceEvery, "produceEvery", produceEvery, "Delay between sends per producer")

	rootCmd.AddCommand(demoCmd)
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a demo pipeline and serve its counters over http",
	Long: `Runs producers and one consumer over a single instrumented channel and
exposes the channel counters at /metrics in the prometheus text format.
Watch the counters move while the pipeline runs.`,
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		log.Info().Int("PID", os.Getpid()).Msg("Starting tapmq demo")
		metrics.InitMetrics(statsAddr)
		runDemo()
		log.Info().Msg("Shutdown ok")
	},
}

// demoMsg is the payload flowing through the demo channel
type demoMsg struct {
	producer int
	seq      int
	at       time.Time
	body     []byte
}

var demoMsgOverhead = uint64(unsafe.Sizeof(demoMsg{}))

// SizeOf returns the memory held by this message in bytes
func (m demoMsg) SizeOf() uint64 {
	return demoMsgOverhead + uint64(len(m.body))
}

func runDemo() {
	mpsc.RegisterMetrics(prometheus.DefaultRegisterer)
	mon := monitor.Default()
	reporter := mon.Report()
	defer reporter.Close()

	ctx, cancel := context.WithCancel(context.Background())
	tx, rx := mpsc.Unbounded[demoMsg]()
	body := randStringBytes(64)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/backlog", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"bytes":    mon.Backlog(),
			"breached": mon.Breached(),
			"buffered": rx.Len(),
		})
	})
	srv := &http.Server{Addr: haddr, Handler: mux}
	go func() {
		log.Info().Str("haddr", haddr).Msg("Serving channel counters")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start counters http server")
		}
	}()

	wg := &sync.WaitGroup{}
	for p := 0; p < demoProducers; p++ {
		wg.Add(1)
		go func(id int, tx *mpsc.Sender[demoMsg]) {
			defer wg.Done()
			defer tx.Disconnect()
			for seq := 0; ; seq++ {
				select {
				case <-ctx.Done():
					return
				case <-time.After(produceEvery):
				}
				msg := demoMsg{producer: id, seq: seq, at: time.Now(), body: body}
				if err := tx.Send(msg); err != nil {
					log.Error().Err(err).Int("producer", id).Msg("Demo send failed")
					return
				}
				metrics.Incr("demo.enqueue")
			}
		}(p, tx.Clone())
	}
	// hand production over to the clones entirely
	tx.Disconnect()

	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		for {
			// runs against the background context: after the producers stop
			// this drains the buffer and ends on exhaustion
			msg, err := rx.Next(context.Background())
			if err != nil {
				log.Info().Msg("Demo channel exhausted")
				return
			}
			metrics.Incr("demo.dequeue")
			log.Debug().
				Int("producer", msg.producer).
				Int("seq", msg.seq).
				Dur("queued", time.Since(msg.at)).
				Msg("Demo receive")
		}
	}()

	sigc := make(chan os.Signal, 2)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	<-sigc
	log.Info().Msg("Stopping demo pipeline")

	cancel()
	wg.Wait()
	<-consumed
	if err := rx.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to drop demo channel")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second*5)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to stop counters http server")
	}
}
