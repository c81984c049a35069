// Package metrics exposes prometheus counters and histograms for ticks and
// the signal lifecycle (the `performance` event channel is published
// separately by the live driver), using a CounterVec-per-reason style
// with a concurrent-safe export format and an HTTP scrape surface.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TicksProcessed counts ticks handled by either driver, labeled by mode.
	TicksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coreengine_ticks_processed_total",
			Help: "Ticks processed by the state machine, by execution mode.",
		},
		[]string{"mode"}, // "backtest" | "live"
	)

	// SignalsGenerated counts proposals returned by user signal generators.
	SignalsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coreengine_signals_generated_total",
			Help: "Signal proposals returned by strategy callbacks.",
		},
		[]string{"strategy", "symbol"},
	)

	// SignalsRejected counts proposals rejected, labeled by the rejecting
	// stage (validator|risk) and the reason string.
	SignalsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coreengine_signals_rejected_total",
			Help: "Signal proposals rejected, labeled by stage and reason.",
		},
		[]string{"stage", "reason"},
	)

	// SignalsClosed counts closed signals labeled by close reason.
	SignalsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coreengine_signals_closed_total",
			Help: "Signals closed, labeled by close reason.",
		},
		[]string{"strategy", "symbol", "reason"},
	)

	// SignalsCancelled counts cancelled scheduled signals labeled by reason.
	SignalsCancelled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coreengine_signals_cancelled_total",
			Help: "Scheduled signals cancelled, labeled by reason.",
		},
		[]string{"strategy", "symbol", "reason"},
	)

	// TickLatency observes wall-clock duration of a single tick call.
	TickLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coreengine_tick_latency_seconds",
			Help:    "Duration of a single state-machine tick.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	// RealizedPnLPercent observes the PnL percent of every closed signal.
	RealizedPnLPercent = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coreengine_realized_pnl_percent",
			Help:    "Realized PnL percent distribution of closed signals.",
			Buckets: []float64{-10, -5, -2, -1, 0, 1, 2, 5, 10, 20},
		},
		[]string{"strategy", "symbol"},
	)
)

// Handler returns the HTTP handler serving the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server serves /metrics on its own port so a backtest or live binary's
// primary goroutine never competes with scraping.
type Server struct {
	srv *http.Server
}

// NewServer builds a metrics Server bound to addr (e.g. ":9090"). It does
// not start listening until Start is called.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return &Server{srv: &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}}
}

// Start runs the server in its own goroutine; a bind failure is reported
// through errCh rather than returned, since the caller has already moved on
// to its own run loop by the time ListenAndServe would fail.
func (s *Server) Start(errCh chan<- error) {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
