// Command livebot runs the demo EMA-crossover-with-RSI-filter signal
// generator against a websocket candle feed through the Live Driver.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/lumenquant/coreengine/internal/config"
	"github.com/lumenquant/coreengine/internal/demosignal"
	"github.com/lumenquant/coreengine/internal/engine"
	"github.com/lumenquant/coreengine/internal/eventbus"
	"github.com/lumenquant/coreengine/internal/exchange"
	"github.com/lumenquant/coreengine/internal/logger"
	"github.com/lumenquant/coreengine/internal/metrics"
	"github.com/lumenquant/coreengine/internal/persistence"
)

var (
	metricsAddr   = flag.String("metrics-addr", ":9090", "address to serve Prometheus metrics on")
	symbol        = flag.String("symbol", "BTC-USD", "trading symbol")
	wsURL         = flag.String("ws-url", "wss://example.invalid/ws", "websocket candle feed URL")
	persistDir    = flag.String("persist-dir", "./livebot-data", "directory for signal/schedule/partial/risk state")
	fastPeriod    = flag.Int("fast-period", 12, "fast EMA period")
	slowPeriod    = flag.Int("slow-period", 26, "slow EMA period")
	rsiPeriod     = flag.Int("rsi-period", 14, "RSI period")
	takeProfitPct = flag.Float64("take-profit-pct", 1.5, "take profit distance percent")
	stopLossPct   = flag.Float64("stop-loss-pct", 1.0, "stop loss distance percent")
)

func main() {
	godotenv.Load()
	flag.Parse()

	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	lg := logger.Component("livebot")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	metricsErrCh := make(chan error, 1)
	metricsSrv := metrics.NewServer(*metricsAddr)
	metricsSrv.Start(metricsErrCh)
	go func() {
		if err := <-metricsErrCh; err != nil {
			lg.Error().Err(err).Msg("metrics server failed")
		}
	}()
	defer metricsSrv.Shutdown(context.Background())

	feed := exchange.NewWSFeed("live", *wsURL)
	xchg := feed.Exchange()

	store := persistence.New(*persistDir)
	bus := eventbus.New(0)

	sub := bus.Subscribe(64)
	go logEvents(lg, sub.Ch)

	e := engine.New(cfg, store, bus)
	e.RegisterExchange("live", xchg)
	e.RegisterRisk("default")

	gen := demosignal.New(xchg, *symbol, demosignal.Params{
		CandleLookback:  60,
		FastPeriod:      *fastPeriod,
		SlowPeriod:      *slowPeriod,
		RSIPeriod:       *rsiPeriod,
		RSIOverbought:   decimal.NewFromInt(70),
		RSIOversold:     decimal.NewFromInt(30),
		TakeProfitPct:   decimal.NewFromFloat(*takeProfitPct),
		StopLossPct:     decimal.NewFromFloat(*stopLossPct),
		LifetimeMinutes: 120,
	})
	e.RegisterStrategy("ema-rsi", gen.GetSignal)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := feed.Run(ctx); err != nil && ctx.Err() == nil {
			lg.Error().Err(err).Msg("websocket feed disconnected")
		}
	}()

	handle, err := e.LiveBackground(ctx, "ema-rsi", "live", "default", *symbol)
	if err != nil {
		return fmt.Errorf("start live lane: %w", err)
	}

	<-sigCh
	lg.Info().Msg("shutdown requested, stopping at the next safe point")
	handle.Stop()

	var runErr error
	select {
	case runErr = <-handle.Done():
	case <-time.After(2 * time.Minute):
		cancel()
		runErr = <-handle.Done()
	}

	if runErr != nil && runErr != context.Canceled {
		return fmt.Errorf("live run: %w", runErr)
	}
	return nil
}

func logEvents(lg *logger.Logger, ch <-chan eventbus.Event) {
	for ev := range ch {
		switch ev.Kind {
		case eventbus.KindSignal:
			lg.Info().Str("symbol", ev.Symbol).Interface("payload", ev.Payload).Msg("signal")
		case eventbus.KindError:
			lg.Warn().Str("symbol", ev.Symbol).Interface("payload", ev.Payload).Msg("error")
		case eventbus.KindPerformance:
			lg.Debug().Str("symbol", ev.Symbol).Interface("payload", ev.Payload).Msg("performance")
		case eventbus.KindDoneLive:
			lg.Info().Msg("done_live")
		}
	}
}
