// Command backtestbot runs the demo EMA-crossover-with-RSI-filter signal
// generator through the Backtest Driver over a synthetic candle series and
// logs every signal event.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/lumenquant/coreengine/internal/backtest"
	"github.com/lumenquant/coreengine/internal/candle"
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
	numCandles    = flag.Int("candles", 2000, "number of synthetic one-minute candles to generate")
	seed          = flag.Int64("seed", 1, "random seed for the synthetic price walk")
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
	lg := logger.Component("backtestbot")

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

	series := generateSyntheticSeries(*numCandles, *seed)
	lg.Info().Int("candles", len(series)).Str("symbol", *symbol).Msg("generated synthetic candle series")

	mockExchange := exchange.NewMock("synthetic", true)
	mockExchange.SetSeries(*symbol, series)

	// A backtest lane is in-memory only; engine.Engine already routes
	// BacktestRun through a no-op store regardless of what's passed here,
	// but this binary never runs a live lane so it has no real store to share.
	store := persistence.NewNoop()
	bus := eventbus.New(0)

	sub := bus.Subscribe(64)
	go logEvents(lg, sub.Ch)

	e := engine.New(cfg, store, bus)
	e.RegisterExchange("synthetic", mockExchange)
	e.RegisterRisk("default")

	gen := demosignal.New(mockExchange, *symbol, demosignal.Params{
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

	e.RegisterFrame("full-range", backtest.Frame{
		Name:      "full-range",
		Interval:  time.Minute,
		StartDate: series[0].Timestamp,
		EndDate:   series[len(series)-1].Timestamp,
	})

	ctx := context.Background()
	start := time.Now()
	if err := e.BacktestRun(ctx, "ema-rsi", "synthetic", "full-range", "default", *symbol); err != nil {
		return fmt.Errorf("backtest run: %w", err)
	}
	lg.Info().Dur("elapsed", time.Since(start)).Msg("backtest finished")

	return nil
}

func logEvents(lg *logger.Logger, ch <-chan eventbus.Event) {
	for ev := range ch {
		switch ev.Kind {
		case eventbus.KindSignal:
			lg.Info().Str("symbol", ev.Symbol).Interface("payload", ev.Payload).Msg("signal")
		case eventbus.KindError:
			lg.Warn().Str("symbol", ev.Symbol).Interface("payload", ev.Payload).Msg("error")
		case eventbus.KindDoneBacktest:
			lg.Info().Msg("done_backtest")
		}
	}
}

// generateSyntheticSeries produces a one-minute random-walk candle series
// for demo purposes, since the engine's contract is the Exchange port, not
// a particular data source.
func generateSyntheticSeries(n int, seed int64) []candle.Candle {
	rng := rand.New(rand.NewSource(seed))
	base := time.Now().Add(-time.Duration(n) * time.Minute).Truncate(time.Minute)

	price := 30000.0
	out := make([]candle.Candle, n)
	for i := 0; i < n; i++ {
		drift := (rng.Float64() - 0.5) * 50
		price += drift
		if price < 1 {
			price = 1
		}
		high := price + rng.Float64()*20
		low := price - rng.Float64()*20
		if low < 0 {
			low = 0
		}
		out[i] = candle.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      decimal.NewFromFloat(price),
			High:      decimal.NewFromFloat(high),
			Low:       decimal.NewFromFloat(low),
			Close:     decimal.NewFromFloat(price),
			Volume:    decimal.NewFromFloat(1 + rng.Float64()*10),
		}
	}
	return out
}
