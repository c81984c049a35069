package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/lumenquant/coreengine/internal/eventbus"
	"github.com/lumenquant/coreengine/internal/exchange"
	"github.com/lumenquant/coreengine/internal/logger"
	"github.com/lumenquant/coreengine/internal/signal"
	"github.com/lumenquant/coreengine/internal/strategy"
)

// Driver replays a Frame's timeline through a strategy.Machine, switching to
// fast-forward once a position opens so monitoring doesn't cost one tick per
// candle. Grounded on a callback-setter engine loop (SetOnTrade-style hooks
// driving a plain for-loop over historical data), generalized to call the
// shared state machine instead of embedding its own position bookkeeping.
type Driver struct {
	machine      *strategy.Machine
	exchange     exchange.Exchange
	frame        Frame
	bus          *eventbus.Bus
	strategyName string
	exchangeName string
	symbol       string
	log          *logger.Logger

	onClosed func(strategy.TickOutcome)
}

// NewDriver constructs a backtest Driver for one (strategy, symbol) lane.
func NewDriver(machine *strategy.Machine, x exchange.Exchange, frame Frame, bus *eventbus.Bus, strategyName, exchangeName, symbol string) *Driver {
	return &Driver{
		machine:      machine,
		exchange:     x,
		frame:        frame,
		bus:          bus,
		strategyName: strategyName,
		exchangeName: exchangeName,
		symbol:       symbol,
		log:          logger.Component("backtest").WithField("strategy", strategyName).WithField("symbol", symbol),
	}
}

// SetOnClosed registers the callback invoked for every Closed outcome the
// run produces, in chronological order.
func (d *Driver) SetOnClosed(cb func(strategy.TickOutcome)) { d.onClosed = cb }

// Run iterates the frame's timeline to exhaustion. Per-tick errors are
// logged, published as error events, and do not abort the run.
func (d *Driver) Run(ctx context.Context) error {
	timestamps := d.frame.Timestamps()
	total := len(timestamps)

	for i := 0; i < len(timestamps); i++ {
		now := timestamps[i]
		ectx := signal.ExecutionContext{
			Symbol:       d.symbol,
			Now:          now,
			Backtest:     true,
			StrategyName: d.strategyName,
			ExchangeName: d.exchangeName,
			FrameName:    d.frame.Name,
		}

		outcome, err := d.machine.Tick(ctx, ectx)
		if err != nil {
			d.log.Error().Err(err).Time("now", now).Msg("tick failed")
			d.publish(eventbus.KindError, "", err.Error())
			d.publishProgress(i+1, total)
			continue
		}

		switch outcome.Kind {
		case strategy.OutcomeOpened:
			d.fastForward(ctx, &i, timestamps, outcome)
		case strategy.OutcomeClosed:
			d.yield(outcome)
		}

		d.publishProgress(i+1, total)
	}

	d.publish(eventbus.KindDoneBacktest, "", nil)
	return nil
}

// fastForward fetches the candle window covering a freshly-opened signal's
// lifetime and replays monitoring against it in one call, advancing the
// driver's cursor past the resulting close timestamp so the outer loop
// never re-visits timestamps already covered by fast-forward.
func (d *Driver) fastForward(ctx context.Context, i *int, timestamps []time.Time, opened strategy.TickOutcome) {
	limit := opened.Signal.MinuteEstimatedTime
	if limit < 1 {
		limit = 1
	}

	candles, err := d.exchange.GetNextCandles(ctx, d.symbol, exchange.OneMinute, limit, timestamps[*i], true)
	if err != nil {
		d.log.Error().Err(err).Msg("fast-forward candle fetch failed")
		d.publish(eventbus.KindError, opened.Signal.ID, err.Error())
		return
	}

	ffOutcome, err := d.machine.BacktestFastForward(candles)
	if err != nil {
		d.log.Error().Err(err).Msg("fast-forward replay failed")
		d.publish(eventbus.KindError, opened.Signal.ID, err.Error())
		return
	}

	if ffOutcome.Kind != strategy.OutcomeClosed {
		// Didn't resolve within the fetched window; the next ordinary tick
		// falls back to tick-by-tick monitoring via tickPending.
		return
	}

	d.yield(ffOutcome)

	for *i+1 < len(timestamps) && !timestamps[*i+1].After(ffOutcome.Timestamp) {
		*i++
	}
}

func (d *Driver) yield(outcome strategy.TickOutcome) {
	if d.onClosed != nil {
		d.onClosed(outcome)
	}
}

func (d *Driver) publish(kind eventbus.Kind, sigID string, payload any) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event{
		Kind:         kind,
		StrategyName: d.strategyName,
		ExchangeName: d.exchangeName,
		Symbol:       d.symbol,
		SignalID:     sigID,
		Payload:      payload,
	})
}

func (d *Driver) publishProgress(processed, total int) {
	d.publish(eventbus.KindWalkerProgress, "", fmt.Sprintf("%d/%d", processed, total))
}
