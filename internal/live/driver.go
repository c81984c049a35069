// Package live implements the real-time poll loop that drives a
// strategy.Machine against wall-clock time, the live counterpart to
// internal/backtest's fast-forward replay.
package live

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/lumenquant/coreengine/internal/eventbus"
	"github.com/lumenquant/coreengine/internal/logger"
	"github.com/lumenquant/coreengine/internal/signal"
	"github.com/lumenquant/coreengine/internal/strategy"
)

// TickTTL is the fixed interval between live ticks.
const TickTTL = 60_001 * time.Millisecond

// Driver polls a strategy.Machine once per TickTTL until cancelled or
// Stop is called. Grounded on a callback-driven engine loop, generalized
// to wall-clock polling with cooperative shutdown instead of replaying a
// fixed candle range.
type Driver struct {
	machine      *strategy.Machine
	bus          *eventbus.Bus
	strategyName string
	exchangeName string
	symbol       string
	log          *logger.Logger

	stopped int32
	onEvent func(strategy.TickOutcome)
}

// NewDriver constructs a live Driver for one (strategy, symbol) lane.
func NewDriver(machine *strategy.Machine, bus *eventbus.Bus, strategyName, exchangeName, symbol string) *Driver {
	return &Driver{
		machine:      machine,
		bus:          bus,
		strategyName: strategyName,
		exchangeName: exchangeName,
		symbol:       symbol,
		log:          logger.Component("live").WithField("strategy", strategyName).WithField("symbol", symbol),
	}
}

// SetOnEvent registers the callback invoked for every Opened, Closed, or
// Cancelled outcome, in chronological order. Idle/Active/Scheduled/Waiting
// outcomes are not surfaced; they carry nothing a consumer needs to act on.
func (d *Driver) SetOnEvent(cb func(strategy.TickOutcome)) { d.onEvent = cb }

// Stop requests a graceful shutdown: the run exits at the next Idle tick
// (if currently flat) or at the next Closed tick (if a position is open),
// never mid-position.
func (d *Driver) Stop() { atomic.StoreInt32(&d.stopped, 1) }

func (d *Driver) isStopped() bool { return atomic.LoadInt32(&d.stopped) == 1 }

// Run polls until the context is cancelled or a graceful Stop completes.
func (d *Driver) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		ectx := signal.ExecutionContext{
			Symbol:       d.symbol,
			Now:          start,
			Backtest:     false,
			StrategyName: d.strategyName,
			ExchangeName: d.exchangeName,
			FrameName:    "live",
		}

		outcome, err := d.machine.Tick(ctx, ectx)
		if err != nil {
			d.log.Error().Err(err).Msg("tick failed")
			d.publish(eventbus.KindError, "", err.Error())
			if d.sleep(ctx) != nil {
				return ctx.Err()
			}
			continue
		}

		d.publishPerformance(start, time.Now())

		switch outcome.Kind {
		case strategy.OutcomeOpened, strategy.OutcomeClosed, strategy.OutcomeCancelled:
			d.yield(outcome)
			if outcome.Kind == strategy.OutcomeClosed && d.isStopped() {
				d.publish(eventbus.KindDoneLive, "", nil)
				return nil
			}
		default:
			if outcome.Kind == strategy.OutcomeIdle && d.isStopped() {
				d.publish(eventbus.KindDoneLive, "", nil)
				return nil
			}
		}

		if d.sleep(ctx) != nil {
			return ctx.Err()
		}
	}
}

func (d *Driver) sleep(ctx context.Context) error {
	timer := time.NewTimer(TickTTL)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (d *Driver) yield(outcome strategy.TickOutcome) {
	if d.onEvent != nil {
		d.onEvent(outcome)
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

func (d *Driver) publishPerformance(tickStart, tickEnd time.Time) {
	d.publish(eventbus.KindPerformance, "", fmt.Sprintf("tick_start=%s tick_end=%s metric_type=live_tick", tickStart.Format(time.RFC3339Nano), tickEnd.Format(time.RFC3339Nano)))
}
