// Package engine is the composition root: it holds the registries for
// exchanges, strategies, frames, and risk groups, and exposes the four
// execution entry points (backtest_run, backtest_background, live_run,
// live_background) as methods. No internal package imports engine (only
// the cmd binaries do); it only imports the ports it wires together.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lumenquant/coreengine/internal/backtest"
	"github.com/lumenquant/coreengine/internal/config"
	"github.com/lumenquant/coreengine/internal/eventbus"
	"github.com/lumenquant/coreengine/internal/exchange"
	"github.com/lumenquant/coreengine/internal/live"
	"github.com/lumenquant/coreengine/internal/logger"
	"github.com/lumenquant/coreengine/internal/persistence"
	"github.com/lumenquant/coreengine/internal/risk"
	"github.com/lumenquant/coreengine/internal/strategy"
)

// Engine is the process-wide registration and execution surface. One
// Engine typically backs one process; cmd/backtestbot and cmd/livebot
// each construct exactly one.
//
// Persistence is mode-scoped: live lanes read and write through store,
// while backtest lanes always use an in-memory no-op store, regardless of
// what store was passed to New. A backtest run must leave no trace on disk.
type Engine struct {
	cfg           *config.Config
	store         *persistence.Store
	backtestStore *persistence.Store
	bus           *eventbus.Bus
	log           *logger.Logger

	mu               sync.Mutex
	exchanges        map[string]exchange.Exchange
	strategies       map[string]strategy.GetSignalFunc
	frames           map[string]backtest.Frame
	riskMgrs         map[string]*risk.Manager
	riskMgrsBacktest map[string]*risk.Manager
}

// New constructs an Engine. cfg, store, and bus are shared across every
// live lane the engine later runs; backtest lanes never touch store.
func New(cfg *config.Config, store *persistence.Store, bus *eventbus.Bus) *Engine {
	return &Engine{
		cfg:              cfg,
		store:            store,
		backtestStore:    persistence.NewNoop(),
		bus:              bus,
		log:              logger.Component("engine"),
		exchanges:        make(map[string]exchange.Exchange),
		strategies:       make(map[string]strategy.GetSignalFunc),
		frames:           make(map[string]backtest.Frame),
		riskMgrs:         make(map[string]*risk.Manager),
		riskMgrsBacktest: make(map[string]*risk.Manager),
	}
}

// Bus returns the shared event bus, for callers that want to subscribe
// before running a lane.
func (e *Engine) Bus() *eventbus.Bus { return e.bus }

// RegisterExchange makes x available to the Backtest*/Live* entry points
// under name.
func (e *Engine) RegisterExchange(name string, x exchange.Exchange) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exchanges[name] = x
}

// RegisterStrategy makes fn available to the Backtest*/Live* entry points
// under name.
func (e *Engine) RegisterStrategy(name string, fn strategy.GetSignalFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies[name] = fn
}

// RegisterFrame makes f available to BacktestRun/BacktestBackground calls
// under name.
func (e *Engine) RegisterFrame(name string, f backtest.Frame) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frames[name] = f
}

// RegisterRisk creates a risk group named name from the given validators,
// run in declaration order on every proposal the group gates. Two managers
// are built, one per store: a live lane persists its risk slot through
// store, a backtest lane persists through an in-memory no-op store so
// repeated backtests never leave state behind.
func (e *Engine) RegisterRisk(name string, validators ...risk.Validator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.riskMgrs[name] = risk.NewManager(name, validators, e.store, e.bus)
	e.riskMgrsBacktest[name] = risk.NewManager(name, validators, e.backtestStore, e.bus)
}

func (e *Engine) lookup(strategyName, exchangeName, riskName string, backtest bool) (strategy.GetSignalFunc, exchange.Exchange, *risk.Manager, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn, ok := e.strategies[strategyName]
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategyName)
	}
	x, ok := e.exchanges[exchangeName]
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: %q", ErrUnknownExchange, exchangeName)
	}
	riskMgrs := e.riskMgrs
	if backtest {
		riskMgrs = e.riskMgrsBacktest
	}
	riskMgr, ok := riskMgrs[riskName]
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: %q", ErrUnknownRisk, riskName)
	}
	return fn, x, riskMgr, nil
}

// newMachine builds a lane's Machine. interval is the generation cadence
// (how often tickGenerate is allowed to re-invoke GetSignal): a backtest
// lane uses its frame's tick interval, a live lane uses live.TickTTL.
// backtest selects the in-memory no-op store/risk manager pair so a
// backtest lane never reads or writes real persisted state.
func (e *Engine) newMachine(strategyName, exchangeName, riskName, symbol string, interval time.Duration, backtest bool) (*strategy.Machine, error) {
	fn, x, riskMgr, err := e.lookup(strategyName, exchangeName, riskName, backtest)
	if err != nil {
		return nil, err
	}
	store := e.store
	mode := "live"
	if backtest {
		store = e.backtestStore
		mode = "backtest"
	}
	return strategy.New(strategy.Deps{
		StrategyName: strategyName,
		ExchangeName: exchangeName,
		Symbol:       symbol,
		RiskName:     riskName,
		Mode:         mode,
		Exchange:     x,
		Store:        store,
		RiskMgr:      riskMgr,
		Bus:          e.bus,
		Config:       e.cfg,
		GetSignal:    fn,
		Interval:     interval,
	}), nil
}

// BacktestRun runs a (strategy, exchange, frame, risk) lane to exhaustion
// and blocks until it finishes.
func (e *Engine) BacktestRun(ctx context.Context, strategyName, exchangeName, frameName, riskName, symbol string) error {
	e.mu.Lock()
	frame, ok := e.frames[frameName]
	xchg := e.exchanges[exchangeName]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFrame, frameName)
	}

	machine, err := e.newMachine(strategyName, exchangeName, riskName, symbol, frame.Interval, true)
	if err != nil {
		return err
	}

	driver := backtest.NewDriver(machine, xchg, frame, e.bus, strategyName, exchangeName, symbol)
	return driver.Run(ctx)
}

// BacktestBackground launches BacktestRun in its own goroutine and
// returns a channel that receives its terminal error (nil on success).
func (e *Engine) BacktestBackground(ctx context.Context, strategyName, exchangeName, frameName, riskName, symbol string) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- e.BacktestRun(ctx, strategyName, exchangeName, frameName, riskName, symbol)
	}()
	return done
}

// LiveHandle lets a caller stop a background live lane.
type LiveHandle struct {
	driver *live.Driver
	done   <-chan error
}

// Stop requests a graceful shutdown; read Done to learn when it completes.
func (h *LiveHandle) Stop() { h.driver.Stop() }

// Done returns the channel the lane's terminal error arrives on. It fires
// exactly once; reading it more than once blocks forever.
func (h *LiveHandle) Done() <-chan error { return h.done }

// LiveRun runs a (strategy, exchange, risk) lane against wall-clock time
// until ctx is cancelled, and blocks until it exits. It returns no handle,
// so a graceful Stop is only available through LiveBackground.
func (e *Engine) LiveRun(ctx context.Context, strategyName, exchangeName, riskName, symbol string) error {
	machine, err := e.newMachine(strategyName, exchangeName, riskName, symbol, live.TickTTL, false)
	if err != nil {
		return err
	}
	driver := live.NewDriver(machine, e.bus, strategyName, exchangeName, symbol)
	return driver.Run(ctx)
}

// LiveBackground launches LiveRun in its own goroutine and returns a
// handle for graceful shutdown.
func (e *Engine) LiveBackground(ctx context.Context, strategyName, exchangeName, riskName, symbol string) (*LiveHandle, error) {
	machine, err := e.newMachine(strategyName, exchangeName, riskName, symbol, live.TickTTL, false)
	if err != nil {
		return nil, err
	}
	driver := live.NewDriver(machine, e.bus, strategyName, exchangeName, symbol)

	done := make(chan error, 1)
	go func() { done <- driver.Run(ctx) }()

	return &LiveHandle{driver: driver, done: done}, nil
}
