// Package strategy implements the state machine at the heart of the
// engine. One Machine owns the pending/scheduled signal, the
// partial-milestone sets, and the generation throttle for a single
// (strategy_name, symbol) pair. It is built around an explicit
// single-tick contract and two activation paths: immediate market entry
// and scheduled limit entry.
package strategy

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lumenquant/coreengine/internal/candle"
	"github.com/lumenquant/coreengine/internal/config"
	"github.com/lumenquant/coreengine/internal/eventbus"
	"github.com/lumenquant/coreengine/internal/exchange"
	"github.com/lumenquant/coreengine/internal/logger"
	"github.com/lumenquant/coreengine/internal/metrics"
	"github.com/lumenquant/coreengine/internal/persistence"
	"github.com/lumenquant/coreengine/internal/risk"
	"github.com/lumenquant/coreengine/internal/signal"
	"github.com/lumenquant/coreengine/internal/validator"
	"github.com/lumenquant/coreengine/pkg/utils"
)

// GetSignalFunc is the user-supplied signal generator invoked whenever the
// machine is idle (no pending, no scheduled) and its interval has elapsed.
// Returning (nil, nil) means "no signal this tick".
type GetSignalFunc func(ctx signal.ExecutionContext) (*signal.Proposal, error)

// OutcomeKind tags the result of a single tick.
type OutcomeKind string

const (
	OutcomeIdle       OutcomeKind = "idle"
	OutcomeScheduled  OutcomeKind = "scheduled"
	OutcomeWaiting    OutcomeKind = "waiting"
	OutcomeOpened     OutcomeKind = "opened"
	OutcomeActive     OutcomeKind = "active"
	OutcomeClosed     OutcomeKind = "closed"
	OutcomeCancelled  OutcomeKind = "cancelled"
)

// TickOutcome is the tagged union tick() and backtest_fastforward() return.
type TickOutcome struct {
	Kind         OutcomeKind
	Signal       *signal.Signal
	CurrentPrice decimal.Decimal
	CloseReason  signal.CloseReason
	PriceClose   decimal.Decimal
	PnL          *signal.PnL

	// Timestamp is the candle time a BacktestFastForward close occurred at;
	// it is the zero time for every other outcome, since tick-by-tick paths
	// use the wall/ambient now the caller already has.
	Timestamp time.Time
}

// Deps bundles every port the machine needs, injected at construction per
// the composition-root pattern (no DI container, no ambient globals).
type Deps struct {
	StrategyName string
	ExchangeName string
	Symbol       string
	RiskName     string

	// Mode labels emitted metrics ("live" or "backtest"); it has no effect
	// on behavior.
	Mode string

	Exchange  exchange.Exchange
	Store     *persistence.Store
	RiskMgr   *risk.Manager
	Bus       *eventbus.Bus
	Config    *config.Config
	GetSignal GetSignalFunc
	Interval  time.Duration
}

// milestones tracks already-fired profit/loss percent levels, plus whether
// breakeven has already moved the stop loss, for one signal id.
type milestones struct {
	ProfitLevels map[int]bool
	LossLevels   map[int]bool
	Breakeven    bool
}

func newMilestones() *milestones {
	return &milestones{ProfitLevels: make(map[int]bool), LossLevels: make(map[int]bool)}
}

// Machine owns the lifecycle for exactly one (strategy_name, symbol) pair.
// Its public methods are not safe for concurrent reentrant invocation — a
// single-writer-per-lane model relies on a driver never calling Tick again
// before the previous call returns.
type Machine struct {
	deps Deps
	log  *logger.Logger

	pending   *signal.Signal
	scheduled *signal.Signal
	stopped   bool

	lastSignalTS *time.Time
	partial      map[string]*milestones

	initialized int32 // atomic bool; guards the once-semantics of WaitForInit
}

// New constructs a Machine. Callers must call WaitForInit (directly, or
// implicitly via the first tick) before any mutation.
func New(deps Deps) *Machine {
	return &Machine{
		deps:    deps,
		log:     logger.Component("strategy").WithField("strategy", deps.StrategyName).WithField("symbol", deps.Symbol),
		partial: make(map[string]*milestones),
	}
}

// signalEnvelope is the on-disk shape of the signal slot.
type signalEnvelope struct {
	SignalRow *signal.Signal `json:"signalRow"`
}

// scheduleEnvelope is the on-disk shape of the schedule slot.
type scheduleEnvelope struct {
	ScheduledRow *signal.Signal `json:"scheduledRow"`
}

// partialLevels is the on-disk shape of one signal's fired-milestone sets.
type partialLevels struct {
	ProfitLevels []int `json:"profitLevels"`
	LossLevels   []int `json:"lossLevels"`
	Breakeven    bool  `json:"breakeven"`
}

type partialEnvelope struct {
	Fired map[string]partialLevels `json:"fired"`
}

// WaitForInit hydrates in-memory state from persistence exactly once. A
// second call is a no-op, so recovery after a restart never replays a
// mutation twice.
func (m *Machine) WaitForInit() error {
	if !atomic.CompareAndSwapInt32(&m.initialized, 0, 1) {
		return nil
	}

	key := persistence.SlotKey(m.deps.StrategyName, m.deps.Symbol)

	var sigEnv signalEnvelope
	if _, err := m.deps.Store.ReadSlot(persistence.SubdirSignal, key, &sigEnv); err != nil && err != persistence.ErrCorrupt {
		return fmt.Errorf("strategy: hydrate signal slot: %w", err)
	}
	m.pending = sigEnv.SignalRow

	var schedEnv scheduleEnvelope
	if _, err := m.deps.Store.ReadSlot(persistence.SubdirSchedule, key, &schedEnv); err != nil && err != persistence.ErrCorrupt {
		return fmt.Errorf("strategy: hydrate schedule slot: %w", err)
	}
	m.scheduled = schedEnv.ScheduledRow

	var partEnv partialEnvelope
	if _, err := m.deps.Store.ReadSlot(persistence.SubdirPartial, key, &partEnv); err != nil && err != persistence.ErrCorrupt {
		return fmt.Errorf("strategy: hydrate partial slot: %w", err)
	}
	m.partial = make(map[string]*milestones)
	for id, lv := range partEnv.Fired {
		ms := newMilestones()
		for _, l := range lv.ProfitLevels {
			ms.ProfitLevels[l] = true
		}
		for _, l := range lv.LossLevels {
			ms.LossLevels[l] = true
		}
		ms.Breakeven = lv.Breakeven
		m.partial[id] = ms
	}

	m.log.Info().Bool("had_pending", m.pending != nil).Bool("had_scheduled", m.scheduled != nil).Msg("recovered strategy state")
	return nil
}

// Stop arranges for the machine to decline further signal generation; it
// takes effect cooperatively, at the next safe state rather than
// immediately.
func (m *Machine) Stop() { m.stopped = true }

// Stopped reports whether Stop has been called.
func (m *Machine) Stopped() bool { return m.stopped }

func (m *Machine) persistPending() error {
	key := persistence.SlotKey(m.deps.StrategyName, m.deps.Symbol)
	return m.deps.Store.WriteSlot(persistence.SubdirSignal, key, signalEnvelope{SignalRow: m.pending})
}

func (m *Machine) persistScheduled() error {
	key := persistence.SlotKey(m.deps.StrategyName, m.deps.Symbol)
	return m.deps.Store.WriteSlot(persistence.SubdirSchedule, key, scheduleEnvelope{ScheduledRow: m.scheduled})
}

func (m *Machine) persistPartial() error {
	key := persistence.SlotKey(m.deps.StrategyName, m.deps.Symbol)
	fired := make(map[string]partialLevels, len(m.partial))
	for id, ms := range m.partial {
		fired[id] = partialLevels{ProfitLevels: sortedKeys(ms.ProfitLevels), LossLevels: sortedKeys(ms.LossLevels), Breakeven: ms.Breakeven}
	}
	return m.deps.Store.WriteSlot(persistence.SubdirPartial, key, partialEnvelope{Fired: fired})
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func (m *Machine) publish(kind eventbus.Kind, sigID string, payload any) {
	if m.deps.Bus == nil {
		return
	}
	m.deps.Bus.Publish(eventbus.Event{
		Kind:         kind,
		StrategyName: m.deps.StrategyName,
		ExchangeName: m.deps.ExchangeName,
		Symbol:       m.deps.Symbol,
		SignalID:     sigID,
		Payload:      payload,
	})
}

// profitLossLevels are the milestone percentages tracked for a signal.
var profitLossLevels = []int{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

// Tick runs exactly one cycle of the state machine for ectx.Now. It is the
// single public entry point a Driver calls.
func (m *Machine) Tick(ctx context.Context, ectx signal.ExecutionContext) (TickOutcome, error) {
	start := time.Now()
	defer func() {
		metrics.TicksProcessed.WithLabelValues(m.deps.Mode).Inc()
		metrics.TickLatency.WithLabelValues(m.deps.Mode).Observe(time.Since(start).Seconds())
	}()

	if err := m.WaitForInit(); err != nil {
		return TickOutcome{}, err
	}

	if m.scheduled != nil {
		return m.tickScheduled(ctx, ectx)
	}

	if m.pending != nil {
		return m.tickPending(ctx, ectx)
	}

	if m.stopped {
		return TickOutcome{Kind: OutcomeIdle}, nil
	}

	return m.tickGenerate(ctx, ectx)
}

// tickScheduled runs the scheduled-activation check, with stop-loss
// dominance over activation: a candle whose range crosses both the stop
// loss and the entry price cancels rather than opens.
func (m *Machine) tickScheduled(ctx context.Context, ectx signal.ExecutionContext) (TickOutcome, error) {
	sched := m.scheduled

	elapsed := ectx.Now.Sub(sched.ScheduledAt)
	if elapsed > time.Duration(m.deps.Config.ScheduleAwaitMinutes)*time.Minute {
		return m.cancelScheduled(signal.ReasonTimeout)
	}

	limit := int(elapsed/time.Minute) + m.deps.Config.AvgPriceCandlesCount
	candles, err := m.deps.Exchange.GetCandles(ctx, m.deps.Symbol, exchange.OneMinute, limit, ectx.Now)
	if err != nil {
		m.publish(eventbus.KindError, sched.ID, err.Error())
		return TickOutcome{Kind: OutcomeWaiting}, nil
	}

	for _, c := range candles {
		if c.Timestamp.Before(sched.ScheduledAt) {
			continue
		}
		if outcome, done, err := m.evaluateScheduledCandle(c); done {
			return outcome, err
		}
	}

	return TickOutcome{Kind: OutcomeWaiting}, nil
}

// evaluateScheduledCandle applies one candle's high/low range against the
// scheduled signal's SL/open thresholds, in SL-dominant order.
func (m *Machine) evaluateScheduledCandle(c candle.Candle) (TickOutcome, bool, error) {
	sched := m.scheduled

	switch sched.Position {
	case signal.Long:
		if c.Low.LessThanOrEqual(sched.PriceStopLoss) {
			outcome, err := m.cancelScheduled(signal.ReasonPriceReject)
			return outcome, true, err
		}
		if c.Low.LessThanOrEqual(sched.PriceOpen) {
			outcome, err := m.promoteScheduled(c)
			return outcome, true, err
		}
	case signal.Short:
		if c.High.GreaterThanOrEqual(sched.PriceStopLoss) {
			outcome, err := m.cancelScheduled(signal.ReasonPriceReject)
			return outcome, true, err
		}
		if c.High.GreaterThanOrEqual(sched.PriceOpen) {
			outcome, err := m.promoteScheduled(c)
			return outcome, true, err
		}
	}
	return TickOutcome{}, false, nil
}

func (m *Machine) cancelScheduled(reason signal.CloseReason) (TickOutcome, error) {
	sched := m.scheduled
	m.scheduled = nil
	if err := m.persistScheduled(); err != nil {
		m.scheduled = sched
		return TickOutcome{}, err
	}

	metrics.SignalsCancelled.WithLabelValues(m.deps.StrategyName, m.deps.Symbol, string(reason)).Inc()
	m.publish(eventbus.KindScheduled, sched.ID, map[string]any{"cancelled": true, "reason": reason})
	return TickOutcome{Kind: OutcomeCancelled, Signal: sched, CloseReason: reason}, nil
}

func (m *Machine) promoteScheduled(c candle.Candle) (TickOutcome, error) {
	sched := m.scheduled
	promoted := *sched
	promoted.PendingAt = c.Timestamp

	prevScheduled, prevPending := m.scheduled, m.pending
	m.scheduled = nil
	m.pending = &promoted

	if err := m.persistScheduled(); err != nil {
		m.scheduled, m.pending = prevScheduled, prevPending
		return TickOutcome{}, err
	}
	if err := m.persistPending(); err != nil {
		m.scheduled, m.pending = prevScheduled, prevPending
		return TickOutcome{}, err
	}
	if err := m.deps.RiskMgr.AddSignal(m.deps.StrategyName, m.deps.Symbol, promoted.PendingAt); err != nil {
		m.scheduled, m.pending = prevScheduled, prevPending
		return TickOutcome{}, err
	}

	m.publish(eventbus.KindSignal, promoted.ID, promoted)
	return TickOutcome{Kind: OutcomeOpened, Signal: &promoted}, nil
}

// tickPending monitors an active pending signal, checking time-expiry,
// then breakeven, then take-profit and stop-loss, in that priority order.
func (m *Machine) tickPending(ctx context.Context, ectx signal.ExecutionContext) (TickOutcome, error) {
	sig := m.pending

	price, err := m.deps.Exchange.GetAveragePrice(ctx, m.deps.Symbol, m.deps.Config.AvgPriceCandlesCount, ectx.Now)
	if err != nil {
		m.publish(eventbus.KindError, sig.ID, err.Error())
		return TickOutcome{Kind: OutcomeActive, Signal: sig}, nil
	}

	if !ectx.Now.Before(sig.ExpiresAt()) {
		return m.closeSignal(*sig, signal.ReasonTimeExpired, price)
	}

	if err := m.maybeBreakeven(sig, price); err != nil {
		return TickOutcome{}, err
	}

	if reason, closeAt, closed := evaluateMonitoring(*sig, price, ectx.Now); closed {
		return m.closeSignal(*sig, reason, closeAt)
	}

	m.fireMilestones(*sig, price)
	return TickOutcome{Kind: OutcomeActive, Signal: sig, CurrentPrice: price}, nil
}

// maybeBreakeven moves sig's stop loss to its open price, at most once,
// once raw (pre-fee, pre-slippage) revenue crosses BreakevenThresholdPct.
// sig is mutated in place, so callers that hold the same pointer as
// m.pending see the new stop loss immediately.
func (m *Machine) maybeBreakeven(sig *signal.Signal, price decimal.Decimal) error {
	ms, ok := m.partial[sig.ID]
	if !ok {
		ms = newMilestones()
		m.partial[sig.ID] = ms
	}
	if ms.Breakeven {
		return nil
	}
	if rawRevenuePercent(*sig, price).LessThan(m.deps.Config.BreakevenThresholdPct) {
		return nil
	}

	prevSL := sig.PriceStopLoss
	sig.PriceStopLoss = sig.PriceOpen
	if err := m.persistPending(); err != nil {
		sig.PriceStopLoss = prevSL
		return err
	}

	ms.Breakeven = true
	if err := m.persistPartial(); err != nil {
		m.log.Warn().Err(err).Msg("failed to persist breakeven milestone")
	}

	m.publish(eventbus.KindBreakeven, sig.ID, map[string]any{"price_stop_loss": sig.PriceStopLoss})
	return nil
}

// evaluateMonitoring runs tickPending's priority-ordered close checks on a
// sampled price: time expiry, then take-profit, then stop-loss.
// BacktestFastForward applies the same order with its own expiry check and
// evaluateMonitoringCandle.
func evaluateMonitoring(sig signal.Signal, price decimal.Decimal, now time.Time) (signal.CloseReason, decimal.Decimal, bool) {
	if !now.Before(sig.ExpiresAt()) {
		return signal.ReasonTimeExpired, price, true
	}

	switch sig.Position {
	case signal.Long:
		if price.GreaterThanOrEqual(sig.PriceTakeProfit) {
			return signal.ReasonTakeProfit, price, true
		}
		if price.LessThanOrEqual(sig.PriceStopLoss) {
			return signal.ReasonStopLoss, price, true
		}
	case signal.Short:
		if price.LessThanOrEqual(sig.PriceTakeProfit) {
			return signal.ReasonTakeProfit, price, true
		}
		if price.GreaterThanOrEqual(sig.PriceStopLoss) {
			return signal.ReasonStopLoss, price, true
		}
	}
	return "", decimal.Zero, false
}

func (m *Machine) closeSignal(sig signal.Signal, reason signal.CloseReason, priceClose decimal.Decimal) (TickOutcome, error) {
	pnl := ComputePnL(sig, priceClose, m.deps.Config)

	prevPending := m.pending
	m.pending = nil
	if err := m.persistPending(); err != nil {
		m.pending = prevPending
		return TickOutcome{}, err
	}

	delete(m.partial, sig.ID)
	if err := m.persistPartial(); err != nil {
		m.log.Warn().Err(err).Msg("failed to clear partial milestones after close")
	}

	if err := m.deps.RiskMgr.RemoveSignal(m.deps.StrategyName, m.deps.Symbol); err != nil {
		m.log.Warn().Err(err).Msg("failed to remove active position after close")
	}

	metrics.SignalsClosed.WithLabelValues(m.deps.StrategyName, m.deps.Symbol, string(reason)).Inc()
	if f, ok := pnl.PnLPercent.Float64(); ok {
		metrics.RealizedPnLPercent.WithLabelValues(m.deps.StrategyName, m.deps.Symbol).Observe(f)
	}

	m.publish(eventbus.KindSignal, sig.ID, map[string]any{"closed": true, "reason": reason, "price_close": priceClose, "pnl": pnl})

	return TickOutcome{Kind: OutcomeClosed, Signal: &sig, CloseReason: reason, PriceClose: priceClose, PnL: &pnl}, nil
}

// ComputePnL applies slippage to both the open and close price, then
// deducts a round-trip fee from the raw percent move.
func ComputePnL(sig signal.Signal, priceClose decimal.Decimal, cfg *config.Config) signal.PnL {
	s := cfg.PercentSlippage.Div(decimal.NewFromInt(100))
	one := decimal.NewFromInt(1)

	var openEff, closeEff, raw decimal.Decimal
	switch sig.Position {
	case signal.Long:
		openEff = sig.PriceOpen.Mul(one.Add(s))
		closeEff = priceClose.Mul(one.Sub(s))
		raw = closeEff.Sub(openEff).Div(openEff).Mul(decimal.NewFromInt(100))
	case signal.Short:
		openEff = sig.PriceOpen.Mul(one.Sub(s))
		closeEff = priceClose.Mul(one.Add(s))
		raw = openEff.Sub(closeEff).Div(openEff).Mul(decimal.NewFromInt(100))
	}

	pnlPercent := utils.RoundDecimal(raw.Sub(decimal.NewFromInt(2).Mul(cfg.PercentFee)), 8)

	return signal.PnL{PnLPercent: pnlPercent, PriceOpen: sig.PriceOpen, PriceClose: priceClose}
}

// fireMilestones evaluates newly-crossed profit/loss levels from the raw
// (pre-fee) revenue and emits+persists each level at most once.
func (m *Machine) fireMilestones(sig signal.Signal, currentPrice decimal.Decimal) {
	r := rawRevenuePercent(sig, currentPrice)

	ms, ok := m.partial[sig.ID]
	if !ok {
		ms = newMilestones()
		m.partial[sig.ID] = ms
	}

	fired := false
	for _, level := range profitLossLevels {
		if r.GreaterThanOrEqual(decimal.NewFromInt(int64(level))) && !ms.ProfitLevels[level] {
			ms.ProfitLevels[level] = true
			m.publish(eventbus.KindPartialProfit, sig.ID, map[string]any{"level": level})
			fired = true
		}
		if r.IsNegative() && utils.AbsDecimal(r).GreaterThanOrEqual(decimal.NewFromInt(int64(level))) && !ms.LossLevels[level] {
			ms.LossLevels[level] = true
			m.publish(eventbus.KindPartialLoss, sig.ID, map[string]any{"level": level})
			fired = true
		}
	}

	if fired {
		if err := m.persistPartial(); err != nil {
			m.log.Warn().Err(err).Msg("failed to persist partial milestones")
		}
	}
}

// rawRevenuePercent is the unrounded, pre-fee percent move used for
// milestone evaluation (not the final PnL, which also applies slippage).
func rawRevenuePercent(sig signal.Signal, price decimal.Decimal) decimal.Decimal {
	if sig.PriceOpen.IsZero() {
		return decimal.Zero
	}
	switch sig.Position {
	case signal.Long:
		return price.Sub(sig.PriceOpen).Div(sig.PriceOpen).Mul(decimal.NewFromInt(100))
	case signal.Short:
		return sig.PriceOpen.Sub(price).Div(sig.PriceOpen).Mul(decimal.NewFromInt(100))
	}
	return decimal.Zero
}

// tickGenerate invokes the user signal generator, validates the result,
// runs it past the risk gate, and promotes it to scheduled or pending.
func (m *Machine) tickGenerate(ctx context.Context, ectx signal.ExecutionContext) (TickOutcome, error) {
	if m.lastSignalTS != nil && ectx.Now.Sub(*m.lastSignalTS) < m.deps.Interval {
		return TickOutcome{Kind: OutcomeIdle}, nil
	}

	proposal, err := m.invokeGetSignal(ectx)
	if err != nil {
		m.publish(eventbus.KindError, "", err.Error())
		return TickOutcome{Kind: OutcomeIdle}, nil
	}
	if proposal == nil {
		now := ectx.Now
		m.lastSignalTS = &now
		return TickOutcome{Kind: OutcomeIdle}, nil
	}
	metrics.SignalsGenerated.WithLabelValues(m.deps.StrategyName, m.deps.Symbol).Inc()

	price, err := m.deps.Exchange.GetAveragePrice(ctx, m.deps.Symbol, m.deps.Config.AvgPriceCandlesCount, ectx.Now)
	if err != nil {
		m.publish(eventbus.KindError, "", err.Error())
		return TickOutcome{Kind: OutcomeIdle}, nil
	}

	bands := validator.Bands{
		MinTakeProfitDistancePct: m.deps.Config.MinTakeProfitDistancePct,
		MinStopLossDistancePct:   m.deps.Config.MinStopLossDistancePct,
		MaxStopLossDistancePct:   m.deps.Config.MaxStopLossDistancePct,
		MaxSignalLifetimeMinutes: m.deps.Config.MaxSignalLifetimeMinutes,
	}
	verdict := validator.Validate(*proposal, price, bands)
	if !verdict.Allowed {
		metrics.SignalsRejected.WithLabelValues("validator", string(verdict.Reason)).Inc()
		m.publish(eventbus.KindError, "", fmt.Sprintf("validation rejected: %s: %s", verdict.Reason, verdict.Detail))
		return TickOutcome{Kind: OutcomeIdle}, nil
	}

	riskResult := m.deps.RiskMgr.CheckSignal(risk.ValidatorInput{
		Proposal:     *proposal,
		Symbol:       m.deps.Symbol,
		StrategyName: m.deps.StrategyName,
		ExchangeName: m.deps.ExchangeName,
		CurrentPrice: price,
		Timestamp:    ectx.Now,
	})
	if !riskResult.Allowed {
		return TickOutcome{Kind: OutcomeIdle}, nil
	}

	return m.promoteProposal(*proposal, price, ectx)
}

func (m *Machine) invokeGetSignal(ectx signal.ExecutionContext) (*signal.Proposal, error) {
	type result struct {
		proposal *signal.Proposal
		err      error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("strategy: get_signal panicked: %v", r)}
			}
		}()
		p, err := m.deps.GetSignal(ectx)
		done <- result{proposal: p, err: err}
	}()

	select {
	case r := <-done:
		return r.proposal, r.err
	case <-time.After(m.deps.Config.MaxSignalGenerationSecs):
		return nil, fmt.Errorf("strategy: get_signal exceeded %s timeout", m.deps.Config.MaxSignalGenerationSecs)
	}
}

func (m *Machine) promoteProposal(p signal.Proposal, currentPrice decimal.Decimal, ectx signal.ExecutionContext) (TickOutcome, error) {
	sig := signal.NewFromProposal(p, m.deps.Symbol, m.deps.StrategyName, m.deps.ExchangeName, ectx.Now)

	if validator.IsImmediate(p.PriceOpen, currentPrice) {
		sig.PendingAt = ectx.Now

		prevPending := m.pending
		m.pending = &sig
		if err := m.persistPending(); err != nil {
			m.pending = prevPending
			return TickOutcome{}, err
		}
		if err := m.deps.RiskMgr.AddSignal(m.deps.StrategyName, m.deps.Symbol, sig.PendingAt); err != nil {
			m.pending = prevPending
			return TickOutcome{}, err
		}

		m.publish(eventbus.KindSignal, sig.ID, sig)
		return TickOutcome{Kind: OutcomeOpened, Signal: &sig}, nil
	}

	sig.ScheduledAt = ectx.Now
	prevScheduled := m.scheduled
	m.scheduled = &sig
	if err := m.persistScheduled(); err != nil {
		m.scheduled = prevScheduled
		return TickOutcome{}, err
	}

	m.publish(eventbus.KindScheduled, sig.ID, sig)
	return TickOutcome{Kind: OutcomeScheduled, Signal: &sig}, nil
}
