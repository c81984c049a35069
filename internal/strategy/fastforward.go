package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/lumenquant/coreengine/internal/candle"
	"github.com/lumenquant/coreengine/internal/signal"
)

// BacktestFastForward replays the monitoring priority rules against the
// candle sequence from pending_at forward, using each candle's own
// high/low range rather than a fresh exchange.GetAveragePrice call, so a
// backtest driver can skip tick-by-tick polling once a position is open.
// Emits events identically to Tick and returns the first Closed found, or
// an Active outcome if nothing in the supplied window triggers a close.
func (m *Machine) BacktestFastForward(futureCandles []candle.Candle) (TickOutcome, error) {
	if m.pending == nil {
		return TickOutcome{Kind: OutcomeIdle}, nil
	}
	sig := *m.pending

	for _, c := range futureCandles {
		if !c.Timestamp.Before(sig.ExpiresAt()) {
			outcome, err := m.closeSignal(sig, signal.ReasonTimeExpired, c.Typical())
			outcome.Timestamp = c.Timestamp
			return outcome, err
		}

		if err := m.maybeBreakeven(m.pending, c.Typical()); err != nil {
			return TickOutcome{}, err
		}
		sig.PriceStopLoss = m.pending.PriceStopLoss

		if reason, priceClose, closed := evaluateMonitoringCandle(sig, c); closed {
			outcome, err := m.closeSignal(sig, reason, priceClose)
			outcome.Timestamp = c.Timestamp
			return outcome, err
		}

		m.fireMilestonesFromCandle(sig, c)
	}

	// No candle in the supplied window triggered a close or expiry; the
	// position stays open for the caller's next Tick. Report Active with
	// the last candle's typical price as the best-known current price.
	if len(futureCandles) == 0 {
		return TickOutcome{Kind: OutcomeActive, Signal: &sig}, nil
	}
	last := futureCandles[len(futureCandles)-1]
	return TickOutcome{Kind: OutcomeActive, Signal: &sig, CurrentPrice: last.Typical()}, nil
}

// evaluateMonitoringCandle applies the TP/SL priority rules against a
// candle's (high, low) range: long TP triggers on high >= TP, long SL on
// low <= SL; short is the mirror image. Time expiry is handled by the
// caller since it only depends on the candle timestamp.
func evaluateMonitoringCandle(sig signal.Signal, c candle.Candle) (signal.CloseReason, decimal.Decimal, bool) {
	switch sig.Position {
	case signal.Long:
		if c.High.GreaterThanOrEqual(sig.PriceTakeProfit) {
			return signal.ReasonTakeProfit, sig.PriceTakeProfit, true
		}
		if c.Low.LessThanOrEqual(sig.PriceStopLoss) {
			return signal.ReasonStopLoss, sig.PriceStopLoss, true
		}
	case signal.Short:
		if c.Low.LessThanOrEqual(sig.PriceTakeProfit) {
			return signal.ReasonTakeProfit, sig.PriceTakeProfit, true
		}
		if c.High.GreaterThanOrEqual(sig.PriceStopLoss) {
			return signal.ReasonStopLoss, sig.PriceStopLoss, true
		}
	}
	return "", decimal.Zero, false
}

// fireMilestonesFromCandle is fireMilestones using a candle's typical
// price as the sampled current price, for the fast-forward path.
func (m *Machine) fireMilestonesFromCandle(sig signal.Signal, c candle.Candle) {
	m.fireMilestones(sig, c.Typical())
}
