// Package validator implements a pure rule table rejecting malformed or
// out-of-policy signal proposals before they ever reach the risk gate or
// mutate state. It generalizes isValidPrice-style price guards into a
// total, side-effect-free rule table.
package validator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lumenquant/coreengine/internal/signal"
	"github.com/lumenquant/coreengine/pkg/utils"
)

// Reason names why a proposal was rejected. Distinct reasons let callers
// emit precise validation metrics and error events.
type Reason string

const (
	ReasonInvalidPrice       Reason = "invalid_price"
	ReasonDirectionLong      Reason = "direction_inconsistent_long"
	ReasonDirectionShort     Reason = "direction_inconsistent_short"
	ReasonTakeProfitTooClose Reason = "takeprofit_too_close"
	ReasonStopLossTooClose   Reason = "stoploss_too_close"
	ReasonStopLossTooFar     Reason = "stoploss_too_far"
	ReasonInvalidLifetime    Reason = "invalid_lifetime"
	ReasonScheduledGap       Reason = "scheduled_gap_wrong_direction"
)

// Result is the validator's total-function verdict.
type Result struct {
	Allowed bool
	Reason  Reason
	Detail  string
}

func reject(reason Reason, detail string) Result {
	return Result{Allowed: false, Reason: reason, Detail: detail}
}

var allowed = Result{Allowed: true}

// Bands carries the configured percent distance limits the rule table
// checks against; callers pass config.Config fields through unchanged.
type Bands struct {
	MinTakeProfitDistancePct decimal.Decimal
	MinStopLossDistancePct   decimal.Decimal
	MaxStopLossDistancePct   decimal.Decimal
	MaxSignalLifetimeMinutes int
}

// Validate runs the full rule table against a proposal and the current
// VWAP. It is pure: no persistence, no events, just a verdict.
func Validate(p signal.Proposal, currentPrice decimal.Decimal, bands Bands) Result {
	if !isFinitePositive(p.PriceOpen) || !isFinitePositive(p.PriceTakeProfit) || !isFinitePositive(p.PriceStopLoss) {
		return reject(ReasonInvalidPrice, "price_open/take_profit/stop_loss must be finite and positive")
	}

	switch p.Position {
	case signal.Long:
		if !(p.PriceStopLoss.LessThan(p.PriceOpen) && p.PriceOpen.LessThan(p.PriceTakeProfit)) {
			return reject(ReasonDirectionLong, "expected stop_loss < price_open < take_profit")
		}
	case signal.Short:
		if !(p.PriceTakeProfit.LessThan(p.PriceOpen) && p.PriceOpen.LessThan(p.PriceStopLoss)) {
			return reject(ReasonDirectionShort, "expected take_profit < price_open < stop_loss")
		}
	default:
		return reject(ReasonInvalidPrice, fmt.Sprintf("unknown position %q", p.Position))
	}

	tpDistance := percentDistance(p.PriceOpen, p.PriceTakeProfit)
	if tpDistance.LessThan(bands.MinTakeProfitDistancePct) {
		return reject(ReasonTakeProfitTooClose, fmt.Sprintf("tp distance %s%% below minimum %s%%", tpDistance, bands.MinTakeProfitDistancePct))
	}

	slDistance := percentDistance(p.PriceOpen, p.PriceStopLoss)
	if slDistance.LessThan(bands.MinStopLossDistancePct) {
		return reject(ReasonStopLossTooClose, fmt.Sprintf("sl distance %s%% below minimum %s%%", slDistance, bands.MinStopLossDistancePct))
	}
	if slDistance.GreaterThan(bands.MaxStopLossDistancePct) {
		return reject(ReasonStopLossTooFar, fmt.Sprintf("sl distance %s%% above maximum %s%%", slDistance, bands.MaxStopLossDistancePct))
	}

	if p.MinuteEstimatedTime < 1 || p.MinuteEstimatedTime > bands.MaxSignalLifetimeMinutes {
		return reject(ReasonInvalidLifetime, fmt.Sprintf("minute_estimated_time %d outside [1,%d]", p.MinuteEstimatedTime, bands.MaxSignalLifetimeMinutes))
	}

	if !IsImmediate(p.PriceOpen, currentPrice) {
		// Scheduled (limit) order: the gap direction must already favor
		// the expected activation path.
		switch p.Position {
		case signal.Long:
			if p.PriceOpen.GreaterThan(currentPrice) {
				return reject(ReasonScheduledGap, "long scheduled entry must wait for price to fall toward price_open")
			}
		case signal.Short:
			if p.PriceOpen.LessThan(currentPrice) {
				return reject(ReasonScheduledGap, "short scheduled entry must wait for price to rise toward price_open")
			}
		}
	}

	return allowed
}

// IsImmediate reports whether a proposal is close enough to the current
// price to open immediately rather than being queued as scheduled.
func IsImmediate(priceOpen, currentPrice decimal.Decimal) bool {
	const epsilon = "0.0001" // 0.01%
	eps, _ := decimal.NewFromString(epsilon)
	return percentDistance(currentPrice, priceOpen).LessThan(eps.Mul(decimal.NewFromInt(100)))
}

func percentDistance(base, other decimal.Decimal) decimal.Decimal {
	if base.IsZero() {
		return decimal.NewFromInt(100)
	}
	return utils.AbsDecimal(other.Sub(base)).Div(base).Mul(decimal.NewFromInt(100))
}

func isFinitePositive(d decimal.Decimal) bool {
	return d.IsPositive()
}
