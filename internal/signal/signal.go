// Package signal holds the domain types shared by every core component:
// the proposal a strategy callback returns, the signal the state machine
// promotes it to, and the ambient execution context threaded through a
// tick explicitly, never via a context-local global.
package signal

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Position is the directional side of a signal.
type Position string

const (
	Long  Position = "long"
	Short Position = "short"
)

// Proposal is returned by the user-supplied signal generator callback.
// It carries no identity yet — the core assigns one on promotion.
type Proposal struct {
	Position            Position
	PriceOpen           decimal.Decimal
	PriceTakeProfit     decimal.Decimal
	PriceStopLoss       decimal.Decimal
	MinuteEstimatedTime int
	Note                string
}

// CloseReason tags why a Signal left the pending/scheduled state.
type CloseReason string

const (
	ReasonTakeProfit  CloseReason = "take_profit"
	ReasonStopLoss    CloseReason = "stop_loss"
	ReasonTimeExpired CloseReason = "time_expired"
	ReasonPriceReject CloseReason = "price_reject"
	ReasonTimeout     CloseReason = "timeout"
)

// Signal is assigned by the core when a Proposal is promoted. Everything
// except the trailing fields (TotalExecuted, and trailing TP/SL managed by
// the breakeven/trailing logic) is fixed at creation.
type Signal struct {
	ID     string
	Symbol string

	StrategyName string
	ExchangeName string

	Position            Position
	PriceOpen           decimal.Decimal
	PriceTakeProfit     decimal.Decimal
	PriceStopLoss       decimal.Decimal
	MinuteEstimatedTime int
	Note                string

	OriginalPriceTakeProfit decimal.Decimal
	OriginalPriceStopLoss   decimal.Decimal

	Timestamp   time.Time
	ScheduledAt time.Time
	PendingAt   time.Time

	TotalExecuted decimal.Decimal
}

// NewFromProposal stamps a fresh Signal from a Proposal at promotion time.
// now is the ambient tick timestamp; the caller decides ScheduledAt/PendingAt.
func NewFromProposal(p Proposal, symbol, strategyName, exchangeName string, now time.Time) Signal {
	return Signal{
		ID:                      uuid.NewString(),
		Symbol:                  symbol,
		StrategyName:            strategyName,
		ExchangeName:            exchangeName,
		Position:                p.Position,
		PriceOpen:               p.PriceOpen,
		PriceTakeProfit:         p.PriceTakeProfit,
		PriceStopLoss:           p.PriceStopLoss,
		MinuteEstimatedTime:     p.MinuteEstimatedTime,
		Note:                    p.Note,
		OriginalPriceTakeProfit: p.PriceTakeProfit,
		OriginalPriceStopLoss:   p.PriceStopLoss,
		Timestamp:               now,
		TotalExecuted:           decimal.Zero,
	}
}

// ExpiresAt returns the timestamp at which the signal's lifetime budget is
// exhausted, measured from PendingAt.
func (s Signal) ExpiresAt() time.Time {
	return s.PendingAt.Add(time.Duration(s.MinuteEstimatedTime) * time.Minute)
}

// ExecutionContext is the ambient per-tick argument passed explicitly to
// every core API — it replaces any async-local/context-global storage.
type ExecutionContext struct {
	Symbol       string
	Now          time.Time
	Backtest     bool
	StrategyName string
	ExchangeName string
	FrameName    string
}

// PnL is the result of closing a signal: slippage- and fee-adjusted percent
// return plus the raw open/close prices used to compute it.
type PnL struct {
	PnLPercent decimal.Decimal
	PriceOpen  decimal.Decimal
	PriceClose decimal.Decimal
}
