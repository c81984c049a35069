package demosignal

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lumenquant/coreengine/internal/exchange"
	"github.com/lumenquant/coreengine/internal/logger"
	"github.com/lumenquant/coreengine/internal/signal"
	"github.com/lumenquant/coreengine/pkg/utils"
)

// minDistancePct and maxDistancePct bound TakeProfitPct/StopLossPct before
// they reach proposalFor. These fixed bounds are wider than the validator's
// configured distance bands, so a clamped value can still be rejected there.
const (
	minDistancePct = "0.1"
	maxDistancePct = "25"
)

// Params configures the EMA-crossover-with-RSI-filter generator.
type Params struct {
	CandleLookback     int
	FastPeriod         int
	SlowPeriod         int
	RSIPeriod          int
	RSIOverbought      decimal.Decimal
	RSIOversold        decimal.Decimal
	TakeProfitPct      decimal.Decimal
	StopLossPct        decimal.Decimal
	LifetimeMinutes    int
}

// DefaultParams mirrors a conservative EMA(12,26)/RSI(14) crossover setup.
func DefaultParams() Params {
	return Params{
		CandleLookback:  60,
		FastPeriod:      12,
		SlowPeriod:      26,
		RSIPeriod:       14,
		RSIOverbought:   decimal.NewFromInt(70),
		RSIOversold:     decimal.NewFromInt(30),
		TakeProfitPct:   decimal.NewFromFloat(1.5),
		StopLossPct:     decimal.NewFromFloat(1.0),
		LifetimeMinutes: 120,
	}
}

// Generator produces SignalProposals from an EMA fast/slow crossover,
// filtered by RSI so it declines to chase an already-overextended move.
type Generator struct {
	exchange exchange.Exchange
	symbol   string
	params   Params
	log      *logger.Logger
}

// New builds a Generator reading candles for symbol from x.
func New(x exchange.Exchange, symbol string, params Params) *Generator {
	return &Generator{
		exchange: x,
		symbol:   symbol,
		params:   params,
		log:      logger.Component("demosignal").WithField("symbol", symbol),
	}
}

// GetSignal is a strategy.GetSignalFunc: it fetches the trailing candle
// window, computes EMA fast/slow and RSI, and proposes a long on a bullish
// crossover while RSI is below RSIOverbought, or a short on a bearish
// crossover while RSI is above RSIOversold. A crossover counts only when it
// happens between the last two points; otherwise it returns (nil, nil).
func (g *Generator) GetSignal(ectx signal.ExecutionContext) (*signal.Proposal, error) {
	candles, err := g.exchange.GetCandles(context.Background(), g.symbol, exchange.OneMinute, g.params.CandleLookback, ectx.Now)
	if err != nil {
		return nil, fmt.Errorf("demosignal: fetch candles: %w", err)
	}
	needed := g.params.SlowPeriod + 2
	if len(candles) < needed {
		return nil, nil
	}

	closes := make([]decimal.Decimal, len(candles))
	highs := make([]decimal.Decimal, len(candles))
	lows := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}

	fast := EMA(closes, g.params.FastPeriod)
	slow := EMA(closes, g.params.SlowPeriod)
	rsi := RSI(closes, g.params.RSIPeriod)
	if len(fast) < 2 || len(slow) < 2 || len(rsi) < 1 {
		return nil, nil
	}

	fastOffset := len(fast) - len(slow)
	if fastOffset < 0 {
		return nil, nil
	}
	fastPrev, fastLast := fast[len(fast)-2], fast[len(fast)-1]
	slowPrev, slowLast := slow[len(slow)-2], slow[len(slow)-1]
	currentRSI := rsi[len(rsi)-1]
	currentPrice := closes[len(closes)-1]

	crossedUp := fastPrev.LessThanOrEqual(slowPrev) && fastLast.GreaterThan(slowLast)
	crossedDown := fastPrev.GreaterThanOrEqual(slowPrev) && fastLast.LessThan(slowLast)

	switch {
	case crossedUp && currentRSI.LessThan(g.params.RSIOverbought):
		return g.proposalFor(signal.Long, currentPrice, currentRSI), nil
	case crossedDown && currentRSI.GreaterThan(g.params.RSIOversold):
		return g.proposalFor(signal.Short, currentPrice, currentRSI), nil
	default:
		return nil, nil
	}
}

func (g *Generator) proposalFor(position signal.Position, currentPrice, currentRSI decimal.Decimal) *signal.Proposal {
	hundred := decimal.NewFromInt(100)
	min, _ := decimal.NewFromString(minDistancePct)
	max, _ := decimal.NewFromString(maxDistancePct)
	tp := utils.ClampDecimal(g.params.TakeProfitPct, min, max).Div(hundred)
	sl := utils.ClampDecimal(g.params.StopLossPct, min, max).Div(hundred)

	var takeProfit, stopLoss decimal.Decimal
	if position == signal.Long {
		takeProfit = currentPrice.Mul(decimal.NewFromInt(1).Add(tp))
		stopLoss = currentPrice.Mul(decimal.NewFromInt(1).Sub(sl))
	} else {
		takeProfit = currentPrice.Mul(decimal.NewFromInt(1).Sub(tp))
		stopLoss = currentPrice.Mul(decimal.NewFromInt(1).Add(sl))
	}

	g.log.Debug().Str("position", string(position)).Str("price", currentPrice.String()).Msg("ema crossover signal generated")

	return &signal.Proposal{
		Position:            position,
		PriceOpen:           currentPrice,
		PriceTakeProfit:     takeProfit,
		PriceStopLoss:       stopLoss,
		MinuteEstimatedTime: g.params.LifetimeMinutes,
		Note:                fmt.Sprintf("ema(%d/%d) crossover, rsi=%s", g.params.FastPeriod, g.params.SlowPeriod, currentRSI.StringFixed(1)),
	}
}
