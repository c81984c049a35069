package demosignal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lumenquant/coreengine/internal/candle"
	"github.com/lumenquant/coreengine/internal/exchange"
	"github.com/lumenquant/coreengine/internal/signal"
)

func flatSeries(n int, price float64) []candle.Candle {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]candle.Candle, n)
	for i := 0; i < n; i++ {
		p := decimal.NewFromFloat(price)
		out[i] = candle.Candle{Timestamp: base.Add(time.Duration(i) * time.Minute), Open: p, High: p, Low: p, Close: p, Volume: decimal.NewFromInt(1)}
	}
	return out
}

func TestGenerator_NoCrossoverReturnsNil(t *testing.T) {
	mock := exchange.NewMock("mock", false)
	series := flatSeries(40, 100)
	mock.SetSeries("BTC-USD", series)

	g := New(mock, "BTC-USD", DefaultParams())
	now := series[len(series)-1].Timestamp
	p, err := g.GetSignal(signal.ExecutionContext{Symbol: "BTC-USD", Now: now})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Errorf("expected no signal on a flat series, got %+v", p)
	}
}

func TestGenerator_InsufficientHistoryReturnsNil(t *testing.T) {
	mock := exchange.NewMock("mock", false)
	series := flatSeries(5, 100)
	mock.SetSeries("BTC-USD", series)

	g := New(mock, "BTC-USD", DefaultParams())
	p, err := g.GetSignal(signal.ExecutionContext{Symbol: "BTC-USD", Now: series[len(series)-1].Timestamp})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Errorf("expected nil with too little history, got %+v", p)
	}
}

func TestGenerator_BullishCrossoverProposesLong(t *testing.T) {
	mock := exchange.NewMock("mock", false)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var series []candle.Candle
	price := 100.0
	// Decline to pull the fast EMA below the slow EMA, then a choppy rally
	// (+2, -1.5, ...) whose seventh bar is the first one with the fast EMA
	// above the slow EMA, with RSI(5) about 67, under the overbought cut-off.
	for i := 0; i < 30; i++ {
		price -= 0.5
		p := decimal.NewFromFloat(price)
		series = append(series, candle.Candle{Timestamp: base.Add(time.Duration(i) * time.Minute), Open: p, High: p, Low: p, Close: p, Volume: decimal.NewFromInt(1)})
	}
	for i := 30; i < 37; i++ {
		if (i-30)%2 == 0 {
			price += 2
		} else {
			price -= 1.5
		}
		p := decimal.NewFromFloat(price)
		series = append(series, candle.Candle{Timestamp: base.Add(time.Duration(i) * time.Minute), Open: p, High: p, Low: p, Close: p, Volume: decimal.NewFromInt(1)})
	}
	mock.SetSeries("BTC-USD", series)

	params := DefaultParams()
	params.FastPeriod = 5
	params.SlowPeriod = 10
	params.RSIPeriod = 5

	g := New(mock, "BTC-USD", params)
	now := series[len(series)-1].Timestamp
	p, err := g.GetSignal(signal.ExecutionContext{Symbol: "BTC-USD", Now: now})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected a long proposal on the bullish crossover")
	}
	if p.Position != signal.Long {
		t.Errorf("expected long, got %s", p.Position)
	}
	if !p.PriceTakeProfit.GreaterThan(p.PriceOpen) {
		t.Errorf("expected take_profit above price_open for a long, got tp=%s open=%s", p.PriceTakeProfit, p.PriceOpen)
	}
	if !p.PriceStopLoss.LessThan(p.PriceOpen) {
		t.Errorf("expected stop_loss below price_open for a long, got sl=%s open=%s", p.PriceStopLoss, p.PriceOpen)
	}
}
