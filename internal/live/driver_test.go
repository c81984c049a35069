package live

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"github.com/lumenquant/coreengine/internal/candle"
	"github.com/lumenquant/coreengine/internal/config"
	"github.com/lumenquant/coreengine/internal/eventbus"
	"github.com/lumenquant/coreengine/internal/exchange"
	"github.com/lumenquant/coreengine/internal/persistence"
	"github.com/lumenquant/coreengine/internal/risk"
	"github.com/lumenquant/coreengine/internal/signal"
	"github.com/lumenquant/coreengine/internal/strategy"
)

func dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func flatCandle(ts time.Time, price string) candle.Candle {
	p := dec(price)
	return candle.Candle{Timestamp: ts, Open: p, High: p, Low: p, Close: p, Volume: dec("1")}
}

func newTestMachine(t *testing.T, getSignal strategy.GetSignalFunc) *strategy.Machine {
	t.Helper()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var series []candle.Candle
	for i := 0; i < 5; i++ {
		series = append(series, flatCandle(base.Add(time.Duration(i)*time.Minute), "100"))
	}

	mock := exchange.NewMock("mock", false)
	mock.SetSeries("BTC-USD", series)

	cfg := config.Default()
	cfg.AvgPriceCandlesCount = 1
	cfg.ScheduleAwaitMinutes = 60
	cfg.PercentSlippage = dec("0.1")
	cfg.PercentFee = dec("0.1")
	cfg.MinTakeProfitDistancePct = dec("0.2")
	cfg.MaxTakeProfitDistancePct = dec("20")
	cfg.MinStopLossDistancePct = dec("0.2")
	cfg.MaxStopLossDistancePct = dec("10")
	cfg.MaxSignalLifetimeMinutes = 1440
	cfg.MaxSignalGenerationSecs = time.Second

	store := persistence.NewWithFs(afero.NewMemMapFs(), "/data")
	bus := eventbus.New(0)
	riskMgr := risk.NewManager("default", nil, store, bus)

	return strategy.New(strategy.Deps{
		StrategyName: "demo",
		ExchangeName: "mock",
		Symbol:       "BTC-USD",
		RiskName:     "default",
		Exchange:     mock,
		Store:        store,
		RiskMgr:      riskMgr,
		Bus:          bus,
		Config:       cfg,
		GetSignal:    getSignal,
		Interval:     time.Minute,
	})
}

// oneShotLong proposes a single long trade far from its stop loss and take
// profit, so the mock's flat 100 price never closes it within the test.
func oneShotLong() strategy.GetSignalFunc {
	fired := false
	return func(signal.ExecutionContext) (*signal.Proposal, error) {
		if fired {
			return nil, nil
		}
		fired = true
		return &signal.Proposal{
			Position:            signal.Long,
			PriceOpen:           dec("100"),
			PriceTakeProfit:     dec("110"),
			PriceStopLoss:       dec("90"),
			MinuteEstimatedTime: 1440,
			Note:                "one shot",
		}, nil
	}
}

func TestDriver_YieldsOpenedBeforeSleeping(t *testing.T) {
	machine := newTestMachine(t, oneShotLong())
	bus := eventbus.New(0)
	driver := NewDriver(machine, bus, "demo", "mock", "BTC-USD")

	var events []strategy.OutcomeKind
	driver.SetOnEvent(func(o strategy.TickOutcome) { events = append(events, o.Kind) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := driver.Run(ctx)
	if err != context.DeadlineExceeded {
		t.Fatalf("expected context.DeadlineExceeded once TickTTL's sleep is interrupted, got %v", err)
	}
	if len(events) != 1 || events[0] != strategy.OutcomeOpened {
		t.Fatalf("expected exactly one Opened event before the run was cancelled, got %v", events)
	}
}

func TestDriver_StopExitsAtNextIdleTick(t *testing.T) {
	machine := newTestMachine(t, func(signal.ExecutionContext) (*signal.Proposal, error) { return nil, nil })
	bus := eventbus.New(0)
	driver := NewDriver(machine, bus, "demo", "mock", "BTC-USD")
	driver.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := driver.Run(ctx); err != nil {
		t.Fatalf("expected a clean stop on the first idle tick, got %v", err)
	}
}
