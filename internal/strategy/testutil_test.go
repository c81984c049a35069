package strategy

import (
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
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func mkC(ts time.Time, h, l, c, v string) candle.Candle {
	return candle.Candle{Timestamp: ts, High: d(h), Low: d(l), Close: d(c), Open: d(c), Volume: d(v)}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.AvgPriceCandlesCount = 1
	cfg.ScheduleAwaitMinutes = 60
	cfg.PercentSlippage = d("0.1")
	cfg.PercentFee = d("0.1")
	cfg.MinTakeProfitDistancePct = d("0.2")
	cfg.MaxTakeProfitDistancePct = d("20")
	cfg.MinStopLossDistancePct = d("0.2")
	cfg.MaxStopLossDistancePct = d("10")
	cfg.MaxSignalLifetimeMinutes = 1440
	cfg.MaxSignalGenerationSecs = time.Second
	return cfg
}

// onceGenerator returns p on its first invocation and nil afterward,
// modeling a strategy that proposes exactly one trade.
func onceGenerator(p signal.Proposal) GetSignalFunc {
	used := false
	return func(signal.ExecutionContext) (*signal.Proposal, error) {
		if used {
			return nil, nil
		}
		used = true
		proposal := p
		return &proposal, nil
	}
}

type testHarness struct {
	Machine  *Machine
	Exchange *exchange.Mock
	Store    *persistence.Store
	RiskMgr  *risk.Manager
	Bus      *eventbus.Bus
	Config   *config.Config
}

func newHarness(symbol string, getSignal GetSignalFunc) *testHarness {
	cfg := testConfig()
	mockExchange := exchange.NewMock("mock", true)
	store := persistence.NewWithFs(afero.NewMemMapFs(), "/data")
	bus := eventbus.New(0)
	riskMgr := risk.NewManager("default", nil, store, bus)

	m := New(Deps{
		StrategyName: "demo",
		ExchangeName: "mock",
		Symbol:       symbol,
		RiskName:     "default",
		Exchange:     mockExchange,
		Store:        store,
		RiskMgr:      riskMgr,
		Bus:          bus,
		Config:       cfg,
		GetSignal:    getSignal,
		Interval:     time.Minute,
	})

	return &testHarness{Machine: m, Exchange: mockExchange, Store: store, RiskMgr: riskMgr, Bus: bus, Config: cfg}
}

// restarted constructs a fresh Machine sharing the same store/risk/bus/exchange,
// simulating a process crash and restart against durable state.
func (h *testHarness) restarted(symbol string, getSignal GetSignalFunc) *Machine {
	return New(Deps{
		StrategyName: "demo",
		ExchangeName: "mock",
		Symbol:       symbol,
		RiskName:     "default",
		Exchange:     h.Exchange,
		Store:        h.Store,
		RiskMgr:      h.RiskMgr,
		Bus:          h.Bus,
		Config:       h.Config,
		GetSignal:    getSignal,
		Interval:     time.Minute,
	})
}

func neverGenerates(signal.ExecutionContext) (*signal.Proposal, error) {
	return nil, nil
}
