package exchange

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lumenquant/coreengine/internal/candle"
)

// Mock is an in-memory Exchange backed by a fixed candle series per symbol,
// used by state-machine and driver tests.
type Mock struct {
	mu      sync.RWMutex
	name    string
	series  map[string][]candle.Candle // sorted ascending by Timestamp
	backtest bool
}

// NewMock creates an empty mock exchange named name.
func NewMock(name string, backtest bool) *Mock {
	return &Mock{name: name, series: make(map[string][]candle.Candle), backtest: backtest}
}

// Append adds a single candle to symbol's series, keeping it sorted by
// timestamp. Used by live feeds that build candles incrementally.
func (m *Mock) Append(symbol string, c candle.Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[symbol] = append(m.series[symbol], c)
	sort.Slice(m.series[symbol], func(i, j int) bool {
		return m.series[symbol][i].Timestamp.Before(m.series[symbol][j].Timestamp)
	})
}

// SetSeries installs the full candle series for symbol, sorted ascending.
func (m *Mock) SetSeries(symbol string, candles []candle.Candle) {
	sorted := append([]candle.Candle(nil), candles...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[symbol] = sorted
}

func (m *Mock) Name() string { return m.name }

func (m *Mock) GetCandles(ctx context.Context, symbol string, interval Interval, limit int, now time.Time) ([]candle.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.series[symbol]
	var eligible []candle.Candle
	for _, c := range all {
		if c.Timestamp.After(now) {
			break
		}
		eligible = append(eligible, c)
	}
	if len(eligible) > limit {
		eligible = eligible[len(eligible)-limit:]
	}
	return eligible, nil
}

func (m *Mock) GetNextCandles(ctx context.Context, symbol string, interval Interval, limit int, now time.Time, backtest bool) ([]candle.Candle, error) {
	if !backtest {
		return nil, ErrNotBacktest
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.series[symbol]
	var result []candle.Candle
	for _, c := range all {
		if c.Timestamp.Before(now) {
			continue
		}
		result = append(result, c)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (m *Mock) GetAveragePrice(ctx context.Context, symbol string, avgPriceCandlesCount int, now time.Time) (decimal.Decimal, error) {
	return AveragePrice(ctx, m, symbol, avgPriceCandlesCount, now)
}

func (m *Mock) FormatPrice(symbol string, price decimal.Decimal) string {
	return price.StringFixed(2)
}

func (m *Mock) FormatQuantity(symbol string, qty decimal.Decimal) string {
	return qty.StringFixed(6)
}
