// Package exchange defines the Exchange port: the contract the core state
// machine uses to fetch candles, compute VWAP, and format order quantities,
// without ever knowing which venue backs it. The surface is read-only by
// design — no order placement, no wallet signing — those stay an adapter's
// business, never the core's.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lumenquant/coreengine/internal/candle"
)

// Kind distinguishes recoverable from fatal exchange failures per the
// error-handling taxonomy.
type Kind int

const (
	// KindTransient is a retryable failure (timeout, 5xx, connection reset).
	KindTransient Kind = iota
	// KindFatal is an anomaly the adapter cannot retry past: empty series,
	// non-finite prices, or a median-deviation outlier.
	KindFatal
)

// Error wraps an adapter failure with its retry disposition.
type Error struct {
	Kind    Kind
	Exchange string
	Symbol   string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("exchange %s: %s: %v", e.Exchange, e.Symbol, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNotBacktest is returned by GetNextCandles when called outside backtest
// mode; it is a programmer error, not a transient condition.
var ErrNotBacktest = errors.New("exchange: get_next_candles is backtest-only")

// ErrNoCandles is the fatal error used when fewer than one candle is
// available to compute VWAP or format context.
var ErrNoCandles = errors.New("exchange: no candles available")

// Interval names the candle granularity; the core only ever asks for
// one-minute bars, but adapters may expose others internally.
type Interval string

const OneMinute Interval = "1m"

// Exchange is the Exchange Port contract consumed by the core. Every
// method is total: failures come back as an error, never a panic, and
// implementations must honor no-look-ahead in backtest mode (GetCandles
// never returns a candle with Timestamp after the `now` argument passed
// to it).
type Exchange interface {
	// Name identifies the exchange for logging, metrics, and persistence
	// slot naming.
	Name() string

	// GetCandles returns up to limit most recent candles at interval,
	// ending at or before now. In backtest mode it must exclude any candle
	// strictly after now.
	GetCandles(ctx context.Context, symbol string, interval Interval, limit int, now time.Time) ([]candle.Candle, error)

	// GetNextCandles returns candles starting at now going forward; valid
	// only when backtest is true. Implementations must return
	// ErrNotBacktest otherwise.
	GetNextCandles(ctx context.Context, symbol string, interval Interval, limit int, now time.Time, backtest bool) ([]candle.Candle, error)

	// GetAveragePrice computes VWAP over the last avgPriceCandlesCount
	// one-minute candles ending at or before now.
	GetAveragePrice(ctx context.Context, symbol string, avgPriceCandlesCount int, now time.Time) (decimal.Decimal, error)

	// FormatPrice and FormatQuantity apply venue precision rules.
	FormatPrice(symbol string, price decimal.Decimal) string
	FormatQuantity(symbol string, qty decimal.Decimal) string
}

// AveragePrice is a convenience shared by every Exchange implementation: it
// fetches the trailing window of one-minute candles and delegates to
// candle.VWAP, so adapters only need to implement candle fetching.
func AveragePrice(ctx context.Context, x Exchange, symbol string, avgPriceCandlesCount int, now time.Time) (decimal.Decimal, error) {
	candles, err := x.GetCandles(ctx, symbol, OneMinute, avgPriceCandlesCount, now)
	if err != nil {
		return decimal.Zero, err
	}
	if len(candles) == 0 {
		return decimal.Zero, &Error{Kind: KindFatal, Exchange: x.Name(), Symbol: symbol, Err: ErrNoCandles}
	}
	v, err := candle.VWAP(candles)
	if err != nil {
		return decimal.Zero, &Error{Kind: KindFatal, Exchange: x.Name(), Symbol: symbol, Err: err}
	}
	return v, nil
}
