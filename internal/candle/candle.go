// Package candle defines the OHLCV data type shared by the exchange port,
// the state machine, and both execution drivers.
package candle

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrEmptySeries is returned by functions that require at least one candle.
var ErrEmptySeries = errors.New("candle: empty series")

// Candle is one OHLCV bar. Prices and volume are non-negative; Low <= Open,
// Close <= High is an invariant enforced by whoever constructs a Candle from
// raw exchange data, not by this type.
type Candle struct {
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// Typical returns the (high+low+close)/3 typical price used for VWAP.
func (c Candle) Typical() decimal.Decimal {
	three := decimal.NewFromInt(3)
	return c.High.Add(c.Low).Add(c.Close).Div(three)
}

// Valid reports whether the candle satisfies the OHLC ordering and
// non-negativity invariants.
func (c Candle) Valid() bool {
	if c.Open.IsNegative() || c.High.IsNegative() || c.Low.IsNegative() ||
		c.Close.IsNegative() || c.Volume.IsNegative() {
		return false
	}
	if c.Low.GreaterThan(c.Open) || c.Low.GreaterThan(c.Close) || c.Low.GreaterThan(c.High) {
		return false
	}
	if c.High.LessThan(c.Open) || c.High.LessThan(c.Close) {
		return false
	}
	return true
}

// VWAP computes the volume-weighted average price of typical prices across
// candles. Falls back to the arithmetic mean of closes when total volume is
// zero, per the exchange port contract. Returns ErrEmptySeries on an empty
// slice.
func VWAP(candles []Candle) (decimal.Decimal, error) {
	if len(candles) == 0 {
		return decimal.Zero, ErrEmptySeries
	}

	totalVolume := decimal.Zero
	weighted := decimal.Zero
	for _, c := range candles {
		weighted = weighted.Add(c.Typical().Mul(c.Volume))
		totalVolume = totalVolume.Add(c.Volume)
	}

	if totalVolume.IsZero() {
		sum := decimal.Zero
		for _, c := range candles {
			sum = sum.Add(c.Close)
		}
		return sum.Div(decimal.NewFromInt(int64(len(candles)))), nil
	}

	return weighted.Div(totalVolume), nil
}
