package candle

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func mkCandle(high, low, close, volume float64) Candle {
	return Candle{
		Timestamp: time.Unix(0, 0),
		Open:      decimal.NewFromFloat(low),
		High:      decimal.NewFromFloat(high),
		Low:       decimal.NewFromFloat(low),
		Close:     decimal.NewFromFloat(close),
		Volume:    decimal.NewFromFloat(volume),
	}
}

func TestVWAP_WeightsByVolume(t *testing.T) {
	candles := []Candle{
		mkCandle(110, 90, 100, 10),
		mkCandle(210, 190, 200, 30),
	}

	vwap, err := VWAP(candles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// typical1 = 100, typical2 = 200; vwap = (100*10 + 200*30) / 40 = 175
	expected := decimal.NewFromInt(175)
	if !vwap.Equal(expected) {
		t.Errorf("expected vwap %s, got %s", expected, vwap)
	}
}

func TestVWAP_ZeroVolumeFallsBackToCloseAverage(t *testing.T) {
	candles := []Candle{
		mkCandle(110, 90, 100, 0),
		mkCandle(210, 190, 200, 0),
	}

	vwap, err := VWAP(candles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := decimal.NewFromInt(150)
	if !vwap.Equal(expected) {
		t.Errorf("expected close average %s, got %s", expected, vwap)
	}
}

func TestVWAP_EmptySeries(t *testing.T) {
	_, err := VWAP(nil)
	if err != ErrEmptySeries {
		t.Errorf("expected ErrEmptySeries, got %v", err)
	}
}

func TestCandle_Valid(t *testing.T) {
	valid := mkCandle(110, 90, 100, 10)
	if !valid.Valid() {
		t.Error("expected candle to be valid")
	}

	invalid := Candle{
		Open:  decimal.NewFromInt(100),
		High:  decimal.NewFromInt(90), // high below open
		Low:   decimal.NewFromInt(80),
		Close: decimal.NewFromInt(85),
	}
	if invalid.Valid() {
		t.Error("expected candle to be invalid")
	}
}
