package utils

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRoundDecimal(t *testing.T) {
	tests := []struct {
		name     string
		input    decimal.Decimal
		places   int32
		expected decimal.Decimal
	}{
		{"Round to 2 places", decimal.NewFromFloat(1.23456), 2, decimal.NewFromFloat(1.23)},
		{"Round to 0 places", decimal.NewFromFloat(1.6), 0, decimal.NewFromFloat(2)},
		{"Round to 4 places", decimal.NewFromFloat(1.23456), 4, decimal.NewFromFloat(1.2346)},
		{"No rounding needed", decimal.NewFromFloat(1.23), 2, decimal.NewFromFloat(1.23)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RoundDecimal(tt.input, tt.places)
			if !result.Equal(tt.expected) {
				t.Errorf("RoundDecimal(%v, %d) = %v, want %v", tt.input, tt.places, result, tt.expected)
			}
		})
	}
}

func TestAbsDecimal(t *testing.T) {
	tests := []struct {
		name     string
		input    decimal.Decimal
		expected decimal.Decimal
	}{
		{"positive", decimal.NewFromFloat(5.5), decimal.NewFromFloat(5.5)},
		{"negative", decimal.NewFromFloat(-3.2), decimal.NewFromFloat(3.2)},
		{"zero", decimal.Zero, decimal.Zero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := AbsDecimal(tt.input)
			if !result.Equal(tt.expected) {
				t.Errorf("AbsDecimal(%v) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestClampDecimal(t *testing.T) {
	tests := []struct {
		name     string
		value    decimal.Decimal
		min      decimal.Decimal
		max      decimal.Decimal
		expected decimal.Decimal
	}{
		{"within range", decimal.NewFromFloat(5), decimal.NewFromFloat(0), decimal.NewFromFloat(10), decimal.NewFromFloat(5)},
		{"below min", decimal.NewFromFloat(-5), decimal.NewFromFloat(0), decimal.NewFromFloat(10), decimal.NewFromFloat(0)},
		{"above max", decimal.NewFromFloat(15), decimal.NewFromFloat(0), decimal.NewFromFloat(10), decimal.NewFromFloat(10)},
		{"equal to min", decimal.NewFromFloat(0), decimal.NewFromFloat(0), decimal.NewFromFloat(10), decimal.NewFromFloat(0)},
		{"equal to max", decimal.NewFromFloat(10), decimal.NewFromFloat(0), decimal.NewFromFloat(10), decimal.NewFromFloat(10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ClampDecimal(tt.value, tt.min, tt.max)
			if !result.Equal(tt.expected) {
				t.Errorf("ClampDecimal(%v, %v, %v) = %v, want %v", tt.value, tt.min, tt.max, result, tt.expected)
			}
		})
	}
}
