package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lumenquant/coreengine/internal/candle"
	"github.com/lumenquant/coreengine/internal/config"
)

type fakeFetcher struct {
	failuresBeforeSuccess int
	calls                 int
	candles               []candle.Candle
	err                   error
}

func (f *fakeFetcher) FetchCandles(ctx context.Context, symbol string, interval Interval, limit int, before time.Time) ([]candle.Candle, error) {
	f.calls++
	if f.calls <= f.failuresBeforeSuccess {
		return nil, errors.New("simulated transient failure")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.candles, nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.GetCandlesRetryCount = 3
	cfg.GetCandlesRetryDelay = time.Millisecond
	cfg.MaxCandlesPerRequest = 100
	cfg.GetCandlesMinCandlesForMedian = 3
	cfg.GetCandlesPriceAnomalyThreshold = decimal.NewFromFloat(0.5)
	return cfg
}

func TestHTTPAdapter_RetriesTransientFailures(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{
		failuresBeforeSuccess: 2,
		candles: []candle.Candle{
			mkCandle(base, 101, 99, 100, 10),
		},
	}
	adapter := NewHTTPAdapter("test", fetcher, testConfig())

	got, err := adapter.GetCandles(context.Background(), "BTC-USD", OneMinute, 10, base)
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candle, got %d", len(got))
	}
	if fetcher.calls != 3 {
		t.Errorf("expected 3 attempts (2 failures + 1 success), got %d", fetcher.calls)
	}
}

func TestHTTPAdapter_ExhaustedRetriesSurfaceTransientError(t *testing.T) {
	fetcher := &fakeFetcher{failuresBeforeSuccess: 100}
	adapter := NewHTTPAdapter("test", fetcher, testConfig())

	_, err := adapter.GetCandles(context.Background(), "BTC-USD", OneMinute, 10, time.Now())
	var exErr *Error
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !errors.As(err, &exErr) || exErr.Kind != KindTransient {
		t.Errorf("expected transient exchange error, got %v", err)
	}
}

func TestHTTPAdapter_AnomalyDetection(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{candles: []candle.Candle{
		mkCandle(base, 101, 99, 100, 10),
		mkCandle(base.Add(time.Minute), 102, 100, 101, 10),
		mkCandle(base.Add(2*time.Minute), 500, 498, 499, 10), // wild outlier
	}}
	adapter := NewHTTPAdapter("test", fetcher, testConfig())

	_, err := adapter.GetCandles(context.Background(), "BTC-USD", OneMinute, 10, base.Add(2*time.Minute))
	var exErr *Error
	if err == nil {
		t.Fatal("expected anomaly error")
	}
	if !errors.As(err, &exErr) || exErr.Kind != KindFatal {
		t.Errorf("expected fatal exchange error for anomaly, got %v", err)
	}
}

func TestHTTPAdapter_GetNextCandles_RejectsLiveMode(t *testing.T) {
	adapter := NewHTTPAdapter("test", &fakeFetcher{}, testConfig())
	_, err := adapter.GetNextCandles(context.Background(), "BTC-USD", OneMinute, 5, time.Now(), false)
	if err != ErrNotBacktest {
		t.Errorf("expected ErrNotBacktest, got %v", err)
	}
}

func TestHTTPAdapter_FormatPrice_DefaultsAndOverrides(t *testing.T) {
	adapter := NewHTTPAdapter("test", &fakeFetcher{}, testConfig(), WithPricePrecision("BTC-USD", 1))
	if got := adapter.FormatPrice("BTC-USD", decimal.NewFromFloat(100.456)); got != "100.5" {
		t.Errorf("expected overridden precision, got %s", got)
	}
	if got := adapter.FormatPrice("ETH-USD", decimal.NewFromFloat(100.456)); got != "100.46" {
		t.Errorf("expected default precision, got %s", got)
	}
}
