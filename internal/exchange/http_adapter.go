package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lumenquant/coreengine/internal/candle"
	"github.com/lumenquant/coreengine/internal/circuitbreaker"
	"github.com/lumenquant/coreengine/internal/config"
	"github.com/lumenquant/coreengine/internal/logger"
	"github.com/lumenquant/coreengine/internal/ratelimit"
)

// CandleFetcher is the minimal venue-specific surface an HTTPAdapter needs:
// turning a (symbol, interval, limit, before) request into raw candles. A
// concrete venue integration implements this against its REST API; the
// adapter owns retries, rate limiting, the circuit breaker, and anomaly
// detection so venue code stays thin.
type CandleFetcher interface {
	FetchCandles(ctx context.Context, symbol string, interval Interval, limit int, before time.Time) ([]candle.Candle, error)
}

// HTTPAdapter implements Exchange over a CandleFetcher, adding bounded
// retries with backoff, a rate limiter pacing outbound calls, a circuit
// breaker protecting against a flapping venue, and a median-deviation
// anomaly guard. The resilience layer is composed from internal/circuitbreaker
// and internal/ratelimit and kept venue-agnostic behind the CandleFetcher
// seam, so venue integrations only need to implement candle fetching.
type HTTPAdapter struct {
	name     string
	fetcher  CandleFetcher
	cfg      *config.Config
	breaker  *circuitbreaker.CircuitBreaker
	limiter  ratelimit.Limiter
	pricePrecision map[string]int32
	qtyPrecision   map[string]int32
	log      *logger.Logger
}

// HTTPAdapterOption customizes per-symbol formatting precision.
type HTTPAdapterOption func(*HTTPAdapter)

// WithPricePrecision sets the decimal places FormatPrice uses for symbol.
func WithPricePrecision(symbol string, places int32) HTTPAdapterOption {
	return func(a *HTTPAdapter) { a.pricePrecision[symbol] = places }
}

// WithQuantityPrecision sets the decimal places FormatQuantity uses for symbol.
func WithQuantityPrecision(symbol string, places int32) HTTPAdapterOption {
	return func(a *HTTPAdapter) { a.qtyPrecision[symbol] = places }
}

// NewHTTPAdapter wires a CandleFetcher into the resilient Exchange port.
func NewHTTPAdapter(name string, fetcher CandleFetcher, cfg *config.Config, opts ...HTTPAdapterOption) *HTTPAdapter {
	a := &HTTPAdapter{
		name:    name,
		fetcher: fetcher,
		cfg:     cfg,
		breaker: circuitbreaker.New(name, circuitbreaker.DefaultConfig()),
		limiter: ratelimit.NewTokenBucket(10, 20),
		pricePrecision: make(map[string]int32),
		qtyPrecision:   make(map[string]int32),
		log:     logger.Component("exchange-http").WithField("exchange", name),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *HTTPAdapter) Name() string { return a.name }

func (a *HTTPAdapter) GetCandles(ctx context.Context, symbol string, interval Interval, limit int, now time.Time) ([]candle.Candle, error) {
	if limit > a.cfg.MaxCandlesPerRequest {
		limit = a.cfg.MaxCandlesPerRequest
	}

	var result []candle.Candle
	var lastErr error

	for attempt := 0; attempt <= a.cfg.GetCandlesRetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(a.cfg.GetCandlesRetryDelay * time.Duration(attempt)):
			}
		}

		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		err := a.breaker.Execute(ctx, func() error {
			candles, fetchErr := a.fetcher.FetchCandles(ctx, symbol, interval, limit, now)
			if fetchErr != nil {
				return fetchErr
			}
			result = candles
			return nil
		})
		if err == nil {
			break
		}
		lastErr = err
	}

	if lastErr != nil && result == nil {
		return nil, &Error{Kind: KindTransient, Exchange: a.name, Symbol: symbol, Err: lastErr}
	}

	filtered := make([]candle.Candle, 0, len(result))
	for _, c := range result {
		if c.Timestamp.After(now) {
			continue
		}
		filtered = append(filtered, c)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Timestamp.Before(filtered[j].Timestamp) })

	if err := a.checkAnomaly(filtered); err != nil {
		return nil, &Error{Kind: KindFatal, Exchange: a.name, Symbol: symbol, Err: err}
	}

	return filtered, nil
}

func (a *HTTPAdapter) GetNextCandles(ctx context.Context, symbol string, interval Interval, limit int, now time.Time, backtest bool) ([]candle.Candle, error) {
	if !backtest {
		return nil, ErrNotBacktest
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	candles, err := a.fetcher.FetchCandles(ctx, symbol, interval, limit, now.Add(time.Duration(limit)*time.Minute))
	if err != nil {
		return nil, &Error{Kind: KindTransient, Exchange: a.name, Symbol: symbol, Err: err}
	}

	var result []candle.Candle
	for _, c := range candles {
		if c.Timestamp.Before(now) {
			continue
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.Before(result[j].Timestamp) })
	return result, nil
}

func (a *HTTPAdapter) GetAveragePrice(ctx context.Context, symbol string, avgPriceCandlesCount int, now time.Time) (decimal.Decimal, error) {
	return AveragePrice(ctx, a, symbol, avgPriceCandlesCount, now)
}

func (a *HTTPAdapter) FormatPrice(symbol string, price decimal.Decimal) string {
	places, ok := a.pricePrecision[symbol]
	if !ok {
		places = 2
	}
	return price.StringFixed(places)
}

func (a *HTTPAdapter) FormatQuantity(symbol string, qty decimal.Decimal) string {
	places, ok := a.qtyPrecision[symbol]
	if !ok {
		places = 6
	}
	return qty.StringFixed(places)
}

// checkAnomaly rejects a candle batch whose closes deviate from the median
// close by more than GetCandlesPriceAnomalyThreshold, once at least
// GetCandlesMinCandlesForMedian candles are present.
func (a *HTTPAdapter) checkAnomaly(candles []candle.Candle) error {
	if len(candles) == 0 {
		return ErrNoCandles
	}
	for _, c := range candles {
		if !c.Valid() {
			return fmt.Errorf("exchange: invalid candle at %v", c.Timestamp)
		}
	}
	if len(candles) < a.cfg.GetCandlesMinCandlesForMedian {
		return nil
	}

	closes := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	sort.Slice(closes, func(i, j int) bool { return closes[i].LessThan(closes[j]) })
	median := closes[len(closes)/2]
	if median.IsZero() {
		return nil
	}

	threshold := a.cfg.GetCandlesPriceAnomalyThreshold
	for _, c := range candles {
		deviation := c.Close.Sub(median).Abs().Div(median)
		if deviation.GreaterThan(threshold) {
			return fmt.Errorf("exchange: price anomaly at %v: close %s deviates %s from median %s",
				c.Timestamp, c.Close, deviation, median)
		}
	}
	return nil
}

// HTTPCandleFetcher is a reference CandleFetcher hitting a REST endpoint
// that returns a JSON array of [timestamp_ms, open, high, low, close, volume]
// tuples, the common shape across spot exchange kline endpoints.
type HTTPCandleFetcher struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPCandleFetcher(baseURL string) *HTTPCandleFetcher {
	return &HTTPCandleFetcher{BaseURL: baseURL, Client: &http.Client{Timeout: 10 * time.Second}}
}

func (f *HTTPCandleFetcher) FetchCandles(ctx context.Context, symbol string, interval Interval, limit int, before time.Time) ([]candle.Candle, error) {
	url := fmt.Sprintf("%s/klines?symbol=%s&interval=%s&limit=%d&endTime=%d",
		f.BaseURL, symbol, interval, limit, before.UnixMilli())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("exchange http: status %d: %s", resp.StatusCode, string(body))
	}

	var raw [][]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("exchange http: decode: %w", err)
	}

	candles := make([]candle.Candle, 0, len(raw))
	for _, row := range raw {
		c, err := parseKlineRow(row)
		if err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func parseKlineRow(row []any) (candle.Candle, error) {
	if len(row) < 6 {
		return candle.Candle{}, fmt.Errorf("exchange http: malformed kline row")
	}
	ts, ok := row[0].(float64)
	if !ok {
		return candle.Candle{}, fmt.Errorf("exchange http: malformed timestamp")
	}

	toDecimal := func(v any) decimal.Decimal {
		switch t := v.(type) {
		case string:
			d, _ := decimal.NewFromString(t)
			return d
		case float64:
			return decimal.NewFromFloat(t)
		default:
			return decimal.Zero
		}
	}

	return candle.Candle{
		Timestamp: time.UnixMilli(int64(ts)).UTC(),
		Open:      toDecimal(row[1]),
		High:      toDecimal(row[2]),
		Low:       toDecimal(row[3]),
		Close:     toDecimal(row[4]),
		Volume:    toDecimal(row[5]),
	}, nil
}
