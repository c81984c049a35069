// Package config loads the process-wide CC_* settings bundle through
// viper: each key comes from the environment when set there and falls back
// to a built-in default otherwise. No config file is read.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the read-once, process-wide settings bundle. It is constructed
// by Load and then passed by reference through every port constructor —
// nothing in this module reads it from a global afterward.
type Config struct {
	ScheduleAwaitMinutes     int
	AvgPriceCandlesCount     int
	PercentSlippage          decimal.Decimal
	PercentFee               decimal.Decimal
	MinTakeProfitDistancePct decimal.Decimal
	MaxTakeProfitDistancePct decimal.Decimal
	MinStopLossDistancePct   decimal.Decimal
	MaxStopLossDistancePct   decimal.Decimal
	MaxSignalLifetimeMinutes int
	MaxSignalGenerationSecs  time.Duration

	GetCandlesRetryCount            int
	GetCandlesRetryDelay            time.Duration
	MaxCandlesPerRequest            int
	GetCandlesPriceAnomalyThreshold decimal.Decimal
	GetCandlesMinCandlesForMedian   int

	BreakevenThresholdPct decimal.Decimal
}

type keyDefault struct {
	key   string
	value any
}

func defaults() []keyDefault {
	return []keyDefault{
		{"cc_schedule_await_minutes", 60},
		{"cc_avg_price_candles_count", 5},
		{"cc_percent_slippage", "0.1"},
		{"cc_percent_fee", "0.1"},
		{"cc_min_takeprofit_distance_percent", "0.2"},
		{"cc_max_takeprofit_distance_percent", "20"},
		{"cc_min_stoploss_distance_percent", "0.2"},
		{"cc_max_stoploss_distance_percent", "10"},
		{"cc_max_signal_lifetime_minutes", 1440},
		{"cc_max_signal_generation_seconds", 10},
		{"cc_get_candles_retry_count", 3},
		{"cc_get_candles_retry_delay_ms", 500},
		{"cc_max_candles_per_request", 1000},
		{"cc_get_candles_price_anomaly_threshold_factor", "5"},
		{"cc_get_candles_min_candles_for_median", 5},
		{"cc_breakeven_threshold", "1"},
	}
}

// Load reads CC_* settings from the environment, falling back to the
// built-in defaults, and validates them. It uses its own viper instance, so
// settings made on the global viper (such as a config file) are not seen.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, d := range defaults() {
		v.SetDefault(d.key, d.value)
	}

	cfg := fromViper(v)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config populated entirely from defaults, bypassing the
// environment. Used by tests and by callers that want deterministic values.
func Default() *Config {
	v := viper.New()
	for _, d := range defaults() {
		v.SetDefault(d.key, d.value)
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		ScheduleAwaitMinutes:            v.GetInt("cc_schedule_await_minutes"),
		AvgPriceCandlesCount:            v.GetInt("cc_avg_price_candles_count"),
		PercentSlippage:                 mustDecimal(v.GetString("cc_percent_slippage")),
		PercentFee:                      mustDecimal(v.GetString("cc_percent_fee")),
		MinTakeProfitDistancePct:        mustDecimal(v.GetString("cc_min_takeprofit_distance_percent")),
		MaxTakeProfitDistancePct:        mustDecimal(v.GetString("cc_max_takeprofit_distance_percent")),
		MinStopLossDistancePct:          mustDecimal(v.GetString("cc_min_stoploss_distance_percent")),
		MaxStopLossDistancePct:          mustDecimal(v.GetString("cc_max_stoploss_distance_percent")),
		MaxSignalLifetimeMinutes:        v.GetInt("cc_max_signal_lifetime_minutes"),
		MaxSignalGenerationSecs:         time.Duration(v.GetInt("cc_max_signal_generation_seconds")) * time.Second,
		GetCandlesRetryCount:            v.GetInt("cc_get_candles_retry_count"),
		GetCandlesRetryDelay:            time.Duration(v.GetInt("cc_get_candles_retry_delay_ms")) * time.Millisecond,
		MaxCandlesPerRequest:            v.GetInt("cc_max_candles_per_request"),
		GetCandlesPriceAnomalyThreshold: mustDecimal(v.GetString("cc_get_candles_price_anomaly_threshold_factor")),
		GetCandlesMinCandlesForMedian:   v.GetInt("cc_get_candles_min_candles_for_median"),
		BreakevenThresholdPct:           mustDecimal(v.GetString("cc_breakeven_threshold")),
	}
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (c *Config) validate() error {
	var problems []string

	if c.ScheduleAwaitMinutes <= 0 {
		problems = append(problems, "cc_schedule_await_minutes must be positive")
	}
	if c.AvgPriceCandlesCount <= 0 {
		problems = append(problems, "cc_avg_price_candles_count must be positive")
	}
	if c.MaxSignalLifetimeMinutes <= 0 {
		problems = append(problems, "cc_max_signal_lifetime_minutes must be positive")
	}
	if c.MinTakeProfitDistancePct.GreaterThanOrEqual(c.MaxTakeProfitDistancePct) {
		problems = append(problems, "cc_min_takeprofit_distance_percent must be below cc_max_takeprofit_distance_percent")
	}
	if c.MinStopLossDistancePct.GreaterThanOrEqual(c.MaxStopLossDistancePct) {
		problems = append(problems, "cc_min_stoploss_distance_percent must be below cc_max_stoploss_distance_percent")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
