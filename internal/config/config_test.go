package config

import "testing"

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()

	if cfg.ScheduleAwaitMinutes <= 0 {
		t.Error("expected positive ScheduleAwaitMinutes")
	}
	if err := cfg.validate(); err != nil {
		t.Errorf("expected default config to validate, got %v", err)
	}
}

func TestValidate_RejectsInvertedTakeProfitBand(t *testing.T) {
	cfg := Default()
	cfg.MinTakeProfitDistancePct = cfg.MaxTakeProfitDistancePct

	if err := cfg.validate(); err == nil {
		t.Error("expected validation error for inverted take-profit band")
	}
}

func TestValidate_RejectsNonPositiveLifetime(t *testing.T) {
	cfg := Default()
	cfg.MaxSignalLifetimeMinutes = 0

	if err := cfg.validate(); err == nil {
		t.Error("expected validation error for zero lifetime")
	}
}
