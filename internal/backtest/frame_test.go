package backtest

import (
	"testing"
	"time"
)

func TestFrame_TimestampsInclusiveRange(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(4 * time.Minute)
	f := Frame{Name: "m1", Interval: time.Minute, StartDate: start, EndDate: end}

	ts := f.Timestamps()
	if len(ts) != 5 {
		t.Fatalf("expected 5 timestamps, got %d", len(ts))
	}
	if !ts[0].Equal(start) {
		t.Errorf("expected first timestamp %v, got %v", start, ts[0])
	}
	if !ts[len(ts)-1].Equal(end) {
		t.Errorf("expected last timestamp %v, got %v", end, ts[len(ts)-1])
	}
}

func TestFrame_ZeroIntervalYieldsNil(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := Frame{Name: "m1", StartDate: start, EndDate: start.Add(time.Hour)}
	if ts := f.Timestamps(); ts != nil {
		t.Errorf("expected nil for zero interval, got %v", ts)
	}
}

func TestFrame_BackwardsRangeYieldsNil(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := Frame{Name: "m1", Interval: time.Minute, StartDate: start, EndDate: start.Add(-time.Minute)}
	if ts := f.Timestamps(); ts != nil {
		t.Errorf("expected nil for backwards range, got %v", ts)
	}
}
