package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func alwaysFail() error { return errBoom }
func alwaysOK() error   { return nil }

func tripOpen(t *testing.T, cb *CircuitBreaker, ctx context.Context, failures int) {
	t.Helper()
	for i := 0; i < failures; i++ {
		cb.Execute(ctx, alwaysFail)
	}
}

func TestNewStartsClosedWithNoFailures(t *testing.T) {
	cb := New("fresh", nil)
	if cb == nil {
		t.Fatal("expected a non-nil breaker")
	}
	if got := cb.State(); got != StateClosed {
		t.Errorf("initial state = %v, want %v", got, StateClosed)
	}
	if got := cb.Failures(); got != 0 {
		t.Errorf("initial failures = %d, want 0", got)
	}
}

func TestExecutePassesThroughSuccessAndFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("success keeps circuit closed", func(t *testing.T) {
		cb := New("ok", DefaultConfig())
		if err := cb.Execute(ctx, alwaysOK); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cb.State() != StateClosed {
			t.Errorf("state = %v, want %v", cb.State(), StateClosed)
		}
	})

	t.Run("failure below threshold stays closed", func(t *testing.T) {
		cb := New("below-threshold", &Config{MaxFailures: 3, Timeout: 100 * time.Millisecond, MaxHalfOpenRequests: 1})
		tripOpen(t, cb, ctx, 2)
		if cb.State() != StateClosed {
			t.Errorf("state after 2/3 failures = %v, want %v", cb.State(), StateClosed)
		}
	})

	t.Run("failure at threshold opens the circuit", func(t *testing.T) {
		cb := New("at-threshold", &Config{MaxFailures: 3, Timeout: 100 * time.Millisecond, MaxHalfOpenRequests: 1})
		tripOpen(t, cb, ctx, 3)
		if cb.State() != StateOpen {
			t.Errorf("state after 3/3 failures = %v, want %v", cb.State(), StateOpen)
		}
	})
}

func TestOpenCircuitRejectsUntilTimeout(t *testing.T) {
	ctx := context.Background()
	cb := New("reject", &Config{MaxFailures: 2, Timeout: 200 * time.Millisecond, MaxHalfOpenRequests: 1})
	tripOpen(t, cb, ctx, 2)

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() error = %v, want %v", err, ErrCircuitOpen)
	}
	if called {
		t.Error("wrapped function ran while circuit was open")
	}
}

func TestHalfOpenSuccessCloses(t *testing.T) {
	ctx := context.Background()
	cb := New("half-open-ok", &Config{MaxFailures: 2, Timeout: 100 * time.Millisecond, MaxHalfOpenRequests: 1})
	tripOpen(t, cb, ctx, 2)
	if cb.State() != StateOpen {
		t.Fatalf("setup: state = %v, want %v", cb.State(), StateOpen)
	}

	time.Sleep(150 * time.Millisecond)

	ran := false
	if err := cb.Execute(ctx, func() error { ran = true; return nil }); err != nil {
		t.Errorf("unexpected error in half-open probe: %v", err)
	}
	if !ran {
		t.Error("probe function did not run during half-open")
	}
	if cb.State() != StateClosed {
		t.Errorf("state after successful probe = %v, want %v", cb.State(), StateClosed)
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	ctx := context.Background()
	cb := New("half-open-fail", &Config{MaxFailures: 2, Timeout: 100 * time.Millisecond, MaxHalfOpenRequests: 1})
	tripOpen(t, cb, ctx, 2)

	time.Sleep(150 * time.Millisecond)

	if err := cb.Execute(ctx, alwaysFail); !errors.Is(err, errBoom) {
		t.Errorf("probe error = %v, want %v", err, errBoom)
	}
	if cb.State() != StateOpen {
		t.Errorf("state after failed probe = %v, want %v", cb.State(), StateOpen)
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	cb := New("reset-me", &Config{MaxFailures: 2, Timeout: 100 * time.Millisecond, MaxHalfOpenRequests: 1})
	tripOpen(t, cb, ctx, 2)
	if cb.State() != StateOpen {
		t.Fatalf("setup: state = %v, want %v", cb.State(), StateOpen)
	}

	cb.Reset()

	if cb.State() != StateClosed {
		t.Errorf("state after reset = %v, want %v", cb.State(), StateClosed)
	}
	if cb.Failures() != 0 {
		t.Errorf("failures after reset = %d, want 0", cb.Failures())
	}
	if err := cb.Execute(ctx, alwaysOK); err != nil {
		t.Errorf("unexpected error right after reset: %v", err)
	}
}

func TestOnStateChangeFiresInOrder(t *testing.T) {
	ctx := context.Background()
	var transitions []string

	cb := New("observed", &Config{
		MaxFailures:         2,
		Timeout:             100 * time.Millisecond,
		MaxHalfOpenRequests: 1,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	tripOpen(t, cb, ctx, 2)
	time.Sleep(150 * time.Millisecond)
	cb.Execute(ctx, alwaysOK)

	if len(transitions) < 2 {
		t.Fatalf("got %d transitions, want at least 2: %v", len(transitions), transitions)
	}
	if transitions[0] != "closed->open" {
		t.Errorf("first transition = %q, want %q", transitions[0], "closed->open")
	}
}

func TestStatsReflectsName(t *testing.T) {
	ctx := context.Background()
	cb := New("named-breaker", DefaultConfig())

	tripOpen(t, cb, ctx, 3)

	stats := cb.Stats()
	if stats.Name != "named-breaker" {
		t.Errorf("stats.Name = %q, want %q", stats.Name, "named-breaker")
	}
	if stats.Failures != 3 {
		t.Errorf("stats.Failures = %d, want 3", stats.Failures)
	}
	if stats.LastFailure.IsZero() {
		t.Error("stats.LastFailure was never set")
	}
	if stats.LastStateChange.IsZero() {
		t.Error("stats.LastStateChange was never set")
	}
}

func BenchmarkExecuteSuccess(b *testing.B) {
	cb := New("bench-ok", DefaultConfig())
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cb.Execute(ctx, alwaysOK)
	}
}

func BenchmarkExecuteFailure(b *testing.B) {
	cb := New("bench-fail", DefaultConfig())
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cb.Execute(ctx, alwaysFail)
	}
}
