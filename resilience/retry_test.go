package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_Defaults(t *testing.T) {
	cfg := NewRetry(RetryConfig{}).Config()
	if cfg.MaxAttempts != 3 || cfg.InitialDelay != 50*time.Millisecond || cfg.MaxDelay != 2*time.Second || cfg.Multiplier != 2 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 4, InitialDelay: time.Millisecond})
	calls := 0
	err := r.Execute(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_ReturnsLastError(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond})
	calls := 0
	err := r.Execute(context.Background(), func(context.Context) error {
		calls++
		return errors.New("attempt failed")
	})
	if err == nil || err.Error() != "attempt failed" {
		t.Fatalf("err = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetry_PermanentStopsImmediately(t *testing.T) {
	missing := errors.New("object missing")
	r := NewRetry(RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond})
	calls := 0
	err := r.Execute(context.Background(), func(context.Context) error {
		calls++
		return Permanent(missing)
	})
	if !errors.Is(err, missing) {
		t.Fatalf("err = %v, want wrapped %v", err, missing)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_ContextCancelledDuringWait(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 3, InitialDelay: time.Hour, MaxDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	err := r.Execute(ctx, func(context.Context) error {
		cancel()
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestRetry_DelayStrategies(t *testing.T) {
	tests := []struct {
		strategy BackoffStrategy
		attempt  int
		want     time.Duration
	}{
		{BackoffConstant, 3, 10 * time.Millisecond},
		{BackoffLinear, 3, 30 * time.Millisecond},
		{BackoffExponential, 3, 40 * time.Millisecond},
		{BackoffExponential, 10, 100 * time.Millisecond},
	}
	for _, tt := range tests {
		r := NewRetry(RetryConfig{
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     100 * time.Millisecond,
			Strategy:     tt.strategy,
		})
		if got := r.delay(tt.attempt); got != tt.want {
			t.Errorf("strategy %d attempt %d: delay = %v, want %v", tt.strategy, tt.attempt, got, tt.want)
		}
	}
}

func TestParseBackoff(t *testing.T) {
	if ParseBackoff("linear") != BackoffLinear || ParseBackoff("constant") != BackoffConstant || ParseBackoff("") != BackoffExponential {
		t.Error("ParseBackoff mapping wrong")
	}
}

func TestIsPermanent(t *testing.T) {
	if IsPermanent(errors.New("x")) {
		t.Error("plain error is not permanent")
	}
	if !IsPermanent(Permanent(errors.New("x"))) {
		t.Error("marked error is permanent")
	}
	if !IsPermanent(context.Canceled) {
		t.Error("cancellation is permanent")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) must be nil")
	}
}
