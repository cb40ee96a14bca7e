package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExecutor_NoPatterns(t *testing.T) {
	ran := false
	if err := NewExecutor().Execute(context.Background(), func(context.Context) error {
		ran = true
		return nil
	}); err != nil || !ran {
		t.Fatalf("err=%v ran=%v", err, ran)
	}
}

func TestExecutor_TimeoutPerAttempt(t *testing.T) {
	e := NewExecutor(
		WithRetry(NewRetry(RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond})),
		WithTimeout(10*time.Millisecond),
	)
	attempts := 0
	err := e.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

// TestExecutor_BreakerWrapsRetry verifies a retried call counts once
// against the breaker.
func TestExecutor_BreakerWrapsRetry(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2})
	e := NewExecutor(
		WithCircuitBreaker(cb),
		WithRetry(NewRetry(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond})),
	)
	_ = e.Execute(context.Background(), fail)
	if cb.State() != StateClosed {
		t.Fatal("one retried call must count as one failure")
	}
	_ = e.Execute(context.Background(), fail)
	if cb.State() != StateOpen {
		t.Fatal("expected open after two failed calls")
	}
	if e.CircuitBreaker() != cb {
		t.Error("CircuitBreaker() accessor mismatch")
	}
}

func TestNewExecutorFromConfig(t *testing.T) {
	e := NewExecutorFromConfig(Config{})
	if e.timeout != nil || e.retry != nil || e.circuitBreaker != nil {
		t.Fatal("zero config must disable every pattern")
	}

	e = NewExecutorFromConfig(Config{
		Timeout:         time.Second,
		Attempts:        4,
		Backoff:         "linear",
		BreakerFailures: 3,
		BreakerReset:    time.Minute,
	})
	if e.timeout == nil || e.timeout.Config().Timeout != time.Second {
		t.Error("timeout not configured")
	}
	if e.retry == nil || e.retry.Config().MaxAttempts != 4 || e.retry.Config().Strategy != BackoffLinear {
		t.Error("retry not configured")
	}
	if e.circuitBreaker == nil || e.circuitBreaker.config.MaxFailures != 3 {
		t.Error("breaker not configured")
	}
}

func TestTimeout_InheritedDeadlineNotWrapped(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-ctx.Done()

	err := NewTimeout(TimeoutConfig{Timeout: time.Hour}).Execute(ctx, func(ctx context.Context) error {
		return ctx.Err()
	})
	if errors.Is(err, ErrTimeout) {
		t.Fatal("caller's own deadline must not be reported as ErrTimeout")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}
