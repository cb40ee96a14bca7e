package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures int, clock *fakeClock, changes *[]string) *CircuitBreaker {
	return NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  maxFailures,
		ResetTimeout: time.Minute,
		now:          clock.now,
		OnStateChange: func(from, to State) {
			*changes = append(*changes, from.String()+"->"+to.String())
		},
	})
}

func fail(context.Context) error    { return errors.New("upstream down") }
func succeed(context.Context) error { return nil }

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	var changes []string
	cb := newTestBreaker(2, clock, &changes)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	if cb.State() != StateClosed {
		t.Fatal("one failure must not open the circuit")
	}
	_ = cb.Execute(ctx, fail)
	if cb.State() != StateOpen {
		t.Fatal("expected open after two failures")
	}

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("open circuit must reject: err=%v called=%v", err, called)
	}

	clock.advance(time.Minute)
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open", cb.State())
	}
	if err := cb.Execute(ctx, succeed); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed", cb.State())
	}

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(changes) != len(want) {
		t.Fatalf("changes = %v, want %v", changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("change %d = %s, want %s", i, changes[i], want[i])
		}
	}

	m := cb.Metrics()
	if m.Rejected != 1 || m.StateStr != "closed" {
		t.Errorf("metrics = %+v", m)
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	var changes []string
	cb := newTestBreaker(1, clock, &changes)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock.advance(time.Minute)
	_ = cb.Execute(ctx, fail)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}
}

func TestCircuitBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1})
	for range 5 {
		_ = cb.Execute(context.Background(), func(context.Context) error {
			return Permanent(errors.New("not found"))
		})
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1})
	_ = cb.Execute(context.Background(), fail)
	cb.Reset()
	if cb.State() != StateClosed || cb.Metrics().Failures != 0 {
		t.Fatal("Reset must close the circuit")
	}
}
