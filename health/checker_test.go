package health

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jonwraymond/pipecache/resilience"
	"github.com/jonwraymond/pipecache/store"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusHealthy, "healthy"},
		{StatusDegraded, "degraded"},
		{StatusUnhealthy, "unhealthy"},
		{Status(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.status.String(); got != tt.want {
				t.Errorf("Status.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResultConstructors(t *testing.T) {
	if r := Healthy("ok"); r.Status != StatusHealthy || r.Timestamp.IsZero() {
		t.Errorf("Healthy = %+v", r)
	}
	if r := Degraded("slow"); r.Status != StatusDegraded || r.Message != "slow" {
		t.Errorf("Degraded = %+v", r)
	}
	testErr := errors.New("boom")
	if r := Unhealthy("down", testErr); r.Status != StatusUnhealthy || r.Error != testErr {
		t.Errorf("Unhealthy = %+v", r)
	}
	r := Healthy("ok").WithDetails(map[string]any{"entries": 3})
	if r.Details["entries"] != 3 {
		t.Errorf("Details = %v", r.Details)
	}
}

func TestProbeChecker_Store(t *testing.T) {
	dir := t.TempDir()
	s, err := store.New(store.Config{Directory: dir})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	c := NewProbeChecker("store", s)
	if c.Name() != "store" {
		t.Errorf("Name = %q", c.Name())
	}
	if r := c.Check(context.Background()); r.Status != StatusHealthy {
		t.Fatalf("Check = %+v", r)
	}

	// A store whose directory turned into a file cannot be written.
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dir, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Remove(dir) })
	if r := c.Check(context.Background()); r.Status != StatusUnhealthy || r.Error == nil {
		t.Fatalf("Check after removal = %+v", r)
	}
}

func TestProbeChecker_Func(t *testing.T) {
	down := errors.New("connection refused")
	c := NewProbeChecker("database", ProbeFunc(func(context.Context) error { return down }))
	r := c.Check(context.Background())
	if r.Status != StatusUnhealthy || !errors.Is(r.Error, down) {
		t.Errorf("Check = %+v", r)
	}
}

func TestBreakerChecker(t *testing.T) {
	if r := NewBreakerChecker("s3", nil).Check(context.Background()); r.Status != StatusHealthy {
		t.Errorf("nil breaker = %+v", r)
	}

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})
	c := NewBreakerChecker("s3", cb)
	if r := c.Check(context.Background()); r.Status != StatusHealthy || r.Details["state"] != "closed" {
		t.Fatalf("closed = %+v", r)
	}

	fail := func(context.Context) error { return errors.New("503") }
	for range 2 {
		_ = cb.Execute(context.Background(), fail)
	}
	r := c.Check(context.Background())
	if r.Status != StatusDegraded || !errors.Is(r.Error, ErrCircuitOpen) || r.Details["state"] != "open" {
		t.Fatalf("open = %+v", r)
	}
}
