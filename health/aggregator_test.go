package health

import (
	"context"
	"slices"
	"sync/atomic"
	"testing"
	"time"
)

func healthy(name string) Checker {
	return NewCheckerFunc(name, func(context.Context) Result { return Healthy("ok") })
}

func TestNewAggregator(t *testing.T) {
	if agg := NewAggregator(); agg.config.Timeout != 10*time.Second {
		t.Errorf("default timeout = %v", agg.config.Timeout)
	}
	if agg := NewAggregator(AggregatorConfig{Timeout: 5 * time.Second}); agg.config.Timeout != 5*time.Second {
		t.Errorf("timeout = %v", agg.config.Timeout)
	}
}

func TestAggregator_RegisterUnregister(t *testing.T) {
	agg := NewAggregator()
	agg.Register(healthy("store"))
	agg.Register(healthy("database"))
	agg.Register(healthy("store"))

	if got := agg.CheckerNames(); !slices.Equal(got, []string{"store", "database"}) {
		t.Fatalf("names = %v", got)
	}

	agg.Unregister("store")
	if got := agg.CheckerNames(); !slices.Equal(got, []string{"database"}) {
		t.Fatalf("names after unregister = %v", got)
	}
}

func TestAggregator_Check(t *testing.T) {
	agg := NewAggregator()
	agg.Register(healthy("store"))

	result, err := agg.Check(context.Background(), "store")
	if err != nil || result.Status != StatusHealthy {
		t.Fatalf("Check = %+v, %v", result, err)
	}
	if _, err := agg.Check(context.Background(), "missing"); err != ErrCheckerNotFound {
		t.Errorf("missing err = %v", err)
	}
}

func TestAggregator_CheckAll(t *testing.T) {
	agg := NewAggregator()
	agg.Register(healthy("store"))
	agg.Register(NewCheckerFunc("s3", func(context.Context) Result { return Degraded("circuit open") }))

	results := agg.CheckAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("results = %v", results)
	}
	if results["s3"].Status != StatusDegraded || results["store"].Duration < 0 {
		t.Errorf("results = %+v", results)
	}
	if len(NewAggregator().CheckAll(context.Background())) != 0 {
		t.Error("empty aggregator returned results")
	}
}

func TestAggregator_Concurrency(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{Concurrency: 1})
	var running, peak atomic.Int32
	for _, name := range []string{"a", "b", "c"} {
		agg.Register(NewCheckerFunc(name, func(context.Context) Result {
			n := running.Add(1)
			if n > peak.Load() {
				peak.Store(n)
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return Healthy("ok")
		}))
	}
	if results := agg.CheckAll(context.Background()); len(results) != 3 {
		t.Fatalf("results = %v", results)
	}
	if peak.Load() != 1 {
		t.Errorf("peak concurrency = %d", peak.Load())
	}
}

func TestAggregator_CheckAllTimeout(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{Timeout: 20 * time.Millisecond})
	agg.Register(NewCheckerFunc("slow", func(ctx context.Context) Result {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return Healthy("late")
	}))

	r := agg.CheckAll(context.Background())["slow"]
	if r.Status != StatusUnhealthy || r.Error != ErrCheckTimeout {
		t.Errorf("slow = %+v", r)
	}
}

func TestAggregator_OverallStatus(t *testing.T) {
	agg := NewAggregator()
	tests := []struct {
		name    string
		results map[string]Result
		want    Status
	}{
		{"empty", map[string]Result{}, StatusHealthy},
		{"all healthy", map[string]Result{"a": Healthy("ok"), "b": Healthy("ok")}, StatusHealthy},
		{"one degraded", map[string]Result{"a": Healthy("ok"), "b": Degraded("slow")}, StatusDegraded},
		{"unhealthy wins", map[string]Result{"a": Degraded("slow"), "b": Unhealthy("down", nil)}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := agg.OverallStatus(tt.results); got != tt.want {
				t.Errorf("OverallStatus = %v, want %v", got, tt.want)
			}
		})
	}
}
