package observe

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

// LatencyTracker keeps per-operation latency quantiles in DDSketches.
// Operations are free-form strings; the middleware uses
// "<pipeline>/<outcome>".
type LatencyTracker struct {
	mu               sync.Mutex
	sketches         map[string]*ddsketch.DDSketch
	relativeAccuracy float64
}

// NewLatencyTracker creates a tracker. relativeAccuracy bounds the quantile
// error (0.01 = 1%); values outside (0, 1) fall back to 0.01.
func NewLatencyTracker(relativeAccuracy float64) *LatencyTracker {
	if relativeAccuracy <= 0 || relativeAccuracy >= 1 {
		relativeAccuracy = 0.01
	}
	return &LatencyTracker{
		sketches:         make(map[string]*ddsketch.DDSketch),
		relativeAccuracy: relativeAccuracy,
	}
}

// Record adds one duration sample for the operation.
func (lt *LatencyTracker) Record(operation string, d time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	sketch, ok := lt.sketches[operation]
	if !ok {
		var err error
		sketch, err = ddsketch.LogUnboundedDenseDDSketch(lt.relativeAccuracy)
		if err != nil {
			sketch, _ = ddsketch.NewDefaultDDSketch(lt.relativeAccuracy)
		}
		lt.sketches[operation] = sketch
	}

	// DDSketch rejects negative values; clock skew can produce them.
	ms := float64(d.Microseconds()) / 1000.0
	if ms < 0 {
		ms = 0
	}
	_ = sketch.Add(ms)
}

// LatencyStats are quantiles in milliseconds.
type LatencyStats struct {
	Operation string  `json:"operation"`
	Count     int64   `json:"count"`
	Min       float64 `json:"min_ms"`
	P50       float64 `json:"p50_ms"`
	P90       float64 `json:"p90_ms"`
	P99       float64 `json:"p99_ms"`
	Max       float64 `json:"max_ms"`
}

// Stats returns statistics for one operation.
func (lt *LatencyTracker) Stats(operation string) (LatencyStats, error) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.statsLocked(operation)
}

func (lt *LatencyTracker) statsLocked(operation string) (LatencyStats, error) {
	sketch, ok := lt.sketches[operation]
	if !ok {
		return LatencyStats{}, fmt.Errorf("%w: %s", ErrNoData, operation)
	}

	stats := LatencyStats{Operation: operation, Count: int64(sketch.GetCount())}
	if stats.Count == 0 {
		return stats, nil
	}

	stats.Min, _ = sketch.GetMinValue()
	stats.P50, _ = sketch.GetValueAtQuantile(0.50)
	stats.P90, _ = sketch.GetValueAtQuantile(0.90)
	stats.P99, _ = sketch.GetValueAtQuantile(0.99)
	stats.Max, _ = sketch.GetMaxValue()
	return stats, nil
}

// All returns statistics for every tracked operation, sorted by name.
func (lt *LatencyTracker) All() []LatencyStats {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	names := make([]string, 0, len(lt.sketches))
	for name := range lt.sketches {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]LatencyStats, 0, len(names))
	for _, name := range names {
		if s, err := lt.statsLocked(name); err == nil {
			out = append(out, s)
		}
	}
	return out
}

func (s LatencyStats) String() string {
	if s.Count == 0 {
		return fmt.Sprintf("%s: no data", s.Operation)
	}
	return fmt.Sprintf("%s (n=%d): min=%.2fms p50=%.2fms p90=%.2fms p99=%.2fms max=%.2fms",
		s.Operation, s.Count, s.Min, s.P50, s.P90, s.P99, s.Max)
}
