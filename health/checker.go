package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/pipecache/resilience"
)

// Status represents the health status of a component.
type Status int

const (
	// StatusHealthy indicates the component is functioning normally.
	StatusHealthy Status = iota
	// StatusDegraded indicates the component works with reduced capacity.
	StatusDegraded
	// StatusUnhealthy indicates the component is not functioning.
	StatusUnhealthy
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Result contains the outcome of a health check.
type Result struct {
	Status   Status
	Message  string
	Details  map[string]any
	Duration time.Duration

	// Timestamp is when the check was performed.
	Timestamp time.Time

	Error error
}

// Healthy creates a healthy result.
func Healthy(message string) Result {
	return Result{Status: StatusHealthy, Message: message, Timestamp: time.Now()}
}

// Degraded creates a degraded result.
func Degraded(message string) Result {
	return Result{Status: StatusDegraded, Message: message, Timestamp: time.Now()}
}

// Unhealthy creates an unhealthy result.
func Unhealthy(message string, err error) Result {
	return Result{Status: StatusUnhealthy, Message: message, Error: err, Timestamp: time.Now()}
}

// WithDetails adds details to a result.
func (r Result) WithDetails(details map[string]any) Result {
	r.Details = details
	return r
}

// Checker is the interface for health checks.
//
// Contract:
//   - Concurrency: Check may be called concurrently.
//   - Context: Check must return promptly once ctx is done.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

// CheckerFunc adapts a function to a Checker.
type CheckerFunc struct {
	name string
	fn   func(context.Context) Result
}

// NewCheckerFunc creates a new CheckerFunc.
func NewCheckerFunc(name string, fn func(context.Context) Result) *CheckerFunc {
	return &CheckerFunc{name: name, fn: fn}
}

// Name returns the name of this checker.
func (f *CheckerFunc) Name() string { return f.name }

// Check performs the health check.
func (f *CheckerFunc) Check(ctx context.Context) Result { return f.fn(ctx) }

// Prober is implemented by components that can verify they are usable,
// such as *store.FilesystemStore.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProbeFunc adapts a function, for example (*sql.DB).PingContext, to a
// Prober.
type ProbeFunc func(ctx context.Context) error

// Probe calls f.
func (f ProbeFunc) Probe(ctx context.Context) error { return f(ctx) }

// ProbeChecker reports Unhealthy when its probe fails.
type ProbeChecker struct {
	name   string
	prober Prober
}

// NewProbeChecker creates a checker over p.
func NewProbeChecker(name string, p Prober) *ProbeChecker {
	return &ProbeChecker{name: name, prober: p}
}

// Name implements Checker.
func (c *ProbeChecker) Name() string { return c.name }

// Check implements Checker.
func (c *ProbeChecker) Check(ctx context.Context) Result {
	if err := c.prober.Probe(ctx); err != nil {
		return Unhealthy(fmt.Sprintf("%s probe failed", c.name), err)
	}
	return Healthy("ok")
}

// BreakerChecker reports the state of a circuit breaker. An open circuit
// is Degraded: requests touching that source fail fast while the rest of
// the server keeps serving.
type BreakerChecker struct {
	name string
	cb   *resilience.CircuitBreaker
}

// NewBreakerChecker creates a checker over cb. A nil breaker is always
// healthy.
func NewBreakerChecker(name string, cb *resilience.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{name: name, cb: cb}
}

// Name implements Checker.
func (c *BreakerChecker) Name() string { return c.name }

// Check implements Checker.
func (c *BreakerChecker) Check(context.Context) Result {
	if c.cb == nil {
		return Healthy("no circuit breaker")
	}
	m := c.cb.Metrics()
	details := map[string]any{
		"state":                m.StateStr,
		"consecutive_failures": m.Failures,
		"rejected":             m.Rejected,
	}
	switch m.State {
	case resilience.StateOpen:
		r := Degraded("circuit open").WithDetails(details)
		r.Error = ErrCircuitOpen
		return r
	case resilience.StateHalfOpen:
		return Degraded("circuit half-open").WithDetails(details)
	default:
		return Healthy("circuit closed").WithDetails(details)
	}
}
