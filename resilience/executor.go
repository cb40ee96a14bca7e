package resilience

import (
	"context"
	"time"
)

// Executor composes a circuit breaker, retry and per-attempt timeout.
// Order from the outside in: breaker, retry, timeout. A breaker that opens
// therefore rejects the whole call, not individual attempts.
type Executor struct {
	circuitBreaker *CircuitBreaker
	retry          *Retry
	timeout        *Timeout
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates an executor. With no options it simply runs the
// operation.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithCircuitBreaker adds a circuit breaker.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) { e.circuitBreaker = cb }
}

// WithRetry adds retries.
func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) { e.retry = r }
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = NewTimeout(TimeoutConfig{Timeout: d}) }
}

// CircuitBreaker returns the configured breaker, or nil.
func (e *Executor) CircuitBreaker() *CircuitBreaker { return e.circuitBreaker }

// Execute runs op through the configured patterns.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	run := op

	if e.timeout != nil {
		inner := run
		run = func(ctx context.Context) error { return e.timeout.Execute(ctx, inner) }
	}
	if e.retry != nil {
		inner := run
		run = func(ctx context.Context) error { return e.retry.Execute(ctx, inner) }
	}
	if e.circuitBreaker != nil {
		inner := run
		run = func(ctx context.Context) error { return e.circuitBreaker.Execute(ctx, inner) }
	}
	return run(ctx)
}

// Config describes an executor declaratively. Zero fields disable the
// corresponding pattern.
type Config struct {
	// Timeout bounds each attempt.
	Timeout time.Duration `yaml:"timeout"`

	// Attempts enables retry when greater than one.
	Attempts int `yaml:"attempts"`

	// Backoff is exponential, linear or constant.
	// Default: exponential
	Backoff string `yaml:"backoff"`

	// InitialDelay is the first retry wait.
	InitialDelay time.Duration `yaml:"initial_delay"`

	// BreakerFailures enables the circuit breaker when positive.
	BreakerFailures int `yaml:"breaker_failures"`

	// BreakerReset is how long an open circuit waits before probing.
	BreakerReset time.Duration `yaml:"breaker_reset"`
}

// NewExecutorFromConfig builds an executor from cfg.
func NewExecutorFromConfig(cfg Config) *Executor {
	var opts []ExecutorOption
	if cfg.Timeout > 0 {
		opts = append(opts, WithTimeout(cfg.Timeout))
	}
	if cfg.Attempts > 1 {
		opts = append(opts, WithRetry(NewRetry(RetryConfig{
			MaxAttempts:  cfg.Attempts,
			InitialDelay: cfg.InitialDelay,
			Strategy:     ParseBackoff(cfg.Backoff),
			Jitter:       true,
		})))
	}
	if cfg.BreakerFailures > 0 {
		opts = append(opts, WithCircuitBreaker(NewCircuitBreaker(CircuitBreakerConfig{
			MaxFailures:  cfg.BreakerFailures,
			ResetTimeout: cfg.BreakerReset,
		})))
	}
	return NewExecutor(opts...)
}
