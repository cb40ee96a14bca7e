package resilience

import (
	"context"
	"errors"
	"time"
)

// TimeoutConfig configures Timeout.
type TimeoutConfig struct {
	// Timeout bounds a single attempt.
	// Default: 5s
	Timeout time.Duration
}

// Timeout gives each attempt its own deadline.
//
// The operation runs on the caller's goroutine and must honor ctx; results
// it writes to captured variables are therefore never raced by a late
// completion.
type Timeout struct {
	config TimeoutConfig
}

// NewTimeout creates a Timeout, applying defaults for zero fields.
func NewTimeout(config TimeoutConfig) *Timeout {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	return &Timeout{config: config}
}

// Execute runs op under a derived deadline. A deadline hit by this wrapper
// is reported as ErrTimeout; a deadline inherited from ctx is returned
// as is.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	err := op(attemptCtx)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return errors.Join(ErrTimeout, err)
	}
	return err
}

// Config returns the effective configuration.
func (t *Timeout) Config() TimeoutConfig { return t.config }
