// Package resilience guards calls to upstream sources.
//
// Resolving a pipeline source may cross the network (object storage, a
// database). An Executor composes a per-attempt timeout, retry with
// backoff and a circuit breaker around such calls:
//
//	exec := resilience.NewExecutor(
//	    resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{})),
//	    resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{MaxAttempts: 3})),
//	    resilience.WithTimeout(2*time.Second),
//	)
//	err := exec.Execute(ctx, func(ctx context.Context) error {
//	    src, err = resolver.Resolve(ctx, uri)
//	    return err
//	})
//
// Errors marked with Permanent (a missing object, a malformed URI) end the
// call at once: they are not retried and do not count against the breaker.
// Policies can be described declaratively with Config and built with
// NewExecutorFromConfig.
package resilience
