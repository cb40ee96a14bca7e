package source

import (
	"context"
	"errors"

	"github.com/jonwraymond/pipecache/resilience"
)

// Resilient guards a resolver with a resilience executor. ErrNotFound,
// ErrInvalidURI and ErrUnsupportedScheme are final answers: they are
// neither retried nor counted against the circuit breaker.
type Resilient struct {
	next Resolver
	exec *resilience.Executor
}

// NewResilient wraps next.
func NewResilient(next Resolver, exec *resilience.Executor) *Resilient {
	return &Resilient{next: next, exec: exec}
}

// Resolve resolves uri through the executor.
func (r *Resilient) Resolve(ctx context.Context, uri string) (Source, error) {
	var src Source
	err := r.exec.Execute(ctx, func(ctx context.Context) error {
		s, err := r.next.Resolve(ctx, uri)
		if err != nil {
			if isFinal(err) {
				return resilience.Permanent(err)
			}
			return err
		}
		src = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return src, nil
}

// Release forwards to the wrapped resolver.
func (r *Resilient) Release(src Source) { r.next.Release(src) }

// Executor returns the executor guarding the resolver.
func (r *Resilient) Executor() *resilience.Executor { return r.exec }

func isFinal(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidURI) || errors.Is(err, ErrUnsupportedScheme)
}
