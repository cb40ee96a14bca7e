package source

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry dispatches to a resolver by URI scheme. URIs without a scheme
// go to the fallback resolver.
type Registry struct {
	mu        sync.RWMutex
	resolvers map[string]Resolver
	fallback  Resolver
}

// NewRegistry creates a registry. fallback may be nil.
func NewRegistry(fallback Resolver) *Registry {
	return &Registry{
		resolvers: make(map[string]Resolver),
		fallback:  fallback,
	}
}

// Register adds or replaces the resolver for scheme.
func (r *Registry) Register(scheme string, res Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers[strings.ToLower(scheme)] = res
}

// Schemes returns the registered schemes, sorted.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.resolvers))
	for s := range r.resolvers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Resolve hands uri to the resolver for its scheme.
func (r *Registry) Resolve(ctx context.Context, uri string) (Source, error) {
	res, err := r.lookup(uri)
	if err != nil {
		return nil, err
	}
	return res.Resolve(ctx, uri)
}

// Release hands src back to the resolver for its scheme.
func (r *Registry) Release(src Source) {
	if src == nil {
		return
	}
	if res, err := r.lookup(src.URI()); err == nil {
		res.Release(src)
	}
}

func (r *Registry) lookup(uri string) (Resolver, error) {
	scheme := Scheme(uri)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if scheme != "" {
		if res, ok := r.resolvers[scheme]; ok {
			return res, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
	if r.fallback == nil {
		return nil, fmt.Errorf("%w: %q has no scheme", ErrUnsupportedScheme, uri)
	}
	return r.fallback, nil
}

// Scheme returns the lower-cased URI scheme, or "" when uri has none.
// Single letters are not schemes, so Windows drive paths stay plain paths.
func Scheme(uri string) string {
	scheme, _, ok := strings.Cut(uri, ":")
	if !ok || len(scheme) < 2 {
		return ""
	}
	for i, c := range scheme {
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case i > 0 && ('0' <= c && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return ""
		}
	}
	return strings.ToLower(scheme)
}
