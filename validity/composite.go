package validity

import (
	"context"
	"fmt"
	"slices"
)

// CompositeToken aggregates one child token per pipeline stage.
type CompositeToken struct {
	children []Token
}

// Composite returns a token over children. A nil child is treated as Never.
func Composite(children ...Token) Token {
	c := make([]Token, len(children))
	for i, t := range children {
		if t == nil {
			t = Never()
		}
		c[i] = t
	}
	return CompositeToken{children: c}
}

func (CompositeToken) Kind() Kind { return KindComposite }

// Len returns the number of children.
func (c CompositeToken) Len() int { return len(c.children) }

// Children returns a copy of the child tokens.
func (c CompositeToken) Children() []Token { return slices.Clone(c.children) }

// IsValid is Invalid on the first Invalid child, Valid when all children
// are Valid and Unknown otherwise.
func (c CompositeToken) IsValid() Result {
	result := Valid
	for _, child := range c.children {
		switch child.IsValid() {
		case Invalid:
			return Invalid
		case Unknown:
			result = Unknown
		}
	}
	return result
}

// Compare evaluates the children pairwise, stopping at the first Invalid.
func (c CompositeToken) Compare(fresh Token) Result {
	var other CompositeToken
	switch f := fresh.(type) {
	case CompositeToken:
		other = f
	case *Deferred:
		return Unknown
	default:
		return Invalid
	}
	if len(other.children) != len(c.children) {
		return Invalid
	}

	result := Valid
	for i, child := range c.children {
		switch Evaluate(child, other.children[i]) {
		case Invalid:
			return Invalid
		case Unknown:
			result = Unknown
		}
	}
	return result
}

// Resolve replaces every deferred token in t, including those nested in
// composites, with the token its fetch function produces. Tokens without
// deferred parts are returned unchanged.
func Resolve(ctx context.Context, t Token) (Token, error) {
	switch v := t.(type) {
	case *Deferred:
		got, err := v.fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("validity: resolve: %w", err)
		}
		if got == nil {
			return Never(), nil
		}
		if got.Kind() == KindDeferred {
			return nil, ErrUnresolved
		}
		return Resolve(ctx, got)

	case CompositeToken:
		if !HasDeferred(v) {
			return v, nil
		}
		out := make([]Token, len(v.children))
		for i, child := range v.children {
			resolved, err := Resolve(ctx, child)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return CompositeToken{children: out}, nil

	default:
		return t, nil
	}
}

// HasDeferred reports whether t or any nested child is deferred.
func HasDeferred(t Token) bool {
	switch v := t.(type) {
	case *Deferred:
		return true
	case CompositeToken:
		return slices.ContainsFunc(v.children, HasDeferred)
	default:
		return false
	}
}
