package processor

import "context"

// Resolver acquires whatever resources a resolver_context references
// (connection pools, credentials, scoped handles — opaque to the
// governor) and returns a release function guaranteed to run on every
// exit path. A nil Resolver is valid: Invoke then runs with no scope at
// all, which is the common case for models with no external resources.
type Resolver interface {
	Acquire(ctx context.Context, resolverContext map[string]any) (release func(), err error)
}

// ResolverScope wraps one acquired scope so callers can defer a single
// Close regardless of whether a Resolver was configured.
type ResolverScope struct {
	release func()
}

// Enter acquires a scope via resolver, or a no-op scope if resolver is
// nil. Callers must defer Close().
func Enter(ctx context.Context, resolver Resolver, resolverContext map[string]any) (*ResolverScope, error) {
	if resolver == nil {
		return &ResolverScope{release: func() {}}, nil
	}
	release, err := resolver.Acquire(ctx, resolverContext)
	if err != nil {
		return nil, err
	}
	if release == nil {
		release = func() {}
	}
	return &ResolverScope{release: release}, nil
}

// Close releases the scope. Safe to call exactly once, on every exit
// path (success, error return, or panic recovery) via defer.
func (s *ResolverScope) Close() {
	s.release()
}
