// Package processor implements C2: the Isolated Processor contract and
// its Local, Broker-backed and Subprocess variants (spec §4.2).
package processor

import (
	"context"
	"fmt"
	"sync"

	"github.com/aye-aye-dev/fossa-node/pkg/pool"
)

// Model is the opaque user-supplied task code the governor never
// inspects beyond a class name and a method name (spec §3). A node
// links in whichever Model implementations it runs, registering a
// factory for each class name under Registry.
type Model interface {
	Invoke(ctx context.Context, method string, kwargs, resolverContext map[string]any) (any, error)
}

// PartitionedModel is the interface the source expresses as "attaching
// a Pool onto the model" (spec §9, re-architecture note): rather than
// the Pool mutating the model, the model exposes the two operations the
// Pool drives it through.
type PartitionedModel interface {
	Model
	Partition(ctx context.Context, resolverContext map[string]any) ([]pool.Spec, error)
	Combine(ctx context.Context, completions []pool.Completion) (any, error)
}

// Factory constructs a fresh Model instance for one task invocation.
type Factory func() Model

// Registry maps accepted class names to their Factory, mirroring the
// governor's whitelist but holding the actual constructors the
// whitelist never needs.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds a class name to a Factory. Intended to be called once
// per class at boot, alongside governor.RegisterClass.
func (r *Registry) Register(modelClass string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[modelClass] = factory
}

// New constructs a fresh Model instance for modelClass.
func (r *Registry) New(modelClass string) (Model, error) {
	r.mu.RLock()
	factory, ok := r.factories[modelClass]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("processor: no factory registered for model class %q", modelClass)
	}
	return factory(), nil
}
