package governor

import (
	"sync"

	"github.com/aye-aye-dev/fossa-node/pkg/errs"
)

// whitelist is the accepted-classes registry (spec §3): write-once per
// name at boot, read-only thereafter, enforced at submission and again
// on dequeue as defense-in-depth (I4). A sync.RWMutex is enough here —
// registration only happens during startup, and reads are on the hot
// path from every producer.
type whitelist struct {
	mu      sync.RWMutex
	classes map[string]struct{}
}

func newWhitelist() *whitelist {
	return &whitelist{classes: make(map[string]struct{})}
}

// register adds modelClass to the accepted set. Fails if already present.
func (w *whitelist) register(modelClass string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.classes[modelClass]; exists {
		return &errs.DuplicateClass{ModelClass: modelClass}
	}
	w.classes[modelClass] = struct{}{}
	return nil
}

func (w *whitelist) accepts(modelClass string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.classes[modelClass]
	return ok
}
