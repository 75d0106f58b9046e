package task

import (
	"fmt"
	"sync"
)

// Registry maps a stable task key to its registered Variant. Because the
// child worker is the same binary re-exec'd with a hidden worker-mode flag
// (not a forked copy of live memory), the function itself never crosses the
// process boundary — only its registry key does. The parent and every
// child must register the same key under the same program startup path.
type Registry struct {
	mu    sync.RWMutex
	items map[string]Variant
}

var global = NewRegistry()

// NewRegistry constructs an empty registry. Most callers use the package
// level Register/Lookup which operate on a shared global registry, matching
// the single-process-family nature of one Execute invocation.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Variant)}
}

func (r *Registry) Register(key string, v Variant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[key] = v
}

func (r *Registry) Lookup(key string) (Variant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[key]
	return v, ok
}

// Register adds v under key to the global registry.
func Register(key string, v Variant) { global.Register(key, v) }

// Lookup resolves key against the global registry.
func Lookup(key string) (Variant, bool) { return global.Lookup(key) }

// MustLookup panics if key was never registered. The worker re-exec
// entrypoint uses Lookup instead and reports a missing key as a task error.
func MustLookup(key string) Variant {
	v, ok := Lookup(key)
	if !ok {
		panic(fmt.Sprintf("task: no function registered under key %q", key))
	}
	return v
}
