// ABOUTME: Thread-safe taskRef-keyed circuit breaker registry
// ABOUTME: Breakers are created lazily on first use and cached for the process lifetime

package breaker

import (
	"sync"

	"github.com/flowctl/engine/pkg/types"
)

// Registry maps taskRef to its Breaker, creating one lazily on first use
// (§4.4 "created on first use; registry is thread-safe for concurrent
// lookup/create").
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	cfg      Config
}

// NewRegistry builds a Registry that creates new breakers using cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		cfg:      cfg,
	}
}

// Get returns the Breaker for taskRef, creating it with cfgOverride (or the
// registry default, if nil) if this is the first use.
func (r *Registry) Get(taskRef string, cfgOverride *Config) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[taskRef]; ok {
		return b
	}
	cfg := r.cfg
	if cfgOverride != nil {
		cfg = *cfgOverride
	}
	b := New(taskRef, cfg)
	r.breakers[taskRef] = b
	return b
}

// DistributedStateStore is the complementary multi-instance-deployment
// interface of §4.4: implementations record outcomes and answer with the
// aggregate CircuitStateInfo, enabling a shared breaker state across
// engine instances. The in-process Registry above is the default,
// single-instance implementation; a distributed one could be backed by
// the same Redis store used for the task cache (internal/cache).
type DistributedStateStore interface {
	RecordSuccess(taskRef string)
	RecordFailure(taskRef string)
	GetState(taskRef string) (types.CircuitStateInfo, error)
}
