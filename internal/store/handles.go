package store

import (
	"sync"

	"browserbridge/internal/engine"
)

type handleKey struct {
	scope string
	id    string
}

// HandleRegistry maps running tasks to their live agents. Handles are
// process-lifetime only and are never persisted; after a restart a task with
// a non-terminal status simply has no handle.
type HandleRegistry struct {
	mu      sync.RWMutex
	handles map[handleKey]engine.Agent
}

func NewHandleRegistry() *HandleRegistry {
	return &HandleRegistry{handles: make(map[handleKey]engine.Agent)}
}

func (r *HandleRegistry) Set(scope, id string, agent engine.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[handleKey{scope, id}] = agent
}

// Get returns the agent for a task, or nil when none is registered.
func (r *HandleRegistry) Get(scope, id string) engine.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handles[handleKey{scope, id}]
}

func (r *HandleRegistry) Remove(scope, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, handleKey{scope, id})
}
