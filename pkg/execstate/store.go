// Package execstate holds the agent-local mapping from workload name to the
// latest known execution state. It is the only structure shared between the
// runtime-report ingester (a writer) and the scheduler's dependency
// evaluation (a reader); see pkg/scheduler for the concurrency discipline
// that makes a single MapStore safe across both.
package execstate

import (
	"sync"

	"github.com/cuemby/fleet/pkg/types"
)

// Store is a single-owner mapping from workload name to execution state.
// Put overwrites with no history; Get reports absence rather than erroring
// for an unknown name, since "unknown" is itself meaningful to the
// dependency evaluator.
type Store interface {
	Put(name types.WorkloadName, state types.ExecutionState)
	Get(name types.WorkloadName) (state types.ExecutionState, ok bool)
}

// MapStore is a mutex-guarded map-backed Store. It is the only
// implementation Fleet ships: the store never persists across restarts and
// carries no history.
type MapStore struct {
	mu     sync.RWMutex
	states map[types.WorkloadName]types.ExecutionState
}

// NewMapStore returns an empty, ready-to-use store.
func NewMapStore() *MapStore {
	return &MapStore{states: make(map[types.WorkloadName]types.ExecutionState)}
}

// Put records state as the latest known execution state for name.
func (s *MapStore) Put(name types.WorkloadName, state types.ExecutionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[name] = state
}

// Get returns the latest known execution state for name, and whether one
// has ever been reported.
func (s *MapStore) Get(name types.WorkloadName) (types.ExecutionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[name]
	return state, ok
}

// Snapshot returns a point-in-time copy of the whole store, used by callers
// that want to evaluate several predicates against one consistent view
// instead of issuing a Get per dependency.
func (s *MapStore) Snapshot() map[types.WorkloadName]types.ExecutionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[types.WorkloadName]types.ExecutionState, len(s.states))
	for k, v := range s.states {
		out[k] = v
	}
	return out
}
