// Package depeval implements the dependency evaluator: the pure, stateless
// predicates that decide whether a pending Create or Delete's preconditions
// are currently met, given a point-in-time view of the execution-state
// store. These predicates never block and never error — an unknown
// dependency is itself a meaningful input, not a failure.
package depeval

import (
	"github.com/cuemby/fleet/pkg/execstate"
	"github.com/cuemby/fleet/pkg/types"
)

// CreateFulfilled reports whether every dependency of spec is currently in a
// state that satisfies its AddCondition. A spec with no dependencies is
// trivially fulfilled. An unreported dependency never fulfils: creation is
// conservative.
func CreateFulfilled(spec *types.WorkloadSpec, store execstate.Store) bool {
	for depName, cond := range spec.Dependencies {
		state, known := store.Get(depName)
		if !cond.FulfilledBy(state, known) {
			return false
		}
	}
	return true
}

// DeleteFulfilled reports whether every dependant of del is currently in a
// state that satisfies its DeleteCondition. A deleted workload with no
// dependants is trivially fulfilled. An unreported dependant fulfils
// DelCondNotPendingNorRunning: teardown must not be blocked forever by a
// dependant Fleet has never heard a state for.
func DeleteFulfilled(del *types.DeletedWorkload, store execstate.Store) bool {
	for depName, cond := range del.Dependencies {
		state, known := store.Get(depName)
		if !cond.FulfilledBy(state, known) {
			return false
		}
	}
	return true
}
