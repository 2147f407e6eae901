package depeval

import (
	"testing"

	"github.com/cuemby/fleet/pkg/execstate"
	"github.com/cuemby/fleet/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestCreateFulfilled(t *testing.T) {
	tests := []struct {
		name     string
		deps     map[types.WorkloadName]types.AddCondition
		seed     map[types.WorkloadName]types.ExecutionState
		expected bool
	}{
		{
			name:     "no dependencies",
			deps:     nil,
			expected: true,
		},
		{
			name:     "dependency unknown",
			deps:     map[types.WorkloadName]types.AddCondition{"w2": types.AddCondRunning},
			expected: false,
		},
		{
			name:     "dependency running satisfies AddCondRunning",
			deps:     map[types.WorkloadName]types.AddCondition{"w2": types.AddCondRunning},
			seed:     map[types.WorkloadName]types.ExecutionState{"w2": types.ExecRunning},
			expected: true,
		},
		{
			name:     "dependency succeeded does not satisfy AddCondRunning",
			deps:     map[types.WorkloadName]types.AddCondition{"w2": types.AddCondRunning},
			seed:     map[types.WorkloadName]types.ExecutionState{"w2": types.ExecSucceeded},
			expected: false,
		},
		{
			name: "all of several dependencies must be fulfilled",
			deps: map[types.WorkloadName]types.AddCondition{
				"w2": types.AddCondRunning,
				"w3": types.AddCondSucceeded,
			},
			seed: map[types.WorkloadName]types.ExecutionState{
				"w2": types.ExecRunning,
				"w3": types.ExecFailed,
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := execstate.NewMapStore()
			for name, state := range tt.seed {
				store.Put(name, state)
			}
			spec := &types.WorkloadSpec{WorkloadName: "w1", Dependencies: tt.deps}
			assert.Equal(t, tt.expected, CreateFulfilled(spec, store))
		})
	}
}

func TestDeleteFulfilled(t *testing.T) {
	tests := []struct {
		name     string
		deps     map[types.WorkloadName]types.DeleteCondition
		seed     map[types.WorkloadName]types.ExecutionState
		expected bool
	}{
		{
			name:     "no dependants",
			deps:     nil,
			expected: true,
		},
		{
			name:     "unknown dependant fulfils DelCondNotPendingNorRunning",
			deps:     map[types.WorkloadName]types.DeleteCondition{"w2": types.DelCondNotPendingNorRunning},
			expected: true,
		},
		{
			name:     "unknown dependant does not fulfil DelCondRunning",
			deps:     map[types.WorkloadName]types.DeleteCondition{"w2": types.DelCondRunning},
			expected: false,
		},
		{
			name:     "running dependant blocks DelCondNotPendingNorRunning",
			deps:     map[types.WorkloadName]types.DeleteCondition{"w2": types.DelCondNotPendingNorRunning},
			seed:     map[types.WorkloadName]types.ExecutionState{"w2": types.ExecRunning},
			expected: false,
		},
		{
			name:     "failed dependant satisfies DelCondNotPendingNorRunning",
			deps:     map[types.WorkloadName]types.DeleteCondition{"w2": types.DelCondNotPendingNorRunning},
			seed:     map[types.WorkloadName]types.ExecutionState{"w2": types.ExecFailed},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := execstate.NewMapStore()
			for name, state := range tt.seed {
				store.Put(name, state)
			}
			del := &types.DeletedWorkload{WorkloadName: "w1", Dependencies: tt.deps}
			assert.Equal(t, tt.expected, DeleteFulfilled(del, store))
		})
	}
}
