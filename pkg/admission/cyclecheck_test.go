package admission

import (
	"fmt"
	"testing"

	"github.com/cuemby/fleet/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spec(name string, deps ...string) *types.WorkloadSpec {
	d := make(map[types.WorkloadName]types.AddCondition, len(deps))
	for _, dep := range deps {
		d[types.WorkloadName(dep)] = types.AddCondRunning
	}
	return &types.WorkloadSpec{WorkloadName: types.WorkloadName(name), Dependencies: d}
}

func stateOf(specs ...*types.WorkloadSpec) *types.DesiredState {
	workloads := make(map[types.WorkloadName]*types.WorkloadSpec, len(specs))
	for _, s := range specs {
		workloads[s.WorkloadName] = s
	}
	return &types.DesiredState{Workloads: workloads}
}

func TestCheckStateEmpty(t *testing.T) {
	assert.NoError(t, CheckState(stateOf()))
}

func TestCheckStateNoDependencies(t *testing.T) {
	assert.NoError(t, CheckState(stateOf(spec("a"), spec("b"), spec("c"))))
}

func TestCheckStateLinearChain(t *testing.T) {
	assert.NoError(t, CheckState(stateOf(spec("a", "b"), spec("b", "c"), spec("c"))))
}

func TestCheckStateDanglingDependency(t *testing.T) {
	err := CheckState(stateOf(spec("a", "c")))

	var invalid *InvalidStructureError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, types.WorkloadName("a"), invalid.Workload)
	assert.Equal(t, types.WorkloadName("c"), invalid.Missing)
	assert.Equal(t, "workload 'c' is not part of the state.", invalid.Error())
}

func TestCheckStateSelfDependency(t *testing.T) {
	err := CheckState(stateOf(spec("a", "a")))

	var cyc *CycleError
	require.ErrorAs(t, err, &cyc)
	assert.Equal(t, types.WorkloadName("a"), cyc.Name)
}

func TestCheckStateTwoWorkloadCycle(t *testing.T) {
	err := CheckState(stateOf(spec("a", "b"), spec("b", "a")))

	var cyc *CycleError
	require.ErrorAs(t, err, &cyc)
}

func TestCheckStateCycleDetectedRegardlessOfStartNode(t *testing.T) {
	// a -> b -> c -> a is a cycle; whichever of a, b, c the lexicographic
	// sweep visits first, the same cycle must be reported.
	state := stateOf(spec("a", "b"), spec("b", "c"), spec("c", "a"))
	err1 := CheckState(state)

	var cyc *CycleError
	require.ErrorAs(t, err1, &cyc)

	// Re-running against the same state is deterministic: same participant
	// every time, since traversal order never depends on map iteration.
	err2 := CheckState(state)
	var cyc2 *CycleError
	require.ErrorAs(t, err2, &cyc2)
	assert.Equal(t, cyc.Name, cyc2.Name)
}

func TestCheckStateDiamondIsNotACycle(t *testing.T) {
	// a depends on b and c, both of which depend on d. Re-visiting d
	// through two paths must not be mistaken for a cycle.
	state := stateOf(spec("a", "b", "c"), spec("b", "d"), spec("c", "d"), spec("d"))
	assert.NoError(t, CheckState(state))
}

func TestCheckStateLargeChainWithBackEdge(t *testing.T) {
	const n = 1000
	specs := make([]*types.WorkloadSpec, 0, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("w%04d", i)
		var deps []string
		if i+1 < n {
			deps = []string{fmt.Sprintf("w%04d", i+1)}
		} else {
			// back-edge closing the chain into a cycle.
			deps = []string{"w0000"}
		}
		specs = append(specs, spec(name, deps...))
	}

	err := CheckState(stateOf(specs...))
	var cyc *CycleError
	require.ErrorAs(t, err, &cyc)
}

func TestTopoCandidateOrderRespectsDependencies(t *testing.T) {
	state := stateOf(spec("a", "b"), spec("b", "c"), spec("c"))
	order := TopoCandidateOrder(state)

	require.Len(t, order, 3)
	pos := make(map[types.WorkloadName]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	assert.Less(t, pos[types.WorkloadName("c")], pos[types.WorkloadName("b")])
	assert.Less(t, pos[types.WorkloadName("b")], pos[types.WorkloadName("a")])
}

func TestTopoCandidateOrderCoversDisconnectedWorkloads(t *testing.T) {
	state := stateOf(spec("a", "b"), spec("b"), spec("standalone"))
	order := TopoCandidateOrder(state)
	assert.Len(t, order, 3)
}
