package cluster

import (
	"testing"

	"github.com/cuemby/fleet/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withWorkloads(specs ...*types.WorkloadSpec) *types.DesiredState {
	workloads := make(map[types.WorkloadName]*types.WorkloadSpec, len(specs))
	for _, s := range specs {
		workloads[s.WorkloadName] = s
	}
	return &types.DesiredState{Workloads: workloads}
}

func opsByKind(ops []types.WorkloadOperation, kind types.OperationKind) []types.WorkloadOperation {
	var out []types.WorkloadOperation
	for _, op := range ops {
		if op.Kind == kind {
			out = append(out, op)
		}
	}
	return out
}

func TestDiffOperationsEmitsCreateForNewWorkload(t *testing.T) {
	current := withWorkloads()
	desired := withWorkloads(&types.WorkloadSpec{WorkloadName: "a"})

	ops := DiffOperations(desired, current)

	require.Len(t, ops, 1)
	assert.Equal(t, types.OpCreate, ops[0].Kind)
	assert.Equal(t, types.WorkloadName("a"), ops[0].WorkloadName())
}

func TestDiffOperationsEmitsDeleteForRemovedWorkload(t *testing.T) {
	current := withWorkloads(&types.WorkloadSpec{WorkloadName: "a"})
	desired := withWorkloads()

	ops := DiffOperations(desired, current)

	require.Len(t, ops, 1)
	assert.Equal(t, types.OpDelete, ops[0].Kind)
	assert.Equal(t, types.WorkloadName("a"), ops[0].WorkloadName())
}

func TestDiffOperationsEmitsNothingForUnchangedWorkload(t *testing.T) {
	spec := &types.WorkloadSpec{WorkloadName: "a", RuntimeName: "runc", RuntimeConfig: []byte("cfg")}
	current := withWorkloads(spec)
	desired := withWorkloads(&types.WorkloadSpec{WorkloadName: "a", RuntimeName: "runc", RuntimeConfig: []byte("cfg")})

	assert.Empty(t, DiffOperations(desired, current))
}

func TestDiffOperationsEmitsUpdateForChangedRuntimeConfig(t *testing.T) {
	current := withWorkloads(&types.WorkloadSpec{WorkloadName: "a", RuntimeConfig: []byte("v1")})
	desired := withWorkloads(&types.WorkloadSpec{WorkloadName: "a", RuntimeConfig: []byte("v2")})

	ops := DiffOperations(desired, current)

	require.Len(t, ops, 1)
	assert.Equal(t, types.OpUpdate, ops[0].Kind)
	assert.NotNil(t, ops[0].Old)
	assert.NotNil(t, ops[0].New)
}

func TestDiffOperationsNeverEmitsUpdateDeleteOnly(t *testing.T) {
	current := withWorkloads(&types.WorkloadSpec{WorkloadName: "a", RuntimeConfig: []byte("v1")})
	desired := withWorkloads(&types.WorkloadSpec{WorkloadName: "a", RuntimeConfig: []byte("v2")})

	ops := DiffOperations(desired, current)
	assert.Empty(t, opsByKind(ops, types.OpUpdateDeleteOnly))
}

func TestDiffOperationsDeletedWorkloadCarriesDependantConditions(t *testing.T) {
	base := &types.WorkloadSpec{WorkloadName: "base"}
	dependant := &types.WorkloadSpec{
		WorkloadName: "dependant",
		Dependencies: map[types.WorkloadName]types.AddCondition{"base": types.AddCondRunning},
	}
	current := withWorkloads(base, dependant)
	desired := withWorkloads(dependant) // "base" removed from desired

	ops := DiffOperations(desired, current)

	require.Len(t, ops, 1)
	require.Equal(t, types.OpDelete, ops[0].Kind)
	require.NotNil(t, ops[0].Old)
	cond, ok := ops[0].Old.Dependencies["dependant"]
	require.True(t, ok)
	assert.Equal(t, types.DelCondNotPendingNorRunning, cond)
}

func TestDiffOperationsMixedBatch(t *testing.T) {
	current := withWorkloads(
		&types.WorkloadSpec{WorkloadName: "unchanged", RuntimeName: "runc"},
		&types.WorkloadSpec{WorkloadName: "removed"},
		&types.WorkloadSpec{WorkloadName: "changed", RuntimeName: "runc"},
	)
	desired := withWorkloads(
		&types.WorkloadSpec{WorkloadName: "unchanged", RuntimeName: "runc"},
		&types.WorkloadSpec{WorkloadName: "changed", RuntimeName: "crun"},
		&types.WorkloadSpec{WorkloadName: "added"},
	)

	ops := DiffOperations(desired, current)

	require.Len(t, ops, 3)
	assert.Len(t, opsByKind(ops, types.OpCreate), 1)
	assert.Len(t, opsByKind(ops, types.OpUpdate), 1)
	assert.Len(t, opsByKind(ops, types.OpDelete), 1)
}
