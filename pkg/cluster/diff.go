package cluster

import (
	"bytes"

	"github.com/cuemby/fleet/pkg/types"
)

// DiffOperations is the operation producer: it compares a newly admitted
// desired state against the state currently believed to be running and
// returns the Create/Update/Delete operations needed to reconcile the
// difference, in the shape the scheduler on each agent expects.
//
// Grounded on the same desired-vs-actual comparison pkg/reconciler performs
// per reconciliation cycle, but instead of mutating runtime objects
// directly it emits the tagged WorkloadOperation values the scheduler
// consumes. DiffOperations never emits UpdateDeleteOnly — that variant is
// produced only by the scheduler itself when it splits an Update whose
// delete half can proceed while its create half is still blocked.
//
// Because a WorkloadSpec carries only its own AddCondition dependencies,
// the DeleteConditions a departing or replaced workload's DeletedWorkload
// view carries are derived here by reverse-indexing current for every
// other workload that still depends on it, and gating each uniformly on
// DelCondNotPendingNorRunning — the conservative condition that never
// blocks teardown forever on a dependant whose state is never reported.
func DiffOperations(desired, current *types.DesiredState) []types.WorkloadOperation {
	ops := make([]types.WorkloadOperation, 0)

	for name, spec := range desired.Workloads {
		old, existed := current.Workloads[name]
		if !existed {
			ops = append(ops, types.Create(spec))
			continue
		}
		if specsDiffer(old, spec) {
			ops = append(ops, types.Update(spec, deletedWorkloadView(name, old, current)))
		}
	}

	for name, old := range current.Workloads {
		if _, stillDesired := desired.Workloads[name]; !stillDesired {
			ops = append(ops, types.Delete(deletedWorkloadView(name, old, current)))
		}
	}

	return ops
}

func specsDiffer(a, b *types.WorkloadSpec) bool {
	if a.RuntimeName != b.RuntimeName ||
		a.AgentName != b.AgentName ||
		a.UpdateStrategy != b.UpdateStrategy ||
		a.InstanceName != b.InstanceName {
		return true
	}
	return !bytes.Equal(a.RuntimeConfig, b.RuntimeConfig)
}

// deletedWorkloadView builds the teardown-side view of spec: its instance
// name plus, for every workload in the same current state that still
// depends on it, a DelCondNotPendingNorRunning gate.
func deletedWorkloadView(name types.WorkloadName, spec *types.WorkloadSpec, current *types.DesiredState) *types.DeletedWorkload {
	deps := make(map[types.WorkloadName]types.DeleteCondition)
	for otherName, other := range current.Workloads {
		if otherName == name {
			continue
		}
		if _, dependsOnIt := other.Dependencies[name]; dependsOnIt {
			deps[otherName] = types.DelCondNotPendingNorRunning
		}
	}
	return &types.DeletedWorkload{
		InstanceName: spec.InstanceName,
		WorkloadName: name,
		Dependencies: deps,
	}
}
