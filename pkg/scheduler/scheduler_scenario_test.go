package scheduler

import (
	"testing"

	"github.com/cuemby/fleet/pkg/execstate"
	"github.com/cuemby/fleet/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A pending create unblocks once its dependency is reported running.
func TestScenarioPendingCreate(t *testing.T) {
	store := execstate.NewMapStore()
	notify := make(chan StateReport, 4)
	sched := New(notify, nil)

	spec := createSpec("w1", map[types.WorkloadName]types.AddCondition{"w2": types.AddCondRunning})
	ready := sched.EnqueueFiltered([]types.WorkloadOperation{types.Create(spec)}, store)

	assert.Empty(t, ready)
	assert.Equal(t, 1, sched.QueueLen())
	require.Len(t, notify, 1)
	assert.Equal(t, types.ExecWaitingToStart, (<-notify).State)

	store.Put("w2", types.ExecRunning)
	ready = sched.Next(store)

	require.Len(t, ready, 1)
	assert.Equal(t, types.OpCreate, ready[0].Kind)
	assert.Equal(t, types.WorkloadName("w1"), ready[0].WorkloadName())
	assert.Equal(t, 0, sched.QueueLen())
	assert.Empty(t, notify, "Next must not repeat the notification already sent by EnqueueFiltered")
}

// An unknown dependency counts as unfulfilled for create: this is the
// conservative default that favors leaving a workload un-started over
// starting it against a dependency whose state nothing has reported yet.
func TestScenarioConservativeCreateOnUnknown(t *testing.T) {
	store := execstate.NewMapStore()
	sched := New(nil, nil)

	spec := createSpec("w1", map[types.WorkloadName]types.AddCondition{"w2": types.AddCondRunning})
	ready := sched.EnqueueFiltered([]types.WorkloadOperation{types.Create(spec)}, store)

	assert.Empty(t, ready)
	assert.Equal(t, 1, sched.QueueLen())
}

// An unknown dependant fulfils DelCondNotPendingNorRunning, so a delete
// with no store information about its dependants is emitted immediately.
func TestScenarioImmediateDelete(t *testing.T) {
	store := execstate.NewMapStore()
	sched := New(nil, nil)

	del := deletedWorkload("w1", map[types.WorkloadName]types.DeleteCondition{"w2": types.DelCondNotPendingNorRunning})
	ready := sched.EnqueueFiltered([]types.WorkloadOperation{types.Delete(del)}, store)

	require.Len(t, ready, 1)
	assert.Equal(t, types.OpDelete, ready[0].Kind)
	assert.Equal(t, 0, sched.QueueLen())
}

// Update where create is fulfilled but delete isn't: the whole update
// parks as UpdateDelete until the dependant clears, then emits atomically.
// The new spec's create condition and the old spec's delete condition are
// kept on distinct dependencies (w3 and w2) so that resolving the delete
// gate cannot also regress the already-satisfied create gate.
func TestScenarioUpdateSplitOnBlockedDelete(t *testing.T) {
	store := execstate.NewMapStore()
	store.Put("w2", types.ExecRunning)
	store.Put("w3", types.ExecRunning)
	notify := make(chan StateReport, 4)
	sched := New(notify, nil)

	newSpec := createSpec("w1", map[types.WorkloadName]types.AddCondition{"w3": types.AddCondRunning})
	old := deletedWorkload("w1", map[types.WorkloadName]types.DeleteCondition{"w2": types.DelCondNotPendingNorRunning})

	ready := sched.EnqueueFiltered([]types.WorkloadOperation{types.Update(newSpec, old)}, store)

	assert.Empty(t, ready)
	assert.Equal(t, 1, sched.QueueLen())
	require.Len(t, notify, 1)
	assert.Equal(t, types.ExecWaitingToStop, (<-notify).State)

	store.Put("w2", types.ExecSucceeded)
	ready = sched.Next(store)

	require.Len(t, ready, 1)
	assert.Equal(t, types.OpUpdate, ready[0].Kind)
	assert.Equal(t, 0, sched.QueueLen())
	assert.Empty(t, notify)
}

// Update where delete is fulfilled but create isn't: UpdateDeleteOnly
// is emitted immediately, and the create half parks as UpdateCreate.
func TestScenarioUpdateDeleteOnlyThenCreate(t *testing.T) {
	store := execstate.NewMapStore()
	store.Put("w2", types.ExecRunning)
	notify := make(chan StateReport, 4)
	sched := New(notify, nil)

	newSpec := createSpec("w1", map[types.WorkloadName]types.AddCondition{"w2": types.AddCondSucceeded})
	old := deletedWorkload("w1", map[types.WorkloadName]types.DeleteCondition{"w2": types.DelCondRunning})

	ready := sched.EnqueueFiltered([]types.WorkloadOperation{types.Update(newSpec, old)}, store)

	require.Len(t, ready, 1)
	assert.Equal(t, types.OpUpdateDeleteOnly, ready[0].Kind)
	assert.Equal(t, 1, sched.QueueLen())
	require.Len(t, notify, 1)
	assert.Equal(t, types.ExecWaitingToStart, (<-notify).State)

	store.Put("w2", types.ExecSucceeded)
	ready = sched.Next(store)

	require.Len(t, ready, 1)
	assert.Equal(t, types.OpUpdate, ready[0].Kind)
	assert.Equal(t, 0, sched.QueueLen())
	assert.Empty(t, notify, "UpdateDeleteOnly must never reappear, and no repeat notification")
}

// Between acceptance of an Update and its final emission, no other
// operation for the same workload name is ever produced.
func TestAtMostOnceUpdateOrdering(t *testing.T) {
	store := execstate.NewMapStore()
	sched := New(nil, nil)

	newSpec := createSpec("w1", map[types.WorkloadName]types.AddCondition{"w2": types.AddCondRunning})
	old := deletedWorkload("w1", map[types.WorkloadName]types.DeleteCondition{"w2": types.DelCondNotPendingNorRunning})

	// w2 is unknown: its DelCondNotPendingNorRunning gate is already open
	// while its AddCondRunning gate is not, so the delete half goes out now.
	ready := sched.EnqueueFiltered([]types.WorkloadOperation{types.Update(newSpec, old)}, store)
	require.Len(t, ready, 1)
	assert.Equal(t, types.OpUpdateDeleteOnly, ready[0].Kind)

	for i := 0; i < 3; i++ {
		ready = sched.Next(store)
		assert.Empty(t, ready, "must stay silent for w1 until its gates open")
	}

	store.Put("w2", types.ExecRunning)
	ready = sched.Next(store)
	require.Len(t, ready, 1)
	assert.Equal(t, types.OpUpdate, ready[0].Kind)

	ready = sched.Next(store)
	assert.Empty(t, ready, "w1 must not be emitted twice")
}
