/*
Package scheduler implements the agent-side workload scheduler: the pending
queue of Create/Update/Delete operations whose dependency preconditions are
not yet met, and the re-evaluation logic that drains it as the agent's
execution-state store learns more about the workloads it runs.

# Architecture

The scheduler is the single place on an agent where "is this operation safe
to run right now" is decided. It never executes an operation itself — it
only decides when an operation becomes safe to hand to the runtime adapter.

	┌─────────────────────┐     batch      ┌───────────────────┐
	│  operation producer  │ ─────────────▶ │      Scheduler     │
	│ (desired vs current) │                │   (pending queue)   │
	└─────────────────────┘                └─────────┬─────────┘
	                                                   │ ready ops
	┌─────────────────────┐    put(name,state)         ▼
	│ runtime-report       │ ─────────────▶ ┌───────────────────┐
	│ ingester              │                │   runtime adapter   │
	└──────────┬────────────┘                └───────────────────┘
	           │
	           ▼
	┌─────────────────────┐
	│  execution-state store │
	└─────────────────────┘

Every store update re-triggers the scheduler's Next sweep; every new batch
from the operation producer goes through EnqueueFiltered, which itself
sweeps the queue once more before returning. Both entry points converge on
the same queue under the same mutex, so there is never more than one
re-evaluation in flight — the cooperative single-threaded event-loop model
described in the package's concurrency notes.

# At-most-once update

An Update carries both a new spec (with AddConditions) and the
DeletedWorkload view of the instance it replaces (with DeleteConditions).
The guarantee the scheduler upholds is that the old and new generations of a
workload are never both running: the old instance's delete preconditions
must clear before the new instance's create preconditions are even allowed
to take effect. See enqueueUpdateLocked for the four-case table this
implements.

# Notification discipline

A workload entering the queue for the first time gets exactly one
WaitingToStart or WaitingToStop notification. Every later re-evaluation of
that same entry — whether it clears, stays blocked, or transitions from one
queue kind to another — is silent. The queue itself is the notification
witness: if an entry is present, it has already been notified once; Next
never notifies, only EnqueueFiltered does, and only for operations it sees
for the first time in a batch.

# Usage

	store := execstate.NewMapStore()
	notify := make(chan scheduler.StateReport, 16)
	sched := scheduler.New(notify, nil)

	ready := sched.EnqueueFiltered(batch, store)
	// ready contains every operation from batch whose preconditions already
	// held, plus anything older that this batch's arrival unblocked.

	store.Put("dep-1", types.ExecRunning)
	ready = sched.Next(store)
	// ready now contains whatever that state change unblocked.

For a long-running agent process, drive the scheduler with Run instead,
feeding it a channel of batches and a coalesced "something changed" trigger
channel; see Run's doc comment for its three termination conditions.
*/
package scheduler
