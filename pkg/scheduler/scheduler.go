package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/cuemby/fleet/pkg/depeval"
	"github.com/cuemby/fleet/pkg/execstate"
	"github.com/cuemby/fleet/pkg/log"
	"github.com/cuemby/fleet/pkg/types"
	"github.com/rs/zerolog"
)

// ErrNotificationSinkClosed is returned by Run when the waiting-state
// notification sink is closed while a send is required. The scheduler
// cannot make progress without observability of its own pending states, so
// this is treated as fatal.
var ErrNotificationSinkClosed = errors.New("scheduler: notification sink closed")

// StateReport is the (instance, state) pair the scheduler emits to the
// state-report sink for WaitingToStart/WaitingToStop transitions it
// originates itself, distinct from runtime-reported state, which flows into
// the execution-state store through a separate path.
type StateReport struct {
	Instance types.InstanceName
	State    types.ExecutionState
}

// Metrics receives observations from a Scheduler. A nil Metrics is valid;
// Scheduler falls back to a no-op implementation.
type Metrics interface {
	ObserveQueueDepth(depth int)
	ObserveNotification(state types.ExecutionState)
}

type noopMetrics struct{}

func (noopMetrics) ObserveQueueDepth(int)                    {}
func (noopMetrics) ObserveNotification(types.ExecutionState) {}

// Scheduler holds the agent-side pending queue: operations whose
// create/delete preconditions are not yet fulfilled, keyed by workload name
// so that at most one entry per name holds by construction.
//
// A Scheduler is meant to be driven by a single goroutine running Run — a
// cooperative event-loop model. The exported EnqueueFiltered and Next
// methods are also safe to call directly and synchronously (guarded by an
// internal mutex), which is how this package's tests exercise scenarios
// without needing real channels or goroutines.
type Scheduler struct {
	mu       sync.Mutex
	queue    map[types.WorkloadName]types.PendingEntry
	notifyCh chan<- StateReport
	logger   zerolog.Logger
	metrics  Metrics
	aborted  bool
}

// New creates a Scheduler that sends WaitingToStart/WaitingToStop
// notifications on notifyCh. notifyCh may be nil, in which case
// notifications are silently dropped (useful for tests that only care about
// the emitted operation stream).
func New(notifyCh chan<- StateReport, m Metrics) *Scheduler {
	if m == nil {
		m = noopMetrics{}
	}
	return &Scheduler{
		queue:    make(map[types.WorkloadName]types.PendingEntry),
		notifyCh: notifyCh,
		logger:   log.WithComponent("scheduler"),
		metrics:  m,
	}
}

// Aborted reports whether the scheduler has observed its notification sink
// close during a required send. Once true, the scheduler must not be driven
// further.
func (s *Scheduler) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// QueueLen returns the number of entries currently pending, for tests and
// metrics collection.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// EnqueueFiltered processes one batch from the operation producer. Every
// input operation either comes back out immediately (its
// preconditions already hold) or is parked in the queue with a
// WaitingToStart/WaitingToStop notification. After the batch is processed,
// the existing queue is swept via Next and its output appended — so a
// caller always sees, in one call, both "did this batch's own operations
// clear immediately" and "did this batch's arrival also unblock something
// older."
func (s *Scheduler) EnqueueFiltered(ops []types.WorkloadOperation, store execstate.Store) []types.WorkloadOperation {
	s.mu.Lock()
	ready := make([]types.WorkloadOperation, 0, len(ops))
	seen := make(map[types.WorkloadName]bool, len(ops))

	for _, op := range ops {
		name := op.WorkloadName()
		if seen[name] {
			s.logger.Warn().
				Str("workload_name", string(name)).
				Msg("duplicate workload name in operation batch, dropping")
			continue
		}
		seen[name] = true

		switch op.Kind {
		case types.OpCreate:
			if emitted := s.enqueueCreateLocked(op.New, store, true); emitted != nil {
				ready = append(ready, *emitted)
			}
		case types.OpDelete:
			if emitted := s.enqueueDeleteLocked(op.Old, store, true); emitted != nil {
				ready = append(ready, *emitted)
			}
		case types.OpUpdate:
			ready = append(ready, s.enqueueUpdateLocked(op.New, op.Old, store, true)...)
		case types.OpUpdateDeleteOnly:
			// The operation producer must never emit this variant as
			// scheduler input; it is an internal emission only.
			// Liveness over strictness: log and drop.
			s.logger.Warn().
				Str("workload_name", string(name)).
				Msg("received UpdateDeleteOnly as scheduler input, dropping")
		default:
			s.logger.Warn().
				Str("workload_name", string(name)).
				Int("kind", int(op.Kind)).
				Msg("unrecognised operation kind, dropping")
		}
	}
	s.metrics.ObserveQueueDepth(len(s.queue))
	s.mu.Unlock()

	ready = append(ready, s.Next(store)...)
	return ready
}

// Next re-evaluates every entry currently in the queue against store. The
// queue is drained atomically, then each drained entry either comes back
// out as a ready operation or is re-queued unchanged; no notification is
// sent on this path — an entry already in the queue has already been
// notified once, when it was first parked.
func (s *Scheduler) Next(store execstate.Store) []types.WorkloadOperation {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.drainLocked()
	ready := make([]types.WorkloadOperation, 0, len(entries))

	for _, entry := range entries {
		switch entry.Kind {
		case types.PendingCreate:
			if emitted := s.enqueueCreateLocked(entry.New, store, false); emitted != nil {
				ready = append(ready, *emitted)
			}
		case types.PendingDelete:
			if emitted := s.enqueueDeleteLocked(entry.Old, store, false); emitted != nil {
				ready = append(ready, *emitted)
			}
		case types.PendingUpdateCreate:
			// Delete has already happened (UpdateDeleteOnly was emitted
			// when this entry was created); only the create gate remains.
			if depeval.CreateFulfilled(entry.New, store) {
				ready = append(ready, types.Update(entry.New, entry.Old))
			} else {
				s.queue[entry.WorkloadName()] = entry
			}
		case types.PendingUpdateDelete:
			ready = append(ready, s.enqueueUpdateLocked(entry.New, entry.Old, store, false)...)
		}
	}

	s.metrics.ObserveQueueDepth(len(s.queue))
	return ready
}

// drainLocked empties the queue and returns its entries in a deterministic
// (sorted-by-name) order, so that a sweep's emission order is reproducible
// across runs even though Go map iteration order is not. Callers must hold
// s.mu.
func (s *Scheduler) drainLocked() []types.PendingEntry {
	names := make([]types.WorkloadName, 0, len(s.queue))
	for name := range s.queue {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	entries := make([]types.PendingEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, s.queue[name])
		delete(s.queue, name)
	}
	return entries
}

// enqueueCreateLocked evaluates and, if necessary, parks a Create
// operation. Callers must hold s.mu.
func (s *Scheduler) enqueueCreateLocked(spec *types.WorkloadSpec, store execstate.Store, notify bool) *types.WorkloadOperation {
	if depeval.CreateFulfilled(spec, store) {
		op := types.Create(spec)
		return &op
	}
	s.queue[spec.WorkloadName] = types.PendingEntry{Kind: types.PendingCreate, New: spec}
	if notify {
		s.notifyLocked(spec.InstanceName, types.ExecWaitingToStart)
	}
	return nil
}

// enqueueDeleteLocked evaluates and, if necessary, parks a Delete
// operation. Callers must hold s.mu.
func (s *Scheduler) enqueueDeleteLocked(del *types.DeletedWorkload, store execstate.Store, notify bool) *types.WorkloadOperation {
	if depeval.DeleteFulfilled(del, store) {
		op := types.Delete(del)
		return &op
	}
	s.queue[del.WorkloadName] = types.PendingEntry{Kind: types.PendingDelete, Old: del}
	if notify {
		s.notifyLocked(del.InstanceName, types.ExecWaitingToStop)
	}
	return nil
}

// enqueueUpdateLocked implements the at-most-once update gate table:
// create-fulfilled crossed with delete-fulfilled determines whether the
// update emits whole, splits into an immediate delete with a parked
// create, or parks whole behind the delete. Callers must hold s.mu.
func (s *Scheduler) enqueueUpdateLocked(newSpec *types.WorkloadSpec, old *types.DeletedWorkload, store execstate.Store, notify bool) []types.WorkloadOperation {
	createOK := depeval.CreateFulfilled(newSpec, store)
	deleteOK := depeval.DeleteFulfilled(old, store)

	switch {
	case createOK && deleteOK:
		return []types.WorkloadOperation{types.Update(newSpec, old)}

	case !createOK && deleteOK:
		// Free the old instance's resources as early as possible: split the
		// delete out now, park the create.
		s.queue[newSpec.WorkloadName] = types.PendingEntry{Kind: types.PendingUpdateCreate, New: newSpec, Old: old}
		if notify {
			s.notifyLocked(newSpec.InstanceName, types.ExecWaitingToStart)
		}
		return []types.WorkloadOperation{types.UpdateDeleteOnly(old)}

	default: // delete blocked — the whole update waits, even if create is ready.
		s.queue[newSpec.WorkloadName] = types.PendingEntry{Kind: types.PendingUpdateDelete, New: newSpec, Old: old}
		if notify {
			s.notifyLocked(old.InstanceName, types.ExecWaitingToStop)
		}
		return nil
	}
}

// notifyLocked sends a waiting-state notification, aborting the scheduler
// if the sink has been closed underneath it. Callers must hold s.mu.
func (s *Scheduler) notifyLocked(instance types.InstanceName, state types.ExecutionState) {
	s.metrics.ObserveNotification(state)
	if s.notifyCh == nil {
		return
	}
	if closed := sendOrDetectClosed(s.notifyCh, StateReport{Instance: instance, State: state}); closed {
		s.aborted = true
		s.logger.Error().
			Str("instance", instance.String()).
			Msg("notification sink closed during required send, aborting scheduler")
	}
}

// sendOrDetectClosed sends v on ch, reporting closed=true instead of
// panicking if ch has been closed concurrently. A full-but-open channel
// still blocks the caller; only closure is treated specially.
func sendOrDetectClosed(ch chan<- StateReport, v StateReport) (closed bool) {
	defer func() {
		if recover() != nil {
			closed = true
		}
	}()
	ch <- v
	return false
}

// Run drives the scheduler as a single-threaded cooperative event loop: it
// receives operation batches from opsCh and re-evaluation triggers from
// triggerCh, forwarding every ready operation it produces to readyCh. Run
// returns nil when opsCh or triggerCh closes, ctx.Err() when ctx is cancelled, and
// ErrNotificationSinkClosed when the notification sink closes during a
// required send.
func (s *Scheduler) Run(
	ctx context.Context,
	opsCh <-chan []types.WorkloadOperation,
	triggerCh <-chan struct{},
	store execstate.Store,
	readyCh chan<- []types.WorkloadOperation,
) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case batch, ok := <-opsCh:
			if !ok {
				return nil
			}
			ready := s.EnqueueFiltered(batch, store)
			if s.Aborted() {
				return ErrNotificationSinkClosed
			}
			if len(ready) > 0 {
				select {
				case readyCh <- ready:
				case <-ctx.Done():
					return ctx.Err()
				}
			}

		case _, ok := <-triggerCh:
			if !ok {
				return nil
			}
			ready := s.Next(store)
			if s.Aborted() {
				return ErrNotificationSinkClosed
			}
			if len(ready) > 0 {
				select {
				case readyCh <- ready:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}
