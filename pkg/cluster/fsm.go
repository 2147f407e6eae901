package cluster

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/cuemby/fleet/pkg/types"
	"github.com/hashicorp/raft"
)

// Command is one Raft log entry: an operation name plus its JSON payload.
// ID is a uuid assigned when the command is proposed (see Manager.apply);
// it has no bearing on FSM semantics — commands are applied in Raft's own
// log order regardless of ID — but it gives every Apply-time log line and
// error a correlation ID that follows one proposal from the leader's
// apply() call through to the FSM that commits it.
type Command struct {
	ID   string          `json:"id"`
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

const (
	opApplyDesiredState   = "apply_desired_state"
	opReportWorkloadState = "report_workload_state"
)

type workloadStateReport struct {
	Name  types.WorkloadName   `json:"name"`
	State types.ExecutionState `json:"state"`
}

// FSM is the Raft state machine backing a Fleet server. Its business
// state — the admitted desired state and the execution states reported
// back for it — lives entirely in memory; only Raft's own log and stable
// store are durable, via whatever LogStore/StableStore the Manager wires
// in.
type FSM struct {
	mu    sync.RWMutex
	state types.DesiredState
}

// NewFSM returns an FSM with an empty desired state.
func NewFSM() *FSM {
	return &FSM{
		state: types.DesiredState{
			Workloads:      make(map[types.WorkloadName]*types.WorkloadSpec),
			WorkloadStates: make(map[types.WorkloadName]types.ExecutionState),
		},
	}
}

// Apply applies one committed Raft log entry to the FSM.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case opApplyDesiredState:
		var state types.DesiredState
		if err := json.Unmarshal(cmd.Data, &state); err != nil {
			return fmt.Errorf("failed to unmarshal desired state: %w", err)
		}
		// Admission already ran before this entry was proposed to Raft;
		// re-validating here would be redundant, not protective, since a
		// committed entry was accepted by the same check on the leader.
		f.state.Workloads = state.Workloads
		return nil

	case opReportWorkloadState:
		var report workloadStateReport
		if err := json.Unmarshal(cmd.Data, &report); err != nil {
			return fmt.Errorf("failed to unmarshal workload state report: %w", err)
		}
		if f.state.WorkloadStates == nil {
			f.state.WorkloadStates = make(map[types.WorkloadName]types.ExecutionState)
		}
		f.state.WorkloadStates[report.Name] = report.State
		return nil

	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}
}

// Snapshot returns a point-in-time copy of the FSM's state for Raft's log
// compaction.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	snap := &fsmSnapshot{state: copyDesiredState(&f.state)}
	return snap, nil
}

// Restore replaces the FSM's state with the contents of a snapshot.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var state types.DesiredState
	if err := json.NewDecoder(rc).Decode(&state); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
	if f.state.Workloads == nil {
		f.state.Workloads = make(map[types.WorkloadName]*types.WorkloadSpec)
	}
	if f.state.WorkloadStates == nil {
		f.state.WorkloadStates = make(map[types.WorkloadName]types.ExecutionState)
	}
	return nil
}

// currentState returns a defensive copy of the FSM's state, safe for the
// caller to read without holding f.mu.
func (f *FSM) currentState() *types.DesiredState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return copyDesiredState(&f.state)
}

func copyDesiredState(s *types.DesiredState) *types.DesiredState {
	out := &types.DesiredState{
		Workloads:      make(map[types.WorkloadName]*types.WorkloadSpec, len(s.Workloads)),
		WorkloadStates: make(map[types.WorkloadName]types.ExecutionState, len(s.WorkloadStates)),
	}
	for name, spec := range s.Workloads {
		specCopy := *spec
		out.Workloads[name] = &specCopy
	}
	for name, state := range s.WorkloadStates {
		out.WorkloadStates[name] = state
	}
	return out
}

type fsmSnapshot struct {
	state *types.DesiredState
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s.state); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *fsmSnapshot) Release() {}
