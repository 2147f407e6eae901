package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/fleet/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter records Start/Stop/Status calls instead of driving a real
// container runtime.
type fakeAdapter struct {
	mu      sync.Mutex
	started []types.InstanceName
	stopped []types.InstanceName
}

func (f *fakeAdapter) Start(_ context.Context, spec *types.WorkloadSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, spec.InstanceName)
	return nil
}

func (f *fakeAdapter) Stop(_ context.Context, instance types.InstanceName, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, instance)
	return nil
}

func (f *fakeAdapter) Status(_ context.Context, _ types.InstanceName) (types.ExecutionState, error) {
	return types.ExecRunning, nil
}

func (f *fakeAdapter) snapshot() (started, stopped []types.InstanceName) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.InstanceName(nil), f.started...), append([]types.InstanceName(nil), f.stopped...)
}

// testServer serves a fixed desired state on GET /desired-state and
// records every POST /workload-state body it receives.
type testServer struct {
	mu      sync.Mutex
	state   types.DesiredState
	reports []workloadStateReportBody
}

func newTestServer(state types.DesiredState) *httptest.Server {
	ts := &testServer{state: state}
	mux := http.NewServeMux()
	mux.HandleFunc("/desired-state", func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		defer ts.mu.Unlock()
		json.NewEncoder(w).Encode(ts.state)
	})
	mux.HandleFunc("/workload-state", func(w http.ResponseWriter, r *http.Request) {
		var body workloadStateReportBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		ts.mu.Lock()
		ts.reports = append(ts.reports, body)
		ts.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	})
	return httptest.NewServer(mux)
}

func inst(workload, agentName string) types.InstanceName {
	return types.InstanceName{WorkloadName: types.WorkloadName(workload), AgentName: agentName, ConfigHash: "h1"}
}

func TestAgentReconcileStartsOwnedWorkloadImmediately(t *testing.T) {
	spec := &types.WorkloadSpec{
		InstanceName: inst("w1", "agent-1"),
		WorkloadName: "w1",
		AgentName:    "agent-1",
	}
	srv := newTestServer(types.DesiredState{
		Workloads:      map[types.WorkloadName]*types.WorkloadSpec{"w1": spec},
		WorkloadStates: map[types.WorkloadName]types.ExecutionState{},
	})
	defer srv.Close()

	adapter := &fakeAdapter{}
	a := New(Config{AgentName: "agent-1", ServerAddr: srv.URL}, adapter, nil)

	require.NoError(t, a.reconcile(context.Background()))

	started, stopped := adapter.snapshot()
	assert.Equal(t, []types.InstanceName{spec.InstanceName}, started)
	assert.Empty(t, stopped)
}

func TestAgentReconcileIgnoresOtherAgentsWorkloads(t *testing.T) {
	spec := &types.WorkloadSpec{
		InstanceName: inst("w1", "agent-2"),
		WorkloadName: "w1",
		AgentName:    "agent-2",
	}
	srv := newTestServer(types.DesiredState{
		Workloads:      map[types.WorkloadName]*types.WorkloadSpec{"w1": spec},
		WorkloadStates: map[types.WorkloadName]types.ExecutionState{},
	})
	defer srv.Close()

	adapter := &fakeAdapter{}
	a := New(Config{AgentName: "agent-1", ServerAddr: srv.URL}, adapter, nil)

	require.NoError(t, a.reconcile(context.Background()))

	started, stopped := adapter.snapshot()
	assert.Empty(t, started)
	assert.Empty(t, stopped)
}

func TestAgentReconcileWithholdsBlockedDependency(t *testing.T) {
	spec := &types.WorkloadSpec{
		InstanceName: inst("w1", "agent-1"),
		WorkloadName: "w1",
		AgentName:    "agent-1",
		Dependencies: map[types.WorkloadName]types.AddCondition{"w0": types.AddCondRunning},
	}
	srv := newTestServer(types.DesiredState{
		Workloads:      map[types.WorkloadName]*types.WorkloadSpec{"w1": spec},
		WorkloadStates: map[types.WorkloadName]types.ExecutionState{},
	})
	defer srv.Close()

	adapter := &fakeAdapter{}
	a := New(Config{AgentName: "agent-1", ServerAddr: srv.URL}, adapter, nil)

	require.NoError(t, a.reconcile(context.Background()))

	started, _ := adapter.snapshot()
	assert.Empty(t, started, "w1 depends on w0 which isn't known running yet")
}

func TestAgentReconcileReportsNothingOnEmptyState(t *testing.T) {
	srv := newTestServer(types.DesiredState{
		Workloads:      map[types.WorkloadName]*types.WorkloadSpec{},
		WorkloadStates: map[types.WorkloadName]types.ExecutionState{},
	})
	defer srv.Close()

	a := New(Config{AgentName: "agent-1", ServerAddr: srv.URL}, &fakeAdapter{}, nil)
	require.NoError(t, a.reconcile(context.Background()))
}

func TestScopeToAgentKeepsClusterWideStates(t *testing.T) {
	state := &types.DesiredState{
		Workloads: map[types.WorkloadName]*types.WorkloadSpec{
			"mine":   {WorkloadName: "mine", AgentName: "agent-1"},
			"theirs": {WorkloadName: "theirs", AgentName: "agent-2"},
		},
		WorkloadStates: map[types.WorkloadName]types.ExecutionState{
			"theirs": types.ExecRunning,
		},
	}

	scoped := scopeToAgent(state, "agent-1")

	assert.Contains(t, scoped.Workloads, types.WorkloadName("mine"))
	assert.NotContains(t, scoped.Workloads, types.WorkloadName("theirs"))
	assert.Equal(t, types.ExecRunning, scoped.WorkloadStates["theirs"])
}
