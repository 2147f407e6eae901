// Package agent is the driver loop an agent process runs: poll a server's
// desired-state endpoint, feed the resulting operations through the
// dependency scheduler, hand whatever clears its preconditions to a
// runtime adapter, and report the execution states that result back.
//
// Adapted from the teacher's Worker, whose heartbeatLoop and
// containerExecutorLoop polled a generated gRPC client and tracked
// types.Container by ID; this package polls the plain HTTP control plane
// in pkg/api and tracks types.WorkloadSpec by InstanceName instead.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cuemby/fleet/pkg/cluster"
	"github.com/cuemby/fleet/pkg/execstate"
	"github.com/cuemby/fleet/pkg/log"
	"github.com/cuemby/fleet/pkg/metrics"
	"github.com/cuemby/fleet/pkg/runtimeadapter"
	"github.com/cuemby/fleet/pkg/scheduler"
	"github.com/cuemby/fleet/pkg/types"
	"github.com/rs/zerolog"
)

// Config configures an Agent's connection to a server's HTTP control plane
// and the cadence it polls it on.
type Config struct {
	AgentName    string        // matches WorkloadSpec.AgentName for the workloads this agent owns
	ServerAddr   string        // base URL of the server's HTTP control plane, e.g. "https://10.0.0.1:8443"
	PollInterval time.Duration // defaults to 5s
	StopTimeout  time.Duration // defaults to 10s, grace period before an adapter escalates a stop
	HTTPClient   *http.Client  // defaults to http.DefaultClient; override to supply mTLS transport
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 10 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

// workloadStateReportBody mirrors pkg/api's wire shape for POST
// /workload-state.
type workloadStateReportBody struct {
	Name  types.WorkloadName   `json:"name"`
	State types.ExecutionState `json:"state"`
}

// Agent is a single polling loop bound to one runtimeadapter.Adapter.
type Agent struct {
	cfg     Config
	adapter runtimeadapter.Adapter
	store   *execstate.MapStore
	sched   *scheduler.Scheduler
	applied *types.DesiredState // last state this agent has acted on, scoped to itself
	logger  zerolog.Logger

	notifyCh chan scheduler.StateReport
}

// New builds an Agent. m may be nil.
func New(cfg Config, adapter runtimeadapter.Adapter, m scheduler.Metrics) *Agent {
	cfg.setDefaults()
	notifyCh := make(chan scheduler.StateReport, 32)
	return &Agent{
		cfg:      cfg,
		adapter:  adapter,
		store:    execstate.NewMapStore(),
		sched:    scheduler.New(notifyCh, m),
		applied:  emptyDesiredState(),
		logger:   log.WithAgent(cfg.AgentName),
		notifyCh: notifyCh,
	}
}

func emptyDesiredState() *types.DesiredState {
	return &types.DesiredState{
		Workloads:      make(map[types.WorkloadName]*types.WorkloadSpec),
		WorkloadStates: make(map[types.WorkloadName]types.ExecutionState),
	}
}

// Run polls the server on cfg.PollInterval until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	go a.drainNotifications(ctx)

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	if err := a.reconcile(ctx); err != nil {
		a.logger.Error().Err(err).Msg("initial reconcile failed")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.reconcile(ctx); err != nil {
				a.logger.Error().Err(err).Msg("reconcile cycle failed")
			}
		}
	}
}

// drainNotifications forwards the scheduler's own WaitingToStart/
// WaitingToStop transitions to the local store and the server, so a
// workload parked on an unmet dependency is visible cluster-wide rather
// than just sitting silently in this agent's queue.
func (a *Agent) drainNotifications(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case report, ok := <-a.notifyCh:
			if !ok {
				return
			}
			name := report.Instance.WorkloadName
			a.store.Put(name, report.State)
			if err := a.reportState(ctx, name, report.State); err != nil {
				a.logger.Warn().Err(err).Str("workload_name", string(name)).Msg("failed to report waiting state")
			}
		}
	}
}

// reconcile fetches the cluster's desired state, scopes it to this
// agent's own workloads, diffs it against what this agent last applied,
// and runs whatever clears the scheduler's gate through the adapter.
func (a *Agent) reconcile(ctx context.Context) error {
	state, err := a.fetchDesiredState(ctx)
	if err != nil {
		return fmt.Errorf("fetch desired state: %w", err)
	}

	for name, s := range state.WorkloadStates {
		a.store.Put(name, s)
	}

	diffTimer := metrics.NewTimer()
	scoped := scopeToAgent(state, a.cfg.AgentName)
	ops := cluster.DiffOperations(scoped, a.applied)
	a.applied = scoped
	diffTimer.ObserveDuration(metrics.ReconciliationDuration)
	metrics.ReconciliationCyclesTotal.Inc()

	a.refreshInstanceGauge()

	schedTimer := metrics.NewTimer()
	var ready []types.WorkloadOperation
	if len(ops) == 0 {
		// No new batch, but the store was just updated: re-evaluate the
		// pending queue so parked operations can clear.
		ready = a.sched.Next(a.store)
	} else {
		ready = a.sched.EnqueueFiltered(ops, a.store)
	}
	schedTimer.ObserveDuration(metrics.SchedulingLatency)
	if a.sched.Aborted() {
		return fmt.Errorf("scheduler aborted: notification sink closed")
	}

	a.execute(ctx, ready)
	a.refreshInstanceGauge()
	return nil
}

// refreshInstanceGauge publishes the agent's current view of its
// workloads' execution states to fleet_instances_total.
func (a *Agent) refreshInstanceGauge() {
	snapshot := a.store.Snapshot()
	counts := make(map[types.ExecutionState]int)
	for name := range a.applied.Workloads {
		if state, ok := snapshot[name]; ok {
			counts[state]++
		}
	}
	for state, count := range counts {
		metrics.InstancesTotal.WithLabelValues(string(state)).Set(float64(count))
	}
}

// scopeToAgent returns the subset of state's workloads this agent owns,
// keeping the full cluster-wide WorkloadStates map so dependency
// conditions on workloads owned by other agents still evaluate correctly.
func scopeToAgent(state *types.DesiredState, agentName string) *types.DesiredState {
	scoped := &types.DesiredState{
		Workloads:      make(map[types.WorkloadName]*types.WorkloadSpec),
		WorkloadStates: state.WorkloadStates,
	}
	for name, spec := range state.Workloads {
		if spec.AgentName == agentName {
			scoped.Workloads[name] = spec
		}
	}
	return scoped
}

// execute drives the runtime adapter for every operation the scheduler
// has cleared, reporting the resulting state back after each one.
func (a *Agent) execute(ctx context.Context, ops []types.WorkloadOperation) {
	for _, op := range ops {
		switch op.Kind {
		case types.OpCreate:
			a.start(ctx, op.New)

		case types.OpUpdate:
			a.stop(ctx, op.Old)
			a.start(ctx, op.New)

		case types.OpUpdateDeleteOnly, types.OpDelete:
			a.stop(ctx, op.Old)

		default:
			a.logger.Warn().Int("kind", int(op.Kind)).Msg("unrecognised operation kind from scheduler, dropping")
		}
	}
}

func (a *Agent) start(ctx context.Context, spec *types.WorkloadSpec) {
	logger := log.WithWorkload(spec.WorkloadName.String())
	timer := metrics.NewTimer()
	err := a.adapter.Start(ctx, spec)
	timer.ObserveDuration(metrics.InstanceStartDuration)
	if err != nil {
		metrics.InstancesFailed.Inc()
		logger.Error().Err(err).Str("instance", spec.InstanceName.String()).Msg("failed to start instance")
		a.reportState(ctx, spec.WorkloadName, types.ExecFailed)
		return
	}
	metrics.InstancesScheduled.Inc()
	a.store.Put(spec.WorkloadName, types.ExecRunning)
	logger.Info().Str("instance", spec.InstanceName.String()).Msg("instance started")
	a.reportState(ctx, spec.WorkloadName, types.ExecRunning)
}

func (a *Agent) stop(ctx context.Context, old *types.DeletedWorkload) {
	if old == nil {
		return
	}
	logger := log.WithWorkload(old.WorkloadName.String())
	timer := metrics.NewTimer()
	err := a.adapter.Stop(ctx, old.InstanceName, a.cfg.StopTimeout)
	timer.ObserveDuration(metrics.InstanceStopDuration)
	if err != nil {
		logger.Error().Err(err).Str("instance", old.InstanceName.String()).Msg("failed to stop instance")
		return
	}
	a.store.Put(old.WorkloadName, types.ExecRemoved)
	logger.Info().Str("instance", old.InstanceName.String()).Msg("instance stopped")
	a.reportState(ctx, old.WorkloadName, types.ExecRemoved)
}

func (a *Agent) fetchDesiredState(ctx context.Context) (*types.DesiredState, error) {
	url := a.cfg.ServerAddr + "/desired-state"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	var state types.DesiredState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("decode desired state: %w", err)
	}
	return &state, nil
}

func (a *Agent) reportState(ctx context.Context, name types.WorkloadName, state types.ExecutionState) error {
	body, err := json.Marshal(workloadStateReportBody{Name: name, State: state})
	if err != nil {
		return err
	}

	url := a.cfg.ServerAddr + "/workload-state"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
