package cluster

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/fleet/pkg/admission"
	"github.com/cuemby/fleet/pkg/log"
	"github.com/cuemby/fleet/pkg/metrics"
	"github.com/cuemby/fleet/pkg/types"
	"github.com/google/uuid"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/rs/zerolog"
)

// Config holds the configuration for creating a Manager.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string
}

// Manager owns a server's Raft-replicated desired state: it admits
// proposed states through pkg/admission before they ever reach the Raft
// log, and lets callers read back the currently committed state and the
// execution states reported against it.
type Manager struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft   *raft.Raft
	fsm    *FSM
	logger zerolog.Logger
}

// NewManager creates a Manager with an empty FSM. Bootstrap must be called
// before the manager can accept writes.
func NewManager(cfg *Config) (*Manager, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return &Manager{
		nodeID:   cfg.NodeID,
		bindAddr: cfg.BindAddr,
		dataDir:  cfg.DataDir,
		fsm:      NewFSM(),
		logger:   log.WithComponent("cluster"),
	}, nil
}

// Bootstrap initialises a new single-node Raft cluster rooted at this
// manager. Raft's own log and stable store are boltdb-backed — the only
// place bbolt appears in this package, since the FSM's business state is
// in-memory.
func (m *Manager) Bootstrap() error {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(m.nodeID)
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", m.bindAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(m.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(m.dataDir, 2, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-log.db"))
	if err != nil {
		return fmt.Errorf("failed to create log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-stable.db"))
	if err != nil {
		return fmt.Errorf("failed to create stable store: %w", err)
	}

	r, err := raft.NewRaft(config, m.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("failed to create raft: %w", err)
	}
	m.raft = r

	configuration := raft.Configuration{
		Servers: []raft.Server{
			{ID: config.LocalID, Address: transport.LocalAddr()},
		},
	}
	future := m.raft.BootstrapCluster(configuration)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to bootstrap cluster: %w", err)
	}

	m.logger.Info().Str("node_id", m.nodeID).Str("bind_addr", m.bindAddr).Msg("cluster bootstrapped")
	m.refreshRaftMetricsLocked()
	return nil
}

// NodeID returns the Raft server ID this manager was configured with.
func (m *Manager) NodeID() string {
	return m.nodeID
}

// IsLeader reports whether this manager currently holds Raft leadership.
func (m *Manager) IsLeader() bool {
	if m.raft == nil {
		return false
	}
	return m.raft.State() == raft.Leader
}

// LeaderAddr returns the address of the current Raft leader, or "" if
// unknown.
func (m *Manager) LeaderAddr() string {
	if m.raft == nil {
		return ""
	}
	return string(m.raft.Leader())
}

// AddVoter adds a new manager node to the Raft configuration. Must be
// called on the leader.
func (m *Manager) AddVoter(nodeID, address string) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !m.IsLeader() {
		return fmt.Errorf("not the leader, current leader: %s", m.LeaderAddr())
	}
	future := m.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second)
	return future.Error()
}

// Shutdown stops the Raft instance.
func (m *Manager) Shutdown() error {
	if m.raft == nil {
		return nil
	}
	return m.raft.Shutdown().Error()
}

// ApplyDesiredState runs admission.CheckState over proposed and, only if it
// passes, replicates it through Raft. Rejection is atomic: a proposed state
// that fails admission never reaches the Raft log, so a rejected state can
// never partially apply.
func (m *Manager) ApplyDesiredState(proposed *types.DesiredState) error {
	admitStart := time.Now()
	err := admission.CheckState(proposed)
	metrics.AdmissionCheckDuration.Observe(time.Since(admitStart).Seconds())
	if err != nil {
		metrics.AdmissionRejectedTotal.Inc()
		m.logger.Warn().Err(err).Msg("desired state rejected by admission")
		return err
	}
	metrics.AdmissionAdmittedTotal.Inc()

	data, err := json.Marshal(proposed)
	if err != nil {
		return fmt.Errorf("failed to marshal desired state: %w", err)
	}

	return m.apply(Command{Op: opApplyDesiredState, Data: data})
}

// ReportWorkloadState replicates a runtime-reported execution state for a
// workload so every follower observes the same state-report stream the
// leader does.
func (m *Manager) ReportWorkloadState(name types.WorkloadName, state types.ExecutionState) error {
	data, err := json.Marshal(workloadStateReport{Name: name, State: state})
	if err != nil {
		return fmt.Errorf("failed to marshal workload state report: %w", err)
	}
	return m.apply(Command{Op: opReportWorkloadState, Data: data})
}

func (m *Manager) apply(cmd Command) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}

	cmd.ID = uuid.NewString()

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	applyStart := time.Now()
	future := m.raft.Apply(data, 5*time.Second)
	err = future.Error()
	metrics.RaftApplyDuration.Observe(time.Since(applyStart).Seconds())
	m.refreshRaftMetricsLocked()
	if err != nil {
		m.logger.Error().Err(err).Str("command_id", cmd.ID).Str("op", cmd.Op).Msg("raft apply failed")
		return fmt.Errorf("failed to apply command: %w", err)
	}
	m.logger.Debug().Str("command_id", cmd.ID).Str("op", cmd.Op).Msg("raft command applied")
	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok && err != nil {
			return err
		}
	}
	return nil
}

// refreshRaftMetricsLocked updates the package-level Raft gauges from this
// manager's current Raft state. Safe to call without holding any lock of
// m's own: raft.Raft and raft.Stats are both safe for concurrent use.
func (m *Manager) refreshRaftMetricsLocked() {
	if m.raft == nil {
		return
	}
	if m.IsLeader() {
		metrics.RaftLeader.Set(1)
	} else {
		metrics.RaftLeader.Set(0)
	}

	stats := m.raft.Stats()
	if lastIndex, err := parseRaftStat(stats["last_log_index"]); err == nil {
		metrics.RaftLogIndex.Set(lastIndex)
	}
	if appliedIndex, err := parseRaftStat(stats["applied_index"]); err == nil {
		metrics.RaftAppliedIndex.Set(appliedIndex)
	}

	if configFuture := m.raft.GetConfiguration(); configFuture.Error() == nil {
		metrics.RaftPeers.Set(float64(len(configFuture.Configuration().Servers)))
	}
}

func parseRaftStat(v string) (float64, error) {
	var n uint64
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return 0, err
	}
	return float64(n), nil
}

// CurrentState returns a defensive copy of the committed desired state.
func (m *Manager) CurrentState() *types.DesiredState {
	return m.fsm.currentState()
}
