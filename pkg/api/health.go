package api

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/fleet/pkg/cluster"
	"github.com/cuemby/fleet/pkg/metrics"
	"github.com/cuemby/fleet/pkg/types"
)

// HealthServer provides the HTTP surface for a manager node: liveness and
// readiness probes, Prometheus scraping, and the desired-state /
// workload-state-report endpoints agents and operators use to talk to
// cluster.Manager. No protobuf wire format is mandated for this surface, so
// it stays plain JSON over HTTP in the same style the teacher uses for its
// health checks.
type HealthServer struct {
	manager *cluster.Manager
	mux     *http.ServeMux
}

// NewHealthServer creates a new HTTP server wrapping manager.
func NewHealthServer(mgr *cluster.Manager) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		manager: mgr,
		mux:     mux,
	}

	mux.Handle("/health", instrument("/health", http.HandlerFunc(hs.healthHandler)))
	mux.Handle("/ready", instrument("/ready", http.HandlerFunc(hs.readyHandler)))
	mux.Handle("/desired-state", instrument("/desired-state", http.HandlerFunc(hs.desiredStateHandler)))
	mux.Handle("/workload-state", instrument("/workload-state", http.HandlerFunc(hs.workloadStateHandler)))
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// statusRecorder captures the status code a handler wrote, defaulting to
// 200 if the handler never calls WriteHeader explicitly.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument wraps next so every request against path is counted and timed
// under fleet_api_requests_total / fleet_api_request_duration_seconds.
func instrument(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method, path)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, path, fmt.Sprintf("%d", rec.status)).Inc()
	})
}

// Start starts the HTTP server.
func (hs *HealthServer) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// StartLocal serves the same mux over a Unix socket at socketPath, wrapped
// in ReadOnlyMiddleware: an operator's local CLI can read /health, /ready,
// /desired-state and /metrics without mTLS, but ApplyDesiredState /
// ReportWorkloadState stay reachable only through Start's TCP listener.
// Any stale socket file at socketPath is removed before binding, matching
// the usual unix-socket server convention of cleaning up after a prior
// unclean shutdown.
func (hs *HealthServer) StartLocal(socketPath string) error {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("failed to clear stale socket %s: %w", socketPath, err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on unix socket %s: %w", socketPath, err)
	}

	server := &http.Server{
		Handler:      ReadOnlyMiddleware(hs.mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.Serve(listener)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// ReadyResponse represents the readiness check response
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// healthHandler implements the /health endpoint: a liveness check that
// returns 200 if the process is alive, independent of Raft or admission.
func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   "1.0.0", // TODO: get from build info
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// readyHandler implements the /ready endpoint: whether this manager is
// ready to accept ApplyDesiredState calls and serve state reads.
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	checks := make(map[string]string)
	ready := true
	var message string

	if hs.manager != nil {
		if hs.manager.IsLeader() {
			checks["raft"] = "leader"
		} else {
			leaderAddr := hs.manager.LeaderAddr()
			if leaderAddr != "" {
				checks["raft"] = fmt.Sprintf("follower (leader: %s)", leaderAddr)
			} else {
				checks["raft"] = "no leader elected"
				ready = false
				message = "Waiting for leader election"
			}
		}

		state := hs.manager.CurrentState()
		checks["state"] = fmt.Sprintf("%d workloads, %d reported states", len(state.Workloads), len(state.WorkloadStates))
	} else {
		checks["raft"] = "not initialized"
		checks["state"] = "not initialized"
		ready = false
		message = "Manager not initialized"
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	response := ReadyResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
		Message:   message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// desiredStateHandler serves the committed desired state on GET, and on
// POST proposes a new one through cluster.Manager.ApplyDesiredState. A
// proposal rejected by admission comes back as 422, never touching Raft.
func (hs *HealthServer) desiredStateHandler(w http.ResponseWriter, r *http.Request) {
	if hs.manager == nil {
		http.Error(w, "manager not initialized", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(hs.manager.CurrentState())
	case http.MethodPost:
		var proposed types.DesiredState
		if err := json.NewDecoder(r.Body).Decode(&proposed); err != nil {
			http.Error(w, fmt.Sprintf("invalid desired state: %v", err), http.StatusBadRequest)
			return
		}
		if err := hs.manager.ApplyDesiredState(&proposed); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type workloadStateReportBody struct {
	Name  types.WorkloadName   `json:"name"`
	State types.ExecutionState `json:"state"`
}

// workloadStateHandler accepts an agent's execution-state report and
// replicates it through cluster.Manager.ReportWorkloadState.
func (hs *HealthServer) workloadStateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if hs.manager == nil {
		http.Error(w, "manager not initialized", http.StatusServiceUnavailable)
		return
	}

	var body workloadStateReportBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("invalid state report: %v", err), http.StatusBadRequest)
		return
	}

	if err := hs.manager.ReportWorkloadState(body.Name, body.State); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// GetHandler returns the HTTP handler for embedding in other servers.
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}
