package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Instance metrics (pkg/agent, one series per agent process)
	InstancesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleet_instances_total",
			Help: "Total number of workload instances this agent knows about, by execution state",
		},
		[]string{"state"},
	)

	// Raft metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_raft_peers_total",
			Help: "Total number of Raft peers in the cluster",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleet_raft_apply_duration_seconds",
			Help:    "Time taken to apply a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_api_requests_total",
			Help: "Total number of control-plane HTTP requests by method, path and status",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_api_request_duration_seconds",
			Help:    "Control-plane HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Reconciliation metrics (pkg/agent, the desired-vs-applied diff cycle)
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleet_reconciliation_duration_seconds",
			Help:    "Time taken to diff a fetched desired state against what an agent last applied",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles completed by this agent",
		},
	)

	// Instance lifecycle metrics (pkg/agent driving pkg/runtimeadapter)
	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleet_scheduling_latency_seconds",
			Help:    "Time spent running a batch of operations through the dependency scheduler",
			Buckets: prometheus.DefBuckets,
		},
	)

	InstancesScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_instances_scheduled_total",
			Help: "Total number of workload instances successfully started",
		},
	)

	InstancesFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_instances_failed_total",
			Help: "Total number of workload instances that failed to start",
		},
	)

	InstanceStartDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleet_instance_start_duration_seconds",
			Help:    "Time taken for the runtime adapter to start an instance in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	InstanceStopDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleet_instance_stop_duration_seconds",
			Help:    "Time taken for the runtime adapter to stop an instance in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Scheduler metrics (pkg/scheduler, one series per agent process)
	SchedulerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_scheduler_queue_depth",
			Help: "Number of workload operations currently parked in the agent scheduler's pending queue",
		},
	)

	SchedulerNotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_scheduler_notifications_total",
			Help: "Total number of WaitingToStart/WaitingToStop notifications emitted by the scheduler",
		},
		[]string{"state"},
	)

	// Admission metrics (pkg/admission, via pkg/cluster.Manager.ApplyDesiredState)
	AdmissionCheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleet_admission_check_duration_seconds",
			Help:    "Time taken to run the dependency-graph admission check against a proposed desired state",
			Buckets: prometheus.DefBuckets,
		},
	)

	AdmissionAdmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_admission_admitted_total",
			Help: "Total number of proposed desired states that passed admission",
		},
	)

	AdmissionRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_admission_rejected_total",
			Help: "Total number of proposed desired states rejected by admission",
		},
	)
)

func init() {
	prometheus.MustRegister(InstancesTotal)

	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftPeers)
	prometheus.MustRegister(RaftLogIndex)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(RaftApplyDuration)

	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)

	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)

	prometheus.MustRegister(SchedulingLatency)
	prometheus.MustRegister(InstancesScheduled)
	prometheus.MustRegister(InstancesFailed)
	prometheus.MustRegister(InstanceStartDuration)
	prometheus.MustRegister(InstanceStopDuration)

	prometheus.MustRegister(SchedulerQueueDepth)
	prometheus.MustRegister(SchedulerNotificationsTotal)
	prometheus.MustRegister(AdmissionCheckDuration)
	prometheus.MustRegister(AdmissionAdmittedTotal)
	prometheus.MustRegister(AdmissionRejectedTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
