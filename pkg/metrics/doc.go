/*
Package metrics provides Prometheus metrics collection and exposition for
Fleet, plus a small process-health registry independent of Prometheus.

# Metric families

Raft (pkg/cluster):

  - fleet_raft_is_leader, fleet_raft_peers_total, fleet_raft_log_index,
    fleet_raft_applied_index, fleet_raft_apply_duration_seconds

API (pkg/api):

  - fleet_api_requests_total{method,path,status}
  - fleet_api_request_duration_seconds{method,path}

Agent reconciliation and instance lifecycle (pkg/agent, pkg/runtimeadapter):

  - fleet_reconciliation_duration_seconds, fleet_reconciliation_cycles_total
  - fleet_scheduling_latency_seconds
  - fleet_instances_scheduled_total, fleet_instances_failed_total
  - fleet_instance_start_duration_seconds, fleet_instance_stop_duration_seconds
  - fleet_instances_total{state}

Scheduler (pkg/scheduler, via SchedulerCollector):

  - fleet_scheduler_queue_depth
  - fleet_scheduler_notifications_total{state}

Admission (pkg/admission, via pkg/cluster.Manager):

  - fleet_admission_check_duration_seconds
  - fleet_admission_admitted_total, fleet_admission_rejected_total

# Usage

	timer := metrics.NewTimer()
	// ... do work ...
	timer.ObserveDuration(metrics.InstanceStartDuration)

	metrics.InstancesScheduled.Inc()

Exposition:

	http.Handle("/metrics", metrics.Handler())

# Process health registry

Independent of the Prometheus series above, a small in-memory registry
tracks named component readiness (e.g. "raft", "containerd") for a
process's own bookkeeping:

	metrics.SetVersion("1.0.0")
	metrics.RegisterComponent("raft", true, "bootstrapped")
	metrics.RegisterComponent("containerd", false, "initializing")

	status := metrics.GetHealth()     // aggregate health across components
	readiness := metrics.GetReadiness() // readiness gated on raft/containerd/api

cmd/fleet-server and cmd/fleet-agent update this registry as their
subsystems come up; pkg/api.HealthServer serves the actual /health and
/ready HTTP endpoints against pkg/cluster.Manager directly, so this
registry's own HealthHandler/ReadyHandler/LivenessHandler are available
for a process to mount on a separate diagnostic port if it chooses to.
*/
package metrics
