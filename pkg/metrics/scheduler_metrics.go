package metrics

import "github.com/cuemby/fleet/pkg/types"

// SchedulerCollector implements scheduler.Metrics, forwarding the agent
// scheduler's own observations into the process's Prometheus registry.
type SchedulerCollector struct{}

// NewSchedulerCollector returns a SchedulerCollector. It holds no state: the
// underlying prometheus.Gauge/CounterVec are package-level and already
// registered by this package's init.
func NewSchedulerCollector() SchedulerCollector {
	return SchedulerCollector{}
}

// ObserveQueueDepth records the scheduler's pending-queue length after a
// sweep.
func (SchedulerCollector) ObserveQueueDepth(depth int) {
	SchedulerQueueDepth.Set(float64(depth))
}

// ObserveNotification increments the notification counter for state.
func (SchedulerCollector) ObserveNotification(state types.ExecutionState) {
	SchedulerNotificationsTotal.WithLabelValues(string(state)).Inc()
}
