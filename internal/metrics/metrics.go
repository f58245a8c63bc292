// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HttpRequestsTotal counts HTTP requests handled by the service.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of http requests handled by the service.",
		},
		[]string{"path", "method", "code"},
	)

	// TasksDispatchedTotal counts task submissions per queue and outcome (created/failed).
	TasksDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_dispatched_total",
			Help: "Total number of task submissions made by dispatch runs.",
		},
		[]string{"queue", "status"},
	)

	// DispatchRunsTotal counts finished dispatch runs by outcome (done/failed/rejected).
	DispatchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_runs_total",
			Help: "Total number of dispatch runs.",
		},
		[]string{"status"},
	)

	// TaskExecutionsTotal counts tasks run by queue workers (success/failed).
	TaskExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_executions_total",
			Help: "Total number of queued task executions.",
		},
		[]string{"status"},
	)

	// IsLeader is 1 while this node fires scheduled dispatch runs.
	IsLeader = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "is_leader",
			Help: "Is this node currently the leader. 1 if leader, 0 otherwise.",
		},
		[]string{"node_id"},
	)
)
