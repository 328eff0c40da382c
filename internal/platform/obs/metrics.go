package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated registry served at /metrics.
	Registry = prometheus.NewRegistry()

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// OpDuration is fed by Time for every timed operation.
	OpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "operation_duration_seconds", Help: "Duration of timed operations.", Buckets: prometheus.DefBuckets},
		[]string{"op", "outcome"},
	)

	PlanningRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "planning_runs_total", Help: "Planning runs by mode and outcome."},
		[]string{"mode", "outcome"},
	)
	PointsRouted = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "planning_points_routed_total", Help: "Service points placed on a suggested route."},
	)
	PointsUnscheduled = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "planning_points_unscheduled_total", Help: "Pending points that could not be scheduled."},
	)
	Confirmations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "planning_confirmations_total", Help: "Slot selection outcomes."},
		[]string{"outcome"},
	)
	ClusterFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "planning_cluster_failures_total", Help: "Clusters whose optimization failed."},
	)
	GeocodeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "geocode_requests_total", Help: "Geocode lookups by source and outcome."},
		[]string{"source", "outcome"},
	)
)

var regOnce sync.Once

// Register adds every collector to Registry. Safe to call more than once.
func Register() {
	regOnce.Do(func() {
		Registry.MustRegister(
			HTTPRequests,
			HTTPDuration,
			OpDuration,
			PlanningRuns,
			PointsRouted,
			PointsUnscheduled,
			Confirmations,
			ClusterFailures,
			GeocodeRequests,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}
