package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the storage core collectors.
	Registry = prometheus.NewRegistry()

	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by result (hit, miss, expired).",
		},
		[]string{"result"},
	)

	StorageOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Storage service operations by op and outcome.",
		},
		[]string{"op", "outcome"},
	)

	JobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Scheduled job executions.",
		},
		[]string{"job", "success"},
	)
)

func init() {
	Registry.MustRegister(
		CacheLookups,
		StorageOps,
		JobRuns,
		prometheus.NewGoCollector(),
	)
}

// Handler exposes the registry over HTTP.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
