package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts client operations by outcome.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bomberhub_store_operations_total",
			Help: "Total number of document store operations",
		},
		[]string{"operation", "status"},
	)
	// UpdateRetries counts Update attempts after the first.
	UpdateRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bomberhub_store_update_retries_total",
			Help: "Total number of retried document updates",
		},
	)
	// BatchCommits counts batch commits, including automatic flushes.
	BatchCommits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bomberhub_store_batch_commits_total",
			Help: "Total number of committed write batches",
		},
		[]string{"status"},
	)
)

func observe(operation string, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	OperationsTotal.WithLabelValues(operation, status).Inc()
}
