// Package metrics holds the Prometheus instruments shared by the harvester
// components. Everything is registered on the default registry via promauto,
// so exposing it only takes promhttp.Handler().
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeOK         = "ok"
	OutcomeFailed     = "failed"
	OutcomeDisallowed = "disallowed"
)

var (
	// CatalogFetchTotal counts catalog requests by outcome.
	CatalogFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_fetch_total",
		Help: "Catalog search requests by outcome",
	}, []string{"outcome"})

	// CatalogFetchDuration observes catalog request latency.
	CatalogFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_fetch_duration_seconds",
		Help:    "Catalog search request latency in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	// HarvestPagesTotal counts pages attempted by the download loop.
	HarvestPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_pages_total",
		Help: "Result pages attempted by the download loop by outcome",
	}, []string{"outcome"})

	// HarvestPagesWritten counts page files handed to persistence.
	HarvestPagesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_pages_written_total",
		Help: "Result pages handed to page storage",
	})

	// StorageErrorsTotal counts local storage failures by operation.
	StorageErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_storage_errors_total",
		Help: "Page storage failures by operation (mkdir, write, read)",
	}, []string{"operation"})

	// RecordsInserted counts records accepted by insertion sinks.
	RecordsInserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_records_inserted_total",
		Help: "Book records accepted by the insertion sink",
	}, []string{"sink"})

	// InsertErrorsTotal counts failed insert batches.
	InsertErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_insert_errors_total",
		Help: "Insert batches that reported an error",
	}, []string{"sink"})

	// SessionsTotal counts finished harvest sessions by final status.
	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_sessions_total",
		Help: "Harvest sessions by final status",
	}, []string{"status"})
)

var (
	// WorkerJobsTotal counts harvest jobs seen by the worker by outcome
	// (received, invalid, done, failed).
	WorkerJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_jobs_total",
		Help: "Harvest jobs handled by the worker by outcome",
	}, []string{"outcome"})

	// WorkerInFlight is the number of sessions currently running.
	WorkerInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "worker_in_flight",
		Help: "Harvest sessions currently being processed",
	})

	WorkerCommitErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_commit_errors_total",
		Help: "Kafka offset commit failures",
	})

	// WorkerCommitPending is the number of finished messages waiting for an
	// earlier offset on the same partition.
	WorkerCommitPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "worker_commit_pending",
		Help: "Finished messages buffered until their offset can be committed",
	})

	WorkerCommitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "worker_commit_duration_seconds",
		Help:    "Kafka offset commit latency in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})
)

// GraphWriterMessagesTotal counts book messages consumed by the graph writer by outcome.
var GraphWriterMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "graph_writer_messages_total",
	Help: "Book messages consumed by the graph writer by outcome",
}, []string{"outcome"})
