// Package metrics provides Prometheus metrics for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PipelineRunsTotal tracks pipeline runs by trigger and final status
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ticketflow",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by trigger and status",
		},
		[]string{"trigger", "status"},
	)

	// PipelineRunDuration tracks end-to-end run duration in seconds
	PipelineRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ticketflow",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"trigger"},
	)

	// PagesFetchedTotal tracks source API pages read
	PagesFetchedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ticketflow",
			Subsystem: "source",
			Name:      "pages_fetched_total",
			Help:      "Total number of event API pages fetched",
		},
	)

	// EventsTotal tracks extracted events by outcome
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ticketflow",
			Subsystem: "source",
			Name:      "events_total",
			Help:      "Total number of extracted events by outcome",
		},
		[]string{"outcome"},
	)

	// UploadAttemptsTotal tracks individual upload attempts
	UploadAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ticketflow",
			Subsystem: "upload",
			Name:      "attempts_total",
			Help:      "Total number of upload attempts by result",
		},
		[]string{"result"},
	)

	// FilesTotal tracks per-file stage outcomes
	FilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ticketflow",
			Subsystem: "files",
			Name:      "processed_total",
			Help:      "Total number of files processed by stage and status",
		},
		[]string{"stage", "status"},
	)

	// MergeRowsTotal tracks rows touched by SCD2 merges
	MergeRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ticketflow",
			Subsystem: "warehouse",
			Name:      "merge_rows_total",
			Help:      "Total number of historical rows affected by merges",
		},
		[]string{"table"},
	)

	// StageDuration tracks each stage of the warehouse load per file
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ticketflow",
			Subsystem: "warehouse",
			Name:      "step_duration_seconds",
			Help:      "Duration of per-file warehouse steps in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"step"},
	)
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)
