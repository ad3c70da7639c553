// Package metrics registers the pipeline's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FindingsUpserted counts finding upserts by detector type.
	FindingsUpserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_findings_upserted_total",
		Help: "Finding upserts performed by detection runs.",
	}, []string{"type"})

	// DetectorFailures counts isolated detector errors.
	DetectorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_detector_failures_total",
		Help: "Detector runs that failed and were isolated.",
	}, []string{"detector"})

	// ActionsFinished counts remediation actions by terminal outcome.
	ActionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_actions_finished_total",
		Help: "Remediation actions that reached completed or failed.",
	}, []string{"action_type", "status"})

	// IngestedRows counts signal rows written by the connectors.
	IngestedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_ingested_rows_total",
		Help: "Signal rows ingested, by source table.",
	}, []string{"source"})
)
