package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	auditRunsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netwarden_audit_runs_started_total",
		Help: "Total number of audit runs accepted for execution",
	})
	auditRunsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netwarden_audit_runs_completed_total",
		Help: "Total number of audit runs that reached completion",
	})
	checkResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netwarden_check_results_total",
		Help: "Check results recorded, by outcome",
	}, []string{"status"})
	remediations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netwarden_remediations_total",
		Help: "Remediation actions recorded, by outcome",
	}, []string{"outcome"})
	driftRecords = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netwarden_drift_records_total",
		Help: "Drift records produced against device baselines",
	})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(auditRunsStarted, auditRunsCompleted, checkResults, remediations, driftRecords)
}

// IncRunStarted increments the accepted-runs counter.
func IncRunStarted() { auditRunsStarted.Inc() }

// IncRunCompleted increments the completed-runs counter.
func IncRunCompleted() { auditRunsCompleted.Inc() }

// IncCheckResult records one check result by outcome.
func IncCheckResult(status string) { checkResults.WithLabelValues(status).Inc() }

// IncRemediation records one remediation action by outcome.
func IncRemediation(outcome string) { remediations.WithLabelValues(outcome).Inc() }

// IncDriftRecord increments the drift-records counter.
func IncDriftRecord() { driftRecords.Inc() }
