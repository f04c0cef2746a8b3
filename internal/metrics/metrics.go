// Package metrics exposes Prometheus collectors for the audit service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	auditsTotal          *prometheus.CounterVec
	escalationsTotal     prometheus.Counter
	fetchDurationSeconds *prometheus.HistogramVec
	jobsTotal            *prometheus.CounterVec
	poolActiveWorkers    prometheus.Gauge
	driftRecordsTotal    *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		auditsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entityscope_audits_total",
				Help: "Total number of per-URL audits, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		escalationsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "entityscope_escalations_total",
				Help: "Total number of static fetches escalated to a rendered fetch.",
			},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "entityscope_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies, labeled by mode and success.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 45},
			},
			[]string{"mode", "success"},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entityscope_jobs_total",
				Help: "Total number of job invocations, labeled by resulting status.",
			},
			[]string{"status"},
		)

		poolActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "entityscope_pool_active_workers",
				Help: "Number of active ad-hoc audit workers.",
			},
		)

		driftRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entityscope_drift_records_total",
				Help: "Total drift snapshot writes, labeled by result.",
			},
			[]string{"result"},
		)
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncAudit counts one finished per-URL audit.
func IncAudit(outcome string) {
	if auditsTotal == nil {
		return
	}
	auditsTotal.WithLabelValues(outcome).Inc()
}

// IncEscalation counts one static-to-rendered escalation.
func IncEscalation() {
	if escalationsTotal == nil {
		return
	}
	escalationsTotal.Inc()
}

// ObserveFetch records one fetch duration.
func ObserveFetch(mode string, d time.Duration, ok bool) {
	if fetchDurationSeconds == nil {
		return
	}
	success := "false"
	if ok {
		success = "true"
	}
	fetchDurationSeconds.WithLabelValues(mode, success).Observe(d.Seconds())
}

// IncJob counts one orchestrator invocation by resulting status.
func IncJob(status string) {
	if jobsTotal == nil {
		return
	}
	jobsTotal.WithLabelValues(status).Inc()
}

// AddPoolWorkers adjusts the active worker gauge.
func AddPoolWorkers(delta float64) {
	if poolActiveWorkers == nil {
		return
	}
	poolActiveWorkers.Add(delta)
}

// IncDriftRecord counts one drift snapshot write attempt.
func IncDriftRecord(result string) {
	if driftRecordsTotal == nil {
		return
	}
	driftRecordsTotal.WithLabelValues(result).Inc()
}
