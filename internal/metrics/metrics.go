// Package metrics registers the Prometheus instrumentation for the pool
// supervisor and worker loop, grounded on internal/escrow.Metrics's
// promauto-registered vectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector this module exposes.
type Metrics struct {
	Population *prometheus.GaugeVec
	InFlight   *prometheus.GaugeVec

	JobsTotal      *prometheus.CounterVec
	JobDuration    *prometheus.HistogramVec
	PublishRetries prometheus.Counter
	ResultsLost    prometheus.Counter
}

// New creates and registers every collector.
func New() *Metrics {
	return &Metrics{
		Population: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "checkworker_pool_population",
				Help: "Current number of live worker goroutines.",
			},
			[]string{"pool"},
		),
		InFlight: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "checkworker_pool_in_flight",
				Help: "Jobs currently executing across all workers.",
			},
			[]string{"pool"},
		),
		JobsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkworker_jobs_total",
				Help: "Total jobs processed, by terminal result.",
			},
			[]string{"result"}, // ok, warning, critical, unknown, expired, invalid, lost
		),
		JobDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "checkworker_job_duration_seconds",
				Help:    "Wall-clock duration of job execution.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"type"}, // host, service, eventhandler
		),
		PublishRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "checkworker_publish_retries_total",
				Help: "Total result-publish retries across broker servers.",
			},
		),
		ResultsLost: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "checkworker_results_lost_total",
				Help: "Total results dropped after exhausting publish retries.",
			},
		),
	}
}
