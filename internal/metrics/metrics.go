// Package metrics exposes the core's Prometheus instrumentation:
// upstream call outcomes, Daily Computer run duration, Recommendation
// Engine query volume, and scheduled job outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the core exports.
type Registry struct {
	UpstreamCalls   *prometheus.CounterVec
	ComputeDuration *prometheus.HistogramVec
	Recommendations *prometheus.CounterVec
	SchedulerJobs   *prometheus.CounterVec
}

// NewRegistry builds and registers the core's metrics.
func NewRegistry() *Registry {
	r := &Registry{
		UpstreamCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factord_upstream_calls_total",
				Help: "Total upstream provider calls by provider, function, and outcome",
			},
			[]string{"provider", "function", "outcome"},
		),
		ComputeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "factord_compute_duration_seconds",
				Help:    "Daily Computer run duration in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"universe"},
		),
		Recommendations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factord_recommendations_served_total",
				Help: "Total recommendations returned by rec_type",
			},
			[]string{"rec_type"},
		),
		SchedulerJobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factord_scheduler_job_runs_total",
				Help: "Total scheduled job runs by job name and outcome",
			},
			[]string{"job", "outcome"},
		),
	}
	prometheus.MustRegister(r.UpstreamCalls, r.ComputeDuration, r.Recommendations, r.SchedulerJobs)
	return r
}

// Handler serves the Prometheus exposition format.
func (r *Registry) Handler() http.Handler { return promhttp.Handler() }

// ObserveUpstreamCall records one provider call outcome. Satisfies the
// callMetrics interface internal/upstream.Substrate.SetMetrics expects.
func (r *Registry) ObserveUpstreamCall(provider, function, outcome string) {
	r.UpstreamCalls.WithLabelValues(provider, function, outcome).Inc()
}

// ObserveSchedulerJob records one scheduled job run outcome. Satisfies
// the jobMetrics interface internal/scheduler.Scheduler.SetMetrics
// expects.
func (r *Registry) ObserveSchedulerJob(job, outcome string) {
	r.SchedulerJobs.WithLabelValues(job, outcome).Inc()
}
