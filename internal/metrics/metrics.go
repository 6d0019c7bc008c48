package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the worker's prometheus metrics on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	jobsProcessed       *prometheus.CounterVec
	ticksTotal          prometheus.Counter
	tickDurationSeconds prometheus.Histogram
}

func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Recorder{
		registry: registry,
		jobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paysync_jobs_processed_total",
			Help: "Sync jobs processed, by job kind and outcome.",
		}, []string{"kind", "outcome"}),
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paysync_ticks_total",
			Help: "Worker ticks executed.",
		}),
		tickDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "paysync_tick_duration_seconds",
			Help:    "Duration of worker ticks.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	registry.MustRegister(r.jobsProcessed, r.ticksTotal, r.tickDurationSeconds)
	return r
}

// JobProcessed counts one finished job. Outcome is done, rescheduled or error.
func (r *Recorder) JobProcessed(kind, outcome string) {
	r.jobsProcessed.WithLabelValues(kind, outcome).Inc()
}

// TickCompleted records one full tick.
func (r *Recorder) TickCompleted(seconds float64) {
	r.ticksTotal.Inc()
	r.tickDurationSeconds.Observe(seconds)
}

// Handler serves the registry for the /metrics endpoint.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
