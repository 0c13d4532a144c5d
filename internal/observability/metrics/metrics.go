// Package metrics exposes the Prometheus collectors shared by the API and
// worker processes: job throughput, stage latency, and eligibility run
// counters, following the lazily-initialised CounterVec/HistogramVec
// singleton pattern the teacher uses for its JSON-RPC module metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every collector casepilot records against.
type Registry struct {
	JobsProcessed   *prometheus.CounterVec
	JobLatency      *prometheus.HistogramVec
	JobRetries      *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	EligibilityRuns prometheus.Counter
	QueueDepth      *prometheus.GaugeVec
}

var (
	once sync.Once
	reg  *Registry
)

// Default returns the process-wide metrics registry, constructing it on
// first use and registering every collector with the default Prometheus
// registerer.
func Default() *Registry {
	once.Do(func() {
		reg = &Registry{
			JobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "casepilot",
				Subsystem: "jobs",
				Name:      "processed_total",
				Help:      "Total jobs processed by kind and terminal state.",
			}, []string{"kind", "state"}),
			JobLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "casepilot",
				Subsystem: "jobs",
				Name:      "duration_seconds",
				Help:      "Job handler execution latency by kind.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"kind"}),
			JobRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "casepilot",
				Subsystem: "jobs",
				Name:      "retries_total",
				Help:      "Total job retry attempts by kind.",
			}, []string{"kind"}),
			StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "casepilot",
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "End-to-end stage latency by stage name.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"stage"}),
			EligibilityRuns: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "casepilot",
				Subsystem: "eligibility",
				Name:      "runs_total",
				Help:      "Total eligibility engine runs across all cases.",
			}),
			QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "casepilot",
				Subsystem: "jobs",
				Name:      "queue_depth",
				Help:      "Current number of queued jobs by kind.",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(
			reg.JobsProcessed,
			reg.JobLatency,
			reg.JobRetries,
			reg.StageDuration,
			reg.EligibilityRuns,
			reg.QueueDepth,
		)
	})
	return reg
}
