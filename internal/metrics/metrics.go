package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	jobsQueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "showsync",
			Name:      "jobs_queued_total",
			Help:      "Jobs appended to the durable queue, by kind.",
		},
		[]string{"kind"},
	)

	jobsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "showsync",
			Name:      "jobs_completed_total",
			Help:      "Jobs that reached a terminal state, by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	jobRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "showsync",
			Name:      "job_retries_total",
			Help:      "Transient failures that were rescheduled.",
		},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "showsync",
			Name:      "queue_depth",
			Help:      "Jobs waiting to sync.",
		},
	)

	remoteRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "showsync",
			Name:      "remote_requests_total",
			Help:      "Calls against the remote service, by collaborator and status class.",
		},
		[]string{"service", "class"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(jobsQueued, jobsCompleted, jobRetries, queueDepth, remoteRequests)
	})
}

// IncQueued increments the queued counter for a job kind.
func IncQueued(kind string) {
	jobsQueued.WithLabelValues(kind).Inc()
}

// IncCompleted increments the terminal outcome counter for a job kind.
func IncCompleted(kind, outcome string) {
	jobsCompleted.WithLabelValues(kind, outcome).Inc()
}

// IncRetry increments the retry counter.
func IncRetry() {
	jobRetries.Inc()
}

// SetQueueDepth records the number of non-terminal jobs.
func SetQueueDepth(depth int) {
	queueDepth.Set(float64(depth))
}

// IncRemote increments the remote request counter.
func IncRemote(service, class string) {
	remoteRequests.WithLabelValues(service, class).Inc()
}
