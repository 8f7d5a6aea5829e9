// Package metrics exposes batch scheduler state as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"veobatch/internal/domain"
	"veobatch/internal/scheduler"
)

const namespace = "veobatch"

// Collector tracks job transitions reported by a scheduler.
type Collector struct {
	jobs       *prometheus.GaugeVec
	admissions prometheus.Counter
	failures   *prometheus.CounterVec
	succeeded  prometheus.Counter
	duration   prometheus.Histogram
}

// NewCollector registers the batch metrics on reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		jobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_jobs",
			Help:      "Jobs in the worklist by status.",
		}, []string{"status"}),
		admissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_admissions_total",
			Help:      "Jobs moved from queued to processing.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_job_failures_total",
			Help:      "Failed job attempts by failure kind.",
		}, []string{"kind"}),
		succeeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_job_successes_total",
			Help:      "Job attempts that produced a video.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_job_duration_seconds",
			Help:      "Time from admission to a terminal state.",
			Buckets:   []float64{15, 30, 60, 120, 240, 480, 960},
		}),
	}
	for _, col := range []prometheus.Collector{c.jobs, c.admissions, c.failures, c.succeeded, c.duration} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Observe is a scheduler.Listener.
func (c *Collector) Observe(change scheduler.Change) {
	job := change.Job
	if change.Removed {
		c.jobs.WithLabelValues(string(job.Status)).Dec()
		return
	}
	if change.Previous == job.Status {
		return
	}
	if change.Previous != "" {
		c.jobs.WithLabelValues(string(change.Previous)).Dec()
	}
	c.jobs.WithLabelValues(string(job.Status)).Inc()

	switch job.Status {
	case domain.JobStatusProcessing:
		c.admissions.Inc()
	case domain.JobStatusSucceeded:
		c.succeeded.Inc()
		c.observeDuration(job)
	case domain.JobStatusFailed:
		c.failures.WithLabelValues(string(job.ErrorKind)).Inc()
		c.observeDuration(job)
	}
}

func (c *Collector) observeDuration(job domain.Job) {
	if job.StartedAt.IsZero() || job.FinishedAt.Before(job.StartedAt) {
		return
	}
	c.duration.Observe(job.FinishedAt.Sub(job.StartedAt).Seconds())
}
