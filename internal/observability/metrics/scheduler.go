package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulerMetrics contains metrics for the recurring job queue and worker pool.
type SchedulerMetrics struct {
	JobsScheduled prometheus.Gauge
	JobsInFlight  prometheus.Gauge
	Runs          *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	TicksSkipped  prometheus.Counter
	Resyncs       *prometheus.CounterVec
}

// NewSchedulerMetrics creates and registers scheduler metrics.
func NewSchedulerMetrics(registry *prometheus.Registry) (*SchedulerMetrics, error) {
	m := &SchedulerMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register scheduler metrics: %w", err)
	}
	return m, nil
}

func (m *SchedulerMetrics) initMetrics() {
	m.JobsScheduled = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_jobs",
		Help: "Number of recurring jobs currently scheduled",
	})

	m.JobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_jobs_in_flight",
		Help: "Number of job runs currently executing",
	})

	m.Runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_job_runs_total",
		Help: "Total number of job runs by status",
	}, []string{"status"}) // success, error, panic

	m.RunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_job_run_duration_seconds",
		Help:    "Duration of job runs",
		Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12),
	})

	m.TicksSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_ticks_skipped_total",
		Help: "Ticks dropped because the previous run of the job was still in flight",
	})

	m.Resyncs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_resyncs_total",
		Help: "Total number of station job resyncs",
	}, []string{"status"})
}

// Describe implements the prometheus.Collector interface.
func (m *SchedulerMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.JobsScheduled.Desc()
	ch <- m.JobsInFlight.Desc()
	m.Runs.Describe(ch)
	ch <- m.RunDuration.Desc()
	ch <- m.TicksSkipped.Desc()
	m.Resyncs.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *SchedulerMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.JobsScheduled
	ch <- m.JobsInFlight
	m.Runs.Collect(ch)
	ch <- m.RunDuration
	ch <- m.TicksSkipped
	m.Resyncs.Collect(ch)
}

// SetJobs records the number of scheduled jobs.
func (m *SchedulerMetrics) SetJobs(n int) {
	if m == nil {
		return
	}
	m.JobsScheduled.Set(float64(n))
}

// RunStarted marks a job run as in flight.
func (m *SchedulerMetrics) RunStarted() {
	if m == nil {
		return
	}
	m.JobsInFlight.Inc()
}

// RunFinished records the outcome of a job run.
func (m *SchedulerMetrics) RunFinished(status string, seconds float64) {
	if m == nil {
		return
	}
	m.JobsInFlight.Dec()
	m.Runs.WithLabelValues(status).Inc()
	m.RunDuration.Observe(seconds)
}

// TickSkipped counts a dropped tick.
func (m *SchedulerMetrics) TickSkipped() {
	if m == nil {
		return
	}
	m.TicksSkipped.Inc()
}

// RecordResync counts a resync by status.
func (m *SchedulerMetrics) RecordResync(status string) {
	if m == nil {
		return
	}
	m.Resyncs.WithLabelValues(status).Inc()
}
