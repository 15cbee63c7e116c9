package prometheus

import (
	"time"

	"github.com/crewd/crewd/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements ports.MetricsCollector using Prometheus.
type Collector struct {
	spawns        *prometheus.CounterVec
	sends         *prometheus.CounterVec
	sendDuration  *prometheus.HistogramVec
	jobs          *prometheus.CounterVec
	jobTableSize  prometheus.Gauge
	workflowRuns  *prometheus.CounterVec
	workflowSteps *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	stepDuration  *prometheus.HistogramVec
	workerStatus  *prometheus.GaugeVec
}

// NewCollector creates a Prometheus metrics collector.
func NewCollector() *Collector {
	return &Collector{
		spawns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crewd_worker_spawns_total",
				Help: "Total number of worker spawn attempts",
			},
			[]string{"status"},
		),
		sends: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crewd_sends_total",
				Help: "Total number of worker dispatches",
			},
			[]string{"status"},
		),
		sendDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crewd_send_duration_seconds",
				Help:    "Worker dispatch duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		jobs: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crewd_jobs_total",
				Help: "Total number of job status transitions",
			},
			[]string{"status"},
		),
		jobTableSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crewd_job_table_size",
				Help: "Current number of retained jobs",
			},
		),
		workflowRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crewd_workflow_runs_total",
				Help: "Total number of workflow runs",
			},
			[]string{"status"},
		),
		workflowSteps: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crewd_workflow_steps_total",
				Help: "Total number of executed workflow steps",
			},
			[]string{"status"},
		),
		runDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crewd_workflow_run_duration_seconds",
				Help:    "Workflow run duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"status"},
		),
		stepDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crewd_workflow_step_duration_seconds",
				Help:    "Workflow step duration in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		workerStatus: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crewd_workers",
				Help: "Current number of workers by status",
			},
			[]string{"status"},
		),
	}
}

// RecordSpawn records a spawn attempt outcome.
func (c *Collector) RecordSpawn(status string) {
	c.spawns.WithLabelValues(status).Inc()
}

// RecordSend records a dispatch outcome and its duration.
func (c *Collector) RecordSend(status string, duration time.Duration) {
	c.sends.WithLabelValues(status).Inc()
	c.sendDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordJob records a job status transition.
func (c *Collector) RecordJob(status string) {
	c.jobs.WithLabelValues(status).Inc()
}

// RecordJobTableSize records the current job table size.
func (c *Collector) RecordJobTableSize(size int) {
	c.jobTableSize.Set(float64(size))
}

// RecordWorkflowRun records a completed workflow run.
func (c *Collector) RecordWorkflowRun(status string, duration time.Duration) {
	c.workflowRuns.WithLabelValues(status).Inc()
	c.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordWorkflowStep records an executed workflow step.
func (c *Collector) RecordWorkflowStep(status string, duration time.Duration) {
	c.workflowSteps.WithLabelValues(status).Inc()
	c.stepDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordWorkerStatuses records the per-status worker counts.
func (c *Collector) RecordWorkerStatuses(counts map[domain.WorkerStatus]int) {
	for _, status := range []domain.WorkerStatus{
		domain.WorkerStatusStarting,
		domain.WorkerStatusReady,
		domain.WorkerStatusBusy,
		domain.WorkerStatusError,
	} {
		c.workerStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
