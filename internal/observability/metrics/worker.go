package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/intake-triage/internal/core/domain"
)

type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	jobsTotal       *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	jobsInFlight    prometheus.Gauge
	stageTotal      *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	queueLag        *prometheus.HistogramVec
	retriesRequeued *prometheus.CounterVec
	escalations     *escalationCollector
	io              *ioCollector
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	jobsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "job_process_total",
			Help:      "Processed job-ready events by resulting status.",
		},
		[]string{"service", "status"},
	)
	jobDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "job_process_duration_seconds",
			Help:      "Job processing duration in seconds by resulting status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	jobsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "job_process_in_flight",
			Help:      "Number of in-flight job processing runs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	stageTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "stage_total",
			Help:      "Stage executions by stage and outcome.",
		},
		[]string{"service", "stage", "outcome"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "stage_duration_seconds",
			Help:      "Stage execution duration in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"service", "stage"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between publishing a job-ready event and consuming it.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	retriesRequeued := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "retries_requeued_total",
			Help:      "Job-ready events republished after a retryable stage failure.",
		},
		[]string{"service", "stage"},
	)
	escalations := newEscalationCollector(service)
	io := newIOCollector(service)

	registry.MustRegister(jobsTotal, jobDuration, jobsInFlight, stageTotal, stageDuration, queueLag, retriesRequeued)
	escalations.register(registry)
	io.register(registry)

	return &WorkerMetrics{
		registry:        registry,
		service:         service,
		jobsTotal:       jobsTotal,
		jobDuration:     jobDuration,
		jobsInFlight:    jobsInFlight,
		stageTotal:      stageTotal,
		stageDuration:   stageDuration,
		queueLag:        queueLag,
		retriesRequeued: retriesRequeued,
		escalations:     escalations,
		io:              io,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartJob() {
	m.jobsInFlight.Inc()
}

// FinishJob records one processing run. job may be nil when the run failed
// before the job could be read.
func (m *WorkerMetrics) FinishJob(duration time.Duration, job *domain.ProcessingJob, err error) {
	m.jobsInFlight.Dec()

	status := "error"
	if err == nil && job != nil {
		status = string(job.Status)
	}
	m.jobsTotal.WithLabelValues(m.service, status).Inc()
	m.jobDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveStage(stage domain.JobStage, outcome string, duration time.Duration) {
	m.stageTotal.WithLabelValues(m.service, string(stage), outcome).Inc()
	m.stageDuration.WithLabelValues(m.service, string(stage)).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) RecordRetryRequeued(stage domain.JobStage) {
	m.retriesRequeued.WithLabelValues(m.service, string(stage)).Inc()
}

func (m *WorkerMetrics) ObserveEscalation(result domain.EscalationResult) {
	m.escalations.observe(result)
}

func (m *WorkerMetrics) ObserveRetry(operation string) {
	m.io.observeRetry(operation)
}

func (m *WorkerMetrics) ObserveBreakerState(operation, state string) {
	m.io.observeBreakerState(operation, state)
}
