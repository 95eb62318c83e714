package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/intake-triage/internal/core/domain"
)

const namespace = "triage"

type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	safetyEvaluationsTotal *prometheus.CounterVec
	safetyRulesFiredTotal  *prometheus.CounterVec
	riskComputeTotal       *prometheus.CounterVec
	ruleActivationsTotal   *prometheus.CounterVec
	escalations            *escalationCollector
	io                     *ioCollector
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	safetyEvaluationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "evaluations_total",
			Help:      "Safety evaluations by highest fired level.",
		},
		[]string{"service", "level"},
	)
	safetyRulesFiredTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "rules_fired_total",
			Help:      "Fired safety rules by rule id.",
		},
		[]string{"service", "rule_id"},
	)
	riskComputeTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "computations_total",
			Help:      "Risk bundle computations by resulting level or error code.",
		},
		[]string{"service", "outcome"},
	)
	ruleActivationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rules",
			Name:      "activations_total",
			Help:      "Rule activation attempts by result.",
		},
		[]string{"service", "result"},
	)
	escalations := newEscalationCollector(service)
	io := newIOCollector(service)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		safetyEvaluationsTotal,
		safetyRulesFiredTotal,
		riskComputeTotal,
		ruleActivationsTotal,
	)
	escalations.register(registry)
	io.register(registry)

	return &HTTPServerMetrics{
		registry:               registry,
		service:                service,
		requestTotal:           requestTotal,
		requestDuration:        requestDuration,
		requestInFlight:        requestInFlight,
		safetyEvaluationsTotal: safetyEvaluationsTotal,
		safetyRulesFiredTotal:  safetyRulesFiredTotal,
		riskComputeTotal:       riskComputeTotal,
		ruleActivationsTotal:   ruleActivationsTotal,
		escalations:            escalations,
		io:                     io,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath folds path parameters so label cardinality stays bounded.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/jobs/"):
		rest := strings.TrimPrefix(path, "/v1/jobs/")
		if i := strings.Index(rest, "/"); i >= 0 {
			return "/v1/jobs/{job_id}" + rest[i:]
		}
		return "/v1/jobs/{job_id}"
	case strings.HasPrefix(path, "/v1/assessments/"):
		return "/v1/assessments/{assessment_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordSafetyEvaluation(eval *domain.SafetyEvaluation) {
	if eval == nil {
		return
	}
	level := string(eval.Level)
	if level == "" {
		level = "none"
	}
	m.safetyEvaluationsTotal.WithLabelValues(m.service, level).Inc()
	for _, id := range eval.RuleIDs {
		m.safetyRulesFiredTotal.WithLabelValues(m.service, id).Inc()
	}
}

// RecordRiskOutcome counts a computation by level on success, by error code
// otherwise.
func (m *HTTPServerMetrics) RecordRiskOutcome(bundle *domain.RiskBundle, err error) {
	outcome := "unknown"
	switch {
	case err != nil:
		outcome = domain.ErrorCode(err)
	case bundle != nil:
		outcome = string(bundle.RiskScore.Level)
	}
	m.riskComputeTotal.WithLabelValues(m.service, outcome).Inc()
}

func (m *HTTPServerMetrics) RecordRuleActivation(ok bool) {
	result := "rejected"
	if ok {
		result = "activated"
	}
	m.ruleActivationsTotal.WithLabelValues(m.service, result).Inc()
}

func (m *HTTPServerMetrics) ObserveEscalation(result domain.EscalationResult) {
	m.escalations.observe(result)
}

func (m *HTTPServerMetrics) ObserveRetry(operation string) {
	m.io.observeRetry(operation)
}

func (m *HTTPServerMetrics) ObserveBreakerState(operation, state string) {
	m.io.observeBreakerState(operation, state)
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
