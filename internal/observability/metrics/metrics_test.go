package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kirillkom/intake-triage/internal/core/domain"
)

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/v1/jobs/abc":         "/v1/jobs/{job_id}",
		"/v1/jobs/abc/advance": "/v1/jobs/{job_id}/advance",
		"/v1/assessments/a-1":  "/v1/assessments/{assessment_id}",
		"/v1/risk/compute":     "/v1/risk/compute",
		"/v1/jobs":             "/v1/jobs",
	}
	for in, want := range tests {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMiddlewareCountsRequestsByNormalizedPath(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	for _, path := range []string{"/v1/jobs/a", "/v1/jobs/b"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", http.MethodGet, "/v1/jobs/{job_id}", "404"))
	if got != 2 {
		t.Fatalf("requests_total = %v, want 2", got)
	}
}

func TestObserveEscalationCountsFlags(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.ObserveEscalation(domain.EscalationResult{
		ShouldEscalate: true,
		RedFlags: []domain.RedFlag{
			{Severity: domain.SeverityCritical, Source: domain.SourceReportRiskLevel},
			{Severity: domain.SeverityHigh, Source: domain.SourceSafetyRule},
		},
	})
	m.ObserveEscalation(domain.EscalationResult{})

	if got := testutil.ToFloat64(m.escalations.evaluations.WithLabelValues("worker", "true")); got != 1 {
		t.Fatalf("escalated evaluations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.escalations.evaluations.WithLabelValues("worker", "false")); got != 1 {
		t.Fatalf("quiet evaluations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.escalations.redFlags.WithLabelValues("worker", "critical", string(domain.SourceReportRiskLevel))); got != 1 {
		t.Fatalf("critical flags = %v, want 1", got)
	}
}

func TestObserveStage(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.ObserveStage(domain.StageRisk, "advanced", 10*time.Millisecond)
	m.ObserveStage(domain.StageRisk, "retrying", 10*time.Millisecond)
	m.ObserveStage(domain.StageRisk, "advanced", 10*time.Millisecond)

	if got := testutil.ToFloat64(m.stageTotal.WithLabelValues("worker", "risk", "advanced")); got != 2 {
		t.Fatalf("advanced = %v, want 2", got)
	}
}

func TestRecordRiskOutcomeUsesErrorCode(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.RecordRiskOutcome(nil, domain.WrapError(domain.ErrUnknownAnswerKey, "compute", errors.New("key=foo")))
	m.RecordRiskOutcome(&domain.RiskBundle{RiskScore: domain.RiskScore{Level: domain.RiskHigh}}, nil)

	if got := testutil.ToFloat64(m.riskComputeTotal.WithLabelValues("api", domain.CodeUnknownAnswerKey)); got != 1 {
		t.Fatalf("unknown answer outcomes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.riskComputeTotal.WithLabelValues("api", "high")); got != 1 {
		t.Fatalf("high outcomes = %v, want 1", got)
	}
}

func TestIOObserverTracksRetriesAndBreakerState(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.ObserveRetry("store.update_job")
	m.ObserveRetry("store.update_job")
	m.ObserveBreakerState("store.update_job", "open")

	if got := testutil.ToFloat64(m.io.retries.WithLabelValues("worker", "store.update_job")); got != 2 {
		t.Fatalf("retries_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.io.breakerState.WithLabelValues("worker", "store.update_job")); got != 2 {
		t.Fatalf("breaker_state = %v, want 2 (open)", got)
	}

	m.ObserveBreakerState("store.update_job", "closed")
	if got := testutil.ToFloat64(m.io.breakerState.WithLabelValues("worker", "store.update_job")); got != 0 {
		t.Fatalf("breaker_state = %v, want 0 (closed)", got)
	}
}
