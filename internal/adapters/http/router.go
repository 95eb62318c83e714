package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/kirillkom/intake-triage/internal/config"
	"github.com/kirillkom/intake-triage/internal/core/domain"
	"github.com/kirillkom/intake-triage/internal/core/ports"
	"github.com/kirillkom/intake-triage/internal/observability/metrics"
)

const maxRequestBytes = 1 << 20

// AssessmentWriter stores completed assessments submitted over the API.
type AssessmentWriter interface {
	SaveAssessment(ctx context.Context, a *domain.Assessment) error
}

// Services are the core operations exposed over HTTP. Readiness and
// Assessments are optional.
type Services struct {
	Jobs        ports.JobOrchestrator
	Safety      ports.SafetyEvaluator
	Risk        ports.RiskCalculator
	Escalation  ports.EscalationDetector
	Results     ports.ResultsWriter
	Rules       ports.RuleActivator
	Readiness   ports.ReadinessReporter
	Assessments AssessmentWriter
}

type Router struct {
	cfg         config.Config
	svc         Services
	httpMetrics *metrics.HTTPServerMetrics
	logger      *slog.Logger
}

func NewRouter(cfg config.Config, svc Services, httpMetrics *metrics.HTTPServerMetrics, logger *slog.Logger) *Router {
	if httpMetrics == nil {
		httpMetrics = metrics.NewHTTPServerMetrics("api")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:         cfg,
		svc:         svc,
		httpMetrics: httpMetrics,
		logger:      logger,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /readyz", rt.readyz)
	mux.Handle("GET /metrics", rt.httpMetrics.Handler())

	mux.HandleFunc("POST /v1/jobs", rt.createJob)
	mux.HandleFunc("GET /v1/jobs/{id}", rt.getJob)
	mux.HandleFunc("POST /v1/jobs/{id}/advance", rt.advanceJob)
	mux.HandleFunc("POST /v1/jobs/{id}/run", rt.runJobStage)
	mux.HandleFunc("POST /v1/safety/evaluate", rt.evaluateSafety)
	mux.HandleFunc("POST /v1/risk/compute", rt.computeRisk)
	mux.HandleFunc("POST /v1/escalation/detect", rt.detectEscalation)
	mux.HandleFunc("POST /v1/results", rt.saveResults)
	mux.HandleFunc("POST /v1/rules/activate", rt.activateRule)
	if rt.svc.Assessments != nil {
		mux.HandleFunc("PUT /v1/assessments/{id}", rt.putAssessment)
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIQueueWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = rt.httpMetrics.Middleware(handler)
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) readyz(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Readiness == nil {
		writeJSON(w, http.StatusOK, domain.ReadinessSnapshot{Ready: true, Stage: "complete"})
		return
	}
	snap := rt.svc.Readiness.Snapshot(r.Context())
	status := http.StatusOK
	if !snap.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, snap)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	resp := errorResponse{Error: err.Error(), Code: domain.ErrorCode(err)}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		rt.logger.Error("request failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a single JSON object; numbers keep their literal form.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.WrapError(domain.ErrInvalidInput, "decode request", errors.New("request body is empty"))
		}
		return domain.WrapError(domain.ErrInvalidInput, "decode request", fmt.Errorf("invalid json: %w", err))
	}
	if dec.More() {
		return domain.WrapError(domain.ErrInvalidInput, "decode request", errors.New("trailing data after json object"))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
