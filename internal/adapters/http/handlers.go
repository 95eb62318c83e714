package httpadapter

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/intake-triage/internal/core/domain"
	"github.com/kirillkom/intake-triage/internal/core/usecase"
)

type createJobResponse struct {
	JobID         string           `json:"job_id"`
	CorrelationID string           `json:"correlation_id"`
	Status        domain.JobStatus `json:"status"`
	Stage         domain.JobStage  `json:"stage"`
	Attempt       int              `json:"attempt"`
	IsNewJob      bool             `json:"is_new_job"`
}

type stageOutcomeResponse struct {
	JobID    string            `json:"job_id"`
	Status   domain.JobStatus  `json:"status"`
	Stage    domain.JobStage   `json:"stage"`
	Attempt  int               `json:"attempt"`
	Stale    bool              `json:"stale"`
	Retrying bool              `json:"retrying"`
	Errors   []domain.JobError `json:"errors"`
}

func newStageOutcomeResponse(outcome *domain.StageOutcome) stageOutcomeResponse {
	job := outcome.Job
	errs := job.Errors
	if errs == nil {
		errs = []domain.JobError{}
	}
	return stageOutcomeResponse{
		JobID:    job.ID,
		Status:   job.Status,
		Stage:    job.Stage,
		Attempt:  job.Attempt,
		Stale:    outcome.Stale,
		Retrying: outcome.Retrying,
		Errors:   errs,
	}
}

func (rt *Router) createJob(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateJobRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}

	res, err := rt.svc.Jobs.CreateOrFetch(r.Context(), req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.IsNewJob {
		status = http.StatusCreated
	}
	writeJSON(w, status, createJobResponse{
		JobID:         res.Job.ID,
		CorrelationID: res.Job.CorrelationID,
		Status:        res.Job.Status,
		Stage:         res.Job.Stage,
		Attempt:       res.Job.Attempt,
		IsNewJob:      res.IsNewJob,
	})
}

func (rt *Router) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := rt.svc.Jobs.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (rt *Router) advanceJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Stage   domain.JobStage `json:"stage"`
		Attempt int             `json:"attempt"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	if !req.Stage.IsValid() {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "advance job", errors.New("stage is not a known job stage")))
		return
	}
	if req.Attempt <= 0 {
		req.Attempt = 1
	}

	outcome, err := rt.svc.Jobs.Advance(r.Context(), r.PathValue("id"), domain.JobPrecondition{Stage: req.Stage, Attempt: req.Attempt})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStageOutcomeResponse(outcome))
}

func (rt *Router) runJobStage(w http.ResponseWriter, r *http.Request) {
	outcome, err := rt.svc.Jobs.RunStage(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStageOutcomeResponse(outcome))
}

func (rt *Router) evaluateSafety(w http.ResponseWriter, r *http.Request) {
	var req domain.SafetyEvaluationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}

	eval, err := rt.svc.Safety.Evaluate(r.Context(), req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.httpMetrics.RecordSafetyEvaluation(eval)
	writeJSON(w, http.StatusOK, eval)
}

func (rt *Router) computeRisk(w http.ResponseWriter, r *http.Request) {
	var req domain.RiskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}

	bundle, err := rt.svc.Risk.Compute(r.Context(), req)
	rt.httpMetrics.RecordRiskOutcome(bundle, err)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (rt *Router) detectEscalation(w http.ResponseWriter, r *http.Request) {
	var req domain.EscalationInput
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}

	result, err := rt.svc.Escalation.Detect(r.Context(), req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) saveResults(w http.ResponseWriter, r *http.Request) {
	var req domain.SaveResultsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}

	res := rt.svc.Results.Save(r.Context(), req)
	switch {
	case !res.Success:
		writeJSON(w, mapErrorToHTTPStatus(usecase.SaveResultsError(res)), res)
	case res.IsNew:
		writeJSON(w, http.StatusCreated, res)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (rt *Router) activateRule(w http.ResponseWriter, r *http.Request) {
	var req domain.ActivateRuleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}

	res, err := rt.svc.Rules.Activate(r.Context(), req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.httpMetrics.RecordRuleActivation(res.OK)
	if !res.OK {
		writeJSON(w, http.StatusUnprocessableEntity, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (rt *Router) putAssessment(w http.ResponseWriter, r *http.Request) {
	var a domain.Assessment
	if err := decodeJSON(w, r, &a); err != nil {
		rt.writeError(w, r, err)
		return
	}
	a.ID = strings.TrimSpace(r.PathValue("id"))
	if a.ID == "" {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "put assessment", errors.New("assessment id is required")))
		return
	}
	if len(a.Answers) == 0 {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "put assessment", errors.New("answers are required")))
		return
	}
	if a.CompletedAt.IsZero() {
		a.CompletedAt = time.Now().UTC()
	}

	if err := rt.svc.Assessments.SaveAssessment(r.Context(), &a); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"assessment_id": a.ID})
}
