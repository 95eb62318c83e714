package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/intake-triage/internal/core/domain"
	"github.com/kirillkom/intake-triage/internal/core/ports"
	"github.com/kirillkom/intake-triage/internal/core/redact"
)

// correlationNamespace seeds the deterministic correlation id assigned when a
// create request carries none.
var correlationNamespace = uuid.MustParse("8b0d7c1e-51a4-4f0e-9d3c-6a2f1e7b9c45")

// DefaultCorrelationID is stable for an (assessment, schema version) pair, so
// retried create requests without a correlation id resolve to the same job.
func DefaultCorrelationID(assessmentID, schemaVersion string) string {
	return uuid.NewSHA1(correlationNamespace, []byte(assessmentID+"\x00"+schemaVersion)).String()
}

// NextStage returns the single successor of stage. Terminal stages have none.
func NextStage(stage domain.JobStage) (domain.JobStage, bool) {
	if stage.IsTerminal() {
		return "", false
	}
	for i, s := range domain.StageOrder {
		if s == stage && i+1 < len(domain.StageOrder) {
			return domain.StageOrder[i+1], true
		}
	}
	return "", false
}

// CanRetry reports whether a failed stage may run again.
func CanRetry(job *domain.ProcessingJob) bool {
	return job != nil && job.Attempt < job.MaxAttempts && !job.Stage.IsTerminal()
}

// AwaitingRetry reports whether job stopped on a failed stage that will run
// again: its newest error was recorded at the current stage on the previous
// attempt.
func AwaitingRetry(job *domain.ProcessingJob) bool {
	if job == nil || job.Stage.IsTerminal() || len(job.Errors) == 0 {
		return false
	}
	last := job.Errors[len(job.Errors)-1]
	return last.Stage == job.Stage && last.Attempt == job.Attempt-1
}

// StageMetrics receives one observation per stage run.
type StageMetrics interface {
	ObserveStage(stage domain.JobStage, outcome string, duration time.Duration)
}

const (
	StageOutcomeAdvanced = "advanced"
	StageOutcomeRetrying = "retrying"
	StageOutcomeFailed   = "failed"
	StageOutcomeStale    = "stale"
)

// republishIdleAfter is how long an existing queued job stays untouched before
// a duplicate create republishes its job-ready event.
const republishIdleAfter = time.Minute

type OrchestratorConfig struct {
	SchemaVersion string
	MaxAttempts   int
	ErrorMaxChars int
}

type JobOrchestratorUseCase struct {
	jobs      ports.JobRepository
	queue     ports.JobQueue
	readiness ports.ReadinessReporter
	handlers  map[domain.JobStage]ports.StageHandler
	metrics   StageMetrics
	logger    *slog.Logger
	cfg       OrchestratorConfig
	now       func() time.Time
	newID     func() string
}

func NewJobOrchestratorUseCase(
	jobs ports.JobRepository,
	queue ports.JobQueue,
	readiness ports.ReadinessReporter,
	logger *slog.Logger,
	cfg OrchestratorConfig,
) *JobOrchestratorUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = domain.DefaultMaxAttempts
	}
	if cfg.ErrorMaxChars <= 0 {
		cfg.ErrorMaxChars = redact.DefaultMaxChars
	}
	return &JobOrchestratorUseCase{
		jobs:      jobs,
		queue:     queue,
		readiness: readiness,
		handlers:  map[domain.JobStage]ports.StageHandler{},
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// RegisterStage installs the handler for stage. Stages without a handler pass
// straight through.
func (uc *JobOrchestratorUseCase) RegisterStage(stage domain.JobStage, handler ports.StageHandler) {
	uc.handlers[stage] = handler
}

func (uc *JobOrchestratorUseCase) SetMetrics(metrics StageMetrics) {
	uc.metrics = metrics
}

func (uc *JobOrchestratorUseCase) CreateOrFetch(ctx context.Context, req domain.CreateJobRequest) (*domain.CreateJobResult, error) {
	const op = "create processing job"

	if req.AssessmentID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, errors.New("assessment_id is required"))
	}
	if req.SchemaVersion == "" {
		req.SchemaVersion = uc.cfg.SchemaVersion
	}
	if req.SchemaVersion == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, errors.New("schema_version is required"))
	}
	if req.CorrelationID == "" {
		req.CorrelationID = DefaultCorrelationID(req.AssessmentID, req.SchemaVersion)
	}
	key := domain.JobKey{
		AssessmentID:  req.AssessmentID,
		CorrelationID: req.CorrelationID,
		SchemaVersion: req.SchemaVersion,
	}

	existing, err := uc.jobs.GetJobByKey(ctx, key)
	if err == nil {
		if uc.needsRepublish(existing) {
			uc.notifyReady(ctx, existing)
		}
		return &domain.CreateJobResult{Job: existing, IsNewJob: false}, nil
	}
	if !domain.IsKind(err, domain.ErrJobNotFound) {
		return nil, fmt.Errorf("lookup job by key: %w", err)
	}

	now := uc.now().UTC()
	job := &domain.ProcessingJob{
		ID:            uc.newID(),
		AssessmentID:  key.AssessmentID,
		CorrelationID: key.CorrelationID,
		SchemaVersion: key.SchemaVersion,
		Status:        domain.JobStatusQueued,
		Stage:         domain.StagePending,
		Attempt:       1,
		MaxAttempts:   uc.cfg.MaxAttempts,
		Errors:        []domain.JobError{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := uc.jobs.InsertJob(ctx, job); err != nil {
		if !domain.IsKind(err, domain.ErrDuplicateJob) {
			return nil, fmt.Errorf("insert job: %w", err)
		}
		// Another caller won the race; its row is authoritative.
		winner, getErr := uc.jobs.GetJobByKey(ctx, key)
		if getErr != nil {
			return nil, fmt.Errorf("reread job after duplicate insert: %w", getErr)
		}
		return &domain.CreateJobResult{Job: winner, IsNewJob: false}, nil
	}

	uc.logger.Info("processing job created",
		"job_id", job.ID,
		"assessment_id", job.AssessmentID,
		"schema_version", job.SchemaVersion,
	)
	uc.notifyReady(ctx, job)
	return &domain.CreateJobResult{Job: job, IsNewJob: true}, nil
}

func (uc *JobOrchestratorUseCase) GetJob(ctx context.Context, jobID string) (*domain.ProcessingJob, error) {
	if jobID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get processing job", errors.New("job id is required"))
	}
	return uc.jobs.GetJobByID(ctx, jobID)
}

// Advance moves the job to the successor of its current stage. The write only
// applies while the stored job still matches observed; otherwise the current
// row is returned with Stale set.
func (uc *JobOrchestratorUseCase) Advance(ctx context.Context, jobID string, observed domain.JobPrecondition) (*domain.StageOutcome, error) {
	job, err := uc.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Stage != observed.Stage || job.Attempt != observed.Attempt {
		return &domain.StageOutcome{Job: job, Stale: true}, nil
	}
	return uc.advance(ctx, job)
}

func (uc *JobOrchestratorUseCase) advance(ctx context.Context, job *domain.ProcessingJob) (*domain.StageOutcome, error) {
	next, ok := NextStage(job.Stage)
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "advance processing job",
			fmt.Errorf("job %s is in terminal stage %s", job.ID, job.Stage))
	}

	now := uc.now().UTC()
	updated := job.Clone()
	updated.Stage = next
	updated.Attempt = 1
	updated.UpdatedAt = now
	if updated.StartedAt == nil {
		updated.StartedAt = &now
	}
	if next == domain.StageCompleted {
		updated.Status = domain.JobStatusCompleted
		updated.CompletedAt = &now
	} else {
		updated.Status = domain.JobStatusInProgress
	}

	return uc.write(ctx, job, updated)
}

// RunStage runs the handler registered for the job's current stage and then
// advances the job, or records the failure.
func (uc *JobOrchestratorUseCase) RunStage(ctx context.Context, jobID string) (*domain.StageOutcome, error) {
	job, err := uc.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Stage.IsTerminal() {
		return &domain.StageOutcome{Job: job}, nil
	}

	started := uc.now()
	stage := job.Stage
	outcome, err := uc.runStage(ctx, job)
	if err != nil {
		return nil, err
	}
	uc.observe(stage, outcome, uc.now().Sub(started))
	return outcome, nil
}

func (uc *JobOrchestratorUseCase) runStage(ctx context.Context, job *domain.ProcessingJob) (*domain.StageOutcome, error) {
	handler, ok := uc.handlers[job.Stage]
	if !ok {
		return uc.advance(ctx, job)
	}
	if stageErr := handler.RunStage(ctx, job.Clone()); stageErr != nil {
		return uc.recordFailure(ctx, job, stageErr)
	}
	return uc.advance(ctx, job)
}

func (uc *JobOrchestratorUseCase) recordFailure(ctx context.Context, job *domain.ProcessingJob, stageErr error) (*domain.StageOutcome, error) {
	now := uc.now().UTC()
	record := domain.JobError{
		Stage:      job.Stage,
		Attempt:    job.Attempt,
		Code:       domain.ErrorCode(stageErr),
		Message:    redact.Message(stageErr.Error(), uc.cfg.ErrorMaxChars),
		OccurredAt: now,
	}

	updated := job.Clone()
	updated.Errors = append(updated.Errors, record)
	updated.UpdatedAt = now
	if updated.StartedAt == nil {
		updated.StartedAt = &now
	}

	retrying := CanRetry(job) && isRetryable(stageErr)
	if retrying {
		updated.Attempt++
		updated.Status = domain.JobStatusInProgress
	} else {
		updated.Stage = domain.StageFailed
		updated.Status = domain.JobStatusFailed
		updated.CompletedAt = &now
	}

	uc.logger.Warn("processing stage failed",
		"job_id", job.ID,
		"stage", job.Stage,
		"attempt", job.Attempt,
		"code", record.Code,
		"error", record.Message,
		"retrying", retrying,
	)

	outcome, err := uc.write(ctx, job, updated)
	if err != nil {
		return nil, err
	}
	if !outcome.Stale {
		outcome.Retrying = retrying
	}
	return outcome, nil
}

func (uc *JobOrchestratorUseCase) write(ctx context.Context, observed, updated *domain.ProcessingJob) (*domain.StageOutcome, error) {
	precondition := domain.JobPrecondition{Stage: observed.Stage, Attempt: observed.Attempt}
	if err := uc.jobs.UpdateJob(ctx, updated, precondition); err != nil {
		if !domain.IsKind(err, domain.ErrStaleJob) {
			return nil, fmt.Errorf("update job: %w", err)
		}
		current, getErr := uc.jobs.GetJobByID(ctx, observed.ID)
		if getErr != nil {
			return nil, fmt.Errorf("reread stale job: %w", getErr)
		}
		uc.logger.Info("processing job changed concurrently",
			"job_id", observed.ID,
			"stage", current.Stage,
			"attempt", current.Attempt,
		)
		return &domain.StageOutcome{Job: current, Stale: true}, nil
	}
	return &domain.StageOutcome{Job: updated}, nil
}

// ProcessJob runs stages until the job is terminal, a failed stage is waiting
// for a retry, or another writer took over the job. Scheduling the retry is
// left to the caller.
func (uc *JobOrchestratorUseCase) ProcessJob(ctx context.Context, jobID string) (*domain.ProcessingJob, error) {
	if uc.readiness != nil {
		if snap := uc.readiness.Snapshot(ctx); !snap.Ready {
			return nil, domain.WrapError(domain.ErrTemporary, "process job",
				fmt.Errorf("store not ready at stage %q", snap.Stage))
		}
	}

	// Bounded by the stage count plus the retry budget of one stage.
	for i := 0; i <= len(domain.StageOrder)+uc.cfg.MaxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outcome, err := uc.RunStage(ctx, jobID)
		if err != nil {
			return nil, err
		}
		job := outcome.Job
		if outcome.Stale || outcome.Retrying || job.Stage.IsTerminal() {
			if job.Stage == domain.StageCompleted && !outcome.Stale {
				uc.logger.Info("processing job completed", "job_id", job.ID, "assessment_id", job.AssessmentID)
			}
			return job, nil
		}
	}
	return uc.GetJob(ctx, jobID)
}

// needsRepublish limits duplicate create calls to jobs that are waiting on a
// retry or have sat queued long enough that their first event was likely lost.
func (uc *JobOrchestratorUseCase) needsRepublish(job *domain.ProcessingJob) bool {
	if AwaitingRetry(job) {
		return true
	}
	return job.Status == domain.JobStatusQueued && uc.now().Sub(job.UpdatedAt) >= republishIdleAfter
}

func (uc *JobOrchestratorUseCase) notifyReady(ctx context.Context, job *domain.ProcessingJob) {
	if uc.queue == nil || job.Stage.IsTerminal() {
		return
	}
	if err := uc.queue.PublishJobReady(ctx, job.ID); err != nil {
		uc.logger.Warn("publish job ready failed", "job_id", job.ID, "error", err)
	}
}

func (uc *JobOrchestratorUseCase) observe(stage domain.JobStage, outcome *domain.StageOutcome, d time.Duration) {
	if uc.metrics == nil {
		return
	}
	label := StageOutcomeAdvanced
	switch {
	case outcome.Stale:
		label = StageOutcomeStale
	case outcome.Retrying:
		label = StageOutcomeRetrying
	case outcome.Job.Stage == domain.StageFailed:
		label = StageOutcomeFailed
	}
	uc.metrics.ObserveStage(stage, label, d)
}

// isRetryable is false for failures a rerun cannot fix.
func isRetryable(err error) bool {
	for _, kind := range []error{
		domain.ErrInvalidInput,
		domain.ErrUnknownAnswerKey,
		domain.ErrUnsupportedAlgorithmVersion,
		domain.ErrInvalidAnswerValue,
		domain.ErrAssessmentNotFound,
		domain.ErrRuleConfigInvalid,
	} {
		if domain.IsKind(err, kind) {
			return false
		}
	}
	return true
}
