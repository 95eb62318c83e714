package ports

import (
	"context"

	"github.com/kirillkom/intake-triage/internal/core/domain"
)

// JobOrchestrator is the inbound contract for the processing job state machine.
type JobOrchestrator interface {
	CreateOrFetch(ctx context.Context, req domain.CreateJobRequest) (*domain.CreateJobResult, error)
	Advance(ctx context.Context, jobID string, observed domain.JobPrecondition) (*domain.StageOutcome, error)
	RunStage(ctx context.Context, jobID string) (*domain.StageOutcome, error)
	ProcessJob(ctx context.Context, jobID string) (*domain.ProcessingJob, error)
	GetJob(ctx context.Context, jobID string) (*domain.ProcessingJob, error)
}

// SafetyEvaluator is the inbound contract for red-flag rule evaluation.
type SafetyEvaluator interface {
	Evaluate(ctx context.Context, req domain.SafetyEvaluationRequest) (*domain.SafetyEvaluation, error)
}

// RiskCalculator is the inbound contract for risk bundle computation.
type RiskCalculator interface {
	Compute(ctx context.Context, req domain.RiskRequest) (*domain.RiskBundle, error)
}

// EscalationDetector is the inbound contract for escalation decisions.
type EscalationDetector interface {
	Detect(ctx context.Context, input domain.EscalationInput) (*domain.EscalationResult, error)
}

// ResultsWriter is the inbound contract for idempotent result persistence.
type ResultsWriter interface {
	Save(ctx context.Context, req domain.SaveResultsRequest) domain.SaveResultsResult
}

// RuleActivator is the inbound contract for activating configured rule versions.
type RuleActivator interface {
	Activate(ctx context.Context, req domain.ActivateRuleRequest) (*domain.ActivateRuleResult, error)
}

// ReadinessReporter exposes the cached store readiness snapshot.
type ReadinessReporter interface {
	Snapshot(ctx context.Context) domain.ReadinessSnapshot
}
