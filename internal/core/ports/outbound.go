package ports

import (
	"context"

	"github.com/kirillkom/intake-triage/internal/core/domain"
)

// JobRepository persists processing jobs. InsertJob returns
// domain.ErrDuplicateJob when a job with the same key already exists;
// UpdateJob returns domain.ErrStaleJob when the stored row no longer matches
// the precondition.
type JobRepository interface {
	GetJobByID(ctx context.Context, id string) (*domain.ProcessingJob, error)
	GetJobByKey(ctx context.Context, key domain.JobKey) (*domain.ProcessingJob, error)
	InsertJob(ctx context.Context, job *domain.ProcessingJob) error
	UpdateJob(ctx context.Context, job *domain.ProcessingJob, expected domain.JobPrecondition) error
}

// ResultRepository persists calculated results keyed by
// (assessment id, algorithm version).
type ResultRepository interface {
	GetResult(ctx context.Context, assessmentID, algorithmVersion string) (*domain.CalculatedResult, error)
	UpsertResult(ctx context.Context, result *domain.CalculatedResult) (string, error)
}

// RuleRepository persists configured safety rule versions.
type RuleRepository interface {
	ActiveRuleVersions(ctx context.Context, organizationID string) ([]domain.SafetyRuleVersion, error)
	// ActivateRuleVersion stores a new version and makes it the only active
	// one for its (organization, rule key). It returns the stored version.
	ActivateRuleVersion(ctx context.Context, version *domain.SafetyRuleVersion) (*domain.SafetyRuleVersion, error)
}

// AssessmentReader loads completed assessments.
type AssessmentReader interface {
	GetAssessment(ctx context.Context, id string) (*domain.Assessment, error)
}

// SchemaProbe reports how far the store schema has been provisioned.
type SchemaProbe interface {
	ProbeSchema(ctx context.Context) (stage string, err error)
}

// JobQueue publishes/consumes job-ready events.
type JobQueue interface {
	PublishJobReady(ctx context.Context, jobID string) error
	SubscribeJobReady(ctx context.Context, handler func(context.Context, string) error) error
}

// StageHandler runs the work of one pipeline stage for a job.
type StageHandler interface {
	RunStage(ctx context.Context, job *domain.ProcessingJob) error
}

// StageHandlerFunc adapts a function to StageHandler.
type StageHandlerFunc func(ctx context.Context, job *domain.ProcessingJob) error

func (f StageHandlerFunc) RunStage(ctx context.Context, job *domain.ProcessingJob) error {
	return f(ctx, job)
}
