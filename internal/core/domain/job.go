package domain

import "time"

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

type JobStage string

const (
	StagePending    JobStage = "pending"
	StageRisk       JobStage = "risk"
	StageRanking    JobStage = "ranking"
	StageContent    JobStage = "content"
	StageValidation JobStage = "validation"
	StageReview     JobStage = "review"
	StagePDF        JobStage = "pdf"
	StageDelivery   JobStage = "delivery"
	StageCompleted  JobStage = "completed"
	StageFailed     JobStage = "failed"
)

// StageOrder is the fixed forward path of every job. StageFailed is not part
// of it; it is reachable from any non-terminal stage.
var StageOrder = []JobStage{
	StagePending,
	StageRisk,
	StageRanking,
	StageContent,
	StageValidation,
	StageReview,
	StagePDF,
	StageDelivery,
	StageCompleted,
}

func (s JobStage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

func (s JobStage) IsValid() bool {
	if s == StageFailed {
		return true
	}
	for _, known := range StageOrder {
		if s == known {
			return true
		}
	}
	return false
}

const DefaultMaxAttempts = 3

// JobKey is the natural identity of a job. At most one job exists per key.
type JobKey struct {
	AssessmentID  string `json:"assessment_id"`
	CorrelationID string `json:"correlation_id"`
	SchemaVersion string `json:"schema_version"`
}

// JobError is a redacted failure record kept on the job.
type JobError struct {
	Stage      JobStage  `json:"stage"`
	Attempt    int       `json:"attempt"`
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

type ProcessingJob struct {
	ID            string     `json:"id"`
	AssessmentID  string     `json:"assessment_id"`
	CorrelationID string     `json:"correlation_id"`
	SchemaVersion string     `json:"schema_version"`
	Status        JobStatus  `json:"status"`
	Stage         JobStage   `json:"stage"`
	Attempt       int        `json:"attempt"`
	MaxAttempts   int        `json:"max_attempts"`
	Errors        []JobError `json:"errors"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func (j *ProcessingJob) Key() JobKey {
	return JobKey{
		AssessmentID:  j.AssessmentID,
		CorrelationID: j.CorrelationID,
		SchemaVersion: j.SchemaVersion,
	}
}

// Clone returns a deep copy so stores never share error slices with callers.
func (j *ProcessingJob) Clone() *ProcessingJob {
	if j == nil {
		return nil
	}
	out := *j
	out.Errors = append([]JobError(nil), j.Errors...)
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// JobPrecondition is what a writer last observed; updates apply only while
// the stored row still matches it.
type JobPrecondition struct {
	Stage   JobStage
	Attempt int
}

type CreateJobRequest struct {
	AssessmentID  string `json:"assessment_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
	SchemaVersion string `json:"schema_version"`
}

type CreateJobResult struct {
	Job      *ProcessingJob `json:"job"`
	IsNewJob bool           `json:"is_new_job"`
}

// StageOutcome reports what a single orchestrator step did.
type StageOutcome struct {
	Job *ProcessingJob `json:"job"`
	// Stale is set when another writer advanced the job first; Job then holds
	// the authoritative row.
	Stale bool `json:"stale"`
	// Retrying is set when the stage failed and will be retried by the caller.
	Retrying bool `json:"retrying"`
}
