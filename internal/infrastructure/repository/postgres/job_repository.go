package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/intake-triage/internal/core/domain"
	"github.com/kirillkom/intake-triage/internal/infrastructure/resilience"
)

const jobColumns = `id, assessment_id, correlation_id, schema_version, status, stage, attempt, max_attempts,
errors, created_at, updated_at, started_at, completed_at`

type JobRepository struct {
	db       *sql.DB
	executor *resilience.Executor
}

func NewJobRepository(db *sql.DB, executor *resilience.Executor) *JobRepository {
	return &JobRepository{db: db, executor: executor}
}

func (r *JobRepository) GetJobByID(ctx context.Context, id string) (*domain.ProcessingJob, error) {
	job, err := resilience.Query(ctx, r.executor, "store.get_job", func(ctx context.Context) (*domain.ProcessingJob, error) {
		row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM processing_jobs WHERE id = $1`, id)
		return scanJob(row)
	}, classifyPostgresError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("postgres.get_job", err)
	}
	return job, nil
}

func (r *JobRepository) GetJobByKey(ctx context.Context, key domain.JobKey) (*domain.ProcessingJob, error) {
	job, err := resilience.Query(ctx, r.executor, "store.get_job", func(ctx context.Context) (*domain.ProcessingJob, error) {
		row := r.db.QueryRowContext(ctx, `
SELECT `+jobColumns+`
FROM processing_jobs
WHERE assessment_id = $1 AND correlation_id = $2 AND schema_version = $3
`, key.AssessmentID, key.CorrelationID, key.SchemaVersion)
		return scanJob(row)
	}, classifyPostgresError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("postgres.get_job_by_key", err)
	}
	return job, nil
}

func (r *JobRepository) InsertJob(ctx context.Context, job *domain.ProcessingJob) error {
	errorsJSON, err := marshalJobErrors(job.Errors)
	if err != nil {
		return err
	}

	err = r.executor.Execute(ctx, "store.insert_job", func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx, `
INSERT INTO processing_jobs (`+jobColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT ON CONSTRAINT uq_processing_jobs_key DO NOTHING
`, job.ID, job.AssessmentID, job.CorrelationID, job.SchemaVersion, string(job.Status), string(job.Stage),
			job.Attempt, job.MaxAttempts, errorsJSON, job.CreatedAt, job.UpdatedAt, job.StartedAt, job.CompletedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.WrapError(domain.ErrDuplicateJob, "postgres.insert_job", err)
			}
			return fmt.Errorf("insert processing job: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert processing job rows affected: %w", err)
		}
		if affected == 0 {
			return domain.WrapError(domain.ErrDuplicateJob, "postgres.insert_job", fmt.Errorf("key %s/%s/%s taken",
				job.AssessmentID, job.CorrelationID, job.SchemaVersion))
		}
		return nil
	}, classifyPostgresError)
	return wrapTemporaryIfNeeded("postgres.insert_job", err)
}

func (r *JobRepository) UpdateJob(ctx context.Context, job *domain.ProcessingJob, expected domain.JobPrecondition) error {
	errorsJSON, err := marshalJobErrors(job.Errors)
	if err != nil {
		return err
	}

	err = r.executor.Execute(ctx, "store.update_job", func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx, `
UPDATE processing_jobs
SET status = $2, stage = $3, attempt = $4, errors = $5, updated_at = $6, started_at = $7, completed_at = $8
WHERE id = $1 AND stage = $9 AND attempt = $10
`, job.ID, string(job.Status), string(job.Stage), job.Attempt, errorsJSON, job.UpdatedAt, job.StartedAt, job.CompletedAt,
			string(expected.Stage), expected.Attempt)
		if err != nil {
			return fmt.Errorf("update processing job: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update processing job rows affected: %w", err)
		}
		if affected == 0 {
			return domain.WrapError(domain.ErrStaleJob, "postgres.update_job", fmt.Errorf("job %s not at %s/%d",
				job.ID, expected.Stage, expected.Attempt))
		}
		return nil
	}, classifyPostgresError)
	return wrapTemporaryIfNeeded("postgres.update_job", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.ProcessingJob, error) {
	var (
		job         domain.ProcessingJob
		status      string
		stage       string
		errorsJSON  []byte
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)
	err := row.Scan(&job.ID, &job.AssessmentID, &job.CorrelationID, &job.SchemaVersion, &status, &stage,
		&job.Attempt, &job.MaxAttempts, &errorsJSON, &job.CreatedAt, &job.UpdatedAt, &startedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrJobNotFound, "postgres.scan_job", err)
		}
		return nil, fmt.Errorf("scan processing job: %w", err)
	}
	job.Status = domain.JobStatus(status)
	job.Stage = domain.JobStage(stage)
	job.Errors = make([]domain.JobError, 0)
	if len(errorsJSON) > 0 {
		if err := json.Unmarshal(errorsJSON, &job.Errors); err != nil {
			return nil, fmt.Errorf("decode job errors: %w", err)
		}
	}
	job.StartedAt = timePtr(startedAt)
	job.CompletedAt = timePtr(completedAt)
	return &job, nil
}

func marshalJobErrors(in []domain.JobError) ([]byte, error) {
	if in == nil {
		in = []domain.JobError{}
	}
	out, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode job errors: %w", err)
	}
	return out, nil
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}
