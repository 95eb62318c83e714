package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/intake-triage/internal/core/domain"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return db, mock, func() { _ = db.Close() }
}

func testJob() *domain.ProcessingJob {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.ProcessingJob{
		ID:            "job-1",
		AssessmentID:  "a-1",
		CorrelationID: "c-1",
		SchemaVersion: "v1",
		Status:        domain.JobStatusQueued,
		Stage:         domain.StagePending,
		Attempt:       1,
		MaxAttempts:   3,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func jobRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "assessment_id", "correlation_id", "schema_version", "status", "stage",
		"attempt", "max_attempts", "errors", "created_at", "updated_at", "started_at", "completed_at"})
}

func TestGetJobByIDReturnsDomainNotFound(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewJobRepository(db, nil)

	mock.ExpectQuery("FROM processing_jobs WHERE id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetJobByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetJobByKeyDecodesErrorsAndTimes(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewJobRepository(db, nil)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	started := created.Add(time.Minute)
	mock.ExpectQuery("FROM processing_jobs").
		WithArgs("a-1", "c-1", "v1").
		WillReturnRows(jobRows().AddRow("job-1", "a-1", "c-1", "v1", "in_progress", "ranking", 2, 3,
			[]byte(`[{"stage":"ranking","attempt":1,"code":"TEMPORARY","message":"db down","occurred_at":"2026-03-01T12:02:00Z"}]`),
			created, created, started, nil))

	job, err := repo.GetJobByKey(context.Background(), domain.JobKey{AssessmentID: "a-1", CorrelationID: "c-1", SchemaVersion: "v1"})
	if err != nil {
		t.Fatalf("GetJobByKey() error = %v", err)
	}
	if job.Stage != domain.StageRanking || job.Status != domain.JobStatusInProgress || job.Attempt != 2 {
		t.Fatalf("unexpected job: %+v", job)
	}
	if len(job.Errors) != 1 || job.Errors[0].Code != domain.CodeTemporary {
		t.Fatalf("unexpected errors: %+v", job.Errors)
	}
	if job.StartedAt == nil || !job.StartedAt.Equal(started) {
		t.Fatalf("started_at = %v, want %v", job.StartedAt, started)
	}
	if job.CompletedAt != nil {
		t.Fatalf("expected nil completed_at, got %v", job.CompletedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertJobReturnsDuplicateWhenKeyTaken(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewJobRepository(db, nil)

	mock.ExpectExec("INSERT INTO processing_jobs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.InsertJob(context.Background(), testJob())
	if !domain.IsKind(err, domain.ErrDuplicateJob) {
		t.Fatalf("expected ErrDuplicateJob, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertJobMapsUniqueViolation(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewJobRepository(db, nil)

	mock.ExpectExec("INSERT INTO processing_jobs").
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	err := repo.InsertJob(context.Background(), testJob())
	if !domain.IsKind(err, domain.ErrDuplicateJob) {
		t.Fatalf("expected ErrDuplicateJob, got %v", err)
	}
}

func TestInsertJobStoresEmptyErrorList(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewJobRepository(db, nil)
	job := testJob()

	mock.ExpectExec("INSERT INTO processing_jobs").
		WithArgs("job-1", "a-1", "c-1", "v1", "queued", "pending", 1, 3, []byte("[]"),
			sqlmock.AnyArg(), sqlmock.AnyArg(), nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.InsertJob(context.Background(), job); err != nil {
		t.Fatalf("InsertJob() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateJobReturnsStaleWhenPreconditionFails(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewJobRepository(db, nil)

	job := testJob()
	job.Stage = domain.StageRisk
	job.Status = domain.JobStatusInProgress

	mock.ExpectExec("UPDATE processing_jobs").
		WithArgs("job-1", "in_progress", "risk", 1, sqlmock.AnyArg(), sqlmock.AnyArg(), nil, nil, "pending", 1).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateJob(context.Background(), job, domain.JobPrecondition{Stage: domain.StagePending, Attempt: 1})
	if !domain.IsKind(err, domain.ErrStaleJob) {
		t.Fatalf("expected ErrStaleJob, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateJobMarksSerializationFailureTemporary(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewJobRepository(db, nil)

	mock.ExpectExec("UPDATE processing_jobs").
		WillReturnError(&pgconn.PgError{Code: "40001", Message: "could not serialize access"})

	err := repo.UpdateJob(context.Background(), testJob(), domain.JobPrecondition{Stage: domain.StagePending, Attempt: 1})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}
