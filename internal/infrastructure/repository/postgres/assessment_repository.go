package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/intake-triage/internal/core/domain"
	"github.com/kirillkom/intake-triage/internal/infrastructure/resilience"
)

type AssessmentRepository struct {
	db       *sql.DB
	executor *resilience.Executor
}

func NewAssessmentRepository(db *sql.DB, executor *resilience.Executor) *AssessmentRepository {
	return &AssessmentRepository{db: db, executor: executor}
}

func (r *AssessmentRepository) GetAssessment(ctx context.Context, id string) (*domain.Assessment, error) {
	out, err := resilience.Query(ctx, r.executor, "store.get_assessment", func(ctx context.Context) (*domain.Assessment, error) {
		var (
			a        domain.Assessment
			answers  []byte
			intake   []byte
			verbatim []byte
		)
		err := r.db.QueryRowContext(ctx, `
SELECT id, organization_id, answers, structured_intake, verbatim_messages, evidence_verified,
	algorithm_version, funnel_version, completed_at
FROM assessments
WHERE id = $1
`, id).Scan(&a.ID, &a.OrganizationID, &answers, &intake, &verbatim, &a.EvidenceVerified,
			&a.AlgorithmVersion, &a.FunnelVersion, &a.CompletedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, domain.WrapError(domain.ErrAssessmentNotFound, "postgres.get_assessment", err)
			}
			return nil, fmt.Errorf("get assessment: %w", err)
		}
		if err := decodeAssessmentJSON(&a, answers, intake, verbatim); err != nil {
			return nil, err
		}
		a.CompletedAt = a.CompletedAt.UTC()
		return &a, nil
	}, classifyPostgresError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("postgres.get_assessment", err)
	}
	return out, nil
}

func (r *AssessmentRepository) SaveAssessment(ctx context.Context, a *domain.Assessment) error {
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	intake, err := json.Marshal(a.Intake)
	if err != nil {
		return fmt.Errorf("encode structured intake: %w", err)
	}
	messages := a.VerbatimMessages
	if messages == nil {
		messages = []string{}
	}
	verbatim, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encode verbatim messages: %w", err)
	}

	err = r.executor.Execute(ctx, "store.save_assessment", func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, `
INSERT INTO assessments (id, organization_id, answers, structured_intake, verbatim_messages, evidence_verified,
	algorithm_version, funnel_version, completed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
	organization_id = EXCLUDED.organization_id,
	answers = EXCLUDED.answers,
	structured_intake = EXCLUDED.structured_intake,
	verbatim_messages = EXCLUDED.verbatim_messages,
	evidence_verified = EXCLUDED.evidence_verified,
	algorithm_version = EXCLUDED.algorithm_version,
	funnel_version = EXCLUDED.funnel_version,
	completed_at = EXCLUDED.completed_at
`, a.ID, a.OrganizationID, answers, intake, verbatim, a.EvidenceVerified, a.AlgorithmVersion, a.FunnelVersion, a.CompletedAt)
		if err != nil {
			return fmt.Errorf("save assessment: %w", err)
		}
		return nil
	}, classifyPostgresError)
	return wrapTemporaryIfNeeded("postgres.save_assessment", err)
}

func decodeAssessmentJSON(a *domain.Assessment, answers, intake, verbatim []byte) error {
	if err := json.Unmarshal(answers, &a.Answers); err != nil {
		return fmt.Errorf("decode answers: %w", err)
	}
	if len(intake) > 0 {
		if err := json.Unmarshal(intake, &a.Intake); err != nil {
			return fmt.Errorf("decode structured intake: %w", err)
		}
	}
	if len(verbatim) > 0 {
		if err := json.Unmarshal(verbatim, &a.VerbatimMessages); err != nil {
			return fmt.Errorf("decode verbatim messages: %w", err)
		}
	}
	return nil
}
