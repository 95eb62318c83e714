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

type ResultRepository struct {
	db       *sql.DB
	executor *resilience.Executor
}

func NewResultRepository(db *sql.DB, executor *resilience.Executor) *ResultRepository {
	return &ResultRepository{db: db, executor: executor}
}

func (r *ResultRepository) GetResult(ctx context.Context, assessmentID, algorithmVersion string) (*domain.CalculatedResult, error) {
	result, err := resilience.Query(ctx, r.executor, "store.get_result", func(ctx context.Context) (*domain.CalculatedResult, error) {
		row := r.db.QueryRowContext(ctx, `
SELECT id, assessment_id, algorithm_version, scores, risk_models, priority_ranking, inputs_hash, computed_at
FROM calculated_results
WHERE assessment_id = $1 AND algorithm_version = $2
`, assessmentID, algorithmVersion)
		return scanResult(row)
	}, classifyPostgresError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("postgres.get_result", err)
	}
	return result, nil
}

// UpsertResult writes the row for (assessment, algorithm version) and returns
// the id of the stored row, which is the existing id on conflict.
func (r *ResultRepository) UpsertResult(ctx context.Context, result *domain.CalculatedResult) (string, error) {
	scores, err := json.Marshal(result.Scores)
	if err != nil {
		return "", fmt.Errorf("encode scores: %w", err)
	}
	models := result.RiskModels
	if models == nil {
		models = map[string]any{}
	}
	riskModels, err := json.Marshal(models)
	if err != nil {
		return "", fmt.Errorf("encode risk models: %w", err)
	}
	var ranking any
	if result.PriorityRanking != nil {
		encoded, err := json.Marshal(result.PriorityRanking)
		if err != nil {
			return "", fmt.Errorf("encode priority ranking: %w", err)
		}
		ranking = encoded
	}

	id, err := resilience.Query(ctx, r.executor, "store.upsert_result", func(ctx context.Context) (string, error) {
		var id string
		err := r.db.QueryRowContext(ctx, `
INSERT INTO calculated_results (id, assessment_id, algorithm_version, scores, risk_models, priority_ranking, inputs_hash, computed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT ON CONSTRAINT uq_calculated_results_assessment DO UPDATE SET
	scores = EXCLUDED.scores,
	risk_models = EXCLUDED.risk_models,
	priority_ranking = EXCLUDED.priority_ranking,
	inputs_hash = EXCLUDED.inputs_hash,
	computed_at = EXCLUDED.computed_at
RETURNING id
`, result.ID, result.AssessmentID, result.AlgorithmVersion, scores, riskModels, ranking, result.InputsHash, result.ComputedAt).Scan(&id)
		if err != nil {
			return "", fmt.Errorf("upsert calculated result: %w", err)
		}
		return id, nil
	}, classifyPostgresError)
	if err != nil {
		return "", wrapTemporaryIfNeeded("postgres.upsert_result", err)
	}
	return id, nil
}

func scanResult(row rowScanner) (*domain.CalculatedResult, error) {
	var (
		out        domain.CalculatedResult
		scores     []byte
		riskModels []byte
		ranking    []byte
	)
	err := row.Scan(&out.ID, &out.AssessmentID, &out.AlgorithmVersion, &scores, &riskModels, &ranking, &out.InputsHash, &out.ComputedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrResultNotFound, "postgres.scan_result", err)
		}
		return nil, fmt.Errorf("scan calculated result: %w", err)
	}
	if err := json.Unmarshal(scores, &out.Scores); err != nil {
		return nil, fmt.Errorf("decode scores: %w", err)
	}
	if len(riskModels) > 0 {
		if err := json.Unmarshal(riskModels, &out.RiskModels); err != nil {
			return nil, fmt.Errorf("decode risk models: %w", err)
		}
	}
	if len(ranking) > 0 && string(ranking) != "null" {
		out.PriorityRanking = &domain.PriorityRanking{}
		if err := json.Unmarshal(ranking, out.PriorityRanking); err != nil {
			return nil, fmt.Errorf("decode priority ranking: %w", err)
		}
	}
	out.ComputedAt = out.ComputedAt.UTC()
	return &out, nil
}
