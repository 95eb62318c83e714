package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/intake-triage/internal/core/domain"
	"github.com/kirillkom/intake-triage/internal/infrastructure/resilience"
)

type RuleRepository struct {
	db       *sql.DB
	executor *resilience.Executor
}

func NewRuleRepository(db *sql.DB, executor *resilience.Executor) *RuleRepository {
	return &RuleRepository{db: db, executor: executor}
}

// ActiveRuleVersions returns the active global rules merged with the
// organization's own; an organization version replaces the global one with
// the same rule key.
func (r *RuleRepository) ActiveRuleVersions(ctx context.Context, organizationID string) ([]domain.SafetyRuleVersion, error) {
	out, err := resilience.Query(ctx, r.executor, "store.active_rules", func(ctx context.Context) ([]domain.SafetyRuleVersion, error) {
		rows, err := r.db.QueryContext(ctx, `
SELECT DISTINCT ON (rule_key) id, organization_id, rule_key, version, logic, defaults, active, created_at
FROM safety_rule_versions
WHERE active AND organization_id IN ('', $1)
ORDER BY rule_key, organization_id DESC
`, organizationID)
		if err != nil {
			return nil, fmt.Errorf("list active rule versions: %w", err)
		}
		defer rows.Close()

		out := make([]domain.SafetyRuleVersion, 0)
		for rows.Next() {
			v, err := scanRuleVersion(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, *v)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate rule versions: %w", err)
		}
		return out, nil
	}, classifyPostgresError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("postgres.active_rules", err)
	}
	return out, nil
}

func (r *RuleRepository) ActivateRuleVersion(ctx context.Context, version *domain.SafetyRuleVersion) (*domain.SafetyRuleVersion, error) {
	logic, err := json.Marshal(version.Logic)
	if err != nil {
		return nil, fmt.Errorf("encode rule logic: %w", err)
	}
	defaults, err := json.Marshal(version.Defaults)
	if err != nil {
		return nil, fmt.Errorf("encode rule defaults: %w", err)
	}

	stored, err := resilience.Query(ctx, r.executor, "store.activate_rule", func(ctx context.Context) (*domain.SafetyRuleVersion, error) {
		return r.activate(ctx, version, logic, defaults)
	}, classifyPostgresError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("postgres.activate_rule", err)
	}
	return stored, nil
}

func (r *RuleRepository) activate(ctx context.Context, version *domain.SafetyRuleVersion, logic, defaults []byte) (*domain.SafetyRuleVersion, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin activate tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`,
		version.OrganizationID+"/"+version.RuleKey); err != nil {
		return nil, fmt.Errorf("lock rule key: %w", err)
	}

	var next int
	if err := tx.QueryRowContext(ctx, `
SELECT COALESCE(MAX(version), 0) + 1
FROM safety_rule_versions
WHERE organization_id = $1 AND rule_key = $2
`, version.OrganizationID, version.RuleKey).Scan(&next); err != nil {
		return nil, fmt.Errorf("next rule version: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE safety_rule_versions
SET active = FALSE
WHERE organization_id = $1 AND rule_key = $2 AND active
`, version.OrganizationID, version.RuleKey); err != nil {
		return nil, fmt.Errorf("deactivate rule versions: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO safety_rule_versions (id, organization_id, rule_key, version, logic, defaults, active, created_at)
VALUES ($1,$2,$3,$4,$5,$6,TRUE,$7)
`, version.ID, version.OrganizationID, version.RuleKey, next, logic, defaults, version.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert rule version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit activate tx: %w", err)
	}

	out := *version
	out.Version = next
	out.Active = true
	return &out, nil
}

func scanRuleVersion(row rowScanner) (*domain.SafetyRuleVersion, error) {
	var (
		v        domain.SafetyRuleVersion
		logic    []byte
		defaults []byte
	)
	if err := row.Scan(&v.ID, &v.OrganizationID, &v.RuleKey, &v.Version, &logic, &defaults, &v.Active, &v.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan rule version: %w", err)
	}
	if err := json.Unmarshal(logic, &v.Logic); err != nil {
		return nil, fmt.Errorf("decode rule logic %s: %w", v.RuleKey, err)
	}
	if err := json.Unmarshal(defaults, &v.Defaults); err != nil {
		return nil, fmt.Errorf("decode rule defaults %s: %w", v.RuleKey, err)
	}
	v.CreatedAt = v.CreatedAt.UTC()
	return &v, nil
}
