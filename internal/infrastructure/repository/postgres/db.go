package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Schema readiness stages reported by SchemaProbe.
const (
	StageConnect  = "connect"
	StageTables   = "tables"
	StageComplete = "complete"
)

const schemaLockID int64 = 2026041701

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS processing_jobs (
	id TEXT PRIMARY KEY,
	assessment_id TEXT NOT NULL,
	correlation_id TEXT NOT NULL,
	schema_version TEXT NOT NULL,
	status TEXT NOT NULL,
	stage TEXT NOT NULL,
	attempt INTEGER NOT NULL CHECK (attempt >= 1),
	max_attempts INTEGER NOT NULL CHECK (max_attempts >= 1),
	errors JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	CONSTRAINT uq_processing_jobs_key UNIQUE (assessment_id, correlation_id, schema_version)
);

CREATE INDEX IF NOT EXISTS idx_processing_jobs_status ON processing_jobs(status);

CREATE TABLE IF NOT EXISTS calculated_results (
	id TEXT PRIMARY KEY,
	assessment_id TEXT NOT NULL,
	algorithm_version TEXT NOT NULL,
	scores JSONB NOT NULL,
	risk_models JSONB NOT NULL DEFAULT '{}'::jsonb,
	priority_ranking JSONB,
	inputs_hash TEXT NOT NULL,
	computed_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT uq_calculated_results_assessment UNIQUE (assessment_id, algorithm_version)
);

CREATE TABLE IF NOT EXISTS safety_rule_versions (
	id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL DEFAULT '',
	rule_key TEXT NOT NULL,
	version INTEGER NOT NULL,
	logic JSONB NOT NULL,
	defaults JSONB NOT NULL,
	active BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT uq_safety_rule_versions UNIQUE (organization_id, rule_key, version)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_safety_rule_versions_active
	ON safety_rule_versions(organization_id, rule_key) WHERE active;

CREATE TABLE IF NOT EXISTS assessments (
	id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL DEFAULT '',
	answers JSONB NOT NULL,
	structured_intake JSONB NOT NULL DEFAULT '{}'::jsonb,
	verbatim_messages JSONB NOT NULL DEFAULT '[]'::jsonb,
	evidence_verified BOOLEAN NOT NULL DEFAULT FALSE,
	algorithm_version TEXT NOT NULL DEFAULT '',
	funnel_version TEXT NOT NULL DEFAULT '',
	completed_at TIMESTAMPTZ NOT NULL
);
`

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// SchemaProbe reports how far the schema is provisioned.
type SchemaProbe struct {
	db *sql.DB
}

func NewSchemaProbe(db *sql.DB) *SchemaProbe {
	return &SchemaProbe{db: db}
}

func (p *SchemaProbe) ProbeSchema(ctx context.Context) (string, error) {
	if err := p.db.PingContext(ctx); err != nil {
		return StageConnect, fmt.Errorf("db ping: %w", err)
	}

	var jobs, results, rules, assessments bool
	err := p.db.QueryRowContext(ctx, `
SELECT
	to_regclass('processing_jobs') IS NOT NULL,
	to_regclass('calculated_results') IS NOT NULL,
	to_regclass('safety_rule_versions') IS NOT NULL,
	to_regclass('assessments') IS NOT NULL
`).Scan(&jobs, &results, &rules, &assessments)
	if err != nil {
		return StageTables, fmt.Errorf("probe tables: %w", err)
	}
	if !jobs || !results || !rules || !assessments {
		return StageTables, fmt.Errorf("schema incomplete: processing_jobs=%t calculated_results=%t safety_rule_versions=%t assessments=%t",
			jobs, results, rules, assessments)
	}
	return StageComplete, nil
}
