package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kirillkom/intake-triage/internal/config"
	"github.com/kirillkom/intake-triage/internal/core/domain"
	"github.com/kirillkom/intake-triage/internal/core/usecase"
)

const seedRules = `
rules:
  - rule_key: dyspnea.custom
    logic:
      patterns: ["atemnot"]
    defaults:
      level_default: B
      action_default: warn
`

func memoryConfig(rulesPath string) config.Config {
	return config.Config{
		StoreDriver:             config.StoreDriverMemory,
		SchemaVersion:           "1",
		DefaultAlgorithmVersion: "v1",
		JobMaxAttempts:          3,
		ReadinessTTL:            time.Second,
		RulesPath:               rulesPath,
	}
}

func writeRules(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	return path
}

func TestNewWithMemoryStoreProcessesJobToCompletion(t *testing.T) {
	ctx := context.Background()
	app, err := New(ctx, memoryConfig(writeRules(t, seedRules)), Options{WithoutQueue: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if err := app.Assessments.SaveAssessment(ctx, &domain.Assessment{
		ID:          "a-1",
		Answers:     map[string]any{"stress_level": 8.0, "chest_discomfort": true},
		Intake:      domain.StructuredIntake{ChiefComplaint: "Atemnot beim Treppensteigen"},
		CompletedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("SaveAssessment() error = %v", err)
	}

	created, err := app.Jobs.CreateOrFetch(ctx, domain.CreateJobRequest{AssessmentID: "a-1", SchemaVersion: "1"})
	if err != nil {
		t.Fatalf("CreateOrFetch() error = %v", err)
	}
	job, err := app.Jobs.ProcessJob(ctx, created.Job.ID)
	if err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}
	if job.Stage != domain.StageCompleted || job.Status != domain.JobStatusCompleted {
		t.Fatalf("expected completed job, got stage=%s status=%s errors=%+v", job.Stage, job.Status, job.Errors)
	}

	stored, ok := app.Assessments.(interface {
		GetResult(ctx context.Context, assessmentID, algorithmVersion string) (*domain.CalculatedResult, error)
	})
	if !ok {
		t.Fatalf("memory store should expose results")
	}
	result, err := stored.GetResult(ctx, "a-1", "v1")
	if err != nil {
		t.Fatalf("GetResult() error = %v", err)
	}
	if result.PriorityRanking == nil {
		t.Fatalf("expected ranking stage to attach a priority ranking")
	}
	if _, ok := result.RiskModels[usecase.ModelSafety]; !ok {
		t.Fatalf("expected safety evaluation in risk models, got keys %v", result.RiskModels)
	}
}

func TestSeededRuleFiresOnEvaluation(t *testing.T) {
	ctx := context.Background()
	app, err := New(ctx, memoryConfig(writeRules(t, seedRules)), Options{WithoutQueue: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	eval, err := app.Safety.Evaluate(ctx, domain.SafetyEvaluationRequest{
		Intake: domain.StructuredIntake{ChiefComplaint: "starke Atemnot"},
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !eval.HasRule("dyspnea.custom") {
		t.Fatalf("expected seeded rule to fire, got %v", eval.RuleIDs)
	}
}

func TestNewRejectsUnguardedSeedRule(t *testing.T) {
	path := writeRules(t, `
rules:
  - rule_key: chest.pain.custom
    logic:
      patterns: ["brustschmerz"]
    defaults:
      level_default: A
      action_default: hard_stop
`)
	_, err := New(context.Background(), memoryConfig(path), Options{WithoutQueue: true})
	if !domain.IsKind(err, domain.ErrRuleConfigInvalid) {
		t.Fatalf("expected rule config error, got %v", err)
	}
}

func TestNewRejectsUnknownStoreDriver(t *testing.T) {
	cfg := memoryConfig("")
	cfg.StoreDriver = "sqlite"
	if _, err := New(context.Background(), cfg, Options{WithoutQueue: true}); err == nil {
		t.Fatalf("expected error for unknown store driver")
	}
}
