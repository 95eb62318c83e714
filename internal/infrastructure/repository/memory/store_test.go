package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/intake-triage/internal/core/domain"
	"github.com/kirillkom/intake-triage/internal/core/usecase"
)

func newJob(id string) *domain.ProcessingJob {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.ProcessingJob{
		ID:            id,
		AssessmentID:  "a-1",
		CorrelationID: "c-1",
		SchemaVersion: "1",
		Status:        domain.JobStatusQueued,
		Stage:         domain.StagePending,
		Attempt:       1,
		MaxAttempts:   3,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestInsertJobRejectsDuplicateKey(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.InsertJob(ctx, newJob("job-1")); err != nil {
		t.Fatalf("InsertJob() error = %v", err)
	}
	err := store.InsertJob(ctx, newJob("job-2"))
	if !domain.IsKind(err, domain.ErrDuplicateJob) {
		t.Fatalf("expected ErrDuplicateJob, got %v", err)
	}

	got, err := store.GetJobByKey(ctx, domain.JobKey{AssessmentID: "a-1", CorrelationID: "c-1", SchemaVersion: "1"})
	if err != nil {
		t.Fatalf("GetJobByKey() error = %v", err)
	}
	if got.ID != "job-1" {
		t.Fatalf("expected job-1 to keep the key, got %s", got.ID)
	}
}

func TestUpdateJobChecksPrecondition(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	if err := store.InsertJob(ctx, newJob("job-1")); err != nil {
		t.Fatalf("InsertJob() error = %v", err)
	}

	next := newJob("job-1")
	next.Stage = domain.StageRisk
	next.Status = domain.JobStatusInProgress
	if err := store.UpdateJob(ctx, next, domain.JobPrecondition{Stage: domain.StagePending, Attempt: 1}); err != nil {
		t.Fatalf("UpdateJob() error = %v", err)
	}

	again := newJob("job-1")
	again.Stage = domain.StageRanking
	err := store.UpdateJob(ctx, again, domain.JobPrecondition{Stage: domain.StagePending, Attempt: 1})
	if !domain.IsKind(err, domain.ErrStaleJob) {
		t.Fatalf("expected ErrStaleJob, got %v", err)
	}

	got, _ := store.GetJobByID(ctx, "job-1")
	if got.Stage != domain.StageRisk {
		t.Fatalf("stale write leaked: stage = %s", got.Stage)
	}
}

func TestGetJobReturnsCopy(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	_ = store.InsertJob(ctx, newJob("job-1"))

	got, _ := store.GetJobByID(ctx, "job-1")
	got.Errors = append(got.Errors, domain.JobError{Code: "X"})
	got.Stage = domain.StageFailed

	again, _ := store.GetJobByID(ctx, "job-1")
	if again.Stage != domain.StagePending || len(again.Errors) != 0 {
		t.Fatalf("store shared state with caller: %+v", again)
	}
}

func TestUpsertResultKeepsIdentity(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	first, err := store.UpsertResult(ctx, &domain.CalculatedResult{
		ID: "r-1", AssessmentID: "a-1", AlgorithmVersion: "v1",
		Scores: map[string]any{"overall": 10.0}, InputsHash: "h1",
	})
	if err != nil {
		t.Fatalf("UpsertResult() error = %v", err)
	}
	second, err := store.UpsertResult(ctx, &domain.CalculatedResult{
		ID: "r-2", AssessmentID: "a-1", AlgorithmVersion: "v1",
		Scores: map[string]any{"overall": 20.0}, InputsHash: "h2",
	})
	if err != nil {
		t.Fatalf("UpsertResult() error = %v", err)
	}
	if first != "r-1" || second != "r-1" {
		t.Fatalf("ids = %s, %s; want r-1 twice", first, second)
	}

	got, err := store.GetResult(ctx, "a-1", "v1")
	if err != nil {
		t.Fatalf("GetResult() error = %v", err)
	}
	if got.InputsHash != "h2" || got.Scores["overall"] != 20.0 {
		t.Fatalf("unexpected stored result: %+v", got)
	}

	_, err = store.GetResult(ctx, "a-1", "v2")
	if !domain.IsKind(err, domain.ErrResultNotFound) {
		t.Fatalf("expected ErrResultNotFound, got %v", err)
	}
}

func TestActivateRuleVersionKeepsOneActive(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		stored, err := store.ActivateRuleVersion(ctx, &domain.SafetyRuleVersion{
			ID: "rv", OrganizationID: "org-1", RuleKey: "chest.pain",
			Defaults: domain.RuleDefaults{LevelDefault: domain.SafetyLevelB, ActionDefault: domain.ActionWarn},
		})
		if err != nil {
			t.Fatalf("ActivateRuleVersion() error = %v", err)
		}
		if stored.Version != i+1 {
			t.Fatalf("version = %d, want %d", stored.Version, i+1)
		}
	}

	active := 0
	for _, v := range store.RuleVersions("org-1", "chest.pain") {
		if v.Active {
			active++
			if v.Version != 3 {
				t.Fatalf("active version = %d, want 3", v.Version)
			}
		}
	}
	if active != 1 {
		t.Fatalf("active versions = %d, want 1", active)
	}
}

func TestActiveRuleVersionsPrefersOrganizationOverride(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	activate := func(org, key string, level domain.SafetyLevel) {
		t.Helper()
		_, err := store.ActivateRuleVersion(ctx, &domain.SafetyRuleVersion{
			ID: org + key, OrganizationID: org, RuleKey: key,
			Defaults: domain.RuleDefaults{LevelDefault: level, ActionDefault: domain.ActionWarn},
		})
		if err != nil {
			t.Fatalf("ActivateRuleVersion() error = %v", err)
		}
	}
	activate("", "dyspnea", domain.SafetyLevelB)
	activate("", "syncope", domain.SafetyLevelB)
	activate("org-1", "dyspnea", domain.SafetyLevelC)
	activate("org-2", "syncope", domain.SafetyLevelC)

	got, err := store.ActiveRuleVersions(ctx, "org-1")
	if err != nil {
		t.Fatalf("ActiveRuleVersions() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rules, got %+v", got)
	}
	if got[0].RuleKey != "dyspnea" || got[0].OrganizationID != "org-1" {
		t.Fatalf("expected org override for dyspnea, got %+v", got[0])
	}
	if got[1].RuleKey != "syncope" || got[1].OrganizationID != "" {
		t.Fatalf("expected global syncope, got %+v", got[1])
	}
}

func TestAssessmentRoundTripKeepsMalformedUncertainties(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	err := store.SaveAssessment(ctx, &domain.Assessment{
		ID:      "a-1",
		Answers: map[string]any{"smoking": true},
		Intake:  domain.StructuredIntake{ChiefComplaint: "Atemnot", UncertaintiesMalformed: true},
	})
	if err != nil {
		t.Fatalf("SaveAssessment() error = %v", err)
	}
	got, err := store.GetAssessment(ctx, "a-1")
	if err != nil {
		t.Fatalf("GetAssessment() error = %v", err)
	}
	if !got.Intake.UncertaintiesMalformed || got.Intake.ChiefComplaint != "Atemnot" {
		t.Fatalf("unexpected intake: %+v", got.Intake)
	}

	_, err = store.GetAssessment(ctx, "missing")
	if !domain.IsKind(err, domain.ErrAssessmentNotFound) {
		t.Fatalf("expected ErrAssessmentNotFound, got %v", err)
	}
}

func TestConcurrentCreateOrFetchYieldsOneJob(t *testing.T) {
	store := NewStore()
	orchestrator := usecase.NewJobOrchestratorUseCase(store, nil, nil, nil, usecase.OrchestratorConfig{SchemaVersion: "1"})

	const callers = 32
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		ids   = map[string]int{}
		fresh int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := orchestrator.CreateOrFetch(context.Background(), domain.CreateJobRequest{
				AssessmentID:  "a-1",
				CorrelationID: "c-1",
				SchemaVersion: "1",
			})
			if err != nil {
				t.Errorf("CreateOrFetch() error = %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[res.Job.ID]++
			if res.IsNewJob {
				fresh++
			}
		}()
	}
	wg.Wait()

	if len(ids) != 1 {
		t.Fatalf("expected a single job id, got %v", ids)
	}
	if fresh != 1 {
		t.Fatalf("expected exactly one new job, got %d", fresh)
	}
}
