package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kirillkom/intake-triage/internal/core/domain"
)

func fixedNow() time.Time {
	return time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
}

type jobRepoFake struct {
	mu        sync.Mutex
	byID      map[string]*domain.ProcessingJob
	keyMisses int
	staleNext bool
	updateErr error
	inserts   int
	updates   int
}

func newJobRepoFake() *jobRepoFake {
	return &jobRepoFake{byID: map[string]*domain.ProcessingJob{}}
}

func (f *jobRepoFake) GetJobByID(_ context.Context, id string) (*domain.ProcessingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.byID[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrJobNotFound, "get job", fmt.Errorf("id=%s", id))
	}
	return job.Clone(), nil
}

func (f *jobRepoFake) GetJobByKey(_ context.Context, key domain.JobKey) (*domain.ProcessingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keyMisses > 0 {
		f.keyMisses--
		return nil, domain.ErrJobNotFound
	}
	for _, job := range f.byID {
		if job.Key() == key {
			return job.Clone(), nil
		}
	}
	return nil, domain.ErrJobNotFound
}

func (f *jobRepoFake) InsertJob(_ context.Context, job *domain.ProcessingJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.Key() == job.Key() {
			return domain.ErrDuplicateJob
		}
	}
	f.inserts++
	f.byID[job.ID] = job.Clone()
	return nil
}

func (f *jobRepoFake) UpdateJob(_ context.Context, job *domain.ProcessingJob, expected domain.JobPrecondition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	stored, ok := f.byID[job.ID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if f.staleNext {
		f.staleNext = false
		// Another writer advanced the job first.
		stored.Stage = domain.StageRisk
		stored.Attempt = 1
		return domain.ErrStaleJob
	}
	if stored.Stage != expected.Stage || stored.Attempt != expected.Attempt {
		return domain.ErrStaleJob
	}
	f.updates++
	f.byID[job.ID] = job.Clone()
	return nil
}

type queueFake struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (f *queueFake) PublishJobReady(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, jobID)
	return nil
}

func (f *queueFake) SubscribeJobReady(context.Context, func(context.Context, string) error) error {
	return nil
}

type readinessFake struct {
	snapshot domain.ReadinessSnapshot
}

func (f *readinessFake) Snapshot(context.Context) domain.ReadinessSnapshot { return f.snapshot }

type resultRepoFake struct {
	mu      sync.Mutex
	results map[string]*domain.CalculatedResult
	getErr  error
	upserts int
}

func newResultRepoFake() *resultRepoFake {
	return &resultRepoFake{results: map[string]*domain.CalculatedResult{}}
}

func (f *resultRepoFake) GetResult(_ context.Context, assessmentID, algorithmVersion string) (*domain.CalculatedResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	res, ok := f.results[assessmentID+"/"+algorithmVersion]
	if !ok {
		return nil, domain.ErrResultNotFound
	}
	copyRes := *res
	return &copyRes, nil
}

func (f *resultRepoFake) UpsertResult(_ context.Context, result *domain.CalculatedResult) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	key := result.AssessmentID + "/" + result.AlgorithmVersion
	if existing, ok := f.results[key]; ok {
		result.ID = existing.ID
	}
	copyRes := *result
	f.results[key] = &copyRes
	return copyRes.ID, nil
}

type ruleRepoFake struct {
	active    []domain.SafetyRuleVersion
	activated []domain.SafetyRuleVersion
	err       error
}

func (f *ruleRepoFake) ActiveRuleVersions(context.Context, string) ([]domain.SafetyRuleVersion, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.active, nil
}

func (f *ruleRepoFake) ActivateRuleVersion(_ context.Context, v *domain.SafetyRuleVersion) (*domain.SafetyRuleVersion, error) {
	if f.err != nil {
		return nil, f.err
	}
	stored := *v
	stored.Version = len(f.activated) + 1
	f.activated = append(f.activated, stored)
	return &stored, nil
}

type assessmentReaderFake struct {
	assessments map[string]*domain.Assessment
}

func (f *assessmentReaderFake) GetAssessment(_ context.Context, id string) (*domain.Assessment, error) {
	a, ok := f.assessments[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrAssessmentNotFound, "get assessment", fmt.Errorf("id=%s", id))
	}
	copyA := *a
	return &copyA, nil
}

type stageMetricsFake struct {
	mu       sync.Mutex
	outcomes []string
}

func (f *stageMetricsFake) ObserveStage(stage domain.JobStage, outcome string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, string(stage)+":"+outcome)
}
