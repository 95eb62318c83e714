// Package memory is an in-process record store with the same conditional
// insert, optimistic update and upsert semantics as the postgres store.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/kirillkom/intake-triage/internal/core/domain"
)

type resultKey struct {
	assessmentID     string
	algorithmVersion string
}

type ruleKey struct {
	organizationID string
	ruleKey        string
}

type Store struct {
	mu sync.RWMutex

	jobs      map[string]*domain.ProcessingJob
	jobsByKey map[domain.JobKey]string

	results map[resultKey]*domain.CalculatedResult

	rules map[ruleKey][]domain.SafetyRuleVersion

	assessments map[string]*domain.Assessment
}

func NewStore() *Store {
	return &Store{
		jobs:        make(map[string]*domain.ProcessingJob),
		jobsByKey:   make(map[domain.JobKey]string),
		results:     make(map[resultKey]*domain.CalculatedResult),
		rules:       make(map[ruleKey][]domain.SafetyRuleVersion),
		assessments: make(map[string]*domain.Assessment),
	}
}

func (s *Store) GetJobByID(_ context.Context, id string) (*domain.ProcessingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrJobNotFound, "memory.get_job", fmt.Errorf("id %s", id))
	}
	return job.Clone(), nil
}

func (s *Store) GetJobByKey(_ context.Context, key domain.JobKey) (*domain.ProcessingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.jobsByKey[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrJobNotFound, "memory.get_job_by_key",
			fmt.Errorf("key %s/%s/%s", key.AssessmentID, key.CorrelationID, key.SchemaVersion))
	}
	return s.jobs[id].Clone(), nil
}

func (s *Store) InsertJob(_ context.Context, job *domain.ProcessingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := job.Key()
	if _, taken := s.jobsByKey[key]; taken {
		return domain.WrapError(domain.ErrDuplicateJob, "memory.insert_job",
			fmt.Errorf("key %s/%s/%s taken", key.AssessmentID, key.CorrelationID, key.SchemaVersion))
	}
	if _, taken := s.jobs[job.ID]; taken {
		return domain.WrapError(domain.ErrDuplicateJob, "memory.insert_job", fmt.Errorf("id %s taken", job.ID))
	}
	stored := job.Clone()
	if stored.Errors == nil {
		stored.Errors = []domain.JobError{}
	}
	s.jobs[job.ID] = stored
	s.jobsByKey[key] = job.ID
	return nil
}

func (s *Store) UpdateJob(_ context.Context, job *domain.ProcessingJob, expected domain.JobPrecondition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[job.ID]
	if !ok {
		return domain.WrapError(domain.ErrJobNotFound, "memory.update_job", fmt.Errorf("id %s", job.ID))
	}
	if current.Stage != expected.Stage || current.Attempt != expected.Attempt {
		return domain.WrapError(domain.ErrStaleJob, "memory.update_job",
			fmt.Errorf("job %s at %s/%d, expected %s/%d", job.ID, current.Stage, current.Attempt, expected.Stage, expected.Attempt))
	}

	next := job.Clone()
	// Identity columns are immutable.
	next.AssessmentID = current.AssessmentID
	next.CorrelationID = current.CorrelationID
	next.SchemaVersion = current.SchemaVersion
	next.CreatedAt = current.CreatedAt
	s.jobs[job.ID] = next
	return nil
}

func (s *Store) GetResult(_ context.Context, assessmentID, algorithmVersion string) (*domain.CalculatedResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, ok := s.results[resultKey{assessmentID, algorithmVersion}]
	if !ok {
		return nil, domain.WrapError(domain.ErrResultNotFound, "memory.get_result",
			fmt.Errorf("assessment %s algorithm %s", assessmentID, algorithmVersion))
	}
	return cloneResult(res)
}

func (s *Store) UpsertResult(_ context.Context, result *domain.CalculatedResult) (string, error) {
	stored, err := cloneResult(result)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := resultKey{result.AssessmentID, result.AlgorithmVersion}
	if existing, ok := s.results[key]; ok {
		stored.ID = existing.ID
	}
	s.results[key] = stored
	return stored.ID, nil
}

// ActiveRuleVersions mirrors the postgres merge: organization versions
// replace global ones with the same key. Output is sorted by rule key.
func (s *Store) ActiveRuleVersions(_ context.Context, organizationID string) ([]domain.SafetyRuleVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byKey := make(map[string]domain.SafetyRuleVersion)
	for k, versions := range s.rules {
		if k.organizationID != "" && k.organizationID != organizationID {
			continue
		}
		for _, v := range versions {
			if !v.Active {
				continue
			}
			if prev, ok := byKey[v.RuleKey]; ok && prev.OrganizationID != "" {
				continue
			}
			byKey[v.RuleKey] = v
		}
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]domain.SafetyRuleVersion, 0, len(keys))
	for _, k := range keys {
		out = append(out, byKey[k])
	}
	return out, nil
}

func (s *Store) ActivateRuleVersion(_ context.Context, version *domain.SafetyRuleVersion) (*domain.SafetyRuleVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ruleKey{version.OrganizationID, version.RuleKey}
	versions := s.rules[key]
	next := 1
	for i := range versions {
		if versions[i].Version >= next {
			next = versions[i].Version + 1
		}
		versions[i].Active = false
	}

	stored := *version
	stored.Version = next
	stored.Active = true
	s.rules[key] = append(versions, stored)
	return &stored, nil
}

// RuleVersions returns every stored version of a rule, oldest first.
func (s *Store) RuleVersions(organizationID, key string) []domain.SafetyRuleVersion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.SafetyRuleVersion(nil), s.rules[ruleKey{organizationID, key}]...)
}

func (s *Store) GetAssessment(_ context.Context, id string) (*domain.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assessments[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrAssessmentNotFound, "memory.get_assessment", fmt.Errorf("id %s", id))
	}
	return cloneAssessment(a)
}

func (s *Store) SaveAssessment(_ context.Context, a *domain.Assessment) error {
	stored, err := cloneAssessment(a)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.assessments[a.ID] = stored
	s.mu.Unlock()
	return nil
}

// ProbeSchema always reports a complete schema.
func (s *Store) ProbeSchema(context.Context) (string, error) {
	return "complete", nil
}

// cloneResult round-trips through JSON so nested maps are never shared.
func cloneResult(in *domain.CalculatedResult) (*domain.CalculatedResult, error) {
	var out domain.CalculatedResult
	if err := roundTrip(in, &out); err != nil {
		return nil, fmt.Errorf("clone calculated result: %w", err)
	}
	return &out, nil
}

func cloneAssessment(in *domain.Assessment) (*domain.Assessment, error) {
	var out domain.Assessment
	if err := roundTrip(in, &out); err != nil {
		return nil, fmt.Errorf("clone assessment: %w", err)
	}
	return &out, nil
}

func roundTrip(in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
