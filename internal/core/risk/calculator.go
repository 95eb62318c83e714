// Package risk turns raw assessment answers into a versioned risk bundle and
// ranks bundles into work-queue priority tiers.
package risk

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kirillkom/intake-triage/internal/core/domain"
)

const BundleVersion = "1.0.0"

const (
	safetyFactorWeight = 0.25
	// A fired level A safety rule never yields a bundle below this overall.
	safetyLevelAFloor = 50.0
)

var safetyLevelScores = map[domain.SafetyLevel]float64{
	domain.SafetyLevelA: 100,
	domain.SafetyLevelB: 60,
	domain.SafetyLevelC: 30,
}

type Calculator struct {
	algorithms map[string]Algorithm
	now        func() time.Time
}

func NewCalculator(now func() time.Time) *Calculator {
	if now == nil {
		now = time.Now
	}
	v1 := algorithmV1()
	return &Calculator{
		algorithms: map[string]Algorithm{v1.Version: v1},
		now:        now,
	}
}

func (c *Calculator) SupportedVersions() []string {
	out := make([]string, 0, len(c.algorithms))
	for v := range c.algorithms {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (c *Calculator) Algorithm(version string) (Algorithm, bool) {
	a, ok := c.algorithms[version]
	return a, ok
}

// Compute scores req.Answers under req.AlgorithmVersion. Any answer the
// algorithm does not know, or cannot score, fails the whole computation.
func (c *Calculator) Compute(req domain.RiskRequest) (*domain.RiskBundle, error) {
	const op = "compute risk bundle"

	if req.AssessmentID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, errors.New("assessment_id is required"))
	}
	algorithm, ok := c.algorithms[req.AlgorithmVersion]
	if !ok {
		return nil, domain.WrapError(domain.ErrUnsupportedAlgorithmVersion, op,
			fmt.Errorf("algorithm_version %q is not supported", req.AlgorithmVersion))
	}
	if len(req.Answers) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, errors.New("answers are required"))
	}

	keys := make([]string, 0, len(req.Answers))
	for k := range req.Answers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	subScores := map[string][]float64{}
	for _, key := range keys {
		rule, ok := algorithm.answers[key]
		if !ok {
			return nil, domain.WrapError(domain.ErrUnknownAnswerKey, op,
				fmt.Errorf("answer %q is not scored by algorithm %s", key, algorithm.Version))
		}
		score, err := rule.score(req.Answers[key])
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidAnswerValue, op, fmt.Errorf("answer %q: %w", key, err))
		}
		subScores[rule.factor] = append(subScores[rule.factor], score)
	}

	factors := make([]domain.RiskFactor, 0, len(algorithm.factors)+1)
	for _, def := range algorithm.factors {
		scores, ok := subScores[def.Key]
		if !ok {
			continue
		}
		factors = append(factors, newFactor(def, mean(scores)))
	}
	if req.Safety != nil {
		factors = append(factors, newFactor(
			factorDef{Key: FactorSafety, Label: "Safety signals", Weight: safetyFactorWeight},
			safetyLevelScores[req.Safety.Level],
		))
	}
	sort.Slice(factors, func(i, j int) bool { return factors[i].Key < factors[j].Key })

	overall := weightedMean(factors)
	if req.Safety != nil && req.Safety.Level == domain.SafetyLevelA {
		overall = math.Max(overall, safetyLevelAFloor)
	}
	overall = round2(overall)

	return &domain.RiskBundle{
		BundleVersion:    BundleVersion,
		AlgorithmVersion: algorithm.Version,
		FunnelVersion:    req.FunnelVersion,
		AssessmentID:     req.AssessmentID,
		JobID:            req.JobID,
		CalculatedAt:     c.now().UTC(),
		RiskScore: domain.RiskScore{
			Overall: overall,
			Level:   LevelFor(overall),
			Factors: factors,
		},
	}, nil
}

// LevelFor bands an overall score: [0,25) low, [25,50) moderate, [50,75) high,
// [75,100] critical. Scores outside 0..100 are clamped first.
func LevelFor(score float64) domain.RiskLevel {
	score = clamp(score)
	switch {
	case score < 25:
		return domain.RiskLow
	case score < 50:
		return domain.RiskModerate
	case score < 75:
		return domain.RiskHigh
	default:
		return domain.RiskCritical
	}
}

func newFactor(def factorDef, score float64) domain.RiskFactor {
	score = round2(clamp(score))
	return domain.RiskFactor{
		Key:    def.Key,
		Label:  def.Label,
		Score:  score,
		Weight: def.Weight,
		Level:  LevelFor(score),
	}
}

func weightedMean(factors []domain.RiskFactor) float64 {
	var sum, weights float64
	for _, f := range factors {
		sum += f.Score * f.Weight
		weights += f.Weight
	}
	if weights == 0 {
		return 0
	}
	return clamp(sum / weights)
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
