package domain

import "time"

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

type RiskFactor struct {
	Key    string    `json:"key"`
	Label  string    `json:"label"`
	Score  float64   `json:"score"`
	Weight float64   `json:"weight"`
	Level  RiskLevel `json:"level"`
}

type RiskScore struct {
	Overall float64      `json:"overall"`
	Level   RiskLevel    `json:"level"`
	Factors []RiskFactor `json:"factors"`
}

// RiskBundle is immutable once computed. Recomputing from identical inputs
// yields an identical bundle apart from CalculatedAt.
type RiskBundle struct {
	BundleVersion    string    `json:"bundle_version"`
	AlgorithmVersion string    `json:"algorithm_version"`
	FunnelVersion    string    `json:"funnel_version,omitempty"`
	AssessmentID     string    `json:"assessment_id"`
	JobID            string    `json:"job_id,omitempty"`
	CalculatedAt     time.Time `json:"calculated_at"`
	RiskScore        RiskScore `json:"risk_score"`
}

type RiskRequest struct {
	AssessmentID     string            `json:"assessment_id"`
	JobID            string            `json:"job_id,omitempty"`
	Answers          map[string]any    `json:"answers"`
	AlgorithmVersion string            `json:"algorithm_version"`
	FunnelVersion    string            `json:"funnel_version,omitempty"`
	Safety           *SafetyEvaluation `json:"safety,omitempty"`
}

type PriorityTier string

const (
	PriorityRoutine  PriorityTier = "routine"
	PrioritySoon     PriorityTier = "soon"
	PriorityUrgent   PriorityTier = "urgent"
	PriorityEmergent PriorityTier = "emergent"
)

type RankedFactor struct {
	Key          string  `json:"key"`
	Contribution float64 `json:"contribution"`
}

// PriorityRanking orders a risk bundle's factors by weighted contribution and
// assigns a work-queue tier.
type PriorityRanking struct {
	RankingVersion string         `json:"ranking_version"`
	Tier           PriorityTier   `json:"tier"`
	Score          float64        `json:"score"`
	Factors        []RankedFactor `json:"factors"`
}
