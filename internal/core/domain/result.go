package domain

import "time"

// CalculatedResult is the canonical per-assessment record. It is unique per
// (AssessmentID, AlgorithmVersion); InputsHash is the idempotency key.
type CalculatedResult struct {
	ID               string           `json:"id"`
	AssessmentID     string           `json:"assessment_id"`
	AlgorithmVersion string           `json:"algorithm_version"`
	Scores           map[string]any   `json:"scores"`
	RiskModels       map[string]any   `json:"risk_models,omitempty"`
	PriorityRanking  *PriorityRanking `json:"priority_ranking,omitempty"`
	InputsHash       string           `json:"inputs_hash"`
	ComputedAt       time.Time        `json:"computed_at"`
}

type SaveResultsRequest struct {
	AssessmentID     string           `json:"assessment_id"`
	AlgorithmVersion string           `json:"algorithm_version"`
	Scores           map[string]any   `json:"scores"`
	RiskModels       map[string]any   `json:"risk_models,omitempty"`
	PriorityRanking  *PriorityRanking `json:"priority_ranking,omitempty"`
	InputsData       any              `json:"inputs_data,omitempty"`
}

type SaveResultsResult struct {
	Success  bool   `json:"success"`
	ResultID string `json:"result_id,omitempty"`
	IsNew    bool   `json:"is_new"`
	Error    string `json:"error,omitempty"`
	Code     string `json:"code,omitempty"`
}
