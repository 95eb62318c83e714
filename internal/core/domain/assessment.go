package domain

import "time"

// Assessment is the completed intake a processing job derives results from.
type Assessment struct {
	ID               string           `json:"id"`
	OrganizationID   string           `json:"organization_id,omitempty"`
	Answers          map[string]any   `json:"answers"`
	Intake           StructuredIntake `json:"structured_intake"`
	VerbatimMessages []string         `json:"verbatim_messages,omitempty"`
	EvidenceVerified bool             `json:"evidence_verified"`
	AlgorithmVersion string           `json:"algorithm_version,omitempty"`
	FunnelVersion    string           `json:"funnel_version,omitempty"`
	CompletedAt      time.Time        `json:"completed_at"`
}

// ReadinessSnapshot describes whether the backing store schema is usable.
type ReadinessSnapshot struct {
	Ready     bool      `json:"ready"`
	Stage     string    `json:"stage"`
	CheckedAt time.Time `json:"checked_at"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
}
