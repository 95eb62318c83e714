package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// SafetyLevel orders clinical urgency: A is the most urgent.
type SafetyLevel string

const (
	SafetyLevelA SafetyLevel = "A"
	SafetyLevelB SafetyLevel = "B"
	SafetyLevelC SafetyLevel = "C"
)

// Rank returns a comparable weight; higher is more urgent.
func (l SafetyLevel) Rank() int {
	switch l {
	case SafetyLevelA:
		return 3
	case SafetyLevelB:
		return 2
	case SafetyLevelC:
		return 1
	default:
		return 0
	}
}

type SafetyAction string

const (
	ActionNone           SafetyAction = "none"
	ActionWarn           SafetyAction = "warn"
	ActionRequireConfirm SafetyAction = "require_confirm"
	ActionHardStop       SafetyAction = "hard_stop"
)

func (a SafetyAction) Rank() int {
	switch a {
	case ActionHardStop:
		return 3
	case ActionRequireConfirm:
		return 2
	case ActionWarn:
		return 1
	default:
		return 0
	}
}

type ExclusionMode string

const (
	ExclusionAlways            ExclusionMode = "always"
	ExclusionOnlyIfUnqualified ExclusionMode = "only_if_unqualified"
)

// HistoryOfPresentIllness holds the narrative HPI fields of an intake.
type HistoryOfPresentIllness struct {
	Onset              string   `json:"onset,omitempty" yaml:"onset,omitempty"`
	Duration           string   `json:"duration,omitempty" yaml:"duration,omitempty"`
	Course             string   `json:"course,omitempty" yaml:"course,omitempty"`
	Severity           string   `json:"severity,omitempty" yaml:"severity,omitempty"`
	Location           string   `json:"location,omitempty" yaml:"location,omitempty"`
	Character          string   `json:"character,omitempty" yaml:"character,omitempty"`
	AssociatedSymptoms []string `json:"associated_symptoms,omitempty" yaml:"associated_symptoms,omitempty"`
}

func (h *HistoryOfPresentIllness) IsEmpty() bool {
	if h == nil {
		return true
	}
	return h.Onset == "" && h.Duration == "" && h.Course == "" && h.Severity == "" &&
		h.Location == "" && h.Character == "" && len(h.AssociatedSymptoms) == 0
}

// StructuredIntake is the clinician-facing summary of an intake conversation.
type StructuredIntake struct {
	ChiefComplaint      string                   `json:"chief_complaint,omitempty"`
	HPI                 *HistoryOfPresentIllness `json:"history_of_present_illness,omitempty"`
	RelevantNegatives   []string                 `json:"relevant_negatives,omitempty"`
	Medications         []string                 `json:"medications,omitempty"`
	PsychosocialFactors []string                 `json:"psychosocial_factors,omitempty"`
	Uncertainties       []string                 `json:"uncertainties,omitempty"`

	// UncertaintiesMalformed is set when the decoded payload carried an
	// uncertainties value that was not a list.
	UncertaintiesMalformed bool `json:"-"`
}

// MarshalJSON keeps a malformed uncertainties value non-list shaped so the
// sanity check still fails after a store round trip.
func (s StructuredIntake) MarshalJSON() ([]byte, error) {
	type plain StructuredIntake
	if !s.UncertaintiesMalformed {
		return json.Marshal(plain(s))
	}
	return json.Marshal(struct {
		plain
		Uncertainties string `json:"uncertainties"`
	}{plain: plain(s), Uncertainties: "malformed"})
}

func (s *StructuredIntake) UnmarshalJSON(data []byte) error {
	type plain StructuredIntake
	var raw struct {
		plain
		Uncertainties json.RawMessage `json:"uncertainties,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = StructuredIntake(raw.plain)
	s.Uncertainties = nil
	s.UncertaintiesMalformed = false

	trimmed := bytes.TrimSpace(raw.Uncertainties)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] != '[' {
		s.UncertaintiesMalformed = true
		return nil
	}
	var items []any
	if err := json.Unmarshal(trimmed, &items); err != nil {
		s.UncertaintiesMalformed = true
		return nil
	}
	for _, item := range items {
		switch v := item.(type) {
		case string:
			s.Uncertainties = append(s.Uncertainties, v)
		case nil:
		default:
			b, _ := json.Marshal(v)
			s.Uncertainties = append(s.Uncertainties, string(b))
		}
	}
	return nil
}

type SafetyEvaluationRequest struct {
	OrganizationID   string           `json:"organization_id,omitempty"`
	Intake           StructuredIntake `json:"structured_intake"`
	VerbatimMessages []string         `json:"verbatim_messages,omitempty"`
	EvidenceVerified bool             `json:"evidence_verified"`
}

// SafetyEvaluation is computed per request and never persisted on its own.
type SafetyEvaluation struct {
	RuleIDs  []string `json:"fired_rule_ids"`
	CheckIDs []string `json:"failed_check_ids"`

	// Level is the most urgent fired level, empty when nothing fired.
	Level  SafetyLevel  `json:"level,omitempty"`
	Action SafetyAction `json:"action,omitempty"`

	// PendingVerificationRuleIDs matched but were withheld because they
	// require verified evidence.
	PendingVerificationRuleIDs []string `json:"pending_verification_rule_ids,omitempty"`

	RuleLevels map[string]SafetyLevel `json:"rule_levels,omitempty"`
}

func (e *SafetyEvaluation) HasRule(id string) bool {
	if e == nil {
		return false
	}
	for _, r := range e.RuleIDs {
		if r == id {
			return true
		}
	}
	return false
}

func (e *SafetyEvaluation) HasCheck(id string) bool {
	if e == nil {
		return false
	}
	for _, c := range e.CheckIDs {
		if c == id {
			return true
		}
	}
	return false
}

// QualifierGroup matches when every one of its patterns matches.
type QualifierGroup struct {
	Name     string   `json:"name,omitempty" yaml:"name,omitempty"`
	Patterns []string `json:"patterns" yaml:"patterns"`
}

type RuleQualifiers struct {
	RequiresAnyOf []QualifierGroup `json:"requires_any_of,omitempty" yaml:"requires_any_of,omitempty"`
	RequiresAllOf []QualifierGroup `json:"requires_all_of,omitempty" yaml:"requires_all_of,omitempty"`
}

func (q *RuleQualifiers) IsEmpty() bool {
	return q == nil || (len(q.RequiresAnyOf) == 0 && len(q.RequiresAllOf) == 0)
}

type RuleLogic struct {
	Patterns             []string        `json:"patterns" yaml:"patterns"`
	Qualifiers           *RuleQualifiers `json:"qualifiers,omitempty" yaml:"qualifiers,omitempty"`
	Exclusions           []string        `json:"exclusions,omitempty" yaml:"exclusions,omitempty"`
	ExclusionMode        ExclusionMode   `json:"exclusion_mode,omitempty" yaml:"exclusion_mode,omitempty"`
	ALevelRequiresAnyOf  []string        `json:"a_level_requires_any_of,omitempty" yaml:"a_level_requires_any_of,omitempty"`
	RequiresVerified     bool            `json:"requires_verified_evidence,omitempty" yaml:"requires_verified_evidence,omitempty"`
	IntakeEvidenceFields []string        `json:"intake_evidence_fields,omitempty" yaml:"intake_evidence_fields,omitempty"`
}

type RuleDefaults struct {
	LevelDefault  SafetyLevel  `json:"level_default" yaml:"level_default"`
	ActionDefault SafetyAction `json:"action_default" yaml:"action_default"`
}

// SafetyRuleVersion is one immutable revision of a configured rule. At most
// one version per (organization, rule key) is active.
type SafetyRuleVersion struct {
	ID             string       `json:"id"`
	OrganizationID string       `json:"organization_id"`
	RuleKey        string       `json:"rule_key"`
	Version        int          `json:"version"`
	Logic          RuleLogic    `json:"logic"`
	Defaults       RuleDefaults `json:"defaults"`
	Active         bool         `json:"active"`
	CreatedAt      time.Time    `json:"created_at"`
}

type ActivateRuleRequest struct {
	OrganizationID string          `json:"organization_id,omitempty"`
	RuleKey        string          `json:"rule_key"`
	Logic          json.RawMessage `json:"logic"`
	Defaults       json.RawMessage `json:"defaults"`
}

type ActivateRuleResult struct {
	OK       bool          `json:"ok"`
	Logic    *RuleLogic    `json:"logic,omitempty"`
	Defaults *RuleDefaults `json:"defaults,omitempty"`
	Version  int           `json:"version,omitempty"`
	Errors   []string      `json:"errors,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
}
