// Package escalation derives red flags from a risk level and fired safety
// rules.
package escalation

import (
	"github.com/google/uuid"

	"github.com/kirillkom/intake-triage/internal/core/domain"
)

const (
	HighRiskReason     = "Risk level high in report: clinician review required before any further processing"
	CriticalRiskReason = "Risk level critical in report: clinician review required before any further processing"
	SafetyRuleReason   = "Level A safety rule fired on intake evidence"
)

type Detector struct {
	newID func() string
}

// NewDetector returns a detector stamping correlation IDs from newID, or from
// random UUIDs when newID is nil.
func NewDetector(newID func() string) *Detector {
	if newID == nil {
		newID = uuid.NewString
	}
	return &Detector{newID: newID}
}

// Detect is deterministic in everything except CorrelationID. Besides the
// one critical flag for a high risk level, it also flags a critical risk
// level the same way, and adds a high flag per fired level-A safety rule.
// Both additions go beyond the high-only report rule.
func (d *Detector) Detect(in domain.EscalationInput) domain.EscalationResult {
	flags := make([]domain.RedFlag, 0, 1)

	if in.RiskLevel != nil {
		switch *in.RiskLevel {
		case domain.RiskHigh:
			flags = append(flags, domain.RedFlag{
				Severity: domain.SeverityCritical,
				Source:   domain.SourceReportRiskLevel,
				Reason:   HighRiskReason,
			})
		case domain.RiskCritical:
			flags = append(flags, domain.RedFlag{
				Severity: domain.SeverityCritical,
				Source:   domain.SourceReportRiskLevel,
				Reason:   CriticalRiskReason,
			})
		}
	}

	if in.Safety != nil {
		for _, ruleID := range in.Safety.RuleIDs {
			if in.Safety.RuleLevels[ruleID] != domain.SafetyLevelA {
				continue
			}
			flags = append(flags, domain.RedFlag{
				Severity:    domain.SeverityHigh,
				Source:      domain.SourceSafetyRule,
				Reason:      SafetyRuleReason,
				TriggeredBy: ruleID,
			})
		}
	}

	return domain.EscalationResult{
		ShouldEscalate: len(flags) > 0,
		RedFlags:       flags,
		CorrelationID:  d.newID(),
	}
}

// GetHighestSeverity returns nil for an empty flag set.
func GetHighestSeverity(flags []domain.RedFlag) *domain.RedFlagSeverity {
	if len(flags) == 0 {
		return nil
	}
	highest := domain.SeverityHigh
	for _, f := range flags {
		if f.Severity == domain.SeverityCritical {
			highest = domain.SeverityCritical
			break
		}
	}
	return &highest
}
