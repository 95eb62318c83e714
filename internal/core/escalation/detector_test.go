package escalation

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/kirillkom/intake-triage/internal/core/domain"
)

func level(l domain.RiskLevel) *domain.RiskLevel { return &l }

func TestDetectHighRiskIsDeterministicExceptCorrelationID(t *testing.T) {
	d := NewDetector(nil)
	in := domain.EscalationInput{AssessmentID: "a-1", ReportID: "r-1", RiskLevel: level(domain.RiskHigh)}

	first := d.Detect(in)
	second := d.Detect(in)

	if !first.ShouldEscalate || len(first.RedFlags) != 1 {
		t.Fatalf("expected one red flag, got %+v", first)
	}
	flag := first.RedFlags[0]
	if flag.Severity != domain.SeverityCritical || flag.Source != domain.SourceReportRiskLevel || flag.Reason != HighRiskReason {
		t.Fatalf("unexpected flag %+v", flag)
	}
	if !reflect.DeepEqual(first.RedFlags, second.RedFlags) {
		t.Fatalf("flags differ between calls: %+v vs %+v", first.RedFlags, second.RedFlags)
	}
	if first.CorrelationID == "" || first.CorrelationID == second.CorrelationID {
		t.Fatalf("expected distinct correlation ids, got %q and %q", first.CorrelationID, second.CorrelationID)
	}
}

func TestDetectNoEscalationBelowHigh(t *testing.T) {
	d := NewDetector(nil)
	for _, in := range []*domain.RiskLevel{level(domain.RiskModerate), level(domain.RiskLow), nil} {
		out := d.Detect(domain.EscalationInput{AssessmentID: "a-1", RiskLevel: in})
		if out.ShouldEscalate || len(out.RedFlags) != 0 {
			t.Fatalf("risk level %v: expected no escalation, got %+v", in, out)
		}
		if out.RedFlags == nil {
			t.Fatalf("red flags must encode as an empty list")
		}
	}
}

func TestDetectCriticalRiskEscalates(t *testing.T) {
	out := NewDetector(nil).Detect(domain.EscalationInput{RiskLevel: level(domain.RiskCritical)})
	if !out.ShouldEscalate || out.RedFlags[0].Reason != CriticalRiskReason {
		t.Fatalf("expected critical escalation, got %+v", out)
	}
}

func TestDetectLevelASafetyRules(t *testing.T) {
	n := 0
	d := NewDetector(func() string {
		n++
		return fmt.Sprintf("corr-%d", n)
	})
	out := d.Detect(domain.EscalationInput{
		RiskLevel: level(domain.RiskLow),
		Safety: &domain.SafetyEvaluation{
			RuleIDs: []string{"red-flag-chest-pain", "red-flag-syncope"},
			RuleLevels: map[string]domain.SafetyLevel{
				"red-flag-chest-pain": domain.SafetyLevelB,
				"red-flag-syncope":    domain.SafetyLevelA,
			},
		},
	})
	want := []domain.RedFlag{{
		Severity:    domain.SeverityHigh,
		Source:      domain.SourceSafetyRule,
		Reason:      SafetyRuleReason,
		TriggeredBy: "red-flag-syncope",
	}}
	if !reflect.DeepEqual(out.RedFlags, want) {
		t.Fatalf("unexpected flags %+v", out.RedFlags)
	}
	if out.CorrelationID != "corr-1" {
		t.Fatalf("expected injected correlation id, got %q", out.CorrelationID)
	}
}

func TestGetHighestSeverity(t *testing.T) {
	if got := GetHighestSeverity(nil); got != nil {
		t.Fatalf("expected nil, got %v", *got)
	}
	high := []domain.RedFlag{{Severity: domain.SeverityHigh}}
	if got := GetHighestSeverity(high); got == nil || *got != domain.SeverityHigh {
		t.Fatalf("expected high, got %v", got)
	}
	mixed := []domain.RedFlag{{Severity: domain.SeverityHigh}, {Severity: domain.SeverityCritical}}
	if got := GetHighestSeverity(mixed); got == nil || *got != domain.SeverityCritical {
		t.Fatalf("expected critical, got %v", got)
	}
}
