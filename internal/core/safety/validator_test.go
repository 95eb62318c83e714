package safety

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/kirillkom/intake-triage/internal/core/domain"
)

func newValidator(t *testing.T) *ConfigValidator {
	t.Helper()
	v, err := NewConfigValidator()
	if err != nil {
		t.Fatalf("NewConfigValidator() error = %v", err)
	}
	return v
}

func containsSubstring(items []string, sub string) bool {
	for _, item := range items {
		if strings.Contains(item, sub) {
			return true
		}
	}
	return false
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	report := newValidator(t).Validate("org.headache",
		json.RawMessage(`{"patterns":["kopfschmerz"],"exclusions":["kater"],"intake_evidence_fields":["chief_complaint","hpi.severity"]}`),
		json.RawMessage(`{"level_default":"B","action_default":"warn"}`))

	if !report.OK() {
		t.Fatalf("unexpected errors: %v", report.Errors)
	}
	if report.Logic == nil || report.Defaults == nil {
		t.Fatalf("expected parsed logic and defaults")
	}
	if report.Defaults.LevelDefault != domain.SafetyLevelB {
		t.Fatalf("expected level B, got %s", report.Defaults.LevelDefault)
	}
}

func TestValidateRejectsShapeErrors(t *testing.T) {
	cases := []struct {
		name     string
		logic    string
		defaults string
		prefix   string
	}{
		{"unknown logic property", `{"patterns":["x"],"severity":"high"}`, `{"level_default":"B","action_default":"warn"}`, "logic"},
		{"missing patterns", `{}`, `{"level_default":"B","action_default":"warn"}`, "logic"},
		{"empty patterns", `{"patterns":[]}`, `{"level_default":"B","action_default":"warn"}`, "logic"},
		{"unknown level", `{"patterns":["x"]}`, `{"level_default":"D","action_default":"warn"}`, "defaults"},
		{"unknown action", `{"patterns":["x"]}`, `{"level_default":"B","action_default":"block"}`, "defaults"},
		{"bad exclusion mode", `{"patterns":["x"],"exclusion_mode":"never"}`, `{"level_default":"B","action_default":"warn"}`, "logic"},
		{"not json", `{"patterns":`, `{"level_default":"B","action_default":"warn"}`, "logic: invalid json"},
		{"missing defaults", `{"patterns":["x"]}`, ``, "defaults: is required"},
	}
	v := newValidator(t)
	for _, tc := range cases {
		report := v.Validate("org.rule", json.RawMessage(tc.logic), json.RawMessage(tc.defaults))
		if report.OK() {
			t.Fatalf("%s: expected errors", tc.name)
		}
		if report.Logic != nil || report.Defaults != nil {
			t.Fatalf("%s: parsed config must be withheld on error", tc.name)
		}
		if !containsSubstring(report.Errors, tc.prefix) {
			t.Fatalf("%s: expected an error mentioning %q, got %v", tc.name, tc.prefix, report.Errors)
		}
	}
}

func TestValidateRejectsInvalidRegex(t *testing.T) {
	report := newValidator(t).Validate("org.rule",
		json.RawMessage(`{"patterns":["(unclosed"]}`),
		json.RawMessage(`{"level_default":"C","action_default":"none"}`))
	if !containsSubstring(report.Errors, "logic.patterns") {
		t.Fatalf("expected logic.patterns error, got %v", report.Errors)
	}
}

func TestValidateRejectsUnknownEvidenceField(t *testing.T) {
	report := newValidator(t).Validate("org.rule",
		json.RawMessage(`{"patterns":["x"],"intake_evidence_fields":["patient_name"]}`),
		json.RawMessage(`{"level_default":"C","action_default":"none"}`))
	if !containsSubstring(report.Errors, "patient_name") {
		t.Fatalf("expected evidence field error, got %v", report.Errors)
	}
}

func TestValidateRejectsBadRuleKey(t *testing.T) {
	report := newValidator(t).Validate("Bad Key",
		json.RawMessage(`{"patterns":["x"]}`),
		json.RawMessage(`{"level_default":"C","action_default":"none"}`))
	if !containsSubstring(report.Errors, "rule_key") {
		t.Fatalf("expected rule_key error, got %v", report.Errors)
	}
}

func TestValidateWarnsOnCombinedQualifiers(t *testing.T) {
	report := newValidator(t).Validate("org.rule",
		json.RawMessage(`{"patterns":["x"],"qualifiers":{"requires_any_of":[{"patterns":["a"]}],"requires_all_of":[{"patterns":["b"]}]}}`),
		json.RawMessage(`{"level_default":"C","action_default":"none"}`))
	if !report.OK() {
		t.Fatalf("unexpected errors: %v", report.Errors)
	}
	if !containsSubstring(report.Warnings, "both requires_any_of and requires_all_of") {
		t.Fatalf("expected combined qualifier warning, got %v", report.Warnings)
	}
}

func TestCheckActivationGuard(t *testing.T) {
	cases := []struct {
		name     string
		key      string
		logic    domain.RuleLogic
		defaults domain.RuleDefaults
		problems int
	}{
		{
			name:     "warn rule needs nothing",
			key:      "org.rule",
			logic:    domain.RuleLogic{Patterns: []string{"x"}},
			defaults: domain.RuleDefaults{LevelDefault: domain.SafetyLevelB, ActionDefault: domain.ActionWarn},
		},
		{
			name:     "level A without verification",
			key:      "org.rule",
			logic:    domain.RuleLogic{Patterns: []string{"x"}},
			defaults: domain.RuleDefaults{LevelDefault: domain.SafetyLevelA, ActionDefault: domain.ActionRequireConfirm},
			problems: 1,
		},
		{
			name:     "hard stop without verification",
			key:      "org.rule",
			logic:    domain.RuleLogic{Patterns: []string{"x"}},
			defaults: domain.RuleDefaults{LevelDefault: domain.SafetyLevelB, ActionDefault: domain.ActionHardStop},
			problems: 1,
		},
		{
			name:     "level A with verification",
			key:      "org.rule",
			logic:    domain.RuleLogic{Patterns: []string{"x"}, RequiresVerified: true},
			defaults: domain.RuleDefaults{LevelDefault: domain.SafetyLevelA, ActionDefault: domain.ActionHardStop},
		},
		{
			name:     "suicidal ideation at A without qualifiers",
			key:      RuleSuicidalIdeation,
			logic:    domain.RuleLogic{Patterns: []string{"suizid"}, RequiresVerified: true},
			defaults: domain.RuleDefaults{LevelDefault: domain.SafetyLevelA, ActionDefault: domain.ActionRequireConfirm},
			problems: 1,
		},
		{
			name:     "suicidal ideation at A with qualifiers",
			key:      RuleSuicidalIdeation,
			logic:    domain.RuleLogic{Patterns: []string{"suizid"}, RequiresVerified: true, ALevelRequiresAnyOf: []string{"plan"}},
			defaults: domain.RuleDefaults{LevelDefault: domain.SafetyLevelA, ActionDefault: domain.ActionRequireConfirm},
		},
		{
			name:     "suicidal ideation at B",
			key:      RuleSuicidalIdeation,
			logic:    domain.RuleLogic{Patterns: []string{"suizid"}},
			defaults: domain.RuleDefaults{LevelDefault: domain.SafetyLevelB, ActionDefault: domain.ActionWarn},
		},
	}
	for _, tc := range cases {
		got := CheckActivationGuard(tc.key, tc.logic, tc.defaults)
		if len(got) != tc.problems {
			t.Fatalf("%s: expected %d problems, got %v", tc.name, tc.problems, got)
		}
	}
}
