package safety

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kirillkom/intake-triage/internal/core/domain"
)

var ruleKeyRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,127}$`)

// ConfigReport is the outcome of validating one externally supplied rule
// version. Logic and Defaults are set only when Errors is empty.
type ConfigReport struct {
	Logic    *domain.RuleLogic
	Defaults *domain.RuleDefaults
	Errors   []string
	Warnings []string
}

func (r ConfigReport) OK() bool { return len(r.Errors) == 0 }

// ConfigValidator is the shape gate for rule configuration. Whether a
// well-formed config may become active is decided separately by
// CheckActivationGuard.
type ConfigValidator struct {
	logicSchema    *jsonschema.Schema
	defaultsSchema *jsonschema.Schema
}

func NewConfigValidator() (*ConfigValidator, error) {
	logic, err := compileSchema("rule-logic.json", ruleLogicSchema())
	if err != nil {
		return nil, err
	}
	defaults, err := compileSchema("rule-defaults.json", ruleDefaultsSchema())
	if err != nil {
		return nil, err
	}
	return &ConfigValidator{logicSchema: logic, defaultsSchema: defaults}, nil
}

func compileSchema(name string, schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema %s: %w", name, err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", name, err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return schema, nil
}

// Validate checks shape and content of a rule version: schema, regular
// expressions, evidence field whitelist and rule key format.
func (v *ConfigValidator) Validate(ruleKey string, logicRaw, defaultsRaw json.RawMessage) ConfigReport {
	var report ConfigReport

	if !ruleKeyRe.MatchString(ruleKey) {
		report.Errors = append(report.Errors, fmt.Sprintf("rule_key %q must match %s", ruleKey, ruleKeyRe.String()))
	}
	report.Errors = append(report.Errors, validateAgainst(v.logicSchema, "logic", logicRaw)...)
	report.Errors = append(report.Errors, validateAgainst(v.defaultsSchema, "defaults", defaultsRaw)...)
	if len(report.Errors) > 0 {
		return report
	}

	var logic domain.RuleLogic
	if err := decodeStrict(logicRaw, &logic); err != nil {
		report.Errors = append(report.Errors, "logic: "+err.Error())
	}
	var defaults domain.RuleDefaults
	if err := decodeStrict(defaultsRaw, &defaults); err != nil {
		report.Errors = append(report.Errors, "defaults: "+err.Error())
	}
	if len(report.Errors) > 0 {
		return report
	}

	if _, err := compileRule(domain.SafetyRuleVersion{RuleKey: ruleKey, Logic: logic, Defaults: defaults}); err != nil {
		report.Errors = append(report.Errors, err.Error())
	}
	for _, field := range logic.IntakeEvidenceFields {
		if !IsAllowedEvidenceField(field) {
			report.Errors = append(report.Errors, fmt.Sprintf("logic.intake_evidence_fields: %q is not an allowed evidence field", field))
		}
	}
	if logic.Qualifiers != nil && len(logic.Qualifiers.RequiresAnyOf) > 0 && len(logic.Qualifiers.RequiresAllOf) > 0 {
		report.Warnings = append(report.Warnings,
			"logic.qualifiers declares both requires_any_of and requires_all_of; both requirements must hold")
	}
	if logic.ExclusionMode == domain.ExclusionOnlyIfUnqualified && logic.Qualifiers.IsEmpty() {
		report.Warnings = append(report.Warnings,
			"logic.exclusion_mode only_if_unqualified has no effect without qualifiers")
	}
	if len(report.Errors) > 0 {
		return report
	}

	report.Logic = &logic
	report.Defaults = &defaults
	return report
}

// CheckActivationGuard returns the reasons a well-formed rule version may not
// become active. Level A and hard_stop rules must require verified evidence;
// some rule keys must also declare a_level_requires_any_of to reach level A.
func CheckActivationGuard(ruleKey string, logic domain.RuleLogic, defaults domain.RuleDefaults) []string {
	var problems []string
	if defaults.LevelDefault == domain.SafetyLevelA || defaults.ActionDefault == domain.ActionHardStop {
		if !logic.RequiresVerified {
			problems = append(problems, fmt.Sprintf(
				"rule %s: level_default %s / action_default %s requires logic.requires_verified_evidence = true",
				ruleKey, defaults.LevelDefault, defaults.ActionDefault))
		}
	}
	if defaults.LevelDefault == domain.SafetyLevelA && RequiresALevelQualifiers(ruleKey) && len(logic.ALevelRequiresAnyOf) == 0 {
		problems = append(problems, fmt.Sprintf(
			"rule %s: level A requires a non-empty logic.a_level_requires_any_of (intent, plan or means)", ruleKey))
	}
	return problems
}

func validateAgainst(schema *jsonschema.Schema, name string, raw json.RawMessage) []string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []string{name + ": is required"}
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return []string{fmt.Sprintf("%s: invalid json: %v", name, err)}
	}
	err := schema.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{fmt.Sprintf("%s: %v", name, err)}
	}
	var out []string
	collectLeaves(ve, func(leaf *jsonschema.ValidationError) {
		loc := strings.TrimPrefix(leaf.InstanceLocation, "/")
		loc = strings.ReplaceAll(loc, "/", ".")
		if loc == "" {
			out = append(out, fmt.Sprintf("%s: %s", name, leaf.Message))
			return
		}
		out = append(out, fmt.Sprintf("%s.%s: %s", name, loc, leaf.Message))
	})
	sort.Strings(out)
	return out
}

func collectLeaves(ve *jsonschema.ValidationError, visit func(*jsonschema.ValidationError)) {
	if len(ve.Causes) == 0 {
		visit(ve)
		return
	}
	for _, cause := range ve.Causes {
		collectLeaves(cause, visit)
	}
}

func decodeStrict(raw json.RawMessage, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}
