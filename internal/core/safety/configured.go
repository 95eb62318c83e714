package safety

import (
	"fmt"
	"regexp"

	"github.com/kirillkom/intake-triage/internal/core/domain"
)

// compiledRule is a configured rule version with its patterns compiled.
type compiledRule struct {
	version    domain.SafetyRuleVersion
	patterns   []*regexp.Regexp
	anyOf      [][]*regexp.Regexp
	allOf      [][]*regexp.Regexp
	exclusions []*regexp.Regexp
	aLevel     []*regexp.Regexp
}

type configuredOutcome struct {
	fired               bool
	pendingVerification bool
	level               domain.SafetyLevel
	action              domain.SafetyAction
}

func compileRule(v domain.SafetyRuleVersion) (*compiledRule, error) {
	out := &compiledRule{version: v}
	var err error
	if out.patterns, err = compilePatterns(v.Logic.Patterns); err != nil {
		return nil, fmt.Errorf("logic.patterns: %w", err)
	}
	if q := v.Logic.Qualifiers; q != nil {
		if out.anyOf, err = compileGroups(q.RequiresAnyOf); err != nil {
			return nil, fmt.Errorf("logic.qualifiers.requires_any_of: %w", err)
		}
		if out.allOf, err = compileGroups(q.RequiresAllOf); err != nil {
			return nil, fmt.Errorf("logic.qualifiers.requires_all_of: %w", err)
		}
	}
	if out.exclusions, err = compilePatterns(v.Logic.Exclusions); err != nil {
		return nil, fmt.Errorf("logic.exclusions: %w", err)
	}
	if out.aLevel, err = compilePatterns(v.Logic.ALevelRequiresAnyOf); err != nil {
		return nil, fmt.Errorf("logic.a_level_requires_any_of: %w", err)
	}
	return out, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("pattern %d %q: %w", i, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func compileGroups(groups []domain.QualifierGroup) ([][]*regexp.Regexp, error) {
	out := make([][]*regexp.Regexp, 0, len(groups))
	for i, g := range groups {
		compiled, err := compilePatterns(g.Patterns)
		if err != nil {
			return nil, fmt.Errorf("group %d: %w", i, err)
		}
		out = append(out, compiled)
	}
	return out, nil
}

func (r *compiledRule) hasQualifiers() bool {
	return len(r.anyOf) > 0 || len(r.allOf) > 0
}

// qualified reports whether the qualifier requirement holds. When both
// requires_any_of and requires_all_of are declared, both must hold.
func (r *compiledRule) qualified(evidence string) bool {
	if len(r.anyOf) > 0 {
		ok := false
		for _, group := range r.anyOf {
			if allMatch(group, evidence) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, group := range r.allOf {
		if !allMatch(group, evidence) {
			return false
		}
	}
	return true
}

func (r *compiledRule) evaluate(evidence string, verified bool) configuredOutcome {
	if !anyMatch(r.patterns, evidence) {
		return configuredOutcome{}
	}

	qualified := r.qualified(evidence)
	if r.hasQualifiers() && !qualified {
		return configuredOutcome{}
	}

	if anyMatch(r.exclusions, evidence) {
		qualifierSatisfied := r.hasQualifiers() && qualified
		if r.version.Logic.ExclusionMode != domain.ExclusionOnlyIfUnqualified || !qualifierSatisfied {
			return configuredOutcome{}
		}
	}

	level := r.version.Defaults.LevelDefault
	action := r.version.Defaults.ActionDefault
	if action == "" {
		action = domain.ActionNone
	}
	if level == domain.SafetyLevelA && len(r.aLevel) > 0 && !anyMatch(r.aLevel, evidence) {
		level = domain.SafetyLevelB
		if action == domain.ActionHardStop {
			action = domain.ActionRequireConfirm
		}
	}

	if r.version.Logic.RequiresVerified && !verified {
		return configuredOutcome{pendingVerification: true, level: level, action: action}
	}
	return configuredOutcome{fired: true, level: level, action: action}
}
