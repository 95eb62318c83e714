package safety

import (
	"fmt"
	"sort"

	"github.com/kirillkom/intake-triage/internal/core/domain"
)

// Engine evaluates intake against the built-in catalog and configured rule
// versions. It holds no mutable state.
type Engine struct {
	matcher *Matcher
}

func NewEngine() *Engine {
	return &Engine{matcher: NewMatcher()}
}

func (e *Engine) Matcher() *Matcher {
	return e.matcher
}

// Evaluate returns fired rule IDs and failed sanity check IDs, both sorted.
// Configured versions must be active versions for req.OrganizationID; a
// version that no longer compiles fails the whole evaluation.
func (e *Engine) Evaluate(req domain.SafetyEvaluationRequest, configured []domain.SafetyRuleVersion) (*domain.SafetyEvaluation, error) {
	compiled := make([]*compiledRule, 0, len(configured))
	overridden := make(map[string]struct{}, len(configured))
	for _, v := range configured {
		rule, err := compileRule(v)
		if err != nil {
			return nil, domain.WrapError(domain.ErrRuleConfigInvalid, "compile rule "+v.RuleKey, err)
		}
		compiled = append(compiled, rule)
		overridden[v.RuleKey] = struct{}{}
	}
	sort.Slice(compiled, func(i, j int) bool {
		return compiled[i].version.RuleKey < compiled[j].version.RuleKey
	})

	evidence := Normalize(req.Intake, req.VerbatimMessages, nil)
	ctx := ruleContext{
		intake:     req.Intake,
		messages:   req.VerbatimMessages,
		evidence:   evidence,
		indicators: e.matcher.Match(evidence),
		matcher:    e.matcher,
	}

	acc := newAccumulator()
	for _, rule := range BuiltinRules {
		if _, ok := overridden[rule.ID]; ok {
			continue
		}
		if rule.fires(ctx) {
			acc.fire(rule.ID, rule.Level, rule.Action)
		}
	}

	for _, rule := range compiled {
		ruleEvidence := evidence
		if fields := rule.version.Logic.IntakeEvidenceFields; len(fields) > 0 {
			ruleEvidence = Normalize(req.Intake, req.VerbatimMessages, fields)
		}
		outcome := rule.evaluate(ruleEvidence, req.EvidenceVerified)
		switch {
		case outcome.fired:
			acc.fire(rule.version.RuleKey, outcome.level, outcome.action)
		case outcome.pendingVerification:
			acc.pending = append(acc.pending, rule.version.RuleKey)
		}
	}

	for _, check := range sanityChecks {
		if check.failed(ctx) {
			acc.checks = append(acc.checks, check.ID)
		}
	}

	return acc.result(), nil
}

type accumulator struct {
	levels  map[string]domain.SafetyLevel
	level   domain.SafetyLevel
	action  domain.SafetyAction
	pending []string
	checks  []string
}

func newAccumulator() *accumulator {
	return &accumulator{levels: map[string]domain.SafetyLevel{}}
}

func (a *accumulator) fire(id string, level domain.SafetyLevel, action domain.SafetyAction) {
	if prev, ok := a.levels[id]; ok && prev.Rank() >= level.Rank() {
		return
	}
	a.levels[id] = level
	if level.Rank() > a.level.Rank() {
		a.level = level
	}
	if action.Rank() > a.action.Rank() {
		a.action = action
	}
}

func (a *accumulator) result() *domain.SafetyEvaluation {
	ruleIDs := make([]string, 0, len(a.levels))
	for id := range a.levels {
		ruleIDs = append(ruleIDs, id)
	}
	sort.Strings(ruleIDs)
	sort.Strings(a.checks)
	sort.Strings(a.pending)

	out := &domain.SafetyEvaluation{
		RuleIDs:                    ruleIDs,
		CheckIDs:                   append([]string{}, a.checks...),
		Level:                      a.level,
		Action:                     a.action,
		PendingVerificationRuleIDs: a.pending,
	}
	if len(ruleIDs) > 0 {
		out.RuleLevels = a.levels
		if out.Action == "" {
			out.Action = domain.ActionNone
		}
	}
	return out
}

// Summary renders an evaluation for log lines without any evidence text.
func Summary(e *domain.SafetyEvaluation) string {
	if e == nil {
		return "none"
	}
	return fmt.Sprintf("level=%s rules=%d checks=%d", e.Level, len(e.RuleIDs), len(e.CheckIDs))
}
