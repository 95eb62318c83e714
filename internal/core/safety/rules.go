package safety

import (
	"regexp"

	"github.com/kirillkom/intake-triage/internal/core/domain"
)

// Built-in rule IDs. A configured rule version with the same key replaces the
// built-in rule for its organization.
const (
	RuleChestPain              = "red-flag-chest-pain"
	RuleSyncope                = "red-flag-syncope"
	RuleSevereDyspnea          = "red-flag-severe-dyspnea"
	RuleSuicidalIdeation       = "red-flag-suicidal-ideation"
	RuleAcutePsychiatricCrisis = "red-flag-acute-psychiatric-crisis"
	RuleSeverePalpitations     = "red-flag-severe-palpitations"
	RuleAcuteNeuroDeficit      = "red-flag-acute-neurological-deficit"
	RuleSevereUncontrolled     = "red-flag-severe-uncontrolled-symptoms"
	RuleChestPainSustained     = "chest-pain-sustained-20min"
	RuleUncertaintyFollowUp    = "uncertainty-follow-up"
)

// Sanity check IDs. A failed check never changes the safety level.
const (
	CheckChiefComplaintOrHistoryMissing = "chief-complaint-or-history-missing"
	CheckUncertaintiesNotList           = "uncertainties-not-list"
	CheckChestPainDurationUnparsed      = "chest-pain-duration-unparsed"
)

const (
	chestPainEscalationMinutes = 20
	uncertaintyFollowUpMin     = 2
)

type RuleFamily string

const (
	FamilyIndicator    RuleFamily = "indicator"
	FamilyTimeDynamics RuleFamily = "time_dynamics"
	FamilyUncertainty  RuleFamily = "uncertainty"
)

type BuiltinRule struct {
	ID        string
	Family    RuleFamily
	Indicator Indicator
	Level     domain.SafetyLevel
	Action    domain.SafetyAction
}

// BuiltinRules is the fixed rule catalog.
var BuiltinRules = []BuiltinRule{
	{ID: RuleChestPain, Family: FamilyIndicator, Indicator: IndicatorChestPain, Level: domain.SafetyLevelB, Action: domain.ActionWarn},
	{ID: RuleSyncope, Family: FamilyIndicator, Indicator: IndicatorSyncope, Level: domain.SafetyLevelA, Action: domain.ActionRequireConfirm},
	{ID: RuleSevereDyspnea, Family: FamilyIndicator, Indicator: IndicatorSevereDyspnea, Level: domain.SafetyLevelA, Action: domain.ActionRequireConfirm},
	{ID: RuleSuicidalIdeation, Family: FamilyIndicator, Indicator: IndicatorSuicidalIdeation, Level: domain.SafetyLevelA, Action: domain.ActionRequireConfirm},
	{ID: RuleAcutePsychiatricCrisis, Family: FamilyIndicator, Indicator: IndicatorAcutePsychiatricCrisis, Level: domain.SafetyLevelB, Action: domain.ActionWarn},
	{ID: RuleSeverePalpitations, Family: FamilyIndicator, Indicator: IndicatorSeverePalpitations, Level: domain.SafetyLevelB, Action: domain.ActionWarn},
	{ID: RuleAcuteNeuroDeficit, Family: FamilyIndicator, Indicator: IndicatorAcuteNeuroDeficit, Level: domain.SafetyLevelA, Action: domain.ActionRequireConfirm},
	{ID: RuleSevereUncontrolled, Family: FamilyIndicator, Indicator: IndicatorSevereUncontrolled, Level: domain.SafetyLevelB, Action: domain.ActionWarn},
	{ID: RuleChestPainSustained, Family: FamilyTimeDynamics, Indicator: IndicatorChestPain, Level: domain.SafetyLevelA, Action: domain.ActionRequireConfirm},
	{ID: RuleUncertaintyFollowUp, Family: FamilyUncertainty, Level: domain.SafetyLevelC, Action: domain.ActionNone},
}

// aLevelQualifiedRuleKeys may only reach level A when the configured version
// declares a_level_requires_any_of (intent, plan or means).
var aLevelQualifiedRuleKeys = map[string]struct{}{
	RuleSuicidalIdeation: {},
}

func RequiresALevelQualifiers(ruleKey string) bool {
	_, ok := aLevelQualifiedRuleKeys[ruleKey]
	return ok
}

type ruleContext struct {
	intake     domain.StructuredIntake
	messages   []string
	evidence   string
	indicators IndicatorSet
	matcher    *Matcher
}

// durationEvidenceFields are the narrative fields a chest-pain duration may
// be read from. Medication schedules and psychosocial notes carry unrelated
// durations.
var durationEvidenceFields = []string{
	FieldChiefComplaint,
	FieldHPIOnset,
	FieldHPICourse,
	FieldHPISeverity,
	FieldHPILocation,
	FieldHPICharacter,
	FieldHPIAssociated,
	FieldVerbatimMessages,
}

// clauseSplitRe splits on sentence and clause punctuation. A comma or period
// only ends a clause when followed by space, so "1,5 stunden" stays whole.
var clauseSplitRe = regexp.MustCompile(`[;!?\n]+|[.,](?:\s+|$)`)

func (r BuiltinRule) fires(ctx ruleContext) bool {
	switch r.Family {
	case FamilyIndicator:
		return ctx.indicators.Has(r.Indicator)
	case FamilyTimeDynamics:
		if !ctx.indicators.Has(r.Indicator) {
			return false
		}
		minutes, ok := sustainedMinutes(ctx)
		return ok && minutes >= chestPainEscalationMinutes
	case FamilyUncertainty:
		return !ctx.intake.UncertaintiesMalformed && len(ctx.intake.Uncertainties) >= uncertaintyFollowUpMin
	default:
		return false
	}
}

// sustainedMinutes prefers the structured HPI duration. Otherwise it takes
// the longest duration stated in a narrative clause that itself mentions
// chest pain.
func sustainedMinutes(ctx ruleContext) (int, bool) {
	if ctx.intake.HPI != nil {
		if minutes, ok := ParseDurationMinutes(ctx.intake.HPI.Duration); ok {
			return minutes, true
		}
	}
	if ctx.matcher == nil {
		return 0, false
	}

	best, found := 0, false
	narrative := Normalize(ctx.intake, ctx.messages, durationEvidenceFields)
	for _, clause := range clauseSplitRe.Split(narrative, -1) {
		if !ctx.matcher.MatchIndicator(IndicatorChestPain, clause) {
			continue
		}
		if minutes, ok := ParseDurationMinutes(clause); ok && (!found || minutes > best) {
			best, found = minutes, true
		}
	}
	return best, found
}

type sanityCheck struct {
	ID     string
	failed func(ctx ruleContext) bool
}

var sanityChecks = []sanityCheck{
	{ID: CheckChiefComplaintOrHistoryMissing, failed: func(ctx ruleContext) bool {
		return collapseSpace(ctx.intake.ChiefComplaint) == "" && hpiBlank(ctx.intake.HPI)
	}},
	{ID: CheckUncertaintiesNotList, failed: func(ctx ruleContext) bool {
		return ctx.intake.UncertaintiesMalformed
	}},
	{ID: CheckChestPainDurationUnparsed, failed: func(ctx ruleContext) bool {
		if !ctx.indicators.Has(IndicatorChestPain) || ctx.intake.HPI == nil {
			return false
		}
		if collapseSpace(ctx.intake.HPI.Duration) == "" {
			return false
		}
		_, ok := ParseDurationMinutes(ctx.intake.HPI.Duration)
		return !ok
	}},
}

func hpiBlank(h *domain.HistoryOfPresentIllness) bool {
	if h.IsEmpty() {
		return true
	}
	fields := append([]string{h.Onset, h.Duration, h.Course, h.Severity, h.Location, h.Character}, h.AssociatedSymptoms...)
	for _, f := range fields {
		if collapseSpace(f) != "" {
			return false
		}
	}
	return true
}
